// Package layout provides the clip layout store with mutation operations
// and bounded undo history.
package layout

import (
	"sync"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/framebox/framebox/internal/domain/clip"
	"github.com/framebox/framebox/internal/domain/timeline"
)

// DefaultHistoryLimit bounds the undo history.
const DefaultHistoryLimit = 10

// ClipSpec describes a clip to be added to a track.
type ClipSpec struct {
	FilePath  string
	StartTime int64
	Duration  int64
	TrimIn    int64
	TrimOut   int64 // 0 means full source length
	Volume    *float64
	Muted     bool
	FadeIn    int64
	FadeOut   int64
}

// Store owns the canonical track/clip layout. Mutations are atomic
// relative to readers: a mutation either fully applies, including the
// duration recompute, or is rejected before any state changes.
type Store struct {
	mu sync.RWMutex

	tracks        []timeline.Track
	totalDuration int64

	historyLimit int
	history      [][]timeline.Track
	historyIndex int
}

// NewStore creates a store over the given initial tracks.
func NewStore(tracks []timeline.Track) *Store {
	return NewStoreWithHistoryLimit(tracks, DefaultHistoryLimit)
}

// NewStoreWithHistoryLimit creates a store with a custom undo depth.
func NewStoreWithHistoryLimit(tracks []timeline.Track, historyLimit int) *Store {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	s := &Store{
		tracks:       timeline.CloneTracks(tracks),
		historyLimit: historyLimit,
		history:      make([][]timeline.Track, 0, historyLimit),
		historyIndex: -1,
	}
	for i := range s.tracks {
		s.tracks[i].SortClips()
	}
	s.recalculateDurationLocked()
	return s
}

// Tracks returns a deep copy of the current track layout.
func (s *Store) Tracks() []timeline.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return timeline.CloneTracks(s.tracks)
}

// TotalDuration returns the current timeline duration.
func (s *Store) TotalDuration() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalDuration
}

// Timeline returns a deep copy of the layout as a Timeline value.
func (s *Store) Timeline() timeline.Timeline {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return timeline.Timeline{
		Tracks:        timeline.CloneTracks(s.tracks),
		TotalDuration: s.totalDuration,
	}
}

// AddClip inserts a new clip into the given track, sorted by start time,
// and returns it. No collision check is performed: overlap on insert is
// permitted. Returns false if the track is unknown or the spec invalid.
func (s *Store) AddClip(trackID string, spec ClipSpec) (clip.Clip, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ti := s.findTrackLocked(trackID)
	if ti < 0 {
		zlog.Warn().Msgf("layout: add clip: unknown track %s", trackID)
		return clip.Clip{}, false
	}

	trimOut := spec.TrimOut
	if trimOut == 0 {
		trimOut = spec.Duration
	}
	c := clip.Clip{
		ID:        uuid.New().String(),
		FilePath:  spec.FilePath,
		StartTime: spec.StartTime,
		Duration:  spec.Duration,
		TrimIn:    spec.TrimIn,
		TrimOut:   trimOut,
		Volume:    spec.Volume,
		Muted:     spec.Muted,
		FadeIn:    spec.FadeIn,
		FadeOut:   spec.FadeOut,
	}
	if !c.Valid() {
		zlog.Warn().Msgf("layout: add clip: invalid spec for track %s: start=%d trim=[%d,%d] duration=%d",
			trackID, spec.StartTime, spec.TrimIn, trimOut, spec.Duration)
		return clip.Clip{}, false
	}

	s.recordHistoryLocked()
	s.tracks[ti].Clips = append(s.tracks[ti].Clips, c)
	s.tracks[ti].SortClips()
	s.recalculateDurationLocked()
	return c, true
}

// MoveClip moves a clip to the position closest to desiredStartTime that
// does not collide with any other clip on its track. Candidate positions
// are, in order: before the first clip, each inter-clip gap large enough
// to hold the clip, and after the last clip. Returns false when the clip
// is unknown or the move would not change its position.
//
// When recordHistory is true a snapshot is taken before the mutation, so
// drag gestures record only their pre-drag state, not every delta.
func (s *Store) MoveClip(clipID string, desiredStartTime int64, recordHistory bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ti, ci := s.findClipLocked(clipID)
	if ti < 0 {
		zlog.Warn().Msgf("layout: move clip: unknown clip %s", clipID)
		return false
	}

	c := &s.tracks[ti].Clips[ci]
	dur := c.VisibleDuration()
	desired := desiredStartTime
	if desired < 0 {
		desired = 0
	}

	others := make([]clip.Clip, 0, len(s.tracks[ti].Clips)-1)
	for i := range s.tracks[ti].Clips {
		if i != ci {
			others = append(others, s.tracks[ti].Clips[i])
		}
	}

	newStart, ok := resolveDropPosition(others, dur, desired)
	if !ok {
		zlog.Debug().Msgf("layout: move clip: no valid position for %s near %d", clipID, desiredStartTime)
		return false
	}
	if newStart == c.StartTime {
		return false
	}

	if recordHistory {
		s.recordHistoryLocked()
	}
	c.StartTime = newStart
	s.tracks[ti].SortClips()
	s.recalculateDurationLocked()
	return true
}

// MoveClipToTrack relocates a clip to a different track, preserving its
// start time. The move is aborted if the target track has any clip
// overlapping the clip's span. Returns false when nothing changed.
func (s *Store) MoveClipToTrack(clipID, targetTrackID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	srcTi, ci := s.findClipLocked(clipID)
	if srcTi < 0 {
		zlog.Warn().Msgf("layout: move to track: unknown clip %s", clipID)
		return false
	}
	dstTi := s.findTrackLocked(targetTrackID)
	if dstTi < 0 {
		zlog.Warn().Msgf("layout: move to track: unknown track %s", targetTrackID)
		return false
	}
	if srcTi == dstTi {
		return false
	}

	c := s.tracks[srcTi].Clips[ci]
	start, end := c.StartTime, c.EndTime()
	for i := range s.tracks[dstTi].Clips {
		o := &s.tracks[dstTi].Clips[i]
		if start < o.EndTime() && o.StartTime < end {
			zlog.Debug().Msgf("layout: move to track: clip %s overlaps %s on track %s",
				clipID, o.ID, targetTrackID)
			return false
		}
	}

	s.recordHistoryLocked()
	s.tracks[srcTi].Clips = append(s.tracks[srcTi].Clips[:ci], s.tracks[srcTi].Clips[ci+1:]...)
	s.tracks[dstTi].Clips = append(s.tracks[dstTi].Clips, c)
	s.tracks[dstTi].SortClips()
	s.recalculateDurationLocked()
	return true
}

// SplitClip replaces a clip with two adjacent clips whose combined visible
// span and trim offsets exactly reconstruct the original. splitTime must
// fall strictly inside the clip's visible span.
func (s *Store) SplitClip(clipID string, splitTime int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ti, ci := s.findClipLocked(clipID)
	if ti < 0 {
		zlog.Warn().Msgf("layout: split clip: unknown clip %s", clipID)
		return false
	}

	c := s.tracks[ti].Clips[ci]
	if splitTime <= c.StartTime || splitTime >= c.EndTime() {
		zlog.Debug().Msgf("layout: split clip: time %d outside clip %s span [%d,%d)",
			splitTime, clipID, c.StartTime, c.EndTime())
		return false
	}

	s.recordHistoryLocked()

	offset := splitTime - c.StartTime

	left := c.Clone()
	left.TrimOut = c.TrimIn + offset
	left.FadeOut = 0

	right := c.Clone()
	right.ID = uuid.New().String()
	right.StartTime = splitTime
	right.TrimIn = c.TrimIn + offset
	right.FadeIn = 0

	s.tracks[ti].Clips[ci] = left
	s.tracks[ti].Clips = append(s.tracks[ti].Clips, right)
	s.tracks[ti].SortClips()
	s.recalculateDurationLocked()
	return true
}

// Undo restores the layout recorded by the most recent history entry.
// An empty history is a no-op with a warning, not an error.
func (s *Store) Undo() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.historyIndex < 0 {
		zlog.Warn().Msg("layout: undo: history is empty")
		return
	}
	s.tracks = timeline.CloneTracks(s.history[s.historyIndex])
	s.historyIndex--
	s.recalculateDurationLocked()
}

// CanUndo reports whether an undo entry is available.
func (s *Store) CanUndo() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.historyIndex >= 0
}

// HistoryLen returns the number of recorded history entries.
func (s *Store) HistoryLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// RecalculateDuration recomputes the total timeline duration.
func (s *Store) RecalculateDuration() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recalculateDurationLocked()
}

// recordHistoryLocked snapshots the current tracks before a mutation.
// Recording truncates any entries past the current pointer and evicts the
// oldest entry once the bound is reached. Must be called with lock held.
func (s *Store) recordHistoryLocked() {
	if s.historyIndex < len(s.history)-1 {
		s.history = s.history[:s.historyIndex+1]
	}
	s.history = append(s.history, timeline.CloneTracks(s.tracks))
	if len(s.history) > s.historyLimit {
		s.history = s.history[1:]
	}
	s.historyIndex = len(s.history) - 1
}

// recalculateDurationLocked must be called with lock held.
func (s *Store) recalculateDurationLocked() {
	s.totalDuration = timeline.TotalDuration(s.tracks)
}

// findTrackLocked returns the index of the track or -1.
// Must be called with lock held.
func (s *Store) findTrackLocked(trackID string) int {
	for i := range s.tracks {
		if s.tracks[i].ID == trackID {
			return i
		}
	}
	return -1
}

// findClipLocked returns the track and clip indexes or (-1, -1).
// Must be called with lock held.
func (s *Store) findClipLocked(clipID string) (int, int) {
	for ti := range s.tracks {
		for ci := range s.tracks[ti].Clips {
			if s.tracks[ti].Clips[ci].ID == clipID {
				return ti, ci
			}
		}
	}
	return -1, -1
}

// resolveDropPosition finds the non-colliding start closest to desired.
// others must belong to a single track; they are scanned in start order.
func resolveDropPosition(others []clip.Clip, dur, desired int64) (int64, bool) {
	if len(others) == 0 {
		return desired, true
	}

	sorted := make([]clip.Clip, len(others))
	copy(sorted, others)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].StartTime < sorted[j-1].StartTime; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}

	collides := false
	for i := range sorted {
		if desired < sorted[i].EndTime() && sorted[i].StartTime < desired+dur {
			collides = true
			break
		}
	}
	if !collides {
		return desired, true
	}

	candidates := make([]int64, 0, len(sorted)+1)

	// Before the first clip.
	if first := sorted[0].StartTime; first >= dur {
		candidates = append(candidates, clampTo(desired, 0, first-dur))
	}

	// Each gap large enough to hold the clip. Overlapping clips are legal,
	// so a gap opens at the farthest end seen so far, not at the previous
	// clip's end.
	maxEnd := sorted[0].EndTime()
	for i := 1; i < len(sorted); i++ {
		gapEnd := sorted[i].StartTime
		if gapEnd-maxEnd >= dur {
			candidates = append(candidates, clampTo(desired, maxEnd, gapEnd-dur))
		}
		if e := sorted[i].EndTime(); e > maxEnd {
			maxEnd = e
		}
	}

	// After every clip.
	if desired > maxEnd {
		candidates = append(candidates, desired)
	} else {
		candidates = append(candidates, maxEnd)
	}

	best := candidates[0]
	for _, cand := range candidates[1:] {
		if absDelta(cand, desired) < absDelta(best, desired) {
			best = cand
		}
	}
	return best, true
}

func clampTo(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func absDelta(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}

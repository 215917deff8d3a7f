// Package composition provides read-only queries over the track layout.
//
// All queries are pure with respect to the layout: they scan a snapshot
// and never mutate it. Overlapping clips on the same track are legal and
// are returned without deduplication.
package composition

import (
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/framebox/framebox/internal/domain/clip"
	"github.com/framebox/framebox/internal/domain/timeline"
)

// queryBudget is the per-query latency budget (one 60 fps frame).
// Exceeding it is logged, not fatal.
const queryBudget = 16 * time.Millisecond

// ActiveClip is a clip that is active at a queried time, together with
// its track context and the clip-relative time.
type ActiveClip struct {
	Clip         clip.Clip
	TrackID      string
	TrackNumber  int
	TrackType    timeline.TrackType
	RelativeTime int64 // queried time minus clip start
}

// Source supplies the track snapshot the resolver queries.
type Source interface {
	Tracks() []timeline.Track
}

// Resolver answers composition queries over a layout source.
type Resolver struct {
	src Source
}

// NewResolver creates a resolver over the given source.
func NewResolver(src Source) *Resolver {
	return &Resolver{src: src}
}

// ActiveClipsAt returns every clip active at t across all tracks, in
// track order. A clip is active iff t is in [StartTime, EndTime()):
// inclusive start, exclusive end.
func (r *Resolver) ActiveClipsAt(t int64) []ActiveClip {
	defer warnSlow("active_clips", time.Now())

	var active []ActiveClip
	for _, tr := range r.src.Tracks() {
		for i := range tr.Clips {
			c := &tr.Clips[i]
			if c.Contains(t) {
				active = append(active, ActiveClip{
					Clip:         *c,
					TrackID:      tr.ID,
					TrackNumber:  tr.Number,
					TrackType:    tr.Type,
					RelativeTime: t - c.StartTime,
				})
			}
		}
	}
	return active
}

// ActiveVideoClipsAt returns the active clips on video tracks.
func (r *Resolver) ActiveVideoClipsAt(t int64) []ActiveClip {
	return filterByType(r.ActiveClipsAt(t), timeline.TrackTypeVideo)
}

// ActiveAudioClipsAt returns the active clips on audio tracks.
func (r *Resolver) ActiveAudioClipsAt(t int64) []ActiveClip {
	return filterByType(r.ActiveClipsAt(t), timeline.TrackTypeAudio)
}

// DetectGaps reports whether no clip is active at t. By construction
// this is exactly ActiveClipsAt(t) being empty.
func (r *Resolver) DetectGaps(t int64) bool {
	return len(r.ActiveClipsAt(t)) == 0
}

// NextClipBoundary returns the smallest clip start or end strictly
// greater than t across all tracks. The second return is false when no
// boundary lies past t.
func (r *Resolver) NextClipBoundary(t int64) (int64, bool) {
	defer warnSlow("next_boundary", time.Now())

	var next int64
	found := false
	consider := func(v int64) {
		if v > t && (!found || v < next) {
			next = v
			found = true
		}
	}
	for _, tr := range r.src.Tracks() {
		for i := range tr.Clips {
			consider(tr.Clips[i].StartTime)
			consider(tr.Clips[i].EndTime())
		}
	}
	return next, found
}

// ClipAtTime returns the clip active at t on a single track.
func (r *Resolver) ClipAtTime(t int64, trackID string) (clip.Clip, bool) {
	for _, tr := range r.src.Tracks() {
		if tr.ID != trackID {
			continue
		}
		for i := range tr.Clips {
			if tr.Clips[i].Contains(t) {
				return tr.Clips[i], true
			}
		}
	}
	return clip.Clip{}, false
}

// NextClip returns the clip on the same track with the smallest start
// time at or after the given clip's end, excluding the clip itself.
func (r *Resolver) NextClip(trackID, clipID string) (clip.Clip, bool) {
	var current *clip.Clip
	var track *timeline.Track
	for _, tr := range r.src.Tracks() {
		if tr.ID != trackID {
			continue
		}
		t := tr
		track = &t
		for i := range t.Clips {
			if t.Clips[i].ID == clipID {
				current = &t.Clips[i]
				break
			}
		}
		break
	}
	if track == nil || current == nil {
		return clip.Clip{}, false
	}

	track.SortClips()
	end := current.EndTime()
	for i := range track.Clips {
		c := &track.Clips[i]
		if c.ID != clipID && c.StartTime >= end {
			return *c, true
		}
	}
	return clip.Clip{}, false
}

// IsEndOfTimeline reports whether t is at or past the last clip end.
// An empty timeline is always at its end.
func (r *Resolver) IsEndOfTimeline(t int64) bool {
	tracks := r.src.Tracks()
	hasClips := false
	for i := range tracks {
		if len(tracks[i].Clips) > 0 {
			hasClips = true
			break
		}
	}
	if !hasClips {
		return true
	}
	return t >= timeline.TotalDuration(tracks)
}

func filterByType(active []ActiveClip, tt timeline.TrackType) []ActiveClip {
	out := make([]ActiveClip, 0, len(active))
	for _, ac := range active {
		if ac.TrackType == tt {
			out = append(out, ac)
		}
	}
	return out
}

func warnSlow(query string, started time.Time) {
	if elapsed := time.Since(started); elapsed > queryBudget {
		zlog.Warn().Msgf("composition: %s query took %v (budget %v)", query, elapsed, queryBudget)
	}
}

// Package timeline provides the Track and Timeline domain entities.
package timeline

import (
	"sort"

	"github.com/framebox/framebox/internal/domain/clip"
)

// TrackType represents the kind of media a track carries.
type TrackType string

const (
	TrackTypeVideo TrackType = "video"
	TrackTypeAudio TrackType = "audio"
)

// Track represents an ordered lane of clips.
type Track struct {
	ID     string    // Track UUID
	Number int       // 1-based display/z-order
	Type   TrackType // video or audio
	Clips  []clip.Clip
}

// SortClips orders the track's clips by start time.
func (t *Track) SortClips() {
	sort.SliceStable(t.Clips, func(i, j int) bool {
		return t.Clips[i].StartTime < t.Clips[j].StartTime
	})
}

// EndTime returns the timeline position where the track's last clip ends.
func (t *Track) EndTime() int64 {
	var end int64
	for i := range t.Clips {
		if e := t.Clips[i].EndTime(); e > end {
			end = e
		}
	}
	return end
}

// Clone returns a deep copy of the track.
func (t *Track) Clone() Track {
	out := *t
	out.Clips = make([]clip.Clip, len(t.Clips))
	for i := range t.Clips {
		out.Clips[i] = t.Clips[i].Clone()
	}
	return out
}

// Timeline represents the full track layout with its derived duration.
type Timeline struct {
	Tracks        []Track
	TotalDuration int64
}

// CloneTracks returns a deep copy of a track slice. Undo history and
// resolver snapshots rely on copies never sharing clip storage.
func CloneTracks(tracks []Track) []Track {
	out := make([]Track, len(tracks))
	for i := range tracks {
		out[i] = tracks[i].Clone()
	}
	return out
}

// TotalDuration returns the latest clip end across all tracks.
func TotalDuration(tracks []Track) int64 {
	var total int64
	for i := range tracks {
		if e := tracks[i].EndTime(); e > total {
			total = e
		}
	}
	return total
}

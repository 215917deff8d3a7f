package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/framebox/framebox/internal/domain/clip"
)

func videoTrack(id string, number int, clips ...clip.Clip) Track {
	return Track{ID: id, Number: number, Type: TrackTypeVideo, Clips: clips}
}

func TestTotalDuration(t *testing.T) {
	tests := []struct {
		name     string
		tracks   []Track
		expected int64
	}{
		{
			name:     "empty timeline",
			tracks:   nil,
			expected: 0,
		},
		{
			name: "single track",
			tracks: []Track{
				videoTrack("t1", 1,
					clip.Clip{ID: "a", StartTime: 0, Duration: 1000, TrimIn: 0, TrimOut: 1000},
					clip.Clip{ID: "b", StartTime: 1500, Duration: 1000, TrimIn: 0, TrimOut: 1000},
				),
			},
			expected: 2500,
		},
		{
			name: "longest track wins",
			tracks: []Track{
				videoTrack("t1", 1, clip.Clip{ID: "a", StartTime: 0, Duration: 5000, TrimIn: 0, TrimOut: 5000}),
				videoTrack("t2", 2, clip.Clip{ID: "b", StartTime: 9000, Duration: 2000, TrimIn: 0, TrimOut: 2000}),
			},
			expected: 11000,
		},
		{
			name: "trim window shortens the end",
			tracks: []Track{
				videoTrack("t1", 1, clip.Clip{ID: "a", StartTime: 1000, Duration: 6000, TrimIn: 1000, TrimOut: 4000}),
			},
			expected: 4000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TotalDuration(tt.tracks))
		})
	}
}

func TestTrack_SortClips(t *testing.T) {
	tr := videoTrack("t1", 1,
		clip.Clip{ID: "b", StartTime: 2000, Duration: 1000, TrimIn: 0, TrimOut: 1000},
		clip.Clip{ID: "a", StartTime: 0, Duration: 1000, TrimIn: 0, TrimOut: 1000},
		clip.Clip{ID: "c", StartTime: 4000, Duration: 1000, TrimIn: 0, TrimOut: 1000},
	)

	tr.SortClips()

	assert.Equal(t, []string{"a", "b", "c"}, []string{tr.Clips[0].ID, tr.Clips[1].ID, tr.Clips[2].ID})
}

func TestCloneTracks_IsDeep(t *testing.T) {
	tracks := []Track{
		videoTrack("t1", 1, clip.Clip{ID: "a", StartTime: 0, Duration: 1000, TrimIn: 0, TrimOut: 1000}),
	}

	cloned := CloneTracks(tracks)
	cloned[0].Clips[0].StartTime = 9999

	assert.Equal(t, int64(0), tracks[0].Clips[0].StartTime)
}

// Package playback provides the synchronizer that keeps on-screen playback
// consistent with the resolved timeline composition.
package playback

// State represents the synchronizer state.
type State int

const (
	StateUninitialized  State = iota // Not yet initialized
	StateIdle                        // Initialized, not playing
	StateLoadingSingle               // Loading a single clip into the renderer
	StateLoadingSegment              // Waiting for a segment render/load
	StatePlayingSingle               // Playing one clip directly
	StatePlayingSegment              // Playing a pre-rendered segment
	StateGap                         // In a region with no active video clips
	StateStopped                     // Reached the end of the timeline
	StateError                       // Last external command failed (recoverable)
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateIdle:
		return "idle"
	case StateLoadingSingle:
		return "loading_single"
	case StateLoadingSegment:
		return "loading_segment"
	case StatePlayingSingle:
		return "playing_single"
	case StatePlayingSegment:
		return "playing_segment"
	case StateGap:
		return "gap"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// playing reports whether the state is one of the playing states.
func (s State) playing() bool {
	return s == StatePlayingSingle || s == StatePlayingSegment
}

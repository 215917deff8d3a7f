package playback

import "image"

// EventType represents a synchronizer event type.
type EventType int

const (
	EventStateChanged   EventType = iota // Synchronizer state changed
	EventRegionChanged                   // Active clip set changed
	EventGapEntered                      // Entered a region with no active video clips
	EventGapLeft                         // Left a gap region
	EventCompleted                       // Playback reached the end of the timeline
	EventFrame                           // A captured (or synthesized) frame is available
	EventRenderProgress                  // Composer render percent-complete update
	EventError                           // Non-fatal external command failure
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventStateChanged:
		return "state_changed"
	case EventRegionChanged:
		return "region_changed"
	case EventGapEntered:
		return "gap_entered"
	case EventGapLeft:
		return "gap_left"
	case EventCompleted:
		return "completed"
	case EventFrame:
		return "frame"
	case EventRenderProgress:
		return "render_progress"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event represents a synchronizer event.
type Event struct {
	Type    EventType
	State   State       // Synchronizer state at emission time
	TimeMs  int64       // Composition time at emission time
	Message string      // Set for EventError
	Percent int         // Set for EventRenderProgress
	Frame   image.Image // Set for EventFrame (black frame during gaps)
}

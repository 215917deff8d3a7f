package playback

// segmentCache remembers the currently loaded pre-rendered segment so
// minor time jitter does not trigger redundant classification/renders.
type segmentCache struct {
	playingSegment bool
	startTimeMs    int64 // Global composition time the segment starts at
	durationMs     int64
	path           string
}

// reusable reports whether a cached segment covers t within the given
// reuse window.
func (c *segmentCache) reusable(t, windowMs int64) bool {
	if !c.playingSegment {
		return false
	}
	delta := t - c.startTimeMs
	if delta < 0 {
		delta = -delta
	}
	return delta <= windowMs
}

// set records a freshly rendered segment.
func (c *segmentCache) set(startTimeMs, durationMs int64, path string) {
	c.playingSegment = true
	c.startTimeMs = startTimeMs
	c.durationMs = durationMs
	c.path = path
}

// invalidate clears the cache. Called on region change, renderer error,
// and playback stop.
func (c *segmentCache) invalidate() {
	*c = segmentCache{}
}

// Package clip provides the Clip domain entity.
package clip

// MinVisibleDurationMs is the smallest visible span a trim operation may
// leave on a clip.
const MinVisibleDurationMs int64 = 100

// Clip represents a media file placed on the timeline.
// All times are integer milliseconds.
type Clip struct {
	ID        string   // Clip UUID
	FilePath  string   // Path to the source media file
	StartTime int64    // Timeline position (>= 0)
	Duration  int64    // Full source length
	TrimIn    int64    // Trim window start within the source (>= 0)
	TrimOut   int64    // Trim window end within the source (<= Duration)
	Volume    *float64 // Playback volume 0.0-2.0 (nil means 1.0)
	Muted     bool     // Audio muted
	FadeIn    int64    // Linear fade-in length (0 means none)
	FadeOut   int64    // Linear fade-out length (0 means none)
}

// VisibleDuration returns the length of the trim window.
func (c *Clip) VisibleDuration() int64 {
	return c.TrimOut - c.TrimIn
}

// EndTime returns the timeline position where the clip ends (exclusive).
func (c *Clip) EndTime() int64 {
	return c.StartTime + c.VisibleDuration()
}

// Contains reports whether t falls inside the clip's timeline span.
// The start is inclusive, the end exclusive.
func (c *Clip) Contains(t int64) bool {
	return t >= c.StartTime && t < c.EndTime()
}

// EffectiveVolume returns the clip volume, defaulting to 1.0 when unset.
func (c *Clip) EffectiveVolume() float64 {
	if c.Volume == nil {
		return 1.0
	}
	return *c.Volume
}

// HasFades reports whether the clip carries any fade.
func (c *Clip) HasFades() bool {
	return c.FadeIn > 0 || c.FadeOut > 0
}

// FadesValid reports whether the configured fades fit inside the visible
// span. Fades whose sum exceeds the visible duration must not be applied.
func (c *Clip) FadesValid() bool {
	return c.FadeIn >= 0 && c.FadeOut >= 0 && c.FadeIn+c.FadeOut <= c.VisibleDuration()
}

// Valid reports whether the clip satisfies the trim-window invariants:
// 0 <= TrimIn < TrimOut <= Duration and StartTime >= 0.
func (c *Clip) Valid() bool {
	return c.StartTime >= 0 &&
		c.TrimIn >= 0 &&
		c.TrimOut > c.TrimIn &&
		c.TrimOut <= c.Duration
}

// Clone returns a deep copy of the clip.
func (c *Clip) Clone() Clip {
	out := *c
	if c.Volume != nil {
		v := *c.Volume
		out.Volume = &v
	}
	return out
}

// Package audiofx provides the audio filter chain applied to the renderer
// while a single clip plays in timeline mode.
package audiofx

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/framebox/framebox/internal/domain/clip"
)

// AudioSink is the audio surface of the renderer command interface.
type AudioSink interface {
	ApplyVolumeFilter(ctx context.Context, percent float64, muted bool) error
	ApplyFadeFilter(ctx context.Context, fadeInMs, fadeOutMs, clipDurationMs int64) error
	ClearAudioFilters(ctx context.Context) error
}

// Filter is the interface for audio filters.
type Filter interface {
	// Name returns the filter name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ValidateConfig validates the filter configuration.
	ValidateConfig(settings map[string]any) error
	// AppliesTo returns true if this filter should be applied to the given clip.
	AppliesTo(c clip.Clip) bool
	// Apply applies the filter to the sink for the given clip.
	Apply(ctx context.Context, sink AudioSink, c clip.Clip) error
}

// registry holds registered filter factories.
var registry = make(map[string]func() Filter)

// Register registers a filter factory.
func Register(name string, factory func() Filter) {
	registry[name] = factory
}

// GetRegistered returns all registered filter factories.
func GetRegistered() map[string]func() Filter {
	return registry
}

// Chain applies filters in sequence.
type Chain struct {
	filters []Filter
}

// NewChain creates a new filter chain.
func NewChain() *Chain {
	return &Chain{
		filters: make([]Filter, 0),
	}
}

// DefaultChain returns a chain with the built-in volume and fade filters
// using their default settings.
func DefaultChain() *Chain {
	c := NewChain()
	for _, name := range []string{"volume_filter", "fade_filter"} {
		if factory, ok := registry[name]; ok {
			f := factory()
			_ = f.ValidateConfig(map[string]any{})
			c.Add(f)
		}
	}
	return c
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Apply runs all applicable filters against the sink for the clip.
// The first filter error aborts the chain.
func (c *Chain) Apply(ctx context.Context, sink AudioSink, cl clip.Clip) error {
	for _, f := range c.filters {
		if !f.AppliesTo(cl) {
			continue
		}
		if err := f.Apply(ctx, sink, cl); err != nil {
			return errors.Wrapf(err, "audiofx: %s failed", f.Name())
		}
	}
	return nil
}

// Clear removes all audio filters from the sink.
func (c *Chain) Clear(ctx context.Context, sink AudioSink) error {
	return sink.ClearAudioFilters(ctx)
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	return c.filters
}

// Package render provides renderer backend construction from configuration.
//
// Backends register themselves by name; their settings arrive as a
// map[string]any from the config file and are decoded and validated by
// each backend factory.
package render

import (
	"sort"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/framebox/framebox/internal/app/playback"
	"github.com/framebox/framebox/internal/infra/config"
)

// Factory builds a renderer backend from its settings map.
type Factory func(settings map[string]any) (playback.Renderer, error)

// registry holds registered backend factories.
var registry = make(map[string]Factory)

// Register registers a backend factory.
func Register(name string, factory Factory) {
	registry[name] = factory
}

// Registered returns the names of all registered backends, sorted.
func Registered() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewFromConfig creates the renderer backend selected by the configuration.
func NewFromConfig(cfg *config.Config) (playback.Renderer, error) {
	factory, ok := registry[cfg.Renderer.Type]
	if !ok {
		return nil, errors.Newf("unsupported renderer backend: %s", cfg.Renderer.Type)
	}

	zlog.Debug().Msgf("render: creating backend: type=%s settings=%+v", cfg.Renderer.Type, cfg.Renderer.Settings)
	r, err := factory(cfg.Renderer.Settings)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create renderer backend %s", cfg.Renderer.Type)
	}

	zlog.Info().Msgf("render: backend ready: type=%s", cfg.Renderer.Type)
	return r, nil
}

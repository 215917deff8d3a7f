// Package project provides timeline project file load/save in YAML.
package project

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/framebox/framebox/internal/domain/clip"
	"github.com/framebox/framebox/internal/domain/timeline"
)

// Document is the on-disk project schema. All times are integer
// milliseconds.
type Document struct {
	Tracks []TrackDoc `yaml:"tracks" validate:"required,min=1,dive"`
}

// TrackDoc represents a track in the project file.
type TrackDoc struct {
	ID     string    `yaml:"id"`
	Number int       `yaml:"number" validate:"gte=1"`
	Type   string    `yaml:"type" validate:"required,oneof=video audio"`
	Clips  []ClipDoc `yaml:"clips" validate:"dive"`
}

// ClipDoc represents a clip in the project file.
type ClipDoc struct {
	ID        string   `yaml:"id"`
	File      string   `yaml:"file" validate:"required"`
	StartTime int64    `yaml:"start_time" validate:"gte=0"`
	Duration  int64    `yaml:"duration" validate:"gt=0"`
	TrimIn    int64    `yaml:"trim_in" validate:"gte=0"`
	TrimOut   int64    `yaml:"trim_out" validate:"gte=0"` // 0 means full source length
	Volume    *float64 `yaml:"volume,omitempty" validate:"omitempty,gte=0,lte=2"`
	Muted     bool     `yaml:"muted,omitempty"`
	FadeIn    int64    `yaml:"fade_in,omitempty" validate:"gte=0"`
	FadeOut   int64    `yaml:"fade_out,omitempty" validate:"gte=0"`
}

// Load reads a project file and returns its tracks. Missing track and
// clip ids are backfilled with fresh UUIDs.
func Load(path string) ([]timeline.Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read project file")
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to parse project file")
	}

	if err := validator.New().Struct(doc); err != nil {
		return nil, errors.Wrap(err, "project validation failed")
	}

	tracks := make([]timeline.Track, 0, len(doc.Tracks))
	for _, td := range doc.Tracks {
		if td.ID == "" {
			td.ID = uuid.New().String()
		}
		t := timeline.Track{
			ID:     td.ID,
			Number: td.Number,
			Type:   timeline.TrackType(td.Type),
			Clips:  make([]clip.Clip, 0, len(td.Clips)),
		}
		for _, cd := range td.Clips {
			if cd.ID == "" {
				cd.ID = uuid.New().String()
			}
			trimOut := cd.TrimOut
			if trimOut == 0 {
				trimOut = cd.Duration
			}
			c := clip.Clip{
				ID:        cd.ID,
				FilePath:  cd.File,
				StartTime: cd.StartTime,
				Duration:  cd.Duration,
				TrimIn:    cd.TrimIn,
				TrimOut:   trimOut,
				Volume:    cd.Volume,
				Muted:     cd.Muted,
				FadeIn:    cd.FadeIn,
				FadeOut:   cd.FadeOut,
			}
			if !c.Valid() {
				return nil, errors.Newf("invalid clip %s: start=%d trim=[%d,%d] duration=%d",
					c.ID, c.StartTime, c.TrimIn, c.TrimOut, c.Duration)
			}
			t.Clips = append(t.Clips, c)
		}
		t.SortClips()
		tracks = append(tracks, t)
	}
	return tracks, nil
}

// Save writes the tracks to a project file.
func Save(path string, tracks []timeline.Track) error {
	doc := Document{Tracks: make([]TrackDoc, 0, len(tracks))}
	for _, t := range tracks {
		td := TrackDoc{
			ID:     t.ID,
			Number: t.Number,
			Type:   string(t.Type),
			Clips:  make([]ClipDoc, 0, len(t.Clips)),
		}
		for i := range t.Clips {
			c := &t.Clips[i]
			td.Clips = append(td.Clips, ClipDoc{
				ID:        c.ID,
				File:      c.FilePath,
				StartTime: c.StartTime,
				Duration:  c.Duration,
				TrimIn:    c.TrimIn,
				TrimOut:   c.TrimOut,
				Volume:    c.Volume,
				Muted:     c.Muted,
				FadeIn:    c.FadeIn,
				FadeOut:   c.FadeOut,
			})
		}
		doc.Tracks = append(doc.Tracks, td)
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal project")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write project file")
	}
	return nil
}

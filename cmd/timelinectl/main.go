// Package main provides the timelinectl entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/framebox/framebox/internal/app/audiofx"
	"github.com/framebox/framebox/internal/app/composition"
	"github.com/framebox/framebox/internal/app/layout"
	"github.com/framebox/framebox/internal/app/playback"
	"github.com/framebox/framebox/internal/domain/timeline"
	"github.com/framebox/framebox/internal/infra/config"
	"github.com/framebox/framebox/internal/infra/logger"
	"github.com/framebox/framebox/internal/infra/project"
	"github.com/framebox/framebox/internal/infra/render"
)

var (
	app        = kingpin.New("timelinectl", "framebox timeline inspection and editing tool")
	configPath = app.Flag("config", "Path to config file").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	inspectCmd     = app.Command("inspect", "Print tracks, clips and total duration of a project")
	inspectProject = inspectCmd.Arg("project", "Project file").Required().String()

	activeCmd     = app.Command("active", "Print the clips active at a time")
	activeAt      = activeCmd.Flag("at", "Composition time in ms").Required().Int64()
	activeProject = activeCmd.Arg("project", "Project file").Required().String()

	boundariesCmd     = app.Command("boundaries", "Print all clip boundaries")
	boundariesProject = boundariesCmd.Arg("project", "Project file").Required().String()

	gapsCmd     = app.Command("gaps", "Print gap ranges across the timeline")
	gapsProject = gapsCmd.Arg("project", "Project file").Required().String()

	moveCmd     = app.Command("move", "Move a clip to the closest valid position and save")
	moveClip    = moveCmd.Flag("clip", "Clip id").Required().String()
	moveTo      = moveCmd.Flag("to", "Desired start time in ms").Required().Int64()
	moveProject = moveCmd.Arg("project", "Project file").Required().String()

	splitCmd     = app.Command("split", "Split a clip at a time and save")
	splitClip    = splitCmd.Flag("clip", "Clip id").Required().String()
	splitAt      = splitCmd.Flag("at", "Split time in ms").Required().Int64()
	splitProject = splitCmd.Arg("project", "Project file").Required().String()

	previewCmd     = app.Command("preview", "Play a project headlessly against the configured renderer backend")
	previewFor     = previewCmd.Flag("for", "How long to play").Default("3s").Duration()
	previewFrom    = previewCmd.Flag("from", "Start time in ms").Default("0").Int64()
	previewProject = previewCmd.Arg("project", "Project file").Required().String()

	listBackendsCmd = app.Command("list-backends", "List available renderer backends and exit")
	listFiltersCmd  = app.Command("list-filters", "List available audio filters and exit")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	cfg, err := loadConfig()
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	switch command {
	case listBackendsCmd.FullCommand():
		printBackends()
		return
	case listFiltersCmd.FullCommand():
		printFilters()
		return
	case inspectCmd.FullCommand():
		err = runInspect(cfg, *inspectProject)
	case activeCmd.FullCommand():
		err = runActive(cfg, *activeProject, *activeAt)
	case boundariesCmd.FullCommand():
		err = runBoundaries(cfg, *boundariesProject)
	case gapsCmd.FullCommand():
		err = runGaps(cfg, *gapsProject)
	case moveCmd.FullCommand():
		err = runMove(cfg, *moveProject, *moveClip, *moveTo)
	case splitCmd.FullCommand():
		err = runSplit(cfg, *splitProject, *splitClip, *splitAt)
	case previewCmd.FullCommand():
		err = runPreview(cfg, *previewProject, *previewFrom, *previewFor)
	}
	if err != nil {
		zlog.Fatal().Msgf("%v", err)
	}
}

func loadConfig() (*config.Config, error) {
	if *configPath != "" {
		return config.Load(*configPath)
	}
	return config.Default()
}

func openStore(cfg *config.Config, path string) (*layout.Store, error) {
	tracks, err := project.Load(path)
	if err != nil {
		return nil, err
	}
	return layout.NewStoreWithHistoryLimit(tracks, cfg.History.Depth), nil
}

func runInspect(cfg *config.Config, path string) error {
	store, err := openStore(cfg, path)
	if err != nil {
		return err
	}
	for _, t := range store.Tracks() {
		fmt.Printf("track %d (%s) %s: %d clips\n", t.Number, t.Type, t.ID, len(t.Clips))
		for i := range t.Clips {
			c := &t.Clips[i]
			fmt.Printf("  clip %s %s [%d,%d) trim=[%d,%d] volume=%.2f muted=%v\n",
				c.ID, c.FilePath, c.StartTime, c.EndTime(), c.TrimIn, c.TrimOut,
				c.EffectiveVolume(), c.Muted)
		}
	}
	fmt.Printf("total duration: %d ms\n", store.TotalDuration())
	return nil
}

func runActive(cfg *config.Config, path string, at int64) error {
	store, err := openStore(cfg, path)
	if err != nil {
		return err
	}
	resolver := composition.NewResolver(store)
	active := resolver.ActiveClipsAt(at)
	if len(active) == 0 {
		fmt.Printf("t=%d: gap\n", at)
		return nil
	}
	for _, ac := range active {
		fmt.Printf("t=%d: track %d (%s) clip %s relative=%d\n",
			at, ac.TrackNumber, ac.TrackType, ac.Clip.ID, ac.RelativeTime)
	}
	return nil
}

func runBoundaries(cfg *config.Config, path string) error {
	store, err := openStore(cfg, path)
	if err != nil {
		return err
	}
	resolver := composition.NewResolver(store)
	t := int64(-1)
	for {
		next, ok := resolver.NextClipBoundary(t)
		if !ok {
			break
		}
		fmt.Printf("%d\n", next)
		t = next
	}
	return nil
}

func runGaps(cfg *config.Config, path string) error {
	store, err := openStore(cfg, path)
	if err != nil {
		return err
	}
	resolver := composition.NewResolver(store)
	total := store.TotalDuration()
	t := int64(0)
	for t < total {
		next, ok := resolver.NextClipBoundary(t)
		if !ok {
			break
		}
		if resolver.DetectGaps(t) {
			fmt.Printf("gap [%d,%d)\n", t, next)
		}
		t = next
	}
	return nil
}

func runMove(cfg *config.Config, path, clipID string, to int64) error {
	store, err := openStore(cfg, path)
	if err != nil {
		return err
	}
	if !store.MoveClip(clipID, to, true) {
		fmt.Println("no change")
		return nil
	}
	return project.Save(path, store.Tracks())
}

func runSplit(cfg *config.Config, path, clipID string, at int64) error {
	store, err := openStore(cfg, path)
	if err != nil {
		return err
	}
	if !store.SplitClip(clipID, at) {
		fmt.Println("no change")
		return nil
	}
	return project.Save(path, store.Tracks())
}

// previewComposer classifies every multi-clip region as simple so the
// preview plays the topmost clip directly. Real composition requires an
// external compositor.
type previewComposer struct{}

func (previewComposer) ClassifySegment(ctx context.Context, activeClips []composition.ActiveClip) (playback.Classification, error) {
	return playback.Classification{Type: playback.SegmentTypeSimple}, nil
}

func (previewComposer) RenderSegment(ctx context.Context, activeClips []composition.ActiveClip, startTimeMs, durationMs int64) (playback.SegmentResult, error) {
	return playback.SegmentResult{}, errors.New("segment rendering requires an external compositor")
}

func (previewComposer) RenderFullTimeline(ctx context.Context, tl timeline.Timeline) (playback.TimelineRender, error) {
	return playback.TimelineRender{}, errors.New("timeline rendering requires an external compositor")
}

func runPreview(cfg *config.Config, path string, from int64, dur time.Duration) error {
	store, err := openStore(cfg, path)
	if err != nil {
		return err
	}
	renderer, err := render.NewFromConfig(cfg)
	if err != nil {
		return err
	}

	sync := playback.NewSynchronizer(playback.Config{
		TimeSyncInterval:     time.Duration(cfg.Playback.TimeSyncIntervalMs) * time.Millisecond,
		FrameCaptureInterval: time.Duration(cfg.Playback.FrameCaptureIntervalMs) * time.Millisecond,
		SegmentReuseWindowMs: int64(cfg.Playback.SegmentReuseWindowMs),
	}, store, renderer, previewComposer{}, playback.WithAudioChain(audiofx.DefaultChain()))
	defer sync.Close()

	ctx := context.Background()
	if err := sync.Initialize(ctx); err != nil {
		return err
	}
	if from > 0 {
		if err := sync.Seek(ctx, from); err != nil {
			return err
		}
	}
	if err := sync.Play(ctx); err != nil {
		return err
	}

	deadline := time.After(dur)
	for {
		select {
		case e := <-sync.Events():
			switch e.Type {
			case playback.EventStateChanged:
				fmt.Printf("t=%d state=%s\n", e.TimeMs, e.State)
			case playback.EventCompleted:
				fmt.Println("playback completed")
				return nil
			case playback.EventError:
				fmt.Printf("error: %s\n", e.Message)
			}
		case <-deadline:
			return sync.Stop(ctx)
		}
	}
}

func printBackends() {
	fmt.Println("Available renderer backends:")
	for _, name := range render.Registered() {
		fmt.Printf("  %s\n", name)
	}
}

func printFilters() {
	fmt.Println("Available audio filters:")
	for name, factory := range audiofx.GetRegistered() {
		f := factory()
		fmt.Printf("  %s: %s\n", name, f.Description())
	}
}

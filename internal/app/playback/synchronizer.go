package playback

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/framebox/framebox/internal/app/audiofx"
	"github.com/framebox/framebox/internal/app/composition"
	"github.com/framebox/framebox/internal/app/notification"
	"github.com/framebox/framebox/internal/domain/timeline"
)

// Errors
var (
	ErrNotInitialized = errors.New("synchronizer not initialized")
	ErrNoRenderer     = errors.New("no renderer configured")
)

// Config holds synchronizer configuration.
type Config struct {
	TimeSyncInterval     time.Duration // Time-sync tick period (~60 fps)
	FrameCaptureInterval time.Duration // Frame capture period (~15 fps)
	SegmentReuseWindowMs int64         // Cached segment reuse window
}

func (c *Config) applyDefaults() {
	if c.TimeSyncInterval <= 0 {
		c.TimeSyncInterval = 16 * time.Millisecond
	}
	if c.FrameCaptureInterval <= 0 {
		c.FrameCaptureInterval = 66 * time.Millisecond
	}
	if c.SegmentReuseWindowMs <= 0 {
		c.SegmentReuseWindowMs = 100
	}
}

// LayoutSource supplies the track layout the synchronizer plays.
type LayoutSource interface {
	composition.Source
	Timeline() timeline.Timeline
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithNotifier attaches a notification manager for relaying progress and
// error notifications upstream.
func WithNotifier(n *notification.Manager) Option {
	return func(s *Synchronizer) { s.notifier = n }
}

// WithAudioChain attaches the audio filter chain applied on the direct
// single-clip path.
func WithAudioChain(c *audiofx.Chain) Option {
	return func(s *Synchronizer) { s.audio = c }
}

// Synchronizer keeps on-screen playback consistent with the resolved
// composition. It owns the segment cache, gap handling, seek handling,
// and audio filter application.
//
// All shared state is funnelled through one mutex; long-running composer
// calls release it and validate a generation counter before applying
// their results, so a stale render can never overwrite a newer region.
type Synchronizer struct {
	mu sync.Mutex

	config   Config
	layout   LayoutSource
	resolver *composition.Resolver
	renderer Renderer
	composer Composer
	notifier *notification.Manager
	audio    *audiofx.Chain

	state         State
	intendPlay    bool // User intent: playback should run when possible
	currentTimeMs int64
	baseMs        int64 // Global offset for renderer-local time
	generation    uint64

	cache       segmentCache
	loadedPath  string
	pendingSeek *int64

	regionKey       string
	nextBoundaryMs  int64
	hasNextBoundary bool

	lastTick   time.Time
	blackFrame image.Image

	timerCancel func() // Cancel function for the time-sync loop
	frameCancel func() // Cancel function for the frame-capture loop

	eventCh chan Event

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSynchronizer creates a synchronizer over the given layout, renderer
// and composer.
func NewSynchronizer(config Config, layout LayoutSource, renderer Renderer, composer Composer, opts ...Option) *Synchronizer {
	config.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Synchronizer{
		config:   config,
		layout:   layout,
		resolver: composition.NewResolver(layout),
		renderer: renderer,
		composer: composer,
		state:    StateUninitialized,
		eventCh:  make(chan Event, 64),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Events returns the event channel.
func (s *Synchronizer) Events() <-chan Event {
	return s.eventCh
}

// Initialize prepares the synchronizer: it queries the renderer
// dimensions for the synthesized gap frame, starts the frame-capture
// loop, and begins relaying composer progress. Idempotent.
func (s *Synchronizer) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUninitialized {
		return nil
	}
	if s.renderer == nil {
		return ErrNoRenderer
	}

	w, h, err := s.renderer.GetDimensions(ctx)
	if err != nil || w <= 0 || h <= 0 {
		zlog.Debug().Msgf("playback: renderer dimensions unavailable, using default: %v", err)
		w, h = 1280, 720
	}
	s.blackFrame = newBlackFrame(w, h)

	if pn, ok := s.composer.(ProgressNotifier); ok {
		go s.relayProgress(pn.Progress())
	}

	s.startFrameLoopLocked()
	s.setStateLocked(StateIdle)
	return nil
}

// Play starts or resumes playback at the current composition time.
func (s *Synchronizer) Play(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateUninitialized {
		return ErrNotInitialized
	}
	if s.intendPlay && s.state.playing() {
		return nil
	}

	s.intendPlay = true
	if s.state == StateStopped {
		s.currentTimeMs = 0
		s.regionKey = ""
	}
	s.syncNowLocked(ctx)
	s.startTimeSyncLocked()
	return nil
}

// Pause pauses playback, keeping the current position. Audio filters are
// cleared while paused.
func (s *Synchronizer) Pause(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateUninitialized {
		return ErrNotInitialized
	}

	s.intendPlay = false
	s.stopTimeSyncLocked()

	if s.loadedPath != "" {
		if err := s.renderer.Pause(ctx); err != nil {
			s.failLocked(err, "pause")
			return nil
		}
	}
	if s.audio != nil {
		if err := s.audio.Clear(ctx, s.renderer); err != nil {
			zlog.Warn().Msgf("playback: clearing audio filters failed: %v", err)
		}
	}
	s.setStateLocked(StateIdle)
	return nil
}

// Stop stops playback and invalidates the segment cache.
func (s *Synchronizer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateUninitialized {
		return ErrNotInitialized
	}

	s.intendPlay = false
	s.stopTimeSyncLocked()
	if s.loadedPath != "" {
		if err := s.renderer.Pause(ctx); err != nil {
			zlog.Warn().Msgf("playback: pause on stop failed: %v", err)
		}
	}
	s.cache.invalidate()
	s.generation++ // supersede in-flight renders
	s.regionKey = ""
	s.pendingSeek = nil
	s.setStateLocked(StateIdle)
	return nil
}

// Seek requests a jump to the given composition time. The pending target
// is cleared only once the renderer seek command has resolved, so a
// second seek to the same value is never silently dropped. A new seek
// supersedes any in-flight region resolution.
func (s *Synchronizer) Seek(ctx context.Context, timeMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateUninitialized {
		return ErrNotInitialized
	}
	if timeMs < 0 {
		timeMs = 0
	}

	target := timeMs
	s.pendingSeek = &target
	s.generation++ // supersede in-flight renders
	if s.state == StateStopped {
		s.setStateLocked(StateIdle)
	}

	// Apply immediately when the time-sync loop is not running.
	if s.timerCancel == nil {
		s.syncNowLocked(ctx)
	}
	return nil
}

// CurrentTime returns the global composition time in milliseconds.
func (s *Synchronizer) CurrentTime() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentTimeMs
}

// State returns the current synchronizer state.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Segment returns the cached segment bounds when a pre-rendered segment
// is loaded.
func (s *Synchronizer) Segment() (startMs, durationMs int64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cache.playingSegment {
		return 0, 0, false
	}
	return s.cache.startTimeMs, s.cache.durationMs, true
}

// ExportTimeline renders the whole timeline through the composer.
func (s *Synchronizer) ExportTimeline(ctx context.Context) (TimelineRender, error) {
	tl := s.layout.Timeline()
	res, err := s.composer.RenderFullTimeline(ctx, tl)
	if err != nil {
		return TimelineRender{}, errors.Wrap(err, "full timeline render failed")
	}
	if s.notifier != nil {
		s.notifier.Broadcast(notification.KindInfo,
			fmt.Sprintf("timeline exported to %s", res.OutputPath), 100)
	}
	return res, nil
}

// Close stops the loop goroutines and releases all resources. The event
// channel is left open: a loop goroutine past its context check may still
// emit a final event, and readers exit via their own cancellation.
// Idempotent.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	s.stopTimeSyncLocked()
	s.stopFrameLoopLocked()
	s.mu.Unlock()
	s.cancel()
}

// tick advances composition time and re-resolves the region when a clip
// boundary has been crossed. Runs on the time-sync loop.
func (s *Synchronizer) tick(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	delta := now.Sub(s.lastTick)
	s.lastTick = now

	switch {
	case s.pendingSeek != nil:
		s.syncNowLocked(ctx)
	case s.state == StateGap:
		// Nothing is loaded during a gap; the playhead advances on
		// wall-clock delta instead of renderer time.
		s.currentTimeMs += delta.Milliseconds()
	case s.state.playing():
		local, err := s.renderer.GetTime(ctx)
		if err != nil {
			s.failLocked(err, "get time")
			return
		}
		s.currentTimeMs = s.baseMs + SecondsToMs(local)
	case s.state == StateError:
		// Re-attempt classification from scratch.
		s.syncRegionLocked(ctx, true)
		return
	default:
		// Loading states: hold position until the load resolves.
		return
	}

	if s.intendPlay && s.resolver.IsEndOfTimeline(s.currentTimeMs) {
		s.completeLocked(ctx)
		return
	}

	if !s.hasNextBoundary || s.currentTimeMs >= s.nextBoundaryMs {
		s.syncRegionLocked(ctx, false)
	}
}

// syncNowLocked applies any pending seek target and forces a region
// resolution at the resulting time.
func (s *Synchronizer) syncNowLocked(ctx context.Context) {
	if s.pendingSeek != nil {
		s.currentTimeMs = *s.pendingSeek
	}
	s.syncRegionLocked(ctx, true)
}

// syncRegionLocked classifies the region at the current time and drives
// the renderer/composer accordingly. Transitions happen on changes of
// the active clip set, not on every time update.
func (s *Synchronizer) syncRegionLocked(ctx context.Context, force bool) {
	t := s.currentTimeMs
	activeVideo := s.resolver.ActiveVideoClipsAt(t)
	key := regionSignature(activeVideo)

	if !force && key == s.regionKey {
		s.updateBoundaryLocked(t)
		return
	}
	s.regionKey = key
	s.generation++
	s.sendEvent(Event{Type: EventRegionChanged, State: s.state, TimeMs: t})

	switch len(activeVideo) {
	case 0:
		s.enterGapLocked(ctx)
	case 1:
		s.leaveGapLocked()
		if err := s.directPathLocked(ctx, activeVideo[0]); err != nil {
			s.failLocked(err, "direct playback")
		}
	default:
		s.leaveGapLocked()
		if err := s.segmentPathLocked(ctx, t, activeVideo); err != nil {
			s.failLocked(err, "segment playback")
		}
	}

	s.updateBoundaryLocked(s.currentTimeMs)
}

// directPathLocked plays a single active clip straight from its source
// file: load if needed, seek to the clip-relative time, apply audio
// filters, and resume when playing.
func (s *Synchronizer) directPathLocked(ctx context.Context, ac composition.ActiveClip) error {
	s.cache.invalidate()
	s.setStateLocked(StateLoadingSingle)

	if s.loadedPath != ac.Clip.FilePath {
		if err := s.renderer.Load(ctx, ac.Clip.FilePath); err != nil {
			return errors.Wrapf(err, "load %s", ac.Clip.FilePath)
		}
		s.loadedPath = ac.Clip.FilePath
	}

	rel := s.currentTimeMs - ac.Clip.StartTime
	if err := s.renderer.Seek(ctx, MsToSeconds(rel)); err != nil {
		return errors.Wrap(err, "seek")
	}
	s.pendingSeek = nil
	s.baseMs = ac.Clip.StartTime

	if s.audio != nil {
		if err := s.audio.Apply(ctx, s.renderer, ac.Clip); err != nil {
			return err
		}
	}

	if s.intendPlay {
		if err := s.renderer.Play(ctx); err != nil {
			return errors.Wrap(err, "play")
		}
		s.setStateLocked(StatePlayingSingle)
	} else {
		s.setStateLocked(StateIdle)
	}
	return nil
}

// segmentPathLocked handles two or more overlapping active video clips.
// The cached segment is reused when its start lies within the reuse
// window of the current time; otherwise the region is classified and,
// when complex, pre-rendered up to the next composition change.
//
// The composer calls run with the mutex released; the generation counter
// decides afterwards whether the result still belongs to this region.
func (s *Synchronizer) segmentPathLocked(ctx context.Context, t int64, activeVideo []composition.ActiveClip) error {
	if s.cache.reusable(t, s.config.SegmentReuseWindowMs) {
		rel := t - s.cache.startTimeMs
		if s.pendingSeek != nil {
			if err := s.renderer.Seek(ctx, MsToSeconds(rel)); err != nil {
				return errors.Wrap(err, "seek in segment")
			}
			s.pendingSeek = nil
		}
		s.baseMs = s.cache.startTimeMs
		if s.intendPlay {
			if err := s.renderer.Play(ctx); err != nil {
				return errors.Wrap(err, "play")
			}
			s.setStateLocked(StatePlayingSegment)
		} else {
			s.setStateLocked(StateIdle)
		}
		return nil
	}

	activeAll := s.resolver.ActiveClipsAt(t)
	gen := s.generation
	s.setStateLocked(StateLoadingSegment)

	s.mu.Unlock()
	cls, err := s.composer.ClassifySegment(ctx, activeVideo)
	var res SegmentResult
	var segDur int64
	if err == nil && cls.Type == SegmentTypeComplex {
		segDur = minRemaining(activeAll, t)
		res, err = s.composer.RenderSegment(ctx, activeAll, t, segDur)
	}
	s.mu.Lock()

	if s.generation != gen {
		zlog.Debug().Msgf("playback: discarding stale segment result for t=%d", t)
		return nil
	}
	if err != nil {
		return err
	}

	if cls.Type == SegmentTypeSimple {
		// Simple stacks play the topmost clip directly.
		return s.directPathLocked(ctx, topmostClip(activeVideo))
	}

	if err := s.renderer.Load(ctx, res.OutputPath); err != nil {
		return errors.Wrapf(err, "load segment %s", res.OutputPath)
	}
	s.loadedPath = res.OutputPath
	if err := s.renderer.Seek(ctx, 0); err != nil {
		return errors.Wrap(err, "seek segment")
	}
	s.pendingSeek = nil
	s.cache.set(t, segDur, res.OutputPath)
	s.baseMs = t

	if s.intendPlay {
		if err := s.renderer.Play(ctx); err != nil {
			return errors.Wrap(err, "play")
		}
		s.setStateLocked(StatePlayingSegment)
	} else {
		s.setStateLocked(StateIdle)
	}
	return nil
}

// enterGapLocked pauses the renderer and switches frame delivery to the
// synthesized black frame.
func (s *Synchronizer) enterGapLocked(ctx context.Context) {
	s.cache.invalidate()
	s.pendingSeek = nil
	if s.state == StateGap {
		return
	}
	if s.loadedPath != "" {
		if err := s.renderer.Pause(ctx); err != nil {
			s.failLocked(err, "pause for gap")
			return
		}
	}
	s.sendEvent(Event{Type: EventGapEntered, State: StateGap, TimeMs: s.currentTimeMs})
	s.setStateLocked(StateGap)
}

func (s *Synchronizer) leaveGapLocked() {
	if s.state == StateGap {
		s.sendEvent(Event{Type: EventGapLeft, State: s.state, TimeMs: s.currentTimeMs})
	}
}

// completeLocked handles end-of-timeline: stop, reset to zero, emit the
// completion signal.
func (s *Synchronizer) completeLocked(ctx context.Context) {
	s.intendPlay = false
	s.stopTimeSyncLocked()
	if s.loadedPath != "" {
		if err := s.renderer.Pause(ctx); err != nil {
			zlog.Warn().Msgf("playback: pause at end of timeline failed: %v", err)
		}
	}
	s.currentTimeMs = 0
	s.cache.invalidate()
	s.regionKey = ""
	s.setStateLocked(StateStopped)
	s.sendEvent(Event{Type: EventCompleted, State: s.state})
	if s.notifier != nil {
		s.notifier.Broadcast(notification.KindPlaybackCompleted, "playback completed", 0)
	}
}

// failLocked surfaces an external command failure as a non-fatal
// notification and resets region bookkeeping so the next tick
// re-attempts classification from scratch.
func (s *Synchronizer) failLocked(err error, op string) {
	zlog.Error().Msgf("playback: %s failed: %v", op, err)
	s.cache.invalidate()
	s.loadedPath = ""
	s.regionKey = ""
	s.generation++
	s.setStateLocked(StateError)
	s.sendEvent(Event{
		Type:    EventError,
		State:   s.state,
		TimeMs:  s.currentTimeMs,
		Message: fmt.Sprintf("%s: %v", op, err),
	})
	if s.notifier != nil {
		s.notifier.Broadcast(notification.KindExternalError, fmt.Sprintf("%s: %v", op, err), 0)
	}
}

func (s *Synchronizer) setStateLocked(state State) {
	if s.state == state {
		return
	}
	s.state = state
	s.sendEvent(Event{Type: EventStateChanged, State: state, TimeMs: s.currentTimeMs})
}

func (s *Synchronizer) updateBoundaryLocked(t int64) {
	s.nextBoundaryMs, s.hasNextBoundary = s.resolver.NextClipBoundary(t)
}

// startTimeSyncLocked starts the per-display-frame time-sync loop.
// Active only while playing.
func (s *Synchronizer) startTimeSyncLocked() {
	if s.timerCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.timerCancel = cancel
	s.lastTick = time.Now()

	go func() {
		ticker := time.NewTicker(s.config.TimeSyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

func (s *Synchronizer) stopTimeSyncLocked() {
	if s.timerCancel != nil {
		s.timerCancel()
		s.timerCancel = nil
	}
}

// startFrameLoopLocked starts the frame-capture loop. It runs at a lower
// cadence than the time-sync tick to bound the cost of querying the
// renderer for pixel data.
func (s *Synchronizer) startFrameLoopLocked() {
	if s.frameCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.frameCancel = cancel

	go func() {
		ticker := time.NewTicker(s.config.FrameCaptureInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.captureFrame(ctx)
			}
		}
	}()
}

func (s *Synchronizer) stopFrameLoopLocked() {
	if s.frameCancel != nil {
		s.frameCancel()
		s.frameCancel = nil
	}
}

func (s *Synchronizer) captureFrame(ctx context.Context) {
	s.mu.Lock()
	state := s.state
	t := s.currentTimeMs
	black := s.blackFrame
	s.mu.Unlock()

	var frame image.Image
	switch {
	case state == StateGap:
		frame = black
	case state.playing():
		img, err := s.renderer.CaptureFrame(ctx)
		if err != nil {
			zlog.Warn().Msgf("playback: frame capture failed: %v", err)
			return
		}
		frame = img
	default:
		return
	}

	s.sendEvent(Event{Type: EventFrame, State: state, TimeMs: t, Frame: frame})
}

func (s *Synchronizer) relayProgress(ch <-chan RenderProgress) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case p, ok := <-ch:
			if !ok {
				return
			}
			s.sendEvent(Event{Type: EventRenderProgress, Percent: p.Percent, Message: p.Stage})
			if s.notifier != nil {
				s.notifier.Broadcast(notification.KindRenderProgress, p.Stage, p.Percent)
			}
		}
	}
}

// sendEvent sends an event without blocking.
func (s *Synchronizer) sendEvent(e Event) {
	select {
	case s.eventCh <- e:
		// Successfully sent
	case <-s.ctx.Done():
		// Context cancelled, don't send
	default:
		// Channel full, drop event
	}
}

// minRemaining returns the smallest time remaining, over the active
// clips, until a clip's own end relative to t. The rendered segment must
// end exactly where the next composition change occurs.
func minRemaining(active []composition.ActiveClip, t int64) int64 {
	var min int64
	for i, ac := range active {
		remaining := ac.Clip.EndTime() - t
		if i == 0 || remaining < min {
			min = remaining
		}
	}
	if min < 0 {
		min = 0
	}
	return min
}

// topmostClip returns the active clip on the highest-priority track
// (lowest track number).
func topmostClip(active []composition.ActiveClip) composition.ActiveClip {
	top := active[0]
	for _, ac := range active[1:] {
		if ac.TrackNumber < top.TrackNumber {
			top = ac
		}
	}
	return top
}

// regionSignature identifies an active clip set. Region transitions fire
// on signature changes, not on every time update.
func regionSignature(active []composition.ActiveClip) string {
	if len(active) == 0 {
		return "gap"
	}
	parts := make([]string, len(active))
	for i, ac := range active {
		parts[i] = ac.TrackID + "/" + ac.Clip.ID
	}
	return strings.Join(parts, "|")
}

func newBlackFrame(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	return img
}

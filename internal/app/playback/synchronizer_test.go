package playback

import (
	"context"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framebox/framebox/internal/app/audiofx"
	"github.com/framebox/framebox/internal/app/composition"
	"github.com/framebox/framebox/internal/domain/clip"
	"github.com/framebox/framebox/internal/domain/timeline"
)

type fakeLayout struct {
	tracks []timeline.Track
}

func (f *fakeLayout) Tracks() []timeline.Track {
	return timeline.CloneTracks(f.tracks)
}

func (f *fakeLayout) Timeline() timeline.Timeline {
	return timeline.Timeline{
		Tracks:        timeline.CloneTracks(f.tracks),
		TotalDuration: timeline.TotalDuration(f.tracks),
	}
}

// fakeRenderer records every command and serves a scripted position.
type fakeRenderer struct {
	mu sync.Mutex

	loads    []string
	seeks    []float64
	plays    int
	pauses   int
	position float64

	volumePercent float64
	volumeMuted   bool
	fadeIn        int64
	fadeOut       int64
	fadeClipDur   int64
	clears        int

	loadErr error
	seekErr error
}

func (r *fakeRenderer) Load(ctx context.Context, filePath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loadErr != nil {
		return r.loadErr
	}
	r.loads = append(r.loads, filePath)
	return nil
}

func (r *fakeRenderer) Play(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plays++
	return nil
}

func (r *fakeRenderer) Pause(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pauses++
	return nil
}

func (r *fakeRenderer) Seek(ctx context.Context, seconds float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seekErr != nil {
		return r.seekErr
	}
	r.seeks = append(r.seeks, seconds)
	r.position = seconds
	return nil
}

func (r *fakeRenderer) GetTime(ctx context.Context) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.position, nil
}

func (r *fakeRenderer) GetDuration(ctx context.Context) (float64, error) {
	return 0, nil
}

func (r *fakeRenderer) GetDimensions(ctx context.Context) (int, int, error) {
	return 640, 360, nil
}

func (r *fakeRenderer) CaptureFrame(ctx context.Context) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 640, 360)), nil
}

func (r *fakeRenderer) ApplyVolumeFilter(ctx context.Context, percent float64, muted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.volumePercent = percent
	r.volumeMuted = muted
	return nil
}

func (r *fakeRenderer) ApplyFadeFilter(ctx context.Context, fadeInMs, fadeOutMs, clipDurationMs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fadeIn, r.fadeOut, r.fadeClipDur = fadeInMs, fadeOutMs, clipDurationMs
	return nil
}

func (r *fakeRenderer) ClearAudioFilters(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clears++
	return nil
}

func (r *fakeRenderer) loadCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.loads)
}

func (r *fakeRenderer) lastLoad() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.loads) == 0 {
		return ""
	}
	return r.loads[len(r.loads)-1]
}

type renderCall struct {
	startMs, durationMs int64
}

// fakeComposer classifies with a fixed answer and records render calls.
// onClassify and onRender run with the synchronizer mutex released,
// mirroring the real call sites.
type fakeComposer struct {
	mu sync.Mutex

	segmentType SegmentType
	output      string
	renderErr   error
	renders     []renderCall
	onClassify  func()
	onRender    func()
}

func (c *fakeComposer) ClassifySegment(ctx context.Context, activeClips []composition.ActiveClip) (Classification, error) {
	c.mu.Lock()
	hook := c.onClassify
	c.onClassify = nil
	st := c.segmentType
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
	return Classification{Type: st}, nil
}

func (c *fakeComposer) RenderSegment(ctx context.Context, activeClips []composition.ActiveClip, startTimeMs, durationMs int64) (SegmentResult, error) {
	c.mu.Lock()
	if c.renderErr != nil {
		c.mu.Unlock()
		return SegmentResult{}, c.renderErr
	}
	c.renders = append(c.renders, renderCall{startMs: startTimeMs, durationMs: durationMs})
	hook := c.onRender
	c.onRender = nil
	out := c.output
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
	return SegmentResult{OutputPath: out}, nil
}

func (c *fakeComposer) RenderFullTimeline(ctx context.Context, tl timeline.Timeline) (TimelineRender, error) {
	return TimelineRender{OutputPath: c.output, DurationMs: tl.TotalDuration}, nil
}

func (c *fakeComposer) renderCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.renders)
}

func fullClip(id string, start, dur int64) clip.Clip {
	return clip.Clip{ID: id, FilePath: id + ".mp4", StartTime: start, Duration: dur, TrimIn: 0, TrimOut: dur}
}

// Tracks: video clip1=[1000,6000) on track 1, video clip3=[2000,5000) on
// track 2, one trailing solo clip [7000,8000).
func overlapTracks() []timeline.Track {
	return []timeline.Track{
		{ID: "t1", Number: 1, Type: timeline.TrackTypeVideo, Clips: []clip.Clip{
			fullClip("clip1", 1000, 5000),
			fullClip("tail", 7000, 1000),
		}},
		{ID: "t2", Number: 2, Type: timeline.TrackTypeVideo, Clips: []clip.Clip{
			fullClip("clip3", 2000, 3000),
		}},
	}
}

// quietConfig keeps the background loops from firing during a test so
// state transitions are driven explicitly.
func quietConfig() Config {
	return Config{
		TimeSyncInterval:     time.Hour,
		FrameCaptureInterval: time.Hour,
		SegmentReuseWindowMs: 100,
	}
}

func newTestSynchronizer(t *testing.T, tracks []timeline.Track, renderer *fakeRenderer, composer *fakeComposer, opts ...Option) *Synchronizer {
	t.Helper()
	s := NewSynchronizer(quietConfig(), &fakeLayout{tracks: tracks}, renderer, composer, opts...)
	t.Cleanup(s.Close)
	return s
}

func drainEvents(s *Synchronizer) []Event {
	var out []Event
	for {
		select {
		case e := <-s.Events():
			out = append(out, e)
		default:
			return out
		}
	}
}

func hasEvent(events []Event, et EventType) bool {
	for _, e := range events {
		if e.Type == et {
			return true
		}
	}
	return false
}

func TestSynchronizer_RequiresInitialize(t *testing.T) {
	s := newTestSynchronizer(t, overlapTracks(), &fakeRenderer{}, &fakeComposer{})

	ctx := context.Background()
	assert.ErrorIs(t, s.Play(ctx), ErrNotInitialized)
	assert.ErrorIs(t, s.Pause(ctx), ErrNotInitialized)
	assert.ErrorIs(t, s.Stop(ctx), ErrNotInitialized)
	assert.ErrorIs(t, s.Seek(ctx, 0), ErrNotInitialized)

	require.NoError(t, s.Initialize(ctx))
	assert.Equal(t, StateIdle, s.State())

	// Idempotent.
	require.NoError(t, s.Initialize(ctx))
	assert.Equal(t, StateIdle, s.State())
}

func TestSynchronizer_DirectPath(t *testing.T) {
	renderer := &fakeRenderer{}
	s := newTestSynchronizer(t, overlapTracks(), renderer, &fakeComposer{})
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))

	// t=1500: only clip1 is active; relative time is 500 ms.
	require.NoError(t, s.Seek(ctx, 1500))

	assert.Equal(t, "clip1.mp4", renderer.lastLoad())
	assert.Equal(t, []float64{0.5}, renderer.seeks)
	assert.Equal(t, StateIdle, s.State(), "no playback intent yet")
	assert.Equal(t, int64(1500), s.CurrentTime())

	require.NoError(t, s.Play(ctx))
	assert.Equal(t, StatePlayingSingle, s.State())

	renderer.mu.Lock()
	plays := renderer.plays
	renderer.mu.Unlock()
	assert.GreaterOrEqual(t, plays, 1)
}

func TestSynchronizer_DirectPath_SkipsReloadOfSameFile(t *testing.T) {
	renderer := &fakeRenderer{}
	s := newTestSynchronizer(t, overlapTracks(), renderer, &fakeComposer{})
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))

	require.NoError(t, s.Seek(ctx, 1200))
	require.NoError(t, s.Seek(ctx, 1800))

	assert.Equal(t, 1, renderer.loadCount(), "same file stays loaded across seeks")
	assert.Equal(t, []float64{0.2, 0.8}, renderer.seeks)
}

func TestSynchronizer_Gap(t *testing.T) {
	renderer := &fakeRenderer{}
	s := newTestSynchronizer(t, overlapTracks(), renderer, &fakeComposer{})
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))

	// t=500 precedes every clip.
	require.NoError(t, s.Seek(ctx, 500))
	assert.Equal(t, StateGap, s.State())
	assert.Equal(t, 0, renderer.loadCount(), "nothing is loaded during a gap")

	events := drainEvents(s)
	assert.True(t, hasEvent(events, EventGapEntered))
}

func TestSynchronizer_Gap_AdvancesOnWallClock(t *testing.T) {
	renderer := &fakeRenderer{}
	s := newTestSynchronizer(t, overlapTracks(), renderer, &fakeComposer{})
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))
	require.NoError(t, s.Seek(ctx, 100))
	require.Equal(t, StateGap, s.State())

	s.mu.Lock()
	s.intendPlay = true
	s.lastTick = time.Now().Add(-50 * time.Millisecond)
	s.mu.Unlock()

	s.tick(ctx)

	// The playhead moved by the elapsed wall-clock time, with no renderer
	// to ask for a position.
	got := s.CurrentTime()
	assert.GreaterOrEqual(t, got, int64(150))
	assert.Less(t, got, int64(900), "still inside the leading gap")
	assert.Equal(t, StateGap, s.State())
}

func TestSynchronizer_Gap_DeliversBlackFrames(t *testing.T) {
	renderer := &fakeRenderer{}
	s := newTestSynchronizer(t, overlapTracks(), renderer, &fakeComposer{})
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))
	require.NoError(t, s.Seek(ctx, 500))
	require.Equal(t, StateGap, s.State())
	drainEvents(s)

	s.captureFrame(ctx)

	events := drainEvents(s)
	require.True(t, hasEvent(events, EventFrame))
	for _, e := range events {
		if e.Type == EventFrame {
			require.NotNil(t, e.Frame)
			// Dimensions come from the renderer query at Initialize.
			assert.Equal(t, image.Rect(0, 0, 640, 360), e.Frame.Bounds())
		}
	}
}

func TestSynchronizer_SegmentPath_Complex(t *testing.T) {
	renderer := &fakeRenderer{}
	composer := &fakeComposer{segmentType: SegmentTypeComplex, output: "seg-0001.mp4"}
	s := newTestSynchronizer(t, overlapTracks(), renderer, composer)
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))

	// t=3000: clip1 and clip3 overlap. The rendered segment must end at
	// the earliest active clip end (clip3 at 5000), so its duration is
	// exactly 2000 ms.
	require.NoError(t, s.Seek(ctx, 3000))

	require.Equal(t, 1, composer.renderCount())
	assert.Equal(t, renderCall{startMs: 3000, durationMs: 2000}, composer.renders[0])
	assert.Equal(t, "seg-0001.mp4", renderer.lastLoad())
	assert.Equal(t, []float64{0}, renderer.seeks, "fresh segments start at their own zero")

	startMs, durationMs, ok := s.Segment()
	require.True(t, ok)
	assert.Equal(t, int64(3000), startMs)
	assert.Equal(t, int64(2000), durationMs)
	assert.Equal(t, StateIdle, s.State())
}

func TestSynchronizer_SegmentPath_CacheReuse(t *testing.T) {
	renderer := &fakeRenderer{}
	composer := &fakeComposer{segmentType: SegmentTypeComplex, output: "seg-0001.mp4"}
	s := newTestSynchronizer(t, overlapTracks(), renderer, composer)
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))
	require.NoError(t, s.Seek(ctx, 3000))
	require.Equal(t, 1, composer.renderCount())

	// A seek within the reuse window seeks inside the loaded segment
	// instead of re-rendering.
	require.NoError(t, s.Seek(ctx, 3080))

	assert.Equal(t, 1, composer.renderCount(), "no second render inside the reuse window")
	assert.Equal(t, 1, renderer.loadCount())
	assert.Equal(t, []float64{0, 0.08}, renderer.seeks)

	// Outside the window the region is re-resolved.
	require.NoError(t, s.Seek(ctx, 3500))
	assert.Equal(t, 2, composer.renderCount())
}

func TestSynchronizer_SegmentPath_SimplePlaysTopmost(t *testing.T) {
	renderer := &fakeRenderer{}
	composer := &fakeComposer{segmentType: SegmentTypeSimple}
	s := newTestSynchronizer(t, overlapTracks(), renderer, composer)
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))

	require.NoError(t, s.Seek(ctx, 3000))

	// Track 1 outranks track 2, so clip1 plays directly.
	assert.Equal(t, "clip1.mp4", renderer.lastLoad())
	assert.Equal(t, 0, composer.renderCount())
	assert.Equal(t, []float64{2.0}, renderer.seeks)
	assert.Equal(t, int64(3000), s.CurrentTime())
}

func TestSynchronizer_SegmentPath_StaleResultDiscarded(t *testing.T) {
	renderer := &fakeRenderer{}
	composer := &fakeComposer{segmentType: SegmentTypeComplex, output: "seg-0001.mp4"}
	s := newTestSynchronizer(t, overlapTracks(), renderer, composer)
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))

	// A competing seek lands while the composer classifies; the finished
	// render must not be applied.
	composer.onClassify = func() {
		s.mu.Lock()
		s.generation++
		s.mu.Unlock()
	}

	require.NoError(t, s.Seek(ctx, 3000))

	assert.Equal(t, 0, renderer.loadCount(), "superseded segment result was applied")
}

func TestSynchronizer_FailurePath(t *testing.T) {
	renderer := &fakeRenderer{loadErr: errors.New("renderer unavailable")}
	s := newTestSynchronizer(t, overlapTracks(), renderer, &fakeComposer{})
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))

	require.NoError(t, s.Seek(ctx, 1500), "external failures surface as events, not errors")

	assert.Equal(t, StateError, s.State())
	events := drainEvents(s)
	assert.True(t, hasEvent(events, EventError))
	_, _, ok := s.Segment()
	assert.False(t, ok, "cache invalidated on failure")

	// Once the renderer recovers, the next tick re-resolves the region.
	renderer.mu.Lock()
	renderer.loadErr = nil
	renderer.mu.Unlock()
	s.tick(ctx)
	assert.Equal(t, "clip1.mp4", renderer.lastLoad())
	assert.Equal(t, StateIdle, s.State())
}

func TestSynchronizer_SeekPendingUntilRendererResolves(t *testing.T) {
	renderer := &fakeRenderer{seekErr: errors.New("seek rejected")}
	s := newTestSynchronizer(t, overlapTracks(), renderer, &fakeComposer{})
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))

	require.NoError(t, s.Seek(ctx, 1500))
	require.Equal(t, StateError, s.State())
	s.mu.Lock()
	pending := s.pendingSeek
	s.mu.Unlock()
	require.NotNil(t, pending, "target survives a failed renderer seek")

	renderer.mu.Lock()
	renderer.seekErr = nil
	renderer.mu.Unlock()
	s.tick(ctx)

	s.mu.Lock()
	pending = s.pendingSeek
	s.mu.Unlock()
	assert.Nil(t, pending)
	assert.Equal(t, int64(1500), s.CurrentTime())
}

func TestSynchronizer_EndOfTimeline(t *testing.T) {
	tracks := []timeline.Track{
		{ID: "t1", Number: 1, Type: timeline.TrackTypeVideo, Clips: []clip.Clip{fullClip("a", 0, 1000)}},
	}
	renderer := &fakeRenderer{}
	s := newTestSynchronizer(t, tracks, renderer, &fakeComposer{})
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))
	require.NoError(t, s.Play(ctx))
	require.Equal(t, StatePlayingSingle, s.State())
	drainEvents(s)

	// The renderer reports a position at the clip's end.
	renderer.mu.Lock()
	renderer.position = 1.0
	renderer.mu.Unlock()
	s.tick(ctx)

	assert.Equal(t, StateStopped, s.State())
	assert.Equal(t, int64(0), s.CurrentTime(), "position resets for replay")
	events := drainEvents(s)
	assert.True(t, hasEvent(events, EventCompleted))

	// Play from stopped restarts at zero.
	require.NoError(t, s.Play(ctx))
	assert.Equal(t, StatePlayingSingle, s.State())
	assert.Equal(t, int64(0), s.CurrentTime())
}

func TestSynchronizer_PauseClearsAudioFilters(t *testing.T) {
	renderer := &fakeRenderer{}
	s := newTestSynchronizer(t, overlapTracks(), renderer, &fakeComposer{},
		WithAudioChain(audiofx.DefaultChain()))
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))
	require.NoError(t, s.Seek(ctx, 1500))
	require.NoError(t, s.Play(ctx))

	// The direct path applied the volume filter for clip1 (unset volume
	// maps to 100%).
	renderer.mu.Lock()
	percent := renderer.volumePercent
	renderer.mu.Unlock()
	assert.Equal(t, 100.0, percent)

	require.NoError(t, s.Pause(ctx))

	assert.Equal(t, StateIdle, s.State())
	renderer.mu.Lock()
	clears := renderer.clears
	pauses := renderer.pauses
	renderer.mu.Unlock()
	assert.GreaterOrEqual(t, clears, 1)
	assert.GreaterOrEqual(t, pauses, 1)
}

func TestSynchronizer_StopInvalidatesCache(t *testing.T) {
	renderer := &fakeRenderer{}
	composer := &fakeComposer{segmentType: SegmentTypeComplex, output: "seg-0001.mp4"}
	s := newTestSynchronizer(t, overlapTracks(), renderer, composer)
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))
	require.NoError(t, s.Seek(ctx, 3000))
	_, _, ok := s.Segment()
	require.True(t, ok)

	require.NoError(t, s.Stop(ctx))

	_, _, ok = s.Segment()
	assert.False(t, ok)
	assert.Equal(t, StateIdle, s.State())
}

func TestSynchronizer_StopSupersedesInFlightRender(t *testing.T) {
	renderer := &fakeRenderer{}
	composer := &fakeComposer{segmentType: SegmentTypeComplex, output: "seg-0001.mp4"}
	s := newTestSynchronizer(t, overlapTracks(), renderer, composer)
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))

	// The user stops playback while the composer is still rendering; the
	// finished segment must not be loaded or cached.
	composer.onRender = func() {
		require.NoError(t, s.Stop(ctx))
	}

	require.NoError(t, s.Seek(ctx, 3000))

	assert.Equal(t, 0, renderer.loadCount(), "abandoned segment result was applied")
	_, _, ok := s.Segment()
	assert.False(t, ok, "segment cache repopulated after stop")
	assert.Equal(t, StateIdle, s.State())
}

func TestSynchronizer_CloseLeavesLateEmittersSafe(t *testing.T) {
	renderer := &fakeRenderer{}
	s := newTestSynchronizer(t, overlapTracks(), renderer, &fakeComposer{})
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))
	require.NoError(t, s.Seek(ctx, 500))
	require.Equal(t, StateGap, s.State())

	s.Close()

	// A loop goroutine past its context check may emit one final event;
	// Close must leave that send safe, and a second Close is a no-op.
	s.captureFrame(ctx)
	s.sendEvent(Event{Type: EventStateChanged, State: s.State()})
	s.Close()
}

func TestSynchronizer_ExportTimeline(t *testing.T) {
	composer := &fakeComposer{output: "timeline.mp4"}
	s := newTestSynchronizer(t, overlapTracks(), &fakeRenderer{}, composer)

	res, err := s.ExportTimeline(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "timeline.mp4", res.OutputPath)
	assert.Equal(t, int64(8000), res.DurationMs)
}

func TestTimeConversion_RoundTrip(t *testing.T) {
	// The ms -> s -> ms round trip stays exact well past typical project
	// lengths (here up to ~28 hours).
	for _, ms := range []int64{0, 1, 999, 1000, 1001, 3_599_999, 100_000_000} {
		assert.Equalf(t, ms, SecondsToMs(MsToSeconds(ms)), "ms=%d", ms)
	}

	assert.Equal(t, int64(1500), SecondsToMs(1.4999999))
	assert.Equal(t, 2.5, MsToSeconds(2500))
}

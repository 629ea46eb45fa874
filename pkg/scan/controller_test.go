package scan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-ptzscan/internal/log"
	"github.com/teslashibe/go-ptzscan/pkg/detection"
	"github.com/teslashibe/go-ptzscan/pkg/events"
	"github.com/teslashibe/go-ptzscan/pkg/ptz"
	"github.com/teslashibe/go-ptzscan/pkg/tracking"
)

const frameW, frameH = 1000, 600

var frame = func() []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, frameW, frameH)), nil); err != nil {
		panic(err)
	}
	return buf.Bytes()
}()

// fakeTime advances a virtual clock by every sleep.
type fakeTime struct {
	mu      sync.Mutex
	t       time.Time
	sleeps  []time.Duration
	onSleep func(n int)
}

func newFakeTime() *fakeTime {
	return &fakeTime{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeTime) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeTime) sleep(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	f.sleeps = append(f.sleeps, d)
	f.t = f.t.Add(d)
	n := len(f.sleeps)
	hook := f.onSleep
	f.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return ctx.Err()
}

// observed records observer callbacks.
type observed struct {
	mu     sync.Mutex
	states []State
	probes []ProbeResult
	tracks []TrackResult
	sweeps []SweepResult
}

func (o *observed) StateChanged(from, to State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, to)
}

func (o *observed) SweepStarted(int, float64) {}

func (o *observed) ProbeFinished(r ProbeResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.probes = append(o.probes, r)
}

func (o *observed) TrackFinished(r TrackResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tracks = append(o.tracks, r)
}

func (o *observed) SweepFinished(r SweepResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sweeps = append(o.sweeps, r)
}

// captures collects recorded captures.
type captures struct {
	mu  sync.Mutex
	all []events.Capture
}

func (c *captures) Record(ctx context.Context, capture events.Capture) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.all = append(c.all, capture)
	return nil
}

type harness struct {
	cfg   Config
	cam   *ptz.Mock
	det   *detection.Mock
	obs   *observed
	rec   *captures
	clock *fakeTime
}

func newHarness() *harness {
	cfg := DefaultConfig()
	cfg.Iterations = 1
	cfg.PanStep = 90
	cfg.Tilt = 0
	cfg.Zoom = 1
	cfg.Confidence = 0.5

	cam := ptz.NewMock()
	cam.SnapshotFunc = func(ctx context.Context) ([]byte, error) { return frame, nil }

	return &harness{
		cfg:   cfg,
		cam:   cam,
		det:   &detection.Mock{},
		obs:   &observed{},
		rec:   &captures{},
		clock: newFakeTime(),
	}
}

func (h *harness) controller(t *testing.T) *Controller {
	t.Helper()
	ids := 0
	c, err := New(h.cfg, h.cam, h.det,
		WithObserver(h.obs),
		WithRecorder(h.rec),
		WithLogger(log.Discard()),
		WithSleep(h.clock.sleep),
		WithClock(h.clock.now),
		WithEventIDs(func() string {
			ids++
			return fmt.Sprintf("evt-%d", ids)
		}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

// detectAt returns dets on the n-th Detect call (0-based) and nothing
// otherwise.
func detectAt(n int, dets ...detection.Detection) func(context.Context, []byte, []string) ([]detection.Detection, error) {
	var mu sync.Mutex
	call := -1
	return func(ctx context.Context, img []byte, q []string) ([]detection.Detection, error) {
		mu.Lock()
		defer mu.Unlock()
		call++
		if call == n {
			return dets, nil
		}
		return nil, nil
	}
}

func centered(label string, reward float64) detection.Detection {
	// Centered in 1000x600 and 0.8*W wide.
	return detection.Detection{
		BBox:   detection.BoundingBox{X1: 100, Y1: 200, X2: 900, Y2: 400},
		Label:  label,
		Reward: reward,
	}
}

func pans(calls []ptz.MockCall) []float64 {
	var out []float64
	for _, c := range calls {
		out = append(out, c.Pose.Pan)
	}
	return out
}

func TestRunNoDetections(t *testing.T) {
	h := newHarness()
	h.det.DetectFunc = func(ctx context.Context, img []byte, q []string) ([]detection.Detection, error) {
		// Present but below the 0.5 threshold.
		return []detection.Detection{centered("cat", 0.7)}, nil
	}
	c := h.controller(t)

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := h.cam.CallCount("MoveAbsolute"); got != 4 {
		t.Errorf("MoveAbsolute calls = %d, want 4", got)
	}
	if got := pans(h.cam.CallsTo("MoveAbsolute")); fmt.Sprint(got) != "[0 90 180 270]" {
		t.Errorf("pans = %v", got)
	}
	if got := h.cam.CallCount("Snapshot"); got != 4 {
		t.Errorf("Snapshot calls = %d, want 4", got)
	}
	if got := h.cam.CallCount("MoveRelative"); got != 0 {
		t.Errorf("MoveRelative calls = %d, want 0", got)
	}
	if len(h.obs.sweeps) != 1 {
		t.Fatalf("sweeps = %d", len(h.obs.sweeps))
	}
	sw := h.obs.sweeps[0]
	if sw.Found || sw.NextTilt != -h.cfg.BoredomStep {
		t.Errorf("sweep = %+v, want not found and tilt %v", sw, -h.cfg.BoredomStep)
	}
	if st := c.ScanState(); st.Tilt != -5 || st.Iteration != 1 || len(st.Pans) != 4 {
		t.Errorf("scan state = %+v", st)
	}
	// Below-threshold frames are still recorded as before captures.
	if len(h.rec.all) != 4 {
		t.Errorf("captures = %d, want 4", len(h.rec.all))
	}
	if c.State() != Idle {
		t.Errorf("state after run = %v", c.State())
	}
}

func TestRunTracksAndContinues(t *testing.T) {
	h := newHarness()
	h.det.DetectFunc = detectAt(1, centered("bird", 0.2))
	c := h.controller(t)

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rel := h.cam.CallsTo("MoveRelative")
	if len(rel) != 1 {
		t.Fatalf("MoveRelative calls = %d, want 1", len(rel))
	}
	if !rel[0].Offset.IsZero() {
		t.Errorf("offset = %+v, want zero", rel[0].Offset)
	}
	if got := h.cam.CallCount("Snapshot"); got != 5 {
		t.Errorf("Snapshot calls = %d, want 5 (4 probes + 1 confirmation)", got)
	}

	// The sweep continues to 180 and 270 after the track at 90.
	var order []string
	for _, call := range h.cam.Calls() {
		switch call.Method {
		case "MoveAbsolute":
			order = append(order, fmt.Sprintf("abs%v", call.Pose.Pan))
		case "MoveRelative":
			order = append(order, "rel")
		}
	}
	if fmt.Sprint(order) != "[abs0 abs90 rel abs180 abs270]" {
		t.Errorf("move order = %v", order)
	}

	if len(h.obs.tracks) != 1 || h.obs.tracks[0].Outcome != TrackOK {
		t.Fatalf("tracks = %+v", h.obs.tracks)
	}
	if sw := h.obs.sweeps[0]; !sw.Found || sw.Tracks != 1 || sw.NextTilt != 0 {
		t.Errorf("sweep = %+v, want found with tilt unchanged", sw)
	}

	if len(h.rec.all) != 2 {
		t.Fatalf("captures = %d, want before+after", len(h.rec.all))
	}
	before, after := h.rec.all[0], h.rec.all[1]
	if before.View != events.ViewBefore || after.View != events.ViewAfter {
		t.Errorf("views = %s, %s", before.View, after.View)
	}
	if before.EventID != "evt-2" || after.EventID != before.EventID {
		t.Errorf("event ids = %s, %s", before.EventID, after.EventID)
	}
	if before.Pose.Pan != 90 || len(before.Detections) != 1 {
		t.Errorf("before = %+v", before)
	}
	if after.Label != "bird" || after.Confidence != 0.8 || after.Pose.Pan != 90 {
		t.Errorf("after = %+v", after)
	}
}

func TestRunStateSequence(t *testing.T) {
	h := newHarness()
	h.det.DetectFunc = detectAt(0, centered("bird", 0.2))
	c := h.controller(t)
	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := "[sweeping tracking sweeping cooldown idle]"
	if got := fmt.Sprint(h.obs.states); got != want {
		t.Errorf("states = %s, want %s", got, want)
	}
}

func TestProbeFailuresSkipAndContinue(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(h *harness)
		outcome ProbeOutcome
	}{
		{
			name: "move rejected",
			setup: func(h *harness) {
				h.cam.MoveAbsoluteFunc = func(ctx context.Context, p ptz.Pose) error {
					if p.Pan == 90 {
						return ptz.ErrMoveRejected
					}
					return nil
				}
			},
			outcome: ProbeMoveFailed,
		},
		{
			name: "capture failed",
			setup: func(h *harness) {
				n := 0
				h.cam.SnapshotFunc = func(ctx context.Context) ([]byte, error) {
					n++
					if n == 2 {
						return nil, ptz.ErrCaptureFailed
					}
					return frame, nil
				}
			},
			outcome: ProbeCaptureFailed,
		},
		{
			name: "unreadable image",
			setup: func(h *harness) {
				n := 0
				h.cam.SnapshotFunc = func(ctx context.Context) ([]byte, error) {
					n++
					if n == 2 {
						return []byte("garbage"), nil
					}
					return frame, nil
				}
			},
			outcome: ProbeCaptureFailed,
		},
		{
			name: "detector error",
			setup: func(h *harness) {
				n := 0
				h.det.DetectFunc = func(ctx context.Context, img []byte, q []string) ([]detection.Detection, error) {
					n++
					if n == 2 {
						return nil, errors.New("timeout")
					}
					return nil, nil
				}
			},
			outcome: ProbeDetectFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			tt.setup(h)
			c := h.controller(t)
			if err := c.Run(context.Background()); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if len(h.obs.probes) != 4 {
				t.Fatalf("probes = %d, want 4", len(h.obs.probes))
			}
			if got := h.obs.probes[1].Outcome; got != tt.outcome {
				t.Errorf("probe at 90 outcome = %v, want %v", got, tt.outcome)
			}
			if h.obs.probes[1].Err == nil {
				t.Error("failed probe should carry its error")
			}
			for _, i := range []int{0, 2, 3} {
				if h.obs.probes[i].Outcome != ProbeEmpty {
					t.Errorf("probe %d outcome = %v", i, h.obs.probes[i].Outcome)
				}
			}
		})
	}
}

func TestMoveFailureSkipsCapture(t *testing.T) {
	h := newHarness()
	h.cam.MoveAbsoluteFunc = func(ctx context.Context, p ptz.Pose) error { return ptz.ErrMoveRejected }
	c := h.controller(t)
	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := h.cam.CallCount("Snapshot"); got != 0 {
		t.Errorf("Snapshot calls = %d, want 0", got)
	}
	if h.det.CallCount() != 0 {
		t.Errorf("Detect calls = %d, want 0", h.det.CallCount())
	}
}

func TestPositionFailureAbortsTrackOnly(t *testing.T) {
	h := newHarness()
	h.det.DetectFunc = detectAt(1, centered("dog", 0.1))
	h.cam.PositionFunc = func(ctx context.Context) (ptz.Pose, error) {
		return ptz.Pose{}, ptz.ErrPositionUnavailable
	}
	c := h.controller(t)
	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := h.cam.CallCount("MoveRelative"); got != 0 {
		t.Errorf("MoveRelative calls = %d, want 0", got)
	}
	if got := h.cam.CallCount("MoveAbsolute"); got != 4 {
		t.Errorf("MoveAbsolute calls = %d, want 4", got)
	}
	if len(h.obs.tracks) != 1 || h.obs.tracks[0].Outcome != TrackPositionFailed {
		t.Errorf("tracks = %+v", h.obs.tracks)
	}
	// A qualifying detection was seen, so the tilt stays.
	if sw := h.obs.sweeps[0]; !sw.Found || sw.Tracks != 0 || sw.NextTilt != 0 {
		t.Errorf("sweep = %+v", sw)
	}
}

func TestDegenerateBestFallsBack(t *testing.T) {
	h := newHarness()
	bad := detection.Detection{BBox: detection.BoundingBox{X1: 500, Y1: 300, X2: 500, Y2: 320}, Label: "bad", Reward: 0.01}
	h.det.DetectFunc = detectAt(0, bad, centered("cow", 0.3))
	c := h.controller(t)
	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(h.obs.tracks) != 1 || h.obs.tracks[0].Label != "cow" {
		t.Fatalf("tracks = %+v, want cow", h.obs.tracks)
	}
}

func TestOnlyDegenerateSkipsTracking(t *testing.T) {
	h := newHarness()
	bad := detection.Detection{BBox: detection.BoundingBox{X1: 500, Y1: 300, X2: 500, Y2: 320}, Reward: 0.01}
	h.det.DetectFunc = detectAt(0, bad)
	c := h.controller(t)
	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if h.cam.CallCount("MoveRelative") != 0 || len(h.obs.tracks) != 0 {
		t.Errorf("degenerate box was tracked: %+v", h.obs.tracks)
	}
}

func TestBestOfTwoIsTracked(t *testing.T) {
	h := newHarness()
	worse := detection.Detection{BBox: detection.BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 100}, Label: "cat", Reward: 0.6}
	better := detection.Detection{BBox: detection.BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 100}, Label: "bird", Reward: 0.3}
	h.cfg.Confidence = 0.3
	h.det.DetectFunc = detectAt(0, worse, better)
	c := h.controller(t)
	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(h.obs.tracks) != 1 || h.obs.tracks[0].Label != "bird" {
		t.Errorf("tracks = %+v, want bird", h.obs.tracks)
	}
}

func TestTwoStepManeuver(t *testing.T) {
	h := newHarness()
	h.cfg.Tracking.Maneuver = tracking.TwoStep
	small := detection.Detection{BBox: detection.BoundingBox{X1: 700, Y1: 250, X2: 800, Y2: 350}, Label: "bear", Reward: 0.1}
	h.det.DetectFunc = detectAt(0, small)
	c := h.controller(t)
	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	rel := h.cam.CallsTo("MoveRelative")
	if len(rel) != 2 {
		t.Fatalf("MoveRelative calls = %d, want 2", len(rel))
	}
	if rel[0].Offset.Zoom != 0 || rel[0].Offset.Pan == 0 {
		t.Errorf("first step = %+v, want pan/tilt only", rel[0].Offset)
	}
	if rel[1].Offset.Pan != 0 || rel[1].Offset.Zoom != 7 {
		t.Errorf("second step = %+v, want zoom 7 only", rel[1].Offset)
	}
}

func TestBatchTracking(t *testing.T) {
	h := newHarness()
	h.cfg.BatchTracking = true
	a := detection.Detection{BBox: detection.BoundingBox{X1: 700, Y1: 250, X2: 800, Y2: 350}, Label: "a", Reward: 0.2}
	b := detection.Detection{BBox: detection.BoundingBox{X1: 200, Y1: 250, X2: 300, Y2: 350}, Label: "b", Reward: 0.1}
	h.det.DetectFunc = detectAt(0, a, b)
	c := h.controller(t)
	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if got := h.cam.CallCount("MoveRelative"); got != 0 {
		t.Errorf("MoveRelative calls = %d, want 0 in batch mode", got)
	}
	abs := h.cam.CallsTo("MoveAbsolute")
	if len(abs) != 6 {
		t.Fatalf("MoveAbsolute calls = %d, want 4 probes + 2 targets", len(abs))
	}
	// Best first: b (left of center, diff.x > 0, negative pan) then a
	// (right of center, positive pan).
	hFOV, _ := ptz.FOV(1)
	if got, want := abs[1].Pose.Pan, ptz.WrapPan(-0.25*hFOV); got != want {
		t.Errorf("first target pan = %v, want %v", got, want)
	}
	if got, want := abs[2].Pose.Pan, 0.25*hFOV; got != want {
		t.Errorf("second target pan = %v, want %v", got, want)
	}
	if len(h.obs.tracks) != 2 || h.obs.tracks[0].Label != "b" || h.obs.tracks[0].Target == nil {
		t.Errorf("tracks = %+v", h.obs.tracks)
	}
	if got := h.cam.CallCount("Snapshot"); got != 6 {
		t.Errorf("Snapshot calls = %d, want 6", got)
	}
}

func TestStopSweepOnTrack(t *testing.T) {
	h := newHarness()
	h.cfg.StopSweepOnTrack = true
	h.det.DetectFunc = detectAt(1, centered("bird", 0.2))
	c := h.controller(t)
	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := pans(h.cam.CallsTo("MoveAbsolute")); fmt.Sprint(got) != "[0 90]" {
		t.Errorf("pans = %v, want sweep to end at 90", got)
	}
}

func TestPacing(t *testing.T) {
	h := newHarness()
	h.cfg.Iterations = 2
	h.cfg.PanStep = 180
	h.cfg.IterationDelay = 60 * time.Second
	c := h.controller(t)
	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := "[2s 2s 56s 2s 2s]"
	if got := fmt.Sprint(h.clock.sleeps); got != want {
		t.Errorf("sleeps = %s, want %s", got, want)
	}
}

func TestPacingSlowSweepDoesNotWait(t *testing.T) {
	h := newHarness()
	h.cfg.Iterations = 2
	h.cfg.PanStep = 180
	h.cfg.IterationDelay = 3 * time.Second
	c := h.controller(t)
	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := fmt.Sprint(h.clock.sleeps); got != "[2s 2s 2s 2s]" {
		t.Errorf("sleeps = %s, want settles only", got)
	}
}

func TestBoredomResetAcrossIterations(t *testing.T) {
	h := newHarness()
	h.cfg.Iterations = 6
	h.cfg.PanStep = 360
	h.cfg.Tilt = 0
	h.cfg.BoredomStep = 5
	h.cfg.IterationDelay = 0
	c := h.controller(t)
	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	var tilts []float64
	for _, sw := range h.obs.sweeps {
		tilts = append(tilts, sw.Tilt)
	}
	if got := fmt.Sprint(tilts); got != "[0 -5 -10 -15 -20 0]" {
		t.Errorf("sweep tilts = %s", got)
	}
}

func TestCancelBetweenPositions(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// Cancel during the second settle.
	h.clock.onSleep = func(n int) {
		if n == 2 {
			cancel()
		}
	}
	h.cfg.Iterations = 0
	c := h.controller(t)

	err := c.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if got := h.cam.CallCount("MoveAbsolute"); got != 2 {
		t.Errorf("MoveAbsolute calls = %d, want 2", got)
	}
	if got := h.cam.CallCount("Snapshot"); got != 1 {
		t.Errorf("Snapshot calls = %d, want 1", got)
	}
	if c.State() != Idle {
		t.Errorf("state = %v, want idle", c.State())
	}
}

func TestRunForeverUntilCancelled(t *testing.T) {
	h := newHarness()
	h.cfg.Iterations = 0
	h.cfg.PanStep = 360
	h.cfg.IterationDelay = 0
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.clock.onSleep = func(n int) {
		if n == 5 {
			cancel()
		}
	}
	c := h.controller(t)
	if err := c.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if len(h.obs.sweeps) != 4 {
		t.Errorf("completed sweeps = %d, want 4", len(h.obs.sweeps))
	}
}

func TestRecorderFailureIsNotFatal(t *testing.T) {
	h := newHarness()
	h.det.DetectFunc = detectAt(0, centered("bird", 0.2))
	c, err := New(h.cfg, h.cam, h.det,
		WithRecorder(events.RecorderFunc(func(context.Context, events.Capture) error {
			return errors.New("disk full")
		})),
		WithObserver(h.obs),
		WithLogger(log.Discard()),
		WithSleep(h.clock.sleep),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(h.obs.tracks) != 1 || h.obs.tracks[0].Outcome != TrackOK {
		t.Errorf("tracks = %+v", h.obs.tracks)
	}
}

func TestFinalPoseMissingStillRecords(t *testing.T) {
	h := newHarness()
	h.det.DetectFunc = detectAt(0, centered("bird", 0.2))
	calls := 0
	h.cam.PositionFunc = func(ctx context.Context) (ptz.Pose, error) {
		calls++
		if calls == 1 {
			return ptz.Pose{Zoom: 1}, nil
		}
		return ptz.Pose{}, ptz.ErrPositionUnavailable
	}
	c := h.controller(t)
	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(h.rec.all) != 2 {
		t.Fatalf("captures = %d", len(h.rec.all))
	}
	if after := h.rec.all[1]; after.Pose != (ptz.Pose{}) {
		t.Errorf("after pose = %+v, want empty", after.Pose)
	}
	if h.obs.tracks[0].Final != nil {
		t.Error("Final should be nil when the pose query fails")
	}
}

func TestNewValidates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PanStep = 0
	if _, err := New(cfg, ptz.NewMock(), &detection.Mock{}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("err = %v", err)
	}
	if _, err := New(DefaultConfig(), nil, &detection.Mock{}); err == nil {
		t.Error("expected error for nil camera")
	}
	if _, err := New(DefaultConfig(), ptz.NewMock(), nil); err == nil {
		t.Error("expected error for nil detector")
	}
}

func TestQueriesPassedToDetector(t *testing.T) {
	h := newHarness()
	h.cfg.Queries = []string{"a heron"}
	c := h.controller(t)
	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, q := range h.det.Queries() {
		if len(q) != 1 || q[0] != "a heron" {
			t.Errorf("queries = %q", q)
		}
	}
}

// Package scan runs the sweep/track loop: it visits a ring of pan positions,
// looks for the configured objects at each one, and when something qualifies
// it centers and zooms on it before moving on.
//
// The loop is strictly sequential. One camera command or detection call is
// outstanding at a time, and every per-position failure is logged and
// skipped; the next sweep is the retry.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-ptzscan/internal/log"
	"github.com/teslashibe/go-ptzscan/pkg/detection"
	"github.com/teslashibe/go-ptzscan/pkg/events"
	"github.com/teslashibe/go-ptzscan/pkg/ptz"
)

// Camera is what the loop needs from the camera.
type Camera interface {
	ptz.Mover
	ptz.Positioner
	ptz.Snapshotter
}

// ScanState is the loop state owned by the controller.
type ScanState struct {
	Iteration int       `json:"iteration"`
	Tilt      float64   `json:"tilt"`
	Pans      []float64 `json:"pans"`
}

// Controller drives one camera.
type Controller struct {
	cfg    Config
	cam    Camera
	det    detection.Detector
	rec    events.Recorder
	obs    Observers
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
	newID  func() string

	mu    sync.RWMutex
	state State
	scan  ScanState
}

// Option configures a Controller.
type Option func(*Controller)

// WithRecorder sets where captures go. Defaults to events.Discard.
func WithRecorder(r events.Recorder) Option {
	return func(c *Controller) {
		c.rec = r
	}
}

// WithObserver adds an observer. May be given more than once.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		if o != nil {
			c.obs = append(c.obs, o)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithSleep replaces the settle/pacing wait. The func must return ctx.Err()
// when ctx ends first.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Controller) {
		c.sleep = fn
	}
}

// WithClock replaces time.Now for pacing.
func WithClock(fn func() time.Time) Option {
	return func(c *Controller) {
		c.now = fn
	}
}

// WithEventIDs replaces the event id generator.
func WithEventIDs(fn func() string) Option {
	return func(c *Controller) {
		c.newID = fn
	}
}

// New validates cfg and builds a controller.
func New(cfg Config, cam Camera, det detection.Detector, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cam == nil {
		return nil, errors.New("scan: camera required")
	}
	if det == nil {
		return nil, errors.New("scan: detector required")
	}

	c := &Controller{
		cfg:   cfg,
		cam:   cam,
		det:   det,
		rec:   events.Discard,
		sleep: sleepCtx,
		now:   time.Now,
		newID: events.NewEventID,
		scan:  ScanState{Tilt: cfg.Tilt, Pans: PanPositions(cfg.PanStep)},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.With("component", "scan")
	}
	if c.rec == nil {
		c.rec = events.Discard
	}

	if cfg.MoveSettle < MinMoveSettle || cfg.TrackSettle < MinTrackSettle {
		c.logger.Warn("settle time below mechanism minimum, captures may blur",
			"move_settle", cfg.MoveSettle, "track_settle", cfg.TrackSettle)
	}
	return c, nil
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// ScanState returns a copy of the loop state.
func (c *Controller) ScanState() ScanState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.scan
	s.Pans = append([]float64(nil), s.Pans...)
	return s
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	from := c.state
	c.state = s
	c.mu.Unlock()
	if from != s {
		c.obs.StateChanged(from, s)
	}
}

func (c *Controller) setScan(iteration int, tilt float64) {
	c.mu.Lock()
	c.scan.Iteration = iteration
	c.scan.Tilt = tilt
	c.mu.Unlock()
}

// Run sweeps until the iteration budget is spent or ctx ends. It returns nil
// when the budget is spent and ctx.Err() when stopped. Cancellation is
// honored between positions and during every wait.
func (c *Controller) Run(ctx context.Context) error {
	defer c.setState(Idle)

	tilt := c.cfg.Tilt
	for i := 1; c.cfg.Iterations <= 0 || i <= c.cfg.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := c.now()
		c.setScan(i, tilt)

		res, err := c.Sweep(ctx, i, tilt)
		if err != nil {
			return err
		}

		c.setState(Cooldown)
		res.NextTilt = tilt
		if !res.Found {
			res.NextTilt = NextTilt(tilt, c.cfg.Tilt, c.cfg.BoredomStep)
			if res.NextTilt == c.cfg.Tilt && tilt-c.cfg.BoredomStep < ptz.MinTilt {
				c.logger.Info("tilt limit reached, resetting to initial tilt", "tilt", c.cfg.Tilt)
			} else {
				c.logger.Info("nothing found, lowering tilt", "from", tilt, "to", res.NextTilt)
			}
		}
		tilt = res.NextTilt
		c.setScan(i, tilt)
		res.Elapsed = c.now().Sub(start)
		c.obs.SweepFinished(res)

		c.logger.Info("sweep complete",
			"iteration", i, "found", res.Found, "probes", res.Probes, "tracks", res.Tracks,
			"elapsed", res.Elapsed.Round(time.Millisecond))

		if c.cfg.Iterations > 0 && i == c.cfg.Iterations {
			break
		}
		if wait := c.cfg.IterationDelay - res.Elapsed; wait > 0 {
			c.logger.Info("waiting before next sweep", "wait", wait.Round(time.Millisecond))
			if err := c.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	return nil
}

// Sweep visits every pan position once at tilt. The returned error is
// non-nil only when ctx ended.
func (c *Controller) Sweep(ctx context.Context, iteration int, tilt float64) (SweepResult, error) {
	c.setState(Sweeping)
	c.obs.SweepStarted(iteration, tilt)
	c.logger.Info("starting sweep", "iteration", iteration, "tilt", tilt, "zoom", c.cfg.Zoom)

	res := SweepResult{Iteration: iteration, Tilt: tilt}
	for _, pan := range PanPositions(c.cfg.PanStep) {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		pr, tracks, err := c.Probe(ctx, iteration, ptz.Pose{Pan: pan, Tilt: tilt, Zoom: c.cfg.Zoom})
		res.Probes++
		if pr.Outcome == ProbeFound {
			res.Found = true
		}
		for _, t := range tracks {
			if t.Outcome == TrackOK {
				res.Tracks++
			}
		}
		if err != nil {
			return res, err
		}
		if pr.Outcome == ProbeFound && c.cfg.StopSweepOnTrack {
			c.logger.Info("ending sweep after track", "pan", pan)
			break
		}
	}
	return res, nil
}

// Probe moves to pose, looks for the queries and tracks what qualifies. The
// error is non-nil only when ctx ended; camera and detector failures are
// reported in the results.
func (c *Controller) Probe(ctx context.Context, iteration int, pose ptz.Pose) (ProbeResult, []TrackResult, error) {
	r := ProbeResult{EventID: c.newID(), Iteration: iteration, Pose: pose}
	logger := c.logger.With("event", r.EventID, "pan", pose.Pan, "tilt", pose.Tilt, "zoom", pose.Zoom)
	logger.Debug("probing")

	fail := func(o ProbeOutcome, err error, msg string) (ProbeResult, []TrackResult, error) {
		r.Outcome, r.Err = o, err
		logger.Warn(msg, "err", err)
		c.obs.ProbeFinished(r)
		return r, nil, ctx.Err()
	}

	if err := c.cam.MoveAbsolute(ctx, pose); err != nil {
		return fail(ProbeMoveFailed, err, "probe move failed, skipping position")
	}
	if err := c.sleep(ctx, c.cfg.MoveSettle); err != nil {
		return r, nil, err
	}

	img, err := c.cam.Snapshot(ctx)
	if err != nil {
		return fail(ProbeCaptureFailed, err, "snapshot failed, skipping position")
	}
	w, h, err := detection.ImageSize(img)
	if err != nil {
		return fail(ProbeCaptureFailed, fmt.Errorf("%w: %v", ptz.ErrCaptureFailed, err), "snapshot unreadable, skipping position")
	}

	dets, err := c.det.Detect(ctx, img, c.cfg.Queries)
	if err != nil {
		return fail(ProbeDetectFailed, err, "detection failed, skipping position")
	}
	r.Detections = len(dets)
	if len(dets) == 0 {
		r.Outcome = ProbeEmpty
		c.obs.ProbeFinished(r)
		return r, nil, nil
	}

	c.record(ctx, logger, events.Capture{
		EventID:    r.EventID,
		View:       events.ViewBefore,
		Pose:       pose,
		Detections: dets,
		Image:      img,
	})

	q := detection.Qualifying(dets, c.cfg.Confidence)
	r.Qualifying = len(q)
	if len(q) == 0 {
		best, _ := detection.Best(dets)
		logger.Debug("no detection above threshold", "count", len(dets), "best_confidence", best.Confidence())
		r.Outcome = ProbeEmpty
		c.obs.ProbeFinished(r)
		return r, nil, nil
	}

	r.Outcome = ProbeFound
	c.obs.ProbeFinished(r)

	c.setState(Tracking)
	defer c.setState(Sweeping)

	if c.cfg.BatchTracking && len(q) > 1 {
		tracks, err := c.trackBatch(ctx, logger, r.EventID, q, w, h)
		return r, tracks, err
	}
	t, err := c.track(ctx, logger, r.EventID, q[0], w, h)
	return r, []TrackResult{t}, err
}

// track centers and zooms on d with relative moves.
func (c *Controller) track(ctx context.Context, logger *slog.Logger, eventID string, d detection.Detection, w, h int) (TrackResult, error) {
	t := TrackResult{EventID: eventID, Label: d.Label, Confidence: d.Confidence()}
	logger = logger.With("label", d.Label, "confidence", fmt.Sprintf("%.2f", t.Confidence))
	logger.Info("following object")

	done := func(o TrackOutcome, err error, msg string) (TrackResult, error) {
		t.Outcome, t.Err = o, err
		logger.Warn(msg, "err", err)
		c.obs.TrackFinished(t)
		return t, ctx.Err()
	}

	// The zoom may have drifted from the probe's command; use what the
	// camera reports.
	pose, err := c.cam.Position(ctx)
	if err != nil {
		return done(TrackPositionFailed, err, "position query failed, abandoning track")
	}

	off, err := c.cfg.Tracking.Offset(d, w, h, pose.Zoom)
	if err != nil {
		return done(TrackUnusable, err, "detection unusable for tracking")
	}
	t.Offset = off
	logger.Info("calculated relative move", "dpan", off.Pan, "dtilt", off.Tilt, "dzoom", off.Zoom)

	for _, step := range c.cfg.Tracking.Maneuver.Steps(off) {
		if err := c.cam.MoveRelative(ctx, step); err != nil {
			return done(TrackMoveFailed, err, "relative move failed")
		}
		if err := c.sleep(ctx, c.cfg.TrackSettle); err != nil {
			return t, err
		}
	}
	return c.confirm(ctx, logger, t)
}

// trackBatch visits every detection with one absolute move each, all
// computed from the probe frame.
func (c *Controller) trackBatch(ctx context.Context, logger *slog.Logger, eventID string, dets []detection.Detection, w, h int) ([]TrackResult, error) {
	pose, err := c.cam.Position(ctx)
	if err != nil {
		t := TrackResult{EventID: eventID, Label: dets[0].Label, Confidence: dets[0].Confidence(), Outcome: TrackPositionFailed, Err: err}
		logger.Warn("position query failed, abandoning batch track", "err", err)
		c.obs.TrackFinished(t)
		return []TrackResult{t}, ctx.Err()
	}

	targets, used := c.cfg.Tracking.Targets(dets, w, h, pose)
	logger.Info("batch tracking", "targets", len(targets))

	var out []TrackResult
	for i, target := range targets {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		d := used[i]
		t := TrackResult{EventID: eventID, Label: d.Label, Confidence: d.Confidence(), Target: &target}
		tl := logger.With("label", d.Label, "target", target.String())

		if err := c.cam.MoveAbsolute(ctx, target); err != nil {
			t.Outcome, t.Err = TrackMoveFailed, err
			tl.Warn("batch move failed", "err", err)
			c.obs.TrackFinished(t)
			out = append(out, t)
			continue
		}
		if err := c.sleep(ctx, c.cfg.TrackSettle); err != nil {
			return out, err
		}
		t, err := c.confirm(ctx, tl, t)
		out = append(out, t)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// confirm takes the after image and records it with the settled pose.
func (c *Controller) confirm(ctx context.Context, logger *slog.Logger, t TrackResult) (TrackResult, error) {
	img, err := c.cam.Snapshot(ctx)
	if err != nil {
		t.Outcome, t.Err = TrackCaptureFailed, err
		logger.Warn("confirmation snapshot failed", "err", err)
		c.obs.TrackFinished(t)
		return t, ctx.Err()
	}

	var final ptz.Pose
	if p, err := c.cam.Position(ctx); err != nil {
		logger.Warn("final position unavailable, recording without pose", "err", err)
	} else {
		final = p
		t.Final = &p
	}

	c.record(ctx, logger, events.Capture{
		EventID:    t.EventID,
		View:       events.ViewAfter,
		Pose:       final,
		Label:      t.Label,
		Confidence: t.Confidence,
		Image:      img,
	})

	t.Outcome = TrackOK
	c.obs.TrackFinished(t)
	return t, nil
}

func (c *Controller) record(ctx context.Context, logger *slog.Logger, capture events.Capture) {
	if err := c.rec.Record(ctx, capture); err != nil {
		logger.Warn("recording capture failed", "view", capture.View, "err", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package main

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/teslashibe/go-ptzscan/internal/config"
	"github.com/teslashibe/go-ptzscan/pkg/detection"
	"github.com/teslashibe/go-ptzscan/pkg/scan"
	"github.com/teslashibe/go-ptzscan/pkg/tracking"
)

// options holds the command line.
type options struct {
	serverURL  string
	iterations int
	objects    string
	panStep    float64
	tilt       float64
	zoom       float64
	iterDelay  float64
	confidence float64
	boredom    float64

	model         string
	modelDir      string
	groundingURL  string
	promptContext string

	zoomPolicy  string
	maneuver    string
	targetFill  float64
	batch       bool
	stopOnTrack bool
	invertPan   bool
	invertTilt  bool

	captureDir    string
	eventsDB      string
	gcsBucket     string
	gcsPrefix     string
	dashboardPort int
	debug         bool
}

// bind registers the flags with their defaults. Environment variables
// provide the defaults of the endpoint and storage flags.
func (o *options) bind(f *pflag.FlagSet) {
	sc := scan.DefaultConfig()
	dc := detection.DefaultConfig()

	f.StringVar(&o.serverURL, "mcp-server-url", config.PTZServerURL(), "camera server URL (env PTZ_SERVER_URL)")
	f.IntVarP(&o.iterations, "iterations", "i", sc.Iterations, "number of sweeps, 0 runs until stopped")
	f.StringVarP(&o.objects, "objects", "o", scan.DefaultQueries, "semicolon separated objects to look for, * for any")
	f.Float64VarP(&o.panStep, "panstep", "p", sc.PanStep, "pan step in degrees")
	f.Float64VarP(&o.tilt, "tilt", "t", sc.Tilt, "initial tilt in degrees")
	f.Float64VarP(&o.zoom, "zoom", "z", sc.Zoom, "probe zoom")
	f.Float64VarP(&o.iterDelay, "iterdelay", "d", sc.IterationDelay.Seconds(), "seconds from one sweep start to the next")
	f.Float64VarP(&o.confidence, "confidence", "c", sc.Confidence, "detection confidence threshold")
	f.Float64Var(&o.boredom, "boredom-tilt-step", sc.BoredomStep, "degrees to lower the tilt after an empty sweep")

	f.StringVarP(&o.model, "model", "m", dc.Model, "detector model: yolov8n..yolo11x, Florence-base|large, gemini-*")
	f.StringVar(&o.modelDir, "model-dir", dc.ModelDir, "directory holding YOLO .onnx files")
	f.StringVar(&o.groundingURL, "grounding-url", config.GroundingURL(), "Florence grounding service URL (env PTZ_GROUNDING_URL)")
	f.StringVar(&o.promptContext, "prompt-context", dc.PromptContext, "scene description prefixed to hosted grounding prompts")

	f.StringVar(&o.zoomPolicy, "zoom-policy", "width", "zoom policy: width or fit")
	f.StringVar(&o.maneuver, "maneuver", string(sc.Tracking.Maneuver), "tracking maneuver: combined or two-step")
	f.Float64Var(&o.targetFill, "target-fill", sc.Tracking.TargetFill, "fraction of the frame a tracked object should fill")
	f.BoolVar(&o.batch, "batch", false, "visit every qualifying detection of a frame")
	f.BoolVar(&o.stopOnTrack, "stop-on-track", false, "end the sweep after the first track")
	f.BoolVar(&o.invertPan, "invert-pan", false, "flip the pan sign for cameras whose positive pan turns left")
	f.BoolVar(&o.invertTilt, "invert-tilt", false, "flip the tilt sign for cameras whose positive tilt turns up")

	f.StringVar(&o.captureDir, "capture-dir", config.CaptureDir(), "write captures under this directory (env PTZ_CAPTURE_DIR)")
	f.StringVar(&o.eventsDB, "events-db", "", "SQLite capture index path")
	f.StringVar(&o.gcsBucket, "gcs-bucket", config.GCSBucket(), "upload captures to this GCS bucket (env PTZ_GCS_BUCKET)")
	f.StringVar(&o.gcsPrefix, "gcs-prefix", "ptzscan/", "object name prefix for GCS uploads")
	f.IntVar(&o.dashboardPort, "dashboard-port", 0, "serve the dashboard on this port, 0 disables it")
	f.BoolVar(&o.debug, "debug", false, "debug logging")
}

// scanConfig converts the flags to a validated scan configuration.
func (o *options) scanConfig() (scan.Config, error) {
	cfg := scan.DefaultConfig()
	cfg.Iterations = o.iterations
	cfg.PanStep = o.panStep
	cfg.Tilt = o.tilt
	cfg.Zoom = o.zoom
	cfg.Confidence = o.confidence
	cfg.IterationDelay = time.Duration(o.iterDelay * float64(time.Second))
	cfg.BoredomStep = o.boredom
	cfg.Queries = detection.ParseQueries(o.objects)
	cfg.BatchTracking = o.batch
	cfg.StopSweepOnTrack = o.stopOnTrack

	zp, err := tracking.ParseZoomPolicy(o.zoomPolicy)
	if err != nil {
		return scan.Config{}, err
	}
	m, err := tracking.ParseManeuver(o.maneuver)
	if err != nil {
		return scan.Config{}, err
	}
	cfg.Tracking.Zoom = zp
	cfg.Tracking.Maneuver = m
	cfg.Tracking.TargetFill = o.targetFill
	cfg.Tracking.InvertPan = o.invertPan
	cfg.Tracking.InvertTilt = o.invertTilt

	if err := cfg.Validate(); err != nil {
		return scan.Config{}, err
	}
	return cfg, nil
}

// detectorConfig converts the flags to a detector configuration.
func (o *options) detectorConfig() detection.Config {
	cfg := detection.DefaultConfig()
	cfg.Model = o.model
	cfg.ModelDir = o.modelDir
	cfg.GroundingURL = o.groundingURL
	cfg.PromptContext = o.promptContext
	cfg.APIKey = config.GoogleAPIKey()
	return cfg
}

func (o *options) logLevel() string {
	if o.debug {
		return "debug"
	}
	return "info"
}

func (o *options) dashboardAddr() string {
	if o.dashboardPort <= 0 {
		return ""
	}
	return fmt.Sprintf(":%d", o.dashboardPort)
}

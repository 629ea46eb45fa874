// ptzscan sweeps a PTZ camera around the horizon looking for objects, zooms
// in on whatever it finds, and records before and after captures.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-ptzscan/internal/log"
	"github.com/teslashibe/go-ptzscan/pkg/detection"
	_ "github.com/teslashibe/go-ptzscan/pkg/detection/yolo"
	"github.com/teslashibe/go-ptzscan/pkg/events"
	"github.com/teslashibe/go-ptzscan/pkg/metrics"
	"github.com/teslashibe/go-ptzscan/pkg/ptz"
	"github.com/teslashibe/go-ptzscan/pkg/scan"
	"github.com/teslashibe/go-ptzscan/pkg/web"
)

var version = "0.1.0"

func main() {
	var opts options
	rootCmd := &cobra.Command{
		Use:   "ptzscan",
		Short: "Sweep a PTZ camera and zoom in on detected objects",
		Long: `ptzscan visits a ring of pan positions, runs an object detector at each
one, and centers and zooms on every detection above the confidence
threshold. The camera is driven through a camera server (see camera-server).

When a sweep finds nothing the base tilt is lowered by the boredom step,
resetting to the initial tilt once it would pass -20 degrees.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), &opts)
		},
	}
	opts.bind(rootCmd.Flags())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, o *options) error {
	log.Init(o.logLevel())
	logger := log.With("component", "main")

	cfg, err := o.scanConfig()
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("📷 ptzscan v" + version)
	fmt.Printf("   Camera server: %s\n", o.serverURL)
	fmt.Printf("   Model: %s  Objects: %s\n", o.model, strings.Join(cfg.Queries, ", "))
	fmt.Printf("   Pan step: %v°  Tilt: %v°  Zoom: %vx  Confidence: %v\n", cfg.PanStep, cfg.Tilt, cfg.Zoom, cfg.Confidence)
	fmt.Println()

	det, err := detection.New(o.detectorConfig())
	if err != nil {
		return fmt.Errorf("initialize detector: %w", err)
	}
	defer det.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	recorders, index, closeAll, err := openRecorders(ctx, o)
	if err != nil {
		return err
	}
	defer closeAll()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	scanOpts := []scan.Option{scan.WithObserver(m)}
	if addr := o.dashboardAddr(); addr != "" {
		webOpts := []web.Option{web.WithMetrics(m.Handler()), web.WithStop(cancel)}
		if index != nil {
			webOpts = append(webOpts, web.WithIndex(index))
		}
		dash := web.NewServer(webOpts...)
		dash.StartAsync(addr)
		defer dash.Shutdown()
		recorders = append(recorders, dash)
		scanOpts = append(scanOpts, scan.WithObserver(dash))
		fmt.Printf("🌐 Dashboard: http://localhost%s\n\n", addr)
	}
	scanOpts = append(scanOpts, scan.WithRecorder(recorders))

	cam := ptz.NewClient(o.serverURL)
	ctl, err := scan.New(cfg, cam, det, scanOpts...)
	if err != nil {
		return err
	}

	err = ctl.Run(ctx)

	// Leave the camera still whatever the reason for stopping.
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if serr := cam.Stop(stopCtx); serr != nil {
		logger.Warn("stop movement failed", "err", serr)
	}

	if errors.Is(err, context.Canceled) {
		fmt.Println("\n👋 Stopped")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Println("✅ All sweeps complete")
	return nil
}

// openRecorders builds the capture fan-out from the storage flags. The
// returned func closes whatever was opened.
func openRecorders(ctx context.Context, o *options) (events.Multi, *events.Index, func(), error) {
	var (
		recs    events.Multi
		index   *events.Index
		closers []func() error
	)
	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	if o.captureDir != "" {
		dir, err := events.NewDirRecorder(o.captureDir)
		if err != nil {
			return nil, nil, closeAll, err
		}
		recs = append(recs, dir)
	}
	if o.eventsDB != "" {
		idx, err := events.OpenIndex(ctx, o.eventsDB)
		if err != nil {
			closeAll()
			return nil, nil, func() {}, err
		}
		index = idx
		closers = append(closers, idx.Close)
		if n, err := idx.Count(ctx); err == nil {
			log.Info("event index opened", "path", o.eventsDB, "captures", n)
		}
		recs = append(recs, idx)
	}
	if o.gcsBucket != "" {
		g, err := events.NewGCSRecorder(ctx, o.gcsBucket, o.gcsPrefix)
		if err != nil {
			closeAll()
			return nil, nil, func() {}, err
		}
		recs = append(recs, g)
	}
	return recs, index, closeAll, nil
}

// camera-server exposes a Hanwha SUNAPI PTZ camera over the tool-call
// interface ptzscan drives: POST /mcp {"tool": ..., "params": {...}}.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-ptzscan/internal/config"
	"github.com/teslashibe/go-ptzscan/internal/log"
	"github.com/teslashibe/go-ptzscan/pkg/camserver"
	"github.com/teslashibe/go-ptzscan/pkg/sunapi"
)

var (
	flagCameraIP string
	flagUser     string
	flagPass     string
	flagPort     string
	flagDebug    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "camera-server",
		Short: "Serve a SUNAPI PTZ camera to ptzscan",
		Long: `camera-server translates get_position, move_absolute, move_relative,
take_snapshot and stop_movement calls into SUNAPI requests with digest
authentication.

Credentials come from --username/--password or CAMERA_USER/CAMERA_PASS.`,
		SilenceUsage: true,
		RunE:         run,
	}
	rootCmd.Flags().StringVar(&flagCameraIP, "cameraip", config.CameraIP(), "camera address (env CAMERA_IP)")
	rootCmd.Flags().StringVar(&flagUser, "username", config.CameraUser(), "camera user (env CAMERA_USER)")
	rootCmd.Flags().StringVar(&flagPass, "password", "", "camera password (env CAMERA_PASS)")
	rootCmd.Flags().StringVar(&flagPort, "port", config.DefaultServerPort, "listen port")
	rootCmd.Flags().BoolVar(&flagDebug, "debug", false, "debug logging and access log")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	level := "info"
	if flagDebug {
		level = "debug"
	}
	log.Init(level)
	logger := log.With("component", "camera-server")

	if flagCameraIP == "" {
		return errors.New("camera address required: pass --cameraip or set CAMERA_IP")
	}
	pass := flagPass
	if pass == "" {
		pass = config.CameraPass()
	}

	dev := sunapi.New(flagCameraIP, flagUser, pass)

	// Fail fast on a wrong address or credentials.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pose, err := dev.Position(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("camera %s not reachable: %w", flagCameraIP, err)
	}

	opts := []camserver.Option{}
	if flagDebug {
		opts = append(opts, camserver.WithAccessLog())
	}
	srv := camserver.New(dev, opts...)

	fmt.Println()
	fmt.Println("🎥 Camera server")
	fmt.Printf("   Camera: %s (at %s)\n", flagCameraIP, pose)
	fmt.Printf("   Tools:  ")
	for i, t := range camserver.Tools {
		if i > 0 {
			fmt.Print(", ")
		}
		fmt.Print(t.Name)
	}
	fmt.Printf("\n   Listening on http://localhost:%s/mcp\n\n", flagPort)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Info("shutting down")
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		if err := dev.Stop(stopCtx); err != nil {
			logger.Warn("stop on shutdown failed", "err", err)
		}
		_ = srv.Shutdown()
	}()

	return srv.Listen(":" + flagPort)
}

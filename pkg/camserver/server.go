// Package camserver exposes a camera over the tool-call contract the scanner
// speaks: POST /mcp with {"tool": name, "params": {...}}.
package camserver

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/teslashibe/go-ptzscan/internal/log"
	"github.com/teslashibe/go-ptzscan/pkg/ptz"
)

// Device is the camera behind the server.
type Device interface {
	ptz.Camera
}

// Server serves one device.
type Server struct {
	app    *fiber.App
	dev    Device
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithAccessLog enables fiber's request log.
func WithAccessLog() Option {
	return func(s *Server) {
		s.app.Use(logger.New())
	}
}

// New builds the server routes for dev.
func New(dev Device, opts ...Option) *Server {
	s := &Server{
		dev: dev,
		app: fiber.New(fiber.Config{
			AppName:               "camera-server",
			DisableStartupMessage: true,
			BodyLimit:             1 << 20,
		}),
	}
	s.app.Use(recover.New())
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.With("component", "camserver")
	}

	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.app.Get("/tools", func(c *fiber.Ctx) error {
		return c.JSON(Tools)
	})
	s.app.Post("/mcp", s.handleCall)
	return s
}

// App returns the fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("camera server listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// ToolInfo describes a tool.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Tools lists the tools the server answers.
var Tools = []ToolInfo{
	{Name: ptz.ToolGetPosition, Description: "Current pan, tilt and zoom"},
	{Name: ptz.ToolMoveAbsolute, Description: "Move to an absolute pan, tilt and zoom"},
	{Name: ptz.ToolMoveRelative, Description: "Move by a relative pan, tilt and zoom"},
	{Name: ptz.ToolTakeSnapshot, Description: "Capture a JPEG, base64 encoded"},
	{Name: ptz.ToolStopMovement, Description: "Stop all motion"},
}

func (s *Server) handleCall(c *fiber.Ctx) error {
	var req ptz.Request
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorReply("invalid request body: " + err.Error()))
	}
	ctx := c.UserContext()
	logger := s.logger.With("tool", req.Tool)

	switch req.Tool {
	case ptz.ToolGetPosition:
		pose, err := s.dev.Position(ctx)
		if err != nil {
			logger.Error("position query failed", "err", err)
			return c.JSON(ptz.PositionReply{Error: err.Error()})
		}
		logger.Info("position queried", "pan", pose.Pan, "tilt", pose.Tilt, "zoom", pose.Zoom)
		return c.JSON(ptz.PositionReply{Pan: &pose.Pan, Tilt: &pose.Tilt, Zoom: &pose.Zoom})

	case ptz.ToolMoveAbsolute, ptz.ToolMoveRelative:
		pan, tilt, zoom, err := moveParams(req.Params)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(errorReply(err.Error()))
		}
		if req.Tool == ptz.ToolMoveAbsolute {
			err = s.dev.MoveAbsolute(ctx, ptz.Pose{Pan: pan, Tilt: tilt, Zoom: zoom})
		} else {
			err = s.dev.MoveRelative(ctx, ptz.Offset{Pan: pan, Tilt: tilt, Zoom: zoom})
		}
		if err != nil {
			logger.Error("move failed", "err", err)
			return c.JSON(errorReply(err.Error()))
		}
		kind := "Move to"
		if req.Tool == ptz.ToolMoveRelative {
			kind = "Relative move of"
		}
		logger.Info("move initiated", "pan", pan, "tilt", tilt, "zoom", zoom)
		return c.JSON(ptz.StatusReply{
			Status:  ptz.StatusSuccess,
			Message: fmt.Sprintf("%s P=%v, T=%v, Z=%v initiated.", kind, pan, tilt, zoom),
		})

	case ptz.ToolTakeSnapshot:
		img, err := s.dev.Snapshot(ctx)
		if err != nil {
			logger.Error("snapshot failed", "err", err)
			return c.JSON(errorReply(err.Error()))
		}
		if len(img) == 0 {
			return c.JSON(errorReply("Failed to capture image bytes."))
		}
		logger.Info("snapshot taken", "bytes", len(img))
		return c.JSON(ptz.StatusReply{Status: ptz.StatusSuccess, ImageBase64: base64.StdEncoding.EncodeToString(img)})

	case ptz.ToolStopMovement:
		if err := s.dev.Stop(ctx); err != nil {
			logger.Error("stop failed", "err", err)
			return c.JSON(errorReply(err.Error()))
		}
		logger.Info("movement stopped")
		return c.JSON(ptz.StatusReply{Status: ptz.StatusSuccess, Message: "Stop command sent."})
	}

	return c.Status(fiber.StatusNotFound).JSON(errorReply(fmt.Sprintf("unknown tool %q", req.Tool)))
}

// moveParams requires all three numeric axes.
func moveParams(params map[string]any) (pan, tilt, zoom float64, err error) {
	data, err := json.Marshal(params)
	if err != nil {
		return 0, 0, 0, err
	}
	var p ptz.MoveParams
	if err := json.Unmarshal(data, &p); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid params: %v", err)
	}
	if p.Pan == nil || p.Tilt == nil || p.Zoom == nil {
		return 0, 0, 0, errors.New("pan, tilt and zoom are required")
	}
	return *p.Pan, *p.Tilt, *p.Zoom, nil
}

func errorReply(msg string) ptz.StatusReply {
	return ptz.StatusReply{Status: ptz.StatusError, Message: msg}
}

// Package web serves the scan dashboard: live status, recent captures, the
// latest after-image and a stop button.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-ptzscan/internal/log"
	"github.com/teslashibe/go-ptzscan/pkg/events"
	"github.com/teslashibe/go-ptzscan/pkg/hub"
	"github.com/teslashibe/go-ptzscan/pkg/scan"
)

// MaxRecent is the size of the in-memory capture ring.
const MaxRecent = 200

// EventSource lists recent captures. *events.Index implements it.
type EventSource interface {
	Recent(ctx context.Context, limit int) ([]events.Entry, error)
}

// Status is the dashboard view of the controller.
type Status struct {
	State     string    `json:"state"`
	Iteration int       `json:"iteration"`
	Tilt      float64   `json:"tilt"`
	Pan       float64   `json:"pan"`
	Zoom      float64   `json:"zoom"`
	Probes    int       `json:"probes"`
	Found     int       `json:"found"`
	Failures  int       `json:"failures"`
	Tracks    int       `json:"tracks"`
	Sweeps    int       `json:"sweeps"`
	LastEvent string    `json:"last_event,omitempty"`
	LastLabel string    `json:"last_label,omitempty"`
	Stopping  bool      `json:"stopping"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Server is the dashboard. It observes the controller and records captures,
// so pass it to scan.WithObserver and include it in the recorder fan-out.
type Server struct {
	app    *fiber.App
	logger *slog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	status Status
	recent []events.Entry

	index   EventSource
	metrics http.Handler
	onStop  func()

	statusHub *hub.Hub
	eventsHub *hub.Hub
	cameraHub *hub.Hub
}

// Option configures a Server.
type Option func(*Server)

// WithIndex lists /api/events from src instead of the in-memory ring.
func WithIndex(src EventSource) Option {
	return func(s *Server) {
		s.index = src
	}
}

// WithMetrics serves h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithStop sets the func POST /api/stop calls. It must not block.
func WithStop(fn func()) Option {
	return func(s *Server) {
		s.onStop = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer builds the dashboard routes.
func NewServer(opts ...Option) *Server {
	s := &Server{
		logger:    log.With("component", "web"),
		now:       time.Now,
		status:    Status{State: scan.Idle.String()},
		recent:    make([]events.Entry, 0, MaxRecent),
		statusHub: hub.New("status"),
		eventsHub: hub.New("events"),
		cameraHub: hub.New("camera"),
	}
	for _, opt := range opts {
		opt(s)
	}

	app := fiber.New(fiber.Config{
		AppName:               "ptzscan dashboard",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if s.metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(s.metrics))
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/events", s.handleEvents)
	api.Post("/stop", s.handleStop)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(func(c *websocket.Conn) {
		hub.NewClient(s.statusHub, c, s.statusMessage()).Run()
	}))
	app.Get("/ws/events", websocket.New(func(c *websocket.Conn) {
		hub.NewClient(s.eventsHub, c).Run()
	}))
	app.Get("/ws/camera", websocket.New(func(c *websocket.Conn) {
		hub.NewClient(s.cameraHub, c).Run()
	}))

	s.app = app
	return s
}

// App returns the fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Serve starts the hubs and serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	go s.statusHub.Run()
	go s.eventsHub.Run()
	go s.cameraHub.Run()
	s.logger.Info("dashboard listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// Start listens on addr and serves.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// StartAsync starts the server in a goroutine and logs a failure.
func (s *Server) StartAsync(addr string) {
	go func() {
		if err := s.Start(addr); err != nil {
			s.logger.Error("dashboard failed", "err", err)
		}
	}()
}

// Shutdown stops the server and disconnects websocket clients.
func (s *Server) Shutdown() error {
	s.statusHub.Close()
	s.eventsHub.Close()
	s.cameraHub.Close()
	return s.app.Shutdown()
}

// Status returns a copy of the current status.
func (s *Server) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Server) update(fn func(*Status)) {
	s.mu.Lock()
	fn(&s.status)
	s.status.UpdatedAt = s.now()
	st := s.status
	s.mu.Unlock()
	if err := s.statusHub.BroadcastJSON(st); err != nil {
		s.logger.Warn("encode status", "err", err)
	}
}

func (s *Server) statusMessage() hub.Message {
	data, _ := json.Marshal(s.Status())
	return hub.NewJSONMessage(data)
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.Status())
}

func (s *Server) handleEvents(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > MaxRecent {
		limit = MaxRecent
	}

	if s.index != nil {
		entries, err := s.index.Recent(c.UserContext(), limit)
		if err != nil {
			s.logger.Warn("listing events failed", "err", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		if entries == nil {
			entries = []events.Entry{}
		}
		return c.JSON(entries)
	}

	s.mu.RLock()
	out := make([]events.Entry, 0, min(limit, len(s.recent)))
	for i := len(s.recent) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.recent[i])
	}
	s.mu.RUnlock()
	return c.JSON(out)
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	if s.onStop == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "stop not available"})
	}
	s.onStop()
	s.update(func(st *Status) { st.Stopping = true })
	s.logger.Info("stop requested from dashboard", "ip", c.IP())
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "stopping"})
}

// StateChanged implements scan.Observer.
func (s *Server) StateChanged(from, to scan.State) {
	s.update(func(st *Status) { st.State = to.String() })
}

// SweepStarted implements scan.Observer.
func (s *Server) SweepStarted(iteration int, tilt float64) {
	s.update(func(st *Status) {
		st.Iteration = iteration
		st.Tilt = tilt
	})
}

// ProbeFinished implements scan.Observer.
func (s *Server) ProbeFinished(r scan.ProbeResult) {
	s.update(func(st *Status) {
		st.Pan = r.Pose.Pan
		st.Zoom = r.Pose.Zoom
		st.Probes++
		switch r.Outcome {
		case scan.ProbeFound:
			st.Found++
			st.LastEvent = r.EventID
		case scan.ProbeEmpty:
		default:
			st.Failures++
		}
	})
}

// TrackFinished implements scan.Observer.
func (s *Server) TrackFinished(r scan.TrackResult) {
	if r.Outcome != scan.TrackOK {
		return
	}
	s.update(func(st *Status) {
		st.Tracks++
		st.LastLabel = r.Label
	})
}

// SweepFinished implements scan.Observer.
func (s *Server) SweepFinished(r scan.SweepResult) {
	s.update(func(st *Status) {
		st.Sweeps++
		st.Tilt = r.NextTilt
	})
}

// Record implements events.Recorder. It keeps capture metadata for
// /api/events and pushes after-images to /ws/camera.
func (s *Server) Record(ctx context.Context, c events.Capture) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	e := events.Entry{Capture: c, File: c.Filename(), ImageBytes: len(c.Image)}
	e.Image = nil

	s.mu.Lock()
	if len(s.recent) == MaxRecent {
		copy(s.recent, s.recent[1:])
		s.recent = s.recent[:MaxRecent-1]
	}
	s.recent = append(s.recent, e)
	s.mu.Unlock()

	if err := s.eventsHub.BroadcastJSON(e); err != nil {
		return fmt.Errorf("web: encode capture: %w", err)
	}
	if c.View == events.ViewAfter {
		s.cameraHub.BroadcastBinary(c.Image)
	}
	return nil
}

var (
	_ scan.Observer   = (*Server)(nil)
	_ events.Recorder = (*Server)(nil)
)

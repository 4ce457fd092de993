// Package web serves the camera stream over HTTP with Fiber.
package web

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/camstream/internal/log"
	"github.com/teslashibe/camstream/pkg/camera"
	"github.com/teslashibe/camstream/pkg/metrics"
)

// Options configures optional server behavior.
type Options struct {
	// Metrics enables GET /metrics and per-stream instrumentation.
	Metrics *metrics.Metrics

	// AccessLog enables Fiber's request logger.
	AccessLog bool

	// Version is reported by GET /health.
	Version string
}

// Server is the MJPEG stream server. It does not own the source: the
// caller opens it before NewServer and closes it after Shutdown.
type Server struct {
	app     *fiber.App
	source  camera.Source
	encoder camera.Encoder
	metrics *metrics.Metrics
	version string

	// Cancelled on Shutdown so open streams end before the listener drains.
	ctx    context.Context
	cancel context.CancelFunc

	streams atomic.Int64
}

// NewServer creates a stream server over src, encoding with enc.
func NewServer(src camera.Source, enc camera.Encoder, opts Options) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		source:  src,
		encoder: enc,
		metrics: opts.Metrics,
		version: opts.Version,
		ctx:     ctx,
		cancel:  cancel,
	}

	app := fiber.New(fiber.Config{
		AppName:               "camstream",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	if opts.AccessLog {
		app.Use(logger.New())
	}

	app.Get("/", s.handleIndex)
	app.Get("/video_feed", s.handleVideoFeed)
	app.Get("/health", s.handleHealth)
	if s.metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))
	}

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/video_feed", websocket.New(s.handleVideoFeedWS))

	s.app = app
	return s
}

// App exposes the Fiber app, mainly for app.Test in tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens on addr and serves until Shutdown.
func (s *Server) Start(addr string) error {
	log.Info("stream server listening", "addr", addr, "feed", "/video_feed")
	return s.app.Listen(addr)
}

// Serve serves on an existing listener until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	log.Info("stream server listening", "addr", ln.Addr().String(), "feed", "/video_feed")
	return s.app.Listener(ln)
}

// ActiveStreams returns the number of open stream connections.
func (s *Server) ActiveStreams() int {
	return int(s.streams.Load())
}

// Shutdown ends all open streams, then stops the listener, waiting at
// most timeout for connections to drain.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.cancel()
	return s.app.ShutdownWithTimeout(timeout)
}

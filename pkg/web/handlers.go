package web

import (
	"bufio"
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/camstream/internal/log"
	"github.com/teslashibe/camstream/pkg/metrics"
	"github.com/teslashibe/camstream/pkg/mjpeg"
)

const indexHTML = "<h1>Robot Camera Stream</h1><p>Go to <a href='/video_feed'>Video Feed</a></p>"

// writeWait bounds a single websocket frame write
const writeWait = 10 * time.Second

// exhauster is implemented by sources that can report a failed device.
type exhauster interface {
	Exhausted() bool
}

// handleIndex serves the landing page
func (s *Server) handleIndex(c *fiber.Ctx) error {
	c.Type("html")
	return c.SendString(indexHTML)
}

// handleHealth reports server and source status
func (s *Server) handleHealth(c *fiber.Ctx) error {
	exhausted := false
	if e, ok := s.source.(exhauster); ok {
		exhausted = e.Exhausted()
	}
	return c.JSON(fiber.Map{
		"status":           "ok",
		"version":          s.version,
		"streams":          s.ActiveStreams(),
		"source_exhausted": exhausted,
	})
}

// handleVideoFeed streams multipart JPEG parts until the source ends or
// the client goes away. The status is always 200; a dead camera yields
// an empty body.
func (s *Server) handleVideoFeed(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, mjpeg.ContentType)
	c.Set(fiber.HeaderCacheControl, "no-cache, no-store, must-revalidate")
	c.Set(fiber.HeaderPragma, "no-cache")

	// The fiber.Ctx is recycled once the handler returns.
	logger := log.With("remote", c.IP(), "transport", "http")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		// Runs on fasthttp's own goroutine, outside the recover middleware.
		defer recoverStream(logger)

		s.streams.Add(1)
		defer s.streams.Add(-1)

		ctx, cancel := context.WithCancel(s.ctx)
		defer cancel()

		pw := mjpeg.NewWriter(w)
		sess := mjpeg.NewSession(s.source, s.encoder, s.metrics, logger)

		// A failed flush is the transport's disconnect signal.
		sess.Run(ctx, func(frame []byte) error {
			if err := pw.WritePart(frame); err != nil {
				cancel()
				return err
			}
			if err := w.Flush(); err != nil {
				cancel()
				return err
			}
			return nil
		})
	})
	return nil
}

// handleVideoFeedWS streams each JPEG as one binary websocket message
func (s *Server) handleVideoFeedWS(c *websocket.Conn) {
	logger := log.With("remote", c.RemoteAddr().String(), "transport", "websocket")
	defer recoverStream(logger)

	s.streams.Add(1)
	defer s.streams.Add(-1)

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	// Nothing is expected from the viewer; reading detects disconnect.
	go func() {
		defer cancel()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	sess := mjpeg.NewSession(s.source, s.encoder, s.metrics, logger)

	sess.Run(ctx, func(frame []byte) error {
		c.SetWriteDeadline(time.Now().Add(writeWait))
		return c.WriteMessage(websocket.BinaryMessage, frame)
	})

	if sess.Reason() == metrics.ReasonEndOfStream {
		c.SetWriteDeadline(time.Now().Add(writeWait))
		c.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "end of stream"))
	}
}

// recoverStream stops a panic in a stream goroutine from taking down the
// process. It must be deferred directly.
func recoverStream(logger *slog.Logger) {
	if r := recover(); r != nil {
		logger.Error("stream panicked", "panic", r)
	}
}

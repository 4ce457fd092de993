package mjpeg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/camstream/pkg/camera"
	"github.com/teslashibe/camstream/pkg/metrics"
)

// State is the lifecycle state of a Session.
type State int

const (
	// StateStreaming is the initial state: pulling, encoding and emitting.
	StateStreaming State = iota
	// StateClosed is terminal: the source ended or the client went away.
	StateClosed
)

func (s State) String() string {
	if s == StateClosed {
		return "closed"
	}
	return "streaming"
}

// EmitFunc delivers one encoded frame to the connection. A non-nil error
// means the client is gone and the session must stop.
type EmitFunc func(jpeg []byte) error

// Session is the pull loop for one viewer connection. It holds no frame
// history: each frame is captured, encoded, emitted and dropped before
// the next capture starts.
type Session struct {
	ID uuid.UUID

	source  camera.Source
	encoder camera.Encoder
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu     sync.Mutex
	state  State
	frames int
	reason string
}

// NewSession creates a session over a shared source. m may be nil.
func NewSession(src camera.Source, enc camera.Encoder, m *metrics.Metrics, logger *slog.Logger) *Session {
	id := uuid.New()
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		ID:      id,
		source:  src,
		encoder: enc,
		metrics: m,
		logger:  logger.With("stream_id", id.String()),
		state:   StateStreaming,
	}
}

// Run streams frames to emit until the source is exhausted, ctx is
// cancelled, or emit fails. Those three end the session cleanly and Run
// returns nil. An encoder failure or an unexpected source error closes
// the session and is returned.
func (s *Session) Run(ctx context.Context, emit EmitFunc) error {
	start := time.Now()
	s.metrics.RecordStreamOpen()
	s.logger.Debug("stream opened")

	reason, err := s.loop(ctx, emit)

	s.mu.Lock()
	s.state = StateClosed
	s.reason = reason
	frames := s.frames
	s.mu.Unlock()

	s.metrics.RecordStreamClose(reason, time.Since(start))
	if err != nil {
		s.logger.Error("stream failed", "frames", frames, "reason", reason, "error", err)
	} else {
		s.logger.Info("stream closed", "frames", frames, "reason", reason,
			"duration", time.Since(start).Round(time.Millisecond))
	}
	return err
}

func (s *Session) loop(ctx context.Context, emit EmitFunc) (string, error) {
	for {
		if ctx.Err() != nil {
			return metrics.ReasonCancelled, nil
		}

		frame, err := s.source.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, camera.ErrEndOfStream), errors.Is(err, camera.ErrClosed):
				return metrics.ReasonEndOfStream, nil
			case ctx.Err() != nil:
				return metrics.ReasonCancelled, nil
			default:
				return metrics.ReasonSourceError, fmt.Errorf("capture: %w", err)
			}
		}

		encodeStart := time.Now()
		data, err := s.encode(frame)
		if err != nil {
			return metrics.ReasonEncodeError, fmt.Errorf("encode frame %d: %w", s.Frames()+1, err)
		}
		encodeTime := time.Since(encodeStart)

		if err := emit(data); err != nil {
			s.logger.Debug("client write failed", "error", err)
			return metrics.ReasonClientGone, nil
		}

		s.metrics.RecordFrame(len(data), encodeTime)
		s.mu.Lock()
		s.frames++
		s.mu.Unlock()
	}
}

// encode runs the encoder, turning a panic into an error so one bad
// frame closes only this session.
func (s *Session) encode(f camera.Frame) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("encoder panic: %v", r)
		}
	}()
	return s.encoder.Encode(f)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Frames returns the number of frames emitted so far.
func (s *Session) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Reason returns why the session closed, or "" while streaming.
func (s *Session) Reason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/camstream/pkg/camera"
	"github.com/teslashibe/camstream/pkg/metrics"
	"github.com/teslashibe/camstream/pkg/mjpeg"
)

// recordingEncoder keeps every encoded output for comparison with the wire
type recordingEncoder struct {
	mu      sync.Mutex
	outputs [][]byte
}

func (r *recordingEncoder) Encode(f camera.Frame) ([]byte, error) {
	data, err := camera.JPEGEncoder{}.Encode(f)
	if err == nil {
		r.mu.Lock()
		r.outputs = append(r.outputs, data)
		r.mu.Unlock()
	}
	return data, err
}

func (r *recordingEncoder) output(i int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i >= len(r.outputs) {
		return nil
	}
	return r.outputs[i]
}

type deadSource struct{}

func (deadSource) Next(context.Context) (camera.Frame, error) {
	return camera.Frame{}, camera.ErrEndOfStream
}

func (deadSource) Exhausted() bool { return true }

func (deadSource) Close() error { return nil }

// startServer serves s on an ephemeral port and returns its host:port
func startServer(t *testing.T, s *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go s.Serve(ln)
	t.Cleanup(func() { s.Shutdown(2 * time.Second) })
	return ln.Addr().String()
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestIndex(t *testing.T) {
	s := NewServer(camera.NewTestPattern(8, 8, 1, 0), camera.JPEGEncoder{}, Options{})

	resp, err := s.App().Test(httptest.NewRequest("GET", "/", nil))
	if err != nil {
		t.Fatalf("Test failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "Video Feed") {
		t.Errorf("body missing link text: %q", body)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		t.Errorf("content type = %q", resp.Header.Get("Content-Type"))
	}
}

func TestVideoFeedStreamsNFrames(t *testing.T) {
	const n = 4
	enc := &recordingEncoder{}
	s := NewServer(camera.NewTestPattern(40, 30, n, 0), enc, Options{})

	resp, err := s.App().Test(httptest.NewRequest("GET", "/video_feed", nil), -1)
	if err != nil {
		t.Fatalf("Test failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "multipart/x-mixed-replace; boundary=frame" {
		t.Errorf("content type = %q", ct)
	}

	r := mjpeg.NewReader(resp.Body, "frame")
	for i := 0; i < n; i++ {
		part, err := r.Next()
		if err != nil {
			t.Fatalf("part %d: %v", i, err)
		}
		if part.ContentType() != "image/jpeg" {
			t.Errorf("part %d content type = %q", i, part.ContentType())
		}
		if string(part.Data) != string(enc.output(i)) {
			t.Errorf("part %d differs from encoder output", i)
		}
	}
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("expected exactly %d parts, next err = %v", n, err)
	}
}

func TestVideoFeedCameraUnavailable(t *testing.T) {
	s := NewServer(deadSource{}, camera.JPEGEncoder{}, Options{})

	resp, err := s.App().Test(httptest.NewRequest("GET", "/video_feed", nil), -1)
	if err != nil {
		t.Fatalf("Test failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if len(body) != 0 {
		t.Errorf("expected empty body, got %d bytes", len(body))
	}
}

func TestVideoFeedEncoderFailure(t *testing.T) {
	enc := camera.EncoderFunc(func(camera.Frame) ([]byte, error) {
		return nil, errors.New("encoder exploded")
	})
	s := NewServer(camera.NewTestPattern(8, 8, 0, 0), enc, Options{})

	resp, err := s.App().Test(httptest.NewRequest("GET", "/video_feed", nil), -1)
	if err != nil {
		t.Fatalf("Test failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if len(body) != 0 {
		t.Errorf("expected no parts, got %q", body)
	}
	if strings.Contains(string(body), "exploded") {
		t.Error("encoder error leaked to client")
	}
}

func TestVideoFeedEncoderPanic(t *testing.T) {
	enc := camera.EncoderFunc(func(camera.Frame) ([]byte, error) {
		panic("encoder bug")
	})
	s := NewServer(camera.NewTestPattern(8, 8, 0, 0), enc, Options{})

	resp, err := s.App().Test(httptest.NewRequest("GET", "/video_feed", nil), -1)
	if err != nil {
		t.Fatalf("Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || len(body) != 0 {
		t.Errorf("status = %d, body = %q; want 200 and no parts", resp.StatusCode, body)
	}

	// The server keeps serving.
	resp, err = s.App().Test(httptest.NewRequest("GET", "/", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("index after panic: %v", err)
	}
	resp.Body.Close()
	if s.ActiveStreams() != 0 {
		t.Errorf("ActiveStreams = %d, want 0", s.ActiveStreams())
	}
}

func TestRecoverStream(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	func() {
		defer recoverStream(logger)
		panic("boom")
	}()
	if !strings.Contains(buf.String(), "stream panicked") {
		t.Errorf("panic not logged: %q", buf.String())
	}
}

func TestHealth(t *testing.T) {
	s := NewServer(deadSource{}, camera.JPEGEncoder{}, Options{Version: "1.2.3"})

	resp, err := s.App().Test(httptest.NewRequest("GET", "/health", nil))
	if err != nil {
		t.Fatalf("Test failed: %v", err)
	}
	defer resp.Body.Close()

	var health struct {
		Status          string `json:"status"`
		Version         string `json:"version"`
		Streams         int    `json:"streams"`
		SourceExhausted bool   `json:"source_exhausted"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != "ok" || health.Version != "1.2.3" || health.Streams != 0 || !health.SourceExhausted {
		t.Errorf("unexpected health: %+v", health)
	}
}

func TestCrossOriginAllowed(t *testing.T) {
	s := NewServer(deadSource{}, camera.JPEGEncoder{}, Options{})

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("Test failed: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	s := NewServer(camera.NewTestPattern(8, 8, 3, 0), camera.JPEGEncoder{}, Options{Metrics: m})

	resp, err := s.App().Test(httptest.NewRequest("GET", "/video_feed", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	resp, err = s.App().Test(httptest.NewRequest("GET", "/metrics", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		"camstream_frames_served_total 3",
		"camstream_streams_opened_total 1",
		`camstream_streams_closed_total{reason="end_of_stream"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestMetricsDisabled(t *testing.T) {
	s := NewServer(deadSource{}, camera.JPEGEncoder{}, Options{})
	resp, err := s.App().Test(httptest.NewRequest("GET", "/metrics", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 404 {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	s := NewServer(deadSource{}, camera.JPEGEncoder{}, Options{})
	resp, err := s.App().Test(httptest.NewRequest("GET", "/ws/video_feed", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 426 {
		t.Errorf("status = %d, want 426", resp.StatusCode)
	}
}

func TestWebSocketFeed(t *testing.T) {
	const n = 3
	enc := &recordingEncoder{}
	s := NewServer(camera.NewTestPattern(16, 16, n, 0), enc, Options{})
	addr := startServer(t, s)

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws/video_feed", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))

	for i := 0; i < n; i++ {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("message %d: %v", i, err)
		}
		if mt != websocket.BinaryMessage {
			t.Errorf("message %d type = %d, want binary", i, mt)
		}
		if string(data) != string(enc.output(i)) {
			t.Errorf("message %d differs from encoder output", i)
		}
	}

	_, _, err = ws.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected normal closure, got %v", err)
	}
}

func TestClientDisconnectEndsStream(t *testing.T) {
	src := camera.NewTestPattern(16, 16, 0, time.Millisecond)
	s := NewServer(src, camera.JPEGEncoder{}, Options{})
	addr := startServer(t, s)

	resp, err := http.Get("http://" + addr + "/video_feed")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	r := mjpeg.NewReader(resp.Body, mjpeg.Boundary)
	if _, err := r.Next(); err != nil {
		t.Fatalf("first part: %v", err)
	}
	waitFor(t, func() bool { return s.ActiveStreams() == 1 }, "stream to open")

	resp.Body.Close()
	waitFor(t, func() bool { return s.ActiveStreams() == 0 }, "stream to close after disconnect")

	produced := src.Produced()
	time.Sleep(20 * time.Millisecond)
	if src.Produced() != produced {
		t.Error("source still pulled after client left")
	}
}

func TestShutdownEndsStreams(t *testing.T) {
	s := NewServer(camera.NewTestPattern(16, 16, 0, time.Millisecond), camera.JPEGEncoder{}, Options{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go s.Serve(ln)

	resp, err := http.Get("http://" + ln.Addr().String() + "/video_feed")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	r := mjpeg.NewReader(resp.Body, mjpeg.Boundary)
	if _, err := r.Next(); err != nil {
		t.Fatalf("first part: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Shutdown(3 * time.Second) }()

	ended := make(chan struct{})
	go func() {
		defer close(ended)
		for {
			if _, err := r.Next(); err != nil {
				return
			}
		}
	}()

	select {
	case <-ended:
	case <-time.After(5 * time.Second):
		t.Fatal("stream still open after Shutdown")
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown did not return")
	}
	if s.ActiveStreams() != 0 {
		t.Errorf("active streams = %d after shutdown", s.ActiveStreams())
	}
}

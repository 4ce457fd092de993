// camprobe - connect to a camstream feed and report what it delivers
//
// Reads a number of parts, prints frame rate and sizes, and saves the
// last frame to disk.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image/jpeg"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/camstream/internal/httpc"
	"github.com/teslashibe/camstream/pkg/mjpeg"
)

var (
	streamURL = flag.String("url", "http://localhost:5000/video_feed", "Stream URL")
	frames    = flag.Int("frames", 30, "Number of frames to read (0 = until the stream ends)")
	out       = flag.String("out", "camprobe_last.jpg", "Where to save the last frame (empty to skip)")
	timeout   = flag.Duration("timeout", 30*time.Second, "Give up after this long")
)

// stats summarizes a probe run
type stats struct {
	Frames   int
	Bytes    int
	Elapsed  time.Duration
	Last     []byte
	EndedEOF bool
}

func (s stats) FPS() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Frames) / s.Elapsed.Seconds()
}

func main() {
	flag.Parse()

	fmt.Println("📹 camprobe")
	fmt.Printf("Stream: %s\n\n", *streamURL)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, *timeout)
	defer cancelTimeout()

	if h, err := checkHealth(ctx, httpc.Client, *streamURL); err != nil {
		fmt.Printf("⚠️  Health check failed: %v\n", err)
	} else {
		fmt.Printf("Server %s: %s, %d open streams\n", h.Version, h.Status, h.Streams)
		if h.SourceExhausted {
			fmt.Println("⚠️  Camera is exhausted, expect an empty stream")
		}
	}

	st, err := probe(ctx, httpc.NewStreamClient(), *streamURL, *frames)
	if err != nil && st.Frames == 0 {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✅ %d frames, %d KB, %.1f fps\n", st.Frames, st.Bytes/1024, st.FPS())
	if st.EndedEOF {
		fmt.Println("ℹ️  Server ended the stream")
	}
	if err != nil {
		fmt.Printf("⚠️  Stopped early: %v\n", err)
	}

	if len(st.Last) > 0 {
		if cfg, err := jpeg.DecodeConfig(bytes.NewReader(st.Last)); err == nil {
			fmt.Printf("Last frame: %dx%d\n", cfg.Width, cfg.Height)
		} else {
			fmt.Printf("⚠️  Last frame is not a valid JPEG: %v\n", err)
		}
		if *out != "" {
			if err := os.WriteFile(*out, st.Last, 0644); err != nil {
				fmt.Printf("❌ Failed to save: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Saved to: %s\n", *out)
		}
	}
}

// probe reads up to n parts (unbounded when n <= 0) from the stream at target.
func probe(ctx context.Context, client *http.Client, target string, n int) (st stats, err error) {
	resp, err := httpc.Get(ctx, client, target)
	if err != nil {
		return st, err
	}
	defer resp.Body.Close()

	r, err := mjpeg.NewReaderFromContentType(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return st, err
	}

	start := time.Now()
	defer func() { st.Elapsed = time.Since(start) }()

	for n <= 0 || st.Frames < n {
		part, err := r.Next()
		if err == io.EOF {
			st.EndedEOF = true
			return st, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return st, ctx.Err()
			}
			return st, fmt.Errorf("frame %d: %w", st.Frames+1, err)
		}
		if ct := part.ContentType(); ct != mjpeg.PartContentType {
			return st, fmt.Errorf("frame %d: unexpected content type %q", st.Frames+1, ct)
		}
		st.Frames++
		st.Bytes += len(part.Data)
		st.Last = part.Data
	}
	return st, nil
}

// health mirrors the server's GET /health body
type health struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	Streams         int    `json:"streams"`
	SourceExhausted bool   `json:"source_exhausted"`
}

// checkHealth queries /health on the host serving streamURL.
func checkHealth(ctx context.Context, client *http.Client, streamURL string) (health, error) {
	var h health
	u, err := url.Parse(streamURL)
	if err != nil {
		return h, err
	}
	u.Path, u.RawQuery = "/health", ""

	resp, err := httpc.Get(ctx, client, u.String())
	if err != nil {
		return h, err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return h, fmt.Errorf("decode health: %w", err)
	}
	return h, nil
}

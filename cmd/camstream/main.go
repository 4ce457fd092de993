// camstream - serve a local camera as a motion-JPEG stream
//
// Browse to http://<host>:5000/ and follow the Video Feed link.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/camstream/internal/config"
	"github.com/teslashibe/camstream/internal/log"
	"github.com/teslashibe/camstream/pkg/camera"
	"github.com/teslashibe/camstream/pkg/camera/opencv"
	"github.com/teslashibe/camstream/pkg/metrics"
	"github.com/teslashibe/camstream/pkg/web"
)

var version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(1)
	}
	log.Init(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Error("camstream stopped", "error", err)
		os.Exit(1)
	}
}

// run owns the camera for the life of the process: it is opened before
// the server starts and closed after the server has drained.
func run(ctx context.Context, cfg config.Config) error {
	src, enc, err := openSource(cfg.Camera)
	if err != nil {
		return err
	}
	defer src.Close()

	srv := web.NewServer(src, enc, web.Options{
		Metrics:   metrics.New(),
		AccessLog: cfg.AccessLog,
		Version:   version,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(cfg.Addr) }()

	select {
	case <-ctx.Done():
		log.Info("shutting down", "active_streams", srv.ActiveStreams())
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}

	if err := srv.Shutdown(cfg.ShutdownTimeout); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openSource(cfg camera.Config) (camera.Source, camera.Encoder, error) {
	if cfg.IsTestPattern() {
		width, height := cfg.Width, cfg.Height
		if width == 0 {
			width, height = 640, 480
		}
		fps := cfg.FPS
		if fps == 0 {
			fps = 30
		}
		log.Info("using test pattern", "width", width, "height", height, "fps", fps)
		return camera.NewTestPattern(width, height, 0, time.Second/time.Duration(fps)), camera.JPEGEncoder{}, nil
	}

	dev, err := opencv.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	return dev, opencv.Encoder{}, nil
}

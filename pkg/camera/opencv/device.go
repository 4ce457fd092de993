// Package opencv implements camera capture and JPEG encoding with GoCV.
package opencv

import (
	"context"
	"fmt"
	"sync"

	"github.com/teslashibe/camstream/internal/log"
	"github.com/teslashibe/camstream/pkg/camera"
	"gocv.io/x/gocv"
)

// Device is a camera.Source backed by an OpenCV VideoCapture.
// Once a read fails the device stays exhausted; there is no reopen.
type Device struct {
	name string

	mu        sync.Mutex // Serializes reads on the capture handle
	vc        *gocv.VideoCapture
	img       gocv.Mat
	exhausted bool
	closed    bool
}

// Open opens the device named by cfg and applies its capture settings.
func Open(cfg camera.Config) (*Device, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid camera config: %v", errs)
	}

	var target interface{} = cfg.Device
	if id, ok := cfg.DeviceIndex(); ok {
		target = id
	}

	vc, err := gocv.OpenVideoCapture(target)
	if err != nil {
		return nil, fmt.Errorf("open camera %q: %w", cfg.Device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open camera %q: device not available", cfg.Device)
	}

	if cfg.Width > 0 && cfg.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	if cfg.FPS > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(cfg.FPS))
	}

	log.Info("camera opened",
		"device", cfg.Device,
		"width", int(vc.Get(gocv.VideoCaptureFrameWidth)),
		"height", int(vc.Get(gocv.VideoCaptureFrameHeight)),
		"fps", vc.Get(gocv.VideoCaptureFPS),
	)

	return &Device{
		name: cfg.Device,
		vc:   vc,
		img:  gocv.NewMat(),
	}, nil
}

// Next reads one frame from the device.
func (d *Device) Next(ctx context.Context) (camera.Frame, error) {
	if err := ctx.Err(); err != nil {
		return camera.Frame{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return camera.Frame{}, camera.ErrClosed
	}
	if d.exhausted {
		return camera.Frame{}, camera.ErrEndOfStream
	}
	// The viewer may have left while waiting for another viewer's read.
	if err := ctx.Err(); err != nil {
		return camera.Frame{}, err
	}

	if ok := d.vc.Read(&d.img); !ok || d.img.Empty() {
		d.exhausted = true
		log.Warn("camera read failed, source exhausted", "device", d.name)
		return camera.Frame{}, camera.ErrEndOfStream
	}

	return camera.Frame{
		Width:    d.img.Cols(),
		Height:   d.img.Rows(),
		Channels: d.img.Channels(),
		Pix:      d.img.ToBytes(),
	}, nil
}

// Exhausted reports whether a read has failed.
func (d *Device) Exhausted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exhausted
}

// Close releases the capture handle and the frame buffer.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.img.Close()
	return d.vc.Close()
}

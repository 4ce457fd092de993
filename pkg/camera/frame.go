// Package camera defines the frame model and the capture and encoding
// contracts used by the stream server.
package camera

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrEndOfStream is returned by Source.Next once the source can no
	// longer produce frames. It is permanent for the life of the source.
	ErrEndOfStream = errors.New("camera: end of stream")

	// ErrClosed is returned by operations on a source after Close.
	ErrClosed = errors.New("camera: source closed")
)

// Frame is one captured image: a row-major pixel grid with interleaved
// channels. Three channels are BGR and four are BGRA, matching OpenCV's
// native layout; one channel is grayscale.
type Frame struct {
	Width    int
	Height   int
	Channels int
	Pix      []byte
}

// Validate checks that Pix holds exactly Width*Height*Channels bytes.
func (f Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("camera: invalid frame size %dx%d", f.Width, f.Height)
	}
	switch f.Channels {
	case 1, 3, 4:
	default:
		return fmt.Errorf("camera: unsupported channel count %d", f.Channels)
	}
	if want := f.Width * f.Height * f.Channels; len(f.Pix) != want {
		return fmt.Errorf("camera: pixel buffer has %d bytes, want %d", len(f.Pix), want)
	}
	return nil
}

// Source produces frames from a capture device.
type Source interface {
	// Next blocks until a frame is ready. It returns ErrEndOfStream when
	// the device has failed or run out; callers must stop pulling then.
	Next(ctx context.Context) (Frame, error)

	// Close releases the device.
	Close() error
}

// Encoder compresses a frame into a self-contained image.
type Encoder interface {
	Encode(f Frame) ([]byte, error)
}

// EncoderFunc adapts a function to the Encoder interface.
type EncoderFunc func(f Frame) ([]byte, error)

// Encode calls fn(f).
func (fn EncoderFunc) Encode(f Frame) ([]byte, error) {
	return fn(f)
}

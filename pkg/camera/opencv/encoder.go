package opencv

import (
	"bytes"
	"fmt"

	"github.com/teslashibe/camstream/pkg/camera"
	"gocv.io/x/gocv"
)

// Encoder compresses frames with OpenCV's imencode at its default quality.
type Encoder struct{}

// Encode wraps the frame's pixels in a Mat and encodes it as JPEG.
func (Encoder) Encode(f camera.Frame) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	mt := gocv.MatTypeCV8UC3
	switch f.Channels {
	case 1:
		mt = gocv.MatTypeCV8UC1
	case 4:
		mt = gocv.MatTypeCV8UC4
	}

	img, err := gocv.NewMatFromBytes(f.Height, f.Width, mt, f.Pix)
	if err != nil {
		return nil, fmt.Errorf("wrap frame: %w", err)
	}
	defer img.Close()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	return bytes.Clone(buf.GetBytes()), nil
}

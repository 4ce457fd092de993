package camera

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

// JPEGEncoder encodes frames with the pure-Go image/jpeg encoder at its
// default quality. It needs no cgo, so it pairs with TestPattern.
type JPEGEncoder struct{}

// Encode converts f to an image and compresses it as JPEG.
func (JPEGEncoder) Encode(f Frame) ([]byte, error) {
	img, err := ToImage(f)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// ToImage converts a frame to an image.Image, swapping BGR(A) to RGBA.
func ToImage(f Frame) (image.Image, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	rect := image.Rect(0, 0, f.Width, f.Height)
	if f.Channels == 1 {
		gray := image.NewGray(rect)
		copy(gray.Pix, f.Pix)
		return gray, nil
	}

	rgba := image.NewRGBA(rect)
	n := f.Width * f.Height
	for i := 0; i < n; i++ {
		src := f.Pix[i*f.Channels:]
		dst := rgba.Pix[i*4:]
		dst[0], dst[1], dst[2] = src[2], src[1], src[0]
		if f.Channels == 4 {
			dst[3] = src[3]
		} else {
			dst[3] = 0xff
		}
	}
	return rgba, nil
}

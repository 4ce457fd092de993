// Package mjpeg implements the multipart/x-mixed-replace wire format used
// to push JPEG frames to browsers, and the per-connection stream session.
//
// Each part on the wire is:
//
//	--frame\r\n
//	Content-Type: image/jpeg\r\n\r\n
//	<JPEG bytes>\r\n
//
// The body never carries a closing delimiter; it ends when the
// connection does.
package mjpeg

import (
	"fmt"
	"io"
)

// Wire constants.
const (
	Boundary        = "frame"
	ContentType     = "multipart/x-mixed-replace; boundary=" + Boundary
	PartContentType = "image/jpeg"
)

var crlf = []byte("\r\n")

// Writer writes JPEG parts to an underlying stream.
type Writer struct {
	w      io.Writer
	header []byte
}

// NewWriter returns a Writer using the standard "frame" boundary.
func NewWriter(w io.Writer) *Writer {
	return NewWriterBoundary(w, Boundary)
}

// NewWriterBoundary returns a Writer using a custom boundary.
func NewWriterBoundary(w io.Writer, boundary string) *Writer {
	return &Writer{
		w:      w,
		header: []byte("--" + boundary + "\r\nContent-Type: " + PartContentType + "\r\n\r\n"),
	}
}

// WritePart writes one self-delimited part holding data.
func (pw *Writer) WritePart(data []byte) error {
	if _, err := pw.w.Write(pw.header); err != nil {
		return fmt.Errorf("write part header: %w", err)
	}
	if _, err := pw.w.Write(data); err != nil {
		return fmt.Errorf("write part body: %w", err)
	}
	if _, err := pw.w.Write(crlf); err != nil {
		return fmt.Errorf("write part trailer: %w", err)
	}
	return nil
}

package mjpeg

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/textproto"
)

// MaxPartSize bounds a single part, header included.
const MaxPartSize = 16 << 20

// ErrMalformed is returned when the stream does not start a part where
// a boundary is expected.
var ErrMalformed = errors.New("mjpeg: malformed part")

// Part is one decoded part of a stream.
type Part struct {
	Header textproto.MIMEHeader
	Data   []byte
}

// ContentType returns the part's Content-Type header.
func (p Part) ContentType() string {
	return p.Header.Get("Content-Type")
}

// Reader splits an MJPEG body back into parts.
//
// mime/multipart cannot be used here: it treats a body without the
// closing delimiter as truncated and fails the last part.
type Reader struct {
	sc     *bufio.Scanner
	prefix []byte
}

// NewReader reads parts delimited by boundary from r.
func NewReader(r io.Reader, boundary string) *Reader {
	prefix := []byte("--" + boundary + "\r\n")
	delim := []byte("\r\n--" + boundary + "\r\n")

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), MaxPartSize)
	sc.Split(splitParts(prefix, delim))

	return &Reader{sc: sc, prefix: prefix}
}

// NewReaderFromContentType takes the boundary from a response's
// Content-Type header.
func NewReaderFromContentType(r io.Reader, contentType string) (*Reader, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("parse content type: %w", err)
	}
	if mediaType != "multipart/x-mixed-replace" || params["boundary"] == "" {
		return nil, fmt.Errorf("unexpected content type %q", contentType)
	}
	return NewReader(r, params["boundary"]), nil
}

// Next returns the next part, or io.EOF when the stream ended cleanly
// after a complete part.
func (r *Reader) Next() (Part, error) {
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return Part{}, err
		}
		return Part{}, io.EOF
	}
	return parsePart(r.sc.Bytes(), r.prefix)
}

// splitParts is a bufio.SplitFunc yielding one raw part per token, from
// its leading boundary up to (not including) the CRLF before the next.
func splitParts(prefix, delim []byte) bufio.SplitFunc {
	return func(data []byte, atEOF bool) (advance int, token []byte, err error) {
		if atEOF && len(data) == 0 {
			return 0, nil, nil
		}
		if len(data) < len(prefix) {
			if atEOF {
				return 0, nil, io.ErrUnexpectedEOF
			}
			return 0, nil, nil
		}
		if !bytes.HasPrefix(data, prefix) {
			return 0, nil, ErrMalformed
		}

		if i := bytes.Index(data[len(prefix):], delim); i >= 0 {
			end := len(prefix) + i
			return end + len(crlf), data[:end], nil
		}

		if atEOF {
			if len(data) > len(prefix) && bytes.HasSuffix(data, crlf) {
				return len(data), data[:len(data)-len(crlf)], nil
			}
			return 0, nil, io.ErrUnexpectedEOF
		}

		// Request more data.
		return 0, nil, nil
	}
}

func parsePart(raw, prefix []byte) (Part, error) {
	rest := raw[len(prefix):]

	end := bytes.Index(rest, []byte("\r\n\r\n"))
	if end < 0 {
		return Part{}, fmt.Errorf("%w: missing header terminator", ErrMalformed)
	}

	tp := textproto.NewReader(bufio.NewReader(bytes.NewReader(rest[:end+4])))
	header, err := tp.ReadMIMEHeader()
	if err != nil {
		return Part{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return Part{
		Header: header,
		Data:   bytes.Clone(rest[end+4:]),
	}, nil
}

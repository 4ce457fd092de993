package camera

import (
	"context"
	"sync"
	"time"
)

// TestPattern is a synthetic Source that draws a moving BGR gradient.
// It stands in for a camera in tests and on machines without one.
type TestPattern struct {
	width, height int
	limit         int
	interval      time.Duration

	mu       sync.Mutex
	produced int
	closed   bool
}

// NewTestPattern creates a source of width x height frames. It yields
// limit frames and then ErrEndOfStream; limit <= 0 means unbounded.
// A non-zero interval spaces frames like a camera's frame period.
func NewTestPattern(width, height, limit int, interval time.Duration) *TestPattern {
	return &TestPattern{
		width:    width,
		height:   height,
		limit:    limit,
		interval: interval,
	}
}

// Next returns the next frame of the pattern.
func (p *TestPattern) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return Frame{}, ErrClosed
	}
	if p.limit > 0 && p.produced >= p.limit {
		p.mu.Unlock()
		return Frame{}, ErrEndOfStream
	}
	seq := p.produced
	p.produced++
	p.mu.Unlock()

	if p.interval > 0 {
		t := time.NewTimer(p.interval)
		defer t.Stop()
		select {
		case <-ctx.Done():
			// Give the slot back; the frame was never delivered.
			p.mu.Lock()
			p.produced--
			p.mu.Unlock()
			return Frame{}, ctx.Err()
		case <-t.C:
		}
	}

	return p.draw(seq), nil
}

// Produced returns how many frames have been handed out, counting
// frames still waiting out their interval.
func (p *TestPattern) Produced() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.produced
}

// Exhausted reports whether the frame limit has been reached.
func (p *TestPattern) Exhausted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.limit > 0 && p.produced >= p.limit
}

// Close stops the source. Further calls to Next return ErrClosed.
func (p *TestPattern) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *TestPattern) draw(seq int) Frame {
	f := Frame{
		Width:    p.width,
		Height:   p.height,
		Channels: 3,
		Pix:      make([]byte, p.width*p.height*3),
	}
	shift := seq * 4
	for y := 0; y < p.height; y++ {
		row := y * p.width * 3
		for x := 0; x < p.width; x++ {
			i := row + x*3
			f.Pix[i] = byte(x + shift)   // B
			f.Pix[i+1] = byte(y + shift) // G
			f.Pix[i+2] = byte(seq * 16)  // R
		}
	}
	return f
}

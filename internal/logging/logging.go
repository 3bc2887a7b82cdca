// Package logging provides the process logger and the in-memory ring
// buffer backing the diagnostics dashboard's event tail.
package logging

import (
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RingBuffer retains the most recent log lines in a fixed-size ring.
// It implements [io.Writer], one written chunk per line, so it can sit
// behind any log sink.
type RingBuffer struct {
	mu    sync.Mutex
	buf   []string
	index int
	full  bool
	size  int
}

// NewRingBuffer returns a pointer to a new [RingBuffer] of given size.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{
		buf:  make([]string, size),
		size: size,
	}
}

// Size returns the size of the ring buffer.
func (b *RingBuffer) Size() int {
	return b.size
}

// Write records one log line. It never fails.
func (b *RingBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf[b.index] = strings.TrimSuffix(string(p), "\n")
	b.index = (b.index + 1) % b.size
	if b.index == 0 {
		b.full = true
	}

	return len(p), nil
}

// Lines returns a copy of the retained lines, oldest first.
func (b *RingBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.full {
		out := make([]string, b.index)
		copy(out, b.buf[:b.index])

		return out
	}

	out := make([]string, b.size)
	copy(out, b.buf[b.index:])
	copy(out[b.size-b.index:], b.buf[:b.index])

	return out
}

// Reset returns the ring buffer to zero state.
func (b *RingBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = make([]string, b.size)
	b.index = 0
	b.full = false
}

// NewLogger returns a [zerolog.Logger] writing console-formatted output
// to out and mirroring every event into the ring buffer.
func NewLogger(out io.Writer, rbuf *RingBuffer, level zerolog.Level) zerolog.Logger {
	console := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	mirror := zerolog.ConsoleWriter{Out: rbuf, TimeFormat: "2006-01-02 15:04:05", NoColor: true}

	return zerolog.New(zerolog.MultiLevelWriter(console, mirror)).
		Level(level).
		With().Timestamp().
		Logger()
}

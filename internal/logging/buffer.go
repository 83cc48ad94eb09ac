package logging

import (
	"bytes"
	"strings"
	"sync"
)

const defaultBufferLines = 1000

// Buffer keeps the most recent log lines in memory for display.
type Buffer struct {
	mu      sync.Mutex
	lines   []string
	max     int
	partial []byte
}

func NewBuffer(max int) *Buffer {
	if max <= 0 {
		max = defaultBufferLines
	}
	return &Buffer{max: max}
}

// Write splits p into lines. A trailing fragment without a newline is
// held until the rest of the line arrives.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data := append(b.partial, p...)
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		b.lines = append(b.lines, strings.TrimRight(string(data[:i]), "\r"))
		data = data[i+1:]
	}
	b.partial = append([]byte(nil), data...)

	// Cap buffer size
	if over := len(b.lines) - b.max; over > 0 {
		b.lines = append([]string(nil), b.lines[over:]...)
	}
	return len(p), nil
}

// Lines returns up to n of the most recent lines, oldest first. n <= 0
// returns all of them.
func (b *Buffer) Lines(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := 0
	if n > 0 && len(b.lines) > n {
		start = len(b.lines) - n
	}
	return append([]string(nil), b.lines[start:]...)
}

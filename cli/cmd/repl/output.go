package repl

import (
	"bytes"
	"strings"
	"sync"
)

// Output collects script output between redraws. Background tasks may
// write to it at any time.
type Output struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// NewOutput returns an empty Output.
func NewOutput() *Output { return &Output{} }

// Write implements io.Writer.
func (o *Output) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.buf.Write(p)
}

// Drain returns and clears the collected output without its trailing
// newline.
func (o *Output) Drain() string {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := strings.TrimSuffix(o.buf.String(), "\n")
	o.buf.Reset()

	return s
}

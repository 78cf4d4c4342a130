// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DataPrefix marks an event line.
	DataPrefix = "data:"

	// DoneSentinel terminates a stream.
	DoneSentinel = "[DONE]"

	// readSize is the size of each read from the underlying body.
	readSize = 4096

	// MaxLineSize bounds a single buffered line. A full non-streaming reply
	// arrives on one line, so this stays above the upstream response limit.
	MaxLineSize = 16 * 1024 * 1024
)

// =============================================================================
// TYPES
// =============================================================================

// Event is one snapshot of the accumulated reply.
type Event struct {
	// Delta is the fragment that produced this snapshot.
	Delta string

	// Text is every fragment so far, concatenated in order.
	Text string
}

// AbortedError reports a read failure in the middle of a stream. Snapshots
// returned before it remain valid.
type AbortedError struct {
	Partial string
	Err     error
}

// Error implements the error interface.
func (e *AbortedError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream aborted after %d bytes: %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream aborted: %v", e.Err)
}

// Unwrap returns the underlying read error.
func (e *AbortedError) Unwrap() error {
	return e.Err
}

// ErrLineTooLong aborts a stream whose line exceeds MaxLineSize.
var ErrLineTooLong = errors.New("stream line too long")

// payload covers every JSON shape the reconciler extracts text from.
type payload struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Content string `json:"content"`
}

// text returns the first non-empty content in priority order:
// choices[0].delta, choices[0].message, then the top-level field.
func (p *payload) text() string {
	if len(p.Choices) > 0 {
		if c := p.Choices[0].Delta.Content; c != "" {
			return c
		}
		if c := p.Choices[0].Message.Content; c != "" {
			return c
		}
	}
	return p.Content
}

// =============================================================================
// RECONCILER
// =============================================================================

// Reconciler is a pull iterator over the snapshots of a streamed reply.
// It is not safe for concurrent use.
type Reconciler struct {
	src     io.Reader
	chunk   []byte
	line    []byte // pending bytes of an incomplete line
	acc     strings.Builder
	queue   []Event
	done    bool // sentinel seen or source exhausted
	err     error
	dropped int
}

// NewReconciler wraps r. If r is an io.Closer, Close closes it.
func NewReconciler(r io.Reader) *Reconciler {
	return &Reconciler{
		src:   r,
		chunk: make([]byte, readSize),
	}
}

// Next returns the next snapshot. It returns io.EOF once the stream has
// ended, either on the sentinel or when the source is exhausted. A read
// failure or an oversized line is returned as *AbortedError, and every later
// call returns the same error.
func (r *Reconciler) Next() (Event, error) {
	for {
		if len(r.queue) > 0 {
			ev := r.queue[0]
			r.queue = r.queue[1:]
			return ev, nil
		}
		if r.err != nil {
			return Event{}, r.err
		}
		if r.done {
			return Event{}, io.EOF
		}
		r.fill()
	}
}

// Text returns everything accumulated so far.
func (r *Reconciler) Text() string {
	return r.acc.String()
}

// Dropped returns how many non-empty lines were discarded as unparseable.
func (r *Reconciler) Dropped() int {
	return r.dropped
}

// Close releases the underlying source.
func (r *Reconciler) Close() error {
	if c, ok := r.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Collect drains the reconciler and returns the final text.
func (r *Reconciler) Collect() (string, error) {
	for {
		if _, err := r.Next(); err != nil {
			if errors.Is(err, io.EOF) {
				return r.Text(), nil
			}
			return r.Text(), err
		}
	}
}

// fill performs one read and processes every complete line it yields.
func (r *Reconciler) fill() {
	n, err := r.src.Read(r.chunk)
	if n > 0 && !r.consume(r.chunk[:n]) {
		return
	}
	if err == nil {
		return
	}
	if errors.Is(err, io.EOF) {
		// A trailing line without a newline is complete once the source ends.
		if len(r.line) > 0 {
			r.processLine(r.line)
		}
		r.line = r.line[:0]
		r.done = true
		return
	}
	r.err = &AbortedError{Partial: r.acc.String(), Err: err}
}

// consume appends data to the line buffer and handles each complete line.
// Once the sentinel is seen, lines already buffered are still drained but no
// further reads happen. It reports false if the stream was aborted.
func (r *Reconciler) consume(data []byte) bool {
	for len(data) > 0 {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			return r.buffer(data)
		}
		if !r.buffer(data[:i]) {
			return false
		}
		r.processLine(r.line)
		r.line = r.line[:0]
		data = data[i+1:]
	}
	return true
}

// buffer appends b to the pending line, aborting the stream once the line
// outgrows MaxLineSize.
func (r *Reconciler) buffer(b []byte) bool {
	if len(r.line)+len(b) > MaxLineSize {
		r.line = nil
		r.err = &AbortedError{Partial: r.acc.String(), Err: ErrLineTooLong}
		return false
	}
	r.line = append(r.line, b...)
	return true
}

// processLine applies one complete line to the accumulator.
func (r *Reconciler) processLine(raw []byte) {
	line := strings.TrimSpace(string(raw))
	if line == "" {
		return
	}

	var data string
	switch {
	case strings.HasPrefix(line, DataPrefix):
		data = strings.TrimPrefix(line[len(DataPrefix):], " ")
		if data == DoneSentinel {
			r.done = true
			return
		}
	case strings.HasPrefix(line, "{"):
		data = line
	default:
		// Comments, event names and other SSE fields carry no text.
		return
	}

	var p payload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		r.dropped++
		return
	}
	if delta := p.text(); delta != "" {
		r.acc.WriteString(delta)
		r.queue = append(r.queue, Event{Delta: delta, Text: r.acc.String()})
	}
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// =============================================================================
// WRITER
// =============================================================================

// Writer encodes reply fragments in the local SSE framing.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
	events  int
}

// NewWriter creates a Writer. If w is an http.Flusher, every event is flushed
// as soon as it is written.
func NewWriter(w io.Writer) *Writer {
	f, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: f}
}

// SetHeaders applies the response headers for an event stream.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
}

// WriteDelta emits one content event.
func (w *Writer) WriteDelta(content string) error {
	line, err := encodeDelta(content)
	if err != nil {
		return err
	}
	return w.write(line)
}

// WriteDone emits the terminator event.
func (w *Writer) WriteDone() error {
	return w.write([]byte(DataPrefix + " " + DoneSentinel + "\n\n"))
}

// Events returns the number of events written.
func (w *Writer) Events() int {
	return w.events
}

func (w *Writer) write(b []byte) error {
	if _, err := w.w.Write(b); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	w.events++
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}

// Relay copies every snapshot delta from r to w and finishes with the
// terminator. It returns the reconciler's error, if any, without writing the
// terminator.
func Relay(r *Reconciler, w *Writer) (string, error) {
	for {
		ev, err := r.Next()
		if err == io.EOF {
			return r.Text(), w.WriteDone()
		}
		if err != nil {
			return r.Text(), err
		}
		if err := w.WriteDelta(ev.Delta); err != nil {
			return r.Text(), err
		}
	}
}

// SingleChunk builds a complete stream body carrying content as exactly one
// delta event followed by the terminator.
func SingleChunk(content string) []byte {
	var buf bytes.Buffer
	line, err := encodeDelta(content)
	if err != nil {
		// Strings always encode.
		panic(err)
	}
	buf.Write(line)
	buf.WriteString(DataPrefix + " " + DoneSentinel + "\n\n")
	return buf.Bytes()
}

// encodeDelta renders `data: {"content":...}` followed by a blank line.
func encodeDelta(content string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(DataPrefix + " ")
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(struct {
		Content string `json:"content"`
	}{content}); err != nil {
		return nil, fmt.Errorf("encode delta: %w", err)
	}
	// Encode already wrote one newline.
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

// collectAll drains r and returns every snapshot text plus the final error.
func collectAll(t *testing.T, r *Reconciler) ([]Event, error) {
	t.Helper()
	var events []Event
	for i := 0; i < 10000; i++ {
		ev, err := r.Next()
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
	t.Fatal("reconciler did not terminate")
	return nil, nil
}

// =============================================================================
// ACCUMULATION TESTS
// =============================================================================

func TestReconciler_AccumulatesDeltas(t *testing.T) {
	body := `data: {"choices":[{"delta":{"content":"Hel"}}]}` + "\n\n" +
		`data: {"choices":[{"delta":{"content":"lo"}}]}` + "\n\n" +
		`data: {"choices":[{"delta":{"content":", world"}}]}` + "\n\n" +
		"data: [DONE]\n\n"

	events, err := collectAll(t, NewReconciler(strings.NewReader(body)))
	if err != io.EOF {
		t.Fatalf("final error = %v, want io.EOF", err)
	}

	want := []Event{
		{Delta: "Hel", Text: "Hel"},
		{Delta: "lo", Text: "Hello"},
		{Delta: ", world", Text: "Hello, world"},
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event[%d] = %+v, want %+v", i, events[i], want[i])
		}
	}
}

func TestReconciler_PayloadShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "streaming delta",
			body: `data: {"choices":[{"delta":{"content":"a"}}]}` + "\n",
			want: "a",
		},
		{
			name: "non-streaming message",
			body: `data: {"choices":[{"message":{"content":"full"}}]}` + "\n",
			want: "full",
		},
		{
			name: "delta preferred over message",
			body: `data: {"choices":[{"delta":{"content":"d"},"message":{"content":"m"}}]}` + "\n",
			want: "d",
		},
		{
			name: "empty delta falls back to message",
			body: `data: {"choices":[{"delta":{"content":""},"message":{"content":"m"}}]}` + "\n",
			want: "m",
		},
		{
			name: "local framing",
			body: `data: {"content":"local"}` + "\n",
			want: "local",
		},
		{
			name: "no space after marker",
			body: `data:{"content":"tight"}` + "\n",
			want: "tight",
		},
		{
			name: "bare json body",
			body: `{"choices":[{"message":{"content":"raw"}}]}` + "\n",
			want: "raw",
		},
		{
			name: "bare json without trailing newline",
			body: `{"choices":[{"message":{"content":"raw"}}]}`,
			want: "raw",
		},
		{
			name: "crlf line endings",
			body: "data: {\"content\":\"x\"}\r\n\r\ndata: {\"content\":\"y\"}\r\n\r\n",
			want: "xy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewReconciler(strings.NewReader(tt.body)).Collect()
			if err != nil {
				t.Fatalf("Collect() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Collect() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReconciler_MalformedLinesIgnored(t *testing.T) {
	body := `data: {"content":"a"}` + "\n\n" +
		"data: {not json\n\n" +
		": keep-alive comment\n\n" +
		"event: message\n" +
		"data: 42\n\n" +
		"data: \"just a string\"\n\n" +
		"garbage line\n" +
		`data: {"choices":"wrong type"}` + "\n\n" +
		`data: {"content":"b"}` + "\n\n" +
		"data: [DONE]\n\n"

	r := NewReconciler(strings.NewReader(body))
	events, err := collectAll(t, r)
	if err != io.EOF {
		t.Fatalf("final error = %v, want io.EOF", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(events), events)
	}
	if r.Text() != "ab" {
		t.Errorf("Text() = %q, want %q", r.Text(), "ab")
	}
	if r.Dropped() == 0 {
		t.Error("Dropped() = 0, want malformed lines counted")
	}
}

func TestReconciler_EmptyContentEmitsNothing(t *testing.T) {
	body := `data: {"choices":[{"delta":{"role":"assistant"}}]}` + "\n\n" +
		`data: {"content":""}` + "\n\n" +
		"data: [DONE]\n\n"

	events, err := collectAll(t, NewReconciler(strings.NewReader(body)))
	if err != io.EOF {
		t.Fatalf("final error = %v, want io.EOF", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events, want 0", len(events))
	}
}

// =============================================================================
// FRAMING TESTS
// =============================================================================

func TestReconciler_SplitInvariance(t *testing.T) {
	body := `data: {"choices":[{"delta":{"content":"Grüße, "}}]}` + "\n\n" +
		`data: {"choices":[{"delta":{"content":"日本語 "}}]}` + "\n\n" +
		"data: {broken\n\n" +
		`data: {"choices":[{"delta":{"content":"and emoji 🎉"}}]}` + "\n\n" +
		"data: [DONE]\n\n"

	whole, err := NewReconciler(strings.NewReader(body)).Collect()
	if err != nil {
		t.Fatalf("whole Collect() error = %v", err)
	}

	oneByte, err := NewReconciler(iotest.OneByteReader(strings.NewReader(body))).Collect()
	if err != nil {
		t.Fatalf("one-byte Collect() error = %v", err)
	}
	half, err := NewReconciler(iotest.HalfReader(strings.NewReader(body))).Collect()
	if err != nil {
		t.Fatalf("half Collect() error = %v", err)
	}

	want := "Grüße, 日本語 and emoji 🎉"
	for name, got := range map[string]string{"whole": whole, "one-byte": oneByte, "half": half} {
		if got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
}

func TestReconciler_SplitInvarianceAllOffsets(t *testing.T) {
	body := `data: {"content":"alpha "}` + "\n\n" +
		`data: {"content":"beta "}` + "\n\n" +
		`data: {"content":"gamma"}` + "\n\n" +
		"data: [DONE]\n\n"

	for cut := 1; cut < len(body); cut++ {
		src := io.MultiReader(strings.NewReader(body[:cut]), strings.NewReader(body[cut:]))
		got, err := NewReconciler(src).Collect()
		if err != nil {
			t.Fatalf("cut %d: error = %v", cut, err)
		}
		if got != "alpha beta gamma" {
			t.Errorf("cut %d: got %q", cut, got)
		}
	}
}

func TestReconciler_SnapshotsArePrefixConcatenation(t *testing.T) {
	deltas := []string{"one", " two", " three", "", " four"}
	var b strings.Builder
	for _, d := range deltas {
		b.WriteString(`data: {"content":"` + d + `"}` + "\n\n")
	}
	b.WriteString("data: [DONE]\n\n")

	events, _ := collectAll(t, NewReconciler(iotest.OneByteReader(strings.NewReader(b.String()))))
	var want strings.Builder
	i := 0
	for _, d := range deltas {
		if d == "" {
			continue
		}
		want.WriteString(d)
		if events[i].Text != want.String() {
			t.Errorf("event[%d].Text = %q, want %q", i, events[i].Text, want.String())
		}
		i++
	}
	if i != len(events) {
		t.Errorf("got %d events, want %d", len(events), i)
	}
}

func TestReconciler_SentinelDrainsBufferedLines(t *testing.T) {
	// Lines already received with the sentinel are still applied; nothing
	// further is read from the source.
	src := io.MultiReader(
		strings.NewReader("data: {\"content\":\"a\"}\n\ndata: [DONE]\n\ndata: {\"content\":\"b\"}\n\n"),
		iotest.ErrReader(errors.New("must not be read")),
	)
	got, err := NewReconciler(src).Collect()
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if got != "ab" {
		t.Errorf("Collect() = %q, want %q", got, "ab")
	}
}

func TestReconciler_EOFWithoutSentinel(t *testing.T) {
	r := NewReconciler(strings.NewReader(`data: {"content":"x"}` + "\n\n"))
	events, err := collectAll(t, r)
	if err != io.EOF {
		t.Fatalf("error = %v, want io.EOF", err)
	}
	if len(events) != 1 || events[0].Text != "x" {
		t.Errorf("events = %+v", events)
	}
	// io.EOF is sticky.
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("second Next() error = %v, want io.EOF", err)
	}
}

func TestReconciler_LargeSingleChunk(t *testing.T) {
	// A non-streaming fallback reply arrives as one line.
	want := strings.Repeat("a", 2*1024*1024+10)
	got, err := NewReconciler(bytes.NewReader(SingleChunk(want))).Collect()
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(got) != len(want) {
		t.Errorf("len(Collect()) = %d, want %d", len(got), len(want))
	}
}

func TestReconciler_OversizedLineAborts(t *testing.T) {
	body := `data: {"content":"ok"}` + "\n\n" +
		`data: {"content":"` + strings.Repeat("x", MaxLineSize) + `"}` + "\n\n"
	r := NewReconciler(strings.NewReader(body))
	got, err := r.Collect()

	var aborted *AbortedError
	if !errors.As(err, &aborted) {
		t.Fatalf("Collect() error = %v, want *AbortedError", err)
	}
	if !errors.Is(err, ErrLineTooLong) {
		t.Errorf("Collect() error = %v, want ErrLineTooLong", err)
	}
	if got != "ok" || aborted.Partial != "ok" {
		t.Errorf("partial = %q/%q, want %q", got, aborted.Partial, "ok")
	}
}

// =============================================================================
// ABORT TESTS
// =============================================================================

func TestReconciler_ReadErrorAborts(t *testing.T) {
	boom := errors.New("connection reset")
	src := io.MultiReader(
		strings.NewReader("data: {\"content\":\"partial\"}\n\ndata: {\"con"),
		iotest.ErrReader(boom),
	)
	r := NewReconciler(src)

	ev, err := r.Next()
	if err != nil {
		t.Fatalf("first Next() error = %v", err)
	}
	if ev.Text != "partial" {
		t.Errorf("first snapshot = %q, want %q", ev.Text, "partial")
	}

	_, err = r.Next()
	var aborted *AbortedError
	if !errors.As(err, &aborted) {
		t.Fatalf("error = %v, want *AbortedError", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("errors.Is(err, boom) = false")
	}
	if aborted.Partial != "partial" {
		t.Errorf("Partial = %q, want %q", aborted.Partial, "partial")
	}
	if _, again := r.Next(); again != err {
		t.Errorf("abort error not sticky: %v", again)
	}
	if r.Text() != "partial" {
		t.Errorf("Text() = %q after abort", r.Text())
	}
}

type closeRecorder struct {
	io.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestReconciler_Close(t *testing.T) {
	src := &closeRecorder{Reader: strings.NewReader("")}
	if err := NewReconciler(src).Close(); err != nil {
		t.Fatal(err)
	}
	if !src.closed {
		t.Error("underlying body not closed")
	}
	if err := NewReconciler(strings.NewReader("")).Close(); err != nil {
		t.Errorf("Close() on plain reader = %v", err)
	}
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigchat/internal/cloud"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/storage"
	"github.com/jeranaias/rigchat/internal/stream"
	"github.com/jeranaias/rigchat/internal/title"
)

// =============================================================================
// FAKES
// =============================================================================

// fakeGateway answers each Stream call with the next scripted response.
type fakeGateway struct {
	mu      sync.Mutex
	calls   []cloud.Request
	respond func(ctx context.Context, call int, r cloud.Request) (*stream.Reconciler, error)
}

func (g *fakeGateway) Stream(ctx context.Context, r cloud.Request) (*stream.Reconciler, error) {
	g.mu.Lock()
	g.calls = append(g.calls, r)
	n := len(g.calls)
	g.mu.Unlock()
	return g.respond(ctx, n, r)
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// sse renders deltas in the local framing followed by the terminator.
func sse(deltas ...string) string {
	var b strings.Builder
	w := stream.NewWriter(&b)
	for _, d := range deltas {
		_ = w.WriteDelta(d)
	}
	_ = w.WriteDone()
	return b.String()
}

func replying(deltas ...string) *fakeGateway {
	return &fakeGateway{respond: func(ctx context.Context, call int, r cloud.Request) (*stream.Reconciler, error) {
		return stream.NewReconciler(strings.NewReader(sse(deltas...))), nil
	}}
}

type fakeTitler struct {
	mu    sync.Mutex
	title string
	err   error
	calls [][]model.ChatMessage
}

func (f *fakeTitler) Generate(ctx context.Context, msgs []model.ChatMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, msgs)
	return f.title, f.err
}

func (f *fakeTitler) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// recorder collects observer snapshots.
type recorder struct {
	mu    sync.Mutex
	snaps []model.Conversation
	seen  chan struct{}
}

func newRecorder() *recorder {
	return &recorder{seen: make(chan struct{}, 100)}
}

func (r *recorder) observe(c model.Conversation) {
	r.mu.Lock()
	r.snaps = append(r.snaps, c)
	r.mu.Unlock()
	select {
	case r.seen <- struct{}{}:
	default:
	}
}

func (r *recorder) all() []model.Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Conversation(nil), r.snaps...)
}

type fixture struct {
	blobs  *storage.MemoryStore
	store  *storage.ConversationStore
	ws     *Workspace
	titler *fakeTitler
	clock  int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{blobs: storage.NewMemoryStore(), titler: &fakeTitler{title: "Generated Title"}}
	f.store = storage.NewConversationStore(f.blobs, zerolog.Nop())
	f.ws = NewWorkspace(f.store, zerolog.Nop()).WithClock(func() int64 {
		f.clock++
		return f.clock
	})
	return f
}

func (f *fixture) engine(g Gateway) *Engine {
	return New(f.ws, g, f.titler, zerolog.Nop())
}

func (f *fixture) newConversation(t *testing.T) model.Conversation {
	t.Helper()
	conv, err := f.ws.Create(context.Background(), "grok-4")
	require.NoError(t, err)
	return conv
}

func (f *fixture) persisted(t *testing.T, id string) model.Conversation {
	t.Helper()
	convs, err := f.store.Load(context.Background())
	require.NoError(t, err)
	for _, c := range convs {
		if c.ID == id {
			return c
		}
	}
	t.Fatalf("conversation %s not persisted", id)
	return model.Conversation{}
}

// =============================================================================
// SEND TESTS
// =============================================================================

func TestSend_StreamsAndTitles(t *testing.T) {
	f := newFixture(t)
	g := replying("Hel", "lo", "!")
	e := f.engine(g)
	conv := f.newConversation(t)
	rec := newRecorder()

	turn, err := e.Send(context.Background(), conv.ID, "Say hello", rec.observe)
	require.NoError(t, err)
	require.NoError(t, turn.Err)
	require.False(t, turn.Cancelled)
	require.Equal(t, "Hello!", turn.Reply)
	require.True(t, turn.Titled)
	require.NoError(t, turn.TitleErr)

	final := turn.Conversation
	require.Len(t, final.Messages, 2)
	assert.Equal(t, model.RoleUser, final.Messages[0].Role)
	assert.Equal(t, "Say hello", final.Messages[0].Content)
	assert.Equal(t, model.RoleAssistant, final.Messages[1].Role)
	assert.Equal(t, "Hello!", final.Messages[1].Content)
	assert.Equal(t, "Generated Title", final.Title)

	// The request carried the full history and the conversation's model.
	require.Equal(t, 1, g.callCount())
	assert.Equal(t, "grok-4", g.calls[0].Model)
	assert.Equal(t, []model.ChatMessage{{Role: model.RoleUser, Content: "Say hello"}}, g.calls[0].Messages)

	// Title saw both messages.
	require.Equal(t, 1, f.titler.callCount())
	assert.Len(t, f.titler.calls[0], 2)

	// Persisted state matches the final snapshot.
	assert.Equal(t, final, f.persisted(t, conv.ID))
}

func TestSend_SnapshotsSupersedeEachOther(t *testing.T) {
	f := newFixture(t)
	e := f.engine(replying("a", "b", "c"))
	conv := f.newConversation(t)
	rec := newRecorder()

	_, err := e.Send(context.Background(), conv.ID, "go", rec.observe)
	require.NoError(t, err)

	snaps := rec.all()
	// user message, three deltas, final content, title.
	require.Len(t, snaps, 6)
	require.Len(t, snaps[0].Messages, 1, "user message is committed before streaming")

	var placeholderID string
	want := []string{"a", "ab", "abc", "abc"}
	for i, text := range want {
		s := snaps[i+1]
		require.Len(t, s.Messages, 2, "snapshot %d", i+1)
		reply := s.Messages[1]
		assert.Equal(t, text, reply.Content, "snapshot %d", i+1)
		if placeholderID == "" {
			placeholderID = reply.ID
		}
		assert.Equal(t, placeholderID, reply.ID, "placeholder id must be stable")
	}

	var last int64
	for i, s := range snaps {
		assert.GreaterOrEqual(t, s.UpdatedAt, last, "updatedAt decreased at snapshot %d", i)
		last = s.UpdatedAt
	}
}

func TestSend_TitleOnlyOnce(t *testing.T) {
	f := newFixture(t)
	e := f.engine(replying("ok"))
	conv := f.newConversation(t)

	_, err := e.Send(context.Background(), conv.ID, "first", nil)
	require.NoError(t, err)
	turn, err := e.Send(context.Background(), conv.ID, "second", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, f.titler.callCount())
	assert.False(t, turn.Titled)
	assert.Len(t, turn.Conversation.Messages, 4)
}

func TestSend_TitleFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.titler.err = errors.New("title service down")
	e := f.engine(replying("reply"))
	conv := f.newConversation(t)

	turn, err := e.Send(context.Background(), conv.ID, "hi", nil)
	require.NoError(t, err)
	require.NoError(t, turn.Err)
	require.True(t, turn.Titled)
	require.Error(t, turn.TitleErr)
	assert.Equal(t, model.DefaultTitle, turn.Conversation.Title)
	assert.Equal(t, "reply", turn.Conversation.Messages[1].Content)

	// A later send retries titling.
	f.titler.err = nil
	turn, err = e.Send(context.Background(), conv.ID, "again", nil)
	require.NoError(t, err)
	assert.Equal(t, "Generated Title", turn.Conversation.Title)
}

func TestSend_EmptyReplyStillRecorded(t *testing.T) {
	f := newFixture(t)
	e := f.engine(replying())
	conv := f.newConversation(t)

	turn, err := e.Send(context.Background(), conv.ID, "silence?", nil)
	require.NoError(t, err)
	require.Len(t, turn.Conversation.Messages, 2)
	assert.Equal(t, "", turn.Conversation.Messages[1].Content)
	assert.Equal(t, model.RoleAssistant, turn.Conversation.Messages[1].Role)
}

func TestSend_UpstreamErrorBecomesMessage(t *testing.T) {
	f := newFixture(t)
	g := &fakeGateway{respond: func(ctx context.Context, call int, r cloud.Request) (*stream.Reconciler, error) {
		return nil, &cloud.UpstreamError{Status: 500, Body: "boom"}
	}}
	e := f.engine(g)
	conv := f.newConversation(t)

	turn, err := e.Send(context.Background(), conv.ID, "hi", nil)
	require.NoError(t, err, "upstream failures do not fail the call")
	require.Error(t, turn.Err)

	msgs := turn.Conversation.Messages
	require.Len(t, msgs, 2)
	assert.True(t, msgs[1].IsError())
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Error: upstream error (HTTP 500): boom", msgs[1].Content)
	assert.Equal(t, 0, f.titler.callCount(), "no title after a failed turn")
	assert.Equal(t, turn.Conversation, f.persisted(t, conv.ID))
}

func TestSend_AbortReplacesPartialReply(t *testing.T) {
	f := newFixture(t)
	g := &fakeGateway{respond: func(ctx context.Context, call int, r cloud.Request) (*stream.Reconciler, error) {
		body := io.MultiReader(
			strings.NewReader(`data: {"content":"partial"}`+"\n\n"),
			errReader{errors.New("connection reset")},
		)
		return stream.NewReconciler(body), nil
	}}
	e := f.engine(g)
	conv := f.newConversation(t)
	rec := newRecorder()

	turn, err := e.Send(context.Background(), conv.ID, "hi", rec.observe)
	require.NoError(t, err)

	var aborted *stream.AbortedError
	require.ErrorAs(t, turn.Err, &aborted)

	msgs := turn.Conversation.Messages
	require.Len(t, msgs, 2, "error message replaces the partial reply")
	assert.Equal(t, "hi", msgs[0].Content)
	assert.True(t, msgs[1].IsError())
	assert.Contains(t, msgs[1].Content, "connection reset")

	// The partial snapshot was shown before the failure.
	snaps := rec.all()
	require.GreaterOrEqual(t, len(snaps), 3)
	assert.Equal(t, "partial", snaps[1].Messages[1].Content)
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

// ctxPipe returns a reader fed by the returned writer that fails with the
// context error once ctx is cancelled, as an HTTP body would.
func ctxPipe(ctx context.Context) (io.Reader, *io.PipeWriter) {
	pr, pw := io.Pipe()
	go func() {
		<-ctx.Done()
		pr.CloseWithError(ctx.Err())
	}()
	return pr, pw
}

func TestSend_CancelLeavesLastPersistedState(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	writers := make(chan *io.PipeWriter, 1)
	g := &fakeGateway{respond: func(ctx context.Context, call int, r cloud.Request) (*stream.Reconciler, error) {
		body, pw := ctxPipe(ctx)
		writers <- pw
		return stream.NewReconciler(body), nil
	}}
	e := f.engine(g)
	conv := f.newConversation(t)
	rec := newRecorder()

	done := make(chan Turn, 1)
	go func() {
		turn, err := e.Send(ctx, conv.ID, "tell me a story", rec.observe)
		assert.NoError(t, err)
		done <- turn
	}()

	// Wait for the stream to open, then feed one delta.
	pw := <-writers
	_, err := pw.Write([]byte(`data: {"content":"Once upon"}` + "\n\n"))
	require.NoError(t, err)
	waitSnapshots(t, rec, 2)
	cancel()

	var turn Turn
	select {
	case turn = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("send did not stop after cancel")
	}

	require.True(t, turn.Cancelled)
	require.NoError(t, turn.Err)
	msgs := turn.Conversation.Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, "Once upon", msgs[1].Content)
	assert.False(t, msgs[1].IsError(), "cancellation adds no error message")
	assert.Equal(t, 0, f.titler.callCount())
	assert.Equal(t, turn.Conversation, f.persisted(t, conv.ID))
	assert.False(t, f.ws.Busy(conv.ID))
}

func waitSnapshots(t *testing.T, rec *recorder, n int) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for len(rec.all()) < n {
		select {
		case <-rec.seen:
		case <-deadline:
			t.Fatalf("timed out waiting for %d snapshots, have %d", n, len(rec.all()))
		}
	}
}

func TestSend_Validation(t *testing.T) {
	f := newFixture(t)
	g := replying("x")
	e := f.engine(g)
	conv := f.newConversation(t)

	_, err := e.Send(context.Background(), conv.ID, "  \n ", nil)
	require.ErrorIs(t, err, ErrEmptyMessage)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = e.Send(context.Background(), "conv-missing", "hi", nil)
	require.ErrorIs(t, err, storage.ErrConversationNotFound)

	assert.Equal(t, 0, g.callCount(), "validation failures make no network call")
	got, _ := f.ws.Get(conv.ID)
	assert.Empty(t, got.Messages)
}

func TestSend_RejectsConcurrentSend(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var pw *io.PipeWriter
	started := make(chan struct{})
	g := &fakeGateway{respond: func(ctx context.Context, call int, r cloud.Request) (*stream.Reconciler, error) {
		var body io.Reader
		body, pw = ctxPipe(ctx)
		close(started)
		return stream.NewReconciler(body), nil
	}}
	e := f.engine(g)
	conv := f.newConversation(t)
	other := f.newConversation(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = e.Send(ctx, conv.ID, "first", nil)
	}()
	<-started

	_, err := e.Send(context.Background(), conv.ID, "second", nil)
	require.ErrorIs(t, err, ErrSendInProgress)
	inFlight, err := f.ws.Get(conv.ID)
	require.NoError(t, err)
	_, err = e.Edit(context.Background(), conv.ID, inFlight.Messages[0].ID, "x", nil)
	require.ErrorIs(t, err, ErrSendInProgress)

	// Another conversation is unaffected.
	e2 := f.engine(replying("fine"))
	turn, err := e2.Send(context.Background(), other.ID, "parallel", nil)
	require.NoError(t, err)
	assert.Equal(t, "fine", turn.Reply)

	_, _ = pw.Write([]byte(sse("done")))
	_ = pw.Close()
	<-done
	assert.False(t, f.ws.Busy(conv.ID))
}

func TestSend_RetriedSendsKeepEveryTurn(t *testing.T) {
	f := newFixture(t)
	var clock atomic.Int64
	f.ws.WithClock(func() int64 { return clock.Add(1) })
	e := f.engine(replying("reply"))

	for i := 0; i < 50; i++ {
		conv := f.newConversation(t)
		start := make(chan struct{})
		var wg sync.WaitGroup
		for _, content := range []string{"A", "B"} {
			wg.Add(1)
			go func(content string) {
				defer wg.Done()
				<-start
				for {
					_, err := e.Send(context.Background(), conv.ID, content, nil)
					if !errors.Is(err, ErrSendInProgress) {
						assert.NoError(t, err)
						return
					}
					runtime.Gosched()
				}
			}(content)
		}
		close(start)
		wg.Wait()

		got, err := f.ws.Get(conv.ID)
		require.NoError(t, err)
		roles := make([]model.Role, len(got.Messages))
		for j, m := range got.Messages {
			roles[j] = m.Role
		}
		require.Equal(t, []model.Role{model.RoleUser, model.RoleAssistant, model.RoleUser, model.RoleAssistant}, roles,
			"iteration %d lost a turn", i)
	}
}

func TestSend_OversizedLineBecomesErrorMessage(t *testing.T) {
	f := newFixture(t)
	g := &fakeGateway{respond: func(ctx context.Context, call int, r cloud.Request) (*stream.Reconciler, error) {
		body := `data: {"content":"` + strings.Repeat("x", stream.MaxLineSize) + `"}` + "\n\n"
		return stream.NewReconciler(strings.NewReader(body)), nil
	}}
	e := f.engine(g)
	conv := f.newConversation(t)

	turn, err := e.Send(context.Background(), conv.ID, "hi", nil)
	require.NoError(t, err)
	require.ErrorIs(t, turn.Err, stream.ErrLineTooLong)
	require.Len(t, turn.Conversation.Messages, 2)
	assert.True(t, turn.Conversation.Messages[1].IsError())
}

func TestSend_ProvisionalTitle(t *testing.T) {
	f := newFixture(t)
	f.titler.err = errors.New("title service down")
	e := f.engine(replying("ok")).WithProvisionalTitles(true)
	conv := f.newConversation(t)
	rec := newRecorder()

	long := strings.Repeat("word ", 20)
	turn, err := e.Send(context.Background(), conv.ID, long, rec.observe)
	require.NoError(t, err)

	want := strings.TrimSpace(strings.Repeat("word ", 10))
	assert.Equal(t, want, rec.all()[0].Title)
	assert.True(t, turn.Titled)
	assert.Equal(t, want, turn.Conversation.Title)
	assert.Equal(t, want, f.persisted(t, conv.ID).Title)

	// The generated title replaces the provisional one.
	f.titler.err = nil
	other := f.newConversation(t)
	turn, err = e.Send(context.Background(), other.ID, "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "Generated Title", turn.Conversation.Title)
}

func TestSend_ProvisionalTitleOffByDefault(t *testing.T) {
	f := newFixture(t)
	f.titler.err = errors.New("title service down")
	e := f.engine(replying("ok"))
	conv := f.newConversation(t)
	rec := newRecorder()

	_, err := e.Send(context.Background(), conv.ID, "hello", rec.observe)
	require.NoError(t, err)
	for _, snap := range rec.all() {
		assert.Equal(t, model.DefaultTitle, snap.Title)
	}
}

func TestSend_PersistenceFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	e := f.engine(replying("still works"))
	conv := f.newConversation(t)
	f.blobs.FailWrites(errors.New("quota exceeded"))

	turn, err := e.Send(context.Background(), conv.ID, "hi", nil)
	require.NoError(t, err)
	require.NoError(t, turn.Err)
	assert.Equal(t, "still works", turn.Reply)

	inMemory, err := f.ws.Get(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, turn.Conversation, inMemory)
}

// =============================================================================
// EDIT TESTS
// =============================================================================

func seedConversation(t *testing.T, f *fixture, contents ...string) model.Conversation {
	t.Helper()
	conv := f.newConversation(t)
	for i, c := range contents {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		ts := int64(1000 + i)
		conv = conv.WithMessage(model.NewMessage(role, c, ts), ts)
	}
	conv = conv.WithTitle("Seeded", 2000)
	require.NoError(t, f.ws.Put(context.Background(), conv))
	return conv
}

func TestEdit_TruncatesAndResends(t *testing.T) {
	f := newFixture(t)
	g := replying("new answer")
	e := f.engine(g)
	conv := seedConversation(t, f, "q1", "a1", "q2", "a2", "q3", "a3")
	target := conv.Messages[2]
	rec := newRecorder()

	turn, err := e.Edit(context.Background(), conv.ID, target.ID, "q2 edited", rec.observe)
	require.NoError(t, err)

	// Before the reply: exactly index+1 entries.
	first := rec.all()[0]
	require.Len(t, first.Messages, 3)
	edited := first.Messages[2]
	assert.Equal(t, target.ID, edited.ID, "edited message keeps its id")
	assert.Equal(t, "q2 edited", edited.Content)
	assert.Equal(t, model.RoleUser, edited.Role)
	assert.NotEqual(t, target.Timestamp, edited.Timestamp)

	msgs := turn.Conversation.Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, []string{"q1", "a1", "q2 edited", "new answer"},
		[]string{msgs[0].Content, msgs[1].Content, msgs[2].Content, msgs[3].Content})

	// The request history was the truncated sequence.
	require.Len(t, g.calls[0].Messages, 3)
	assert.Equal(t, "q2 edited", g.calls[0].Messages[2].Content)

	// Title is not default, so no titling.
	assert.False(t, turn.Titled)
}

func TestEdit_FirstMessage(t *testing.T) {
	f := newFixture(t)
	e := f.engine(replying("r"))
	conv := seedConversation(t, f, "q1", "a1", "q2", "a2")

	turn, err := e.Edit(context.Background(), conv.ID, conv.Messages[0].ID, "only", nil)
	require.NoError(t, err)
	require.Len(t, turn.Conversation.Messages, 2)
	assert.Equal(t, "only", turn.Conversation.Messages[0].Content)
}

func TestEdit_Errors(t *testing.T) {
	f := newFixture(t)
	g := replying("r")
	e := f.engine(g)
	conv := seedConversation(t, f, "q1", "a1")

	_, err := e.Edit(context.Background(), conv.ID, "no-such-id", "x", nil)
	require.ErrorIs(t, err, ErrMessageNotFound)

	_, err = e.Edit(context.Background(), conv.ID, conv.Messages[1].ID, "x", nil)
	require.ErrorIs(t, err, ErrNotUserMessage)

	_, err = e.Edit(context.Background(), conv.ID, conv.Messages[0].ID, "", nil)
	require.ErrorIs(t, err, ErrEmptyMessage)

	_, err = e.Edit(context.Background(), "conv-missing", conv.Messages[0].ID, "x", nil)
	require.ErrorIs(t, err, storage.ErrConversationNotFound)

	assert.Equal(t, 0, g.callCount())
	got, err := f.ws.Get(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.Messages, got.Messages, "failed edits leave the conversation unchanged")
}

// =============================================================================
// INTEGRATION WITH THE CLOUD GATEWAY
// =============================================================================

func TestSend_ThroughCloudFallback(t *testing.T) {
	var streamed, plain int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		defer mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(string(body), `"stream":true`) {
			streamed++
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"Streaming not supported for this model"}`))
			return
		}
		plain++
		if strings.Contains(string(body), `"max_tokens":30`) {
			_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"\"Agent Questions\""}}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Full agent answer"}}]}`))
	}))
	defer srv.Close()

	client := cloud.NewClient("token").WithBaseURL(srv.URL)
	f := newFixture(t)
	e := New(f.ws, client, title.NewGenerator(client, ""), zerolog.Nop())
	conv := f.newConversation(t)
	rec := newRecorder()

	turn, err := e.Send(context.Background(), conv.ID, "use the agent", rec.observe)
	require.NoError(t, err)
	require.NoError(t, turn.Err)
	assert.Equal(t, "Full agent answer", turn.Reply)
	assert.Equal(t, "Agent Questions", turn.Conversation.Title)

	// user, one delta, final, title.
	assert.Len(t, rec.all(), 4)
	mu.Lock()
	assert.Equal(t, 1, streamed)
	assert.Equal(t, 2, plain)
	mu.Unlock()
}

func TestSend_MaxTokens(t *testing.T) {
	f := newFixture(t)
	g := replying("short")
	e := f.engine(g).WithMaxTokens(256)
	conv := f.newConversation(t)

	_, err := e.Send(context.Background(), conv.ID, "be brief", nil)
	require.NoError(t, err)
	require.Equal(t, 1, g.callCount())
	assert.Equal(t, 256, g.calls[0].MaxTokens)
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jeranaias/rigchat/internal/cloud"
	"github.com/jeranaias/rigchat/internal/metrics"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/stream"
	"github.com/jeranaias/rigchat/internal/util"
)

// ProvisionalTitleLength caps a title taken from the first user message.
const ProvisionalTitleLength = 50

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrEmptyMessage is returned when the message content is blank.
	ErrEmptyMessage = &ValidationError{Field: "content", Reason: "message is empty"}

	// ErrSendInProgress is returned when a send or edit is already running
	// for the conversation.
	ErrSendInProgress = errors.New("a message is already being sent in this conversation")

	// ErrMessageNotFound is returned by Edit for an unknown message id.
	ErrMessageNotFound = errors.New("message not found")

	// ErrNotUserMessage is returned by Edit for a non-user message.
	ErrNotUserMessage = errors.New("only user messages can be edited")
)

// ValidationError rejects input before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}

// =============================================================================
// COLLABORATORS
// =============================================================================

// Gateway streams one completion.
type Gateway interface {
	Stream(ctx context.Context, r cloud.Request) (*stream.Reconciler, error)
}

// Titler summarizes a history into a title.
type Titler interface {
	Generate(ctx context.Context, messages []model.ChatMessage) (string, error)
}

// Observer receives every conversation snapshot produced during a turn.
// It runs on the sending goroutine and must not block for long.
type Observer func(model.Conversation)

// Turn reports how a send or edit ended.
type Turn struct {
	// Conversation is the final snapshot.
	Conversation model.Conversation

	// Reply is the accumulated assistant text.
	Reply string

	// Titled is true when title generation was attempted.
	Titled bool

	// TitleErr holds the swallowed title failure, if any.
	TitleErr error

	// Cancelled is true when the context was cancelled mid-turn.
	Cancelled bool

	// Err is the failure recorded as an error message, if any.
	Err error
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine runs sends and edits against a Workspace.
type Engine struct {
	ws      *Workspace
	gateway Gateway
	titler  Titler
	logger  zerolog.Logger

	maxTokens int

	provisional bool
}

// New creates an engine. titler may be nil to disable auto-titling.
func New(ws *Workspace, gateway Gateway, titler Titler, logger zerolog.Logger) *Engine {
	return &Engine{
		ws:      ws,
		gateway: gateway,
		titler:  titler,
		logger:  logger,
	}
}

// WithMaxTokens limits reply length. Zero leaves it to the upstream.
func (e *Engine) WithMaxTokens(n int) *Engine {
	e.maxTokens = n
	return e
}

// WithProvisionalTitles makes a default-titled conversation show its first
// user message as the title until the generated one replaces it.
func (e *Engine) WithProvisionalTitles(on bool) *Engine {
	e.provisional = on
	return e
}

// Workspace returns the aggregate the engine writes to.
func (e *Engine) Workspace() *Workspace {
	return e.ws
}

// Send appends a user message to the conversation and streams the reply.
// The returned error is set only when the turn could not start.
func (e *Engine) Send(ctx context.Context, conversationID, content string, obs Observer) (Turn, error) {
	if strings.TrimSpace(content) == "" {
		return Turn{}, ErrEmptyMessage
	}
	if !e.ws.acquire(conversationID) {
		return Turn{}, ErrSendInProgress
	}
	defer e.ws.release(conversationID)
	conv, err := e.ws.Get(conversationID)
	if err != nil {
		return Turn{}, err
	}

	needsTitle := conv.HasDefaultTitle()
	now := e.ws.now()
	conv = conv.WithMessage(model.NewMessage(model.RoleUser, content, now), now)
	conv = e.provisionalTitle(conv, needsTitle, now)
	e.commit(ctx, conv, obs)
	return e.run(ctx, conv, needsTitle, obs), nil
}

// Edit replaces the content of a user message, drops everything after it
// and streams a new reply. The edited message keeps its id.
func (e *Engine) Edit(ctx context.Context, conversationID, messageID, content string, obs Observer) (Turn, error) {
	if strings.TrimSpace(content) == "" {
		return Turn{}, ErrEmptyMessage
	}
	if !e.ws.acquire(conversationID) {
		return Turn{}, ErrSendInProgress
	}
	defer e.ws.release(conversationID)
	conv, err := e.ws.Get(conversationID)
	if err != nil {
		return Turn{}, err
	}
	idx := conv.IndexOf(messageID)
	if idx < 0 {
		return Turn{}, ErrMessageNotFound
	}
	if conv.Messages[idx].Role != model.RoleUser {
		return Turn{}, ErrNotUserMessage
	}

	needsTitle := conv.HasDefaultTitle()
	now := e.ws.now()
	edited := conv.Messages[idx]
	edited.Content = content
	edited.Timestamp = now
	conv = conv.TruncatedBefore(idx, now).WithMessage(edited, now)
	conv = e.provisionalTitle(conv, needsTitle, now)
	e.commit(ctx, conv, obs)
	return e.run(ctx, conv, needsTitle, obs), nil
}

// provisionalTitle names conv after its first user message when enabled.
func (e *Engine) provisionalTitle(conv model.Conversation, needsTitle bool, now int64) model.Conversation {
	if !e.provisional || !needsTitle {
		return conv
	}
	for _, m := range conv.Messages {
		if m.Role == model.RoleUser {
			if t := strings.TrimSpace(util.TruncateRunesNoEllipsis(util.OneLine(m.Content), ProvisionalTitleLength)); t != "" {
				return conv.WithTitle(t, now)
			}
			break
		}
	}
	return conv
}

// run streams the reply for conv, whose last message is the user turn.
func (e *Engine) run(ctx context.Context, conv model.Conversation, needsTitle bool, obs Observer) Turn {
	base := conv
	log := e.logger.With().Str("conversation", conv.ID).Str("model", conv.Model).Logger()

	rec, err := e.gateway.Stream(ctx, cloud.Request{
		Model:     conv.Model,
		Messages:  conv.History(),
		MaxTokens: e.maxTokens,
	})
	if err != nil {
		if ctx.Err() != nil {
			return Turn{Conversation: conv, Cancelled: true}
		}
		return e.fail(ctx, base, err, obs, log)
	}
	defer rec.Close()

	placeholder := model.NewMessage(model.RoleAssistant, "", e.ws.now())
	for {
		ev, err := rec.Next()
		if ctx.Err() != nil {
			log.Info().Msg("send cancelled")
			return Turn{Conversation: conv, Reply: rec.Text(), Cancelled: true}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			metrics.StreamsAborted.Inc()
			return e.fail(ctx, base, err, obs, log)
		}
		now := e.ws.now()
		placeholder.Content = ev.Text
		placeholder.Timestamp = now
		conv = conv.WithUpsertedMessage(placeholder, now)
		e.commit(ctx, conv, obs)
	}

	if n := rec.Dropped(); n > 0 {
		log.Debug().Int("dropped_lines", n).Msg("ignored malformed stream lines")
	}

	now := e.ws.now()
	placeholder.Content = rec.Text()
	placeholder.Timestamp = now
	conv = conv.WithUpsertedMessage(placeholder, now)
	e.commit(ctx, conv, obs)

	turn := Turn{Conversation: conv, Reply: rec.Text()}
	if e.titler == nil || !needsTitle || len(conv.Messages) < 2 {
		return turn
	}

	turn.Titled = true
	t, err := e.titler.Generate(ctx, conv.History())
	if err != nil {
		log.Warn().Err(err).Msg("title generation failed")
		turn.TitleErr = err
		return turn
	}
	conv = conv.WithTitle(t, e.ws.now())
	e.commit(ctx, conv, obs)
	turn.Conversation = conv
	return turn
}

// fail records cause as an error message after base and ends the turn.
func (e *Engine) fail(ctx context.Context, base model.Conversation, cause error, obs Observer, log zerolog.Logger) Turn {
	log.Error().Err(cause).Msg("send failed")
	now := e.ws.now()
	conv := base.WithMessage(model.NewErrorMessage(cause, now), now)
	e.commit(ctx, conv, obs)
	return Turn{Conversation: conv, Err: cause}
}

// commit stores conv and notifies the observer. Persistence runs even if ctx
// is cancelled, and its failures are logged only.
func (e *Engine) commit(ctx context.Context, conv model.Conversation, obs Observer) {
	if err := e.ws.Put(context.WithoutCancel(ctx), conv); err != nil {
		e.logger.Warn().Err(err).Str("conversation", conv.ID).Msg("failed to persist conversation")
	}
	if obs != nil {
		obs(conv.Clone())
	}
}

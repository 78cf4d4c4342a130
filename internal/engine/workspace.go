// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/storage"
)

// =============================================================================
// WORKSPACE
// =============================================================================

// Workspace owns the conversation list. Every read returns a copy and every
// write persists the whole list. The list is kept newest-created first.
type Workspace struct {
	mu       sync.Mutex
	convs    []model.Conversation
	activeID string
	busy     map[string]struct{}

	// saveMu serializes persistence so writes land in snapshot order.
	saveMu sync.Mutex
	store  *storage.ConversationStore
	logger zerolog.Logger
	now    func() int64
}

// NewWorkspace creates an empty workspace backed by store.
func NewWorkspace(store *storage.ConversationStore, logger zerolog.Logger) *Workspace {
	return &Workspace{
		convs:  []model.Conversation{},
		busy:   make(map[string]struct{}),
		store:  store,
		logger: logger,
		now:    model.NowMillis,
	}
}

// WithClock replaces the epoch-millisecond clock used for timestamps.
func (w *Workspace) WithClock(now func() int64) *Workspace {
	w.now = now
	return w
}

// Load replaces the in-memory list with the persisted one and selects the
// most recently updated conversation.
func (w *Workspace) Load(ctx context.Context) error {
	convs, err := w.store.Load(ctx)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.convs = convs
	w.activeID = ""
	if c, ok := mostRecent(convs); ok {
		w.activeID = c.ID
	}
	w.mu.Unlock()
	return nil
}

// List returns a copy of every conversation.
func (w *Workspace) List() []model.Conversation {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]model.Conversation, len(w.convs))
	for i, c := range w.convs {
		out[i] = c.Clone()
	}
	return out
}

// Get returns a copy of the conversation with the given id.
func (w *Workspace) Get(id string) (model.Conversation, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := w.indexOf(id)
	if i < 0 {
		return model.Conversation{}, storage.NotFound(id)
	}
	return w.convs[i].Clone(), nil
}

// Active returns the selected conversation, if any.
func (w *Workspace) Active() (model.Conversation, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := w.indexOf(w.activeID)
	if i < 0 {
		return model.Conversation{}, false
	}
	return w.convs[i].Clone(), true
}

// Select makes id the active conversation.
func (w *Workspace) Select(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.indexOf(id) < 0 {
		return storage.NotFound(id)
	}
	w.activeID = id
	return nil
}

// Create prepends a new empty conversation, selects it and persists.
func (w *Workspace) Create(ctx context.Context, modelID string) (model.Conversation, error) {
	conv := model.NewConversation(modelID, w.now())
	w.mu.Lock()
	w.convs = append([]model.Conversation{conv}, w.convs...)
	w.activeID = conv.ID
	w.mu.Unlock()
	return conv.Clone(), w.persist(ctx)
}

// Delete removes a conversation. If it was active, the most recently updated
// remaining conversation becomes active.
func (w *Workspace) Delete(ctx context.Context, id string) error {
	w.mu.Lock()
	i := w.indexOf(id)
	if i < 0 {
		w.mu.Unlock()
		return storage.NotFound(id)
	}
	w.convs = append(w.convs[:i:i], w.convs[i+1:]...)
	if w.activeID == id {
		w.activeID = ""
		if c, ok := mostRecent(w.convs); ok {
			w.activeID = c.ID
		}
	}
	w.mu.Unlock()
	return w.persist(ctx)
}

// SetModel binds a conversation to another model.
func (w *Workspace) SetModel(ctx context.Context, id, modelID string) (model.Conversation, error) {
	w.mu.Lock()
	i := w.indexOf(id)
	if i < 0 {
		w.mu.Unlock()
		return model.Conversation{}, storage.NotFound(id)
	}
	conv := w.convs[i].WithModel(modelID, w.now())
	w.convs[i] = conv
	w.mu.Unlock()
	return conv.Clone(), w.persist(ctx)
}

// Put stores a snapshot, replacing the conversation with the same id or
// prepending it if absent, and persists the list.
func (w *Workspace) Put(ctx context.Context, conv model.Conversation) error {
	conv = conv.Clone()
	w.mu.Lock()
	if i := w.indexOf(conv.ID); i >= 0 {
		w.convs[i] = conv
	} else {
		w.convs = append([]model.Conversation{conv}, w.convs...)
	}
	w.mu.Unlock()
	return w.persist(ctx)
}

// persist writes the current list. Snapshots are taken under saveMu so a
// later state is never overwritten by an earlier one.
func (w *Workspace) persist(ctx context.Context) error {
	w.saveMu.Lock()
	defer w.saveMu.Unlock()
	return w.store.Save(ctx, w.List())
}

// acquire marks id as having a send in flight. It reports false if one is
// already running.
func (w *Workspace) acquire(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.busy[id]; ok {
		return false
	}
	w.busy[id] = struct{}{}
	return true
}

func (w *Workspace) release(id string) {
	w.mu.Lock()
	delete(w.busy, id)
	w.mu.Unlock()
}

// Busy reports whether a send is in flight for id.
func (w *Workspace) Busy(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.busy[id]
	return ok
}

// indexOf must be called with mu held.
func (w *Workspace) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i := range w.convs {
		if w.convs[i].ID == id {
			return i
		}
	}
	return -1
}

// mostRecent returns the conversation with the greatest UpdatedAt.
func mostRecent(convs []model.Conversation) (model.Conversation, bool) {
	if len(convs) == 0 {
		return model.Conversation{}, false
	}
	best := convs[0]
	for _, c := range convs[1:] {
		if c.UpdatedAt > best.UpdatedAt {
			best = c
		}
	}
	return best, true
}

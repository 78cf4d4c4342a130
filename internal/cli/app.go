// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/rigchat/internal/cloud"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/engine"
	"github.com/jeranaias/rigchat/internal/logging"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/remote"
	"github.com/jeranaias/rigchat/internal/storage"
	"github.com/jeranaias/rigchat/internal/title"
)

// =============================================================================
// GATEWAY
// =============================================================================

// gateway is what the terminal client needs from a completion backend. Both
// the upstream client and the remote server client satisfy it.
type gateway interface {
	engine.Gateway
	title.Completer
	ListModels(ctx context.Context) ([]model.ModelInfo, error)
}

// newCloudClient builds the upstream client from config.
func newCloudClient(cfg *config.Config, logger zerolog.Logger) *cloud.Client {
	c := cloud.NewClient(cfg.Upstream.APIToken).
		WithBaseURL(cfg.Upstream.BaseURL).
		WithTimeout(time.Duration(cfg.Upstream.TimeoutSecs) * time.Second).
		WithTemperature(cfg.Chat.Temperature).
		WithLogger(logger)
	c.SetDefaultModel(cfg.Chat.DefaultModel)
	return c
}

// newGateway picks the remote server when one is configured and the upstream
// API otherwise. The titler follows the same choice.
func newGateway(cfg *config.Config, logger zerolog.Logger) (gateway, engine.Titler) {
	if cfg.Chat.ServerURL != "" {
		rc := remote.NewClient(cfg.Chat.ServerURL).WithLogger(logger)
		return rc, rc
	}
	cc := newCloudClient(cfg, logger)
	return cc, title.NewGenerator(cc, cfg.Chat.TitleModel)
}

// =============================================================================
// APP
// =============================================================================

// app is the wiring shared by the conversation commands.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	store   *storage.ConversationStore
	ws      *engine.Workspace
	gateway gateway
	titler  engine.Titler
}

// newApp loads config, opens storage and loads the conversation list.
func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.Server.Env, cfg.Log.Level, os.Stderr)
	gw, titler := newGateway(cfg, logger)
	return openApp(ctx, cfg, logger, gw, titler)
}

// openApp wires storage and the workspace around an existing gateway.
func openApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, gw gateway, titler engine.Titler) (*app, error) {
	blobs, err := storage.Open(ctx, storage.Options{
		Backend: cfg.Storage.Backend,
		Path:    cfg.Storage.Path,
		URL:     cfg.Storage.URL,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Backend, err)
	}
	store := storage.NewConversationStore(blobs, logger)
	ws := engine.NewWorkspace(store, logger)
	if err := ws.Load(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		ws:      ws,
		gateway: gw,
		titler:  titler,
	}, nil
}

// Close releases the storage backend.
func (a *app) Close() error {
	return a.store.Close()
}

// newEngine returns a conversation engine bound to the app's workspace.
func (a *app) newEngine() *engine.Engine {
	return engine.New(a.ws, a.gateway, a.titler, a.logger).
		WithMaxTokens(a.cfg.Chat.MaxTokens).
		WithProvisionalTitles(a.cfg.Chat.ProvisionalTitle)
}

// resolve finds a conversation by id or unique id prefix. An empty ref
// means the active conversation.
func (a *app) resolve(ref string) (model.Conversation, error) {
	if ref == "" {
		conv, ok := a.ws.Active()
		if !ok {
			return model.Conversation{}, fmt.Errorf("no conversations yet; start one with 'rigchat new' or 'rigchat chat'")
		}
		return conv, nil
	}
	if conv, err := a.ws.Get(ref); err == nil {
		return conv, nil
	}

	var matches []model.Conversation
	for _, c := range a.ws.List() {
		if strings.HasPrefix(c.ID, ref) || strings.HasPrefix(c.ID, model.ConversationIDPrefix+ref) {
			matches = append(matches, c)
		}
	}
	switch len(matches) {
	case 0:
		return model.Conversation{}, storage.NotFound(ref)
	case 1:
		return matches[0], nil
	default:
		return model.Conversation{}, fmt.Errorf("conversation id %q is ambiguous (%d matches)", ref, len(matches))
	}
}

// catalog fetches the model list. If the catalog is unavailable the
// fallback list is returned along with the error.
func (a *app) catalog(ctx context.Context) ([]model.ModelInfo, error) {
	models, err := a.gateway.ListModels(ctx)
	if err != nil || len(models) == 0 {
		return model.FallbackModels(), err
	}
	return models, nil
}

// warn prints a non-fatal warning to w.
func warn(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", WarningStyle.Render("[WARN]"), fmt.Sprintf(format, args...))
}

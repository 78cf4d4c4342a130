// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command.
//
// Interactive Commands (during chat):
//   /help, /h           Show available commands
//   /new [model]        Start a new conversation
//   /list               List conversations
//   /switch <id>        Switch to another conversation
//   /model [name]       Show or switch the conversation's model
//   /models             List available models
//   /edit               Edit and resend the last message
//   /show               Reprint the conversation
//   /export [format]    Export the conversation
//   /delete             Delete the conversation
//   /quit, /q           Exit chat
//   Ctrl+C              Cancel the reply in progress
//   Ctrl+D              Exit chat

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/engine"
	"github.com/jeranaias/rigchat/internal/export"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/storage"
)

// catalogTimeout bounds the model catalog lookup at startup.
const catalogTimeout = 10 * time.Second

// errQuit ends the REPL.
var errQuit = errors.New("quit")

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineReader provides input history and line editing for interactive chat.
type lineReader struct {
	line        *liner.State
	historyFile string
}

// newLineReader creates a lineReader with history loaded from the config
// directory.
func newLineReader() *lineReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	r := &lineReader{line: line, historyFile: filepath.Join(dir, "chat_history")}

	if f, err := os.Open(r.historyFile); err == nil {
		r.line.ReadHistory(f)
		f.Close()
	}
	return r
}

// Prompt reads a line and records non-empty input in the history.
func (r *lineReader) Prompt(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// Edit reads a line pre-filled with text.
func (r *lineReader) Edit(prompt, text string) (string, error) {
	return r.line.PromptWithSuggestion(prompt, text, -1)
}

// Close saves history with owner-only permissions and restores the terminal.
func (r *lineReader) Close() {
	if err := os.MkdirAll(filepath.Dir(r.historyFile), 0700); err == nil {
		if f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			r.line.WriteHistory(f)
			f.Close()
		}
	}
	r.line.Close()
}

// =============================================================================
// SESSION
// =============================================================================

// editFunc reads a replacement for text from the user.
type editFunc func(prompt, text string) (string, error)

// chatSession holds the state of one interactive session.
type chatSession struct {
	app    *app
	eng    *engine.Engine
	convID string
	out    io.Writer
	edit   editFunc

	mu     sync.Mutex
	cancel context.CancelFunc
}

func newChatSession(a *app, out io.Writer, edit editFunc) *chatSession {
	return &chatSession{
		app:  a,
		eng:  a.newEngine(),
		out:  out,
		edit: edit,
	}
}

// start picks the conversation to chat in and reconciles its model with the
// catalog.
func (s *chatSession) start(ctx context.Context, ref, modelID string, fresh bool) error {
	requested := modelID
	var conv model.Conversation
	var err error
	if fresh || (ref == "" && len(s.app.ws.List()) == 0) {
		if modelID == "" {
			modelID = s.app.cfg.Chat.DefaultModel
		}
		conv, err = s.app.ws.Create(ctx, modelID)
	} else {
		conv, err = s.app.resolve(ref)
		if err == nil && modelID != "" && modelID != conv.Model {
			conv, err = s.app.ws.SetModel(ctx, conv.ID, modelID)
		}
	}
	if err != nil {
		return err
	}
	s.convID = conv.ID
	if err := s.app.ws.Select(conv.ID); err != nil {
		return err
	}

	if requested == "" {
		s.reconcileModel(ctx, conv)
	}
	return nil
}

// reconcileModel moves the conversation to the first catalog model when its
// own model is not offered. A failed catalog lookup changes nothing.
func (s *chatSession) reconcileModel(ctx context.Context, conv model.Conversation) {
	ctx, cancel := context.WithTimeout(ctx, catalogTimeout)
	defer cancel()

	models, err := s.app.gateway.ListModels(ctx)
	if err != nil {
		s.app.logger.Debug().Err(err).Msg("model catalog unavailable")
		return
	}
	resolved := model.ResolveModel(conv.Model, models)
	if resolved == conv.Model {
		return
	}
	if _, err := s.app.ws.SetModel(ctx, conv.ID, resolved); err != nil {
		warn(s.out, "could not switch model: %v", err)
		return
	}
	warn(s.out, "model %s is not available; using %s", conv.Model, resolved)
}

// conversation returns the current conversation.
func (s *chatSession) conversation() (model.Conversation, error) {
	return s.app.ws.Get(s.convID)
}

// setCancel records the cancel func of the turn in progress.
func (s *chatSession) setCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
}

// Interrupt cancels the turn in progress. It reports whether one was running.
func (s *chatSession) Interrupt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	s.cancel = nil
	return true
}

// handleInput runs one line of user input. errQuit ends the session.
func (s *chatSession) handleInput(ctx context.Context, input string) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil
	}
	if strings.HasPrefix(input, "/") {
		return s.handleCommand(ctx, input)
	}
	if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
		return errQuit
	}
	return s.runTurn(ctx, func(ctx context.Context, obs engine.Observer) (engine.Turn, error) {
		return s.eng.Send(ctx, s.convID, input, obs)
	})
}

// runTurn streams one send or edit to the terminal.
func (s *chatSession) runTurn(ctx context.Context, do func(context.Context, engine.Observer) (engine.Turn, error)) error {
	turnCtx, cancel := context.WithCancel(ctx)
	s.setCancel(cancel)
	defer func() {
		s.setCancel(nil)
		cancel()
	}()

	fmt.Fprintln(s.out, assistantLabelStyle.Render(model.RoleAssistant.DisplayName()))
	p := &replyPrinter{out: s.out}
	turn, err := do(turnCtx, p.observe)
	if err != nil {
		return err
	}
	p.finish()

	switch {
	case turn.Cancelled:
		fmt.Fprintln(s.out, WarningStyle.Render("[Cancelled]"))
	case turn.Err != nil:
		fmt.Fprintf(s.out, "%s %v\n", ErrorStyle.Render("[Error]"), turn.Err)
	}
	if turn.Titled && turn.TitleErr == nil {
		fmt.Fprintln(s.out, DimStyle.Render("Title: "+turn.Conversation.Title))
	}
	fmt.Fprintln(s.out)
	return nil
}

// replyPrinter writes the growing assistant reply as snapshots arrive.
type replyPrinter struct {
	out     io.Writer
	printed string
}

func (p *replyPrinter) observe(conv model.Conversation) {
	last, ok := conv.LastMessage()
	if !ok || last.Role != model.RoleAssistant || last.IsError() {
		return
	}
	if strings.HasPrefix(last.Content, p.printed) {
		fmt.Fprint(p.out, last.Content[len(p.printed):])
	} else {
		fmt.Fprint(p.out, "\n"+last.Content)
	}
	p.printed = last.Content
}

func (p *replyPrinter) finish() {
	if p.printed != "" && !strings.HasSuffix(p.printed, "\n") {
		fmt.Fprintln(p.out)
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

func (s *chatSession) handleCommand(ctx context.Context, input string) error {
	fields := strings.Fields(input)
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "/help", "/h", "/?":
		s.printHelp()

	case "/quit", "/q", "/exit":
		return errQuit

	case "/new":
		modelID := s.app.cfg.Chat.DefaultModel
		if len(args) > 0 {
			modelID = args[0]
		}
		conv, err := s.app.ws.Create(ctx, modelID)
		if err != nil {
			return err
		}
		s.convID = conv.ID
		fmt.Fprintf(s.out, "%s %s (%s)\n", SuccessStyle.Render("New conversation"), conv.ID, conv.Model)

	case "/list", "/ls":
		printConversationTable(s.out, storage.Summarize(s.app.ws.List()), s.convID, time.Now())

	case "/switch", "/open":
		if len(args) == 0 {
			return fmt.Errorf("usage: /switch <conversation-id>")
		}
		conv, err := s.app.resolve(args[0])
		if err != nil {
			return err
		}
		if err := s.app.ws.Select(conv.ID); err != nil {
			return err
		}
		s.convID = conv.ID
		fmt.Fprintf(s.out, "%s %s\n", SuccessStyle.Render("Switched to"), conv.Title)

	case "/model":
		conv, err := s.conversation()
		if err != nil {
			return err
		}
		if len(args) == 0 {
			fmt.Fprintf(s.out, "%s (%s)\n", conv.Model, model.Describe(conv.Model))
			return nil
		}
		conv, err = s.app.ws.SetModel(ctx, conv.ID, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%s %s\n", SuccessStyle.Render("Model set to"), conv.Model)

	case "/models":
		models, err := s.app.catalog(ctx)
		if err != nil {
			warn(s.out, "model catalog unavailable, showing defaults: %v", err)
		}
		current, _ := s.conversation()
		for _, m := range models {
			marker := "  "
			if m.ID == current.Model {
				marker = HighlightStyle.Render("* ")
			}
			fmt.Fprintf(s.out, "%s%s %s\n", marker, m.ID, DimStyle.Render(m.Description))
		}

	case "/edit":
		return s.editLast(ctx)

	case "/show":
		conv, err := s.conversation()
		if err != nil {
			return err
		}
		printConversation(s.out, conv, true)

	case "/export":
		format := export.FormatMarkdown
		if len(args) > 0 {
			format = args[0]
		}
		dir := "."
		if len(args) > 1 {
			dir = args[1]
		}
		exp, err := export.ForFormat(format, export.DefaultOptions())
		if err != nil {
			return err
		}
		conv, err := s.conversation()
		if err != nil {
			return err
		}
		path, err := export.ExportToFile(&conv, exp, dir)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%s %s\n", SuccessStyle.Render("Exported to"), path)

	case "/delete":
		if err := s.app.ws.Delete(ctx, s.convID); err != nil {
			return err
		}
		fmt.Fprintln(s.out, SuccessStyle.Render("Deleted"))
		next, ok := s.app.ws.Active()
		if !ok {
			created, err := s.app.ws.Create(ctx, s.app.cfg.Chat.DefaultModel)
			if err != nil {
				return err
			}
			next = created
		}
		s.convID = next.ID
		fmt.Fprintf(s.out, "%s %s\n", SuccessStyle.Render("Switched to"), next.Title)

	default:
		return fmt.Errorf("unknown command %s (try /help)", cmd)
	}
	return nil
}

// editLast lets the user rewrite the last user message and resends it.
func (s *chatSession) editLast(ctx context.Context) error {
	conv, err := s.conversation()
	if err != nil {
		return err
	}
	var target *model.Message
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if conv.Messages[i].Role == model.RoleUser {
			target = &conv.Messages[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("nothing to edit yet")
	}
	if s.edit == nil {
		return fmt.Errorf("editing needs an interactive terminal")
	}

	content, err := s.edit(PromptStyle.Render("edit> "), target.Content)
	if err != nil {
		// aborted
		return nil
	}
	if strings.TrimSpace(content) == "" || content == target.Content {
		fmt.Fprintln(s.out, DimStyle.Render("Unchanged."))
		return nil
	}
	id := target.ID
	return s.runTurn(ctx, func(ctx context.Context, obs engine.Observer) (engine.Turn, error) {
		return s.eng.Edit(ctx, s.convID, id, content, obs)
	})
}

func (s *chatSession) printHelp() {
	help := [][2]string{
		{"/new [model]", "Start a new conversation"},
		{"/list", "List conversations"},
		{"/switch <id>", "Switch to another conversation"},
		{"/model [name]", "Show or switch the model"},
		{"/models", "List available models"},
		{"/edit", "Edit and resend your last message"},
		{"/show", "Reprint the conversation"},
		{"/export [fmt] [dir]", "Export as md, json or yaml"},
		{"/delete", "Delete this conversation"},
		{"/quit", "Exit chat"},
		{"Ctrl+C", "Cancel the reply in progress"},
	}
	for _, h := range help {
		fmt.Fprintf(s.out, "  %s %s\n", LabelStyle.Copy().Width(22).Render(h[0]), h[1])
	}
}

// =============================================================================
// COMMAND
// =============================================================================

func newChatCmd(opts *rootOptions) *cobra.Command {
	var (
		conversation string
		modelID      string
		fresh        bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Example: `  rigchat chat                     Continue the most recent conversation
  rigchat chat --new -m grok-4     New conversation with grok-4
  rigchat chat -c conv-01J2        Continue a specific conversation`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			lr := newLineReader()
			defer lr.Close()

			out := cmd.OutOrStdout()
			s := newChatSession(a, out, lr.Edit)
			if err := s.start(ctx, conversation, modelID, fresh); err != nil {
				return err
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt)
			defer signal.Stop(sigCh)
			go func() {
				for range sigCh {
					s.Interrupt()
				}
			}()

			conv, _ := s.conversation()
			fmt.Fprintf(out, "%s %s\n", TitleStyle.Render(conv.Title), DimStyle.Render(conv.Model+" | /help for commands"))
			if n := len(conv.Messages); n > 0 {
				fmt.Fprintln(out, DimStyle.Render(fmt.Sprintf("%d earlier messages (/show to print)", n)))
			}

			for {
				input, err := lr.Prompt(PromptStyle.Render("you> "))
				if err != nil {
					// Ctrl+C at the prompt, Ctrl+D or closed stdin
					fmt.Fprintln(out)
					return nil
				}
				err = s.handleInput(ctx, input)
				if errors.Is(err, errQuit) {
					return nil
				}
				if err != nil {
					fmt.Fprintf(out, "%s %v\n", ErrorStyle.Render("[Error]"), err)
				}
			}
		},
	}
	cmd.Flags().StringVarP(&conversation, "conversation", "c", "", "conversation id (default most recent)")
	cmd.Flags().StringVarP(&modelID, "model", "m", "", "model to use")
	cmd.Flags().BoolVarP(&fresh, "new", "n", false, "start a new conversation")
	return cmd
}

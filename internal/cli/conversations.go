// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/storage"
	"github.com/jeranaias/rigchat/internal/util"
)

// =============================================================================
// LIST
// =============================================================================

func newListCmd(opts *rootOptions) *cobra.Command {
	var (
		search string
		asJSON bool
		limit  int
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List conversations, most recent first",
		Example: `  rigchat list
  rigchat list --search kubernetes
  rigchat list --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			metas := storage.Search(a.ws.List(), search)
			if limit > 0 && len(metas) > limit {
				metas = metas[:limit]
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), metas)
			}

			active, _ := a.ws.Active()
			printConversationTable(cmd.OutOrStdout(), metas, active.ID, time.Now())
			return nil
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "only conversations whose title or messages contain this text")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most this many conversations")
	return cmd
}

// printConversationTable writes one row per conversation.
func printConversationTable(w io.Writer, metas []storage.ConversationMeta, activeID string, now time.Time) {
	if len(metas) == 0 {
		fmt.Fprintln(w, DimStyle.Render("No conversations."))
		return
	}

	titleWidth := GetTerminalWidth() - 60
	if titleWidth < 20 {
		titleWidth = 20
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tTITLE\tMODEL\tMSGS\tUPDATED")
	for _, m := range metas {
		marker := " "
		if m.ID == activeID {
			marker = HighlightStyle.Render("*")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			marker,
			m.ID,
			util.TruncateWidth(util.OneLine(m.Title), titleWidth),
			m.Model,
			m.MessageCount,
			formatAge(now.Sub(m.UpdatedAt)),
		)
	}
	tw.Flush()
}

// formatAge formats an elapsed time for display.
func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// =============================================================================
// SHOW
// =============================================================================

func newShowCmd(opts *rootOptions) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "show [conversation-id]",
		Short: "Print a conversation",
		Long: `Print every message of a conversation. Without an id the most recently
updated conversation is shown. Ids may be abbreviated to a unique prefix.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			conv, err := a.resolve(firstArg(args))
			if err != nil {
				return err
			}
			printConversation(cmd.OutOrStdout(), conv, !raw)
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "do not render Markdown")
	return cmd
}

// printConversation writes a header and every message.
func printConversation(w io.Writer, conv model.Conversation, markdown bool) {
	fmt.Fprintln(w, TitleStyle.Render(conv.Title))
	fmt.Fprintf(w, "%s%s\n", RenderLabel("ID"), DimStyle.Render(conv.ID))
	fmt.Fprintf(w, "%s%s\n", RenderLabel("Model"), ValueStyle.Render(conv.Model+" ("+model.Describe(conv.Model)+")"))
	fmt.Fprintf(w, "%s%s\n", RenderLabel("Updated"), ValueStyle.Render(conv.Updated().Format("2006-01-02 15:04:05")))
	fmt.Fprintln(w, RenderSeparatorAdaptive())

	if len(conv.Messages) == 0 {
		fmt.Fprintln(w, DimStyle.Render("No messages yet."))
		return
	}
	for _, msg := range conv.Messages {
		printMessage(w, msg, markdown)
	}
}

// printMessage writes one message with its role label.
func printMessage(w io.Writer, msg model.Message, markdown bool) {
	fmt.Fprintf(w, "%s %s\n", RenderRole(msg), DimStyle.Render(msg.Time().Format("15:04:05")))
	if markdown && msg.Role == model.RoleAssistant && !msg.IsError() {
		fmt.Fprint(w, renderMarkdown(msg.Content))
	} else {
		fmt.Fprintln(w, msg.Content)
	}
	fmt.Fprintln(w)
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// =============================================================================
// NEW
// =============================================================================

func newNewCmd(opts *rootOptions) *cobra.Command {
	var modelID string
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create an empty conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if modelID == "" {
				modelID = a.cfg.Chat.DefaultModel
			}
			conv, err := a.ws.Create(cmd.Context(), modelID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", SuccessStyle.Render("Created"), conv.ID, conv.Model)
			return nil
		},
	}
	cmd.Flags().StringVarP(&modelID, "model", "m", "", "model for the conversation (default from config)")
	return cmd
}

// =============================================================================
// DELETE
// =============================================================================

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <conversation-id>...",
		Aliases: []string{"rm"},
		Short:   "Delete conversations",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, ref := range args {
				conv, err := a.resolve(ref)
				if err != nil {
					return err
				}
				if err := a.ws.Delete(cmd.Context(), conv.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n",
					SuccessStyle.Render("Deleted"), conv.ID, DimStyle.Render(strings.TrimSpace(conv.Title)))
			}
			return nil
		},
	}
}

// =============================================================================
// MODEL
// =============================================================================

func newModelCmd(opts *rootOptions) *cobra.Command {
	var conversation string
	cmd := &cobra.Command{
		Use:   "model [model-id]",
		Short: "Show or change the model of a conversation",
		Long: `Without an argument, print the model of the conversation. With one,
bind the conversation to that model. The most recent conversation is used
unless --conversation is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			conv, err := a.resolve(conversation)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				fmt.Fprintf(out, "%s (%s)\n", conv.Model, model.Describe(conv.Model))
				return nil
			}

			conv, err = a.ws.SetModel(cmd.Context(), conv.ID, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s %s now uses %s\n", SuccessStyle.Render("Updated"), conv.ID, conv.Model)
			return nil
		},
	}
	cmd.Flags().StringVarP(&conversation, "conversation", "c", "", "conversation id (default most recent)")
	return cmd
}

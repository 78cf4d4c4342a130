// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigchat/internal/export"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		format     string
		outputDir  string
		toStdout   bool
		open       bool
		noMetadata bool
	)
	cmd := &cobra.Command{
		Use:   "export [conversation-id]",
		Short: "Export a conversation to Markdown, JSON or YAML",
		Example: `  rigchat export --format md
  rigchat export conv-01J2 --format yaml --output ./exports
  rigchat export --format json --stdout > chat.json`,
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

			eopts := export.DefaultOptions()
			eopts.IncludeMetadata = !noMetadata
			exp, err := export.ForFormat(format, eopts)
			if err != nil {
				return err
			}

			if toStdout {
				data, err := exp.Export(&conv)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}

			path, err := export.ExportToFile(&conv, exp, outputDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", SuccessStyle.Render("Exported to"), path)
			if open {
				if err := export.Open(path); err != nil {
					warn(cmd.ErrOrStderr(), "could not open %s: %v", path, err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", export.FormatMarkdown, "export format: markdown (md), json, yaml (yml)")
	cmd.Flags().StringVarP(&outputDir, "output", "o", ".", "output directory")
	cmd.Flags().BoolVar(&toStdout, "stdout", false, "write to stdout instead of a file")
	cmd.Flags().BoolVar(&open, "open", false, "open the file in the default application")
	cmd.Flags().BoolVar(&noMetadata, "no-metadata", false, "omit the metadata header")
	return cmd
}

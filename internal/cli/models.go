// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newModelsCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List available chat models",
		Long: `List the chat models offered by the upstream catalog. If the catalog
cannot be reached, the built-in default model is listed instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			models, err := a.catalog(cmd.Context())
			if err != nil {
				warn(cmd.ErrOrStderr(), "model catalog unavailable, showing defaults: %v", err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), models)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tDESCRIPTION")
			for _, m := range models {
				fmt.Fprintf(tw, "%s\t%s\n", m.ID, m.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}

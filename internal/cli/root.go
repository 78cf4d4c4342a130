// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigchat/internal/config"
)

// Version information (set at build time)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath  string
	envFiles    []string
	storage     string
	storagePath string
	storageURL  string
	serverURL   string
	logLevel    string
}

// NewRootCommand builds the rigchat command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "rigchat",
		Short: "Chat with hosted models from the terminal or over HTTP",
		Long: `rigchat keeps a list of conversations, streams replies from a hosted
chat-completion API, and titles conversations automatically.

Run 'rigchat serve' to expose the HTTP API, or 'rigchat chat' to talk to a
model directly from the terminal.

Quick Start:
  rigchat chat                     # Chat in the most recent conversation
  rigchat chat --new               # Start a new conversation
  rigchat list                     # List conversations
  rigchat export --format md       # Export the most recent conversation`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "config file (default ~/.rigchat/config.toml)")
	pf.StringSliceVar(&opts.envFiles, "env-file", nil, "dotenv files to load (default .env)")
	pf.StringVar(&opts.storage, "storage", "", "storage backend: file, sqlite, redis, postgres, memory")
	pf.StringVar(&opts.storagePath, "storage-path", "", "directory (file) or database file (sqlite)")
	pf.StringVar(&opts.storageURL, "storage-url", "", "connection URL for redis or postgres")
	pf.StringVar(&opts.serverURL, "server", "", "talk to a running rigchat server instead of the upstream API")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")

	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(
		newServeCmd(opts),
		newChatCmd(opts),
		newListCmd(opts),
		newShowCmd(opts),
		newNewCmd(opts),
		newDeleteCmd(opts),
		newModelCmd(opts),
		newModelsCmd(opts),
		newExportCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ErrorStyle.Render("Error:"), err)
		os.Exit(1)
	}
}

// loadConfig resolves configuration in order: .env, TOML file, environment,
// then flags.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	if err := config.LoadDotEnv(opts.envFiles...); err != nil {
		return nil, err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	if opts.storage != "" {
		cfg.Storage.Backend = opts.storage
	}
	if opts.storagePath != "" {
		cfg.Storage.Path = opts.storagePath
	}
	if opts.storageURL != "" {
		cfg.Storage.URL = opts.storageURL
	}
	if opts.serverURL != "" {
		cfg.Chat.ServerURL = opts.serverURL
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

// resolvedConfigPath returns the config file in use.
func (o *rootOptions) resolvedConfigPath() (string, error) {
	if o.configPath != "" {
		return o.configPath, nil
	}
	return config.ConfigPath()
}

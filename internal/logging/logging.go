// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the zerolog logger used across rigchat.
package logging

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// EnvDevelopment selects the human-readable console writer.
const EnvDevelopment = "development"

// New returns a logger writing to out. Development environments get a
// console writer, everything else gets JSON lines. An unknown level falls
// back to info.
func New(env, level string, out io.Writer) zerolog.Logger {
	var logger zerolog.Logger
	if env == EnvDevelopment {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(out).
			With().
			Timestamp().
			Logger()
	}
	return logger.Level(ParseLevel(level))
}

// ParseLevel maps a config string to a zerolog level.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Nop returns a disabled logger for tests and quiet commands.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

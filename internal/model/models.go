// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "strings"

// =============================================================================
// MODEL INFO TYPE
// =============================================================================

// ModelInfo describes one selectable model from the upstream catalog.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// genericDescription is used for ids missing from the description table.
const genericDescription = "AI model"

// descriptions holds short blurbs for well-known model ids.
var descriptions = map[string]string{
	"grok-4-fast":            "Fast response, good for quick queries",
	"grok-4":                 "Higher quality, better reasoning",
	"deepseek":               "Fast and cost-effective chat completions",
	"supermind-agent-v1":     "Multi-tool agent with web search and Gemini handoff",
	"gemini-2.5-pro":         "Direct access to Google's Gemini model",
	"gemini-3-flash-preview": "Fast Gemini reasoning model",
	"gpt-5":                  "Passthrough to OpenAI-compatible providers",
}

// Describe returns the static description for a model id. Lookup ignores case.
func Describe(id string) string {
	if d, ok := descriptions[strings.ToLower(id)]; ok {
		return d
	}
	return genericDescription
}

// excludedSubstrings mark catalog entries that cannot serve chat.
var excludedSubstrings = []string{"embedding", "dall-e", "image"}

// IsChatModel reports whether a catalog id is usable for chat completions.
func IsChatModel(id string) bool {
	lower := strings.ToLower(id)
	for _, s := range excludedSubstrings {
		if strings.Contains(lower, s) {
			return false
		}
	}
	return true
}

// NewModelInfo builds a ModelInfo from a catalog entry. An empty upstream
// description falls back to the static table.
func NewModelInfo(id, description string) ModelInfo {
	if description == "" {
		description = Describe(id)
	}
	return ModelInfo{ID: id, Name: id, Description: description}
}

// FallbackModels is the catalog used when the upstream listing is unavailable.
func FallbackModels() []ModelInfo {
	return []ModelInfo{NewModelInfo(DefaultModel, "")}
}

// ResolveModel returns current if it appears in catalog, otherwise the first
// catalog entry. An empty catalog leaves current unchanged.
func ResolveModel(current string, catalog []ModelInfo) string {
	if len(catalog) == 0 {
		return current
	}
	for _, m := range catalog {
		if m.ID == current {
			return current
		}
	}
	return catalog[0].ID
}

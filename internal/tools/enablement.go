package tools

import (
	"os"
	"strings"
)

// IsToolEnabled checks if a tool is enabled via the ENABLE_ADDITIONAL_TOOLS
// environment variable, a comma-separated list of tool names. Names are
// case-insensitive and underscores and hyphens are interchangeable.
//
// Example: ENABLE_ADDITIONAL_TOOLS="pdf_creator"
func IsToolEnabled(toolName string) bool {
	enabledTools := os.Getenv("ENABLE_ADDITIONAL_TOOLS")
	if enabledTools == "" {
		return false
	}

	if strings.TrimSpace(strings.ToLower(enabledTools)) == "all" {
		return true
	}

	normalisedToolName := strings.ToLower(strings.ReplaceAll(toolName, "_", "-"))

	for tool := range strings.SplitSeq(enabledTools, ",") {
		normalisedTool := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(tool), "_", "-"))
		if normalisedTool == normalisedToolName {
			return true
		}
	}

	return false
}

// Package tools defines the contract a tool must satisfy to be served over
// MCP or invoked directly, plus the optional extended usage help surfaced
// alongside a tool's schema.
package tools

import (
	"context"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
)

// Tool is one registered capability of the server. Implementations are
// stateless between calls except for what they keep in the shared cache,
// which is how pdf_creator holds its per-session page lists.
type Tool interface {
	// Definition returns the tool's MCP registration, including its input
	// schema.
	Definition() mcp.Tool

	// Execute runs one call with the shared logger and cache and the parsed
	// request arguments.
	Execute(ctx context.Context, logger *logrus.Logger, cache *sync.Map, args map[string]any) (*mcp.CallToolResult, error)
}

// ExtendedHelpProvider is implemented by tools that carry worked examples
// and troubleshooting guidance beyond their schema.
type ExtendedHelpProvider interface {
	ProvideExtendedInfo() *ExtendedHelp
}

// ExtendedHelp is the usage documentation for one tool.
type ExtendedHelp struct {
	Examples         []ToolExample        `json:"examples,omitempty"`
	CommonPatterns   []string             `json:"common_patterns,omitempty"`
	Troubleshooting  []TroubleshootingTip `json:"troubleshooting,omitempty"`
	ParameterDetails map[string]string    `json:"parameter_details,omitempty"`
	WhenToUse        string               `json:"when_to_use,omitempty"`
	WhenNotToUse     string               `json:"when_not_to_use,omitempty"`
}

// ToolExample is one worked invocation: the arguments to send and what the
// caller should expect back.
type ToolExample struct {
	Description    string         `json:"description"`
	Arguments      map[string]any `json:"arguments"`
	ExpectedResult string         `json:"expected_result,omitempty"`
}

// TroubleshootingTip pairs a failure mode with its remedy.
type TroubleshootingTip struct {
	Problem  string `json:"problem"`
	Solution string `json:"solution"`
}

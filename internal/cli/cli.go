// Package cli invokes registered tools in-process, without starting an MCP
// server. It exists for scripting and for driving a PDF build from a shell:
// wrenchpdf cli call pdf_creator --action=update_pages --files a.jpg,b.pdf
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"

	"github.com/sammcj/wrenchpdf/internal/registry"
	"github.com/sammcj/wrenchpdf/internal/tools"
)

// Runner executes CLI commands against the tool registry.
type Runner struct {
	logger *logrus.Logger
	cache  *sync.Map
	asJSON bool
}

// NewRunner creates a Runner. When asJSON is set, results and listings are
// printed as JSON instead of human-readable text.
func NewRunner(logger *logrus.Logger, cache *sync.Map, asJSON bool) *Runner {
	return &Runner{logger: logger, cache: cache, asJSON: asJSON}
}

// List prints every enabled tool with the first line of its description.
func (r *Runner) List() error {
	enabled := registry.GetEnabledTools()

	names := make([]string, 0, len(enabled))
	for name := range enabled {
		names = append(names, name)
	}
	sort.Strings(names)

	if r.asJSON {
		type entry struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		out := make([]entry, 0, len(names))
		for _, name := range names {
			out = append(out, entry{Name: name, Description: firstLine(enabled[name].Definition().Description)})
		}
		return writeJSON(out)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%s\n", name, firstLine(enabled[name].Definition().Description))
	}
	return w.Flush()
}

// Describe prints a tool's parameters.
func (r *Runner) Describe(name string) error {
	tool, ok := registry.GetTool(name)
	if !ok {
		return fmt.Errorf("unknown tool: %s", name)
	}
	def := tool.Definition()

	if r.asJSON {
		return writeJSON(def)
	}

	fmt.Printf("Tool: %s\n\n%s\n", def.Name, def.Description)

	props := def.InputSchema.Properties
	if len(props) == 0 {
		return nil
	}

	required := make(map[string]bool, len(def.InputSchema.Required))
	for _, name := range def.InputSchema.Required {
		required[name] = true
	}

	paramNames := make([]string, 0, len(props))
	for name := range props {
		paramNames = append(paramNames, name)
	}
	slices.Sort(paramNames)

	fmt.Println("\nParameters:")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, paramName := range paramNames {
		prop, ok := props[paramName].(map[string]any)
		if !ok {
			continue
		}
		propType, _ := prop["type"].(string)
		desc, _ := prop["description"].(string)
		marker := ""
		if required[paramName] {
			marker = " (required)"
		}
		fmt.Fprintf(w, "  --%s\t%s\t%s%s\n", paramName, propType, firstLine(desc), marker)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if provider, ok := tool.(tools.ExtendedHelpProvider); ok {
		printExtendedHelp(provider.ProvideExtendedInfo())
	}
	return nil
}

func printExtendedHelp(help *tools.ExtendedHelp) {
	if help == nil {
		return
	}
	if help.WhenToUse != "" {
		fmt.Printf("\nWhen to use: %s\n", help.WhenToUse)
	}
	if len(help.Examples) > 0 {
		fmt.Println("\nExamples:")
		for _, example := range help.Examples {
			fmt.Printf("  %s\n", example.Description)
			if data, err := json.Marshal(example.Arguments); err == nil {
				fmt.Printf("    %s\n", data)
			}
		}
	}
	if len(help.Troubleshooting) > 0 {
		fmt.Println("\nTroubleshooting:")
		for _, tip := range help.Troubleshooting {
			fmt.Printf("  %s: %s\n", tip.Problem, tip.Solution)
		}
	}
}

// Call executes a tool with arguments given as --key=value flags or as a
// single JSON object, and prints the result.
func (r *Runner) Call(ctx context.Context, name string, args []string) error {
	tool, ok := registry.GetTool(name)
	if !ok {
		return fmt.Errorf("unknown tool: %s (run 'wrenchpdf cli list' to see available tools)", name)
	}

	params, err := ParseArgs(args, tool.Definition())
	if err != nil {
		return err
	}

	result, err := tool.Execute(ctx, r.logger, r.cache, params)
	if err != nil {
		return err
	}
	return r.render(result)
}

// ParseArgs turns shell arguments into a tool parameter map. Each argument
// is either --key=value (coerced per the tool's input schema) or a JSON
// object merged in under flag values.
func ParseArgs(args []string, def mcp.Tool) (map[string]any, error) {
	params := make(map[string]any)
	types := schemaTypes(def)

	for _, arg := range args {
		if strings.HasPrefix(arg, "{") {
			var obj map[string]any
			if err := json.Unmarshal([]byte(arg), &obj); err != nil {
				return nil, fmt.Errorf("invalid JSON argument: %w", err)
			}
			for k, v := range obj {
				if _, exists := params[k]; !exists {
					params[k] = v
				}
			}
			continue
		}

		if !strings.HasPrefix(arg, "--") {
			return nil, fmt.Errorf("unexpected argument: %s (use --key=value or a JSON object)", arg)
		}

		key, raw, found := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if !found {
			if types[key] == "boolean" {
				params[key] = true
				continue
			}
			return nil, fmt.Errorf("flag --%s requires a value", key)
		}
		params[key] = coerce(raw, types[key])
	}

	return params, nil
}

func schemaTypes(def mcp.Tool) map[string]string {
	types := make(map[string]string, len(def.InputSchema.Properties))
	for name, prop := range def.InputSchema.Properties {
		if pm, ok := prop.(map[string]any); ok {
			if t, ok := pm["type"].(string); ok {
				types[name] = t
			}
		}
	}
	return types
}

// coerce converts a flag value to the parameter's schema type. Arrays accept
// a JSON array or a comma-separated list, which keeps file lists easy to
// type: --files a.jpg,b.pdf
func coerce(raw, schemaType string) any {
	switch schemaType {
	case "boolean":
		switch strings.ToLower(raw) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
		return raw
	case "array":
		var arr []any
		if err := json.Unmarshal([]byte(raw), &arr); err == nil {
			return arr
		}
		parts := strings.Split(raw, ",")
		out := make([]any, 0, len(parts))
		for _, p := range parts {
			out = append(out, strings.TrimSpace(p))
		}
		return out
	case "object":
		var obj map[string]any
		if err := json.Unmarshal([]byte(raw), &obj); err == nil {
			return obj
		}
		return raw
	default:
		return raw
	}
}

func (r *Runner) render(result *mcp.CallToolResult) error {
	if result == nil {
		return nil
	}
	if r.asJSON {
		return writeJSON(result)
	}

	for _, content := range result.Content {
		if textContent, ok := mcp.AsTextContent(content); ok {
			fmt.Println(textContent.Text)
			continue
		}
		data, err := json.MarshalIndent(content, "", "  ")
		if err != nil {
			fmt.Printf("%+v\n", content)
			continue
		}
		fmt.Println(string(data))
	}

	if result.IsError {
		return fmt.Errorf("tool returned an error")
	}
	return nil
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstLine(s string) string {
	if before, _, found := strings.Cut(s, "\n"); found {
		return before
	}
	return s
}

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

const (
	CategorySearch      = "search"
	CategoryAnalysis    = "analysis"
	CategoryEditing     = "editing"
	CategoryNavigation  = "navigation"
	CategoryReporting   = "reporting"
	CategoryInteraction = "interaction"
	CategoryMonitoring  = "monitoring"
)

// Categories maps each category to the built-in tool names it groups.
var Categories = map[string][]string{
	CategorySearch:      {"find_symbol", "search_for_pattern", "find_file"},
	CategoryAnalysis:    {"get_symbols_overview", "find_referencing_symbols", "analyze_code"},
	CategoryEditing:     {"edit_symbol", "create_file", "delete_file"},
	CategoryNavigation:  {"list_dir", "find_file"},
	CategoryReporting:   {"generate_report"},
	CategoryInteraction: {"ask_user", "show_message"},
	CategoryMonitoring:  {"watch_files", "track_changes"},
}

var builtinDescriptions = []struct {
	name        string
	description string
}{
	{"find_symbol", "Find symbols by name across the project"},
	{"get_symbols_overview", "Summarize the top-level symbols of a file or directory"},
	{"find_referencing_symbols", "Find symbols referencing a given symbol"},
	{"search_for_pattern", "Search project files for a text pattern"},
	{"list_dir", "List the contents of a directory"},
	{"find_file", "Find files matching a name or glob"},
	{"edit_symbol", "Replace the body of a symbol"},
	{"create_file", "Create a new file"},
	{"delete_file", "Delete a file"},
	{"analyze_code", "Run static analysis over a path"},
	{"generate_report", "Generate a report for a path"},
}

// PlaceholderParameters are the inputs every built-in placeholder accepts.
func PlaceholderParameters() []Parameter {
	return []Parameter{
		{Name: "query", Type: TypeString, Description: "Search query or symbol name", Default: ""},
		{Name: "path", Type: TypeString, Description: "Path relative to the project root", Default: "."},
	}
}

// Placeholder is a built-in contract backed by PlaceholderExecutor.
func Placeholder(name, description string) Contract {
	return Contract{
		Name:        name,
		Description: description,
		Categories:  categoriesOf(name),
		Parameters:  PlaceholderParameters(),
		Executor:    PlaceholderExecutor(name),
	}
}

// PlaceholderExecutor echoes its validated arguments. It stands in for tools
// whose business logic lives outside this server.
func PlaceholderExecutor(name string) Executor {
	return ExecutorFunc(func(ctx context.Context, _ *RequestContext, args Arguments) (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(map[string]any(args))
		if err != nil {
			return nil, fmt.Errorf("encode parameters: %w", err)
		}
		return fmt.Sprintf("Placeholder tool '%s' executed with parameters: %s", name, encoded), nil
	})
}

// Builtins returns the built-in catalogue in its canonical order.
func Builtins() []Tool {
	out := make([]Tool, 0, len(builtinDescriptions))
	for _, b := range builtinDescriptions {
		out = append(out, Placeholder(b.name, b.description))
	}
	return out
}

func RegisterBuiltins(r *Registry) error {
	return r.RegisterAll(Builtins()...)
}

func categoriesOf(name string) []string {
	out := make([]string, 0, 1)
	for category, names := range Categories {
		for _, n := range names {
			if n == name {
				out = append(out, category)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

package connection

import (
	"sort"
	"strings"

	"github.com/calyptra/skillflow/internal/log"
	"github.com/calyptra/skillflow/internal/model"
)

// builtinTools is the engine's fixed builtin tool name set.
var builtinTools = map[string]bool{
	"Task":         true,
	"Bash":         true,
	"Glob":         true,
	"Grep":         true,
	"Read":         true,
	"Edit":         true,
	"Write":        true,
	"WebFetch":     true,
	"WebSearch":    true,
	"TodoWrite":    true,
	"NotebookEdit": true,
}

// IsBuiltin reports whether name is an engine builtin tool.
func IsBuiltin(name string) bool {
	return builtinTools[name]
}

// Builtins returns the builtin tool name set as a slice.
func Builtins() []string {
	out := make([]string, 0, len(builtinTools))
	for name := range builtinTools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// FilterTools resolves a step's allowedTools entries against the
// available tool set using a three-tier match. Tier precedence breaks
// ties: builtin name, then connection name, then exact tool name.
// Unknown entries are dropped with a warning, never an error. An empty
// allowedTools list means no restriction: available is returned as-is.
func FilterTools(step model.Step, available []string, connectionNames []string) []string {
	if len(step.AllowedTools) == 0 {
		return available
	}

	connSet := make(map[string]bool, len(connectionNames))
	for _, name := range connectionNames {
		connSet[name] = true
	}
	availSet := make(map[string]bool, len(available))
	for _, name := range available {
		availSet[name] = true
	}

	var out []string
	seen := make(map[string]bool)
	keep := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}

	for _, entry := range step.AllowedTools {
		switch {
		case IsBuiltin(entry):
			// Tier 1: engine builtin
			keep(entry)
		case connSet[entry]:
			// Tier 2: connection name expands to its prefixed tools
			prefix := entry + model.ToolSeparator
			for _, tool := range available {
				if strings.HasPrefix(tool, prefix) {
					keep(tool)
				}
			}
		case availSet[entry]:
			// Tier 3: exact tool name
			keep(entry)
		default:
			log.Warn("dropping unknown allowed tool", "step", step.Order, "tool", entry)
		}
	}
	return out
}

// DisallowedBuiltins computes the builtin disallow-list for a step:
// every builtin not present in allowed. Hosted tools are restricted by
// gateway scoping alone, so only builtins appear in the result.
func DisallowedBuiltins(allowed []string) []string {
	allowedSet := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		if IsBuiltin(name) {
			allowedSet[name] = true
		}
	}

	var out []string
	for name := range builtinTools {
		if !allowedSet[name] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

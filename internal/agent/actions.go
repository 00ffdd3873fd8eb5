// Package agent implements the observe, plan, act, check loop that drives
// one task to completion, plus the action vocabulary the model calls into.
package agent

import (
	"fmt"

	"github.com/Mikeyy1405/Writgoai.nl/internal/llm"
)

// Wire names of the tools offered to the model. Catalog and DecodeAction
// must agree on these.
const (
	ActionExecutePython   = "execute_python"
	ActionShellCommand    = "shell_command"
	ActionBrowserNavigate = "browser_navigate"
	ActionWebSearch       = "web_search"
	ActionFetchURL        = "fetch_url"
	ActionSaveFile        = "save_file"
	ActionReadFile        = "read_file"
	ActionComplete        = "complete"
)

// Action is one decoded tool call. The concrete type selects the dispatch
// path in the loop.
type Action interface {
	// Kind returns the wire name the action decoded from.
	Kind() string
}

// ExecutePython runs Python code in the sandbox.
type ExecutePython struct {
	Code string
}

func (ExecutePython) Kind() string { return ActionExecutePython }

// ShellCommand runs a shell command in the sandbox.
type ShellCommand struct {
	Command string
}

func (ShellCommand) Kind() string { return ActionShellCommand }

// BrowserNavigate performs one browser automation step in the sandbox.
type BrowserNavigate struct {
	URL      string
	Op       string
	Selector string
	Value    string
}

func (BrowserNavigate) Kind() string { return ActionBrowserNavigate }

// WebSearch runs a web search in the sandbox. NumResults zero means the
// sandbox default.
type WebSearch struct {
	Query      string
	NumResults int
}

func (WebSearch) Kind() string { return ActionWebSearch }

// FetchURL retrieves a static page on the host, bypassing the sandbox.
type FetchURL struct {
	URL string
}

func (FetchURL) Kind() string { return ActionFetchURL }

// SaveFile writes a file into the task workspace.
type SaveFile struct {
	Filename string
	Content  string
}

func (SaveFile) Kind() string { return ActionSaveFile }

// ReadFile reads a file from the task workspace.
type ReadFile struct {
	Filename string
}

func (ReadFile) Kind() string { return ActionReadFile }

// Complete ends the task successfully.
type Complete struct {
	Summary     string
	OutputFiles []string
}

func (Complete) Kind() string { return ActionComplete }

// Unknown is the sentinel for a call naming an unrecognized tool or missing
// a required argument. Reason, when set, is the diagnostic fed back to the
// model as the observation.
type Unknown struct {
	Tool   string
	Reason string
}

func (Unknown) Kind() string { return "unknown" }

// DecodeAction converts a model tool call into an Action. Decoding is plain
// field extraction; argument values are never evaluated. A call that names
// an unrecognized tool or omits a required argument decodes to Unknown so
// the loop can feed the problem back as an observation instead of aborting.
func DecodeAction(call llm.ToolCall) Action {
	switch call.Name {
	case ActionExecutePython:
		code, ok := stringArg(call.Arguments, "code")
		if !ok {
			return missingArg(call.Name, "code")
		}
		return ExecutePython{Code: code}

	case ActionShellCommand:
		command, ok := stringArg(call.Arguments, "command")
		if !ok {
			return missingArg(call.Name, "command")
		}
		return ShellCommand{Command: command}

	case ActionBrowserNavigate:
		url, ok := stringArg(call.Arguments, "url")
		if !ok {
			return missingArg(call.Name, "url")
		}
		op, ok := stringArg(call.Arguments, "action")
		if !ok {
			return missingArg(call.Name, "action")
		}
		selector, _ := stringArg(call.Arguments, "selector")
		value, _ := stringArg(call.Arguments, "value")
		return BrowserNavigate{URL: url, Op: op, Selector: selector, Value: value}

	case ActionWebSearch:
		query, ok := stringArg(call.Arguments, "query")
		if !ok {
			return missingArg(call.Name, "query")
		}
		return WebSearch{Query: query, NumResults: intArg(call.Arguments, "num_results")}

	case ActionFetchURL:
		url, ok := stringArg(call.Arguments, "url")
		if !ok {
			return missingArg(call.Name, "url")
		}
		return FetchURL{URL: url}

	case ActionSaveFile:
		filename, ok := stringArg(call.Arguments, "filename")
		if !ok {
			return missingArg(call.Name, "filename")
		}
		content, ok := stringArg(call.Arguments, "content")
		if !ok {
			return missingArg(call.Name, "content")
		}
		return SaveFile{Filename: filename, Content: content}

	case ActionReadFile:
		filename, ok := stringArg(call.Arguments, "filename")
		if !ok {
			return missingArg(call.Name, "filename")
		}
		return ReadFile{Filename: filename}

	case ActionComplete:
		summary, _ := stringArg(call.Arguments, "summary")
		return Complete{Summary: summary, OutputFiles: stringSliceArg(call.Arguments, "output_files")}

	default:
		return Unknown{Tool: call.Name}
	}
}

// stringArg extracts a non-empty string argument. A missing key, a
// non-string value, and an empty string all count as absent.
func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// intArg extracts an optional integer argument. JSON numbers arrive as
// float64; anything else yields zero.
func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// stringSliceArg extracts an optional string array argument, skipping
// non-string elements.
func stringSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func missingArg(tool, field string) Unknown {
	return Unknown{
		Tool:   tool,
		Reason: fmt.Sprintf("Action %s is missing required argument %q", tool, field),
	}
}

package agent

import (
	"github.com/Mikeyy1405/Writgoai.nl/internal/llm"
	"github.com/Mikeyy1405/Writgoai.nl/internal/sandbox"
)

// Catalog returns the tool definitions offered to the model on every
// completion. Every tool here has a matching arm in DecodeAction.
func Catalog() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Name:        ActionExecutePython,
			Description: "Execute Python code in the sandbox. The workspace is mounted at /workspace; requests, beautifulsoup4, pandas and playwright are installed.",
			Parameters: llm.ParameterSchema{
				Type: "object",
				Properties: map[string]llm.Property{
					"code": {Type: "string", Description: "Python code to execute"},
				},
				Required: []string{"code"},
			},
		},
		{
			Name:        ActionShellCommand,
			Description: "Run a shell command in the sandbox via bash -c.",
			Parameters: llm.ParameterSchema{
				Type: "object",
				Properties: map[string]llm.Property{
					"command": {Type: "string", Description: "Shell command to run"},
				},
				Required: []string{"command"},
			},
		},
		{
			Name:        ActionBrowserNavigate,
			Description: "Control a headless browser: load a page and perform one operation on it.",
			Parameters: llm.ParameterSchema{
				Type: "object",
				Properties: map[string]llm.Property{
					"url": {Type: "string", Description: "Page URL to open"},
					"action": {
						Type:        "string",
						Description: "Operation to perform after the page loads",
						Enum: []string{
							sandbox.BrowserNavigate,
							sandbox.BrowserGetText,
							sandbox.BrowserScreenshot,
							sandbox.BrowserClick,
							sandbox.BrowserFillForm,
							sandbox.BrowserExtractLinks,
						},
					},
					"selector": {Type: "string", Description: "CSS selector for get_text, click and fill_form"},
					"value":    {Type: "string", Description: "Text to type for fill_form"},
				},
				Required: []string{"url", "action"},
			},
		},
		{
			Name:        ActionWebSearch,
			Description: "Search the web and get a JSON array of {title, url, snippet} results.",
			Parameters: llm.ParameterSchema{
				Type: "object",
				Properties: map[string]llm.Property{
					"query":       {Type: "string", Description: "Search query"},
					"num_results": {Type: "integer", Description: "Number of results to return (default 5)"},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        ActionFetchURL,
			Description: "Fetch a static web page and get its readable text. Faster than the browser; use the browser only when the page needs JavaScript.",
			Parameters: llm.ParameterSchema{
				Type: "object",
				Properties: map[string]llm.Property{
					"url": {Type: "string", Description: "Page URL to fetch"},
				},
				Required: []string{"url"},
			},
		},
		{
			Name:        ActionSaveFile,
			Description: "Save a file to the workspace. Use this for results, intermediate data and progress notes.",
			Parameters: llm.ParameterSchema{
				Type: "object",
				Properties: map[string]llm.Property{
					"filename": {Type: "string", Description: "File name relative to the workspace"},
					"content":  {Type: "string", Description: "Full file content"},
				},
				Required: []string{"filename", "content"},
			},
		},
		{
			Name:        ActionReadFile,
			Description: "Read a file from the workspace.",
			Parameters: llm.ParameterSchema{
				Type: "object",
				Properties: map[string]llm.Property{
					"filename": {Type: "string", Description: "File name relative to the workspace"},
				},
				Required: []string{"filename"},
			},
		},
		{
			Name:        ActionComplete,
			Description: "Mark the task as complete. Call this once everything the task asked for is done and saved.",
			Parameters: llm.ParameterSchema{
				Type: "object",
				Properties: map[string]llm.Property{
					"summary": {Type: "string", Description: "Short summary of what was accomplished"},
					"output_files": {
						Type:        "array",
						Description: "Workspace files holding the final output",
					},
				},
			},
		},
	}
}

package agent

import (
	"fmt"
	"strings"

	"github.com/Mikeyy1405/Writgoai.nl/internal/events"
	"github.com/Mikeyy1405/Writgoai.nl/internal/planner"
)

// systemPrompt frames every iteration. It names the loop discipline (one
// tool call per turn), the progress document, and the CodeAct escape hatch.
const systemPrompt = `You are WritGo.nl AI Agent, an autonomous AI assistant that completes complex tasks.

You have access to a Ubuntu Linux sandbox with Python, Node.js, and browser automation tools.

## Your Capabilities:
- Execute Python code for data processing, analysis, web scraping
- Run shell commands for system operations
- Control a browser for web automation
- Search the web for information
- Read and write files to your workspace

## Agent Loop:
1. Analyze the current state and plan
2. Select ONE tool/action to take next
3. Wait for the observation (result)
4. Update your progress
5. Repeat until task is complete

## Rules:
- ALWAYS respond with a tool call, never direct text
- Execute ONE action per iteration
- Check results before proceeding to next step
- If an error occurs, diagnose it and try a different approach
- Keep errors in context to learn from them
- Use the todo.md file to track progress
- Save intermediate results to files
- For reports: minimum 3000-5000 words with citations

## CodeAct Paradigm:
You can write Python code as your action. This gives you maximum flexibility.
Import any libraries you need. The sandbox has requests, beautifulsoup4, pandas, playwright, etc.

Example:
` + "```python\n" + `import requests
from bs4 import BeautifulSoup

response = requests.get('https://example.com')
soup = BeautifulSoup(response.text, 'html.parser')
data = soup.find_all('div', class_='content')

# Process and save
with open('results.txt', 'w') as f:
    for item in data:
        f.write(item.text + '\n')
` + "```" + `

Now complete the task step by step.`

// contextObservationLimit bounds observation text inside the context prompt.
// Events keep the full text; only the prompt rendering truncates.
const contextObservationLimit = 500

// contextPrompt renders the per-iteration user message: the task, the plan
// document, the current step, the recent action/observation history, and the
// workspace listing.
func contextPrompt(task string, plan *planner.Plan, recent []events.Event, files []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Task:\n%s\n\n", task)
	fmt.Fprintf(&b, "## Current Plan:\n%s\n\n", planner.RenderProgress(plan))

	b.WriteString("## Current Step:\n")
	if step := plan.CurrentStep(); step != nil {
		b.WriteString(step.Description)
	} else {
		b.WriteString("Planning")
	}

	b.WriteString("\n\n## Recent Actions:\n")
	for _, e := range recent {
		switch e.Type {
		case events.TypeAction:
			fmt.Fprintf(&b, "\nAction: %s", e.Content)
		case events.TypeObservation:
			fmt.Fprintf(&b, "\nResult: %s\n", truncateRunes(e.Content, contextObservationLimit))
		}
	}

	b.WriteString("\n\n## Workspace Files:\n")
	if len(files) > 0 {
		b.WriteString(strings.Join(files, ", "))
	} else {
		b.WriteString("None")
	}
	b.WriteString("\n\nWhat is your next action?")

	return b.String()
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

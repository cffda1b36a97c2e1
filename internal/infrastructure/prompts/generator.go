package prompts

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"computer-use-agent/internal/adapter/tool"
	"computer-use-agent/internal/application/port/output"
)

type SystemPromptData struct {
	Date     string
	Backend  string
	Width    int
	Height   int
	Mobile   bool
	GridSize int
	GridMax  int
}

// DataFor describes the computer a run is bound to.
func DataFor(computer output.Computer, now time.Time) SystemPromptData {
	vp := computer.Viewport()
	return SystemPromptData{
		Date:     now.Format("Monday, January 2, 2006"),
		Backend:  computer.Name(),
		Width:    vp.Width,
		Height:   vp.Height,
		Mobile:   computer.IsMobile(),
		GridSize: tool.GridSize,
		GridMax:  tool.GridSize - 1,
	}
}

func GenerateSystemPrompt(baseTemplate string, data SystemPromptData) (string, error) {
	tmpl, err := template.New("system").Option("missingkey=error").Parse(baseTemplate)
	if err != nil {
		return "", fmt.Errorf("parse system prompt: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render system prompt: %w", err)
	}

	return buf.String(), nil
}

// NewRenderer validates baseTemplate and returns a renderer for the agent loop.
func NewRenderer(baseTemplate string, now func() time.Time) (func(output.Computer) (string, error), error) {
	if _, err := template.New("system").Parse(baseTemplate); err != nil {
		return nil, fmt.Errorf("parse system prompt: %w", err)
	}
	if now == nil {
		now = time.Now
	}
	return func(computer output.Computer) (string, error) {
		return GenerateSystemPrompt(baseTemplate, DataFor(computer, now()))
	}, nil
}

package agentloop

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"computer-use-agent/internal/domain/entity"
)

const (
	retryPrompt         = "Your previous response could not be used (%s). Reply either with one or more tool calls, or with the final answer as plain text and no tool calls."
	summaryReasoningLen = 160
)

// buildMessages renders the conversation for one decide step. current is the turn being
// decided and is not yet part of past.
//
// The newest HistoryTurns turns (current included) are replayed verbatim. Every older turn
// is reduced to one line inside a single "Earlier turns" message holding at most
// MaxSummaryLines lines, oldest dropped first. Only the newest ScreenshotTurns turns keep
// their screenshot.
func buildMessages(cfg Config, systemPrompt, goal string, past []entity.Turn, current entity.Turn) []entity.Message {
	messages := []entity.Message{
		{Role: entity.RoleSystem, Content: systemPrompt},
		{Role: entity.RoleUser, Content: "Goal: " + goal},
	}

	keep := cfg.HistoryTurns - 1
	if keep < 0 {
		keep = 0
	}
	split := len(past) - keep
	if split < 0 {
		split = 0
	}
	older, recent := past[:split], past[split:]

	if summary := summarize(older, cfg.MaxSummaryLines); summary != "" {
		messages = append(messages, entity.Message{Role: entity.RoleUser, Content: summary})
	}

	var prev *entity.Turn
	if split > 0 {
		prev = &older[len(older)-1]
	}
	for i := range recent {
		t := recent[i]
		messages = append(messages, observationMessage(cfg, t, prev, current.Index))
		messages = append(messages, replyMessages(cfg, t)...)
		prev = &recent[i]
	}
	messages = append(messages, observationMessage(cfg, current, prev, current.Index))
	return messages
}

func observationMessage(cfg Config, t entity.Turn, prev *entity.Turn, currentIndex int) entity.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Turn %d.", t.Index)
	if prev != nil && prev.ModelErr != nil {
		b.WriteString(" ")
		fmt.Fprintf(&b, retryPrompt, prev.ModelErr.Error())
	}
	if t.Screenshot != nil {
		fmt.Fprintf(&b, " Current URL: %s", t.Screenshot.URL)
		if t.Screenshot.Stale {
			b.WriteString(" (the page had not finished loading; the screenshot may be stale)")
		}
	}
	if t.PerceptionErr != nil {
		fmt.Fprintf(&b, " Screenshot unavailable: %v", t.PerceptionErr)
	}
	if t.PageText != "" {
		b.WriteString("\n\nPage text:\n")
		b.WriteString(t.PageText)
	}

	msg := entity.Message{Role: entity.RoleUser, Content: b.String()}
	if t.Screenshot != nil && currentIndex-t.Index < cfg.ScreenshotTurns {
		msg.Images = []entity.Image{{MIMEType: t.Screenshot.MIMEType(), Data: t.Screenshot.Data}}
	}
	return msg
}

// replyMessages replays what the model said in t and what its actions produced.
// A rejected reply is replayed as text only so no tool call is left without a result.
func replyMessages(cfg Config, t entity.Turn) []entity.Message {
	if t.ModelErr != nil || len(t.ToolCalls) == 0 {
		content := t.Reasoning
		if content == "" {
			content = "(no usable response)"
		}
		return []entity.Message{{Role: entity.RoleAssistant, Content: content}}
	}

	out := []entity.Message{{Role: entity.RoleAssistant, Content: t.Reasoning, ToolCalls: t.ToolCalls}}
	for _, tc := range t.ToolCalls {
		var parts []string
		for _, o := range t.Outcomes {
			if o.Action.CallID == tc.ID {
				parts = append(parts, o.Observation())
			}
		}
		content := strings.Join(parts, "\n")
		if content == "" {
			content = "not executed"
		}
		out = append(out, entity.Message{
			Role:       entity.RoleTool,
			ToolCallID: tc.ID,
			Name:       tc.Name,
			Content:    truncate(content, cfg.MaxObservationLen),
		})
	}
	return out
}

func summarize(turns []entity.Turn, maxLines int) string {
	if len(turns) == 0 || maxLines == 0 {
		return ""
	}
	if len(turns) > maxLines {
		turns = turns[len(turns)-maxLines:]
	}
	lines := make([]string, 0, len(turns)+1)
	lines = append(lines, "Earlier turns (summarized):")
	for _, t := range turns {
		lines = append(lines, summaryLine(t))
	}
	return strings.Join(lines, "\n")
}

func summaryLine(t entity.Turn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- turn %d", t.Index)
	if t.Screenshot != nil {
		fmt.Fprintf(&b, " at %s", t.Screenshot.URL)
	}
	b.WriteString(":")
	if t.ModelErr != nil {
		b.WriteString(" unusable response")
	}
	for _, o := range t.Outcomes {
		status := "ok"
		if !o.Success {
			status = "failed"
		}
		fmt.Fprintf(&b, " %s %s;", o.Action, status)
	}
	if r := strings.TrimSpace(t.Reasoning); r != "" {
		fmt.Fprintf(&b, " note: %s", truncate(strings.Join(strings.Fields(r), " "), summaryReasoningLen))
	}
	return b.String()
}

// truncate keeps at most max bytes of s, cut on a rune boundary.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n... (truncated)"
}

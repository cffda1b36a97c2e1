package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"computer-use-agent/internal/application/port/output"
	"computer-use-agent/internal/domain/entity"

	"github.com/fatih/color"
)

var (
	_ output.Reporter = (*VerboseReporter)(nil)
	_ output.Reporter = QuietReporter{}
)

// VerboseReporter prints every turn, action and outcome to a terminal.
type VerboseReporter struct {
	out io.Writer

	header  *color.Color
	thought *color.Color
	dim     *color.Color
	action  *color.Color
	ok      *color.Color
	failed  *color.Color
	warn    *color.Color
	final   *color.Color
}

func NewVerboseReporter(out io.Writer) *VerboseReporter {
	if out == nil {
		out = os.Stdout
	}
	return &VerboseReporter{
		out:     out,
		header:  color.New(color.FgCyan, color.Bold),
		thought: color.New(color.FgBlue),
		dim:     color.New(color.Faint),
		action:  color.New(color.FgYellow, color.Bold),
		ok:      color.New(color.FgGreen),
		failed:  color.New(color.FgRed),
		warn:    color.New(color.FgMagenta),
		final:   color.New(color.FgGreen, color.Bold),
	}
}

func (r *VerboseReporter) ShowTurn(ctx context.Context, index, maxTurns int, shot *entity.Screenshot) {
	r.header.Fprintf(r.out, "\n━━━ Turn %d/%d ━━━\n", index+1, maxTurns)
	if shot == nil {
		return
	}
	line := "   " + shot.URL
	if shot.Stale {
		line += " (still loading)"
	}
	r.dim.Fprintln(r.out, line)
}

func (r *VerboseReporter) ShowThinking(ctx context.Context, content string) {
	if strings.TrimSpace(content) == "" {
		return
	}
	r.thought.Fprint(r.out, "\n💭 Reasoning: ")
	r.dim.Fprintln(r.out, truncate(content, 500))
}

func (r *VerboseReporter) ShowAction(ctx context.Context, action entity.Action) {
	icon, name := actionDisplay(action.Kind)
	r.action.Fprintf(r.out, "\n%s %s\n", icon, name)
	if summary := actionSummary(action); summary != "" {
		r.dim.Fprintf(r.out, "   %s\n", summary)
	}
}

func (r *VerboseReporter) ShowActionResult(ctx context.Context, outcome entity.ActionOutcome) {
	if !outcome.Success {
		r.failed.Fprint(r.out, "❌ Error: ")
		r.dim.Fprintln(r.out, truncate(outcome.Observation(), 300))
		return
	}
	r.ok.Fprintf(r.out, "✓ %s\n", truncate(outcome.Observation(), 100))
}

func (r *VerboseReporter) ShowRecoverable(ctx context.Context, err error) {
	if err == nil {
		return
	}
	r.warn.Fprintf(r.out, "⚠ %s\n", truncate(err.Error(), 300))
}

func (r *VerboseReporter) ShowFinal(ctx context.Context, result *entity.AgentResult) {
	if result == nil {
		return
	}
	fmt.Fprintln(r.out)
	switch {
	case result.State == entity.StateAborted:
		r.failed.Fprintf(r.out, "━━━ Aborted (%s) after %d turns ━━━\n", result.Reason, len(result.Turns))
		if result.Err != nil {
			r.dim.Fprintln(r.out, result.Err.Error())
		}
		return
	case !result.Complete:
		r.warn.Fprintf(r.out, "━━━ Stopped (%s) after %d turns ━━━\n", result.Reason, len(result.Turns))
	default:
		r.final.Fprintf(r.out, "━━━ Done after %d turns ━━━\n", len(result.Turns))
	}
	if result.Answer != "" {
		fmt.Fprintln(r.out, result.Answer)
	}
}

func actionDisplay(kind entity.ActionKind) (string, string) {
	displays := map[entity.ActionKind][2]string{
		entity.ActionNavigate:   {"🌐", "Navigate"},
		entity.ActionClick:      {"🖱️", "Click"},
		entity.ActionHover:      {"👆", "Hover"},
		entity.ActionType:       {"✏️", "Type"},
		entity.ActionKeyPress:   {"⌨️", "Keys"},
		entity.ActionScroll:     {"📜", "Scroll"},
		entity.ActionDrag:       {"✋", "Drag"},
		entity.ActionWait:       {"⏳", "Wait"},
		entity.ActionScreenshot: {"📸", "Screenshot"},
		entity.ActionGoBack:     {"⬅️", "Back"},
		entity.ActionGoForward:  {"➡️", "Forward"},
	}
	if d, ok := displays[kind]; ok {
		return d[0], d[1]
	}
	return "🔧", string(kind)
}

func actionSummary(a entity.Action) string {
	switch a.Kind {
	case entity.ActionNavigate:
		return "URL: " + a.URL
	case entity.ActionClick, entity.ActionHover:
		return fmt.Sprintf("at %s", a.Point)
	case entity.ActionType:
		s := fmt.Sprintf("Text: %q", truncate(a.Text, 60))
		if a.Point != nil {
			s += fmt.Sprintf(" at %s", a.Point)
		}
		if a.PressEnter {
			s += " ⏎"
		}
		return s
	case entity.ActionKeyPress:
		return strings.Join(a.Keys, "+")
	case entity.ActionScroll:
		return fmt.Sprintf("dx=%.2f dy=%.2f", a.DX, a.DY)
	case entity.ActionDrag:
		if len(a.Path) >= 2 {
			return fmt.Sprintf("%s → %s", &a.Path[0], &a.Path[len(a.Path)-1])
		}
	case entity.ActionWait:
		return a.Duration.String()
	}
	return ""
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	for maxLen > 0 && !utf8.RuneStart(s[maxLen]) {
		maxLen--
	}
	return s[:maxLen] + "..."
}

// QuietReporter prints nothing. The caller prints the final answer.
type QuietReporter struct{}

func (QuietReporter) ShowTurn(context.Context, int, int, *entity.Screenshot) {}
func (QuietReporter) ShowThinking(context.Context, string)                   {}
func (QuietReporter) ShowAction(context.Context, entity.Action)              {}
func (QuietReporter) ShowActionResult(context.Context, entity.ActionOutcome) {}
func (QuietReporter) ShowRecoverable(context.Context, error)                 {}
func (QuietReporter) ShowFinal(context.Context, *entity.AgentResult)         {}

// New picks the reporter for the session's reporting mode.
func New(quiet bool, out io.Writer) output.Reporter {
	if quiet {
		return QuietReporter{}
	}
	return NewVerboseReporter(out)
}

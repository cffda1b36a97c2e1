package entity

import (
	"fmt"
	"strings"
	"time"
)

type ActionKind string

const (
	ActionNavigate   ActionKind = "navigate"
	ActionClick      ActionKind = "click"
	ActionHover      ActionKind = "hover"
	ActionType       ActionKind = "type"
	ActionKeyPress   ActionKind = "key_press"
	ActionScroll     ActionKind = "scroll"
	ActionDrag       ActionKind = "drag"
	ActionWait       ActionKind = "wait"
	ActionScreenshot ActionKind = "screenshot"
	ActionGoBack     ActionKind = "go_back"
	ActionGoForward  ActionKind = "go_forward"
)

var actionKinds = []ActionKind{
	ActionNavigate, ActionClick, ActionHover, ActionType, ActionKeyPress, ActionScroll,
	ActionDrag, ActionWait, ActionScreenshot, ActionGoBack, ActionGoForward,
}

func (k ActionKind) String() string {
	return string(k)
}

// ParseActionKind accepts the wire name of an action kind, case-insensitively.
func ParseActionKind(s string) (ActionKind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, k := range actionKinds {
		if string(k) == name {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown action kind %q", s)
}

type MouseButton string

const (
	ButtonLeft   MouseButton = "left"
	ButtonRight  MouseButton = "right"
	ButtonMiddle MouseButton = "middle"
)

// Point is a position in normalized viewport space, both axes nominally in [0,1].
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p *Point) String() string {
	if p == nil {
		return "?"
	}
	return fmt.Sprintf("%.3f,%.3f", p.X, p.Y)
}

// PixelPoint is a position in viewport CSS pixels.
type PixelPoint struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Action is a tagged variant: Kind selects which of the remaining fields are meaningful.
//
//	navigate    URL
//	click       Point, Button
//	hover       Point
//	type        Text, optional Point, ClearFirst, PressEnter
//	key_press   Keys
//	scroll      optional Point, DX, DY (fractions of the viewport)
//	drag        Path (at least two points)
//	wait        Duration
type Action struct {
	Kind       ActionKind    `json:"kind"`
	URL        string        `json:"url,omitempty"`
	Point      *Point        `json:"point,omitempty"`
	Button     MouseButton   `json:"button,omitempty"`
	Text       string        `json:"text,omitempty"`
	ClearFirst bool          `json:"clear_first,omitempty"`
	PressEnter bool          `json:"press_enter,omitempty"`
	Keys       []string      `json:"keys,omitempty"`
	DX         float64       `json:"dx,omitempty"`
	DY         float64       `json:"dy,omitempty"`
	Path       []Point       `json:"path,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`

	// CallID ties the action back to the model tool call that proposed it.
	CallID string `json:"call_id,omitempty"`
	// Tool is the model-facing tool name the action was parsed from.
	Tool string `json:"tool,omitempty"`
}

func Navigate(url string) Action {
	return Action{Kind: ActionNavigate, URL: url}
}

func Click(x, y float64) Action {
	return Action{Kind: ActionClick, Point: &Point{X: x, Y: y}, Button: ButtonLeft}
}

func TypeText(text string) Action {
	return Action{Kind: ActionType, Text: text}
}

func KeyPress(keys ...string) Action {
	return Action{Kind: ActionKeyPress, Keys: keys}
}

func Scroll(dx, dy float64) Action {
	return Action{Kind: ActionScroll, DX: dx, DY: dy}
}

func Drag(path ...Point) Action {
	return Action{Kind: ActionDrag, Path: path}
}

func Wait(d time.Duration) Action {
	return Action{Kind: ActionWait, Duration: d}
}

// Validate checks the fields required by the action kind.
func (a Action) Validate() error {
	switch a.Kind {
	case ActionNavigate:
		if strings.TrimSpace(a.URL) == "" {
			return fmt.Errorf("navigate requires a url")
		}
	case ActionClick, ActionHover:
		if a.Point == nil {
			return fmt.Errorf("%s requires a point", a.Kind)
		}
	case ActionKeyPress:
		if len(a.Keys) == 0 {
			return fmt.Errorf("key_press requires at least one key")
		}
	case ActionDrag:
		if len(a.Path) < 2 {
			return fmt.Errorf("drag requires at least two points, got %d", len(a.Path))
		}
	case ActionWait:
		if a.Duration < 0 {
			return fmt.Errorf("wait duration must not be negative")
		}
	case ActionType, ActionScroll, ActionScreenshot, ActionGoBack, ActionGoForward:
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	return nil
}

// String renders a short, stable description used in history summaries and logs.
func (a Action) String() string {
	switch a.Kind {
	case ActionNavigate:
		return fmt.Sprintf("navigate(%s)", a.URL)
	case ActionClick:
		return fmt.Sprintf("click(%s,%s)", a.Point, a.buttonOrLeft())
	case ActionHover:
		return fmt.Sprintf("hover(%s)", a.Point)
	case ActionType:
		if a.Point != nil {
			return fmt.Sprintf("type(%s,%q)", a.Point, a.Text)
		}
		return fmt.Sprintf("type(%q)", a.Text)
	case ActionKeyPress:
		return fmt.Sprintf("key_press(%s)", strings.Join(a.Keys, "+"))
	case ActionScroll:
		return fmt.Sprintf("scroll(%.2f,%.2f)", a.DX, a.DY)
	case ActionDrag:
		return fmt.Sprintf("drag(%d points)", len(a.Path))
	case ActionWait:
		return fmt.Sprintf("wait(%s)", a.Duration)
	default:
		return string(a.Kind) + "()"
	}
}

func (a Action) buttonOrLeft() MouseButton {
	if a.Button == "" {
		return ButtonLeft
	}
	return a.Button
}

// ActionOutcome records the result of executing one action.
type ActionOutcome struct {
	Action   Action        `json:"action"`
	Success  bool          `json:"success"`
	Message  string        `json:"message,omitempty"`
	Err      error         `json:"-"`
	Clamped  bool          `json:"clamped,omitempty"`
	Duration time.Duration `json:"duration"`
}

func (o ActionOutcome) Observation() string {
	if o.Success {
		if o.Message != "" {
			return o.Message
		}
		return "ok"
	}
	if o.Err != nil {
		return "Error: " + o.Err.Error()
	}
	return "Error: " + o.Message
}

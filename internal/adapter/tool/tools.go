package tool

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"computer-use-agent/internal/application/port/output"
	"computer-use-agent/internal/domain/entity"
)

// GridSize is the extent of the integer coordinate grid the model works in.
const GridSize = 1000

const (
	documentScrollFraction = 0.8
	defaultScrollMagnitude = 800
	waitDuration           = 5 * time.Second
)

// Normalize converts a grid coordinate into normalized viewport space.
func Normalize(v float64) float64 {
	return v / GridSize
}

func point(x, y float64) *entity.Point {
	return &entity.Point{X: Normalize(x), Y: Normalize(y)}
}

func decode(arguments string, v any) error {
	if strings.TrimSpace(arguments) == "" {
		arguments = "{}"
	}
	if err := json.Unmarshal([]byte(arguments), v); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return nil
}

func coordinateSchema(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": description + " on a 0-999 grid",
	}
}

func xySchema(extra map[string]interface{}, required ...string) map[string]interface{} {
	props := map[string]interface{}{
		"x": coordinateSchema("Horizontal position"),
		"y": coordinateSchema("Vertical position"),
	}
	for k, v := range extra {
		props[k] = v
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   append([]string{"x", "y"}, required...),
	}
}

func emptySchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

type xy struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

func (p xy) point() (*entity.Point, error) {
	if p.X == nil || p.Y == nil {
		return nil, fmt.Errorf("x and y are required")
	}
	return point(*p.X, *p.Y), nil
}

type NavigateTool struct{}

func NewNavigateTool() *NavigateTool { return &NavigateTool{} }

func (t *NavigateTool) Name() entity.ToolName { return entity.ToolNavigate }
func (t *NavigateTool) Description() string {
	return "Navigates the browser directly to the given URL."
}
func (t *NavigateTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "URL to navigate to",
			},
		},
		"required": []string{"url"},
	}
}

func (t *NavigateTool) Parse(arguments string) ([]entity.Action, error) {
	var input struct {
		URL string `json:"url"`
	}
	if err := decode(arguments, &input); err != nil {
		return nil, err
	}
	url := strings.TrimSpace(input.URL)
	if url == "" {
		return nil, fmt.Errorf("url is required")
	}
	if !strings.Contains(url, "://") && !strings.HasPrefix(url, "about:") {
		url = "https://" + url
	}
	return []entity.Action{entity.Navigate(url)}, nil
}

// SearchTool jumps to the search engine home page.
type SearchTool struct {
	searchURL string
}

func NewSearchTool(searchURL string) *SearchTool {
	if searchURL == "" {
		searchURL = entity.DefaultInitialURL
	}
	return &SearchTool{searchURL: searchURL}
}

func (t *SearchTool) Name() entity.ToolName { return entity.ToolSearch }
func (t *SearchTool) Description() string {
	return "Opens the search engine home page. Use it to start a new search."
}
func (t *SearchTool) Parameters() map[string]interface{} { return emptySchema() }

func (t *SearchTool) Parse(arguments string) ([]entity.Action, error) {
	return []entity.Action{entity.Navigate(t.searchURL)}, nil
}

type ClickAtTool struct{}

func NewClickAtTool() *ClickAtTool { return &ClickAtTool{} }

func (t *ClickAtTool) Name() entity.ToolName { return entity.ToolClickAt }
func (t *ClickAtTool) Description() string {
	return "Clicks at a position of the screenshot."
}
func (t *ClickAtTool) Parameters() map[string]interface{} { return xySchema(nil) }

func (t *ClickAtTool) Parse(arguments string) ([]entity.Action, error) {
	var input xy
	if err := decode(arguments, &input); err != nil {
		return nil, err
	}
	p, err := input.point()
	if err != nil {
		return nil, err
	}
	return []entity.Action{{Kind: entity.ActionClick, Point: p, Button: entity.ButtonLeft}}, nil
}

type HoverAtTool struct{}

func NewHoverAtTool() *HoverAtTool { return &HoverAtTool{} }

func (t *HoverAtTool) Name() entity.ToolName { return entity.ToolHoverAt }
func (t *HoverAtTool) Description() string {
	return "Moves the mouse to a position, e.g. to open a hover menu."
}
func (t *HoverAtTool) Parameters() map[string]interface{} { return xySchema(nil) }

func (t *HoverAtTool) Parse(arguments string) ([]entity.Action, error) {
	var input xy
	if err := decode(arguments, &input); err != nil {
		return nil, err
	}
	p, err := input.point()
	if err != nil {
		return nil, err
	}
	return []entity.Action{{Kind: entity.ActionHover, Point: p}}, nil
}

type TypeTextAtTool struct{}

func NewTypeTextAtTool() *TypeTextAtTool { return &TypeTextAtTool{} }

func (t *TypeTextAtTool) Name() entity.ToolName { return entity.ToolTypeTextAt }
func (t *TypeTextAtTool) Description() string {
	return "Clicks a position and types text there. By default the field is cleared first and Enter is pressed afterwards."
}
func (t *TypeTextAtTool) Parameters() map[string]interface{} {
	return xySchema(map[string]interface{}{
		"text": map[string]interface{}{
			"type":        "string",
			"description": "Text to type",
		},
		"press_enter": map[string]interface{}{
			"type":        "boolean",
			"description": "Press Enter after typing (default true)",
		},
		"clear_before_typing": map[string]interface{}{
			"type":        "boolean",
			"description": "Clear the field before typing (default true)",
		},
	}, "text")
}

func (t *TypeTextAtTool) Parse(arguments string) ([]entity.Action, error) {
	var input struct {
		xy
		Text       *string `json:"text"`
		PressEnter *bool   `json:"press_enter"`
		Clear      *bool   `json:"clear_before_typing"`
	}
	if err := decode(arguments, &input); err != nil {
		return nil, err
	}
	p, err := input.point()
	if err != nil {
		return nil, err
	}
	if input.Text == nil {
		return nil, fmt.Errorf("text is required")
	}
	return []entity.Action{{
		Kind:       entity.ActionType,
		Point:      p,
		Text:       *input.Text,
		PressEnter: input.PressEnter == nil || *input.PressEnter,
		ClearFirst: input.Clear == nil || *input.Clear,
	}}, nil
}

type KeyCombinationTool struct{}

func NewKeyCombinationTool() *KeyCombinationTool { return &KeyCombinationTool{} }

func (t *KeyCombinationTool) Name() entity.ToolName { return entity.ToolKeyCombination }
func (t *KeyCombinationTool) Description() string {
	return `Presses a key or key combination, e.g. "Enter", "Control+A", "Shift+Tab".`
}
func (t *KeyCombinationTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"keys": map[string]interface{}{
				"type":        "string",
				"description": "Keys joined with '+'",
			},
		},
		"required": []string{"keys"},
	}
}

func (t *KeyCombinationTool) Parse(arguments string) ([]entity.Action, error) {
	var input struct {
		Keys string `json:"keys"`
	}
	if err := decode(arguments, &input); err != nil {
		return nil, err
	}
	keys, err := ParseKeyCombination(input.Keys)
	if err != nil {
		return nil, err
	}
	return []entity.Action{entity.KeyPress(keys...)}, nil
}

type ScrollDocumentTool struct{}

func NewScrollDocumentTool() *ScrollDocumentTool { return &ScrollDocumentTool{} }

func (t *ScrollDocumentTool) Name() entity.ToolName { return entity.ToolScrollDocument }
func (t *ScrollDocumentTool) Description() string {
	return "Scrolls the whole page up, down, left or right by most of a screen."
}
func (t *ScrollDocumentTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"direction": directionSchema(),
		},
		"required": []string{"direction"},
	}
}

func (t *ScrollDocumentTool) Parse(arguments string) ([]entity.Action, error) {
	var input struct {
		Direction string `json:"direction"`
	}
	if err := decode(arguments, &input); err != nil {
		return nil, err
	}
	dx, dy, err := scrollVector(input.Direction, documentScrollFraction)
	if err != nil {
		return nil, err
	}
	return []entity.Action{entity.Scroll(dx, dy)}, nil
}

type ScrollAtTool struct{}

func NewScrollAtTool() *ScrollAtTool { return &ScrollAtTool{} }

func (t *ScrollAtTool) Name() entity.ToolName { return entity.ToolScrollAt }
func (t *ScrollAtTool) Description() string {
	return "Scrolls the element under a position. magnitude is on the same 0-999 grid (default 800)."
}
func (t *ScrollAtTool) Parameters() map[string]interface{} {
	return xySchema(map[string]interface{}{
		"direction": directionSchema(),
		"magnitude": coordinateSchema("Scroll distance"),
	}, "direction")
}

func (t *ScrollAtTool) Parse(arguments string) ([]entity.Action, error) {
	var input struct {
		xy
		Direction string   `json:"direction"`
		Magnitude *float64 `json:"magnitude"`
	}
	if err := decode(arguments, &input); err != nil {
		return nil, err
	}
	p, err := input.point()
	if err != nil {
		return nil, err
	}
	magnitude := float64(defaultScrollMagnitude)
	if input.Magnitude != nil {
		magnitude = *input.Magnitude
	}
	dx, dy, err := scrollVector(input.Direction, Normalize(magnitude))
	if err != nil {
		return nil, err
	}
	a := entity.Scroll(dx, dy)
	a.Point = p
	return []entity.Action{a}, nil
}

func directionSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "string",
		"enum": []string{"up", "down", "left", "right"},
	}
}

func scrollVector(direction string, amount float64) (dx, dy float64, err error) {
	switch strings.ToLower(strings.TrimSpace(direction)) {
	case "up":
		return 0, -amount, nil
	case "down":
		return 0, amount, nil
	case "left":
		return -amount, 0, nil
	case "right":
		return amount, 0, nil
	default:
		return 0, 0, fmt.Errorf("unknown scroll direction %q", direction)
	}
}

type DragAndDropTool struct{}

func NewDragAndDropTool() *DragAndDropTool { return &DragAndDropTool{} }

func (t *DragAndDropTool) Name() entity.ToolName { return entity.ToolDragAndDrop }
func (t *DragAndDropTool) Description() string {
	return "Drags from (x, y) and drops at (destination_x, destination_y)."
}
func (t *DragAndDropTool) Parameters() map[string]interface{} {
	return xySchema(map[string]interface{}{
		"destination_x": coordinateSchema("Horizontal drop position"),
		"destination_y": coordinateSchema("Vertical drop position"),
	}, "destination_x", "destination_y")
}

func (t *DragAndDropTool) Parse(arguments string) ([]entity.Action, error) {
	var input struct {
		xy
		DestX *float64 `json:"destination_x"`
		DestY *float64 `json:"destination_y"`
	}
	if err := decode(arguments, &input); err != nil {
		return nil, err
	}
	from, err := input.point()
	if err != nil {
		return nil, err
	}
	if input.DestX == nil || input.DestY == nil {
		return nil, fmt.Errorf("destination_x and destination_y are required")
	}
	return []entity.Action{entity.Drag(*from, *point(*input.DestX, *input.DestY))}, nil
}

// simpleTool covers the argument-less tools.
type simpleTool struct {
	name        entity.ToolName
	description string
	action      entity.Action
}

func (t *simpleTool) Name() entity.ToolName                 { return t.name }
func (t *simpleTool) Description() string                   { return t.description }
func (t *simpleTool) Parameters() map[string]interface{}    { return emptySchema() }
func (t *simpleTool) Parse(string) ([]entity.Action, error) { return []entity.Action{t.action}, nil }

func NewWaitTool() output.ActionTool {
	return &simpleTool{
		name:        entity.ToolWait,
		description: "Waits five seconds for the page to finish loading or animating.",
		action:      entity.Wait(waitDuration),
	}
}

func NewGoBackTool() output.ActionTool {
	return &simpleTool{
		name:        entity.ToolGoBack,
		description: "Navigates back in browser history.",
		action:      entity.Action{Kind: entity.ActionGoBack},
	}
}

func NewGoForwardTool() output.ActionTool {
	return &simpleTool{
		name:        entity.ToolGoForward,
		description: "Navigates forward in browser history.",
		action:      entity.Action{Kind: entity.ActionGoForward},
	}
}

func NewScreenshotTool() output.ActionTool {
	return &simpleTool{
		name:        entity.ToolScreenshot,
		description: "Takes no action; a fresh screenshot is sent with the next turn.",
		action:      entity.Action{Kind: entity.ActionScreenshot},
	}
}

// RegisterAll adds the full action vocabulary to registry.
func RegisterAll(registry output.ToolRegistry, searchURL string) {
	registry.Register(NewNavigateTool())
	registry.Register(NewSearchTool(searchURL))
	registry.Register(NewClickAtTool())
	registry.Register(NewHoverAtTool())
	registry.Register(NewTypeTextAtTool())
	registry.Register(NewKeyCombinationTool())
	registry.Register(NewScrollDocumentTool())
	registry.Register(NewScrollAtTool())
	registry.Register(NewDragAndDropTool())
	registry.Register(NewWaitTool())
	registry.Register(NewGoBackTool())
	registry.Register(NewGoForwardTool())
	registry.Register(NewScreenshotTool())
}

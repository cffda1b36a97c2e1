package entity

type ToolName string

const (
	ToolNavigate       ToolName = "navigate"
	ToolSearch         ToolName = "search"
	ToolClickAt        ToolName = "click_at"
	ToolHoverAt        ToolName = "hover_at"
	ToolTypeTextAt     ToolName = "type_text_at"
	ToolKeyCombination ToolName = "key_combination"
	ToolScrollDocument ToolName = "scroll_document"
	ToolScrollAt       ToolName = "scroll_at"
	ToolDragAndDrop    ToolName = "drag_and_drop"
	ToolWait           ToolName = "wait_5_seconds"
	ToolGoBack         ToolName = "go_back"
	ToolGoForward      ToolName = "go_forward"
	ToolScreenshot     ToolName = "screenshot"
)

func (t ToolName) String() string {
	return string(t)
}

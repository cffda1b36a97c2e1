package output

import (
	"computer-use-agent/internal/domain/entity"
)

// ActionTool is one entry of the action vocabulary offered to the model.
type ActionTool interface {
	Name() entity.ToolName
	Description() string
	Parameters() map[string]interface{}
	// Parse converts the raw JSON arguments of a tool call into actions.
	Parse(arguments string) ([]entity.Action, error)
}

type ToolRegistry interface {
	Register(tool ActionTool)
	Get(name entity.ToolName) (ActionTool, bool)
	All() []ActionTool
	Definitions() []entity.ToolDefinition
}

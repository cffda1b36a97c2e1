package service

import (
	"fmt"

	"computer-use-agent/internal/application/port/output"
	"computer-use-agent/internal/domain/entity"
)

var _ output.ToolRegistry = (*ToolRegistryImpl)(nil)

// ToolRegistryImpl keeps tools in registration order so the model sees a stable tool list.
type ToolRegistryImpl struct {
	tools map[entity.ToolName]output.ActionTool
	order []entity.ToolName
}

func NewToolRegistry() *ToolRegistryImpl {
	return &ToolRegistryImpl{
		tools: make(map[entity.ToolName]output.ActionTool),
	}
}

func (r *ToolRegistryImpl) Register(tool output.ActionTool) {
	if _, exists := r.tools[tool.Name()]; !exists {
		r.order = append(r.order, tool.Name())
	}
	r.tools[tool.Name()] = tool
}

func (r *ToolRegistryImpl) Get(name entity.ToolName) (output.ActionTool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

func (r *ToolRegistryImpl) All() []output.ActionTool {
	result := make([]output.ActionTool, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.tools[name])
	}
	return result
}

func (r *ToolRegistryImpl) Definitions() []entity.ToolDefinition {
	result := make([]entity.ToolDefinition, 0, len(r.order))
	for _, tool := range r.All() {
		result = append(result, entity.ToolDefinition{
			Name:        tool.Name().String(),
			Description: tool.Description(),
			Parameters:  tool.Parameters(),
		})
	}
	return result
}

// ParseCalls turns the tool calls of one model reply into actions, in call order.
// Any unknown tool or bad argument payload rejects the whole reply.
func ParseCalls(registry output.ToolRegistry, calls []entity.ToolCall) ([]entity.Action, error) {
	var actions []entity.Action
	for _, tc := range calls {
		tool, ok := registry.Get(entity.ToolName(tc.Name))
		if !ok {
			return nil, &entity.ModelResponseError{
				Reason: fmt.Sprintf("unknown tool %q", tc.Name),
				Raw:    tc.Arguments,
			}
		}
		parsed, err := tool.Parse(tc.Arguments)
		if err != nil {
			return nil, &entity.ModelResponseError{
				Reason: fmt.Sprintf("invalid arguments for %s: %v", tc.Name, err),
				Raw:    tc.Arguments,
			}
		}
		for _, a := range parsed {
			a.CallID = tc.ID
			a.Tool = tc.Name
			actions = append(actions, a)
		}
	}
	return actions, nil
}

package input

import (
	"context"

	"computer-use-agent/internal/application/port/output"
	"computer-use-agent/internal/domain/entity"
)

// AgentRunner drives one run against an already acquired computer.
type AgentRunner interface {
	Run(ctx context.Context, goal string, computer output.Computer) (*entity.AgentResult, error)
}

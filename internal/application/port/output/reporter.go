package output

import (
	"context"

	"computer-use-agent/internal/domain/entity"
)

// Reporter surfaces run progress. Implementations must not influence control flow.
type Reporter interface {
	ShowTurn(ctx context.Context, index, maxTurns int, shot *entity.Screenshot)
	ShowThinking(ctx context.Context, content string)
	ShowAction(ctx context.Context, action entity.Action)
	ShowActionResult(ctx context.Context, outcome entity.ActionOutcome)
	ShowRecoverable(ctx context.Context, err error)
	ShowFinal(ctx context.Context, result *entity.AgentResult)
}

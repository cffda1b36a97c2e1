package output

import (
	"context"

	"computer-use-agent/internal/domain/entity"
)

type ScreenshotStore interface {
	Save(ctx context.Context, turnIndex int, shot *entity.Screenshot) (string, error)
}

// RunJournal records a durable trace of a run.
type RunJournal interface {
	StartRun(ctx context.Context, runID, goal string, session entity.SessionConfig, model string) error
	RecordTurn(ctx context.Context, runID string, turn entity.Turn) error
	FinishRun(ctx context.Context, runID string, result *entity.AgentResult) error
}

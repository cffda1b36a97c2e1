package agentloop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"computer-use-agent/internal/application/port/output"
	"computer-use-agent/internal/domain/entity"
)

const releaseTimeout = 30 * time.Second

// With acquires a computer for session, runs fn with it and always releases it, also
// when fn fails, panics or ctx is cancelled. The release error is joined to fn's error.
func With(ctx context.Context, factory output.ComputerFactory, session entity.SessionConfig, logger output.LoggerPort,
	fn func(ctx context.Context, computer output.Computer) error) (err error) {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}

	computer, err := factory.Acquire(ctx, session)
	if err != nil {
		if !errors.Is(err, entity.ErrEnvironmentSetup) {
			err = entity.NewEnvironmentSetupError("computer", "acquire", err)
		}
		return err
	}

	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if rerr := computer.Release(rctx); rerr != nil {
			logger.Error("Computer release failed", "backend", computer.Name(), "error", rerr)
			err = errors.Join(err, fmt.Errorf("release %s: %w", computer.Name(), rerr))
		}
	}()

	return fn(ctx, computer)
}

// RunSession acquires a computer for session and runs goal on it. A computer that cannot
// be acquired yields an aborted result with no turns.
func (uc *UseCase) RunSession(ctx context.Context, factory output.ComputerFactory, session entity.SessionConfig, goal string) (*entity.AgentResult, error) {
	var result *entity.AgentResult
	err := With(ctx, factory, session, uc.logger, func(ctx context.Context, computer output.Computer) error {
		var err error
		result, err = uc.Run(ctx, goal, computer)
		return err
	})

	switch {
	case result != nil:
		// Release failures are already logged; the run itself is over.
		return result, nil
	case errors.Is(err, entity.ErrEnvironmentSetup):
		uc.logger.Error("Environment setup failed", "error", err)
		result = &entity.AgentResult{
			State:  entity.StateAborted,
			Reason: entity.StopEnvironment,
			Err:    err,
		}
		uc.reporter.ShowFinal(ctx, result)
		return result, nil
	default:
		return nil, err
	}
}

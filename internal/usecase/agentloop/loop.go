package agentloop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"computer-use-agent/internal/application/port/input"
	"computer-use-agent/internal/application/port/output"
	"computer-use-agent/internal/application/service"
	"computer-use-agent/internal/domain/entity"

	"github.com/google/uuid"
)

var _ input.AgentRunner = (*UseCase)(nil)

// PromptFunc renders the system prompt for the computer a run is bound to.
type PromptFunc func(computer output.Computer) (string, error)

type UseCase struct {
	llm        output.LLMPort
	tools      output.ToolRegistry
	translator *service.ActionTranslator
	reporter   output.Reporter
	logger     output.LoggerPort
	prompt     PromptFunc
	cfg        Config

	screenshots output.ScreenshotStore
	journal     output.RunJournal
	pageText    output.PageTextExtractor
	modelName   string
}

type Option func(*UseCase)

// WithScreenshotStore persists every captured screenshot.
func WithScreenshotStore(store output.ScreenshotStore) Option {
	return func(uc *UseCase) { uc.screenshots = store }
}

func WithJournal(journal output.RunJournal, modelName string) Option {
	return func(uc *UseCase) {
		uc.journal = journal
		uc.modelName = modelName
	}
}

// WithPageText attaches a text outline of the page to each observation when the
// config enables it and the computer can expose its document.
func WithPageText(extractor output.PageTextExtractor) Option {
	return func(uc *UseCase) { uc.pageText = extractor }
}

func New(
	llm output.LLMPort,
	tools output.ToolRegistry,
	translator *service.ActionTranslator,
	reporter output.Reporter,
	logger output.LoggerPort,
	prompt PromptFunc,
	cfg Config,
	opts ...Option,
) *UseCase {
	uc := &UseCase{
		llm:        llm,
		tools:      tools,
		translator: translator,
		reporter:   reporter,
		logger:     logger,
		prompt:     prompt,
		cfg:        cfg,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// run is the mutable state of one Run call.
type run struct {
	id       string
	goal     string
	computer output.Computer
	logger   output.LoggerPort
	history  *entity.TurnHistory
	state    entity.LoopState
	prompt   string
	streak   int
	decides  int
	answer   string
}

// Run drives perceive, decide and act until the model answers, a limit is hit or the run
// aborts. Backend and model failures are reported through the result; the error return
// is reserved for invalid arguments.
func (uc *UseCase) Run(ctx context.Context, goal string, computer output.Computer) (*entity.AgentResult, error) {
	if strings.TrimSpace(goal) == "" {
		return nil, fmt.Errorf("goal is required")
	}
	if computer == nil {
		return nil, fmt.Errorf("computer is required")
	}
	if err := uc.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid loop config: %w", err)
	}

	prompt, err := uc.prompt(computer)
	if err != nil {
		return nil, fmt.Errorf("render system prompt: %w", err)
	}

	r := &run{
		id:       uuid.NewString(),
		goal:     goal,
		computer: computer,
		history:  entity.NewTurnHistory(),
		state:    entity.StateInit,
		prompt:   prompt,
	}
	r.logger = uc.logger.WithFields(map[string]any{"run_id": r.id, "backend": computer.Name()})
	r.logger.Info("Run started", "goal", goal, "viewport", computer.Viewport().String(), "max_turns", uc.cfg.MaxTurns)

	if uc.journal != nil {
		if err := uc.journal.StartRun(ctx, r.id, goal, sessionOf(ctx, computer), uc.modelName); err != nil {
			r.logger.Warn("Journal start failed", "error", err)
		}
	}

	result := uc.loop(ctx, r)

	if uc.journal != nil {
		// The run context may already be cancelled; the summary row is still written.
		jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := uc.journal.FinishRun(jctx, r.id, result); err != nil {
			r.logger.Warn("Journal finish failed", "error", err)
		}
		cancel()
	}

	r.logger.Info("Run finished", "state", result.State, "reason", result.Reason,
		"turns", len(result.Turns), "complete", result.Complete)
	uc.reporter.ShowFinal(ctx, result)
	return result, nil
}

func (uc *UseCase) loop(ctx context.Context, r *run) *entity.AgentResult {
	for turn := 0; turn < uc.cfg.MaxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return uc.abort(r, entity.StopCancelled, fmt.Errorf("%w: %v", entity.ErrCancelled, err))
		}

		t, err := uc.perceive(ctx, r)
		if err != nil {
			return uc.abort(r, stopReasonFor(err), err)
		}

		done, err := uc.decide(ctx, r, &t)
		if err != nil {
			uc.commit(ctx, r, t)
			return uc.abort(r, stopReasonFor(err), err)
		}
		if done {
			uc.commit(ctx, r, t)
			r.state = entity.StateDone
			return uc.result(r, entity.StopFinalAnswer, true, nil)
		}

		fatal := uc.act(ctx, r, &t)
		uc.commit(ctx, r, t)
		if fatal != nil {
			return uc.abort(r, stopReasonFor(fatal), fatal)
		}

		if t.Failed() {
			r.streak++
			r.logger.Warn("Turn failed", "turn", t.Index, "streak", r.streak)
			if r.streak >= uc.cfg.MaxConsecutiveFailures {
				return uc.abort(r, entity.StopConsecutiveFailures,
					fmt.Errorf("%w: %d turns in a row", entity.ErrConsecutiveFailures, r.streak))
			}
		} else {
			r.streak = 0
		}
	}

	r.logger.Warn("Turn limit reached", "max_turns", uc.cfg.MaxTurns)
	r.state = entity.StateDone
	return uc.result(r, entity.StopMaxTurns, false, nil)
}

// perceive captures the screenshot that opens a turn. Only fatal errors are returned;
// a failed capture is recorded on the turn and the model decides without an image.
func (uc *UseCase) perceive(ctx context.Context, r *run) (entity.Turn, error) {
	r.state = entity.StatePerceive
	t := entity.Turn{Index: r.history.Len(), StartedAt: time.Now()}

	shot, err := r.computer.Screenshot(ctx)
	if err != nil {
		if entity.IsFatal(err) || ctx.Err() != nil {
			return t, classifyFatal(ctx, err)
		}
		r.logger.Warn("Screenshot failed", "turn", t.Index, "error", err)
		uc.reporter.ShowRecoverable(ctx, err)
		t.PerceptionErr = err
	} else {
		t.Screenshot = shot
		if shot.Stale {
			r.logger.Info("Screenshot may be stale", "turn", t.Index, "error", entity.ErrPerceptionTimeout)
		}
		uc.saveScreenshot(ctx, r, t.Index, shot)
	}

	if uc.cfg.IncludePageText && uc.pageText != nil {
		t.PageText = uc.readPageText(ctx, r)
	}

	uc.reporter.ShowTurn(ctx, t.Index, uc.cfg.MaxTurns, t.Screenshot)
	return t, nil
}

func (uc *UseCase) saveScreenshot(ctx context.Context, r *run, index int, shot *entity.Screenshot) {
	if uc.screenshots == nil {
		return
	}
	path, err := uc.screenshots.Save(ctx, index, shot)
	if err != nil {
		r.logger.Warn("Screenshot not saved", "turn", index, "error", err)
		return
	}
	r.logger.Debug("Screenshot saved", "turn", index, "path", path)
}

func (uc *UseCase) readPageText(ctx context.Context, r *run) string {
	src, ok := r.computer.(output.PageTextSource)
	if !ok {
		return ""
	}
	html, err := src.PageHTML(ctx)
	if err != nil {
		r.logger.Debug("Page HTML unavailable", "error", err)
		return ""
	}
	url, _ := r.computer.CurrentURL(ctx)
	page, err := uc.pageText.Extract(html, url)
	if err != nil {
		r.logger.Debug("Page text extraction failed", "error", err)
		return ""
	}
	return truncate(page.Text, uc.cfg.MaxObservationLen)
}

// decide asks the model for the next step. done is true when the reply is a final answer.
// A malformed reply is recorded on the turn, not returned.
func (uc *UseCase) decide(ctx context.Context, r *run, t *entity.Turn) (done bool, err error) {
	r.state = entity.StateDecide
	messages := buildMessages(uc.cfg, r.prompt, r.goal, r.history.Turns(), *t)

	resp, err := uc.chat(ctx, r, messages)
	r.decides++
	if err != nil {
		return false, err
	}

	msg := resp.Message
	t.Reasoning = msg.Content
	t.ToolCalls = msg.ToolCalls
	if strings.TrimSpace(msg.Content) != "" {
		r.answer = msg.Content
		uc.reporter.ShowThinking(ctx, msg.Content)
	}

	if len(msg.ToolCalls) == 0 {
		if strings.TrimSpace(msg.Content) == "" {
			t.ModelErr = &entity.ModelResponseError{Reason: "empty reply without tool calls"}
			r.logger.Warn("Malformed model response", "turn", t.Index, "error", t.ModelErr)
			uc.reporter.ShowRecoverable(ctx, t.ModelErr)
			return false, nil
		}
		t.Final = true
		return true, nil
	}

	actions, err := service.ParseCalls(uc.tools, msg.ToolCalls)
	if err != nil {
		t.ModelErr = err
		r.logger.Warn("Malformed model response", "turn", t.Index, "error", err)
		uc.reporter.ShowRecoverable(ctx, err)
		return false, nil
	}
	t.Actions = actions
	return false, nil
}

// chat retries transport failures with the configured backoff.
func (uc *UseCase) chat(ctx context.Context, r *run, messages []entity.Message) (*output.ChatResponse, error) {
	var resp *output.ChatResponse
	op := func() error {
		var err error
		resp, err = uc.llm.Chat(ctx, output.ChatRequest{
			Messages:    messages,
			Tools:       uc.tools.Definitions(),
			Temperature: uc.cfg.Temperature,
		})
		if err != nil && ctx.Err() != nil {
			return service.Permanent(ctx.Err())
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn("Model call failed, retrying", "error", err, "wait", wait)
	}
	if err := service.Retry(ctx, uc.cfg.ModelRetry, op, notify); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", entity.ErrCancelled, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", entity.ErrModelUnavailable, err)
	}
	return resp, nil
}

// act executes the turn's actions in order. Failed actions are recorded and reported;
// only a fatal error stops the remaining actions and is returned.
func (uc *UseCase) act(ctx context.Context, r *run, t *entity.Turn) error {
	r.state = entity.StateAct
	for _, a := range t.Actions {
		uc.reporter.ShowAction(ctx, a)
		outcome := uc.translator.Execute(ctx, r.computer, a)
		t.Outcomes = append(t.Outcomes, outcome)
		uc.reporter.ShowActionResult(ctx, outcome)

		if outcome.Success {
			continue
		}
		if entity.IsFatal(outcome.Err) || ctx.Err() != nil {
			return classifyFatal(ctx, outcome.Err)
		}
		uc.reporter.ShowRecoverable(ctx, outcome.Err)
	}
	return nil
}

// commit finalizes t and appends it to the history.
func (uc *UseCase) commit(ctx context.Context, r *run, t entity.Turn) {
	t.FinishedAt = time.Now()
	index := r.history.Append(t)
	t.Index = index
	if uc.journal != nil {
		if err := uc.journal.RecordTurn(context.WithoutCancel(ctx), r.id, t); err != nil {
			r.logger.Warn("Journal turn write failed", "turn", index, "error", err)
		}
	}
}

func (uc *UseCase) abort(r *run, reason entity.StopReason, err error) *entity.AgentResult {
	r.state = entity.StateAborted
	r.logger.Error("Run aborted", "reason", reason, "error", err)
	res := uc.result(r, reason, false, err)
	// An aborted run has no conclusion, whatever the model said along the way.
	res.Answer = ""
	return res
}

func (uc *UseCase) result(r *run, reason entity.StopReason, complete bool, err error) *entity.AgentResult {
	return &entity.AgentResult{
		RunID:       r.id,
		Answer:      r.answer,
		Complete:    complete,
		State:       r.state,
		Reason:      reason,
		Turns:       r.history.Turns(),
		DecideSteps: r.decides,
		Err:         err,
	}
}

func classifyFatal(ctx context.Context, err error) error {
	if ctx.Err() != nil && !errors.Is(err, entity.ErrEnvironmentSetup) {
		return fmt.Errorf("%w: %v", entity.ErrCancelled, ctx.Err())
	}
	return err
}

func stopReasonFor(err error) entity.StopReason {
	switch {
	case errors.Is(err, entity.ErrCancelled), errors.Is(err, context.Canceled):
		return entity.StopCancelled
	case errors.Is(err, entity.ErrModelUnavailable):
		return entity.StopModelUnavailable
	case errors.Is(err, entity.ErrConsecutiveFailures):
		return entity.StopConsecutiveFailures
	default:
		return entity.StopEnvironment
	}
}

// sessionOf reconstructs the session values a computer was acquired with, for the journal.
func sessionOf(ctx context.Context, c output.Computer) entity.SessionConfig {
	url, _ := c.CurrentURL(ctx)
	return entity.SessionConfig{Viewport: c.Viewport(), Mobile: c.IsMobile(), InitialURL: url}
}

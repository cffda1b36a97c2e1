package agentloop

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"computer-use-agent/internal/application/port/output"
	"computer-use-agent/internal/domain/entity"
)

// scriptedLLM replays replies in order and repeats the last one when the script runs out.
type scriptedLLM struct {
	mu       sync.Mutex
	replies  []scriptedReply
	requests []output.ChatRequest
}

type scriptedReply struct {
	msg entity.Message
	err error
}

func (s *scriptedLLM) Chat(ctx context.Context, req output.ChatRequest) (*output.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.replies) == 0 {
		return nil, errors.New("script exhausted")
	}
	r := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	if r.err != nil {
		return nil, r.err
	}
	return &output.ChatResponse{Message: r.msg}, nil
}

func (s *scriptedLLM) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func answer(text string) scriptedReply {
	return scriptedReply{msg: entity.Message{Role: entity.RoleAssistant, Content: text}}
}

func toolCall(id, name, args string) scriptedReply {
	return scriptedReply{msg: entity.Message{
		Role:      entity.RoleAssistant,
		Content:   "working on it",
		ToolCalls: []entity.ToolCall{{ID: id, Name: name, Arguments: args}},
	}}
}

type recordingReporter struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingReporter) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recordingReporter) ShowTurn(ctx context.Context, index, maxTurns int, shot *entity.Screenshot) {
	r.add("turn %d/%d", index, maxTurns)
}
func (r *recordingReporter) ShowThinking(ctx context.Context, content string) { r.add("think %s", content) }
func (r *recordingReporter) ShowAction(ctx context.Context, action entity.Action) {
	r.add("action %s", action)
}
func (r *recordingReporter) ShowActionResult(ctx context.Context, outcome entity.ActionOutcome) {
	r.add("result %v", outcome.Success)
}
func (r *recordingReporter) ShowRecoverable(ctx context.Context, err error) { r.add("recoverable %v", err) }
func (r *recordingReporter) ShowFinal(ctx context.Context, result *entity.AgentResult) {
	r.add("final %s", result.State)
}

type silentReporter struct{}

func (silentReporter) ShowTurn(context.Context, int, int, *entity.Screenshot) {}
func (silentReporter) ShowThinking(context.Context, string)                   {}
func (silentReporter) ShowAction(context.Context, entity.Action)              {}
func (silentReporter) ShowActionResult(context.Context, entity.ActionOutcome) {}
func (silentReporter) ShowRecoverable(context.Context, error)                 {}
func (silentReporter) ShowFinal(context.Context, *entity.AgentResult)         {}

type memoryStore struct {
	mu    sync.Mutex
	saved map[int][]byte
	err   error
}

func (m *memoryStore) Save(ctx context.Context, turnIndex int, shot *entity.Screenshot) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	if m.saved == nil {
		m.saved = map[int][]byte{}
	}
	m.saved[turnIndex] = shot.Data
	return fmt.Sprintf("mem://%d", turnIndex), nil
}

type memoryJournal struct {
	mu       sync.Mutex
	started  []string
	turns    []int
	finished []*entity.AgentResult
}

func (j *memoryJournal) StartRun(ctx context.Context, runID, goal string, session entity.SessionConfig, model string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.started = append(j.started, runID)
	return nil
}

func (j *memoryJournal) RecordTurn(ctx context.Context, runID string, turn entity.Turn) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.turns = append(j.turns, turn.Index)
	return nil
}

func (j *memoryJournal) FinishRun(ctx context.Context, runID string, result *entity.AgentResult) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.finished = append(j.finished, result)
	return nil
}

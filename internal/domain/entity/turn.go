package entity

import (
	"sync"
	"time"
)

// Turn is one perceive→decide→act iteration.
type Turn struct {
	Index         int
	Screenshot    *Screenshot
	PerceptionErr error
	PageText      string

	Reasoning string
	ToolCalls []ToolCall
	ModelErr  error
	Final     bool

	Actions  []Action
	Outcomes []ActionOutcome

	StartedAt  time.Time
	FinishedAt time.Time
}

// Failed reports whether the turn counts toward the consecutive-failure streak.
func (t Turn) Failed() bool {
	if t.ModelErr != nil {
		return true
	}
	for _, o := range t.Outcomes {
		if !o.Success {
			return true
		}
	}
	return false
}

func (t Turn) clone() Turn {
	c := t
	c.ToolCalls = append([]ToolCall(nil), t.ToolCalls...)
	c.Actions = append([]Action(nil), t.Actions...)
	c.Outcomes = append([]ActionOutcome(nil), t.Outcomes...)
	return c
}

// TurnHistory is the append-only sequence of turns of one run.
type TurnHistory struct {
	mu    sync.RWMutex
	turns []Turn
}

func NewTurnHistory() *TurnHistory {
	return &TurnHistory{}
}

// Append stores a copy of t, assigns its index and returns it.
func (h *TurnHistory) Append(t Turn) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	t = t.clone()
	t.Index = len(h.turns)
	h.turns = append(h.turns, t)
	return t.Index
}

func (h *TurnHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

func (h *TurnHistory) Turns() []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Turn, len(h.turns))
	for i, t := range h.turns {
		out[i] = t.clone()
	}
	return out
}


package entity

type LoopState string

const (
	StateInit     LoopState = "INIT"
	StatePerceive LoopState = "PERCEIVE"
	StateDecide   LoopState = "DECIDE"
	StateAct      LoopState = "ACT"
	StateDone     LoopState = "DONE"
	StateAborted  LoopState = "ABORTED"
)

type StopReason string

const (
	StopFinalAnswer         StopReason = "final_answer"
	StopMaxTurns            StopReason = "max_turns"
	StopConsecutiveFailures StopReason = "consecutive_failures"
	StopEnvironment         StopReason = "environment"
	StopModelUnavailable    StopReason = "model_unavailable"
	StopCancelled           StopReason = "cancelled"
)

// AgentResult is what a run hands back to its caller.
type AgentResult struct {
	RunID string
	// Answer is the model's final text. At the turn limit it is the last text the model
	// produced; an aborted run leaves it empty.
	Answer      string
	Complete    bool
	State       LoopState
	Reason      StopReason
	Turns       []Turn
	DecideSteps int
	Err         error
}

func (r *AgentResult) Aborted() bool {
	return r != nil && r.State == StateAborted
}

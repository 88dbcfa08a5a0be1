package orchestrator

import (
	"github.com/spigell/aspiro/internal/analysis"
)

// Phase is a step of the streaming state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePreparing
	PhaseStreaming
	PhaseFinalizing
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePreparing:
		return "preparing"
	case PhaseStreaming:
		return "streaming"
	case PhaseFinalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// State is an immutable snapshot of one orchestrator as seen by observers.
type State struct {
	Phase     Phase
	SessionID string

	IsStreaming bool

	// Result is the latest partial or final result of a structured feature.
	Result *analysis.Result
	// Text is the accumulated response text.
	Text string

	// Resolution and Incomplete describe how the final result was obtained.
	Resolution analysis.Resolution
	Incomplete bool

	Err  error
	Kind Kind

	// Aborted is set when the session ended through Abort, supersession or
	// cancellation of the caller's context.
	Aborted bool
}

func (s State) clone() State {
	if s.Result != nil {
		res := s.Result.Clone()
		s.Result = &res
	}
	return s
}

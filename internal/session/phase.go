package session

import "github.com/hpungsan/mesa/internal/errors"

// Phase is the presentation-level step of a session.
type Phase string

const (
	PhaseIntro     Phase = "intro"
	PhaseChallenge Phase = "challenge"
	PhaseRecording Phase = "recording"
	PhaseVoting    Phase = "voting"
	PhaseResults   Phase = "results"
	PhaseSummary   Phase = "summary"
)

// IsValid reports whether the phase is supported.
func (p Phase) IsValid() bool {
	switch p {
	case PhaseIntro, PhaseChallenge, PhaseRecording, PhaseVoting, PhaseResults, PhaseSummary:
		return true
	default:
		return false
	}
}

// transitions lists the moves callers may request. recording -> voting is
// absent on purpose: only the recording countdown performs it.
var transitions = map[Phase][]Phase{
	PhaseIntro:     {PhaseChallenge},
	PhaseChallenge: {PhaseRecording},
	PhaseVoting:    {PhaseChallenge, PhaseResults, PhaseSummary},
	PhaseResults:   {PhaseChallenge, PhaseSummary},
}

// CanTransition reports whether a caller may move a session from one phase to another.
// Returning to challenge requires an unfinished session; summary requires a finished one.
func CanTransition(s *GameSession, to Phase) bool {
	allowed := false
	for _, p := range transitions[s.Phase] {
		if p == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}
	switch to {
	case PhaseChallenge:
		return !s.Finished()
	case PhaseSummary:
		return s.Finished()
	}
	return true
}

// Transition moves the session to phase to, or returns INVALID_TRANSITION.
func (e *Engine) Transition(s *GameSession, to Phase) error {
	if !CanTransition(s, to) {
		return errors.NewInvalidTransition(string(s.Phase), string(to))
	}
	now := e.now()
	s.Phase = to
	if to == PhaseRecording {
		s.RecordingDeadline = now.Add(e.recording).Unix()
	}
	s.UpdatedAt = now.Unix()
	return nil
}

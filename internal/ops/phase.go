package ops

import (
	"context"

	"go.uber.org/zap"

	"github.com/hpungsan/mesa/internal/capsule"
	"github.com/hpungsan/mesa/internal/db"
	"github.com/hpungsan/mesa/internal/errors"
	"github.com/hpungsan/mesa/internal/session"
)

// SetPhaseInput contains parameters for the SetPhase operation.
type SetPhaseInput struct {
	ID    string // required
	Phase string // required
}

// SetPhaseOutput is the session after the transition.
type SetPhaseOutput struct {
	Session *session.GameSession `json:"session"`
}

// SetPhase moves a session between presentation phases. Entering recording
// starts the fixed countdown; leaving recording is never a caller's move.
func SetPhase(ctx context.Context, env *Env, input SetPhaseInput) (*SetPhaseOutput, error) {
	sessionID, err := requireID("id", input.ID)
	if err != nil {
		return nil, err
	}
	to := session.Phase(capsule.Normalize(input.Phase))
	if !to.IsValid() {
		return nil, errors.NewInvalidRequest("phase must be one of: intro, challenge, recording, voting, results, summary")
	}

	unlock := env.lockSession(sessionID)
	defer unlock()

	s, err := env.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	from := s.Phase
	if err := env.Engine.Transition(s, to); err != nil {
		return nil, err
	}
	if err := db.UpdateSession(env.DB, s); err != nil {
		return nil, err
	}
	if to == session.PhaseRecording {
		env.armCountdown(s)
	}

	env.Logger.Info("session phase changed",
		zap.String("session_id", s.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return &SetPhaseOutput{Session: s}, nil
}

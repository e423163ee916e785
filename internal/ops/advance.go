package ops

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hpungsan/mesa/internal/capsule"
	"github.com/hpungsan/mesa/internal/db"
	"github.com/hpungsan/mesa/internal/errors"
	"github.com/hpungsan/mesa/internal/session"
)

// AdvanceSessionInput contains parameters for the AdvanceSession operation.
type AdvanceSessionInput struct {
	ID     string // required
	Points int    // optional, added before advancing; must be >= 0
}

// AdvanceSessionOutput is the session after the move and its next card.
type AdvanceSessionOutput struct {
	Session   *session.GameSession `json:"session"`
	Archetype *capsule.Archetype   `json:"archetype,omitempty"`
	Challenge *capsule.Challenge   `json:"challenge,omitempty"`
	Finished  bool                 `json:"finished"`
}

// AdvanceSession skips to the next archetype without a verification.
// A failed attempt on the current card is abandoned; one still in flight
// blocks the move (ATTEMPT_IN_FLIGHT).
func AdvanceSession(ctx context.Context, env *Env, input AdvanceSessionInput) (*AdvanceSessionOutput, error) {
	sessionID, err := requireID("id", input.ID)
	if err != nil {
		return nil, err
	}
	if input.Points < 0 {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("points must be >= 0, got %d", input.Points))
	}

	unlock := env.lockSession(sessionID)
	defer unlock()

	s, err := env.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	active, err := activeAttempt(env, s)
	if err != nil {
		return nil, err
	}
	if active != nil && !active.Status.IsTerminal() {
		return nil, errors.NewAttemptInFlight(s.ID, active.ID)
	}
	s.ActiveAttempt = ""

	if input.Points > 0 {
		env.Engine.AddPoints(s, input.Points)
	}
	if err := env.Engine.Advance(s); err != nil {
		return nil, err
	}
	if err := db.UpdateSession(env.DB, s); err != nil {
		return nil, err
	}

	env.Logger.Info("session advanced",
		zap.String("session_id", s.ID),
		zap.Int("index", s.CurrentIndex),
		zap.Int("points", s.Points),
		zap.Bool("finished", s.Finished()),
	)

	out := &AdvanceSessionOutput{Session: s, Finished: s.Finished()}
	if !s.Finished() {
		out.Archetype, _ = env.Engine.CurrentArchetype(s)
		out.Challenge, _ = env.Engine.CurrentChallenge(s)
	}
	return out, nil
}

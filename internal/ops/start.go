package ops

import (
	"context"

	"go.uber.org/zap"

	"github.com/hpungsan/mesa/internal/capsule"
	"github.com/hpungsan/mesa/internal/db"
	"github.com/hpungsan/mesa/internal/errors"
	"github.com/hpungsan/mesa/internal/session"
)

// StartSessionInput contains parameters for the StartSession operation.
type StartSessionInput struct {
	CapsuleID string // required
	Tier      string // default: mild
	UserID    string // optional; rewards are granted to this wallet
	Venue     string // optional
	Campaign  string // optional
}

// StartSessionOutput contains the new session and its first card.
type StartSessionOutput struct {
	Session   *session.GameSession `json:"session"`
	Archetype *capsule.Archetype   `json:"archetype,omitempty"`
	Challenge *capsule.Challenge   `json:"challenge,omitempty"`
}

// StartSession creates and persists a session at the capsule's first archetype.
func StartSession(ctx context.Context, env *Env, input StartSessionInput) (*StartSessionOutput, error) {
	capsuleID, err := requireID("capsule_id", input.CapsuleID)
	if err != nil {
		return nil, err
	}

	tier := capsule.TierMild
	if input.Tier != "" {
		tier, err = capsule.ParseTier(input.Tier)
		if err != nil {
			return nil, errors.NewInvalidRequest(err.Error())
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelled("start session")
	}

	s, err := env.Engine.Create(session.CreateInput{
		CapsuleID: capsule.Normalize(capsuleID),
		Tier:      tier,
		UserID:    input.UserID,
		Venue:     input.Venue,
		Campaign:  input.Campaign,
	})
	if err != nil {
		return nil, err
	}
	if err := db.InsertSession(env.DB, s); err != nil {
		return nil, err
	}

	env.Logger.Info("session started",
		zap.String("session_id", s.ID),
		zap.String("capsule_id", s.CapsuleID),
		zap.String("tier", string(s.Tier)),
		zap.String("user_id", s.UserID),
	)

	out := &StartSessionOutput{Session: s}
	out.Archetype, _ = env.Engine.CurrentArchetype(s)
	out.Challenge, _ = env.Engine.CurrentChallenge(s)
	return out, nil
}

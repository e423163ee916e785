package ops

import (
	"context"

	"github.com/hpungsan/mesa/internal/capsule"
	"github.com/hpungsan/mesa/internal/db"
	"github.com/hpungsan/mesa/internal/errors"
	"github.com/hpungsan/mesa/internal/session"
	"github.com/hpungsan/mesa/internal/table"
	"github.com/hpungsan/mesa/internal/verify"
)

// GetSessionInput contains parameters for the GetSession operation.
type GetSessionInput struct {
	ID              string // required
	IncludeAttempts bool
}

// GetSessionOutput is the full view of a session.
type GetSessionOutput struct {
	Session        *session.GameSession `json:"session"`
	Archetype      *capsule.Archetype   `json:"archetype,omitempty"`
	Challenge      *capsule.Challenge   `json:"challenge,omitempty"`
	FinalArchetype string               `json:"final_archetype,omitempty"`
	Attempts       []*verify.Attempt    `json:"attempts,omitempty"`
	Table          *table.Table         `json:"table,omitempty"`
}

// GetSession loads a session. An expired recording is closed and saved first.
func GetSession(ctx context.Context, env *Env, input GetSessionInput) (*GetSessionOutput, error) {
	sessionID, err := requireID("id", input.ID)
	if err != nil {
		return nil, err
	}

	unlock := env.lockSession(sessionID)
	defer unlock()

	s, err := env.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	out := &GetSessionOutput{Session: s}
	if !s.Finished() {
		out.Archetype, _ = env.Engine.CurrentArchetype(s)
		out.Challenge, _ = env.Engine.CurrentChallenge(s)
	}
	out.FinalArchetype, _ = session.FinalArchetype(s)

	if input.IncludeAttempts {
		out.Attempts, err = db.ListAttempts(env.DB, s.ID)
		if err != nil {
			return nil, err
		}
	}

	t, err := db.GetTableBySession(env.DB, s.ID)
	switch {
	case err == nil:
		out.Table = t.Snapshot()
	case !errors.Is(err, errors.ErrNotFound):
		return nil, err
	}
	return out, nil
}

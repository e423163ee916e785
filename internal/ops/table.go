package ops

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hpungsan/mesa/internal/capsule"
	"github.com/hpungsan/mesa/internal/db"
	"github.com/hpungsan/mesa/internal/errors"
	"github.com/hpungsan/mesa/internal/session"
	"github.com/hpungsan/mesa/internal/table"
	"github.com/hpungsan/mesa/internal/verify"
)

// JoinTableInput contains parameters for the JoinTable operation.
type JoinTableInput struct {
	SessionID string // required
	Name      string // required
}

// JoinTableOutput is the new participant and the table it joined.
type JoinTableOutput struct {
	Participant table.Participant `json:"participant"`
	Table       *table.Table      `json:"table"`
}

// JoinTable seats a participant at the session's table, opening the table
// with every card of the capsule active on first join.
func JoinTable(ctx context.Context, env *Env, input JoinTableInput) (*JoinTableOutput, error) {
	sessionID, err := requireID("session_id", input.SessionID)
	if err != nil {
		return nil, err
	}

	unlock := env.lockSession(sessionID)
	defer unlock()

	s, err := env.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	t, err := sessionTable(env, s.ID)
	if err != nil {
		return nil, err
	}

	now := env.now().Unix()
	created := false
	if t == nil {
		t, err = openTable(env, s, now)
		if err != nil {
			return nil, err
		}
		created = true
	}

	participantID, err := env.newID()
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("generate participant id: %w", err))
	}
	p, err := t.Join(participantID, input.Name, now)
	if err != nil {
		return nil, err
	}

	if created {
		err = db.InsertTable(env.DB, t)
	} else {
		err = db.UpdateTable(env.DB, t)
	}
	if err != nil {
		return nil, err
	}

	env.Logger.Info("participant joined",
		zap.String("session_id", s.ID),
		zap.String("table_id", t.ID),
		zap.String("participant_id", p.ID),
		zap.Int("participants", t.Count()),
	)
	return &JoinTableOutput{Participant: p, Table: t.Snapshot()}, nil
}

func openTable(env *Env, s *session.GameSession, now int64) (*table.Table, error) {
	c, ok := env.Catalog.Capsule(s.CapsuleID)
	if !ok {
		return nil, errors.NewUnknownCapsule(s.CapsuleID)
	}
	cards := make([]string, 0, c.Len())
	for _, archetypeID := range c.Sequence {
		cards = append(cards, capsule.CardID(c.ID, archetypeID))
	}

	tableID, err := env.newID()
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("generate table id: %w", err))
	}
	return table.New(tableID, s.ID, cards, env.Config.MaxIntensity, now), nil
}

// CastVoteInput contains parameters for the CastVote operation.
type CastVoteInput struct {
	SessionID     string // required
	ParticipantID string // required
	CardID        string // default: the session's current card
}

// CastVoteOutput reports the card's vote count after the vote.
type CastVoteOutput struct {
	CardID      string `json:"card_id"`
	Votes       int    `json:"votes"`
	Added       bool   `json:"added"`
	VotesNeeded int    `json:"votes_needed"`
}

// CastVote records a participant's vote for a card. Repeat votes by the same
// participant are absorbed.
func CastVote(ctx context.Context, env *Env, input CastVoteInput) (*CastVoteOutput, error) {
	sessionID, err := requireID("session_id", input.SessionID)
	if err != nil {
		return nil, err
	}
	participantID, err := requireID("participant_id", input.ParticipantID)
	if err != nil {
		return nil, err
	}

	unlock := env.lockSession(sessionID)
	defer unlock()

	s, err := env.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	t, err := db.GetTableBySession(env.DB, s.ID)
	if err != nil {
		return nil, err
	}

	cardID := input.CardID
	if cardID == "" {
		a, ok := env.Engine.CurrentArchetype(s)
		if !ok {
			return nil, errors.NewUnknownCapsule(s.CapsuleID)
		}
		cardID = capsule.CardID(s.CapsuleID, a.ID)
	}

	votes, added, err := t.CastVote(cardID, participantID, env.now().Unix())
	if err != nil {
		return nil, err
	}
	if added {
		if err := db.UpdateTable(env.DB, t); err != nil {
			return nil, err
		}
		env.Logger.Debug("vote cast",
			zap.String("session_id", s.ID),
			zap.String("card_id", cardID),
			zap.String("participant_id", participantID),
			zap.Int("votes", votes),
		)
	}

	return &CastVoteOutput{
		CardID:      cardID,
		Votes:       votes,
		Added:       added,
		VotesNeeded: env.Resolver.GroupThreshold(t.Count()),
	}, nil
}

// CompleteCardInput contains parameters for the CompleteCard operation.
type CompleteCardInput struct {
	SessionID     string // required
	ParticipantID string // required
	CardID        string // required

	// AttemptID credits the points and intensity of a completed attempt for
	// the card. Without it, Points and Intensity are credited as given.
	AttemptID string
	Points    int
	Intensity int
}

// CompleteCardOutput is the credited participant and the updated table.
type CompleteCardOutput struct {
	Participant table.Participant `json:"participant"`
	Table       *table.Table      `json:"table"`
}

// CompleteCard moves a card to completed and credits one participant.
func CompleteCard(ctx context.Context, env *Env, input CompleteCardInput) (*CompleteCardOutput, error) {
	sessionID, err := requireID("session_id", input.SessionID)
	if err != nil {
		return nil, err
	}
	participantID, err := requireID("participant_id", input.ParticipantID)
	if err != nil {
		return nil, err
	}
	cardID, err := requireID("card_id", input.CardID)
	if err != nil {
		return nil, err
	}
	if input.Points < 0 || input.Intensity < 0 {
		return nil, errors.NewInvalidRequest("points and intensity must be >= 0")
	}

	unlock := env.lockSession(sessionID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelled("complete card")
	}
	t, err := db.GetTableBySession(env.DB, sessionID)
	if err != nil {
		return nil, err
	}

	points, intensity := input.Points, input.Intensity
	if input.AttemptID != "" {
		a, err := db.GetAttempt(env.DB, input.AttemptID)
		if err != nil {
			return nil, err
		}
		if a.SessionID != sessionID || a.CardID != cardID {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("attempt %s is not for card %s", a.ID, cardID))
		}
		if a.Status != verify.StatusCompleted {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("attempt %s is %s, not completed", a.ID, a.Status))
		}
		points, intensity = a.Points, a.Intensity
	}

	p, err := t.CompleteCard(cardID, participantID, points, intensity, env.now().Unix())
	if err != nil {
		return nil, err
	}
	if err := db.UpdateTable(env.DB, t); err != nil {
		return nil, err
	}

	env.Logger.Info("card completed",
		zap.String("session_id", sessionID),
		zap.String("card_id", cardID),
		zap.String("participant_id", p.ID),
		zap.Int("points", points),
		zap.Int("intensity", p.Intensity),
	)
	return &CompleteCardOutput{Participant: p, Table: t.Snapshot()}, nil
}

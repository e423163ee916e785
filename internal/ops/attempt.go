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
	"github.com/hpungsan/mesa/internal/wallet"
)

// StartAttemptInput contains parameters for the StartAttempt operation.
type StartAttemptInput struct {
	SessionID    string // required
	Verification string // optional; overrides the derived method
}

// StartAttemptOutput is the attempt now in progress.
type StartAttemptOutput struct {
	Attempt   *verify.Attempt    `json:"attempt"`
	Challenge *capsule.Challenge `json:"challenge"`

	// VotesNeeded is set for group verification.
	VotesNeeded int `json:"votes_needed,omitempty"`
}

// SubmitAttemptInput contains parameters for the SubmitAttempt operation.
type SubmitAttemptInput struct {
	SessionID string // required
	Payload   verify.Payload

	// Participants is used when the session has no table; default 1.
	Participants int
}

// SubmitAttemptOutput is the resolved attempt and everything it changed.
type SubmitAttemptOutput struct {
	Attempt            *verify.Attempt      `json:"attempt"`
	Outcome            verify.Outcome       `json:"outcome"`
	Session            *session.GameSession `json:"session"`
	CompletedArchetype string               `json:"completed_archetype,omitempty"`
	Granted            []wallet.Item        `json:"granted,omitempty"`
	Finished           bool                 `json:"finished"`
}

// AttemptChallengeInput contains parameters for the AttemptChallenge operation.
type AttemptChallengeInput struct {
	SessionID    string // required
	Verification string // optional
	Payload      verify.Payload
	Participants int
}

// StartAttempt opens a verification attempt for the session's current card.
// A failed attempt on the same card is retried under a new id linked to it.
func StartAttempt(ctx context.Context, env *Env, input StartAttemptInput) (*StartAttemptOutput, error) {
	sessionID, err := requireID("session_id", input.SessionID)
	if err != nil {
		return nil, err
	}
	override, err := parseVerification(input.Verification)
	if err != nil {
		return nil, err
	}

	unlock := env.lockSession(sessionID)
	defer unlock()

	s, err := env.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return startAttempt(ctx, env, s, override)
}

// SubmitAttempt resolves the session's in-progress attempt. On success the
// points are added, the session advances and session rewards are granted to
// the session's user. A failed attempt stays on record and can be retried.
func SubmitAttempt(ctx context.Context, env *Env, input SubmitAttemptInput) (*SubmitAttemptOutput, error) {
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
	return submitAttempt(ctx, env, s, input.Payload, input.Participants)
}

// AttemptChallenge starts and resolves an attempt in one step.
func AttemptChallenge(ctx context.Context, env *Env, input AttemptChallengeInput) (*SubmitAttemptOutput, error) {
	sessionID, err := requireID("session_id", input.SessionID)
	if err != nil {
		return nil, err
	}
	override, err := parseVerification(input.Verification)
	if err != nil {
		return nil, err
	}

	unlock := env.lockSession(sessionID)
	defer unlock()

	s, err := env.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := startAttempt(ctx, env, s, override); err != nil {
		return nil, err
	}
	return submitAttempt(ctx, env, s, input.Payload, input.Participants)
}

func parseVerification(s string) (capsule.Verification, error) {
	if s == "" {
		return "", nil
	}
	v, err := capsule.ParseVerification(s)
	if err != nil {
		return "", errors.NewInvalidRequest(err.Error())
	}
	return v, nil
}

// startAttempt runs under the session lock.
func startAttempt(ctx context.Context, env *Env, s *session.GameSession, override capsule.Verification) (*StartAttemptOutput, error) {
	if s.Finished() {
		return nil, errors.NewInvalidTransition("finished", string(verify.StatusInProgress))
	}

	archetype, ok := env.Engine.CurrentArchetype(s)
	if !ok {
		return nil, errors.NewUnknownCapsule(s.CapsuleID)
	}
	ch, ok := env.Engine.CurrentChallenge(s)
	if !ok {
		return nil, errors.NewNotFound("challenge", capsule.CardID(s.CapsuleID, archetype.ID))
	}

	prev, err := activeAttempt(env, s)
	if err != nil {
		return nil, err
	}
	if prev != nil && !prev.Status.IsTerminal() {
		return nil, errors.NewAttemptInFlight(s.ID, prev.ID)
	}

	attemptID, err := env.newID()
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("generate attempt id: %w", err))
	}
	now := env.now().Unix()

	var a *verify.Attempt
	if prev != nil && prev.Status == verify.StatusFailed && prev.ArchetypeID == archetype.ID {
		a, err = prev.Retry(attemptID, now)
		if err != nil {
			return nil, err
		}
		if override != "" {
			a.Type = override
		}
	} else {
		vt := override
		if vt == "" {
			vt = env.Resolver.DetermineType(ch)
		}
		a = env.Resolver.NewAttempt(attemptID, s.ID, ch, vt)
		if err := a.Start(now); err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelled("start attempt")
	}
	s.ActiveAttempt = a.ID
	s.UpdatedAt = now
	if err := db.BeginAttempt(env.DB, a, s); err != nil {
		return nil, err
	}

	env.Logger.Info("attempt started",
		zap.String("session_id", s.ID),
		zap.String("attempt_id", a.ID),
		zap.String("card_id", a.CardID),
		zap.String("type", string(a.Type)),
		zap.String("retry_of", a.RetryOf),
	)

	out := &StartAttemptOutput{Attempt: a, Challenge: ch}
	if a.Type == capsule.VerificationGroup {
		t, err := sessionTable(env, s.ID)
		if err != nil {
			return nil, err
		}
		out.VotesNeeded = env.Resolver.GroupThreshold(participantCount(t, 0))
	}
	return out, nil
}

// submitAttempt runs under the session lock.
func submitAttempt(ctx context.Context, env *Env, s *session.GameSession, p verify.Payload, participants int) (*SubmitAttemptOutput, error) {
	a, err := activeAttempt(env, s)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, errors.NewInvalidTransition(string(verify.StatusIdle), string(verify.StatusVerifying))
	}

	t, err := sessionTable(env, s.ID)
	if err != nil {
		return nil, err
	}
	if a.Type == capsule.VerificationGroup && p.Votes == 0 && t != nil {
		p.Votes = t.VoteCount(a.CardID)
	}
	vc := verify.Context{
		Participants: participantCount(t, participants),
		Campaign:     s.Campaign != "",
	}

	outcome, err := env.Resolver.Verify(a, vc, p)
	if err != nil {
		return nil, err
	}

	out := &SubmitAttemptOutput{Attempt: a, Outcome: outcome, Session: s}
	if outcome.Success {
		completed, err := env.Engine.Complete(s, outcome.Points)
		if err != nil {
			return nil, err
		}
		out.CompletedArchetype = completed
		s.ActiveAttempt = ""

		// Grants are idempotent and land before the resolution is saved.
		if s.UserID != "" {
			_, _, err := env.Wallets.Update(ctx, s.UserID, func(l *wallet.Ledger, w *wallet.Wallet) bool {
				out.Granted = l.AddSessionRewards(w, s.CapsuleID, completed, s.Tier, s.Points)
				return len(out.Granted) > 0
			})
			if err != nil {
				return nil, err
			}
		}
	}

	// A failed group round starts the next one with a clean ballot.
	var ballot *table.Table
	if !outcome.Success && a.Type == capsule.VerificationGroup && t != nil && t.VoteCount(a.CardID) > 0 {
		t.ResetVotes(a.CardID)
		ballot = t
	}

	s.UpdatedAt = env.now().Unix()
	if err := db.SaveResolution(env.DB, a, ballot, s); err != nil {
		return nil, err
	}
	out.Finished = s.Finished()

	env.Logger.Info("attempt resolved",
		zap.String("session_id", s.ID),
		zap.String("attempt_id", a.ID),
		zap.String("status", string(a.Status)),
		zap.Int("points", outcome.Points),
		zap.Int("session_points", s.Points),
		zap.Int("granted", len(out.Granted)),
	)
	return out, nil
}

// activeAttempt returns the attempt the session points at, or nil.
func activeAttempt(env *Env, s *session.GameSession) (*verify.Attempt, error) {
	if s.ActiveAttempt == "" {
		return nil, nil
	}
	a, err := db.GetAttempt(env.DB, s.ActiveAttempt)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// sessionTable returns the session's table, or nil when none was opened.
func sessionTable(env *Env, sessionID string) (*table.Table, error) {
	t, err := db.GetTableBySession(env.DB, sessionID)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// participantCount prefers the table roster, then the caller's count, then 1.
func participantCount(t *table.Table, fallback int) int {
	if t != nil && t.Count() > 0 {
		return t.Count()
	}
	if fallback > 0 {
		return fallback
	}
	return 1
}

// Package verify decides how a challenge attempt must be proven and resolves
// the attempt into points, intensity and an optional social trigger.
package verify

import (
	"github.com/hpungsan/mesa/internal/capsule"
	"github.com/hpungsan/mesa/internal/errors"
)

// Status is the lifecycle state of an attempt.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusInProgress Status = "in_progress"
	StatusVerifying  Status = "verifying"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further calls are valid on the attempt.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Payload is the captured proof. Capture itself happens elsewhere; only the
// references and the group vote count reach the resolver.
type Payload struct {
	Photo string `json:"photo,omitempty"`
	Audio string `json:"audio,omitempty"`
	Text  string `json:"text,omitempty"`
	Votes int    `json:"votes,omitempty"`
}

// Attempt is one verification of one challenge card.
type Attempt struct {
	ID          string               `json:"id"`
	SessionID   string               `json:"session_id"`
	CardID      string               `json:"card_id"`
	CapsuleID   string               `json:"capsule_id"`
	ArchetypeID string               `json:"archetype_id"`
	Type        capsule.Verification `json:"type"`
	Status      Status               `json:"status"`

	Points        int  `json:"points"`
	Intensity     int  `json:"intensity"`
	SocialTrigger bool `json:"social_trigger"`

	Payload *Payload `json:"payload,omitempty"`

	// RetryOf links a retry to the failed attempt it replaces.
	RetryOf string `json:"retry_of,omitempty"`

	CreatedAt   int64 `json:"created_at"`
	UpdatedAt   int64 `json:"updated_at"`
	CompletedAt int64 `json:"completed_at,omitempty"`
}

// Succeeded reports whether the attempt completed.
func (a *Attempt) Succeeded() bool {
	return a.Status == StatusCompleted
}

// Start moves an idle attempt to in_progress.
func (a *Attempt) Start(now int64) error {
	if a.Status != StatusIdle {
		return errors.NewInvalidTransition(string(a.Status), string(StatusInProgress))
	}
	a.Status = StatusInProgress
	a.UpdatedAt = now
	return nil
}

// Retry returns a fresh in_progress attempt for the same card. Only failed
// attempts may be retried.
func (a *Attempt) Retry(newID string, now int64) (*Attempt, error) {
	if a.Status != StatusFailed {
		return nil, errors.NewInvalidTransition(string(a.Status), string(StatusInProgress))
	}
	return &Attempt{
		ID:          newID,
		SessionID:   a.SessionID,
		CardID:      a.CardID,
		CapsuleID:   a.CapsuleID,
		ArchetypeID: a.ArchetypeID,
		Type:        a.Type,
		Status:      StatusInProgress,
		RetryOf:     a.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

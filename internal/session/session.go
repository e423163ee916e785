// Package session implements the capsule progression engine: a session walks a
// capsule's archetype sequence one step at a time, accumulates points, and
// latches the vault open once enough points are earned.
package session

import (
	"github.com/hpungsan/mesa/internal/capsule"
)

// GameSession is the mutable state of one play-through of a capsule.
type GameSession struct {
	ID        string       `json:"id"`
	CapsuleID string       `json:"capsule_id"`
	Tier      capsule.Tier `json:"tier"`

	// UserID owns the wallet that session rewards are granted to.
	UserID string `json:"user_id,omitempty"`

	// CurrentIndex is 0-based and never decreases; it saturates at the last index.
	CurrentIndex int `json:"current_index"`

	// Completed is append-only and holds each archetype id at most once.
	Completed []string `json:"completed"`

	// Points never decreases during a session.
	Points int `json:"points"`

	// VaultUnlocked latches true once Points reaches the vault threshold.
	VaultUnlocked bool `json:"vault_unlocked"`

	// FinalArchetype is set once advancing is attempted at the last index.
	FinalArchetype string `json:"final_archetype,omitempty"`

	Phase Phase `json:"phase"`

	// RecordingDeadline is the Unix time at which an open recording is force-closed.
	RecordingDeadline int64 `json:"recording_deadline,omitempty"`

	// ActiveAttempt is the id of the verification attempt in flight, if any.
	ActiveAttempt string `json:"active_attempt,omitempty"`

	Venue    string `json:"venue,omitempty"`
	Campaign string `json:"campaign,omitempty"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`

	// Version counts stored writes. A copy whose Version is behind the
	// stored row cannot be written back.
	Version int64 `json:"-"`
}

// Finished reports whether the session reached the end of its sequence.
func (s *GameSession) Finished() bool {
	return s.FinalArchetype != ""
}

// HasCompleted reports whether archetypeID was already completed.
func (s *GameSession) HasCompleted(archetypeID string) bool {
	for _, id := range s.Completed {
		if id == archetypeID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (s *GameSession) Clone() *GameSession {
	c := *s
	c.Completed = append([]string(nil), s.Completed...)
	return &c
}

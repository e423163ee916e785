// Package table lets several participants share one QR-originated session,
// splitting its cards into active and completed and pooling group votes.
package table

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/hpungsan/mesa/internal/errors"
)

// Participant is a player seated at a table. Participants are never removed.
type Participant struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	JoinedAt  int64    `json:"joined_at"`
	Points    int      `json:"points"`
	Completed []string `json:"completed"`

	// Intensity is the emotional-intensity accumulator, capped at the table max
	Intensity int `json:"intensity"`
}

// Table wraps a game session with its participants and card split.
// All methods are safe for concurrent use.
type Table struct {
	mu sync.Mutex

	ID        string `json:"id"`
	SessionID string `json:"session_id"`

	Participants   []Participant `json:"participants"`
	ActiveCards    []string      `json:"active_cards"`
	CompletedCards []string      `json:"completed_cards"`

	// Votes holds, per card, the participants who voted for it.
	Votes map[string][]string `json:"votes"`

	MaxIntensity int   `json:"max_intensity"`
	CreatedAt    int64 `json:"created_at"`
	UpdatedAt    int64 `json:"updated_at"`

	// Version counts stored writes of the table row.
	Version int64 `json:"-"`
}

// New creates a table for sessionID with every card active.
func New(id, sessionID string, cards []string, maxIntensity int, now int64) *Table {
	return &Table{
		ID:             id,
		SessionID:      sessionID,
		Participants:   []Participant{},
		ActiveCards:    append([]string{}, cards...),
		CompletedCards: []string{},
		Votes:          map[string][]string{},
		MaxIntensity:   maxIntensity,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Snapshot returns a deep copy safe to serialize while the table keeps changing.
func (t *Table) Snapshot() *Table {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := &Table{
		ID:             t.ID,
		SessionID:      t.SessionID,
		Participants:   make([]Participant, len(t.Participants)),
		ActiveCards:    append([]string{}, t.ActiveCards...),
		CompletedCards: append([]string{}, t.CompletedCards...),
		Votes:          make(map[string][]string, len(t.Votes)),
		MaxIntensity:   t.MaxIntensity,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
		Version:        t.Version,
	}
	for i, p := range t.Participants {
		p.Completed = append([]string{}, p.Completed...)
		c.Participants[i] = p
	}
	for card, voters := range t.Votes {
		c.Votes[card] = append([]string{}, voters...)
	}
	return c
}

// SetVersion records the stored version after a successful write.
func (t *Table) SetVersion(v int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Version = v
}

// Join seats a new participant and returns a copy of it.
func (t *Table) Join(participantID, name string, now int64) (Participant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Participant{}, errors.NewInvalidRequest("participant name is required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.participant(participantID) != nil {
		return Participant{}, errors.NewInvalidRequest(fmt.Sprintf("participant %s already joined", participantID))
	}
	p := Participant{ID: participantID, Name: name, JoinedAt: now, Completed: []string{}}
	t.Participants = append(t.Participants, p)
	t.UpdatedAt = now
	return p, nil
}

// Participant returns a copy of the participant with id.
func (t *Table) Participant(id string) (Participant, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.participant(id)
	if p == nil {
		return Participant{}, false
	}
	out := *p
	out.Completed = append([]string{}, p.Completed...)
	return out, true
}

// Count returns the number of seated participants.
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Participants)
}

func (t *Table) participant(id string) *Participant {
	for i := range t.Participants {
		if t.Participants[i].ID == id {
			return &t.Participants[i]
		}
	}
	return nil
}

// CastVote records participantID's vote for an active card and returns the
// card's vote count. A participant votes at most once per card; a repeat
// vote is absorbed and reported with added=false.
func (t *Table) CastVote(cardID, participantID string, now int64) (votes int, added bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.participant(participantID) == nil {
		return 0, false, errors.NewNotFound("participant", participantID)
	}
	if !slices.Contains(t.ActiveCards, cardID) {
		return 0, false, errors.NewInvalidRequest(fmt.Sprintf("card %s is not active", cardID))
	}

	voters := t.Votes[cardID]
	if slices.Contains(voters, participantID) {
		return len(voters), false, nil
	}
	t.Votes[cardID] = append(voters, participantID)
	t.UpdatedAt = now
	return len(t.Votes[cardID]), true, nil
}

// VoteCount returns the votes recorded for cardID.
func (t *Table) VoteCount(cardID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Votes[cardID])
}

// ResetVotes clears the votes of cardID.
func (t *Table) ResetVotes(cardID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.Votes, cardID)
}

// CompleteCard moves cardID from active to completed and credits points and
// intensity to participantID only. Other active cards are left untouched.
func (t *Table) CompleteCard(cardID, participantID string, points, intensity int, now int64) (Participant, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.participant(participantID)
	if p == nil {
		return Participant{}, errors.NewNotFound("participant", participantID)
	}
	i := slices.Index(t.ActiveCards, cardID)
	if i < 0 {
		return Participant{}, errors.NewInvalidRequest(fmt.Sprintf("card %s is not active", cardID))
	}

	t.ActiveCards = slices.Delete(t.ActiveCards, i, i+1)
	t.CompletedCards = append(t.CompletedCards, cardID)
	delete(t.Votes, cardID)

	p.Points += max(points, 0)
	p.Completed = append(p.Completed, cardID)
	p.Intensity = min(p.Intensity+max(intensity, 0), t.MaxIntensity)
	t.UpdatedAt = now

	out := *p
	out.Completed = append([]string{}, p.Completed...)
	return out, nil
}

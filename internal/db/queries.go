package db

import (
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/hpungsan/mesa/internal/capsule"
	"github.com/hpungsan/mesa/internal/errors"
	"github.com/hpungsan/mesa/internal/session"
	"github.com/hpungsan/mesa/internal/table"
	"github.com/hpungsan/mesa/internal/verify"
)

// ErrUniqueConstraint is returned when an insert violates a UNIQUE constraint.
var ErrUniqueConstraint = &errors.MesaError{
	Code:    "UNIQUE_CONSTRAINT",
	Status:  409,
	Message: "unique constraint violation",
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite returns "UNIQUE constraint failed: ..." for unique violations
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

const sessionColumns = `id, capsule_id, tier, user_id, current_index, completed_json,
	points, vault_unlocked, final_archetype, phase, recording_deadline,
	active_attempt, venue, campaign, created_at, updated_at, version`

// InsertSession stores a new session.
func InsertSession(db *sql.DB, s *session.GameSession) error {
	completed, err := json.Marshal(s.Completed)
	if err != nil {
		return errors.NewInternal(err)
	}

	_, err = db.Exec(`INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.CapsuleID, string(s.Tier), toNullString(s.UserID), s.CurrentIndex, string(completed),
		s.Points, s.VaultUnlocked, toNullString(s.FinalArchetype), string(s.Phase), toNullInt(s.RecordingDeadline),
		toNullString(s.ActiveAttempt), toNullString(s.Venue), toNullString(s.Campaign), s.CreatedAt, s.UpdatedAt,
		s.Version,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}
	return nil
}

// GetSession retrieves a session by id.
func GetSession(db *sql.DB, id string) (*session.GameSession, error) {
	row := db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("session", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return s, nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

// UpdateSession writes every mutable field of s and bumps its version.
// The write only applies when the stored version still equals s.Version;
// otherwise another writer got there first and CONFLICT is returned.
// Does NOT change: id, capsule, tier, user, created_at
func UpdateSession(db *sql.DB, s *session.GameSession) error {
	if err := updateSession(db, s); err != nil {
		return err
	}
	s.Version++
	return nil
}

func updateSession(ex execer, s *session.GameSession) error {
	completed, err := json.Marshal(s.Completed)
	if err != nil {
		return errors.NewInternal(err)
	}

	result, err := ex.Exec(`
		UPDATE sessions
		SET current_index = ?, completed_json = ?, points = ?, vault_unlocked = ?,
			final_archetype = ?, phase = ?, recording_deadline = ?, active_attempt = ?,
			updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		s.CurrentIndex, string(completed), s.Points, s.VaultUnlocked,
		toNullString(s.FinalArchetype), string(s.Phase), toNullInt(s.RecordingDeadline), toNullString(s.ActiveAttempt),
		s.UpdatedAt, s.ID, s.Version,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected > 0 {
		return nil
	}

	var one int
	err = ex.QueryRow(`SELECT 1 FROM sessions WHERE id = ?`, s.ID).Scan(&one)
	if err == sql.ErrNoRows {
		return errors.NewNotFound("session", s.ID)
	}
	if err != nil {
		return errors.NewInternal(err)
	}
	return errors.NewConflict("session", s.ID)
}

// BeginAttempt stores a new attempt and the session that now points at it
// in one transaction.
func BeginAttempt(database *sql.DB, a *verify.Attempt, s *session.GameSession) error {
	tx, err := database.Begin()
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := insertAttempt(tx, a); err != nil {
		return err
	}
	if err := updateSession(tx, s); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	s.Version++
	return nil
}

// SaveResolution writes a resolved attempt, the session it advanced and,
// when non-nil, the session's table in one transaction.
func SaveResolution(database *sql.DB, a *verify.Attempt, t *table.Table, s *session.GameSession) error {
	tx, err := database.Begin()
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := updateAttempt(tx, a); err != nil {
		return err
	}
	var tableVersion int64
	if t != nil {
		if tableVersion, err = updateTable(tx, t); err != nil {
			return err
		}
	}
	if err := updateSession(tx, s); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	if t != nil {
		t.SetVersion(tableVersion)
	}
	s.Version++
	return nil
}

// ListRecordingSessions returns the ids of sessions still in the recording phase.
// The server uses it to re-arm countdowns after a restart.
func ListRecordingSessions(db *sql.DB) ([]string, error) {
	rows, err := db.Query(`SELECT id FROM sessions WHERE phase = ? ORDER BY recording_deadline`, string(session.PhaseRecording))
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.NewInternal(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return ids, nil
}

func scanSession(row *sql.Row) (*session.GameSession, error) {
	var (
		s                 session.GameSession
		tier, phase       string
		userID            sql.NullString
		completedJSON     string
		finalArchetype    sql.NullString
		recordingDeadline sql.NullInt64
		activeAttempt     sql.NullString
		venue, campaign   sql.NullString
	)

	err := row.Scan(
		&s.ID, &s.CapsuleID, &tier, &userID, &s.CurrentIndex, &completedJSON,
		&s.Points, &s.VaultUnlocked, &finalArchetype, &phase, &recordingDeadline,
		&activeAttempt, &venue, &campaign, &s.CreatedAt, &s.UpdatedAt, &s.Version,
	)
	if err != nil {
		return nil, err
	}

	s.Tier = capsule.Tier(tier)
	s.Phase = session.Phase(phase)
	s.UserID = userID.String
	s.FinalArchetype = finalArchetype.String
	s.RecordingDeadline = recordingDeadline.Int64
	s.ActiveAttempt = activeAttempt.String
	s.Venue = venue.String
	s.Campaign = campaign.String

	if err := json.Unmarshal([]byte(completedJSON), &s.Completed); err != nil {
		return nil, err
	}
	if s.Completed == nil {
		s.Completed = []string{}
	}

	return &s, nil
}

const attemptColumns = `id, session_id, card_id, capsule_id, archetype_id, type, status,
	points, intensity, social_trigger, payload_json, retry_of, created_at, updated_at, completed_at`

// InsertAttempt stores a new verification attempt.
func InsertAttempt(db *sql.DB, a *verify.Attempt) error {
	return insertAttempt(db, a)
}

func insertAttempt(ex execer, a *verify.Attempt) error {
	payload, err := marshalPayload(a.Payload)
	if err != nil {
		return errors.NewInternal(err)
	}

	_, err = ex.Exec(`INSERT INTO attempts (`+attemptColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SessionID, a.CardID, a.CapsuleID, a.ArchetypeID, string(a.Type), string(a.Status),
		a.Points, a.Intensity, a.SocialTrigger, payload, toNullString(a.RetryOf),
		a.CreatedAt, a.UpdatedAt, toNullInt(a.CompletedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}
	return nil
}

// GetAttempt retrieves an attempt by id.
func GetAttempt(db *sql.DB, id string) (*verify.Attempt, error) {
	row := db.QueryRow(`SELECT `+attemptColumns+` FROM attempts WHERE id = ?`, id)
	a, err := scanAttempt(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("attempt", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return a, nil
}

// UpdateAttempt writes the outcome fields of a.
func UpdateAttempt(db *sql.DB, a *verify.Attempt) error {
	return updateAttempt(db, a)
}

func updateAttempt(ex execer, a *verify.Attempt) error {
	payload, err := marshalPayload(a.Payload)
	if err != nil {
		return errors.NewInternal(err)
	}

	result, err := ex.Exec(`
		UPDATE attempts
		SET status = ?, points = ?, intensity = ?, social_trigger = ?, payload_json = ?,
			updated_at = ?, completed_at = ?
		WHERE id = ?`,
		string(a.Status), a.Points, a.Intensity, a.SocialTrigger, payload,
		a.UpdatedAt, toNullInt(a.CompletedAt), a.ID,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound("attempt", a.ID)
	}
	return nil
}

// ListAttempts returns a session's attempts, oldest first.
func ListAttempts(db *sql.DB, sessionID string) ([]*verify.Attempt, error) {
	rows, err := db.Query(`SELECT `+attemptColumns+` FROM attempts WHERE session_id = ? ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	out := []*verify.Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row scanner) (*verify.Attempt, error) {
	var (
		a           verify.Attempt
		vt, status  string
		payloadJSON sql.NullString
		retryOf     sql.NullString
		completedAt sql.NullInt64
	)

	err := row.Scan(
		&a.ID, &a.SessionID, &a.CardID, &a.CapsuleID, &a.ArchetypeID, &vt, &status,
		&a.Points, &a.Intensity, &a.SocialTrigger, &payloadJSON, &retryOf,
		&a.CreatedAt, &a.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Type = capsule.Verification(vt)
	a.Status = verify.Status(status)
	a.RetryOf = retryOf.String
	a.CompletedAt = completedAt.Int64

	if payloadJSON.Valid && payloadJSON.String != "" {
		a.Payload = &verify.Payload{}
		if err := json.Unmarshal([]byte(payloadJSON.String), a.Payload); err != nil {
			return nil, err
		}
	}

	return &a, nil
}

func marshalPayload(p *verify.Payload) (sql.NullString, error) {
	if p == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// toNullString maps the empty string to NULL.
func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// toNullInt maps zero to NULL.
func toNullInt(v int64) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v, Valid: true}
}

// fromNullInt converts a sql.NullInt64 to *int64.
func fromNullInt(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

// toNullIntPtr converts a *int64 to sql.NullInt64.
func toNullIntPtr(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

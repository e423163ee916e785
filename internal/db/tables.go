package db

import (
	"database/sql"
	"encoding/json"

	"github.com/hpungsan/mesa/internal/errors"
	"github.com/hpungsan/mesa/internal/table"
)

// InsertTable stores a new table. Each session hosts at most one table.
func InsertTable(db *sql.DB, t *table.Table) error {
	snap := t.Snapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		return errors.NewInternal(err)
	}

	_, err = db.Exec(`
		INSERT INTO tables (id, session_id, data_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		snap.ID, snap.SessionID, string(data), snap.CreatedAt, snap.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}
	return nil
}

// GetTable retrieves a table by id.
func GetTable(db *sql.DB, id string) (*table.Table, error) {
	return getTable(db, `SELECT data_json, version FROM tables WHERE id = ?`, id)
}

// GetTableBySession retrieves the table hosting sessionID.
func GetTableBySession(db *sql.DB, sessionID string) (*table.Table, error) {
	return getTable(db, `SELECT data_json, version FROM tables WHERE session_id = ?`, sessionID)
}

func getTable(db *sql.DB, query, key string) (*table.Table, error) {
	var (
		data    string
		version int64
	)
	err := db.QueryRow(query, key).Scan(&data, &version)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("table", key)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	t := &table.Table{}
	if err := json.Unmarshal([]byte(data), t); err != nil {
		return nil, errors.NewInternal(err)
	}
	if t.Votes == nil {
		t.Votes = map[string][]string{}
	}
	t.Version = version
	return t, nil
}

// UpdateTable writes the full table state. Like UpdateSession it refuses a
// copy whose version is behind the stored row (CONFLICT).
func UpdateTable(db *sql.DB, t *table.Table) error {
	version, err := updateTable(db, t)
	if err != nil {
		return err
	}
	t.SetVersion(version)
	return nil
}

// updateTable returns the version the row now has.
func updateTable(ex execer, t *table.Table) (int64, error) {
	snap := t.Snapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		return 0, errors.NewInternal(err)
	}

	result, err := ex.Exec(`
		UPDATE tables SET data_json = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		string(data), snap.UpdatedAt, snap.ID, snap.Version)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	if rowsAffected > 0 {
		return snap.Version + 1, nil
	}

	var one int
	err = ex.QueryRow(`SELECT 1 FROM tables WHERE id = ?`, snap.ID).Scan(&one)
	if err == sql.ErrNoRows {
		return 0, errors.NewNotFound("table", snap.ID)
	}
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return 0, errors.NewConflict("table", snap.ID)
}

package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/mesa/internal/config"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 2

// Init initializes the SQLite database at baseDir/mesa.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.mesa.
func Init(baseDir string) (*sql.DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	_ = os.Chmod(baseDir, 0700)

	// Wallet exports land here by default
	exportsDir := filepath.Join(baseDir, "exports")
	if err := os.MkdirAll(exportsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create exports directory: %w", err)
	}
	_ = os.Chmod(exportsDir, 0700)

	// Pragmas in the DSN apply to every pooled connection
	dbPath := filepath.Join(baseDir, "mesa.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: sessions, attempts, wallets, tables
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS sessions (
		  id                 TEXT PRIMARY KEY,
		  capsule_id         TEXT NOT NULL,
		  tier               TEXT NOT NULL,
		  user_id            TEXT,
		  current_index      INTEGER NOT NULL DEFAULT 0,
		  completed_json     TEXT NOT NULL DEFAULT '[]',
		  points             INTEGER NOT NULL DEFAULT 0,
		  vault_unlocked     INTEGER NOT NULL DEFAULT 0,
		  final_archetype    TEXT,
		  phase              TEXT NOT NULL,
		  recording_deadline INTEGER,
		  active_attempt     TEXT,
		  venue              TEXT,
		  campaign           TEXT,
		  created_at         INTEGER NOT NULL,
		  updated_at         INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_user
		ON sessions(user_id, updated_at DESC)
		WHERE user_id IS NOT NULL;

		CREATE TABLE IF NOT EXISTS attempts (
		  id             TEXT PRIMARY KEY,
		  session_id     TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		  card_id        TEXT NOT NULL,
		  capsule_id     TEXT NOT NULL,
		  archetype_id   TEXT NOT NULL,
		  type           TEXT NOT NULL,
		  status         TEXT NOT NULL,
		  points         INTEGER NOT NULL DEFAULT 0,
		  intensity      INTEGER NOT NULL DEFAULT 0,
		  social_trigger INTEGER NOT NULL DEFAULT 0,
		  payload_json   TEXT,
		  retry_of       TEXT,
		  created_at     INTEGER NOT NULL,
		  updated_at     INTEGER NOT NULL,
		  completed_at   INTEGER
		);

		CREATE INDEX IF NOT EXISTS idx_attempts_session
		ON attempts(session_id, created_at);

		CREATE TABLE IF NOT EXISTS wallets (
		  user_id      TEXT PRIMARY KEY,
		  last_updated INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS wallet_items (
		  user_id         TEXT NOT NULL REFERENCES wallets(user_id) ON DELETE CASCADE,
		  id              TEXT NOT NULL,
		  seq             INTEGER NOT NULL,
		  type            TEXT NOT NULL,
		  name            TEXT NOT NULL,
		  description     TEXT,
		  capsule_id      TEXT,
		  archetype_id    TEXT,
		  rarity          TEXT NOT NULL,
		  acquired_at     INTEGER NOT NULL,
		  expires_at      INTEGER,
		  redeemed        INTEGER NOT NULL DEFAULT 0,
		  redeemed_at     INTEGER,
		  redemption_code TEXT,
		  PRIMARY KEY (user_id, id)
		);

		CREATE INDEX IF NOT EXISTS idx_wallet_items_expiry
		ON wallet_items(expires_at)
		WHERE expires_at IS NOT NULL AND redeemed = 0;

		CREATE TABLE IF NOT EXISTS tables (
		  id         TEXT PRIMARY KEY,
		  session_id TEXT NOT NULL UNIQUE REFERENCES sessions(id) ON DELETE CASCADE,
		  data_json  TEXT NOT NULL,
		  created_at INTEGER NOT NULL,
		  updated_at INTEGER NOT NULL
		);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
		version = 1
	}

	// Migration 1 -> 2: write counters for cross-process updates
	if version < 2 {
		for _, stmt := range []string{
			`ALTER TABLE sessions ADD COLUMN version INTEGER NOT NULL DEFAULT 0`,
			`ALTER TABLE tables ADD COLUMN version INTEGER NOT NULL DEFAULT 0`,
		} {
			if _, err := db.Exec(stmt); err != nil {
				return fmt.Errorf("migration 2 failed: %w", err)
			}
		}
		if err := SetUserVersion(db, 2); err != nil {
			return err
		}
	}

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}

package db

import (
	"context"
	"database/sql"

	"github.com/hpungsan/mesa/internal/capsule"
	"github.com/hpungsan/mesa/internal/errors"
	"github.com/hpungsan/mesa/internal/wallet"
)

// WalletStore persists wallets in SQLite. It satisfies wallet.Store.
type WalletStore struct {
	db *sql.DB
}

// NewWalletStore wraps db as a wallet store.
func NewWalletStore(db *sql.DB) *WalletStore {
	return &WalletStore{db: db}
}

var (
	_ wallet.Store    = (*WalletStore)(nil)
	_ wallet.Modifier = (*WalletStore)(nil)
)

// dbtx is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Load returns the wallet for userID with items in insertion order.
func (s *WalletStore) Load(ctx context.Context, userID string) (*wallet.Wallet, bool, error) {
	return loadWallet(ctx, s.db, userID)
}

// Save replaces the stored wallet in one transaction.
func (s *WalletStore) Save(ctx context.Context, w *wallet.Wallet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapCtx(ctx, "wallet save", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := saveWallet(ctx, tx, w); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return wrapCtx(ctx, "wallet save", err)
	}
	return nil
}

// Modify loads the wallet for userID, applies fn and saves the result when fn
// reports a change. It runs inside BEGIN IMMEDIATE, so the database write lock
// is held from the read to the save and writers in other processes queue up
// behind it (up to the busy timeout).
func (s *WalletStore) Modify(ctx context.Context, userID string, fn func(w *wallet.Wallet) bool) (*wallet.Wallet, bool, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, false, wrapCtx(ctx, "wallet update", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return nil, false, wrapCtx(ctx, "wallet update", err)
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	w, found, err := loadWallet(ctx, conn, userID)
	if err != nil {
		return nil, false, err
	}
	if !found {
		w = wallet.New(userID)
	}
	if !fn(w) {
		return w, false, nil
	}
	if err := saveWallet(ctx, conn, w); err != nil {
		return nil, false, err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return nil, false, wrapCtx(ctx, "wallet update", err)
	}
	committed = true
	return w, true, nil
}

func loadWallet(ctx context.Context, q dbtx, userID string) (*wallet.Wallet, bool, error) {
	var lastUpdated int64
	err := q.QueryRowContext(ctx, `SELECT last_updated FROM wallets WHERE user_id = ?`, userID).Scan(&lastUpdated)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapCtx(ctx, "wallet load", err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, type, name, description, capsule_id, archetype_id, rarity,
			acquired_at, expires_at, redeemed, redeemed_at, redemption_code
		FROM wallet_items
		WHERE user_id = ?
		ORDER BY seq`, userID)
	if err != nil {
		return nil, false, wrapCtx(ctx, "wallet load", err)
	}
	defer rows.Close()

	w := &wallet.Wallet{UserID: userID, Items: []wallet.Item{}, LastUpdated: lastUpdated}
	for rows.Next() {
		var (
			it                     wallet.Item
			itemType, rarity       string
			description, code      sql.NullString
			capsuleID, archetypeID sql.NullString
			expiresAt, redeemedAt  sql.NullInt64
		)
		if err := rows.Scan(
			&it.ID, &itemType, &it.Name, &description, &capsuleID, &archetypeID, &rarity,
			&it.AcquiredAt, &expiresAt, &it.Redeemed, &redeemedAt, &code,
		); err != nil {
			return nil, false, errors.NewInternal(err)
		}
		it.Type = wallet.ItemType(itemType)
		it.Rarity = capsule.Rarity(rarity)
		it.Description = description.String
		it.CapsuleID = capsuleID.String
		it.ArchetypeID = archetypeID.String
		it.ExpiresAt = fromNullInt(expiresAt)
		it.RedeemedAt = fromNullInt(redeemedAt)
		it.RedemptionCode = code.String
		w.Items = append(w.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, false, wrapCtx(ctx, "wallet load", err)
	}

	return w, true, nil
}

// saveWallet rewrites the wallet row and its items. The caller owns the transaction.
func saveWallet(ctx context.Context, tx dbtx, w *wallet.Wallet) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO wallets (user_id, last_updated) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET last_updated = excluded.last_updated`,
		w.UserID, w.LastUpdated,
	); err != nil {
		return wrapCtx(ctx, "wallet save", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM wallet_items WHERE user_id = ?`, w.UserID); err != nil {
		return wrapCtx(ctx, "wallet save", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO wallet_items (
			user_id, id, seq, type, name, description, capsule_id, archetype_id, rarity,
			acquired_at, expires_at, redeemed, redeemed_at, redemption_code
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return wrapCtx(ctx, "wallet save", err)
	}
	defer stmt.Close()

	for i, it := range w.Items {
		if _, err := stmt.ExecContext(ctx,
			w.UserID, it.ID, i, string(it.Type), it.Name, toNullString(it.Description),
			toNullString(it.CapsuleID), toNullString(it.ArchetypeID), string(it.Rarity),
			it.AcquiredAt, toNullIntPtr(it.ExpiresAt), it.Redeemed, toNullIntPtr(it.RedeemedAt),
			toNullString(it.RedemptionCode),
		); err != nil {
			if isUniqueConstraintError(err) {
				return ErrUniqueConstraint
			}
			return wrapCtx(ctx, "wallet save", err)
		}
	}
	return nil
}

// ListWalletUsers returns every user id with a stored wallet.
func ListWalletUsers(db *sql.DB) ([]string, error) {
	rows, err := db.Query(`SELECT user_id FROM wallets ORDER BY user_id`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	users := []string{}
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, errors.NewInternal(err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return users, nil
}

// ListUsersWithExpired returns users holding an unredeemed item expired at now.
func ListUsersWithExpired(db *sql.DB, now int64) ([]string, error) {
	rows, err := db.Query(`
		SELECT DISTINCT user_id FROM wallet_items
		WHERE redeemed = 0 AND expires_at IS NOT NULL AND expires_at <= ?
		ORDER BY user_id`, now)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	users := []string{}
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, errors.NewInternal(err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return users, nil
}

// wrapCtx reports a cancelled context as CANCELLED and anything else as INTERNAL.
func wrapCtx(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return errors.NewCancelled(op)
	}
	return errors.NewInternal(err)
}

package ops

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hpungsan/mesa/internal/db"
	"github.com/hpungsan/mesa/internal/errors"
	"github.com/hpungsan/mesa/internal/wallet"
)

// PurgeInput contains parameters for the PurgeExpired operation.
type PurgeInput struct {
	UserID string // optional; default: every user holding expired items
}

// PurgeOutput contains the result of the PurgeExpired operation.
type PurgeOutput struct {
	Purged  int    `json:"purged"`
	Users   int    `json:"users"`
	Message string `json:"message"`
}

// PurgeExpired drops unredeemed items past their expiry.
func PurgeExpired(ctx context.Context, env *Env, input PurgeInput) (*PurgeOutput, error) {
	users := []string{input.UserID}
	if input.UserID == "" {
		var err error
		users, err = db.ListUsersWithExpired(env.DB, env.now().Unix())
		if err != nil {
			return nil, err
		}
	}

	purged, touched := 0, 0
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewCancelled("purge")
		}
		removed := 0
		_, _, err := env.Wallets.Update(ctx, userID, func(l *wallet.Ledger, w *wallet.Wallet) bool {
			removed = l.PurgeExpired(w)
			return removed > 0
		})
		if err != nil {
			return nil, err
		}
		if removed > 0 {
			purged += removed
			touched++
			env.Logger.Info("expired items purged", zap.String("user_id", userID), zap.Int("count", removed))
		}
	}

	return &PurgeOutput{
		Purged:  purged,
		Users:   touched,
		Message: formatPurgeMessage(purged, touched, input.UserID),
	}, nil
}

// formatPurgeMessage creates a human-readable message for the purge result.
func formatPurgeMessage(count, users int, userID string) string {
	if count == 0 {
		return "No expired items to purge"
	}

	itemWord := "item"
	if count > 1 {
		itemWord = "items"
	}
	msg := fmt.Sprintf("Purged %d expired %s", count, itemWord)

	if userID != "" {
		return msg + fmt.Sprintf(" from wallet %q", userID)
	}
	walletWord := "wallet"
	if users > 1 {
		walletWord = "wallets"
	}
	return msg + fmt.Sprintf(" across %d %s", users, walletWord)
}

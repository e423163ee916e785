package ops

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hpungsan/mesa/internal/capsule"
	"github.com/hpungsan/mesa/internal/db"
	"github.com/hpungsan/mesa/internal/errors"
	"github.com/hpungsan/mesa/internal/wallet"
)

// ShowWalletInput contains parameters for the ShowWallet operation.
type ShowWalletInput struct {
	UserID    string // required
	Type      string // optional filter
	CapsuleID string // optional filter
}

// ShowWalletOutput is a (possibly filtered) view of a wallet.
type ShowWalletOutput struct {
	UserID      string        `json:"user_id"`
	Items       []wallet.Item `json:"items"`
	Stats       wallet.Stats  `json:"stats"`
	LastUpdated int64         `json:"last_updated"`
}

// ShowWallet returns a user's items. A user with no wallet yet gets an empty
// one. Stats always cover the whole wallet.
func ShowWallet(ctx context.Context, env *Env, input ShowWalletInput) (*ShowWalletOutput, error) {
	w, err := env.Wallets.Get(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	items := w.Items
	if input.Type != "" {
		t := wallet.ItemType(capsule.Normalize(input.Type))
		if !t.IsValid() {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown item type %q", input.Type))
		}
		items = w.ByType(t)
	}
	if input.CapsuleID != "" {
		capsuleID := capsule.Normalize(input.CapsuleID)
		filtered := []wallet.Item{}
		for _, it := range items {
			if it.CapsuleID == capsuleID {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}

	return &ShowWalletOutput{
		UserID:      w.UserID,
		Items:       items,
		Stats:       w.Stats(),
		LastUpdated: w.LastUpdated,
	}, nil
}

// RedeemInput contains parameters for the Redeem operation.
type RedeemInput struct {
	UserID string // required
	ItemID string // required
}

// RedeemOutput reports the redemption. Redeemed is false when the item is
// missing or was already redeemed; neither is an error.
type RedeemOutput struct {
	Redeemed bool         `json:"redeemed"`
	Item     *wallet.Item `json:"item,omitempty"`
}

// Redeem marks a wallet item redeemed.
func Redeem(ctx context.Context, env *Env, input RedeemInput) (*RedeemOutput, error) {
	itemID, err := requireID("item_id", input.ItemID)
	if err != nil {
		return nil, err
	}

	w, changed, err := env.Wallets.Update(ctx, input.UserID, func(l *wallet.Ledger, w *wallet.Wallet) bool {
		return l.Redeem(w, itemID)
	})
	if err != nil {
		return nil, err
	}

	out := &RedeemOutput{Redeemed: changed}
	if it, ok := w.Get(itemID); ok {
		item := *it
		out.Item = &item
	}
	if changed {
		env.Logger.Info("item redeemed", zap.String("user_id", w.UserID), zap.String("item_id", itemID))
	}
	return out, nil
}

// WalletStatsInput contains parameters for the WalletStats operation.
type WalletStatsInput struct {
	UserID string // required
}

// WalletStats aggregates a user's wallet.
func WalletStats(ctx context.Context, env *Env, input WalletStatsInput) (*wallet.Stats, error) {
	w, err := env.Wallets.Get(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	s := w.Stats()
	return &s, nil
}

// ListWalletsOutput lists the users with a stored wallet.
type ListWalletsOutput struct {
	Users []string `json:"users"`
}

// ListWallets returns every user id with a stored wallet.
func ListWallets(ctx context.Context, env *Env) (*ListWalletsOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelled("list wallets")
	}
	users, err := db.ListWalletUsers(env.DB)
	if err != nil {
		return nil, err
	}
	return &ListWalletsOutput{Users: users}, nil
}

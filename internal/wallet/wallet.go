// Package wallet is the reward ledger: a per-user collection of earned items
// with idempotent insertion, expiry and one-way redemption.
//
// None of the ledger operations fail. Inserting an existing id, redeeming a
// missing item and granting rewards for an unknown capsule all leave the
// wallet unchanged and report that nothing happened.
package wallet

import (
	"github.com/hpungsan/mesa/internal/capsule"
)

// ItemType is the kind of a wallet item.
type ItemType string

const (
	TypeCard       ItemType = "card"
	TypeSticker    ItemType = "sticker"
	TypeReward     ItemType = "reward"
	TypeDiscount   ItemType = "discount"
	TypeExperience ItemType = "experience"
	TypeVault      ItemType = "vault"
)

// AllTypes lists every item type in display order.
var AllTypes = []ItemType{TypeCard, TypeSticker, TypeReward, TypeDiscount, TypeExperience, TypeVault}

// IsValid reports whether the item type is supported.
func (t ItemType) IsValid() bool {
	switch t {
	case TypeCard, TypeSticker, TypeReward, TypeDiscount, TypeExperience, TypeVault:
		return true
	default:
		return false
	}
}

// Redeemable reports whether items of this type carry a redemption code.
func (t ItemType) Redeemable() bool {
	switch t {
	case TypeReward, TypeDiscount, TypeExperience, TypeVault:
		return true
	default:
		return false
	}
}

// Item is one collectible. Redeemed only moves false -> true, and the
// redemption code is set once and never changes.
type Item struct {
	// ID is content-addressed per source, e.g. "<capsule>_<archetype>" for cards
	ID string `json:"id"`

	Type        ItemType `json:"type"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`

	CapsuleID   string `json:"capsule_id,omitempty"`
	ArchetypeID string `json:"archetype_id,omitempty"`

	Rarity capsule.Rarity `json:"rarity"`

	// AcquiredAt is the Unix time the item first entered the wallet
	AcquiredAt int64 `json:"acquired_at"`

	// ExpiresAt is strictly after AcquiredAt when set
	ExpiresAt *int64 `json:"expires_at,omitempty"`

	Redeemed   bool   `json:"redeemed"`
	RedeemedAt *int64 `json:"redeemed_at,omitempty"`

	RedemptionCode string `json:"redemption_code,omitempty"`
}

// Expired reports whether the item has an expiry at or before now.
func (it *Item) Expired(now int64) bool {
	return it.ExpiresAt != nil && *it.ExpiresAt <= now
}

// Wallet is the item collection of one user. Items are unique by id.
type Wallet struct {
	UserID      string `json:"user_id"`
	Items       []Item `json:"items"`
	LastUpdated int64  `json:"last_updated"`
}

// New returns an empty wallet for userID.
func New(userID string) *Wallet {
	return &Wallet{UserID: userID, Items: []Item{}}
}

// Clone returns a deep copy.
func (w *Wallet) Clone() *Wallet {
	c := *w
	c.Items = make([]Item, len(w.Items))
	for i, it := range w.Items {
		if it.ExpiresAt != nil {
			v := *it.ExpiresAt
			it.ExpiresAt = &v
		}
		if it.RedeemedAt != nil {
			v := *it.RedeemedAt
			it.RedeemedAt = &v
		}
		c.Items[i] = it
	}
	return &c
}

func (w *Wallet) index(id string) int {
	for i := range w.Items {
		if w.Items[i].ID == id {
			return i
		}
	}
	return -1
}

// Get returns the item with id.
func (w *Wallet) Get(id string) (*Item, bool) {
	i := w.index(id)
	if i < 0 {
		return nil, false
	}
	return &w.Items[i], true
}

// Has reports whether an item with id exists.
func (w *Wallet) Has(id string) bool {
	return w.index(id) >= 0
}

// ByType returns copies of the items of type t, in insertion order.
func (w *Wallet) ByType(t ItemType) []Item {
	out := []Item{}
	for _, it := range w.Items {
		if it.Type == t {
			out = append(out, it)
		}
	}
	return out
}

// ByCapsule returns copies of the items tagged with capsuleID.
func (w *Wallet) ByCapsule(capsuleID string) []Item {
	out := []Item{}
	for _, it := range w.Items {
		if it.CapsuleID == capsuleID {
			out = append(out, it)
		}
	}
	return out
}

// Stats aggregates a wallet.
type Stats struct {
	Total    int              `json:"total"`
	Redeemed int              `json:"redeemed"`
	Pending  int              `json:"pending"`
	ByType   map[ItemType]int `json:"by_type"`
}

// Stats counts items by type and redemption state.
func (w *Wallet) Stats() Stats {
	s := Stats{ByType: make(map[ItemType]int, len(AllTypes))}
	for _, t := range AllTypes {
		s.ByType[t] = 0
	}
	for _, it := range w.Items {
		s.Total++
		s.ByType[it.Type]++
		if it.Redeemed {
			s.Redeemed++
		} else {
			s.Pending++
		}
	}
	return s
}

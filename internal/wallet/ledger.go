package wallet

import (
	"fmt"
	"time"

	"github.com/hpungsan/mesa/internal/capsule"
	"github.com/hpungsan/mesa/internal/config"
)

// Ledger applies reward policy to wallets. Callers serialize mutations of
// one wallet (see Service); the ledger itself holds no wallet state.
type Ledger struct {
	catalog *capsule.Catalog

	stickerThreshold int
	rewardThreshold  int
	vaultThreshold   int
	rewardTTL        time.Duration
	codeLength       int

	now  func() time.Time
	code CodeGenerator
}

// LedgerOption customizes a Ledger.
type LedgerOption func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

// WithCodeGenerator overrides redemption code suffix generation.
func WithCodeGenerator(gen CodeGenerator) LedgerOption {
	return func(l *Ledger) { l.code = gen }
}

// NewLedger creates a ledger over cat using thresholds from cfg.
func NewLedger(cat *capsule.Catalog, cfg *config.Config, opts ...LedgerOption) *Ledger {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	l := &Ledger{
		catalog:          cat,
		stickerThreshold: cfg.StickerThreshold,
		rewardThreshold:  cfg.RewardThreshold,
		vaultThreshold:   cfg.VaultThreshold,
		rewardTTL:        time.Duration(cfg.RewardExpiryDays) * 24 * time.Hour,
		codeLength:       cfg.RedemptionCodeLength,
		now:              time.Now,
		code:             RandomSuffix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now returns the ledger clock as Unix seconds.
func (l *Ledger) Now() int64 {
	return l.now().Unix()
}

// insert adds item unless its id already exists. It fills in the acquisition
// time, drops an expiry that is not after acquisition, and generates a code
// for redeemable types that lack one.
func (l *Ledger) insert(w *Wallet, item Item) bool {
	if item.ID == "" || w.Has(item.ID) {
		return false
	}
	now := l.Now()
	if item.AcquiredAt == 0 {
		item.AcquiredAt = now
	}
	if item.ExpiresAt != nil && *item.ExpiresAt <= item.AcquiredAt {
		item.ExpiresAt = nil
	}
	if item.Rarity == "" {
		item.Rarity = capsule.RarityCommon
	}
	if item.Type.Redeemable() && item.RedemptionCode == "" {
		item.RedemptionCode = FormatCode(item.Type, l.code(l.codeLength))
	}
	item.Redeemed = false
	item.RedeemedAt = nil
	w.Items = append(w.Items, item)
	w.LastUpdated = now
	return true
}

// AddCard inserts a card. It reports whether the wallet changed.
func (l *Ledger) AddCard(w *Wallet, item Item) bool {
	item.Type = TypeCard
	return l.insert(w, item)
}

// AddSticker inserts a sticker. It reports whether the wallet changed.
func (l *Ledger) AddSticker(w *Wallet, item Item) bool {
	item.Type = TypeSticker
	return l.insert(w, item)
}

// AddReward inserts a reward, discount or experience item; any other type is
// stored as a reward. It reports whether the wallet changed.
func (l *Ledger) AddReward(w *Wallet, item Item) bool {
	switch item.Type {
	case TypeDiscount, TypeExperience:
	default:
		item.Type = TypeReward
	}
	return l.insert(w, item)
}

// Restore inserts a previously exported item as-is, keeping its acquisition
// time, code and redemption state. Like every insert it is a no-op when the
// id already exists or the type is unknown.
func (l *Ledger) Restore(w *Wallet, item Item) bool {
	if item.ID == "" || !item.Type.IsValid() || w.Has(item.ID) {
		return false
	}
	if item.AcquiredAt == 0 {
		item.AcquiredAt = l.Now()
	}
	if item.ExpiresAt != nil && *item.ExpiresAt <= item.AcquiredAt {
		item.ExpiresAt = nil
	}
	if !item.Redeemed {
		item.RedeemedAt = nil
	}
	w.Items = append(w.Items, item)
	w.LastUpdated = l.Now()
	return true
}

// Redeem marks an item redeemed. Missing and already-redeemed items are
// left alone; it reports whether the wallet changed.
func (l *Ledger) Redeem(w *Wallet, itemID string) bool {
	it, ok := w.Get(itemID)
	if !ok || it.Redeemed {
		return false
	}
	now := l.Now()
	it.Redeemed = true
	it.RedeemedAt = &now
	w.LastUpdated = now
	return true
}

// PurgeExpired drops unredeemed items whose expiry has passed and returns
// how many were removed.
func (l *Ledger) PurgeExpired(w *Wallet) int {
	now := l.Now()
	kept := w.Items[:0]
	removed := 0
	for _, it := range w.Items {
		if !it.Redeemed && it.Expired(now) {
			removed++
			continue
		}
		kept = append(kept, it)
	}
	w.Items = kept
	if removed > 0 {
		w.LastUpdated = now
	}
	return removed
}

// StickerID, RewardID and VaultID name the items granted by AddSessionRewards.
func StickerID(capsuleID, archetypeID string) string {
	return "sticker_" + capsuleID + "_" + archetypeID
}

func RewardID(capsuleID, archetypeID string) string {
	return "reward_" + capsuleID + "_" + archetypeID
}

func VaultID(capsuleID string) string {
	return "vault_" + capsuleID
}

// AddSessionRewards grants what a completed archetype earns at the given
// session point total:
//
//	always        the archetype card
//	points >= 10  a sticker
//	points >= 20  a reward that expires after RewardExpiryDays
//	points >= 25  the capsule vault, only on the capsule's last archetype
//
// The vault id is stable per capsule, so a qualifying completion replaces an
// unredeemed vault instead of adding a second one. An unknown capsule or an
// archetype outside it grants nothing. It returns the items added.
func (l *Ledger) AddSessionRewards(w *Wallet, capsuleID, archetypeID string, tier capsule.Tier, points int) []Item {
	c, ok := l.catalog.Capsule(capsuleID)
	if !ok {
		return nil
	}
	a, ok := l.catalog.Archetype(archetypeID, c.ID)
	if !ok {
		return nil
	}

	var granted []Item
	grant := func(add func(*Wallet, Item) bool, item Item) {
		if add(w, item) {
			it, _ := w.Get(item.ID)
			granted = append(granted, *it)
		}
	}

	grant(l.AddCard, Item{
		ID:          capsule.CardID(c.ID, a.ID),
		Name:        a.Name,
		Description: fmt.Sprintf("%s card from %s", a.Name, c.Name),
		CapsuleID:   c.ID,
		ArchetypeID: a.ID,
		Rarity:      capsule.RarityForLevel(a.Level),
	})

	if points >= l.stickerThreshold {
		grant(l.AddSticker, Item{
			ID:          StickerID(c.ID, a.ID),
			Name:        a.Name + " sticker",
			CapsuleID:   c.ID,
			ArchetypeID: a.ID,
			Rarity:      capsule.RarityCommon,
		})
	}

	if points >= l.rewardThreshold {
		reward := Item{
			ID:          RewardID(c.ID, a.ID),
			Name:        a.Name + " reward",
			CapsuleID:   c.ID,
			ArchetypeID: a.ID,
			Rarity:      capsule.RarityRare,
		}
		if ch, ok := l.catalog.Challenge(a.ID, c.ID, tier); ok && ch.Reward != nil {
			reward.Name = ch.Reward.Name
			reward.Description = ch.Reward.Description
			if ch.Reward.Rarity != "" {
				reward.Rarity = ch.Reward.Rarity
			}
		}
		now := l.Now()
		expires := now + int64(l.rewardTTL/time.Second)
		reward.AcquiredAt = now
		reward.ExpiresAt = &expires
		grant(l.AddReward, reward)
	}

	if points >= l.vaultThreshold && c.IsLast(a.ID) {
		vaultID := VaultID(c.ID)
		if i := w.index(vaultID); i >= 0 && !w.Items[i].Redeemed {
			w.Items = append(w.Items[:i], w.Items[i+1:]...)
		}
		grant(l.insert, Item{
			ID:          vaultID,
			Type:        TypeVault,
			Name:        c.Name + " vault",
			Description: fmt.Sprintf("Unlocked by finishing %s with %d points", c.Name, points),
			CapsuleID:   c.ID,
			Rarity:      capsule.RarityLegendary,
		})
	}

	return granted
}

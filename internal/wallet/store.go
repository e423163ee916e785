package wallet

import (
	"context"
	"strings"
	"sync"

	"github.com/hpungsan/mesa/internal/errors"
	"github.com/hpungsan/mesa/internal/keylock"
)

// Store persists wallets keyed by user id.
type Store interface {
	// Load returns the wallet for userID, or found=false when none was saved.
	Load(ctx context.Context, userID string) (w *Wallet, found bool, err error)
	// Save replaces the stored wallet for w.UserID.
	Save(ctx context.Context, w *Wallet) error
}

// Modifier is a Store that can load, change and save a wallet as one atomic
// step, also against writers in other processes.
type Modifier interface {
	Modify(ctx context.Context, userID string, fn func(w *Wallet) (changed bool)) (*Wallet, bool, error)
}

// MemoryStore keeps wallets in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	wallets map[string]*Wallet
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{wallets: make(map[string]*Wallet)}
}

// Load returns a copy of the stored wallet.
func (m *MemoryStore) Load(ctx context.Context, userID string) (*Wallet, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, errors.NewCancelled("wallet load")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.wallets[userID]
	if !ok {
		return nil, false, nil
	}
	return w.Clone(), true, nil
}

// Save stores a copy of w.
func (m *MemoryStore) Save(ctx context.Context, w *Wallet) error {
	if err := ctx.Err(); err != nil {
		return errors.NewCancelled("wallet save")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.wallets[w.UserID] = w.Clone()
	return nil
}

// Service loads, mutates and saves wallets with at most one writer per user.
type Service struct {
	store  Store
	ledger *Ledger
	locks  *keylock.Map
}

// NewService creates a wallet service over store.
func NewService(store Store, ledger *Ledger) *Service {
	return &Service{store: store, ledger: ledger, locks: keylock.New()}
}

// Ledger returns the reward policy the service applies.
func (s *Service) Ledger() *Ledger {
	return s.ledger
}

// Get returns the user's wallet. A user without a saved wallet gets an empty
// one; nothing is written until the first Update.
func (s *Service) Get(ctx context.Context, userID string) (*Wallet, error) {
	userID, err := cleanUserID(userID)
	if err != nil {
		return nil, err
	}
	w, found, err := s.store.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !found {
		return New(userID), nil
	}
	return w, nil
}

// Update runs fn on the user's wallet while holding the user's lock, then
// saves it if fn reports a change. The wallet is created on first use.
// A store implementing Modifier also keeps other processes out for the
// duration of the update.
func (s *Service) Update(ctx context.Context, userID string, fn func(l *Ledger, w *Wallet) (changed bool)) (*Wallet, bool, error) {
	userID, err := cleanUserID(userID)
	if err != nil {
		return nil, false, err
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	if m, ok := s.store.(Modifier); ok {
		return m.Modify(ctx, userID, func(w *Wallet) bool {
			return fn(s.ledger, w)
		})
	}

	w, found, err := s.store.Load(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if !found {
		w = New(userID)
	}

	changed := fn(s.ledger, w)
	if !changed {
		return w, false, nil
	}
	if err := s.store.Save(ctx, w); err != nil {
		return nil, false, err
	}
	return w, true, nil
}

func cleanUserID(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.NewInvalidRequest("user_id is required")
	}
	return userID, nil
}

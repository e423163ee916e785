package ops

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/mesa/internal/capsule"
	"github.com/hpungsan/mesa/internal/config"
	"github.com/hpungsan/mesa/internal/db"
	"github.com/hpungsan/mesa/internal/errors"
	"github.com/hpungsan/mesa/internal/id"
	"github.com/hpungsan/mesa/internal/keylock"
	"github.com/hpungsan/mesa/internal/logging"
	"github.com/hpungsan/mesa/internal/session"
	"github.com/hpungsan/mesa/internal/verify"
	"github.com/hpungsan/mesa/internal/wallet"
)

// Env wires the engine, resolver and wallet service to the database.
// Every operation takes one; it is safe for concurrent use.
type Env struct {
	DB       *sql.DB
	Config   *config.Config
	Catalog  *capsule.Catalog
	Engine   *session.Engine
	Resolver *verify.Resolver
	Wallets  *wallet.Service
	Logger   *zap.Logger

	// ExportsDir is the default directory for wallet export files.
	ExportsDir string

	sessions *keylock.Map
	now      func() time.Time
	newID    func() (string, error)

	countdowns bool
	mu         sync.Mutex
	armed      map[string]*session.Countdown
}

type envOptions struct {
	now        func() time.Time
	newID      func() (string, error)
	rng        *rand.Rand
	code       wallet.CodeGenerator
	logger     *zap.Logger
	countdowns bool
}

// Option customizes an Env.
type Option func(*envOptions)

// WithClock sets the time source shared by the engine, resolver and ledger.
func WithClock(now func() time.Time) Option {
	return func(o *envOptions) { o.now = now }
}

// WithIDGenerator sets the id source for sessions, attempts, tables and participants.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(o *envOptions) { o.newID = gen }
}

// WithRand sets the resolver's random source.
func WithRand(rng *rand.Rand) Option {
	return func(o *envOptions) { o.rng = rng }
}

// WithCodeGenerator sets the redemption code suffix source.
func WithCodeGenerator(gen wallet.CodeGenerator) Option {
	return func(o *envOptions) { o.code = gen }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *envOptions) { o.logger = l }
}

// WithCountdowns arms an in-process timer for every recording so that the
// recording -> voting move happens on time. Long-running servers enable it;
// short-lived processes rely on lazy expiry when a session is loaded.
func WithCountdowns() Option {
	return func(o *envOptions) { o.countdowns = true }
}

// NewEnv builds an Env. baseDir holds the exports directory.
func NewEnv(database *sql.DB, cfg *config.Config, cat *capsule.Catalog, baseDir string, opts ...Option) (*Env, error) {
	if database == nil {
		return nil, errors.NewInternal(fmt.Errorf("nil database"))
	}
	if cat == nil {
		return nil, errors.NewInternal(fmt.Errorf("nil catalog"))
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	o := envOptions{now: time.Now, newID: id.New}
	for _, opt := range opts {
		opt(&o)
	}

	resolverOpts := []verify.Option{verify.WithClock(o.now)}
	if o.rng != nil {
		resolverOpts = append(resolverOpts, verify.WithRand(o.rng))
	}
	resolver, err := verify.NewResolver(cfg.Verification, resolverOpts...)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("seed resolver: %w", err))
	}

	ledgerOpts := []wallet.LedgerOption{wallet.WithClock(o.now)}
	if o.code != nil {
		ledgerOpts = append(ledgerOpts, wallet.WithCodeGenerator(o.code))
	}
	ledger := wallet.NewLedger(cat, cfg, ledgerOpts...)

	return &Env{
		DB:         database,
		Config:     cfg,
		Catalog:    cat,
		Engine:     session.NewEngine(cat, cfg, session.WithClock(o.now), session.WithIDGenerator(o.newID)),
		Resolver:   resolver,
		Wallets:    wallet.NewService(db.NewWalletStore(database), ledger),
		Logger:     logging.OrNop(o.logger),
		ExportsDir: filepath.Join(baseDir, "exports"),
		sessions:   keylock.New(),
		now:        o.now,
		newID:      o.newID,
		countdowns: o.countdowns,
		armed:      make(map[string]*session.Countdown),
	}, nil
}

// Countdown returns the armed recording countdown of a session, if any.
func (e *Env) Countdown(sessionID string) (*session.Countdown, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.armed[sessionID]
	return c, ok
}

// lockSession serializes all mutations of one session and its table.
func (e *Env) lockSession(sessionID string) func() {
	return e.sessions.Lock(sessionID)
}

// loadSession reads a session and applies lazy recording expiry, persisting
// the phase change when it happens. Caller holds the session lock.
// A process sharing the database may save the session between the read and
// the expiry write; the read is then repeated.
func (e *Env) loadSession(ctx context.Context, sessionID string) (*session.GameSession, error) {
	for try := 1; ; try++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewCancelled("load session")
		}
		s, err := db.GetSession(e.DB, sessionID)
		if err != nil {
			return nil, err
		}
		if !e.Engine.ExpireRecording(s) {
			return s, nil
		}
		err = db.UpdateSession(e.DB, s)
		if err == nil {
			e.Logger.Debug("recording expired on load", zap.String("session_id", s.ID))
			return s, nil
		}
		if !errors.Is(err, errors.ErrConflict) || try == maxLoadTries {
			return nil, err
		}
	}
}

const maxLoadTries = 3

// armCountdown schedules the recording -> voting move for s.
func (e *Env) armCountdown(s *session.GameSession) {
	if !e.countdowns {
		return
	}
	sessionID := s.ID
	d := time.Until(time.Unix(s.RecordingDeadline, 0))
	if d < 0 {
		d = 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.armed[sessionID] = session.StartCountdown(d, func() {
		e.expireRecording(sessionID)
	})
}

func (e *Env) expireRecording(sessionID string) {
	unlock := e.lockSession(sessionID)
	defer unlock()

	// loadSession performs and persists the move. A session that is still
	// recording was re-armed with a later deadline and keeps its entry.
	s, err := e.loadSession(context.Background(), sessionID)
	if err != nil {
		e.Logger.Warn("recording countdown", zap.String("session_id", sessionID), zap.Error(err))
	}
	if s == nil || s.Phase != session.PhaseRecording {
		e.mu.Lock()
		delete(e.armed, sessionID)
		e.mu.Unlock()
	}
	if s != nil && s.Phase == session.PhaseVoting {
		e.Logger.Info("recording closed", zap.String("session_id", sessionID))
	}
}

// ResumeCountdowns re-arms the countdown of every session still recording.
// Sessions whose deadline passed while nothing was running move to voting here.
func (e *Env) ResumeCountdowns(ctx context.Context) (int, error) {
	if !e.countdowns {
		return 0, nil
	}
	ids, err := db.ListRecordingSessions(e.DB)
	if err != nil {
		return 0, err
	}

	armed := 0
	for _, sessionID := range ids {
		unlock := e.lockSession(sessionID)
		s, err := e.loadSession(ctx, sessionID)
		if err == nil && s.Phase == session.PhaseRecording {
			e.armCountdown(s)
			armed++
		}
		unlock()
		if err != nil {
			return armed, err
		}
	}
	return armed, nil
}

// Wait blocks until every armed countdown has fired.
func (e *Env) Wait() {
	for {
		e.mu.Lock()
		var pending *session.Countdown
		for _, c := range e.armed {
			pending = c
			break
		}
		e.mu.Unlock()
		if pending == nil {
			return
		}
		<-pending.Done()
	}
}

func requireID(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", errors.NewInvalidRequest(field + " is required")
	}
	return value, nil
}

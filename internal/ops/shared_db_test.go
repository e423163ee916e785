package ops

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/mesa/internal/db"
	"github.com/hpungsan/mesa/internal/errors"
	"github.com/hpungsan/mesa/internal/random"
	"github.com/hpungsan/mesa/internal/wallet"
)

// newSiblingEnv opens a second Env on env's database file with its own
// connection pool and locks, the way a second mesa process would.
func newSiblingEnv(t *testing.T, env *testEnv) *testEnv {
	t.Helper()

	database, err := db.Init(env.baseDir)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	sibling, err := NewEnv(database, env.Config, env.Catalog, env.baseDir,
		WithClock(env.clock.Now), WithRand(random.New(11)))
	require.NoError(t, err)
	return &testEnv{Env: sibling, clock: env.clock, baseDir: env.baseDir}
}

func TestSharedDatabase_WalletUpdatesInterleave(t *testing.T) {
	envA := newTestEnv(t, nil)
	envB := newSiblingEnv(t, envA)
	ctx := context.Background()

	other := make(chan error, 1)
	_, changed, err := envA.Wallets.Update(ctx, "ana", func(l *wallet.Ledger, w *wallet.Wallet) bool {
		started := make(chan struct{})
		go func() {
			close(started)
			_, _, err := envB.Wallets.Update(ctx, "ana", func(l *wallet.Ledger, w *wallet.Wallet) bool {
				return l.AddCard(w, wallet.Item{ID: "borrachos_filosofo", Name: "El Filósofo", CapsuleID: "borrachos", ArchetypeID: "filosofo"})
			})
			other <- err
		}()
		<-started
		time.Sleep(50 * time.Millisecond)

		return l.AddSticker(w, wallet.Item{ID: "sticker_x", Name: "Sticker X"})
	})
	require.NoError(t, err)
	assert.True(t, changed)
	require.NoError(t, <-other)

	for _, env := range []*testEnv{envA, envB} {
		out, err := ShowWallet(ctx, env.Env, ShowWalletInput{UserID: "ana"})
		require.NoError(t, err)
		ids := make([]string, 0, len(out.Items))
		for _, it := range out.Items {
			ids = append(ids, it.ID)
		}
		assert.ElementsMatch(t, []string{"sticker_x", "borrachos_filosofo"}, ids)
	}
}

func TestSharedDatabase_SessionGrantsSurviveOtherProcess(t *testing.T) {
	envA := newTestEnv(t, nil)
	envB := newSiblingEnv(t, envA)
	ctx := context.Background()
	id := startSession(t, envA, StartSessionInput{CapsuleID: "borrachos", UserID: "ana"})

	_, err := AttemptChallenge(ctx, envA.Env, AttemptChallengeInput{SessionID: id, Verification: "self"})
	require.NoError(t, err)
	_, _, err = envB.Wallets.Update(ctx, "ana", func(l *wallet.Ledger, w *wallet.Wallet) bool {
		return l.AddSticker(w, wallet.Item{ID: "sticker_x", Name: "Sticker X"})
	})
	require.NoError(t, err)
	_, err = AttemptChallenge(ctx, envB.Env, AttemptChallengeInput{SessionID: id, Verification: "self"})
	require.NoError(t, err)

	out, err := ShowWallet(ctx, envA.Env, ShowWalletInput{UserID: "ana"})
	require.NoError(t, err)
	got := map[string]bool{}
	for _, it := range out.Items {
		got[it.ID] = true
	}
	assert.True(t, got["borrachos_filosofo"], "card granted by the first process")
	assert.True(t, got["sticker_x"], "sticker added by the second process")
	assert.True(t, got["borrachos_romantico"], "card granted by the second process")

	s, err := db.GetSession(envA.DB, id)
	require.NoError(t, err)
	assert.Equal(t, 2, s.CurrentIndex)
}

func TestSharedDatabase_StaleSessionWriteRejected(t *testing.T) {
	envA := newTestEnv(t, nil)
	envB := newSiblingEnv(t, envA)
	ctx := context.Background()
	id := startSession(t, envA, StartSessionInput{CapsuleID: "borrachos"})

	stale, err := db.GetSession(envB.DB, id)
	require.NoError(t, err)

	_, err = AdvanceSession(ctx, envA.Env, AdvanceSessionInput{ID: id, Points: 4})
	require.NoError(t, err)

	require.NoError(t, envB.Engine.Advance(stale))
	err = db.UpdateSession(envB.DB, stale)
	assert.True(t, errors.Is(err, errors.ErrConflict), "stale write: %v", err)

	// Operations reload, so the second process builds on the first one's write
	out, err := AdvanceSession(ctx, envB.Env, AdvanceSessionInput{ID: id, Points: 3})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Session.CurrentIndex)
	assert.Equal(t, 7, out.Session.Points)
	assert.Equal(t, []string{"filosofo", "romantico"}, out.Session.Completed)
}

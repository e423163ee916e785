package ops

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/mesa/internal/errors"
	"github.com/hpungsan/mesa/internal/wallet"
)

// playMild completes every card of a mild borrachos session for userID.
func playMild(t *testing.T, env *testEnv, userID string) string {
	t.Helper()
	id := startSession(t, env, StartSessionInput{CapsuleID: "borrachos", UserID: userID})
	for i := 0; i < 5; i++ {
		_, err := AttemptChallenge(context.Background(), env.Env, AttemptChallengeInput{SessionID: id})
		require.NoError(t, err)
	}
	return id
}

func TestShowWallet_Empty(t *testing.T) {
	env := newTestEnv(t, nil)

	out, err := ShowWallet(context.Background(), env.Env, ShowWalletInput{UserID: "nobody"})
	require.NoError(t, err)
	assert.Equal(t, "nobody", out.UserID)
	assert.Empty(t, out.Items)
	assert.Zero(t, out.Stats.Total)

	list, err := ListWallets(context.Background(), env.Env)
	require.NoError(t, err)
	assert.Empty(t, list.Users, "reading does not create a wallet")
}

func TestShowWallet_Filters(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	playMild(t, env, "u1")

	all, err := ShowWallet(ctx, env.Env, ShowWalletInput{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, all.Items, 12)
	assert.Equal(t, 5, all.Stats.ByType[wallet.TypeCard])
	assert.Equal(t, 4, all.Stats.ByType[wallet.TypeSticker])
	assert.Equal(t, 2, all.Stats.ByType[wallet.TypeReward])
	assert.Equal(t, 1, all.Stats.ByType[wallet.TypeVault])

	rewards, err := ShowWallet(ctx, env.Env, ShowWalletInput{UserID: "u1", Type: "Reward"})
	require.NoError(t, err)
	assert.Len(t, rewards.Items, 2)
	assert.Equal(t, 12, rewards.Stats.Total, "stats cover the whole wallet")

	none, err := ShowWallet(ctx, env.Env, ShowWalletInput{UserID: "u1", CapsuleID: "despecho"})
	require.NoError(t, err)
	assert.Empty(t, none.Items)

	_, err = ShowWallet(ctx, env.Env, ShowWalletInput{UserID: "u1", Type: "coupon"})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = ShowWallet(ctx, env.Env, ShowWalletInput{UserID: " "})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestRedeem(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	playMild(t, env, "u1")

	out, err := Redeem(ctx, env.Env, RedeemInput{UserID: "u1", ItemID: "vault_borrachos"})
	require.NoError(t, err)
	assert.True(t, out.Redeemed)
	require.NotNil(t, out.Item)
	assert.True(t, out.Item.Redeemed)
	require.NotNil(t, out.Item.RedeemedAt)
	assert.Equal(t, env.clock.Now().Unix(), *out.Item.RedeemedAt)

	again, err := Redeem(ctx, env.Env, RedeemInput{UserID: "u1", ItemID: "vault_borrachos"})
	require.NoError(t, err)
	assert.False(t, again.Redeemed)
	assert.True(t, again.Item.Redeemed)

	missing, err := Redeem(ctx, env.Env, RedeemInput{UserID: "u1", ItemID: "nope"})
	require.NoError(t, err, "a missing item is a no-op")
	assert.False(t, missing.Redeemed)
	assert.Nil(t, missing.Item)

	stats, err := WalletStats(ctx, env.Env, WalletStatsInput{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Redeemed)
	assert.Equal(t, 11, stats.Pending)

	_, err = Redeem(ctx, env.Env, RedeemInput{UserID: "u1"})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestPurgeExpired(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	playMild(t, env, "u1")
	playMild(t, env, "u2")
	_, err := Redeem(ctx, env.Env, RedeemInput{UserID: "u2", ItemID: "reward_borrachos_confesor"})
	require.NoError(t, err)

	out, err := PurgeExpired(ctx, env.Env, PurgeInput{})
	require.NoError(t, err)
	assert.Zero(t, out.Purged)
	assert.Equal(t, "No expired items to purge", out.Message)

	env.clock.Advance(8 * 24 * time.Hour)

	out, err = PurgeExpired(ctx, env.Env, PurgeInput{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Purged)
	assert.Equal(t, `Purged 2 expired items from wallet "u1"`, out.Message)

	out, err = PurgeExpired(ctx, env.Env, PurgeInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Purged, "the redeemed reward is kept")
	assert.Equal(t, 1, out.Users)
	assert.Equal(t, "Purged 1 expired item across 1 wallet", out.Message)

	w, err := ShowWallet(ctx, env.Env, ShowWalletInput{UserID: "u2"})
	require.NoError(t, err)
	assert.Len(t, w.Items, 11)
}

func TestListWallets(t *testing.T) {
	env := newTestEnv(t, nil)
	playMild(t, env, "zoe")
	playMild(t, env, "ana")

	out, err := ListWallets(context.Background(), env.Env)
	require.NoError(t, err)
	assert.Equal(t, []string{"ana", "zoe"}, out.Users)
}

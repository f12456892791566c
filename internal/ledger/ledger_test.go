package ledger

import (
	"context"
	"testing"

	"github.com/aman-zulfiqar/referral-swap/internal/num"
	"github.com/aman-zulfiqar/referral-swap/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_RecordSwapAccumulates(t *testing.T) {
	ctx := context.Background()
	l := New(storage.NewBatch(storage.NewMemStore()))

	st, created, err := l.RecordSwap(ctx, "alice", num.NewUint128(10), num.NewUint128(10))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, uint64(1), st.TotalSwaps)

	st, created, err = l.RecordSwap(ctx, "alice", num.NewUint128(5), num.NewUint128(7))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "17", st.TotalRewardsEarned.String())
	assert.Equal(t, "15", st.TotalUserBonuses.String())
	assert.Equal(t, uint64(2), st.TotalSwaps)

	reward, err := l.RewardOf(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "17", reward.String())
}

func TestLedger_GetMissDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	b := storage.NewBatch(storage.NewMemStore())
	l := New(b)

	st, err := l.Get(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, st)
	assert.Equal(t, 0, b.Len())

	_, err = l.RewardOf(ctx, "nobody")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLedger_GlobalCodeKeyDoesNotCollide(t *testing.T) {
	ctx := context.Background()
	l := New(storage.NewBatch(storage.NewMemStore()))

	_, _, err := l.RecordSwap(ctx, "global", num.NewUint128(1), num.NewUint128(2))
	require.NoError(t, err)

	g, err := l.RecordGlobal(ctx, GlobalDelta{
		InputReceived:       num.NewUint128(100),
		Minted:              num.NewUint128(50),
		ReferralBonusMinted: num.NewUint128(3),
		ReferralSwap:        true,
		NewCode:             true,
	})
	require.NoError(t, err)
	assert.Equal(t, "100", g.TotalInputReceived.String())
	assert.Equal(t, uint64(1), g.UniqueCodesUsed)

	st, err := l.Get(ctx, "global")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, "2", st.TotalRewardsEarned.String())
}

package core

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"boxchain/native/claim"
	"boxchain/native/mint"
	"boxchain/native/referral"
	"boxchain/native/reward"
	"boxchain/storage"
)

type captureTokens struct {
	transfers map[[20]byte]*big.Int
	err       error
}

func (c *captureTokens) Transfer(to [20]byte, amount *big.Int) error {
	if c.err != nil {
		return c.err
	}
	if c.transfers == nil {
		c.transfers = make(map[[20]byte]*big.Int)
	}
	prev := c.transfers[to]
	if prev == nil {
		prev = big.NewInt(0)
	}
	c.transfers[to] = new(big.Int).Add(prev, amount)
	return nil
}

func testAddr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func ctxFor(caller [20]byte, sec int64) CallContext {
	return CallContext{
		Caller:      caller,
		BlockTime:   time.Unix(sec, 0),
		BlockHeight: uint64(sec),
	}
}

var admin = testAddr(1)

func newConfiguredNode(t *testing.T) *Node {
	t.Helper()
	n := NewNode(storage.NewMemDB())
	require.NoError(t, n.SeedAuthority(admin))

	ctx := ctxFor(admin, 1)
	_, err := n.UpdateTiers(ctx, []referral.Tier{
		{
			Index:               0,
			MinVolume:           big.NewInt(0),
			MaxVolume:           big.NewInt(1000),
			InviterRewardRate:   50_000,
			InviteeDiscountRate: 100_000,
			RewardBoxTable:      map[uint32]uint64{1: 2, 2: 1},
			RecommendedQuantity: big.NewInt(600),
		},
		{
			Index:               1,
			MinVolume:           big.NewInt(1001),
			MaxVolume:           big.NewInt(1_000_000),
			InviterRewardRate:   80_000,
			InviteeDiscountRate: 150_000,
			RewardBoxTable:      map[uint32]uint64{1: 3, 2: 2},
			RecommendedQuantity: big.NewInt(600),
		},
	})
	require.NoError(t, err)

	_, err = n.UpdateLevel(ctx, &mint.LevelConfig{Index: 1, Price: big.NewInt(100), TotalCap: 100})
	require.NoError(t, err)
	_, err = n.UpdateLevel(ctx, &mint.LevelConfig{Index: 2, Price: big.NewInt(500), TotalCap: 50})
	require.NoError(t, err)
	_, err = n.UpdateLevel(ctx, &mint.LevelConfig{Index: 3, Price: big.NewInt(50), TotalCap: 100, RandomPool: true})
	require.NoError(t, err)

	_, err = n.UpdateRewardPool(ctx, &reward.Pool{Level: 1, RewardAmount: big.NewInt(30), Capacity: 1000})
	require.NoError(t, err)
	_, err = n.UpdateRewardPool(ctx, &reward.Pool{Level: 2, RewardAmount: big.NewInt(200), Capacity: 1000})
	require.NoError(t, err)
	_, err = n.UpdateRandomPool(ctx, &reward.RandomPool{
		Level: 3,
		Buckets: []reward.Bucket{
			{Amount: big.NewInt(10), Capacity: 5},
			{Amount: big.NewInt(100), Capacity: 1},
			{Amount: big.NewInt(1), Capacity: 15},
		},
	})
	require.NoError(t, err)
	return n
}

func TestMintFlowWithReferral(t *testing.T) {
	n := newConfiguredNode(t)
	referrer, buyer := testAddr(10), testAddr(11)

	evts, err := n.RegisterCode(ctxFor(referrer, 2), "alice")
	require.NoError(t, err)
	require.NotEmpty(t, evts)

	ok, err := n.CodeExists("  alice ")
	require.NoError(t, err)
	require.True(t, ok)

	quote, err := n.QuoteMint(1, 10, "alice")
	require.NoError(t, err)
	require.Zero(t, quote.Total.Cmp(big.NewInt(1000)))
	require.Zero(t, quote.PaidAmount.Cmp(big.NewInt(900)))

	result, evts, err := n.MintBoxes(ctxFor(buyer, 3), 1, 10, "alice", big.NewInt(900))
	require.NoError(t, err)
	require.Len(t, result.BoxIDs, 10)
	require.Equal(t, uint64(1), result.BoxIDs[0])
	require.NotEmpty(t, evts)

	info, err := n.ReferrerInfo(referrer)
	require.NoError(t, err)
	require.Zero(t, info.CumulativeVolume.Cmp(big.NewInt(1000)))
	require.Zero(t, info.BaseReward.Cmp(big.NewInt(45)))
	require.Equal(t, uint64(1), info.InviteeCount)
	// 1000 / 600 = 1 multiple of the tier-0 table.
	require.Equal(t, map[uint32]uint64{1: 2, 2: 1}, info.Entitlement)

	totals, err := n.GlobalTotals()
	require.NoError(t, err)
	require.Zero(t, totals.TotalBaseReward.Cmp(big.NewInt(45)))
	require.Equal(t, map[uint32]uint64{1: 2, 2: 1}, totals.RewardBoxTotals)

	records, next, err := n.ListReferralRecords(referrer, 0, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Zero(t, next)
	require.Equal(t, buyer, records[0].Invitee)
	require.Len(t, records[0].BoxIDs, 10)

	cfg, ok, err := n.LevelInfo(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(10), cfg.MintedCount)
	require.Zero(t, cfg.ReceivedAmount.Cmp(big.NewInt(900)))
}

func TestMintPaymentMismatchLeavesNoState(t *testing.T) {
	n := newConfiguredNode(t)
	referrer, buyer := testAddr(10), testAddr(11)
	_, err := n.RegisterCode(ctxFor(referrer, 2), "alice")
	require.NoError(t, err)

	// Paying the undiscounted total when a discount applies must fail whole.
	_, _, err = n.MintBoxes(ctxFor(buyer, 3), 1, 10, "alice", big.NewInt(1000))
	require.ErrorIs(t, err, mint.ErrPaymentMismatch)

	info, err := n.ReferrerInfo(referrer)
	require.NoError(t, err)
	require.Zero(t, info.CumulativeVolume.Sign())
	require.Zero(t, info.BaseReward.Sign())

	cfg, ok, err := n.LevelInfo(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, cfg.MintedCount)

	// The box id counter did not advance.
	result, _, err := n.MintBoxes(ctxFor(buyer, 4), 1, 1, "", big.NewInt(100))
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, result.BoxIDs)
}

func TestMintWithoutCodePaysFull(t *testing.T) {
	n := newConfiguredNode(t)
	buyer := testAddr(11)

	result, _, err := n.MintBoxes(ctxFor(buyer, 3), 2, 2, "", big.NewInt(1000))
	require.NoError(t, err)
	require.Len(t, result.BoxIDs, 2)
	require.False(t, result.Quote.HasReferrer)

	totals, err := n.GlobalTotals()
	require.NoError(t, err)
	require.Zero(t, totals.TotalBaseReward.Sign())
}

func TestOpenBoxFixedAndTransfer(t *testing.T) {
	n := newConfiguredNode(t)
	tokens := &captureTokens{}
	n.SetTokenService(tokens)
	buyer := testAddr(11)

	result, _, err := n.MintBoxes(ctxFor(buyer, 3), 1, 1, "", big.NewInt(100))
	require.NoError(t, err)
	boxID := result.BoxIDs[0]

	record, evts, err := n.OpenBox(ctxFor(buyer, 4), boxID)
	require.NoError(t, err)
	require.NotEmpty(t, evts)
	require.Equal(t, reward.PoolKindFixed, record.PoolKind)
	require.Zero(t, record.Payout.Cmp(big.NewInt(30)))
	require.Equal(t, uint64(1), record.ClaimIndex)
	require.Zero(t, tokens.transfers[buyer].Cmp(big.NewInt(30)))

	// Reopening fails and transfers nothing more.
	_, _, err = n.OpenBox(ctxFor(buyer, 5), boxID)
	require.ErrorIs(t, err, reward.ErrAlreadyOpened)
	require.Zero(t, tokens.transfers[buyer].Cmp(big.NewInt(30)))

	box, opened, err := n.BoxInfo(boxID)
	require.NoError(t, err)
	require.Equal(t, uint32(1), box.Level)
	require.NotNil(t, opened)
	require.Equal(t, record.ClaimIndex, opened.ClaimIndex)
}

func TestOpenBoxRandomDeterministic(t *testing.T) {
	buyer := testAddr(11)
	run := func() *reward.OpenRecord {
		n := newConfiguredNode(t)
		result, _, err := n.MintBoxes(ctxFor(buyer, 3), 3, 1, "", big.NewInt(50))
		require.NoError(t, err)
		record, _, err := n.OpenBox(CallContext{
			Caller:      buyer,
			BlockTime:   time.Unix(1700000000, 77),
			BlockHeight: 12,
			TxIndex:     4,
		}, result.BoxIDs[0])
		require.NoError(t, err)
		return record
	}
	first, second := run(), run()
	require.Equal(t, first.Bucket, second.Bucket)
	require.Zero(t, first.Payout.Cmp(second.Payout))
	require.Equal(t, reward.PoolKindRandom, first.PoolKind)
}

func TestOpenBoxTransferFailureRollsBack(t *testing.T) {
	n := newConfiguredNode(t)
	buyer := testAddr(11)
	result, _, err := n.MintBoxes(ctxFor(buyer, 3), 1, 1, "", big.NewInt(100))
	require.NoError(t, err)

	n.SetTokenService(&captureTokens{err: errTransfer})
	_, _, err = n.OpenBox(ctxFor(buyer, 4), result.BoxIDs[0])
	require.ErrorIs(t, err, errTransfer)

	// The failed open left the box unopened; a retry succeeds.
	n.SetTokenService(nil)
	record, _, err := n.OpenBox(ctxFor(buyer, 5), result.BoxIDs[0])
	require.NoError(t, err)
	require.Equal(t, uint64(1), record.ClaimIndex)
}

func TestClaimRewardBoxesFlow(t *testing.T) {
	n := newConfiguredNode(t)
	referrer, buyer := testAddr(10), testAddr(11)
	_, err := n.RegisterCode(ctxFor(referrer, 2), "alice")
	require.NoError(t, err)
	_, _, err = n.MintBoxes(ctxFor(buyer, 3), 1, 10, "alice", big.NewInt(900))
	require.NoError(t, err)

	claimable, err := n.ClaimableBoxes(referrer, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(2), claimable)

	ids, evts, err := n.ClaimRewardBoxes(ctxFor(referrer, 4), 1, 2)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	require.NotEmpty(t, evts)

	claimable, err = n.ClaimableBoxes(referrer, 1)
	require.NoError(t, err)
	require.Zero(t, claimable)
	_, _, err = n.ClaimRewardBoxes(ctxFor(referrer, 5), 1, 1)
	require.ErrorIs(t, err, claim.ErrInsufficientEntitlement)

	// Claimed boxes are ordinary boxes marked as rewards.
	box, _, err := n.BoxInfo(ids[0])
	require.NoError(t, err)
	require.True(t, box.RewardBox)
}

func TestClaimRewardTokensFlow(t *testing.T) {
	n := newConfiguredNode(t)
	tokens := &captureTokens{}
	n.SetTokenService(tokens)
	referrer, buyer := testAddr(10), testAddr(11)
	_, err := n.RegisterCode(ctxFor(referrer, 2), "alice")
	require.NoError(t, err)
	_, _, err = n.MintBoxes(ctxFor(buyer, 3), 1, 10, "alice", big.NewInt(900))
	require.NoError(t, err)

	claimable, err := n.ClaimableTokens(referrer)
	require.NoError(t, err)
	require.Zero(t, claimable.Cmp(big.NewInt(45)))

	_, err = n.ClaimRewardTokens(ctxFor(referrer, 4), big.NewInt(40))
	require.NoError(t, err)
	require.Zero(t, tokens.transfers[referrer].Cmp(big.NewInt(40)))

	claimable, err = n.ClaimableTokens(referrer)
	require.NoError(t, err)
	require.Zero(t, claimable.Cmp(big.NewInt(5)))

	_, err = n.ClaimRewardTokens(ctxFor(referrer, 5), big.NewInt(6))
	require.ErrorIs(t, err, claim.ErrInsufficientEntitlement)
}

func TestClaimWindowEnforced(t *testing.T) {
	n := newConfiguredNode(t)
	referrer, buyer := testAddr(10), testAddr(11)
	_, err := n.RegisterCode(ctxFor(referrer, 2), "alice")
	require.NoError(t, err)
	_, _, err = n.MintBoxes(ctxFor(buyer, 3), 1, 10, "alice", big.NewInt(900))
	require.NoError(t, err)

	_, err = n.UpdateClaimWindow(ctxFor(admin, 4), &claim.Window{StartTime: 100, EndTime: 200})
	require.NoError(t, err)

	_, _, err = n.ClaimRewardBoxes(ctxFor(referrer, 50), 1, 1)
	require.ErrorIs(t, err, claim.ErrNotStarted)
	_, _, err = n.ClaimRewardBoxes(ctxFor(referrer, 300), 1, 1)
	require.ErrorIs(t, err, claim.ErrWindowClosed)
	_, _, err = n.ClaimRewardBoxes(ctxFor(referrer, 150), 1, 1)
	require.NoError(t, err)
}

func TestGovernanceRotationThroughNode(t *testing.T) {
	n := newConfiguredNode(t)
	next := testAddr(2)

	require.Error(t, n.SeedAuthority(testAddr(3)))

	_, err := n.ProposeAuthority(ctxFor(admin, 2), next)
	require.NoError(t, err)
	_, err = n.AcceptAuthority(ctxFor(next, 3))
	require.NoError(t, err)

	got, ok, err := n.Authority()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, next, got)

	_, err = n.UpdateClaimWindow(ctxFor(admin, 4), &claim.Window{})
	require.Error(t, err)
	_, err = n.UpdateClaimWindow(ctxFor(next, 4), &claim.Window{StartTime: 1})
	require.NoError(t, err)
}

var errTransfer = &transferError{}

type transferError struct{}

func (*transferError) Error() string { return "token transfer refused" }

package query

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xch-dev/explorer/internal/batch"
	"github.com/xch-dev/explorer/internal/chain"
	"github.com/xch-dev/explorer/internal/driver"
	"github.com/xch-dev/explorer/internal/kv"
	"github.com/xch-dev/explorer/internal/writer"
)

func setup(t *testing.T) (*kv.Store, *Reader) {
	t.Helper()
	s, err := kv.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, New(s)
}

func commitBlock(t *testing.T, s *kv.Store, pb driver.ParsedBlock) {
	t.Helper()
	ins := batch.New()
	ins.Merge(pb)
	require.NoError(t, writer.New(s).Commit(ins))
}

func TestStateIsZeroOnEmptyStore(t *testing.T) {
	_, r := setup(t)
	peak, err := r.State()
	require.NoError(t, err)
	require.Equal(t, uint32(0), peak)
}

func TestBlockByHeightAndHashAndLatest(t *testing.T) {
	s, r := setup(t)
	header := chain.Hash32{0x10}
	commitBlock(t, s, driver.ParsedBlock{Height: 100, Block: chain.BlockRecord{HeaderHash: header}})

	peak, err := r.State()
	require.NoError(t, err)
	require.Equal(t, uint32(100), peak)

	rec, err := r.BlockByHeight(100)
	require.NoError(t, err)
	require.Equal(t, header, rec.HeaderHash)

	rec2, err := r.BlockByHash(header)
	require.NoError(t, err)
	require.Equal(t, rec, rec2)

	h, rec3, err := r.LatestBlock()
	require.NoError(t, err)
	require.Equal(t, uint32(100), h)
	require.Equal(t, rec, rec3)

	_, err = r.BlockByHeight(999)
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestBlocksBoundaryBehaviors(t *testing.T) {
	s, r := setup(t)
	for h := uint32(1); h <= 5; h++ {
		commitBlock(t, s, driver.ParsedBlock{Height: h, Block: chain.BlockRecord{HeaderHash: chain.Hash32{byte(h)}}})
	}

	out, err := r.Blocks(nil, kv.Forward, 0)
	require.NoError(t, err)
	require.Empty(t, out)

	out, err = r.Blocks(nil, kv.Reverse, 50)
	require.NoError(t, err)
	require.Len(t, out, 5)
	require.Equal(t, uint32(5), out[0].Height)
	require.Equal(t, uint32(1), out[len(out)-1].Height)

	// start beyond peak clamps to the tip instead of returning nothing.
	beyond := uint32(999)
	out, err = r.Blocks(&beyond, kv.Reverse, 1)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, uint32(5), out[0].Height)
}

func TestCoinsByBlockDedupesCreatedAndSpentAtSameHeight(t *testing.T) {
	s, r := setup(t)
	header := chain.Hash32{0x20}
	reward := chain.Coin{ParentCoinID: chain.Hash32{1}, PuzzleHash: chain.Hash32{2}, Amount: 100}

	commitBlock(t, s, driver.ParsedBlock{
		Height: 100,
		Block:  chain.BlockRecord{HeaderHash: header},
		Additions: []chain.CoinRecord{
			{Coin: reward, CreatedHeight: 100, Kind: chain.CoinKind{Tag: chain.CoinKindReward}},
		},
		Spends: []driver.SpendUpdate{{
			CoinID:      reward.ID(),
			SpentHeight: 100,
			Kind:        chain.CoinKind{Tag: chain.CoinKindUnknown},
			Record:      chain.CoinSpendRecord{Coin: reward, SpentHeight: 100},
		}},
	})

	coins, err := r.CoinsByBlock(header)
	require.NoError(t, err)
	require.Len(t, coins, 1)
	require.Equal(t, chain.CoinKindReward, coins[0].Kind.Tag)
	require.NotNil(t, coins[0].SpentHeight)
	require.Equal(t, uint32(100), *coins[0].SpentHeight)
}

func TestCoinsByParentAndSpendsByBlock(t *testing.T) {
	s, r := setup(t)
	parent := chain.Coin{ParentCoinID: chain.Hash32{1}, PuzzleHash: chain.Hash32{2}, Amount: 1000}
	parentID := parent.ID()
	child := chain.Coin{ParentCoinID: parentID, PuzzleHash: chain.Hash32{3}, Amount: 500}
	header := chain.Hash32{0x30}

	commitBlock(t, s, driver.ParsedBlock{
		Height: 200,
		Block:  chain.BlockRecord{HeaderHash: header},
		Additions: []chain.CoinRecord{
			{Coin: child, CreatedHeight: 200, Kind: chain.CoinKind{Tag: chain.CoinKindUnknown}},
		},
		Spends: []driver.SpendUpdate{
			{
				CoinID:      parentID,
				SpentHeight: 200,
				Kind:        chain.CoinKind{Tag: chain.CoinKindUnknown},
				Record:      chain.CoinSpendRecord{Coin: parent, SpentHeight: 200},
			},
		},
	})

	children, err := r.CoinsByParent(parentID)
	require.NoError(t, err)
	require.Equal(t, []chain.Hash32{child.ID()}, children)

	spends, err := r.SpendsByBlock(header)
	require.NoError(t, err)
	require.Len(t, spends, 1)
	require.Equal(t, parentID, spends[0].Coin.ID())

	spend, err := r.Spend(parentID)
	require.NoError(t, err)
	require.Equal(t, uint32(200), spend.SpentHeight)

	_, err = r.Spend(chain.Hash32{0xff})
	require.True(t, errors.Is(err, ErrNotFound))
}

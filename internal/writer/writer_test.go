package writer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xch-dev/explorer/internal/batch"
	"github.com/xch-dev/explorer/internal/chain"
	"github.com/xch-dev/explorer/internal/codec"
	"github.com/xch-dev/explorer/internal/driver"
	"github.com/xch-dev/explorer/internal/kv"
)

func openTestStore(t *testing.T) *kv.Store {
	t.Helper()
	s, err := kv.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCommitWritesBlockAndCoinIndexes(t *testing.T) {
	s := openTestStore(t)
	w := New(s)

	reward := chain.Coin{ParentCoinID: chain.Hash32{0xaa}, PuzzleHash: chain.Hash32{0xbb}, Amount: 2000000000}
	header := chain.Hash32{0x01}

	ins := batch.New()
	ins.Merge(driver.ParsedBlock{
		Height: 100,
		Block:  chain.BlockRecord{HeaderHash: header},
		Additions: []chain.CoinRecord{
			{Coin: reward, CreatedHeight: 100, Kind: chain.CoinKind{Tag: chain.CoinKindReward}},
		},
	})

	require.NoError(t, w.Commit(ins))

	v, ok, err := s.Get(kv.CFBlocks, kv.HeightKey(100))
	require.NoError(t, err)
	require.True(t, ok)
	rec, err := codec.DecodeBlockRecord(v)
	require.NoError(t, err)
	require.Equal(t, header, rec.HeaderHash)

	v, ok, err = s.Get(kv.CFBlockHashes, header[:])
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, kv.HeightKey(100), v)

	coinID := reward.ID()
	v, ok, err = s.Get(kv.CFCoins, coinID[:])
	require.NoError(t, err)
	require.True(t, ok)
	coinRec, err := codec.DecodeCoinRecord(v)
	require.NoError(t, err)
	require.Equal(t, chain.CoinKindReward, coinRec.Kind.Tag)

	_, ok, err = s.Get(kv.CFCoinHeightIndex, kv.CompositeKey(kv.HeightKey(100), coinID[:]))
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = s.Get(kv.CFCoinParentHashIndex, kv.CompositeKey(reward.ParentCoinID[:], coinID[:]))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCommitWritesSpendAndSpentHeightIndex(t *testing.T) {
	s := openTestStore(t)
	w := New(s)

	coin := chain.Coin{ParentCoinID: chain.Hash32{1}, PuzzleHash: chain.Hash32{2}, Amount: 1000}
	coinID := coin.ID()

	ins := batch.New()
	ins.Merge(driver.ParsedBlock{
		Height: 200,
		Block:  chain.BlockRecord{HeaderHash: chain.Hash32{0x02}},
		Spends: []driver.SpendUpdate{
			{
				CoinID:      coinID,
				SpentHeight: 200,
				Kind:        chain.CoinKind{Tag: chain.CoinKindUnknown},
				Record:      chain.CoinSpendRecord{Coin: coin, SpentHeight: 200},
			},
		},
	})

	require.NoError(t, w.Commit(ins))

	v, ok, err := s.Get(kv.CFCoinSpends, coinID[:])
	require.NoError(t, err)
	require.True(t, ok)
	spendRec, err := codec.DecodeCoinSpendRecord(v)
	require.NoError(t, err)
	require.Equal(t, uint32(200), spendRec.SpentHeight)

	_, ok, err = s.Get(kv.CFCoinHeightIndex, kv.CompositeKey(kv.HeightKey(200), coinID[:]))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCommitWritesTailProgram(t *testing.T) {
	s := openTestStore(t)
	w := New(s)

	assetID := chain.Hash32{0x09}
	ins := batch.New()
	ins.Merge(driver.ParsedBlock{
		Height: 400,
		Block:  chain.BlockRecord{HeaderHash: chain.Hash32{0x04}},
		Tails:  map[chain.Hash32][]byte{assetID: []byte("tail-bytes")},
	})

	require.NoError(t, w.Commit(ins))

	v, ok, err := s.Get(kv.CFTails, assetID[:])
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("tail-bytes"), v)
}

package batch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xch-dev/explorer/internal/chain"
	"github.com/xch-dev/explorer/internal/driver"
)

func TestMergeFoldsSpendIntoSameBatchAddition(t *testing.T) {
	child := chain.Coin{ParentCoinID: chain.Hash32{1}, PuzzleHash: chain.Hash32{2}, Amount: 1000}
	childID := child.ID()

	ins := New()
	ins.Merge(driver.ParsedBlock{
		Height: 200,
		Additions: []chain.CoinRecord{
			{Coin: child, CreatedHeight: 200, Kind: chain.CoinKind{Tag: chain.CoinKindUnknown}},
		},
	})
	ins.Merge(driver.ParsedBlock{
		Height: 201,
		Spends: []driver.SpendUpdate{
			{
				CoinID:      childID,
				SpentHeight: 201,
				Kind:        chain.CoinKind{Tag: chain.CoinKindCat, AssetID: chain.Hash32{9}},
				Record:      chain.CoinSpendRecord{Coin: child, SpentHeight: 201},
			},
		},
	})

	var found chain.CoinRecord
	var seen bool
	ins.Additions(func(id chain.Hash32, r chain.CoinRecord) {
		if id == childID {
			found, seen = r, true
		}
	})
	require.True(t, seen)
	require.NotNil(t, found.SpentHeight)
	require.Equal(t, uint32(201), *found.SpentHeight)
	require.Equal(t, chain.CoinKindCat, found.Kind.Tag)

	var spendCount int
	ins.Spends(func(id chain.Hash32, u driver.SpendUpdate) { spendCount++ })
	require.Equal(t, 1, spendCount)
}

func TestBlocksVisitedInAscendingHeightOrder(t *testing.T) {
	ins := New()
	ins.Merge(driver.ParsedBlock{Height: 5})
	ins.Merge(driver.ParsedBlock{Height: 1})
	ins.Merge(driver.ParsedBlock{Height: 3})

	var heights []uint32
	ins.Blocks(func(height uint32, r chain.BlockRecord) { heights = append(heights, height) })
	require.Equal(t, []uint32{1, 3, 5}, heights)
}

func TestTailsKeyedByAssetID(t *testing.T) {
	ins := New()
	ins.Merge(driver.ParsedBlock{
		Height: 400,
		Tails:  map[chain.Hash32][]byte{{9}: []byte("tail-program")},
	})

	var programs [][]byte
	ins.Tails(func(assetID chain.Hash32, program []byte) { programs = append(programs, program) })
	require.Equal(t, [][]byte{[]byte("tail-program")}, programs)
}

package block

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xch-dev/explorer/internal/chain"
)

func h32(fill byte) chain.Hash32 {
	var h chain.Hash32
	for i := range h {
		h[i] = fill
	}
	return h
}

func TestDecodeRoundTripsThroughEncodeAndCompress(t *testing.T) {
	pool := h32(9)
	fb := FullBlock{
		Height:           100,
		HeaderHash:       h32(1),
		PrevHeaderHash:   h32(2),
		Weight:           []byte{0x01, 0x02},
		TotalIters:       []byte{0x03},
		FarmerPuzzleHash: h32(3),
		PoolPuzzleHash:   &pool,
		TransactionInfo: &TransactionInfo{
			Timestamp:                12345,
			Fees:                     7,
			Cost:                     1000,
			PrevTransactionBlockHash: h32(4),
		},
		TransactionsGenerator: []byte{0xff, 0x80},
		GeneratorRefList:      []uint32{98, 99},
		RewardCoins: []chain.Coin{
			{ParentCoinID: h32(5), PuzzleHash: h32(6), Amount: 1},
			{ParentCoinID: h32(7), PuzzleHash: h32(8), Amount: 2},
		},
	}

	raw, err := Encode(fb)
	require.NoError(t, err)

	blob, err := Compress(raw)
	require.NoError(t, err)

	got, err := Decode(blob)
	require.NoError(t, err)
	require.Equal(t, fb, got)
}

func TestDecodeRejectsNonZstdBlob(t *testing.T) {
	_, err := Decode([]byte("not zstd"))
	require.Error(t, err)
}

func TestDecodeWithoutGeneratorOrPool(t *testing.T) {
	fb := FullBlock{
		Height:           5,
		HeaderHash:       h32(1),
		PrevHeaderHash:   h32(2),
		FarmerPuzzleHash: h32(3),
		RewardCoins: []chain.Coin{
			{ParentCoinID: h32(5), PuzzleHash: h32(6), Amount: 1},
		},
	}

	raw, err := Encode(fb)
	require.NoError(t, err)
	blob, err := Compress(raw)
	require.NoError(t, err)

	got, err := Decode(blob)
	require.NoError(t, err)
	require.Nil(t, got.PoolPuzzleHash)
	require.Nil(t, got.TransactionInfo)
	require.Nil(t, got.TransactionsGenerator)
	require.Equal(t, fb.RewardCoins, got.RewardCoins)
}

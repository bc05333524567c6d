package block

import (
	"fmt"

	"github.com/xch-dev/explorer/internal/chain"
	"github.com/xch-dev/explorer/internal/codec"
)

// wireFullBlock is the self-describing payload a decompressed block blob
// carries. Real deployments would parse the network's own streamable
// encoding here; this module treats the network's block format as an
// external collaborator (SPEC_FULL.md §1) and defines its own deterministic
// encoding via internal/codec so the decoder is fully testable in isolation.
type wireFullBlock struct {
	Height                uint32
	HeaderHash            []byte
	PrevHeaderHash        []byte
	Weight                []byte
	TotalIters            []byte
	FarmerPuzzleHash      []byte
	PoolPuzzleHash        []byte `codec:",omitempty"`
	HasTransactionInfo    bool
	Timestamp             uint64
	Fees                  uint64
	Cost                  uint64
	PrevTransactionBlockHash []byte
	TransactionsGenerator []byte `codec:",omitempty"`
	GeneratorRefList      []uint32
	RewardParentCoinID    [][]byte
	RewardPuzzleHash      [][]byte
	RewardAmount          []uint64
}

// Encode produces the deterministic uncompressed payload a FullBlock
// round-trips through parse (Compress then Decode restores it). Exercised by
// tests verifying decode(encode(b)) stability.
func Encode(fb FullBlock) ([]byte, error) {
	w := wireFullBlock{
		Height:                fb.Height,
		HeaderHash:            fb.HeaderHash[:],
		PrevHeaderHash:        fb.PrevHeaderHash[:],
		Weight:                fb.Weight,
		TotalIters:            fb.TotalIters,
		FarmerPuzzleHash:      fb.FarmerPuzzleHash[:],
		TransactionsGenerator: fb.TransactionsGenerator,
		GeneratorRefList:      fb.GeneratorRefList,
	}
	if fb.PoolPuzzleHash != nil {
		w.PoolPuzzleHash = fb.PoolPuzzleHash[:]
	}
	if fb.TransactionInfo != nil {
		w.HasTransactionInfo = true
		w.Timestamp = fb.TransactionInfo.Timestamp
		w.Fees = fb.TransactionInfo.Fees
		w.Cost = fb.TransactionInfo.Cost
		w.PrevTransactionBlockHash = fb.TransactionInfo.PrevTransactionBlockHash[:]
	}
	for _, c := range fb.RewardCoins {
		w.RewardParentCoinID = append(w.RewardParentCoinID, c.ParentCoinID[:])
		w.RewardPuzzleHash = append(w.RewardPuzzleHash, c.PuzzleHash[:])
		w.RewardAmount = append(w.RewardAmount, c.Amount)
	}
	return codec.Marshal(w)
}

func parse(raw []byte) (FullBlock, error) {
	var w wireFullBlock
	if err := codec.Unmarshal(raw, &w); err != nil {
		return FullBlock{}, err
	}

	fb := FullBlock{
		Height:                w.Height,
		Weight:                w.Weight,
		TotalIters:            w.TotalIters,
		TransactionsGenerator: w.TransactionsGenerator,
		GeneratorRefList:      w.GeneratorRefList,
	}
	var err error
	if fb.HeaderHash, err = toHash32(w.HeaderHash); err != nil {
		return FullBlock{}, fmt.Errorf("header_hash: %w", err)
	}
	if fb.PrevHeaderHash, err = toHash32(w.PrevHeaderHash); err != nil {
		return FullBlock{}, fmt.Errorf("prev_header_hash: %w", err)
	}
	if fb.FarmerPuzzleHash, err = toHash32(w.FarmerPuzzleHash); err != nil {
		return FullBlock{}, fmt.Errorf("farmer_puzzle_hash: %w", err)
	}
	if len(w.PoolPuzzleHash) > 0 {
		h, err := toHash32(w.PoolPuzzleHash)
		if err != nil {
			return FullBlock{}, fmt.Errorf("pool_puzzle_hash: %w", err)
		}
		fb.PoolPuzzleHash = &h
	}
	if w.HasTransactionInfo {
		prevTx, err := toHash32(w.PrevTransactionBlockHash)
		if err != nil {
			return FullBlock{}, fmt.Errorf("prev_transaction_block_hash: %w", err)
		}
		fb.TransactionInfo = &TransactionInfo{
			Timestamp:                w.Timestamp,
			Fees:                     w.Fees,
			Cost:                     w.Cost,
			PrevTransactionBlockHash: prevTx,
		}
	}

	if len(w.RewardParentCoinID) != len(w.RewardPuzzleHash) || len(w.RewardParentCoinID) != len(w.RewardAmount) {
		return FullBlock{}, fmt.Errorf("reward coin field length mismatch")
	}
	for i := range w.RewardParentCoinID {
		parent, err := toHash32(w.RewardParentCoinID[i])
		if err != nil {
			return FullBlock{}, fmt.Errorf("reward_coins[%d].parent_coin_id: %w", i, err)
		}
		ph, err := toHash32(w.RewardPuzzleHash[i])
		if err != nil {
			return FullBlock{}, fmt.Errorf("reward_coins[%d].puzzle_hash: %w", i, err)
		}
		fb.RewardCoins = append(fb.RewardCoins, chain.Coin{ParentCoinID: parent, PuzzleHash: ph, Amount: w.RewardAmount[i]})
	}

	return fb, nil
}

func toHash32(b []byte) (chain.Hash32, error) {
	var h chain.Hash32
	if len(b) != 32 {
		return h, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

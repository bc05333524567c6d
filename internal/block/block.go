// Package block decodes compressed block blobs pulled from the upstream
// block store into a typed FullBlock, deriving the block's reward-coin list
// along the way. Decoding is pure and parallelizable: it touches neither the
// Store nor the PVM.
//
// Grounded on original_source/src/process/block.rs's FullBlock field usage
// and original_source/crates/parser/src/block.rs's decompress-then-parse
// shape, re-targeted from the network's streamable encoding to this module's
// own codec (see internal/codec) since the real wire format is an external
// collaborator this module does not implement.
package block

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/xch-dev/explorer/internal/chain"
)

// TransactionInfo mirrors chain.TransactionInfo but without the fields the
// decoder itself derives (Additions/Removals are filled in by the driver
// once spends are counted, not known at decode time).
type TransactionInfo struct {
	Timestamp                uint64
	Fees                     uint64
	Cost                     uint64
	PrevTransactionBlockHash chain.Hash32
}

// FullBlock is the decoded shape of one compressed block blob.
type FullBlock struct {
	Height                uint32
	HeaderHash            chain.Hash32
	PrevHeaderHash        chain.Hash32
	Weight                []byte // big-endian u128, kept as bytes until BlockRecord construction
	TotalIters            []byte
	FarmerPuzzleHash      chain.Hash32
	PoolPuzzleHash        *chain.Hash32
	TransactionInfo       *TransactionInfo
	TransactionsGenerator []byte // nil if this block carries no generator
	GeneratorRefList      []uint32
	RewardCoins           []chain.Coin
}

// Decode decompresses a zstd-compressed blob and parses it into a FullBlock.
// Both steps are fatal-on-error for the batch that contains this block, per
// SPEC_FULL.md §7: a corrupt or malformed blob is treated as a data-source
// inconsistency, never silently skipped.
func Decode(blob []byte) (FullBlock, error) {
	raw, err := decompress(blob)
	if err != nil {
		return FullBlock{}, fmt.Errorf("block: decompress: %w", err)
	}

	fb, err := parse(raw)
	if err != nil {
		return FullBlock{}, fmt.Errorf("block: parse: %w", err)
	}
	return fb, nil
}

// Compress zstd-compresses raw bytes produced by Encode into the blob shape
// Decode expects. Used by tests and by fixture generators that need a
// realistic upstream row without a real network's block bytes.
func Compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := enc.Write(raw); err != nil {
		_ = enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(blob []byte) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	out, err := io.ReadAll(dec)
	if err != nil {
		return nil, err
	}
	return out, nil
}

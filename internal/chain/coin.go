// Package chain holds the persisted entity shapes: coins, blocks, spends, and
// the tagged CoinKind / P2Puzzle variants the classifier produces.
package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"
)

// Hash32 is a 32-byte tree hash: a coin id, puzzle hash, header hash, asset
// id, or launcher id, depending on context.
type Hash32 [32]byte

// String renders a Hash32 as lowercase hex, matching the hash_hex path
// segments the HTTP surface accepts.
func (h Hash32) String() string { return hex.EncodeToString(h[:]) }

// MarshalJSON renders a Hash32 as a hex string rather than a JSON array of
// 32 numbers, matching what every route parameter and JSON field that
// carries a hash expects on the wire.
func (h Hash32) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON parses a hex string back into a Hash32.
func (h *Hash32) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("chain: decode hash32: %w", err)
	}
	if len(b) != 32 {
		return fmt.Errorf("chain: hash32 must be 32 bytes, got %d", len(b))
	}
	copy(h[:], b)
	return nil
}

// ParseHash32 decodes a hex string into a Hash32.
func ParseHash32(s string) (Hash32, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash32{}, fmt.Errorf("chain: decode hash32: %w", err)
	}
	if len(b) != 32 {
		return Hash32{}, fmt.Errorf("chain: hash32 must be 32 bytes, got %d", len(b))
	}
	var h Hash32
	copy(h[:], b)
	return h, nil
}

// Coin is the (parent, puzzle_hash, amount) triple identified by its tree
// hash.
type Coin struct {
	ParentCoinID Hash32
	PuzzleHash   Hash32
	Amount       uint64
}

// ID computes coin_id = tree_hash(parent_coin_id ‖ puzzle_hash ‖ amount), the
// network's fixed atom-tree hash over a known 3-tuple. Unlike puzzle
// evaluation, this needs no interpreter: it's the same sha256 atom/pair
// construction the VM uses internally, replicated directly here so callers
// past the PVM Driver stage (Batch Builder, Writer) can key on a coin's
// identity without carrying a per-block Allocator along with them.
func (c Coin) ID() Hash32 {
	amount := treeHashAtom(encodeAmountAtom(c.Amount))
	puzzleHash := treeHashAtom(c.PuzzleHash[:])
	parent := treeHashAtom(c.ParentCoinID[:])
	return treeHashPair(parent, treeHashPair(puzzleHash, amount))
}

func treeHashAtom(b []byte) Hash32 {
	return sha256.Sum256(append([]byte{1}, b...))
}

func treeHashPair(left, right Hash32) Hash32 {
	buf := append([]byte{2}, left[:]...)
	buf = append(buf, right[:]...)
	return sha256.Sum256(buf)
}

// encodeAmountAtom encodes v as CLVM atoms do: minimal big-endian, signless
// since amounts are never negative, padded with a leading zero byte when the
// high bit would otherwise flip the sign.
func encodeAmountAtom(v uint64) []byte {
	if v == 0 {
		return nil
	}
	var buf [9]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte(v)
		v >>= 8
	}
	if buf[i]&0x80 != 0 {
		i--
		buf[i] = 0
	}
	return buf[i:]
}

// SingletonLineageProof is the value-typed parent snapshot a singleton child
// carries instead of a pointer to its parent's record.
type SingletonLineageProof struct {
	ParentParentCoinInfo   Hash32
	ParentInnerPuzzleHash  *Hash32 // nil for the eve coin
	ParentAmount           uint64
}

// CatLineageProof is the CAT-layer analogue; the inner puzzle hash is always
// known for a CAT spend so it is not optional.
type CatLineageProof struct {
	ParentParentCoinInfo  Hash32
	ParentInnerPuzzleHash Hash32
	ParentAmount          uint64
}

// CoinKindTag identifies which CoinKind variant a record carries. Values are
// stable across releases; a decoder that sees a tag it does not recognize
// must reject the record rather than silently mapping it to Unknown.
type CoinKindTag byte

const (
	CoinKindUnknown CoinKindTag = iota
	CoinKindReward
	CoinKindCat
	CoinKindSingleton
	CoinKindNft
	CoinKindDid
)

// CoinKind is the tagged variant recorded against a classified coin. Only the
// fields matching Tag are meaningful.
type CoinKind struct {
	Tag CoinKindTag

	// Cat
	AssetID          Hash32
	HiddenPuzzleHash *Hash32
	P2PuzzleHash     Hash32
	CatLineage       *CatLineageProof

	// Singleton / Nft / Did share LauncherID and a singleton-style lineage.
	LauncherID       Hash32
	SingletonLineage SingletonLineageProof

	// Nft
	Metadata                  []byte
	MetadataUpdaterPuzzleHash Hash32
	CurrentOwner              *Hash32
	RoyaltyPuzzleHash         Hash32
	RoyaltyBasisPoints        uint16

	// Did
	RecoveryListHash            *Hash32
	NumVerificationsRequired    uint64
}

// P2PuzzleTag identifies the P2Puzzle variant. Only ClawbackV2 is modeled;
// the classifier attaches it only when a clawback memo is recognized.
type P2PuzzleTag byte

const (
	P2PuzzleNone P2PuzzleTag = iota
	P2PuzzleClawbackV2
)

// P2Puzzle is the optional inner-spend-authority annotation attached to a
// coin record when its memo channel encodes a clawback escrow.
type P2Puzzle struct {
	Tag P2PuzzleTag

	SenderPuzzleHash   Hash32
	ReceiverPuzzleHash Hash32
	Seconds            uint64
	Amount             uint64
	Hinted             bool
}

// CoinRecord is the persisted `coins` row: created on addition, mutated
// exactly once on spend.
type CoinRecord struct {
	Coin          Coin
	CreatedHeight uint32
	SpentHeight   *uint32
	Hint          *Hash32
	Memos         []byte
	Kind          CoinKind
	P2Puzzle      *P2Puzzle
}

// CoinSpendRecord is the persisted `coin_spends` row: created once on spend,
// never mutated afterward.
type CoinSpendRecord struct {
	Coin          Coin
	PuzzleReveal  []byte
	Solution      []byte
	SpentHeight   uint32
}

// TransactionInfo is present only on blocks that carry a transaction
// generator.
type TransactionInfo struct {
	Timestamp               uint64
	Fees                    uint64
	Cost                    uint64
	Additions               uint32
	Removals                uint32
	PrevTransactionBlockHash Hash32
}

// BlockRecord is the persisted `blocks` row.
type BlockRecord struct {
	HeaderHash        Hash32
	Weight            *uint256.Int
	TotalIters        *uint256.Int
	FarmerPuzzleHash  Hash32
	PoolPuzzleHash    *Hash32
	PrevHeaderHash    Hash32
	TransactionInfo   *TransactionInfo
}

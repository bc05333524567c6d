// Package driver implements the PVM Driver: it sets up a block's generator
// arguments with back-references to prior blocks' generators, runs the
// generator, and iterates the resulting coin-spend list into classified
// ParsedBlocks.
//
// Grounded on original_source/src/process/block.rs's process_block (reward
// coins first, then generator-derived additions; setup_generator_args /
// run_puzzle / parse_spends) and original_source/src/process/coin_spend.rs's
// per-spend dispatch into the classifier.
package driver

import (
	"fmt"

	"github.com/xch-dev/explorer/internal/block"
	"github.com/xch-dev/explorer/internal/chain"
	"github.com/xch-dev/explorer/internal/puzzle"
	"github.com/xch-dev/explorer/internal/pvm"
)

// ErrMissingReferenceBlock is fatal for the containing batch: a generator
// names a height the upstream block store did not return.
type ErrMissingReferenceBlock struct {
	Height uint32
}

func (e *ErrMissingReferenceBlock) Error() string {
	return fmt.Sprintf("driver: missing referenced generator block at height %d", e.Height)
}

// SpendUpdate is the driver's output for one spent coin: the CoinSpendRecord
// ready to persist, plus the classifier's refined CoinKind for the coin
// being spent.
type SpendUpdate struct {
	CoinID      chain.Hash32
	SpentHeight uint32
	Kind        chain.CoinKind
	Record      chain.CoinSpendRecord
}

// ParsedBlock is one block's fully classified output: reward coins (added
// first, per SPEC_FULL.md §4.5.6) followed by generator-derived additions,
// the spend updates for every coin the generator consumed, any TAIL programs
// revealed, and the block's own record.
type ParsedBlock struct {
	Height    uint32
	Block     chain.BlockRecord
	Additions []chain.CoinRecord
	Spends    []SpendUpdate
	Tails     map[chain.Hash32][]byte
}

// Driver wires a pvm.Driver and a puzzle.Classifier together to process one
// block at a time. A fresh pvm.Allocator is created per block and discarded
// once classification completes, bounding memory across a batch (SPEC_FULL.md
// §5, §9).
type Driver struct {
	vm         pvm.Driver
	classifier *puzzle.Classifier
}

// New builds a Driver.
func New(vm pvm.Driver, classifier *puzzle.Classifier) *Driver {
	return &Driver{vm: vm, classifier: classifier}
}

// Process runs the full PVM-driver pipeline for one decoded block. refs maps
// referenced heights to their already-decoded FullBlock, populated by the
// caller (the Sync Scheduler) once per batch.
func (d *Driver) Process(fb block.FullBlock, refs map[uint32]block.FullBlock) (ParsedBlock, error) {
	pb := ParsedBlock{
		Height: fb.Height,
		Tails:  map[chain.Hash32][]byte{},
	}

	for _, rc := range fb.RewardCoins {
		pb.Additions = append(pb.Additions, chain.CoinRecord{
			Coin:          rc,
			CreatedHeight: fb.Height,
			Kind:          chain.CoinKind{Tag: chain.CoinKindReward},
		})
	}

	var additionsCount, removalsCount uint32

	if len(fb.TransactionsGenerator) > 0 {
		a := d.vm.NewAllocator()

		generator, err := d.vm.Parse(a, fb.TransactionsGenerator)
		if err != nil {
			return ParsedBlock{}, fmt.Errorf("driver: parse generator at height %d: %w", fb.Height, err)
		}

		var refBytes [][]byte
		for _, h := range fb.GeneratorRefList {
			refBlock, ok := refs[h]
			if !ok || len(refBlock.TransactionsGenerator) == 0 {
				return ParsedBlock{}, &ErrMissingReferenceBlock{Height: h}
			}
			refBytes = append(refBytes, refBlock.TransactionsGenerator)
		}

		args := generatorArgs(a, refBytes)

		result, err := d.vm.Run(a, generator.Node(), args)
		if err != nil {
			return ParsedBlock{}, fmt.Errorf("driver: run generator at height %d: %w", fb.Height, err)
		}

		spends, err := parseSpendList(a, result)
		if err != nil {
			return ParsedBlock{}, fmt.Errorf("driver: parse spend list at height %d: %w", fb.Height, err)
		}

		for _, sp := range spends {
			puzzleHash := d.vm.TreeHash(a, sp.puzzle)
			coin := chain.Coin{ParentCoinID: sp.parentCoinID, PuzzleHash: puzzleHash, Amount: sp.amount}
			coinID := coin.ID()

			removalsCount++

			classified, err := d.classifier.ClassifySpend(fb.Height, coin, coinID, sp.puzzle, sp.solution)
			if err != nil {
				return ParsedBlock{}, err
			}

			pb.Additions = append(pb.Additions, classified.Additions...)
			additionsCount += uint32(len(classified.Additions))
			for assetID, program := range classified.Tails {
				pb.Tails[assetID] = program
			}

			pb.Spends = append(pb.Spends, SpendUpdate{
				CoinID:      coinID,
				SpentHeight: fb.Height,
				Kind:        classified.UpdatedKind,
				Record: chain.CoinSpendRecord{
					Coin:         coin,
					PuzzleReveal: d.vm.Serialize(a, sp.puzzle),
					Solution:     d.vm.Serialize(a, sp.solution),
					SpentHeight:  fb.Height,
				},
			})
		}
	}

	pb.Block = chain.BlockRecord{
		HeaderHash:       fb.HeaderHash,
		FarmerPuzzleHash: fb.FarmerPuzzleHash,
		PoolPuzzleHash:   fb.PoolPuzzleHash,
		PrevHeaderHash:   fb.PrevHeaderHash,
		Weight:           bytesToUint256(fb.Weight),
		TotalIters:       bytesToUint256(fb.TotalIters),
	}
	if fb.TransactionInfo != nil {
		pb.Block.TransactionInfo = &chain.TransactionInfo{
			Timestamp:                fb.TransactionInfo.Timestamp,
			Fees:                     fb.TransactionInfo.Fees,
			Cost:                     fb.TransactionInfo.Cost,
			Additions:                additionsCount,
			Removals:                 removalsCount,
			PrevTransactionBlockHash: fb.TransactionInfo.PrevTransactionBlockHash,
		}
	}

	return pb, nil
}

// generatorArgs builds the network-specified generator arguments: a
// one-element list whose only element is the list of referenced generator
// programs, ((ref0 ref1 ... refN)).
func generatorArgs(a pvm.Allocator, refs [][]byte) pvm.Node {
	list := a.Atom(nil)
	for i := len(refs) - 1; i >= 0; i-- {
		list = a.Cons(a.Atom(refs[i]), list)
	}
	return a.Cons(list, a.Atom(nil))
}

type rawSpend struct {
	parentCoinID chain.Hash32
	amount       uint64
	puzzle       pvm.Node
	solution     pvm.Node
}

// parseSpendList walks the generator's result: a list whose first element is
// the spend list, ( ((parent amount puzzle solution) ...) ... ).
func parseSpendList(a pvm.Allocator, result pvm.Node) ([]rawSpend, error) {
	if result.IsAtom() {
		return nil, fmt.Errorf("generator result is an atom, expected a list")
	}
	spendListNode := a.First(result)

	var out []rawSpend
	n := spendListNode
	for !isNilNode(a, n) {
		item := a.First(n)
		items := listItems(a, item)
		if len(items) < 4 {
			return nil, fmt.Errorf("malformed coin spend entry")
		}
		var parent chain.Hash32
		copy(parent[:], a.AtomBytes(items[0]))
		amount := decodeCLVMUint(a.AtomBytes(items[1]))
		out = append(out, rawSpend{parentCoinID: parent, amount: amount, puzzle: items[2], solution: items[3]})
		n = a.Rest(n)
	}
	return out, nil
}

func isNilNode(a pvm.Allocator, n pvm.Node) bool {
	return n.IsAtom() && len(a.AtomBytes(n)) == 0
}

func listItems(a pvm.Allocator, n pvm.Node) []pvm.Node {
	var items []pvm.Node
	for !isNilNode(a, n) {
		items = append(items, a.First(n))
		n = a.Rest(n)
	}
	return items
}

// decodeCLVMUint decodes a CLVM atom known to hold a non-negative amount as
// minimal big-endian bytes (optionally sign-padded with a leading zero).
func decodeCLVMUint(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = (v << 8) | uint64(c)
	}
	return v
}

// encodeCLVMUint is the inverse of decodeCLVMUint: minimal big-endian bytes,
// padded with one leading zero byte if the high bit would otherwise be set
// (CLVM atoms are signed two's-complement; amounts are always non-negative).
func encodeCLVMUint(v uint64) []byte {
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

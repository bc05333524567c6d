package driver

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xch-dev/explorer/internal/block"
	"github.com/xch-dev/explorer/internal/chain"
	"github.com/xch-dev/explorer/internal/puzzle"
	"github.com/xch-dev/explorer/internal/pvm"
	"github.com/xch-dev/explorer/internal/pvmtest"
)

var alloc = pvmtest.Allocator{}

func h32(fill byte) chain.Hash32 {
	var h chain.Hash32
	for i := range h {
		h[i] = fill
	}
	return h
}

// fakeProgram wraps a pvm.Node so it satisfies pvm.Program for the fake
// driver's Parse hook.
type fakeProgram struct{ n pvm.Node }

func (p fakeProgram) Node() pvm.Node { return p.n }

// newFakeVM builds a pvm.Driver whose Parse treats the generator's raw bytes
// as a tag identifying a pre-built spend-list node, and whose Run returns
// that same node regardless of the generator args it's called with (this
// fake has no real interpreter; the "generator program" IS its output).
func newFakeVM(generatorResults map[string]pvm.Node, innerRun func(puzzle, solution pvm.Node) (pvm.Node, error)) pvm.Driver {
	return pvm.Driver{
		NewAllocator: func() pvm.Allocator { return alloc },
		TreeHash:     pvmtest.TreeHash,
		Serialize:    pvmtest.Serialize,
		Parse: func(a pvm.Allocator, serialized []byte) (pvm.Program, error) {
			return fakeProgram{n: generatorResults[string(serialized)]}, nil
		},
		// Run doubles as both the generator-body evaluator and the
		// inner-puzzle evaluator. A generator's Parse already produced its
		// fully-reduced spend list in this fake, so running it is an
		// identity operation (recognized by pointer identity against the
		// fixture map); any other puzzle node goes through innerRun.
		Run: func(a pvm.Allocator, puzzle, solution pvm.Node) (pvm.Node, error) {
			for _, n := range generatorResults {
				if n == puzzle {
					return puzzle, nil
				}
			}
			return innerRun(puzzle, solution)
		},
	}
}

// spendListNode builds the generator's expected output shape: (spend_list),
// where spend_list is a proper list of (parent amount puzzle solution)
// entries.
func spendListNode(spends ...pvm.Node) pvm.Node {
	return pvmtest.List(pvmtest.List(spends...))
}

func spendEntry(parent chain.Hash32, amount uint64, puzzle, solution pvm.Node) pvm.Node {
	return pvmtest.List(alloc.Atom(parent[:]), alloc.Atom(encodeCLVMUint(amount)), puzzle, solution)
}

func createCoinCondition(puzzleHash chain.Hash32, amount uint64) pvm.Node {
	args := pvmtest.List(alloc.Atom(puzzleHash[:]), alloc.Atom(encodeCLVMUint(amount)), pvmtest.List())
	return alloc.Cons(alloc.Atom([]byte{51}), args)
}

func baseBlock(height uint32, generatorTag string, refList []uint32) block.FullBlock {
	return block.FullBlock{
		Height:                height,
		HeaderHash:            h32(byte(height)),
		PrevHeaderHash:        h32(byte(height - 1)),
		Weight:                []byte{1, 2, 3},
		TotalIters:            []byte{4, 5, 6},
		FarmerPuzzleHash:      h32(0xF0),
		TransactionsGenerator: []byte(generatorTag),
		GeneratorRefList:      refList,
		RewardCoins: []chain.Coin{
			{ParentCoinID: h32(0), PuzzleHash: h32(0xE0), Amount: 1000},
			{ParentCoinID: h32(0), PuzzleHash: h32(0xE1), Amount: 1000},
		},
		TransactionInfo: &block.TransactionInfo{Timestamp: 123, Fees: 1, Cost: 1000},
	}
}

func TestProcessOrdersRewardCoinsFirst(t *testing.T) {
	fb := baseBlock(10, "", nil)
	fb.TransactionsGenerator = nil

	classifier := puzzle.New(pvm.Driver{}, puzzle.ModHashes{})
	d := New(pvm.Driver{}, classifier)

	pb, err := d.Process(fb, nil)
	require.NoError(t, err)
	require.Len(t, pb.Additions, 2)
	require.Equal(t, fb.RewardCoins[0], pb.Additions[0].Coin)
	require.Equal(t, fb.RewardCoins[1], pb.Additions[1].Coin)
	require.Equal(t, chain.CoinKindReward, pb.Additions[0].Kind.Tag)
	require.Equal(t, uint32(0), pb.Block.TransactionInfo.Additions)
	require.Equal(t, uint32(0), pb.Block.TransactionInfo.Removals)
}

func TestProcessFailsOnMissingReferenceBlock(t *testing.T) {
	fb := baseBlock(20, "gen", []uint32{15})

	vm := newFakeVM(map[string]pvm.Node{"gen": spendListNode()}, func(puzzle, solution pvm.Node) (pvm.Node, error) {
		return pvmtest.Nil(), nil
	})
	classifier := puzzle.New(vm, puzzle.ModHashes{})
	d := New(vm, classifier)

	_, err := d.Process(fb, map[uint32]block.FullBlock{})
	require.Error(t, err)

	var missing *ErrMissingReferenceBlock
	require.ErrorAs(t, err, &missing)
	require.Equal(t, uint32(15), missing.Height)
}

func TestProcessClassifiesASimpleSpendAndCountsAdditionsRemovals(t *testing.T) {
	parent := h32(0x01)
	spentPuzzle := alloc.Atom([]byte("unwrapped-puzzle"))
	childPH := h32(0xCC)

	solution := pvmtest.Nil()
	entry := spendEntry(parent, 2000, spentPuzzle, solution)

	vm := newFakeVM(
		map[string]pvm.Node{"gen": spendListNode(entry)},
		func(puzzle, solution pvm.Node) (pvm.Node, error) {
			return pvmtest.List(createCoinCondition(childPH, 2000)), nil
		},
	)

	classifier := puzzle.New(vm, puzzle.ModHashes{
		SingletonLauncher: h32(0x01),
		SingletonTopLayer: h32(0x02),
		Cat:               h32(0x03),
		StandardSig:       h32(0x04),
	})
	d := New(vm, classifier)

	fb := baseBlock(30, "gen", nil)
	pb, err := d.Process(fb, nil)
	require.NoError(t, err)

	// 2 reward coins + 1 generator-derived child.
	require.Len(t, pb.Additions, 3)
	require.Equal(t, chain.CoinKindReward, pb.Additions[0].Kind.Tag)
	require.Equal(t, chain.CoinKindReward, pb.Additions[1].Kind.Tag)

	child := pb.Additions[2]
	require.Equal(t, childPH, child.Coin.PuzzleHash)
	require.Equal(t, uint64(2000), child.Coin.Amount)
	require.Equal(t, chain.CoinKindUnknown, child.Kind.Tag)

	require.Len(t, pb.Spends, 1)
	require.Equal(t, fb.Height, pb.Spends[0].SpentHeight)
	require.Equal(t, parent, pb.Spends[0].Record.Coin.ParentCoinID)
	require.NotEmpty(t, pb.Spends[0].Record.PuzzleReveal)

	require.Equal(t, uint32(1), pb.Block.TransactionInfo.Additions)
	require.Equal(t, uint32(1), pb.Block.TransactionInfo.Removals)
}

func TestProcessPropagatesRunCatTailIntoParsedBlockTails(t *testing.T) {
	parent := h32(0x05)
	assetID := h32(0x06)
	innerPH := h32(0x07)
	tailProgram := []byte("tail-bytes")

	mods := puzzle.ModHashes{
		SingletonLauncher: h32(0x01),
		SingletonTopLayer: h32(0x02),
		Cat:               pvmtest.TreeHash(alloc, alloc.Atom([]byte("cat"))),
		StandardSig:       h32(0x04),
	}

	catPuzzle := curriedCatPuzzleForTest(assetID, innerPH)
	solution := pvmtest.List(pvmtest.Nil())
	entry := spendEntry(parent, 500, catPuzzle, solution)

	runCatTail := alloc.Cons(alloc.Atom([]byte{51}), pvmtest.List(
		alloc.Atom(make([]byte, 32)),
		alloc.Atom([]byte{0x8F}), // -113
		pvmtest.List(alloc.Atom(tailProgram), alloc.Atom([]byte("sol"))),
	))

	vm := newFakeVM(
		map[string]pvm.Node{"gen": spendListNode(entry)},
		func(puzzle, solution pvm.Node) (pvm.Node, error) {
			return pvmtest.List(runCatTail), nil
		},
	)
	classifier := puzzle.New(vm, mods)
	d := New(vm, classifier)

	fb := baseBlock(40, "gen", nil)
	pb, err := d.Process(fb, nil)
	require.NoError(t, err)
	require.Contains(t, pb.Tails, assetID)
	require.Equal(t, tailProgram, pb.Tails[assetID])
}

// curriedCatPuzzleForTest builds (a (q . MOD) ARGS) for the CAT layer with
// ARGS = (MOD_HASH_PLACEHOLDER ASSET_ID INNER_PUZZLE . 1).
func curriedCatPuzzleForTest(assetID, innerPH chain.Hash32) pvm.Node {
	one := alloc.Atom([]byte{1})
	arg := func(v, rest pvm.Node) pvm.Node {
		quoted := alloc.Cons(one, v)
		return alloc.Cons(alloc.Atom([]byte{4}), alloc.Cons(quoted, rest))
	}
	args := arg(alloc.Atom([]byte("mod-hash-placeholder")), arg(alloc.Atom(assetID[:]), arg(alloc.Atom(innerPH[:]), one)))
	mod := alloc.Atom([]byte("cat"))
	quotedMod := alloc.Cons(one, mod)
	return alloc.Cons(alloc.Atom([]byte{2}), pvmtest.List(quotedMod, args))
}

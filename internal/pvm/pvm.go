// Package pvm declares the typed boundary between the indexing core and the
// tree-reducing puzzle VM. The VM itself, the standard puzzle library, and
// the atom-tree hash function are external collaborators; this package only
// shapes the interface the core consumes, per the driver design in
// SPEC_FULL.md §4.4/§9.
package pvm

import "github.com/xch-dev/explorer/internal/chain"

// Node is an opaque, arena-indexed VM value. Nodes never escape the
// classifier; only their serialized bytes or derived hashes do.
type Node interface {
	// IsAtom reports whether this node is a leaf atom rather than a cons pair.
	IsAtom() bool
}

// Allocator is a per-block arena. A fresh Allocator is created per block and
// dropped once classification of that block completes, bounding memory use
// across a batch.
type Allocator interface {
	// Atom interns a byte string as a leaf node.
	Atom(b []byte) Node
	// Cons builds a pair node.
	Cons(first, rest Node) Node
	// First and Rest destructure a pair node; both panic on an atom.
	First(n Node) Node
	Rest(n Node) Node
	// AtomBytes returns the bytes backing an atom node.
	AtomBytes(n Node) []byte
}

// Program is a parsed, runnable puzzle or generator body.
type Program interface {
	Node() Node
}

// ParseProgram parses serialized program bytes, honoring the network's
// back-reference compression scheme for generator bodies.
type ParseProgram func(a Allocator, serialized []byte) (Program, error)

// TreeHash computes the network's atom-tree hash of a node, used for
// puzzle_hash = tree_hash(puzzle), mod hashes and inner-puzzle hashes. Coin
// ids are computed without the VM, by chain.Coin.ID.
type TreeHash func(a Allocator, n Node) chain.Hash32

// RunPuzzle evaluates puzzle against solution inside the VM and returns the
// resulting node (a condition list for inner puzzles, or a spend list for
// generators).
type RunPuzzle func(a Allocator, puzzle Node, solution Node) (Node, error)

// Serialize re-serializes a node back to its canonical program bytes. The
// driver calls this on a spend's puzzle and solution nodes before the
// per-block allocator is dropped, since CoinSpendRecord persists the reveal
// and solution as bytes, never as VM nodes (SPEC_FULL.md §4.5.6, §9).
type Serialize func(a Allocator, n Node) []byte

// Driver bundles the VM entry points the classifier and block driver need,
// so call sites take one interface value instead of four separate function
// parameters.
type Driver struct {
	NewAllocator func() Allocator
	Parse        ParseProgram
	TreeHash     TreeHash
	Run          RunPuzzle
	Serialize    Serialize
}

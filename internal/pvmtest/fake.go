// Package pvmtest provides a minimal, deterministic fake of the pvm.Driver
// boundary for tests in internal/puzzle and internal/driver. It is not a
// real CLVM implementation: Cons/First/Rest/Atom model a plain s-expression
// tree in Go values, and TreeHash applies the standard atom/pair tree-hash
// construction (sha256 over a 1-byte atom/pair tag) so that hashing behavior
// is realistic without depending on an actual VM.
package pvmtest

import (
	"crypto/sha256"

	"github.com/xch-dev/explorer/internal/chain"
	"github.com/xch-dev/explorer/internal/pvm"
)

// Node is the fake VM's node representation: either a leaf atom or a cons
// pair of two Nodes.
type Node struct {
	atom   []byte
	isAtom bool
	first  *Node
	rest   *Node
}

func (n *Node) IsAtom() bool { return n.isAtom }

// Allocator is a no-op arena: the fake VM has no need to intern or bound
// memory, but implements the full pvm.Allocator surface.
type Allocator struct{}

func (Allocator) Atom(b []byte) pvm.Node {
	return &Node{atom: append([]byte(nil), b...), isAtom: true}
}

func (Allocator) Cons(first, rest pvm.Node) pvm.Node {
	return &Node{first: first.(*Node), rest: rest.(*Node)}
}

func (Allocator) First(n pvm.Node) pvm.Node { return n.(*Node).first }
func (Allocator) Rest(n pvm.Node) pvm.Node  { return n.(*Node).rest }
func (Allocator) AtomBytes(n pvm.Node) []byte {
	return n.(*Node).atom
}

// Nil is the canonical empty-list / false atom.
func Nil() pvm.Node { return Allocator{}.Atom(nil) }

// List builds a proper nil-terminated list from items, in order.
func List(items ...pvm.Node) pvm.Node {
	a := Allocator{}
	out := Nil()
	for i := len(items) - 1; i >= 0; i-- {
		out = a.Cons(items[i], out)
	}
	return out
}

// TreeHash implements the standard CLVM tree-hash construction:
// sha256(0x01 ‖ atom) for atoms, sha256(0x02 ‖ hash(first) ‖ hash(rest)) for
// pairs.
func TreeHash(_ pvm.Allocator, n pvm.Node) chain.Hash32 {
	return treeHash(n.(*Node))
}

func treeHash(n *Node) chain.Hash32 {
	if n.isAtom {
		h := sha256.Sum256(append([]byte{1}, n.atom...))
		return chain.Hash32(h)
	}
	lh := treeHash(n.first)
	rh := treeHash(n.rest)
	buf := append([]byte{2}, lh[:]...)
	buf = append(buf, rh[:]...)
	h := sha256.Sum256(buf)
	return chain.Hash32(h)
}

// Serialize encodes a node deterministically: [0x01, len, atom bytes] for
// atoms, [0x02, encode(first), encode(rest)] for pairs. Not CLVM's actual
// wire format, but stable and sufficient for round-trip assertions in tests.
func Serialize(_ pvm.Allocator, n pvm.Node) []byte {
	return serialize(n.(*Node))
}

func serialize(n *Node) []byte {
	if n.isAtom {
		out := []byte{1, byte(len(n.atom))}
		return append(out, n.atom...)
	}
	out := []byte{2}
	out = append(out, serialize(n.first)...)
	out = append(out, serialize(n.rest)...)
	return out
}

// EncodeUint encodes v as a minimal big-endian CLVM-style atom, padded with
// a leading zero byte when the high bit would otherwise be set.
func EncodeUint(v uint64) []byte {
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

// Hash32Node wraps a chain.Hash32 as a 32-byte atom.
func Hash32Node(h chain.Hash32) pvm.Node {
	return Allocator{}.Atom(h[:])
}

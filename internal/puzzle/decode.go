package puzzle

import (
	"github.com/xch-dev/explorer/internal/pvm"
)

// isNil reports whether n is the CLVM empty-list / false atom.
func isNil(a pvm.Allocator, n pvm.Node) bool {
	return n.IsAtom() && len(a.AtomBytes(n)) == 0
}

// atomToInt64 decodes a CLVM atom as a minimal big-endian two's-complement
// signed integer, the encoding every condition opcode and amount uses.
func atomToInt64(b []byte) int64 {
	if len(b) == 0 {
		return 0
	}
	negative := b[0]&0x80 != 0
	var v int64
	for _, c := range b {
		v = (v << 8) | int64(c)
	}
	if negative {
		// sign-extend: v currently holds the raw unsigned bits of len(b)
		// bytes; subtract 2^(8*len(b)) to recover the negative value.
		v -= int64(1) << uint(8*len(b))
	}
	return v
}

func listItems(a pvm.Allocator, n pvm.Node) []pvm.Node {
	var items []pvm.Node
	for !isNil(a, n) {
		items = append(items, a.First(n))
		n = a.Rest(n)
	}
	return items
}

// decodeConditions walks a CLVM condition list, (  (opcode . args) ... ),
// and recognizes CREATE_COIN and the CAT TAIL-reveal convention (a
// CREATE_COIN whose amount is the magic sentinel -113). Everything else
// decodes as CondOther and is otherwise ignored, matching the "only
// CreateCoin and RunCatTail affect output" rule.
func decodeConditions(a pvm.Allocator, serialize pvm.Serialize, n pvm.Node) []Condition {
	var out []Condition
	for _, item := range listItems(a, n) {
		args := a.Rest(item)
		opcode := atomToInt64(a.AtomBytes(a.First(item)))

		switch opcode {
		case opCreateCoin:
			argItems := listItems(a, args)
			if len(argItems) < 2 {
				out = append(out, Condition{Kind: CondOther})
				continue
			}
			puzzleHashBytes := a.AtomBytes(argItems[0])
			amount := atomToInt64(a.AtomBytes(argItems[1]))

			if amount == opRunCatTail && len(argItems) >= 3 {
				memoItems := listItems(a, argItems[2])
				if len(memoItems) >= 2 {
					out = append(out, Condition{
						Kind: CondRunCatTail,
						RunCatTail: &RunCatTailCondition{
							ProgramBytes: a.AtomBytes(memoItems[0]),
							Solution:     a.AtomBytes(memoItems[1]),
						},
					})
					continue
				}
			}

			cc := &CreateCoinCondition{Amount: uint64(amount)}
			copy(cc.PuzzleHash[:], puzzleHashBytes)
			if len(argItems) >= 3 {
				for _, memo := range listItems(a, argItems[2]) {
					b := a.AtomBytes(memo)
					cc.Memos = append(cc.Memos, append([]byte(nil), b...))
				}
				if serialize != nil {
					cc.MemoBytes = serialize(a, argItems[2])
				}
			}
			out = append(out, Condition{Kind: CondCreateCoin, CreateCoin: cc})
		case opMeltSingleton:
			out = append(out, Condition{Kind: CondMeltSingleton})
		default:
			out = append(out, Condition{Kind: CondOther})
		}
	}
	return out
}

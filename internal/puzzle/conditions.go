package puzzle

import "github.com/xch-dev/explorer/internal/chain"

// Condition opcodes this classifier inspects. Only CreateCoin and RunCatTail
// affect output per the wrapper semantics; the rest are walked over but
// otherwise ignored, matching the source's process_conditions / cat()
// filtering.
const (
	opAggSigMe        = 50
	opCreateCoin      = 51
	opAssertMyCoinID  = 70
	opAssertMyParentID = 71
	opAssertMyAmount  = 73
	opMeltSingleton   = -62 // convention: a negative sentinel opcode reserved for singleton melt
	opRunCatTail      = -113 // convention: the CAT TAIL-reveal magic amount/opcode sentinel
)

// ConditionKind identifies which condition variant matters to the
// classifier; anything else is parsed generically and dropped.
type ConditionKind int

const (
	CondOther ConditionKind = iota
	CondCreateCoin
	CondMeltSingleton
	CondRunCatTail
)

// CreateCoinCondition is a parsed CREATE_COIN condition.
type CreateCoinCondition struct {
	PuzzleHash chain.Hash32
	Amount     uint64
	Memos      [][]byte // raw memo atoms as parsed, at their actual length, before hint extraction
	MemoBytes  []byte   // the memo list re-serialized verbatim
}

// RunCatTailCondition carries the TAIL program bytes and the solution it was
// invoked with.
type RunCatTailCondition struct {
	ProgramBytes []byte
	Solution     []byte
}

// Condition is the tagged result of parsing one element of a condition list.
type Condition struct {
	Kind       ConditionKind
	CreateCoin *CreateCoinCondition
	RunCatTail *RunCatTailCondition
}

// Package batch implements the Batch Builder: it accumulates a sequence of
// driver.ParsedBlock values into one Insertions structure ready for the
// Writer to commit as a single atomic write-batch.
//
// Grounded on original_source/src/process/insertion.rs's Insertion ordering
// enum and original_source/src/process/block.rs's parallel-map-then-serial-
// merge shape. Ordered maps are realized with github.com/google/btree (a
// teacher dependency) keyed by the natural byte ordering of each id type,
// giving deterministic iteration at commit time without a separate sort
// pass.
package batch

import (
	"bytes"

	"github.com/google/btree"

	"github.com/xch-dev/explorer/internal/chain"
	"github.com/xch-dev/explorer/internal/driver"
)

type blockItem struct {
	height uint32
	record chain.BlockRecord
}

func lessBlockItem(a, b blockItem) bool { return a.height < b.height }

type coinItem struct {
	id     chain.Hash32
	record chain.CoinRecord
}

func lessCoinItem(a, b coinItem) bool { return bytes.Compare(a.id[:], b.id[:]) < 0 }

type spendItem struct {
	id     chain.Hash32
	update driver.SpendUpdate
}

func lessSpendItem(a, b spendItem) bool { return bytes.Compare(a.id[:], b.id[:]) < 0 }

type tailItem struct {
	assetID chain.Hash32
	program []byte
}

func lessTailItem(a, b tailItem) bool { return bytes.Compare(a.assetID[:], b.assetID[:]) < 0 }

// Insertions is the in-memory merged output of classifying a batch: ordered
// maps keyed by height / coin id / asset id, ready to be turned into one
// atomic write-batch. A ParsedBlock exclusively owns its additions and
// updates until Merge folds them in; after that, Insertions owns them until
// Writer.Commit persists them.
type Insertions struct {
	blocks  *btree.BTreeG[blockItem]
	additions *btree.BTreeG[coinItem]
	spends  *btree.BTreeG[spendItem]
	tails   *btree.BTreeG[tailItem]
}

// New builds an empty Insertions.
func New() *Insertions {
	return &Insertions{
		blocks:    btree.NewG(32, lessBlockItem),
		additions: btree.NewG(32, lessCoinItem),
		spends:    btree.NewG(32, lessSpendItem),
		tails:     btree.NewG(32, lessTailItem),
	}
}

// Merge folds one ParsedBlock's additions, spends, and tails into the
// Insertions. If a coin id appears in both additions and spends within the
// same batch, whichever of the two blocks is merged first, the spend is
// folded into the addition record (CreatedHeight and SpentHeight both set,
// Kind replaced by the spend's kind unless that kind is Unknown) and the
// separate CoinSpend row is still recorded under spends. SpendUpdate carries
// no P2Puzzle, so the addition's P2Puzzle is kept as it was.
func (ins *Insertions) Merge(pb driver.ParsedBlock) {
	ins.blocks.ReplaceOrInsert(blockItem{height: pb.Height, record: pb.Block})

	for _, add := range pb.Additions {
		id := add.Coin.ID()
		if prior, ok := ins.spends.Get(spendItem{id: id}); ok {
			h := prior.update.SpentHeight
			add.SpentHeight = &h
			if prior.update.Kind.Tag != chain.CoinKindUnknown {
				add.Kind = prior.update.Kind
			}
		}
		ins.additions.ReplaceOrInsert(coinItem{id: id, record: add})
	}

	for _, sp := range pb.Spends {
		ins.spends.ReplaceOrInsert(spendItem{id: sp.CoinID, update: sp})

		if existing, ok := ins.additions.Get(coinItem{id: sp.CoinID}); ok {
			h := sp.SpentHeight
			existing.record.SpentHeight = &h
			if sp.Kind.Tag != chain.CoinKindUnknown {
				existing.record.Kind = sp.Kind
			}
			ins.additions.ReplaceOrInsert(existing)
		}
	}

	for assetID, program := range pb.Tails {
		ins.tails.ReplaceOrInsert(tailItem{assetID: assetID, program: program})
	}
}

// Blocks visits every block record in ascending height order.
func (ins *Insertions) Blocks(fn func(height uint32, r chain.BlockRecord)) {
	ins.blocks.Ascend(func(it blockItem) bool {
		fn(it.height, it.record)
		return true
	})
}

// Additions visits every addition in ascending coin-id order.
func (ins *Insertions) Additions(fn func(id chain.Hash32, r chain.CoinRecord)) {
	ins.additions.Ascend(func(it coinItem) bool {
		fn(it.id, it.record)
		return true
	})
}

// Spends visits every spend update in ascending coin-id order.
func (ins *Insertions) Spends(fn func(id chain.Hash32, u driver.SpendUpdate)) {
	ins.spends.Ascend(func(it spendItem) bool {
		fn(it.id, it.update)
		return true
	})
}

// Tails visits every revealed TAIL program in ascending asset-id order.
func (ins *Insertions) Tails(fn func(assetID chain.Hash32, program []byte)) {
	ins.tails.Ascend(func(it tailItem) bool {
		fn(it.assetID, it.program)
		return true
	})
}

// Len reports how many blocks this Insertions covers, for throughput
// reporting in the Sync Scheduler.
func (ins *Insertions) Len() int { return ins.blocks.Len() }

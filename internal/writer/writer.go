// Package writer translates a batch.Insertions into one atomic write-batch
// against the Store, updating every index the Query Surface depends on.
//
// Grounded on original_source/src/db/transaction.rs's Transaction::commit
// (single WriteBatch, read-modify-write spend_coin merge semantics) and
// database.rs's key-building helpers.
package writer

import (
	"fmt"

	"github.com/xch-dev/explorer/internal/batch"
	"github.com/xch-dev/explorer/internal/chain"
	"github.com/xch-dev/explorer/internal/codec"
	"github.com/xch-dev/explorer/internal/driver"
	"github.com/xch-dev/explorer/internal/kv"
)

// Writer commits Insertions against a Store.
type Writer struct {
	store *kv.Store
}

// New builds a Writer over store.
func New(store *kv.Store) *Writer {
	return &Writer{store: store}
}

// Commit assembles one atomic write-batch from ins and commits it. Failure
// rolls back the entire batch; partial application is never observable.
func (w *Writer) Commit(ins *batch.Insertions) error {
	b := w.store.NewBatch()

	var outerErr error
	fail := func(err error) { outerErr = err }

	ins.Blocks(func(height uint32, r chain.BlockRecord) {
		if outerErr != nil {
			return
		}
		encoded, err := codec.EncodeBlockRecord(r)
		if err != nil {
			fail(fmt.Errorf("writer: encode block %d: %w", height, err))
			return
		}
		if err := b.Set(kv.CFBlocks, kv.HeightKey(height), encoded); err != nil {
			fail(err)
			return
		}
		if err := b.Set(kv.CFBlockHashes, r.HeaderHash[:], kv.HeightKey(height)); err != nil {
			fail(err)
			return
		}
	})
	if outerErr != nil {
		return outerErr
	}

	ins.Additions(func(id chain.Hash32, r chain.CoinRecord) {
		if outerErr != nil {
			return
		}
		encoded, err := codec.EncodeCoinRecord(r)
		if err != nil {
			fail(fmt.Errorf("writer: encode coin %x: %w", id, err))
			return
		}
		if err := b.Set(kv.CFCoins, id[:], encoded); err != nil {
			fail(err)
			return
		}
		if err := b.Set(kv.CFCoinHeightIndex, kv.CompositeKey(kv.HeightKey(r.CreatedHeight), id[:]), nil); err != nil {
			fail(err)
			return
		}
		if err := b.Set(kv.CFCoinParentHashIndex, kv.CompositeKey(r.Coin.ParentCoinID[:], id[:]), nil); err != nil {
			fail(err)
			return
		}
		if r.SpentHeight != nil {
			if err := b.Set(kv.CFCoinHeightIndex, kv.CompositeKey(kv.HeightKey(*r.SpentHeight), id[:]), nil); err != nil {
				fail(err)
				return
			}
		}
	})
	if outerErr != nil {
		return outerErr
	}

	ins.Spends(func(id chain.Hash32, u driver.SpendUpdate) {
		if outerErr != nil {
			return
		}
		encoded, err := codec.EncodeCoinSpendRecord(u.Record)
		if err != nil {
			fail(fmt.Errorf("writer: encode coin spend %x: %w", id, err))
			return
		}
		if err := b.Set(kv.CFCoinSpends, id[:], encoded); err != nil {
			fail(err)
			return
		}
		if err := b.Set(kv.CFCoinHeightIndex, kv.CompositeKey(kv.HeightKey(u.SpentHeight), id[:]), nil); err != nil {
			fail(err)
			return
		}
	})
	if outerErr != nil {
		return outerErr
	}

	ins.Tails(func(assetID chain.Hash32, program []byte) {
		if outerErr != nil {
			return
		}
		if err := b.Set(kv.CFTails, assetID[:], program); err != nil {
			fail(err)
			return
		}
	})
	if outerErr != nil {
		return outerErr
	}

	if err := b.Commit(); err != nil {
		return fmt.Errorf("writer: commit batch: %w", err)
	}
	return nil
}

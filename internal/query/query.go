// Package query implements the read-only Query Surface against the Store.
// Every lookup returns ErrNotFound as a distinct outcome rather than a
// wrapped error, so HTTP handlers (and any other caller) can map it to a 404
// with errors.Is instead of string matching.
//
// Grounded on original_source/crates/db/src/database.rs's read operations
// and original_source/crates/api/src/routes.rs's handler-level composition
// (in particular the coins_by_block/spends_by_block dedup-via-set idiom).
// The small reader-struct-plus-sentinel-error shape is absorbed from
// core/state/history_reader_v3.go's HistoryReaderV3/PrunedError idiom.
package query

import (
	"errors"
	"fmt"

	"github.com/xch-dev/explorer/internal/chain"
	"github.com/xch-dev/explorer/internal/codec"
	"github.com/xch-dev/explorer/internal/kv"
)

// ErrNotFound is returned by every lookup that finds nothing. Callers must
// compare with errors.Is, never by wrapping this into a formatted error.
var ErrNotFound = errors.New("query: not found")

// Reader serves read-only lookups against a Store. It holds no other state;
// every call observes whatever was last committed by the Writer.
type Reader struct {
	store *kv.Store
}

// New builds a Reader over store.
func New(store *kv.Store) *Reader {
	return &Reader{store: store}
}

// State returns the peak (highest synced) height, or 0 if the store is
// empty.
func (r *Reader) State() (uint32, error) {
	key, _, ok, err := r.store.Last(kv.CFBlocks)
	if err != nil {
		return 0, fmt.Errorf("query: state: %w", err)
	}
	if !ok {
		return 0, nil
	}
	return kv.DecodeHeightKey(key)
}

// BlockByHeight returns the block record at height h.
func (r *Reader) BlockByHeight(h uint32) (chain.BlockRecord, error) {
	v, ok, err := r.store.Get(kv.CFBlocks, kv.HeightKey(h))
	if err != nil {
		return chain.BlockRecord{}, fmt.Errorf("query: block by height %d: %w", h, err)
	}
	if !ok {
		return chain.BlockRecord{}, ErrNotFound
	}
	rec, err := codec.DecodeBlockRecord(v)
	if err != nil {
		return chain.BlockRecord{}, fmt.Errorf("query: decode block at height %d: %w", h, err)
	}
	return rec, nil
}

// BlockByHash returns the block record whose header hash is hh.
func (r *Reader) BlockByHash(hh chain.Hash32) (chain.BlockRecord, error) {
	h, err := r.heightForHash(hh)
	if err != nil {
		return chain.BlockRecord{}, err
	}
	return r.BlockByHeight(h)
}

func (r *Reader) heightForHash(hh chain.Hash32) (uint32, error) {
	v, ok, err := r.store.Get(kv.CFBlockHashes, hh[:])
	if err != nil {
		return 0, fmt.Errorf("query: height for hash %x: %w", hh, err)
	}
	if !ok {
		return 0, ErrNotFound
	}
	return kv.DecodeHeightKey(v)
}

// LatestBlock returns the peak height and its block record.
func (r *Reader) LatestBlock() (uint32, chain.BlockRecord, error) {
	key, v, ok, err := r.store.Last(kv.CFBlocks)
	if err != nil {
		return 0, chain.BlockRecord{}, fmt.Errorf("query: latest block: %w", err)
	}
	if !ok {
		return 0, chain.BlockRecord{}, ErrNotFound
	}
	h, err := kv.DecodeHeightKey(key)
	if err != nil {
		return 0, chain.BlockRecord{}, err
	}
	rec, err := codec.DecodeBlockRecord(v)
	if err != nil {
		return 0, chain.BlockRecord{}, fmt.Errorf("query: decode latest block: %w", err)
	}
	return h, rec, nil
}

// HeightBlock pairs a height with its block record, the shape Blocks returns.
type HeightBlock struct {
	Height uint32
	Record chain.BlockRecord
}

// Blocks returns up to limit (height, BlockRecord) pairs walking in dir from
// start. start=nil means the edge appropriate for dir: the lowest height for
// Forward, the peak for Reverse. For Reverse, a start height beyond the
// peak is clamped to the peak before seeking, so an out-of-range request
// degrades to "start from the tip" rather than returning nothing; a Forward
// start beyond the peak returns no blocks.
func (r *Reader) Blocks(start *uint32, dir kv.Direction, limit int) ([]HeightBlock, error) {
	if limit <= 0 {
		return nil, nil
	}

	var startKey []byte
	if start != nil {
		h := *start
		if dir == kv.Reverse {
			peak, err := r.State()
			if err != nil {
				return nil, err
			}
			if h > peak {
				h = peak
			}
		}
		startKey = kv.HeightKey(h)
	}

	it, err := r.store.Iterate(kv.CFBlocks, startKey, dir)
	if err != nil {
		return nil, fmt.Errorf("query: blocks: %w", err)
	}
	defer it.Close()

	var out []HeightBlock
	for it.Valid() && len(out) < limit {
		h, err := kv.DecodeHeightKey(it.Key())
		if err != nil {
			return nil, err
		}
		rec, err := codec.DecodeBlockRecord(it.Value())
		if err != nil {
			return nil, fmt.Errorf("query: decode block at height %d: %w", h, err)
		}
		out = append(out, HeightBlock{Height: h, Record: rec})
		it.Next(dir)
	}
	return out, nil
}

// Coin returns the coin record for coinID.
func (r *Reader) Coin(coinID chain.Hash32) (chain.CoinRecord, error) {
	v, ok, err := r.store.Get(kv.CFCoins, coinID[:])
	if err != nil {
		return chain.CoinRecord{}, fmt.Errorf("query: coin %x: %w", coinID, err)
	}
	if !ok {
		return chain.CoinRecord{}, ErrNotFound
	}
	rec, err := codec.DecodeCoinRecord(v)
	if err != nil {
		return chain.CoinRecord{}, fmt.Errorf("query: decode coin %x: %w", coinID, err)
	}
	return rec, nil
}

// CoinsByBlock returns every CoinRecord whose created_height or spent_height
// equals the height of header hash hh, via the height index's 4-byte-prefix
// scan, deduplicated by coin id. A coin created and spent at the same height
// has a single index entry, since both writes use the same key.
func (r *Reader) CoinsByBlock(hh chain.Hash32) ([]chain.CoinRecord, error) {
	h, err := r.heightForHash(hh)
	if err != nil {
		return nil, err
	}

	ids, err := r.coinIDsAtHeight(h)
	if err != nil {
		return nil, err
	}

	out := make([]chain.CoinRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := r.Coin(id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *Reader) coinIDsAtHeight(h uint32) ([]chain.Hash32, error) {
	it, err := r.store.Iterate(kv.CFCoinHeightIndex, kv.HeightKey(h), kv.Forward)
	if err != nil {
		return nil, fmt.Errorf("query: coin height index at %d: %w", h, err)
	}
	defer it.Close()

	seen := map[chain.Hash32]struct{}{}
	var ids []chain.Hash32
	for it.Valid() {
		key := it.Key()
		if len(key) != 36 {
			it.Next(kv.Forward)
			continue
		}
		var id chain.Hash32
		copy(id[:], key[4:])
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		it.Next(kv.Forward)
	}
	return ids, nil
}

// CoinsByParent returns every child coin id created by parentID, via the
// 32-byte-prefix parent index.
func (r *Reader) CoinsByParent(parentID chain.Hash32) ([]chain.Hash32, error) {
	it, err := r.store.Iterate(kv.CFCoinParentHashIndex, parentID[:], kv.Forward)
	if err != nil {
		return nil, fmt.Errorf("query: coins by parent %x: %w", parentID, err)
	}
	defer it.Close()

	var ids []chain.Hash32
	for it.Valid() {
		key := it.Key()
		if len(key) != 64 {
			it.Next(kv.Forward)
			continue
		}
		var id chain.Hash32
		copy(id[:], key[32:])
		ids = append(ids, id)
		it.Next(kv.Forward)
	}
	return ids, nil
}

// SpendsByBlock returns every CoinSpendRecord whose spent_height equals the
// height of header hash hh: scan the height index at that height and filter
// for coins whose persisted spend record's spent_height actually matches
// (the height index also carries created-at-this-height entries).
func (r *Reader) SpendsByBlock(hh chain.Hash32) ([]chain.CoinSpendRecord, error) {
	h, err := r.heightForHash(hh)
	if err != nil {
		return nil, err
	}

	ids, err := r.coinIDsAtHeight(h)
	if err != nil {
		return nil, err
	}

	var out []chain.CoinSpendRecord
	for _, id := range ids {
		rec, err := r.Spend(id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if rec.SpentHeight == h {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Spend returns the CoinSpendRecord for coinID.
func (r *Reader) Spend(coinID chain.Hash32) (chain.CoinSpendRecord, error) {
	v, ok, err := r.store.Get(kv.CFCoinSpends, coinID[:])
	if err != nil {
		return chain.CoinSpendRecord{}, fmt.Errorf("query: spend %x: %w", coinID, err)
	}
	if !ok {
		return chain.CoinSpendRecord{}, ErrNotFound
	}
	rec, err := codec.DecodeCoinSpendRecord(v)
	if err != nil {
		return chain.CoinSpendRecord{}, fmt.Errorf("query: decode spend %x: %w", coinID, err)
	}
	return rec, nil
}

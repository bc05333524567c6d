package kv

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
)

// storeOptions builds the pebble.Options this store is always opened with.
// Every CF lives in one pebble.DB as a byte-prefixed keyspace (see Store), so
// there is no pebble knob that tunes a single CF in isolation — Levels,
// FilterPolicy and Compression all apply to the whole keyspace. The options
// below are chosen for that mixed workload: a bloom filter on every level,
// since most reads here (coin lookups by ID, hash-prefixed index scans) are
// point or short-range reads the filter can skip past, and zstd on the
// bottommost level, where cold historical blocks and spends accumulate and
// the extra compression ratio is worth the CPU.
func storeOptions() *pebble.Options {
	opts := &pebble.Options{}
	opts.EnsureDefaults()
	for i := range opts.Levels {
		opts.Levels[i].FilterPolicy = bloom.FilterPolicy(10)
	}
	opts.Levels[len(opts.Levels)-1].Compression = func() pebble.Compression { return pebble.ZstdCompression }
	return opts
}

// manifestKey is a reserved key (outside every declared CF's prefix byte
// range, see cfTag) recording the sorted CF name list a store was opened
// with. It lets Open reject a directory whose declared CFs don't match the
// current registry instead of silently ignoring stray data.
var manifestKey = []byte{0xff, 'm', 'a', 'n', 'i', 'f', 'e', 's', 't'}

// cfTag assigns each CF a single tag byte, prepended to every user key. The
// tag space is the CF's index in AllColumnFamilies plus 1, so no CF uses
// 0x00; store-internal bookkeeping keys like manifestKey start with 0xff,
// above every CF tag.
func cfTag(cf string) (byte, error) {
	for i, name := range AllColumnFamilies {
		if name == cf {
			return byte(i + 1), nil
		}
	}
	return 0, fmt.Errorf("kv: unknown column family %q", cf)
}

// Store is the embedded ordered key/value database. One pebble.DB backs
// every column family; each CF occupies its own byte-prefixed keyspace so
// that a single pebble.Batch commit is atomic across all of them at once.
type Store struct {
	db *pebble.DB
}

// Open opens (or creates) a store at path. Unknown column families
// persisted at path but absent from the current registry, or vice versa, is
// a fatal initialization error.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, storeOptions())
	if err != nil {
		return nil, fmt.Errorf("kv: open %s: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.checkOrWriteManifest(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) checkOrWriteManifest() error {
	existing, closer, err := s.db.Get(manifestKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return s.db.Set(manifestKey, []byte(strings.Join(AllColumnFamilies, ",")), pebble.Sync)
	}
	if err != nil {
		return fmt.Errorf("kv: read manifest: %w", err)
	}
	declared := string(existing)
	closer.Close()

	if declared != strings.Join(AllColumnFamilies, ",") {
		return fmt.Errorf("kv: store was opened with column families %q, current build declares %q", declared, strings.Join(AllColumnFamilies, ","))
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func prefixed(cf string, key []byte) ([]byte, error) {
	tag, err := cfTag(cf)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(key)+1)
	out = append(out, tag)
	out = append(out, key...)
	return out, nil
}

// Get reads a single value. ok is false if the key is absent.
func (s *Store) Get(cf string, key []byte) (value []byte, ok bool, err error) {
	k, err := prefixed(cf, key)
	if err != nil {
		return nil, false, err
	}
	v, closer, err := s.db.Get(k)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv: get %s: %w", cf, err)
	}
	out := append([]byte(nil), v...)
	_ = closer.Close()
	return out, true, nil
}

// Direction controls iteration order.
type Direction int

const (
	Forward Direction = iota
	Reverse
)

// Batch accumulates writes across any number of column families; Commit
// applies them as a single atomic operation.
type Batch struct {
	store *Store
	inner *pebble.Batch
}

// NewBatch starts a new atomic write batch.
func (s *Store) NewBatch() *Batch {
	return &Batch{store: s, inner: s.db.NewBatch()}
}

// Set stages a key/value write in cf.
func (b *Batch) Set(cf string, key, value []byte) error {
	k, err := prefixed(cf, key)
	if err != nil {
		return err
	}
	return b.inner.Set(k, value, nil)
}

// Commit applies every staged write atomically, fsyncing before returning.
func (b *Batch) Commit() error {
	if err := b.inner.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("kv: commit batch: %w", err)
	}
	return nil
}

// Iterator walks keys within one column family, already stripped of the CF
// tag byte.
type Iterator struct {
	it   *pebble.Iterator
	done bool
}

func (it *Iterator) Valid() bool { return !it.done && it.it.Valid() }

func (it *Iterator) Key() []byte {
	k := it.it.Key()
	return k[1:]
}

func (it *Iterator) Value() []byte {
	return append([]byte(nil), it.it.Value()...)
}

func (it *Iterator) Close() error { return it.it.Close() }

// scanBounds returns the lower/upper bound byte slices (CF-tagged) for a
// full-CF scan. startWithinCF is not used here; Iterate itself narrows the
// bounds to a 4-/32-byte prefix anchored at start.
func scanBounds(cf string, startWithinCF []byte) (lower, upper []byte, err error) {
	tag, err := cfTag(cf)
	if err != nil {
		return nil, nil, err
	}
	lower = []byte{tag}
	upper = []byte{tag + 1}
	_ = startWithinCF
	return lower, upper, nil
}

// Iterate opens an iterator over cf.
//
//   - mode Start: begins at the first key.
//   - mode End (reverse=true, start=nil): begins at the last key.
//   - mode From(start, dir): seeks to start (or the nearest key per dir).
//
// When prefixLen(cf) > 0 and start is non-nil, the scan is additionally
// bounded to keys sharing start's fixed-length prefix, so a height-scoped or
// parent-scoped scan terminates at the first key outside that prefix.
func (s *Store) Iterate(cf string, start []byte, dir Direction) (*Iterator, error) {
	lower, upper, err := scanBounds(cf, start)
	if err != nil {
		return nil, err
	}

	plen := prefixLen(cfRegistryLookup(cf))
	if start != nil && plen > 0 && len(start) >= plen {
		tag, _ := cfTag(cf)
		pfx := append([]byte{tag}, start[:plen]...)
		lower = pfx
		upper = incrementBytes(pfx)
	}

	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("kv: new iterator: %w", err)
	}

	tag, _ := cfTag(cf)
	var ok bool
	switch {
	case start == nil && dir == Forward:
		ok = it.First()
	case start == nil && dir == Reverse:
		ok = it.Last()
	case dir == Forward:
		ok = it.SeekGE(append([]byte{tag}, start...))
	default:
		ok = it.SeekLT(incrementBytes(append([]byte{tag}, start...)))
	}

	return &Iterator{it: it, done: !ok}, nil
}

// Next advances the iterator in the direction it was opened with.
func (it *Iterator) Next(dir Direction) bool {
	if it.done {
		return false
	}
	var ok bool
	if dir == Forward {
		ok = it.it.Next()
	} else {
		ok = it.it.Prev()
	}
	it.done = !ok
	return ok
}

func cfRegistryLookup(cf string) PrefixKind {
	if opt, ok := cfRegistry[cf]; ok {
		return opt.Prefix
	}
	return PrefixNone
}

// incrementBytes returns the smallest byte string strictly greater than b
// under lexicographic order, used to build an exclusive upper bound from an
// inclusive prefix.
func incrementBytes(b []byte) []byte {
	out := append([]byte(nil), b...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xff {
			out[i]++
			return out[:i+1]
		}
	}
	// all 0xff: no finite successor; caller must treat nil upper as
	// unbounded.
	return nil
}

// First/Last return the first/last key-value pair in a CF, or ok=false if
// empty.
func (s *Store) First(cf string) (key, value []byte, ok bool, err error) {
	it, err := s.Iterate(cf, nil, Forward)
	if err != nil {
		return nil, nil, false, err
	}
	defer it.Close()
	if !it.Valid() {
		return nil, nil, false, nil
	}
	return it.Key(), it.Value(), true, nil
}

func (s *Store) Last(cf string) (key, value []byte, ok bool, err error) {
	it, err := s.Iterate(cf, nil, Reverse)
	if err != nil {
		return nil, nil, false, err
	}
	defer it.Close()
	if !it.Valid() {
		return nil, nil, false, nil
	}
	return it.Key(), it.Value(), true, nil
}

// HeightKey encodes a u32 height as a 4-byte big-endian key.
func HeightKey(height uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, height)
	return b
}

// DecodeHeightKey parses a 4-byte big-endian height key.
func DecodeHeightKey(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("kv: expected 4-byte height key, got %d bytes", len(b))
	}
	return binary.BigEndian.Uint32(b), nil
}

// CompositeKey concatenates a fixed-length prefix with a suffix, e.g.
// height_BE ‖ coin_id or parent_id ‖ coin_id.
func CompositeKey(prefix, suffix []byte) []byte {
	return bytes.Join([][]byte{prefix, suffix}, nil)
}

// Package kv implements the embedded ordered key/value Store: named column
// families, a batched atomic write protocol, and prefix-aware range scans.
//
// Adapted from erigon-lib/kv/tables.go's registry idiom — named CF
// constants, a per-CF options struct, a sorted table list, and an init-time
// validation pass — but re-targeted from MDBX's DBI/TableFlags bitflags to
// cockroachdb/pebble, since this store has no native multi-column-family
// concept: each CF is realized as a byte-prefixed keyspace within one
// pebble.DB, which is what makes a single write-batch atomic across every
// CF at once.
package kv

import "sort"

// Column family names, matching the persisted layout exactly.
const (
	CFBlocks              = "blocks"
	CFBlockHashes         = "block_hashes"
	CFCoins               = "coins"
	CFCoinHeightIndex     = "coin_height_index"
	CFCoinParentHashIndex = "coin_parent_hash_index"
	CFCoinSpends          = "coin_spends"
	CFTails               = "tails"
)

// PrefixKind describes the fixed-length key prefix a CF's keys begin with,
// which determines how Iterate bounds a prefixed scan. It has no effect on
// bloom filtering, which is configured store-wide.
type PrefixKind int

const (
	// PrefixNone means no fixed-length prefix extractor; keys are looked up
	// by exact match or fully-bounded scans only.
	PrefixNone PrefixKind = iota
	// PrefixHeight4 means the key begins with a 4-byte big-endian height.
	PrefixHeight4
	// PrefixHash32 means the key begins with a 32-byte hash.
	PrefixHash32
)

// CFOptions mirrors the one per-table tuning knob erigon-lib's
// TableCfgItem carries that actually varies CF-to-CF here: the fixed key
// prefix shape prefixed scans rely on. Every CF is a byte-prefixed keyspace
// within a single pebble.DB (see Store), so pebble's own per-level bloom
// filter and bottommost-compression settings — wired once in Open, not
// here — necessarily apply across every CF's data rather than singling one
// out; there is no pebble.Options knob that scopes to a key-prefix subrange
// of one DB.
type CFOptions struct {
	Prefix PrefixKind
}

var cfRegistry = map[string]CFOptions{
	CFBlocks:              {Prefix: PrefixNone},
	CFBlockHashes:         {Prefix: PrefixHash32},
	CFCoins:               {Prefix: PrefixNone},
	CFCoinHeightIndex:     {Prefix: PrefixHeight4},
	CFCoinParentHashIndex: {Prefix: PrefixHash32},
	CFCoinSpends:          {Prefix: PrefixNone},
	CFTails:               {Prefix: PrefixNone},
}

// AllColumnFamilies lists every declared CF name in sorted order. Opening a
// store with a persisted manifest that names a CF outside this set is a
// fatal initialization error (see Open).
var AllColumnFamilies []string

func init() {
	for name := range cfRegistry {
		AllColumnFamilies = append(AllColumnFamilies, name)
	}
	sort.Strings(AllColumnFamilies)
}

// prefixLen returns the fixed prefix length in bytes for a CF's PrefixKind,
// or 0 if the CF has no fixed prefix.
func prefixLen(k PrefixKind) int {
	switch k {
	case PrefixHeight4:
		return 4
	case PrefixHash32:
		return 32
	default:
		return 0
	}
}

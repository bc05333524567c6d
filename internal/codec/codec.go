// Package codec implements the deterministic, self-describing record codec
// records are persisted with. It wraps github.com/ugorji/go/codec's CBOR
// handle in canonical mode so that encode(decode(b)) == b for every record
// and every CoinKind / P2Puzzle variant, and it rejects any variant tag it
// does not recognize instead of silently downgrading to Unknown.
package codec

import (
	"fmt"

	"github.com/ugorji/go/codec"

	"github.com/xch-dev/explorer/internal/chain"
)

var handle = newHandle()

func newHandle() *codec.CborHandle {
	h := &codec.CborHandle{}
	h.Canonical = true
	h.StructToArray = true
	return h
}

// Marshal encodes v with the package's canonical CBOR handle. Exported for
// record types defined outside this package (e.g. block.FullBlock) that
// still want the same deterministic, self-describing encoding.
func Marshal(v interface{}) ([]byte, error) { return marshal(v) }

// Unmarshal decodes b, encoded by Marshal, into v.
func Unmarshal(b []byte, v interface{}) error { return unmarshal(b, v) }

func marshal(v interface{}) ([]byte, error) {
	var b []byte
	enc := codec.NewEncoderBytes(&b, handle)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("codec: encode: %w", err)
	}
	return b, nil
}

func unmarshal(b []byte, v interface{}) error {
	dec := codec.NewDecoderBytes(b, handle)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("codec: decode: %w", err)
	}
	return nil
}

// wireHash32 round-trips a Hash32 as a fixed 32-byte string, avoiding the
// array-of-byte overhead a naive reflection pass over [32]byte would incur.
type wireHash32 = []byte

func toWire(h chain.Hash32) wireHash32 { b := make([]byte, 32); copy(b, h[:]); return b }

func fromWire(b wireHash32) (chain.Hash32, error) {
	var h chain.Hash32
	if len(b) != 32 {
		return h, fmt.Errorf("codec: expected 32-byte hash, got %d bytes", len(b))
	}
	copy(h[:], b)
	return h, nil
}

func toWireOpt(h *chain.Hash32) wireHash32 {
	if h == nil {
		return nil
	}
	return toWire(*h)
}

func fromWireOpt(b wireHash32) (*chain.Hash32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	h, err := fromWire(b)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// ErrUnknownVariant is returned when a persisted tagged variant carries a tag
// byte this build does not recognize. Per the schema-evolution rule, this is
// a hard decode failure, never a silent fallback to Unknown.
type ErrUnknownVariant struct {
	Kind string
	Tag  byte
}

func (e *ErrUnknownVariant) Error() string {
	return fmt.Sprintf("codec: unknown %s variant tag %d", e.Kind, e.Tag)
}

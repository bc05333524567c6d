package codec

import (
	"github.com/holiman/uint256"

	"github.com/xch-dev/explorer/internal/chain"
)

// --- CoinKind -------------------------------------------------------------

type wireCoinKindPayload struct {
	AssetID                   wireHash32 `codec:",omitempty"`
	HiddenPuzzleHash          wireHash32 `codec:",omitempty"`
	P2PuzzleHash              wireHash32 `codec:",omitempty"`
	CatLineageParentParent    wireHash32 `codec:",omitempty"`
	CatLineageParentInnerPH   wireHash32 `codec:",omitempty"`
	CatLineageParentAmount    uint64
	HasCatLineage             bool

	LauncherID                wireHash32 `codec:",omitempty"`
	LineageParentParent       wireHash32 `codec:",omitempty"`
	LineageParentInnerPH      wireHash32 `codec:",omitempty"`
	LineageParentAmount       uint64

	Metadata                  []byte `codec:",omitempty"`
	MetadataUpdaterPuzzleHash wireHash32 `codec:",omitempty"`
	CurrentOwner              wireHash32 `codec:",omitempty"`
	RoyaltyPuzzleHash         wireHash32 `codec:",omitempty"`
	RoyaltyBasisPoints        uint16

	RecoveryListHash          wireHash32 `codec:",omitempty"`
	NumVerificationsRequired  uint64
}

type wireVariant struct {
	Tag     byte
	Payload []byte
}

// EncodeCoinKind produces the [tag, payload] pair for a CoinKind.
func EncodeCoinKind(k chain.CoinKind) ([]byte, error) {
	p := wireCoinKindPayload{
		AssetID:                   toWireOpt(tagOrNil(k.Tag == chain.CoinKindCat, k.AssetID)),
		HiddenPuzzleHash:          toWireOpt(k.HiddenPuzzleHash),
		P2PuzzleHash:              toWireOpt(tagOrNil(k.Tag == chain.CoinKindCat || k.Tag == chain.CoinKindNft || k.Tag == chain.CoinKindDid, k.P2PuzzleHash)),
		LauncherID:                toWireOpt(tagOrNil(k.Tag == chain.CoinKindSingleton || k.Tag == chain.CoinKindNft || k.Tag == chain.CoinKindDid, k.LauncherID)),
		LineageParentParent:       toWire(k.SingletonLineage.ParentParentCoinInfo),
		LineageParentInnerPH:      toWireOpt(k.SingletonLineage.ParentInnerPuzzleHash),
		LineageParentAmount:       k.SingletonLineage.ParentAmount,
		Metadata:                  k.Metadata,
		MetadataUpdaterPuzzleHash: toWireOpt(tagOrNil(k.Tag == chain.CoinKindNft, k.MetadataUpdaterPuzzleHash)),
		CurrentOwner:              toWireOpt(k.CurrentOwner),
		RoyaltyPuzzleHash:         toWireOpt(tagOrNil(k.Tag == chain.CoinKindNft, k.RoyaltyPuzzleHash)),
		RoyaltyBasisPoints:        k.RoyaltyBasisPoints,
		RecoveryListHash:          toWireOpt(k.RecoveryListHash),
		NumVerificationsRequired:  k.NumVerificationsRequired,
	}
	if k.CatLineage != nil {
		p.HasCatLineage = true
		p.CatLineageParentParent = toWire(k.CatLineage.ParentParentCoinInfo)
		p.CatLineageParentInnerPH = toWire(k.CatLineage.ParentInnerPuzzleHash)
		p.CatLineageParentAmount = k.CatLineage.ParentAmount
	}
	payload, err := marshal(p)
	if err != nil {
		return nil, err
	}
	b, err := marshal(wireVariant{Tag: byte(k.Tag), Payload: payload})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func tagOrNil(ok bool, h chain.Hash32) *chain.Hash32 {
	if !ok {
		return nil
	}
	return &h
}

// DecodeCoinKind decodes a [tag, payload] pair, rejecting any tag this build
// does not recognize.
func DecodeCoinKind(b []byte) (chain.CoinKind, error) {
	var v wireVariant
	if err := unmarshal(b, &v); err != nil {
		return chain.CoinKind{}, err
	}

	tag := chain.CoinKindTag(v.Tag)
	switch tag {
	case chain.CoinKindUnknown, chain.CoinKindReward, chain.CoinKindCat,
		chain.CoinKindSingleton, chain.CoinKindNft, chain.CoinKindDid:
	default:
		return chain.CoinKind{}, &ErrUnknownVariant{Kind: "CoinKind", Tag: v.Tag}
	}

	var p wireCoinKindPayload
	if err := unmarshal(v.Payload, &p); err != nil {
		return chain.CoinKind{}, err
	}

	k := chain.CoinKind{Tag: tag, RoyaltyBasisPoints: p.RoyaltyBasisPoints, NumVerificationsRequired: p.NumVerificationsRequired, Metadata: p.Metadata}

	var err error
	if k.AssetID, err = fromWireZero(p.AssetID); err != nil {
		return chain.CoinKind{}, err
	}
	if k.HiddenPuzzleHash, err = fromWireOpt(p.HiddenPuzzleHash); err != nil {
		return chain.CoinKind{}, err
	}
	if k.P2PuzzleHash, err = fromWireZero(p.P2PuzzleHash); err != nil {
		return chain.CoinKind{}, err
	}
	if k.LauncherID, err = fromWireZero(p.LauncherID); err != nil {
		return chain.CoinKind{}, err
	}
	if k.SingletonLineage.ParentParentCoinInfo, err = fromWireZero(p.LineageParentParent); err != nil {
		return chain.CoinKind{}, err
	}
	if k.SingletonLineage.ParentInnerPuzzleHash, err = fromWireOpt(p.LineageParentInnerPH); err != nil {
		return chain.CoinKind{}, err
	}
	k.SingletonLineage.ParentAmount = p.LineageParentAmount
	if k.MetadataUpdaterPuzzleHash, err = fromWireZero(p.MetadataUpdaterPuzzleHash); err != nil {
		return chain.CoinKind{}, err
	}
	if k.CurrentOwner, err = fromWireOpt(p.CurrentOwner); err != nil {
		return chain.CoinKind{}, err
	}
	if k.RoyaltyPuzzleHash, err = fromWireZero(p.RoyaltyPuzzleHash); err != nil {
		return chain.CoinKind{}, err
	}
	if k.RecoveryListHash, err = fromWireOpt(p.RecoveryListHash); err != nil {
		return chain.CoinKind{}, err
	}
	if p.HasCatLineage {
		parentParent, err := fromWireZero(p.CatLineageParentParent)
		if err != nil {
			return chain.CoinKind{}, err
		}
		parentInner, err := fromWireZero(p.CatLineageParentInnerPH)
		if err != nil {
			return chain.CoinKind{}, err
		}
		k.CatLineage = &chain.CatLineageProof{
			ParentParentCoinInfo:  parentParent,
			ParentInnerPuzzleHash: parentInner,
			ParentAmount:          p.CatLineageParentAmount,
		}
	}
	return k, nil
}

func fromWireZero(b wireHash32) (chain.Hash32, error) {
	if len(b) == 0 {
		return chain.Hash32{}, nil
	}
	return fromWire(b)
}

// --- P2Puzzle --------------------------------------------------------------

type wireClawbackPayload struct {
	SenderPuzzleHash   wireHash32
	ReceiverPuzzleHash wireHash32
	Seconds            uint64
	Amount             uint64
	Hinted             bool
}

func EncodeP2Puzzle(p *chain.P2Puzzle) ([]byte, error) {
	if p == nil {
		return marshal(wireVariant{Tag: byte(chain.P2PuzzleNone)})
	}
	payload, err := marshal(wireClawbackPayload{
		SenderPuzzleHash:   toWire(p.SenderPuzzleHash),
		ReceiverPuzzleHash: toWire(p.ReceiverPuzzleHash),
		Seconds:            p.Seconds,
		Amount:             p.Amount,
		Hinted:             p.Hinted,
	})
	if err != nil {
		return nil, err
	}
	return marshal(wireVariant{Tag: byte(chain.P2PuzzleClawbackV2), Payload: payload})
}

func DecodeP2Puzzle(b []byte) (*chain.P2Puzzle, error) {
	var v wireVariant
	if err := unmarshal(b, &v); err != nil {
		return nil, err
	}
	switch chain.P2PuzzleTag(v.Tag) {
	case chain.P2PuzzleNone:
		return nil, nil
	case chain.P2PuzzleClawbackV2:
		var p wireClawbackPayload
		if err := unmarshal(v.Payload, &p); err != nil {
			return nil, err
		}
		sender, err := fromWire(p.SenderPuzzleHash)
		if err != nil {
			return nil, err
		}
		receiver, err := fromWire(p.ReceiverPuzzleHash)
		if err != nil {
			return nil, err
		}
		return &chain.P2Puzzle{
			Tag:                chain.P2PuzzleClawbackV2,
			SenderPuzzleHash:   sender,
			ReceiverPuzzleHash: receiver,
			Seconds:            p.Seconds,
			Amount:             p.Amount,
			Hinted:             p.Hinted,
		}, nil
	default:
		return nil, &ErrUnknownVariant{Kind: "P2Puzzle", Tag: v.Tag}
	}
}

// --- CoinRecord --------------------------------------------------------------

type wireCoinRecord struct {
	ParentCoinID  wireHash32
	PuzzleHash    wireHash32
	Amount        uint64
	CreatedHeight uint32
	SpentHeight   *uint32
	Hint          wireHash32 `codec:",omitempty"`
	Memos         []byte     `codec:",omitempty"`
	Kind          []byte
	P2Puzzle      []byte
}

func EncodeCoinRecord(r chain.CoinRecord) ([]byte, error) {
	kindBytes, err := EncodeCoinKind(r.Kind)
	if err != nil {
		return nil, err
	}
	p2Bytes, err := EncodeP2Puzzle(r.P2Puzzle)
	if err != nil {
		return nil, err
	}
	return marshal(wireCoinRecord{
		ParentCoinID:  toWire(r.Coin.ParentCoinID),
		PuzzleHash:    toWire(r.Coin.PuzzleHash),
		Amount:        r.Coin.Amount,
		CreatedHeight: r.CreatedHeight,
		SpentHeight:   r.SpentHeight,
		Hint:          toWireOpt(r.Hint),
		Memos:         r.Memos,
		Kind:          kindBytes,
		P2Puzzle:      p2Bytes,
	})
}

func DecodeCoinRecord(b []byte) (chain.CoinRecord, error) {
	var w wireCoinRecord
	if err := unmarshal(b, &w); err != nil {
		return chain.CoinRecord{}, err
	}
	var r chain.CoinRecord
	var err error
	if r.Coin.ParentCoinID, err = fromWire(w.ParentCoinID); err != nil {
		return chain.CoinRecord{}, err
	}
	if r.Coin.PuzzleHash, err = fromWire(w.PuzzleHash); err != nil {
		return chain.CoinRecord{}, err
	}
	r.Coin.Amount = w.Amount
	r.CreatedHeight = w.CreatedHeight
	r.SpentHeight = w.SpentHeight
	if r.Hint, err = fromWireOpt(w.Hint); err != nil {
		return chain.CoinRecord{}, err
	}
	r.Memos = w.Memos
	if r.Kind, err = DecodeCoinKind(w.Kind); err != nil {
		return chain.CoinRecord{}, err
	}
	if r.P2Puzzle, err = DecodeP2Puzzle(w.P2Puzzle); err != nil {
		return chain.CoinRecord{}, err
	}
	return r, nil
}

// --- CoinSpendRecord --------------------------------------------------------

type wireCoinSpendRecord struct {
	ParentCoinID wireHash32
	PuzzleHash   wireHash32
	Amount       uint64
	PuzzleReveal []byte
	Solution     []byte
	SpentHeight  uint32
}

func EncodeCoinSpendRecord(r chain.CoinSpendRecord) ([]byte, error) {
	return marshal(wireCoinSpendRecord{
		ParentCoinID: toWire(r.Coin.ParentCoinID),
		PuzzleHash:   toWire(r.Coin.PuzzleHash),
		Amount:       r.Coin.Amount,
		PuzzleReveal: r.PuzzleReveal,
		Solution:     r.Solution,
		SpentHeight:  r.SpentHeight,
	})
}

func DecodeCoinSpendRecord(b []byte) (chain.CoinSpendRecord, error) {
	var w wireCoinSpendRecord
	if err := unmarshal(b, &w); err != nil {
		return chain.CoinSpendRecord{}, err
	}
	var r chain.CoinSpendRecord
	var err error
	if r.Coin.ParentCoinID, err = fromWire(w.ParentCoinID); err != nil {
		return chain.CoinSpendRecord{}, err
	}
	if r.Coin.PuzzleHash, err = fromWire(w.PuzzleHash); err != nil {
		return chain.CoinSpendRecord{}, err
	}
	r.Coin.Amount = w.Amount
	r.PuzzleReveal = w.PuzzleReveal
	r.Solution = w.Solution
	r.SpentHeight = w.SpentHeight
	return r, nil
}

// --- BlockRecord -------------------------------------------------------------

type wireTransactionInfo struct {
	Timestamp                uint64
	Fees                     uint64
	Cost                     uint64
	Additions                uint32
	Removals                 uint32
	PrevTransactionBlockHash wireHash32
}

type wireBlockRecord struct {
	HeaderHash       wireHash32
	Weight           []byte
	TotalIters       []byte
	FarmerPuzzleHash wireHash32
	PoolPuzzleHash   wireHash32 `codec:",omitempty"`
	PrevHeaderHash   wireHash32
	TransactionInfo  *wireTransactionInfo `codec:",omitempty"`
}

func EncodeBlockRecord(r chain.BlockRecord) ([]byte, error) {
	w := wireBlockRecord{
		HeaderHash:       toWire(r.HeaderHash),
		Weight:           uint256Bytes(r.Weight),
		TotalIters:       uint256Bytes(r.TotalIters),
		FarmerPuzzleHash: toWire(r.FarmerPuzzleHash),
		PoolPuzzleHash:   toWireOpt(r.PoolPuzzleHash),
		PrevHeaderHash:   toWire(r.PrevHeaderHash),
	}
	if r.TransactionInfo != nil {
		w.TransactionInfo = &wireTransactionInfo{
			Timestamp:                r.TransactionInfo.Timestamp,
			Fees:                     r.TransactionInfo.Fees,
			Cost:                     r.TransactionInfo.Cost,
			Additions:                r.TransactionInfo.Additions,
			Removals:                 r.TransactionInfo.Removals,
			PrevTransactionBlockHash: toWire(r.TransactionInfo.PrevTransactionBlockHash),
		}
	}
	return marshal(w)
}

func DecodeBlockRecord(b []byte) (chain.BlockRecord, error) {
	var w wireBlockRecord
	if err := unmarshal(b, &w); err != nil {
		return chain.BlockRecord{}, err
	}
	var r chain.BlockRecord
	var err error
	if r.HeaderHash, err = fromWire(w.HeaderHash); err != nil {
		return chain.BlockRecord{}, err
	}
	r.Weight = new(uint256.Int).SetBytes(w.Weight)
	r.TotalIters = new(uint256.Int).SetBytes(w.TotalIters)
	if r.FarmerPuzzleHash, err = fromWire(w.FarmerPuzzleHash); err != nil {
		return chain.BlockRecord{}, err
	}
	if r.PoolPuzzleHash, err = fromWireOpt(w.PoolPuzzleHash); err != nil {
		return chain.BlockRecord{}, err
	}
	if r.PrevHeaderHash, err = fromWire(w.PrevHeaderHash); err != nil {
		return chain.BlockRecord{}, err
	}
	if w.TransactionInfo != nil {
		prevTxHash, err := fromWire(w.TransactionInfo.PrevTransactionBlockHash)
		if err != nil {
			return chain.BlockRecord{}, err
		}
		r.TransactionInfo = &chain.TransactionInfo{
			Timestamp:                w.TransactionInfo.Timestamp,
			Fees:                     w.TransactionInfo.Fees,
			Cost:                     w.TransactionInfo.Cost,
			Additions:                w.TransactionInfo.Additions,
			Removals:                 w.TransactionInfo.Removals,
			PrevTransactionBlockHash: prevTxHash,
		}
	}
	return r, nil
}

func uint256Bytes(v *uint256.Int) []byte {
	if v == nil {
		return nil
	}
	b := v.Bytes()
	return b
}

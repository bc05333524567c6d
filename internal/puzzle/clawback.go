package puzzle

import (
	"github.com/xch-dev/explorer/internal/chain"
	"github.com/xch-dev/explorer/internal/pvm"
)

// clawbackFromMemo parses the memo atoms following the hint as a
// ClawbackV2 escrow descriptor: (sender_puzzle_hash seconds). The receiver
// is always the hint itself, and the escrowed amount comes from the
// create-coin condition being annotated; no inner puzzle hash is taken or
// checked against the memo. A sender puzzle hash
// memo that isn't exactly 32 bytes fails the parse, same as the hint check
// in attachHintAndMemos.
func clawbackFromMemo(rest [][]byte, receiver chain.Hash32, amount uint64) (*chain.P2Puzzle, bool) {
	if len(rest) < 1 || len(rest[0]) != 32 {
		return nil, false
	}
	var sender chain.Hash32
	copy(sender[:], rest[0])

	return &chain.P2Puzzle{
		Tag:                chain.P2PuzzleClawbackV2,
		SenderPuzzleHash:   sender,
		ReceiverPuzzleHash: receiver,
		Seconds:            clawbackSeconds(rest),
		Amount:             amount,
		Hinted:             true,
	}, true
}

// clawbackSeconds reads the escrow's timelock duration when a second memo
// atom carrying it is present; some wallets omit it and rely on a
// protocol-level default, which this indexer records as zero rather than
// guessing a value.
func clawbackSeconds(rest [][]byte) uint64 {
	if len(rest) < 2 {
		return 0
	}
	var v uint64
	for _, b := range rest[1] {
		v = (v << 8) | uint64(b)
	}
	return v
}

// NftParser recognizes the NFT state layer curried as (MOD_HASH METADATA
// METADATA_UPDATER_PUZZLE_HASH INNER_PUZZLE), where INNER_PUZZLE is itself
// the NFT ownership layer curried as (MOD_HASH CURRENT_OWNER
// TRANSFER_PROGRAM INNER_PUZZLE), with royalty terms curried into
// TRANSFER_PROGRAM as (SINGLETON_STRUCT ROYALTY_PUZZLE_HASH
// ROYALTY_PERCENTAGE).
func NftParser(driver pvm.Driver, stateLayerModHash, ownershipLayerModHash chain.Hash32) TemplateParser {
	return func(a pvm.Allocator, coin chain.Coin, puzzle, solution pvm.Node) (chain.CoinKind, bool) {
		modHash, curried, argsList := uncurry(driver, a, puzzle)
		if !curried || modHash != stateLayerModHash {
			return chain.CoinKind{}, false
		}
		stateItems := curriedArgs(a, argsList)
		if len(stateItems) < 4 {
			return chain.CoinKind{}, false
		}

		kind := chain.CoinKind{Tag: chain.CoinKindNft}
		if stateItems[1].IsAtom() {
			kind.Metadata = a.AtomBytes(stateItems[1])
		}
		if stateItems[2].IsAtom() {
			copy(kind.MetadataUpdaterPuzzleHash[:], a.AtomBytes(stateItems[2]))
		}

		ownerModHash, ownerCurried, ownerArgsList := uncurry(driver, a, stateItems[3])
		if !ownerCurried || ownerModHash != ownershipLayerModHash {
			kind.P2PuzzleHash = driver.TreeHash(a, stateItems[3])
			return kind, true
		}
		ownerItems := curriedArgs(a, ownerArgsList)
		if len(ownerItems) < 4 {
			return kind, true
		}
		if ownerItems[1].IsAtom() && len(a.AtomBytes(ownerItems[1])) > 0 {
			var owner chain.Hash32
			copy(owner[:], a.AtomBytes(ownerItems[1]))
			kind.CurrentOwner = &owner
		}
		kind.P2PuzzleHash = driver.TreeHash(a, ownerItems[3])

		if _, transferCurried, transferArgsList := uncurry(driver, a, ownerItems[2]); transferCurried {
			transferItems := curriedArgs(a, transferArgsList)
			if len(transferItems) >= 3 {
				if transferItems[1].IsAtom() {
					copy(kind.RoyaltyPuzzleHash[:], a.AtomBytes(transferItems[1]))
				}
				if transferItems[2].IsAtom() {
					kind.RoyaltyBasisPoints = uint16(atomToInt64(a.AtomBytes(transferItems[2])))
				}
			}
		}

		return kind, true
	}
}

// DidParser recognizes the DID inner puzzle curried as (INNER_PUZZLE
// RECOVERY_LIST_HASH NUM_VERIFICATIONS_REQUIRED SINGLETON_STRUCT METADATA).
func DidParser(driver pvm.Driver, didModHash chain.Hash32) TemplateParser {
	return func(a pvm.Allocator, coin chain.Coin, puzzle, solution pvm.Node) (chain.CoinKind, bool) {
		modHash, curried, argsList := uncurry(driver, a, puzzle)
		if !curried || modHash != didModHash {
			return chain.CoinKind{}, false
		}
		items := curriedArgs(a, argsList)
		if len(items) < 3 {
			return chain.CoinKind{}, false
		}

		kind := chain.CoinKind{
			Tag:          chain.CoinKindDid,
			P2PuzzleHash: driver.TreeHash(a, items[0]),
		}
		if items[1].IsAtom() && len(a.AtomBytes(items[1])) > 0 {
			var recovery chain.Hash32
			copy(recovery[:], a.AtomBytes(items[1]))
			kind.RecoveryListHash = &recovery
		}
		if items[2].IsAtom() {
			kind.NumVerificationsRequired = uint64(atomToInt64(a.AtomBytes(items[2])))
		}

		return kind, true
	}
}

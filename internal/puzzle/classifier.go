// Package puzzle implements the recursive puzzle-peeling classifier:
// singleton / CAT / launcher wrapper dispatch, standard-signature inner-
// puzzle delegation, clawback memo detection, and lineage-proof bookkeeping.
//
// Grounded on original_source/src/process/coin_spend.rs's SpendState
// dispatch (parse/inner/standard/launcher/singleton/cat/process_conditions)
// and original_source/crates/parser/src/block_spend.rs's CAT/NFT/DID
// parse-or-Unknown fallthrough.
package puzzle

import (
	"fmt"

	"github.com/xch-dev/explorer/internal/chain"
	"github.com/xch-dev/explorer/internal/pvm"
)

// ModHashes is the fixed table of uncurried-module hashes the classifier
// dispatches on. These are network constants supplied by the caller at
// startup rather than hardcoded here, since this package has no standing
// relationship with any particular chain's puzzle reveal bytes.
type ModHashes struct {
	SingletonLauncher  chain.Hash32
	SingletonTopLayer  chain.Hash32
	Cat                chain.Hash32
	StandardSig        chain.Hash32
}

// TemplateParser attempts to classify a spend against one asset template
// (CAT, NFT, DID, ...), returning ok=false on no match rather than an error.
// Each parser is independent; composition is explicit recursion in this
// package, not inheritance, per SPEC_FULL.md's dynamic-dispatch design note.
type TemplateParser func(a pvm.Allocator, coin chain.Coin, puzzle, solution pvm.Node) (chain.CoinKind, bool)

// Classifier drives the recursive dispatch over one spend.
type Classifier struct {
	driver    pvm.Driver
	mods      ModHashes
	templates []TemplateParser
}

// New builds a Classifier. templates are tried, in order, only on the inner
// puzzle of a singleton spend, once the singleton wrapper has been peeled
// (DID/NFT detection rides on top of that wrapper); the first match refines
// the spent coin's kind. They are not tried on plain or CAT spends.
func New(driver pvm.Driver, mods ModHashes, templates ...TemplateParser) *Classifier {
	return &Classifier{driver: driver, mods: mods, templates: templates}
}

// Result is everything one spend produces: the updated (now-spent) coin's
// refined kind, its children, and any TAIL programs revealed during
// classification. The driver that calls ClassifySpend is responsible for
// serializing the puzzle reveal and solution into a CoinSpendRecord, since
// only it holds the allocator long enough to do so before dropping it.
type Result struct {
	UpdatedKind chain.CoinKind
	Additions   []chain.CoinRecord
	Tails       map[chain.Hash32][]byte
}

type spendState struct {
	c         *Classifier
	a         pvm.Allocator
	coin      chain.Coin
	coinID    chain.Hash32
	height    uint32
	additions []chain.CoinRecord
	tails     map[chain.Hash32][]byte
}

// ClassifySpend runs the full recursive classifier over one spend, mirroring
// process_coin_spend / SpendState.parse.
func (c *Classifier) ClassifySpend(height uint32, coin chain.Coin, coinID chain.Hash32, puzzle, solution pvm.Node) (Result, error) {
	st := &spendState{c: c, a: c.driverAllocator(), coin: coin, coinID: coinID, height: height, tails: map[chain.Hash32][]byte{}}

	kind, err := st.parse(puzzle, solution)
	if err != nil {
		return Result{}, fmt.Errorf("puzzle: classify spend %x: %w", coinID, err)
	}

	return Result{
		UpdatedKind: kind,
		Additions:   st.additions,
		Tails:       st.tails,
	}, nil
}

func (c *Classifier) driverAllocator() pvm.Allocator {
	return c.driver.NewAllocator()
}

func (s *spendState) uncurry(puzzle pvm.Node) (chain.Hash32, bool, pvm.Node) {
	return uncurry(s.c.driver, s.a, puzzle)
}

// parse dispatches on the spent puzzle's mod hash: Launcher, Singleton, Cat,
// or fall through to the inner layer directly.
func (s *spendState) parse(puzzle, solution pvm.Node) (chain.CoinKind, error) {
	modHash, curried, args := s.uncurry(puzzle)

	switch modHash {
	case s.c.mods.SingletonLauncher:
		return s.launcher(solution)
	case s.c.mods.SingletonTopLayer:
		return s.singleton(curried, args, solution)
	case s.c.mods.Cat:
		return s.cat(curried, args, solution)
	default:
		conditions, err := s.inner(puzzle, solution)
		if err != nil {
			return chain.CoinKind{}, err
		}
		s.processConditions(conditions)
		return chain.CoinKind{Tag: chain.CoinKindUnknown}, nil
	}
}

// inner recurses one layer down: a standard-signature (delegated-or-hidden)
// puzzle peels its delegated puzzle first; anything else is run directly and
// its output parsed as a condition list.
func (s *spendState) inner(puzzle, solution pvm.Node) ([]Condition, error) {
	modHash, _, _ := s.uncurry(puzzle)
	if modHash == s.c.mods.StandardSig {
		return s.standard(puzzle, solution)
	}
	return s.runConditions(puzzle, solution)
}

func (s *spendState) runConditions(puzzle, solution pvm.Node) ([]Condition, error) {
	out, err := s.c.driver.Run(s.a, puzzle, solution)
	if err != nil {
		return nil, fmt.Errorf("run puzzle: %w", err)
	}
	return decodeConditions(s.a, s.c.driver.Serialize, out), nil
}

// standard peels the delegated-or-hidden puzzle: the solution names a
// delegated puzzle and its own solution; conditions come from recursing into
// that, with a synthetic AGG_SIG_ME prepended by the real implementation's
// signature layer (verification is out of scope here; only CreateCoin/
// RunCatTail matter downstream so the synthetic condition is not modeled).
func (s *spendState) standard(puzzle, solution pvm.Node) ([]Condition, error) {
	if isNil(s.a, solution) {
		return nil, nil
	}
	delegatedPuzzle := s.a.First(solution)
	rest := s.a.Rest(solution)
	var delegatedSolution pvm.Node
	if !isNil(s.a, rest) {
		delegatedSolution = s.a.First(rest)
	}
	return s.inner(delegatedPuzzle, delegatedSolution)
}

// launcher: the solution names the eve singleton's full puzzle hash and
// amount directly, shaped (singleton_full_puzzle_hash amount
// key_value_list); the launcher puzzle's own behavior is fixed, so its one
// CreateCoin output is read straight off the solution rather than run
// through the interpreter.
func (s *spendState) launcher(solution pvm.Node) (chain.CoinKind, error) {
	items := listItems(s.a, solution)
	if len(items) < 2 {
		return chain.CoinKind{}, fmt.Errorf("malformed launcher solution")
	}

	var puzzleHash chain.Hash32
	copy(puzzleHash[:], s.a.AtomBytes(items[0]))
	amount := uint64(atomToInt64(s.a.AtomBytes(items[1])))

	child := chain.Coin{ParentCoinID: s.coinID, PuzzleHash: puzzleHash, Amount: amount}
	s.additions = append(s.additions, chain.CoinRecord{
		Coin:          child,
		CreatedHeight: s.height,
		Kind: chain.CoinKind{
			Tag:        chain.CoinKindSingleton,
			LauncherID: s.coinID,
			SingletonLineage: chain.SingletonLineageProof{
				ParentParentCoinInfo: s.coin.ParentCoinID,
				ParentAmount:         s.coin.Amount,
			},
		},
	})

	return chain.CoinKind{Tag: chain.CoinKindUnknown}, nil
}

// singleton: peel to the curried form, recurse into the inner puzzle,
// filter children to odd amounts only, rewrap surviving children's puzzle
// hashes under the singleton top layer, and record no child at all when the
// inner puzzle emits a MeltSingleton condition.
func (s *spendState) singleton(curried bool, argsNode pvm.Node, solution pvm.Node) (chain.CoinKind, error) {
	if !curried {
		return chain.CoinKind{}, fmt.Errorf("singleton puzzle is not curried")
	}
	args, ok := parseSingletonArgs(s.c.driver, s.a, argsNode)
	if !ok {
		return chain.CoinKind{}, fmt.Errorf("malformed singleton curry args")
	}

	innerSolution := args.innerSolution(s.a, solution)
	conditions, err := s.inner(args.innerPuzzle, innerSolution)
	if err != nil {
		return chain.CoinKind{}, err
	}

	melted := false
	for _, cond := range conditions {
		melted = melted || cond.Kind == CondMeltSingleton
	}

	for _, cond := range conditions {
		if melted || cond.Kind != CondCreateCoin {
			// A melt ends the lineage: no child of this spend is recorded.
			continue
		}
		if cond.CreateCoin.Amount%2 != 1 {
			continue // even-amount children are never singleton children
		}

		rewrapped := curryTreeHashSingleton(s.c.driver, s.a, args.launcherID, cond.CreateCoin.PuzzleHash)
		cond.CreateCoin.PuzzleHash = rewrapped

		child := chain.Coin{ParentCoinID: s.coinID, PuzzleHash: rewrapped, Amount: cond.CreateCoin.Amount}

		s.additions = append(s.additions, chain.CoinRecord{
			Coin:          child,
			CreatedHeight: s.height,
			Kind: chain.CoinKind{
				Tag:        chain.CoinKindSingleton,
				LauncherID: args.launcherID,
				SingletonLineage: chain.SingletonLineageProof{
					ParentParentCoinInfo:  s.coin.ParentCoinID,
					ParentInnerPuzzleHash: &args.innerPuzzleHash,
					ParentAmount:          s.coin.Amount,
				},
			},
		})
		s.attachHintAndMemos(&s.additions[len(s.additions)-1], cond.CreateCoin)
	}

	kind := chain.CoinKind{
		Tag:        chain.CoinKindSingleton,
		LauncherID: args.launcherID,
		SingletonLineage: chain.SingletonLineageProof{
			ParentParentCoinInfo:  s.coin.ParentCoinID,
			ParentInnerPuzzleHash: &args.innerPuzzleHash,
			ParentAmount:          s.coin.Amount,
		},
	}

	// A singleton wrapping an NFT or DID inner puzzle is recognized here,
	// once the wrapper itself is confirmed, since NFT/DID templates only
	// describe the inner layer and know nothing about launcher lineage.
	for _, t := range s.c.templates {
		refined, ok := t(s.a, s.coin, args.innerPuzzle, innerSolution)
		if !ok {
			continue
		}
		refined.LauncherID = args.launcherID
		refined.SingletonLineage = kind.SingletonLineage
		kind = refined
		break
	}

	return kind, nil
}

// cat: peel to the curried form, recurse into the inner puzzle, rewrap
// surviving CreateCoin children under the CAT layer, and record any
// RunCatTail program against its asset id instead of emitting a child.
func (s *spendState) cat(curried bool, argsNode pvm.Node, solution pvm.Node) (chain.CoinKind, error) {
	if !curried {
		return chain.CoinKind{}, fmt.Errorf("cat puzzle is not curried")
	}
	args, ok := parseCatArgs(s.c.driver, s.a, argsNode)
	if !ok {
		return chain.CoinKind{}, fmt.Errorf("malformed cat curry args")
	}

	innerSolution := args.innerSolution(s.a, solution)
	conditions, err := s.inner(args.innerPuzzle, innerSolution)
	if err != nil {
		return chain.CoinKind{}, err
	}

	for _, cond := range conditions {
		switch cond.Kind {
		case CondCreateCoin:
			rewrapped := curryTreeHashCat(s.c.driver, s.a, args.assetID, cond.CreateCoin.PuzzleHash)
			cond.CreateCoin.PuzzleHash = rewrapped

			child := chain.Coin{ParentCoinID: s.coinID, PuzzleHash: rewrapped, Amount: cond.CreateCoin.Amount}
			s.additions = append(s.additions, chain.CoinRecord{
				Coin:          child,
				CreatedHeight: s.height,
				Kind: chain.CoinKind{
					Tag:          chain.CoinKindCat,
					AssetID:      args.assetID,
					P2PuzzleHash: args.innerPuzzleHash,
					CatLineage: &chain.CatLineageProof{
						ParentParentCoinInfo:  s.coin.ParentCoinID,
						ParentInnerPuzzleHash: args.innerPuzzleHash,
						ParentAmount:          s.coin.Amount,
					},
				},
			})
			s.attachHintAndMemos(&s.additions[len(s.additions)-1], cond.CreateCoin)
		case CondRunCatTail:
			s.tails[args.assetID] = cond.RunCatTail.ProgramBytes
		}
	}

	return chain.CoinKind{
		Tag:          chain.CoinKindCat,
		AssetID:      args.assetID,
		P2PuzzleHash: args.innerPuzzleHash,
	}, nil
}

// processConditions emits one CoinRecord addition per CreateCoin condition,
// with CoinKindUnknown. The registered template parsers are not consulted
// here, so children of a spend outside a singleton/CAT wrapper are never
// classified beyond Unknown.
func (s *spendState) processConditions(conditions []Condition) {
	for _, cond := range conditions {
		if cond.Kind != CondCreateCoin {
			continue
		}
		child := chain.Coin{ParentCoinID: s.coinID, PuzzleHash: cond.CreateCoin.PuzzleHash, Amount: cond.CreateCoin.Amount}
		rec := chain.CoinRecord{Coin: child, CreatedHeight: s.height, Kind: chain.CoinKind{Tag: chain.CoinKindUnknown}}
		s.attachHintAndMemos(&rec, cond.CreateCoin)
		s.additions = append(s.additions, rec)
	}
}

// attachHintAndMemos sets Hint to the first memo only when it is exactly 32
// bytes (spec §4.5.5: "if the first memo is not 32 bytes or memos are
// absent, hint = None"), preserves the full memo list verbatim, and tries
// clawback detection on the remainder.
func (s *spendState) attachHintAndMemos(rec *chain.CoinRecord, cc *CreateCoinCondition) {
	if len(cc.Memos) == 0 {
		return
	}
	rec.Memos = cc.MemoBytes

	if len(cc.Memos[0]) != 32 {
		return
	}
	var hint chain.Hash32
	copy(hint[:], cc.Memos[0])
	rec.Hint = &hint

	if len(cc.Memos) > 1 && isAssetBearing(rec.Kind) {
		if cb, ok := clawbackFromMemo(cc.Memos[1:], hint, cc.Amount); ok {
			rec.P2Puzzle = cb
		}
	}
}

func isAssetBearing(k chain.CoinKind) bool {
	switch k.Tag {
	case chain.CoinKindCat, chain.CoinKindNft, chain.CoinKindDid:
		return true
	default:
		return false
	}
}

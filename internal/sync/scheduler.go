// Package sync implements the Sync Scheduler: the loop that discovers the
// upstream peak, pulls batches of compressed block blobs, resolves
// generator references, fans decode+classify out across workers, merges the
// results, and commits them as one atomic write-batch before advancing.
//
// Grounded on original_source/src/sync.rs's state machine, 1000-height
// default batch size, ref-block resolution cache, and rolling throughput-
// estimate window. Parallel decode+classify fan-out uses
// golang.org/x/sync/errgroup, mirroring the rayon parallel-map / serial-merge
// split in process/block.rs.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xch-dev/explorer/internal/batch"
	blockpkg "github.com/xch-dev/explorer/internal/block"
	"github.com/xch-dev/explorer/internal/chain"
	"github.com/xch-dev/explorer/internal/driver"
	"github.com/xch-dev/explorer/internal/kv"
	"github.com/xch-dev/explorer/internal/upstream"
	"github.com/xch-dev/explorer/internal/writer"
)

// State names the scheduler's current phase, for logging and tests; it is
// not persisted.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateDecoding
	StateClassifying
	StateCommitting
	StateReporting
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateDecoding:
		return "decoding"
	case StateClassifying:
		return "classifying"
	case StateCommitting:
		return "committing"
	case StateReporting:
		return "reporting"
	default:
		return "idle"
	}
}

// Config holds the scheduler's tunables, sourced from internal/config.
type Config struct {
	BatchSize       uint32
	GenesisHeight   uint32
	RetryAttempts   int
	UpstreamTimeout time.Duration
}

// Scheduler drives the Idle -> Fetching -> Decoding -> Classifying ->
// Committing -> Reporting -> Idle loop.
type Scheduler struct {
	cfg        Config
	store      *kv.Store
	blockStore *upstream.BlockStore
	rpc        *upstream.RPCClient
	driver     *driver.Driver
	writer     *writer.Writer
	log        *zap.SugaredLogger
	metrics    *metrics

	state State
}

// New builds a Scheduler. reg may be nil (metrics are then not registered),
// useful for tests that don't want to touch the default registry.
func New(cfg Config, store *kv.Store, blockStore *upstream.BlockStore, rpc *upstream.RPCClient, drv *driver.Driver, log *zap.SugaredLogger, reg prometheus.Registerer) *Scheduler {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 1000
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 5
	}
	if cfg.UpstreamTimeout == 0 {
		cfg.UpstreamTimeout = 10 * time.Second
	}
	return &Scheduler{
		cfg:        cfg,
		store:      store,
		blockStore: blockStore,
		rpc:        rpc,
		driver:     drv,
		writer:     writer.New(store),
		log:        log,
		metrics:    newMetrics(reg),
	}
}

// State reports the scheduler's current phase.
func (s *Scheduler) State() State { return s.state }

// localPeak returns the next height to fetch: one past the highest
// committed height, or the configured genesis height if the store is empty.
func (s *Scheduler) localPeak() (uint32, error) {
	key, _, ok, err := s.store.Last(kv.CFBlocks)
	if err != nil {
		return 0, fmt.Errorf("sync: read local peak: %w", err)
	}
	if !ok {
		return s.cfg.GenesisHeight, nil
	}
	h, err := kv.DecodeHeightKey(key)
	if err != nil {
		return 0, err
	}
	return h + 1, nil
}

// Run drives the loop until ctx is cancelled or local reaches the upstream
// peak, returning nil in the latter case so callers can re-invoke Run
// periodically to pick up newly produced blocks.
func (s *Scheduler) Run(ctx context.Context) error {
	var upstreamPeak uint32
	s.state = StateFetching
	if err := withRetry(ctx, s.cfg.RetryAttempts, s.logRetry("fetch upstream peak"), func() error {
		rctx, cancel := context.WithTimeout(ctx, s.cfg.UpstreamTimeout)
		defer cancel()
		p, err := s.rpc.PeakHeight(rctx)
		upstreamPeak = p
		return err
	}); err != nil {
		return fmt.Errorf("sync: fetch upstream peak: %w", err)
	}

	local, err := s.localPeak()
	if err != nil {
		return err
	}

	for local <= upstreamPeak {
		if err := ctx.Err(); err != nil {
			return err
		}
		next, err := s.runBatch(ctx, local, upstreamPeak)
		if err != nil {
			return err
		}
		local = next
	}
	s.state = StateIdle
	return nil
}

// runBatch processes one batch window [local, min(local+B, upstreamPeak+1))
// and returns the next height to fetch.
func (s *Scheduler) runBatch(ctx context.Context, local, upstreamPeak uint32) (uint32, error) {
	end := local + s.cfg.BatchSize
	if end > upstreamPeak+1 {
		end = upstreamPeak + 1
	}
	count := end - local

	start := time.Now()

	s.state = StateFetching
	var blobs map[uint32][]byte
	if err := withRetry(ctx, s.cfg.RetryAttempts, s.logRetry("fetch block batch"), func() error {
		rctx, cancel := context.WithTimeout(ctx, s.cfg.UpstreamTimeout)
		defer cancel()
		b, err := s.blockStore.FetchRange(rctx, local, count)
		blobs = b
		return err
	}); err != nil {
		return 0, fmt.Errorf("sync: fetch batch [%d,%d): %w", local, end, err)
	}

	s.state = StateDecoding
	decoded, err := s.decodeBatch(local, end, blobs)
	if err != nil {
		return 0, err
	}

	refs, err := s.resolveGeneratorRefs(ctx, decoded)
	if err != nil {
		return 0, err
	}

	s.state = StateClassifying
	parsed, err := s.classifyBatch(decoded, refs)
	if err != nil {
		return 0, err
	}

	ins := batch.New()
	for _, pb := range parsed {
		ins.Merge(pb)
	}

	s.state = StateCommitting
	if err := s.writer.Commit(ins); err != nil {
		return 0, fmt.Errorf("sync: commit batch [%d,%d): %w", local, end, err)
	}

	s.state = StateReporting
	s.report(local, end, upstreamPeak, ins, time.Since(start))

	return end, nil
}

// decodeBatch decodes every blob in [start, end) in parallel; the batch's
// own decode step is pure and CPU-bound, so it carries no deadline (SPEC_FULL
// §5: no internal operation deadlines on decode/classify).
func (s *Scheduler) decodeBatch(start, end uint32, blobs map[uint32][]byte) (map[uint32]blockpkg.FullBlock, error) {
	type decoded struct {
		height uint32
		fb     blockpkg.FullBlock
	}
	results := make(chan decoded, end-start)

	var g errgroup.Group
	for h := start; h < end; h++ {
		h := h
		blob, ok := blobs[h]
		if !ok {
			return nil, fmt.Errorf("sync: missing block at height %d in fetched batch", h)
		}
		g.Go(func() error {
			fb, err := blockpkg.Decode(blob)
			if err != nil {
				return fmt.Errorf("sync: decode block %d: %w", h, err)
			}
			fb.Height = h
			results <- decoded{height: h, fb: fb}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	close(results)

	out := make(map[uint32]blockpkg.FullBlock, len(blobs))
	for d := range results {
		out[d.height] = d.fb
	}
	return out, nil
}

// resolveGeneratorRefs walks every decoded block's GeneratorRefList and
// fetches each referenced height exactly once: first from the batch itself
// (already decoded), then from upstream via FetchOne for anything outside
// the batch's range.
func (s *Scheduler) resolveGeneratorRefs(ctx context.Context, decoded map[uint32]blockpkg.FullBlock) (map[uint32]blockpkg.FullBlock, error) {
	refs := make(map[uint32]blockpkg.FullBlock, len(decoded))
	for h, fb := range decoded {
		refs[h] = fb
	}

	needed := map[uint32]struct{}{}
	for _, fb := range decoded {
		for _, h := range fb.GeneratorRefList {
			if _, ok := refs[h]; !ok {
				needed[h] = struct{}{}
			}
		}
	}

	for h := range needed {
		h := h
		var blob []byte
		var found bool
		if err := withRetry(ctx, s.cfg.RetryAttempts, s.logRetry("fetch generator reference"), func() error {
			rctx, cancel := context.WithTimeout(ctx, s.cfg.UpstreamTimeout)
			defer cancel()
			b, ok, err := s.blockStore.FetchOne(rctx, h)
			blob, found = b, ok
			return err
		}); err != nil {
			return nil, fmt.Errorf("sync: fetch generator reference at height %d: %w", h, err)
		}
		if !found {
			return nil, &driver.ErrMissingReferenceBlock{Height: h}
		}
		fb, err := blockpkg.Decode(blob)
		if err != nil {
			return nil, fmt.Errorf("sync: decode generator reference at height %d: %w", h, err)
		}
		fb.Height = h
		refs[h] = fb
	}
	return refs, nil
}

func (s *Scheduler) classifyBatch(decoded map[uint32]blockpkg.FullBlock, refs map[uint32]blockpkg.FullBlock) ([]driver.ParsedBlock, error) {
	heights := make([]uint32, 0, len(decoded))
	for h := range decoded {
		heights = append(heights, h)
	}

	out := make([]driver.ParsedBlock, len(heights))
	var g errgroup.Group
	for i, h := range heights {
		i, h := i, h
		g.Go(func() error {
			pb, err := s.driver.Process(decoded[h], refs)
			if err != nil {
				return err
			}
			out[i] = pb
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// batchesRemaining returns how many more batches of size s.cfg.BatchSize it
// takes to cover every height in [end, upstreamPeak], rounding up so a
// partial trailing batch still counts as one.
func (s *Scheduler) batchesRemaining(end, upstreamPeak uint32) uint32 {
	if end > upstreamPeak {
		return 0
	}
	remaining := upstreamPeak - end + 1
	return (remaining + s.cfg.BatchSize - 1) / s.cfg.BatchSize
}

func (s *Scheduler) report(start, end uint32, upstreamPeak uint32, ins *batch.Insertions, elapsed time.Duration) {
	var additions, spends int
	ins.Additions(func(chain.Hash32, chain.CoinRecord) { additions++ })
	ins.Spends(func(chain.Hash32, driver.SpendUpdate) { spends++ })

	if s.log != nil {
		s.log.Infow("committed batch",
			"start_height", start,
			"end_height", end-1,
			"blocks", end-start,
			"coins_created", additions,
			"coins_spent", spends,
			"elapsed", elapsed,
			"batches_remaining", s.batchesRemaining(end, upstreamPeak),
		)
	}
	if s.metrics != nil {
		s.metrics.blocksIndexed.Add(float64(end - start))
		s.metrics.coinsCreated.Add(float64(additions))
		s.metrics.coinsSpent.Add(float64(spends))
		s.metrics.commitLatency.Observe(elapsed.Seconds())
		s.metrics.peakHeight.Set(float64(end - 1))
	}
}

func (s *Scheduler) logRetry(op string) func(attempt int, err error) {
	return func(attempt int, err error) {
		if s.log != nil {
			s.log.Warnw("retrying upstream call", "operation", op, "attempt", attempt, "error", err)
		}
	}
}

// Command explorer is the CLI entry point: it loads configuration, opens
// the store and upstream clients, wires the Sync Scheduler and HTTP query
// surface together, and runs both for the life of the process.
//
// Grounded on the teacher's cmd-level wiring idiom (config -> logger ->
// store -> background loop -> HTTP server, with a context cancelled on
// SIGINT/SIGTERM) and SPEC_FULL.md §6's configuration surface.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xch-dev/explorer/internal/config"
	"github.com/xch-dev/explorer/internal/driver"
	"github.com/xch-dev/explorer/internal/httpapi"
	"github.com/xch-dev/explorer/internal/kv"
	"github.com/xch-dev/explorer/internal/puzzle"
	"github.com/xch-dev/explorer/internal/pvm"
	"github.com/xch-dev/explorer/internal/query"
	syncpkg "github.com/xch-dev/explorer/internal/sync"
	"github.com/xch-dev/explorer/internal/upstream"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "explorer",
		Short: "Chain indexer and read-only query server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a TOML config file")
	config.BindFlags(cmd.Flags())
	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := kv.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("explorer: open store: %w", err)
	}
	defer store.Close() //nolint:errcheck

	blockStore, err := upstream.OpenBlockStore(cfg.BlockchainDBPath)
	if err != nil {
		return fmt.Errorf("explorer: open upstream block store: %w", err)
	}
	defer blockStore.Close() //nolint:errcheck

	rpc, err := upstream.NewRPCClient(cfg.RPCBaseURL, cfg.CertPath, cfg.KeyPath)
	if err != nil {
		return fmt.Errorf("explorer: build upstream RPC client: %w", err)
	}

	vmDriver, err := newPVMDriver()
	if err != nil {
		return fmt.Errorf("explorer: %w", err)
	}

	reg := prometheus.NewRegistry()
	classifier := puzzle.New(vmDriver, networkModHashes(), networkTemplateParsers(vmDriver)...)
	blockDriver := driver.New(vmDriver, classifier)

	scheduler := syncpkg.New(syncpkg.Config{
		BatchSize:       cfg.BatchSize,
		GenesisHeight:   cfg.GenesisHeight,
		RetryAttempts:   cfg.RetryAttempts,
		UpstreamTimeout: cfg.UpstreamTimeout,
	}, store, blockStore, rpc, blockDriver, log, reg)

	reader := query.New(store)
	apiServer := httpapi.New(reader, log)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: apiServer,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Infow("sync scheduler starting", "batch_size", cfg.BatchSize)
		errCh <- runSchedulerLoop(ctx, scheduler, log)
	}()
	go func() {
		log.Infow("http query surface listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("explorer: http server: %w", err)
			return
		}
		errCh <- nil
	}()
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, reg, log)
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Infow("shutting down")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.UpstreamTimeout)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)

	return runErr
}

// runSchedulerLoop re-invokes Scheduler.Run whenever it returns nil (the
// upstream peak was reached), so the process keeps picking up newly
// produced blocks until ctx is cancelled.
func runSchedulerLoop(ctx context.Context, s *syncpkg.Scheduler, log *zap.SugaredLogger) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if err := s.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Errorw("sync scheduler halted", "error", err)
			return err
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, log *zap.SugaredLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		log.Errorw("metrics listener failed", "error", err)
	}
}

func newLogger(level string) (*zap.SugaredLogger, error) {
	var zcfg zap.Config
	switch level {
	case "debug":
		zcfg = zap.NewDevelopmentConfig()
	default:
		zcfg = zap.NewProductionConfig()
	}
	l, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("explorer: build logger: %w", err)
	}
	return l.Sugar(), nil
}

// newPVMDriver returns the pvm.Driver this deployment runs against. The VM
// itself and the standard puzzle library are external collaborators
// (SPEC_FULL.md §1): this binary links whichever concrete implementation of
// the pvm.Driver function-table a production build provides. None is linked
// into this module, since the VM is out of scope here; wiring one in is the
// one remaining step between this binary and a runnable deployment.
func newPVMDriver() (pvm.Driver, error) {
	return pvm.Driver{}, fmt.Errorf("no pvm.Driver implementation linked; supply one satisfying internal/pvm.Driver")
}

// networkModHashes returns the fixed table of uncurried-module hashes the
// classifier dispatches on (SPEC_FULL.md §4.5.1). These are network
// constants published by the standard puzzle library, not computed here;
// a production build sources them from that library rather than this stub.
func networkModHashes() puzzle.ModHashes {
	return puzzle.ModHashes{}
}

// networkTemplateParsers returns the DID/NFT template parsers the
// classifier tries after the fixed wrapper dispatch fails to match
// (SPEC_FULL.md §4.5.3). Their mod-hash arguments are likewise network
// constants sourced from the standard puzzle library in production.
func networkTemplateParsers(vm pvm.Driver) []puzzle.TemplateParser {
	var stateLayerModHash, ownershipLayerModHash, didModHash [32]byte
	return []puzzle.TemplateParser{
		puzzle.NftParser(vm, stateLayerModHash, ownershipLayerModHash),
		puzzle.DidParser(vm, didModHash),
	}
}

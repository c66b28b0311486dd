// Package main provides the entry point for the supply-snapshot service.
// supply-snapshot resolves a range of calendar dates to block numbers,
// reads configured token supplies at each resolved block over JSON-RPC, and
// serves the collected snapshot over a small HTTP API, optionally publishing
// completed rows to NATS JetStream.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/grassrootseconomics/supply-snapshot/internal/api"
	"github.com/grassrootseconomics/supply-snapshot/internal/chain"
	"github.com/grassrootseconomics/supply-snapshot/internal/ledger"
	"github.com/grassrootseconomics/supply-snapshot/internal/pool"
	"github.com/grassrootseconomics/supply-snapshot/internal/processor"
	"github.com/grassrootseconomics/supply-snapshot/internal/pub"
	"github.com/grassrootseconomics/supply-snapshot/internal/resolver"
	"github.com/grassrootseconomics/supply-snapshot/internal/results"
	"github.com/grassrootseconomics/supply-snapshot/internal/stats"
	"github.com/grassrootseconomics/supply-snapshot/internal/supply"
	"github.com/grassrootseconomics/supply-snapshot/internal/sweep"
	"github.com/grassrootseconomics/supply-snapshot/internal/util"
	"github.com/knadh/koanf/v2"
)

const (
	// defaultGracefulShutdownPeriod defines the maximum time allowed for graceful shutdown
	// before forcefully terminating the application.
	defaultGracefulShutdownPeriod = time.Second * 30

	// defaultWorkerPoolMultiplier is the multiplier used to calculate default worker pool size
	// based on CPU count when pool_size is not explicitly configured.
	defaultWorkerPoolMultiplier = 2
)

var (
	// build is set during compilation via -ldflags "-X main.build=<version>"
	build = "dev"

	// confFlag holds the path to the configuration file
	confFlag string

	// lo is the global structured logger instance
	lo *slog.Logger

	// ko is the global configuration instance
	ko *koanf.Koanf
)

func init() {
	flag.StringVar(&confFlag, "config", "config.toml", "Path to configuration file (TOML format)")
	flag.Parse()

	lo = util.InitLogger()
	ko = util.InitConfig(lo, confFlag)
}

// main initializes and starts all service components including:
// - Chain RPC client with retrying single and batched calls
// - Date to block resolver
// - Batched supply reader
// - In-memory run ledger and snapshot row store
// - Optional NATS JetStream publisher for completed rows
// - Worker pool for concurrent date processing
// - One-shot date sweep over the configured range
// - Stats collector and HTTP API server
func main() {
	lo.Info("starting supply-snapshot service", "build", build)

	var wg sync.WaitGroup
	ctx, stop := notifyShutdown()

	chainClient, err := chain.NewRPCFetcher(chain.EthRPCOpts{
		RPCEndpoint: ko.MustString("chain.rpc_endpoint"),
		Timeout:     time.Duration(ko.Int("chain.timeout_secs")) * time.Second,
		MaxAttempts: ko.Int("chain.max_attempts"),
		RetryDelay:  time.Duration(ko.Int("chain.retry_delay_secs")) * time.Second,
		Logg:        lo,
	})
	if err != nil {
		lo.Error("could not initialize chain client", "error", err)
		os.Exit(1)
	}
	lo.Debug("loaded rpc fetcher")

	tokens := util.LoadTokens(lo, ko)
	startDate, endDate := util.LoadDateRange(lo, ko)
	lo.Debug("loaded token table and date range",
		"token_count", len(tokens),
		"start", startDate.Format(time.DateOnly),
		"end", endDate.Format(time.DateOnly),
	)

	runLedger := ledger.New(uint(sweep.DayCount(startDate, endDate)))
	rowStore := results.New()

	blockResolver := resolver.New(resolver.ResolverOpts{
		Chain: chainClient,
		Logg:  lo,
	})
	lo.Debug("bootstrapped block resolver")

	supplyReader := supply.NewReader(supply.ReaderOpts{
		Chain:       chainClient,
		MaxAttempts: ko.Int("snapshot.read_attempts"),
		RetryDelay:  time.Duration(ko.Int("snapshot.read_retry_delay_secs")) * time.Second,
		Logg:        lo,
	})
	lo.Debug("bootstrapped supply reader")

	var rowPub pub.Pub
	if ko.Bool("jetstream.enable") {
		rowPub, err = pub.NewJetStreamPub(pub.JetStreamOpts{
			Endpoint:        ko.MustString("jetstream.endpoint"),
			PersistDuration: time.Duration(ko.MustInt("jetstream.persist_duration_hrs")) * time.Hour,
			Logg:            lo,
		})
		if err != nil {
			lo.Error("could not initialize jetstream pub", "error", err)
			os.Exit(1)
		}
		lo.Debug("loaded jetstream publisher")
	}

	statsCollector := stats.New(stats.StatsOpts{
		Logg: lo,
	})
	lo.Debug("bootstrapped stats provider")

	dateProcessor := processor.NewProcessor(processor.ProcessorOpts{
		Resolver:  blockResolver,
		Reader:    supplyReader,
		Tokens:    tokens,
		Results:   rowStore,
		Ledger:    runLedger,
		StartDate: startDate,
		Pub:       rowPub,
		Stats:     statsCollector,
		Logg:      lo,
	})
	lo.Debug("bootstrapped processor")

	poolSize := ko.Int("core.pool_size")
	if poolSize <= 0 {
		poolSize = runtime.NumCPU() * defaultWorkerPoolMultiplier
		lo.Info("using default worker pool size", "cpu_count", runtime.NumCPU(), "pool_size", poolSize)
	}
	workerPool := pool.New(pool.PoolOpts{
		Logg:        lo,
		WorkerCount: poolSize,
		Processor:   dateProcessor,
	})
	lo.Debug("bootstrapped worker pool")

	dateSweep := sweep.New(sweep.SweepOpts{
		From:   startDate,
		To:     endDate,
		Ledger: runLedger,
		Pool:   workerPool,
		Stats:  statsCollector,
		Logg:   lo,
	})
	lo.Debug("bootstrapped date sweep")

	apiServer := &http.Server{
		Addr: ko.MustString("api.address"),
		Handler: api.New(api.APIOpts{
			Stats:   statsCollector,
			Pool:    workerPool,
			Results: rowStore,
		}),
	}
	lo.Debug("bootstrapped API server")
	lo.Debug("starting routines")

	// Start stats printer goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		statsCollector.StartStatsPrinter()
	}()

	// Start the one-shot date sweep goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := dateSweep.Run(ctx); err != nil {
			lo.Error("date sweep aborted", "error", err)
		}
	}()

	// Start HTTP API server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		apiAddr := ko.MustString("api.address")
		lo.Info("starting API server", "address", apiAddr)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lo.Error("API server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	lo.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulShutdownPeriod)
	defer cancel()

	// Perform graceful shutdown in a separate goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		lo.Info("stopping service components")
		workerPool.Stop()
		statsCollector.Stop()
		if rowPub != nil {
			rowPub.Close()
		}
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			lo.Error("API server shutdown error", "error", err)
		}
		lo.Info("graceful shutdown complete")
	}()

	// Wait for shutdown completion or timeout
	shutdownDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		stop()
		lo.Info("service stopped successfully")
		os.Exit(0)
	case <-shutdownCtx.Done():
		if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
			stop()
			lo.Error("graceful shutdown timeout exceeded, forcing exit")
			os.Exit(1)
		}
	}
}

// notifyShutdown creates a context that is cancelled when the application receives
// a shutdown signal (SIGINT, SIGTERM, or interrupt).
func notifyShutdown() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
}

// Package processor turns one calendar date into one snapshot row: it
// resolves the date to a block, reads every configured token's supply at that
// block, scales values for presentation, and records the outcome.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/grassrootseconomics/supply-snapshot/internal/ledger"
	"github.com/grassrootseconomics/supply-snapshot/internal/pub"
	"github.com/grassrootseconomics/supply-snapshot/internal/resolver"
	"github.com/grassrootseconomics/supply-snapshot/internal/results"
	"github.com/grassrootseconomics/supply-snapshot/internal/stats"
	"github.com/grassrootseconomics/supply-snapshot/internal/supply"
	"github.com/grassrootseconomics/supply-snapshot/pkg/snapshot"
	"github.com/grassrootseconomics/supply-snapshot/pkg/token"
)

type (
	// BlockResolver resolves a calendar date to a block reference.
	BlockResolver interface {
		Resolve(context.Context, time.Time) (resolver.BlockRef, error)
	}

	// SupplyReader reads all configured token supplies at a block height.
	SupplyReader interface {
		ReadAll(context.Context, uint64, []token.Token) map[string]supply.Value
	}

	// ProcessorOpts contains configuration options for creating a new Processor.
	ProcessorOpts struct {
		Resolver  BlockResolver  // Date to block resolution
		Reader    SupplyReader   // Batched supply reads
		Tokens    []token.Token  // Configured token table
		Results   *results.Store // Row store
		Ledger    *ledger.Ledger // Run completion ledger
		StartDate time.Time      // First date of the run (index zero in the ledger)
		Pub       pub.Pub        // Optional row publisher, may be nil
		Stats     *stats.Stats   // Statistics collector
		Logg      *slog.Logger   // Structured logger
	}

	// Processor handles per-date snapshot assembly.
	Processor struct {
		resolver  BlockResolver
		reader    SupplyReader
		tokens    []token.Token
		results   *results.Store
		ledger    *ledger.Ledger
		startDate time.Time
		pub       pub.Pub
		stats     *stats.Stats
		logg      *slog.Logger
	}
)

// NewProcessor creates a new Processor instance with the provided options.
func NewProcessor(o ProcessorOpts) *Processor {
	return &Processor{
		resolver:  o.Resolver,
		reader:    o.Reader,
		tokens:    o.Tokens,
		results:   o.Results,
		ledger:    o.Ledger,
		startDate: o.StartDate,
		pub:       o.Pub,
		stats:     o.Stats,
		logg:      o.Logg,
	}
}

// ProcessDate resolves the date to a block and assembles its snapshot row.
//
// A date with no resolvable block is skipped: counted, logged and reported as
// an error to the caller, but never fatal to sibling dates. Supply entries
// that stay unavailable after the batch retry budget are recorded as such in
// the row; the date still completes.
func (p *Processor) ProcessDate(ctx context.Context, date time.Time) error {
	ref, err := p.resolver.Resolve(ctx, date)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		p.stats.IncSkipped()
		metrics.GetOrCreateCounter(`snapshot_dates_skipped_total`).Inc()
		return fmt.Errorf("no block resolved for %s: %w", date.Format(time.DateOnly), err)
	}

	values := p.reader.ReadAll(ctx, ref.Number, p.tokens)

	row := snapshot.Row{
		Date:      date.Format(time.DateOnly),
		Block:     ref.Number,
		BlockTime: uint64(ref.Time.Unix()),
		Supplies:  make(map[string]snapshot.Supply, len(p.tokens)),
	}

	for _, t := range p.tokens {
		v := values[t.Name]
		if !v.Available() {
			p.stats.IncUnavailable()
			metrics.GetOrCreateCounter(`snapshot_entries_unavailable_total`).Inc()
			p.logg.Warn("supply unavailable after retries",
				"date", row.Date,
				"token", t.Name,
				"block", ref.Number,
			)
			row.Supplies[t.Name] = snapshot.Supply{}
			continue
		}

		row.Supplies[t.Name] = snapshot.Supply{
			Raw:       v.Raw.String(),
			Scaled:    t.Scale(v.Raw),
			Available: true,
		}
	}

	p.results.Put(row)
	p.markDone(date)
	p.stats.IncProcessed()
	p.stats.SetLastResolvedBlock(ref.Number)
	metrics.GetOrCreateCounter(`snapshot_dates_processed_total`).Inc()

	// Publish failures do not fail the date; the row is already stored.
	if p.pub != nil {
		if err := p.pub.Send(ctx, row); err != nil {
			p.logg.Error("failed to publish snapshot row", "date", row.Date, "error", err)
		}
	}

	p.logg.Debug("processed date", "date", row.Date, "block", ref.Number)
	return nil
}

// markDone records the date's completion in the run ledger by its day offset
// from the run's start date.
func (p *Processor) markDone(date time.Time) {
	offset := int(date.Sub(p.startDate).Hours() / 24)
	if offset < 0 {
		return
	}
	p.ledger.MarkDone(uint(offset))
}

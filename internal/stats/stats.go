// Package stats provides statistics collection and reporting for the
// supply-snapshot service.
package stats

import (
	"log/slog"
	"sync/atomic"
	"time"
)

const (
	// statsPrinterInterval is the interval at which statistics are logged
	statsPrinterInterval = 15 * time.Second
)

type (
	// StatsOpts contains configuration options for creating a new Stats instance.
	StatsOpts struct {
		Logg *slog.Logger // Structured logger
	}

	// Stats collects and reports run statistics.
	Stats struct {
		logg   *slog.Logger
		stopCh chan struct{}

		datesProcessed     atomic.Uint64
		datesSkipped       atomic.Uint64
		entriesUnavailable atomic.Uint64
		lastResolvedBlock  atomic.Uint64
	}
)

// New creates a new Stats instance.
func New(o StatsOpts) *Stats {
	return &Stats{
		logg:   o.Logg,
		stopCh: make(chan struct{}),
	}
}

// IncProcessed counts one date fully processed into a snapshot row.
func (s *Stats) IncProcessed() {
	s.datesProcessed.Add(1)
}

// IncSkipped counts one date skipped because no block could be resolved.
func (s *Stats) IncSkipped() {
	s.datesSkipped.Add(1)
}

// IncUnavailable counts one supply entry that stayed unavailable after the
// batch retry budget.
func (s *Stats) IncUnavailable() {
	s.entriesUnavailable.Add(1)
}

// SetLastResolvedBlock updates the most recently resolved block number.
func (s *Stats) SetLastResolvedBlock(v uint64) {
	s.lastResolvedBlock.Store(v)
}

// GetLastResolvedBlock returns the most recently resolved block number.
func (s *Stats) GetLastResolvedBlock() uint64 {
	return s.lastResolvedBlock.Load()
}

// Stop stops the stats printer goroutine.
func (s *Stats) Stop() {
	close(s.stopCh)
	s.logg.Debug("stats stopped")
}

// APIStatsResponse returns current statistics as a map for API responses.
func (s *Stats) APIStatsResponse() map[string]interface{} {
	return map[string]interface{}{
		"datesProcessed":     s.datesProcessed.Load(),
		"datesSkipped":       s.datesSkipped.Load(),
		"entriesUnavailable": s.entriesUnavailable.Load(),
		"lastResolvedBlock":  s.lastResolvedBlock.Load(),
	}
}

// StartStatsPrinter starts a goroutine that periodically logs statistics.
func (s *Stats) StartStatsPrinter() {
	ticker := time.NewTicker(statsPrinterInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			s.logg.Debug("stats printer shutting down")
			return
		case <-ticker.C:
			s.logg.Info("run statistics",
				"dates_processed", s.datesProcessed.Load(),
				"dates_skipped", s.datesSkipped.Load(),
				"entries_unavailable", s.entriesUnavailable.Load(),
				"last_resolved_block", s.lastResolvedBlock.Load(),
			)
		}
	}
}

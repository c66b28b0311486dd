// Package resolver converts calendar dates into block numbers by binary
// searching block timestamps through the chain client.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/grassrootseconomics/supply-snapshot/internal/chain"
)

// ErrNotFound is returned when no block with a date on or before the target
// date can be established, either because the target predates genesis or
// because an oracle call ran out of retries mid-search. It is a terminal,
// per-date outcome; other dates are unaffected.
var ErrNotFound = errors.New("no block found on or before target date")

type (
	// BlockRef identifies a resolved block. Immutable once returned.
	BlockRef struct {
		Number uint64    // Block number
		Time   time.Time // Block timestamp (UTC)
	}

	// ResolverOpts contains configuration options for creating a new Resolver.
	ResolverOpts struct {
		Chain chain.Chain  // Chain client for oracle calls
		Logg  *slog.Logger // Structured logger
	}

	// Resolver performs date to block resolution.
	Resolver struct {
		chain chain.Chain
		logg  *slog.Logger
	}
)

// New creates a new Resolver instance.
func New(o ResolverOpts) *Resolver {
	return &Resolver{
		chain: o.Chain,
		logg:  o.Logg,
	}
}

// Resolve returns the latest known block whose timestamp falls on or before
// the target calendar date (UTC). It binary searches the closed range
// [0, head], issuing O(log head) header fetches, one at a time; each step
// depends on the previous comparison and is never parallelized.
//
// A block landing exactly on the target date is returned immediately; among
// several blocks sharing that date the result is whichever the search first
// encounters, or otherwise the last "on or before" candidate seen along the
// search path. A failed oracle read anywhere aborts the whole resolution with
// ErrNotFound; no partial progress carries over between calls.
func (r *Resolver) Resolve(ctx context.Context, target time.Time) (BlockRef, error) {
	targetDate := truncateToDate(target)

	head, err := r.chain.LatestBlock(ctx)
	if err != nil {
		r.logg.Warn("failed to fetch chain head", "error", err)
		return BlockRef{}, fmt.Errorf("%w: chain head unavailable: %v", ErrNotFound, err)
	}

	var (
		low    int64 = 0
		high         = int64(head)
		chosen *BlockRef
	)

	for low <= high {
		mid := low + (high-low)/2

		header, err := r.chain.HeaderByNumber(ctx, uint64(mid))
		if err != nil {
			r.logg.Warn("failed to fetch block header mid-search", "block", mid, "error", err)
			return BlockRef{}, fmt.Errorf("%w: block %d unavailable: %v", ErrNotFound, mid, err)
		}

		blockTime := time.Unix(int64(header.Time), 0).UTC()
		blockDate := truncateToDate(blockTime)

		switch {
		case blockDate.Equal(targetDate):
			return BlockRef{Number: uint64(mid), Time: blockTime}, nil
		case blockDate.Before(targetDate):
			chosen = &BlockRef{Number: uint64(mid), Time: blockTime}
			low = mid + 1
		default:
			high = mid - 1
		}
	}

	if chosen == nil {
		return BlockRef{}, ErrNotFound
	}

	return *chosen, nil
}

// truncateToDate drops the time-of-day component, leaving midnight UTC.
func truncateToDate(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

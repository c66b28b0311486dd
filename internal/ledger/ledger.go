// Package ledger tracks per-run completion state for a bounded sequence of
// snapshot dates. It is in-memory only; nothing survives the process, and
// failed entries stay enumerable for the end-of-run summary.
package ledger

import (
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// Ledger records which indices of a bounded run completed. Index zero maps to
// the run's first date; the caller owns the index to date translation.
// All methods are safe for concurrent use.
type Ledger struct {
	mu   sync.Mutex
	size uint
	done *bitset.BitSet
}

// New creates a ledger covering indices [0, size).
func New(size uint) *Ledger {
	return &Ledger{
		size: size,
		done: bitset.New(size),
	}
}

// Size returns the number of tracked indices.
func (l *Ledger) Size() uint {
	return l.size
}

// MarkDone marks one index as completed. Out-of-range indices are ignored.
func (l *Ledger) MarkDone(i uint) {
	if i >= l.size {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.done.Set(i)
}

// DoneCount returns the number of completed indices.
func (l *Ledger) DoneCount() uint {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done.Count()
}

// Missing returns a bitset with bits set for every index that has not
// completed. The returned bitset is a copy owned by the caller.
func (l *Ledger) Missing() *bitset.BitSet {
	l.mu.Lock()
	defer l.mu.Unlock()

	missing := bitset.New(l.size)
	for i := uint(0); i < l.size; i++ {
		if !l.done.Test(i) {
			missing.Set(i)
		}
	}
	return missing
}

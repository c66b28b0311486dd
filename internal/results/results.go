// Package results provides the concurrency-safe store for completed snapshot
// rows. Rows are written by worker goroutines as dates finish and read by the
// HTTP API; the store never mutates a row after it is put.
package results

import (
	"sort"

	"github.com/grassrootseconomics/supply-snapshot/pkg/snapshot"
	"github.com/puzpuzpuz/xsync/v3"
)

// Store is an in-memory snapshot row store keyed by date.
type Store struct {
	xmap *xsync.MapOf[string, snapshot.Row]
}

// New creates a new empty Store.
func New() *Store {
	return &Store{
		xmap: xsync.NewMapOf[string, snapshot.Row](),
	}
}

// Put stores a completed row, replacing any previous row for the same date.
func (s *Store) Put(row snapshot.Row) {
	s.xmap.Store(row.Date, row)
}

// Get returns the row for a date, if present.
func (s *Store) Get(date string) (snapshot.Row, bool) {
	return s.xmap.Load(date)
}

// Size returns the number of stored rows.
func (s *Store) Size() int {
	return s.xmap.Size()
}

// Rows returns all stored rows sorted by date ascending.
func (s *Store) Rows() []snapshot.Row {
	rows := make([]snapshot.Row, 0, s.xmap.Size())
	s.xmap.Range(func(_ string, row snapshot.Row) bool {
		rows = append(rows, row)
		return true
	})

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Date < rows[j].Date
	})

	return rows
}

package results

import (
	"testing"

	"github.com/grassrootseconomics/supply-snapshot/pkg/snapshot"
	"github.com/stretchr/testify/require"
)

func TestPutGet(t *testing.T) {
	store := New()
	require.Equal(t, 0, store.Size())

	row := snapshot.Row{
		Date:  "2024-01-05",
		Block: 19000000,
		Supplies: map[string]snapshot.Supply{
			"USDC": {Raw: "1000000", Scaled: "1.000000", Available: true},
		},
	}
	store.Put(row)

	got, ok := store.Get("2024-01-05")
	require.True(t, ok)
	require.Equal(t, row, got)

	_, ok = store.Get("2024-01-06")
	require.False(t, ok)
}

func TestPutReplacesSameDate(t *testing.T) {
	store := New()
	store.Put(snapshot.Row{Date: "2024-01-05", Block: 100})
	store.Put(snapshot.Row{Date: "2024-01-05", Block: 200})

	require.Equal(t, 1, store.Size())
	got, ok := store.Get("2024-01-05")
	require.True(t, ok)
	require.Equal(t, uint64(200), got.Block)
}

func TestRowsSortedByDate(t *testing.T) {
	store := New()
	store.Put(snapshot.Row{Date: "2024-01-07"})
	store.Put(snapshot.Row{Date: "2024-01-05"})
	store.Put(snapshot.Row{Date: "2024-01-06"})

	rows := store.Rows()
	require.Len(t, rows, 3)
	require.Equal(t, "2024-01-05", rows[0].Date)
	require.Equal(t, "2024-01-06", rows[1].Date)
	require.Equal(t, "2024-01-07", rows[2].Date)
}

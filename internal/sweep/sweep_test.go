package sweep

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/grassrootseconomics/supply-snapshot/internal/ledger"
	"github.com/grassrootseconomics/supply-snapshot/internal/pool"
	"github.com/grassrootseconomics/supply-snapshot/internal/stats"
	"github.com/stretchr/testify/require"
)

// stubProcessor marks the ledger for every date except those in failOn,
// mirroring the completion contract of the real processor.
type stubProcessor struct {
	mu        sync.Mutex
	startDate time.Time
	ledger    *ledger.Ledger
	failOn    map[string]struct{}
	processed []string
}

func (s *stubProcessor) ProcessDate(_ context.Context, date time.Time) error {
	s.mu.Lock()
	s.processed = append(s.processed, date.Format(time.DateOnly))
	s.mu.Unlock()

	if _, ok := s.failOn[date.Format(time.DateOnly)]; ok {
		return fmt.Errorf("no block resolved for %s", date.Format(time.DateOnly))
	}

	s.ledger.MarkDone(uint(date.Sub(s.startDate).Hours() / 24))
	return nil
}

func date(s string) time.Time {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestDayCount(t *testing.T) {
	require.Equal(t, 1, DayCount(date("2024-01-01"), date("2024-01-01")))
	require.Equal(t, 7, DayCount(date("2024-01-01"), date("2024-01-07")))
	require.Equal(t, 32, DayCount(date("2024-01-01"), date("2024-02-01")))
}

func TestRunProcessesEveryDate(t *testing.T) {
	logg := slog.New(slog.NewTextHandler(io.Discard, nil))
	from, to := date("2024-01-01"), date("2024-01-07")

	led := ledger.New(uint(DayCount(from, to)))
	proc := &stubProcessor{startDate: from, ledger: led}
	workerPool := pool.New(pool.PoolOpts{
		Logg:        logg,
		WorkerCount: 3,
		Processor:   proc,
	})
	defer workerPool.Stop()

	s := New(SweepOpts{
		From:   from,
		To:     to,
		Ledger: led,
		Pool:   workerPool,
		Stats:  stats.New(stats.StatsOpts{Logg: logg}),
		Logg:   logg,
	})
	require.NoError(t, s.Run(context.Background()))

	require.Len(t, proc.processed, 7)
	require.Equal(t, uint(7), led.DoneCount())
	require.Equal(t, uint(0), led.Missing().Count())
}

func TestRunFailedDateStaysMissing(t *testing.T) {
	logg := slog.New(slog.NewTextHandler(io.Discard, nil))
	from, to := date("2024-01-01"), date("2024-01-05")

	led := ledger.New(uint(DayCount(from, to)))
	proc := &stubProcessor{
		startDate: from,
		ledger:    led,
		failOn:    map[string]struct{}{"2024-01-03": {}},
	}
	workerPool := pool.New(pool.PoolOpts{
		Logg:        logg,
		WorkerCount: 2,
		Processor:   proc,
	})
	defer workerPool.Stop()

	s := New(SweepOpts{
		From:   from,
		To:     to,
		Ledger: led,
		Pool:   workerPool,
		Stats:  stats.New(stats.StatsOpts{Logg: logg}),
		Logg:   logg,
	})
	require.NoError(t, s.Run(context.Background()), "one failed date never aborts the sweep")

	require.Len(t, proc.processed, 5, "remaining dates still processed")
	require.Equal(t, uint(4), led.DoneCount())

	missing := led.Missing()
	require.Equal(t, uint(1), missing.Count())
	require.True(t, missing.Test(2), "2024-01-03 is day offset 2")
}

func TestRunInterruptedByContext(t *testing.T) {
	logg := slog.New(slog.NewTextHandler(io.Discard, nil))
	from, to := date("2024-01-01"), date("2024-01-05")

	led := ledger.New(uint(DayCount(from, to)))
	proc := &stubProcessor{startDate: from, ledger: led}
	workerPool := pool.New(pool.PoolOpts{
		Logg:        logg,
		WorkerCount: 1,
		Processor:   proc,
	})
	defer workerPool.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(SweepOpts{
		From:   from,
		To:     to,
		Ledger: led,
		Pool:   workerPool,
		Stats:  stats.New(stats.StatsOpts{Logg: logg}),
		Logg:   logg,
	})
	require.ErrorIs(t, s.Run(ctx), context.Canceled)
}

package supply

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/grassrootseconomics/supply-snapshot/internal/chain"
	"github.com/grassrootseconomics/supply-snapshot/pkg/token"
	"github.com/stretchr/testify/require"
)

// scriptedChain replays a scripted batch behavior per attempt.
type scriptedChain struct {
	attempts int
	script   func(attempt int, blockNumber uint64, calls []chain.ContractCall) ([]chain.CallOutcome, error)
}

func (s *scriptedChain) LatestBlock(_ context.Context) (uint64, error) {
	panic("not used")
}

func (s *scriptedChain) HeaderByNumber(_ context.Context, _ uint64) (*types.Header, error) {
	panic("not used")
}

func (s *scriptedChain) CallBatch(_ context.Context, blockNumber uint64, calls []chain.ContractCall) ([]chain.CallOutcome, error) {
	s.attempts++
	return s.script(s.attempts, blockNumber, calls)
}

func newTestReader(c chain.Chain, maxAttempts int) *Reader {
	return NewReader(ReaderOpts{
		Chain:       c,
		MaxAttempts: maxAttempts,
		RetryDelay:  0,
		Logg:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func strptr(s string) *string {
	return &s
}

func testTokens(names ...string) []token.Token {
	tokens := make([]token.Token, len(names))
	for i, name := range names {
		tokens[i] = token.Token{Name: name, Contract: "0xabc", Decimals: 6}
	}
	return tokens
}

func TestReadAllDecodesSentinelsAndValues(t *testing.T) {
	sc := &scriptedChain{script: func(_ int, _ uint64, calls []chain.ContractCall) ([]chain.CallOutcome, error) {
		require.Len(t, calls, 5)
		return []chain.CallOutcome{
			{Result: strptr("0x3e8")},
			{Result: strptr("0x")},
			{Result: strptr("0x0")},
			{Result: nil},
			{Result: strptr("0xde0b6b3a7640000")},
		}, nil
	}}
	r := newTestReader(sc, 3)

	values := r.ReadAll(context.Background(), 4, testTokens("X", "EMPTY", "ZERO", "ABSENT", "BIG"))
	require.Len(t, values, 5)

	require.True(t, values["X"].Available())
	require.Equal(t, "1000", values["X"].Raw.String())

	for _, name := range []string{"EMPTY", "ZERO", "ABSENT"} {
		require.True(t, values[name].Available(), name)
		require.Zero(t, values[name].Raw.Sign(), name)
	}

	want, _ := new(big.Int).SetString("de0b6b3a7640000", 16)
	require.Zero(t, values["BIG"].Raw.Cmp(want))
	require.Equal(t, 1, sc.attempts, "a fully decoded batch needs one attempt")
}

func TestReadAllUndecodableIsUnavailableNotZero(t *testing.T) {
	sc := &scriptedChain{script: func(_ int, _ uint64, _ []chain.ContractCall) ([]chain.CallOutcome, error) {
		return []chain.CallOutcome{
			{Result: strptr("not-hex")},
			{Result: strptr("0x0")},
		}, nil
	}}
	r := newTestReader(sc, 3)

	values := r.ReadAll(context.Background(), 10, testTokens("BAD", "ZERO"))

	require.False(t, values["BAD"].Available())
	require.Nil(t, values["BAD"].Raw)
	require.True(t, values["ZERO"].Available())
	require.Zero(t, values["ZERO"].Raw.Sign())
	require.Equal(t, 3, sc.attempts, "an undecodable entry exhausts the whole-batch budget")
}

func TestReadAllRetriesWholeBatchThenSucceeds(t *testing.T) {
	const maxAttempts = 3

	sc := &scriptedChain{script: func(attempt int, _ uint64, _ []chain.ContractCall) ([]chain.CallOutcome, error) {
		if attempt < maxAttempts {
			return nil, chain.ErrUnavailable
		}
		return []chain.CallOutcome{
			{Result: strptr("0x3e8")},
			{Result: strptr("0x7d0")},
		}, nil
	}}
	r := newTestReader(sc, maxAttempts)

	values := r.ReadAll(context.Background(), 4, testTokens("A", "B"))

	require.Equal(t, maxAttempts, sc.attempts, "budget exhausted exactly")
	require.Equal(t, "1000", values["A"].Raw.String())
	require.Equal(t, "2000", values["B"].Raw.String())
}

func TestReadAllTransportExhaustedMarksAllUnavailable(t *testing.T) {
	sc := &scriptedChain{script: func(_ int, _ uint64, _ []chain.ContractCall) ([]chain.CallOutcome, error) {
		return nil, chain.ErrUnavailable
	}}
	r := newTestReader(sc, 3)

	values := r.ReadAll(context.Background(), 4, testTokens("A", "B"))

	require.Equal(t, 3, sc.attempts)
	require.Len(t, values, 2)
	require.False(t, values["A"].Available())
	require.False(t, values["B"].Available())
}

func TestReadAllPerEntryAnomalyIsLocalized(t *testing.T) {
	sc := &scriptedChain{script: func(_ int, _ uint64, _ []chain.ContractCall) ([]chain.CallOutcome, error) {
		return []chain.CallOutcome{
			{Err: chain.ErrUnavailable},
			{Result: strptr("0x5")},
		}, nil
	}}
	r := newTestReader(sc, 2)

	values := r.ReadAll(context.Background(), 4, testTokens("LOST", "OK"))

	require.False(t, values["LOST"].Available())
	require.True(t, values["OK"].Available())
	require.Equal(t, "5", values["OK"].Raw.String())
}

func TestReadAllIdempotent(t *testing.T) {
	script := func(_ int, _ uint64, _ []chain.ContractCall) ([]chain.CallOutcome, error) {
		return []chain.CallOutcome{
			{Result: strptr("0x3e8")},
			{Result: strptr("0x")},
		}, nil
	}

	first := newTestReader(&scriptedChain{script: script}, 3).ReadAll(context.Background(), 4, testTokens("A", "B"))
	second := newTestReader(&scriptedChain{script: script}, 3).ReadAll(context.Background(), 4, testTokens("A", "B"))

	require.Equal(t, first, second)
}

func TestReadAllEmptyTokenSet(t *testing.T) {
	sc := &scriptedChain{script: func(_ int, _ uint64, _ []chain.ContractCall) ([]chain.CallOutcome, error) {
		t.Fatal("no batch call expected")
		return nil, nil
	}}
	r := newTestReader(sc, 3)

	values := r.ReadAll(context.Background(), 4, nil)
	require.Empty(t, values)
	require.Zero(t, sc.attempts)
}

// Package supply reads token supply values at a fixed block height through
// batched contract calls, with a whole-batch retry on incomplete results.
package supply

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/grassrootseconomics/supply-snapshot/internal/chain"
	"github.com/grassrootseconomics/supply-snapshot/pkg/token"
)

const (
	// defaultMaxAttempts is the default total whole-batch attempt count.
	defaultMaxAttempts = 3
	// defaultRetryDelay is the default fixed delay between whole-batch attempts.
	defaultRetryDelay = 1 * time.Second
)

type (
	// Value is the decoded outcome for one token. A zero Value is Unavailable:
	// the batch round-trip happened but this entry could not be decoded after
	// exhausting the retry budget. That is a first-class outcome, distinct
	// from a genuine zero supply, which carries a non-nil zero Raw.
	Value struct {
		Raw *big.Int
	}

	// ReaderOpts contains configuration options for creating a new Reader.
	ReaderOpts struct {
		Chain       chain.Chain   // Chain client for batch calls
		MaxAttempts int           // Total whole-batch attempts
		RetryDelay  time.Duration // Fixed delay between whole-batch attempts
		Logg        *slog.Logger  // Structured logger
	}

	// Reader executes correlated supply read batches against the chain.
	Reader struct {
		chain chain.Chain
		logg  *slog.Logger
		exec  failsafe.Executor[map[string]Value]
	}
)

// Available reports whether the value was decoded successfully.
func (v Value) Available() bool {
	return v.Raw != nil
}

// NewReader creates a new Reader instance. The whole-batch retry policy
// resubmits the entire batch while any entry remains unavailable, up to the
// configured attempt budget, and surfaces the last decoded mapping as-is once
// the budget runs out.
func NewReader(o ReaderOpts) *Reader {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = defaultRetryDelay
	}

	policy := retrypolicy.Builder[map[string]Value]().
		WithMaxAttempts(o.MaxAttempts).
		WithDelay(o.RetryDelay).
		HandleIf(func(values map[string]Value, err error) bool {
			return err != nil || hasUnavailable(values)
		}).
		OnRetry(func(e failsafe.ExecutionEvent[map[string]Value]) {
			o.Logg.Warn("supply batch incomplete, resubmitting",
				"attempt", e.Attempts(),
				"max_attempts", o.MaxAttempts,
			)
		}).
		Build()

	return &Reader{
		chain: o.Chain,
		logg:  o.Logg,
		exec:  failsafe.NewExecutor(policy),
	}
}

// ReadAll reads every token's supply at blockNumber as one correlated batch
// per attempt. The returned mapping always contains an entry for every token;
// entries that could not be decoded after exhausting the retry budget are
// Unavailable. ReadAll never fails the caller: transport exhaustion degrades
// to per-entry unavailability.
func (r *Reader) ReadAll(ctx context.Context, blockNumber uint64, tokens []token.Token) map[string]Value {
	if len(tokens) == 0 {
		return map[string]Value{}
	}

	values, err := r.exec.WithContext(ctx).Get(func() (map[string]Value, error) {
		return r.readOnce(ctx, blockNumber, tokens), nil
	})
	if err == nil {
		return values
	}

	var exceeded retrypolicy.ExceededError
	if errors.As(err, &exceeded) {
		if last, ok := exceeded.LastResult.(map[string]Value); ok && last != nil {
			return last
		}
	}

	r.logg.Error("supply batch aborted", "block", blockNumber, "error", err)
	return allUnavailable(tokens)
}

// readOnce performs a single whole-batch attempt. The mapping is complete for
// every token; a whole-batch transport failure marks every entry unavailable.
func (r *Reader) readOnce(ctx context.Context, blockNumber uint64, tokens []token.Token) map[string]Value {
	calls := make([]chain.ContractCall, len(tokens))
	for i, t := range tokens {
		calls[i] = chain.ContractCall{To: t.Contract, Data: t.Data()}
	}

	outcomes, err := r.chain.CallBatch(ctx, blockNumber, calls)
	if err != nil {
		r.logg.Warn("supply batch call unavailable", "block", blockNumber, "error", err)
		return allUnavailable(tokens)
	}

	values := make(map[string]Value, len(tokens))
	for i, t := range tokens {
		v := decodeOutcome(outcomes[i])
		if !v.Available() {
			r.logg.Debug("supply entry undecodable",
				"block", blockNumber,
				"token", t.Name,
				"error", outcomes[i].Err,
			)
		}
		values[t.Name] = v
	}

	return values
}

// decodeOutcome decodes one batch entry. An absent result is a legitimate
// zero encoding on this class of contract call; an RPC error or correlation
// anomaly is not.
func decodeOutcome(outcome chain.CallOutcome) Value {
	if outcome.Err != nil {
		return Value{}
	}
	if outcome.Result == nil {
		return Value{Raw: new(big.Int)}
	}
	return decodeQuantity(*outcome.Result)
}

// decodeQuantity parses a hex-encoded return value as a big-endian unsigned
// integer. The empty-bytes sentinel decodes to zero; anything unparseable is
// Unavailable, distinct from a genuine zero value.
func decodeQuantity(encoded string) Value {
	digits := strings.TrimPrefix(encoded, "0x")
	if digits == "" {
		return Value{Raw: new(big.Int)}
	}

	n, ok := new(big.Int).SetString(digits, 16)
	if !ok || n.Sign() < 0 {
		return Value{}
	}

	return Value{Raw: n}
}

func hasUnavailable(values map[string]Value) bool {
	for _, v := range values {
		if !v.Available() {
			return true
		}
	}
	return false
}

func allUnavailable(tokens []token.Token) map[string]Value {
	values := make(map[string]Value, len(tokens))
	for _, t := range tokens {
		values[t.Name] = Value{}
	}
	return values
}

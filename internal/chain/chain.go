// Package chain provides blockchain data access for the supply-snapshot service.
// It abstracts the underlying RPC client implementation and provides a clean
// interface for the oracle calls driving block resolution and for batched
// contract state reads.
package chain

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/core/types"
)

// ErrUnavailable is returned when a physical RPC call failed on every attempt
// of its retry budget. Callers must treat it as a recoverable, per-call outcome
// rather than a fatal condition.
var ErrUnavailable = errors.New("rpc endpoint unavailable after retries")

type (
	// ContractCall is one read-only contract call to include in a batch.
	ContractCall struct {
		To   string // Contract address (hex)
		Data string // Call data (hex encoded selector plus arguments)
	}

	// CallOutcome is the per-entry outcome of a batch call, demultiplexed by
	// request id. Result is nil when the matched response carried no result
	// value. Err is set for RPC error objects and correlation anomalies
	// (missing, duplicate or unmatched response ids); it never reflects a
	// whole-batch transport failure, which CallBatch reports as its own error.
	CallOutcome struct {
		Result *string
		Err    error
	}
)

// Chain defines the interface for blockchain data access.
// Implementations handle connection management, retries and error handling;
// all methods degrade to an error wrapping ErrUnavailable once the retry
// budget for the underlying physical call is exhausted.
type Chain interface {
	// LatestBlock returns the current chain head block number.
	LatestBlock(context.Context) (uint64, error)

	// HeaderByNumber fetches a single block header by number.
	HeaderByNumber(context.Context, uint64) (*types.Header, error)

	// CallBatch executes the given contract calls against the state at
	// blockNumber as one physical batch request. The returned slice is
	// aligned with the input order regardless of the order responses arrive
	// in on the wire.
	CallBatch(context.Context, uint64, []ContractCall) ([]CallOutcome, error)
}

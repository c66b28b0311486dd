package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/lmittmann/w3"
	"github.com/lmittmann/w3/module/eth"
)

const (
	// defaultRPCClientTimeout is the default HTTP client timeout for RPC requests.
	defaultRPCClientTimeout = 10 * time.Second
	// defaultMaxAttempts is the default total attempt count for one physical call.
	defaultMaxAttempts = 3
	// defaultRetryDelay is the default fixed delay between attempts.
	defaultRetryDelay = 1 * time.Second
)

type (
	// EthRPCOpts contains configuration options for creating a new EthRPC client.
	// All values are fixed at construction time; the resulting client is safe for
	// concurrent read-only use.
	EthRPCOpts struct {
		RPCEndpoint string        // RPC endpoint URL (HTTP)
		Timeout     time.Duration // Per-request HTTP timeout
		MaxAttempts int           // Total attempts per physical call
		RetryDelay  time.Duration // Fixed delay between attempts
		Logg        *slog.Logger  // Structured logger
	}

	// EthRPC implements the Chain interface against a single JSON-RPC endpoint.
	// Oracle calls (head number, block headers) go through the w3 client for
	// efficient request building; contract call batches are issued as raw
	// JSON-RPC so that per-entry result, error and absence states stay
	// distinguishable for the decode layer.
	EthRPC struct {
		endpoint   string
		httpClient *http.Client
		w3Client   *w3.Client
		logg       *slog.Logger

		latestExec failsafe.Executor[uint64]
		headerExec failsafe.Executor[*types.Header]
		batchExec  failsafe.Executor[[]rpcResponse]
	}

	// rpcRequest is one JSON-RPC 2.0 request within a batch.
	rpcRequest struct {
		JSONRPC string `json:"jsonrpc"`
		ID      int    `json:"id"`
		Method  string `json:"method"`
		Params  []any  `json:"params"`
	}

	// rpcError is the error object of a JSON-RPC 2.0 response.
	rpcError struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}

	// rpcResponse is one JSON-RPC 2.0 response within a batch. A nil ID marks a
	// response that cannot be correlated at all.
	rpcResponse struct {
		ID     *int      `json:"id"`
		Result *string   `json:"result"`
		Error  *rpcError `json:"error"`
	}

	// ethCallParams is the first positional parameter of eth_call.
	ethCallParams struct {
		To   string `json:"to"`
		Data string `json:"data"`
	}
)

// NewRPCFetcher creates a new Chain implementation using HTTP RPC.
// It configures a low-timeout HTTP client for fast failure detection and
// wraps every operation in a fixed-delay retry policy.
func NewRPCFetcher(o EthRPCOpts) (Chain, error) {
	if o.Timeout <= 0 {
		o.Timeout = defaultRPCClientTimeout
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = defaultRetryDelay
	}

	httpClient := &http.Client{
		Timeout: o.Timeout,
	}

	rpcClient, err := rpc.DialOptions(context.Background(), o.RPCEndpoint, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, err
	}

	return &EthRPC{
		endpoint:   o.RPCEndpoint,
		httpClient: httpClient,
		w3Client:   w3.NewClient(rpcClient),
		logg:       o.Logg,
		latestExec: failsafe.NewExecutor(newRetryPolicy[uint64]("eth_blockNumber", o)),
		headerExec: failsafe.NewExecutor(newRetryPolicy[*types.Header]("eth_getBlockByNumber", o)),
		batchExec:  failsafe.NewExecutor(newRetryPolicy[[]rpcResponse]("eth_call_batch", o)),
	}, nil
}

// newRetryPolicy builds the per-method retry policy: a fixed attempt budget
// with a fixed inter-attempt delay. Each retry emits a diagnostic notice and
// bumps the retry counter; neither alters retry counting or outcomes.
func newRetryPolicy[T any](method string, o EthRPCOpts) retrypolicy.RetryPolicy[T] {
	return retrypolicy.Builder[T]().
		WithMaxAttempts(o.MaxAttempts).
		WithDelay(o.RetryDelay).
		OnRetry(func(e failsafe.ExecutionEvent[T]) {
			metrics.GetOrCreateCounter(fmt.Sprintf(`rpc_retries_total{method=%q}`, method)).Inc()
			o.Logg.Warn("rpc call failed, retrying",
				"method", method,
				"attempt", e.Attempts(),
				"max_attempts", o.MaxAttempts,
				"error", e.LastError(),
			)
		}).
		Build()
}

// translateExhausted maps a failed failsafe execution onto ErrUnavailable,
// preserving the last underlying cause for diagnostics.
func translateExhausted(method string, err error) error {
	var exceeded retrypolicy.ExceededError
	if errors.As(err, &exceeded) {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, method, exceeded.LastError)
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, method, err)
}

// LatestBlock returns the latest block number from the chain.
func (c *EthRPC) LatestBlock(ctx context.Context) (uint64, error) {
	metrics.GetOrCreateCounter(`rpc_calls_total{method="eth_blockNumber"}`).Inc()

	blockNumber, err := c.latestExec.WithContext(ctx).Get(func() (uint64, error) {
		var latestBlock *big.Int
		if err := c.w3Client.CallCtx(ctx, eth.BlockNumber().Returns(&latestBlock)); err != nil {
			return 0, err
		}
		return latestBlock.Uint64(), nil
	})
	if err != nil {
		metrics.GetOrCreateCounter(`rpc_failures_total{method="eth_blockNumber"}`).Inc()
		return 0, translateExhausted("eth_blockNumber", err)
	}

	return blockNumber, nil
}

// HeaderByNumber fetches a single block header by its number.
func (c *EthRPC) HeaderByNumber(ctx context.Context, blockNumber uint64) (*types.Header, error) {
	metrics.GetOrCreateCounter(`rpc_calls_total{method="eth_getBlockByNumber"}`).Inc()

	header, err := c.headerExec.WithContext(ctx).Get(func() (*types.Header, error) {
		var header *types.Header
		headerCall := eth.HeaderByNumber(new(big.Int).SetUint64(blockNumber)).Returns(&header)
		if err := c.w3Client.CallCtx(ctx, headerCall); err != nil {
			return nil, err
		}
		return header, nil
	})
	if err != nil {
		metrics.GetOrCreateCounter(`rpc_failures_total{method="eth_getBlockByNumber"}`).Inc()
		return nil, translateExhausted("eth_getBlockByNumber", err)
	}

	return header, nil
}

// CallBatch executes all contract calls as one physical JSON-RPC batch against
// the state at blockNumber. Request ids are assigned by position; the response
// set is treated as an unordered collection keyed by id, never positional.
func (c *EthRPC) CallBatch(ctx context.Context, blockNumber uint64, calls []ContractCall) ([]CallOutcome, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	metrics.GetOrCreateCounter(`rpc_calls_total{method="eth_call_batch"}`).Inc()

	payload := make([]rpcRequest, len(calls))
	for i, call := range calls {
		payload[i] = rpcRequest{
			JSONRPC: "2.0",
			ID:      i,
			Method:  "eth_call",
			Params: []any{
				ethCallParams{To: call.To, Data: call.Data},
				hexutil.EncodeUint64(blockNumber),
			},
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch payload: %w", err)
	}

	responses, err := c.batchExec.WithContext(ctx).Get(func() ([]rpcResponse, error) {
		return c.postBatch(ctx, body)
	})
	if err != nil {
		metrics.GetOrCreateCounter(`rpc_failures_total{method="eth_call_batch"}`).Inc()
		return nil, translateExhausted("eth_call_batch", err)
	}

	return c.demux(responses, len(calls)), nil
}

// postBatch performs one physical batch attempt. Any connection error, non-2xx
// status or malformed body counts as a transport failure for the retry policy.
func (c *EthRPC) postBatch(ctx context.Context, body []byte) ([]rpcResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("batch call returned status %d", resp.StatusCode)
	}

	var responses []rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&responses); err != nil {
		return nil, fmt.Errorf("failed to decode batch response: %w", err)
	}

	return responses, nil
}

// demux correlates batch responses to their originating requests by id.
// Duplicate or unmatched ids and missing responses are per-entry anomalies,
// recorded in the affected outcome without disturbing sibling entries.
func (c *EthRPC) demux(responses []rpcResponse, requestCount int) []CallOutcome {
	outcomes := make([]CallOutcome, requestCount)
	matched := make([]bool, requestCount)

	for _, resp := range responses {
		if resp.ID == nil || *resp.ID < 0 || *resp.ID >= requestCount {
			c.logg.Warn("dropping batch response with unmatched id")
			continue
		}

		i := *resp.ID
		if matched[i] {
			c.logg.Warn("duplicate batch response id", "id", i)
			outcomes[i] = CallOutcome{Err: fmt.Errorf("duplicate response for request id %d", i)}
			continue
		}
		matched[i] = true

		if resp.Error != nil {
			outcomes[i] = CallOutcome{Err: fmt.Errorf("rpc error %d: %s", resp.Error.Code, resp.Error.Message)}
			continue
		}

		outcomes[i] = CallOutcome{Result: resp.Result}
	}

	for i := range outcomes {
		if !matched[i] {
			outcomes[i] = CallOutcome{Err: fmt.Errorf("no response for request id %d", i)}
		}
	}

	return outcomes
}

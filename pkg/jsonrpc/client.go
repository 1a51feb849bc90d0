package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// requestEnvelope is the wire shape of a JSON-RPC 2.0 request. Params is
// pre-serialized once per Call and reused across every retry attempt;
// omitting it entirely (via omitempty on a nil/empty RawMessage) is how a
// method with nothing to send — e.g. eth_blockNumber — skips the field, since
// the provider rejects an explicit `"params":null`.
type requestEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcErrorObj struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// responseEnvelope decodes any of the three wire shapes a provider can
// return: Success (Result set), Error (Error set), or Notification (neither
// Error nor ID set) — the last of which is a protocol violation over HTTP.
type responseEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcErrorObj    `json:"error,omitempty"`
}

// OnAttemptFunc observes every individual HTTP attempt a Call makes,
// including retries, regardless of the eventual outcome. It is nil-safe to
// leave unset; metrics/tracing adapters hook in here instead of the core
// owning its own instrumentation.
type OnAttemptFunc func(method string, attempt int, rtt time.Duration, err error)

// ClientConfig configures a Client. BaseURL and Transport are required;
// everything else defaults.
type ClientConfig struct {
	BaseURL     string
	Transport   Transport
	RetryPolicy RetryPolicy
	Logger      *slog.Logger
	Clock       clockwork.Clock
	OnAttempt   OnAttemptFunc
}

func (c *ClientConfig) validate() error {
	if c.BaseURL == "" {
		return errors.New("jsonrpc: base url is required")
	}
	if c.Transport == nil {
		return errors.New("jsonrpc: transport is required")
	}
	if err := c.RetryPolicy.Validate(); err != nil {
		return err
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Client is a JSON-RPC 2.0 client multiplexed over a pluggable Transport,
// with a policy-driven retry loop. The id counter and in-flight counter are
// single-word atomics read with sequentially-consistent ordering (Go's
// default for sync/atomic) so the two can be cross-examined consistently by
// concurrent callers.
type Client struct {
	baseURL     string
	transport   Transport
	retryPolicy RetryPolicy
	log         *slog.Logger
	clock       clockwork.Clock
	onAttempt   OnAttemptFunc

	nextID           atomic.Uint64
	requestsInFlight atomic.Int64
}

// NewClient constructs a Client from cfg, filling defaults and validating
// the retry policy.
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		transport:   cfg.Transport,
		retryPolicy: cfg.RetryPolicy,
		log:         cfg.Logger,
		clock:       cfg.Clock,
		onAttempt:   cfg.OnAttempt,
	}, nil
}

// Clone returns a fresh logical client: same URL, transport, and retry
// policy, but a reset id counter (starting at 1 again) and a zeroed
// in-flight counter. Request ids are therefore unique only within one
// Client/Clone instance, not across a clone lineage.
func (c *Client) Clone() *Client {
	return &Client{
		baseURL:     c.baseURL,
		transport:   c.transport,
		retryPolicy: c.retryPolicy,
		log:         c.log,
		clock:       c.clock,
		onAttempt:   c.onAttempt,
	}
}

// RequestsEnqueued returns the number of Call invocations currently
// executing or sleeping between retries.
func (c *Client) RequestsEnqueued() int64 {
	return c.requestsInFlight.Load()
}

// Call performs method with params (may be nil) and decodes the JSON-RPC
// result into A, driving the retry loop until a terminal outcome. Each Call
// is an independent state machine; concurrent Calls on one Client interleave
// freely on the shared id/in-flight counters.
func Call[A any](ctx context.Context, c *Client, method string, params any) (A, error) {
	var zero A

	var paramsRaw json.RawMessage
	// A zero-sized expected result (e.g. A == struct{}{}) elides params
	// entirely, matching the provider-side skip-if-empty convention;
	// otherwise params is omitted only when the caller has nothing to send.
	if params != nil && reflect.TypeFor[A]().Size() != 0 {
		raw, err := json.Marshal(params)
		if err != nil {
			return zero, fmt.Errorf("jsonrpc: failed to encode params: %w", err)
		}
		paramsRaw = raw
	}

	c.requestsInFlight.Add(1)
	defer c.requestsInFlight.Add(-1)

	var numRetries uint32
	for {
		id := c.nextID.Add(1)
		body, err := json.Marshal(requestEnvelope{
			JSONRPC: "2.0",
			ID:      id,
			Method:  method,
			Params:  paramsRaw,
		})
		if err != nil {
			return zero, fmt.Errorf("jsonrpc: failed to encode request: %w", err)
		}

		start := c.clock.Now()
		respBody, transportErr := c.transport.Post(ctx, c.baseURL, body)
		elapsed := c.clock.Since(start)

		var result A
		var callErr error
		if transportErr != nil {
			var hre *HTTPRequestError
			if !errors.As(transportErr, &hre) {
				hre = NewUnknownHTTPError(transportErr.Error())
			}
			callErr = NewBackendError(hre)
		} else {
			result, callErr = decodeResult[A](respBody)
		}

		if c.onAttempt != nil {
			c.onAttempt(method, int(numRetries+1), elapsed, callErr)
		}

		if callErr == nil {
			c.log.Debug("jsonrpc call succeeded", "method", method, "id", id, "attempt", numRetries+1, "elapsed", elapsed)
			return result, nil
		}

		numRetries++
		action := c.retryPolicy.NextAction(callErr, numRetries, uint32(c.requestsInFlight.Load()))
		if !action.Retry {
			c.log.Warn("jsonrpc call failed, not retrying", "method", method, "id", id, "attempts", numRetries, "error", callErr)
			return zero, callErr
		}

		c.log.Debug("jsonrpc call failed, retrying", "method", method, "id", id, "attempt", numRetries, "delay", action.After, "error", callErr)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-c.clock.After(action.After):
		}
	}
}

func decodeResult[A any](body []byte) (A, error) {
	var zero A

	var env responseEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return zero, NewSerdeError(err, string(body))
	}

	if env.Error != nil {
		return zero, NewJSONRPCError(env.Error.Code, env.Error.Message, env.Error.Data)
	}

	if env.ID == nil {
		return zero, NewSerdeError(errors.New("jsonrpc: notification response is a protocol violation over http"), string(body))
	}

	if env.Result == nil {
		return zero, NewSerdeError(errors.New("jsonrpc: response has neither result nor error"), string(body))
	}

	out := new(A)
	if err := json.Unmarshal(env.Result, out); err != nil {
		return zero, NewSerdeError(err, string(body))
	}
	return *out, nil
}

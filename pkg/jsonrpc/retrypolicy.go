package jsonrpc

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"
)

// RetryAction is the outcome of consulting a RetryPolicy: either the attempt
// is terminal (NoRetry) or the caller should sleep for After and retry.
type RetryAction struct {
	Retry bool
	After time.Duration
}

// NoRetryAction reports a terminal failure.
func NoRetryAction() RetryAction { return RetryAction{} }

// RetryAfterAction reports that the caller should sleep After then retry.
func RetryAfterAction(after time.Duration) RetryAction {
	return RetryAction{Retry: true, After: after}
}

// RetryPolicy is a small, trivially-copyable strategy object: the sole
// operation an RPC client needs from it is NextAction, a pure
// function of (error, attempts-so-far, current queue depth). Each Client
// owns its own copy; cloning a Client clones the policy value.
type RetryPolicy struct {
	MinRetries               uint32
	MaxRetries               *uint32 // nil == unbounded
	InitialBackoff           time.Duration
	BackoffCoefficient       float64
	MaxBackoff               time.Duration
	BackoffOnTransportErrors bool
	RetryableJSONRPCErrors   map[int64]struct{}
	RetryableHTTPErrors      map[int]struct{}
	MaxRetryQueueSize        uint32
}

// DefaultMaxRetries is the MaxRetries cap NewDefaultRetryPolicy sets. A
// RetryPolicy whose MaxRetries is nil retries without bound.
const DefaultMaxRetries uint32 = 12

// NewDefaultRetryPolicy returns a RetryPolicy with every field set to its
// documented default.
func NewDefaultRetryPolicy() RetryPolicy {
	max := DefaultMaxRetries
	return RetryPolicy{
		MinRetries:               0,
		MaxRetries:               &max,
		InitialBackoff:           1 * time.Second,
		BackoffCoefficient:       0.3,
		MaxBackoff:               30 * time.Second,
		BackoffOnTransportErrors: false,
		RetryableJSONRPCErrors:   map[int64]struct{}{-32005: {}, -32016: {}, 429: {}},
		RetryableHTTPErrors:      map[int]struct{}{429: {}, 503: {}, 504: {}},
		MaxRetryQueueSize:        100,
	}
}

// Validate fills in a zero InitialBackoff, MaxBackoff and MaxRetryQueueSize
// and nil retryable-error sets with their documented defaults, and rejects
// invalid configurations. MinRetries, MaxRetries (nil stays unbounded) and
// BackoffCoefficient (0 stays flat) are kept as given. The invalid
// configurations are MaxRetryQueueSize < 5 and a negative
// BackoffCoefficient. Call it once after constructing a
// RetryPolicy by hand; NewDefaultRetryPolicy is already valid.
func (p *RetryPolicy) Validate() error {
	if p.InitialBackoff == 0 {
		p.InitialBackoff = 1 * time.Second
	}
	if p.BackoffCoefficient < 0 {
		return errors.New("jsonrpc: backoff coefficient must be >= 0")
	}
	if p.MaxBackoff == 0 {
		p.MaxBackoff = 30 * time.Second
	}
	if p.RetryableJSONRPCErrors == nil {
		p.RetryableJSONRPCErrors = map[int64]struct{}{-32005: {}, -32016: {}, 429: {}}
	}
	if p.RetryableHTTPErrors == nil {
		p.RetryableHTTPErrors = map[int]struct{}{429: {}, 503: {}, 504: {}}
	}
	if p.MaxRetryQueueSize == 0 {
		p.MaxRetryQueueSize = 100
	}
	if p.MaxRetryQueueSize < 5 {
		return errors.New("jsonrpc: max retry queue size must be >= 5")
	}
	return nil
}

// NextAction implements the retry classification algorithm in order:
// max_retries cutoff, queue-size cap, backoff computation, min_retries
// override, then per-error-kind classification.
func (p *RetryPolicy) NextAction(err error, numRetries, retryQueueSize uint32) RetryAction {
	if p.MaxRetries != nil && numRetries > *p.MaxRetries {
		return NoRetryAction()
	}
	if retryQueueSize > p.MaxRetryQueueSize {
		return NoRetryAction()
	}

	backoff := p.computeBackoff(numRetries)

	if numRetries <= p.MinRetries {
		return RetryAfterAction(backoff)
	}

	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		return NoRetryAction()
	}

	switch clientErr.Kind {
	case ClientErrorJSONRPC:
		if p.jsonRPCCodeRetryable(clientErr.Code) || strings.Contains(clientErr.Message, "rate limit") {
			return RetryAfterAction(backoff)
		}
		return NoRetryAction()

	case ClientErrorBackend:
		return p.classifyBackend(clientErr.Backend, backoff)

	case ClientErrorSerde:
		return p.classifySerde(clientErr.SerdeText, backoff)

	default:
		return NoRetryAction()
	}
}

func (p *RetryPolicy) classifyBackend(backend *HTTPRequestError, backoff time.Duration) RetryAction {
	if backend == nil {
		return NoRetryAction()
	}
	switch backend.Kind {
	case HTTPErrorStatus:
		if _, ok := p.RetryableHTTPErrors[backend.Status]; ok {
			return RetryAfterAction(backoff)
		}
		return NoRetryAction()
	case HTTPErrorTimeout, HTTPErrorTransport, HTTPErrorUnknown:
		if p.BackoffOnTransportErrors {
			return RetryAfterAction(backoff)
		}
		return RetryAfterAction(p.InitialBackoff)
	default:
		return NoRetryAction()
	}
}

// embeddedJSONRPCError is the shape providers sometimes emit for a failure
// that omits the envelope `id` entirely: a bare {"error": {...}} body that
// fails normal Response decoding and falls through to the Serde path.
type embeddedJSONRPCError struct {
	Error struct {
		Code    int64  `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *RetryPolicy) classifySerde(text string, backoff time.Duration) RetryAction {
	var reparsed embeddedJSONRPCError
	if err := json.Unmarshal([]byte(text), &reparsed); err != nil {
		return NoRetryAction()
	}
	if reparsed.Error.Code == 0 && reparsed.Error.Message == "" {
		return NoRetryAction()
	}
	if p.jsonRPCCodeRetryable(reparsed.Error.Code) {
		return RetryAfterAction(backoff)
	}
	return NoRetryAction()
}

func (p *RetryPolicy) jsonRPCCodeRetryable(code int64) bool {
	_, ok := p.RetryableJSONRPCErrors[code]
	return ok
}

// computeBackoff implements backoff = min(initial * (1+coeff)^(n-1), max).
// This backoff formula is hand-written rather than
// delegated to a library curve — see DESIGN.md.
func (p *RetryPolicy) computeBackoff(numRetries uint32) time.Duration {
	if numRetries == 0 {
		numRetries = 1
	}
	exp := float64(numRetries - 1)
	factor := math.Pow(1+p.BackoffCoefficient, exp)
	d := time.Duration(float64(p.InitialBackoff) * factor)
	if d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

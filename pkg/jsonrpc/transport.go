// Package jsonrpc implements a transport-agnostic JSON-RPC 2.0 client for an
// Ethereum-compatible node: a pluggable HTTP transport, a policy-driven
// retry/backoff strategy, and a record/replay snapshot transport for
// deterministic tests.
package jsonrpc

import (
	"context"
	"fmt"
	"net/http"
)

// Transport performs a single JSON-RPC HTTP round trip. It is the sole
// coupling point between Client and whatever moves bytes over the wire —
// decorators (Snapshot) and alternate backends (StdTransport,
// PooledTransport) all implement the same three methods.
type Transport interface {
	// Query performs method against url with the given body (nil for GET).
	Query(ctx context.Context, method, url string, body []byte) ([]byte, error)
	// Post is Query(ctx, http.MethodPost, url, body) with body required.
	Post(ctx context.Context, url string, body []byte) ([]byte, error)
	// Get is Query(ctx, http.MethodGet, url, nil).
	Get(ctx context.Context, url string) ([]byte, error)
}

// queryVia is shared by every Transport implementation: it validates the
// method/body pairing every Transport implementation must enforce (POST
// must have a body, GET must
// not, anything else is rejected) before handing off to do.
func queryVia(ctx context.Context, do func(ctx context.Context, method, url string, body []byte) ([]byte, error), method, url string, body []byte) ([]byte, error) {
	switch method {
	case http.MethodPost:
		if body == nil {
			return nil, NewUnknownHTTPError("POST requires a body")
		}
	case http.MethodGet:
		if body != nil {
			return nil, NewUnknownHTTPError("GET must not have a body")
		}
	default:
		return nil, NewUnknownHTTPError(fmt.Sprintf("unsupported method %q", method))
	}
	return do(ctx, method, url, body)
}

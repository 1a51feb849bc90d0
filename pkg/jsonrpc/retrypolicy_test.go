package jsonrpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_Validate(t *testing.T) {
	t.Parallel()

	t.Run("fills defaults", func(t *testing.T) {
		t.Parallel()
		p := RetryPolicy{}
		require.NoError(t, p.Validate())
		require.Equal(t, 1*time.Second, p.InitialBackoff)
		require.Equal(t, 30*time.Second, p.MaxBackoff)
		require.Equal(t, uint32(100), p.MaxRetryQueueSize)
		require.NotNil(t, p.RetryableJSONRPCErrors)
		require.NotNil(t, p.RetryableHTTPErrors)
	})

	t.Run("rejects negative coefficient", func(t *testing.T) {
		t.Parallel()
		p := RetryPolicy{BackoffCoefficient: -1}
		require.Error(t, p.Validate())
	})

	t.Run("rejects too-small queue size", func(t *testing.T) {
		t.Parallel()
		p := RetryPolicy{MaxRetryQueueSize: 1}
		require.Error(t, p.Validate())
	})

	t.Run("default policy is already valid", func(t *testing.T) {
		t.Parallel()
		p := NewDefaultRetryPolicy()
		require.NoError(t, p.Validate())
	})
}

func TestRetryPolicy_NextAction_MaxRetriesCutoff(t *testing.T) {
	t.Parallel()

	max := uint32(2)
	p := RetryPolicy{MaxRetries: &max, MaxRetryQueueSize: 100, InitialBackoff: time.Millisecond, MaxBackoff: time.Second}
	require.NoError(t, p.Validate())

	err := NewBackendError(NewHTTPStatusError(503))

	require.True(t, p.NextAction(err, 0, 0).Retry)
	require.True(t, p.NextAction(err, 2, 0).Retry)
	require.False(t, p.NextAction(err, 3, 0).Retry)
}

func TestRetryPolicy_NextAction_QueueSizeCap(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{MaxRetryQueueSize: 10, InitialBackoff: time.Millisecond, MaxBackoff: time.Second}
	require.NoError(t, p.Validate())

	err := NewBackendError(NewHTTPStatusError(503))

	require.True(t, p.NextAction(err, 1, 10).Retry)
	require.False(t, p.NextAction(err, 1, 11).Retry)
}

func TestRetryPolicy_NextAction_MinRetriesOverridesClassification(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{MinRetries: 3, MaxRetryQueueSize: 10, InitialBackoff: time.Millisecond, MaxBackoff: time.Second}
	require.NoError(t, p.Validate())

	// An error kind that would otherwise be terminal (serde, unparsable)
	// still retries while numRetries <= MinRetries.
	err := NewSerdeError(nil, "not json at all")
	action := p.NextAction(err, 2, 0)
	require.True(t, action.Retry)

	action = p.NextAction(err, 4, 0)
	require.False(t, action.Retry)
}

func TestRetryPolicy_NextAction_JSONRPCClassification(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{MaxRetryQueueSize: 10, InitialBackoff: time.Millisecond, MaxBackoff: time.Second}
	require.NoError(t, p.Validate())

	cases := []struct {
		name string
		code int64
		msg  string
		want bool
	}{
		{"retryable code -32005", -32005, "busy", true},
		{"retryable code -32016", -32016, "busy", true},
		{"rate limit message", -1, "rate limit exceeded", true},
		{"unclassified code", -32601, "method not found", false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := NewJSONRPCError(tc.code, tc.msg, nil)
			action := p.NextAction(err, 1, 0)
			require.Equal(t, tc.want, action.Retry)
		})
	}
}

func TestRetryPolicy_NextAction_BackendClassification(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{MaxRetryQueueSize: 10, InitialBackoff: 5 * time.Millisecond, MaxBackoff: time.Second}
	require.NoError(t, p.Validate())

	t.Run("retryable status retries with computed backoff", func(t *testing.T) {
		t.Parallel()
		action := p.NextAction(NewBackendError(NewHTTPStatusError(429)), 1, 0)
		require.True(t, action.Retry)
	})

	t.Run("non-retryable status is terminal", func(t *testing.T) {
		t.Parallel()
		action := p.NextAction(NewBackendError(NewHTTPStatusError(400)), 1, 0)
		require.False(t, action.Retry)
	})

	t.Run("transport error retries with initial backoff by default", func(t *testing.T) {
		t.Parallel()
		action := p.NextAction(NewBackendError(NewTransportError("dial failed", nil)), 3, 0)
		require.True(t, action.Retry)
		require.Equal(t, p.InitialBackoff, action.After)
	})

	t.Run("transport error retries with computed backoff when configured", func(t *testing.T) {
		t.Parallel()
		p2 := p
		p2.BackoffOnTransportErrors = true
		action := p2.NextAction(NewBackendError(NewTransportError("dial failed", nil)), 3, 0)
		require.True(t, action.Retry)
		require.NotEqual(t, time.Duration(0), action.After)
	})
}

func TestRetryPolicy_NextAction_SerdeClassification(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{MaxRetryQueueSize: 10, InitialBackoff: time.Millisecond, MaxBackoff: time.Second}
	require.NoError(t, p.Validate())

	t.Run("re-parsed embedded retryable code retries", func(t *testing.T) {
		t.Parallel()
		action := p.NextAction(NewSerdeError(nil, `{"error":{"code":-32005,"message":"busy"}}`), 1, 0)
		require.True(t, action.Retry)
	})

	t.Run("unparsable text is terminal", func(t *testing.T) {
		t.Parallel()
		action := p.NextAction(NewSerdeError(nil, `not json`), 1, 0)
		require.False(t, action.Retry)
	})

	t.Run("non-rpc-shaped json is terminal", func(t *testing.T) {
		t.Parallel()
		action := p.NextAction(NewSerdeError(nil, `{"foo":"bar"}`), 1, 0)
		require.False(t, action.Retry)
	})
}

func TestRetryPolicy_ComputeBackoff_GrowsAndCaps(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{
		InitialBackoff:     100 * time.Millisecond,
		BackoffCoefficient: 1.0, // doubling
		MaxBackoff:         1 * time.Second,
	}

	require.Equal(t, 100*time.Millisecond, p.computeBackoff(1))
	require.Equal(t, 200*time.Millisecond, p.computeBackoff(2))
	require.Equal(t, 400*time.Millisecond, p.computeBackoff(3))
	require.Equal(t, 1*time.Second, p.computeBackoff(10)) // capped
}

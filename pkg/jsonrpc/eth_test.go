package jsonrpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEthMethods_DecodeHexQuantity(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		method string
		result string
		call   func(ctx context.Context, c *Client) (uint64, error)
	}{
		{"block number", MethodBlockNumber, `"0x10"`, func(ctx context.Context, c *Client) (uint64, error) { return c.BlockNumber(ctx) }},
		{"chain id", MethodChainID, `"0x1"`, func(ctx context.Context, c *Client) (uint64, error) { return c.ChainID(ctx) }},
		{"gas price", MethodGasPrice, `"0x3b9aca00"`, func(ctx context.Context, c *Client) (uint64, error) { return c.GasPrice(ctx) }},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var gotMethod string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				body := struct {
					Method string `json:"method"`
				}{}
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				gotMethod = body.Method
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":` + tc.result + `}`))
			}))
			defer srv.Close()

			c, err := NewClient(ClientConfig{BaseURL: srv.URL, Transport: NewStdTransport(DefaultTransportConfig())})
			require.NoError(t, err)

			got, err := tc.call(context.Background(), c)
			require.NoError(t, err)
			require.Equal(t, tc.method, gotMethod)
			require.Greater(t, got, uint64(0))
		})
	}
}

func TestClient_SendRawTransaction_ReturnsHash(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := struct {
			Method string   `json:"method"`
			Params []string `json:"params"`
		}{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, MethodSendRawTransaction, body.Method)
		require.Equal(t, []string{"0xdeadbeef"}, body.Params)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0xabc123"}`))
	}))
	defer srv.Close()

	c, err := NewClient(ClientConfig{BaseURL: srv.URL, Transport: NewStdTransport(DefaultTransportConfig())})
	require.NoError(t, err)

	hash, err := c.SendRawTransaction(context.Background(), "0xdeadbeef")
	require.NoError(t, err)
	require.Equal(t, "0xabc123", hash)
}

func TestParseQuantity(t *testing.T) {
	t.Parallel()

	t.Run("parses with 0x prefix", func(t *testing.T) {
		t.Parallel()
		v, err := parseQuantity("0x2a")
		require.NoError(t, err)
		require.Equal(t, uint64(42), v)
	})

	t.Run("parses without 0x prefix", func(t *testing.T) {
		t.Parallel()
		v, err := parseQuantity("2a")
		require.NoError(t, err)
		require.Equal(t, uint64(42), v)
	})

	t.Run("empty string is an error", func(t *testing.T) {
		t.Parallel()
		_, err := parseQuantity("0x")
		require.Error(t, err)
	})

	t.Run("malformed hex is an error", func(t *testing.T) {
		t.Parallel()
		_, err := parseQuantity("0xzz")
		require.Error(t, err)
	})
}

package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func vector(n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = float32(i) / float32(n)
	}
	return v
}

func newTestClient(t *testing.T, srv *httptest.Server, cfg Config) *Client {
	t.Helper()
	cfg.URL = srv.URL
	cfg.HTTPClient = srv.Client()
	cfg.Pause = func(context.Context, time.Duration) {}
	client, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	return client
}

func TestEmbedFlatVector(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "react, node", body["inputs"])
		_ = json.NewEncoder(w).Encode(vector(4))
	}))
	t.Cleanup(srv.Close)

	client := newTestClient(t, srv, Config{APIToken: "secret", Model: "bge", Dimensions: 4})
	vec, err := client.Embed(context.Background(), "react, node")
	require.NoError(t, err)
	require.Equal(t, vector(4), vec)
	require.Equal(t, "bge", client.Model())
	require.Equal(t, 4, client.Dimensions())
}

func TestEmbedBatchOfOne(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode([][]float32{vector(3)})
	}))
	t.Cleanup(srv.Close)

	vec, err := newTestClient(t, srv, Config{Dimensions: 3}).Embed(context.Background(), "text")
	require.NoError(t, err)
	require.Len(t, vec, 3)
}

func TestEmbedDimensionMismatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(vector(384))
	}))
	t.Cleanup(srv.Close)

	_, err := newTestClient(t, srv, Config{}).Embed(context.Background(), "text")
	require.ErrorIs(t, err, ErrDimensionMismatch)
	require.ErrorContains(t, err, "got 384, want 768")
}

func TestEmbedMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "object", body: `{"error":"nope"}`},
		{name: "batch of two", body: `[[1,2],[3,4]]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(srv.Close)

			_, err := newTestClient(t, srv, Config{Dimensions: 2}).Embed(context.Background(), "x")
			require.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestEmbedRetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"model loading"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(vector(2))
	}))
	t.Cleanup(srv.Close)

	vec, err := newTestClient(t, srv, Config{Dimensions: 2, MaxRetries: 2}).Embed(context.Background(), "x")
	require.NoError(t, err)
	require.Len(t, vec, 2)
	require.Equal(t, int32(2), calls.Load())
}

func TestEmbedDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	_, err := newTestClient(t, srv, Config{Dimensions: 2, MaxRetries: 3}).Embed(context.Background(), "x")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusUnauthorized, statusErr.Code)
	require.Equal(t, int32(1), calls.Load())
}

func TestNewRequiresURL(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil)
	require.Error(t, err)
}

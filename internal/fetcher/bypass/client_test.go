package bypass

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/crawler"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/policy/pacing"
)

type solverStub struct {
	mu       sync.Mutex
	commands []commandRequest
	reply    func(cmd commandRequest, call int) (int, any)
}

func (s *solverStub) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var cmd commandRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&cmd))
		s.mu.Lock()
		s.commands = append(s.commands, cmd)
		call := len(s.commands)
		s.mu.Unlock()
		status, body := s.reply(cmd, call)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"msg":"FlareSolverr is ready!"}`))
	})
	return mux
}

func (s *solverStub) recorded() []commandRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]commandRequest(nil), s.commands...)
}

type pauseRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (p *pauseRecorder) pause(_ context.Context, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delays = append(p.delays, d)
}

func newTestClient(t *testing.T, stub *solverStub, retries int, pauses *pauseRecorder) *Client {
	t.Helper()
	srv := httptest.NewServer(stub.handler(t))
	t.Cleanup(srv.Close)
	cfg := Config{
		BaseURL:    srv.URL + "/",
		MaxRetries: retries,
		Backoff:    pacing.Backoff{Base: time.Second, Max: 4 * time.Second},
		HTTPClient: srv.Client(),
	}
	if pauses != nil {
		cfg.Pause = pauses.pause
	}
	client, err := New(cfg, nil, zap.NewNop())
	require.NoError(t, err)
	return client
}

func okSolution(html string) map[string]any {
	return map[string]any{
		"status":  "ok",
		"message": "Challenge not detected!",
		"solution": map[string]any{
			"url":       "https://www.upwork.com/jobs/~01",
			"status":    200,
			"response":  html,
			"userAgent": "Mozilla/5.0",
		},
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	t.Parallel()

	_, err := New(Config{BaseURL: "  "}, nil, nil)
	require.Error(t, err)
}

func TestFetchReturnsSolutionHTML(t *testing.T) {
	t.Parallel()

	stub := &solverStub{reply: func(commandRequest, int) (int, any) {
		return http.StatusOK, okSolution("<html>posting</html>")
	}}
	client := newTestClient(t, stub, 0, nil)

	resp, err := client.Fetch(context.Background(), crawler.FetchRequest{
		URL:       "https://www.upwork.com/jobs/~01",
		SessionID: "upwork-1",
		Timeout:   45 * time.Second,
	})
	require.NoError(t, err)
	require.Equal(t, "<html>posting</html>", resp.Body)
	require.Equal(t, 200, resp.StatusCode)

	cmds := stub.recorded()
	require.Len(t, cmds, 1)
	require.Equal(t, commandRequest{
		Cmd:        "request.get",
		URL:        "https://www.upwork.com/jobs/~01",
		Session:    "upwork-1",
		MaxTimeout: 45000,
	}, cmds[0])
}

func TestFetchDefaultsMaxTimeout(t *testing.T) {
	t.Parallel()

	stub := &solverStub{reply: func(commandRequest, int) (int, any) {
		return http.StatusOK, okSolution("<html></html>")
	}}
	client := newTestClient(t, stub, 0, nil)

	_, err := client.Fetch(context.Background(), crawler.FetchRequest{URL: "https://www.upwork.com/jobs/~02"})
	require.NoError(t, err)
	require.Equal(t, int64(60000), stub.recorded()[0].MaxTimeout)
}

func TestFetchServiceErrorCarriesMessage(t *testing.T) {
	t.Parallel()

	stub := &solverStub{reply: func(commandRequest, int) (int, any) {
		return http.StatusInternalServerError, map[string]any{
			"status":  "error",
			"message": "Error solving the challenge. Timeout after 60.0 seconds.",
		}
	}}
	pauses := &pauseRecorder{}
	client := newTestClient(t, stub, 2, pauses)

	_, err := client.Fetch(context.Background(), crawler.FetchRequest{URL: "https://www.upwork.com/jobs/~03"})
	require.Error(t, err)

	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr))
	require.Equal(t, "request.get", svcErr.Command)
	require.Contains(t, svcErr.Message, "Timeout after 60.0 seconds")
	require.Len(t, stub.recorded(), 1, "service failures are not retried within the run")
	require.Empty(t, pauses.delays)
}

func TestFetchMissingSolution(t *testing.T) {
	t.Parallel()

	stub := &solverStub{reply: func(commandRequest, int) (int, any) {
		return http.StatusOK, map[string]any{"status": "ok", "message": ""}
	}}
	client := newTestClient(t, stub, 0, nil)

	_, err := client.Fetch(context.Background(), crawler.FetchRequest{URL: "https://www.upwork.com/jobs/~04"})
	require.ErrorIs(t, err, ErrNoSolution)
}

func TestFetchRetriesTransientHTTPStatus(t *testing.T) {
	t.Parallel()

	stub := &solverStub{reply: func(_ commandRequest, call int) (int, any) {
		if call < 3 {
			return http.StatusBadGateway, "upstream unavailable"
		}
		return http.StatusOK, okSolution("<html>third time</html>")
	}}
	pauses := &pauseRecorder{}
	client := newTestClient(t, stub, 2, pauses)

	resp, err := client.Fetch(context.Background(), crawler.FetchRequest{URL: "https://www.upwork.com/jobs/~05"})
	require.NoError(t, err)
	require.Equal(t, "<html>third time</html>", resp.Body)
	require.Len(t, stub.recorded(), 3)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, pauses.delays)
}

func TestFetchGivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	stub := &solverStub{reply: func(commandRequest, int) (int, any) {
		return http.StatusServiceUnavailable, "busy"
	}}
	pauses := &pauseRecorder{}
	client := newTestClient(t, stub, 1, pauses)

	_, err := client.Fetch(context.Background(), crawler.FetchRequest{URL: "https://www.upwork.com/jobs/~06"})
	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
	require.Len(t, stub.recorded(), 2)
	require.Len(t, pauses.delays, 1)
}

func TestSessionLifecycleCommands(t *testing.T) {
	t.Parallel()

	stub := &solverStub{reply: func(commandRequest, int) (int, any) {
		return http.StatusOK, map[string]any{"status": "ok", "message": "Session created successfully."}
	}}
	client := newTestClient(t, stub, 0, nil)

	require.NoError(t, client.CreateSession(context.Background(), "upwork-42"))
	require.NoError(t, client.DestroySession(context.Background(), "upwork-42"))

	cmds := stub.recorded()
	require.Len(t, cmds, 2)
	require.Equal(t, "sessions.create", cmds[0].Cmd)
	require.Equal(t, "upwork-42", cmds[0].Session)
	require.Equal(t, "sessions.destroy", cmds[1].Cmd)
}

func TestCreateSessionFailure(t *testing.T) {
	t.Parallel()

	stub := &solverStub{reply: func(commandRequest, int) (int, any) {
		return http.StatusInternalServerError, map[string]any{"status": "error", "message": "browser crashed"}
	}}
	client := newTestClient(t, stub, 0, nil)

	err := client.CreateSession(context.Background(), "upwork-1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "browser crashed")
}

func TestDestroySessionSwallowsErrors(t *testing.T) {
	t.Parallel()

	stub := &solverStub{reply: func(commandRequest, int) (int, any) {
		return http.StatusInternalServerError, map[string]any{"status": "error", "message": "session not found"}
	}}
	client := newTestClient(t, stub, 0, nil)

	require.NoError(t, client.DestroySession(context.Background(), "upwork-gone"))
}

func TestHealth(t *testing.T) {
	t.Parallel()

	stub := &solverStub{reply: func(commandRequest, int) (int, any) { return http.StatusOK, nil }}
	client := newTestClient(t, stub, 0, nil)
	require.True(t, client.Health(context.Background()))

	down, err := New(Config{BaseURL: "http://127.0.0.1:1"}, nil, nil)
	require.NoError(t, err)
	require.False(t, down.Health(context.Background()))
}

func TestHTTPStatusErrorRetryable(t *testing.T) {
	t.Parallel()

	require.True(t, (&HTTPStatusError{Code: http.StatusTooManyRequests}).Retryable())
	require.True(t, (&HTTPStatusError{Code: http.StatusBadGateway}).Retryable())
	require.False(t, (&HTTPStatusError{Code: http.StatusBadRequest}).Retryable())
}

package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/dispatcher"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeRunner) Run(_ context.Context, query string, maxItems int) (dispatcher.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if query != "" || maxItems != 0 {
		return dispatcher.Summary{}, errors.New("scheduled runs use defaults")
	}
	return dispatcher.Summary{Success: f.err == nil}, f.err
}

func TestNewValidatesSpec(t *testing.T) {
	t.Parallel()

	_, err := New("not a spec", &fakeRunner{}, zap.NewNop())
	require.Error(t, err)

	_, err = New("@every 6h", nil, zap.NewNop())
	require.Error(t, err)

	s, err := New("*/5 * * * *", &fakeRunner{}, nil)
	require.NoError(t, err)
	require.NotNil(t, s)
}

func TestTickRunsWithDefaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
	}{
		{name: "success"},
		{name: "busy", err: dispatcher.ErrBusy},
		{name: "failure", err: errors.New("boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			runner := &fakeRunner{err: tt.err}
			s, err := New("@every 6h", runner, zap.NewNop())
			require.NoError(t, err)

			s.Tick(context.Background())
			require.Equal(t, 1, runner.calls)
		})
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	s, err := New("@every 6h", &fakeRunner{}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	require.Len(t, s.cron.Entries(), 1)
	s.Stop()
}

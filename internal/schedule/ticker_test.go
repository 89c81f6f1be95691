package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/sells-group/recruit-cli/internal/model"
)

type mockRunner struct{ mock.Mock }

func (m *mockRunner) ProcessBatch(ctx context.Context, ws string, n int) (model.BatchResult, error) {
	args := m.Called(ctx, ws, n)
	return args.Get(0).(model.BatchResult), args.Error(1)
}

type mockFollowUps struct{ mock.Mock }

func (m *mockFollowUps) ScheduleAll(ctx context.Context, ws string) (int, error) {
	args := m.Called(ctx, ws)
	return args.Int(0), args.Error(1)
}

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func TestSweep_AllWorkspaces(t *testing.T) {
	enrich, email, fu := new(mockRunner), new(mockRunner), new(mockFollowUps)
	for _, ws := range []string{"ws1", "ws2"} {
		enrich.On("ProcessBatch", mock.Anything, ws, 20).Return(model.BatchResult{Processed: 3, Failed: 1}, nil).Once()
		email.On("ProcessBatch", mock.Anything, ws, 20).Return(model.BatchResult{Processed: 2}, nil).Once()
		fu.On("ScheduleAll", mock.Anything, ws).Return(4, nil).Once()
	}

	tk := NewTicker(Runners{Enrichment: enrich, Email: email, FollowUps: fu}, TickerConfig{
		Concurrency: 2, BatchSize: 20, Workspaces: []string{"ws1", "ws2"},
	})
	tk.SetClock(func() time.Time { return t0 })

	sum := tk.Sweep(context.Background())
	assert.Equal(t, int64(10), sum.Processed)
	assert.Equal(t, int64(2), sum.Failed)
	assert.Equal(t, int64(8), sum.FollowUps)
	assert.Zero(t, sum.Errors)
	enrich.AssertExpectations(t)
	email.AssertExpectations(t)
	fu.AssertExpectations(t)
}

func TestSweep_FollowUpsGatedByInterval(t *testing.T) {
	enrich, fu := new(mockRunner), new(mockFollowUps)
	enrich.On("ProcessBatch", mock.Anything, "ws1", 0).Return(model.BatchResult{}, nil)
	fu.On("ScheduleAll", mock.Anything, "ws1").Return(1, nil)

	now := t0
	tk := NewTicker(Runners{Enrichment: enrich, FollowUps: fu}, TickerConfig{
		FollowUpInterval: time.Hour, Workspaces: []string{"ws1"},
	})
	tk.SetClock(func() time.Time { return now })

	tk.Sweep(context.Background())
	now = t0.Add(30 * time.Minute)
	tk.Sweep(context.Background())
	fu.AssertNumberOfCalls(t, "ScheduleAll", 1)

	now = t0.Add(time.Hour)
	tk.Sweep(context.Background())
	fu.AssertNumberOfCalls(t, "ScheduleAll", 2)
	enrich.AssertNumberOfCalls(t, "ProcessBatch", 3)
}

func TestSweep_ErrorsDoNotStopOtherWork(t *testing.T) {
	enrich, email := new(mockRunner), new(mockRunner)
	enrich.On("ProcessBatch", mock.Anything, "ws1", 0).Return(model.BatchResult{}, errors.New("db down"))
	enrich.On("ProcessBatch", mock.Anything, "ws2", 0).Return(model.BatchResult{Processed: 1}, nil)
	email.On("ProcessBatch", mock.Anything, mock.Anything, 0).Return(model.BatchResult{Processed: 1}, nil)

	tk := NewTicker(Runners{Enrichment: enrich, Email: email}, TickerConfig{Workspaces: []string{"ws1", "ws2"}})
	sum := tk.Sweep(context.Background())

	assert.Equal(t, int64(1), sum.Errors)
	assert.Equal(t, int64(3), sum.Processed)
	email.AssertNumberOfCalls(t, "ProcessBatch", 2)
}

// gate counts callers in flight and records the peak.
type gate struct {
	mu       sync.Mutex
	inFlight int
	peak     int
}

func (g *gate) ProcessBatch(context.Context, string, int) (model.BatchResult, error) {
	g.mu.Lock()
	g.inFlight++
	g.peak = max(g.peak, g.inFlight)
	g.mu.Unlock()

	time.Sleep(20 * time.Millisecond)

	g.mu.Lock()
	g.inFlight--
	g.mu.Unlock()
	return model.BatchResult{Processed: 1}, nil
}

func TestSweep_ConcurrencyLimit(t *testing.T) {
	g := &gate{}
	tk := NewTicker(Runners{Enrichment: g, Email: g}, TickerConfig{
		Concurrency: 2, Workspaces: []string{"a", "b", "c", "d"},
	})

	sum := tk.Sweep(context.Background())
	assert.Equal(t, int64(8), sum.Processed)
	assert.LessOrEqual(t, g.peak, 2)
}

func TestTicker_RunStopsOnCancel(t *testing.T) {
	enrich := new(mockRunner)
	enrich.On("ProcessBatch", mock.Anything, "ws1", 0).Return(model.BatchResult{}, nil)
	tk := NewTicker(Runners{Enrichment: enrich}, TickerConfig{Interval: 10 * time.Millisecond, Workspaces: []string{"ws1"}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tk.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Ticker.Run did not stop after context cancellation")
	}
	assert.GreaterOrEqual(t, len(enrich.Calls), 1)
}

package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/sells-group/recruit-cli/internal/config"
	"github.com/sells-group/recruit-cli/internal/model"
	"github.com/sells-group/recruit-cli/internal/store"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	src := new(mockSource)
	checker := NewChecker(NewCollector(src, 0), NewAlerter(config.MonitoringConfig{}),
		config.MonitoringConfig{CheckIntervalSecs: 1}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_CheckSkipsFailingWorkspace(t *testing.T) {
	src := new(mockSource)
	src.On("TaskCounts", mock.Anything, "bad", mock.Anything).Return(store.QueueCounts{}, errors.New("boom"))
	src.On("TaskCounts", mock.Anything, "ws1", mock.Anything).Return(store.QueueCounts{Stuck: 3}, nil)
	src.On("EmailCounts", mock.Anything, "ws1", mock.Anything).Return(store.QueueCounts{}, nil)
	src.On("GetUsage", mock.Anything, "ws1", mock.Anything).Return(&model.UsageRecord{}, nil)

	checker := NewChecker(NewCollector(src, 0), NewAlerter(config.MonitoringConfig{}),
		config.MonitoringConfig{}, []string{"bad", "ws1"})
	assert.Equal(t, 1, checker.Check(context.Background(), zap.NewNop()))
}

package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/cost-reconciler/internal/application/service"
	"github.com/garyjia/cost-reconciler/internal/domain/entity"
)

type stubLister struct {
	ids []int64
	err error
}

func (s *stubLister) ListWithUnmappedLineItems(ctx context.Context) ([]int64, error) {
	return s.ids, s.err
}

type stubMatcher struct {
	mu        sync.Mutex
	calls     []int64
	requests  []service.MatchRequest
	failFor   map[int64]error
	unmatched []int64
}

func (s *stubMatcher) MatchAll(ctx context.Context, req service.MatchRequest) (*service.BulkMatchingResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req.ProjectID)
	s.requests = append(s.requests, req)
	if err := s.failFor[req.ProjectID]; err != nil {
		return nil, err
	}
	return &service.BulkMatchingResult{
		Success:              true,
		TotalLineItems:       2,
		MatchedItems:         1,
		UnmatchedLineItemIDs: s.unmatched,
	}, nil
}

func (s *stubMatcher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func TestMatchingWorker_RunOnce(t *testing.T) {
	matcher := &stubMatcher{failFor: map[int64]error{2: errors.New("database is locked")}}
	w := NewMatchingWorker(DefaultMatchingWorkerConfig(), &stubLister{ids: []int64{1, 2, 3}}, matcher, zap.NewNop())

	err := w.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project 2")
	assert.Equal(t, []int64{1, 2, 3}, matcher.calls, "a failing project does not stop the pass")

	status := w.Status()
	assert.Equal(t, int64(1), status.Runs)
	assert.Equal(t, int64(1), status.Failures)
	assert.NotEmpty(t, status.LastError)
}

func TestMatchingWorker_HoldsBackUnmatchedItems(t *testing.T) {
	matcher := &stubMatcher{unmatched: []int64{12, 11}}
	cfg := DefaultMatchingWorkerConfig()
	cfg.RetryUnmatchedAfter = time.Hour
	w := NewMatchingWorker(cfg, &stubLister{ids: []int64{1}}, matcher, zap.NewNop())

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	require.NoError(t, w.RunOnce(context.Background()))
	require.NoError(t, w.RunOnce(context.Background()))
	now = now.Add(2 * time.Hour)
	matcher.unmatched = nil
	require.NoError(t, w.RunOnce(context.Background()))

	require.Len(t, matcher.requests, 3)
	for _, req := range matcher.requests {
		assert.Equal(t, entity.AutoMatchableStatuses(), req.Statuses)
		assert.False(t, req.Rematch)
	}
	assert.Empty(t, matcher.requests[0].ExcludeLineItemIDs)
	assert.Equal(t, []int64{11, 12}, matcher.requests[1].ExcludeLineItemIDs)
	assert.Empty(t, matcher.requests[2].ExcludeLineItemIDs, "held back items are retried after the delay")
}

func TestMatchingWorker_ListFailure(t *testing.T) {
	matcher := &stubMatcher{}
	w := NewMatchingWorker(DefaultMatchingWorkerConfig(), &stubLister{err: errors.New("disk I/O error")}, matcher, zap.NewNop())

	assert.Error(t, w.RunOnce(context.Background()))
	assert.Zero(t, matcher.callCount())
}

func TestWorkerManager_Lifecycle(t *testing.T) {
	matcher := &stubMatcher{}
	w := NewMatchingWorker(MatchingWorkerConfig{Interval: 5 * time.Millisecond}, &stubLister{ids: []int64{7}}, matcher, zap.NewNop())

	m := NewWorkerManager(zap.NewNop())
	m.Register(w)

	require.NoError(t, m.StartAll(context.Background()))
	assert.True(t, m.IsRunning())
	assert.Error(t, m.StartAll(context.Background()))

	assert.Eventually(t, func() bool { return matcher.callCount() > 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, m.StopAll())
	assert.False(t, m.IsRunning())

	statuses := m.Statuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, "MatchingWorker", statuses[0].Name)
	assert.False(t, statuses[0].Running)

	stopped := matcher.callCount()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, matcher.callCount(), "no passes after stop")
}

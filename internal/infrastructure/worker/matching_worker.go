package worker

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/cost-reconciler/internal/application/service"
	"github.com/garyjia/cost-reconciler/internal/domain/entity"
)

// ProjectLister finds projects with line items waiting for a mapping
type ProjectLister interface {
	ListWithUnmappedLineItems(ctx context.Context) ([]int64, error)
}

// BatchMatcher runs one batch matching pass for a project
type BatchMatcher interface {
	MatchAll(ctx context.Context, req service.MatchRequest) (*service.BulkMatchingResult, error)
}

// MatchingWorkerConfig holds configuration for the auto-matching worker
type MatchingWorkerConfig struct {
	Interval   time.Duration
	RunTimeout time.Duration // per project; 0 means no limit

	// RetryUnmatchedAfter holds back items a pass could not match; 0 disables it
	RetryUnmatchedAfter time.Duration
}

// DefaultMatchingWorkerConfig returns default configuration
func DefaultMatchingWorkerConfig() MatchingWorkerConfig {
	return MatchingWorkerConfig{
		Interval:            5 * time.Minute,
		RunTimeout:          10 * time.Minute,
		RetryUnmatchedAfter: time.Hour,
	}
}

// MatchingWorker periodically matches unmapped invoice line items
type MatchingWorker struct {
	config   MatchingWorkerConfig
	projects ProjectLister
	matcher  BatchMatcher
	logger   *zap.Logger

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	runs      int64
	failures  int64
	lastError error

	// project id -> invoice line item id -> retry time
	heldBack map[int64]map[int64]time.Time
	now      func() time.Time
}

// NewMatchingWorker creates a new auto-matching worker
func NewMatchingWorker(config MatchingWorkerConfig, projects ProjectLister, matcher BatchMatcher, logger *zap.Logger) *MatchingWorker {
	if config.Interval <= 0 {
		config.Interval = DefaultMatchingWorkerConfig().Interval
	}
	return &MatchingWorker{
		config:   config,
		projects: projects,
		matcher:  matcher,
		logger:   logger,
		heldBack: make(map[int64]map[int64]time.Time),
		now:      time.Now,
	}
}

// Name returns the worker name for identification
func (w *MatchingWorker) Name() string {
	return "MatchingWorker"
}

// Start begins the polling loop
func (w *MatchingWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("matching worker already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true

	w.logger.Info("MatchingWorker started", zap.Duration("interval", w.config.Interval))
	go w.loop(loopCtx, w.done)
	return nil
}

// Stop cancels the loop and waits for an in-progress pass to return
func (w *MatchingWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done
	return nil
}

func (w *MatchingWorker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("Auto-matching pass failed", zap.Error(err))
			}
		}
	}
}

// RunOnce matches every project that has unmapped line items. A failing
// project is logged and the pass moves on to the next one.
func (w *MatchingWorker) RunOnce(ctx context.Context) error {
	ids, err := w.projects.ListWithUnmappedLineItems(ctx)
	if err != nil {
		w.record(err)
		return fmt.Errorf("list projects: %w", err)
	}

	var lastErr error
	for _, projectID := range ids {
		if ctx.Err() != nil {
			break
		}
		if err := w.matchProject(ctx, projectID); err != nil {
			w.logger.Error("Auto-matching failed", zap.Int64("project_id", projectID), zap.Error(err))
			lastErr = err
		}
	}

	w.record(lastErr)
	return lastErr
}

func (w *MatchingWorker) matchProject(ctx context.Context, projectID int64) error {
	if w.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.RunTimeout)
		defer cancel()
	}

	held := w.heldBackItems(projectID)
	result, err := w.matcher.MatchAll(ctx, service.MatchRequest{
		ProjectID:          projectID,
		Statuses:           entity.AutoMatchableStatuses(),
		ExcludeLineItemIDs: held,
	})
	if err != nil {
		return fmt.Errorf("project %d: %w", projectID, err)
	}
	if result.Success {
		w.holdBack(projectID, result.UnmatchedLineItemIDs)
	}

	w.logger.Info("Auto-matching completed",
		zap.Int64("project_id", projectID),
		zap.Int("line_items", result.TotalLineItems),
		zap.Int("matched", result.MatchedItems),
		zap.Int("held_back", len(held)),
		zap.Bool("success", result.Success))
	return nil
}

// heldBackItems returns the project's items still waiting for their retry time
func (w *MatchingWorker) heldBackItems(projectID int64) []int64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	items := w.heldBack[projectID]
	now := w.now()
	ids := make([]int64, 0, len(items))
	for id, retryAt := range items {
		if !now.Before(retryAt) {
			delete(items, id)
			continue
		}
		ids = append(ids, id)
	}
	if len(items) == 0 {
		delete(w.heldBack, projectID)
	}
	slices.Sort(ids)
	return ids
}

func (w *MatchingWorker) holdBack(projectID int64, ids []int64) {
	if w.config.RetryUnmatchedAfter <= 0 || len(ids) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	items, ok := w.heldBack[projectID]
	if !ok {
		items = make(map[int64]time.Time, len(ids))
		w.heldBack[projectID] = items
	}
	retryAt := w.now().Add(w.config.RetryUnmatchedAfter)
	for _, id := range ids {
		items[id] = retryAt
	}
}

func (w *MatchingWorker) record(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.runs++
	if err != nil {
		w.failures++
	}
	w.lastError = err
}

// Status implements Reporter
func (w *MatchingWorker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := Status{Name: w.Name(), Running: w.running, Runs: w.runs, Failures: w.failures}
	if w.lastError != nil {
		s.LastError = w.lastError.Error()
	}
	return s
}

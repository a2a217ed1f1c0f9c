package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Worker defines the interface for background workers
type Worker interface {
	Start(ctx context.Context) error
	Stop() error
	Name() string
}

// Status is a point-in-time view of a worker, for health output
type Status struct {
	Name      string `json:"name"`
	Running   bool   `json:"running"`
	Runs      int64  `json:"runs"`
	Failures  int64  `json:"failures"`
	LastError string `json:"last_error,omitempty"`
}

// Reporter is implemented by workers that expose a Status
type Reporter interface {
	Status() Status
}

// WorkerManager starts and stops a set of workers together
type WorkerManager struct {
	workers []Worker
	logger  *zap.Logger

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
}

// NewWorkerManager creates a new worker manager
func NewWorkerManager(logger *zap.Logger) *WorkerManager {
	return &WorkerManager{logger: logger}
}

// Register adds a worker to be managed
func (m *WorkerManager) Register(worker Worker) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.workers = append(m.workers, worker)
	m.logger.Info("Worker registered",
		zap.String("worker_name", worker.Name()),
		zap.Int("total_workers", len(m.workers)))
}

// StartAll starts every registered worker. A worker that fails to start is
// logged and skipped; the error lists all such workers.
func (m *WorkerManager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("workers already running")
	}
	var workerCtx context.Context
	workerCtx, m.cancel = context.WithCancel(ctx)
	m.running = true
	workers := append([]Worker(nil), m.workers...)
	m.mu.Unlock()

	m.logger.Info("Starting all workers", zap.Int("count", len(workers)))

	var errs []error
	for _, w := range workers {
		if err := w.Start(workerCtx); err != nil {
			m.logger.Error("Failed to start worker", zap.String("worker_name", w.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", w.Name(), err))
			continue
		}
		m.logger.Info("Worker started", zap.String("worker_name", w.Name()))
	}

	return errors.Join(errs...)
}

// StopAll cancels the shared context and stops every worker
func (m *WorkerManager) StopAll() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	cancel := m.cancel
	workers := append([]Worker(nil), m.workers...)
	m.mu.Unlock()

	m.logger.Info("Stopping all workers", zap.Int("count", len(workers)))
	cancel()

	var errs []error
	for _, w := range workers {
		if err := w.Stop(); err != nil {
			m.logger.Error("Failed to stop worker", zap.String("worker_name", w.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", w.Name(), err))
			continue
		}
		m.logger.Info("Worker stopped", zap.String("worker_name", w.Name()))
	}

	return errors.Join(errs...)
}

// Statuses reports every worker that implements Reporter
func (m *WorkerManager) Statuses() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make([]Status, 0, len(m.workers))
	for _, w := range m.workers {
		if r, ok := w.(Reporter); ok {
			statuses = append(statuses, r.Status())
		}
	}
	return statuses
}

// IsRunning returns whether workers are running
func (m *WorkerManager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

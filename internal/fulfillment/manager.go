package fulfillment

import (
	"context"
	"log/slog"
	"sync"

	"github.com/santagram/santagram/internal/orders"
	"github.com/santagram/santagram/internal/poll"
)

// Manager serializes engine invocations per order and runs background
// continuations. The per-order lock narrows the concurrent-trigger
// window; it is an in-process guard, not a distributed lock, and the
// engine's state guards remain the real safety mechanism.
type Manager struct {
	engine *Engine
	logger *slog.Logger

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	running map[string]bool
	wg      sync.WaitGroup
}

// NewManager creates a Manager for the given engine.
func NewManager(engine *Engine, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		engine:  engine,
		logger:  logger.With("component", "fulfillment"),
		locks:   make(map[string]*sync.Mutex),
		running: make(map[string]bool),
	}
}

// Advance runs one engine transition under the order's lock. All
// request-path triggers go through here.
func (m *Manager) Advance(ctx context.Context, docID string) (*orders.Order, error) {
	lock := m.lockFor(docID)
	lock.Lock()
	o, err := m.engine.Advance(ctx, docID)
	lock.Unlock()
	m.releaseIfTerminal(docID, o)
	return o, err
}

// Complete finishes an order from a delivered video URL, for webhook
// handlers. Runs under the order's lock.
func (m *Manager) Complete(ctx context.Context, docID, videoURL string) (*orders.Order, error) {
	lock := m.lockFor(docID)
	lock.Lock()
	o, err := m.engine.Complete(ctx, docID, videoURL)
	lock.Unlock()
	m.releaseIfTerminal(docID, o)
	return o, err
}

// Fail marks an order failed on behalf of an external notification.
// Runs under the order's lock.
func (m *Manager) Fail(ctx context.Context, docID, stage string, cause error) (*orders.Order, error) {
	lock := m.lockFor(docID)
	lock.Lock()
	o, err := m.engine.Fail(ctx, docID, stage, cause)
	lock.Unlock()
	m.releaseIfTerminal(docID, o)
	return o, err
}

// Kick starts a background continuation that keeps advancing the
// order until it reaches a terminal state or the poll budget runs
// out. A second Kick for an order already being driven is a no-op.
func (m *Manager) Kick(ctx context.Context, docID string) {
	m.mu.Lock()
	if m.running[docID] {
		m.mu.Unlock()
		return
	}
	m.running[docID] = true
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.running, docID)
			m.mu.Unlock()
		}()
		m.drive(ctx, docID)
	}()
}

// Wait blocks until all background continuations finish. Used on
// shutdown.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// drive re-invokes Advance on the poll cadence until the order stops
// moving. Pipeline orders exit early: their completion arrives on the
// webhook, not on a poll.
func (m *Manager) drive(ctx context.Context, docID string) {
	cfg := poll.Config{
		Interval:    m.engine.config.PollInterval,
		MaxAttempts: m.engine.config.PollMaxAttempts,
	}

	err := poll.Wait(ctx, cfg, func(ctx context.Context, attempt int) (bool, error) {
		o, err := m.Advance(ctx, docID)
		if err != nil {
			return false, err
		}
		if o.Status.Terminal() {
			return true, nil
		}
		if o.Job.Kind == orders.JobPipeline {
			// Webhook-driven; stop polling.
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		m.logger.Error("background continuation stopped", "doc_id", docID, "error", err)
	}
}

// lockFor returns the mutex guarding one order.
func (m *Manager) lockFor(docID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[docID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[docID] = lock
	}
	return lock
}

// releaseIfTerminal drops the order's lock entry once the order can
// no longer move, keeping the lock map bounded by in-flight orders.
// A trigger racing the release gets a fresh mutex; the engine's state
// guards make that harmless.
func (m *Manager) releaseIfTerminal(docID string, o *orders.Order) {
	if o == nil || !o.Status.Terminal() {
		return
	}
	m.mu.Lock()
	delete(m.locks, docID)
	m.mu.Unlock()
}

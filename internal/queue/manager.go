package queue

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"jobqueue-go/internal/store"
)

// Manager hands out named queues over one shared store.
// Queues are created on first use and cached.
type Manager struct {
	store  store.Store
	opts   Options
	logger *slog.Logger

	mu     sync.RWMutex
	queues map[string]*Queue
}

// NewManager creates a manager whose queues all use st and opts.
func NewManager(st store.Store, opts Options, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  st,
		opts:   opts,
		logger: logger,
		queues: make(map[string]*Queue),
	}
}

// Queue returns the queue with the given name, creating it if needed.
func (m *Manager) Queue(name string) (*Queue, error) {
	m.mu.RLock()
	q, ok := m.queues[name]
	m.mu.RUnlock()
	if ok {
		return q, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if q, ok := m.queues[name]; ok {
		return q, nil
	}

	// The registry, log attributes and metric labels keep the name.
	name = strings.Clone(name)
	q, err := New(name, m.store, m.opts, m.logger)
	if err != nil {
		return nil, err
	}
	m.queues[name] = q
	m.logger.Debug("queue opened", "queue", name)

	return q, nil
}

// Names returns the names of queues opened so far, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.queues))
	for name := range m.queues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Ping checks that the shared store is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

// Close closes the shared store.
func (m *Manager) Close() error {
	return m.store.Close()
}

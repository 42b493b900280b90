package circuitbreaker

import (
	"log/slog"
	"sort"
	"sync"
)

// Manager реестр выключателей по имени зависимости
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	log      *slog.Logger

	// onStateChange навешивается на все выключатели, созданные через менеджер
	onStateChange func(name string, from State, to State)
}

func NewManager(log *slog.Logger, onStateChange func(name string, from State, to State)) *Manager {
	return &Manager{
		breakers:      make(map[string]*CircuitBreaker),
		log:           log,
		onStateChange: onStateChange,
	}
}

func (m *Manager) GetOrCreate(name string, cfg Config) *CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if breaker, exists := m.breakers[name]; exists {
		return breaker
	}

	cfg.Name = name
	if cfg.OnStateChange == nil {
		cfg.OnStateChange = m.onStateChange
	}
	breaker := New(cfg, m.log)
	m.breakers[name] = breaker

	m.log.Info("circuit breaker created",
		slog.String("circuit_breaker", name),
		slog.Int("max_failures", breaker.maxFailures),
		slog.String("timeout", breaker.timeout.String()),
		slog.Int("max_requests", breaker.maxRequests),
	)

	return breaker
}

func (m *Manager) Get(name string) *CircuitBreaker {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.breakers[name]
}

// Snapshots состояния всех выключателей, отсортированные по имени
func (m *Manager) Snapshots() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Snapshot, 0, len(m.breakers))
	for _, breaker := range m.breakers {
		out = append(out, breaker.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}

func (m *Manager) ResetAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, breaker := range m.breakers {
		breaker.Reset()
	}

	m.log.Info("all circuit breakers reset")
}

func (m *Manager) Reset(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if breaker, exists := m.breakers[name]; exists {
		breaker.Reset()
		m.log.Info("circuit breaker reset", slog.String("circuit_breaker", name))
		return true
	}

	return false
}

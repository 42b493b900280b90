package circuitbreaker

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

// границы допустимых значений конфигурации
const (
	defaultMaxFailures = 5
	defaultTimeout     = 30 * time.Second
	defaultMaxRequests = 1

	maxAllowedFailures = 1000
	maxAllowedTimeout  = 10 * time.Minute
	maxAllowedRequests = 100
)

type Config struct {
	Name          string
	MaxFailures   int
	Timeout       time.Duration
	MaxRequests   int
	OnStateChange func(name string, from State, to State)
}

// Snapshot состояние и счётчики выключателя на момент вызова
type Snapshot struct {
	Name            string    `json:"name"`
	State           string    `json:"state"`
	Failures        int       `json:"failures"`
	TotalRequests   int64     `json:"totalRequests"`
	TotalFailures   int64     `json:"totalFailures"`
	TotalSuccesses  int64     `json:"totalSuccesses"`
	Rejected        int64     `json:"rejected"`
	StateChanges    int64     `json:"stateChanges"`
	MaxFailures     int       `json:"maxFailures"`
	TimeoutSeconds  float64   `json:"timeoutSeconds"`
	MaxRequests     int       `json:"maxRequests"`
	LastFailure     time.Time `json:"lastFailure"`
	LastStateChange time.Time `json:"lastStateChange"`
}

// CircuitBreaker защищает вызовы соседних сервисов.
// closed -> open после MaxFailures подряд; open -> half-open по истечении Timeout;
// в half-open пропускается не больше MaxRequests пробных вызовов.
type CircuitBreaker struct {
	name          string
	maxFailures   int
	timeout       time.Duration
	maxRequests   int
	onStateChange func(name string, from State, to State)

	mu           sync.RWMutex
	state        State
	failures     int
	requests     int
	lastFailTime time.Time

	totalRequests   int64
	totalFailures   int64
	totalSuccesses  int64
	rejected        int64
	stateChanges    int64
	lastStateChange time.Time

	// переходы копятся под mu и отдаются в onStateChange по порядку после его снятия
	pending  []transition
	notifyMu sync.Mutex

	now func() time.Time
	log *slog.Logger
}

type transition struct {
	from, to State
}

func New(cfg Config, log *slog.Logger) *CircuitBreaker {
	cfg = validateConfig(cfg, log)

	return &CircuitBreaker{
		name:          cfg.Name,
		maxFailures:   cfg.MaxFailures,
		timeout:       cfg.Timeout,
		maxRequests:   cfg.MaxRequests,
		onStateChange: cfg.OnStateChange,
		state:         StateClosed,
		now:           time.Now,
		log:           log.With(slog.String("circuit_breaker", cfg.Name)),
	}
}

func validateConfig(cfg Config, log *slog.Logger) Config {
	if cfg.Name == "" {
		cfg.Name = "unnamed"
		log.Warn("circuit breaker created without name, using 'unnamed'")
	}
	log = log.With(slog.String("circuit_breaker", cfg.Name))

	if cfg.MaxFailures <= 0 {
		log.Warn("invalid MaxFailures value, using default",
			slog.Int("invalid_value", cfg.MaxFailures), slog.Int("default_value", defaultMaxFailures))
		cfg.MaxFailures = defaultMaxFailures
	}
	if cfg.Timeout <= 0 {
		log.Warn("invalid Timeout value, using default",
			slog.Duration("invalid_value", cfg.Timeout), slog.Duration("default_value", defaultTimeout))
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRequests <= 0 {
		log.Warn("invalid MaxRequests value, using default",
			slog.Int("invalid_value", cfg.MaxRequests), slog.Int("default_value", defaultMaxRequests))
		cfg.MaxRequests = defaultMaxRequests
	}

	if cfg.MaxFailures > maxAllowedFailures {
		log.Warn("MaxFailures too high, capping at maximum", slog.Int("invalid_value", cfg.MaxFailures))
		cfg.MaxFailures = maxAllowedFailures
	}
	if cfg.Timeout > maxAllowedTimeout {
		log.Warn("Timeout too high, capping at maximum", slog.Duration("invalid_value", cfg.Timeout))
		cfg.Timeout = maxAllowedTimeout
	}
	if cfg.MaxRequests > maxAllowedRequests {
		log.Warn("MaxRequests too high, capping at maximum", slog.Int("invalid_value", cfg.MaxRequests))
		cfg.MaxRequests = maxAllowedRequests
	}

	return cfg
}

// Execute выполняет fn, если выключатель пропускает запрос.
// Ошибка fn возвращается без изменений; при открытом выключателе - ErrCircuitBreakerOpen.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	err := cb.beforeRequest()
	cb.notifyStateChanges()
	if err != nil {
		return err
	}

	err = fn()

	cb.afterRequest(err)
	cb.notifyStateChanges()
	return err
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.totalFailures++
		cb.onFailure()
		return
	}
	cb.totalSuccesses++
	cb.onSuccess()
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.lastFailTime) <= cb.timeout {
			cb.rejected++
			cb.log.Debug("circuit breaker is open, rejecting request")
			return ErrCircuitBreakerOpen
		}
		cb.setState(StateHalfOpen)
		cb.requests = 0
	}

	if cb.state == StateHalfOpen && cb.requests >= cb.maxRequests {
		cb.rejected++
		cb.log.Debug("circuit breaker half-open max requests reached",
			slog.Int("requests", cb.requests), slog.Int("max_requests", cb.maxRequests))
		return ErrCircuitBreakerOpen
	}

	// считаем только реально выполняемые запросы
	cb.totalRequests++
	if cb.state == StateHalfOpen {
		cb.requests++
	}
	return nil
}

func (cb *CircuitBreaker) onSuccess() {
	cb.failures = 0

	if cb.state == StateHalfOpen {
		cb.setState(StateClosed)
		cb.requests = 0
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	cb.lastFailTime = cb.now()

	switch {
	case cb.state == StateClosed && cb.failures >= cb.maxFailures:
		cb.setState(StateOpen)
		cb.requests = 0
	case cb.state == StateHalfOpen:
		cb.setState(StateOpen)
		cb.requests = 0
	}
}

// вызывается под cb.mu
func (cb *CircuitBreaker) setState(newState State) {
	if cb.state == newState {
		return
	}

	oldState := cb.state
	cb.state = newState
	cb.stateChanges++
	cb.lastStateChange = cb.now()

	cb.log.Info("circuit breaker state changed",
		slog.String("from_state", oldState.String()),
		slog.String("to_state", newState.String()),
	)

	if cb.onStateChange != nil {
		cb.pending = append(cb.pending, transition{from: oldState, to: newState})
	}
}

// notifyStateChanges вызывается без cb.mu. notifyMu держится на всё время раздачи,
// поэтому колбэки не обгоняют друг друга. Колбэк не должен вызывать Execute или Reset.
func (cb *CircuitBreaker) notifyStateChanges() {
	if cb.onStateChange == nil {
		return
	}
	cb.notifyMu.Lock()
	defer cb.notifyMu.Unlock()

	cb.mu.Lock()
	pending := cb.pending
	cb.pending = nil
	cb.mu.Unlock()

	for _, t := range pending {
		cb.runStateChangeCallback(t.from, t.to)
	}
}

func (cb *CircuitBreaker) runStateChangeCallback(from, to State) {
	defer func() {
		if r := recover(); r != nil {
			cb.log.Error("circuit breaker state change callback panicked",
				slog.String("from_state", from.String()),
				slog.String("to_state", to.String()),
				slog.Any("panic", r),
			)
		}
	}()

	cb.onStateChange(cb.name, from, to)
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return Snapshot{
		Name:            cb.name,
		State:           cb.state.String(),
		Failures:        cb.failures,
		TotalRequests:   cb.totalRequests,
		TotalFailures:   cb.totalFailures,
		TotalSuccesses:  cb.totalSuccesses,
		Rejected:        cb.rejected,
		StateChanges:    cb.stateChanges,
		MaxFailures:     cb.maxFailures,
		TimeoutSeconds:  cb.timeout.Seconds(),
		MaxRequests:     cb.maxRequests,
		LastFailure:     cb.lastFailTime,
		LastStateChange: cb.lastStateChange,
	}
}

func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	cb.setState(StateClosed)
	cb.failures = 0
	cb.requests = 0
	cb.lastFailTime = time.Time{}
	cb.mu.Unlock()

	cb.notifyStateChanges()
}

func (cb *CircuitBreaker) String() string {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return fmt.Sprintf("CircuitBreaker(name=%s, state=%s, failures=%d/%d)",
		cb.name, cb.state.String(), cb.failures, cb.maxFailures)
}

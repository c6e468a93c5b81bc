// Package circuitbreaker implements the per-provider circuit breaker: a
// three-state machine (closed, open, half-open) guarding calls to an
// unreliable collaborator behind a consecutive-failure threshold.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/chainfolio/aggregator-core/internal/apperrors"
	"github.com/chainfolio/aggregator-core/internal/logging"
)

// State is one of the three states a breaker can be in.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config configures a breaker's thresholds.
type Config struct {
	Name             string
	FailureThreshold int
	RecoveryTimeout  time.Duration
	HalfOpenRetries  int
	// OnStateChange, if set, is invoked after every state transition with
	// the breaker's name and its new state. The sync orchestrator wires
	// this to the event bus to publish CircuitBreakerOpened/Closed/HalfOpen;
	// it is nil-checked before every call so breakers built without a
	// host-supplied hook behave identically.
	OnStateChange func(name string, state State)
}

// DefaultConfig returns the aggregation core's default breaker settings.
func DefaultConfig(name string) *Config {
	return &Config{
		Name:             name,
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		HalfOpenRetries:  2,
	}
}

// CircuitBreaker guards calls to one provider. Closed permits every
// request and counts consecutive failures; reaching failureThreshold
// opens the breaker and schedules nextRetryTime. Open rejects every
// request until nextRetryTime passes, at which point the next admission
// check transitions it to HalfOpen. HalfOpen admits every request; the
// number of concurrent probes is not capped. Each success counts toward
// halfOpenRetries and reaching it closes the breaker; any failure reopens
// it with a fresh nextRetryTime.
type CircuitBreaker struct {
	name             string
	failureThreshold int
	recoveryTimeout  time.Duration
	halfOpenRetries  int

	onStateChange    func(name string, state State)

	mu               sync.Mutex
	state            State
	consecutiveFails int
	halfOpenAttempts int
	nextRetryTime    time.Time
	lastSuccessTime  time.Time
	lastFailureTime  time.Time
}

// NewCircuitBreaker constructs a breaker in the Closed state.
func NewCircuitBreaker(config *Config) *CircuitBreaker {
	return &CircuitBreaker{
		name:             config.Name,
		failureThreshold: config.FailureThreshold,
		recoveryTimeout:  config.RecoveryTimeout,
		halfOpenRetries:  config.HalfOpenRetries,
		onStateChange:    config.OnStateChange,
		state:            StateClosed,
	}
}

func (cb *CircuitBreaker) notify(state State) {
	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, state)
	}
}

// Execute checks admission, runs fn, and records the outcome. If the
// breaker is inadmissible it returns apperrors.CircuitOpen(name) without
// calling fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}
	err := fn()
	cb.afterRequest(err)
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Now().Before(cb.nextRetryTime) {
			return apperrors.CircuitOpen(cb.name)
		}
		cb.state = StateHalfOpen
		cb.halfOpenAttempts = 0
		logging.WithFields(map[string]interface{}{
			"circuitBreaker": cb.name,
			"state":          StateHalfOpen,
		}).Info("circuit breaker transitioning to half-open")
		cb.notify(StateHalfOpen)
		return nil
	case StateHalfOpen:
		return nil
	default:
		return nil
	}
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.onFailure()
	} else {
		cb.onSuccess()
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.lastSuccessTime = time.Now()
	cb.consecutiveFails = 0

	if cb.state == StateHalfOpen {
		cb.halfOpenAttempts++
		if cb.halfOpenAttempts >= cb.halfOpenRetries {
			cb.state = StateClosed
			cb.halfOpenAttempts = 0
			logging.WithField("circuitBreaker", cb.name).Info("circuit breaker closed after successful recovery")
			cb.notify(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.lastFailureTime = time.Now()

	switch cb.state {
	case StateClosed:
		cb.consecutiveFails++
		if cb.consecutiveFails >= cb.failureThreshold {
			cb.open()
			logging.WithFields(map[string]interface{}{
				"circuitBreaker":   cb.name,
				"state":            StateOpen,
				"consecutiveFails": cb.consecutiveFails,
			}).Warn("circuit breaker opened after consecutive failures")
		}
	case StateHalfOpen:
		cb.open()
		logging.WithField("circuitBreaker", cb.name).Warn("circuit breaker reopened after failure in half-open state")
	}
}

func (cb *CircuitBreaker) open() {
	cb.state = StateOpen
	cb.nextRetryTime = time.Now().Add(cb.recoveryTimeout)
	cb.halfOpenAttempts = 0
	cb.notify(StateOpen)
}

// Reset returns the breaker to Closed with zeroed counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	wasClosed := cb.state == StateClosed
	cb.state = StateClosed
	cb.consecutiveFails = 0
	cb.halfOpenAttempts = 0
	cb.nextRetryTime = time.Time{}
	logging.WithField("circuitBreaker", cb.name).Info("circuit breaker manually reset")
	if !wasClosed {
		cb.notify(StateClosed)
	}
}

// GetState returns the breaker's current state.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats snapshots a breaker's counters for the sync orchestrator's metrics
// and the getCircuitState surface.
type Stats struct {
	Name             string    `json:"name"`
	State            State     `json:"state"`
	ConsecutiveFails int       `json:"consecutiveFails"`
	HalfOpenAttempts int       `json:"halfOpenAttempts"`
	NextRetryTime    time.Time `json:"nextRetryTime,omitempty"`
	LastSuccessTime  time.Time `json:"lastSuccessTime,omitempty"`
	LastFailureTime  time.Time `json:"lastFailureTime,omitempty"`
}

// Stats returns a snapshot of the breaker's current counters.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Stats{
		Name:             cb.name,
		State:            cb.state,
		ConsecutiveFails: cb.consecutiveFails,
		HalfOpenAttempts: cb.halfOpenAttempts,
		NextRetryTime:    cb.nextRetryTime,
		LastSuccessTime:  cb.lastSuccessTime,
		LastFailureTime:  cb.lastFailureTime,
	}
}

// Manager owns one breaker per provider name, created lazily.
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// NewManager constructs an empty breaker manager.
func NewManager() *Manager {
	return &Manager{breakers: make(map[string]*CircuitBreaker)}
}

// GetOrCreate returns the named breaker, creating it with config (or
// DefaultConfig if config is nil) on first use.
func (m *Manager) GetOrCreate(name string, config *Config) *CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cb, ok := m.breakers[name]; ok {
		return cb
	}
	if config == nil {
		config = DefaultConfig(name)
	}
	cb := NewCircuitBreaker(config)
	m.breakers[name] = cb
	return cb
}

// Get retrieves a breaker by name, or nil if it has not been created yet.
func (m *Manager) Get(name string) *CircuitBreaker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.breakers[name]
}

// GetAllStats returns a stats snapshot for every known breaker.
func (m *Manager) GetAllStats() map[string]Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]Stats, len(m.breakers))
	for name, cb := range m.breakers {
		result[name] = cb.Stats()
	}
	return result
}

// ResetAll resets every known breaker to Closed.
func (m *Manager) ResetAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, cb := range m.breakers {
		cb.Reset()
	}
	logging.Info("all circuit breakers reset")
}

// Remove drops a breaker from the manager.
func (m *Manager) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.breakers, name)
}

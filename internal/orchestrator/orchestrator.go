// Package orchestrator implements the sync orchestrator: per-provider
// circuit breaker and rate limiter ownership, a parallel protected-call
// fan-out, and the scheduling/retry/metrics surface described for the
// sync orchestrator.
package orchestrator

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chainfolio/aggregator-core/internal/apperrors"
	"github.com/chainfolio/aggregator-core/internal/circuitbreaker"
	"github.com/chainfolio/aggregator-core/internal/domain"
	"github.com/chainfolio/aggregator-core/internal/eventbus"
	"github.com/chainfolio/aggregator-core/internal/logging"
	"github.com/chainfolio/aggregator-core/internal/metrics"
	"github.com/chainfolio/aggregator-core/internal/ports"
	"github.com/chainfolio/aggregator-core/internal/ratelimit"
	"github.com/chainfolio/aggregator-core/internal/types"
)

// ProviderError pairs a provider with the error its protected call
// produced, for SyncResult.Errors.
type ProviderError struct {
	Provider types.ProviderID
	Err      error
}

// SyncResult is the outcome of one orchestrateSync call.
type SyncResult struct {
	Successful []types.ProviderID
	Failed     []types.ProviderID
	Errors     []ProviderError
	Duration   time.Duration
	Timestamp  time.Time
}

// CancelFunc stops a scheduled sync cycle. Calling it more than once is a
// no-op.
type CancelFunc func()

// Orchestrator owns one breaker and one limiter per provider and runs
// protected health calls against them in parallel, fanning results into a
// SyncResult and the event bus.
type Orchestrator struct {
	providers map[types.ProviderID]ports.Provider
	canary    map[types.ProviderID][]string

	breakers *circuitbreaker.Manager
	limiters map[types.ProviderID]ratelimit.Limiter

	metrics *metrics.SyncMetrics
	bus     *eventbus.Bus

	mu        sync.Mutex
	inFlight  bool
	limitersMu sync.RWMutex
}

// New constructs an Orchestrator with no providers. Each provider's canary
// address set, used as the health-check probe in OrchestrateSync, is
// supplied to RegisterProvider.
func New(bus *eventbus.Bus, metricsCollector *metrics.SyncMetrics) *Orchestrator {
	return &Orchestrator{
		providers: make(map[types.ProviderID]ports.Provider),
		canary:    make(map[types.ProviderID][]string),
		breakers:  circuitbreaker.NewManager(),
		limiters:  make(map[types.ProviderID]ratelimit.Limiter),
		metrics:   metricsCollector,
		bus:       bus,
	}
}

// RegisterProvider adds a provider under orchestrator ownership, with its
// own breaker (breakerCfg, or the default if nil), rate limiter
// (limiterCfg), and canary address set for health checks.
func (o *Orchestrator) RegisterProvider(p ports.Provider, breakerCfg *circuitbreaker.Config, limiterCfg ratelimit.Config, canaryAddresses []string) {
	name := p.Source()
	o.providers[name] = p
	o.canary[name] = canaryAddresses
	if breakerCfg == nil {
		breakerCfg = circuitbreaker.DefaultConfig(string(name))
	}
	breakerCfg.OnStateChange = o.publishBreakerTransition
	o.breakers.GetOrCreate(string(name), breakerCfg)

	o.limitersMu.Lock()
	o.limiters[name] = ratelimit.NewTokenBucketLimiter(limiterCfg)
	o.limitersMu.Unlock()
}

// ConfigureRateLimit hot-swaps the rate limiter config for a registered
// provider.
func (o *Orchestrator) ConfigureRateLimit(provider types.ProviderID, cfg ratelimit.Config) {
	o.limitersMu.RLock()
	lim, ok := o.limiters[provider]
	o.limitersMu.RUnlock()
	if ok {
		lim.UpdateConfig(cfg)
	}
}

// GetCircuitState returns the current state of a provider's breaker.
func (o *Orchestrator) GetCircuitState(provider types.ProviderID) circuitbreaker.State {
	if cb := o.breakers.Get(string(provider)); cb != nil {
		return cb.GetState()
	}
	return circuitbreaker.StateClosed
}

// GetSyncMetrics returns the orchestrator's metrics snapshot.
func (o *Orchestrator) GetSyncMetrics() (map[string]metrics.ProviderSnapshot, time.Time) {
	return o.metrics.Snapshot()
}

// MetricsHandler exposes the orchestrator's Prometheus collectors for a
// host application to mount on its own HTTP mux.
func (o *Orchestrator) MetricsHandler() http.Handler {
	return o.metrics.Handler()
}

// OrchestrateSync runs one protected health call per provider in
// providers, in parallel, waiting for all to settle. Only one sync may
// run at a time; a second concurrent call fails with SyncInProgress.
func (o *Orchestrator) OrchestrateSync(ctx context.Context, providers []types.ProviderID) (SyncResult, error) {
	o.mu.Lock()
	if o.inFlight {
		o.mu.Unlock()
		return SyncResult{}, apperrors.SyncInProgress()
	}
	o.inFlight = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.inFlight = false
		o.mu.Unlock()
	}()

	start := time.Now()
	o.bus.Publish(domain.NewEvent(domain.EventSyncCycleStarted, "", map[string]interface{}{
		"providers": providers,
	}))

	var mu sync.Mutex
	result := SyncResult{Timestamp: start}

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range providers {
		name := name
		g.Go(func() error {
			err := o.runProtectedTask(gctx, name)
			mu.Lock()
			if err != nil {
				result.Failed = append(result.Failed, name)
				result.Errors = append(result.Errors, ProviderError{Provider: name, Err: err})
				o.bus.Publish(domain.NewEvent(domain.EventSyncSourceFailed, string(name), map[string]interface{}{
					"provider": name, "error": err.Error(),
				}))
			} else {
				result.Successful = append(result.Successful, name)
			}
			mu.Unlock()
			return nil // a single provider's failure never aborts its siblings
		})
	}
	_ = g.Wait()

	result.Duration = time.Since(start)
	o.metrics.RecordSyncCycle(result.Duration, time.Time{})

	o.bus.Publish(domain.NewEvent(domain.EventSyncCycleCompleted, "", map[string]interface{}{
		"successful": result.Successful,
		"failed":     result.Failed,
		"duration":   result.Duration,
	}))

	return result, nil
}

// runProtectedTask performs the admission-check, rate-limit-wait,
// breaker-wrapped health call sequence for one provider.
func (o *Orchestrator) runProtectedTask(ctx context.Context, name types.ProviderID) error {
	provider, ok := o.providers[name]
	if !ok {
		return apperrors.New(apperrors.KindInvalidInput, "unregistered provider: "+string(name))
	}

	cb := o.breakers.GetOrCreate(string(name), nil)
	if stats := cb.Stats(); stats.State == circuitbreaker.StateOpen && time.Now().Before(stats.NextRetryTime) {
		return apperrors.CircuitOpen(string(name))
	}

	o.limitersMu.RLock()
	limiter := o.limiters[name]
	o.limitersMu.RUnlock()
	if limiter != nil {
		if err := limiter.WaitForSlot(ctx); err != nil {
			return err
		}
	}

	start := time.Now()
	err := cb.Execute(func() error {
		if !provider.IsConnected() {
			if connErr := provider.Connect(ctx); connErr != nil {
				return connErr
			}
			o.bus.Publish(domain.NewEvent(domain.EventIntegrationSourceConnected, string(name), nil))
		}
		_, fetchErr := provider.FetchAssets(ctx, o.canary[name])
		return fetchErr
	})
	o.metrics.RecordAttempt(string(name), time.Since(start), err == nil)

	if err != nil {
		o.bus.Publish(domain.NewEvent(domain.EventIntegrationSourceFailed, string(name), map[string]interface{}{
			"error": err.Error(),
		}))
		return err
	}
	o.bus.Publish(domain.NewEvent(domain.EventIntegrationDataFetched, string(name), nil))
	return nil
}

// RetryFailedProvider resets the named provider's breaker and runs a
// single protected task against it.
func (o *Orchestrator) RetryFailedProvider(ctx context.Context, name types.ProviderID) error {
	if cb := o.breakers.Get(string(name)); cb != nil {
		cb.Reset()
	}
	return o.runProtectedTask(ctx, name)
}

// ScheduleSyncCycle runs OrchestrateSync against every registered
// provider at a fixed interval until the returned CancelFunc is called.
func (o *Orchestrator) ScheduleSyncCycle(interval time.Duration) CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				providers := o.allProviderNames()
				if _, err := o.OrchestrateSync(ctx, providers); err != nil {
					logging.WithError(err).Warn("scheduled sync cycle skipped")
				}
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(cancel) }
}

// publishBreakerTransition maps a breaker's new state to its event
// taxonomy tag and publishes it; wired as every registered breaker's
// OnStateChange hook.
func (o *Orchestrator) publishBreakerTransition(name string, state circuitbreaker.State) {
	var eventType domain.EventType
	switch state {
	case circuitbreaker.StateOpen:
		eventType = domain.EventCircuitBreakerOpened
	case circuitbreaker.StateClosed:
		eventType = domain.EventCircuitBreakerClosed
	case circuitbreaker.StateHalfOpen:
		eventType = domain.EventCircuitBreakerHalfOpen
	default:
		return
	}
	o.bus.Publish(domain.NewEvent(eventType, name, map[string]interface{}{"provider": name}))
}

func (o *Orchestrator) allProviderNames() []types.ProviderID {
	out := make([]types.ProviderID, 0, len(o.providers))
	for name := range o.providers {
		out = append(out, name)
	}
	return out
}

package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chainfolio/aggregator-core/internal/circuitbreaker"
	"github.com/chainfolio/aggregator-core/internal/eventbus"
	"github.com/chainfolio/aggregator-core/internal/metrics"
	"github.com/chainfolio/aggregator-core/internal/ports"
	"github.com/chainfolio/aggregator-core/internal/ratelimit"
	"github.com/chainfolio/aggregator-core/internal/types"
)

type fakeProvider struct {
	name      types.ProviderID
	connected atomic.Bool
	failNext  atomic.Bool
}

func (f *fakeProvider) Source() types.ProviderID { return f.name }
func (f *fakeProvider) Connect(context.Context) error {
	f.connected.Store(true)
	return nil
}
func (f *fakeProvider) Disconnect(context.Context) error {
	f.connected.Store(false)
	return nil
}
func (f *fakeProvider) IsConnected() bool { return f.connected.Load() }
func (f *fakeProvider) FetchAssets(context.Context, []string) ([]ports.RawAsset, error) {
	if f.failNext.Load() {
		return nil, errors.New("provider unreachable")
	}
	return []ports.RawAsset{}, nil
}
func (f *fakeProvider) FetchTransactions(context.Context, []string) ([]ports.RawTransaction, error) {
	return nil, nil
}

func newTestOrchestrator() (*Orchestrator, *fakeProvider) {
	bus := eventbus.New(nil)
	o := New(bus, metrics.New())
	p := &fakeProvider{name: "evm"}
	o.RegisterProvider(p, &circuitbreaker.Config{Name: "evm", FailureThreshold: 2, RecoveryTimeout: time.Second, HalfOpenRetries: 1},
		ratelimit.Config{RequestsPerMinute: 6000, BurstLimit: 100}, []string{"0xcanary"})
	return o, p
}

func TestOrchestrateSyncSucceeds(t *testing.T) {
	o, _ := newTestOrchestrator()
	result, err := o.OrchestrateSync(context.Background(), []types.ProviderID{"evm"})
	if err != nil {
		t.Fatalf("OrchestrateSync() error = %v", err)
	}
	if len(result.Successful) != 1 || len(result.Failed) != 0 {
		t.Fatalf("result = %+v, want one success", result)
	}
}

func TestOrchestrateSyncRejectsConcurrentCycles(t *testing.T) {
	o, p := newTestOrchestrator()
	_ = p

	o.mu.Lock()
	o.inFlight = true
	o.mu.Unlock()

	_, err := o.OrchestrateSync(context.Background(), []types.ProviderID{"evm"})
	if err == nil {
		t.Fatalf("expected SyncInProgress error for a concurrent cycle")
	}
}

func TestOrchestrateSyncRecordsProviderFailureWithoutAbortingSiblings(t *testing.T) {
	o, p := newTestOrchestrator()
	p.failNext.Store(true)

	result, err := o.OrchestrateSync(context.Background(), []types.ProviderID{"evm"})
	if err != nil {
		t.Fatalf("OrchestrateSync() error = %v", err)
	}
	if len(result.Failed) != 1 {
		t.Fatalf("result.Failed = %v, want [evm]", result.Failed)
	}
}

func TestRetryFailedProviderResetsBreaker(t *testing.T) {
	o, p := newTestOrchestrator()
	p.failNext.Store(true)

	_, _ = o.OrchestrateSync(context.Background(), []types.ProviderID{"evm"})
	_, _ = o.OrchestrateSync(context.Background(), []types.ProviderID{"evm"})
	if o.GetCircuitState("evm") != circuitbreaker.StateOpen {
		t.Fatalf("expected breaker to open after repeated failures")
	}

	p.failNext.Store(false)
	if err := o.RetryFailedProvider(context.Background(), "evm"); err != nil {
		t.Fatalf("RetryFailedProvider() error = %v", err)
	}
}

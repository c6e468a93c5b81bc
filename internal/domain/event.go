package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType tags a domain event's kind. Handlers subscribe to these tags
// on the event bus.
type EventType string

const (
	EventPortfolioAggregationStarted   EventType = "PortfolioAggregationStarted"
	EventPortfolioAggregationCompleted EventType = "PortfolioAggregationCompleted"
	EventPortfolioAggregationFailed    EventType = "PortfolioAggregationFailed"
	EventPortfolioReconciliationStarted   EventType = "PortfolioReconciliationStarted"
	EventPortfolioReconciliationCompleted EventType = "PortfolioReconciliationCompleted"

	EventAssetAddedToPortfolio EventType = "AssetAddedToPortfolio"
	EventAssetMerged           EventType = "AssetMerged"
	EventAssetPriceUpdated     EventType = "AssetPriceUpdated"

	EventIntegrationSourceConnected EventType = "IntegrationSourceConnected"
	EventIntegrationSourceFailed    EventType = "IntegrationSourceFailed"
	EventIntegrationDataFetched     EventType = "IntegrationDataFetched"

	EventAddressAdded          EventType = "AddressAdded"
	EventAddressRemoved        EventType = "AddressRemoved"
	EventAddressMetadataUpdated EventType = "AddressMetadataUpdated"

	EventSyncCycleStarted   EventType = "SyncCycleStarted"
	EventSyncCycleCompleted EventType = "SyncCycleCompleted"
	EventSyncSourceFailed   EventType = "SyncSourceFailed"

	EventCircuitBreakerOpened   EventType = "CircuitBreakerOpened"
	EventCircuitBreakerClosed   EventType = "CircuitBreakerClosed"
	EventCircuitBreakerHalfOpen EventType = "CircuitBreakerHalfOpen"
)

// Event is the aggregation core's immutable domain event record: a unique
// id, a type tag, an occurrence timestamp, an optional aggregate id the
// event is about, and an opaque type-specific payload.
type Event struct {
	ID          string
	Type        EventType
	OccurredAt  time.Time
	AggregateID string
	Payload     map[string]interface{}
}

// NewEvent constructs an Event with a fresh id and the current time as its
// occurrence timestamp.
func NewEvent(eventType EventType, aggregateID string, payload map[string]interface{}) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		OccurredAt:  time.Now(),
		AggregateID: aggregateID,
		Payload:     payload,
	}
}

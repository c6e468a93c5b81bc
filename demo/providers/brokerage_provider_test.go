package providers

import (
	"context"
	"testing"

	"github.com/chainfolio/aggregator-core/internal/ports"
)

func TestBrokerageProviderFetchAssetsIgnoresAddresses(t *testing.T) {
	holding := NewStockHolding("AAPL", "10")
	p := NewBrokerageProvider([]ports.RawAsset{holding})

	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !p.IsConnected() {
		t.Fatalf("expected provider to be connected")
	}

	assets, err := p.FetchAssets(context.Background(), []string{"this-is-ignored"})
	if err != nil {
		t.Fatalf("FetchAssets() error = %v", err)
	}
	if len(assets) != 1 || assets[0].Symbol != "AAPL" {
		t.Fatalf("FetchAssets() = %+v, want one AAPL holding", assets)
	}

	assets2, _ := p.FetchAssets(context.Background(), nil)
	if len(assets2) != 1 {
		t.Fatalf("FetchAssets() with nil addresses = %+v, want the same seeded holding", assets2)
	}
}

func TestBrokerageProviderDisconnect(t *testing.T) {
	p := NewBrokerageProvider(nil)
	_ = p.Connect(context.Background())
	_ = p.Disconnect(context.Background())
	if p.IsConnected() {
		t.Fatalf("expected provider to report disconnected")
	}
}

func TestBrokerageProviderFetchTransactionsUnsupported(t *testing.T) {
	p := NewBrokerageProvider(nil)
	if _, err := p.FetchTransactions(context.Background(), nil); err == nil {
		t.Fatalf("expected an error for unsupported transaction history")
	}
}

package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

func newSolanaTestServer(t *testing.T, balanceLamports uint64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		w.Header().Set("Content-Type", "application/json")
		switch req.Method {
		case "getHealth":
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"ok"}`))
		case "getBalance":
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":1},"value":` + itoa(balanceLamports) + `}}`))
		default:
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-1,"message":"unknown method"}}`))
		}
	}))
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var digits []byte
	for v > 0 {
		digits = append([]byte{byte('0' + v%10)}, digits...)
		v /= 10
	}
	return string(digits)
}

func TestSolanaProviderConnectAndFetchAssets(t *testing.T) {
	server := newSolanaTestServer(t, 2_500_000_000) // 2.5 SOL in lamports
	defer server.Close()

	p := NewSolanaProvider(server.URL)
	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !p.IsConnected() {
		t.Fatalf("expected provider to be connected after a successful health check")
	}

	assets, err := p.FetchAssets(context.Background(), []string{"DRpbCBMxVnDK7maPM5tGv6MvB3v1sRMC86PZ8okm21hy", "not-a-valid-address!"})
	if err != nil {
		t.Fatalf("FetchAssets() error = %v", err)
	}
	if len(assets) != 1 {
		t.Fatalf("len(assets) = %d, want 1 (the malformed address should be skipped)", len(assets))
	}
	if assets[0].Symbol != "SOL" {
		t.Fatalf("asset symbol = %q, want SOL", assets[0].Symbol)
	}
	if !assets[0].Balance.Amount.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("balance = %v, want 2.5", assets[0].Balance.Amount)
	}
}

func TestSolanaProviderFetchTransactionsUnsupported(t *testing.T) {
	p := NewSolanaProvider("http://unused")
	if _, err := p.FetchTransactions(context.Background(), nil); err == nil {
		t.Fatalf("expected an error for unsupported transaction history")
	}
}

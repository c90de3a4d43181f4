package stream

import (
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/rickgao/dxtrade-go/model"
)

func TestSubscriptionRequestShapes(t *testing.T) {
	t.Run("market data", func(t *testing.T) {
		req := marketDataSubscription("req-1", "tok-1", "acc-1", []string{"EUR/USD", "GBP/USD"})
		data, err := json.Marshal(req)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if m["type"] != "MarketDataSubscriptionRequest" || m["requestId"] != "req-1" || m["session"] != "tok-1" {
			t.Errorf("envelope = %v", m)
		}
		payload := m["payload"].(map[string]any)
		if payload["account"] != "acc-1" {
			t.Errorf("payload account = %v", payload["account"])
		}
		types := payload["eventTypes"].([]any)
		if len(types) != 1 {
			t.Fatalf("eventTypes = %v, want one entry", types)
		}
		et := types[0].(map[string]any)
		if et["type"] != "Quote" || et["format"] != "COMPACT" {
			t.Errorf("eventTypes[0] = %v, want Quote/COMPACT", et)
		}
	})

	t.Run("portfolio", func(t *testing.T) {
		req := portfolioSubscription("req-2", "tok-1", "acc-1")
		data, err := json.Marshal(req)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if m["type"] != "AccountPortfoliosSubscriptionRequest" {
			t.Errorf("type = %v", m["type"])
		}
		payload := m["payload"].(map[string]any)
		types := payload["eventTypes"].([]any)
		if len(types) != 2 {
			t.Fatalf("eventTypes = %v, want Position and Order entries", types)
		}
		first := types[0].(map[string]any)
		if first["type"] != "Position" || first["format"] != "COMPACT" {
			t.Errorf("eventTypes[0] = %v, want Position/COMPACT", first)
		}
	})
}

func TestParseEventTime(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want time.Time
	}{
		{"rfc3339", "2024-03-01T12:00:00Z", time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		{"rfc3339 fraction", "2024-03-01T12:00:00.250Z", time.Date(2024, 3, 1, 12, 0, 0, 250_000_000, time.UTC)},
		{"no zone", "2024-03-01T12:00:00", time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		{"epoch seconds", "1700000000", time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)},
		{"empty", "", time.Time{}},
		{"garbage", "yesterday", time.Time{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseEventTime(tc.in)
			if !got.Equal(tc.want) {
				t.Errorf("parseEventTime(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseEvent(t *testing.T) {
	now := time.Now()

	t.Run("market data computes spread", func(t *testing.T) {
		data := []byte(`{"type":"MarketData","data":{"symbol":"EUR/USD","bid":"1.0850","ask":"1.0853","timestamp":"2024-03-01T12:00:00Z"}}`)
		ev, ok := parseEvent("market-data", now, "MarketData", data)
		if !ok {
			t.Fatal("parseEvent() not ok")
		}
		if ev.Type != model.EventTypePrice || ev.Quote == nil {
			t.Fatalf("event = %+v, want price", ev)
		}
		if ev.Quote.Spread.String() != "0.0003" {
			t.Errorf("spread = %s, want 0.0003", ev.Quote.Spread)
		}
		if ev.Connection != "market-data" {
			t.Errorf("connection = %q", ev.Connection)
		}
	})

	t.Run("explicit spread preserved", func(t *testing.T) {
		data := []byte(`{"type":"MarketData","data":{"symbol":"EUR/USD","bid":"1.0850","ask":"1.0853","spread":"0.0005"}}`)
		ev, ok := parseEvent("market-data", now, "MarketData", data)
		if !ok || ev.Quote.Spread.String() != "0.0005" {
			t.Errorf("spread = %v, want 0.0005 from the wire", ev.Quote.Spread)
		}
	})

	t.Run("position update", func(t *testing.T) {
		data := []byte(`{"type":"PositionUpdate","position":{"positionId":"pos-1","symbol":"GBP/USD","side":"LONG","volume":"2.5","unrealizedPnl":"-3.75"}}`)
		ev, ok := parseEvent("portfolio", now, "PositionUpdate", data)
		if !ok || ev.Type != model.EventTypePosition || ev.Position == nil {
			t.Fatalf("event = %+v, want position", ev)
		}
		if ev.Position.Side != model.PositionLong {
			t.Errorf("side = %q, want LONG", ev.Position.Side)
		}
		if ev.Position.UnrealizedPnL.String() != "-3.75" {
			t.Errorf("unrealized pnl = %s, want -3.75", ev.Position.UnrealizedPnL)
		}
	})

	t.Run("portfolio snapshot", func(t *testing.T) {
		data := []byte(`{"type":"AccountPortfolios","data":{"account":"acc-1","balance":"10000","equity":"10100.50","positions":[{"positionId":"pos-1","symbol":"EUR/USD","side":"LONG","volume":"1"}],"orders":[]}}`)
		ev, ok := parseEvent("portfolio", now, "AccountPortfolios", data)
		if !ok || ev.Type != model.EventTypeAccount || ev.Portfolio == nil {
			t.Fatalf("event = %+v, want account snapshot", ev)
		}
		if ev.Portfolio.AccountID != "acc-1" {
			t.Errorf("account = %q, want acc-1", ev.Portfolio.AccountID)
		}
		if len(ev.Portfolio.Positions) != 1 {
			t.Errorf("positions = %d, want 1", len(ev.Portfolio.Positions))
		}
		if ev.Portfolio.Equity.String() != "10100.5" {
			t.Errorf("equity = %s, want 10100.5", ev.Portfolio.Equity)
		}
	})

	t.Run("generic lowercase order", func(t *testing.T) {
		data := []byte(`{"type":"order","data":{"orderId":"ord-2","status":"CANCELED"}}`)
		ev, ok := parseEvent("portfolio", now, "order", data)
		if !ok || ev.Order == nil || ev.Order.Status != model.OrderStatusCanceled {
			t.Fatalf("event = %+v, want canceled order", ev)
		}
	})

	t.Run("unknown type skipped", func(t *testing.T) {
		if _, ok := parseEvent("test", now, "Telemetry", []byte(`{"type":"Telemetry"}`)); ok {
			t.Error("parseEvent() accepted an unknown type")
		}
	})
}

func TestIsBareStringPing(t *testing.T) {
	for _, frame := range []string{"PingRequest", "pingrequest", "ping_request", `"PingRequest"`, `"PING_REQUEST"`, "  PingRequest  "} {
		if !isBareStringPing([]byte(frame)) {
			t.Errorf("isBareStringPing(%q) = false, want true", frame)
		}
	}
	for _, frame := range []string{"Ping", `{"type":"PingRequest"}`, `"pong"`, "", "ping request"} {
		if isBareStringPing([]byte(frame)) {
			t.Errorf("isBareStringPing(%q) = true, want false", frame)
		}
	}
}

func TestDefaultConfigs(t *testing.T) {
	cfg := DefaultConnConfig()
	if cfg.ConnectTimeout != 30*time.Second {
		t.Errorf("ConnectTimeout = %v, want 30s", cfg.ConnectTimeout)
	}
	if cfg.HeartbeatInterval != 30*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 30s", cfg.HeartbeatInterval)
	}
	if cfg.QueueSize != 1000 {
		t.Errorf("QueueSize = %d, want 1000", cfg.QueueSize)
	}
	if cfg.MaxReconnectAttempts != 5 {
		t.Errorf("MaxReconnectAttempts = %d, want 5", cfg.MaxReconnectAttempts)
	}
	if cfg.ReconnectDelay != 500*time.Millisecond {
		t.Errorf("ReconnectDelay = %v, want 500ms", cfg.ReconnectDelay)
	}
	if cfg.MaxReconnectDelay != 30*time.Second {
		t.Errorf("MaxReconnectDelay = %v, want 30s", cfg.MaxReconnectDelay)
	}
	if !cfg.AutoReconnect {
		t.Error("AutoReconnect off by default")
	}
	if cfg.Handshake {
		t.Error("Handshake on by default")
	}

	mcfg := DefaultManagerConfig()
	if !mcfg.EnableMarketData || !mcfg.EnablePortfolio {
		t.Error("default manager config does not enable both streams")
	}
}

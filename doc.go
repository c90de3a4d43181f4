// Package dxtrade is a client SDK for the DXtrade trading platform.
//
// It covers both transports: a typed REST client with retries, rate
// limiting and idempotency, and the websocket streams for live market
// data and portfolio updates with automatic reconnect and subscription
// replay. Both share one auth strategy, so the session established over
// REST is the session the streams ride on.
//
// A Client is built from one Config:
//
//	cfg := dxtrade.DefaultConfig()
//	cfg.BaseURL = "https://demo.dx.trade/dxsca-web"
//	cfg.MarketDataURL = "wss://demo.dx.trade/md"
//	cfg.PortfolioURL = "wss://demo.dx.trade/ws"
//	cfg.Account = "default:demo-1"
//	cfg.Credentials = auth.Credentials{
//		Type:     auth.TypeSession,
//		Username: "demo",
//		Password: "secret",
//	}
//
//	client, err := dxtrade.New(cfg)
//
// The packages underneath are usable on their own: api for REST, stream
// for the push connections, auth for the credential strategies, model
// for the shared types.
package dxtrade

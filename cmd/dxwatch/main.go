// dxwatch connects to the DXtrade push streams and prints typed events to
// the console.
// Usage: go run ./cmd/dxwatch --config configs/dxwatch.yaml --symbols EUR/USD,GBP/USD
//
// Credentials come from the config file. ${VAR} references in it are
// expanded from the environment; a .env file in the working directory is
// loaded first when present.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/joho/godotenv"

	dxtrade "github.com/rickgao/dxtrade-go"
	"github.com/rickgao/dxtrade-go/internal/version"
	"github.com/rickgao/dxtrade-go/model"
	"github.com/rickgao/dxtrade-go/stream"
)

func main() {
	configPath := flag.String("config", "configs/dxwatch.yaml", "path to config file")
	symbolsFlag := flag.String("symbols", "EUR/USD", "comma-separated symbols to subscribe")
	verbose := flag.Bool("verbose", false, "print full event JSON and debug logs")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("could not load .env file", "error", err)
	}

	logger.Info("starting dxwatch",
		"version", version.Version,
		"config", *configPath,
	)

	cfg, err := dxtrade.LoadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	client, err := dxtrade.New(cfg,
		dxtrade.WithLogger(logger),
		dxtrade.WithStreamErrorHandler(func(conn string, err error) {
			logger.Error("stream failure", "conn", conn, "error", err)
		}),
	)
	if err != nil {
		logger.Error("failed to build client", "error", err)
		os.Exit(1)
	}

	if _, err := client.Login(ctx); err != nil {
		logger.Error("login failed", "error", err)
		os.Exit(1)
	}
	logger.Info("session established")

	streams := client.Streams()
	if streams == nil {
		logger.Error("no streams enabled in config")
		os.Exit(1)
	}

	if err := streams.Connect(ctx); err != nil {
		logger.Error("failed to connect streams", "error", err)
		os.Exit(1)
	}

	symbols := splitSymbols(*symbolsFlag)
	if cfg.Stream.EnableMarketData && len(symbols) > 0 {
		id, err := streams.SubscribeMarketData(ctx, symbols)
		if err != nil {
			logger.Error("market data subscription failed", "error", err)
		} else {
			logger.Info("market data subscribed", "id", id, "symbols", symbols)
		}
	}
	if cfg.Stream.EnablePortfolio {
		id, err := streams.SubscribePortfolio(ctx)
		if err != nil {
			logger.Error("portfolio subscription failed", "error", err)
		} else {
			logger.Info("portfolio subscribed", "id", id)
		}
	}

	go printEvents(ctx, streams.Events(ctx), *verbose)

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logStats(logger, streams.Status())
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	<-ctx.Done()

	logger.Info("shutting down...")
	printSummary(streams.Status())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := client.Close(shutdownCtx); err != nil {
		logger.Warn("close failed", "error", err)
	}

	logger.Info("shutdown complete")
}

func splitSymbols(raw string) []string {
	parts := strings.Split(raw, ",")
	symbols := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			symbols = append(symbols, s)
		}
	}
	return symbols
}

func printEvents(ctx context.Context, events <-chan model.Event, verbose bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if verbose {
				data, _ := json.MarshalIndent(ev, "", "  ")
				fmt.Printf("[%s] %s\n", strings.ToUpper(string(ev.Type)), data)
				continue
			}
			printEvent(ev)
		}
	}
}

func printEvent(ev model.Event) {
	switch {
	case ev.Quote != nil:
		q := ev.Quote
		fmt.Printf("[QUOTE] %s bid=%s ask=%s spread=%s\n", q.Symbol, q.Bid, q.Ask, q.Spread)
	case ev.Order != nil:
		o := ev.Order
		fmt.Printf("[ORDER] %s %s %s %s filled=%s/%s price=%s\n",
			o.OrderID, o.Symbol, o.Side, o.Status, o.FilledVolume, o.Volume, o.Price)
	case ev.Position != nil:
		p := ev.Position
		fmt.Printf("[POSITION] %s %s %s vol=%s open=%s pnl=%s\n",
			p.PositionID, p.Symbol, p.Side, p.Volume, p.OpenPrice, p.UnrealizedPnL)
	case ev.Portfolio != nil:
		pf := ev.Portfolio
		fmt.Printf("[PORTFOLIO] %s balance=%s equity=%s margin=%s positions=%d orders=%d\n",
			pf.AccountID, pf.Balance, pf.Equity, pf.Margin, len(pf.Positions), len(pf.Orders))
	}
}

func logStats(logger *slog.Logger, status stream.Status) {
	for name, conn := range status.Connections {
		args := []any{
			"conn", name,
			"state", conn.State,
			"messages", conn.MessageCount,
			"reconnects", conn.ReconnectAttempts,
		}
		if ping, ok := status.PingStats[name]; ok {
			args = append(args, "pings_answered", ping.ResponsesSent)
		}
		logger.Info("stream stats", args...)
	}
}

func printSummary(status stream.Status) {
	fmt.Println("--- session summary ---")
	fmt.Printf("ready: %v\n", status.Ready)
	for name, conn := range status.Connections {
		last := "never"
		if !conn.LastMessageTime.IsZero() {
			last = conn.LastMessageTime.Format(time.RFC3339)
		}
		fmt.Printf("%s: state=%s messages=%d reconnects=%d last_message=%s\n",
			name, conn.State, conn.MessageCount, conn.ReconnectAttempts, last)
	}
	for name, ping := range status.PingStats {
		fmt.Printf("%s pings: received=%d answered=%d\n",
			name, ping.RequestsReceived, ping.ResponsesSent)
	}
}

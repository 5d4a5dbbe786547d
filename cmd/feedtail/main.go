// Package main tails the realtime feed and prints every decoded event.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"token-find/internal/domain"
	"token-find/internal/feed"
	"token-find/internal/observability"
)

func main() {
	feedURL := flag.String("feed-url", os.Getenv("TOKENFIND_FEED_URL"), "Realtime feed websocket URL")
	copyTrades := flag.Bool("copytrades", true, "Subscribe to copy trades")
	mcUpdates := flag.Bool("mc-updates", false, "Subscribe to market-cap updates")
	asJSON := flag.Bool("json", false, "Print raw JSON frames")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (empty to disable)")

	flag.Parse()

	logger := log.New(os.Stderr, "[feedtail] ", log.LstdFlags)

	if *feedURL == "" {
		logger.Fatal("--feed-url is required")
	}

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	printer := &printer{out: os.Stdout, json: *asJSON}
	opts := feed.Options{
		SubscribeCopyTrades:       *copyTrades,
		SubscribeMarketCapUpdates: *mcUpdates,
	}
	client := feed.NewEnvelopeClient(*feedURL, printer.print, opts, nil, log.New(os.Stderr, "", log.LstdFlags))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Printf("Received signal %v, closing feed", sig)

	client.Close()
}

// printer writes one line per event.
type printer struct {
	out  io.Writer
	json bool
}

func (p *printer) print(env feed.Envelope) {
	if p.json {
		data, _ := json.Marshal(env)
		fmt.Fprintln(p.out, string(data))
		return
	}

	switch env.Event {
	case feed.EventCopyTrades:
		trades, err := env.CopyTrades()
		if err != nil {
			fmt.Fprintf(p.out, "%s: %v\n", env.Event, err)
			return
		}
		fmt.Fprintf(p.out, "snapshot: %d trades\n", len(trades))
		for i := range trades {
			fmt.Fprintln(p.out, "  "+formatTrade(&trades[i]))
		}

	case feed.EventNewTrade:
		t, err := env.NewTrade()
		if err != nil {
			fmt.Fprintf(p.out, "%s: %v\n", env.Event, err)
			return
		}
		fmt.Fprintln(p.out, formatTrade(t))

	case feed.EventMarketCapUpdate:
		u, err := env.MarketCapUpdate()
		if err != nil {
			fmt.Fprintf(p.out, "%s: %v\n", env.Event, err)
			return
		}
		fmt.Fprintf(p.out, "mc %s $%.0f (%+.2f%%) [%s]\n",
			u.TokenAddress, u.NewMarketCap, u.MarketCapGain, domain.BracketFor(u.NewMarketCap))

	case feed.EventError:
		msg, _ := env.ErrorMessage()
		fmt.Fprintf(p.out, "error: %s\n", msg)

	default:
		fmt.Fprintf(p.out, "unknown event %q\n", env.Event)
	}
}

func formatTrade(t *domain.TradeRecord) string {
	who := t.WalletLabel
	if who == "" {
		who = t.WalletAddress
	}
	symbol := t.TokenSymbol
	if symbol == "" {
		symbol = t.TokenAddress
	}
	return fmt.Sprintf("%s %s %s %.4f SOL @ $%.8f (mc $%.0f)", who, t.Side, symbol, t.AmountSOL, t.PriceUSD, t.MarketCap)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"net/http"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"unlimited/internal/engine"
	"unlimited/internal/ledger"
	"unlimited/internal/metrics"
	exchangeNet "unlimited/internal/net"
)

// logSink writes the engine's event stream to the structured log.
type logSink struct{}

func (logSink) Emit(ev engine.Event) {
	log.Info().Str("event", engine.Name(ev)).Any("payload", ev).Msg("engine event")
}

func main() {
	addr := flag.String("addr", "0.0.0.0", "Listen address")
	port := flag.Int("port", 9001, "Listen port")
	metricsAddr := flag.String("metrics-addr", "127.0.0.1:9102", "Prometheus scrape address, empty to disable")
	escrow := flag.String("escrow", "exchange", "Escrow account on both ledgers")
	feeRecipient := flag.String("fee-recipient", "treasury", "Account fees accrue to")
	feeAdmin := flag.String("fee-admin", "admin", "Account allowed to change fees")
	takerFee := flag.Uint64("taker-fee-bps", 0, "Taker fee in basis points")
	makerFee := flag.Uint64("maker-fee-bps", 0, "Maker fee in basis points")
	mint := flag.String("mint", "", "Bootstrap balances, e.g. alice:1000:500,bob:0:800")
	debug := flag.Bool("debug", false, "Verbose logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ledgerA := ledger.NewMemory(*escrow)
	ledgerB := ledger.NewMemory(*escrow)
	if err := seedBalances(ledgerA, ledgerB, *mint); err != nil {
		log.Fatal().Err(err).Msg("invalid -mint value")
	}

	reg := prometheus.NewRegistry()
	eng := engine.New(engine.Config{
		LedgerA:      ledgerA,
		LedgerB:      ledgerB,
		Escrow:       *escrow,
		FeeRecipient: *feeRecipient,
		FeeAdmin:     *feeAdmin,
		TakerFeeBPS:  *takerFee,
		MakerFeeBPS:  *makerFee,
		Sink:         logSink{},
		Metrics:      metrics.NewCollector(reg),
	})

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Error().Err(err).Msg("metrics listener stopped")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	srv := exchangeNet.New(*addr, *port, eng)
	go srv.Run(ctx)
	// Block on running the server.
	<-ctx.Done()
}

// seedBalances parses "account:amountA:amountB" entries and mints them.
func seedBalances(ledgerA, ledgerB *ledger.Memory, spec string) error {
	if spec == "" {
		return nil
	}
	for _, entry := range strings.Split(spec, ",") {
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return fmt.Errorf("malformed entry %q", entry)
		}
		a, okA := new(big.Int).SetString(parts[1], 10)
		b, okB := new(big.Int).SetString(parts[2], 10)
		if !okA || !okB || a.Sign() < 0 || b.Sign() < 0 {
			return fmt.Errorf("malformed amounts in %q", entry)
		}
		if a.Sign() > 0 {
			ledgerA.Mint(parts[0], a)
		}
		if b.Sign() > 0 {
			ledgerB.Mint(parts[0], b)
		}
	}
	return nil
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/basisalpha/basisbot/config"
	"github.com/basisalpha/basisbot/internal/exchange/okx"
	"github.com/basisalpha/basisbot/internal/notify"
	"github.com/basisalpha/basisbot/internal/services/instance"
	"github.com/basisalpha/basisbot/internal/storage/audit"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	cfg, err := config.Get()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go serveMetrics(cfg.MetricsAddr, logger)

	g, gctx := errgroup.WithContext(ctx)
	for _, ic := range cfg.Instances {
		ic := ic
		g.Go(func() error {
			return runInstance(gctx, ic, logger)
		})
		logger.Info("instance scheduled", zap.String("account", ic.Name))
	}

	if err := g.Wait(); err != nil {
		logger.Error("instance group failed", zap.Error(err))
		os.Exit(1)
	}
}

func runInstance(ctx context.Context, ic config.Instance, logger *zap.Logger) error {
	client, err := okx.New(ctx, ic.OKX, ic.Pairs, logger)
	if err != nil {
		return err
	}

	sink, err := buildSink(ctx, ic)
	if err != nil {
		return err
	}
	defer sink.Close()

	var notifier notify.Notifier = notify.Nop{}
	if ic.Telegram.Token != "" {
		tg, err := notify.NewTelegram(ic.Telegram.Token, ic.Telegram.ChatID)
		if err != nil {
			return err
		}
		notifier = tg
	}

	// the venue connection must outlive ctx: leg pairs draining after a
	// shutdown signal still need their fills delivered
	clientCtx, stopClient := context.WithCancel(context.WithoutCancel(ctx))
	defer stopClient()
	go client.Run(clientCtx)

	inst := instance.New(ic, instance.Collaborators{
		MarketFeed:  client.Market(),
		AccountFeed: client.Account(),
		Gateway:     client,
		Health:      client,
		Sink:        sink,
		Notifier:    notifier,
	}, logger)

	return inst.Run(ctx)
}

func buildSink(ctx context.Context, ic config.Instance) (audit.Sink, error) {
	var sinks audit.MultiSink

	wal, err := audit.NewWALStore(ic.WalDir)
	if err != nil {
		return nil, err
	}
	sinks = append(sinks, wal)

	if ic.PostgresDSN != "" {
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		pg, err := audit.NewPostgresSink(pgCtx, ic.PostgresDSN)
		if err != nil {
			wal.Close()
			return nil, err
		}
		sinks = append(sinks, pg)
	}
	return sinks, nil
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", zap.Error(err))
	}
}

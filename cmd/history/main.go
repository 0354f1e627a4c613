package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-retail-loyalty/internal/config"
	"github.com/ariefcatur/go-retail-loyalty/internal/history"
	kafkax "github.com/ariefcatur/go-retail-loyalty/internal/kafka"
	"github.com/ariefcatur/go-retail-loyalty/internal/logging"
	"github.com/ariefcatur/go-retail-loyalty/internal/redisx"
	"github.com/ariefcatur/go-retail-loyalty/internal/retail"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &history.Service{
		Redis:      rdb,
		MaxEntries: cfg.HistoryMaxEntries,
		Log:        log.Named("history"),
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.HistoryGroup, retail.TopicPointsChanged, cfg.HistoryWorkers, log)

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info("history consumer started",
			zap.String("group", cfg.HistoryGroup),
			zap.String("topic", retail.TopicPointsChanged),
			zap.Int("workers", cfg.HistoryWorkers),
		)
		if err := cons.Start(ctx, svc.HandlePointsChanged); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down consumer")
	cancel()
	<-done
}

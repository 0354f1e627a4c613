package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-retail-loyalty/internal/config"
	"github.com/ariefcatur/go-retail-loyalty/internal/history"
	"github.com/ariefcatur/go-retail-loyalty/internal/httpx"
	kafkax "github.com/ariefcatur/go-retail-loyalty/internal/kafka"
	"github.com/ariefcatur/go-retail-loyalty/internal/logging"
	"github.com/ariefcatur/go-retail-loyalty/internal/postgres"
	"github.com/ariefcatur/go-retail-loyalty/internal/redisx"
	"github.com/ariefcatur/go-retail-loyalty/internal/retail"
	"github.com/ariefcatur/go-retail-loyalty/internal/shop"
	"github.com/ariefcatur/go-retail-loyalty/internal/store"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
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

	// Catalog: YAML file when configured, Postgres otherwise
	catalog, rewards, err := loadCatalog(ctx, cfg)
	if err != nil {
		log.Fatal("load catalog", zap.Error(err))
	}
	log.Info("catalog loaded", zap.Int("products", catalog.Len()), zap.Int("rewards", len(rewards.List())))

	// Store; the points-history feed needs redis too
	var (
		st   store.Store
		hist httpx.HistoryReader
		rdb  *redis.Client
	)
	switch cfg.StoreBackend {
	case config.StoreRedis:
		rdb = redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("redis ping", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		st = store.NewRedis(rdb, cfg.SessionTTL)
		hist = &history.Service{Redis: rdb, MaxEntries: cfg.HistoryMaxEntries, Log: log}
	default:
		st = store.NewMemory()
	}

	// Kafka producers, one per topic
	txProd := kafkax.NewProducer(cfg.KafkaBrokers, retail.TopicTransactionCompleted, 1024, log)
	txProd.Start(ctx)
	ptProd := kafkax.NewProducer(cfg.KafkaBrokers, retail.TopicPointsChanged, 1024, log)
	ptProd.Start(ctx)

	ledger := retail.Ledger{Tiers: cfg.Tiers}
	svc := &shop.Service{
		Catalog:      catalog,
		Rewards:      rewards,
		Ledger:       ledger,
		Processor:    retail.Processor{AccrualBPS: cfg.AccrualBPS, Ledger: ledger},
		Store:        st,
		Transactions: txProd,
		Points:       ptProd,
		Log:          log.Named("shop"),
		ServiceName:  cfg.ServiceName,
		Retries:      cfg.CommitRetries,
	}

	router := httpx.NewRouter(log.Named("http"))
	(&httpx.ShopHandler{Shop: svc, History: hist, Log: log}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("http listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("store", cfg.StoreBackend),
			zap.Int64("accrual_bps", cfg.AccrualBPS),
			zap.Stringer("tiers", cfg.Tiers),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	txProd.Close()
	ptProd.Close()
	txProd.WaitClosed()
	ptProd.WaitClosed()
	cancel()
}

func loadCatalog(ctx context.Context, cfg config.Config) (retail.Catalog, retail.Rewards, error) {
	if cfg.CatalogFile != "" {
		return retail.LoadCatalogFile(cfg.CatalogFile)
	}

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return retail.Catalog{}, retail.Rewards{}, err
	}
	defer db.Close()

	repo := &retail.CatalogRepo{DB: db}
	cat, err := repo.LoadCatalog(ctx)
	if err != nil {
		return retail.Catalog{}, retail.Rewards{}, err
	}
	list, err := repo.ListRewards(ctx)
	if err != nil {
		return retail.Catalog{}, retail.Rewards{}, err
	}
	if len(list) == 0 {
		list = retail.DefaultRewards
	}
	rewards, err := retail.NewRewards(list)
	return cat, rewards, err
}

// Package main
package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/futarchyhub/coordinator-backend/api"
	"github.com/futarchyhub/coordinator-backend/cache"
	"github.com/futarchyhub/coordinator-backend/cfg"
	"github.com/futarchyhub/coordinator-backend/chain"
	"github.com/futarchyhub/coordinator-backend/db"
	"github.com/futarchyhub/coordinator-backend/external"
	"github.com/futarchyhub/coordinator-backend/handler"
	"github.com/futarchyhub/coordinator-backend/lifecycle"
	"github.com/futarchyhub/coordinator-backend/metrics"
	"github.com/futarchyhub/coordinator-backend/monitor"
	"github.com/futarchyhub/coordinator-backend/scheduler"
)

func main() {
	if err := godotenv.Load(); err != nil {
		panic(err.Error())
	}

	runtime.GOMAXPROCS(runtime.NumCPU())
	serviceCfg, err := cfg.New()
	if err != nil {
		panic(err.Error())
	}

	if err := setupSentry(serviceCfg); err != nil {
		panic(err)
	}
	defer sentry.Flush(2 * time.Second)

	logger, err := newLogger(serviceCfg)
	if err != nil {
		panic("cannot init logger")
	}
	logger.Info("Start coordinator...")

	defer func() {
		if err := recover(); err != nil {
			logger.Error("cannot recover")
		}
		if err := logger.Sync(); err != nil {
			logger.Error("cannot sync log")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	waitExit := make(chan bool)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for range sigCh {
			cancel()
			waitExit <- true
		}
	}()

	dbClient, err := db.NewClient(db.Config{
		DbAdapter: db.Adapter(serviceCfg.StorageDriver),
		DbName:    serviceCfg.StorageDB,
		URL:       serviceCfg.StorageURI,
		MinConn:   serviceCfg.StorageMinConn,
		MaxConn:   serviceCfg.StorageMaxConn,
		FlushDB:   serviceCfg.StorageIsFlush,
		Logger:    logger.With(zap.String("service", "storage")),
	})
	if err != nil {
		logger.Panic("cannot create storage client", zap.Error(err))
	}

	cacheClient, err := cache.New(cache.Config{
		Adapter:            cache.Adapter(serviceCfg.CacheEngine),
		URL:                serviceCfg.CacheURL,
		DB:                 serviceCfg.CacheDB,
		IsFlush:            serviceCfg.CacheIsFlush,
		DefaultExpiredTime: serviceCfg.CacheExpiredTime,
		Logger:             logger.With(zap.String("service", "cache")),
	})
	if err != nil {
		logger.Panic("cannot create cache client", zap.Error(err))
	}

	node, err := chain.NewNode(chain.NodeConfig{
		URL:            serviceCfg.ChainURL,
		RequestTimeout: serviceCfg.DefaultAPITimeout,
		Logger:         logger.With(zap.String("service", "chain")),
	})
	if err != nil {
		logger.Panic("cannot create chain node", zap.Error(err))
	}

	provider := metrics.New()

	sched := scheduler.New(scheduler.Config{
		DB:            dbClient,
		Metrics:       provider,
		CrankInterval: serviceCfg.CrankInterval,
		PriceInterval: serviceCfg.PriceRecordInterval,
		SpotInterval:  serviceCfg.SpotPriceInterval,
		Logger:        logger.With(zap.String("service", "scheduler")),
	})

	h, err := handler.New(handler.Config{
		Node:               node,
		DB:                 dbClient,
		Cache:              cacheClient,
		Scheduler:          sched,
		ModeratorAddress:   serviceCfg.ModeratorAddress,
		ModeratorAuthority: serviceCfg.ModeratorAuthority,
		BaseMint:           serviceCfg.BaseMint,
		QuoteMint:          serviceCfg.QuoteMint,
		ProposalLength:     serviceCfg.ProposalLength,
		FinalizeGrace:      serviceCfg.FinalizeGrace,
		Logger:             logger.With(zap.String("service", "handler")),
	})
	if err != nil {
		logger.Panic("cannot create handler", zap.Error(err))
	}
	sched.SetRunner(h)

	if err := h.RestoreTasks(ctx); err != nil {
		logger.Panic("cannot restore tasks", zap.Error(err))
	}

	listing := external.NewListingClient(serviceCfg.ListingAPIURL, serviceCfg.DefaultAPITimeout)
	settlement := external.NewSettlementClient(
		serviceCfg.SettlementAPIURL,
		serviceCfg.DefaultAPITimeout,
		logger.With(zap.String("service", "settlement")),
	)

	watcher := monitor.New(monitor.Config{
		Node:              node,
		Listing:           listing,
		Cache:             cacheClient,
		Metrics:           provider,
		AutocratProgram:   serviceCfg.AutocratProgram,
		AmmProgram:        serviceCfg.AmmProgram,
		TrackedModerators: serviceCfg.TrackedModerators,
		PollInterval:      serviceCfg.LogPollInterval,
		Logger:            logger.With(zap.String("service", "monitor")),
	})
	if err := watcher.Backfill(ctx); err != nil {
		logger.Error("cannot backfill tracked proposals", zap.Error(err))
	}

	settlementSvc := lifecycle.New(lifecycle.Config{
		Source:     watcher,
		Settlement: settlement,
		Metrics:    provider,
		Logger:     logger.With(zap.String("service", "lifecycle")),
	})

	go watcher.Run(ctx)
	go settlementSvc.Run(ctx)

	srv := (&api.Server{}).
		SetSecret(serviceCfg.HttpRequestSecret).
		SetLogger(logger.With(zap.String("service", "api"))).
		SetStorage(dbClient).
		SetCache(cacheClient).
		SetModerator(h).
		SetScheduler(sched).
		SetMonitor(watcher).
		SetLifecycle(settlementSvc).
		SetMetrics(provider)
	go api.Start(srv, serviceCfg)

	<-waitExit
	sched.StopAll()
	logger.Info("Coordinator stopped")
}

func setupSentry(cfg cfg.CoordinatorConfig) error {
	opts := sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.ServerMode,
	}
	return sentry.Init(opts)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	ehttp "github.com/radieske/props-entry-platform/internal/entry-service/http"
	"github.com/radieske/props-entry-platform/internal/entry-service/entry"
	"github.com/radieske/props-entry-platform/internal/entry-service/ledger"
	"github.com/radieske/props-entry-platform/internal/entry-service/lines"
	"github.com/radieske/props-entry-platform/internal/entry-service/placement"
	kpub "github.com/radieske/props-entry-platform/internal/entry-service/producer"
	"github.com/radieske/props-entry-platform/internal/entry-service/repo"
	"github.com/radieske/props-entry-platform/internal/entry-service/settlement"
	"github.com/radieske/props-entry-platform/internal/shared/cache"
	"github.com/radieske/props-entry-platform/internal/shared/config"
	"github.com/radieske/props-entry-platform/internal/shared/db"
	"github.com/radieske/props-entry-platform/internal/shared/kafka"
	"github.com/radieske/props-entry-platform/internal/shared/logger"
	"github.com/radieske/props-entry-platform/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "entry-service"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// banco: Postgres em produção, SQLite local
	conn, err := db.Connect(cfg.DBDriver, cfg.PostgresDSN, cfg.SQLitePath)
	if err != nil {
		log.Fatal("db connect", zap.String("driver", cfg.DBDriver), zap.Error(err))
	}
	defer conn.Close()
	if cfg.AutoMigrate {
		applied, err := db.Migrate(ctx, conn, cfg.DBDriver)
		if err != nil {
			log.Fatal("migrate", zap.Error(err))
		}
		log.Info("migrations applied", zap.Strings("files", applied))
	}

	d, err := repo.DialectFor(cfg.DBDriver)
	if err != nil {
		log.Fatal("dialect", zap.Error(err))
	}
	store := repo.New(conn, d, repo.WithRetries(cfg.TxMaxRetries, cfg.TxBackoff))

	// Redis é só pré-check de linhas; localmente dá para rodar sem
	var (
		rdb       *redis.Client
		lineCache *lines.Cache
	)
	if rdb, err = cache.ConnectRedis(ctx, cfg.RedisAddr); err != nil {
		if cfg.Env != "local" {
			log.Fatal("redis connect", zap.Error(err))
		}
		log.Warn("redis unavailable, running without line cache", zap.Error(err))
	} else {
		defer rdb.Close()
		lineCache = lines.NewCache(rdb, 0)
	}

	// um writer para entry_placed e entry_settled (tópico vai na mensagem)
	writer := kafka.NewWriter(cfg.KafkaBrokers, "")
	defer writer.Close()
	publ := kpub.NewKafkaPublisher(writer, cfg.TopicEntryPlaced, cfg.TopicEntrySettled)

	m := metrics.NewEntry(prometheus.DefaultRegisterer)
	l := ledger.New(cfg.MaxBalanceCents)

	// interfaces opcionais só recebem valor não-nil
	var (
		placeCache placement.LineStatusCache
		lineWriter settlement.LineStatusWriter
	)
	if lineCache != nil {
		placeCache, lineWriter = lineCache, lineCache
	}

	svc := placement.NewService(log, store, l, placement.Config{
		MinWagerCents: cfg.MinWagerCents,
		MaxWagerCents: cfg.MaxWagerCents,
	}, placeCache, publ)
	svc.OnPlaced = func(e entry.Entry) { m.ObservePlaced(e.WagerCents) }
	svc.OnRejected = m.ObserveRejected

	engine := settlement.NewEngine(log, store, l, publ, lineWriter)
	engine.OnLegResolved = func(r entry.LegResult) { m.ObserveLeg(string(r)) }
	engine.OnEntrySettled = func(s entry.Status) { m.ObserveSettled(string(s)) }

	if cfg.AdminToken == "" {
		log.Warn("ADMIN_TOKEN not set, settlement endpoints will reject every request")
	}
	api := ehttp.NewServer(log, store, l, svc, engine, ehttp.HeaderIdentity{}, ehttp.TokenAuthorizer{Token: cfg.AdminToken})
	api.AutoProvisionCents = cfg.AutoProvisionBalanceCents

	apiSrv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	checks := map[string]metrics.HealthFunc{"db": store.Ping}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	metricsSrv := metrics.NewServer(cfg.MetricsPort, metrics.Checks(checks))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("entry-service listening", zap.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
		return apiSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("entry-service stopped with error", zap.Error(err))
		return
	}
	log.Info("entry-service stopped")
}

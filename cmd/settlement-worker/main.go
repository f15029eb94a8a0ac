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
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radieske/props-entry-platform/internal/entry-service/entry"
	"github.com/radieske/props-entry-platform/internal/entry-service/ledger"
	"github.com/radieske/props-entry-platform/internal/entry-service/lines"
	kpub "github.com/radieske/props-entry-platform/internal/entry-service/producer"
	"github.com/radieske/props-entry-platform/internal/entry-service/repo"
	"github.com/radieske/props-entry-platform/internal/entry-service/settlement"
	"github.com/radieske/props-entry-platform/internal/settlement-worker/consumer"
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
		cfg.ServiceName = "settlement-worker"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conn, err := db.Connect(cfg.DBDriver, cfg.PostgresDSN, cfg.SQLitePath)
	if err != nil {
		log.Fatal("db connect", zap.String("driver", cfg.DBDriver), zap.Error(err))
	}
	defer conn.Close()

	d, err := repo.DialectFor(cfg.DBDriver)
	if err != nil {
		log.Fatal("dialect", zap.Error(err))
	}
	store := repo.New(conn, d, repo.WithRetries(cfg.TxMaxRetries, cfg.TxBackoff))

	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	writer := kafka.NewWriter(cfg.KafkaBrokers, "")
	defer writer.Close()

	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicPropResults, "settlement-worker")
	defer reader.Close()

	em := metrics.NewEntry(prometheus.DefaultRegisterer)
	wm := metrics.NewWorker(prometheus.DefaultRegisterer)

	engine := settlement.NewEngine(log, store, ledger.New(cfg.MaxBalanceCents),
		kpub.NewKafkaPublisher(writer, cfg.TopicEntryPlaced, cfg.TopicEntrySettled),
		lines.NewCache(rdb, 0))
	engine.OnLegResolved = func(r entry.LegResult) { em.ObserveLeg(string(r)) }
	engine.OnEntrySettled = func(s entry.Status) { em.ObserveSettled(string(s)) }

	proc := &consumer.Processor{
		Log:         log,
		Reader:      reader,
		Resolver:    engine,
		DLQ:         writer,
		DLQTopic:    cfg.TopicPropResultsDLQ,
		MaxAttempts: cfg.TxMaxRetries,
		Backoff:     time.Second,
		OnConsumed:  wm.Consumed.Inc,
		OnApplied:   wm.Applied.Inc,
		OnDLQ:       wm.DLQ.Inc,
		OnError:     func(stage string) { wm.Errors.WithLabelValues(stage).Inc() },
	}

	metricsSrv := metrics.NewServer(cfg.MetricsPort, metrics.Checks(map[string]metrics.HealthFunc{
		"db":    store.Ping,
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("settlement-worker started", zap.String("topic", cfg.TopicPropResults))
		if err := proc.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("settlement-worker stopped with error", zap.Error(err))
		return
	}
	log.Info("settlement-worker stopped")
}

// Command reconcile is the reconciliation engine's composition root: it
// loads configuration, wires the Record Store, Resilience Manager,
// Matching Engine, Job Processor, and Adjudication Service together,
// and runs until signaled to stop. HTTP transport is out of scope
// (spec Non-goal); this binary is the long-running worker that a
// caller's own API layer would submit jobs to and poll progress from.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Ramsey-B/reconcile/config"
	"github.com/Ramsey-B/reconcile/internal/apiclient"
	"github.com/Ramsey-B/reconcile/internal/jobqueue"
	"github.com/Ramsey-B/reconcile/internal/otelmetrics"
	"github.com/Ramsey-B/reconcile/internal/pgstore"
	"github.com/Ramsey-B/reconcile/internal/rediscache"
	"github.com/Ramsey-B/reconcile/internal/tracing"
	"github.com/Ramsey-B/reconcile/pkg/adjudication"
	"github.com/Ramsey-B/reconcile/pkg/core"
	"github.com/Ramsey-B/reconcile/pkg/graphlink"
	"github.com/Ramsey-B/reconcile/pkg/jobprocessor"
	"github.com/Ramsey-B/reconcile/pkg/jobstate"
	"github.com/Ramsey-B/reconcile/pkg/matching"
	"github.com/Ramsey-B/reconcile/pkg/resilience"
)

func main() {
	var cfg config.Config
	if err := ectoenv.Load(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "reconcile: loading config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	tracing.SetTracer(newTracerProvider(cfg).Tracer(cfg.AppName))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("reconcile: fatal startup error")
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) ectologger.Logger {
	return ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		if cfg.PrettyLogs {
			fmt.Fprintf(os.Stdout, "%+v\n", msg)
			return
		}
		line, err := json.Marshal(msg)
		if err != nil {
			return
		}
		fmt.Fprintln(os.Stdout, string(line))
	})
}

// newTracerProvider builds an SDK tracer provider with no exporter
// attached: span contexts are still generated and propagated for
// correlation across the job/Kafka/API boundary, but nothing is
// shipped off-process without an OTLP exporter configured — this repo
// does not carry otlp exporter packages (see DESIGN.md).
func newTracerProvider(cfg config.Config) *sdktrace.TracerProvider {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	return tp
}

func run(ctx context.Context, cfg config.Config, logger ectologger.Logger) error {
	clock := core.NewSystemClock()
	meter := otel.Meter(cfg.AppName)
	metrics := otelmetrics.New(meter)

	db, err := connectPostgres(cfg)
	if err != nil {
		return fmt.Errorf("reconcile: connect postgres: %w", err)
	}
	defer db.Close()

	if err := pgstore.Migrate(db.DB, cfg.DatabaseMigrationFolderPath, logger); err != nil {
		return fmt.Errorf("reconcile: run migrations: %w", err)
	}

	store := pgstore.New(db, logger)
	if err := ectoinject.AddSingleton[core.RecordStore](store); err != nil {
		logger.WithError(err).Warn("reconcile: DI registration for RecordStore failed")
	}

	var cache core.Cache
	if cfg.CacheEnabled {
		rc, err := rediscache.New(rediscache.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			logger.WithError(err).Warn("reconcile: redis unavailable, continuing without cache")
		} else {
			defer rc.Close()
			cache = rc
			_ = ectoinject.AddSingleton[core.Cache](cache)
		}
	}

	resilienceMgr := resilience.NewManager(resilience.Config{
		DatabaseFailureThreshold: cfg.DBFailureThreshold,
		DatabaseRecoveryTimeout:  cfg.DBRecoveryTimeout,
		CacheFailureThreshold:    cfg.CacheFailureThreshold,
		CacheRecoveryTimeout:     cfg.CacheRecoveryTimeout,
		APIFailureThreshold:      cfg.APIFailureThreshold,
		APIRecoveryTimeout:       cfg.APIRecoveryTimeout,
		APIMaxRetries:            cfg.APIMaxRetries,
		APIInitialBackoff:        time.Duration(cfg.APIInitialBackoffMS) * time.Millisecond,
	}, clock, logger, metrics)
	_ = ectoinject.AddSingleton[*resilience.Manager](resilienceMgr)

	engine := matching.NewEngine(logger, matching.Config{AdjudicationBandFraction: cfg.AdjudicationBandFraction})

	if cfg.GraphEnabled {
		gc, err := graphlink.NewClient(graphlink.Config{
			URI:      cfg.GraphDBURI,
			Username: cfg.GraphDBUser,
			Password: cfg.GraphDBPassword,
		}, logger)
		if err != nil {
			logger.WithError(err).Warn("reconcile: graph database unavailable, relationship hints disabled")
		} else {
			defer gc.Close(ctx)
			engine.WithRelationshipHint(graphlink.NewHint(gc))
		}
	}

	if cfg.APIBaseURL != "" {
		// Registered for DI resolution by a future remote-source adapter;
		// no component in this binary routes a job's DataSource to it yet
		// (RecordStore selection per-job is left to the caller's own
		// composition, see DESIGN.md).
		apiClient := apiclient.New(apiclient.Config{
			BaseURL: cfg.APIBaseURL,
			Timeout: cfg.APIRequestTimeout,
		}, logger)
		_ = apiClient
	}

	machine := jobstate.New(store, clock, logger)
	adjudicationSvc := adjudication.New(store, clock, logger)
	if err := ectoinject.AddSingleton[*adjudication.Service](adjudicationSvc); err != nil {
		logger.WithError(err).Warn("reconcile: DI registration for adjudication.Service failed")
	}

	var broadcast core.BroadcastSink
	var jobProducer *jobqueue.Producer
	if cfg.KafkaEnabled {
		jobProducer = jobqueue.NewProducer(jobqueue.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaJobsTopic + ".events",
			BatchSize:    100,
			BatchTimeout: 100 * time.Millisecond,
			RequiredAcks: 1,
		}, logger)
		defer jobProducer.Close()
		broadcast = jobProducer
	}

	processor := jobprocessor.New(jobprocessor.Config{
		Concurrency:        cfg.JobConcurrency,
		QueueCapacity:      cfg.JobQueueCapacity,
		CheckpointInterval: cfg.PerRecordCheckpointInterval,
		JobDeadline:        time.Duration(cfg.JobDeadlineSeconds) * time.Second,
		StuckSweepInterval: time.Duration(cfg.StuckSweepIntervalSeconds) * time.Second,
		BatchSize:          cfg.MatchBatchSize,
	}, store, resilienceMgr, engine, machine, broadcast, metrics, clock, logger).
		WithCache(cache).
		WithAdjudication(adjudicationSvc)

	if err := processor.Start(ctx); err != nil {
		return fmt.Errorf("reconcile: start job processor: %w", err)
	}

	var jobConsumer *jobqueue.Consumer
	if cfg.KafkaEnabled {
		jobConsumer = jobqueue.NewConsumer(jobqueue.ConsumerConfig{
			Brokers:       cfg.KafkaBrokers,
			Topic:         cfg.KafkaJobsTopic,
			ConsumerGroup: cfg.KafkaConsumerGroup,
		}, logger, processor)
		if err := jobConsumer.Start(ctx); err != nil {
			return fmt.Errorf("reconcile: start job intake consumer: %w", err)
		}
	}

	logger.WithContext(ctx).WithFields(map[string]any{
		"app":         cfg.AppName,
		"concurrency": cfg.JobConcurrency,
	}).Info("reconcile: started")

	<-ctx.Done()
	logger.Info("reconcile: shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if jobConsumer != nil {
		if err := jobConsumer.Stop(); err != nil {
			logger.WithError(err).Warn("reconcile: job intake consumer stop error")
		}
	}
	if err := processor.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("reconcile: job processor stop error")
	}

	return nil
}

func connectPostgres(cfg config.Config) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		url.QueryEscape(cfg.DatabaseUserName),
		url.QueryEscape(cfg.DatabasePassword),
		cfg.DatabaseHost,
		cfg.DatabasePort,
		cfg.DatabaseName,
		cfg.DatabaseSSLMode,
	)

	db, err := sqlx.Connect(cfg.DatabaseDriver, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)
	return db, nil
}

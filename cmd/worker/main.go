// Worker consumes sync jobs from Kafka and runs the relay pipeline for each:
// fetch from GPServer, validate, transform, deliver to MININTER, record the
// transmission. Set DATABASE_URL and KAFKA_BROKERS; everything else has
// defaults.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"mininter-gps-proxy/backend/internal/config"
	"mininter-gps-proxy/backend/internal/db"
	"mininter-gps-proxy/backend/internal/gpserver"
	"mininter-gps-proxy/backend/internal/lease"
	"mininter-gps-proxy/backend/internal/logging"
	logotel "mininter-gps-proxy/backend/internal/logging/otel"
	"mininter-gps-proxy/backend/internal/mininter"
	munirepo "mininter-gps-proxy/backend/internal/municipality/repository"
	"mininter-gps-proxy/backend/internal/queue"
	syncsvc "mininter-gps-proxy/backend/internal/sync"
	"mininter-gps-proxy/backend/internal/transform"
	txrepo "mininter-gps-proxy/backend/internal/transmission/repository"
	"mininter-gps-proxy/backend/internal/validation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("worker: DATABASE_URL is required")
	}
	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Fatal("worker: KAFKA_BROKERS is required")
	}
	minTLS, err := cfg.MinTLSVersion()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("worker: shutting down...")
		cancel()
	}()

	providers, err := logotel.NewProviders(ctx, cfg.OTLPEndpoint, "gps-proxy-worker", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	sinks := []logging.Sink{logging.StdSink{}}
	if kafkaSink := logging.NewKafkaSink(brokers, cfg.KafkaLogTopic); kafkaSink != nil {
		defer kafkaSink.Close()
		sinks = append(sinks, kafkaSink)
	}
	if lokiSink := logging.NewLokiSink(cfg.LokiURL); lokiSink != nil {
		sinks = append(sinks, lokiSink)
	}
	if cfg.OTLPEndpoint != "" {
		sinks = append(sinks, logotel.NewLogSink(providers.LoggerProvider))
	}
	logger := logging.New(sinks...)

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer database.Close()

	fetcher := gpserver.NewClient(cfg.GPServerBaseURL, cfg.GPServerTimeout(), cfg.GPServerRetryAttempts, cfg.GPServerRetryDelay(), logger)
	sender := mininter.NewClient(
		cfg.MininterSerenazgoEndpoint,
		cfg.MininterPolicialEndpoint,
		cfg.MininterTimeout(),
		cfg.MininterRetryAttempts,
		cfg.MininterRetryDelay(),
		minTLS,
		cfg.MininterVerifySSL,
		logger,
	)
	validator := validation.New(validation.Config{
		LatMin:      cfg.BoundsLatMin,
		LatMax:      cfg.BoundsLatMax,
		LngMin:      cfg.BoundsLngMin,
		LngMax:      cfg.BoundsLngMax,
		MaxSpeedKMH: cfg.MaxSpeedKMH,
		MinYear:     cfg.MinYear,
	})
	transformer := transform.New(cfg.CoordinatePrecision, cfg.Timezone(), cfg.DefaultUbigeo, logger)

	orch := syncsvc.New(
		munirepo.NewPostgresRepository(database),
		txrepo.NewPostgresRepository(database),
		lease.NewPostgresLease(database),
		fetcher,
		validator,
		transformer,
		sender,
		logger,
	)

	meter := providers.MeterProvider.Meter("gps-proxy-worker")
	runCounter, err := meter.Int64Counter("sync_runs_total",
		metric.WithDescription("Sync runs by outcome"))
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	recordCounter, err := meter.Int64Counter("records_delivered_total",
		metric.WithDescription("GPS records delivered to MININTER"))
	if err != nil {
		log.Fatalf("otel: %v", err)
	}

	policy := syncsvc.DefaultRetryPolicy()
	policy.OnFinalFailure = func(ctx context.Context, municipalityID string, attempts int, err error) {
		logger.FinalFailure(ctx, municipalityID, attempts, err)
	}

	consumer := queue.NewKafkaConsumer(brokers, cfg.KafkaSyncTopic, cfg.KafkaGroupID, logger)
	defer consumer.Close()

	log.Printf("worker: consuming from %s (group %s)", cfg.KafkaSyncTopic, cfg.KafkaGroupID)

	err = consumer.Run(ctx, func(ctx context.Context, job queue.Job) error {
		res, err := orch.RunWithRetry(ctx, job.MunicipalityID, policy)
		runCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", string(res.Outcome)),
		))
		if res.Delivered > 0 {
			recordCounter.Add(ctx, int64(res.Delivered), metric.WithAttributes(
				attribute.String("municipality", job.MunicipalityID),
			))
		}
		return err
	})
	if err != nil && ctx.Err() == nil {
		log.Fatalf("worker: %v", err)
	}
	log.Println("worker: stopped")
}

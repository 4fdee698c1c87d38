// Scheduler enqueues a sync job for every active municipality on a fixed
// interval. Each job is delayed by a small random stagger so the workers do
// not hammer GPServer with every municipality at once.
// Set DATABASE_URL and KAFKA_BROKERS.
package main

import (
	"context"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"mininter-gps-proxy/backend/internal/config"
	"mininter-gps-proxy/backend/internal/db"
	"mininter-gps-proxy/backend/internal/logging"
	munirepo "mininter-gps-proxy/backend/internal/municipality/repository"
	"mininter-gps-proxy/backend/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("scheduler: DATABASE_URL is required")
	}
	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Fatal("scheduler: KAFKA_BROKERS is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("scheduler: shutting down...")
		cancel()
	}()

	logger := logging.New(logging.StdSink{})

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer database.Close()

	munis := munirepo.NewPostgresRepository(database)
	producer := queue.NewKafkaProducer(brokers, cfg.KafkaSyncTopic)
	defer producer.Close()

	interval := cfg.SyncInterval()
	log.Printf("scheduler: enqueuing to %s every %s", cfg.KafkaSyncTopic, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	enqueueRound(ctx, cfg, logger, munis, producer)
	for {
		select {
		case <-ctx.Done():
			log.Println("scheduler: stopped")
			return
		case <-ticker.C:
			enqueueRound(ctx, cfg, logger, munis, producer)
		}
	}
}

// enqueueRound lists active municipalities and enqueues one job each, spread
// over a random stagger. The round waits for its stragglers so a slow round
// never overlaps the next tick's view of the municipality list.
func enqueueRound(ctx context.Context, cfg *config.Config, logger *logging.Logger, munis munirepo.Repository, producer queue.Producer) {
	active, err := munis.ListActive(ctx)
	if err != nil {
		logger.Error(ctx, logging.ChannelSystem, "listing active municipalities failed", map[string]any{
			"error": err.Error(),
		})
		return
	}
	if len(active) == 0 {
		logger.Info(ctx, logging.ChannelSystem, "no active municipalities to sync", nil)
		return
	}

	staggerMax := time.Duration(cfg.SyncStaggerMaxSec) * time.Second
	var wg sync.WaitGroup
	for _, m := range active {
		wg.Add(1)
		go func(municipalityID string) {
			defer wg.Done()
			if staggerMax > 0 {
				delay := time.Duration(rand.Int63n(int64(staggerMax)))
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
			}
			job := queue.Job{
				JobID:          uuid.NewString(),
				MunicipalityID: municipalityID,
				EnqueuedAt:     time.Now().UTC(),
			}
			if err := producer.Enqueue(ctx, job); err != nil {
				logger.Error(ctx, logging.ChannelSystem, "enqueuing sync job failed", map[string]any{
					"municipality": municipalityID,
					"error":        err.Error(),
				})
				return
			}
			logger.Debug(ctx, logging.ChannelSystem, "sync job enqueued", map[string]any{
				"job_id":       job.JobID,
				"municipality": municipalityID,
			})
		}(m.ID)
	}
	wg.Wait()
}

package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"faceattend/internal/config"
	"faceattend/internal/faceclient"
	"faceattend/internal/queue"
	"faceattend/internal/store"
)

// Worker consumes check-in events, runs 1:1 face verification for each
// record's snapshot, and writes the similarity score back onto the record.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	gateway, err := openGateway(cfg)
	if err != nil {
		log.Fatalf("store open failed: %v", err)
	}
	defer gateway.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "faceattend:checkins")
	}

	face := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip)
	if !cfg.FaceSkip {
		if err := face.Health(ctx); err != nil {
			log.Printf("WARNING: face service not available: %v", err)
			log.Println("Worker will retry verification when events arrive")
		} else {
			log.Println("Face service connected")
		}
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for check-ins...")
	for msg := range messages {
		if msg.Type != "checkin" {
			continue
		}

		id := string(msg.Body)
		log.Printf("verifying record %s", id)

		rec, err := gateway.RecordByID(ctx, id)
		if err != nil {
			log.Printf("fetch record %s failed: %v", id, err)
			continue
		}
		if rec.SnapshotURL == "" {
			log.Printf("record %s has no snapshot, skipping verification", id)
			continue
		}

		result, err := face.Verify(ctx, rec.UserID, rec.SnapshotURL)
		if err != nil {
			log.Printf("face verify failed for %s: %v", id, err)
			continue
		}

		log.Printf("record %s: verified=%v similarity=%.2f", id, result.Verified, result.Similarity)
		if err := gateway.UpdateRecordScore(ctx, id, result.Similarity); err != nil {
			log.Printf("score update failed for %s: %v", id, err)
		}

		time.Sleep(10 * time.Millisecond) // Small delay between events
	}

	log.Println("worker stopped")
}

// openGateway connects the worker's persistence. The localfile store is owned
// by a single process; a second writer would overwrite the API's data, so the
// worker only runs against postgres.
func openGateway(cfg config.App) (store.Gateway, error) {
	if cfg.StoreBackend == "localfile" {
		return nil, errors.New("localfile store supports one process; run the worker with STORE_BACKEND=postgres")
	}
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return store.NewPostgres(db.Client), nil
}

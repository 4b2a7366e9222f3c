// cmd/historian/main.go is an asynchronous historian service that pops
// transcript turns from a Redis queue and persists them to PostgreSQL. It
// also flags matches whose transcript stream went quiet without completing.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"

	"github.com/rebuttal-gg/rebuttal/internal/cache"
	"github.com/rebuttal-gg/rebuttal/internal/database"
)

// HistorianService encapsulates the Redis + DB logic for capturing session
// transcripts and marking matches abandoned after an inactivity threshold.
type HistorianService struct {
	redisClient  *redis.Client
	queueName    string
	batchSize    int
	flushDelay   time.Duration
	inactivity   time.Duration
	lastActivity sync.Map // map[uuid.UUID]time.Time per session

	batchMu  sync.Mutex
	batch    []database.TurnRow
	ctx      context.Context
	cancelFn context.CancelFunc
}

// NewHistorianService constructs a service from environment variables or
// defaults.
func NewHistorianService() *HistorianService {
	batchSize := cache.GetEnvInt("HISTORIAN_BATCH_SIZE", 20)
	flushMs := cache.GetEnvInt("HISTORIAN_FLUSH_MS", 500)
	inactivitySec := cache.GetEnvInt("MATCH_INACTIVITY_TIMEOUT_SEC", 600)

	rdb := redis.NewClient(&redis.Options{
		Addr: cache.GetEnv("REDIS_ADDR", "localhost:6379"),
		DB:   cache.GetEnvInt("REDIS_DB", 0),
	})

	ctx, cancel := context.WithCancel(context.Background())
	return &HistorianService{
		redisClient: rdb,
		queueName:   cache.GetEnv("TRANSCRIPT_QUEUE_NAME", cache.DefaultQueueName),
		batchSize:   batchSize,
		flushDelay:  time.Duration(flushMs) * time.Millisecond,
		inactivity:  time.Duration(inactivitySec) * time.Second,
		batch:       make([]database.TurnRow, 0, batchSize),
		ctx:         ctx,
		cancelFn:    cancel,
	}
}

// Run starts the queue drain loop and the periodic inactivity check.
func (hs *HistorianService) Run() {
	database.ConnectDB()

	go hs.readRedisLoop()
	go hs.inactivityLoop()

	log.Println("rebuttal-historian service started.")
	<-hs.ctx.Done()
	hs.flushBatchToDB()
	log.Println("rebuttal-historian shutting down.")
}

// readRedisLoop continuously uses BLPop to retrieve transcript turns.
func (hs *HistorianService) readRedisLoop() {
	ticker := time.NewTicker(hs.flushDelay)
	defer ticker.Stop()

	for {
		select {
		case <-hs.ctx.Done():
			return

		case <-ticker.C:
			hs.flushBatchToDB()

		default:
			// BLPop with a short timeout so context cancellation is handled.
			res, err := hs.redisClient.BLPop(hs.ctx, 3*time.Second, hs.queueName).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				log.Printf("[ERROR] BLPop: %v\n", err)
				continue
			}
			if len(res) < 2 {
				continue
			}

			// res[0] is the queue name and res[1] the payload.
			var turn cache.TranscriptTurn
			if err := json.Unmarshal([]byte(res[1]), &turn); err != nil {
				log.Printf("invalid transcript turn: %v\n", err)
				continue
			}

			hs.lastActivity.Store(turn.SessionID, time.Now())
			hs.appendToBatch(database.TurnRow{
				SessionID: turn.SessionID,
				TurnIndex: turn.TurnIndex,
				Handle:    turn.Handle,
				Stance:    turn.Stance,
				Content:   turn.Content,
				Elapsed:   turn.Elapsed,
				Timeout:   turn.Timeout,
			})
		}
	}
}

// appendToBatch adds a row and flushes when the threshold is reached.
func (hs *HistorianService) appendToBatch(row database.TurnRow) {
	hs.batchMu.Lock()
	flush := false
	hs.batch = append(hs.batch, row)
	if len(hs.batch) >= hs.batchSize {
		flush = true
	}
	hs.batchMu.Unlock()
	if flush {
		hs.flushBatchToDB()
	}
}

// flushBatchToDB persists the current batch in a single transaction.
func (hs *HistorianService) flushBatchToDB() {
	hs.batchMu.Lock()
	if len(hs.batch) == 0 {
		hs.batchMu.Unlock()
		return
	}
	batchCopy := make([]database.TurnRow, len(hs.batch))
	copy(batchCopy, hs.batch)
	hs.batch = hs.batch[:0]
	hs.batchMu.Unlock()

	if err := database.InsertTurns(context.Background(), batchCopy); err != nil {
		log.Printf("[ERROR] flushBatchToDB: %v\n", err)
		return
	}
	log.Printf("Flushed %d transcript turns to DB.\n", len(batchCopy))
}

// inactivityLoop periodically marks sessions whose transcript stream has
// been quiet beyond the configured threshold as abandoned.
func (hs *HistorianService) inactivityLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-hs.ctx.Done():
			return

		case <-ticker.C:
			now := time.Now()
			hs.lastActivity.Range(func(key, val interface{}) bool {
				sessionID, ok1 := key.(uuid.UUID)
				last, ok2 := val.(time.Time)
				if ok1 && ok2 && now.Sub(last) > hs.inactivity {
					if err := database.MarkMatchAbandoned(context.Background(), sessionID); err != nil {
						log.Printf("failed to mark match %v abandoned: %v", sessionID, err)
					} else {
						log.Printf("Marked match %v as abandoned due to inactivity.", sessionID)
					}
					hs.lastActivity.Delete(sessionID)
				}
				return true
			})
		}
	}
}

// Stop gracefully stops the historian service.
func (hs *HistorianService) Stop() {
	hs.cancelFn()
}

func main() {
	hs := NewHistorianService()
	go hs.Run()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	hs.Stop()
	log.Println("Historian shutdown complete.")
}

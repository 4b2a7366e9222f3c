// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Rdb is the global Redis client. Connect it once at application startup.
var Rdb *redis.Client

// DefaultQueueName is the Redis list drained by the transcript historian.
var DefaultQueueName = "rebuttal_transcripts"

// TranscriptTurn is one argument of a completed session, queued for the
// historian to persist.
type TranscriptTurn struct {
	SessionID uuid.UUID `json:"session_id"`
	TurnIndex int       `json:"turn_index"`
	Handle    string    `json:"handle"`
	Stance    string    `json:"stance"`
	Content   string    `json:"content"`
	Elapsed   int       `json:"elapsed"`
	Timeout   bool      `json:"timeout"`
	Timestamp int64     `json:"timestamp"`
}

// ConnectRedis initializes the global Redis client from environment
// variables REDIS_ADDR (default "localhost:6379") and REDIS_DB (default 0).
func ConnectRedis() error {
	addr := GetEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := GetEnvInt("REDIS_DB", 0)

	Rdb = redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return nil
}

// PublishTranscriptTurn serializes one turn and pushes it onto the
// historian queue. Cheap network send only; callers treat failure as
// non-fatal.
func PublishTranscriptTurn(ctx context.Context, turn TranscriptTurn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript turn: %w", err)
	}

	queueName := GetEnv("TRANSCRIPT_QUEUE_NAME", DefaultQueueName)
	if err := Rdb.RPush(ctx, queueName, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", queueName, err)
	}
	return nil
}

// GetEnv reads an environment variable or returns a default value.
func GetEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// GetEnvInt parses an environment variable as an integer, else a default.
func GetEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const flashTTL = 10 * time.Minute

const (
	FlashSuccess = "success"
	FlashError   = "error"
)

type Flash struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// FlashService keeps one-shot status messages per session in Redis.
type FlashService struct {
	redis *redis.Client
}

func NewFlashService(redis *redis.Client) *FlashService {
	return &FlashService{redis: redis}
}

func (s *FlashService) Add(ctx context.Context, sessionID string, flash Flash) error {
	data, err := json.Marshal(flash)
	if err != nil {
		return fmt.Errorf("failed to marshal flash: %w", err)
	}

	key := flashKey(sessionID)
	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, flashTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store flash in Redis: %w", err)
	}
	return nil
}

func (s *FlashService) Success(ctx context.Context, sessionID, message string) error {
	return s.Add(ctx, sessionID, Flash{Level: FlashSuccess, Message: message})
}

// Pop returns the pending messages for the session in the order they were
// added and removes them, so each message is read once.
func (s *FlashService) Pop(ctx context.Context, sessionID string) ([]Flash, error) {
	key := flashKey(sessionID)

	var entries *redis.StringSliceCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		entries = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read flash from Redis: %w", err)
	}

	flashes := make([]Flash, 0, len(entries.Val()))
	for _, raw := range entries.Val() {
		var f Flash
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			log.Printf("Dropping malformed flash for session %s: %v", sessionID, err)
			continue
		}
		flashes = append(flashes, f)
	}
	return flashes, nil
}

func flashKey(sessionID string) string {
	return "flash:" + sessionID
}

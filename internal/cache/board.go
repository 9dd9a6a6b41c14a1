package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"opd/token-service/internal/models"
)

// BoardEntry is one line on the waiting-room display.
type BoardEntry struct {
	Position      int       `json:"position"`
	TokenNumber   string    `json:"token_number"`
	PatientName   string    `json:"patient_name"`
	Status        string    `json:"status"`
	EstimatedTime time.Time `json:"estimated_time"`
}

// Board keeps a per-slot snapshot of the queue in Redis so display
// clients can poll without hitting the database. Entries expire on
// their own; every ranking pass rewrites them.
type Board struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewBoard(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Board {
	return &Board{client: client, ttl: ttl, logger: logger}
}

func boardKey(slotID string) string {
	return "board:" + slotID
}

func (b *Board) Publish(ctx context.Context, slotID string, tokens []models.Token) error {
	entries := make([]BoardEntry, 0, len(tokens))
	for _, token := range tokens {
		entries = append(entries, BoardEntry{
			Position:      token.QueuePosition,
			TokenNumber:   token.TokenNumber,
			PatientName:   token.PatientName,
			Status:        token.Status,
			EstimatedTime: token.EstimatedTime,
		})
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal board entries: %w", err)
	}
	if err := b.client.Set(ctx, boardKey(slotID), data, b.ttl).Err(); err != nil {
		return fmt.Errorf("write board cache: %w", err)
	}
	b.logger.Debug("queue board published",
		zap.String("slot_id", slotID),
		zap.Int("entries", len(entries)))
	return nil
}

// Snapshot returns the cached board, with ok=false on a cache miss.
func (b *Board) Snapshot(ctx context.Context, slotID string) ([]BoardEntry, bool, error) {
	data, err := b.client.Get(ctx, boardKey(slotID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read board cache: %w", err)
	}
	var entries []BoardEntry
	if err := json.Unmarshal([]byte(data), &entries); err != nil {
		return nil, false, fmt.Errorf("decode board entries: %w", err)
	}
	return entries, true, nil
}

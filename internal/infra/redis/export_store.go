package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"toohak-session-service/internal/domain"
)

// ExportStore keeps rendered CSV exports in Redis with a TTL, so export URLs
// survive instance restarts and expire on their own.
type ExportStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewExportStore(client *redis.Client, ttl time.Duration) *ExportStore {
	return &ExportStore{client: client, ttl: ttl}
}

func (s *ExportStore) Save(ctx context.Context, sessionID int, token string, data []byte) error {
	return s.client.Set(ctx, s.key(sessionID, token), data, s.ttl).Err()
}

func (s *ExportStore) Fetch(ctx context.Context, sessionID int, token string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(sessionID, token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: export %s for session %d", domain.ErrNotFound, token, sessionID)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *ExportStore) key(sessionID int, token string) string {
	return fmt.Sprintf("session:%d:export:%s", sessionID, token)
}

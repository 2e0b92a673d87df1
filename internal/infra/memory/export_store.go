package memory

import (
	"context"
	"fmt"
	"sync"

	"toohak-session-service/internal/domain"
)

// ExportStore keeps rendered CSV exports in memory, keyed by session id and
// export token.
type ExportStore struct {
	mu      sync.RWMutex
	exports map[string][]byte
}

func NewExportStore() *ExportStore {
	return &ExportStore{exports: make(map[string][]byte)}
}

func exportKey(sessionID int, token string) string {
	return fmt.Sprintf("%d/%s", sessionID, token)
}

func (s *ExportStore) Save(_ context.Context, sessionID int, token string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	s.exports[exportKey(sessionID, token)] = buf
	return nil
}

func (s *ExportStore) Fetch(_ context.Context, sessionID int, token string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.exports[exportKey(sessionID, token)]
	if !ok {
		return nil, fmt.Errorf("%w: export %s for session %d", domain.ErrNotFound, token, sessionID)
	}
	return data, nil
}

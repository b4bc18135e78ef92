package agentinfo

import (
	"context"
	"sync"

	"github.com/morezero/remote-connectors/pkg/db"
)

// Store reads user info rows.
type Store interface {
	GetUserInfo(ctx context.Context, userID string) (*db.UserInfoRow, error)
	GetUserInfos(ctx context.Context, userIDs []string) ([]db.UserInfoRow, error)
}

var _ Store = (*db.Repository)(nil)

// MemoryStore is an in-process Store for servers running without a database.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]db.UserInfoRow
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]db.UserInfoRow)}
}

// Put stores or replaces a row.
func (s *MemoryStore) Put(row db.UserInfoRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[row.UserID] = row
}

// GetUserInfo implements Store.
func (s *MemoryStore) GetUserInfo(_ context.Context, userID string) (*db.UserInfoRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[userID]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

// GetUserInfos implements Store.
func (s *MemoryStore) GetUserInfos(_ context.Context, userIDs []string) ([]db.UserInfoRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []db.UserInfoRow
	for _, id := range userIDs {
		if row, ok := s.rows[id]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

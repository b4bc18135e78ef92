package avatar

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/morezero/remote-connectors/pkg/db"
)

// Store persists appearance rows. field is one of principalid, name or value.
type Store interface {
	GetAvatarRows(ctx context.Context, field, val string) ([]db.AvatarRow, error)
	ReplaceAvatar(ctx context.Context, principal uuid.UUID, data map[string]string) error
	DeleteAvatar(ctx context.Context, field, val string) (int64, error)
}

var _ Store = (*db.Repository)(nil)

// MemoryStore is an in-process Store for servers running without a database.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[uuid.UUID]map[string]string)}
}

func matcher(field, val string) (func(db.AvatarRow) bool, error) {
	switch strings.ToLower(strings.TrimSpace(field)) {
	case "principalid", "principal_id":
		id, err := uuid.Parse(val)
		if err != nil {
			return nil, fmt.Errorf("invalid principal id %q: %w", val, err)
		}
		return func(r db.AvatarRow) bool { return r.PrincipalID == id }, nil
	case "name":
		return func(r db.AvatarRow) bool { return r.Name == val }, nil
	case "value":
		return func(r db.AvatarRow) bool { return r.Value == val }, nil
	}
	return nil, fmt.Errorf("unknown avatar field %q", field)
}

// GetAvatarRows implements Store.
func (s *MemoryStore) GetAvatarRows(_ context.Context, field, val string) ([]db.AvatarRow, error) {
	match, err := matcher(field, val)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []db.AvatarRow
	for id, data := range s.rows {
		for name, value := range data {
			row := db.AvatarRow{PrincipalID: id, Name: name, Value: value}
			if match(row) {
				out = append(out, row)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ReplaceAvatar implements Store.
func (s *MemoryStore) ReplaceAvatar(_ context.Context, principal uuid.UUID, data map[string]string) error {
	cp := make(map[string]string, len(data))
	for k, v := range data {
		cp[k] = v
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[principal] = cp
	return nil
}

// DeleteAvatar implements Store.
func (s *MemoryStore) DeleteAvatar(_ context.Context, field, val string) (int64, error) {
	match, err := matcher(field, val)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, data := range s.rows {
		for name, value := range data {
			if match(db.AvatarRow{PrincipalID: id, Name: name, Value: value}) {
				delete(data, name)
				n++
			}
		}
		if len(data) == 0 {
			delete(s.rows, id)
		}
	}
	return n, nil
}

package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store. A single mutex serializes every
// mutation, which is what gives RotateRefreshToken its compare-and-swap
// semantics. Records are lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
	byUser  map[string]map[string]struct{}
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		byUser:  make(map[string]map[string]struct{}),
	}
}

// Create implements Store.
func (m *MemoryStore) Create(ctx context.Context, p CreateParams) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := ValidateCreate(p); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := NewID()
	for {
		if _, exists := m.records[id]; !exists {
			break
		}
		id = NewID()
	}

	m.records[id] = &Record{
		SessionID:          id,
		UserID:             p.UserID,
		Email:              p.Email,
		Role:               p.Role,
		RefreshFingerprint: p.RefreshFingerprint,
		CreatedAt:          p.CreatedAt,
		LastRefreshedAt:    p.CreatedAt,
		ExpiresAt:          p.ExpiresAt,
	}
	set, ok := m.byUser[p.UserID]
	if !ok {
		set = make(map[string]struct{})
		m.byUser[p.UserID] = set
	}
	set[id] = struct{}{}

	return id, nil
}

// Get implements Store.
func (m *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.clone(), nil
}

// RotateRefreshToken implements Store.
func (m *MemoryStore) RotateRefreshToken(ctx context.Context, p RotateParams) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[p.SessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if err := ClassifyRotate(rec, p.Current, p.Now); err != nil {
		return nil, err
	}

	rec.RefreshFingerprint = p.Next
	rec.LastRefreshedAt = p.Now
	rec.ExpiresAt = p.ExpiresAt
	return rec.clone(), nil
}

// Revoke implements Store.
func (m *MemoryStore) Revoke(ctx context.Context, id string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	m.revokeLocked(rec, now)
	return nil
}

// ListUserSessions implements UserIndex.
func (m *MemoryStore) ListUserSessions(ctx context.Context, userID string) ([]*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Record, 0, len(m.byUser[userID]))
	for id := range m.byUser[userID] {
		if rec, ok := m.records[id]; ok && !rec.Revoked {
			out = append(out, rec.clone())
		}
	}
	return out, nil
}

// RevokeUserSessions implements UserIndex.
func (m *MemoryStore) RevokeUserSessions(ctx context.Context, userID string, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	revoked := 0
	for id := range m.byUser[userID] {
		rec, ok := m.records[id]
		if !ok || rec.Revoked {
			continue
		}
		m.revokeLocked(rec, now)
		revoked++
	}
	return revoked, nil
}

// Sweep implements Sweeper.
func (m *MemoryStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, rec := range m.records {
		if now.Before(rec.ExpiresAt) {
			continue
		}
		delete(m.records, id)
		m.unindexLocked(rec.UserID, id)
		removed++
	}
	return removed, nil
}

// Len reports how many records are retained, including dead ones.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *MemoryStore) revokeLocked(rec *Record, now time.Time) {
	if rec.Revoked {
		return
	}
	rec.Revoked = true
	rec.RevokedAt = now
	m.unindexLocked(rec.UserID, rec.SessionID)
}

func (m *MemoryStore) unindexLocked(userID, id string) {
	set, ok := m.byUser[userID]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(m.byUser, userID)
	}
}

package store

import (
	"context"
	"sync"
	"time"
)

// MemorySessions is the SessionStore used when no Redis URL is configured.
type MemorySessions struct {
	mu      sync.Mutex
	limit   int
	meta    map[string]Meta
	history map[string][]SearchRecord
}

func NewMemorySessions(historyLimit int) *MemorySessions {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &MemorySessions{
		limit:   historyLimit,
		meta:    map[string]Meta{},
		history: map[string][]SearchRecord{},
	}
}

func (s *MemorySessions) SaveMeta(_ context.Context, m Meta) error {
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now()
	}
	s.mu.Lock()
	s.meta[m.SessionID] = m
	s.mu.Unlock()
	return nil
}

func (s *MemorySessions) GetMeta(_ context.Context, sessionID string) (Meta, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meta[sessionID]
	return m, ok, nil
}

func (s *MemorySessions) AppendSearch(_ context.Context, sessionID string, rec SearchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := append([]SearchRecord{rec}, s.history[sessionID]...)
	if len(h) > s.limit {
		h = h[:s.limit]
	}
	s.history[sessionID] = h
	return nil
}

func (s *MemorySessions) History(_ context.Context, sessionID string, limit int) ([]SearchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.history[sessionID]
	if limit > 0 && limit < len(h) {
		h = h[:limit]
	}
	return append([]SearchRecord(nil), h...), nil
}

func (s *MemorySessions) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.meta, sessionID)
	delete(s.history, sessionID)
	s.mu.Unlock()
	return nil
}

func (s *MemorySessions) Close() error { return nil }

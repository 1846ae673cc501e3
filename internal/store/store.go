// Package store keeps per-session metadata and search history.
package store

import (
	"context"
	"time"
)

// Meta describes what a session currently has loaded.
type Meta struct {
	SessionID    string    `json:"session_id"`
	DocumentName string    `json:"document_name,omitempty"`
	StorageKey   string    `json:"storage_key,omitempty"`
	Pages        int       `json:"pages"`
	LastKeyword  string    `json:"last_keyword,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SearchRecord is one completed keyword search.
type SearchRecord struct {
	Keyword string    `json:"keyword"`
	Source  string    `json:"source"`
	Page    int       `json:"page,omitempty"`
	Found   bool      `json:"found"`
	At      time.Time `json:"at"`
}

// SessionStore persists session metadata. History is newest first.
type SessionStore interface {
	SaveMeta(ctx context.Context, m Meta) error
	GetMeta(ctx context.Context, sessionID string) (Meta, bool, error)
	AppendSearch(ctx context.Context, sessionID string, rec SearchRecord) error
	History(ctx context.Context, sessionID string, limit int) ([]SearchRecord, error)
	Delete(ctx context.Context, sessionID string) error
	Close() error
}

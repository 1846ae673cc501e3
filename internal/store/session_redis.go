package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisSessions keeps metadata in a hash and history in a capped list per session.
type RedisSessions struct {
	client *redis.Client
	keyNS  string
	limit  int
	ttl    time.Duration
}

func NewRedisSessions(redisURL string, historyLimit int, ttl time.Duration) (*RedisSessions, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return newRedisSessions(c, historyLimit, ttl), nil
}

func newRedisSessions(c *redis.Client, historyLimit int, ttl time.Duration) *RedisSessions {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &RedisSessions{client: c, keyNS: "pdfseek:session", limit: historyLimit, ttl: ttl}
}

func (s *RedisSessions) metaKey(id string) string    { return fmt.Sprintf("%s:%s:meta", s.keyNS, id) }
func (s *RedisSessions) historyKey(id string) string { return fmt.Sprintf("%s:%s:searches", s.keyNS, id) }

func (s *RedisSessions) SaveMeta(ctx context.Context, m Meta) error {
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now()
	}
	key := s.metaKey(m.SessionID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"document_name": m.DocumentName,
		"storage_key":   m.StorageKey,
		"pages":         m.Pages,
		"last_keyword":  m.LastKeyword,
		"updated_at":    m.UpdatedAt.Format(time.RFC3339Nano),
	})
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisSessions) GetMeta(ctx context.Context, sessionID string) (Meta, bool, error) {
	res, err := s.client.HGetAll(ctx, s.metaKey(sessionID)).Result()
	if err != nil {
		return Meta{}, false, err
	}
	if len(res) == 0 {
		return Meta{}, false, nil
	}
	m := Meta{
		SessionID:    sessionID,
		DocumentName: res["document_name"],
		StorageKey:   res["storage_key"],
		LastKeyword:  res["last_keyword"],
	}
	if p, err := strconv.Atoi(res["pages"]); err == nil {
		m.Pages = p
	}
	if v := res["updated_at"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			m.UpdatedAt = t
		}
	}
	return m, true, nil
}

func (s *RedisSessions) AppendSearch(ctx context.Context, sessionID string, rec SearchRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := s.historyKey(sessionID)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, b)
	pipe.LTrim(ctx, key, 0, int64(s.limit-1))
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisSessions) History(ctx context.Context, sessionID string, limit int) ([]SearchRecord, error) {
	if limit <= 0 || limit > s.limit {
		limit = s.limit
	}
	raw, err := s.client.LRange(ctx, s.historyKey(sessionID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]SearchRecord, 0, len(raw))
	for _, r := range raw {
		var rec SearchRecord
		if err := json.Unmarshal([]byte(r), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisSessions) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.metaKey(sessionID), s.historyKey(sessionID)).Err()
}

func (s *RedisSessions) Close() error { return s.client.Close() }

// Ping satisfies statuscheck.RedisPinger.
func (s *RedisSessions) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

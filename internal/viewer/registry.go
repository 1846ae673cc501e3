package viewer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfseek/internal/metrics"
)

// Registry holds the live sessions of the process.
type Registry struct {
	deps    Dependencies
	opts    Options
	idleTTL time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry. idleTTL <= 0 disables eviction.
func NewRegistry(deps Dependencies, opts Options, idleTTL time.Duration) *Registry {
	return &Registry{deps: deps, opts: opts, idleTTL: idleTTL, sessions: map[string]*Session{}}
}

// Get returns the session for id, or creates one. Unknown or malformed ids
// get a fresh id; an id that is only known to the session store is resumed
// from its metadata. The second return is true when a new id was issued.
func (r *Registry) Get(ctx context.Context, id string) (*Session, bool) {
	if _, err := uuid.Parse(id); err != nil {
		id = ""
	}

	r.mu.Lock()
	if s, ok := r.sessions[id]; ok && id != "" {
		r.mu.Unlock()
		return s, false
	}
	r.mu.Unlock()

	issued := false
	var sess *Session
	if id != "" && r.deps.Sessions != nil {
		m, ok, err := r.deps.Sessions.GetMeta(ctx, id)
		if err != nil {
			log.Warn().Err(err).Str("session", id).Msg("load session metadata")
		}
		if ok {
			sess = newSession(id, r.deps, r.opts)
			sess.restore(m)
			log.Debug().Str("session", id).Str("document", m.DocumentName).Msg("session resumed")
		}
	}
	if sess == nil {
		id = uuid.NewString()
		issued = true
		sess = newSession(id, r.deps, r.opts)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[id]; ok {
		return existing, false
	}
	r.sessions[id] = sess
	metrics.SetSessions(len(r.sessions))
	return sess, issued
}

// Len reports the number of sessions held in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Evict drops sessions idle since before cutoff and returns how many.
// Persisted metadata is kept so the session can be resumed later.
func (r *Registry) Evict(cutoff time.Time) int {
	r.mu.Lock()
	var idle []*Session
	for id, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			idle = append(idle, s)
			delete(r.sessions, id)
		}
	}
	metrics.SetSessions(len(r.sessions))
	r.mu.Unlock()

	for _, s := range idle {
		s.Close()
	}
	return len(idle)
}

// Run evicts idle sessions until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	if r.idleTTL <= 0 {
		return
	}
	interval := r.idleTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := r.Evict(now.Add(-r.idleTTL)); n > 0 {
				log.Info().Int("evicted", n).Int("remaining", r.Len()).Msg("idle sessions evicted")
			}
		}
	}
}

// Close drops every session.
func (r *Registry) Close() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		all = append(all, s)
		delete(r.sessions, id)
	}
	metrics.SetSessions(0)
	r.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
}

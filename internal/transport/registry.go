package transport

import (
	"context"
	"sync"
	"time"

	"hazard-reporter/internal/logger"
	"hazard-reporter/internal/submission"
)

// Registry keeps the submissions a client can still act on. A submission
// leaves the registry when it is reset, either by the client, by the saved
// grace period or by the TTL sweep.
type Registry struct {
	mu   sync.RWMutex
	subs map[string]*submission.Submission
	ttl  time.Duration
	now  func() time.Time
}

// NewRegistry creates a registry whose entries expire after ttl
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		subs: make(map[string]*submission.Submission),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Add tracks sub until it is reset
func (r *Registry) Add(sub *submission.Submission) {
	r.mu.Lock()
	r.subs[sub.ID] = sub
	r.mu.Unlock()

	sub.OnReset(func(s *submission.Submission) {
		r.remove(s.ID)
	})
}

// Get looks up a submission by id
func (r *Registry) Get(id string) (*submission.Submission, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.subs[id]
	return sub, ok
}

// Discard resets the submission and forgets it
func (r *Registry) Discard(id string) bool {
	sub, ok := r.remove(id)
	if ok {
		sub.Reset()
	}
	return ok
}

// Len returns the number of tracked submissions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Sweep resets every submission older than the TTL and returns how many it dropped
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	var expired []*submission.Submission
	for id, sub := range r.subs {
		if sub.CreatedAt.Before(cutoff) {
			expired = append(expired, sub)
			delete(r.subs, id)
		}
	}
	r.mu.Unlock()

	for _, sub := range expired {
		sub.Reset()
	}
	if len(expired) > 0 {
		logger.WithField("expired", len(expired)).Info("Dropped stale submissions")
	}
	return len(expired)
}

// Run sweeps every interval until ctx is done
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Close resets every tracked submission, releasing their scratch files
func (r *Registry) Close() {
	r.mu.Lock()
	subs := r.subs
	r.subs = make(map[string]*submission.Submission)
	r.mu.Unlock()

	for _, sub := range subs {
		sub.Reset()
	}
}

func (r *Registry) remove(id string) (*submission.Submission, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if ok {
		delete(r.subs, id)
	}
	return sub, ok
}

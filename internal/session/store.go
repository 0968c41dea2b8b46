package session

import (
	"context"
	"sync"
	"time"
)

// ActivityStore keeps the server-side half of a session: last activity and logout.
// Entries expire on their own; a missing activity record means the session idled out.
type ActivityStore interface {
	Touch(ctx context.Context, sid string, at time.Time, ttl time.Duration) error
	LastActivity(ctx context.Context, sid string) (time.Time, bool, error)
	Revoke(ctx context.Context, sid string, ttl time.Duration) error
	IsRevoked(ctx context.Context, sid string) (bool, error)
}

type memEntry struct {
	at        time.Time
	expiresAt time.Time
}

// MemoryActivityStore is an in-process ActivityStore for single-replica deployments
// and tests.
type MemoryActivityStore struct {
	mu       sync.Mutex
	activity map[string]memEntry
	revoked  map[string]time.Time
	now      func() time.Time
}

// NewMemoryActivityStore creates an empty store.
func NewMemoryActivityStore() *MemoryActivityStore {
	return &MemoryActivityStore{
		activity: make(map[string]memEntry),
		revoked:  make(map[string]time.Time),
		now:      time.Now,
	}
}

func (s *MemoryActivityStore) Touch(_ context.Context, sid string, at time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity[sid] = memEntry{at: at, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryActivityStore) LastActivity(_ context.Context, sid string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.activity[sid]
	if !ok {
		return time.Time{}, false, nil
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.activity, sid)
		return time.Time{}, false, nil
	}
	return e.at, true, nil
}

func (s *MemoryActivityStore) Revoke(_ context.Context, sid string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.activity, sid)
	s.revoked[sid] = s.now().Add(ttl)
	return nil
}

func (s *MemoryActivityStore) IsRevoked(_ context.Context, sid string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.revoked[sid]
	if !ok {
		return false, nil
	}
	if !s.now().Before(until) {
		delete(s.revoked, sid)
		return false, nil
	}
	return true, nil
}

// Sweep drops expired entries. It is called periodically by the server.
func (s *MemoryActivityStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for sid, e := range s.activity {
		if !now.Before(e.expiresAt) {
			delete(s.activity, sid)
		}
	}
	for sid, until := range s.revoked {
		if !now.Before(until) {
			delete(s.revoked, sid)
		}
	}
}

package collage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/youruser/collageapp/internal/errors"
)

// DefaultSessionTTL is how long an untouched session is kept.
const DefaultSessionTTL = 30 * time.Minute

// Store keeps sessions by id. A session not looked up for TTL expires: Get
// no longer finds it and Prune closes it.
type Store struct {
	// TTL is the idle lifetime of a session; zero keeps sessions until
	// deleted.
	TTL time.Duration

	composer *Composer
	base     context.Context
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*storeEntry
}

type storeEntry struct {
	session  *Session
	lastSeen time.Time
}

// NewStore returns an empty store whose sessions load under base.
func NewStore(base context.Context, composer *Composer) *Store {
	return &Store{
		TTL:      DefaultSessionTTL,
		composer: composer,
		base:     base,
		now:      time.Now,
		sessions: make(map[string]*storeEntry),
	}
}

func (st *Store) expired(e *storeEntry, now time.Time) bool {
	return st.TTL > 0 && now.Sub(e.lastSeen) >= st.TTL
}

// Create opens a session and chooses the template for locators. No session
// is stored when the request is rejected.
func (st *Store) Create(locators []string, width, height int) (*Session, error) {
	s := NewSession(st.base, uuid.NewString(), st.composer)
	if err := s.ChooseTemplate(locators, width, height); err != nil {
		return nil, err
	}
	st.mu.Lock()
	st.sessions[s.ID] = &storeEntry{session: s, lastSeen: st.now()}
	st.mu.Unlock()
	return s, nil
}

// Get returns the session with id and marks it used, or a NOT_FOUND error.
// An expired session is closed and dropped.
func (st *Store) Get(id string) (*Session, error) {
	now := st.now()
	st.mu.Lock()
	e, ok := st.sessions[id]
	if ok && st.expired(e, now) {
		delete(st.sessions, id)
		st.mu.Unlock()
		e.session.Close()
		return nil, errors.New(errors.ErrCodeNotFound, "session %s not found", id)
	}
	if ok {
		e.lastSeen = now
	}
	st.mu.Unlock()
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "session %s not found", id)
	}
	return e.session, nil
}

// Delete closes and forgets a session.
func (st *Store) Delete(id string) error {
	st.mu.Lock()
	e, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()
	if !ok {
		return errors.New(errors.ErrCodeNotFound, "session %s not found", id)
	}
	e.session.Close()
	return nil
}

// Prune closes and drops every expired session and reports how many.
func (st *Store) Prune() int {
	now := st.now()
	var stale []*Session
	st.mu.Lock()
	for id, e := range st.sessions {
		if st.expired(e, now) {
			stale = append(stale, e.session)
			delete(st.sessions, id)
		}
	}
	st.mu.Unlock()
	for _, s := range stale {
		s.Close()
	}
	return len(stale)
}

// Len reports the number of stored sessions, expired ones included until
// they are pruned.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

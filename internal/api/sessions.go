package api

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"kitehostel/internal/service"
)

const defaultSessionTTL = 30 * time.Minute

// sessionStore keeps open edit sessions between requests. Sessions idle for
// longer than ttl are dropped.
type sessionStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	items map[uuid.UUID]*storedSession
}

type storedSession struct {
	session  *service.Session
	lastUsed time.Time
}

func newSessionStore(ttl time.Duration, now func() time.Time) *sessionStore {
	return &sessionStore{
		ttl:   ttl,
		now:   now,
		items: make(map[uuid.UUID]*storedSession),
	}
}

func (st *sessionStore) setTTL(ttl time.Duration) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.ttl = ttl
}

func (st *sessionStore) add(session *service.Session) uuid.UUID {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.sweep()
	id := uuid.New()
	st.items[id] = &storedSession{session: session, lastUsed: st.now()}
	return id
}

func (st *sessionStore) get(id uuid.UUID) (*service.Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	item, ok := st.items[id]
	if !ok {
		return nil, false
	}
	now := st.now()
	if now.Sub(item.lastUsed) > st.ttl {
		delete(st.items, id)
		return nil, false
	}
	item.lastUsed = now
	return item.session, true
}

func (st *sessionStore) remove(id uuid.UUID) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	_, ok := st.items[id]
	delete(st.items, id)
	return ok
}

func (st *sessionStore) len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.items)
}

// sweep drops expired sessions. Caller holds mu.
func (st *sessionStore) sweep() {
	now := st.now()
	for id, item := range st.items {
		if now.Sub(item.lastUsed) > st.ttl {
			delete(st.items, id)
		}
	}
}

// Package session holds per-conversation state for the shopping
// assistant.
//
// A Session carries the three pieces of state the dialogue loop needs
// between turns: the conversation history, the internal product IDs of
// the last search (the sole addressing scheme for ordinal references),
// and the single detail snapshot of the last product the user looked
// at. Sessions are owned by the hosting web layer and passed into every
// tool call explicitly — no package-level state.
package session

import (
	"sync"
	"time"
)

// Turn is one conversation entry. Type is "user" or "agent".
type Turn struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// ProductDetails is the cached full-detail snapshot of the most
// recently viewed product. Exactly one exists per session, overwritten
// on each detail lookup.
type ProductDetails struct {
	Title       string   `json:"title"`
	Model       string   `json:"model"`
	Brand       string   `json:"brand"`
	Price       string   `json:"price"` // formatted amount or "N/A"
	BranchStock int      `json:"branch_stock"`
	Categories  []string `json:"categories"`
	Features    []string `json:"features"`
	Summary     string   `json:"summary"`
	Description string   `json:"description"`
}

// Session is the state of one user conversation.
//
// Access is serialized by the owning [Store]: a turn must hold the
// session's turn lock (see [Store.TryAcquire]) before reading or
// writing. The dialogue core itself does no locking.
type Session struct {
	ID                 string          `json:"id"`
	ChatHistory        []Turn          `json:"chat_history"`
	LastSearchIDs      []int64         `json:"last_search_ids"`
	LastProductDetails *ProductDetails `json:"last_product_details,omitempty"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Append adds a turn to the history. History is append-only; the only
// other mutation is [Session.Clear].
func (s *Session) Append(turnType, content string) {
	s.ChatHistory = append(s.ChatHistory, Turn{Type: turnType, Content: content})
	s.UpdatedAt = time.Now()
}

// SetSearchIDs replaces the cached result IDs wholesale. Search results
// are never merged across searches.
func (s *Session) SetSearchIDs(ids []int64) {
	s.LastSearchIDs = append([]int64(nil), ids...)
	s.UpdatedAt = time.Now()
}

// SetDetails overwrites the single detail slot.
func (s *Session) SetDetails(d *ProductDetails) {
	s.LastProductDetails = d
	s.UpdatedAt = time.Now()
}

// Clear resets the session to a single greeting turn and empties both
// caches. Calling it twice yields the same state both times.
func (s *Session) Clear(greeting string) {
	s.ChatHistory = []Turn{{Type: "agent", Content: greeting}}
	s.LastSearchIDs = nil
	s.LastProductDetails = nil
	s.UpdatedAt = time.Now()
}

// Store manages sessions in memory, keyed by session ID.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
}

// entry pairs a session with its turn lock.
type entry struct {
	sess *Session
	busy sync.Mutex
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*entry)}
}

// TryAcquire returns the session for id (creating it if absent) with
// its turn lock held. The release func must be called when the turn is
// done. If another turn for the same session is in flight, ok is false
// and the caller should reject the request — overlapping turns on one
// session would race on the history and caches.
func (st *Store) TryAcquire(id string) (sess *Session, release func(), ok bool) {
	e := st.getOrCreate(id)
	if !e.busy.TryLock() {
		return nil, nil, false
	}
	return e.sess, e.busy.Unlock, true
}

// Snapshot returns a copy of the session for read-only use, or nil if
// it does not exist. The copy is safe to serialize without holding the
// turn lock.
func (st *Store) Snapshot(id string) *Session {
	st.mu.RLock()
	e, found := st.sessions[id]
	st.mu.RUnlock()
	if !found {
		return nil
	}

	e.busy.Lock()
	defer e.busy.Unlock()

	cp := *e.sess
	cp.ChatHistory = append([]Turn(nil), e.sess.ChatHistory...)
	cp.LastSearchIDs = append([]int64(nil), e.sess.LastSearchIDs...)
	if e.sess.LastProductDetails != nil {
		d := *e.sess.LastProductDetails
		cp.LastProductDetails = &d
	}
	return &cp
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

func (st *Store) getOrCreate(id string) *entry {
	st.mu.RLock()
	e, found := st.sessions[id]
	st.mu.RUnlock()
	if found {
		return e
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if e, found = st.sessions[id]; found {
		return e
	}
	e = &entry{sess: &Session{ID: id, UpdatedAt: time.Now()}}
	st.sessions[id] = e
	return e
}

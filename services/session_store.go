package services

import (
	"log"
	"sync"
	"time"

	"cyber-duel-server/models"
)

// Sweep cadence and thresholds. The sweeper reaps sessions nobody has
// touched for SweepMaxAge; a disconnect additionally arms a faster,
// debounced deletion that fires only if both seats stay empty.
const (
	SweepInterval     = 10 * time.Minute
	SweepMaxAge       = 1 * time.Hour
	IdleDeletionDelay = 5 * time.Minute
)

// SessionStore owns the process-wide set of live sessions. The map itself
// is guarded by the store mutex; each record carries its own lock for
// per-key serialization of transitions (see RoundEngine).
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.GameSession

	now func() time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*models.GameSession),
		now:      time.Now,
	}
}

// GetOrCreate returns the record for sessionID, atomically inserting a
// fresh LOBBY record when none exists. It never fails.
func (s *SessionStore) GetOrCreate(sessionID string) *models.GameSession {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		return sess
	}
	sess = models.NewGameSession(sessionID, s.now())
	s.sessions[sessionID] = sess
	log.Printf("🆕 [STORE] Created session %s", sessionID)
	return sess
}

// Get is a read-only lookup. Callers treat a miss as a silent no-op.
func (s *SessionStore) Get(sessionID string) (*models.GameSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	return sess, ok
}

// Delete removes a record. Idempotent.
func (s *SessionStore) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; ok {
		delete(s.sessions, sessionID)
		log.Printf("🗑️ [STORE] Deleted session %s", sessionID)
	}
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep deletes every session whose UpdatedAt is older than maxAge and
// returns how many were removed. Each candidate is locked before the age
// check so the sweep never races a transition in flight.
func (s *SessionStore) Sweep(maxAge time.Duration) int {
	s.mu.RLock()
	candidates := make([]*models.GameSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		candidates = append(candidates, sess)
	}
	s.mu.RUnlock()

	cutoff := s.now().Add(-maxAge)
	removed := 0
	for _, sess := range candidates {
		sess.Lock()
		// Delete before releasing the record lock: a join serialized
		// behind us must find the map entry already gone, not get seated
		// into a record about to vanish. Delete only takes the store
		// lock, which is never held while waiting on a record lock.
		if sess.UpdatedAt.Before(cutoff) {
			s.Delete(sess.SessionID)
			removed++
		}
		sess.Unlock()
	}
	return removed
}

// ScheduleIdleDeletion arms a one-shot deletion for sessionID. When the
// delay elapses the condition is re-checked under the session lock: the
// record is only deleted if both seats are still disconnected. A rejoin in
// the meantime simply defuses the timer's effect — no cancellation needed.
func (s *SessionStore) ScheduleIdleDeletion(sessionID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		sess, ok := s.Get(sessionID)
		if !ok {
			return
		}
		sess.Lock()
		// Check and delete under the same record lock so a join racing
		// the timer either lands before the check or misses the map
		// entry entirely — never in between.
		if !sess.Attacker.Connected && !sess.Defender.Connected {
			log.Printf("🗑️ [STORE] Session %s abandoned, removing", sessionID)
			s.Delete(sessionID)
		}
		sess.Unlock()
	})
}

// SessionSummary is the admin-facing row for one live session.
type SessionSummary struct {
	SessionID        string               `json:"session_id"`
	Status           models.SessionStatus `json:"status"`
	PlayersConnected int                  `json:"players_connected"`
	TotalRounds      int                  `json:"total_rounds"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// Stats snapshots every live session for the admin surface.
func (s *SessionStore) Stats() []SessionSummary {
	s.mu.RLock()
	sessions := make([]*models.GameSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	out := make([]SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		sess.Lock()
		connected := 0
		if sess.Attacker.Connected {
			connected++
		}
		if sess.Defender.Connected {
			connected++
		}
		out = append(out, SessionSummary{
			SessionID:        sess.SessionID,
			Status:           sess.Status,
			PlayersConnected: connected,
			TotalRounds:      sess.TotalRounds,
			UpdatedAt:        sess.UpdatedAt,
		})
		sess.Unlock()
	}
	return out
}

package models

import (
	"sync"
	"time"
)

// Role identifies one of the two player slots in a duel.
type Role string

const (
	RoleAttacker Role = "attacker"
	RoleDefender Role = "defender"
)

// Other returns the opposing role.
func (r Role) Other() Role {
	if r == RoleAttacker {
		return RoleDefender
	}
	return RoleAttacker
}

// Valid reports whether r is one of the two playable roles.
func (r Role) Valid() bool {
	return r == RoleAttacker || r == RoleDefender
}

// SessionStatus is the phase of a duel session. Transitions are owned
// exclusively by services.RoundEngine.
type SessionStatus string

const (
	StatusLobby          SessionStatus = "LOBBY"
	StatusReady          SessionStatus = "READY"
	StatusAttacking      SessionStatus = "ATTACKING"
	StatusDefended       SessionStatus = "DEFENDED"
	StatusBreached       SessionStatus = "BREACHED"
	StatusThemeCompleted SessionStatus = "THEME_COMPLETED"
	StatusGameFinished   SessionStatus = "GAME_FINISHED"
)

// RoundsPerTheme is how many rounds a theme runs before completion.
const RoundsPerTheme = 3

// PlayerSlot is one seat (attacker or defender) in a session.
// ConnectionID is the transport identity of the current socket;
// UserID is the stable identity that survives reconnects.
type PlayerSlot struct {
	ConnectionID string `json:"connection_id,omitempty"`
	UserID       string `json:"user_id,omitempty"`
	Connected    bool   `json:"connected"`
}

// Occupied reports whether the slot is held — either by a live connection
// or by a stable identity reserved for reconnection.
func (p PlayerSlot) Occupied() bool {
	return p.Connected || p.UserID != "" || p.ConnectionID != ""
}

// RoundState is the in-flight round. All fields are nil/empty between rounds.
type RoundState struct {
	AttackerTool string     `json:"attacker_tool,omitempty"`
	DefenderTool string     `json:"defender_tool,omitempty"`
	StartTime    *time.Time `json:"start_time,omitempty"`
	EndTime      *time.Time `json:"end_time,omitempty"`
}

// FinalScores is the end-of-game tally broadcast on GAME_FINISHED.
type FinalScores struct {
	Attacker int            `json:"attacker"`
	Defender int            `json:"defender"`
	ByUser   map[string]int `json:"by_user,omitempty"`
}

// GameSession is the aggregate root for one duel, keyed by SessionID.
// The embedded mutex is the per-key exclusion: every engine transition and
// every background deletion locks the record before touching it.
type GameSession struct {
	mu sync.Mutex

	SessionID string        `json:"session_id"`
	Status    SessionStatus `json:"status"`

	ActiveThemeID string `json:"active_theme_id,omitempty"`
	ActiveTheme   *Theme `json:"active_theme,omitempty"`

	Attacker PlayerSlot `json:"attacker"`
	Defender PlayerSlot `json:"defender"`

	CurrentRound RoundState `json:"current_round"`

	AttackerScore   int `json:"attacker_score"`
	DefenderScore   int `json:"defender_score"`
	RoundNumber     int `json:"round_number"`
	ThemeRoundCount int `json:"theme_round_count"`
	Streak          int `json:"streak"`

	PlayedThemes []string      `json:"played_themes"`
	History      []RoundResult `json:"history"`
	TotalRounds  int           `json:"total_rounds"`

	ThemeWinnerUserID  string       `json:"theme_winner_user_id,omitempty"`
	GlobalWinnerUserID string       `json:"global_winner_user_id,omitempty"`
	FinalScores        *FinalScores `json:"final_scores,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewGameSession returns a fresh record in LOBBY with zeroed counters.
func NewGameSession(sessionID string, now time.Time) *GameSession {
	return &GameSession{
		SessionID:       sessionID,
		Status:          StatusLobby,
		ThemeRoundCount: 1,
		PlayedThemes:    []string{},
		History:         []RoundResult{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (s *GameSession) Lock()   { s.mu.Lock() }
func (s *GameSession) Unlock() { s.mu.Unlock() }

// Slot returns a pointer to the slot for the given role.
func (s *GameSession) Slot(role Role) *PlayerSlot {
	if role == RoleAttacker {
		return &s.Attacker
	}
	return &s.Defender
}

// RoleOf resolves which slot the caller currently holds, matching by
// connection first and falling back to stable identity.
func (s *GameSession) RoleOf(connID, userID string) (Role, bool) {
	if connID != "" {
		if s.Attacker.ConnectionID == connID {
			return RoleAttacker, true
		}
		if s.Defender.ConnectionID == connID {
			return RoleDefender, true
		}
	}
	if userID != "" {
		if s.Attacker.UserID == userID {
			return RoleAttacker, true
		}
		if s.Defender.UserID == userID {
			return RoleDefender, true
		}
	}
	return "", false
}

// BothConnected reports whether both seats have a live connection.
func (s *GameSession) BothConnected() bool {
	return s.Attacker.Connected && s.Defender.Connected
}

// HasPlayedTheme reports whether the theme id is already in PlayedThemes.
func (s *GameSession) HasPlayedTheme(themeID string) bool {
	for _, id := range s.PlayedThemes {
		if id == themeID {
			return true
		}
	}
	return false
}

// Touch bumps UpdatedAt; every mutating transition calls it so the sweep
// only reaps genuinely idle sessions.
func (s *GameSession) Touch(now time.Time) {
	s.UpdatedAt = now
}

package models

import "time"

// SessionMirror is the durable write-behind copy of a session snapshot.
// It is keyed by the external session id and carries an expiry no shorter
// than the in-memory sweep threshold. Live gameplay never reads it.
type SessionMirror struct {
	SessionID    string    `gorm:"primaryKey" json:"session_id"`
	State        []byte    `gorm:"type:jsonb" json:"state"`
	Status       string    `gorm:"index" json:"status"`
	RoundsPlayed int       `json:"rounds_played"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	ExpiresAt    time.Time `gorm:"index" json:"expires_at"`
}

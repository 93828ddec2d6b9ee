package models

import "time"

// MatchRecord archives a single finished duel (one row per GAME_FINISHED).
type MatchRecord struct {
	ID        string `gorm:"primaryKey;type:uuid" json:"id"`
	SessionID string `gorm:"index;not null" json:"session_id"`

	WinnerUserID  string `json:"winner_user_id"`
	AttackerScore int    `json:"attacker_score"`
	DefenderScore int    `json:"defender_score"`
	TotalRounds   int    `json:"total_rounds"`
	ThemesPlayed  int    `json:"themes_played"`
	DurationSec   int    `gorm:"default:0" json:"duration_sec"`

	// ReportURL points at the uploaded JSON report, when archiving is enabled.
	ReportURL string `json:"report_url,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// MatchReport is the full end-of-game document uploaded to object storage.
type MatchReport struct {
	SessionID    string        `json:"session_id"`
	WinnerUserID string        `json:"winner_user_id"`
	FinalScores  *FinalScores  `json:"final_scores,omitempty"`
	PlayedThemes []string      `json:"played_themes"`
	History      []RoundResult `json:"history"`
	FinishedAt   time.Time     `json:"finished_at"`
}

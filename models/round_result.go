package models

import "time"

// RoundResult is one resolved round, appended to the session history.
// History is append-only: results are never mutated or reordered.
type RoundResult struct {
	RoundNumber     int       `json:"round_number"`
	ThemeID         string    `json:"theme_id"`
	ThemeName       string    `json:"theme_name"`
	AttackerTool    string    `json:"attacker_tool"`
	DefenderTool    string    `json:"defender_tool,omitempty"`
	Correct         bool      `json:"correct"`
	ResponseTimeSec float64   `json:"response_time_sec"`
	ScoreGained     int       `json:"score_gained"`
	WinnerRole      Role      `json:"winner_role"`
	TimedOut        bool      `json:"timed_out"`
	WinnerConnID    string    `json:"winner_connection_id,omitempty"`
	WinnerUserID    string    `json:"winner_user_id,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// WinnerKey is the identity results are aggregated under when computing
// theme and global winners: stable user id when known, else connection id.
func (r RoundResult) WinnerKey() string {
	if r.WinnerUserID != "" {
		return r.WinnerUserID
	}
	return r.WinnerConnID
}

package models

import "time"

// PlayerSummary is the per-role connection summary sent to clients.
// Connection ids stay server-side; clients only see presence and identity.
type PlayerSummary struct {
	Connected bool   `json:"connected"`
	UserID    string `json:"user_id,omitempty"`
}

// GameStateView is the client-facing snapshot broadcast as `game_state`
// after every mutating event. It is a pure copy — holding one never grants
// access to the live session record.
type GameStateView struct {
	SessionID string        `json:"session_id"`
	Status    SessionStatus `json:"status"`

	Theme        *Theme     `json:"theme,omitempty"`
	CurrentRound RoundState `json:"current_round"`

	AttackerScore   int `json:"attacker_score"`
	DefenderScore   int `json:"defender_score"`
	RoundNumber     int `json:"round_number"`
	ThemeRoundCount int `json:"theme_round_count"`
	Streak          int `json:"streak"`
	TotalRounds     int `json:"total_rounds"`

	// ResponseTimeSec is the duration of the most recently resolved round.
	ResponseTimeSec float64 `json:"response_time_sec,omitempty"`

	Attacker PlayerSummary `json:"attacker"`
	Defender PlayerSummary `json:"defender"`

	PlayedThemes []string      `json:"played_themes"`
	History      []RoundResult `json:"history"`

	ThemeWinnerUserID  string       `json:"theme_winner_user_id,omitempty"`
	GlobalWinnerUserID string       `json:"global_winner_user_id,omitempty"`
	FinalScores        *FinalScores `json:"final_scores,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot builds the broadcast view. Callers must hold the session lock.
func (s *GameSession) Snapshot() *GameStateView {
	view := &GameStateView{
		SessionID:       s.SessionID,
		Status:          s.Status,
		CurrentRound:    s.CurrentRound,
		AttackerScore:   s.AttackerScore,
		DefenderScore:   s.DefenderScore,
		RoundNumber:     s.RoundNumber,
		ThemeRoundCount: s.ThemeRoundCount,
		Streak:          s.Streak,
		TotalRounds:     s.TotalRounds,
		Attacker:        PlayerSummary{Connected: s.Attacker.Connected, UserID: s.Attacker.UserID},
		Defender:        PlayerSummary{Connected: s.Defender.Connected, UserID: s.Defender.UserID},
		PlayedThemes:    append([]string{}, s.PlayedThemes...),
		History:         append([]RoundResult{}, s.History...),

		ThemeWinnerUserID:  s.ThemeWinnerUserID,
		GlobalWinnerUserID: s.GlobalWinnerUserID,
		UpdatedAt:          s.UpdatedAt,
	}
	if s.ActiveTheme != nil {
		t := *s.ActiveTheme
		view.Theme = &t
	}
	if s.FinalScores != nil {
		f := *s.FinalScores
		view.FinalScores = &f
	}
	if n := len(s.History); n > 0 {
		view.ResponseTimeSec = s.History[n-1].ResponseTimeSec
	}
	return view
}

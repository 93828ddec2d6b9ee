package services

import (
	"errors"
	"fmt"
	"math"
	"time"

	"cyber-duel-server/content"
	"cyber-duel-server/models"
)

// Engine rejections. All are local and recoverable: the offending caller
// gets an error notification and session state is left untouched.
var (
	ErrInvalidRole   = errors.New("action not permitted for your role")
	ErrSessionFull   = errors.New("session is full")
	ErrSessionAbsent = errors.New("session not found")
	ErrNoPriorRound  = errors.New("no completed round yet")
)

// Outbound event names.
const (
	EventGameState          = "game_state"
	EventPlayerJoined       = "player_joined"
	EventPlayerDisconnected = "player_disconnected"
	EventGameStarted        = "game_started"
	EventAttackExecuted     = "attack_executed"
	EventRoundResult        = "round_result"
	EventNextRoundReady     = "next_round_ready"
	EventGameReset          = "game_reset"
	EventGameReplay         = "game_replay"
	EventError              = "error"
)

// Notification is one outbound message produced by a transition. An empty
// ToConn means broadcast to every participant of the session.
type Notification struct {
	Event  string
	Data   map[string]any
	ToConn string
}

// RoundEngine applies named events to one session at a time. It resolves
// the record from the store, serializes on the record's own lock, mutates
// in place, and hands back a snapshot plus outbound notifications. It never
// retains a session reference across invocations and performs no I/O.
type RoundEngine struct {
	store   *SessionStore
	catalog *content.Catalog

	now func() time.Time
}

func NewRoundEngine(store *SessionStore, catalog *content.Catalog) *RoundEngine {
	return &RoundEngine{store: store, catalog: catalog, now: time.Now}
}

// Join seats a caller in a session, creating the session if needed.
// Role assignment: an explicit claim wins, a known identity reclaims its
// previous seat, otherwise the empty seat is auto-assigned. Two strangers
// cannot squeeze into a full session — the second is rejected with
// ErrSessionFull no matter the arrival order.
func (e *RoundEngine) Join(sessionID, connID, userID string, claim models.Role, themeID string) (*models.GameStateView, []Notification, error) {
	sess := e.store.GetOrCreate(sessionID)
	sess.Lock()
	defer sess.Unlock()

	role, err := e.placeCaller(sess, connID, userID, claim)
	if err != nil {
		return nil, nil, err
	}

	if sess.ActiveTheme == nil {
		e.setTheme(sess, themeID)
	}
	if sess.Status == models.StatusLobby && sess.BothConnected() {
		sess.Status = models.StatusReady
	}
	if sess.Status != models.StatusAttacking {
		sess.CurrentRound = models.RoundState{}
	}
	sess.Touch(e.now())

	notes := []Notification{{
		Event: EventPlayerJoined,
		Data: map[string]any{
			"role":           role,
			"user_id":        userID,
			"both_connected": sess.BothConnected(),
		},
	}}
	return sess.Snapshot(), notes, nil
}

// Start begins (or restarts) play on a theme: round counters are zeroed,
// the in-flight round is cleared, and the session is READY once both seats
// hold live connections. Scores and history are left alone — only Reset
// wipes those.
func (e *RoundEngine) Start(sessionID, connID, userID string, claim models.Role, themeID string) (*models.GameStateView, []Notification, error) {
	sess := e.store.GetOrCreate(sessionID)
	sess.Lock()
	defer sess.Unlock()

	if _, err := e.placeCaller(sess, connID, userID, claim); err != nil {
		return nil, nil, err
	}

	e.setTheme(sess, themeID)
	sess.RoundNumber = 0
	sess.ThemeRoundCount = 1
	sess.CurrentRound = models.RoundState{}
	sess.ThemeWinnerUserID = ""
	if sess.BothConnected() {
		sess.Status = models.StatusReady
	} else {
		sess.Status = models.StatusLobby
	}
	sess.Touch(e.now())

	notes := []Notification{{
		Event: EventGameStarted,
		Data: map[string]any{
			"theme_id":        sess.ActiveThemeID,
			"theme_name":      themeName(sess),
			"time_budget_sec": themeBudget(sess),
		},
	}}
	return sess.Snapshot(), notes, nil
}

// Attack opens a round: the attacker's tool and the start timestamp are
// recorded and the session enters ATTACKING. When the round was already
// opened by advance logic the round number is not incremented again.
func (e *RoundEngine) Attack(sessionID, connID, toolID string) (*models.GameStateView, []Notification, error) {
	sess, ok := e.store.Get(sessionID)
	if !ok {
		return nil, nil, ErrSessionAbsent
	}
	sess.Lock()
	defer sess.Unlock()

	if role, ok := sess.RoleOf(connID, ""); !ok || role != models.RoleAttacker {
		return nil, nil, fmt.Errorf("attack: %w", ErrInvalidRole)
	}

	switch sess.Status {
	case models.StatusThemeCompleted, models.StatusGameFinished:
		return nil, nil, fmt.Errorf("cannot attack while %s", sess.Status)
	case models.StatusLobby:
		return nil, nil, fmt.Errorf("cannot attack before both players join")
	case models.StatusDefended, models.StatusBreached:
		return nil, nil, fmt.Errorf("round not advanced yet")
	case models.StatusAttacking:
		if sess.CurrentRound.AttackerTool != "" {
			return nil, nil, fmt.Errorf("attack already in progress")
		}
		// Round was opened by advance logic; round number already bumped.
	default: // READY
		sess.RoundNumber++
	}

	start := e.now()
	sess.CurrentRound = models.RoundState{AttackerTool: toolID, StartTime: &start}
	sess.Status = models.StatusAttacking
	sess.Touch(start)

	notes := []Notification{{
		Event: EventAttackExecuted,
		Data: map[string]any{
			"tool_id":           toolID,
			"round_number":      sess.RoundNumber,
			"theme_round_count": sess.ThemeRoundCount,
			"started_at":        start,
			"time_budget_sec":   themeBudget(sess),
		},
	}}
	return sess.Snapshot(), notes, nil
}

// Defend resolves the in-flight round. A correct defense scores the
// defender and extends the streak; a wrong one breaches and awards the
// attacker a flat BreachAward.
func (e *RoundEngine) Defend(sessionID, connID, toolID string, correct bool, timeRemaining float64) (*models.GameStateView, []Notification, error) {
	sess, ok := e.store.Get(sessionID)
	if !ok {
		return nil, nil, ErrSessionAbsent
	}
	sess.Lock()
	defer sess.Unlock()

	if role, ok := sess.RoleOf(connID, ""); !ok || role != models.RoleDefender {
		return nil, nil, fmt.Errorf("defend: %w", ErrInvalidRole)
	}
	if sess.Status != models.StatusAttacking || sess.CurrentRound.AttackerTool == "" {
		return nil, nil, fmt.Errorf("no attack to defend against")
	}

	now := e.now()
	result := models.RoundResult{
		RoundNumber:     sess.RoundNumber,
		ThemeID:         sess.ActiveThemeID,
		ThemeName:       themeName(sess),
		AttackerTool:    sess.CurrentRound.AttackerTool,
		DefenderTool:    toolID,
		Correct:         correct,
		ResponseTimeSec: roundSeconds(sess.CurrentRound.StartTime, now),
		Timestamp:       now,
	}

	if correct {
		pts := Score(timeRemaining, float64(themeBudget(sess)), true, sess.Streak)
		sess.DefenderScore += pts
		sess.Streak++
		sess.Status = models.StatusDefended
		result.ScoreGained = pts
		result.WinnerRole = models.RoleDefender
		result.WinnerConnID = sess.Defender.ConnectionID
		result.WinnerUserID = sess.Defender.UserID
	} else {
		sess.AttackerScore += BreachAward
		sess.Streak = 0
		sess.Status = models.StatusBreached
		result.ScoreGained = BreachAward
		result.WinnerRole = models.RoleAttacker
		result.WinnerConnID = sess.Attacker.ConnectionID
		result.WinnerUserID = sess.Attacker.UserID
	}

	sess.CurrentRound.DefenderTool = toolID
	sess.CurrentRound.EndTime = &now
	sess.History = append(sess.History, result)
	sess.TotalRounds = len(sess.History)
	sess.Touch(now)

	return sess.Snapshot(), []Notification{resultNote(result)}, nil
}

// TimeExpired resolves the in-flight round as a timeout breach: attacker
// +TimeoutAward, streak wiped. A stale timer firing outside ATTACKING is a
// silent no-op so duplicate host timers can't double-resolve a round.
func (e *RoundEngine) TimeExpired(sessionID string) (*models.GameStateView, []Notification, error) {
	sess, ok := e.store.Get(sessionID)
	if !ok {
		return nil, nil, ErrSessionAbsent
	}
	sess.Lock()
	defer sess.Unlock()

	if sess.Status != models.StatusAttacking || sess.CurrentRound.AttackerTool == "" {
		return sess.Snapshot(), nil, nil
	}

	now := e.now()
	result := models.RoundResult{
		RoundNumber:     sess.RoundNumber,
		ThemeID:         sess.ActiveThemeID,
		ThemeName:       themeName(sess),
		AttackerTool:    sess.CurrentRound.AttackerTool,
		Correct:         false,
		ResponseTimeSec: float64(themeBudget(sess)),
		ScoreGained:     TimeoutAward,
		WinnerRole:      models.RoleAttacker,
		TimedOut:        true,
		WinnerConnID:    sess.Attacker.ConnectionID,
		WinnerUserID:    sess.Attacker.UserID,
		Timestamp:       now,
	}

	sess.AttackerScore += TimeoutAward
	sess.Streak = 0
	sess.Status = models.StatusBreached
	sess.CurrentRound.EndTime = &now
	sess.History = append(sess.History, result)
	sess.TotalRounds = len(sess.History)
	sess.Touch(now)

	return sess.Snapshot(), []Notification{resultNote(result)}, nil
}

// ChooseNextRole lets the winner of the resolved round pick their role for
// the next one, then advances. A swap exchanges both seats wholesale so the
// opponent is never evicted or duplicated.
func (e *RoundEngine) ChooseNextRole(sessionID, connID, userID string, role models.Role) (*models.GameStateView, []Notification, error) {
	sess, ok := e.store.Get(sessionID)
	if !ok {
		return nil, nil, ErrSessionAbsent
	}
	sess.Lock()
	defer sess.Unlock()

	if len(sess.History) == 0 {
		return nil, nil, ErrNoPriorRound
	}
	if sess.Status != models.StatusDefended && sess.Status != models.StatusBreached {
		return nil, nil, fmt.Errorf("no round awaiting advance")
	}
	if !role.Valid() {
		return nil, nil, fmt.Errorf("unknown role %q", role)
	}

	// Authorization is by the identity recorded on the result, not the
	// caller's current seat: a seat swap between resolution and choice
	// must not let the loser pick.
	last := sess.History[len(sess.History)-1]
	callerRole, seated := sess.RoleOf(connID, userID)
	if !seated || !wonRound(last, connID, userID) {
		return nil, nil, fmt.Errorf("only the round winner picks the next role: %w", ErrInvalidRole)
	}

	if role != callerRole {
		sess.Attacker, sess.Defender = sess.Defender, sess.Attacker
	}

	notes := e.advance(sess)
	sess.Touch(e.now())
	return sess.Snapshot(), notes, nil
}

// NextRound advances after a resolved round without changing seats. Either
// participant may request it.
func (e *RoundEngine) NextRound(sessionID, connID, userID string) (*models.GameStateView, []Notification, error) {
	sess, ok := e.store.Get(sessionID)
	if !ok {
		return nil, nil, ErrSessionAbsent
	}
	sess.Lock()
	defer sess.Unlock()

	if len(sess.History) == 0 {
		return nil, nil, ErrNoPriorRound
	}
	if sess.Status != models.StatusDefended && sess.Status != models.StatusBreached {
		return nil, nil, fmt.Errorf("no round awaiting advance")
	}
	if _, seated := sess.RoleOf(connID, userID); !seated {
		return nil, nil, fmt.Errorf("next round: %w", ErrInvalidRole)
	}

	notes := e.advance(sess)
	sess.Touch(e.now())
	return sess.Snapshot(), notes, nil
}

// Reset fully reinitializes a session back to LOBBY. Seats survive so the
// same two players can start over; everything else is wiped.
func (e *RoundEngine) Reset(sessionID string) (*models.GameStateView, []Notification, error) {
	sess, ok := e.store.Get(sessionID)
	if !ok {
		return nil, nil, ErrSessionAbsent
	}
	sess.Lock()
	defer sess.Unlock()

	sess.Status = models.StatusLobby
	sess.ActiveThemeID = ""
	sess.ActiveTheme = nil
	sess.CurrentRound = models.RoundState{}
	sess.AttackerScore = 0
	sess.DefenderScore = 0
	sess.RoundNumber = 0
	sess.ThemeRoundCount = 1
	sess.Streak = 0
	sess.PlayedThemes = []string{}
	sess.History = []models.RoundResult{}
	sess.TotalRounds = 0
	sess.ThemeWinnerUserID = ""
	sess.GlobalWinnerUserID = ""
	sess.FinalScores = nil
	sess.Touch(e.now())

	return sess.Snapshot(), []Notification{{Event: EventGameReset, Data: map[string]any{}}}, nil
}

// Replay rewinds round progression on the current theme while keeping
// scores and history intact.
func (e *RoundEngine) Replay(sessionID string) (*models.GameStateView, []Notification, error) {
	sess, ok := e.store.Get(sessionID)
	if !ok {
		return nil, nil, ErrSessionAbsent
	}
	sess.Lock()
	defer sess.Unlock()

	sess.CurrentRound = models.RoundState{}
	sess.RoundNumber = 0
	sess.ThemeRoundCount = 1
	sess.Streak = 0
	sess.ThemeWinnerUserID = ""
	sess.Status = models.StatusReady
	sess.Touch(e.now())

	return sess.Snapshot(), []Notification{{Event: EventGameReplay, Data: map[string]any{}}}, nil
}

// State returns a snapshot without mutating anything.
func (e *RoundEngine) State(sessionID string) (*models.GameStateView, error) {
	sess, ok := e.store.Get(sessionID)
	if !ok {
		return nil, ErrSessionAbsent
	}
	sess.Lock()
	defer sess.Unlock()
	return sess.Snapshot(), nil
}

// Disconnect marks the caller's seat as vacated by the transport. The
// stable identity stays on the seat so the player can reconnect.
func (e *RoundEngine) Disconnect(sessionID, connID string) (*models.GameStateView, []Notification, error) {
	sess, ok := e.store.Get(sessionID)
	if !ok {
		return nil, nil, ErrSessionAbsent
	}
	sess.Lock()
	defer sess.Unlock()

	role, seated := sess.RoleOf(connID, "")
	if !seated {
		return sess.Snapshot(), nil, nil
	}
	slot := sess.Slot(role)
	slot.ConnectionID = ""
	slot.Connected = false
	sess.Touch(e.now())

	notes := []Notification{{
		Event: EventPlayerDisconnected,
		Data:  map[string]any{"role": role, "user_id": slot.UserID},
	}}
	return sess.Snapshot(), notes, nil
}

// placeCaller seats connID/userID in the session. Rules, in order:
// a known identity reclaims its seat (or swaps via an explicit claim,
// displacing nobody — the pre-transition occupant of the claimed seat is
// moved to the caller's old seat); an unknown caller takes the claimed seat
// when free, otherwise any free seat; a full session rejects strangers.
func (e *RoundEngine) placeCaller(sess *models.GameSession, connID, userID string, claim models.Role) (models.Role, error) {
	preAttacker, preDefender := sess.Attacker, sess.Defender
	prevRole, known := sess.RoleOf(connID, userID)

	caller := models.PlayerSlot{ConnectionID: connID, UserID: userID, Connected: true}
	if known && userID == "" {
		caller.UserID = sess.Slot(prevRole).UserID
	}

	var target models.Role
	switch {
	case known && (!claim.Valid() || claim == prevRole):
		target = prevRole
	case known:
		// Explicit role swap: whoever held the claimed seat moves to the
		// caller's old seat, identity intact.
		target = claim
		displaced := *sess.Slot(claim)
		*sess.Slot(prevRole) = displaced
	case claim.Valid() && !preSlot(preAttacker, preDefender, claim).Occupied():
		target = claim
	case !preAttacker.Occupied():
		target = models.RoleAttacker
	case !preDefender.Occupied():
		target = models.RoleDefender
	default:
		return "", ErrSessionFull
	}

	*sess.Slot(target) = caller

	// A connection id is unique across both seats of a session.
	other := sess.Slot(target.Other())
	if connID != "" && other.ConnectionID == connID {
		other.ConnectionID = ""
		other.Connected = false
	}
	if userID != "" && other.UserID == userID && !known {
		*other = models.PlayerSlot{}
	}
	return target, nil
}

// setTheme resolves which theme to play: an explicit id from the caller, a
// continuation of the active theme, or the next unplayed catalog theme.
// ThemeRoundCount snaps back to 1 whenever the active theme id changes.
func (e *RoundEngine) setTheme(sess *models.GameSession, themeID string) {
	var theme models.Theme
	switch {
	case themeID != "":
		if t, ok := e.catalog.ByID(themeID); ok {
			theme = t
		} else {
			theme = models.Theme{ID: themeID, Name: themeID, TimeBudgetSec: 30}
		}
	case sess.Status == models.StatusThemeCompleted:
		if t, ok := e.catalog.Next(sess.PlayedThemes); ok {
			theme = t
		} else {
			return
		}
	case sess.ActiveTheme != nil:
		return
	default:
		theme = e.catalog.First()
	}

	if theme.ID != sess.ActiveThemeID {
		sess.ThemeRoundCount = 1
	}
	sess.ActiveThemeID = theme.ID
	sess.ActiveTheme = &theme
}

// advance moves a resolved round forward: either the next round of the
// active theme opens, or — on the theme's final round — the theme winner is
// computed and, once every catalog theme is played, the game finishes with
// a global winner.
func (e *RoundEngine) advance(sess *models.GameSession) []Notification {
	if sess.ThemeRoundCount < models.RoundsPerTheme {
		sess.RoundNumber++
		sess.ThemeRoundCount++
		sess.CurrentRound = models.RoundState{}
		sess.Status = models.StatusAttacking
		sess.ThemeWinnerUserID = ""
		return []Notification{{
			Event: EventNextRoundReady,
			Data: map[string]any{
				"round_number":      sess.RoundNumber,
				"theme_round_count": sess.ThemeRoundCount,
			},
		}}
	}

	sess.CurrentRound = models.RoundState{}
	sess.Status = models.StatusThemeCompleted
	winner, _ := aggregateWinners(sess.History, sess.ActiveThemeID)
	sess.ThemeWinnerUserID = winner
	if sess.ActiveThemeID != "" && !sess.HasPlayedTheme(sess.ActiveThemeID) {
		sess.PlayedThemes = append(sess.PlayedThemes, sess.ActiveThemeID)
	}

	if len(sess.PlayedThemes) >= e.catalog.Size() {
		sess.Status = models.StatusGameFinished
		global, totals := aggregateWinners(sess.History, "")
		sess.GlobalWinnerUserID = global
		sess.FinalScores = &models.FinalScores{
			Attacker: sess.AttackerScore,
			Defender: sess.DefenderScore,
			ByUser:   totals,
		}
	}
	return nil
}

// aggregateWinners sums ScoreGained per winner identity over history,
// restricted to themeID when non-empty. Returns the identity with the
// highest total; ties go to whichever identity appeared first in
// chronological order. When nobody accumulated a score it falls back to
// the winner of the last matching round.
func aggregateWinners(history []models.RoundResult, themeID string) (string, map[string]int) {
	totals := make(map[string]int)
	var order []string
	for _, r := range history {
		if themeID != "" && r.ThemeID != themeID {
			continue
		}
		key := r.WinnerKey()
		if key == "" {
			continue
		}
		if _, seen := totals[key]; !seen {
			order = append(order, key)
		}
		totals[key] += r.ScoreGained
	}

	best, bestScore := "", 0
	for _, key := range order {
		if totals[key] > bestScore {
			best, bestScore = key, totals[key]
		}
	}
	if best == "" {
		for i := len(history) - 1; i >= 0; i-- {
			if themeID == "" || history[i].ThemeID == themeID {
				best = history[i].WinnerKey()
				break
			}
		}
	}
	return best, totals
}

// wonRound reports whether the caller's identity is the one recorded as
// the winner of the result, matching by connection first and falling back
// to the stable user id (which survives reconnects).
func wonRound(result models.RoundResult, connID, userID string) bool {
	if connID != "" && connID == result.WinnerConnID {
		return true
	}
	return userID != "" && userID == result.WinnerUserID
}

func resultNote(result models.RoundResult) Notification {
	return Notification{
		Event: EventRoundResult,
		Data: map[string]any{
			"round_number":      result.RoundNumber,
			"theme_id":          result.ThemeID,
			"attacker_tool":     result.AttackerTool,
			"defender_tool":     result.DefenderTool,
			"correct":           result.Correct,
			"response_time_sec": result.ResponseTimeSec,
			"score_gained":      result.ScoreGained,
			"winner_role":       result.WinnerRole,
			"timed_out":         result.TimedOut,
		},
	}
}

func preSlot(attacker, defender models.PlayerSlot, role models.Role) models.PlayerSlot {
	if role == models.RoleAttacker {
		return attacker
	}
	return defender
}

func themeBudget(sess *models.GameSession) int {
	if sess.ActiveTheme == nil {
		return 30
	}
	return sess.ActiveTheme.TimeBudgetSec
}

func themeName(sess *models.GameSession) string {
	if sess.ActiveTheme == nil {
		return ""
	}
	return sess.ActiveTheme.Name
}

func roundSeconds(start *time.Time, end time.Time) float64 {
	if start == nil {
		return 0
	}
	return math.Round(end.Sub(*start).Seconds()*100) / 100
}

package handlers

import (
	"encoding/json"
	"errors"
	"log"

	"cyber-duel-server/models"
	"cyber-duel-server/services"
	"cyber-duel-server/workers"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

// WSHandler owns the websocket side of a duel: one goroutine per
// connection reads event envelopes, dispatches them to the round engine,
// and fans the results back out through the hub.
type WSHandler struct {
	engine   *services.RoundEngine
	store    *services.SessionStore
	hub      *services.Hub
	mirror   *services.MirrorService
	archiver *workers.ReportArchiver
}

func NewWSHandler(engine *services.RoundEngine, store *services.SessionStore, hub *services.Hub, mirror *services.MirrorService, archiver *workers.ReportArchiver) *WSHandler {
	return &WSHandler{engine: engine, store: store, hub: hub, mirror: mirror, archiver: archiver}
}

// inboundMessage is the wire envelope for client events.
type inboundMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type joinPayload struct {
	Role   models.Role `json:"role,omitempty"`
	Theme  string      `json:"theme,omitempty"`
	UserID string      `json:"user_id,omitempty"`
}

type attackPayload struct {
	ToolID string `json:"tool_id"`
}

type defendPayload struct {
	ToolID        string  `json:"tool_id"`
	IsCorrect     bool    `json:"is_correct"`
	TimeRemaining float64 `json:"time_remaining,omitempty"`
}

type chooseRolePayload struct {
	Role models.Role `json:"role"`
}

// Handle runs the lifetime of one connection on /ws/:sessionId.
func (h *WSHandler) Handle(conn *websocket.Conn) {
	sessionID := conn.Params("sessionId")
	connID := uuid.NewString()

	client := &services.Client{ID: connID, Conn: conn}
	h.hub.Register(sessionID, client)
	log.Printf("🔌 [WS] Connection %s opened for session %s", connID, sessionID)

	// Stable identity, learned from join/start payloads, used for
	// winner-identity checks after a mid-game reconnect.
	userID := ""

	defer func() {
		h.hub.Unregister(sessionID, connID)
		view, notes, err := h.engine.Disconnect(sessionID, connID)
		if err == nil {
			h.fanOut(sessionID, view, notes)
			h.store.ScheduleIdleDeletion(sessionID, services.IdleDeletionDelay)
		}
		log.Printf("🔌 [WS] Connection %s closed for session %s", connID, sessionID)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			client.Send(services.EventError, map[string]any{"message": "malformed event envelope"})
			continue
		}

		var (
			view  *models.GameStateView
			notes []services.Notification
		)

		switch msg.Event {
		case "join":
			var p joinPayload
			_ = json.Unmarshal(msg.Data, &p)
			if p.UserID != "" {
				userID = p.UserID
			}
			view, notes, err = h.engine.Join(sessionID, connID, p.UserID, p.Role, p.Theme)

		case "start":
			var p joinPayload
			_ = json.Unmarshal(msg.Data, &p)
			if p.UserID != "" {
				userID = p.UserID
			}
			view, notes, err = h.engine.Start(sessionID, connID, p.UserID, p.Role, p.Theme)

		case "attack":
			var p attackPayload
			_ = json.Unmarshal(msg.Data, &p)
			view, notes, err = h.engine.Attack(sessionID, connID, p.ToolID)

		case "defend":
			var p defendPayload
			_ = json.Unmarshal(msg.Data, &p)
			view, notes, err = h.engine.Defend(sessionID, connID, p.ToolID, p.IsCorrect, p.TimeRemaining)

		case "time_expired":
			view, notes, err = h.engine.TimeExpired(sessionID)

		case "choose_next_role":
			var p chooseRolePayload
			_ = json.Unmarshal(msg.Data, &p)
			view, notes, err = h.engine.ChooseNextRole(sessionID, connID, userID, p.Role)

		case "next_round":
			view, notes, err = h.engine.NextRound(sessionID, connID, userID)

		case "reset":
			view, notes, err = h.engine.Reset(sessionID)

		case "replay":
			view, notes, err = h.engine.Replay(sessionID)

		case "request_state":
			view, err = h.engine.State(sessionID)
			if err == nil {
				client.Send(services.EventGameState, view)
			}
			if errors.Is(err, services.ErrSessionAbsent) {
				err = nil
			}
			continue

		default:
			client.Send(services.EventError, map[string]any{"message": "unknown event: " + msg.Event})
			continue
		}

		if err != nil {
			// Events against unknown sessions are dropped silently; every
			// other rejection goes back to the offending connection only.
			if !errors.Is(err, services.ErrSessionAbsent) {
				client.Send(services.EventError, map[string]any{"message": err.Error()})
			}
			continue
		}

		h.fanOut(sessionID, view, notes)

		if view != nil && view.Status == models.StatusGameFinished {
			h.finishGame(view)
		}
	}
}

// fanOut delivers the engine's notifications, then the refreshed snapshot
// to every participant, then hands the snapshot to the write-behind mirror.
func (h *WSHandler) fanOut(sessionID string, view *models.GameStateView, notes []services.Notification) {
	for _, note := range notes {
		h.hub.Deliver(sessionID, note)
	}
	if view != nil {
		h.hub.Broadcast(sessionID, services.EventGameState, view)
		h.mirror.Enqueue(view)
	}
}

func (h *WSHandler) finishGame(view *models.GameStateView) {
	h.mirror.ArchiveMatch(view)
	h.archiver.Submit(models.MatchReport{
		SessionID:    view.SessionID,
		WinnerUserID: view.GlobalWinnerUserID,
		FinalScores:  view.FinalScores,
		PlayedThemes: view.PlayedThemes,
		History:      view.History,
		FinishedAt:   view.UpdatedAt,
	})
}

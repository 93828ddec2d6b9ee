package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"cyber-duel-server/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MirrorExpiry is how long a mirrored snapshot stays valid. It must not be
// shorter than the in-memory sweep threshold.
const MirrorExpiry = 2 * time.Hour

// MirrorService is the optional write-behind persistence for session
// snapshots plus the finished-match archive. Live gameplay never waits on
// it: snapshots are enqueued on a buffered channel and flushed by a
// background goroutine. With no database configured every method is a no-op.
type MirrorService struct {
	db    *gorm.DB
	queue chan *models.GameStateView
	now   func() time.Time
}

func NewMirrorService(db *gorm.DB) *MirrorService {
	return &MirrorService{
		db:    db,
		queue: make(chan *models.GameStateView, 256),
		now:   time.Now,
	}
}

// Enabled reports whether a database is wired in.
func (m *MirrorService) Enabled() bool {
	return m != nil && m.db != nil
}

// Enqueue hands a snapshot to the flusher. Never blocks: if the queue is
// full the snapshot is dropped — the next mutating event re-enqueues a
// fresher one anyway.
func (m *MirrorService) Enqueue(view *models.GameStateView) {
	if !m.Enabled() || view == nil {
		return
	}
	select {
	case m.queue <- view:
	default:
		log.Printf("⚠️ [MIRROR] Queue full, dropping snapshot for session %s", view.SessionID)
	}
}

// Run is the flusher loop. Start it as a goroutine; it exits with ctx.
func (m *MirrorService) Run(ctx context.Context) {
	if !m.Enabled() {
		return
	}
	log.Println("Starting session mirror flusher...")
	for {
		select {
		case <-ctx.Done():
			log.Println("Session mirror flusher stopped.")
			return
		case view := <-m.queue:
			m.flush(view)
		}
	}
}

func (m *MirrorService) flush(view *models.GameStateView) {
	state, err := json.Marshal(view)
	if err != nil {
		log.Printf("❌ [MIRROR] Failed to marshal session %s: %v", view.SessionID, err)
		return
	}
	row := models.SessionMirror{
		SessionID:    view.SessionID,
		State:        state,
		Status:       string(view.Status),
		RoundsPlayed: view.TotalRounds,
		UpdatedAt:    m.now(),
		ExpiresAt:    m.now().Add(MirrorExpiry),
	}
	err = m.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"state", "status", "rounds_played", "updated_at", "expires_at",
		}),
	}).Create(&row).Error
	if err != nil {
		log.Printf("❌ [MIRROR] Failed to upsert session %s: %v", view.SessionID, err)
	}
}

// ArchiveMatch records one finished duel.
func (m *MirrorService) ArchiveMatch(view *models.GameStateView) {
	if !m.Enabled() || view == nil {
		return
	}
	record := models.MatchRecord{
		ID:            uuid.NewString(),
		SessionID:     view.SessionID,
		WinnerUserID:  view.GlobalWinnerUserID,
		AttackerScore: view.AttackerScore,
		DefenderScore: view.DefenderScore,
		TotalRounds:   view.TotalRounds,
		ThemesPlayed:  len(view.PlayedThemes),
		DurationSec:   matchDuration(view),
	}
	if err := m.db.Create(&record).Error; err != nil {
		log.Printf("❌ [MIRROR] Failed to archive match for session %s: %v", view.SessionID, err)
		return
	}
	log.Printf("🏁 [MIRROR] Archived finished match %s (session %s)", record.ID, view.SessionID)
}

// PurgeExpired deletes mirror rows past their expiry.
func (m *MirrorService) PurgeExpired() {
	if !m.Enabled() {
		return
	}
	res := m.db.Where("expires_at < ?", m.now()).Delete(&models.SessionMirror{})
	if res.Error != nil {
		log.Printf("❌ [MIRROR] Purge failed: %v", res.Error)
		return
	}
	if res.RowsAffected > 0 {
		log.Printf("🧹 [MIRROR] Purged %d expired mirror row(s)", res.RowsAffected)
	}
}

func matchDuration(view *models.GameStateView) int {
	if len(view.History) == 0 {
		return 0
	}
	first := view.History[0].Timestamp
	last := view.History[len(view.History)-1].Timestamp
	return int(last.Sub(first).Seconds())
}

package workers

import (
	"context"
	"fmt"
	"log"
	"time"

	"cyber-duel-server/models"
	"cyber-duel-server/utils"
)

// ReportArchiver uploads end-of-game match reports to object storage in the
// background. Disabled (all submits dropped) when R2 is not configured.
type ReportArchiver struct {
	enabled bool
	reports chan models.MatchReport
}

func NewReportArchiver(enabled bool) *ReportArchiver {
	return &ReportArchiver{
		enabled: enabled,
		reports: make(chan models.MatchReport, 64),
	}
}

// Submit queues a finished-game report. Never blocks the game path.
func (a *ReportArchiver) Submit(report models.MatchReport) {
	if !a.enabled {
		return
	}
	select {
	case a.reports <- report:
	default:
		log.Printf("⚠️ [ARCHIVER] Report queue full, dropping report for session %s", report.SessionID)
	}
}

// Run drains the report queue until ctx is cancelled.
func (a *ReportArchiver) Run(ctx context.Context) {
	if !a.enabled {
		return
	}
	log.Println("Starting match report archiver...")
	for {
		select {
		case <-ctx.Done():
			log.Println("Match report archiver stopped.")
			return
		case report := <-a.reports:
			a.upload(ctx, report)
		}
	}
}

func (a *ReportArchiver) upload(ctx context.Context, report models.MatchReport) {
	key := fmt.Sprintf("reports/%s/%d.json", report.SessionID, report.FinishedAt.Unix())

	uploadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	url, err := utils.UploadJSON(uploadCtx, key, report)
	if err != nil {
		log.Printf("❌ [ARCHIVER] Failed to upload report for session %s: %v", report.SessionID, err)
		return
	}
	log.Printf("📦 [ARCHIVER] Uploaded match report: %s", url)
}

package services

import (
	"log"

	"github.com/go-co-op/gocron/v2"
)

// StartCleanupScheduler runs the periodic sweep: every SweepInterval it
// reaps sessions idle for longer than SweepMaxAge and purges expired mirror
// rows. Deletion goes through the same per-session locks as live events.
func StartCleanupScheduler(store *SessionStore, mirror *MirrorService) {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(SweepInterval),
		gocron.NewTask(func() {
			if removed := store.Sweep(SweepMaxAge); removed > 0 {
				log.Printf("🧹 [SWEEP] Removed %d idle session(s), %d remaining", removed, store.Len())
			}
			mirror.PurgeExpired()
		}),
	)
}

package cleanup

import (
	"log"
	"time"

	"github.com/rentiva/rentiva-backend/internal/repository/postgres"
)

const retainInactiveSessions = 30 * 24 * time.Hour

// Worker prunes dead session rows and stale OTP records on a schedule.
type Worker struct {
	Sessions *postgres.SessionRepo
	OTPs     *postgres.OTPRepo
}

func NewWorker(sessions *postgres.SessionRepo, otps *postgres.OTPRepo) *Worker {
	return &Worker{Sessions: sessions, OTPs: otps}
}

// Start runs one pass immediately, then hourly.
func (w *Worker) Start() {
	go w.run()

	ticker := time.NewTicker(1 * time.Hour)
	go func() {
		for range ticker.C {
			w.run()
		}
	}()
	log.Println("[CLEANUP] Background worker started")
}

func (w *Worker) run() {
	cutoff := time.Now().Add(-retainInactiveSessions)
	deleted, err := w.Sessions.DeleteInactiveBefore(cutoff)
	if err != nil {
		log.Printf("[CLEANUP] Error cleaning up sessions: %v", err)
	} else if deleted > 0 {
		log.Printf("[CLEANUP] Removed %d inactive sessions", deleted)
	}

	deleted, err = w.OTPs.DeleteExpiredBefore(time.Now())
	if err != nil {
		log.Printf("[CLEANUP] Error cleaning up otp codes: %v", err)
	} else if deleted > 0 {
		log.Printf("[CLEANUP] Removed %d expired otp codes", deleted)
	}
}

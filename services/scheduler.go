// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartSettlementScheduler runs the per-minute sweep: for every user, fail
// overdue habits and emit deadline reminders. The tick instant is captured
// once and passed down, so each batch evaluates against a single "now".
//
// One user's failure is logged and the batch continues; the next tick retries
// naturally. Duel resolution is deliberately not swept here — it runs lazily
// on duel access and after certifications.
func StartSettlementScheduler(users *UserService, certs *CertificationService) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			now := time.Now()
			ids, err := users.ListUserIDs()
			if err != nil {
				log.Printf("[Scheduler] failed to list users: %v", err)
				return
			}

			failed := 0
			for _, userID := range ids {
				if _, err := certs.EvaluateOverdue(userID, now); err != nil {
					log.Printf("[Scheduler] overdue sweep failed for user %s: %v", userID, err)
					failed++
					continue
				}
				if err := certs.EmitDeadlineReminders(userID, now); err != nil {
					log.Printf("[Scheduler] reminder emission failed for user %s: %v", userID, err)
					failed++
				}
			}
			if failed > 0 {
				log.Printf("[Scheduler] sweep finished with %d/%d users failed", failed, len(ids))
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	sched.Start()
	return sched, nil
}

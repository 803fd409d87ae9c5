package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/attendify/attendance-server-go/internal/repository"
)

// Grace period before an expired passcode is swept from its session row.
// The evaluator already rejects expired codes, so the sweep is hygiene,
// not enforcement; the lag keeps a just-expired code visible to teachers
// who want to extend it.
const passcodeSweepGrace = 2 * time.Minute

// CleanupJob periodically sweeps stale passcodes off sessions and closes
// out routine sessions whose end time has passed.
type CleanupJob struct {
	sessionRepo repository.SessionRepository
	interval    time.Duration
	done        chan struct{}
}

func NewCleanupJob(sessionRepo repository.SessionRepository, interval time.Duration) *CleanupJob {
	return &CleanupJob{
		sessionRepo: sessionRepo,
		interval:    interval,
		done:        make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	j.runCleanup(ctx, "expired passcodes", func(ctx context.Context) (int64, error) {
		return j.sessionRepo.SweepExpiredPasscodes(ctx, passcodeSweepGrace)
	})
	j.runCleanup(ctx, "past sessions", j.sessionRepo.CompletePastSessions)
}

func (j *CleanupJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to clean up %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}

package job

import "context"

const StaleSessionCleanupJobName = "stale_session_cleanup"

type ISessionCleaner interface {
	CleanupIdle(ctx context.Context) (int, error)
}

type StaleSessionCleanupJob struct {
	cleaner ISessionCleaner
}

func NewStaleSessionCleanupJob(cleaner ISessionCleaner) *StaleSessionCleanupJob {
	return &StaleSessionCleanupJob{cleaner: cleaner}
}

func (j *StaleSessionCleanupJob) Name() string {
	return StaleSessionCleanupJobName
}

func (j *StaleSessionCleanupJob) Run(ctx context.Context) error {
	_, err := j.cleaner.CleanupIdle(ctx)
	return err
}

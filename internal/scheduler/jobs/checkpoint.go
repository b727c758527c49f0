package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/swingdag/internal/checkpoint"
	"github.com/wonny/swingdag/internal/session"
	"github.com/wonny/swingdag/pkg/logger"
)

// CheckpointJob snapshots every live session.
type CheckpointJob struct {
	sessions *session.Manager
	ckpt     *checkpoint.Manager
	schedule string
	logger   *logger.Logger
}

// NewCheckpointJob creates a new checkpoint job
func NewCheckpointJob(sessions *session.Manager, ckpt *checkpoint.Manager, schedule string, log *logger.Logger) *CheckpointJob {
	return &CheckpointJob{
		sessions: sessions,
		ckpt:     ckpt,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *CheckpointJob) Name() string {
	return "checkpoint"
}

// Schedule returns the cron schedule
func (j *CheckpointJob) Schedule() string {
	return j.schedule
}

// Run checkpoints all sessions. Halted sessions are skipped; one failing
// session does not stop the others.
func (j *CheckpointJob) Run(ctx context.Context) error {
	var errs []error
	saved := 0
	for _, s := range j.sessions.List() {
		if err := s.Err(); err != nil {
			j.logger.WithField("session", s.ID()).Debug("Skipping halted session")
			continue
		}
		rec, err := j.ckpt.Checkpoint(ctx, s)
		if err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", s.ID(), err))
			continue
		}
		saved++
		j.logger.WithFields(map[string]interface{}{
			"session":    s.ID(),
			"checkpoint": rec.ID.String(),
			"bar":        rec.BarIndex,
		}).Debug("Session checkpointed")
	}

	if saved > 0 {
		j.logger.WithField("sessions", saved).Info("Checkpoint run completed")
	}
	return errors.Join(errs...)
}

// Pruner is the part of the checkpoint repository used by CheckpointPruneJob.
type Pruner interface {
	Prune(ctx context.Context, sessionID string, keep int) (int64, error)
}

// CheckpointPruneJob keeps only the newest checkpoints per session.
type CheckpointPruneJob struct {
	sessions *session.Manager
	repo     Pruner
	keep     int
	logger   *logger.Logger
}

// NewCheckpointPruneJob creates a new prune job
func NewCheckpointPruneJob(sessions *session.Manager, repo Pruner, keep int, log *logger.Logger) *CheckpointPruneJob {
	if keep < 1 {
		keep = 1
	}
	return &CheckpointPruneJob{
		sessions: sessions,
		repo:     repo,
		keep:     keep,
		logger:   log,
	}
}

// Name returns the job name
func (j *CheckpointPruneJob) Name() string {
	return "checkpoint_prune"
}

// Schedule returns the cron schedule (hourly)
func (j *CheckpointPruneJob) Schedule() string {
	return "0 0 * * * *"
}

// Run deletes old checkpoint rows
func (j *CheckpointPruneJob) Run(ctx context.Context) error {
	var total int64
	for _, s := range j.sessions.List() {
		n, err := j.repo.Prune(ctx, s.ID(), j.keep)
		if err != nil {
			return err
		}
		total += n
	}

	if total > 0 {
		j.logger.WithField("removed", total).Info("Checkpoint prune completed")
	}
	return nil
}

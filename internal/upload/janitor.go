package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hszk-dev/vidingest/internal/domain/model"
	"github.com/hszk-dev/vidingest/internal/domain/repository"
	"github.com/hszk-dev/vidingest/internal/infrastructure/metrics"
)

// DefaultJanitorSchedule runs a sweep every five minutes (cron with seconds field).
const DefaultJanitorSchedule = "0 */5 * * * *"

const expiredMessage = "upload expired before all chunks arrived"

// Janitor fails uploads that stopped receiving chunks and removes their chunk
// directories, plus chunk directories that have no session at all.
type Janitor struct {
	manager *Manager
	maxAge  time.Duration
	cron    *cron.Cron
	logger  *slog.Logger
	now     func() time.Time
}

// NewJanitor creates a Janitor that sweeps on schedule. The schedule uses the
// six-field cron format with seconds.
func NewJanitor(manager *Manager, maxAge time.Duration, schedule string, logger *slog.Logger) (*Janitor, error) {
	if maxAge <= 0 {
		return nil, fmt.Errorf("%w: janitor max age must be positive", model.ErrConfiguration)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if schedule == "" {
		schedule = DefaultJanitorSchedule
	}

	j := &Janitor{
		manager: manager,
		maxAge:  maxAge,
		cron:    cron.New(cron.WithSeconds()),
		logger:  logger,
		now:     time.Now,
	}
	if _, err := j.cron.AddFunc(schedule, j.run); err != nil {
		return nil, fmt.Errorf("%w: janitor schedule %q: %w", model.ErrConfiguration, schedule, err)
	}
	return j, nil
}

// Start begins running sweeps in the background.
func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop stops the schedule. The returned context is done once a running sweep finishes.
func (j *Janitor) Stop() context.Context {
	return j.cron.Stop()
}

func (j *Janitor) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	removed, err := j.Sweep(ctx)
	if err != nil {
		j.logger.Error("janitor sweep failed", slog.String("error", err.Error()))
		return
	}
	if removed > 0 {
		j.logger.Info("janitor sweep finished", slog.Int("removed", removed))
	}
}

// Sweep fails stale sessions and removes orphaned chunk directories older than
// the max age. It returns the number of sessions and directories removed.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	cutoff := j.now().Add(-j.maxAge)

	stale, err := j.manager.sessions.ListStale(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale sessions: %w", err)
	}

	var errs []error
	removed := 0
	for _, s := range stale {
		if err := j.manager.MarkFailed(ctx, s.SessionID, expiredMessage); err != nil {
			errs = append(errs, fmt.Errorf("fail session %s: %w", s.SessionID, err))
			continue
		}
		if err := j.manager.CleanupSession(ctx, s.SessionID); err != nil {
			errs = append(errs, fmt.Errorf("cleanup session %s: %w", s.SessionID, err))
			continue
		}
		j.logger.Info("expired upload session removed",
			slog.String("session_id", s.SessionID),
			slog.String("tenant_id", s.TenantID),
		)
		removed++
	}

	orphans, err := j.sweepOrphans(ctx, cutoff)
	if err != nil {
		errs = append(errs, err)
	}
	removed += orphans

	metrics.JanitorRemovedTotal.Add(float64(removed))
	return removed, errors.Join(errs...)
}

// sweepOrphans removes {root}/{tenant}/chunks/{session} directories whose
// session is unknown and whose modification time is before cutoff.
func (j *Janitor) sweepOrphans(ctx context.Context, cutoff time.Time) (int, error) {
	dirs, err := filepath.Glob(filepath.Join(j.manager.root, "*", "chunks", "*"))
	if err != nil {
		return 0, fmt.Errorf("list chunk directories: %w", err)
	}

	removed := 0
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() || !info.ModTime().Before(cutoff) {
			continue
		}

		_, err = j.manager.sessions.Get(ctx, filepath.Base(dir))
		if !errors.Is(err, repository.ErrSessionNotFound) {
			continue
		}

		if err := os.RemoveAll(dir); err != nil {
			return removed, fmt.Errorf("%w: remove orphaned chunk directory: %w", model.ErrStorage, err)
		}
		j.logger.Info("removed orphaned chunk directory", slog.String("path", dir))
		removed++
	}
	return removed, nil
}

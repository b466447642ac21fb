package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/NordCoder/upwatch/internal/domain/notification"
)

type CheckDeleter interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Pruner drops checks older than the retention window. Monitors are not
// touched.
type Pruner struct {
	Checks        CheckDeleter
	RetentionDays int
	Clock         notification.Clock
	Log           *zap.Logger
}

// Prune returns the number of deleted checks. Zero days keeps everything.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	if p.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := p.Clock.Now().Add(-time.Duration(p.RetentionDays) * 24 * time.Hour)
	n, err := p.Checks.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune checks: %w", err)
	}
	if n > 0 {
		p.Log.Info("pruned checks", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}

func (p *Pruner) Job(ctx context.Context) error {
	_, err := p.Prune(ctx)
	return err
}

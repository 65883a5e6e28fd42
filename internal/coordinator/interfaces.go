package coordinator

import (
	"context"
	"time"

	"github.com/refitlab/refit/internal/filelock"
)

//go:generate mockgen -source=interfaces.go -destination=mocks/mock_interfaces.go -package=mocks

// Governor paces provider-bound operations and records consumption.
type Governor interface {
	Estimate(opType, path string, sizeLines int, provider string) float64
	Delay(cost float64, opType, provider string) time.Duration
	Record(opType, path string, actualCost float64, duration time.Duration, provider string, sizeLines int)
}

// Lock is a held scoped lock on one path.
type Lock interface {
	Release()
	BackupPath() string
	Restore() error
}

// LockManager hands out scoped locks and records modification attempts.
type LockManager interface {
	Acquire(ctx context.Context, path, holder string, kind filelock.Kind, createBackup bool) (Lock, error)
	Record(ctx context.Context, path, holder, operation, backupPath string, success bool, errDetail string) error
}

// Locks adapts the concrete lock manager to the LockManager interface.
type Locks struct {
	Manager *filelock.Manager
}

func (l Locks) Acquire(ctx context.Context, path, holder string, kind filelock.Kind, createBackup bool) (Lock, error) {
	h, err := l.Manager.Acquire(ctx, path, holder, kind, createBackup)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (l Locks) Record(ctx context.Context, path, holder, operation, backupPath string, success bool, errDetail string) error {
	return l.Manager.Record(ctx, path, holder, operation, backupPath, success, errDetail)
}

// Package filelock serializes file mutation behind per-path locks with
// backup-on-acquire. A mutating caller never proceeds without a verified
// snapshot, and release is guaranteed by scoped handles.
package filelock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/refitlab/refit/internal/log"
)

// Kind selects lock compatibility semantics.
type Kind string

const (
	// Exclusive locks are mutually exclusive with any other lock.
	Exclusive Kind = "exclusive"
	// Shared locks coexist with other Shared locks only.
	Shared Kind = "shared"
)

// ErrLockTimeout is returned when the bounded wait expires before a
// compatible lock can be granted.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// pathLock tracks the holders of one path.
type pathLock struct {
	exclusive bool
	readers   int
	// waitCh is closed and replaced on every release so blocked
	// acquirers re-check compatibility.
	waitCh chan struct{}
}

// Manager grants per-path locks with a bounded acquisition wait.
type Manager struct {
	mu    sync.Mutex
	locks map[string]*pathLock

	timeout      time.Duration
	backupSuffix string
	journal      *Journal
	logger       *slog.Logger
	now          func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithTimeout overrides the bounded acquisition wait.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithBackupSuffix overrides the snapshot filename suffix.
func WithBackupSuffix(suffix string) Option {
	return func(m *Manager) {
		if suffix != "" {
			m.backupSuffix = suffix
		}
	}
}

// NewManager creates a lock manager. journal may be nil when no durable
// modification records are wanted (dry runs, tests).
func NewManager(journal *Journal, opts ...Option) *Manager {
	m := &Manager{
		locks:        make(map[string]*pathLock),
		timeout:      10 * time.Second,
		backupSuffix: ".refit-backup",
		journal:      journal,
		logger:       log.WithComponent("filelock"),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handle is a scoped lock grant. Callers must defer Release; Release is
// idempotent so every exit path may call it.
type Handle struct {
	path       string
	holder     string
	kind       Kind
	acquiredAt time.Time
	backupPath string
	backupHash string
	fileMode   uint32

	manager *Manager
	once    sync.Once
}

// Path returns the locked path.
func (h *Handle) Path() string { return h.path }

// Holder returns the holder identity.
func (h *Handle) Holder() string { return h.holder }

// Kind returns the lock kind.
func (h *Handle) Kind() Kind { return h.kind }

// AcquiredAt returns the grant time.
func (h *Handle) AcquiredAt() time.Time { return h.acquiredAt }

// BackupPath returns the snapshot location, or "" when no backup was taken.
func (h *Handle) BackupPath() string { return h.backupPath }

// BackupHash returns the BLAKE3 hash of the snapshot content.
func (h *Handle) BackupHash() string { return h.backupHash }

// Release returns the lock. Safe to call more than once.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.manager.release(h)
	})
}

// Acquire grants a lock on path for holder, blocking until compatible or
// until the bounded wait expires (ErrLockTimeout) or ctx is cancelled.
// When createBackup is true, a byte-identical snapshot of the current file
// content is captured before Acquire returns; no caller may mutate a file
// without that prior snapshot.
func (m *Manager) Acquire(ctx context.Context, path, holder string, kind Kind, createBackup bool) (*Handle, error) {
	if path == "" {
		return nil, fmt.Errorf("lock path is empty")
	}
	if holder == "" {
		return nil, fmt.Errorf("lock holder is empty")
	}
	if kind != Exclusive && kind != Shared {
		return nil, fmt.Errorf("invalid lock kind %q", kind)
	}
	if createBackup && kind != Exclusive {
		return nil, fmt.Errorf("backup requires an exclusive lock")
	}

	deadline := time.NewTimer(m.timeout)
	defer deadline.Stop()

	for {
		m.mu.Lock()
		pl, ok := m.locks[path]
		if !ok {
			pl = &pathLock{waitCh: make(chan struct{})}
			m.locks[path] = pl
		}

		if pl.compatible(kind) {
			pl.claim(kind)
			m.mu.Unlock()
			break
		}

		wait := pl.waitCh
		m.mu.Unlock()

		select {
		case <-wait:
			// Re-check compatibility; another waiter may have won.
		case <-deadline.C:
			return nil, fmt.Errorf("%w: %s (%s, held too long by another holder)", ErrLockTimeout, path, kind)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	h := &Handle{
		path:       path,
		holder:     holder,
		kind:       kind,
		acquiredAt: m.now().UTC(),
		manager:    m,
	}

	if createBackup {
		backupPath, hash, mode, err := m.snapshot(path)
		if err != nil {
			m.releaseSlot(path, kind)
			return nil, fmt.Errorf("backup before mutation: %w", err)
		}
		h.backupPath = backupPath
		h.backupHash = hash
		h.fileMode = mode
	}

	m.logger.Debug("lock acquired", "path", path, "holder", holder, "kind", kind, "backup", h.backupPath)
	return h, nil
}

func (pl *pathLock) compatible(kind Kind) bool {
	if pl.exclusive {
		return false
	}
	if kind == Exclusive {
		return pl.readers == 0
	}
	return true
}

func (pl *pathLock) claim(kind Kind) {
	if kind == Exclusive {
		pl.exclusive = true
	} else {
		pl.readers++
	}
}

func (m *Manager) release(h *Handle) {
	m.releaseSlot(h.path, h.kind)
	m.logger.Debug("lock released", "path", h.path, "holder", h.holder, "kind", h.kind)
}

func (m *Manager) releaseSlot(path string, kind Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pl, ok := m.locks[path]
	if !ok {
		return
	}
	if kind == Exclusive {
		pl.exclusive = false
	} else if pl.readers > 0 {
		pl.readers--
	}

	// Wake all waiters to re-contend.
	close(pl.waitCh)
	pl.waitCh = make(chan struct{})

	if !pl.exclusive && pl.readers == 0 {
		delete(m.locks, path)
	}
}

// Record appends a durable modification record after an attempted
// mutation, success or not. A nil journal makes this a no-op.
func (m *Manager) Record(ctx context.Context, path, holder, operation, backupPath string, success bool, errDetail string) error {
	if m.journal == nil {
		return nil
	}
	return m.journal.Append(ctx, ModificationRecord{
		Path:       path,
		Holder:     holder,
		Operation:  operation,
		BackupPath: backupPath,
		Success:    success,
		Error:      errDetail,
	})
}

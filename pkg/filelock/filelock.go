// Package filelock serializes live sync runs sharing the same cache.
//
// The lock is a JSON file created with O_EXCL and refreshed by a heartbeat
// goroutine. A lock whose heartbeat stopped longer than the stale timeout ago
// belongs to a dead process and is reclaimed.
package filelock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dupsync/dupsync/pkg/plog"
)

// Holder is the identity written into the lock file.
type Holder struct {
	PID        int64     `json:"pid"`
	AppID      string    `json:"app_id"`
	LastUpdate time.Time `json:"last_update"`
}

// ErrHeld is returned when another live process holds the lock.
type ErrHeld struct {
	PID   int64
	AppID string
	Age   time.Duration
}

func (e *ErrHeld) Error() string {
	return fmt.Sprintf("lock held by PID %d (%s), last heartbeat %s ago",
		e.PID, e.AppID, e.Age.Truncate(time.Second))
}

const (
	// staleTimeout: a lock not refreshed within this window is reclaimable.
	staleTimeout = 3 * time.Minute
	lockMode     = 0644
)

// Lock is an acquired lock file with a running heartbeat.
type Lock struct {
	path   string
	appID  string
	beat   time.Duration
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	held bool
}

// Acquire takes the lock at path, reclaiming a stale one if needed. ctx
// bounds the acquisition attempt only; the heartbeat runs until Release.
func Acquire(ctx context.Context, path, appID string, heartbeat time.Duration) (*Lock, error) {
	// Retried because stale-lock cleanup races with other waiters.
	const attempts = 3

	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		l, err := create(path, appID, heartbeat)
		if err == nil {
			return l, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("lock file: %w", err)
		}

		holder, readErr := readHolder(path)
		if readErr != nil {
			// Likely mid-rewrite by the owner; back off and retry.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		age := time.Since(holder.LastUpdate)
		if age < staleTimeout {
			return nil, &ErrHeld{PID: holder.PID, AppID: holder.AppID, Age: age}
		}

		plog.Warn("Removing stale lock", "path", path, "pid", holder.PID, "age", age.Truncate(time.Second))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("remove stale lock: %w", err)
		}
	}

	return nil, fmt.Errorf("lock acquisition contended after %d attempts", attempts)
}

func create(path, appID string, heartbeat time.Duration) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, lockMode)
	if err != nil {
		return nil, err
	}
	f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	l := &Lock{
		path:   path,
		appID:  appID,
		beat:   heartbeat,
		cancel: cancel,
		done:   make(chan struct{}),
		held:   true,
	}

	if err := l.write(); err != nil {
		cancel()
		os.Remove(path)
		return nil, err
	}

	go l.run(ctx)
	return l, nil
}

// Release stops the heartbeat and removes the lock file. Idempotent.
func (l *Lock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return
	}
	l.held = false

	l.cancel()
	<-l.done
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		plog.Warn("Failed to remove lock file", "path", l.path, "error", err)
	}
}

func (l *Lock) run(ctx context.Context) {
	defer close(l.done)
	ticker := time.NewTicker(l.beat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.write(); err != nil {
				plog.Warn("Lock heartbeat failed", "path", l.path, "error", err)
			}
		}
	}
}

// write truncates in place rather than rename-replacing: readHolder tolerates
// the brief empty window, and keeping the inode stable is simpler.
func (l *Lock) write() error {
	data, err := json.MarshalIndent(Holder{
		PID:        int64(os.Getpid()),
		AppID:      l.appID,
		LastUpdate: time.Now(),
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(l.path, data, lockMode)
}

// readHolder reads the lock file, retrying through the truncate window of a
// concurrent heartbeat write.
func readHolder(path string) (Holder, error) {
	var lastErr error
	for i := 0; i < 3; i++ {
		data, err := os.ReadFile(path)
		if err != nil {
			return Holder{}, err
		}
		if len(data) == 0 {
			lastErr = errors.New("lock file is empty")
			time.Sleep(50 * time.Millisecond)
			continue
		}
		var h Holder
		if err := json.Unmarshal(data, &h); err != nil {
			lastErr = err
			time.Sleep(50 * time.Millisecond)
			continue
		}
		return h, nil
	}
	return Holder{}, fmt.Errorf("read lock content: %w", lastErr)
}

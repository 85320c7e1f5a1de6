// Package lock guards the single-leader invariant of the truth store.
// Exactly one orchestrator process may append to a given data
// directory; a second instance refuses to start while a live leader
// holds the lock file.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/foundrydev/foundry/internal/util"
)

// LeaderFileName is the lock file written in the data directory.
const LeaderFileName = "leader.yaml"

// DefaultTTL is how long a leader record stays valid without a
// heartbeat before another process may take over.
const DefaultTTL = 60 * time.Second

// DefaultHeartbeatInterval refreshes the record well inside the TTL.
const DefaultHeartbeatInterval = 10 * time.Second

// record is the persisted leader state.
type record struct {
	Owner     string    `yaml:"owner"`
	PID       int       `yaml:"pid"`
	Acquired  time.Time `yaml:"acquired"`
	Heartbeat time.Time `yaml:"heartbeat"`
	TTL       string    `yaml:"ttl"`
}

func (r *record) ttl() time.Duration {
	d, err := time.ParseDuration(r.TTL)
	if err != nil {
		return DefaultTTL
	}
	return d
}

func (r *record) stale() bool {
	return time.Since(r.Heartbeat) > r.ttl()
}

// HeldError indicates another live process leads this data directory.
type HeldError struct {
	Owner string
	PID   int
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("data directory is led by %s (pid %d)", e.Owner, e.PID)
}

// Guard is the leader lock for one data directory.
type Guard struct {
	dir   string
	owner string
}

// NewGuard creates a guard for the given data directory.
func NewGuard(dir, owner string) *Guard {
	return &Guard{dir: dir, owner: owner}
}

func (g *Guard) path() string {
	return filepath.Join(g.dir, LeaderFileName)
}

// Acquire claims leadership. A stale record, or one whose process is
// gone, is taken over; a live record from another process is an error.
func (g *Guard) Acquire() error {
	data, err := os.ReadFile(g.path())
	if err == nil {
		var existing record
		if yerr := yaml.Unmarshal(data, &existing); yerr == nil {
			if !existing.stale() && existing.PID != os.Getpid() && processExists(existing.PID) {
				return &HeldError{Owner: existing.Owner, PID: existing.PID}
			}
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read leader file: %w", err)
	}

	return g.write()
}

// Heartbeat refreshes the leader record. Call on a ticker at
// DefaultHeartbeatInterval.
func (g *Guard) Heartbeat() error {
	return g.write()
}

// Release removes the leader record. Safe when absent.
func (g *Guard) Release() {
	_ = os.Remove(g.path())
}

// Holder returns the current record, or nil when unheld.
func (g *Guard) Holder() (*HeldError, error) {
	data, err := os.ReadFile(g.path())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read leader file: %w", err)
	}
	var r record
	if err := yaml.Unmarshal(data, &r); err != nil || r.stale() || !processExists(r.PID) {
		return nil, nil
	}
	return &HeldError{Owner: r.Owner, PID: r.PID}, nil
}

func (g *Guard) write() error {
	now := time.Now().UTC()
	data, err := yaml.Marshal(&record{
		Owner:     g.owner,
		PID:       os.Getpid(),
		Acquired:  now,
		Heartbeat: now,
		TTL:       DefaultTTL.String(),
	})
	if err != nil {
		return fmt.Errorf("marshal leader record: %w", err)
	}
	return util.AtomicWriteFile(g.path(), data, 0o644)
}

// processExists sends signal 0 to test liveness.
func processExists(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// Package lockout rate-limits credential checks.
//
// A Guard counts consecutive authentication failures. After Threshold
// failures it refuses further attempts for Cooldown, measured from the last
// failure. The count survives a restart through a Persister; persistence is
// best-effort and never changes the outcome of the check in progress.
//
// States:
//
//	Open    failures < Threshold, or the cooldown has elapsed
//	Locked  failures >= Threshold and within Cooldown of the last failure
//
// An elapsed cooldown is observed by Check, which resets the counter and
// clears the persisted record.
package lockout

import (
	"errors"
	"math"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// Threshold is the number of consecutive failures that triggers a lockout.
	Threshold = 5

	// Cooldown is how long attempts are refused once Threshold is reached.
	Cooldown = 30 * time.Second
)

// ErrCorruptRecord is returned by Load when the persisted record cannot be decoded.
var ErrCorruptRecord = errors.New("lockout: record is corrupt")

// Status is a snapshot of the guard.
type Status struct {
	FailedAttempts int
	Remaining      time.Duration
	Locked         bool
}

// RemainingAttempts returns how many failures are left before a lockout.
func (s Status) RemainingAttempts() int {
	if s.Locked || s.FailedAttempts >= Threshold {
		return 0
	}
	return Threshold - s.FailedAttempts
}

// Guard is safe for concurrent use.
type Guard struct {
	mu        sync.Mutex
	persister Persister
	now       func() time.Time
	log       zerolog.Logger

	loaded       bool
	failed       int
	lastFailedAt time.Time // monotonic when now is time.Now
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock replaces time.Now. Tests use it to move time forward.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		g.now = now
	}
}

// WithLogger sets the logger used to report persistence failures.
func WithLogger(l zerolog.Logger) Option {
	return func(g *Guard) {
		g.log = l
	}
}

// WithPersister replaces the file persister.
func WithPersister(p Persister) Option {
	return func(g *Guard) {
		g.persister = p
	}
}

// New returns a guard backed by the record file at path.
// Call Load before the first Check to pick up state from a previous run.
func New(path string, opts ...Option) *Guard {
	g := &Guard{
		persister: NewFilePersister(path),
		now:       time.Now,
		log:       zerolog.New(os.Stderr).Level(zerolog.WarnLevel).With().Timestamp().Logger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Load reads the persisted record once; later calls do nothing.
//
// A missing or unreadable record leaves the guard Open. A record that
// cannot be decoded returns ErrCorruptRecord and leaves the guard Locked
// for a full Cooldown starting now.
func (g *Guard) Load() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.loaded {
		return nil
	}
	g.loaded = true

	rec, err := g.persister.Load()
	if err != nil {
		if errors.Is(err, ErrCorruptRecord) {
			g.failed = Threshold
			g.lastFailedAt = g.now()
			g.persist()
			g.log.Error().Err(err).Msg("Lockout record is corrupt, enforcing cooldown")
			return err
		}
		g.log.Warn().Err(err).Msg("Failed to read lockout record, starting open")
		return nil
	}
	if rec == nil || rec.FailedAttempts == 0 {
		return nil
	}

	g.failed = int(min(rec.FailedAttempts, uint32(math.MaxInt32)))
	g.lastFailedAt = g.fromEpoch(rec.LastFailedAtEpoch)
	return nil
}

// fromEpoch maps a persisted wall-clock stamp onto the in-process clock as
// now minus the wall-clock time elapsed since the stamp. A stamp in the
// future is treated as now.
func (g *Guard) fromEpoch(epoch uint64) time.Time {
	now := g.now()
	wall := now.Unix()
	if wall < 0 || epoch > uint64(wall) {
		return now
	}
	elapsed := time.Duration(uint64(wall)-epoch) * time.Second
	return now.Add(-elapsed)
}

// Check reports whether attempts are currently refused and, if so, for how
// long. When the cooldown has elapsed it resets the counter and clears the
// persisted record.
func (g *Guard) Check() (time.Duration, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	remaining, locked := g.checkLocked()
	return remaining, locked
}

func (g *Guard) checkLocked() (time.Duration, bool) {
	if g.failed < Threshold {
		return 0, false
	}

	elapsed := g.now().Sub(g.lastFailedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed < Cooldown {
		return Cooldown - elapsed, true
	}

	g.reset()
	return 0, false
}

// RecordFailure counts a failed attempt and persists the new state.
func (g *Guard) RecordFailure() Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.failed++
	g.lastFailedAt = g.now()
	g.persist()

	remaining, locked := g.checkLocked()
	return Status{FailedAttempts: g.failed, Remaining: remaining, Locked: locked}
}

// RecordSuccess clears the counter and deletes the persisted record.
func (g *Guard) RecordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.reset()
}

// Status returns the current state, applying cooldown expiry like Check.
func (g *Guard) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	remaining, locked := g.checkLocked()
	return Status{FailedAttempts: g.failed, Remaining: remaining, Locked: locked}
}

func (g *Guard) reset() {
	g.failed = 0
	g.lastFailedAt = time.Time{}
	if err := g.persister.Clear(); err != nil {
		g.log.Warn().Err(err).Msg("Failed to clear lockout record")
	}
}

func (g *Guard) persist() {
	wall := g.now().Unix()
	if wall < 0 {
		wall = 0
	}
	rec := Record{
		FailedAttempts:    uint32(g.failed),
		LastFailedAtEpoch: uint64(wall),
	}
	if err := g.persister.Save(rec); err != nil {
		g.log.Warn().Err(err).Int("failed_attempts", g.failed).Msg("Failed to persist lockout record")
	}
}

// RemainingSeconds rounds d up to whole seconds for display.
func RemainingSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Second - 1) / time.Second)
}

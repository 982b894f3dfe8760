package lockout

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestGuard(t *testing.T, clock *fakeClock) (*Guard, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	g := New(path, WithClock(clock.Now), WithLogger(zerolog.Nop()))
	if err := g.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return g, path
}

func writeRecord(t *testing.T, path string, r Record) {
	t.Helper()
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
}

func TestGuardLocksAfterThreshold(t *testing.T) {
	clock := newFakeClock()
	g, _ := newTestGuard(t, clock)

	for i := 1; i < Threshold; i++ {
		st := g.RecordFailure()
		if st.Locked {
			t.Fatalf("locked after %d failures, want open until %d", i, Threshold)
		}
		if st.RemainingAttempts() != Threshold-i {
			t.Errorf("RemainingAttempts() = %d, want %d", st.RemainingAttempts(), Threshold-i)
		}
		if _, locked := g.Check(); locked {
			t.Fatalf("Check() locked after %d failures", i)
		}
	}

	st := g.RecordFailure()
	if !st.Locked {
		t.Fatal("not locked after threshold failures")
	}
	if st.Remaining != Cooldown {
		t.Errorf("Remaining = %v, want %v", st.Remaining, Cooldown)
	}

	clock.Advance(10 * time.Second)
	remaining, locked := g.Check()
	if !locked {
		t.Fatal("Check() open during cooldown")
	}
	if remaining <= 0 || remaining > Cooldown {
		t.Errorf("remaining = %v, want in (0, %v]", remaining, Cooldown)
	}
	if remaining != 20*time.Second {
		t.Errorf("remaining = %v, want 20s", remaining)
	}
}

func TestGuardCooldownExpiry(t *testing.T) {
	clock := newFakeClock()
	g, path := newTestGuard(t, clock)

	for i := 0; i < Threshold; i++ {
		g.RecordFailure()
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("record not persisted: %v", err)
	}

	clock.Advance(Cooldown + time.Second)
	if remaining, locked := g.Check(); locked || remaining != 0 {
		t.Fatalf("Check() = (%v, %v), want open after cooldown", remaining, locked)
	}
	if st := g.Status(); st.FailedAttempts != 0 {
		t.Errorf("FailedAttempts = %d after expiry, want 0", st.FailedAttempts)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("record should be cleared after expiry, stat err = %v", err)
	}

	// A fresh set of attempts is available.
	if st := g.RecordFailure(); st.Locked || st.RemainingAttempts() != Threshold-1 {
		t.Errorf("after expiry: %+v, want one failure counted", st)
	}
}

func TestGuardRecordSuccess(t *testing.T) {
	clock := newFakeClock()
	g, path := newTestGuard(t, clock)

	g.RecordFailure()
	g.RecordFailure()
	g.RecordSuccess()

	if st := g.Status(); st.FailedAttempts != 0 || st.Locked {
		t.Errorf("Status() = %+v, want zero after success", st)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("record should be deleted on success, stat err = %v", err)
	}
}

func TestGuardSurvivesRestart(t *testing.T) {
	clock := newFakeClock()
	g, path := newTestGuard(t, clock)
	for i := 0; i < Threshold; i++ {
		g.RecordFailure()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("persisted record is not JSON: %v", err)
	}
	if rec.FailedAttempts != Threshold || rec.LastFailedAtEpoch != uint64(clock.Now().Unix()) {
		t.Errorf("persisted record = %+v", rec)
	}

	clock.Advance(5 * time.Second)
	g2 := New(path, WithClock(clock.Now), WithLogger(zerolog.Nop()))
	if err := g2.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	remaining, locked := g2.Check()
	if !locked {
		t.Fatal("restarted guard should still be locked")
	}
	if remaining != 25*time.Second {
		t.Errorf("remaining = %v, want 25s", remaining)
	}
}

// A record stamped 31 seconds in the past behaves as an elapsed cooldown.
func TestGuardBackdatedRecord(t *testing.T) {
	clock := newFakeClock()
	path := filepath.Join(t.TempDir(), FileName)
	writeRecord(t, path, Record{
		FailedAttempts:    Threshold,
		LastFailedAtEpoch: uint64(clock.Now().Unix() - 31),
	})

	g := New(path, WithClock(clock.Now), WithLogger(zerolog.Nop()))
	if err := g.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, locked := g.Check(); locked {
		t.Fatal("backdated record should not lock")
	}
	if st := g.Status(); st.FailedAttempts != 0 {
		t.Errorf("FailedAttempts = %d, want 0", st.FailedAttempts)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expired record should be removed, stat err = %v", err)
	}
}

func TestGuardFutureRecordFailsClosed(t *testing.T) {
	clock := newFakeClock()
	path := filepath.Join(t.TempDir(), FileName)
	writeRecord(t, path, Record{
		FailedAttempts:    Threshold,
		LastFailedAtEpoch: uint64(clock.Now().Unix() + 3600),
	})

	g := New(path, WithClock(clock.Now), WithLogger(zerolog.Nop()))
	if err := g.Load(); err != nil {
		t.Fatal(err)
	}
	remaining, locked := g.Check()
	if !locked || remaining != Cooldown {
		t.Errorf("Check() = (%v, %v), want a full cooldown", remaining, locked)
	}
}

func TestGuardCorruptRecord(t *testing.T) {
	clock := newFakeClock()
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	g := New(path, WithClock(clock.Now), WithLogger(zerolog.Nop()))
	if err := g.Load(); !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("Load() error = %v, want ErrCorruptRecord", err)
	}
	if _, locked := g.Check(); !locked {
		t.Error("corrupt record should fail closed")
	}

	// Load is once-only.
	if err := g.Load(); err != nil {
		t.Errorf("second Load() error = %v, want nil", err)
	}

	// The record was rewritten in a valid form.
	g2 := New(path, WithClock(clock.Now), WithLogger(zerolog.Nop()))
	if err := g2.Load(); err != nil {
		t.Errorf("Load() after rewrite error = %v", err)
	}

	clock.Advance(Cooldown)
	if _, locked := g.Check(); locked {
		t.Error("guard should open once the cooldown elapses")
	}
}

func TestGuardMissingRecord(t *testing.T) {
	g, _ := newTestGuard(t, newFakeClock())
	if st := g.Status(); st.Locked || st.FailedAttempts != 0 || st.RemainingAttempts() != Threshold {
		t.Errorf("Status() = %+v, want fresh open guard", st)
	}
}

type failingPersister struct {
	saves int
}

func (p *failingPersister) Load() (*Record, error) { return nil, errors.New("disk on fire") }
func (p *failingPersister) Save(Record) error {
	p.saves++
	return errors.New("disk on fire")
}
func (p *failingPersister) Clear() error { return errors.New("disk on fire") }

// Persistence failures never change the decision.
func TestGuardPersistenceBestEffort(t *testing.T) {
	clock := newFakeClock()
	p := &failingPersister{}
	g := New("unused", WithClock(clock.Now), WithLogger(zerolog.Nop()), WithPersister(p))
	if err := g.Load(); err != nil {
		t.Fatalf("Load() error = %v, want nil for unreadable record", err)
	}

	var st Status
	for i := 0; i < Threshold; i++ {
		st = g.RecordFailure()
	}
	if !st.Locked {
		t.Error("guard should lock even when persistence fails")
	}
	if p.saves != Threshold {
		t.Errorf("Save called %d times, want %d", p.saves, Threshold)
	}

	g.RecordSuccess()
	if g.Status().FailedAttempts != 0 {
		t.Error("RecordSuccess should reset in memory even when Clear fails")
	}
}

func TestGuardConcurrentFailures(t *testing.T) {
	g, _ := newTestGuard(t, newFakeClock())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.RecordFailure()
		}()
	}
	wg.Wait()

	if st := g.Status(); st.FailedAttempts != 20 || !st.Locked {
		t.Errorf("Status() = %+v, want 20 failures and locked", st)
	}
}

func TestRemainingSeconds(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want int64
	}{
		{0, 0},
		{-time.Second, 0},
		{time.Millisecond, 1},
		{time.Second, 1},
		{29*time.Second + time.Millisecond, 30},
		{30 * time.Second, 30},
	}
	for _, tt := range tests {
		if got := RemainingSeconds(tt.d); got != tt.want {
			t.Errorf("RemainingSeconds(%v) = %d, want %d", tt.d, got, tt.want)
		}
	}
}

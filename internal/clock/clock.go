// Package clock supplies the timestamps the game API validates.
//
// The server only accepts client times formatted as YYYY-MM-DDTHH:MM:SS in
// UTC with no fraction and no zone, and it compares them against its own clock,
// so a fixed skew correction can be applied. Checksums are time-bound: callers
// must take a fresh timestamp immediately before building each request.
package clock

import (
	"context"
	"sync"
	"time"
)

// Layout is the wire format for client timestamps.
const Layout = "2006-01-02T15:04:05"

// ticksAtUnixEpoch is the number of 100ns .NET ticks between 0001-01-01 and 1970-01-01.
const ticksAtUnixEpoch int64 = 621355968000000000

// Clock abstracts wall time so session and limiter code can be tested.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// System is the real clock.
type System struct{}

func (System) Now() time.Time        { return time.Now() }
func (System) Sleep(d time.Duration) { time.Sleep(d) }

// SleepContext sleeps for d on c, returning early with ctx.Err() when ctx is
// done. Only the system clock can be interrupted mid-sleep.
func SleepContext(ctx context.Context, c Clock, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	if _, ok := c.(System); !ok {
		c.Sleep(d)
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Source produces valid client timestamps from a Clock and a skew correction.
type Source struct {
	clock Clock
	skew  time.Duration
}

// NewSource returns a Source. A nil clock selects the system clock.
func NewSource(c Clock, skew time.Duration) *Source {
	if c == nil {
		c = System{}
	}
	return &Source{clock: c, skew: skew}
}

// Clock returns the underlying clock.
func (s *Source) Clock() Clock {
	return s.clock
}

// ValidDateTime returns the corrected UTC time truncated to whole seconds.
func (s *Source) ValidDateTime() time.Time {
	return s.clock.Now().UTC().Add(s.skew).Truncate(time.Second)
}

// Timestamp returns ValidDateTime in wire format.
func (s *Source) Timestamp() string {
	return Format(s.ValidDateTime())
}

// Stamp returns the wire timestamp and the matching .NET ticks of one instant,
// so a request's clientDateTime and its time-bound checksum always agree.
func (s *Source) Stamp() (string, int64) {
	t := s.ValidDateTime()
	return Format(t), Ticks(t)
}

// Format renders t in wire format.
func Format(t time.Time) string {
	return t.UTC().Format(Layout)
}

// Parse reads a wire timestamp as UTC.
func Parse(s string) (time.Time, error) {
	return time.ParseInLocation(Layout, s, time.UTC)
}

// Ticks converts t to .NET ticks (100ns intervals since 0001-01-01 UTC).
func Ticks(t time.Time) int64 {
	return t.UTC().UnixNano()/100 + ticksAtUnixEpoch
}

// Fake is a manually advanced clock. Sleep advances time instead of blocking.
type Fake struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

// NewFake returns a Fake clock set to t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Sleep(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slept = append(f.slept, d)
	if d > 0 {
		f.now = f.now.Add(d)
	}
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Slept returns every duration passed to Sleep.
func (f *Fake) Slept() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, len(f.slept))
	copy(out, f.slept)
	return out
}

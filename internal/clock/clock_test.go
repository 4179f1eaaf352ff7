package clock

import (
	"context"
	"testing"
	"time"
)

func TestTimestampFormat(t *testing.T) {
	c := NewFake(time.Date(2024, 3, 5, 7, 8, 9, 987654321, time.FixedZone("X", 3*3600)))
	s := NewSource(c, 0)

	if got, want := s.Timestamp(), "2024-03-05T04:08:09"; got != want {
		t.Fatalf("Timestamp = %q, want %q", got, want)
	}
}

func TestSkewCorrection(t *testing.T) {
	c := NewFake(time.Date(2024, 3, 5, 23, 59, 30, 0, time.UTC))
	s := NewSource(c, 45*time.Second)

	if got, want := s.Timestamp(), "2024-03-06T00:00:15"; got != want {
		t.Fatalf("Timestamp = %q, want %q", got, want)
	}
}

func TestParseRoundTrip(t *testing.T) {
	in := "2023-12-31T23:59:59"
	ts, err := Parse(in)
	if err != nil {
		t.Fatal(err)
	}
	if ts.Location() != time.UTC {
		t.Fatalf("Parse location = %v", ts.Location())
	}
	if Format(ts) != in {
		t.Fatalf("Format(Parse(%q)) = %q", in, Format(ts))
	}
}

func TestTicks(t *testing.T) {
	if got := Ticks(time.Unix(0, 0)); got != ticksAtUnixEpoch {
		t.Fatalf("Ticks(epoch) = %d", got)
	}
	if got := Ticks(time.Unix(1, 0)); got != ticksAtUnixEpoch+10_000_000 {
		t.Fatalf("Ticks(epoch+1s) = %d", got)
	}
}

func TestStampAgrees(t *testing.T) {
	c := NewFake(time.Date(2024, 1, 1, 0, 0, 0, 500, time.UTC))
	s := NewSource(c, 0)
	ts, ticks := s.Stamp()
	parsed, err := Parse(ts)
	if err != nil {
		t.Fatal(err)
	}
	if Ticks(parsed) != ticks {
		t.Fatalf("ticks %d do not match timestamp %s", ticks, ts)
	}
}

func TestFakeSleepAdvances(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFake(start)
	c.Sleep(2 * time.Second)
	c.Advance(time.Second)
	if got := c.Now().Sub(start); got != 3*time.Second {
		t.Fatalf("elapsed = %v", got)
	}
	if len(c.Slept()) != 1 || c.Slept()[0] != 2*time.Second {
		t.Fatalf("Slept = %v", c.Slept())
	}
}

func TestSleepContext(t *testing.T) {
	c := NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	if err := SleepContext(context.Background(), c, time.Minute); err != nil {
		t.Fatalf("SleepContext: %v", err)
	}
	if len(c.Slept()) != 1 {
		t.Fatalf("Slept = %v", c.Slept())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := SleepContext(ctx, System{}, time.Hour); err != context.Canceled {
		t.Fatalf("SleepContext on cancelled ctx = %v", err)
	}
}

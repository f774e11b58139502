package channel_test

import (
	"testing"
	"time"

	"github.com/fluxorio/conduit/pkg/channel"
)

func TestTick(t *testing.T) {
	const period = 30 * time.Millisecond
	start := time.Now()
	r := channel.Tick(period)

	var prev time.Time
	for i := 0; i < 3; i++ {
		tick, err := r.Recv()
		if err != nil {
			t.Fatalf("Recv() error = %v", err)
		}
		if !prev.IsZero() && tick.Sub(prev) < period {
			t.Errorf("tick spacing = %v, want at least %v", tick.Sub(prev), period)
		}
		prev = tick
	}

	if elapsed := time.Since(start); elapsed < 3*period {
		t.Errorf("three ticks took %v, want at least %v", elapsed, 3*period)
	}
}

func TestTick_NonPositivePeriod(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Tick() with a non-positive period should panic")
		}
	}()
	channel.Tick(0)
}

func TestTick_TryRecv(t *testing.T) {
	r := channel.Tick(60 * time.Millisecond)

	if _, err := r.TryRecv(); err != channel.ErrEmpty {
		t.Errorf("TryRecv() before the first tick error = %v, want ErrEmpty", err)
	}

	time.Sleep(80 * time.Millisecond)
	if _, err := r.TryRecv(); err != nil {
		t.Errorf("TryRecv() after the first tick error = %v", err)
	}
}

func TestTick_DropsMissedTicks(t *testing.T) {
	const period = 30 * time.Millisecond
	r := channel.Tick(period)

	// Sleep through several periods: only one stale tick may be pending.
	time.Sleep(100 * time.Millisecond)

	first, err := r.Recv()
	if err != nil {
		t.Fatalf("Recv() error = %v", err)
	}
	second, err := r.Recv()
	if err != nil {
		t.Fatalf("Recv() error = %v", err)
	}

	// Claiming a tick schedules the next one a full period after the claim,
	// so consecutive ticks can never be closer than the period.
	if second.Sub(first) < period {
		t.Errorf("tick spacing = %v, want at least %v", second.Sub(first), period)
	}
	if !second.After(first) {
		t.Errorf("ticks not increasing: first = %v, second = %v", first, second)
	}
}

func TestTick_RecvTimeout(t *testing.T) {
	r := channel.Tick(time.Minute)

	if _, err := r.RecvTimeout(20 * time.Millisecond); err != channel.ErrTimeout {
		t.Errorf("RecvTimeout() error = %v, want ErrTimeout", err)
	}
}

func TestTick_Close(t *testing.T) {
	r := channel.Tick(time.Minute)

	if err := r.Close(); err != channel.ErrClosed {
		t.Errorf("Close() error = %v, want ErrClosed", err)
	}
	if r.IsClosed() {
		t.Error("IsClosed() should be false for a ticker channel")
	}
}

package channel_test

import (
	"testing"
	"time"

	"github.com/fluxorio/conduit/pkg/channel"
)

func TestAfter(t *testing.T) {
	start := time.Now()
	r := channel.After(40 * time.Millisecond)

	msg, err := r.Recv()
	if err != nil {
		t.Fatalf("Recv() error = %v", err)
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Error("Recv() returned before the delay elapsed")
	}
	// The message is the delivery instant itself.
	if msg.Sub(start) < 40*time.Millisecond {
		t.Errorf("Recv() = %v, want an instant at least 40ms after start", msg)
	}
}

func TestAfter_TryRecv(t *testing.T) {
	r := channel.After(60 * time.Millisecond)

	if _, err := r.TryRecv(); err != channel.ErrEmpty {
		t.Errorf("TryRecv() before the delay error = %v, want ErrEmpty", err)
	}

	time.Sleep(80 * time.Millisecond)
	if _, err := r.TryRecv(); err != nil {
		t.Errorf("TryRecv() after the delay error = %v", err)
	}
}

func TestAfter_DeliversOnce(t *testing.T) {
	r := channel.After(10 * time.Millisecond)

	if _, err := r.Recv(); err != nil {
		t.Fatalf("Recv() error = %v", err)
	}

	// The message was consumed; only the timeout can end a second receive.
	if _, err := r.RecvTimeout(30 * time.Millisecond); err != channel.ErrTimeout {
		t.Errorf("second Recv error = %v, want ErrTimeout", err)
	}
	if _, err := r.TryRecv(); err != channel.ErrEmpty {
		t.Errorf("TryRecv() after delivery error = %v, want ErrEmpty", err)
	}
}

func TestAfter_RecvTimeout(t *testing.T) {
	r := channel.After(80 * time.Millisecond)

	// Timing out does not consume the message.
	if _, err := r.RecvTimeout(20 * time.Millisecond); err != channel.ErrTimeout {
		t.Errorf("RecvTimeout() error = %v, want ErrTimeout", err)
	}
	if _, err := r.Recv(); err != nil {
		t.Errorf("Recv() after a timed-out receive error = %v", err)
	}
}

func TestAt(t *testing.T) {
	r := channel.At(time.Now().Add(-time.Second))

	// A past instant is due immediately.
	msg, err := r.TryRecv()
	if err != nil {
		t.Fatalf("TryRecv() error = %v", err)
	}
	if msg.IsZero() {
		t.Error("TryRecv() returned a zero instant")
	}
}

func TestAfter_State(t *testing.T) {
	r := channel.After(60 * time.Millisecond)

	if r.Cap() != 1 {
		t.Errorf("Cap() = %d, want 1", r.Cap())
	}
	if !r.IsEmpty() {
		t.Error("IsEmpty() should be true before the delay")
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}

	time.Sleep(80 * time.Millisecond)
	if r.IsEmpty() {
		t.Error("IsEmpty() should be false once the message is due")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}

	r.Recv()
	if !r.IsEmpty() {
		t.Error("IsEmpty() should be true after delivery")
	}
}

func TestAfter_Close(t *testing.T) {
	r := channel.After(time.Minute)

	// Timer channels cannot be closed.
	if err := r.Close(); err != channel.ErrClosed {
		t.Errorf("Close() error = %v, want ErrClosed", err)
	}
	if r.IsClosed() {
		t.Error("IsClosed() should be false for a timer channel")
	}
}

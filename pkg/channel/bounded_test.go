package channel_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fluxorio/conduit/pkg/channel"
)

func TestBounded(t *testing.T) {
	s, r := channel.Bounded[string](10)

	if s == nil || r == nil {
		t.Fatal("Bounded() should not return nil endpoints")
	}
	if s.Cap() != 10 {
		t.Errorf("Cap() = %d, want 10", s.Cap())
	}
	if !s.IsEmpty() {
		t.Error("IsEmpty() should be true for a fresh channel")
	}
	if !s.SameChannel(s) {
		t.Error("SameChannel() should be true for the same sender")
	}
	if !r.SameChannel(r) {
		t.Error("SameChannel() should be true for the same receiver")
	}
}

func TestBounded_NegativeCapacity(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Bounded() with negative capacity should panic")
		}
	}()
	channel.Bounded[int](-1)
}

func TestBounded_ZeroCapacity(t *testing.T) {
	s, _ := channel.Bounded[int](0)

	// Zero capacity means rendezvous: no buffer at all.
	if s.Cap() != 0 {
		t.Errorf("Cap() = %d, want 0", s.Cap())
	}
	if err := s.TrySend(1); err != channel.ErrFull {
		t.Errorf("TrySend() with no receiver error = %v, want ErrFull", err)
	}
}

func TestBounded_CapacityOne(t *testing.T) {
	s, r := channel.Bounded[int](1)

	if err := s.TrySend(1); err != nil {
		t.Fatalf("TrySend(1) error = %v", err)
	}
	if err := s.TrySend(2); err != channel.ErrFull {
		t.Fatalf("TrySend(2) error = %v, want ErrFull", err)
	}
	if msg, err := r.TryRecv(); err != nil || msg != 1 {
		t.Fatalf("TryRecv() = %v, %v, want 1", msg, err)
	}
	if _, err := r.TryRecv(); err != channel.ErrEmpty {
		t.Fatalf("TryRecv() on emptied channel error = %v, want ErrEmpty", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := r.TryRecv(); err != channel.ErrClosed {
		t.Fatalf("TryRecv() after close error = %v, want ErrClosed", err)
	}
}

func TestSender_TrySend(t *testing.T) {
	s, _ := channel.Bounded[string](2)

	if err := s.TrySend("message1"); err != nil {
		t.Errorf("TrySend() error = %v", err)
	}
	if err := s.TrySend("message2"); err != nil {
		t.Errorf("TrySend() error = %v", err)
	}

	// Full channel rejects without blocking.
	if err := s.TrySend("message3"); err != channel.ErrFull {
		t.Errorf("TrySend() to full channel error = %v, want ErrFull", err)
	}
	if !s.IsFull() {
		t.Error("IsFull() should be true after filling the channel")
	}
}

func TestReceiver_TryRecv(t *testing.T) {
	s, r := channel.Bounded[string](2)

	if _, err := r.TryRecv(); err != channel.ErrEmpty {
		t.Errorf("TryRecv() on empty channel error = %v, want ErrEmpty", err)
	}

	s.TrySend("test")
	msg, err := r.TryRecv()
	if err != nil {
		t.Errorf("TryRecv() error = %v", err)
	}
	if msg != "test" {
		t.Errorf("TryRecv() = %v, want test", msg)
	}
}

func TestBounded_FIFO(t *testing.T) {
	s, r := channel.Bounded[int](8)

	for i := 0; i < 20; i++ {
		if i >= 8 {
			r.TryRecv()
		}
		if err := s.TrySend(i); err != nil {
			t.Fatalf("TrySend(%d) error = %v", i, err)
		}
	}

	// 12..19 remain buffered, in send order.
	for want := 12; want < 20; want++ {
		got, err := r.TryRecv()
		if err != nil {
			t.Fatalf("TryRecv() error = %v", err)
		}
		if got != want {
			t.Errorf("TryRecv() = %d, want %d", got, want)
		}
	}
}

func TestBounded_PerProducerOrder(t *testing.T) {
	const (
		producers = 3
		perSender = 500
	)
	type tagged struct {
		producer int
		seq      int
	}
	s, r := channel.Bounded[tagged](8)

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				if err := s.Send(tagged{id, i}); err != nil {
					t.Errorf("Send error = %v", err)
					return
				}
			}
		}(p)
	}

	go func() {
		wg.Wait()
		s.Close()
	}()

	// Messages from different producers interleave, but each producer's
	// own sequence must come out in send order.
	last := make([]int, producers)
	for i := range last {
		last[i] = -1
	}
	for {
		msg, err := r.Recv()
		if err == channel.ErrClosed {
			break
		}
		if err != nil {
			t.Fatalf("Recv() error = %v", err)
		}
		if msg.seq <= last[msg.producer] {
			t.Fatalf("producer %d: got seq %d after %d", msg.producer, msg.seq, last[msg.producer])
		}
		last[msg.producer] = msg.seq
	}
	for p, seq := range last {
		if seq != perSender-1 {
			t.Errorf("producer %d last seq = %d, want %d", p, seq, perSender-1)
		}
	}
}

func TestBounded_Len(t *testing.T) {
	s, r := channel.Bounded[string](10)

	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}

	s.TrySend("msg1")
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}

	s.TrySend("msg2")
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}

	r.TryRecv()
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestSender_Send(t *testing.T) {
	s, r := channel.Bounded[int](1)
	s.TrySend(1)

	// A blocked send must complete once the receiver makes room.
	done := make(chan error, 1)
	go func() {
		done <- s.Send(2)
	}()

	time.Sleep(20 * time.Millisecond)
	if got, err := r.Recv(); err != nil || got != 1 {
		t.Fatalf("Recv() = %v, %v, want 1, nil", got, err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Send() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for blocked Send to complete")
	}

	if got, err := r.Recv(); err != nil || got != 2 {
		t.Errorf("Recv() = %v, %v, want 2, nil", got, err)
	}
}

func TestReceiver_Recv(t *testing.T) {
	s, r := channel.Bounded[string](4)

	done := make(chan string, 1)
	go func() {
		msg, err := r.Recv()
		if err != nil {
			t.Errorf("Recv() error = %v", err)
		}
		done <- msg
	}()

	time.Sleep(20 * time.Millisecond)
	s.Send("wake up")

	select {
	case msg := <-done:
		if msg != "wake up" {
			t.Errorf("Recv() = %v, want wake up", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for blocked Recv to complete")
	}
}

func TestSender_SendTimeout(t *testing.T) {
	s, _ := channel.Bounded[int](1)
	s.TrySend(1)

	start := time.Now()
	err := s.SendTimeout(2, 50*time.Millisecond)
	if err != channel.ErrTimeout {
		t.Errorf("SendTimeout() error = %v, want ErrTimeout", err)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Error("SendTimeout() returned before the timeout elapsed")
	}
}

func TestSender_SendTimeoutUnblocks(t *testing.T) {
	s, r := channel.Bounded[int](1)
	s.TrySend(1)

	// A send waiting on its deadline must still succeed if room opens first.
	done := make(chan error, 1)
	go func() {
		done <- s.SendTimeout(2, 2*time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	if got, err := r.Recv(); err != nil || got != 1 {
		t.Fatalf("Recv() = %v, %v, want 1, nil", got, err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("SendTimeout() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for blocked SendTimeout to complete")
	}

	if got, err := r.Recv(); err != nil || got != 2 {
		t.Errorf("Recv() = %v, %v, want 2, nil", got, err)
	}
}

func TestReceiver_RecvTimeout(t *testing.T) {
	_, r := channel.Bounded[int](1)

	if _, err := r.RecvTimeout(50 * time.Millisecond); err != channel.ErrTimeout {
		t.Errorf("RecvTimeout() error = %v, want ErrTimeout", err)
	}
}

func TestSender_SendContext(t *testing.T) {
	s, _ := channel.Bounded[int](1)
	s.TrySend(1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	if err := s.SendContext(ctx, 2); err != context.Canceled {
		t.Errorf("SendContext() error = %v, want context.Canceled", err)
	}
}

func TestReceiver_RecvContext(t *testing.T) {
	_, r := channel.Bounded[int](1)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if _, err := r.RecvContext(ctx); err != context.DeadlineExceeded {
		t.Errorf("RecvContext() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestBounded_Close(t *testing.T) {
	s, r := channel.Bounded[string](10)
	s.TrySend("buffered")

	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if !s.IsClosed() {
		t.Error("IsClosed() should return true after Close()")
	}
	if err := r.Close(); err != channel.ErrClosed {
		t.Errorf("Close() on closed channel error = %v, want ErrClosed", err)
	}

	// Sends are rejected immediately.
	if err := s.TrySend("late"); err != channel.ErrClosed {
		t.Errorf("TrySend() after close error = %v, want ErrClosed", err)
	}
	if err := s.Send("late"); err != channel.ErrClosed {
		t.Errorf("Send() after close error = %v, want ErrClosed", err)
	}

	// Buffered messages drain before receives report the close.
	msg, err := r.Recv()
	if err != nil || msg != "buffered" {
		t.Errorf("Recv() = %v, %v, want buffered, nil", msg, err)
	}
	if _, err := r.Recv(); err != channel.ErrClosed {
		t.Errorf("Recv() on drained closed channel error = %v, want ErrClosed", err)
	}
	if _, err := r.TryRecv(); err != channel.ErrClosed {
		t.Errorf("TryRecv() on drained closed channel error = %v, want ErrClosed", err)
	}
}

func TestBounded_CloseWakesBlocked(t *testing.T) {
	full, _ := channel.Bounded[int](1)
	full.TrySend(1)
	_, empty := channel.Bounded[int](1)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := full.Send(2); err != channel.ErrClosed {
			t.Errorf("blocked Send() after close error = %v, want ErrClosed", err)
		}
	}()
	go func() {
		defer wg.Done()
		if _, err := empty.Recv(); err != channel.ErrClosed {
			t.Errorf("blocked Recv() after close error = %v, want ErrClosed", err)
		}
	}()

	time.Sleep(50 * time.Millisecond)
	full.Close()
	empty.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for blocked operations to observe close")
	}
}

func TestBounded_ManyProducersManyConsumers(t *testing.T) {
	const (
		producers = 4
		consumers = 4
		perSender = 250
	)
	s, r := channel.Bounded[int](16)

	var sent, received atomic.Int64
	var producerWG, consumerWG sync.WaitGroup

	producerWG.Add(producers)
	for p := 0; p < producers; p++ {
		go func(base int) {
			defer producerWG.Done()
			for i := 0; i < perSender; i++ {
				v := base*perSender + i
				if err := s.Send(v); err != nil {
					t.Errorf("Send(%d) error = %v", v, err)
					return
				}
				sent.Add(int64(v))
			}
		}(p)
	}

	consumerWG.Add(consumers)
	for c := 0; c < consumers; c++ {
		go func() {
			defer consumerWG.Done()
			for {
				v, err := r.Recv()
				if err == channel.ErrClosed {
					return
				}
				if err != nil {
					t.Errorf("Recv() error = %v", err)
					return
				}
				received.Add(int64(v))
			}
		}()
	}

	producerWG.Wait()
	s.Close()

	done := make(chan struct{})
	go func() {
		consumerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for consumers to drain the channel")
	}

	if sent.Load() != received.Load() {
		t.Errorf("received sum = %d, want %d", received.Load(), sent.Load())
	}
	stats := s.Stats()
	if want := uint64(producers * perSender); stats.Sends != want {
		t.Errorf("Stats().Sends = %d, want %d", stats.Sends, want)
	}
	if stats.Recvs != stats.Sends {
		t.Errorf("Stats().Recvs = %d, want %d", stats.Recvs, stats.Sends)
	}
}

func TestBounded_Stats(t *testing.T) {
	s, r := channel.Bounded[int](1)

	s.TrySend(1)
	s.TrySend(2) // full
	r.TryRecv()
	r.TryRecv() // empty
	r.RecvTimeout(10 * time.Millisecond)

	stats := s.Stats()
	if stats.Sends != 1 {
		t.Errorf("Stats().Sends = %d, want 1", stats.Sends)
	}
	if stats.Recvs != 1 {
		t.Errorf("Stats().Recvs = %d, want 1", stats.Recvs)
	}
	if stats.Full != 1 {
		t.Errorf("Stats().Full = %d, want 1", stats.Full)
	}
	if stats.Empty != 1 {
		t.Errorf("Stats().Empty = %d, want 1", stats.Empty)
	}
	if stats.Timeouts != 1 {
		t.Errorf("Stats().Timeouts = %d, want 1", stats.Timeouts)
	}
}

func TestSender_SameChannel(t *testing.T) {
	s1, r1 := channel.Bounded[int](1)
	s2, r2 := channel.Bounded[int](1)

	if s1.SameChannel(s2) {
		t.Error("SameChannel() should be false for different channels")
	}
	if r1.SameChannel(r2) {
		t.Error("SameChannel() should be false for different channels")
	}
	if s1.SameChannel(nil) {
		t.Error("SameChannel(nil) should be false")
	}
}

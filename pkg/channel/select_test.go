package channel_test

import (
	"testing"
	"time"

	"github.com/fluxorio/conduit/pkg/channel"
)

func TestSelect_RecvArm(t *testing.T) {
	s1, r1 := channel.Bounded[string](4)
	_, r2 := channel.Bounded[string](4)
	_ = s1.TrySend("first")

	sel := channel.NewSelect()
	idx1 := sel.Recv(r1)
	idx2 := sel.Recv(r2)

	op := sel.Select()
	if op.Index() != idx1 {
		t.Fatalf("Index() = %d, want %d", op.Index(), idx1)
	}
	if op.Index() == idx2 {
		t.Fatal("select fired the empty channel's arm")
	}

	msg, err := channel.RecvSelected(op, r1)
	if err != nil {
		t.Errorf("RecvSelected() error = %v", err)
	}
	if msg != "first" {
		t.Errorf("RecvSelected() = %v, want first", msg)
	}
}

func TestSelect_SendArm(t *testing.T) {
	s, r := channel.Bounded[int](1)

	sel := channel.NewSelect()
	idx := sel.Send(s)

	op := sel.Select()
	if op.Index() != idx {
		t.Fatalf("Index() = %d, want %d", op.Index(), idx)
	}
	if err := channel.SendSelected(op, s, 42); err != nil {
		t.Fatalf("SendSelected() error = %v", err)
	}

	got, err := r.TryRecv()
	if err != nil || got != 42 {
		t.Errorf("TryRecv() = %v, %v, want 42, nil", got, err)
	}
}

func TestSelect_TrySelect(t *testing.T) {
	s, r := channel.Bounded[int](1)
	s.TrySend(1) // full: send arm blocked

	sel := channel.NewSelect()
	sel.Send(s)

	if _, err := sel.TrySelect(); err != channel.ErrNotReady {
		t.Errorf("TrySelect() with no ready arm error = %v, want ErrNotReady", err)
	}

	r.TryRecv()
	op, err := sel.TrySelect()
	if err != nil {
		t.Fatalf("TrySelect() error = %v", err)
	}
	if err := channel.SendSelected(op, s, 2); err != nil {
		t.Errorf("SendSelected() error = %v", err)
	}
}

func TestSelect_NoOperations(t *testing.T) {
	sel := channel.NewSelect()

	if _, err := sel.TrySelect(); err != channel.ErrNotReady {
		t.Errorf("TrySelect() error = %v, want ErrNotReady", err)
	}
	if _, err := sel.SelectTimeout(20 * time.Millisecond); err != channel.ErrTimeout {
		t.Errorf("SelectTimeout() error = %v, want ErrTimeout", err)
	}
	if _, err := sel.TryReady(); err != channel.ErrNotReady {
		t.Errorf("TryReady() error = %v, want ErrNotReady", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("Select() with no operations should panic")
		}
	}()
	sel.Select()
}

func TestSelect_Timeout(t *testing.T) {
	full, _ := channel.Bounded[int](1)
	full.TrySend(1)
	_, empty := channel.Bounded[int](1)

	sel := channel.NewSelect()
	sel.Send(full)
	sel.Recv(empty)

	start := time.Now()
	op, err := sel.SelectTimeout(50 * time.Millisecond)
	if err != channel.ErrTimeout {
		t.Errorf("SelectTimeout() error = %v, want ErrTimeout", err)
	}
	if op != nil {
		t.Error("SelectTimeout() should not return an operation on timeout")
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Error("SelectTimeout() returned before the timeout elapsed")
	}
}

func TestSelect_BlocksUntilReady(t *testing.T) {
	s1, r1 := channel.Bounded[int](1)
	_, r2 := channel.Bounded[int](1)

	sel := channel.NewSelect()
	idx1 := sel.Recv(r1)
	sel.Recv(r2)

	go func() {
		time.Sleep(30 * time.Millisecond)
		s1.Send(9)
	}()

	done := make(chan *channel.SelectedOperation, 1)
	go func() {
		done <- sel.Select()
	}()

	select {
	case op := <-done:
		if op.Index() != idx1 {
			t.Fatalf("Index() = %d, want %d", op.Index(), idx1)
		}
		if got, err := channel.RecvSelected(op, r1); err != nil || got != 9 {
			t.Errorf("RecvSelected() = %v, %v, want 9, nil", got, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for select to fire")
	}
}

func TestSelect_ClosedChannel(t *testing.T) {
	s, r := channel.Bounded[int](1)
	s.Close()

	sel := channel.NewSelect()
	idx := sel.Recv(r)

	op := sel.Select()
	if op.Index() != idx {
		t.Fatalf("Index() = %d, want %d", op.Index(), idx)
	}
	if _, err := channel.RecvSelected(op, r); err != channel.ErrClosed {
		t.Errorf("RecvSelected() on closed channel error = %v, want ErrClosed", err)
	}
}

func TestSelect_CloseWakesBlocked(t *testing.T) {
	s, r := channel.Bounded[int](1)

	sel := channel.NewSelect()
	sel.Recv(r)

	go func() {
		time.Sleep(30 * time.Millisecond)
		s.Close()
	}()

	done := make(chan struct{})
	go func() {
		op := sel.Select()
		if _, err := channel.RecvSelected(op, r); err != channel.ErrClosed {
			t.Errorf("RecvSelected() error = %v, want ErrClosed", err)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for select to observe close")
	}
}

func TestSendSelected_WrongSender(t *testing.T) {
	s1, _ := channel.Bounded[int](1)
	s2, _ := channel.Bounded[int](1)

	sel := channel.NewSelect()
	sel.Send(s1)
	op := sel.Select()

	defer func() {
		if recover() == nil {
			t.Error("SendSelected() with a different sender should panic")
		}
	}()
	channel.SendSelected(op, s2, 1)
}

func TestRecvSelected_CompletedTwice(t *testing.T) {
	s, r := channel.Bounded[int](1)
	s.TrySend(1)

	sel := channel.NewSelect()
	sel.Recv(r)
	op := sel.Select()

	if _, err := channel.RecvSelected(op, r); err != nil {
		t.Fatalf("RecvSelected() error = %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("completing a selected operation twice should panic")
		}
	}()
	channel.RecvSelected(op, r)
}

func TestSelect_RendezvousSendArm(t *testing.T) {
	s, r := channel.Rendezvous[string]()

	got := make(chan string, 1)
	go func() {
		msg, err := r.Recv()
		if err != nil {
			t.Errorf("Recv() error = %v", err)
		}
		got <- msg
	}()

	time.Sleep(30 * time.Millisecond)

	sel := channel.NewSelect()
	idx := sel.Send(s)
	op := sel.Select()
	if op.Index() != idx {
		t.Fatalf("Index() = %d, want %d", op.Index(), idx)
	}
	if err := channel.SendSelected(op, s, "handoff"); err != nil {
		t.Fatalf("SendSelected() error = %v", err)
	}

	select {
	case msg := <-got:
		if msg != "handoff" {
			t.Errorf("Recv() = %v, want handoff", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the receiver")
	}
}

func TestSelect_RendezvousRecvArm(t *testing.T) {
	s, r := channel.Rendezvous[string]()

	sent := make(chan error, 1)
	go func() {
		sent <- s.Send("direct")
	}()

	time.Sleep(30 * time.Millisecond)

	sel := channel.NewSelect()
	idx := sel.Recv(r)
	op := sel.Select()
	if op.Index() != idx {
		t.Fatalf("Index() = %d, want %d", op.Index(), idx)
	}
	msg, err := channel.RecvSelected(op, r)
	if err != nil {
		t.Fatalf("RecvSelected() error = %v", err)
	}
	if msg != "direct" {
		t.Errorf("RecvSelected() = %v, want direct", msg)
	}

	select {
	case err := <-sent:
		if err != nil {
			t.Errorf("Send() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the paired Send to complete")
	}
}

func TestSelect_BothArmsSameChannel(t *testing.T) {
	s, r := channel.Rendezvous[int]()

	// The two arms of one select must not pair with each other.
	sel := channel.NewSelect()
	sendIdx := sel.Send(s)
	sel.Recv(r)

	if _, err := sel.TrySelect(); err != channel.ErrNotReady {
		t.Fatalf("TrySelect() error = %v, want ErrNotReady", err)
	}
	if _, err := sel.SelectTimeout(50 * time.Millisecond); err != channel.ErrTimeout {
		t.Fatalf("SelectTimeout() error = %v, want ErrTimeout", err)
	}

	// An outside receiver pairs with the send arm.
	got := make(chan int, 1)
	go func() {
		v, err := r.Recv()
		if err != nil {
			t.Errorf("Recv() error = %v", err)
		}
		got <- v
	}()

	done := make(chan *channel.SelectedOperation, 1)
	go func() {
		done <- sel.Select()
	}()

	select {
	case op := <-done:
		if op.Index() != sendIdx {
			t.Fatalf("Index() = %d, want %d", op.Index(), sendIdx)
		}
		if err := channel.SendSelected(op, s, 5); err != nil {
			t.Fatalf("SendSelected() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for select to fire")
	}

	select {
	case v := <-got:
		if v != 5 {
			t.Errorf("Recv() = %d, want 5", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the receiver")
	}
}

func TestSelect_Remove(t *testing.T) {
	s1, r1 := channel.Bounded[int](1)
	s2, r2 := channel.Bounded[int](1)
	s1.TrySend(1)
	s2.TrySend(2)

	sel := channel.NewSelect()
	idx1 := sel.Recv(r1)
	idx2 := sel.Recv(r2)

	sel.Remove(idx1)
	op, err := sel.TrySelect()
	if err != nil {
		t.Fatalf("TrySelect() error = %v", err)
	}
	if op.Index() != idx2 {
		t.Errorf("Index() = %d, want %d", op.Index(), idx2)
	}
	channel.RecvSelected(op, r2)

	defer func() {
		if recover() == nil {
			t.Error("Remove() of an unknown index should panic")
		}
	}()
	sel.Remove(idx1)
}

func TestSelect_TimerArm(t *testing.T) {
	after := channel.After(30 * time.Millisecond)
	_, empty := channel.Bounded[int](1)

	sel := channel.NewSelect()
	timerIdx := sel.Recv(after)
	sel.Recv(empty)

	start := time.Now()
	op := sel.Select()
	if op.Index() != timerIdx {
		t.Fatalf("Index() = %d, want %d", op.Index(), timerIdx)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Error("Select() fired before the timer was due")
	}

	msg, err := channel.RecvSelected(op, after)
	if err != nil {
		t.Fatalf("RecvSelected() error = %v", err)
	}
	if msg.IsZero() {
		t.Error("RecvSelected() returned a zero delivery instant")
	}
}

func TestSelect_Shuffled(t *testing.T) {
	s1, r1 := channel.Bounded[int](1)
	s2, r2 := channel.Bounded[int](1)

	// Both arms stay ready; over many rounds each side must fire at least
	// once.
	counts := make(map[int]int)
	sel := channel.NewSelect()
	idx1 := sel.Recv(r1)
	idx2 := sel.Recv(r2)

	for i := 0; i < 200; i++ {
		s1.TrySend(i)
		s2.TrySend(i)
		op, err := sel.TrySelect()
		if err != nil {
			t.Fatalf("TrySelect() error = %v", err)
		}
		counts[op.Index()]++
		switch op.Index() {
		case idx1:
			channel.RecvSelected(op, r1)
			r2.TryRecv()
		case idx2:
			channel.RecvSelected(op, r2)
			r1.TryRecv()
		}
	}

	if counts[idx1] == 0 || counts[idx2] == 0 {
		t.Errorf("arm fire counts = %v, want both arms selected", counts)
	}
}

func TestSelect_Ready(t *testing.T) {
	s, r := channel.Bounded[int](1)

	sel := channel.NewSelect()
	idx := sel.Recv(r)

	if _, err := sel.TryReady(); err != channel.ErrNotReady {
		t.Errorf("TryReady() error = %v, want ErrNotReady", err)
	}
	if _, err := sel.ReadyTimeout(30 * time.Millisecond); err != channel.ErrTimeout {
		t.Errorf("ReadyTimeout() error = %v, want ErrTimeout", err)
	}

	go func() {
		time.Sleep(30 * time.Millisecond)
		s.Send(1)
	}()

	done := make(chan int, 1)
	go func() {
		done <- sel.Ready()
	}()

	select {
	case got := <-done:
		if got != idx {
			t.Errorf("Ready() = %d, want %d", got, idx)
		}
		// Readiness is not a reservation; the receive still races.
		if v, err := r.TryRecv(); err != nil || v != 1 {
			t.Errorf("TryRecv() = %v, %v, want 1, nil", v, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Ready()")
	}
}

// Package channel provides multi-producer multi-consumer channels with
// bounded, rendezvous and timer flavors, plus a Select for racing
// operations across any mix of them.
package channel

import (
	"context"
	"time"
)

// senderFlavor is the full send-side contract a channel flavor implements.
// Values must be comparable so endpoint identity checks work.
type senderFlavor[T any] interface {
	selectHandle

	trySend(msg T) error
	send(msg T, deadline time.Time, cancel <-chan struct{}) error
	write(tok *token, msg T) error

	length() int
	capacity() int
	isEmpty() bool
	isFull() bool
	close() bool
	closed() bool
	snapshot() Stats
}

// receiverFlavor is the receive-side counterpart of senderFlavor.
type receiverFlavor[T any] interface {
	selectHandle

	tryRecv() (T, error)
	recv(deadline time.Time, cancel <-chan struct{}) (T, error)
	read(tok *token) (T, error)

	length() int
	capacity() int
	isEmpty() bool
	isFull() bool
	close() bool
	closed() bool
	snapshot() Stats
}

// Sender is the sending half of a channel. It is safe for concurrent use by
// multiple goroutines.
type Sender[T any] struct {
	flavor senderFlavor[T]
}

// Receiver is the receiving half of a channel. It is safe for concurrent
// use by multiple goroutines.
type Receiver[T any] struct {
	flavor receiverFlavor[T]
}

// Bounded creates a channel holding at most capacity buffered messages.
// Sends block while the buffer is full, receives block while it is empty.
// A capacity of zero creates a rendezvous channel. Negative capacities
// panic.
func Bounded[T any](capacity int) (*Sender[T], *Receiver[T]) {
	if capacity < 0 {
		panic("channel: negative capacity")
	}
	if capacity == 0 {
		return Rendezvous[T]()
	}
	c := newBounded[T](capacity)
	return &Sender[T]{flavor: boundedSender[T]{c: c}}, &Receiver[T]{flavor: boundedReceiver[T]{c: c}}
}

// Rendezvous creates a channel with no buffer. Every send blocks until a
// receiver takes the message directly, and vice versa.
func Rendezvous[T any]() (*Sender[T], *Receiver[T]) {
	c := newRendezvous[T]()
	return &Sender[T]{flavor: zeroSender[T]{c: c}}, &Receiver[T]{flavor: zeroReceiver[T]{c: c}}
}

// After creates a receiver that delivers the current time exactly once, d
// from now. A non-positive d makes it ready immediately.
func After(d time.Duration) *Receiver[time.Time] {
	return At(time.Now().Add(d))
}

// At creates a receiver that delivers the current time exactly once at t.
func At(t time.Time) *Receiver[time.Time] {
	return &Receiver[time.Time]{flavor: newTimerChannel(t)}
}

// Tick creates a receiver that delivers the current time at most once per
// period. Ticks not received in time are dropped, never buffered. It panics
// if period is not positive.
func Tick(period time.Duration) *Receiver[time.Time] {
	if period <= 0 {
		panic("channel: non-positive tick period")
	}
	return &Receiver[time.Time]{flavor: newTickerChannel(period)}
}

// TrySend delivers msg without blocking. It returns ErrFull when the
// channel cannot take the message right now and ErrClosed when it is
// closed.
func (s *Sender[T]) TrySend(msg T) error {
	return s.flavor.trySend(msg)
}

// Send delivers msg, blocking until the channel can take it. It returns
// ErrClosed if the channel is or becomes closed.
func (s *Sender[T]) Send(msg T) error {
	return s.flavor.send(msg, time.Time{}, nil)
}

// SendTimeout delivers msg, blocking for at most d. It returns ErrTimeout
// when d elapses first and ErrClosed if the channel closes.
func (s *Sender[T]) SendTimeout(msg T, d time.Duration) error {
	return s.flavor.send(msg, time.Now().Add(d), nil)
}

// SendDeadline delivers msg, blocking until the deadline. It returns
// ErrTimeout when the deadline passes first and ErrClosed if the channel
// closes.
func (s *Sender[T]) SendDeadline(msg T, deadline time.Time) error {
	return s.flavor.send(msg, deadline, nil)
}

// SendContext delivers msg, blocking until ctx is done. It returns
// ctx.Err() when the context expires first and ErrClosed if the channel
// closes.
func (s *Sender[T]) SendContext(ctx context.Context, msg T) error {
	deadline, _ := ctx.Deadline()
	err := s.flavor.send(msg, deadline, ctx.Done())
	if err == ErrTimeout {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
	}
	return err
}

// Len reports the number of messages buffered in the channel.
func (s *Sender[T]) Len() int { return s.flavor.length() }

// Cap reports the channel's buffer capacity. Rendezvous channels report 0.
func (s *Sender[T]) Cap() int { return s.flavor.capacity() }

// IsEmpty reports whether the channel holds no messages.
func (s *Sender[T]) IsEmpty() bool { return s.flavor.isEmpty() }

// IsFull reports whether the channel cannot buffer another message.
func (s *Sender[T]) IsFull() bool { return s.flavor.isFull() }

// IsClosed reports whether the channel has been closed.
func (s *Sender[T]) IsClosed() bool { return s.flavor.closed() }

// Close closes the channel and wakes all blocked operations on it. Messages
// already buffered can still be received. It returns ErrClosed when the
// channel is already closed.
func (s *Sender[T]) Close() error {
	if s.flavor.close() {
		return nil
	}
	return ErrClosed
}

// Stats returns a snapshot of the channel's operation counters.
func (s *Sender[T]) Stats() Stats { return s.flavor.snapshot() }

// SameChannel reports whether both senders belong to the same channel.
func (s *Sender[T]) SameChannel(other *Sender[T]) bool {
	return other != nil && s.flavor == other.flavor
}

func (s *Sender[T]) sendHandle() selectHandle { return s.flavor }

// TryRecv takes a message without blocking. It returns ErrEmpty when none
// is available and ErrClosed when the channel is closed and drained.
func (r *Receiver[T]) TryRecv() (T, error) {
	return r.flavor.tryRecv()
}

// Recv takes a message, blocking until one arrives. It returns ErrClosed
// once the channel is closed and drained.
func (r *Receiver[T]) Recv() (T, error) {
	return r.flavor.recv(time.Time{}, nil)
}

// RecvTimeout takes a message, blocking for at most d. It returns
// ErrTimeout when d elapses first and ErrClosed once the channel is closed
// and drained.
func (r *Receiver[T]) RecvTimeout(d time.Duration) (T, error) {
	return r.flavor.recv(time.Now().Add(d), nil)
}

// RecvDeadline takes a message, blocking until the deadline. It returns
// ErrTimeout when the deadline passes first and ErrClosed once the channel
// is closed and drained.
func (r *Receiver[T]) RecvDeadline(deadline time.Time) (T, error) {
	return r.flavor.recv(deadline, nil)
}

// RecvContext takes a message, blocking until ctx is done. It returns
// ctx.Err() when the context expires first and ErrClosed once the channel
// is closed and drained.
func (r *Receiver[T]) RecvContext(ctx context.Context) (T, error) {
	deadline, _ := ctx.Deadline()
	msg, err := r.flavor.recv(deadline, ctx.Done())
	if err == ErrTimeout {
		if cerr := ctx.Err(); cerr != nil {
			var zero T
			return zero, cerr
		}
	}
	return msg, err
}

// Len reports the number of messages buffered in the channel.
func (r *Receiver[T]) Len() int { return r.flavor.length() }

// Cap reports the channel's buffer capacity. Rendezvous channels report 0.
func (r *Receiver[T]) Cap() int { return r.flavor.capacity() }

// IsEmpty reports whether the channel holds no messages.
func (r *Receiver[T]) IsEmpty() bool { return r.flavor.isEmpty() }

// IsFull reports whether the channel cannot buffer another message.
func (r *Receiver[T]) IsFull() bool { return r.flavor.isFull() }

// IsClosed reports whether the channel has been closed.
func (r *Receiver[T]) IsClosed() bool { return r.flavor.closed() }

// Close closes the channel and wakes all blocked operations on it. It
// returns ErrClosed when the channel is already closed. Timer and ticker
// channels cannot be closed and always report ErrClosed.
func (r *Receiver[T]) Close() error {
	if r.flavor.close() {
		return nil
	}
	return ErrClosed
}

// Stats returns a snapshot of the channel's operation counters.
func (r *Receiver[T]) Stats() Stats { return r.flavor.snapshot() }

// SameChannel reports whether both receivers belong to the same channel.
func (r *Receiver[T]) SameChannel(other *Receiver[T]) bool {
	return other != nil && r.flavor == other.flavor
}

func (r *Receiver[T]) recvHandle() selectHandle { return r.flavor }

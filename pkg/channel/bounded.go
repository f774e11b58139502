package channel

import (
	"sync/atomic"
	"time"
)

// slot is one cell of the ring buffer. The stamp encodes which lap the cell
// is on and whether it holds a message: equal to the tail cursor when free
// for a writer, one past the head cursor when holding a message for a
// reader.
type slot[T any] struct {
	stamp atomic.Uint64
	msg   T
}

// bounded is a fixed-capacity MPMC channel over a ring buffer. Senders and
// receivers reserve slots by advancing the tail/head cursors with CAS; the
// per-slot stamp hands the reserved cell over between the two sides without
// any lock. The close mark lives in the tail cursor so reservations and
// close observe a single total order.
type bounded[T any] struct {
	// Padding between the hot fields keeps cursor updates from false
	// sharing one cache line.
	_         [64]byte
	coder     stampCoder
	cap       uint64
	slots     []slot[T]
	_         [64]byte
	head      atomic.Uint64
	_         [64]byte
	tail      atomic.Uint64
	_         [64]byte
	senders   *syncWaker
	receivers *syncWaker
	stats     opStats
}

func newBounded[T any](capacity int) *bounded[T] {
	if capacity < 1 {
		panic("channel: bounded capacity must be at least 1")
	}
	c := uint64(capacity)
	slots := make([]slot[T], c)
	for i := uint64(0); i < c; i++ {
		slots[i].stamp.Store(i)
	}
	return &bounded[T]{
		coder:     newStampCoder(c),
		cap:       c,
		slots:     slots,
		senders:   newSyncWaker(),
		receivers: newSyncWaker(),
	}
}

// startSend reserves a slot for writing. It returns true with the slot in
// the token, or true with a nil slot if the channel is closed, or false if
// the channel is full.
func (b *bounded[T]) startSend(tok *token) bool {
	var bo backoff
	tail := b.tail.Load()
	for {
		if b.coder.marked(tail) {
			tok.array.slot = nil
			tok.array.stamp = 0
			return true
		}

		index := b.coder.index(tail)
		lap := b.coder.lap(tail)
		s := &b.slots[index]
		stamp := s.stamp.Load()

		if tail == stamp {
			// The slot is free on this lap; try to claim it.
			var newTail uint64
			if index+1 < b.cap {
				newTail = tail + 1
			} else {
				newTail = lap + b.coder.oneLap
			}
			if b.tail.CompareAndSwap(tail, newTail) {
				tok.array.slot = s
				tok.array.stamp = tail + 1
				return true
			}
			tail = b.tail.Load()
			bo.spin()
		} else if stamp+b.coder.oneLap == tail+1 {
			// The slot still holds last lap's message. Full only if the
			// head also lags a whole lap behind.
			head := b.head.Load()
			if head+b.coder.oneLap == tail {
				return false
			}
			bo.spin()
			tail = b.tail.Load()
		} else {
			// The claiming writer has not published its stamp yet.
			bo.snooze()
			tail = b.tail.Load()
		}
	}
}

// write stores the message into a slot reserved by startSend and publishes
// it to readers.
func (b *bounded[T]) write(tok *token, msg T) error {
	if tok.array.slot == nil {
		return ErrClosed
	}
	s := tok.array.slot.(*slot[T])
	s.msg = msg
	s.stamp.Store(tok.array.stamp)
	b.stats.sends.Add(1)
	b.receivers.notify()
	return nil
}

// startRecv reserves a filled slot for reading. It returns true with the
// slot in the token, or true with a nil slot if the channel is closed and
// drained, or false if the channel is empty.
func (b *bounded[T]) startRecv(tok *token) bool {
	var bo backoff
	head := b.head.Load()
	for {
		index := b.coder.index(head)
		lap := b.coder.lap(head)
		s := &b.slots[index]
		stamp := s.stamp.Load()

		if head+1 == stamp {
			// The slot holds a message on this lap; try to claim it.
			var newHead uint64
			if index+1 < b.cap {
				newHead = head + 1
			} else {
				newHead = lap + b.coder.oneLap
			}
			if b.head.CompareAndSwap(head, newHead) {
				tok.array.slot = s
				tok.array.stamp = head + b.coder.oneLap
				return true
			}
			head = b.head.Load()
			bo.spin()
		} else if stamp == head {
			tail := b.tail.Load()
			if b.coder.unmark(tail) == head {
				if b.coder.marked(tail) {
					// Closed and fully drained.
					tok.array.slot = nil
					tok.array.stamp = 0
					return true
				}
				return false
			}
			bo.spin()
			head = b.head.Load()
		} else {
			// The claiming reader has not released its stamp yet.
			bo.snooze()
			head = b.head.Load()
		}
	}
}

// read takes the message out of a slot reserved by startRecv and releases
// the slot to writers one lap ahead.
func (b *bounded[T]) read(tok *token) (T, error) {
	var zero T
	if tok.array.slot == nil {
		return zero, ErrClosed
	}
	s := tok.array.slot.(*slot[T])
	msg := s.msg
	s.msg = zero
	s.stamp.Store(tok.array.stamp)
	b.stats.recvs.Add(1)
	b.senders.notify()
	return msg, nil
}

func (b *bounded[T]) trySend(msg T) error {
	var tok token
	if b.startSend(&tok) {
		return b.write(&tok, msg)
	}
	b.stats.full.Add(1)
	return ErrFull
}

func (b *bounded[T]) tryRecv() (T, error) {
	var tok token
	if b.startRecv(&tok) {
		return b.read(&tok)
	}
	b.stats.empty.Add(1)
	var zero T
	return zero, ErrEmpty
}

// send blocks until the message is accepted, the channel closes, the
// deadline passes or cancel fires.
func (b *bounded[T]) send(msg T, deadline time.Time, cancel <-chan struct{}) error {
	var tok token
	for {
		var bo backoff
		for {
			if b.startSend(&tok) {
				return b.write(&tok, msg)
			}
			if bo.completed() {
				break
			}
			bo.snooze()
		}

		if !deadline.IsZero() && !time.Now().Before(deadline) {
			b.stats.timeouts.Add(1)
			return ErrTimeout
		}
		if cancel != nil {
			select {
			case <-cancel:
				b.stats.timeouts.Add(1)
				return ErrTimeout
			default:
			}
		}

		cx := newOpContext()
		oper := nextOper()
		b.senders.register(oper, cx)

		// The channel may have made room between the last attempt and the
		// registration; abort the park rather than miss the wakeup.
		if !b.isFull() || b.isClosed() {
			cx.trySelect(selAborted)
		}

		switch cx.waitUntil(deadline, cancel) {
		case selAborted, selClosed:
			b.senders.unregister(oper)
		}
	}
}

// recv blocks until a message arrives, the channel closes and drains, the
// deadline passes or cancel fires.
func (b *bounded[T]) recv(deadline time.Time, cancel <-chan struct{}) (T, error) {
	var tok token
	for {
		var bo backoff
		for {
			if b.startRecv(&tok) {
				return b.read(&tok)
			}
			if bo.completed() {
				break
			}
			bo.snooze()
		}

		if !deadline.IsZero() && !time.Now().Before(deadline) {
			b.stats.timeouts.Add(1)
			var zero T
			return zero, ErrTimeout
		}
		if cancel != nil {
			select {
			case <-cancel:
				b.stats.timeouts.Add(1)
				var zero T
				return zero, ErrTimeout
			default:
			}
		}

		cx := newOpContext()
		oper := nextOper()
		b.receivers.register(oper, cx)

		if !b.isEmpty() || b.isClosed() {
			cx.trySelect(selAborted)
		}

		switch cx.waitUntil(deadline, cancel) {
		case selAborted, selClosed:
			b.receivers.unregister(oper)
		}
	}
}

// close marks the channel closed and wakes everyone. Only the first caller
// reports true.
func (b *bounded[T]) close() bool {
	tail := b.tail.Or(b.coder.markBit)
	if !b.coder.marked(tail) {
		b.senders.disconnect()
		b.receivers.disconnect()
		return true
	}
	return false
}

// length counts buffered messages from a consistent cursor pair.
func (b *bounded[T]) length() int {
	for {
		tail := b.tail.Load()
		head := b.head.Load()

		if b.tail.Load() == tail {
			hix := b.coder.index(head)
			tix := b.coder.index(tail)

			switch {
			case hix < tix:
				return int(tix - hix)
			case hix > tix:
				return int(b.cap - hix + tix)
			case b.coder.unmark(tail) == head:
				return 0
			default:
				return int(b.cap)
			}
		}
	}
}

func (b *bounded[T]) capacity() int { return int(b.cap) }

func (b *bounded[T]) isEmpty() bool {
	head := b.head.Load()
	tail := b.tail.Load()
	return b.coder.unmark(tail) == head
}

func (b *bounded[T]) isFull() bool {
	tail := b.tail.Load()
	head := b.head.Load()
	return head+b.coder.oneLap == b.coder.unmark(tail)
}

func (b *bounded[T]) isClosed() bool {
	return b.coder.marked(b.tail.Load())
}

func (b *bounded[T]) snapshot() Stats { return b.stats.snapshot() }

// boundedSender adapts the send side of a bounded channel to the select
// protocol. It is a comparable value so selected operations can verify the
// endpoint they are completed with.
type boundedSender[T any] struct {
	c *bounded[T]
}

func (h boundedSender[T]) trySelect(tok *token) bool { return h.c.startSend(tok) }
func (h boundedSender[T]) deadline() time.Time       { return time.Time{} }

func (h boundedSender[T]) register(oper uint64, cx *opContext) bool {
	h.c.senders.register(oper, cx)
	return h.ready()
}

func (h boundedSender[T]) unregister(oper uint64) { h.c.senders.unregister(oper) }

func (h boundedSender[T]) accept(tok *token, cx *opContext) bool {
	return h.c.startSend(tok)
}

func (h boundedSender[T]) ready() bool { return !h.c.isFull() || h.c.isClosed() }

func (h boundedSender[T]) watch(oper uint64, cx *opContext) bool {
	h.c.senders.watch(oper, cx)
	return h.ready()
}

func (h boundedSender[T]) unwatch(oper uint64) { h.c.senders.unwatch(oper) }

func (h boundedSender[T]) trySend(msg T) error { return h.c.trySend(msg) }
func (h boundedSender[T]) send(msg T, deadline time.Time, cancel <-chan struct{}) error {
	return h.c.send(msg, deadline, cancel)
}
func (h boundedSender[T]) write(tok *token, msg T) error { return h.c.write(tok, msg) }
func (h boundedSender[T]) length() int                   { return h.c.length() }
func (h boundedSender[T]) capacity() int                 { return h.c.capacity() }
func (h boundedSender[T]) isEmpty() bool                 { return h.c.isEmpty() }
func (h boundedSender[T]) isFull() bool                  { return h.c.isFull() }
func (h boundedSender[T]) close() bool                   { return h.c.close() }
func (h boundedSender[T]) closed() bool                  { return h.c.isClosed() }
func (h boundedSender[T]) snapshot() Stats               { return h.c.snapshot() }

// boundedReceiver adapts the receive side of a bounded channel to the
// select protocol.
type boundedReceiver[T any] struct {
	c *bounded[T]
}

func (h boundedReceiver[T]) trySelect(tok *token) bool { return h.c.startRecv(tok) }
func (h boundedReceiver[T]) deadline() time.Time       { return time.Time{} }

func (h boundedReceiver[T]) register(oper uint64, cx *opContext) bool {
	h.c.receivers.register(oper, cx)
	return h.ready()
}

func (h boundedReceiver[T]) unregister(oper uint64) { h.c.receivers.unregister(oper) }

func (h boundedReceiver[T]) accept(tok *token, cx *opContext) bool {
	return h.c.startRecv(tok)
}

func (h boundedReceiver[T]) ready() bool { return !h.c.isEmpty() || h.c.isClosed() }

func (h boundedReceiver[T]) watch(oper uint64, cx *opContext) bool {
	h.c.receivers.watch(oper, cx)
	return h.ready()
}

func (h boundedReceiver[T]) unwatch(oper uint64) { h.c.receivers.unwatch(oper) }

func (h boundedReceiver[T]) tryRecv() (T, error) { return h.c.tryRecv() }
func (h boundedReceiver[T]) recv(deadline time.Time, cancel <-chan struct{}) (T, error) {
	return h.c.recv(deadline, cancel)
}
func (h boundedReceiver[T]) read(tok *token) (T, error) { return h.c.read(tok) }
func (h boundedReceiver[T]) length() int                { return h.c.length() }
func (h boundedReceiver[T]) capacity() int              { return h.c.capacity() }
func (h boundedReceiver[T]) isEmpty() bool              { return h.c.isEmpty() }
func (h boundedReceiver[T]) isFull() bool               { return h.c.isFull() }
func (h boundedReceiver[T]) close() bool                { return h.c.close() }
func (h boundedReceiver[T]) closed() bool               { return h.c.isClosed() }
func (h boundedReceiver[T]) snapshot() Stats            { return h.c.snapshot() }

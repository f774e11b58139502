package channel

import (
	"sync/atomic"
	"time"
)

// selected is the outcome slot of a blocked operation. The zero value means
// the operation is still waiting; operation identifiers occupy everything
// above the reserved states, so a successful wake carries the identifier of
// the waiter entry that fired.
type selected uint64

const (
	selWaiting selected = 0
	selAborted selected = 1
	selClosed  selected = 2
)

var (
	operSeq atomic.Uint64
	ctxSeq  atomic.Uint64
)

// nextOper returns a fresh operation identifier, always above the reserved
// selection states.
func nextOper() uint64 {
	return operSeq.Add(1) + 3
}

// packetBox wraps a packet handed over between goroutines so the holder can
// be published atomically.
type packetBox struct {
	p any
}

// opContext is the parking slot of one blocked operation or select round.
// Exactly one state transition away from selWaiting ever wins; the loser of
// the race observes the winner's value. A context is used once and dropped,
// never recycled: a waker may still be storing the packet or signalling
// after the owner has returned.
type opContext struct {
	state  atomic.Uint64
	packet atomic.Pointer[packetBox]
	signal chan struct{}
	id     uint64
}

func newOpContext() *opContext {
	return &opContext{
		signal: make(chan struct{}, 1),
		id:     ctxSeq.Add(1),
	}
}

// trySelect attempts to settle the context with the given outcome.
func (c *opContext) trySelect(s selected) bool {
	return c.state.CompareAndSwap(uint64(selWaiting), uint64(s))
}

func (c *opContext) selected() selected {
	return selected(c.state.Load())
}

// storePacket publishes the exchange packet of the waiter entry that fired.
func (c *opContext) storePacket(p any) {
	if p == nil {
		return
	}
	c.packet.Store(&packetBox{p: p})
}

// waitPacket spins until the waking party has published its packet. The
// settle CAS happens before the packet store, so a woken select may observe
// its outcome before the packet is visible.
func (c *opContext) waitPacket() any {
	var b backoff
	for {
		if box := c.packet.Load(); box != nil {
			return box.p
		}
		b.snooze()
	}
}

// unpark wakes the parked owner. Non-blocking: a pending signal is enough.
func (c *opContext) unpark() {
	select {
	case c.signal <- struct{}{}:
	default:
	}
}

// waitUntil blocks until the context settles, the deadline passes or cancel
// fires. A zero deadline means no deadline; a nil cancel never fires. On
// expiry the context is settled to selAborted unless a waker won first.
func (c *opContext) waitUntil(deadline time.Time, cancel <-chan struct{}) selected {
	var b backoff
	for {
		if s := c.selected(); s != selWaiting {
			return s
		}
		if b.completed() {
			break
		}
		b.snooze()
	}

	var timeC <-chan time.Time
	if !deadline.IsZero() {
		t := time.NewTimer(time.Until(deadline))
		defer t.Stop()
		timeC = t.C
	}
	for {
		if s := c.selected(); s != selWaiting {
			return s
		}
		select {
		case <-c.signal:
		case <-timeC:
			if c.trySelect(selAborted) {
				return selAborted
			}
			return c.selected()
		case <-cancel:
			if c.trySelect(selAborted) {
				return selAborted
			}
			return c.selected()
		}
	}
}

// sleepUntil sleeps to the deadline (forever if zero) or until cancel fires.
// It reports false if cancel ended the sleep early.
func sleepUntil(deadline time.Time, cancel <-chan struct{}) bool {
	for {
		var d time.Duration
		if deadline.IsZero() {
			d = 24 * time.Hour
		} else {
			d = time.Until(deadline)
			if d <= 0 {
				return true
			}
		}
		if cancel == nil {
			time.Sleep(d)
			if deadline.IsZero() {
				continue
			}
			return true
		}
		t := time.NewTimer(d)
		select {
		case <-t.C:
			t.Stop()
			if deadline.IsZero() {
				continue
			}
			return true
		case <-cancel:
			t.Stop()
			return false
		}
	}
}

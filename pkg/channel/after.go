package channel

import (
	"sync/atomic"
	"time"
)

// timerChannel delivers its delivery instant exactly once, at or after that
// instant. It is receive-only; there is no sender side and no close.
type timerChannel struct {
	deliveryTime time.Time
	received     atomic.Bool
	stats        opStats
}

func newTimerChannel(at time.Time) *timerChannel {
	return &timerChannel{deliveryTime: at}
}

// claim takes the message if it is due and still unclaimed. Exactly one
// caller ever wins the swap.
func (c *timerChannel) claim() (time.Time, bool) {
	if c.received.Load() {
		return time.Time{}, false
	}
	if time.Now().Before(c.deliveryTime) {
		return time.Time{}, false
	}
	if !c.received.Swap(true) {
		return c.deliveryTime, true
	}
	return time.Time{}, false
}

func (c *timerChannel) tryRecv() (time.Time, error) {
	if msg, ok := c.claim(); ok {
		c.stats.recvs.Add(1)
		return msg, nil
	}
	c.stats.empty.Add(1)
	return time.Time{}, ErrEmpty
}

func (c *timerChannel) recv(deadline time.Time, cancel <-chan struct{}) (time.Time, error) {
	for {
		if msg, ok := c.claim(); ok {
			c.stats.recvs.Add(1)
			return msg, nil
		}
		if c.received.Load() {
			// Already delivered; only the deadline can end the wait.
			sleepUntil(deadline, cancel)
			c.stats.timeouts.Add(1)
			return time.Time{}, ErrTimeout
		}

		wake := c.deliveryTime
		if !deadline.IsZero() && deadline.Before(wake) {
			wake = deadline
		}
		if !sleepUntil(wake, cancel) {
			c.stats.timeouts.Add(1)
			return time.Time{}, ErrTimeout
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			c.stats.timeouts.Add(1)
			return time.Time{}, ErrTimeout
		}
	}
}

func (c *timerChannel) read(tok *token) (time.Time, error) {
	c.stats.recvs.Add(1)
	return tok.timer.msg, nil
}

func (c *timerChannel) length() int {
	if c.isEmpty() {
		return 0
	}
	return 1
}

func (c *timerChannel) capacity() int { return 1 }

func (c *timerChannel) isEmpty() bool {
	return c.received.Load() || time.Now().Before(c.deliveryTime)
}

func (c *timerChannel) isFull() bool { return !c.isEmpty() }

func (c *timerChannel) close() bool  { return false }
func (c *timerChannel) closed() bool { return false }

func (c *timerChannel) snapshot() Stats { return c.stats.snapshot() }

// Select protocol: a timer never parks waiters. Readiness is driven purely
// by its deadline, which the select engine folds into its own park timeout.

func (c *timerChannel) trySelect(tok *token) bool {
	if msg, ok := c.claim(); ok {
		tok.timer.msg = msg
		return true
	}
	return false
}

func (c *timerChannel) deadline() time.Time {
	if c.received.Load() {
		return time.Time{}
	}
	return c.deliveryTime
}

func (c *timerChannel) register(oper uint64, cx *opContext) bool { return c.ready() }
func (c *timerChannel) unregister(oper uint64)                   {}

func (c *timerChannel) accept(tok *token, cx *opContext) bool {
	return c.trySelect(tok)
}

func (c *timerChannel) ready() bool {
	return !c.received.Load() && !time.Now().Before(c.deliveryTime)
}

func (c *timerChannel) watch(oper uint64, cx *opContext) bool { return c.ready() }
func (c *timerChannel) unwatch(oper uint64)                   {}

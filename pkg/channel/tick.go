package channel

import (
	"sync/atomic"
	"time"
)

// tickerChannel delivers an instant once per period. Missed ticks are
// dropped: claiming a tick schedules the next one period after the claim,
// so a slow receiver never sees a backlog.
type tickerChannel struct {
	delivery atomic.Int64 // next delivery, unix nanoseconds
	period   time.Duration
	stats    opStats
}

func newTickerChannel(period time.Duration) *tickerChannel {
	c := &tickerChannel{period: period}
	c.delivery.Store(time.Now().Add(period).UnixNano())
	return c
}

// claim takes the current tick if it is due, scheduling the next one.
func (c *tickerChannel) claim() (time.Time, bool) {
	for {
		d := c.delivery.Load()
		now := time.Now()
		if now.UnixNano() < d {
			return time.Time{}, false
		}
		if c.delivery.CompareAndSwap(d, now.Add(c.period).UnixNano()) {
			return time.Unix(0, d), true
		}
	}
}

func (c *tickerChannel) tryRecv() (time.Time, error) {
	if msg, ok := c.claim(); ok {
		c.stats.recvs.Add(1)
		return msg, nil
	}
	c.stats.empty.Add(1)
	return time.Time{}, ErrEmpty
}

func (c *tickerChannel) recv(deadline time.Time, cancel <-chan struct{}) (time.Time, error) {
	for {
		d := c.delivery.Load()
		cur := time.Unix(0, d)

		if !deadline.IsZero() && deadline.Before(cur) {
			sleepUntil(deadline, cancel)
			c.stats.timeouts.Add(1)
			return time.Time{}, ErrTimeout
		}

		// Reserve this tick and schedule the next, then sleep out the
		// remainder of the current period.
		now := time.Now()
		next := cur
		if now.After(next) {
			next = now
		}
		if c.delivery.CompareAndSwap(d, next.Add(c.period).UnixNano()) {
			if !sleepUntil(cur, cancel) {
				c.stats.timeouts.Add(1)
				return time.Time{}, ErrTimeout
			}
			c.stats.recvs.Add(1)
			return cur, nil
		}
	}
}

func (c *tickerChannel) read(tok *token) (time.Time, error) {
	c.stats.recvs.Add(1)
	return tok.timer.msg, nil
}

func (c *tickerChannel) length() int {
	if c.isEmpty() {
		return 0
	}
	return 1
}

func (c *tickerChannel) capacity() int { return 1 }

func (c *tickerChannel) isEmpty() bool {
	return time.Now().UnixNano() < c.delivery.Load()
}

func (c *tickerChannel) isFull() bool { return !c.isEmpty() }

func (c *tickerChannel) close() bool  { return false }
func (c *tickerChannel) closed() bool { return false }

func (c *tickerChannel) snapshot() Stats { return c.stats.snapshot() }

// Select protocol: like the one-shot timer, a ticker never parks waiters
// and reports its next delivery as the park deadline.

func (c *tickerChannel) trySelect(tok *token) bool {
	if msg, ok := c.claim(); ok {
		tok.timer.msg = msg
		return true
	}
	return false
}

func (c *tickerChannel) deadline() time.Time {
	return time.Unix(0, c.delivery.Load())
}

func (c *tickerChannel) register(oper uint64, cx *opContext) bool { return c.ready() }
func (c *tickerChannel) unregister(oper uint64)                   {}

func (c *tickerChannel) accept(tok *token, cx *opContext) bool {
	return c.trySelect(tok)
}

func (c *tickerChannel) ready() bool {
	return !c.isEmpty()
}

func (c *tickerChannel) watch(oper uint64, cx *opContext) bool { return c.ready() }
func (c *tickerChannel) unwatch(oper uint64)                   {}

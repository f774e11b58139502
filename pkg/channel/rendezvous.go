package channel

import (
	"sync"
	"sync/atomic"
	"time"
)

// packet is the exchange cell for one rendezvous transfer. A blocked sender
// registers a prefilled packet; a blocked receiver or a select arm registers
// an empty one. ready flips exactly once, when the counterpart has finished
// with the message.
type packet[T any] struct {
	prefilled bool
	ready     atomic.Bool
	msg       T
}

func (p *packet[T]) waitReady() {
	var b backoff
	for !p.ready.Load() {
		b.snooze()
	}
}

// rendezvous is the zero-capacity channel flavor. Transfers happen directly
// between a sender and a receiver; one lock orders registration against
// probing, so a party that registers under the lock cannot miss a peer that
// probes after it.
type rendezvous[T any] struct {
	mu        sync.Mutex
	senders   waiterList
	receivers waiterList
	closed    bool
	stats     opStats
}

func newRendezvous[T any]() *rendezvous[T] {
	return &rendezvous[T]{}
}

// startSend pairs with a waiting receiver. It returns true with the
// receiver's packet in the token, or true with a nil packet if the channel
// is closed, or false if no receiver waits.
func (z *rendezvous[T]) startSend(tok *token) bool {
	z.mu.Lock()
	defer z.mu.Unlock()

	if w, ok := z.receivers.trySelect(0); ok {
		tok.zero.packet = w.packet
		return true
	}
	if z.closed {
		tok.zero.packet = nil
		return true
	}
	return false
}

// write delivers the message through the packet reserved by startSend.
func (z *rendezvous[T]) write(tok *token, msg T) error {
	if tok.zero.packet == nil {
		return ErrClosed
	}
	p := tok.zero.packet.(*packet[T])
	p.msg = msg
	p.ready.Store(true)
	z.stats.sends.Add(1)
	return nil
}

// startRecv pairs with a waiting sender. It returns true with the sender's
// packet in the token, or true with a nil packet if the channel is closed,
// or false if no sender waits.
func (z *rendezvous[T]) startRecv(tok *token) bool {
	z.mu.Lock()
	defer z.mu.Unlock()

	if w, ok := z.senders.trySelect(0); ok {
		tok.zero.packet = w.packet
		return true
	}
	if z.closed {
		tok.zero.packet = nil
		return true
	}
	return false
}

// read takes the message out of the packet reserved by startRecv. A
// prefilled packet belongs to a blocked sender and already carries the
// message; an empty one belongs to a select send arm, which writes the
// message only when its operation is completed.
func (z *rendezvous[T]) read(tok *token) (T, error) {
	var zero T
	if tok.zero.packet == nil {
		return zero, ErrClosed
	}
	p := tok.zero.packet.(*packet[T])
	if p.prefilled {
		msg := p.msg
		p.msg = zero
		p.ready.Store(true)
		z.stats.recvs.Add(1)
		return msg, nil
	}
	p.waitReady()
	z.stats.recvs.Add(1)
	return p.msg, nil
}

func (z *rendezvous[T]) trySend(msg T) error {
	var tok token
	if z.startSend(&tok) {
		return z.write(&tok, msg)
	}
	z.stats.full.Add(1)
	return ErrFull
}

func (z *rendezvous[T]) tryRecv() (T, error) {
	var tok token
	if z.startRecv(&tok) {
		return z.read(&tok)
	}
	z.stats.empty.Add(1)
	var zero T
	return zero, ErrEmpty
}

// send blocks until a receiver takes the message, the channel closes, the
// deadline passes or cancel fires.
func (z *rendezvous[T]) send(msg T, deadline time.Time, cancel <-chan struct{}) error {
	var tok token

	z.mu.Lock()
	if w, ok := z.receivers.trySelect(0); ok {
		z.mu.Unlock()
		tok.zero.packet = w.packet
		return z.write(&tok, msg)
	}
	if z.closed {
		z.mu.Unlock()
		return ErrClosed
	}

	cx := newOpContext()
	oper := nextOper()
	p := &packet[T]{prefilled: true, msg: msg}
	z.senders.registerPacket(oper, p, cx)
	z.receivers.notify()
	z.mu.Unlock()

	switch cx.waitUntil(deadline, cancel) {
	case selAborted:
		z.mu.Lock()
		z.senders.unregister(oper)
		z.mu.Unlock()
		z.stats.timeouts.Add(1)
		return ErrTimeout
	case selClosed:
		z.mu.Lock()
		z.senders.unregister(oper)
		z.mu.Unlock()
		return ErrClosed
	default:
		// A receiver claimed the packet; wait for it to finish.
		p.waitReady()
		z.stats.sends.Add(1)
		return nil
	}
}

// recv blocks until a sender hands over a message, the channel closes, the
// deadline passes or cancel fires.
func (z *rendezvous[T]) recv(deadline time.Time, cancel <-chan struct{}) (T, error) {
	var tok token
	var zero T

	z.mu.Lock()
	if w, ok := z.senders.trySelect(0); ok {
		z.mu.Unlock()
		tok.zero.packet = w.packet
		return z.read(&tok)
	}
	if z.closed {
		z.mu.Unlock()
		return zero, ErrClosed
	}

	cx := newOpContext()
	oper := nextOper()
	p := &packet[T]{}
	z.receivers.registerPacket(oper, p, cx)
	z.senders.notify()
	z.mu.Unlock()

	switch cx.waitUntil(deadline, cancel) {
	case selAborted:
		z.mu.Lock()
		z.receivers.unregister(oper)
		z.mu.Unlock()
		z.stats.timeouts.Add(1)
		return zero, ErrTimeout
	case selClosed:
		z.mu.Lock()
		z.receivers.unregister(oper)
		z.mu.Unlock()
		return zero, ErrClosed
	default:
		// A sender filled the packet; wait for the message to land.
		p.waitReady()
		z.stats.recvs.Add(1)
		return p.msg, nil
	}
}

// close marks the channel closed and wakes everyone. Only the first caller
// reports true.
func (z *rendezvous[T]) close() bool {
	z.mu.Lock()
	defer z.mu.Unlock()

	if z.closed {
		return false
	}
	z.closed = true
	z.senders.disconnect()
	z.receivers.disconnect()
	return true
}

// A rendezvous channel never buffers: it is always empty and always full.
func (z *rendezvous[T]) length() int     { return 0 }
func (z *rendezvous[T]) capacity() int   { return 0 }
func (z *rendezvous[T]) isEmpty() bool   { return true }
func (z *rendezvous[T]) isFull() bool    { return true }
func (z *rendezvous[T]) snapshot() Stats { return z.stats.snapshot() }

func (z *rendezvous[T]) isClosed() bool {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.closed
}

// zeroSender adapts the send side of a rendezvous channel to the select
// protocol.
type zeroSender[T any] struct {
	c *rendezvous[T]
}

func (h zeroSender[T]) trySelect(tok *token) bool { return h.c.startSend(tok) }
func (h zeroSender[T]) deadline() time.Time       { return time.Time{} }

// register parks an empty packet in the sender list: the message is written
// only when the selected operation is completed.
func (h zeroSender[T]) register(oper uint64, cx *opContext) bool {
	p := &packet[T]{}
	h.c.mu.Lock()
	h.c.senders.registerPacket(oper, p, cx)
	h.c.receivers.notify()
	ready := h.c.receivers.canSelect(cx.id) || h.c.closed
	h.c.mu.Unlock()
	return ready
}

func (h zeroSender[T]) unregister(oper uint64) {
	h.c.mu.Lock()
	h.c.senders.unregister(oper)
	h.c.mu.Unlock()
}

// accept picks up the packet stored by the receiver that fired this
// operation.
func (h zeroSender[T]) accept(tok *token, cx *opContext) bool {
	tok.zero.packet = cx.waitPacket()
	return true
}

func (h zeroSender[T]) ready() bool {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	return h.c.receivers.canSelect(0) || h.c.closed
}

func (h zeroSender[T]) watch(oper uint64, cx *opContext) bool {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	h.c.senders.watch(oper, cx)
	return h.c.receivers.canSelect(cx.id) || h.c.closed
}

func (h zeroSender[T]) unwatch(oper uint64) {
	h.c.mu.Lock()
	h.c.senders.unwatch(oper)
	h.c.mu.Unlock()
}

func (h zeroSender[T]) trySend(msg T) error { return h.c.trySend(msg) }
func (h zeroSender[T]) send(msg T, deadline time.Time, cancel <-chan struct{}) error {
	return h.c.send(msg, deadline, cancel)
}
func (h zeroSender[T]) write(tok *token, msg T) error { return h.c.write(tok, msg) }
func (h zeroSender[T]) length() int                   { return h.c.length() }
func (h zeroSender[T]) capacity() int                 { return h.c.capacity() }
func (h zeroSender[T]) isEmpty() bool                 { return h.c.isEmpty() }
func (h zeroSender[T]) isFull() bool                  { return h.c.isFull() }
func (h zeroSender[T]) close() bool                   { return h.c.close() }
func (h zeroSender[T]) closed() bool                  { return h.c.isClosed() }
func (h zeroSender[T]) snapshot() Stats               { return h.c.snapshot() }

// zeroReceiver adapts the receive side of a rendezvous channel to the
// select protocol.
type zeroReceiver[T any] struct {
	c *rendezvous[T]
}

func (h zeroReceiver[T]) trySelect(tok *token) bool { return h.c.startRecv(tok) }
func (h zeroReceiver[T]) deadline() time.Time       { return time.Time{} }

func (h zeroReceiver[T]) register(oper uint64, cx *opContext) bool {
	p := &packet[T]{}
	h.c.mu.Lock()
	h.c.receivers.registerPacket(oper, p, cx)
	h.c.senders.notify()
	ready := h.c.senders.canSelect(cx.id) || h.c.closed
	h.c.mu.Unlock()
	return ready
}

func (h zeroReceiver[T]) unregister(oper uint64) {
	h.c.mu.Lock()
	h.c.receivers.unregister(oper)
	h.c.mu.Unlock()
}

func (h zeroReceiver[T]) accept(tok *token, cx *opContext) bool {
	tok.zero.packet = cx.waitPacket()
	return true
}

func (h zeroReceiver[T]) ready() bool {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	return h.c.senders.canSelect(0) || h.c.closed
}

func (h zeroReceiver[T]) watch(oper uint64, cx *opContext) bool {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	h.c.receivers.watch(oper, cx)
	return h.c.senders.canSelect(cx.id) || h.c.closed
}

func (h zeroReceiver[T]) unwatch(oper uint64) {
	h.c.mu.Lock()
	h.c.receivers.unwatch(oper)
	h.c.mu.Unlock()
}

func (h zeroReceiver[T]) tryRecv() (T, error) { return h.c.tryRecv() }
func (h zeroReceiver[T]) recv(deadline time.Time, cancel <-chan struct{}) (T, error) {
	return h.c.recv(deadline, cancel)
}
func (h zeroReceiver[T]) read(tok *token) (T, error) { return h.c.read(tok) }
func (h zeroReceiver[T]) length() int                { return h.c.length() }
func (h zeroReceiver[T]) capacity() int              { return h.c.capacity() }
func (h zeroReceiver[T]) isEmpty() bool              { return h.c.isEmpty() }
func (h zeroReceiver[T]) isFull() bool               { return h.c.isFull() }
func (h zeroReceiver[T]) close() bool                { return h.c.close() }
func (h zeroReceiver[T]) closed() bool               { return h.c.isClosed() }
func (h zeroReceiver[T]) snapshot() Stats            { return h.c.snapshot() }

package channel

import (
	"sync"
	"sync/atomic"
)

// waiter is one registered blocked operation or readiness observer.
type waiter struct {
	oper   uint64
	packet any // exchange packet, nil unless registered with one
	cx     *opContext
}

// waiterList tracks blocked operations (selectors) and readiness observers
// for one side of a channel. The caller provides mutual exclusion.
type waiterList struct {
	selectors []waiter
	observers []waiter
}

func (l *waiterList) register(oper uint64, cx *opContext) {
	l.registerPacket(oper, nil, cx)
}

func (l *waiterList) registerPacket(oper uint64, packet any, cx *opContext) {
	l.selectors = append(l.selectors, waiter{oper: oper, packet: packet, cx: cx})
}

// unregister removes the entry registered under oper, if still present.
func (l *waiterList) unregister(oper uint64) (waiter, bool) {
	for i, w := range l.selectors {
		if w.oper == oper {
			l.selectors = append(l.selectors[:i], l.selectors[i+1:]...)
			return w, true
		}
	}
	return waiter{}, false
}

// trySelect fires the first waiting entry not owned by caller and removes
// it. Entries whose context already settled stay behind for their owners to
// unregister.
func (l *waiterList) trySelect(caller uint64) (waiter, bool) {
	for i, w := range l.selectors {
		if w.cx.id == caller {
			continue
		}
		if w.cx.trySelect(selected(w.oper)) {
			w.cx.storePacket(w.packet)
			w.cx.unpark()
			l.selectors = append(l.selectors[:i], l.selectors[i+1:]...)
			return w, true
		}
	}
	return waiter{}, false
}

// canSelect reports whether any waiting entry not owned by caller could fire.
func (l *waiterList) canSelect(caller uint64) bool {
	for _, w := range l.selectors {
		if w.cx.id != caller && w.cx.selected() == selWaiting {
			return true
		}
	}
	return false
}

func (l *waiterList) watch(oper uint64, cx *opContext) {
	l.observers = append(l.observers, waiter{oper: oper, cx: cx})
}

func (l *waiterList) unwatch(oper uint64) {
	keep := l.observers[:0]
	for _, w := range l.observers {
		if w.oper != oper {
			keep = append(keep, w)
		}
	}
	l.observers = keep
}

// notify wakes every observer. Observers are one-shot and drained here.
func (l *waiterList) notify() {
	for _, w := range l.observers {
		if w.cx.trySelect(selected(w.oper)) {
			w.cx.unpark()
		}
	}
	l.observers = l.observers[:0]
}

// disconnect settles every waiting selector with selClosed. Entries stay in
// the list; the woken owners unregister themselves. Observers are notified
// because a closed channel counts as ready.
func (l *waiterList) disconnect() {
	for _, w := range l.selectors {
		if w.cx.trySelect(selClosed) {
			w.cx.unpark()
		}
	}
	l.notify()
}

// syncWaker is a waiterList with its own lock, for channel flavors whose
// fast paths never take a lock. The empty flag lets notify bail out without
// locking when nobody waits, which is the common case.
type syncWaker struct {
	mu    sync.Mutex
	inner waiterList
	empty atomic.Bool
}

func newSyncWaker() *syncWaker {
	w := &syncWaker{}
	w.empty.Store(true)
	return w
}

func (w *syncWaker) register(oper uint64, cx *opContext) {
	w.mu.Lock()
	w.inner.register(oper, cx)
	w.updateEmpty()
	w.mu.Unlock()
}

func (w *syncWaker) unregister(oper uint64) (waiter, bool) {
	w.mu.Lock()
	e, ok := w.inner.unregister(oper)
	w.updateEmpty()
	w.mu.Unlock()
	return e, ok
}

// notify fires one waiting selector and all observers.
func (w *syncWaker) notify() {
	if w.empty.Load() {
		return
	}
	w.mu.Lock()
	if !w.empty.Load() {
		w.inner.trySelect(0)
		w.inner.notify()
		w.updateEmpty()
	}
	w.mu.Unlock()
}

func (w *syncWaker) watch(oper uint64, cx *opContext) {
	w.mu.Lock()
	w.inner.watch(oper, cx)
	w.updateEmpty()
	w.mu.Unlock()
}

func (w *syncWaker) unwatch(oper uint64) {
	w.mu.Lock()
	w.inner.unwatch(oper)
	w.updateEmpty()
	w.mu.Unlock()
}

func (w *syncWaker) disconnect() {
	w.mu.Lock()
	w.inner.disconnect()
	w.updateEmpty()
	w.mu.Unlock()
}

func (w *syncWaker) updateEmpty() {
	w.empty.Store(len(w.inner.selectors) == 0 && len(w.inner.observers) == 0)
}

package channel

import (
	"time"

	"github.com/valyala/fastrand"
)

// selectHandle is the protocol one side of a channel implements to take
// part in a Select. trySelect and accept are reservation steps that fill
// the token for a follow-up read/write; register and watch park the round's
// context in the channel's waiter lists and report whether the operation
// happens to be ready already, in which case the engine abandons the park.
type selectHandle interface {
	// trySelect attempts the operation without blocking and fills the token.
	trySelect(tok *token) bool

	// deadline reports an instant at which the operation becomes ready on
	// its own, or the zero time if there is none.
	deadline() time.Time

	// register parks oper in the waiter list. It reports whether the
	// operation is ready now.
	register(oper uint64, cx *opContext) bool
	unregister(oper uint64)

	// accept completes the reservation for an operation the context was
	// woken with.
	accept(tok *token, cx *opContext) bool

	// ready reports whether the operation could proceed right now.
	ready() bool

	// watch subscribes oper to a one-shot readiness notification. It
	// reports whether the operation is ready now.
	watch(oper uint64, cx *opContext) bool
	unwatch(oper uint64)
}

// SendEndpoint is the send side of a channel that can join a Select.
type SendEndpoint interface {
	sendHandle() selectHandle
}

// RecvEndpoint is the receive side of a channel that can join a Select.
type RecvEndpoint interface {
	recvHandle() selectHandle
}

type timeoutMode int

const (
	timeoutNow timeoutMode = iota
	timeoutNever
	timeoutAt
)

type selectCase struct {
	handle selectHandle
	index  int
}

// Select races channel operations and fires exactly one of them. Arms are
// added with Send and Recv, which return the arm's index; the index
// identifies the fired arm on the returned SelectedOperation. A Select is
// not safe for concurrent use.
type Select struct {
	cases []selectCase
	next  int
}

func NewSelect() *Select {
	return &Select{}
}

// Send adds a send arm for the endpoint and returns its index.
func (s *Select) Send(e SendEndpoint) int {
	i := s.next
	s.next++
	s.cases = append(s.cases, selectCase{handle: e.sendHandle(), index: i})
	return i
}

// Recv adds a receive arm for the endpoint and returns its index.
func (s *Select) Recv(e RecvEndpoint) int {
	i := s.next
	s.next++
	s.cases = append(s.cases, selectCase{handle: e.recvHandle(), index: i})
	return i
}

// Remove removes the arm with the given index. It panics if no such arm
// exists.
func (s *Select) Remove(index int) {
	for i, c := range s.cases {
		if c.index == index {
			s.cases = append(s.cases[:i], s.cases[i+1:]...)
			return
		}
	}
	panic("channel: removing unknown select operation")
}

// TrySelect fires one ready operation or returns ErrNotReady.
func (s *Select) TrySelect() (*SelectedOperation, error) {
	return s.runSelect(timeoutNow, time.Time{})
}

// Select blocks until one operation fires. It panics if no arms were added.
func (s *Select) Select() *SelectedOperation {
	if len(s.cases) == 0 {
		panic("channel: select with no operations")
	}
	op, _ := s.runSelect(timeoutNever, time.Time{})
	return op
}

// SelectTimeout fires one operation or returns ErrTimeout once d elapses.
func (s *Select) SelectTimeout(d time.Duration) (*SelectedOperation, error) {
	return s.runSelect(timeoutAt, time.Now().Add(d))
}

// TryReady reports the index of a ready arm or ErrNotReady. Readiness is a
// hint, not a reservation: the operation can still lose the race to another
// party and should be retried when it does.
func (s *Select) TryReady() (int, error) {
	return s.runReady(timeoutNow, time.Time{})
}

// Ready blocks until some arm is ready and reports its index. It panics if
// no arms were added.
func (s *Select) Ready() int {
	if len(s.cases) == 0 {
		panic("channel: select with no operations")
	}
	i, _ := s.runReady(timeoutNever, time.Time{})
	return i
}

// ReadyTimeout reports the index of a ready arm or ErrTimeout once d
// elapses.
func (s *Select) ReadyTimeout(d time.Duration) (int, error) {
	return s.runReady(timeoutAt, time.Now().Add(d))
}

func shuffleCases(cases []selectCase) {
	for i := len(cases) - 1; i > 0; i-- {
		j := int(fastrand.Uint32n(uint32(i + 1)))
		cases[i], cases[j] = cases[j], cases[i]
	}
}

// runSelect is the main selection loop: a lock-free try pass, then rounds
// of register / park / unregister until an operation fires or the timeout
// hits. Every round parks on a fresh context; stale wakeups from a previous
// round cannot reach it.
func (s *Select) runSelect(mode timeoutMode, deadline time.Time) (*SelectedOperation, error) {
	if len(s.cases) == 0 {
		switch mode {
		case timeoutNow:
			return nil, ErrNotReady
		case timeoutNever:
			sleepUntil(time.Time{}, nil)
		case timeoutAt:
			sleepUntil(deadline, nil)
		}
		return nil, ErrTimeout
	}

	shuffleCases(s.cases)

	var tok token

	for _, c := range s.cases {
		if c.handle.trySelect(&tok) {
			return &SelectedOperation{token: tok, index: c.index, handle: c.handle}, nil
		}
	}

	// One operation identifier per arm for this call. Arms are always
	// unregistered before the next round, so reuse across rounds is safe.
	opers := make([]uint64, len(s.cases))
	for i := range opers {
		opers[i] = nextOper()
	}

	for {
		cx := newOpContext()
		sel := selWaiting
		registered := 0
		indexReady := -1

		// A non-blocking pass settles the context up front so the
		// registrations below can never park.
		if mode == timeoutNow {
			cx.trySelect(selAborted)
		}

		for i, c := range s.cases {
			registered++

			if c.handle.register(opers[i], cx) {
				// Ready during registration: abandon the park, remember
				// which arm to retry.
				if cx.trySelect(selAborted) {
					indexReady = i
					sel = selAborted
				} else {
					sel = cx.selected()
				}
				break
			}

			// Another party may have fired one of our arms already.
			sel = cx.selected()
			if sel != selWaiting {
				break
			}
		}

		if sel == selWaiting {
			var parkUntil time.Time
			if mode == timeoutAt {
				parkUntil = deadline
			}
			for _, c := range s.cases {
				if d := c.handle.deadline(); !d.IsZero() {
					if parkUntil.IsZero() || d.Before(parkUntil) {
						parkUntil = d
					}
				}
			}
			sel = cx.waitUntil(parkUntil, nil)
		}

		for i := 0; i < registered; i++ {
			s.cases[i].handle.unregister(opers[i])
		}

		var fired *selectCase
		switch sel {
		case selWaiting:
			// waitUntil never returns this
		case selAborted:
			if indexReady >= 0 && s.cases[indexReady].handle.trySelect(&tok) {
				fired = &s.cases[indexReady]
			}
		case selClosed:
			// A channel closed; the try pass below picks up the ErrClosed
			// reservation.
		default:
			for i := range s.cases {
				if uint64(sel) == opers[i] {
					if s.cases[i].handle.accept(&tok, cx) {
						fired = &s.cases[i]
					}
					break
				}
			}
		}
		if fired != nil {
			return &SelectedOperation{token: tok, index: fired.index, handle: fired.handle}, nil
		}

		for _, c := range s.cases {
			if c.handle.trySelect(&tok) {
				return &SelectedOperation{token: tok, index: c.index, handle: c.handle}, nil
			}
		}

		switch mode {
		case timeoutNow:
			return nil, ErrNotReady
		case timeoutAt:
			if !time.Now().Before(deadline) {
				return nil, ErrTimeout
			}
		}
	}
}

// runReady mirrors runSelect for bare readiness: probe, then watch / park /
// unwatch rounds until some arm reports ready or the timeout hits.
func (s *Select) runReady(mode timeoutMode, deadline time.Time) (int, error) {
	if len(s.cases) == 0 {
		switch mode {
		case timeoutNow:
			return -1, ErrNotReady
		case timeoutNever:
			sleepUntil(time.Time{}, nil)
		case timeoutAt:
			sleepUntil(deadline, nil)
		}
		return -1, ErrTimeout
	}

	shuffleCases(s.cases)

	opers := make([]uint64, len(s.cases))
	for i := range opers {
		opers[i] = nextOper()
	}

	for {
		var bo backoff
		for {
			for _, c := range s.cases {
				if c.handle.ready() {
					return c.index, nil
				}
			}
			if bo.completed() {
				break
			}
			bo.snooze()
		}

		switch mode {
		case timeoutNow:
			return -1, ErrNotReady
		case timeoutAt:
			if !time.Now().Before(deadline) {
				return -1, ErrTimeout
			}
		}

		cx := newOpContext()
		sel := selWaiting
		registered := 0

		for i, c := range s.cases {
			registered++

			if c.handle.watch(opers[i], cx) {
				if cx.trySelect(selected(opers[i])) {
					sel = selected(opers[i])
				} else {
					sel = cx.selected()
				}
				break
			}

			sel = cx.selected()
			if sel != selWaiting {
				break
			}
		}

		if sel == selWaiting {
			var parkUntil time.Time
			if mode == timeoutAt {
				parkUntil = deadline
			}
			for _, c := range s.cases {
				if d := c.handle.deadline(); !d.IsZero() {
					if parkUntil.IsZero() || d.Before(parkUntil) {
						parkUntil = d
					}
				}
			}
			sel = cx.waitUntil(parkUntil, nil)
		}

		for i := 0; i < registered; i++ {
			s.cases[i].handle.unwatch(opers[i])
		}

		if sel > selClosed {
			for i := range s.cases {
				if uint64(sel) == opers[i] {
					return s.cases[i].index, nil
				}
			}
		}
	}
}

// SelectedOperation is a fired select arm holding a live reservation. It
// must be completed exactly once, with SendSelected or RecvSelected and the
// same endpoint the arm was added with; an abandoned reservation is never
// released.
type SelectedOperation struct {
	token  token
	index  int
	handle selectHandle
	done   bool
}

// Index reports which arm fired, as returned by Send/Recv when it was added.
func (op *SelectedOperation) Index() int {
	return op.index
}

// SendSelected completes a fired send arm, delivering msg. It returns
// ErrClosed if the channel closed before the reservation. It panics if the
// sender does not match the fired arm or the operation was already
// completed.
func SendSelected[T any](op *SelectedOperation, s *Sender[T], msg T) error {
	if op.done {
		panic("channel: select operation completed twice")
	}
	if selectHandle(s.flavor) != op.handle {
		panic("channel: sender does not match the selected operation")
	}
	op.done = true
	return s.flavor.write(&op.token, msg)
}

// RecvSelected completes a fired receive arm. It returns ErrClosed if the
// channel closed and drained. It panics if the receiver does not match the
// fired arm or the operation was already completed.
func RecvSelected[T any](op *SelectedOperation, r *Receiver[T]) (T, error) {
	if op.done {
		panic("channel: select operation completed twice")
	}
	if selectHandle(r.flavor) != op.handle {
		panic("channel: receiver does not match the selected operation")
	}
	op.done = true
	return r.flavor.read(&op.token)
}

package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/fluxorio/conduit/pkg/channel"
)

var (
	ErrBackpressure = errors.New("worker queue is full")
	ErrStopped      = errors.New("worker pool is stopped")
)

type job struct {
	ctx context.Context
	fn  func(context.Context) (any, error)
	ret *channel.Sender[result]
}

type result struct {
	val any
	err error
}

// Pool runs submitted jobs on a fixed set of workers fed from a bounded
// channel. A full queue rejects new work instead of blocking the caller.
type Pool struct {
	jobs   *channel.Sender[job]
	intake *channel.Receiver[job]
	wg     sync.WaitGroup
}

func NewPool(size int, queue int) *Pool {
	if size <= 0 {
		size = 1
	}
	if queue <= 0 {
		queue = 128
	}

	jobs, intake := channel.Bounded[job](queue)
	p := &Pool{
		jobs:   jobs,
		intake: intake,
	}

	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		j, err := p.intake.Recv()
		if err != nil {
			// Queue closed and drained
			return
		}
		if j.ctx.Err() != nil {
			j.ret.TrySend(result{err: j.ctx.Err()})
			continue
		}
		val, err := j.fn(j.ctx)
		j.ret.TrySend(result{val, err})
	}
}

// Stop closes the intake queue and waits for queued jobs to finish
func (p *Pool) Stop() {
	p.jobs.Close()
	p.wg.Wait()
}

func (p *Pool) Submit(ctx context.Context, j func(context.Context) (any, error)) (any, error) {
	// Result slot is buffered so a worker never blocks on a caller that
	// gave up waiting
	ret, retRecv := channel.Bounded[result](1)

	if err := p.jobs.TrySend(job{ctx, j, ret}); err != nil {
		if errors.Is(err, channel.ErrClosed) {
			return nil, ErrStopped
		}
		return nil, ErrBackpressure
	}

	res, err := retRecv.RecvContext(ctx)
	if err != nil {
		return nil, err
	}
	return res.val, res.err
}

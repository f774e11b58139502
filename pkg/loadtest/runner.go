// Package loadtest drives configurable producer/consumer load across a
// channel and verifies that every accepted message comes out exactly once.
package loadtest

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fastrand"
	"golang.org/x/sync/errgroup"

	"github.com/fluxorio/conduit/pkg/channel"
	"github.com/fluxorio/conduit/pkg/config"
	"github.com/fluxorio/conduit/pkg/observability/prometheus"
	"github.com/fluxorio/conduit/pkg/worker"
)

var (
	// ErrNotConserved is returned when the run lost or duplicated messages
	ErrNotConserved = errors.New("messages were lost or duplicated")

	// ErrCorruptPayload is returned when a received payload fails its checksum
	ErrCorruptPayload = errors.New("payload corruption detected")
)

const (
	// sampleLimit caps how many received messages are kept for checksum
	// verification after the run
	sampleLimit = 1024

	progressInterval = 5 * time.Second
)

// Message is the unit moved through the channel under test
type Message struct {
	Seq      uint64
	Producer int
	Payload  []byte
	Sum      uint32
}

// Result summarizes one finished load run
type Result struct {
	RunID          string
	Scenario       string
	Flavor         string
	Produced       uint64
	Consumed       uint64
	Bytes          uint64
	SendTimeouts   uint64
	RecvTimeouts   uint64
	CorruptSamples int
	Conserved      bool
	Elapsed        time.Duration
	Stats          channel.Stats
}

// Throughput returns consumed messages per second
func (res *Result) Throughput() float64 {
	if res.Elapsed <= 0 {
		return 0
	}
	return float64(res.Consumed) / res.Elapsed.Seconds()
}

// Runner drives one scenario: P producers each send their message quota
// into the channel under test while C consumers drain it. A Runner is
// single use.
type Runner struct {
	scenario *config.Scenario
	runID    string
	log      *logrus.Entry

	send *channel.Sender[Message]
	recv *channel.Receiver[Message]

	stopSend *channel.Sender[struct{}]
	stopRecv *channel.Receiver[struct{}]

	produced      atomic.Uint64
	consumed      atomic.Uint64
	consumedBytes atomic.Uint64
	sentKeys      atomic.Uint64
	recvKeys      atomic.Uint64
	sendTimeouts  atomic.Uint64
	recvTimeouts  atomic.Uint64

	mu          sync.Mutex
	samples     []Message
	sampleCount atomic.Int32
}

// NewRunner builds a runner for the scenario. The channel under test is
// created here so metrics collectors can snapshot it while the run is
// active.
func NewRunner(scenario *config.Scenario) *Runner {
	send, recv := buildChannel(scenario)
	stopSend, stopRecv := channel.Rendezvous[struct{}]()
	runID := uuid.NewString()

	return &Runner{
		scenario: scenario,
		runID:    runID,
		log:      logrus.WithFields(logrus.Fields{"run": runID, "scenario": scenario.Name}),
		send:     send,
		recv:     recv,
		stopSend: stopSend,
		stopRecv: stopRecv,
	}
}

func buildChannel(sc *config.Scenario) (*channel.Sender[Message], *channel.Receiver[Message]) {
	if sc.Flavor == config.FlavorRendezvous {
		return channel.Rendezvous[Message]()
	}
	return channel.Bounded[Message](sc.Capacity)
}

// RunID returns the uuid tagging this run in logs and metrics
func (r *Runner) RunID() string {
	return r.runID
}

// Snapshot reports the current state of the channel under test. It is
// the feed for a prometheus.ChannelCollector.
func (r *Runner) Snapshot() []prometheus.ChannelSnapshot {
	return []prometheus.ChannelSnapshot{{
		Name:     r.scenario.Name,
		Length:   r.recv.Len(),
		Capacity: r.recv.Cap(),
		Stats:    r.recv.Stats(),
	}}
}

// Run drives the scenario to completion: producers send until every
// quota is met, the channel is closed, consumers drain what remains,
// and a sample of received payloads is verified on a worker pool.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	sc := r.scenario
	start := time.Now()

	metrics := prometheus.GetMetrics()
	metrics.SetActiveWorkers(r.runID, "producer", sc.Producers)
	metrics.SetActiveWorkers(r.runID, "consumer", sc.Consumers)

	r.log.WithFields(logrus.Fields{
		"flavor":    sc.Flavor,
		"capacity":  sc.Capacity,
		"producers": sc.Producers,
		"consumers": sc.Consumers,
		"messages":  sc.Messages,
	}).Info("starting load run")

	go r.reportProgress()

	producers, pctx := errgroup.WithContext(ctx)
	for i := 0; i < sc.Producers; i++ {
		id := i
		producers.Go(func() error { return r.produce(pctx, id) })
	}

	var consumers errgroup.Group
	for i := 0; i < sc.Consumers; i++ {
		id := i
		consumers.Go(func() error { return r.consume(id) })
	}

	perr := producers.Wait()
	r.send.Close()
	cerr := consumers.Wait()
	r.stopSend.Close()

	var corrupt int
	var verr error
	if perr == nil && cerr == nil && ctx.Err() == nil {
		corrupt, verr = r.verifySamples(ctx)
	}

	elapsed := time.Since(start)
	res := &Result{
		RunID:          r.runID,
		Scenario:       sc.Name,
		Flavor:         sc.Flavor,
		Produced:       r.produced.Load(),
		Consumed:       r.consumed.Load(),
		Bytes:          r.consumedBytes.Load(),
		SendTimeouts:   r.sendTimeouts.Load(),
		RecvTimeouts:   r.recvTimeouts.Load(),
		CorruptSamples: corrupt,
		Elapsed:        elapsed,
		Stats:          r.recv.Stats(),
	}
	res.Conserved = res.Produced == res.Consumed && r.sentKeys.Load() == r.recvKeys.Load()

	metrics.AddRunMessages(r.runID, "producer", int64(res.Produced), int64(res.Produced)*int64(sc.PayloadSize))
	metrics.AddRunMessages(r.runID, "consumer", int64(res.Consumed), int64(res.Bytes))
	metrics.SetActiveWorkers(r.runID, "producer", 0)
	metrics.SetActiveWorkers(r.runID, "consumer", 0)
	metrics.ObserveRunDuration(elapsed)

	r.log.WithFields(logrus.Fields{
		"produced":  res.Produced,
		"consumed":  res.Consumed,
		"elapsed":   elapsed.Round(time.Millisecond),
		"conserved": res.Conserved,
	}).Info("load run finished")

	switch {
	case perr != nil:
		return res, perr
	case cerr != nil:
		return res, cerr
	case verr != nil:
		return res, verr
	case !res.Conserved:
		return res, ErrNotConserved
	case corrupt > 0:
		return res, ErrCorruptPayload
	}
	return res, nil
}

func (r *Runner) produce(ctx context.Context, id int) error {
	sc := r.scenario
	for seq := 0; seq < sc.Messages; seq++ {
		msg := r.newMessage(id, uint64(seq))
		for {
			var err error
			if sc.SendTimeout > 0 {
				err = r.send.SendTimeout(msg, sc.SendTimeout.Std())
			} else {
				err = r.send.SendContext(ctx, msg)
			}
			if err == nil {
				break
			}
			if errors.Is(err, channel.ErrTimeout) {
				// The message was not delivered, try it again
				r.sendTimeouts.Add(1)
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			}
			return fmt.Errorf("producer %d: %w", id, err)
		}
		r.produced.Add(1)
		r.sentKeys.Add(messageKey(id, uint64(seq)))
	}
	return nil
}

func (r *Runner) consume(id int) error {
	sc := r.scenario
	for {
		var msg Message
		var err error
		if sc.RecvTimeout > 0 {
			msg, err = r.recv.RecvTimeout(sc.RecvTimeout.Std())
		} else {
			msg, err = r.recv.Recv()
		}
		if err != nil {
			if errors.Is(err, channel.ErrTimeout) {
				r.recvTimeouts.Add(1)
				continue
			}
			if errors.Is(err, channel.ErrClosed) {
				// Channel closed and drained
				return nil
			}
			return fmt.Errorf("consumer %d: %w", id, err)
		}
		r.consumed.Add(1)
		r.consumedBytes.Add(uint64(len(msg.Payload)))
		r.recvKeys.Add(messageKey(msg.Producer, msg.Seq))
		r.maybeSample(msg)
	}
}

// reportProgress logs counters every progressInterval until the run ends
func (r *Runner) reportProgress() {
	tick := channel.Tick(progressInterval)
	sel := channel.NewSelect()
	tickIdx := sel.Recv(tick)
	stopIdx := sel.Recv(r.stopRecv)

	for {
		op := sel.Select()
		switch op.Index() {
		case tickIdx:
			if _, err := channel.RecvSelected(op, tick); err != nil {
				return
			}
			r.log.WithFields(logrus.Fields{
				"produced": r.produced.Load(),
				"consumed": r.consumed.Load(),
				"depth":    r.recv.Len(),
			}).Info("run progress")
		case stopIdx:
			_, _ = channel.RecvSelected(op, r.stopRecv)
			return
		}
	}
}

func (r *Runner) newMessage(producer int, seq uint64) Message {
	payload := make([]byte, r.scenario.PayloadSize)
	i := 0
	for ; i+4 <= len(payload); i += 4 {
		binary.LittleEndian.PutUint32(payload[i:], fastrand.Uint32())
	}
	for ; i < len(payload); i++ {
		payload[i] = byte(fastrand.Uint32())
	}

	return Message{
		Seq:      seq,
		Producer: producer,
		Payload:  payload,
		Sum:      crc32.ChecksumIEEE(payload),
	}
}

func (r *Runner) maybeSample(msg Message) {
	if r.sampleCount.Load() >= sampleLimit {
		return
	}
	r.mu.Lock()
	if len(r.samples) < sampleLimit {
		r.samples = append(r.samples, msg)
		r.sampleCount.Store(int32(len(r.samples)))
	}
	r.mu.Unlock()
}

// verifySamples re-checksums the recorded payloads on a worker pool and
// reports how many were corrupted in flight
func (r *Runner) verifySamples(ctx context.Context) (int, error) {
	r.mu.Lock()
	samples := r.samples
	r.mu.Unlock()
	if len(samples) == 0 {
		return 0, nil
	}

	pool := worker.NewPool(4, 64)
	defer pool.Stop()

	var corrupt atomic.Int64
	var vg errgroup.Group
	vg.SetLimit(8)
	for _, msg := range samples {
		msg := msg
		vg.Go(func() error {
			_, err := pool.Submit(ctx, func(context.Context) (any, error) {
				if crc32.ChecksumIEEE(msg.Payload) != msg.Sum {
					corrupt.Add(1)
				}
				return nil, nil
			})
			if errors.Is(err, worker.ErrBackpressure) {
				// Pool saturated, verify inline
				if crc32.ChecksumIEEE(msg.Payload) != msg.Sum {
					corrupt.Add(1)
				}
				return nil
			}
			return err
		})
	}
	if err := vg.Wait(); err != nil {
		return int(corrupt.Load()), err
	}
	return int(corrupt.Load()), nil
}

// messageKey folds a producer id and sequence number into one word.
// Sequence numbers stay below 2^32, which scenario validation enforces.
func messageKey(producer int, seq uint64) uint64 {
	return uint64(producer)<<32 | seq
}

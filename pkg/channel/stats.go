package channel

import "sync/atomic"

// opStats counts channel operations. Counters are updated lock-free on the
// hot paths and read with Stats snapshots.
type opStats struct {
	sends    atomic.Uint64
	recvs    atomic.Uint64
	full     atomic.Uint64
	empty    atomic.Uint64
	timeouts atomic.Uint64
}

func (s *opStats) snapshot() Stats {
	return Stats{
		Sends:    s.sends.Load(),
		Recvs:    s.recvs.Load(),
		Full:     s.full.Load(),
		Empty:    s.empty.Load(),
		Timeouts: s.timeouts.Load(),
	}
}

// Stats is a point-in-time snapshot of a channel's operation counters.
// Counters are sampled independently, so a snapshot taken under load may
// mix counts from slightly different instants.
type Stats struct {
	Sends    uint64 // messages accepted into the channel
	Recvs    uint64 // messages taken out of the channel
	Full     uint64 // non-blocking sends rejected for lack of room
	Empty    uint64 // non-blocking receives rejected for lack of messages
	Timeouts uint64 // blocking operations that gave up
}

package channel

import "time"

// arrayToken carries a reserved buffer slot between the reservation and the
// data transfer. A nil slot means the reservation observed a closed channel.
type arrayToken struct {
	slot  any // *slot[T]
	stamp uint64
}

// zeroToken carries the peer's exchange packet for a rendezvous transfer.
// A nil packet means the reservation observed a closed channel.
type zeroToken struct {
	packet any // *packet[T]
}

// timerToken carries the instant claimed from a timer channel.
type timerToken struct {
	msg time.Time
}

// token is scratch space for a two-phase channel operation: a reservation
// fills in the variant for its flavor, the follow-up read/write consumes it.
type token struct {
	array arrayToken
	zero  zeroToken
	timer timerToken
}

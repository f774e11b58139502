package channel

import "runtime"

const (
	goschedEvery = 64 // reduce runtime.Gosched() frequency in hot loops
	snoozeLimit  = 10
)

// backoff paces retry loops. spin is for transient CAS contention where the
// other party is running; snooze is for waiting on another party's progress
// and always yields. Once completed reports true the caller should park
// instead of burning cycles.
type backoff struct {
	spins   uint32
	snoozes uint32
}

func (b *backoff) spin() {
	b.spins++
	if b.spins%goschedEvery == 0 {
		runtime.Gosched()
	}
}

func (b *backoff) snooze() {
	b.snoozes++
	runtime.Gosched()
}

func (b *backoff) completed() bool {
	return b.snoozes > snoozeLimit
}

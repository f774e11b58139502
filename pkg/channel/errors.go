package channel

import "errors"

var (
	// ErrFull is returned when a non-blocking send finds no room for the message
	ErrFull = errors.New("channel is full")

	// ErrEmpty is returned when a non-blocking receive finds no message
	ErrEmpty = errors.New("channel is empty")

	// ErrTimeout is returned when a send/receive gives up before completing
	// The caller keeps ownership of an undelivered message
	ErrTimeout = errors.New("channel operation timed out")

	// ErrClosed is returned when operating on a closed channel
	// Receives keep draining buffered messages before reporting ErrClosed
	ErrClosed = errors.New("channel is closed")

	// ErrNotReady is returned by TrySelect/TryReady when no operation can proceed
	ErrNotReady = errors.New("no channel operation ready")
)

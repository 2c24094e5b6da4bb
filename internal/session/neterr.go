package session

import (
	"errors"
	"syscall"
)

// isBrokenPipeOrReset reports whether err ultimately wraps EPIPE or
// ECONNRESET, the two OS-level errors a consumer write surfaces when its
// peer has disappeared mid-write.
func isBrokenPipeOrReset(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET)
}

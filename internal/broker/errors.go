package broker

import "errors"

// Sentinel errors, wrapped with %w, mirroring internal/server/errors.go.
var (
	ErrListen          = errors.New("broker: listen")
	ErrAccept          = errors.New("broker: accept")
	ErrShutdownTimeout = errors.New("broker: shutdown timeout")
)

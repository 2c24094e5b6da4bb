package session

import "errors"

// Sentinel errors, wrapped with %w so callers can classify via errors.Is.
var (
	ErrInvalidRole   = errors.New("session: unknown role byte")
	ErrHandshake     = errors.New("session: handshake failed")
	ErrTokenMismatch = errors.New("session: token mismatch")
	ErrConnRead      = errors.New("session: connection read failed")
	ErrConnWrite     = errors.New("session: connection write failed")
)

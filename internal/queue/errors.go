package queue

import "errors"

// ErrClosed is returned by Push/Pop once the queue has been closed and, for
// Pop, drained.
var ErrClosed = errors.New("queue: closed")

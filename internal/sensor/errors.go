package sensor

import (
	"errors"
	"fmt"
)

// ErrDisconnected reports mid-stream loss of an already opened device.
// Recorders treat it as a per-stream condition, not a shutdown trigger.
var ErrDisconnected = errors.New("sensor: device disconnected")

// ErrClosed reports an operation on an adapter after Close.
var ErrClosed = errors.New("sensor: adapter closed")

// ConnectionError reports a failure to open or start a device. It is fatal to
// the Position attempt; the operator may retry after intervention.
type ConnectionError struct {
	Device string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("sensor: connect %s: %v", e.Device, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Package sensor defines the adapter contract over the two physical sensors
// and the sample types they produce.
//
// A Source is the boundary between the acquisition engine and a vendor SDK
// (the BLE sEMG bridge, the hand-tracking camera service). Everything above
// this package is hardware-free; concrete adapters live in subpackages and
// mocks stand in for hardware in tests.
package sensor

import "context"

// Source is the capability contract every sensor adapter implements.
//
// Implementations must guarantee:
//   - Open establishes the device connection; it fails with a *ConnectionError
//     if the device is unreachable or already claimed
//   - Start begins streaming and is idempotent if already started
//   - Poll never blocks longer than a short hardware wait; it returns
//     ok=false (not an error) when no sample is ready yet
//   - Poll returns ErrDisconnected (possibly wrapped) after mid-stream loss
//   - Stop and Close are idempotent and safe even if Open or Start never
//     succeeded
//   - All state is local to the adapter; the only global effect is the single
//     physical device claim
type Source[T any] interface {
	// Open establishes the hardware connection (BLE pairing, camera session).
	Open(ctx context.Context) error

	// Start begins streaming. Idempotent.
	Start() error

	// Poll reads the next available sample. ok=false means no data is ready
	// yet and is not an error.
	Poll() (sample T, ok bool, err error)

	// Stop halts streaming. Idempotent, safe before Start.
	Stop() error

	// Close releases the device. Idempotent, safe before Open.
	Close() error
}

// BiosignalSource streams 16-channel sEMG samples.
type BiosignalSource = Source[EMGSample]

// MotionSource streams hand-pose frames from the tracking camera.
type MotionSource = Source[PoseFrame]

package device

import "context"

// Driver is the contract both transport drivers implement. The registry fans
// scans out over drivers; the orchestrator connects through them.
type Driver interface {
  Transport() Transport

  // Scan discovers devices until ctx is done, invoking onDevice for each
  // (possibly duplicated) discovery event. Role affects filtering only.
  Scan(ctx context.Context, role Role, onDevice func(Device)) error

  // Connect opens a link to dev. Role selects per-purpose behaviour (the
  // Classic driver nudges passive scales awake). On failure no resources
  // remain allocated.
  Connect(ctx context.Context, role Role, dev Device) (Conn, error)
}

// Conn is a live transport handle. It exclusively owns the underlying
// subscription/socket and releases it on Close.
type Conn interface {
  Device() Device

  // Frames yields raw payloads as they arrive. The channel is closed when
  // the link drops or the Conn is closed.
  Frames() <-chan []byte

  // Write transmits raw bytes (printer payloads, scale wake commands).
  Write(p []byte) error

  // Alive reports whether the link is verifiably still up.
  Alive() bool

  // Close releases the handle. Idempotent.
  Close() error
}

package device

import "errors"

// Typed failures surfaced by the transport drivers and the orchestrator.
// Platform errors never cross the driver boundary raw; they are wrapped
// around one of these sentinels so callers can branch on errors.Is.
var (
  // OS-level Bluetooth/location permission refused. Scan aborted.
  ErrPermissionDenied = errors.New("bluetooth permission denied")

  // Adapter is off. No automatic retry; the user has to enable it.
  ErrBluetoothDisabled = errors.New("bluetooth is disabled")

  // Classic only: the device must be paired at the OS level first. This
  // system never initiates pairing itself.
  ErrNotPaired = errors.New("device is not paired")

  // BLE only: link established but no notifiable or readable data
  // characteristic was found. Treated as a full connection failure.
  ErrNoCompatibleCharacteristic = errors.New("no compatible characteristic")

  // The requested id is absent from the current scan results of both
  // transports. Callers must rescan.
  ErrDeviceNotFound = errors.New("device not found in scan results")

  ErrConnectionTimeout = errors.New("connection timed out")
  ErrPrintTimeout = errors.New("print timed out")

  // Catch-all for underlying platform failures.
  ErrTransport = errors.New("transport error")
)

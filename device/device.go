package device

import (
  "fmt"
  "strconv"
  "strings"
)

// Transport identifies which Bluetooth flavour a device was discovered on.
type Transport uint8

const (
  TransportBLE Transport = iota
  TransportClassic
)

func (t Transport) String() string {
  switch t {
  case TransportBLE:
    return "BLE"
  case TransportClassic:
    return "Classic"
  default:
    panic("unknown Transport value: " + strconv.Itoa(int(t)))
  }
}

// Tag is the stable form used in persisted records.
func (t Transport) Tag() string {
  switch t {
  case TransportBLE:
    return "ble"
  case TransportClassic:
    return "classic"
  default:
    panic("unknown Transport value: " + strconv.Itoa(int(t)))
  }
}

func TransportFromTag(tag string) (Transport, error) {
  switch tag {
  case "ble":
    return TransportBLE, nil
  case "classic":
    return TransportClassic, nil
  default:
    return 0, fmt.Errorf("unknown transport tag %q", tag)
  }
}

// Role is the logical purpose of a connection: weight input or receipt output.
type Role uint8

const (
  RoleScale Role = iota
  RolePrinter
)

func (r Role) String() string {
  switch r {
  case RoleScale:
    return "scale"
  case RolePrinter:
    return "printer"
  default:
    panic("unknown Role value: " + strconv.Itoa(int(r)))
  }
}

// StorageKey is the persistence-bridge key holding the last device for this role.
func (r Role) StorageKey() string {
  return "last_device_" + r.String()
}

// Device is the transport-agnostic identity of a discovered peripheral. It is
// transient: rebuilt from scratch on every scan cycle and never persisted as a
// whole (see store.Record for the subset that is).
type Device struct {
  // ID is the transport-native identifier (peripheral UUID or MAC). Identity
  // comparison is case-insensitive; use Key().
  ID string
  Address string
  Name string
  Transport Transport

  // ServiceHints holds advertised service UUIDs (BLE only).
  ServiceHints []string

  // RSSI is informational only.
  RSSI int
}

// Key is the normalized identity used for deduplication and lookups.
func (d Device) Key() string {
  return strings.ToLower(d.ID)
}

// Unnamed reports whether the device advertised no usable name. "Unknown" is a
// placeholder some stacks substitute for a missing name.
func (d Device) Unnamed() bool {
  name := strings.TrimSpace(d.Name)
  return name == "" || strings.EqualFold(name, "unknown")
}

func (d Device) String() string {
  return fmt.Sprintf("device[name=%q, addr=%v, transport=%v]", d.Name, d.Address, d.Transport)
}

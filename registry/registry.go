// Package registry merges BLE and Classic scan results into a single device
// list with stable, case-insensitive identity.
package registry

import (
  "context"
  "sync"
  "time"

  "github.com/rs/zerolog/log"
  "golang.org/x/sync/errgroup"

  "github.com/mkulima/scalelink/device"
  "github.com/mkulima/scalelink/utils"
)

const (
  // DefaultScanWindow bounds one scan cycle; once it elapses Scanning() is
  // false regardless of discovery outcome.
  DefaultScanWindow = 15 * time.Second

  // The Classic scan starts slightly after BLE so the two don't slam the
  // shared radio at the same instant.
  classicStagger = 300 * time.Millisecond
)

type Registry struct {
  ble device.Driver
  classic device.Driver

  ScanWindow time.Duration

  mu sync.Mutex
  devices []device.Device
  index map[string]int

  // byTransport keeps the raw per-transport result sets: a device visible on
  // both transports is deduplicated in the unified list but must stay
  // addressable on each transport for the BLE-first connect policy.
  byTransport map[device.Transport]map[string]device.Device

  scanning bool
}

// New builds a registry over the two drivers. Either driver may be nil, in
// which case its transport simply contributes nothing.
func New(bleDriver, classicDriver device.Driver) *Registry {
  return &Registry{
    ble: bleDriver,
    classic: classicDriver,
    ScanWindow: DefaultScanWindow,
  }
}

// Scan rebuilds the device list from scratch: previous results are dropped,
// both drivers run concurrently (Classic staggered), and results are merged
// deduplicating by normalized id with discovery order preserved. First-seen
// metadata wins on duplicates. For the printer role BLE is skipped entirely -
// the fleet has no BLE printers.
func (r *Registry) Scan(ctx context.Context, role device.Role) error {
  r.mu.Lock()

  if r.scanning {
    r.mu.Unlock()
    log.Debug().Stringer("Role", role).Msg("registry: scan already in progress")
    return nil
  }

  r.scanning = true
  r.devices = nil
  r.index = make(map[string]int)
  r.byTransport = make(map[device.Transport]map[string]device.Device)
  r.mu.Unlock()

  defer func() {
    r.mu.Lock()
    r.scanning = false
    r.mu.Unlock()
  }()

  ctx, cancel := context.WithTimeout(ctx, r.ScanWindow)
  defer cancel()

  log.Debug().Stringer("Role", role).Msg("registry: starting scan")

  var eg errgroup.Group

  if r.ble != nil && role != device.RolePrinter {
    eg.Go(func() error {
      return r.ble.Scan(ctx, role, r.add)
    })
  }

  if r.classic != nil {
    eg.Go(func() error {
      select {
      case <-ctx.Done():
        return nil
      case <-time.After(classicStagger):
      }

      return r.classic.Scan(ctx, role, r.add)
    })
  }

  err := eg.Wait()

  log.Debug().
    Stringer("Role", role).
    Array("Devices", utils.ToZeroLogArray(r.Devices())).
    Err(err).
    Msg("registry: scan finished")

  return err
}

// add merges one discovery event. The merged list never contains two entries
// with the same normalized id.
func (r *Registry) add(dev device.Device) {
  r.mu.Lock()
  defer r.mu.Unlock()

  if r.byTransport[dev.Transport] == nil {
    r.byTransport[dev.Transport] = make(map[string]device.Device)
  }

  if _, ok := r.byTransport[dev.Transport][dev.Key()]; !ok {
    r.byTransport[dev.Transport][dev.Key()] = dev
  }

  if _, ok := r.index[dev.Key()]; ok {
    return
  }

  r.index[dev.Key()] = len(r.devices)
  r.devices = append(r.devices, dev)
}

// Devices returns a snapshot of the current list in discovery order.
func (r *Registry) Devices() []device.Device {
  r.mu.Lock()
  defer r.mu.Unlock()

  out := make([]device.Device, len(r.devices))
  copy(out, r.devices)

  return out
}

// Lookup finds a device by id, case-insensitively.
func (r *Registry) Lookup(id string) (device.Device, bool) {
  r.mu.Lock()
  defer r.mu.Unlock()

  dev := device.Device{ID: id}

  i, ok := r.index[dev.Key()]

  if !ok {
    return device.Device{}, false
  }

  return r.devices[i], true
}

// LookupOn finds a device by id restricted to one transport's result set.
func (r *Registry) LookupOn(id string, transport device.Transport) (device.Device, bool) {
  r.mu.Lock()
  defer r.mu.Unlock()

  key := device.Device{ID: id}.Key()

  dev, ok := r.byTransport[transport][key]

  if !ok {
    return device.Device{}, false
  }

  return dev, true
}

func (r *Registry) Scanning() bool {
  r.mu.Lock()
  defer r.mu.Unlock()

  return r.scanning
}

// Package classic is the Bluetooth Classic (RFCOMM) transport driver, used by
// both scales and receipt printers. Device knowledge comes from BlueZ over
// D-Bus (bonded-device enumeration plus best-effort discovery); data flows
// over a raw RFCOMM socket. Pairing is never initiated here - devices must be
// bonded at the OS level first.
package classic

import (
  "context"
  "time"

  "github.com/godbus/dbus/v5"
  "github.com/pkg/errors"
  "github.com/prometheus/client_golang/prometheus"
  "github.com/rs/zerolog/log"

  "github.com/mkulima/scalelink/device"
)

var (
  successfulConnectionsCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "scalelink_classic_successful_connections_total",
  })
  failedConnectionsCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "scalelink_classic_failed_connections_total",
  })
  disconnectsCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "scalelink_classic_disconnections_total",
  })
)

func RegisterMetrics(reg prometheus.Registerer) {
  reg.MustRegister(
    successfulConnectionsCounter,
    failedConnectionsCounter,
    disconnectsCounter,
  )
}

const (
  // RFCOMM channel used by SPP serial bridges.
  defaultChannel = 1

  defaultDiscoveryWindow = 12 * time.Second

  // Socket handshakes with cheap serial bridges are slow; poll the
  // connection a few times before giving up.
  connectAttempts = 5
  connectAttemptDelay = 500 * time.Millisecond

  // How long one non-blocking connect may sit in EINPROGRESS.
  connectPollWindow = 500 * time.Millisecond
)

type Driver struct {
  bus *dbus.Conn
  adapterPath string
  classify func(device.Device) bool
  discoveryWindow time.Duration
}

// New connects to the system bus. classify is applied to scale scans; pass
// nil to disable filtering.
func New(classify func(device.Device) bool) (*Driver, error) {
  bus, err := dbus.ConnectSystemBus()

  if err != nil {
    return nil, errors.Wrapf(device.ErrTransport, "failed to connect to system bus: %v", err)
  }

  return &Driver{
    bus: bus,
    adapterPath: defaultAdapterPath,
    classify: classify,
    discoveryWindow: defaultDiscoveryWindow,
  }, nil
}

func (d *Driver) Transport() device.Transport {
  return device.TransportClassic
}

func (d *Driver) Close() error {
  return d.bus.Close()
}

// Scan merges bonded-device enumeration with an active discovery round,
// deduplicating by address. Discovery being unsupported is not an error.
func (d *Driver) Scan(ctx context.Context, role device.Role, onDevice func(device.Device)) error {
  seen := make(map[string]bool)

  report := func(devices []bluezDevice) {
    for _, bd := range devices {
      dev := device.Device{
        ID: bd.Address,
        Address: bd.Address,
        Name: bd.Name,
        Transport: device.TransportClassic,
        RSSI: bd.RSSI,
      }

      if seen[dev.Key()] {
        continue
      }

      seen[dev.Key()] = true

      if role == device.RoleScale && d.classify != nil && !d.classify(dev) {
        log.Trace().
          Stringer("Device", dev).
          Msg("classic: dropping device rejected by the scale filter")
        continue
      }

      onDevice(dev)
    }
  }

  bonded, err := d.listDevices()

  if err != nil {
    return err
  }

  report(bonded)

  window := d.discoveryWindow

  if deadline, ok := ctx.Deadline(); ok {
    if remaining := time.Until(deadline); remaining < window {
      window = remaining
    }
  }

  if window > 0 {
    d.discover(ctx, window)

    // discovery populates Device1 objects as a side effect; re-enumerate to
    // pick the newcomers up.
    if found, err := d.listDevices(); err == nil {
      report(found)
    } else {
      log.Debug().Err(err).Msg("classic: post-discovery enumeration failed")
    }
  }

  return nil
}

// Connect requires the target to be bonded already, then opens the RFCOMM
// socket. For the scale role a short wake sequence is written after connect
// to coax passive scales into streaming.
func (d *Driver) Connect(ctx context.Context, role device.Role, dev device.Device) (device.Conn, error) {
  known, found, err := d.lookup(dev.Address)

  if err != nil {
    failedConnectionsCounter.Inc()
    return nil, err
  }

  if !found || !known.Paired {
    failedConnectionsCounter.Inc()
    return nil, errors.Wrapf(device.ErrNotPaired,
      "device %v must be paired in the OS Bluetooth settings first", dev.Address)
  }

  c, err := dialRFCOMM(ctx, dev)

  if err != nil {
    failedConnectionsCounter.Inc()
    return nil, err
  }

  successfulConnectionsCounter.Inc()

  if role == device.RoleScale {
    go c.wakeScale()
  }

  return c, nil
}

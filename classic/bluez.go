package classic

import (
  "context"
  "strings"
  "time"

  "github.com/godbus/dbus/v5"
  "github.com/pkg/errors"
  "github.com/rs/zerolog/log"

  "github.com/mkulima/scalelink/device"
)

const (
  bluezService = "org.bluez"
  bluezRootPath = "/"
  defaultAdapterPath = "/org/bluez/hci0"

  deviceInterface = "org.bluez.Device1"
  adapterInterface = "org.bluez.Adapter1"
  objectManagerInterface = "org.freedesktop.DBus.ObjectManager"
)

// bluezDevice is the projection of an org.bluez.Device1 object we care about.
type bluezDevice struct {
  Address string
  Name string
  Paired bool
  RSSI int
}

// managedObjects mirrors the ObjectManager.GetManagedObjects reply shape.
type managedObjects = map[dbus.ObjectPath]map[string]map[string]dbus.Variant

func (d *Driver) listDevices() ([]bluezDevice, error) {
  var objects managedObjects

  err := d.bus.Object(bluezService, bluezRootPath).
    Call(objectManagerInterface+".GetManagedObjects", 0).
    Store(&objects)

  if err != nil {
    return nil, errors.Wrapf(device.ErrTransport, "failed to enumerate bluez objects: %v", err)
  }

  return parseManagedObjects(objects), nil
}

// parseManagedObjects extracts every Device1 entry from a GetManagedObjects
// reply. Split out so it can run against canned replies.
func parseManagedObjects(objects managedObjects) []bluezDevice {
  var out []bluezDevice

  for path, interfaces := range objects {
    props, ok := interfaces[deviceInterface]

    if !ok {
      continue
    }

    var dev bluezDevice

    if v, ok := props["Address"]; ok {
      if addr, ok := v.Value().(string); ok {
        dev.Address = strings.ToUpper(addr)
      }
    }

    if dev.Address == "" {
      log.Trace().
        Str("Path", string(path)).
        Msg("classic: skipping Device1 object without an address")
      continue
    }

    if v, ok := props["Name"]; ok {
      dev.Name, _ = v.Value().(string)
    }

    if dev.Name == "" {
      if v, ok := props["Alias"]; ok {
        dev.Name, _ = v.Value().(string)
      }
    }

    if v, ok := props["Paired"]; ok {
      dev.Paired, _ = v.Value().(bool)
    }

    if v, ok := props["RSSI"]; ok {
      if rssi, ok := v.Value().(int16); ok {
        dev.RSSI = int(rssi)
      }
    }

    out = append(out, dev)
  }

  return out
}

// discover runs a best-effort BR/EDR discovery round. Adapters that refuse
// discovery (no permission, already discovering, no adapter) contribute
// nothing rather than failing the scan: bonded-device enumeration alone is a
// legitimate scan result.
func (d *Driver) discover(ctx context.Context, window time.Duration) {
  adapter := d.bus.Object(bluezService, dbus.ObjectPath(d.adapterPath))

  filter := map[string]interface{}{
    "Transport": "bredr",
  }

  if err := adapter.Call(adapterInterface+".SetDiscoveryFilter", 0, filter).Err; err != nil {
    log.Debug().Err(err).Msg("classic: failed to set discovery filter, continuing anyway")
  }

  if err := adapter.Call(adapterInterface+".StartDiscovery", 0).Err; err != nil {
    log.Debug().Err(err).Msg("classic: active discovery unavailable, using bonded devices only")
    return
  }

  defer func() {
    if err := adapter.Call(adapterInterface+".StopDiscovery", 0).Err; err != nil {
      log.Debug().Err(err).Msg("classic: failed to stop discovery")
    }
  }()

  select {
  case <-ctx.Done():
  case <-time.After(window):
  }
}

func (d *Driver) lookup(address string) (bluezDevice, bool, error) {
  devices, err := d.listDevices()

  if err != nil {
    return bluezDevice{}, false, err
  }

  for _, dev := range devices {
    if strings.EqualFold(dev.Address, address) {
      return dev, true, nil
    }
  }

  return bluezDevice{}, false, nil
}

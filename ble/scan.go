package ble

import (
  "context"
  "strings"
  "time"

  "github.com/go-ble/ble"
  "github.com/pkg/errors"
  "github.com/rs/zerolog/log"

  "github.com/mkulima/scalelink/device"
  "github.com/mkulima/scalelink/utils"
)

// DefaultScanWindow bounds a scan when the caller's context carries no
// deadline of its own.
const DefaultScanWindow = 15 * time.Second

func WrapContextWithSigHandler(ctx context.Context, cancel func()) context.Context {
  return ble.WithSigHandler(ctx, cancel)
}

// Scan discovers peripherals until the scan window elapses or ctx is done.
// Duplicate advertisements for the same address are suppressed, and for the
// scale role non-matching peripherals are dropped before they reach the
// caller. Printer scans never run on BLE (the fleet has no BLE printers), so
// the role only decides whether the classifier applies.
func (h *Handle) Scan(ctx context.Context, role device.Role, onDevice func(device.Device)) error {
  if _, ok := ctx.Deadline(); !ok {
    var cancel func()
    ctx, cancel = context.WithTimeout(ctx, h.scanWindow)
    defer cancel()
  }

  seen := make(map[string]bool)

  err := h.dev.Scan(ctx, false, func(a Advertisement) {
    dev := fromAdvertisement(a)

    if seen[dev.Key()] {
      return
    }

    seen[dev.Key()] = true

    if role == device.RoleScale && h.classify != nil && !h.classify(dev) {
      log.Trace().
        Stringer("Device", dev).
        Msg("ble: dropping peripheral rejected by the scale filter")
      return
    }

    onDevice(dev)
  })

  // the window elapsing is the normal way a scan ends.
  if utils.ErrorIsAnyOf(err, context.Canceled, context.DeadlineExceeded) {
    err = nil
  }

  if err != nil {
    return errors.Wrapf(device.ErrTransport, "failed to scan: %v", err)
  }

  return nil
}

// ScanAll performs an unfiltered scan, reporting every raw advertisement.
// Used by the discovery mode only.
func (h *Handle) ScanAll(ctx context.Context, onDevice func(Advertisement)) error {
  err := h.dev.Scan(ctx, true, onDevice)

  if err != nil {
    return errors.Wrap(err, "failed to initiate scan")
  }

  return nil
}

func fromAdvertisement(a Advertisement) device.Device {
  addr := strings.ToUpper(a.Addr().String())

  hints := make([]string, 0, len(a.Services()))

  for _, uuid := range a.Services() {
    hints = append(hints, uuid.String())
  }

  return device.Device{
    ID: addr,
    Address: addr,
    Name: a.LocalName(),
    Transport: device.TransportBLE,
    ServiceHints: hints,
    RSSI: a.RSSI(),
  }
}

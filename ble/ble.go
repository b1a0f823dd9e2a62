// Package ble is the Bluetooth Low Energy transport driver: discovery,
// connection, characteristic negotiation and notify/poll subscriptions for
// BLE scales.
package ble

import (
  "strings"
  "time"

  "github.com/go-ble/ble"
  "github.com/go-ble/ble/linux"
  "github.com/go-ble/ble/linux/hci/cmd"
  "github.com/pkg/errors"
  "github.com/prometheus/client_golang/prometheus"
  "github.com/rs/zerolog/log"

  "github.com/mkulima/scalelink/device"
)

type Advertisement = ble.Advertisement

// Handle owns the HCI device. It is a process-wide resource: scale and
// printer orchestrators share one Handle, so concurrent scans contend for the
// same radio.
type Handle struct {
  dev *linux.Device

  classify func(device.Device) bool
  scanWindow time.Duration
}

func RegisterMetrics(reg prometheus.Registerer) {
  reg.MustRegister(
    successfulConnectionsCounter,
    failedConnectionsCounter,
    disconnectsCounter,
    droppedFramesCounter,
  )
}

// Init opens the HCI device and configures scan parameters. classify is
// applied inline during scale scans so non-matching peripherals never reach
// the registry; pass nil to disable filtering.
func Init(deviceId int, flags Flags, classify func(device.Device) bool) (*Handle, error) {
  return InitWithConnParams(deviceId, ConnParamsDefault, flags, classify)
}

func InitWithConnParams(
  deviceId int,
  connParams ConnParams,
  flags Flags,
  classify func(device.Device) bool,
) (*Handle, error) {
  var scanType scanType = scanTypePassive

  if flags & FlagScanTypeActive == FlagScanTypeActive {
    scanType = scanTypeActive
  }

  log.Debug().
    Stringer("ScanType", scanType).
    Stringer("ConnParams", &connParams).
    Stringer("Flags", flags).
    Int("DeviceID", deviceId).
    Msg("Initializing Bluetooth device")

  dev, err := linux.NewDevice(
    ble.OptDeviceID(deviceId),
    ble.OptScanParams(cmd.LESetScanParameters{
      LEScanType:           uint8(scanType), // 0x00: passive, 0x01: active
      LEScanInterval:       0x0004,          // 0x0004 - 0x4000; N * 0.625msec
      LEScanWindow:         0x0004,          // 0x0004 - 0x4000; N * 0.625msec
      OwnAddressType:       0x00,            // 0x00: public, 0x01: random
      ScanningFilterPolicy: 0x00,            // accept all; filtering is ours
    }),
    ble.OptConnParams(connParams.AdapterOptions()),
  )

  if err != nil {
    return nil, mapInitError(err)
  }

  ble.SetDefaultDevice(dev)

  return &Handle{
    dev: dev,
    classify: classify,
    scanWindow: DefaultScanWindow,
  }, nil
}

func (h *Handle) Transport() device.Transport {
  return device.TransportBLE
}

func (h *Handle) Stop() {
  h.dev.Stop()
}

// mapInitError converts adapter bring-up failures into the typed taxonomy so
// callers can tell "enable Bluetooth" from "grant permission" apart.
func mapInitError(err error) error {
  msg := strings.ToLower(err.Error())

  switch {
  case strings.Contains(msg, "operation not permitted"),
       strings.Contains(msg, "permission denied"):
    return errors.Wrap(device.ErrPermissionDenied, err.Error())
  case strings.Contains(msg, "network is down"),
       strings.Contains(msg, "no such device"),
       strings.Contains(msg, "can't down device"):
    return errors.Wrap(device.ErrBluetoothDisabled, err.Error())
  default:
    return errors.Wrapf(device.ErrTransport, "failed to init bluetooth device: %v", err)
  }
}

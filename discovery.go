package main

import (
  "context"
  "errors"

  "github.com/rs/zerolog/log"
  "golang.org/x/exp/maps"

  "github.com/mkulima/scalelink/ble"
  "github.com/mkulima/scalelink/classic"
  "github.com/mkulima/scalelink/device"
)

func doDeviceDiscovery(cfg config) {
  log.Info().
    Dur("Window", cfg.ScanWindow).
    Msg("Starting in device discovery mode - collecting devices on both transports...")

  handle, err := ble.Init(cfg.BluetoothDeviceId, ble.FlagScanTypeActive, nil)

  if err != nil {
    log.Fatal().Err(err).Msg("Failed to initialize Bluetooth device")
  }

  ctx := ble.WrapContextWithSigHandler(
    context.WithTimeout(
      context.Background(),
      cfg.ScanWindow,
    ),
  )

  type deviceInfo struct {
    name string
    transport device.Transport
    connectable bool
    services []string
  }

  devices := make(map[string]deviceInfo)

  err = handle.ScanAll(ctx, func(a ble.Advertisement) {
    services := make(map[string]bool)

    for _, uuid := range a.Services() {
      services[uuid.String()] = true
    }

    var info deviceInfo
    var ok bool

    if info, ok = devices[a.Addr().String()]; ok {
      // merge
      if info.name == "" {
        info.name = a.LocalName()
      }
      info.connectable = a.Connectable()

      for _, uuid := range info.services {
        if _, ok := services[uuid]; !ok {
          services[uuid] = true
        }
      }

      info.services = maps.Keys(services)
    } else {
      info = deviceInfo{
        name: a.LocalName(),
        transport: device.TransportBLE,
        connectable: a.Connectable(),
        services: maps.Keys(services),
      }
    }

    devices[a.Addr().String()] = info

    log.Debug().
      Str("Addr", a.Addr().String()).
      Str("Name", a.LocalName()).
      Bool("Connectable", a.Connectable()).
      Strs("Services", maps.Keys(services)).
      Hex("ManufacturerData", a.ManufacturerData()).
      Msg("Received device advertisement")
  })

  if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
    log.Fatal().Err(err).Msg("Failed to initiate scan")
  }

  // an unfiltered Classic round; its own scan window matches the BLE one.
  if driver, err := classic.New(nil); err == nil {
    defer driver.Close()

    classicCtx, cancel := context.WithTimeout(context.Background(), cfg.ScanWindow)
    defer cancel()

    err := driver.Scan(classicCtx, device.RoleScale, func(dev device.Device) {
      if _, ok := devices[dev.Address]; ok {
        return
      }

      devices[dev.Address] = deviceInfo{
        name: dev.Name,
        transport: device.TransportClassic,
        connectable: true,
      }
    })

    if err != nil {
      log.Warn().Err(err).Msg("Classic discovery failed")
    }
  } else {
    log.Warn().Err(err).Msg("Skipping Classic discovery - BlueZ is unavailable")
  }

  log.Info().Int("Found", len(devices)).Msg("Finished device discovery")

  for addr, data := range devices {
    log.Info().
      Str("Addr", addr).
      Str("Name", data.name).
      Stringer("Transport", data.transport).
      Bool("Connectable", data.connectable).
      Strs("Services", data.services).
      Msg("Found device")
  }
}

package main

import (
  "context"
  "net/http"
  "os"
  "time"

  "github.com/prometheus/client_golang/prometheus"
  "github.com/prometheus/client_golang/prometheus/promhttp"
  "github.com/rs/zerolog"
  "github.com/rs/zerolog/log"

  "github.com/mkulima/scalelink/ble"
  "github.com/mkulima/scalelink/classic"
  "github.com/mkulima/scalelink/device"
  "github.com/mkulima/scalelink/filter"
  "github.com/mkulima/scalelink/metrics"
  "github.com/mkulima/scalelink/orchestrator"
  "github.com/mkulima/scalelink/registry"
  "github.com/mkulima/scalelink/store"
)

func main() {
  zerolog.DurationFieldUnit = time.Second
  zerolog.TimeFieldFormat = time.RFC3339Nano

  log.Logger = log.Output(zerolog.ConsoleWriter{
    Out: os.Stderr,
    TimeFormat: "15:04:05.000",
  })

  cfg := ParseArgs()

  if cfg.Trace || os.Getenv("TRACE") != "" {
    zerolog.SetGlobalLevel(zerolog.TraceLevel)
  } else if cfg.Debug || os.Getenv("DEBUG") != "" {
    zerolog.SetGlobalLevel(zerolog.DebugLevel)
  } else {
    zerolog.SetGlobalLevel(zerolog.InfoLevel)
  }

  if cfg.DiscoverDevices {
    doDeviceDiscovery(cfg)
    return
  }

  log.Info().
    Stringer("Role", cfg.Role).
    Str("BindAddr", cfg.BindAddress).
    Str("Store", cfg.StorePath).
    Int("BluetoothDeviceID", cfg.BluetoothDeviceId).
    Msg("Starting with the specified configuration")

  classifier := filter.NewClassifier(cfg.ApprovedAddresses)

  var bleDriver device.Driver

  // the printer fleet is Classic-only; don't claim the radio for BLE scans
  // that can't find anything.
  if cfg.Role == device.RoleScale {
    handle, err := ble.InitWithConnParams(
      cfg.BluetoothDeviceId,
      cfg.BluetoothConnParams,
      ble.FlagScanTypeActive,
      classifier.ScaleLikely,
    )

    if err != nil {
      log.Fatal().Err(err).Msg("Failed to initialize Bluetooth device")
    }

    bleDriver = handle
  }

  classicDriver, err := classic.New(classifier.ScaleLikely)

  if err != nil {
    log.Fatal().Err(err).Msg("Failed to connect to BlueZ")
  }

  st, err := store.OpenFile(cfg.StorePath)

  if err != nil {
    log.Fatal().Err(err).Msg("Failed to open the last-device store")
  }

  reg := registry.New(bleDriver, classicDriver)
  reg.ScanWindow = cfg.ScanWindow

  orch := orchestrator.New(cfg.Role, reg, bleDriver, classicDriver, st)

  registryProm := prometheus.NewRegistry()

  ble.RegisterMetrics(registryProm)
  classic.RegisterMetrics(registryProm)
  metrics.RegisterCollector(
    func() []metrics.RoleSnapshot {
      reading, hasReading := orch.LastReading()

      return []metrics.RoleSnapshot{{
        Role: orch.Role(),
        Reading: reading,
        HasReading: hasReading,
        Connected: orch.ConnectedDevice() != nil,
        Scanning: orch.IsScanning(),
      }}
    },
    registryProm,
  )

  ctx, cancel := context.WithCancel(context.Background())
  ctx = ble.WrapContextWithSigHandler(ctx, cancel)

  go runSession(ctx, cfg, orch)

  log.Info().
    Str("ListenAddress", cfg.BindAddress).
    Msg("Starting metrics server")

  http.Handle("/metrics", promhttp.HandlerFor(registryProm, promhttp.HandlerOpts{}))

  if err := http.ListenAndServe(cfg.BindAddress, nil); err != nil {
    log.Fatal().Err(err).Msg("Unable to bind on requested address")
  }
}

// runSession drives one field session: restore the last device or find a new
// one, then let the orchestrator stream readings.
func runSession(ctx context.Context, cfg config, orch *orchestrator.Orchestrator) {
  if err := orch.AutoReconnect(ctx); err != nil {
    log.Warn().Err(err).Msg("Auto-reconnect failed")
  }

  if orch.ConnectedDevice() == nil {
    if err := orch.ScanForDevices(ctx); err != nil {
      log.Error().Err(err).Msg("Scan failed")
      return
    }

    target, ok := pickTarget(cfg.Role, orch)

    if !ok {
      log.Warn().
        Stringer("Role", cfg.Role).
        Msg("No candidate device found - pair or power the device and restart")
      return
    }

    if _, err := orch.ConnectToDevice(ctx, target.ID); err != nil {
      log.Error().
        Stringer("Device", target).
        Err(err).
        Msg("Failed to connect")
      return
    }
  }

  dev := orch.ConnectedDevice()

  log.Info().Stringer("Device", *dev).Msg("Session established")

  if cfg.Role == device.RolePrinter && cfg.PrintPayload != "" {
    if err := orch.PrintText(ctx, cfg.PrintPayload+"\n"); err != nil {
      log.Fatal().Err(err).Msg("Test print failed")
    }

    log.Info().Msg("Test print sent")
    os.Exit(0)
  }
}

func pickTarget(role device.Role, orch *orchestrator.Orchestrator) (device.Device, bool) {
  if role == device.RolePrinter {
    return orch.SelectPrinter()
  }

  devices := orch.Devices()

  if len(devices) == 0 {
    return device.Device{}, false
  }

  return devices[0], true
}

package main

import (
  "flag"
  "fmt"
  "os"
  "strings"
  "time"

  "github.com/mkulima/scalelink/ble"
  "github.com/mkulima/scalelink/device"
  "github.com/mkulima/scalelink/registry"
)

type config struct {
  Debug, Trace bool
  BindAddress string
  DiscoverDevices bool
  BluetoothDeviceId int
  BluetoothConnParams ble.ConnParams
  ScanWindow time.Duration
  StorePath string
  Role device.Role
  PrintPayload string
  ApprovedAddresses []string
}

// *flag.Value over device.Role
type roleFlag struct {
  role *device.Role
}

func (r *roleFlag) String() string {
  if r.role == nil {
    return ""
  }

  return r.role.String()
}

func (r *roleFlag) Set(v string) error {
  switch strings.ToLower(v) {
  case "scale":
    *r.role = device.RoleScale
  case "printer":
    *r.role = device.RolePrinter
  default:
    return fmt.Errorf("unknown role %q (must be 'scale' or 'printer')", v)
  }

  return nil
}

// *flag.Value collecting repeatable -approve entries
type addressList struct {
  list *[]string
}

func (a *addressList) String() string {
  return ""
}

func (a *addressList) Set(v string) error {
  *a.list = append(*a.list, strings.TrimSpace(v))
  return nil
}

func ParseArgs() config {
  var cfg config

  cfg.BluetoothConnParams = ble.ConnParamsDefault
  cfg.Role = device.RoleScale

  flag.StringVar(&cfg.BindAddress, "bind", "localhost:9104", "Where the metrics endpoint will bind to")
  flag.IntVar(&cfg.BluetoothDeviceId, "bluetooth-device", 0, "Bluetooth (HCI) device ID")
  flag.Var(&cfg.BluetoothConnParams, "bluetooth-connection-params", "Bluetooth connection parameters (one of 'default' or 'power-saving')")
  flag.Var(&roleFlag{&cfg.Role}, "role", "Device role to operate ('scale' or 'printer')")
  flag.BoolVar(&cfg.DiscoverDevices, "discover", false, "Discover devices on both transports and quit")
  flag.DurationVar(&cfg.ScanWindow, "scan-window", registry.DefaultScanWindow, "How long one scan cycle runs")
  flag.StringVar(&cfg.StorePath, "store", defaultStorePath(), "Path of the last-device store")
  flag.StringVar(&cfg.PrintPayload, "print", "", "Send a test print through the connected printer and quit (printer role only)")
  flag.Var(&addressList{&cfg.ApprovedAddresses}, "approve", "Manually approve a device address for the scale filter (repeatable)")
  flag.BoolVar(&cfg.Debug, "debug", false, "Enable debug logs")
  flag.BoolVar(&cfg.Trace, "trace", false, "Enable trace logs")

  flag.Parse()

  if cfg.PrintPayload != "" && cfg.Role != device.RolePrinter {
    fmt.Fprintln(os.Stderr, "Error: -print requires -role printer!")
    flag.Usage()
    os.Exit(1)
  }

  return cfg
}

func defaultStorePath() string {
  home, err := os.UserHomeDir()

  if err != nil {
    return "scalelink-store.json"
  }

  return home + "/.scalelink/store.json"
}

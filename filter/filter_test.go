package filter_test

import (
  "testing"

  "github.com/mkulima/scalelink/device"
  "github.com/mkulima/scalelink/filter"
)

func TestScaleLikely_ByName(t *testing.T) {
  c := filter.NewClassifier(nil)

  dev := device.Device{
    ID: "aa:bb:cc:dd:ee:ff",
    Address: "AA:BB:CC:DD:EE:FF",
    Name: "HC-05 Scale",
    Transport: device.TransportClassic,
  }

  if !c.ScaleLikely(dev) {
    t.Fatalf("ScaleLikely(%v): got false, wanted true", dev)
  }
}

func TestScaleLikely_RejectsUnrelatedDevice(t *testing.T) {
  c := filter.NewClassifier(nil)

  dev := device.Device{
    ID: "d4:61:9d:11:22:33",
    Address: "D4:61:9D:11:22:33",
    Name: "iPhone",
    Transport: device.TransportBLE,
  }

  if c.ScaleLikely(dev) {
    t.Fatalf("ScaleLikely(%v): got true, wanted false", dev)
  }
}

func TestScaleLikely_ByAddressPrefix(t *testing.T) {
  c := filter.NewClassifier(nil)

  dev := device.Device{
    ID: "98:d3:31:aa:bb:cc",
    Address: "98:D3:31:AA:BB:CC",
    Name: "SomethingElse",
    Transport: device.TransportClassic,
  }

  if !c.ScaleLikely(dev) {
    t.Fatalf("ScaleLikely(%v): got false, wanted true", dev)
  }
}

func TestScaleLikely_UnnamedDeviceNeedsAddressPattern(t *testing.T) {
  c := filter.NewClassifier(nil)

  unnamed := device.Device{
    ID: "c0:ff:ee:00:11:22",
    Address: "C0:FF:EE:00:11:22",
    Transport: device.TransportBLE,
  }

  if c.ScaleLikely(unnamed) {
    t.Fatalf("ScaleLikely(%v): got true, wanted false for unnamed device", unnamed)
  }

  patterned := device.Device{
    ID: "00:21:13:44:55:66",
    Address: "00:21:13:44:55:66",
    Name: "Unknown",
    Transport: device.TransportClassic,
  }

  if !c.ScaleLikely(patterned) {
    t.Fatalf("ScaleLikely(%v): got false, wanted true via address pattern", patterned)
  }
}

func TestScaleLikely_ManualApproval(t *testing.T) {
  c := filter.NewClassifier([]string{"DE:AD:BE:EF:00:01"})

  dev := device.Device{
    ID: "de:ad:be:ef:00:01",
    Address: "DE:AD:BE:EF:00:01",
    Name: "NoKeywordHere",
    Transport: device.TransportClassic,
  }

  if !c.ScaleLikely(dev) {
    t.Fatalf("ScaleLikely(%v): got false, wanted true via allow-list", dev)
  }

  c2 := filter.NewClassifier(nil)
  c2.Approve("DE:AD:BE:EF:00:01")

  if !c2.ScaleLikely(dev) {
    t.Fatalf("ScaleLikely(%v): got false after Approve, wanted true", dev)
  }
}

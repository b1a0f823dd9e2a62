package store_test

import (
  "path/filepath"
  "testing"

  "github.com/mkulima/scalelink/device"
  "github.com/mkulima/scalelink/store"
)

func openTestStore(t *testing.T) *store.FileStore {
  t.Helper()

  s, err := store.OpenFile(filepath.Join(t.TempDir(), "scalelink.json"))

  if err != nil {
    t.Fatalf("OpenFile: %v", err)
  }

  return s
}

func TestLoadLast_MissingKey(t *testing.T) {
  s := openTestStore(t)

  record, err := store.LoadLast(s, device.RoleScale)

  if err != nil {
    t.Fatalf("LoadLast: got error %v, wanted nil", err)
  }

  if record != nil {
    t.Fatalf("LoadLast: got %+v, wanted nil for missing key", record)
  }
}

func TestSaveLast_RoundTrip(t *testing.T) {
  s := openTestStore(t)

  dev := device.Device{
    ID: "98:d3:31:aa:bb:cc",
    Address: "98:D3:31:AA:BB:CC",
    Name: "XH2507",
    Transport: device.TransportClassic,
  }

  if err := store.SaveLast(s, device.RoleScale, dev); err != nil {
    t.Fatalf("SaveLast: %v", err)
  }

  record, err := store.LoadLast(s, device.RoleScale)

  if err != nil {
    t.Fatalf("LoadLast: %v", err)
  }

  if record == nil {
    t.Fatal("LoadLast: got nil, wanted a record")
  }

  if record.ID != dev.ID || record.Address != dev.Address || record.Name != dev.Name {
    t.Fatalf("LoadLast: got %+v, wanted fields of %v", record, dev)
  }

  if record.Type != "classic" {
    t.Fatalf("LoadLast: got type %q, wanted %q", record.Type, "classic")
  }

  transport, err := record.Transport()

  if err != nil || transport != device.TransportClassic {
    t.Fatalf("Record.Transport: got (%v, %v), wanted (Classic, nil)", transport, err)
  }

  if record.SavedAt.IsZero() {
    t.Fatal("LoadLast: SavedAt is zero")
  }
}

func TestFileStore_RolesDoNotCollide(t *testing.T) {
  s := openTestStore(t)

  scale := device.Device{ID: "11:11", Address: "11:11", Name: "scale", Transport: device.TransportBLE}
  printer := device.Device{ID: "22:22", Address: "22:22", Name: "RPP02N", Transport: device.TransportClassic}

  if err := store.SaveLast(s, device.RoleScale, scale); err != nil {
    t.Fatalf("SaveLast(scale): %v", err)
  }

  if err := store.SaveLast(s, device.RolePrinter, printer); err != nil {
    t.Fatalf("SaveLast(printer): %v", err)
  }

  got, err := store.LoadLast(s, device.RoleScale)

  if err != nil || got == nil || got.ID != scale.ID {
    t.Fatalf("LoadLast(scale): got (%+v, %v), wanted scale record", got, err)
  }
}

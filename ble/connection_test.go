package ble

import (
  "testing"

  "github.com/go-ble/ble"
)

func service(uuid uint16, chars ...*ble.Characteristic) *ble.Service {
  return &ble.Service{
    UUID: ble.UUID16(uuid),
    Characteristics: chars,
  }
}

func char(uuid uint16, prop ble.Property) *ble.Characteristic {
  return &ble.Characteristic{
    UUID: ble.UUID16(uuid),
    Property: prop,
  }
}

func TestSelectCharacteristic_PrefersWeightCharacteristic(t *testing.T) {
  profile := &ble.Profile{
    Services: []*ble.Service{
      service(0x180f, char(0x2a19, ble.CharRead)),
      service(weightServiceUUID, char(weightCharUUID, ble.CharNotify|ble.CharWrite)),
    },
  }

  got, mode, ok := selectCharacteristic(profile)

  if !ok {
    t.Fatal("selectCharacteristic: got no characteristic")
  }

  if !got.UUID.Equal(ble.UUID16(weightCharUUID)) {
    t.Fatalf("selectCharacteristic: got %v, wanted weight characteristic", got.UUID)
  }

  if mode != deliveryNotify {
    t.Fatalf("selectCharacteristic: got mode %v, wanted Notify", mode)
  }
}

func TestSelectCharacteristic_SkipsHousekeepingServices(t *testing.T) {
  profile := &ble.Profile{
    Services: []*ble.Service{
      service(gapServiceUUID, char(0x2a00, ble.CharRead)),
      service(gattServiceUUID, char(0x2a05, ble.CharRead)),
      service(0xfff0, char(0xfff1, ble.CharRead)),
    },
  }

  got, mode, ok := selectCharacteristic(profile)

  if !ok {
    t.Fatal("selectCharacteristic: got no characteristic")
  }

  if !got.UUID.Equal(ble.UUID16(0xfff1)) {
    t.Fatalf("selectCharacteristic: got %v, wanted 0xfff1 (housekeeping skipped)", got.UUID)
  }

  if mode != deliveryPoll {
    t.Fatalf("selectCharacteristic: got mode %v, wanted Poll", mode)
  }
}

func TestSelectCharacteristic_NotifyPreferredOverRead(t *testing.T) {
  profile := &ble.Profile{
    Services: []*ble.Service{
      service(0xfff0, char(0xfff1, ble.CharRead), char(0xfff4, ble.CharNotify)),
    },
  }

  got, mode, ok := selectCharacteristic(profile)

  if !ok {
    t.Fatal("selectCharacteristic: got no characteristic")
  }

  if !got.UUID.Equal(ble.UUID16(0xfff4)) || mode != deliveryNotify {
    t.Fatalf("selectCharacteristic: got (%v, %v), wanted notifiable 0xfff4", got.UUID, mode)
  }
}

func TestSelectCharacteristic_NothingUsable(t *testing.T) {
  profile := &ble.Profile{
    Services: []*ble.Service{
      service(gapServiceUUID, char(0x2a00, ble.CharRead)),
      service(0xfff0, char(0xfff2, ble.CharWrite)),
    },
  }

  if got, _, ok := selectCharacteristic(profile); ok {
    t.Fatalf("selectCharacteristic: got %v, wanted none", got.UUID)
  }
}

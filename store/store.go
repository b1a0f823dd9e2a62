// Package store is the persistence bridge: a role-keyed get/set of small JSON
// records, plus the "last known device" record layered on top. The bridge is
// deliberately narrow so the surrounding app can substitute whatever
// key-value storage it already carries.
package store

import (
  "encoding/json"
  "time"

  "github.com/mkulima/scalelink/device"
  "github.com/pkg/errors"
)

// Store is the minimal key-value contract consumed by the orchestrator.
// Get returns (nil, nil) when the key is absent. Writes to the same key are
// last-write-wins.
type Store interface {
  Get(key string) ([]byte, error)
  Set(key string, value []byte) error
}

// Record is the persisted subset of a device, written on every successful
// connection and read once at startup to drive auto-reconnect. Records are
// never deleted automatically; a stale record pointing at unreachable
// hardware is expected and degrades to "no auto-connect".
type Record struct {
  ID string `json:"id"`
  Address string `json:"address"`
  Name string `json:"name"`
  Type string `json:"type"`
  SavedAt time.Time `json:"saved_at"`
}

func (r Record) Transport() (device.Transport, error) {
  return device.TransportFromTag(r.Type)
}

// SaveLast overwrites the last-device record for role.
func SaveLast(s Store, role device.Role, dev device.Device) error {
  record := Record{
    ID: dev.ID,
    Address: dev.Address,
    Name: dev.Name,
    Type: dev.Transport.Tag(),
    SavedAt: time.Now().UTC(),
  }

  data, err := json.Marshal(record)

  if err != nil {
    return errors.Wrap(err, "failed to encode last-device record")
  }

  return s.Set(role.StorageKey(), data)
}

// LoadLast returns the last-device record for role, or (nil, nil) when none
// was ever saved.
func LoadLast(s Store, role device.Role) (*Record, error) {
  data, err := s.Get(role.StorageKey())

  if err != nil {
    return nil, err
  }

  if data == nil {
    return nil, nil
  }

  var record Record

  if err := json.Unmarshal(data, &record); err != nil {
    return nil, errors.Wrap(err, "failed to decode last-device record")
  }

  return &record, nil
}

package store

import (
  "encoding/json"
  "os"
  "path/filepath"
  "sync"

  "github.com/pkg/errors"
)

// FileStore keeps all keys in a single JSON file, rewritten atomically on
// every Set. Two keys and a write per connection make anything heavier than
// this pointless.
type FileStore struct {
  path string

  mu sync.Mutex
  entries map[string]json.RawMessage
}

func OpenFile(path string) (*FileStore, error) {
  s := &FileStore{
    path: path,
    entries: make(map[string]json.RawMessage),
  }

  data, err := os.ReadFile(path)

  if os.IsNotExist(err) {
    return s, nil
  }

  if err != nil {
    return nil, errors.Wrapf(err, "failed to open store at %q", path)
  }

  if len(data) > 0 {
    if err := json.Unmarshal(data, &s.entries); err != nil {
      return nil, errors.Wrapf(err, "store at %q is corrupted", path)
    }
  }

  return s, nil
}

func (s *FileStore) Get(key string) ([]byte, error) {
  s.mu.Lock()
  defer s.mu.Unlock()

  value, ok := s.entries[key]

  if !ok {
    return nil, nil
  }

  return value, nil
}

func (s *FileStore) Set(key string, value []byte) error {
  s.mu.Lock()
  defer s.mu.Unlock()

  s.entries[key] = json.RawMessage(value)

  return s.flushLocked()
}

func (s *FileStore) flushLocked() error {
  data, err := json.MarshalIndent(s.entries, "", "  ")

  if err != nil {
    return errors.Wrap(err, "failed to encode store")
  }

  tmp := s.path + ".tmp"

  if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
    return errors.Wrap(err, "failed to create store directory")
  }

  if err := os.WriteFile(tmp, data, 0o600); err != nil {
    return errors.Wrap(err, "failed to write store")
  }

  return errors.Wrap(os.Rename(tmp, s.path), "failed to replace store")
}

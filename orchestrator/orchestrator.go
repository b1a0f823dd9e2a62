// Package orchestrator owns the per-role connection lifecycle: scan, select,
// connect with BLE-first transport fallback, stream readings, disconnect,
// and auto-reconnect against the persisted last device.
package orchestrator

import (
  "context"
  "strconv"
  "strings"
  "sync"
  "time"

  "github.com/google/uuid"
  "github.com/pkg/errors"
  "github.com/rs/zerolog/log"

  "github.com/mkulima/scalelink/device"
  "github.com/mkulima/scalelink/frame"
  "github.com/mkulima/scalelink/registry"
  "github.com/mkulima/scalelink/retry"
  "github.com/mkulima/scalelink/store"
)

type State uint8

const (
  StateIdle State = iota
  StateScanning
  StateSelecting
  StateConnecting
  StateConnected
  StateFailed
)

func (s State) String() string {
  switch s {
  case StateIdle:
    return "Idle"
  case StateScanning:
    return "Scanning"
  case StateSelecting:
    return "Selecting"
  case StateConnecting:
    return "Connecting"
  case StateConnected:
    return "Connected"
  case StateFailed:
    return "Failed"
  default:
    panic("unknown State value: " + strconv.Itoa(int(s)))
  }
}

const (
  DefaultPrintTimeout = 30 * time.Second

  // How long AutoReconnect waits for scan results to settle.
  defaultScanSettleTimeout = 18 * time.Second
  scanSettlePollInterval = 250 * time.Millisecond

  // A device visible in scan results can still refuse the first connect
  // while its radio settles; auto-reconnect retries with a doubling delay.
  reconnectAttempts = 3
  defaultReconnectDelay = time.Second
)

// Printer selection happens by product family name, not by the scale filter.
var printerNameMarkers = []string{"rpp", "printer", "pos"}

// Orchestrator is the state machine for one role. All session-scoped flags
// (manual disconnect, auto-reconnect-already-ran) live on the instance;
// nothing is package-global.
type Orchestrator struct {
  role device.Role
  registry *registry.Registry
  ble device.Driver
  classic device.Driver
  store store.Store

  PrintTimeout time.Duration
  ScanSettleTimeout time.Duration
  ReconnectDelay time.Duration

  // opMu serializes connect/disconnect/reconnect operations for the role,
  // guaranteeing at most one live transport handle. mu guards the snapshot
  // state observers read.
  opMu sync.Mutex
  mu sync.Mutex

  state State
  conn device.Conn
  session string
  lastReading device.Reading
  hasReading bool
  connectionFailed bool
  manualDisconnect bool
  autoReconnectRan bool
}

// New wires an orchestrator. Either driver may be nil (a scale-only
// deployment passes no printer-capable classic driver and vice versa); st may
// be nil to disable last-device persistence.
func New(
  role device.Role,
  reg *registry.Registry,
  bleDriver, classicDriver device.Driver,
  st store.Store,
) *Orchestrator {
  return &Orchestrator{
    role: role,
    registry: reg,
    ble: bleDriver,
    classic: classicDriver,
    store: st,
    PrintTimeout: DefaultPrintTimeout,
    ScanSettleTimeout: defaultScanSettleTimeout,
    ReconnectDelay: defaultReconnectDelay,
  }
}

func (o *Orchestrator) Role() device.Role {
  return o.role
}

// ScanForDevices runs one scan cycle for the role.
func (o *Orchestrator) ScanForDevices(ctx context.Context) error {
  o.setState(StateScanning)

  err := o.registry.Scan(ctx, o.role)

  o.mu.Lock()
  if o.state == StateScanning {
    if o.conn != nil {
      o.state = StateConnected
    } else {
      o.state = StateIdle
    }
  }
  o.mu.Unlock()

  return err
}

// ConnectToDevice connects to the device with the given id from the current
// scan results. When already connected to that very device over a live link,
// it short-circuits. Otherwise any previous handle for the role is torn down
// first, then BLE is tried whenever the id appears in the BLE result set,
// with Classic as the fallback - BLE failure still triggers the Classic
// attempt, but BLE is never skipped when both transports saw the device.
func (o *Orchestrator) ConnectToDevice(ctx context.Context, id string) (*device.Device, error) {
  o.opMu.Lock()
  defer o.opMu.Unlock()

  return o.connectTo(ctx, id)
}

func (o *Orchestrator) connectTo(ctx context.Context, id string) (*device.Device, error) {
  key := device.Device{ID: id}.Key()

  o.mu.Lock()
  if o.conn != nil && o.conn.Device().Key() == key && o.conn.Alive() {
    dev := o.conn.Device()
    o.mu.Unlock()

    log.Debug().
      Stringer("Role", o.role).
      Stringer("Device", dev).
      Msg("orchestrator: already connected, nothing to do")

    return &dev, nil
  }
  o.mu.Unlock()

  o.teardown()
  o.setState(StateConnecting)

  var bleErr error

  if o.ble != nil {
    if dev, ok := o.registry.LookupOn(id, device.TransportBLE); ok {
      connected, err := o.attempt(ctx, o.ble, dev)

      if err == nil {
        return connected, nil
      }

      bleErr = err

      log.Warn().
        Stringer("Role", o.role).
        Stringer("Device", dev).
        Err(err).
        Msg("orchestrator: BLE connect failed, falling back to Classic")
    }
  }

  if o.classic != nil {
    if dev, ok := o.registry.LookupOn(id, device.TransportClassic); ok {
      connected, err := o.attempt(ctx, o.classic, dev)

      if err == nil {
        return connected, nil
      }

      o.fail()
      return nil, err
    }
  }

  if bleErr != nil {
    o.fail()
    return nil, bleErr
  }

  o.fail()

  return nil, errors.Wrapf(device.ErrDeviceNotFound, "id %q - rescan and retry", id)
}

// attempt runs one driver connect and, on success, installs the connection.
func (o *Orchestrator) attempt(
  ctx context.Context,
  driver device.Driver,
  dev device.Device,
) (*device.Device, error) {
  session := uuid.NewString()

  log.Info().
    Stringer("Role", o.role).
    Stringer("Device", dev).
    Str("Session", session).
    Msg("orchestrator: connecting")

  conn, err := driver.Connect(ctx, o.role, dev)

  if err != nil {
    return nil, err
  }

  o.mu.Lock()
  o.conn = conn
  o.session = session
  o.state = StateConnected
  o.connectionFailed = false
  o.mu.Unlock()

  if o.store != nil {
    if err := store.SaveLast(o.store, o.role, dev); err != nil {
      log.Error().
        Stringer("Role", o.role).
        Err(err).
        Msg("orchestrator: failed to persist last device")
    }
  }

  go o.pump(conn, session)

  log.Info().
    Stringer("Role", o.role).
    Stringer("Device", dev).
    Str("Session", session).
    Msg("orchestrator: connected")

  return &dev, nil
}

// pump drains frames from the connection, parsing each into a reading.
// Malformed frames are logged and ignored - a single bad frame must not
// interrupt a continuous stream. The pump ends when the connection's frame
// channel closes (link drop or teardown).
func (o *Orchestrator) pump(conn device.Conn, session string) {
  source := strings.ToLower(conn.Device().Transport.String())

  for raw := range conn.Frames() {
    reading, ok := frame.Parse(raw, source)

    if !ok {
      continue
    }

    o.mu.Lock()
    if o.session == session {
      o.lastReading = reading
      o.hasReading = true
    }
    o.mu.Unlock()

    log.Debug().
      Stringer("Role", o.role).
      Stringer("Reading", reading).
      Str("Session", session).
      Msg("orchestrator: new reading")
  }

  // link ended without an explicit Disconnect: clear connected state.
  o.mu.Lock()
  if o.session == session && o.conn == conn {
    o.conn = nil
    o.state = StateIdle
  }
  o.mu.Unlock()
}

// AutoReconnect restores the persisted last device for the role. It runs at
// most once per session, is suppressed after a manual disconnect, and only
// attempts a connect when the previously-used transport's scan results
// actually contain the device - never blindly against absent hardware. The
// connect itself is retried with a doubling delay.
func (o *Orchestrator) AutoReconnect(ctx context.Context) error {
  o.opMu.Lock()
  defer o.opMu.Unlock()

  o.mu.Lock()
  skip := o.autoReconnectRan || o.manualDisconnect || o.conn != nil
  o.autoReconnectRan = true
  o.mu.Unlock()

  if skip {
    log.Debug().Stringer("Role", o.role).Msg("orchestrator: auto-reconnect skipped")
    return nil
  }

  if o.store == nil {
    return nil
  }

  record, err := store.LoadLast(o.store, o.role)

  if err != nil {
    return err
  }

  if record == nil {
    log.Debug().Stringer("Role", o.role).Msg("orchestrator: no persisted device to reconnect to")
    return nil
  }

  transport, err := record.Transport()

  if err != nil {
    log.Warn().
      Stringer("Role", o.role).
      Str("Type", record.Type).
      Msg("orchestrator: persisted record has an unknown transport, ignoring it")
    return nil
  }

  if err := o.settleScan(ctx); err != nil {
    return err
  }

  o.setState(StateSelecting)

  dev, ok := o.registry.LookupOn(record.ID, transport)

  if !ok {
    // the record is stale or the device is simply off. expected; degrade to
    // "no auto-connect occurred".
    log.Info().
      Stringer("Role", o.role).
      Str("ID", record.ID).
      Stringer("Transport", transport).
      Msg("orchestrator: persisted device not visible in scan results, skipping auto-reconnect")

    o.setState(StateIdle)
    return nil
  }

  return retry.Backoff(ctx, reconnectAttempts, o.ReconnectDelay, func() error {
    _, connectErr := o.connectTo(ctx, dev.ID)
    return connectErr
  })
}

// settleScan waits for an in-flight scan to finish, triggering a fresh one
// when nothing is scanning and the list is empty.
func (o *Orchestrator) settleScan(ctx context.Context) error {
  if !o.registry.Scanning() && len(o.registry.Devices()) == 0 {
    if err := o.ScanForDevices(ctx); err != nil {
      return err
    }
  }

  deadline := time.Now().Add(o.ScanSettleTimeout)

  for o.registry.Scanning() {
    if time.Now().After(deadline) {
      break
    }

    select {
    case <-ctx.Done():
      return ctx.Err()
    case <-time.After(scanSettlePollInterval):
    }
  }

  return nil
}

// Disconnect tears down the active connection, if any. Idempotent: calling it
// with nothing connected changes nothing and never fails. The manual intent
// is sticky for the session and suppresses auto-reconnect.
func (o *Orchestrator) Disconnect(ctx context.Context) error {
  o.opMu.Lock()
  defer o.opMu.Unlock()

  o.mu.Lock()
  o.manualDisconnect = true
  o.mu.Unlock()

  o.teardown()
  o.setState(StateIdle)

  return nil
}

// teardown releases the current transport handle, if any.
func (o *Orchestrator) teardown() {
  o.mu.Lock()
  conn := o.conn
  session := o.session
  o.conn = nil
  o.session = ""
  o.mu.Unlock()

  if conn == nil {
    return
  }

  log.Debug().
    Stringer("Role", o.role).
    Stringer("Device", conn.Device()).
    Str("Session", session).
    Msg("orchestrator: releasing transport handle")

  if err := conn.Close(); err != nil {
    log.Warn().Stringer("Role", o.role).Err(err).Msg("orchestrator: close failed")
  }
}

func (o *Orchestrator) setState(s State) {
  o.mu.Lock()
  o.state = s
  o.mu.Unlock()
}

func (o *Orchestrator) fail() {
  o.mu.Lock()
  o.state = StateFailed
  o.connectionFailed = true
  o.mu.Unlock()
}

// Observable snapshot accessors.

func (o *Orchestrator) State() State {
  o.mu.Lock()
  defer o.mu.Unlock()

  return o.state
}

func (o *Orchestrator) Devices() []device.Device {
  return o.registry.Devices()
}

func (o *Orchestrator) ConnectedDevice() *device.Device {
  o.mu.Lock()
  defer o.mu.Unlock()

  if o.conn == nil {
    return nil
  }

  dev := o.conn.Device()
  return &dev
}

func (o *Orchestrator) IsScanning() bool {
  return o.registry.Scanning()
}

func (o *Orchestrator) IsConnecting() bool {
  return o.State() == StateConnecting
}

// LastReading returns the most recent parsed weight, if any arrived yet.
func (o *Orchestrator) LastReading() (device.Reading, bool) {
  o.mu.Lock()
  defer o.mu.Unlock()

  return o.lastReading, o.hasReading
}

func (o *Orchestrator) ConnectionFailed() bool {
  o.mu.Lock()
  defer o.mu.Unlock()

  return o.connectionFailed
}

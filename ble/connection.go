package ble

import (
  "context"
  "sync"
  "time"

  "github.com/go-ble/ble"
  "github.com/pkg/errors"
  "github.com/prometheus/client_golang/prometheus"
  "github.com/rs/zerolog/log"

  "github.com/mkulima/scalelink/device"
)

var (
  successfulConnectionsCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "scalelink_ble_successful_connections_total",
  })
  failedConnectionsCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "scalelink_ble_failed_connections_total",
  })
  disconnectsCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "scalelink_ble_disconnections_total",
  })
  droppedFramesCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "scalelink_ble_dropped_frames_total",
  })
)

const (
  // Vendor scales expose their data channel on the HM-10 style serial
  // service.
  weightServiceUUID = 0xffe0
  weightCharUUID = 0xffe1

  // GAP and GATT housekeeping services advertise readable characteristics
  // (device name and friends) that would false-trigger the fallback search.
  gapServiceUUID = 0x1800
  gattServiceUUID = 0x1801

  pollInterval = 250 * time.Millisecond
)

type deliveryMode uint8

const (
  deliveryNotify deliveryMode = iota
  deliveryPoll
)

func (m deliveryMode) String() string {
  if m == deliveryNotify {
    return "Notify"
  }

  return "Poll"
}

// Connect opens the link, negotiates a data characteristic and starts the
// frame delivery (notification subscription, or a fixed-interval poll when
// the characteristic is only readable). The caller controls retries; no
// auto-reconnect happens here. On any failure the link is released before
// returning - no dangling subscriptions.
func (h *Handle) Connect(ctx context.Context, _ device.Role, dev device.Device) (device.Conn, error) {
  client, err := ble.Dial(ctx, ble.NewAddr(dev.Address))

  if err != nil {
    failedConnectionsCounter.Inc()
    return nil, errors.Wrapf(device.ErrTransport, "failed to connect to %v: %v", dev.Address, err)
  }

  profile, err := client.DiscoverProfile(true)

  if err != nil {
    failedConnectionsCounter.Inc()
    client.CancelConnection()
    return nil, errors.Wrapf(device.ErrTransport, "failed to discover profile: %v", err)
  }

  char, mode, ok := selectCharacteristic(profile)

  if !ok {
    // fail closed: a link with no data path is released rather than kept
    // around in a "connected but silent" state.
    failedConnectionsCounter.Inc()
    client.CancelConnection()
    return nil, errors.Wrapf(device.ErrNoCompatibleCharacteristic,
      "device %v exposes no notifiable or readable data characteristic", dev.Address)
  }

  log.Debug().
    Stringer("Device", dev).
    Str("Characteristic", char.UUID.String()).
    Stringer("Mode", mode).
    Msg("ble: negotiated data characteristic")

  c := &conn{
    dev: dev,
    client: client,
    char: char,
    raw: make(chan []byte, 16),
    frames: make(chan []byte),
    done: make(chan struct{}),
  }

  if mode == deliveryNotify {
    err = client.Subscribe(char, false, c.onNotification)

    if err != nil {
      failedConnectionsCounter.Inc()
      client.CancelConnection()
      return nil, errors.Wrapf(device.ErrTransport, "failed to subscribe: %v", err)
    }

    c.subscribed = true
  } else {
    go c.poll()
  }

  go c.pump()
  go c.watchLink()

  successfulConnectionsCounter.Inc()

  return c, nil
}

// selectCharacteristic picks the data channel: the designated weight
// characteristic if present, otherwise the first notifiable (preferred) or
// readable (fallback) characteristic outside the housekeeping services.
func selectCharacteristic(p *ble.Profile) (*ble.Characteristic, deliveryMode, bool) {
  var fallbackNotify, fallbackRead *ble.Characteristic

  for _, svc := range p.Services {
    if svc.UUID.Equal(ble.UUID16(gapServiceUUID)) || svc.UUID.Equal(ble.UUID16(gattServiceUUID)) {
      continue
    }

    isWeightService := svc.UUID.Equal(ble.UUID16(weightServiceUUID))

    for _, char := range svc.Characteristics {
      if isWeightService && char.UUID.Equal(ble.UUID16(weightCharUUID)) {
        mode := deliveryPoll

        if char.Property & ble.CharNotify != 0 {
          mode = deliveryNotify
        }

        return char, mode, true
      }

      if char.Property & ble.CharNotify != 0 && fallbackNotify == nil {
        fallbackNotify = char
      }

      if char.Property & ble.CharRead != 0 && fallbackRead == nil {
        fallbackRead = char
      }
    }
  }

  if fallbackNotify != nil {
    return fallbackNotify, deliveryNotify, true
  }

  if fallbackRead != nil {
    return fallbackRead, deliveryPoll, true
  }

  return nil, 0, false
}

type conn struct {
  dev device.Device
  client ble.Client
  char *ble.Characteristic
  subscribed bool

  // raw takes frames from the notification handler or the poll loop; pump
  // forwards them to frames and owns its closing. The handler never touches
  // frames directly so a concurrent Close can't make it send on a closed
  // channel.
  raw chan []byte
  frames chan []byte

  done chan struct{}
  closeOnce sync.Once
}

func (c *conn) Device() device.Device {
  return c.dev
}

func (c *conn) Frames() <-chan []byte {
  return c.frames
}

func (c *conn) Alive() bool {
  select {
  case <-c.client.Disconnected():
    return false
  case <-c.done:
    return false
  default:
    return true
  }
}

func (c *conn) Write(p []byte) error {
  if c.char.Property & (ble.CharWrite | ble.CharWriteNR) == 0 {
    return errors.Wrap(device.ErrTransport, "negotiated characteristic is not writable")
  }

  noRsp := c.char.Property & ble.CharWrite == 0

  err := c.client.WriteCharacteristic(c.char, p, noRsp)

  if err != nil {
    return errors.Wrapf(device.ErrTransport, "failed to write characteristic: %v", err)
  }

  return nil
}

func (c *conn) Close() error {
  c.closeOnce.Do(func() {
    close(c.done)

    if c.subscribed {
      if err := c.client.ClearSubscriptions(); err != nil {
        log.Debug().Err(err).Msg("ble: failed to clear subscriptions on close")
      }
    }

    if err := c.client.CancelConnection(); err != nil {
      log.Debug().Err(err).Msg("ble: failed to cancel connection on close")
    }

    disconnectsCounter.Inc()
  })

  return nil
}

func (c *conn) onNotification(req []byte) {
  buf := make([]byte, len(req))
  copy(buf, req)

  select {
  case c.raw <- buf:
  case <-c.done:
  default:
    // a stuck consumer must not block the notification callback.
    droppedFramesCounter.Inc()
  }
}

// poll services characteristics that are readable but not notifiable.
func (c *conn) poll() {
  ticker := time.NewTicker(pollInterval)
  defer ticker.Stop()

  for {
    select {
    case <-c.done:
      return
    case <-c.client.Disconnected():
      return
    case <-ticker.C:
    }

    data, err := c.client.ReadCharacteristic(c.char)

    if err != nil {
      // a read failing because the link dropped ends the poll; anything
      // else is a transient read hiccup.
      if !c.Alive() {
        log.Debug().
          Stringer("Device", c.dev).
          Err(err).
          Msg("ble: poll ended, link is down")
        return
      }

      log.Trace().Err(err).Msg("ble: characteristic read failed, continuing poll")
      continue
    }

    c.onNotification(data)
  }
}

func (c *conn) pump() {
  defer close(c.frames)

  for {
    select {
    case <-c.done:
      return
    case buf := <-c.raw:
      select {
      case c.frames <- buf:
      case <-c.done:
        return
      }
    }
  }
}

// watchLink folds an unsolicited link drop into Close so resources are
// released exactly once regardless of who noticed first.
func (c *conn) watchLink() {
  select {
  case <-c.client.Disconnected():
    log.Debug().Stringer("Device", c.dev).Msg("ble: link closed by peer")
    c.Close()
  case <-c.done:
  }
}

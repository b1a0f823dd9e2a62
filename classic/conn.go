package classic

import (
  "context"
  "fmt"
  "io"
  "os"
  "strings"
  "sync"
  "time"

  "github.com/pkg/errors"
  "github.com/rs/zerolog/log"
  "golang.org/x/sys/unix"

  "github.com/mkulima/scalelink/device"
  "github.com/mkulima/scalelink/retry"
)

// Passive scales often stream nothing until they are poked; these are written
// 200ms apart after connecting. Which one works depends on the firmware.
var wakeCommands = []string{"\r\n", "W", "P"}

const wakeCommandSpacing = 200 * time.Millisecond

// dialRFCOMM opens the socket, retrying a few times to absorb slow
// handshakes from cheap serial bridges. Giving up, whether by attempt
// exhaustion or the caller's context, is a connection timeout.
func dialRFCOMM(ctx context.Context, dev device.Device) (*conn, error) {
  addr, err := parseAddress(dev.Address)

  if err != nil {
    return nil, err
  }

  var fd int

  err = retry.Do(ctx, connectAttempts, connectAttemptDelay, func() error {
    var attemptErr error
    fd, attemptErr = connectSocket(addr)

    if attemptErr != nil {
      log.Trace().
        Str("Addr", dev.Address).
        Err(attemptErr).
        Msg("classic: socket connect attempt failed")
    }

    return attemptErr
  })

  if err != nil {
    return nil, errors.Wrapf(device.ErrConnectionTimeout,
      "gave up connecting to %v: %v", dev.Address, err)
  }

  return newConn(dev, fd)
}

// connectSocket performs one bounded non-blocking connect. A blocking
// connect would be at the mercy of the kernel's RFCOMM timeout, which runs
// far past our attempt budget on absent hardware.
func connectSocket(addr [6]byte) (int, error) {
  fd, err := unix.Socket(
    unix.AF_BLUETOOTH,
    unix.SOCK_STREAM|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK,
    unix.BTPROTO_RFCOMM,
  )

  if err != nil {
    return -1, err
  }

  err = unix.Connect(fd, &unix.SockaddrRFCOMM{
    Addr: addr,
    Channel: defaultChannel,
  })

  if err == unix.EINPROGRESS {
    err = awaitConnect(fd, connectPollWindow)
  }

  if err != nil {
    unix.Close(fd)
    return -1, err
  }

  return fd, nil
}

// awaitConnect waits for an in-progress connect to resolve, then reads
// SO_ERROR to learn the outcome.
func awaitConnect(fd int, window time.Duration) error {
  deadline := time.Now().Add(window)

  for {
    remaining := time.Until(deadline)

    if remaining <= 0 {
      return unix.ETIMEDOUT
    }

    fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}

    n, err := unix.Poll(fds, int(remaining.Milliseconds())+1)

    if err == unix.EINTR {
      continue
    }

    if err != nil {
      return err
    }

    if n == 0 {
      return unix.ETIMEDOUT
    }

    soErr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)

    if err != nil {
      return err
    }

    if soErr != 0 {
      return unix.Errno(soErr)
    }

    return nil
  }
}

// newConn wraps a connected socket and starts the reader. The fd must be
// non-blocking before os.NewFile sees it: only then does the runtime poller
// own it, which is what lets Close interrupt a read blocked on a silent
// device instead of leaking the socket and the reader goroutine.
func newConn(dev device.Device, fd int) (*conn, error) {
  if err := unix.SetNonblock(fd, true); err != nil {
    unix.Close(fd)
    return nil, errors.Wrapf(device.ErrTransport,
      "failed to set socket for %v non-blocking: %v", dev.Address, err)
  }

  c := &conn{
    dev: dev,
    file: os.NewFile(uintptr(fd), "rfcomm:"+strings.ToLower(dev.Address)),
    frames: make(chan []byte, 16),
    done: make(chan struct{}),
  }

  go c.readLoop()

  return c, nil
}

// parseAddress converts "AA:BB:CC:DD:EE:FF" into the byte-reversed form the
// kernel sockaddr expects.
func parseAddress(address string) ([6]byte, error) {
  var out [6]byte

  parts := strings.Split(address, ":")

  if len(parts) != 6 {
    return out, errors.Wrapf(device.ErrTransport, "malformed address %q", address)
  }

  for i, part := range parts {
    var b byte

    if _, err := fmt.Sscanf(part, "%02x", &b); err != nil {
      return out, errors.Wrapf(device.ErrTransport, "malformed address %q: %v", address, err)
    }

    out[5-i] = b
  }

  return out, nil
}

type conn struct {
  dev device.Device
  file *os.File
  frames chan []byte

  done chan struct{}
  closeOnce sync.Once

  writeMu sync.Mutex
}

func (c *conn) Device() device.Device {
  return c.dev
}

func (c *conn) Frames() <-chan []byte {
  return c.frames
}

func (c *conn) Alive() bool {
  select {
  case <-c.done:
    return false
  default:
    return true
  }
}

func (c *conn) Write(p []byte) error {
  if !c.Alive() {
    return errors.Wrap(device.ErrTransport, "connection is closed")
  }

  c.writeMu.Lock()
  defer c.writeMu.Unlock()

  if _, err := c.file.Write(p); err != nil {
    return errors.Wrapf(device.ErrTransport, "failed to write: %v", err)
  }

  return nil
}

func (c *conn) Close() error {
  c.closeOnce.Do(func() {
    close(c.done)

    if err := c.file.Close(); err != nil {
      log.Debug().Err(err).Msg("classic: failed to close socket")
    }

    disconnectsCounter.Inc()
  })

  return nil
}

// readLoop is the single delivery path: a blocking socket read covers both
// pushed data and anything a poll would have surfaced. It self-terminates on
// errors that mean the device went away.
func (c *conn) readLoop() {
  defer close(c.frames)
  defer c.Close()

  buf := make([]byte, 256)

  for {
    n, err := c.file.Read(buf)

    if err != nil {
      if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) && c.Alive() {
        log.Debug().
          Stringer("Device", c.dev).
          Err(err).
          Msg("classic: read failed, closing connection")
      }

      return
    }

    if n == 0 {
      continue
    }

    frame := make([]byte, n)
    copy(frame, buf[:n])

    select {
    case c.frames <- frame:
    case <-c.done:
      return
    }
  }
}

// wakeScale writes the wake sequence with fixed spacing. Write failures are
// logged only: a scale that is already streaming may reject writes outright.
func (c *conn) wakeScale() {
  for _, cmd := range wakeCommands {
    select {
    case <-c.done:
      return
    case <-time.After(wakeCommandSpacing):
    }

    if err := c.Write([]byte(cmd)); err != nil {
      log.Trace().
        Stringer("Device", c.dev).
        Str("Command", fmt.Sprintf("%q", cmd)).
        Err(err).
        Msg("classic: wake command write failed")
    }
  }
}

package orchestrator

import (
  "context"
  "strings"
  "time"

  "github.com/pkg/errors"
  "github.com/rs/zerolog/log"

  "github.com/mkulima/scalelink/device"
)

// SelectPrinter picks a printer from the current scan results: a known
// product-family name match wins, otherwise the first device found. No
// content filter runs at the driver level for printers.
func (o *Orchestrator) SelectPrinter() (device.Device, bool) {
  devices := o.registry.Devices()

  if len(devices) == 0 {
    return device.Device{}, false
  }

  for _, dev := range devices {
    name := strings.ToLower(dev.Name)

    for _, marker := range printerNameMarkers {
      if strings.Contains(name, marker) {
        return dev, true
      }
    }
  }

  return devices[0], true
}

// PrintText transmits receipt text over the active printer connection. The
// write races a hard timeout: thermal printers wedge silently when out of
// paper, and a wedged print must not hang the caller forever. A timeout does
// not tear the connection down - the printer usually recovers.
func (o *Orchestrator) PrintText(ctx context.Context, text string) error {
  if o.role != device.RolePrinter {
    return errors.Wrapf(device.ErrTransport, "PrintText called on %v orchestrator", o.role)
  }

  o.mu.Lock()
  conn := o.conn
  session := o.session
  o.mu.Unlock()

  if conn == nil || !conn.Alive() {
    return errors.Wrap(device.ErrTransport, "no active printer connection")
  }

  done := make(chan error, 1)

  go func() {
    done <- conn.Write([]byte(text))
  }()

  select {
  case err := <-done:
    if err != nil {
      return err
    }

    log.Debug().
      Str("Session", session).
      Int("Bytes", len(text)).
      Msg("orchestrator: print payload transmitted")

    return nil
  case <-ctx.Done():
    return ctx.Err()
  case <-time.After(o.PrintTimeout):
    log.Error().
      Str("Session", session).
      Dur("Timeout", o.PrintTimeout).
      Msg("orchestrator: print did not complete in time")

    return errors.Wrapf(device.ErrPrintTimeout, "no completion within %v", o.PrintTimeout)
  }
}

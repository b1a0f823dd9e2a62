// Package retry holds the bounded retry helpers shared by the transport
// drivers. Bluetooth state transitions on real hardware are not synchronously
// observable, so both drivers need "try, wait, try again" loops with a hard
// attempt bound.
package retry

import (
  "context"
  "time"
)

// Do runs fn up to attempts times, sleeping delay between attempts. It
// returns nil as soon as fn succeeds, the last error once attempts are
// exhausted, or the context error if ctx is done first.
func Do(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
  return run(ctx, attempts, delay, 1, fn)
}

// Backoff is like Do but doubles the delay after every failed attempt.
func Backoff(ctx context.Context, attempts int, initial time.Duration, fn func() error) error {
  return run(ctx, attempts, initial, 2, fn)
}

func run(ctx context.Context, attempts int, delay time.Duration, factor int, fn func() error) error {
  if attempts < 1 {
    panic("retry called with less than one attempt")
  }

  var err error

  for i := 0; i < attempts; i++ {
    if err = fn(); err == nil {
      return nil
    }

    if i == attempts-1 {
      break
    }

    select {
    case <-ctx.Done():
      return ctx.Err()
    case <-time.After(delay):
    }

    delay *= time.Duration(factor)
  }

  return err
}

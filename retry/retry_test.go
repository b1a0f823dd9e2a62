package retry_test

import (
  "context"
  "errors"
  "testing"
  "time"

  "github.com/mkulima/scalelink/retry"
)

func TestDo_SucceedsEventually(t *testing.T) {
  calls := 0

  err := retry.Do(context.Background(), 5, time.Millisecond, func() error {
    calls++

    if calls < 3 {
      return errors.New("not yet")
    }

    return nil
  })

  if err != nil {
    t.Fatalf("Do: got error %v, wanted nil", err)
  }

  if calls != 3 {
    t.Fatalf("Do: got %d calls, wanted 3", calls)
  }
}

func TestDo_ExhaustsAttempts(t *testing.T) {
  wantErr := errors.New("always fails")
  calls := 0

  err := retry.Do(context.Background(), 5, time.Millisecond, func() error {
    calls++
    return wantErr
  })

  if !errors.Is(err, wantErr) {
    t.Fatalf("Do: got error %v, wanted %v", err, wantErr)
  }

  if calls != 5 {
    t.Fatalf("Do: got %d calls, wanted 5", calls)
  }
}

func TestBackoff_SucceedsEventually(t *testing.T) {
  calls := 0

  err := retry.Backoff(context.Background(), 4, time.Millisecond, func() error {
    calls++

    if calls < 2 {
      return errors.New("not yet")
    }

    return nil
  })

  if err != nil {
    t.Fatalf("Backoff: got error %v, wanted nil", err)
  }

  if calls != 2 {
    t.Fatalf("Backoff: got %d calls, wanted 2", calls)
  }
}

func TestBackoff_ExhaustsAttempts(t *testing.T) {
  wantErr := errors.New("always fails")
  calls := 0

  err := retry.Backoff(context.Background(), 3, time.Millisecond, func() error {
    calls++
    return wantErr
  })

  if !errors.Is(err, wantErr) {
    t.Fatalf("Backoff: got error %v, wanted %v", err, wantErr)
  }

  if calls != 3 {
    t.Fatalf("Backoff: got %d calls, wanted 3", calls)
  }
}

func TestDo_AbortsOnContextCancel(t *testing.T) {
  ctx, cancel := context.WithCancel(context.Background())
  calls := 0

  err := retry.Do(ctx, 10, 50*time.Millisecond, func() error {
    calls++
    cancel()
    return errors.New("fail")
  })

  if !errors.Is(err, context.Canceled) {
    t.Fatalf("Do: got error %v, wanted context.Canceled", err)
  }

  if calls != 1 {
    t.Fatalf("Do: got %d calls after cancel, wanted 1", calls)
  }
}

package device

import (
  "fmt"
  "time"
)

// Reading is one parsed weight value. Display carries the fixed-point
// 2-decimal rendering surfaced to callers, so repeated float formatting can't
// introduce display jitter.
type Reading struct {
  Value float64
  Display string
  At time.Time
  Source string
}

func NewReading(value float64, source string) Reading {
  return Reading{
    Value: value,
    Display: fmt.Sprintf("%.2f", value),
    At: time.Now(),
    Source: source,
  }
}

func (r Reading) String() string {
  return fmt.Sprintf("reading[%v, source=%v]", r.Display, r.Source)
}

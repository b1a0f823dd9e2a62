package metrics

import (
  "github.com/prometheus/client_golang/prometheus"

  "github.com/mkulima/scalelink/device"
)

var (
  descWeight = prometheus.NewDesc(
    "scalelink_weight_kilograms",
    "Last weight reading parsed from the connected scale.",
    []string{"role", "source"},
    nil,
  )

  descConnected = prometheus.NewDesc(
    "scalelink_connected",
    "Whether a device is currently connected for the role.",
    []string{"role"},
    nil,
  )

  descScanning = prometheus.NewDesc(
    "scalelink_scanning",
    "Whether a scan is currently running for the role.",
    []string{"role"},
    nil,
  )
)

// RoleSnapshot is one role's observable state at collection time.
type RoleSnapshot struct {
  Role device.Role
  Reading device.Reading
  HasReading bool
  Connected bool
  Scanning bool
}

type CollectFunc func() []RoleSnapshot

type collector struct {
  CollectFunc
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
  prometheus.DescribeByCollect(c, ch)
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
  for _, snapshot := range c.CollectFunc() {
    role := snapshot.Role.String()

    if snapshot.HasReading {
      weight := prometheus.MustNewConstMetric(
        descWeight,
        prometheus.GaugeValue,
        snapshot.Reading.Value,
        role,
        snapshot.Reading.Source,
      )

      ch <- prometheus.NewMetricWithTimestamp(snapshot.Reading.At, weight)
    }

    ch <- prometheus.MustNewConstMetric(
      descConnected,
      prometheus.GaugeValue,
      boolToFloat(snapshot.Connected),
      role,
    )

    ch <- prometheus.MustNewConstMetric(
      descScanning,
      prometheus.GaugeValue,
      boolToFloat(snapshot.Scanning),
      role,
    )
  }
}

func boolToFloat(b bool) float64 {
  if b {
    return 1
  }

  return 0
}

func RegisterCollector(f CollectFunc, reg prometheus.Registerer) {
  c := &collector{f}

  reg.MustRegister(c)
}

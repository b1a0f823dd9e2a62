// Package filter classifies discovered devices as likely weighing scales.
// The heuristics are deliberately loose on named devices and strict on
// unnamed ones: field units pair against cheap serial modules with generic
// names, but an unfiltered scan in a busy market drowns the list in phones
// and earbuds.
package filter

import (
  "regexp"
  "strings"

  "github.com/mkulima/scalelink/device"
  "github.com/rs/zerolog/log"
)

// Names the scale fleet advertises: product words plus the serial-bridge
// modules (HC-05/06, HM-10, JDY, BT04) most scale vendors solder in, plus the
// XH product line.
var scaleNameKeywords = []string{
  "scale",
  "weight",
  "balance",
  "digital",
  "measure",
  "hc-05",
  "hc-06",
  "hm-10",
  "jdy",
  "bt04",
  "xh",
}

// OUI prefixes of the serial-bridge modules seen in the fleet.
var scaleAddressPrefixes = []string{
  "98:d3:31",
  "98:d3:32",
  "98:d3:33",
  "00:18:e4",
  "00:21:13",
  "20:16:04",
}

var scaleAddressPattern = regexp.MustCompile(`^(98:d3|00:18|00:21|20:1[0-9])`)

// Classifier applies the scale heuristics plus a manual allow-list of
// addresses the operator has approved by hand.
type Classifier struct {
  approved map[string]bool
}

func NewClassifier(approvedAddresses []string) *Classifier {
  approved := make(map[string]bool, len(approvedAddresses))

  for _, addr := range approvedAddresses {
    approved[strings.ToLower(addr)] = true
  }

  return &Classifier{approved: approved}
}

// ScaleLikely reports whether dev should appear in a scale scan. Unnamed
// devices pass only via the address pattern or the allow-list, never by
// default. Printer discovery applies no content filter here; the orchestrator
// does its own product-family match.
func (c *Classifier) ScaleLikely(dev device.Device) bool {
  addr := strings.ToLower(dev.Address)

  if c.approved[addr] {
    return true
  }

  for _, prefix := range scaleAddressPrefixes {
    if strings.HasPrefix(addr, prefix) {
      return true
    }
  }

  if dev.Unnamed() {
    ok := scaleAddressPattern.MatchString(addr)

    if ok {
      log.Debug().
        Str("Addr", dev.Address).
        Msg("filter: accepting unnamed device by address pattern")
    }

    return ok
  }

  name := strings.ToLower(dev.Name)

  for _, keyword := range scaleNameKeywords {
    if strings.Contains(name, keyword) {
      return true
    }
  }

  return false
}

// Approve adds an address to the manual allow-list.
func (c *Classifier) Approve(address string) {
  c.approved[strings.ToLower(address)] = true
}

// Package frame decodes raw scale payloads into weight readings. Physical
// scales vary wildly in protocol: some stream ASCII ("45.23 KG", "W=12.5"),
// some push bare little-endian integers in hundredths of a kilogram, some
// push IEEE-754 floats. Parse tries each interpretation in a fixed order and
// takes the first plausible one.
package frame

import (
  "encoding/binary"
  "math"
  "regexp"
  "strconv"
  "strings"
  "unicode"
  "unicode/utf8"

  "github.com/mkulima/scalelink/device"
  "github.com/rs/zerolog/log"
)

const (
  // Raw 2-byte samples encode hundredths of a unit.
  rawScaleDivisor = 100

  rawUintMin = 0
  rawUintMax = 100000

  floatMin = -1000
  floatMax = 100000
)

var (
  // Device self-identification frames: a single alphanumeric token of
  // letters followed by a serial-number digit run (e.g. "xh2507024006").
  // These carry no measurement and must not reach the number search, which
  // would happily pick the digit run up.
  selfIdPattern = regexp.MustCompile(`^[A-Za-z]{1,6}\d{6,}$`)

  // First decimal number in a text frame, optionally prefixed with a weight
  // marker. Comma is accepted as a decimal separator.
  weightPattern = regexp.MustCompile(`(?i)(?:w\s*=|weight\s*:?)?\s*([-+]?\d+(?:[.,]\d+)?)`)
)

// Parse decodes one raw frame from either transport into a weight reading.
// It never fails loudly: the second return is false when no interpretation
// produced a plausible value, and a malformed frame in a continuous stream is
// expected noise, not an error.
func Parse(raw []byte, source string) (device.Reading, bool) {
  if len(raw) == 0 {
    return device.Reading{}, false
  }

  if text, ok := decodeText(raw); ok {
    value, ok := parseText(text, source)

    if !ok {
      return device.Reading{}, false
    }

    return device.NewReading(value, source), true
  }

  if value, ok := parseBinary(raw, source); ok {
    return device.NewReading(value, source), true
  }

  log.Debug().
    Str("Source", source).
    Hex("Raw", raw).
    Msg("frame: no decoding produced a plausible weight")

  return device.Reading{}, false
}

// decodeText reports whether the payload is a printable text frame.
func decodeText(raw []byte) (string, bool) {
  if !utf8.Valid(raw) {
    return "", false
  }

  text := strings.TrimSpace(string(raw))

  if text == "" {
    return "", false
  }

  for _, r := range text {
    if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
      return "", false
    }
  }

  return text, true
}

func parseText(text, source string) (float64, bool) {
  if selfIdPattern.MatchString(text) {
    log.Trace().
      Str("Source", source).
      Str("Text", text).
      Msg("frame: discarding device self-identification frame")

    return 0, false
  }

  match := weightPattern.FindStringSubmatch(text)

  if match == nil {
    log.Trace().
      Str("Source", source).
      Str("Text", text).
      Msg("frame: text frame contains no number")

    return 0, false
  }

  number := strings.Replace(match[1], ",", ".", 1)
  value, err := strconv.ParseFloat(number, 64)

  if err != nil {
    log.Trace().
      Str("Source", source).
      Str("Number", number).
      Err(err).
      Msg("frame: matched number failed to parse")

    return 0, false
  }

  return value, true
}

func parseBinary(raw []byte, source string) (float64, bool) {
  if len(raw) >= 2 {
    sample := binary.LittleEndian.Uint16(raw)

    if int(sample) > rawUintMin && int(sample) < rawUintMax {
      return float64(sample) / rawScaleDivisor, true
    }

    log.Trace().
      Str("Source", source).
      Uint16("Sample", sample).
      Msg("frame: 2-byte sample outside plausible range")
  }

  if len(raw) >= 4 {
    value := float64(math.Float32frombits(binary.LittleEndian.Uint32(raw)))

    if !math.IsNaN(value) && !math.IsInf(value, 0) && value >= floatMin && value <= floatMax {
      return value, true
    }

    log.Trace().
      Str("Source", source).
      Float64("Value", value).
      Msg("frame: 4-byte float sample outside plausible range")
  }

  return 0, false
}

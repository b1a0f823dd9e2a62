package frame_test

import (
  "encoding/binary"
  "math"
  "testing"

  "github.com/mkulima/scalelink/frame"
)

func TestParse_TextFrame(t *testing.T) {
  raw := []byte("45.23 KG")

  got, ok := frame.Parse(raw, "test")

  if !ok {
    t.Fatalf("Parse(%q) returned no value", raw)
  }

  if got.Value != 45.23 {
    t.Fatalf("Parse(%q): got %v, wanted 45.23", raw, got.Value)
  }

  if got.Display != "45.23" {
    t.Fatalf("Parse(%q): got display %q, wanted %q", raw, got.Display, "45.23")
  }
}

func TestParse_SelfIdentificationFrame(t *testing.T) {
  raw := []byte("xh2507024006")

  got, ok := frame.Parse(raw, "test")

  if ok {
    t.Fatalf("Parse(%q): got %v, wanted no value", raw, got)
  }
}

func TestParse_WeightMarker(t *testing.T) {
  for _, text := range []string{"W=12.5", "Weight: 12.5", "weight 12.5"} {
    got, ok := frame.Parse([]byte(text), "test")

    if !ok {
      t.Fatalf("Parse(%q) returned no value", text)
    }

    if got.Value != 12.5 {
      t.Fatalf("Parse(%q): got %v, wanted 12.5", text, got.Value)
    }
  }
}

func TestParse_CommaDecimalSeparator(t *testing.T) {
  raw := []byte("7,25 kg")

  got, ok := frame.Parse(raw, "test")

  if !ok {
    t.Fatalf("Parse(%q) returned no value", raw)
  }

  if got.Value != 7.25 {
    t.Fatalf("Parse(%q): got %v, wanted 7.25", raw, got.Value)
  }
}

func TestParse_TwoByteLittleEndian(t *testing.T) {
  raw := []byte{0x2c, 0x11} // 4396 hundredths

  got, ok := frame.Parse(raw, "test")

  if !ok {
    t.Fatalf("Parse(%v) returned no value", raw)
  }

  if got.Value != 43.96 {
    t.Fatalf("Parse(%v): got %v, wanted 43.96", raw, got.Value)
  }

  if got.Display != "43.96" {
    t.Fatalf("Parse(%v): got display %q, wanted %q", raw, got.Display, "43.96")
  }
}

func TestParse_FourByteFloat(t *testing.T) {
  raw := make([]byte, 4)
  binary.LittleEndian.PutUint32(raw, math.Float32bits(12.5))

  got, ok := frame.Parse(raw, "test")

  if !ok {
    t.Fatalf("Parse(%v) returned no value", raw)
  }

  if got.Value != 12.5 {
    t.Fatalf("Parse(%v): got %v, wanted 12.5", raw, got.Value)
  }
}

func TestParse_ImplausibleFloatRejected(t *testing.T) {
  raw := make([]byte, 4)
  binary.LittleEndian.PutUint32(raw, math.Float32bits(float32(math.Inf(1))))

  if got, ok := frame.Parse(raw, "test"); ok {
    t.Fatalf("Parse(%v): got %v, wanted no value", raw, got)
  }
}

func TestParse_TextWithoutNumber(t *testing.T) {
  raw := []byte("READY")

  if got, ok := frame.Parse(raw, "test"); ok {
    t.Fatalf("Parse(%q): got %v, wanted no value", raw, got)
  }
}

func TestParse_EmptyFrame(t *testing.T) {
  if got, ok := frame.Parse(nil, "test"); ok {
    t.Fatalf("Parse(nil): got %v, wanted no value", got)
  }
}

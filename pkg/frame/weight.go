package frame

import (
	"fmt"
	"strconv"
	"strings"
)

// Unit is the measurement unit reported by a scale.
type Unit string

const (
	UnitKilograms Unit = "KG"
	UnitPounds    Unit = "LBS"
	UnitGrams     Unit = "G"
	UnitOunces    Unit = "OZ"
	UnitUnknown   Unit = "unknown"
)

// Offsets into the raw advertisement record of a WIT scale. The scale advertises under the
// generic 0x1802 service, so the sentinel bytes are what distinguish it from other devices.
const (
	weightMinLength   = 26
	weightMagicOffset = 3
	weightMagicValue  = 0x07
	weightMarkOffset  = 19
	weightMarkValue   = 0x09
	weightPadOffset   = 20
	weightStatusIndex = 21
	weightKeyIndex    = 22
	weightDigitsIndex = 22

	weightNegativeMask = 0x60
	weightUnitMask     = 0x0b
)

const (
	unitSelectorKG  = 0x00
	unitSelectorLBS = 0x01
	unitSelectorG   = 0x03
	unitSelectorOZ  = 0x08
)

// WeightReading is a single measurement decoded from a scale advertisement. It is forwarded
// immediately and never stored.
type WeightReading struct {
	Value    float64
	Unit     Unit
	Device   string // Advertised local name of the scale.
	Negative bool
	Text     string // Value formatted with the unit's precision, before re-parsing.
}

func (w WeightReading) String() string {
	return fmt.Sprintf("%s %s", w.Text, w.Unit)
}

// IsWeightRecord reports whether record carries the scale sentinel bytes.
func IsWeightRecord(record []byte) bool {
	return len(record) >= weightMinLength &&
		record[weightMagicOffset] == weightMagicValue &&
		record[weightMarkOffset] == weightMarkValue &&
		record[weightPadOffset] == 0x00
}

// DecodeWeightFrame decodes a raw scale advertisement record. It returns ErrNoMatch if the
// record does not carry the scale sentinel bytes.
//
// The three digit bytes starting at the key are XOR-obfuscated with the key; each nibble is one
// decimal digit of a fixed-point value with two decimal places. The first digit byte is the key
// itself, so the thousands and hundreds digits always decode as zero.
func DecodeWeightFrame(record []byte, deviceName string) (WeightReading, error) {
	if !IsWeightRecord(record) {
		return WeightReading{}, ErrNoMatch
	}
	key := record[weightKeyIndex]

	var digits [6]int
	for i := 0; i < 3; i++ {
		b := record[weightDigitsIndex+i] ^ key
		digits[2*i] = int(b>>4) & 0x0f
		digits[2*i+1] = int(b) & 0x0f
	}
	weight := float64(digits[0]*1000 + digits[1]*100 + digits[2]*10 + digits[3])
	weight += float64(digits[4]) * 0.1
	weight += float64(digits[5]) * 0.01

	status := record[weightStatusIndex] ^ key
	negative := status&weightNegativeMask == weightNegativeMask
	if negative {
		weight = -weight
	}

	// The scale sets extra status bits before the reading settles, so only the selector bits
	// are considered.
	var text string
	var unit Unit
	switch (status >> 1) & weightUnitMask {
	case unitSelectorKG:
		text, unit = fmt.Sprintf("%3.2f", weight), UnitKilograms
	case unitSelectorLBS:
		text, unit = fmt.Sprintf("%3.2f", weight), UnitPounds
	case unitSelectorG:
		text, unit = fmt.Sprintf("%5.0f", weight*100), UnitGrams
	case unitSelectorOZ:
		text, unit = fmt.Sprintf("%3.1f", weight*10), UnitOunces
	default:
		text, unit = "0.0", UnitUnknown
	}

	reading := WeightReading{Unit: unit, Device: deviceName, Negative: negative, Text: strings.TrimSpace(text)}
	value, err := strconv.ParseFloat(reading.Text, 64)
	if err != nil {
		return WeightReading{}, &DecodeError{Category: CategoryWeightFormat, Err: fmt.Errorf("failed to parse weight %q: %w", reading.Text, err)}
	}
	reading.Value = value
	return reading, nil
}

package frame

import (
	"encoding/binary"
	"encoding/hex"
	"time"
)

// Eddystone frame type tags (first byte of the 0xFEAA service data).
const (
	TypeUID byte = 0x00
	TypeURL byte = 0x10
	TypeTLM byte = 0x20
)

const (
	uidMinLength     = 18
	tlmLength        = 14
	tlmVersionPlain  = 0x00
	namespaceLength  = 10
	instanceLength   = 6
	uptimeResolution = 100 * time.Millisecond
)

// Frame is one of *UIDFrame, *TLMFrame or *URLFrame.
type Frame interface {
	Type() byte
}

type UIDFrame struct {
	TxPower   int8
	Namespace [namespaceLength]byte
	Instance  [instanceLength]byte
}

func (*UIDFrame) Type() byte { return TypeUID }

func (f *UIDFrame) NamespaceHex() string {
	return hex.EncodeToString(f.Namespace[:])
}

func (f *UIDFrame) InstanceHex() string {
	return hex.EncodeToString(f.Instance[:])
}

type TLMFrame struct {
	Version      byte
	BatteryMV    uint16
	Temperature  float64 // Degrees Celsius, decoded from signed 8.8 fixed point.
	PDUCount     uint32
	UptimeTenths uint32 // Time since power-on in 0.1 s units.
}

func (*TLMFrame) Type() byte { return TypeTLM }

func (f *TLMFrame) Uptime() time.Duration {
	return time.Duration(f.UptimeTenths) * uptimeResolution
}

// DecodeFrame dispatches Eddystone service data on its frame type byte.
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) == 0 {
		return nil, ErrNullServiceData
	}
	switch data[0] {
	case TypeUID:
		return DecodeUIDFrame(data)
	case TypeTLM:
		return DecodeTLMFrame(data)
	case TypeURL:
		return DecodeURLFrame(data)
	}
	return nil, invalidFrameType(data[0])
}

func DecodeUIDFrame(data []byte) (*UIDFrame, error) {
	if len(data) < uidMinLength {
		return nil, newDecodeError(CategoryUID, "UID frame too short: expected at least %d bytes, got %d", uidMinLength, len(data))
	}
	f := &UIDFrame{TxPower: int8(data[1])}
	copy(f.Namespace[:], data[2:2+namespaceLength])
	copy(f.Instance[:], data[2+namespaceLength:2+namespaceLength+instanceLength])
	return f, nil
}

func DecodeTLMFrame(data []byte) (*TLMFrame, error) {
	if len(data) != tlmLength {
		return nil, newDecodeError(CategoryTLM, "TLM frame has wrong length: expected %d bytes, got %d", tlmLength, len(data))
	}
	if data[1] != tlmVersionPlain {
		return nil, newDecodeError(CategoryTLM, "unsupported TLM version %02X", data[1])
	}
	return &TLMFrame{
		Version:      data[1],
		BatteryMV:    binary.BigEndian.Uint16(data[2:4]),
		Temperature:  float64(int8(data[4])) + float64(data[5])/256.0,
		PDUCount:     binary.BigEndian.Uint32(data[6:10]),
		UptimeTenths: binary.BigEndian.Uint32(data[10:14]),
	}, nil
}

package ble

import (
	"testing"

	"github.com/go-ble/ble"
)

func TestUUID16(t *testing.T) {
	cases := []struct {
		uuid ble.UUID
		want uint16
		ok   bool
	}{
		{ble.UUID16(0xfeaa), 0xfeaa, true},
		{ble.MustParse("0000FEAA-0000-1000-8000-00805F9B34FB"), 0xfeaa, true},
		{ble.MustParse("00001802-0000-1000-8000-00805f9b34fb"), 0x1802, true},
		{ble.MustParse("00000211-b2d1-43f0-9b88-960cebf8b91e"), 0, false},
	}
	for _, c := range cases {
		got, ok := uuid16(c.uuid)
		if ok != c.ok || got != c.want {
			t.Errorf("uuid16(%s) = %04x, %v; want %04x, %v", c.uuid, got, ok, c.want, c.ok)
		}
	}
}

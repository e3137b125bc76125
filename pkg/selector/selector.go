// Package selector picks the closest location beacon among the tracked devices.
package selector

import (
	"strings"

	"github.com/divertsy/beacon-scanner/pkg/registry"
)

// Selection identifies a selected device instance. The zero value means no device is selected.
//
// The generation distinguishes a device that was evicted and later re-created under the same
// address from the instance that was originally selected.
type Selection struct {
	Address    string
	Generation uint64
}

// None reports whether s selects no device.
func (s Selection) None() bool {
	return s == Selection{}
}

func Of(d *registry.Device) Selection {
	if d == nil {
		return Selection{}
	}
	return Selection{Address: d.Address, Generation: d.Generation}
}

// Qualifies returns true if d has a decoded URL whose host equals hostFilter, ignoring case.
func Qualifies(d *registry.Device, hostFilter string) bool {
	return d.URL != nil && strings.EqualFold(d.URL.Host, hostFilter)
}

// Select returns the qualifying device with the strongest signal, its Selection, and whether the
// selection differs from previous.
//
// Ties on signal strength go to the lexicographically smallest address, so the result does not
// depend on the order of devices.
func Select(devices []registry.Device, hostFilter string, previous Selection) (*registry.Device, Selection, bool) {
	var closest *registry.Device
	for i := range devices {
		d := &devices[i]
		if !Qualifies(d, hostFilter) {
			continue
		}
		if closest == nil || d.RSSI > closest.RSSI || (d.RSSI == closest.RSSI && d.Address < closest.Address) {
			closest = d
		}
	}
	var result *registry.Device
	if closest != nil {
		cp := *closest
		result = &cp
	}
	selection := Of(result)
	return result, selection, selection != previous
}

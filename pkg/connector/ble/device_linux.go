package ble

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/go-ble/ble/linux/hci/cmd"
)

const bleTimeout = 20 * time.Second

// Beacons advertise every 100ms to 1s, so scan continuously.
var scanParams = cmd.LESetScanParameters{
	LEScanType:           1,    // Active scanning, so scan responses are included in the record
	LEScanInterval:       0x10, // 10ms
	LEScanWindow:         0x10, // 10ms
	OwnAddressType:       0,    // Static
	ScanningFilterPolicy: 0,    // Accept all advertisements
}

func IsAdapterError(err error) bool {
	return strings.Contains(err.Error(), "operation not permitted") ||
		strings.Contains(err.Error(), "no devices available")
}

func AdapterErrorHelpMessage(err error) string {
	if strings.Contains(err.Error(), "operation not permitted") {
		// The underlying BLE package calls HCIDEVDOWN on the BLE device.
		return "Failed to initialize BLE adapter: \n\t" + err.Error() + "\n" +
			"Try again after granting this application CAP_NET_ADMIN:\n\n" +
			"\tsudo setcap 'cap_net_admin=eip' \"$(which beacon-scan)\""
	}
	return "Failed to initialize BLE adapter: \n\t" + err.Error() + "\n" +
		"Make sure a Bluetooth controller is attached and not claimed by bluetoothd."
}

// parseAdapterID accepts "hci0" or "0".
func parseAdapterID(id string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(id, "hci"))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s", ErrAdapterInvalidID, id)
	}
	return n, nil
}

func newDevice(id string) (ble.Device, error) {
	opts := []ble.Option{
		ble.OptListenerTimeout(bleTimeout),
		ble.OptDialerTimeout(bleTimeout),
		ble.OptScanParams(scanParams),
	}
	if id != "" {
		n, err := parseAdapterID(id)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ble.OptDeviceID(n))
	}
	device, err := linux.NewDevice(opts...)
	if err != nil {
		return nil, err
	}
	return device, nil
}

//go:build !linux && !darwin

package ble

import (
	"errors"
	"runtime"

	"github.com/go-ble/ble"
)

func IsAdapterError(_ error) bool {
	return false
}

func AdapterErrorHelpMessage(err error) string {
	return err.Error()
}

func newDevice(_ string) (ble.Device, error) {
	return nil, errors.New("not supported on " + runtime.GOOS)
}

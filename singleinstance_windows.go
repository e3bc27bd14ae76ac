//go:build windows

package usbshare

import (
	"errors"

	"golang.org/x/sys/windows"
)

// Well-known name of the single-instance marker. Global\ makes it visible
// across sessions, so a service instance and a console instance exclude
// each other too.
const instanceMutexName = `Global\usbshared-single-instance`

type namedMutexGuard struct {
	handle  windows.Handle
	already bool
}

// NewInstanceGuard creates the system-wide single-instance marker. The
// marker lives until Release or process exit; whether another instance
// already held it is reported through AlreadyRunning, never as an error.
func NewInstanceGuard() (InstanceGuard, error) {
	name, err := windows.UTF16PtrFromString(instanceMutexName)
	if err != nil {
		return nil, err
	}
	handle, err := windows.CreateMutex(nil, false, name)
	if err != nil {
		if errors.Is(err, windows.ERROR_ALREADY_EXISTS) && handle != 0 {
			return &namedMutexGuard{handle: handle, already: true}, nil
		}
		return nil, err
	}
	return &namedMutexGuard{handle: handle}, nil
}

func (g *namedMutexGuard) AlreadyRunning() bool {
	return g.already
}

func (g *namedMutexGuard) Release() {
	if g.handle != 0 {
		windows.CloseHandle(g.handle)
		g.handle = 0
	}
}

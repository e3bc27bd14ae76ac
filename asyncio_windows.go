//go:build windows

package usbshare

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// OpenDeviceFile opens a device-interface path for overlapped I/O.
func OpenDeviceFile(path string) (*DeviceFile, error) {
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, &IoError{Op: "open " + path, Err: err}
	}
	handle, err := windows.CreateFile(
		pathPtr,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_ATTRIBUTE_NORMAL|windows.FILE_FLAG_OVERLAPPED,
		0,
	)
	if err != nil {
		return nil, &IoError{Op: "open " + path, Err: err}
	}
	return &DeviceFile{
		submit:    overlappedSubmitter(handle),
		closeFunc: func() error { return windows.CloseHandle(handle) },
	}, nil
}

// overlappedSubmitter issues DeviceIoControl on an overlapped handle. A
// request that completes before the call returns fulfills the future right
// away; a pending one is reaped by a goroutine blocked on the request's
// event object. Both paths go through the same single-assignment future.
func overlappedSubmitter(handle windows.Handle) submitFunc {
	return func(code uint32, in, out []byte, f *ioFuture) {
		event, err := windows.CreateEvent(nil, 1, 0, nil)
		if err != nil {
			f.complete(0, &IoError{Op: "CreateEvent", Err: err})
			return
		}
		overlapped := &windows.Overlapped{HEvent: event}

		var inPtr, outPtr *byte
		if len(in) > 0 {
			inPtr = &in[0]
		}
		if len(out) > 0 {
			outPtr = &out[0]
		}

		var n uint32
		err = windows.DeviceIoControl(
			handle, code,
			inPtr, uint32(len(in)),
			outPtr, uint32(len(out)),
			&n, overlapped,
		)
		if err == nil {
			windows.CloseHandle(event)
			f.complete(n, nil)
			return
		}
		if err != windows.ERROR_IO_PENDING {
			windows.CloseHandle(event)
			f.complete(0, &IoError{Op: controlOp(code), Err: err})
			return
		}

		go func() {
			defer windows.CloseHandle(event)
			var done uint32
			if err := windows.GetOverlappedResult(handle, overlapped, &done, true); err != nil {
				f.complete(0, &IoError{Op: controlOp(code), Err: err})
				return
			}
			f.complete(done, nil)
		}()
	}
}

func controlOp(code uint32) string {
	return fmt.Sprintf("DeviceIoControl(0x%X)", code)
}

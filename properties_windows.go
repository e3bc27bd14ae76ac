//go:build windows

package usbshare

import (
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// getDevNodeProperty reads a raw device-node property: one sizing call that
// must come back CR_BUFFER_SMALL, then the fetch. The buffer and its type
// tag are returned undecoded.
func getDevNodeProperty(node DeviceNode, key PropertyKey) ([]uint16, uint32, error) {
	var propType uint32
	var size uint32
	ret, _, _ := syscall.SyscallN(
		procCM_Get_DevNode_PropertyW.Addr(),
		uintptr(node),
		uintptr(unsafe.Pointer(&key)),
		uintptr(unsafe.Pointer(&propType)),
		0,
		uintptr(unsafe.Pointer(&size)),
		0,
	)
	if ret != crBufferSmall {
		return nil, 0, &ConfigurationError{Op: "CM_Get_DevNode_Property", Status: uint32(ret)}
	}

	buf := make([]uint16, (size+1)/2)
	ret, _, _ = syscall.SyscallN(
		procCM_Get_DevNode_PropertyW.Addr(),
		uintptr(node),
		uintptr(unsafe.Pointer(&key)),
		uintptr(unsafe.Pointer(&propType)),
		uintptr(unsafe.Pointer(unsafe.SliceData(buf))),
		uintptr(unsafe.Pointer(&size)),
		0,
	)
	if ret != crSuccess {
		return nil, 0, &ConfigurationError{Op: "CM_Get_DevNode_Property", Status: uint32(ret)}
	}
	return buf, propType, nil
}

// getDeviceInterfaceProperty is getDevNodeProperty for a device-interface
// path instead of a node.
func getDeviceInterfaceProperty(path string, key PropertyKey) ([]uint16, uint32, error) {
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid interface path %q: %w", path, err)
	}

	var propType uint32
	var size uint32
	ret, _, _ := syscall.SyscallN(
		procCM_Get_Device_Interface_PropertyW.Addr(),
		uintptr(unsafe.Pointer(pathPtr)),
		uintptr(unsafe.Pointer(&key)),
		uintptr(unsafe.Pointer(&propType)),
		0,
		uintptr(unsafe.Pointer(&size)),
		0,
	)
	if ret != crBufferSmall {
		return nil, 0, &ConfigurationError{Op: "CM_Get_Device_Interface_Property", Status: uint32(ret)}
	}

	buf := make([]uint16, (size+1)/2)
	ret, _, _ = syscall.SyscallN(
		procCM_Get_Device_Interface_PropertyW.Addr(),
		uintptr(unsafe.Pointer(pathPtr)),
		uintptr(unsafe.Pointer(&key)),
		uintptr(unsafe.Pointer(&propType)),
		uintptr(unsafe.Pointer(unsafe.SliceData(buf))),
		uintptr(unsafe.Pointer(&size)),
		0,
	)
	if ret != crSuccess {
		return nil, 0, &ConfigurationError{Op: "CM_Get_Device_Interface_Property", Status: uint32(ret)}
	}
	return buf, propType, nil
}

func propertyString(buf []uint16, propType uint32) (string, error) {
	if propType != devpropTypeString {
		return "", fmt.Errorf("%w: 0x%X", ErrUnsupportedPropertyType, propType)
	}
	return decodeString(buf), nil
}

func propertyStringList(buf []uint16, propType uint32) ([]string, error) {
	if propType != devpropTypeStringList {
		return nil, fmt.Errorf("%w: 0x%X", ErrUnsupportedPropertyType, propType)
	}
	return decodeStringList(buf), nil
}

//go:build windows

package usbshare

import (
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// cfgmgrTree is the live CfgMgr32 device tree.
type cfgmgrTree struct{}

// NewDeviceTree returns the OS-backed device tree.
func NewDeviceTree() DeviceTree {
	return cfgmgrTree{}
}

func (cfgmgrTree) HubInterfaces() ([]string, error) {
	return getDeviceInterfaceList(guidDevInterfaceUSBHub)
}

func (cfgmgrTree) Locate(instanceID string) (DeviceNode, error) {
	idPtr, err := windows.UTF16PtrFromString(instanceID)
	if err != nil {
		return 0, fmt.Errorf("invalid instance id %q: %w", instanceID, err)
	}
	var node uint32
	ret, _, _ := syscall.SyscallN(
		procCM_Locate_DevNodeW.Addr(),
		uintptr(unsafe.Pointer(&node)),
		uintptr(unsafe.Pointer(idPtr)),
		cmLocateDevNodeNormal,
	)
	if ret != crSuccess {
		// Typically the device was just removed.
		return 0, &ConfigurationError{Op: "CM_Locate_DevNode", Status: uint32(ret)}
	}
	return DeviceNode(node), nil
}

func (cfgmgrTree) Children(parent DeviceNode) ([]DeviceNode, error) {
	var child uint32
	ret, _, _ := syscall.SyscallN(
		procCM_Get_Child.Addr(),
		uintptr(unsafe.Pointer(&child)),
		uintptr(parent),
		0,
	)
	if ret != crSuccess {
		// No children, or the parent vanished; either way the walk is over.
		return nil, nil
	}

	nodes := []DeviceNode{DeviceNode(child)}
	for {
		var sibling uint32
		ret, _, _ := syscall.SyscallN(
			procCM_Get_Sibling.Addr(),
			uintptr(unsafe.Pointer(&sibling)),
			uintptr(child),
			0,
		)
		if ret != crSuccess {
			break
		}
		nodes = append(nodes, DeviceNode(sibling))
		child = sibling
	}
	return nodes, nil
}

func (cfgmgrTree) NodeString(node DeviceNode, key PropertyKey) (string, error) {
	buf, propType, err := getDevNodeProperty(node, key)
	if err != nil {
		return "", err
	}
	return propertyString(buf, propType)
}

func (cfgmgrTree) NodeStrings(node DeviceNode, key PropertyKey) ([]string, error) {
	buf, propType, err := getDevNodeProperty(node, key)
	if err != nil {
		return nil, err
	}
	return propertyStringList(buf, propType)
}

func (cfgmgrTree) InterfaceString(path string, key PropertyKey) (string, error) {
	buf, propType, err := getDeviceInterfaceProperty(path, key)
	if err != nil {
		return "", err
	}
	return propertyString(buf, propType)
}

// NewWalker returns a Walker over the live device tree.
func NewWalker() *Walker {
	return &Walker{Tree: NewDeviceTree()}
}

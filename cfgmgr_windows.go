//go:build windows

package usbshare

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// CfgMgr32 bindings
var (
	modcfgmgr32 = windows.NewLazySystemDLL("cfgmgr32.dll")

	procCM_Get_Device_Interface_List_SizeW = modcfgmgr32.NewProc("CM_Get_Device_Interface_List_SizeW")
	procCM_Get_Device_Interface_ListW      = modcfgmgr32.NewProc("CM_Get_Device_Interface_ListW")
	procCM_Get_Device_Interface_PropertyW  = modcfgmgr32.NewProc("CM_Get_Device_Interface_PropertyW")
	procCM_Locate_DevNodeW                 = modcfgmgr32.NewProc("CM_Locate_DevNodeW")
	procCM_Get_DevNode_PropertyW           = modcfgmgr32.NewProc("CM_Get_DevNode_PropertyW")
	procCM_Get_Child                       = modcfgmgr32.NewProc("CM_Get_Child")
	procCM_Get_Sibling                     = modcfgmgr32.NewProc("CM_Get_Sibling")
)

// CONFIGRET codes and call flags
const (
	crSuccess     uintptr = 0x00
	crBufferSmall uintptr = 0x1A

	cmLocateDevNodeNormal           = 0
	cmGetDeviceInterfaceListPresent = 0
)

// GUID_DEVINTERFACE_USB_HUB {F18A0E88-C30C-11D0-8815-00A0C906BED8}
var guidDevInterfaceUSBHub = guid{
	0xF18A0E88, 0xC30C, 0x11D0,
	[8]byte{0x88, 0x15, 0x00, 0xA0, 0xC9, 0x06, 0xBE, 0xD8},
}

// getDeviceInterfaceList enumerates the present device interfaces of one
// interface class. The list can grow between the sizing call and the fetch;
// CR_BUFFER_SMALL on the fetch just means we size again.
func getDeviceInterfaceList(class guid) ([]string, error) {
	for {
		var size uint32
		ret, _, _ := syscall.SyscallN(
			procCM_Get_Device_Interface_List_SizeW.Addr(),
			uintptr(unsafe.Pointer(&size)),
			uintptr(unsafe.Pointer(&class)),
			0,
			cmGetDeviceInterfaceListPresent,
		)
		if ret != crSuccess {
			return nil, &ConfigurationError{Op: "CM_Get_Device_Interface_List_Size", Status: uint32(ret)}
		}

		buf := make([]uint16, size)
		ret, _, _ = syscall.SyscallN(
			procCM_Get_Device_Interface_ListW.Addr(),
			uintptr(unsafe.Pointer(&class)),
			0,
			uintptr(unsafe.Pointer(unsafe.SliceData(buf))),
			uintptr(size),
			cmGetDeviceInterfaceListPresent,
		)
		if ret == crBufferSmall {
			continue
		}
		if ret != crSuccess {
			return nil, &ConfigurationError{Op: "CM_Get_Device_Interface_List", Status: uint32(ret)}
		}
		return decodeStringList(buf), nil
	}
}

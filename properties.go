package usbshare

import "unicode/utf16"

// Device property type tags. Only the two string forms are supported; every
// property the topology walk reads decodes as one of them.
const (
	devpropTypeString     uint32 = 0x00000012
	devpropTypeStringList uint32 = 0x00002012
)

type guid struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]byte
}

// PropertyKey identifies a device property (DEVPROPKEY layout).
type PropertyKey struct {
	Fmtid guid
	Pid   uint32
}

var (
	// DEVPKEY_Device_InstanceId
	KeyDeviceInstanceID = PropertyKey{
		Fmtid: guid{0x78C34FC8, 0x104A, 0x4ACA, [8]byte{0x9E, 0xA4, 0x52, 0x4D, 0x52, 0x99, 0x6E, 0x57}},
		Pid:   256,
	}

	// DEVPKEY_Device_LocationInfo
	KeyDeviceLocationInfo = PropertyKey{
		Fmtid: guid{0xA45C254E, 0xDF1C, 0x4EFD, [8]byte{0x80, 0x20, 0x67, 0xD1, 0x46, 0xA8, 0x50, 0xE0}},
		Pid:   15,
	}

	// DEVPKEY_Device_CompatibleIds
	KeyDeviceCompatibleIDs = PropertyKey{
		Fmtid: guid{0xA45C254E, 0xDF1C, 0x4EFD, [8]byte{0x80, 0x20, 0x67, 0xD1, 0x46, 0xA8, 0x50, 0xE0}},
		Pid:   4,
	}

	// DEVPKEY_Device_FriendlyName
	KeyDeviceFriendlyName = PropertyKey{
		Fmtid: guid{0xA45C254E, 0xDF1C, 0x4EFD, [8]byte{0x80, 0x20, 0x67, 0xD1, 0x46, 0xA8, 0x50, 0xE0}},
		Pid:   14,
	}

	// DEVPKEY_NAME
	KeyName = PropertyKey{
		Fmtid: guid{0xB725F130, 0x47EF, 0x101A, [8]byte{0xA5, 0xF1, 0x02, 0x60, 0x8C, 0x9E, 0xEB, 0xAC}},
		Pid:   10,
	}
)

// decodeString converts a NUL-terminated UTF-16 property buffer to a string,
// stopping at the first NUL.
func decodeString(buf []uint16) string {
	for i, v := range buf {
		if v == 0 {
			buf = buf[:i]
			break
		}
	}
	return string(utf16.Decode(buf))
}

// decodeStringList converts a double-NUL-terminated UTF-16 multi-string
// buffer to its entries in order, dropping empties.
func decodeStringList(buf []uint16) []string {
	var out []string
	start := 0
	for i, v := range buf {
		if v != 0 {
			continue
		}
		if i > start {
			out = append(out, string(utf16.Decode(buf[start:i])))
		}
		start = i + 1
	}
	if start < len(buf) {
		// Missing final terminator; keep the trailing run anyway.
		out = append(out, string(utf16.Decode(buf[start:])))
	}
	return out
}

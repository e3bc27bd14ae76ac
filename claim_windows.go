//go:build windows

package usbshare

// Device interface class of the pass-through stub driver
// {00873FDF-CAFE-80EE-AA5E-00C04FB1720B}.
var guidDevInterfaceStub = guid{
	0x00873FDF, 0xCAFE, 0x80EE,
	[8]byte{0xAA, 0x5E, 0x00, 0xC0, 0x4F, 0xB1, 0x72, 0x0B},
}

// NewClaimer wires the claim engine to the live device tree and the
// pass-through driver's interfaces.
func NewClaimer() *Claimer {
	return &Claimer{
		Tree: NewDeviceTree(),
		Interfaces: func() ([]string, error) {
			return getDeviceInterfaceList(guidDevInterfaceStub)
		},
		Open: OpenDeviceFile,
	}
}

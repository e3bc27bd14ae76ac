package usbshare

import (
	"fmt"
	"strconv"
	"strings"
)

// BusID identifies a physical USB port by the bus number of its hub and the
// port number on that hub. It is stable for as long as the device stays
// plugged into the same port.
type BusID struct {
	Bus  uint16
	Port uint16
}

func (b BusID) String() string {
	return strconv.Itoa(int(b.Bus)) + "-" + strconv.Itoa(int(b.Port))
}

// Compare orders BusIDs lexicographically on (bus, port).
func (b BusID) Compare(other BusID) int {
	if b.Bus != other.Bus {
		if b.Bus < other.Bus {
			return -1
		}
		return 1
	}
	if b.Port != other.Port {
		if b.Port < other.Port {
			return -1
		}
		return 1
	}
	return 0
}

func (b BusID) Less(other BusID) bool {
	return b.Compare(other) < 0
}

// ParseBusID parses the canonical "<bus>-<port>" form. Both numbers must be
// positive decimal integers without leading zeros.
func ParseBusID(s string) (BusID, error) {
	bus, port, ok := strings.Cut(s, "-")
	if !ok {
		return BusID{}, fmt.Errorf("invalid busid %q: missing separator", s)
	}

	b, err := parseBusPart(bus)
	if err != nil {
		return BusID{}, fmt.Errorf("invalid busid %q: %w", s, err)
	}
	p, err := parseBusPart(port)
	if err != nil {
		return BusID{}, fmt.Errorf("invalid busid %q: %w", s, err)
	}

	return BusID{Bus: b, Port: p}, nil
}

func parseBusPart(s string) (uint16, error) {
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}
	if s[0] == '0' {
		// Rejects both zero and leading-zero forms.
		return 0, fmt.Errorf("number %q must be positive without leading zeros", s)
	}
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("number %q out of range or not decimal", s)
	}
	return uint16(n), nil
}

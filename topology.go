package usbshare

import (
	"errors"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// DeviceNode is a process-local handle into the live device tree. It is not
// stable across re-enumeration and must never be cached beyond a single
// enumeration pass; re-resolve through Locate when a later operation needs
// the same device.
type DeviceNode uint32

// DeviceTree is the device-management substrate the topology walk runs
// against. The Windows implementation talks to CfgMgr32; tests substitute an
// in-memory tree.
type DeviceTree interface {
	// HubInterfaces lists the device-interface paths of all present USB hubs.
	HubInterfaces() ([]string, error)

	// Locate resolves a stable instance identifier to a current node handle.
	// The device may have vanished since it was enumerated; callers treat a
	// failure here as "device gone", not as a hard error.
	Locate(instanceID string) (DeviceNode, error)

	// Children returns the direct children of parent in sibling order. A
	// parent with no children, or one removed mid-walk, yields an empty
	// slice.
	Children(parent DeviceNode) ([]DeviceNode, error)

	NodeString(node DeviceNode, key PropertyKey) (string, error)
	NodeStrings(node DeviceNode, key PropertyKey) ([]string, error)
	InterfaceString(path string, key PropertyKey) (string, error)
}

// UsbDevice describes one connected (non-hub) USB device.
type UsbDevice struct {
	BusID        BusID
	InstanceID   string
	HubInterface string
	Description  string
}

// Walker enumerates USB hubs and their child devices. It holds no state
// between calls; the device tree is read fresh on every pass because it can
// change underneath the process at any time.
type Walker struct {
	Tree DeviceTree
}

// compositeMarker is the compatible id Windows assigns to composite devices.
const compositeMarker = `USB\COMPOSITE`

var reLocation = regexp.MustCompile(`(?i)^Port_#(\d{4})\.Hub_#(\d{4})$`)

// ResolveBusID derives a node's bus/port address from its location-info
// property. Anything but the Port_#/Hub_# form means the OS or hub driver
// behaves in a way this code was not written for, which is reported rather
// than skipped.
func (w *Walker) ResolveBusID(node DeviceNode) (BusID, error) {
	location, err := w.Tree.NodeString(node, KeyDeviceLocationInfo)
	if err != nil {
		return BusID{}, err
	}
	m := reLocation.FindStringSubmatch(location)
	if m == nil {
		return BusID{}, &UnsupportedTopologyError{Location: location}
	}
	port, _ := strconv.Atoi(m[1])
	hub, _ := strconv.Atoi(m[2])
	return BusID{Bus: uint16(hub), Port: uint16(port)}, nil
}

// Description composes a human-readable name for the device. A composite
// device is described by its optional friendly name followed by the names of
// its function children, duplicates suppressed; if no child has been
// enumerated yet the device's own name is used instead.
func (w *Walker) Description(node DeviceNode) (string, error) {
	compatible, err := w.Tree.NodeStrings(node, KeyDeviceCompatibleIDs)
	if err != nil {
		return "", err
	}

	composite := slices.ContainsFunc(compatible, func(id string) bool {
		return strings.EqualFold(id, compositeMarker)
	})
	if !composite {
		return w.nodeName(node)
	}

	var parts []string
	if friendly, err := w.Tree.NodeString(node, KeyDeviceFriendlyName); err == nil {
		if friendly = strings.TrimSpace(friendly); friendly != "" {
			parts = append(parts, friendly)
		}
	}
	children, err := w.Tree.Children(node)
	if err == nil {
		for _, child := range children {
			name, err := w.Tree.NodeString(child, KeyName)
			if err != nil {
				// The child may already be gone again.
				continue
			}
			if name = strings.TrimSpace(name); name != "" {
				parts = append(parts, name)
			}
		}
	}

	parts = dedupInOrder(parts)
	if len(parts) == 0 {
		return w.nodeName(node)
	}
	return strings.Join(parts, ", "), nil
}

func (w *Walker) nodeName(node DeviceNode) (string, error) {
	name, err := w.Tree.NodeString(node, KeyName)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(name), nil
}

func dedupInOrder(in []string) []string {
	var out []string
	for _, s := range in {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// EnumerateUsbDevices walks every present hub and returns the connected leaf
// devices ordered by BusID. Hubs themselves are topology, not devices, and
// are excluded. A device that vanishes mid-walk is silently omitted; one
// lost device must never fail the whole pass.
func (w *Walker) EnumerateUsbDevices(includeDescriptions bool) ([]UsbDevice, error) {
	hubPaths, err := w.Tree.HubInterfaces()
	if err != nil {
		return nil, err
	}

	// One pass of hub node -> interface path; valid only for this call.
	hubs := make(map[DeviceNode]string, len(hubPaths))
	for _, path := range hubPaths {
		instanceID, err := w.Tree.InterfaceString(path, KeyDeviceInstanceID)
		if err != nil {
			if isConfigFault(err) {
				continue
			}
			return nil, err
		}
		node, err := w.Tree.Locate(instanceID)
		if err != nil {
			if isConfigFault(err) {
				continue
			}
			return nil, err
		}
		hubs[node] = path
	}

	var devices []UsbDevice
	for hub, path := range hubs {
		children, err := w.Tree.Children(hub)
		if err != nil {
			if isConfigFault(err) {
				continue
			}
			return nil, err
		}
		for _, child := range children {
			if _, isHub := hubs[child]; isHub {
				continue
			}
			record, err := w.deviceRecord(child, path, includeDescriptions)
			if err != nil {
				if isConfigFault(err) {
					continue
				}
				return nil, err
			}
			devices = append(devices, record)
		}
	}

	slices.SortFunc(devices, func(a, b UsbDevice) int {
		return a.BusID.Compare(b.BusID)
	})
	return devices, nil
}

func (w *Walker) deviceRecord(node DeviceNode, hubInterface string, includeDescription bool) (UsbDevice, error) {
	busID, err := w.ResolveBusID(node)
	if err != nil {
		return UsbDevice{}, err
	}
	instanceID, err := w.Tree.NodeString(node, KeyDeviceInstanceID)
	if err != nil {
		return UsbDevice{}, err
	}
	record := UsbDevice{
		BusID:        busID,
		InstanceID:   instanceID,
		HubInterface: hubInterface,
	}
	if includeDescription {
		description, err := w.Description(node)
		if err != nil {
			return UsbDevice{}, err
		}
		record.Description = description
	}
	return record, nil
}

func isConfigFault(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

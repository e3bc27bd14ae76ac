package usbshare

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"
)

// Pass-through driver protocol version this engine was built against. The
// driver's major version must match exactly; a newer minor is acceptable.
const (
	driverVersionMajor = 1
	driverVersionMinor = 0
)

const (
	defaultClaimRetryDelay = 100 * time.Millisecond
	defaultClaimDeadline   = 5 * time.Second
)

// Device-control codes of the pass-through driver, CTL_CODE composed with
// FILE_DEVICE_UNKNOWN / METHOD_BUFFERED / FILE_ANY_ACCESS.
const (
	fileDeviceUnknown = 0x22
	methodBuffered    = 0
	fileAnyAccess     = 0
)

func ctlCode(function uint32) uint32 {
	return fileDeviceUnknown<<16 | fileAnyAccess<<14 | function<<2 | methodBuffered
}

var (
	ioctlDriverVersion = ctlCode(0x800)
	ioctlClaimDevice   = ctlCode(0x801)
)

// Sizes of the fixed records exchanged with the driver: {major, minor
// uint32} for the version query, {claimed byte, 3 bytes padding} for the
// claim reply.
const (
	driverVersionSize = 8
	claimRecordSize   = 4
)

// ClaimedDevice is the exclusive handle returned by a successful claim. It
// belongs to the connection that claimed it and must be released when that
// connection's scope ends, however it ends.
type ClaimedDevice struct {
	Node          DeviceNode
	InterfacePath string
	File          *DeviceFile
}

// Release closes the handle, dropping the driver's exclusive claim.
func (c *ClaimedDevice) Release() error {
	return c.File.Close()
}

// Claimer locates the pass-through driver's device interface for a bus/port
// address, verifies the driver protocol version and claims the device.
// Attempts are serialized process-wide so concurrent claims do not stampede
// the device enumeration; claims for different addresses still interleave
// across attempts.
type Claimer struct {
	Tree DeviceTree

	// Interfaces lists the pass-through driver's present device interfaces.
	Interfaces func() ([]string, error)

	// Open opens one of those interfaces for asynchronous I/O.
	Open func(path string) (*DeviceFile, error)

	// RetryDelay and Deadline bound the not-found retry loop; zero means
	// the defaults.
	RetryDelay time.Duration
	Deadline   time.Duration

	// Clock seams for tests; nil means the real clock.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	serializeOnce sync.Once
	serialize     *AsyncMutex
}

func (c *Claimer) serializer() *AsyncMutex {
	c.serializeOnce.Do(func() {
		c.serialize = NewAsyncMutex()
	})
	return c.serialize
}

func (c *Claimer) clock() func() time.Time {
	if c.now != nil {
		return c.now
	}
	return time.Now
}

func (c *Claimer) sleeper() func(ctx context.Context, d time.Duration) error {
	if c.sleep != nil {
		return c.sleep
	}
	return sleepCtx
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Claim runs the locate/open/version/claim sequence for id. Right after the
// pass-through driver is bound to a device the interface may not be
// enumerable yet, so a not-found outcome is retried on a fixed delay until
// the deadline; every other fault is terminal and propagates immediately.
func (c *Claimer) Claim(ctx context.Context, id BusID) (*ClaimedDevice, error) {
	retryDelay := c.RetryDelay
	if retryDelay == 0 {
		retryDelay = defaultClaimRetryDelay
	}
	window := c.Deadline
	if window == 0 {
		window = defaultClaimDeadline
	}
	now := c.clock()
	sleep := c.sleeper()

	deadline := now().Add(window)
	for {
		device, err := c.attempt(ctx, id)
		if err == nil {
			return device, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if !now().Before(deadline) {
			return nil, err
		}
		if err := sleep(ctx, retryDelay); err != nil {
			return nil, err
		}
	}
}

func (c *Claimer) attempt(ctx context.Context, id BusID) (*ClaimedDevice, error) {
	guard, err := c.serializer().Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	node, path, err := c.locate(id)
	if err != nil {
		return nil, err
	}

	file, err := c.Open(path)
	if err != nil {
		return nil, err
	}

	if err := c.checkVersion(ctx, file); err != nil {
		file.Close()
		return nil, err
	}
	if err := c.claimDevice(ctx, file); err != nil {
		file.Close()
		return nil, err
	}

	return &ClaimedDevice{Node: node, InterfacePath: path, File: file}, nil
}

// locate scans the driver's present interfaces for the one whose node
// resolves to id. A candidate that cannot be inspected is indistinguishable
// from one that is mid-enumeration, so any per-candidate fault just skips
// the candidate and degrades to not-found.
func (c *Claimer) locate(id BusID) (DeviceNode, string, error) {
	paths, err := c.Interfaces()
	if err != nil {
		return 0, "", err
	}

	walker := &Walker{Tree: c.Tree}
	for _, path := range paths {
		instanceID, err := c.Tree.InterfaceString(path, KeyDeviceInstanceID)
		if err != nil {
			continue
		}
		node, err := c.Tree.Locate(instanceID)
		if err != nil {
			continue
		}
		busID, err := walker.ResolveBusID(node)
		if err != nil {
			continue
		}
		if busID == id {
			return node, path, nil
		}
	}
	return 0, "", ErrNotFound
}

func (c *Claimer) checkVersion(ctx context.Context, file *DeviceFile) error {
	out := make([]byte, driverVersionSize)
	if _, err := file.Control(ctx, ioctlDriverVersion, nil, out, true); err != nil {
		return err
	}
	major := binary.LittleEndian.Uint32(out[0:4])
	minor := binary.LittleEndian.Uint32(out[4:8])
	if major != driverVersionMajor || minor < driverVersionMinor {
		return &UnsupportedDriverError{
			HaveMajor: major, HaveMinor: minor,
			WantMajor: driverVersionMajor, WantMinor: driverVersionMinor,
		}
	}
	return nil
}

func (c *Claimer) claimDevice(ctx context.Context, file *DeviceFile) error {
	out := make([]byte, claimRecordSize)
	if _, err := file.Control(ctx, ioctlClaimDevice, nil, out, true); err != nil {
		return err
	}
	if out[0] == 0 {
		// The driver took the request but refused the claim, most likely
		// because another client already holds the device.
		return &ProtocolViolationError{Reason: "device claim refused"}
	}
	return nil
}

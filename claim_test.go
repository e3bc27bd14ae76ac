package usbshare

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

// fakeDriverFile emulates the pass-through driver's control interface.
func fakeDriverFile(major, minor uint32, claimed byte) *DeviceFile {
	return &DeviceFile{submit: func(code uint32, in, out []byte, f *ioFuture) {
		switch code {
		case ioctlDriverVersion:
			binary.LittleEndian.PutUint32(out[0:4], major)
			binary.LittleEndian.PutUint32(out[4:8], minor)
			f.complete(uint32(len(out)), nil)
		case ioctlClaimDevice:
			out[0] = claimed
			f.complete(uint32(len(out)), nil)
		default:
			f.complete(0, &IoError{Op: "unexpected control", Err: errors.New("bad code")})
		}
	}}
}

// claimFixture builds a tree with one stub interface resolving to busid 1-2.
func claimFixture(file *DeviceFile) (*Claimer, *int) {
	tree := newFakeTree()
	const path = `\\?\stub-1`
	tree.ifStrings[path] = map[PropertyKey]string{KeyDeviceInstanceID: `USB\VID_1234&PID_0001\A`}
	tree.byInstance[`USB\VID_1234&PID_0001\A`] = 10
	tree.setString(10, KeyDeviceLocationInfo, "Port_#0002.Hub_#0001")

	attempts := new(int)
	c := &Claimer{
		Tree: tree,
		Interfaces: func() ([]string, error) {
			*attempts++
			return []string{path}, nil
		},
		Open: func(p string) (*DeviceFile, error) {
			if p != path {
				return nil, &IoError{Op: "open " + p, Err: errors.New("wrong path")}
			}
			return file, nil
		},
	}
	return c, attempts
}

func TestClaimSuccess(t *testing.T) {
	c, attempts := claimFixture(fakeDriverFile(driverVersionMajor, driverVersionMinor, 1))

	device, err := c.Claim(context.Background(), BusID{Bus: 1, Port: 2})
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if device.Node != 10 || device.InterfacePath != `\\?\stub-1` {
		t.Errorf("claimed device has wrong topology metadata: %+v", device)
	}
	if *attempts != 1 {
		t.Errorf("successful claim took %d attempts, want 1", *attempts)
	}
	device.Release()
}

func TestClaimNewerMinorAccepted(t *testing.T) {
	c, _ := claimFixture(fakeDriverFile(driverVersionMajor, driverVersionMinor+3, 1))
	if _, err := c.Claim(context.Background(), BusID{Bus: 1, Port: 2}); err != nil {
		t.Fatalf("newer driver minor rejected: %v", err)
	}
}

func TestClaimNotFoundRetriesUntilDeadline(t *testing.T) {
	c := &Claimer{
		Tree:       newFakeTree(),
		Open:       func(string) (*DeviceFile, error) { return nil, errors.New("unreachable") },
		RetryDelay: 100 * time.Millisecond,
		Deadline:   200 * time.Millisecond,
	}
	attempts := 0
	c.Interfaces = func() ([]string, error) {
		attempts++
		return nil, nil
	}

	start := time.Unix(1000, 0)
	current := start
	c.now = func() time.Time { return current }
	c.sleep = func(ctx context.Context, d time.Duration) error {
		current = current.Add(d)
		return nil
	}

	_, err := c.Claim(context.Background(), BusID{Bus: 1, Port: 1})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if elapsed := current.Sub(start); elapsed != 200*time.Millisecond {
		t.Errorf("gave up after %v, want the 200ms deadline", elapsed)
	}
	if attempts != 3 {
		t.Errorf("made %d attempts, want 3", attempts)
	}
}

func TestClaimRefusedIsProtocolViolationNotRetried(t *testing.T) {
	c, attempts := claimFixture(fakeDriverFile(driverVersionMajor, driverVersionMinor, 0))
	c.sleep = func(ctx context.Context, d time.Duration) error {
		t.Fatal("a refused claim must not be retried")
		return nil
	}

	_, err := c.Claim(context.Background(), BusID{Bus: 1, Port: 2})
	var pv *ProtocolViolationError
	if !errors.As(err, &pv) {
		t.Fatalf("got %v, want ProtocolViolationError", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("refused claim must not look like not-found")
	}
	if *attempts != 1 {
		t.Errorf("made %d attempts, want 1", *attempts)
	}
}

func TestClaimVersionSkewFatal(t *testing.T) {
	c, attempts := claimFixture(fakeDriverFile(driverVersionMajor+1, 0, 1))

	_, err := c.Claim(context.Background(), BusID{Bus: 1, Port: 2})
	var skew *UnsupportedDriverError
	if !errors.As(err, &skew) {
		t.Fatalf("got %v, want UnsupportedDriverError", err)
	}
	if *attempts != 1 {
		t.Errorf("version skew retried: %d attempts", *attempts)
	}
}

func TestClaimShortVersionRecord(t *testing.T) {
	file := &DeviceFile{submit: func(code uint32, in, out []byte, f *ioFuture) {
		f.complete(4, nil) // half a version record
	}}
	c, _ := claimFixture(file)

	_, err := c.Claim(context.Background(), BusID{Bus: 1, Port: 2})
	var pv *ProtocolViolationError
	if !errors.As(err, &pv) {
		t.Fatalf("got %v, want ProtocolViolationError", err)
	}
}

func TestClaimSkipsUnreadableCandidates(t *testing.T) {
	file := fakeDriverFile(driverVersionMajor, driverVersionMinor, 1)
	tree := newFakeTree()
	// First candidate has no readable properties; second one matches.
	tree.ifStrings[`\\?\stub-broken`] = map[PropertyKey]string{}
	tree.ifStrings[`\\?\stub-good`] = map[PropertyKey]string{KeyDeviceInstanceID: `USB\VID_1\B`}
	tree.byInstance[`USB\VID_1\B`] = 20
	tree.setString(20, KeyDeviceLocationInfo, "Port_#0001.Hub_#0001")

	c := &Claimer{
		Tree:       tree,
		Interfaces: func() ([]string, error) { return []string{`\\?\stub-broken`, `\\?\stub-good`}, nil },
		Open:       func(string) (*DeviceFile, error) { return file, nil },
	}

	device, err := c.Claim(context.Background(), BusID{Bus: 1, Port: 1})
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if device.InterfacePath != `\\?\stub-good` {
		t.Errorf("claimed %q, want the readable candidate", device.InterfacePath)
	}
}

func TestClaimCancelledDuringRetryWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Claimer{
		Tree:       newFakeTree(),
		Interfaces: func() ([]string, error) { return nil, nil },
		Open:       func(string) (*DeviceFile, error) { return nil, errors.New("unreachable") },
		RetryDelay: time.Millisecond,
		Deadline:   time.Hour,
	}
	cancel()

	_, err := c.Claim(ctx, BusID{Bus: 1, Port: 1})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

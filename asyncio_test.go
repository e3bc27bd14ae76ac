package usbshare

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestControlSynchronousCompletion(t *testing.T) {
	d := &DeviceFile{submit: func(code uint32, in, out []byte, f *ioFuture) {
		// Completes before the submission returns.
		f.complete(uint32(len(out)), nil)
	}}

	out := make([]byte, 8)
	n, err := d.Control(context.Background(), 0x42, nil, out, true)
	if err != nil {
		t.Fatalf("Control failed: %v", err)
	}
	if n != 8 {
		t.Errorf("got %d bytes, want 8", n)
	}
}

func TestControlAsynchronousCompletion(t *testing.T) {
	d := &DeviceFile{submit: func(code uint32, in, out []byte, f *ioFuture) {
		go func() {
			time.Sleep(10 * time.Millisecond)
			f.complete(uint32(len(out)), nil)
		}()
	}}

	out := make([]byte, 4)
	n, err := d.Control(context.Background(), 0x42, nil, out, true)
	if err != nil {
		t.Fatalf("Control failed: %v", err)
	}
	if n != 4 {
		t.Errorf("got %d bytes, want 4", n)
	}
}

func TestControlExactLengthMismatch(t *testing.T) {
	d := &DeviceFile{submit: func(code uint32, in, out []byte, f *ioFuture) {
		f.complete(3, nil)
	}}

	out := make([]byte, 8)
	_, err := d.Control(context.Background(), 0x42, nil, out, true)
	var pv *ProtocolViolationError
	if !errors.As(err, &pv) {
		t.Fatalf("got %v, want ProtocolViolationError", err)
	}

	// Without the exact-length requirement a short completion is a success.
	n, err := d.Control(context.Background(), 0x42, nil, out, false)
	if err != nil || n != 3 {
		t.Errorf("got (%d, %v), want (3, nil)", n, err)
	}
}

func TestControlIoFault(t *testing.T) {
	native := errors.New("access denied")
	d := &DeviceFile{submit: func(code uint32, in, out []byte, f *ioFuture) {
		f.complete(0, &IoError{Op: "DeviceIoControl(0x42)", Err: native})
	}}

	_, err := d.Control(context.Background(), 0x42, nil, nil, false)
	var io *IoError
	if !errors.As(err, &io) {
		t.Fatalf("got %v, want IoError", err)
	}
	if !errors.Is(err, native) {
		t.Error("IoError does not wrap the native status")
	}
}

func TestFutureCompletesExactlyOnce(t *testing.T) {
	f := newIoFuture()
	f.complete(7, nil)
	f.complete(99, errors.New("late duplicate completion"))

	n, err := f.wait(context.Background())
	if n != 7 || err != nil {
		t.Errorf("got (%d, %v), want first completion (7, nil)", n, err)
	}
}

func TestControlCancelledWait(t *testing.T) {
	release := make(chan struct{})
	d := &DeviceFile{submit: func(code uint32, in, out []byte, f *ioFuture) {
		go func() {
			<-release
			f.complete(0, nil)
		}()
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := d.Control(ctx, 0x42, nil, nil, false)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want context deadline", err)
	}
	// The native operation still completes afterwards without incident.
	close(release)
}

func TestDeviceFileCloseIdempotent(t *testing.T) {
	closed := 0
	d := &DeviceFile{closeFunc: func() error {
		closed++
		return nil
	}}
	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if closed != 1 {
		t.Errorf("handle closed %d times, want 1", closed)
	}
}

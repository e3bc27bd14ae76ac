package usbshare

import (
	"context"
	"fmt"
	"sync"
)

// ioFuture is a single-assignment completion slot for one outstanding
// device-control operation. It is fulfilled exactly once, either before the
// submission returns (synchronous completion) or later from the completion
// callback; waiters cannot tell the two paths apart.
type ioFuture struct {
	done chan struct{}
	once sync.Once
	n    uint32
	err  error
}

func newIoFuture() *ioFuture {
	return &ioFuture{done: make(chan struct{})}
}

func (f *ioFuture) complete(n uint32, err error) {
	f.once.Do(func() {
		f.n, f.err = n, err
		close(f.done)
	})
}

func (f *ioFuture) wait(ctx context.Context) (uint32, error) {
	select {
	case <-f.done:
		return f.n, f.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// submitFunc issues one native device-control request and arranges for
// exactly one complete call on the future.
type submitFunc func(code uint32, in, out []byte, f *ioFuture)

// DeviceFile is an open device handle configured for asynchronous
// completion. It does not serialize concurrent Control calls; issuing them
// concurrently on one handle is undefined at the OS level and is up to the
// owning connection to avoid.
type DeviceFile struct {
	submit    submitFunc
	closeFunc func() error
}

// Control issues a device-control request and waits for its completion,
// returning the completed byte count. With exactLen set, a successful
// completion of any size other than len(out) is a protocol violation by the
// driver, a stronger signal than a plain I/O error. Cancelling ctx abandons
// the wait; the already-issued native operation still runs to completion,
// so the teardown path must not close the handle before it has.
func (d *DeviceFile) Control(ctx context.Context, code uint32, in, out []byte, exactLen bool) (uint32, error) {
	f := newIoFuture()
	d.submit(code, in, out, f)
	n, err := f.wait(ctx)
	if err != nil {
		return 0, err
	}
	if exactLen && int(n) != len(out) {
		return 0, &ProtocolViolationError{
			Reason: fmt.Sprintf("control 0x%X completed with %d bytes, expected %d", code, n, len(out)),
		}
	}
	return n, nil
}

// Close releases the underlying handle, which also drops any exclusive
// claim held through it. Outstanding operations must have completed or been
// abandoned by the owning scope before calling Close.
func (d *DeviceFile) Close() error {
	if d.closeFunc == nil {
		return nil
	}
	closeFunc := d.closeFunc
	d.closeFunc = nil
	return closeFunc()
}

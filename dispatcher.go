package usbshare

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// DefaultPort is the well-known TCP port of the device-sharing protocol.
const DefaultPort = 3240

// InstanceGuard is the process-wide marker that keeps two service instances
// from running at once. Its lifetime is the process; Release exists for
// orderly shutdown.
type InstanceGuard interface {
	// AlreadyRunning reports whether another instance held the marker when
	// this one started.
	AlreadyRunning() bool
	Release()
}

// Scope carries the state of one client connection: its identifier for the
// logs and its claimed-device slot.
type Scope struct {
	ID string

	mu     sync.Mutex
	device *ClaimedDevice
}

func newScope() *Scope {
	return &Scope{ID: uuid.NewString()}
}

// Attach stores the connection's claimed device. A connection owns at most
// one device at a time.
func (s *Scope) Attach(device *ClaimedDevice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device != nil {
		return errors.New("scope already holds a claimed device")
	}
	s.device = device
	return nil
}

// Device returns the claimed device, or nil if none is attached.
func (s *Scope) Device() *ClaimedDevice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

// Close releases the claimed device, if any. It runs on every teardown path
// and may be called more than once.
func (s *Scope) Close() {
	s.mu.Lock()
	device := s.device
	s.device = nil
	s.mu.Unlock()

	if device != nil {
		if err := device.Release(); err != nil {
			log.Printf("connection %s: releasing claimed device: %v", s.ID, err)
		}
	}
}

// ConnectionHandler is the wire-protocol layer serving one client. The
// handler owns the connection for its lifetime; the dispatcher closes conn
// and the scope when it returns, or earlier when ctx is cancelled.
type ConnectionHandler func(ctx context.Context, scope *Scope, conn net.Conn)

// Dispatcher accepts device-sharing clients on one fixed TCP port and runs
// each connection as its own unit of work.
type Dispatcher struct {
	// Addr is the listen address; empty means ":3240".
	Addr    string
	Handler ConnectionHandler

	mu     sync.Mutex
	ln     net.Listener
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// Listen binds the protocol port. It is split from Serve so callers can
// learn the bound address before serving.
func (d *Dispatcher) Listen(ctx context.Context) error {
	addr := d.Addr
	if addr == "" {
		addr = fmt.Sprintf(":%d", DefaultPort)
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.ln = ln
	d.conns = make(map[net.Conn]struct{})
	d.closed = false
	d.mu.Unlock()
	return nil
}

// LocalAddr returns the bound address after Listen.
func (d *Dispatcher) LocalAddr() net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ln == nil {
		return nil
	}
	return d.ln.Addr()
}

// Serve runs the accept loop until ctx is cancelled or the listener fails.
// Cancellation closes the listener and force-closes every live client
// socket, so blocked handler reads observe closure promptly instead of
// hanging; Serve then waits for the per-connection goroutines to finish.
func (d *Dispatcher) Serve(ctx context.Context) error {
	d.mu.Lock()
	ln := d.ln
	d.mu.Unlock()
	if ln == nil {
		return errors.New("dispatcher: Serve before Listen")
	}

	stop := context.AfterFunc(ctx, func() {
		ln.Close()
		d.mu.Lock()
		d.closed = true
		for conn := range d.conns {
			conn.Close()
		}
		d.mu.Unlock()
	})
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			d.wg.Wait()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		// A conn accepted in the window before cancellation closed the
		// listener has not been swept by the AfterFunc; the closed flag,
		// taken under the same mutex, closes it here instead.
		d.mu.Lock()
		d.conns[conn] = struct{}{}
		if d.closed {
			conn.Close()
		}
		d.mu.Unlock()
		d.wg.Add(1)
		go d.handle(ctx, conn)
	}
}

// Run binds and serves.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.Listen(ctx); err != nil {
		return err
	}
	return d.Serve(ctx)
}

func (d *Dispatcher) handle(ctx context.Context, conn net.Conn) {
	defer d.wg.Done()
	defer func() {
		d.mu.Lock()
		delete(d.conns, conn)
		d.mu.Unlock()
		conn.Close()
	}()

	scope := newScope()
	defer scope.Close()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Printf("connection %s accepted from %s", scope.ID, clientAddr(conn.RemoteAddr()))
	if d.Handler != nil {
		d.Handler(connCtx, scope, conn)
	}
	log.Printf("connection %s closed", scope.ID)
}

// clientAddr renders a peer address for the logs, unmapping
// IPv4-mapped-IPv6 addresses to plain IPv4.
func clientAddr(addr net.Addr) string {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return addr.String()
	}
	ip := tcp.IP
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	return net.JoinHostPort(ip.String(), strconv.Itoa(tcp.Port))
}

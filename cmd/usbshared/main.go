//go:build windows

package main

import (
	"bufio"
	"context"
	"flag"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	usbshare "github.com/usbshare/go-usbshare"
)

var (
	addr     = flag.String("addr", ":3240", "TCP listen address")
	deadline = flag.Duration("claim-deadline", 5*time.Second, "How long to keep retrying a claim while the device is still enumerating")
)

func main() {
	flag.Parse()

	guard, err := usbshare.NewInstanceGuard()
	if err != nil {
		log.Fatalf("Failed to create single-instance marker: %v", err)
	}
	defer guard.Release()
	if guard.AlreadyRunning() {
		log.Fatalf("Another instance is already running")
	}

	claimer := usbshare.NewClaimer()
	claimer.Deadline = *deadline
	srv := &server{claimer: claimer}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatcher := &usbshare.Dispatcher{
		Addr:    *addr,
		Handler: srv.handle,
	}
	log.Printf("Listening on %s", *addr)
	if err := dispatcher.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("Dispatcher failed: %v", err)
	}
}

type server struct {
	claimer *usbshare.Claimer
}

// handle serves one client connection. The first line names the bus id of
// the device to share; the device is claimed for the connection's lifetime
// and released when the scope closes.
//
// TODO: replace the line exchange with the device-sharing wire protocol.
func (s *server) handle(ctx context.Context, scope *usbshare.Scope, conn net.Conn) {
	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	if err != nil {
		return
	}
	id, err := usbshare.ParseBusID(strings.TrimSpace(line))
	if err != nil {
		log.Printf("connection %s: bad bus id: %v", scope.ID, err)
		return
	}
	device, err := s.claimer.Claim(ctx, id)
	if err != nil {
		log.Printf("connection %s: claiming %s: %v", scope.ID, id, err)
		return
	}
	if err := scope.Attach(device); err != nil {
		device.Release()
		return
	}
	log.Printf("connection %s: claimed %s via %s", scope.ID, id, device.InterfacePath)
	// The peer controls the connection lifetime until the relay lands.
	_, _ = io.Copy(io.Discard, r)
}

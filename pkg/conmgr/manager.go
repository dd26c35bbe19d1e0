package conmgr

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/slurmcore/slurmcore/pkg/log"
	"github.com/slurmcore/slurmcore/pkg/workq"
)

// MaxOpenConnections is the soft cap past which listeners stop being
// re-armed for accept; existing Connections keep draining and accepts
// resume once the count drops back below it.
const MaxOpenConnections = 124

// MaxBufSize bounds a Connection's input buffer; exceeding it closes the
// Connection with an error.
const MaxBufSize = 16 * 1024 * 1024

type listenerConn struct {
	id     uint64
	fd     int
	file   *os.File // dup'd fd backing fd; closed alongside listen
	events Events
	kind   Kind
	listen net.Listener // kept alive for its Close(); accept goes via raw fd
}

// Manager is a reactive connection manager: a single poll loop
// multiplexing registered Connections over a WorkQueue, with one mutex
// guarding all shared state and strict per-connection callback
// serialization.
type Manager struct {
	workers *workq.WorkQueue

	mu sync.Mutex

	processing map[uint64]*Connection
	listeners  map[uint64]*listenerConn

	eventPipeR, eventPipeW   int
	sigintPipeR, sigintPipeW int

	shutdown bool

	sigCh chan os.Signal
	done  chan struct{}
}

// New creates a Manager dispatching all callbacks onto workers. workers
// is borrowed from the caller; Run quiesces it before returning.
func New(workers *workq.WorkQueue) (*Manager, error) {
	m := &Manager{
		workers:    workers,
		processing: make(map[uint64]*Connection),
		listeners:  make(map[uint64]*listenerConn),
		done:       make(chan struct{}),
	}

	eventR, eventW, err := selfPipe()
	if err != nil {
		return nil, fmt.Errorf("conmgr: event pipe: %w", err)
	}
	m.eventPipeR, m.eventPipeW = eventR, eventW

	sigR, sigW, err := selfPipe()
	if err != nil {
		return nil, fmt.Errorf("conmgr: sigint pipe: %w", err)
	}
	m.sigintPipeR, m.sigintPipeW = sigR, sigW

	return m, nil
}

func selfPipe() (r, w int, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return 0, 0, err
	}
	return fds[0], fds[1], nil
}

// Listen registers a new listening socket ("tcp" or "unix") whose
// accepted connections are handed kind/events. Returns the listener's id.
func (m *Manager) Listen(network, address string, kind Kind, events Events) (uint64, error) {
	ln, err := net.Listen(network, address)
	if err != nil {
		return 0, fmt.Errorf("conmgr: listen %s %s: %w", network, address, err)
	}
	fd, f, err := rawFD(ln)
	if err != nil {
		ln.Close()
		return 0, err
	}

	id := allocConnID()
	lc := &listenerConn{id: id, fd: fd, file: f, events: events, kind: kind, listen: ln}

	m.mu.Lock()
	m.listeners[id] = lc
	m.mu.Unlock()
	m.wake()

	log.WithComponent("conmgr").Info().Str("network", network).Str("addr", address).Msg("conmgr: listening")
	return id, nil
}

// rawFD extracts a dup'd kernel fd backing a net.Listener. The returned
// *os.File owns that dup and must be closed alongside the listener; ln
// itself is untouched and still owns its own Close().
func rawFD(ln net.Listener) (int, *os.File, error) {
	sc, ok := ln.(interface {
		File() (*os.File, error)
	})
	if !ok {
		return 0, nil, fmt.Errorf("conmgr: listener type %T has no raw fd", ln)
	}
	f, err := sc.File()
	if err != nil {
		return 0, nil, err
	}
	// f.Fd() puts the underlying fd back into blocking mode as a side
	// effect of *os.File's runtime integration; re-clear it immediately.
	fd := int(f.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		f.Close()
		return 0, nil, err
	}
	return fd, f, nil
}

// wake nudges the poll loop to recompute its fd set immediately, used
// whenever listeners/processing/shutdown change out from under it.
func (m *Manager) wake() {
	var b [1]byte
	_, _ = unix.Write(m.eventPipeW, b[:])
}

// Run installs a SIGINT handler, drives the poll/inspect loop until
// Shutdown is requested (by signal or by the caller), drains all
// Connections, and returns once the WorkQueue has fully quiesced.
func (m *Manager) Run(ctx context.Context) error {
	m.sigCh = make(chan os.Signal, 1)
	signal.Notify(m.sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(m.sigCh)

	go func() {
		select {
		case <-m.sigCh:
			var b [1]byte
			_, _ = unix.Write(m.sigintPipeW, b[:])
		case <-ctx.Done():
			m.Shutdown()
		case <-m.done:
		}
	}()

	err := m.loop()
	close(m.done)
	return err
}

// Shutdown requests a graceful stop: listeners are no longer polled for
// accepts, processing Connections are marked closing, and the inspector
// drains them. Once they are gone, Run's loop closes the listeners and
// quiesces the WorkQueue, after which submits are refused. Safe to call
// multiple times.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.shutdown = true
	for _, c := range m.processing {
		if c.state < stateClosing {
			c.state = stateClosing
		}
	}
	m.mu.Unlock()
	m.wake()
}

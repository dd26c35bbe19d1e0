package conmgr

import (
	"fmt"
	"net"
	"sync/atomic"
)

// connState is a Connection's lifecycle stage. Transitions only move
// forward: new -> connected -> closing -> closed.
type connState int32

const (
	stateNew connState = iota
	stateConnected
	stateClosing
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateNew:
		return "new"
	case stateConnected:
		return "connected"
	case stateClosing:
		return "closing"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Kind distinguishes what a Connection's callbacks decode from its input
// buffer: raw bytes (OnData) or framed RPC messages (OnMsg).
type Kind int

const (
	KindRaw Kind = iota
	KindRPC
)

const (
	initialBufSize  = 4 * 1024
	defaultReadSize = 512
)

var nextConnID uint64

// Connection is one accepted or dialed socket under Conmgr's management.
// All mutable fields are guarded by the owning Manager's mutex; code
// outside this package must go through the accessor API in accessors.go.
type Connection struct {
	id   uint64
	name string
	kind Kind

	inputFD  int
	outputFD int
	isSocket bool

	peerAddr net.Addr

	events Events
	arg    any // opaque state threaded through OnConnection -> OnData/OnMsg -> OnFinish

	in  []byte
	out []byte

	state connState

	canRead  bool
	canWrite bool
	readEOF  bool
	needMore bool // last OnData/OnMsg asked for more bytes before re-invoking

	hasPendingWork bool     // per-connection serialization latch
	deferred       []func() // extra work units queued by a callback, drained before I/O

	onConnectionCalled bool
	finished           bool // on_finish has already run (or was skipped by design)
}

func newConnection(id uint64, inputFD, outputFD int, kind Kind, events Events, peerAddr net.Addr, isSocket bool) *Connection {
	name := fmt.Sprintf("conn-%d", id)
	if peerAddr != nil {
		name = fmt.Sprintf("conn-%d %s", id, peerAddr.String())
	}
	return &Connection{
		id:       id,
		name:     name,
		kind:     kind,
		inputFD:  inputFD,
		outputFD: outputFD,
		isSocket: isSocket,
		peerAddr: peerAddr,
		events:   events,
		in:       make([]byte, 0, initialBufSize),
		out:      make([]byte, 0, initialBufSize),
		state:    stateNew,
	}
}

// Name returns the Connection's human-readable identifier, stable for
// the life of the Connection (e.g. "conn-7 127.0.0.1:51422").
func (c *Connection) Name() string {
	return c.name
}

// ID returns the Connection's Manager-assigned identifier.
func (c *Connection) ID() uint64 {
	return c.id
}

// PeerAddr returns the remote address for accepted socket Connections, or
// nil for pipe-backed Connections (event/sigint self-pipes are never
// exposed as Connections to callers).
func (c *Connection) PeerAddr() net.Addr {
	return c.peerAddr
}

func allocConnID() uint64 {
	return atomic.AddUint64(&nextConnID, 1)
}

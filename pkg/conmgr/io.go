package conmgr

import (
	"errors"
	"net"

	"golang.org/x/sys/unix"

	"github.com/slurmcore/slurmcore/pkg/log"
	"github.com/slurmcore/slurmcore/pkg/metrics"
	"github.com/slurmcore/slurmcore/pkg/wire"
)

func transportLabel(isSocket bool, peerAddr net.Addr) string {
	if !isSocket {
		return "pipe"
	}
	if _, ok := peerAddr.(*net.UnixAddr); ok {
		return "unix"
	}
	return "tcp"
}

func closeFD(fd int) error {
	return unix.Close(fd)
}

// doAccept drains a listener's backlog with accept4, handing each new fd
// to addConnection. Soft errors (EAGAIN/EMFILE/ENFILE/ENOBUFS/ENOMEM)
// leave the listener registered for a later retry; anything else is
// fatal and the listener is torn down.
func (m *Manager) doAccept(lc *listenerConn) {
	logger := log.WithComponent("conmgr")

	for {
		m.mu.Lock()
		overCap := len(m.processing) >= MaxOpenConnections
		m.mu.Unlock()
		if overCap {
			return
		}

		fd, sa, err := unix.Accept4(lc.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			switch {
			case errors.Is(err, unix.EINTR):
				continue
			case errors.Is(err, unix.EAGAIN),
				errors.Is(err, unix.EMFILE),
				errors.Is(err, unix.ENFILE),
				errors.Is(err, unix.ENOBUFS),
				errors.Is(err, unix.ENOMEM):
				return
			default:
				logger.Error().Err(err).Str("listener", lc.listen.Addr().String()).
					Msg("conmgr: fatal accept error, closing listener")
				m.mu.Lock()
				delete(m.listeners, lc.id)
				m.mu.Unlock()
				_ = lc.listen.Close()
				if lc.file != nil {
					_ = lc.file.Close()
				}
				return
			}
		}

		peerAddr := sockaddrToAddr(sa)
		m.addConnection(fd, fd, lc.kind, lc.events, peerAddr, true)
	}
}

func sockaddrToAddr(sa unix.Sockaddr) net.Addr {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: v.Addr[:], Port: v.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: v.Addr[:], Port: v.Port}
	case *unix.SockaddrUnix:
		return &net.UnixAddr{Name: v.Name, Net: "unix"}
	default:
		return nil
	}
}

// addConnection registers a newly accepted or dialed fd pair, allocating
// its buffers and enqueueing the one-shot OnConnection work unit.
func (m *Manager) addConnection(inputFD, outputFD int, kind Kind, events Events, peerAddr net.Addr, isSocket bool) uint64 {
	_ = unix.SetNonblock(inputFD, true)
	if outputFD != inputFD {
		_ = unix.SetNonblock(outputFD, true)
	}
	if isSocket {
		_ = unix.SetsockoptInt(inputFD, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
	}

	id := allocConnID()
	c := newConnection(id, inputFD, outputFD, kind, events, peerAddr, isSocket)
	c.hasPendingWork = true

	m.mu.Lock()
	m.processing[id] = c
	m.mu.Unlock()
	metrics.ConmgrConnectionsTotal.WithLabelValues(transportLabel(isSocket, peerAddr)).Inc()

	err := m.workers.Submit(func() { m.doOnConnection(c) }, "on_connection")
	if err != nil {
		m.mu.Lock()
		delete(m.processing, id)
		m.mu.Unlock()
		_ = closeFD(inputFD)
		if outputFD != inputFD {
			_ = closeFD(outputFD)
		}
	}
	m.wake()
	return id
}

func (m *Manager) doOnConnection(c *Connection) {
	logger := log.WithComponent("conmgr")

	var arg any
	var err error
	if c.events.OnConnection != nil {
		arg, err = c.events.OnConnection(c)
	}

	m.mu.Lock()
	if err != nil {
		logger.Error().Err(err).Str("conn", c.name).Msg("conmgr: on_connection failed, closing without on_finish")
		c.state = stateClosing
		c.onConnectionCalled = false
	} else {
		c.arg = arg
		c.onConnectionCalled = true
		c.state = stateConnected
	}
	c.hasPendingWork = false
	m.mu.Unlock()
	m.wake()
}

// doRead estimates available bytes with FIONREAD, grows in, and reads
// once. EAGAIN is a no-op; a zero-length read sets readEOF.
func (m *Manager) doRead(c *Connection) {
	want := defaultReadSize
	if n, err := unix.IoctlGetInt(c.inputFD, unix.FIONREAD); err == nil && n > 0 {
		want = n
	}

	m.mu.Lock()
	room := MaxBufSize - len(c.in)
	m.mu.Unlock()
	if room <= 0 {
		m.mu.Lock()
		c.state = stateClosing
		m.mu.Unlock()
		return
	}
	if want > room {
		want = room
	}

	buf := make([]byte, want)
	n, err := unix.Read(c.inputFD, buf)

	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case err != nil:
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			c.canRead = false
			return
		}
		c.readEOF = true
		c.state = stateClosing
	case n == 0:
		c.readEOF = true
	default:
		c.in = append(c.in, buf[:n]...)
		if n < want {
			c.canRead = false
		}
		metrics.ConmgrBytesReadTotal.WithLabelValues(transportLabel(c.isSocket, c.peerAddr)).Add(float64(n))
	}
}

// doWrite sends pending out bytes, shifting any partial residue to the
// front of the buffer. EAGAIN defers; any other error drops out and
// closes.
func (m *Manager) doWrite(c *Connection) {
	m.mu.Lock()
	pending := append([]byte(nil), c.out...)
	m.mu.Unlock()
	if len(pending) == 0 {
		return
	}

	var n int
	var err error
	if c.isSocket {
		n, err = unix.Send(c.outputFD, pending, unix.MSG_DONTWAIT|unix.MSG_NOSIGNAL)
	} else {
		n, err = unix.Write(c.outputFD, pending)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case err != nil:
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			c.canWrite = false
			return
		}
		c.out = nil
		c.state = stateClosing
	default:
		c.out = c.out[n:]
		if n < len(pending) {
			c.canWrite = false
		}
		metrics.ConmgrBytesWrittenTotal.WithLabelValues(transportLabel(c.isSocket, c.peerAddr)).Add(float64(n))
	}
}

// doDispatch hands unconsumed input to OnData (KindRaw) or decodes
// framed messages and hands them to OnMsg (KindRPC).
func (m *Manager) doDispatch(c *Connection) {
	switch c.kind {
	case KindRaw:
		m.dispatchRaw(c)
	case KindRPC:
		m.dispatchRPC(c)
	}
}

func (m *Manager) dispatchRaw(c *Connection) {
	if c.events.OnData == nil {
		m.mu.Lock()
		c.in = nil
		m.mu.Unlock()
		return
	}
	needMore, err := c.events.OnData(c, c.arg)
	logger := log.WithComponent("conmgr")
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		logger.Error().Err(err).Str("conn", c.name).Msg("conmgr: on_data failed, closing")
		c.state = stateClosing
		return
	}
	c.needMore = needMore
}

func (m *Manager) dispatchRPC(c *Connection) {
	logger := log.WithComponent("conmgr")
	for {
		m.mu.Lock()
		buf := c.in
		m.mu.Unlock()

		msg, consumed, err := wire.TryDecodeFrame(buf)
		if errors.Is(err, wire.ErrNeedMoreBytes) {
			m.mu.Lock()
			c.needMore = true
			m.mu.Unlock()
			return
		}
		if err != nil {
			logger.Error().Err(err).Str("conn", c.name).Msg("conmgr: protocol decode error, closing")
			m.mu.Lock()
			c.state = stateClosing
			m.mu.Unlock()
			return
		}

		m.mu.Lock()
		c.in = c.in[consumed:]
		m.mu.Unlock()

		if c.events.OnMsg != nil {
			if err := c.events.OnMsg(c, c.arg, msg); err != nil {
				logger.Error().Err(err).Str("conn", c.name).Msg("conmgr: on_msg handler error, closing")
				m.mu.Lock()
				c.state = stateClosing
				m.mu.Unlock()
				return
			}
		}

		m.mu.Lock()
		remaining := len(c.in)
		m.mu.Unlock()
		if remaining == 0 {
			return
		}
	}
}

func (m *Manager) doFinish(c *Connection) {
	if c.events.OnFinish != nil {
		c.events.OnFinish(c, c.arg)
	}
	m.mu.Lock()
	c.arg = nil
	m.mu.Unlock()
}

// teardownListeners closes every registered listener as part of
// Shutdown's drain sequence.
func (m *Manager) teardownListeners() {
	m.mu.Lock()
	listeners := make([]*listenerConn, 0, len(m.listeners))
	for _, lc := range m.listeners {
		listeners = append(listeners, lc)
	}
	m.listeners = make(map[uint64]*listenerConn)
	m.mu.Unlock()

	for _, lc := range listeners {
		_ = lc.listen.Close()
		if lc.file != nil {
			_ = lc.file.Close()
		}
	}
}

package conmgr

import (
	"github.com/rs/zerolog"

	"github.com/slurmcore/slurmcore/pkg/metrics"
)

// inspect runs one pass over every processing Connection, choosing at
// most one action per Connection and submitting it as that Connection's
// single outstanding work unit. It never performs I/O itself; it only
// reads the readiness flags the poll loop set and schedules a work unit
// that will.
func (m *Manager) inspect(logger zerolog.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, c := range m.processing {
		if c.hasPendingWork || c.state == stateClosed {
			continue
		}

		switch {
		case len(c.deferred) > 0:
			fn := c.deferred[0]
			c.deferred = c.deferred[1:]
			c.hasPendingWork = true
			m.submitConnWork(id, c, "deferred", fn)

		case len(c.out) > 0 && c.canWrite:
			c.hasPendingWork = true
			m.submitConnWork(id, c, "write", func() { m.doWrite(c) })

		case c.state < stateClosing && len(c.in) < MaxBufSize && c.canRead && !c.readEOF:
			c.hasPendingWork = true
			m.submitConnWork(id, c, "read", func() { m.doRead(c) })

		case len(c.in) > 0 && !c.needMore:
			c.hasPendingWork = true
			m.submitConnWork(id, c, "dispatch", func() { m.doDispatch(c) })

		// A Connection reaches here either because the peer EOF'd or
		// because something marked it closing directly (Shutdown, a
		// write/accept error, Manager.Close): either way, run on_finish
		// once, then tear it down once its buffers are drained.
		case (c.readEOF || c.state >= stateClosing) && c.onConnectionCalled && !c.finished:
			c.state = stateClosing
			c.finished = true
			c.hasPendingWork = true
			m.submitConnWork(id, c, "finish", func() { m.doFinish(c) })

		case c.state >= stateClosing && len(c.out) == 0 && len(c.in) == 0:
			m.closeConnLocked(id, c)

		default:
			logger.Debug().Str("conn", c.name).Msg("conmgr: connection idle, nothing to schedule")
		}
	}
}

// submitConnWork enqueues fn on the shared WorkQueue and clears the
// Connection's pending-work latch once it completes, waking the poll
// loop so the next inspector pass can reconsider it.
func (m *Manager) submitConnWork(id uint64, c *Connection, tag string, fn func()) {
	err := m.workers.Submit(func() {
		fn()
		m.mu.Lock()
		if cur, ok := m.processing[id]; ok && cur == c {
			c.hasPendingWork = false
		}
		m.mu.Unlock()
		m.wake()
	}, tag)
	if err != nil {
		// WorkQueue is shutting down; give up on this unit, the
		// Connection will be torn down by the shutdown drain path.
		c.hasPendingWork = false
	}
}

// closeConnLocked tears down a fully-drained, EOF'd Connection. Caller
// must hold m.mu.
func (m *Manager) closeConnLocked(id uint64, c *Connection) {
	c.state = stateClosed
	_ = closeFD(c.inputFD)
	if c.outputFD != c.inputFD {
		_ = closeFD(c.outputFD)
	}
	delete(m.processing, id)

	metrics.ConmgrConnectionsTotal.WithLabelValues(transportLabel(c.isSocket, c.peerAddr)).Dec()
	metrics.ConmgrConnectionsClosedTotal.WithLabelValues("drained").Inc()
}

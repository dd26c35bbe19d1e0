package conmgr

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/slurmcore/slurmcore/pkg/log"
	"github.com/slurmcore/slurmcore/pkg/metrics"
)

type pollTarget struct {
	kind       string // "event", "sigint", "listener", "conn"
	listenerID uint64
	connID     uint64
}

// loop is the single poll thread. It alternates between one poll(2) call
// and one inspector pass until shutdown is requested and every
// Connection and listener has drained.
func (m *Manager) loop() error {
	logger := log.WithComponent("conmgr")

	for {
		if m.quiescent() {
			break
		}

		timer := metrics.NewTimer()
		fds, targets := m.buildPollSet()
		n, err := unix.Poll(fds, -1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return err
		}
		if n == 0 {
			continue
		}

		m.applyPollResults(fds, targets)
		m.inspect(logger)
		timer.ObserveDuration(metrics.ConmgrPollDuration)
	}

	m.teardownListeners()
	m.workers.Quiesce()
	return nil
}

// quiescent reports whether shutdown has been requested and every
// managed Connection has fully drained and closed.
func (m *Manager) quiescent() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdown && len(m.processing) == 0
}

func (m *Manager) buildPollSet() ([]unix.PollFd, []pollTarget) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fds := make([]unix.PollFd, 0, 2+len(m.listeners)+len(m.processing))
	targets := make([]pollTarget, 0, cap(fds))

	fds = append(fds, unix.PollFd{Fd: int32(m.eventPipeR), Events: unix.POLLIN})
	targets = append(targets, pollTarget{kind: "event"})

	fds = append(fds, unix.PollFd{Fd: int32(m.sigintPipeR), Events: unix.POLLIN})
	targets = append(targets, pollTarget{kind: "sigint"})

	if !m.shutdown && len(m.processing) < MaxOpenConnections {
		for id, lc := range m.listeners {
			fds = append(fds, unix.PollFd{Fd: int32(lc.fd), Events: unix.POLLIN})
			targets = append(targets, pollTarget{kind: "listener", listenerID: id})
		}
	}

	for id, c := range m.processing {
		if c.state == stateClosed {
			continue
		}
		var want int16
		if len(c.in) < MaxBufSize {
			want |= unix.POLLIN
		}
		if len(c.out) > 0 {
			want |= unix.POLLOUT
		}
		if want == 0 {
			continue
		}
		fds = append(fds, unix.PollFd{Fd: int32(c.inputFD), Events: want})
		targets = append(targets, pollTarget{kind: "conn", connID: id})
	}

	return fds, targets
}

func (m *Manager) applyPollResults(fds []unix.PollFd, targets []pollTarget) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}
		t := targets[i]
		switch t.kind {
		case "event":
			if pfd.Revents&unix.POLLIN != 0 {
				drainPipe(m.eventPipeR)
			}
		case "sigint":
			if pfd.Revents&unix.POLLIN != 0 {
				drainPipe(m.sigintPipeR)
				m.shutdown = true
				for _, c := range m.processing {
					if c.state < stateClosing {
						c.state = stateClosing
					}
				}
			}
		case "listener":
			if pfd.Revents&unix.POLLIN != 0 {
				if lc, ok := m.listeners[t.listenerID]; ok {
					m.submitLocked(lc.id, "accept", func() { m.doAccept(lc) })
				}
			}
		case "conn":
			c, ok := m.processing[t.connID]
			if !ok {
				continue
			}
			if pfd.Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
				c.readEOF = true
				if c.state < stateClosing {
					c.state = stateClosing
				}
			}
			if pfd.Revents&unix.POLLIN != 0 {
				c.canRead = true
			}
			if pfd.Revents&unix.POLLOUT != 0 {
				c.canWrite = true
			}
		}
	}
}

func drainPipe(fd int) {
	var buf [64]byte
	for {
		n, err := unix.Read(fd, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// submitLocked enqueues fn as the named Connection/listener's outstanding
// work unit. Caller must hold m.mu.
func (m *Manager) submitLocked(id uint64, tag string, fn func()) {
	_ = m.workers.Submit(fn, tag)
	_ = id
}

package conmgr

// FDStatus is a snapshot of a Connection's readiness/lifecycle flags, the
// only view work units get of Manager-owned state.
type FDStatus struct {
	CanRead  bool
	CanWrite bool
	ReadEOF  bool
	State    string
}

// FDStatus returns a point-in-time snapshot of c's readiness flags. Safe
// to call from a work unit; acquires the owning Manager's lock.
func (m *Manager) FDStatus(c *Connection) FDStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return FDStatus{
		CanRead:  c.canRead,
		CanWrite: c.canWrite,
		ReadEOF:  c.readEOF,
		State:    c.state.String(),
	}
}

// ShadowInBuffer returns a read-only view of c's unconsumed input bytes.
// The view is invalidated the instant the calling callback returns; the
// caller must not retain it past that point. Call MarkConsumed to advance
// the read cursor before or after inspecting the view.
func (m *Manager) ShadowInBuffer(c *Connection) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return c.in
}

// MarkConsumed advances c's input read cursor by n bytes, dropping them
// from the front of the buffer. Called by OnData after processing some
// prefix of the shadow view.
func (m *Manager) MarkConsumed(c *Connection, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 {
		return
	}
	if n > len(c.in) {
		n = len(c.in)
	}
	c.in = c.in[n:]
}

// XferOutBuffer appends b to c's pending output and wakes the inspector
// so the next pass schedules a write once the Connection is writable.
func (m *Manager) XferOutBuffer(c *Connection, b []byte) {
	m.mu.Lock()
	c.out = append(c.out, b...)
	m.mu.Unlock()
	m.wake()
}

// Close marks c for closing; the inspector will drain pending output and
// tear it down on a subsequent pass.
func (m *Manager) Close(c *Connection) {
	m.mu.Lock()
	if c.state < stateClosing {
		c.state = stateClosing
	}
	m.mu.Unlock()
	m.wake()
}

package conmgr

import "github.com/slurmcore/slurmcore/pkg/wire"

// Events is the callback set a caller registers when adding a Connection.
// Every callback runs on a WorkQueue worker, never on the poll thread, and
// at most one callback for a given Connection is ever in flight at a time.
type Events struct {
	// OnConnection runs once, before any OnData/OnMsg, and returns the
	// opaque arg threaded through the rest of the Connection's life. A
	// non-nil error here causes the Connection to close without OnFinish.
	OnConnection func(c *Connection) (arg any, err error)

	// OnData runs when in has unconsumed bytes and the Connection is
	// KindRaw. It observes in through ShadowInBuffer (a shadow, invalidated at
	// return) and must call MarkConsumed to advance the read cursor. A
	// true needMore return defers further OnData calls until more bytes
	// arrive.
	OnData func(c *Connection, arg any) (needMore bool, err error)

	// OnMsg runs when a Connection is KindRPC and MessageCodec has a
	// fully framed message ready.
	OnMsg func(c *Connection, arg any, msg wire.Message) error

	// OnFinish runs after EOF, once, only if OnConnection succeeded, and
	// happens-after every other callback for the Connection.
	OnFinish func(c *Connection, arg any)
}

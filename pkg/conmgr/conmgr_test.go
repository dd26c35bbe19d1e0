package conmgr

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slurmcore/slurmcore/internal/testutil"
	"github.com/slurmcore/slurmcore/pkg/workq"
)

// TestLoopbackEcho exercises the full accept -> on_connection -> on_data
// -> write -> on_finish path over a real TCP loopback socket.
func TestLoopbackEcho(t *testing.T) {
	wq := workq.New(4)
	mgr, err := New(wq)
	require.NoError(t, err)

	var connected int32
	var finished int32

	events := Events{
		OnConnection: func(c *Connection) (any, error) {
			atomic.AddInt32(&connected, 1)
			return map[string]int{}, nil
		},
		OnData: func(c *Connection, arg any) (bool, error) {
			in := mgr.ShadowInBuffer(c)
			echoed := append([]byte(nil), in...)
			mgr.MarkConsumed(c, len(in))
			mgr.XferOutBuffer(c, echoed)
			return false, nil
		},
		OnFinish: func(c *Connection, arg any) {
			atomic.AddInt32(&finished, 1)
		},
	}

	_, err = mgr.Listen("tcp", "127.0.0.1:0", KindRaw, events)
	require.NoError(t, err)

	var addr net.Addr
	mgr.mu.Lock()
	for _, lc := range mgr.listeners {
		addr = lc.listen.Addr()
	}
	mgr.mu.Unlock()
	require.NotNil(t, addr)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = mgr.Run(ctx)
	}()

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	payload := []byte("hello-conmgr")
	_, err = conn.Write(payload)
	require.NoError(t, err)

	readBuf := make([]byte, len(payload))
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = readFull(conn, readBuf)
	require.NoError(t, err)
	assert.Equal(t, payload, readBuf)

	waiter := testutil.DefaultWaiter()
	require.NoError(t, waiter.WaitFor(context.Background(), func() bool {
		return atomic.LoadInt32(&connected) == 1
	}, "on_connection invoked"))

	conn.Close()

	require.NoError(t, waiter.WaitFor(context.Background(), func() bool {
		return atomic.LoadInt32(&finished) == 1
	}, "on_finish invoked after peer close"))

	cancel()
	wg.Wait()
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// TestShutdownDrainsConnections verifies that Shutdown lets an existing
// connection's in-flight callback run to completion and then drains the
// connection before Run returns.
func TestShutdownDrainsConnections(t *testing.T) {
	wq := workq.New(2)
	mgr, err := New(wq)
	require.NoError(t, err)

	release := make(chan struct{})
	events := Events{
		OnConnection: func(c *Connection) (any, error) { return nil, nil },
		OnData: func(c *Connection, arg any) (bool, error) {
			<-release
			mgr.MarkConsumed(c, len(mgr.ShadowInBuffer(c)))
			return false, nil
		},
	}

	_, err = mgr.Listen("tcp", "127.0.0.1:0", KindRaw, events)
	require.NoError(t, err)

	var addr net.Addr
	mgr.mu.Lock()
	for _, lc := range mgr.listeners {
		addr = lc.listen.Addr()
	}
	mgr.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = mgr.Run(ctx)
	}()

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("x"))
	require.NoError(t, err)

	waiter := testutil.DefaultWaiter()
	require.NoError(t, waiter.WaitFor(context.Background(), func() bool {
		mgr.mu.Lock()
		defer mgr.mu.Unlock()
		return len(mgr.processing) == 1
	}, "connection registered"))

	mgr.Shutdown()
	close(release)
	conn.Close()

	require.NoError(t, waiter.WaitFor(context.Background(), func() bool {
		mgr.mu.Lock()
		defer mgr.mu.Unlock()
		return len(mgr.processing) == 0
	}, "connection drained after shutdown"))

	wg.Wait()
}

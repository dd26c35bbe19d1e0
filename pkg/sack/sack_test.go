package sack

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slurmcore/slurmcore/pkg/auth"
	"github.com/slurmcore/slurmcore/pkg/wire"
)

func dialUnix(sockPath string) (*net.UnixConn, error) {
	addr, err := net.ResolveUnixAddr("unix", sockPath)
	if err != nil {
		return nil, err
	}
	return net.DialUnix("unix", nil, addr)
}

func newTestDaemon(t *testing.T) (*Daemon, string) {
	t.Helper()
	runDir := filepath.Join(t.TempDir(), "slurm")

	reg := auth.NewRegistry()
	reg.Register(auth.NewMACCookieProvider([]byte("sack-test-secret"), time.Minute))

	d := New(reg, auth.ProviderMACCookie, func(uid, gid uint32) []byte {
		return []byte("groups=wheel")
	})
	require.NoError(t, d.Listen(runDir, DefaultSocketName, uint32(os.Getuid())))
	go d.Serve()
	t.Cleanup(func() { d.Close() })

	return d, d.sockPath
}

func sendFrame(t *testing.T, sockPath string, frame wire.SackFrame) wire.SackFrame {
	t.Helper()
	conn, err := dialUnix(sockPath)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(wire.EncodeSackFrame(frame))
	require.NoError(t, err)

	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	require.NoError(t, err)

	resp, _, err := wire.TryDecodeSackFrame(buf[:n])
	require.NoError(t, err)
	return resp
}

func TestPrepareRunDirCreatesSocketPath(t *testing.T) {
	runDir := filepath.Join(t.TempDir(), "slurm")
	sockPath, err := prepareRunDir(runDir, DefaultSocketName, uint32(os.Getuid()))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(runDir, DefaultSocketName), sockPath)

	info, err := os.Stat(runDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestPrepareRunDirRemovesStaleSocket(t *testing.T) {
	runDir := filepath.Join(t.TempDir(), "slurm")
	require.NoError(t, os.Mkdir(runDir, 0o755))
	stale := filepath.Join(runDir, DefaultSocketName)
	require.NoError(t, os.WriteFile(stale, []byte("stale"), 0o644))

	sockPath, err := prepareRunDir(runDir, DefaultSocketName, uint32(os.Getuid()))
	require.NoError(t, err)

	_, err = os.Stat(sockPath)
	assert.True(t, os.IsNotExist(err))
}

func TestCreateAndVerifyRoundTrip(t *testing.T) {
	_, sockPath := newTestDaemon(t)

	createResp := sendFrame(t, sockPath, wire.SackFrame{
		Version: wire.CurrentProtocolVersion,
		RPCID:   wire.SackCreate,
		Body: wire.EncodeSackCreateRequest(wire.SackCreateRequest{
			RecipientUID: auth.AnyUID,
			Payload:      []byte("job-submission-payload"),
		}),
	})
	require.Equal(t, wire.SackCreateResponse, createResp.RPCID)

	created, err := wire.DecodeSackCreateResponse(createResp.Body)
	require.NoError(t, err)
	require.NotEmpty(t, created.Token)

	verifyResp := sendFrame(t, sockPath, wire.SackFrame{
		Version: wire.CurrentProtocolVersion,
		RPCID:   wire.SackVerify,
		Body:    wire.EncodeSackVerifyRequest(wire.SackVerifyRequest{Token: created.Token}),
	})
	require.Equal(t, wire.SackVerifyResponse, verifyResp.RPCID)

	rc, err := wire.DecodeSackVerifyResponse(verifyResp.Body)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), rc)
}

func TestVerifyRejectsGarbageToken(t *testing.T) {
	_, sockPath := newTestDaemon(t)

	verifyResp := sendFrame(t, sockPath, wire.SackFrame{
		Version: wire.CurrentProtocolVersion,
		RPCID:   wire.SackVerify,
		Body:    wire.EncodeSackVerifyRequest(wire.SackVerifyRequest{Token: "not-a-real-token"}),
	})

	rc, err := wire.DecodeSackVerifyResponse(verifyResp.Body)
	require.NoError(t, err)
	assert.NotEqual(t, uint32(0), rc)
}

package sack

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"

	"github.com/slurmcore/slurmcore/pkg/auth"
	"github.com/slurmcore/slurmcore/pkg/log"
	"github.com/slurmcore/slurmcore/pkg/metrics"
	"github.com/slurmcore/slurmcore/pkg/wire"
)

func logWarnRunDirOwner(dir string, privilegedUID uint32) {
	log.WithComponent("sack").Warn().Str("dir", dir).Uint32("privileged_uid", privilegedUID).
		Msg("sack: run dir owned by root but privileged uid differs, continuing")
}

// IdentityResolver assembles the optional extra-identity string a
// SackCreate call may attach: group memberships, supplementary groups,
// primary group name. Left pluggable so this package never reaches into
// the OS user database directly.
type IdentityResolver func(uid, gid uint32) []byte

// Daemon serves SackCreate/SackVerify over a UNIX socket, authenticating
// callers by SO_PEERCRED rather than by a credential on the wire.
type Daemon struct {
	registry *auth.Registry
	provider auth.ProviderID
	resolver IdentityResolver

	sockPath string
	ln       *net.UnixListener
}

// New creates a Daemon that mints/verifies credentials of kind provider
// via registry. resolver may be nil, in which case extra identity is
// never attached.
func New(registry *auth.Registry, provider auth.ProviderID, resolver IdentityResolver) *Daemon {
	return &Daemon{registry: registry, provider: provider, resolver: resolver}
}

// Listen bootstraps the run directory and binds the UNIX socket at
// runDir/socketName, mode 0777.
func (d *Daemon) Listen(runDir, socketName string, privilegedUID uint32) error {
	sockPath, err := prepareRunDir(runDir, socketName, privilegedUID)
	if err != nil {
		return err
	}

	addr, err := net.ResolveUnixAddr("unix", sockPath)
	if err != nil {
		return fmt.Errorf("sack: resolve %s: %w", sockPath, err)
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return fmt.Errorf("sack: listen %s: %w", sockPath, err)
	}
	if err := os.Chmod(sockPath, 0o777); err != nil {
		ln.Close()
		return fmt.Errorf("sack: chmod %s: %w", sockPath, err)
	}

	d.sockPath = sockPath
	d.ln = ln
	log.WithComponent("sack").Info().Str("socket", sockPath).Msg("sack: listening")
	return nil
}

// Close stops accepting new connections.
func (d *Daemon) Close() error {
	if d.ln == nil {
		return nil
	}
	return d.ln.Close()
}

// Serve accepts connections until the listener is closed, handling each
// on its own goroutine. Each connection is short-lived: one request,
// one response.
func (d *Daemon) Serve() error {
	for {
		conn, err := d.ln.AcceptUnix()
		if err != nil {
			return err
		}
		go d.handleConn(conn)
	}
}

func (d *Daemon) handleConn(conn *net.UnixConn) {
	defer conn.Close()
	logger := log.WithComponent("sack")

	peerUID, peerGID, err := peerCredentials(conn)
	if err != nil {
		logger.Error().Err(err).Msg("sack: SO_PEERCRED lookup failed")
		return
	}

	var buf []byte
	readBuf := make([]byte, 4096)
	for {
		frame, consumed, ferr := wire.TryDecodeSackFrame(buf)
		if ferr == nil {
			buf = buf[consumed:]
			resp, respErr := d.dispatch(frame, peerUID, peerGID)
			if respErr != nil {
				logger.Error().Err(respErr).Msg("sack: request handling failed")
				return
			}
			if _, err := conn.Write(resp); err != nil {
				logger.Error().Err(err).Msg("sack: write response failed")
				return
			}
			return
		}
		if ferr != wire.ErrNeedMoreBytes {
			logger.Error().Err(ferr).Msg("sack: malformed frame, closing")
			return
		}
		if len(buf) > wire.MaxBodySize {
			logger.Error().Msg("sack: request exceeds maximum size, closing")
			return
		}

		n, err := conn.Read(readBuf)
		if err != nil {
			return
		}
		buf = append(buf, readBuf[:n]...)
	}
}

func (d *Daemon) dispatch(frame wire.SackFrame, peerUID, peerGID uint32) ([]byte, error) {
	switch frame.RPCID {
	case wire.SackCreate:
		resp, err := d.handleCreate(frame.Version, frame.Body, peerUID, peerGID)
		observeSackRequest("create", err)
		return resp, err
	case wire.SackVerify:
		resp, err := d.handleVerify(frame.Version, frame.Body, peerUID)
		observeSackRequest("verify", err)
		return resp, err
	default:
		err := fmt.Errorf("sack: unknown rpc_id %d", frame.RPCID)
		observeSackRequest("unknown", err)
		return nil, err
	}
}

func observeSackRequest(rpc string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.SackRequestsTotal.WithLabelValues(rpc, outcome).Inc()
}

func (d *Daemon) handleCreate(version uint16, body []byte, peerUID, peerGID uint32) ([]byte, error) {
	req, err := wire.DecodeSackCreateRequest(body)
	if err != nil {
		return nil, err
	}

	var extra []byte
	if d.resolver != nil {
		extra = d.resolver(peerUID, peerGID)
	}

	cred, err := d.registry.Mint(d.provider, req.Payload, peerUID, peerGID, req.RecipientUID, extra)
	if err != nil {
		return nil, err
	}
	token := d.registry.Encode(cred)

	respBody := wire.EncodeSackCreateResponse(wire.SackCreateResponseBody{Token: string(token)})
	return wire.EncodeSackFrame(wire.SackFrame{Version: version, RPCID: wire.SackCreateResponse, Body: respBody}), nil
}

func (d *Daemon) handleVerify(version uint16, body []byte, peerUID uint32) ([]byte, error) {
	req, err := wire.DecodeSackVerifyRequest(body)
	if err != nil {
		return nil, err
	}

	rc := uint32(0)
	cred, decErr := d.registry.Decode([]byte(req.Token))
	if decErr != nil {
		rc = 1
	} else if verErr := d.registry.Verify(cred, peerUID); verErr != nil {
		rc = 1
	}

	respBody := wire.EncodeSackVerifyResponse(rc)
	return wire.EncodeSackFrame(wire.SackFrame{Version: version, RPCID: wire.SackVerifyResponse, Body: respBody}), nil
}

// peerCredentials reads SO_PEERCRED off conn's underlying fd.
func peerCredentials(conn *net.UnixConn) (uid, gid uint32, err error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, 0, err
	}
	var ucred *unix.Ucred
	var inner error
	err = raw.Control(func(fd uintptr) {
		ucred, inner = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return 0, 0, err
	}
	if inner != nil {
		return 0, 0, inner
	}
	return uint32(ucred.Uid), uint32(ucred.Gid), nil
}

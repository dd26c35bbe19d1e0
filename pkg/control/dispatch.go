package control

import (
	"errors"
	"strconv"

	"github.com/slurmcore/slurmcore/pkg/auth"
	"github.com/slurmcore/slurmcore/pkg/log"
	"github.com/slurmcore/slurmcore/pkg/metrics"
	"github.com/slurmcore/slurmcore/pkg/wire"
)

// InfoSource backs one of the query-family RPCs whose object model is an
// external collaborator of this package (partition/node/step/powercap/
// topo/license/reservation data lives in the scheduler and accounting
// systems this package treats as out of scope). LastUpdate/Snapshot let
// the generic query handler implement the SLURM_NO_CHANGE_IN_DATA short
// circuit without knowing the object shape.
type InfoSource interface {
	LastUpdate() int64
	Snapshot(flags uint32) []byte
}

// JobStore is the job-record collaborator: the one object model this
// package specifies in full (wire.JobInfo), since job query/update is
// this package's actual subject matter rather than a delegated concern.
type JobStore interface {
	LastUpdate() int64
	Jobs() []wire.JobInfo
	Job(jobID uint32) (wire.JobInfo, bool)
	Owner(jobID uint32) (uid uint32, ok bool)
	ApplyUpdate(u wire.JobUpdate) error
	Kill(jobID, stepID uint32, signal int32) error
	Suspend(jobID uint32) error
	Resume(jobID uint32) error
	Requeue(jobID uint32) error
}

// Dispatcher routes decoded wire.Messages to handlers after verifying
// their credential. Fields left nil are valid for an InfoSource (the
// corresponding query family RPC always reports no data) but Auth and
// Jobs must be set before Handle is called.
type Dispatcher struct {
	Auth         *auth.Registry
	Jobs         JobStore
	Partitions   InfoSource
	Nodes        InfoSource
	Steps        InfoSource
	Powercap     InfoSource
	Topo         InfoSource
	Licenses     InfoSource
	Reservations InfoSource

	// Admins holds uids authorized to act on any job, not only their own.
	Admins map[uint32]bool

	// LocalUID is this receiver's own effective uid, checked against a
	// credential's recipient binding (AnyUID disables the check entirely;
	// anything else must equal LocalUID).
	LocalUID uint32

	// ExitOnError mirrors the daemon-mode "exit on error" toggle: when
	// true, any Handle error that is not AuthSkip also signals shutdown
	// to the caller via the second return value.
	ExitOnError bool
}

// Handle authenticates msg, dispatches it to the handler registered for
// msg.Type, and returns the encoded response body plus the response's
// RPC type. wantShutdown is true only when ExitOnError is set and the
// error returned is not AuthSkip.
func (d *Dispatcher) Handle(msg wire.Message) (respType wire.RPCType, body []byte, err error, wantShutdown bool) {
	timer := metrics.NewTimer()
	rpcLabel := strconv.Itoa(int(msg.Type))
	defer timer.ObserveDurationVec(metrics.ControlRPCDuration, rpcLabel)

	cred, err := d.authenticate(msg)
	if err != nil {
		metrics.ControlRPCsTotal.WithLabelValues(rpcLabel, "auth_error").Inc()
		return 0, nil, err, d.ExitOnError && !isAuthSkip(err)
	}

	handler, ok := handlers[msg.Type]
	if !ok {
		err := wrapf(ProtocolDecode, "dispatch", errUnknownRPCType(msg.Type))
		metrics.ControlRPCsTotal.WithLabelValues(rpcLabel, "unknown_rpc").Inc()
		return 0, nil, err, d.ExitOnError
	}

	respType, body, err = handler(d, cred, msg)
	if err != nil {
		metrics.ControlRPCsTotal.WithLabelValues(rpcLabel, "error").Inc()
		return 0, nil, err, d.ExitOnError && !isAuthSkip(err)
	}
	metrics.ControlRPCsTotal.WithLabelValues(rpcLabel, "ok").Inc()
	return respType, body, nil, false
}

func (d *Dispatcher) authenticate(msg wire.Message) (auth.Credential, error) {
	raw := wire.NewWriter()
	raw.PutUint32(msg.ProviderID)
	encoded := append(raw.Bytes(), msg.CredentialBody...)

	cred, err := d.Auth.Decode(encoded)
	if err != nil {
		return auth.Credential{}, wrapf(AuthInvalid, "authenticate", err)
	}

	if err := d.Auth.Verify(cred, d.LocalUID); err != nil {
		log.WithComponent("control").Warn().
			Str("peer", auth.HostOf(cred)).
			Msg("control: credential rejected")
		return auth.Credential{}, wrapf(AuthInvalid, "authenticate", err)
	}
	return cred, nil
}

func (d *Dispatcher) isAdmin(uid uint32) bool {
	return d.Admins != nil && d.Admins[uid]
}

// authorizeJob checks callerUID against jobID's owner or the admin set.
func (d *Dispatcher) authorizeJob(callerUID, jobID uint32) error {
	owner, ok := d.Jobs.Owner(jobID)
	if !ok {
		return wrapf(InvalidObjectID, "authorize", errNoSuchJob(jobID))
	}
	if owner == callerUID || d.isAdmin(callerUID) {
		return nil
	}
	return wrapf(PermissionDenied, "authorize", errNotOwner(jobID, callerUID))
}

func isAuthSkip(err error) bool {
	return errors.Is(err, ErrKind(AuthSkip))
}

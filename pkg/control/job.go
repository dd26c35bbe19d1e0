package control

import (
	"context"
	"time"

	"github.com/slurmcore/slurmcore/pkg/auth"
	"github.com/slurmcore/slurmcore/pkg/metrics"
	"github.com/slurmcore/slurmcore/pkg/wire"
)

// MaxCancelRetry mirrors wire.MaxCancelRetry; kept as a distinct name here
// since it governs the caller-side retry loop, not a wire constant.
const MaxCancelRetry = wire.MaxCancelRetry

// RetryDelay returns the linear-incrementing backoff for retry attempt i
// (0-based): 5, 6, 7, ... seconds, matching the caller-side retry rule for
// ESLURM_TRANSITION_STATE_NO_UPDATE / ESLURM_JOB_PENDING.
func RetryDelay(attempt int) time.Duration {
	return time.Duration(5+attempt) * time.Second
}

// RetryStateChange calls op repeatedly until it returns nil, a non-retriable
// rc, or MaxCancelRetry attempts are exhausted. It never retries
// ESlurmAlreadyDone or ESlurmInvalidJobID; every other non-zero rc is
// retried with RetryDelay(attempt) between attempts, honoring ctx
// cancellation in place of the delay.
func RetryStateChange(ctx context.Context, op func() (rc uint32, err error)) (uint32, error) {
	return retryStateChange(ctx, op, RetryDelay)
}

func retryStateChange(ctx context.Context, op func() (rc uint32, err error), delay func(attempt int) time.Duration) (uint32, error) {
	var rc uint32
	var err error
	for attempt := 0; attempt < MaxCancelRetry; attempt++ {
		rc, err = op()
		if err != nil {
			return rc, err
		}
		if rc == 0 {
			return 0, nil
		}
		if rc == wire.ESlurmAlreadyDone || rc == wire.ESlurmInvalidJobID {
			return rc, nil
		}

		metrics.ControlRetriesTotal.Inc()
		select {
		case <-ctx.Done():
			return rc, ctx.Err()
		case <-time.After(delay(attempt)):
		}
	}
	return rc, nil
}

func handleUpdateJob(d *Dispatcher, cred auth.Credential, msg wire.Message) (wire.RPCType, []byte, error) {
	update, err := wire.DecodeJobUpdate(msg.Body)
	if err != nil {
		return 0, nil, wrapf(ProtocolDecode, "update_job", err)
	}

	callerUID := auth.UIDOf(cred)
	if err := d.authorizeJob(callerUID, update.JobID); err != nil {
		return 0, nil, err
	}

	if err := d.Jobs.ApplyUpdate(update); err != nil {
		return 0, nil, wrapf(InvalidObjectID, "update_job", err)
	}
	return wire.RPCResponseRc, wire.EncodeResponseRc(0), nil
}

func decodeJobStepTarget(body []byte) (jobID, stepID uint32, signal int32, err error) {
	r := wire.NewReader(body)
	if jobID, err = r.Uint32(); err != nil {
		return 0, 0, 0, wrapf(ProtocolDecode, "decode_target", err)
	}
	if stepID, err = r.Uint32(); err != nil {
		return 0, 0, 0, wrapf(ProtocolDecode, "decode_target", err)
	}
	rawSignal, err := r.Uint32()
	if err != nil {
		return 0, 0, 0, wrapf(ProtocolDecode, "decode_target", err)
	}
	return jobID, stepID, int32(rawSignal), nil
}

// handleKillJob decodes {job_id, signal}; the whole job is the target, so
// the step is always NoVal.
func handleKillJob(d *Dispatcher, cred auth.Credential, msg wire.Message) (wire.RPCType, []byte, error) {
	r := wire.NewReader(msg.Body)
	jobID, err := r.Uint32()
	if err != nil {
		return 0, nil, wrapf(ProtocolDecode, "kill_job", err)
	}
	rawSignal, err := r.Uint32()
	if err != nil {
		return 0, nil, wrapf(ProtocolDecode, "kill_job", err)
	}

	if err := d.authorizeJob(auth.UIDOf(cred), jobID); err != nil {
		return 0, nil, err
	}
	if err := d.Jobs.Kill(jobID, wire.NoVal, int32(rawSignal)); err != nil {
		return 0, nil, wrapf(InvalidObjectID, "kill_job", err)
	}
	return wire.RPCResponseRc, wire.EncodeResponseRc(0), nil
}

// handleKillStep decodes {job_id, step_id, signal}; a single step is the
// target.
func handleKillStep(d *Dispatcher, cred auth.Credential, msg wire.Message) (wire.RPCType, []byte, error) {
	jobID, stepID, signal, err := decodeJobStepTarget(msg.Body)
	if err != nil {
		return 0, nil, err
	}

	if err := d.authorizeJob(auth.UIDOf(cred), jobID); err != nil {
		return 0, nil, err
	}
	if err := d.Jobs.Kill(jobID, stepID, signal); err != nil {
		return 0, nil, wrapf(InvalidObjectID, "kill_step", err)
	}
	return wire.RPCResponseRc, wire.EncodeResponseRc(0), nil
}

func decodeJobID(body []byte) (uint32, error) {
	r := wire.NewReader(body)
	jobID, err := r.Uint32()
	if err != nil {
		return 0, wrapf(ProtocolDecode, "decode_job_id", err)
	}
	return jobID, nil
}

func handleSuspendJob(d *Dispatcher, cred auth.Credential, msg wire.Message) (wire.RPCType, []byte, error) {
	jobID, err := decodeJobID(msg.Body)
	if err != nil {
		return 0, nil, err
	}
	if err := d.authorizeJob(auth.UIDOf(cred), jobID); err != nil {
		return 0, nil, err
	}
	if err := d.Jobs.Suspend(jobID); err != nil {
		return 0, nil, wrapf(InvalidObjectID, "suspend", err)
	}
	return wire.RPCResponseRc, wire.EncodeResponseRc(0), nil
}

func handleResumeJob(d *Dispatcher, cred auth.Credential, msg wire.Message) (wire.RPCType, []byte, error) {
	jobID, err := decodeJobID(msg.Body)
	if err != nil {
		return 0, nil, err
	}
	if err := d.authorizeJob(auth.UIDOf(cred), jobID); err != nil {
		return 0, nil, err
	}
	if err := d.Jobs.Resume(jobID); err != nil {
		return 0, nil, wrapf(InvalidObjectID, "resume", err)
	}
	return wire.RPCResponseRc, wire.EncodeResponseRc(0), nil
}

func handleRequeueJob(d *Dispatcher, cred auth.Credential, msg wire.Message) (wire.RPCType, []byte, error) {
	jobID, err := decodeJobID(msg.Body)
	if err != nil {
		return 0, nil, err
	}
	if err := d.authorizeJob(auth.UIDOf(cred), jobID); err != nil {
		return 0, nil, err
	}
	if err := d.Jobs.Requeue(jobID); err != nil {
		return 0, nil, wrapf(InvalidObjectID, "requeue", err)
	}
	return wire.RPCResponseRc, wire.EncodeResponseRc(0), nil
}

func handleReconfigureSackd(d *Dispatcher, cred auth.Credential, msg wire.Message) (wire.RPCType, []byte, error) {
	if !d.isAdmin(auth.UIDOf(cred)) {
		return 0, nil, wrapf(PermissionDenied, "reconfigure_sackd", errNotAdmin(auth.UIDOf(cred)))
	}
	return wire.RPCResponseRc, wire.EncodeResponseRc(0), nil
}

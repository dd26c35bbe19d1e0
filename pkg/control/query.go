package control

import (
	"github.com/slurmcore/slurmcore/pkg/auth"
	"github.com/slurmcore/slurmcore/pkg/wire"
)

// handler is one dispatch-table entry: given the caller's credential and
// the decoded request message, produce a response type + body or an error.
type handler func(d *Dispatcher, cred auth.Credential, msg wire.Message) (wire.RPCType, []byte, error)

var handlers = map[wire.RPCType]handler{
	wire.RPCRequestPartitionInfo:   handleInfoQuery(func(d *Dispatcher) InfoSource { return d.Partitions }, wire.RPCResponsePartitionInfo),
	wire.RPCRequestNodeInfo:        handleInfoQuery(func(d *Dispatcher) InfoSource { return d.Nodes }, wire.RPCResponseNodeInfo),
	wire.RPCRequestJobStepInfo:     handleInfoQuery(func(d *Dispatcher) InfoSource { return d.Steps }, wire.RPCResponseJobStepInfo),
	wire.RPCRequestPowercapInfo:    handleInfoQuery(func(d *Dispatcher) InfoSource { return d.Powercap }, wire.RPCResponsePowercapInfo),
	wire.RPCRequestTopoInfo:        handleInfoQuery(func(d *Dispatcher) InfoSource { return d.Topo }, wire.RPCResponseTopoInfo),
	wire.RPCRequestLicenseInfo:     handleInfoQuery(func(d *Dispatcher) InfoSource { return d.Licenses }, wire.RPCResponseLicenseInfo),
	wire.RPCRequestReservationInfo: handleInfoQuery(func(d *Dispatcher) InfoSource { return d.Reservations }, wire.RPCResponseReservationInfo),
	wire.RPCRequestJobInfo:         handleJobInfoQuery,

	wire.RPCUpdateJob:        handleUpdateJob,
	wire.RPCKillJob:          handleKillJob,
	wire.RPCKillStep:         handleKillStep,
	wire.RPCSuspendJob:       handleSuspendJob,
	wire.RPCResumeJob:        handleResumeJob,
	wire.RPCRequeueJob:       handleRequeueJob,
	wire.RPCReconfigureSackd: handleReconfigureSackd,
	wire.RPCWillRun:          handleWillRun,
}

// decodeQueryRequest reads the [u64 last_update][u32 flags] body shared
// by every query-family RPC.
func decodeQueryRequest(body []byte) (lastUpdate int64, flags uint32, err error) {
	r := wire.NewReader(body)
	raw, err := r.Uint64()
	if err != nil {
		return 0, 0, wrapf(ProtocolDecode, "decode_query", err)
	}
	flags, err = r.Uint32()
	if err != nil {
		return 0, 0, wrapf(ProtocolDecode, "decode_query", err)
	}
	return int64(raw), flags, nil
}

// handleInfoQuery builds a dispatch handler for one of the InfoSource-backed
// query RPCs: decode the shared request shape, compare last_update, and
// either answer SLURM_NO_CHANGE_IN_DATA or the source's snapshot.
func handleInfoQuery(pick func(*Dispatcher) InfoSource, respType wire.RPCType) handler {
	return func(d *Dispatcher, cred auth.Credential, msg wire.Message) (wire.RPCType, []byte, error) {
		lastUpdate, flags, err := decodeQueryRequest(msg.Body)
		if err != nil {
			return 0, nil, err
		}

		src := pick(d)
		if src == nil || (lastUpdate != 0 && src.LastUpdate() <= lastUpdate) {
			return wire.RPCResponseRc, wire.EncodeResponseRc(wire.SlurmNoChangeInData), nil
		}
		return respType, src.Snapshot(flags), nil
	}
}

func handleJobInfoQuery(d *Dispatcher, cred auth.Credential, msg wire.Message) (wire.RPCType, []byte, error) {
	lastUpdate, flags, err := decodeQueryRequest(msg.Body)
	if err != nil {
		return 0, nil, err
	}

	if lastUpdate != 0 && d.Jobs.LastUpdate() <= lastUpdate {
		return wire.RPCResponseRc, wire.EncodeResponseRc(wire.SlurmNoChangeInData), nil
	}

	jobs := d.Jobs.Jobs()
	w := wire.NewWriter()
	w.PutArrayCount(len(jobs))
	for _, j := range jobs {
		w.PutBytes(wire.EncodeJobInfo(j))
	}
	_ = flags // no hide/show distinction is tracked on JobInfo itself; SHOW_ALL is a no-op here
	return wire.RPCResponseJobInfo, w.Bytes(), nil
}

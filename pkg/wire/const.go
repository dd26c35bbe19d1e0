package wire

// Protocol version bounds. A receiver accepts any frame whose version falls
// in [MinProtocolVersion, CurrentProtocolVersion]. Decoders are selected by
// RPC type only: every version in the window is decoded with the same body
// layout. Kept two releases back for rolling upgrades.
const (
	MinProtocolVersion     uint16 = 38
	CurrentProtocolVersion uint16 = 40
)

// MaxBodySize caps a single frame's body before the Connection is closed,
// guarding against a peer claiming an unbounded body_length.
const MaxBodySize = 16 * 1024 * 1024

// Sentinel values carried across the wire on numeric fields. A field
// carrying one of these is not a measurement: it is a marker meaning
// "unlimited", "not specified", or (for JobUpdate) "leave unchanged".
const (
	Infinite   uint32 = 0xFFFFFFFF
	Infinite64 uint64 = 0xFFFFFFFFFFFFFFFF
	NoVal      uint32 = 0xFFFFFFFF
	NoVal16    uint16 = 0xFFFF
	NoVal64    uint64 = 0xFFFFFFFFFFFFFFFF
	// nullStringLen marks a string field as null (distinct from empty).
	nullStringLen uint32 = 0xFFFFFFFF
)

// High-bit flags folded into otherwise-plain numeric fields.
const (
	MemPerCPUFlag  uint64 = 1 << 63 // pn_min_memory: set means "per CPU", clear means "per node"
	CoreSpecThread uint16 = 1 << 15 // core_spec: set means the count is threads, not cores
)

// RPCType identifies the body layout following the frame header.
type RPCType uint32

const (
	RPCResponseRc RPCType = iota + 1000
	RPCRequestPartitionInfo
	RPCRequestNodeInfo
	RPCRequestJobInfo
	RPCRequestJobStepInfo
	RPCRequestPowercapInfo
	RPCRequestTopoInfo
	RPCRequestLicenseInfo
	RPCRequestReservationInfo
	RPCResponsePartitionInfo
	RPCResponseNodeInfo
	RPCResponseJobInfo
	RPCResponseJobStepInfo
	RPCResponsePowercapInfo
	RPCResponseTopoInfo
	RPCResponseLicenseInfo
	RPCResponseReservationInfo
	RPCUpdateJob
	RPCKillJob
	RPCKillStep
	RPCSuspendJob
	RPCResumeJob
	RPCRequeueJob
	RPCReconfigureSackd
	RPCWillRun
	RPCWillRunResponse
)

// Query flags, combinable bit flags accompanying the query family RPCs.
const (
	ShowAll        uint32 = 1 << 0
	ShowDetail     uint32 = 1 << 1
	ShowFederation uint32 = 1 << 2
	ShowLocal      uint32 = 1 << 3
)

// SLURM_NO_CHANGE_IN_DATA is returned via ResponseRc when a query's
// last_update is not older than the controller's record.
const SlurmNoChangeInData uint32 = 1900

// Error codes surfaced in ResponseRc.Rc for state-changing RPCs.
const (
	ESlurmAlreadyDone              uint32 = 2023
	ESlurmInvalidJobID             uint32 = 2017
	ESlurmTransitionStateNoUpdate  uint32 = 2040
	ESlurmJobPending               uint32 = 2024
	SlurmProtocolSocketImplTimeout uint32 = 8001
)

// MaxCancelRetry bounds how many times a caller retries a state-changing
// RPC on ESlurmTransitionStateNoUpdate / ESlurmJobPending.
const MaxCancelRetry = 10

package control

// ContainerState is one stage of a container's OCI-style lifecycle, used
// when a caller cannot reach the container's own anchor process and must
// infer its state from the job/step that launched it.
type ContainerState int

const (
	ContainerUnknown ContainerState = iota
	ContainerCreating
	ContainerCreated
	ContainerStarting
	ContainerRunning
	ContainerStopping
	ContainerStopped
)

func (s ContainerState) String() string {
	switch s {
	case ContainerCreating:
		return "creating"
	case ContainerCreated:
		return "created"
	case ContainerStarting:
		return "starting"
	case ContainerRunning:
		return "running"
	case ContainerStopping:
		return "stopping"
	case ContainerStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// rank gives the monotonic ordering transitions must respect: a forced
// transition may jump ahead but Advance never moves state backward.
func (s ContainerState) rank() int { return int(s) }

// Advance applies next unless it would move state backward, in which case
// state is returned unchanged. Matches the "transitions are monotonic
// forward... a forced transition bypasses intermediate states but never
// moves backward" rule.
func Advance(state, next ContainerState) ContainerState {
	if next.rank() < state.rank() {
		return state
	}
	return next
}

// Job-state constants as carried on the wire's JobInfo.State field. Kept
// local to this package: the container fallback logic and MemJobStore
// are the code that interprets them symbolically.
const (
	jobStatePending   uint32 = 0
	jobStateRunning   uint32 = 1
	jobStateSuspended uint32 = 2
	jobStateComplete  uint32 = 3
	jobStateCancelled uint32 = 4
	jobStateFailed    uint32 = 5
	jobStateTimeout   uint32 = 6
	jobStateNodeFail  uint32 = 7
)

func isTerminalJobState(state uint32) bool {
	switch state {
	case jobStateComplete, jobStateCancelled, jobStateFailed, jobStateTimeout, jobStateNodeFail:
		return true
	default:
		return false
	}
}

// ContainerJob is the step/job lookup collaborator the fallback path
// queries when a container's anchor cannot be reached directly.
type ContainerJob struct {
	JobID     uint32
	State     uint32
	StepCount int
}

// StepLookup finds every step whose container_id matches id. Its
// implementation talks to the controller (or a stub, in tests); this
// package only consumes the result.
type StepLookup func(containerID string) ([]ContainerJob, error)

// GetContainerState implements the job-state fallback: when a container's
// own anchor is unreachable, infer its lifecycle stage from the state of
// the job/step that launched it.
//
//  1. Look up every step with container_id == id.
//  2. Exactly one match: derive container state from its job state.
//  3. More than one match: log and use the first as authoritative.
//  4. No match: STOPPED.
func GetContainerState(lookup StepLookup, containerID string, warn func(string)) (ContainerState, error) {
	matches, err := lookup(containerID)
	if err != nil {
		return ContainerUnknown, wrapf(Timeout, "get_container_state", err)
	}

	if len(matches) == 0 {
		return ContainerStopped, nil
	}
	if len(matches) > 1 && warn != nil {
		warn("multiple steps match container id " + containerID + ", using the first")
	}

	return stateFromJob(matches[0]), nil
}

func stateFromJob(job ContainerJob) ContainerState {
	switch {
	case job.State == jobStatePending:
		return ContainerCreating
	case job.State == jobStateRunning || job.State == jobStateSuspended:
		if job.StepCount == 0 {
			return ContainerCreated
		}
		return ContainerRunning
	case isTerminalJobState(job.State):
		return ContainerStopped
	default:
		return ContainerUnknown
	}
}

package control

import (
	"sync"
	"time"

	"github.com/slurmcore/slurmcore/pkg/wire"
)

// MemJobStore is an in-process JobStore with no scheduler and no
// persistence: jobs are seeded by Submit, and state only moves in
// response to the RPCs this package dispatches. It exists for controld's
// manual-exercising role, not as a scheduler substitute.
type MemJobStore struct {
	mu         sync.Mutex
	lastUpdate int64
	jobs       map[uint32]wire.JobInfo
	owners     map[uint32]uint32
	nextID     uint32
}

// NewMemJobStore creates an empty store.
func NewMemJobStore() *MemJobStore {
	return &MemJobStore{
		jobs:   make(map[uint32]wire.JobInfo),
		owners: make(map[uint32]uint32),
		nextID: 1,
	}
}

// Submit registers a new pending job owned by uid and returns its id.
func (s *MemJobStore) Submit(uid uint32, info wire.JobInfo) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	info.JobID = id
	info.UserID = uid
	info.State = jobStatePending
	info.SubmitTime = time.Now().Unix()

	s.jobs[id] = info
	s.owners[id] = uid
	s.touch()
	return id
}

func (s *MemJobStore) touch() { s.lastUpdate = time.Now().Unix() }

func (s *MemJobStore) LastUpdate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUpdate
}

func (s *MemJobStore) Jobs() []wire.JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out
}

func (s *MemJobStore) Job(jobID uint32) (wire.JobInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	return j, ok
}

func (s *MemJobStore) Owner(jobID uint32) (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	uid, ok := s.owners[jobID]
	return uid, ok
}

// ApplyUpdate merges only the fields u marks as set, honoring the
// NoVal/NoVal16 "leave unchanged" sentinels on the plain numeric fields.
func (s *MemJobStore) ApplyUpdate(u wire.JobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[u.JobID]
	if !ok {
		return errNoSuchJob(u.JobID)
	}

	if u.NameSet {
		j.Name = u.Name
	}
	if u.PartitionSet {
		j.Partition = u.Partition
	}
	if u.QOSSet {
		j.QOS = u.QOS
	}
	if u.CommentSet {
		j.Comment = u.Comment
	}
	if u.TimeLimitMinutes != wire.NoVal {
		j.TimeLimitMinutes = u.TimeLimitMinutes
	}
	if u.Priority != wire.NoVal {
		j.Priority = u.Priority
	}
	if u.Nice != wire.NoVal {
		j.Nice = u.Nice
	}
	if u.MinNodes != wire.NoVal {
		j.MinNodes = u.MinNodes
	}
	if u.MaxNodes != wire.NoVal {
		j.MaxNodes = u.MaxNodes
	}
	if u.Requeue != wire.NoVal16 {
		j.Requeue = u.Requeue
	}

	s.jobs[u.JobID] = j
	s.touch()
	return nil
}

func (s *MemJobStore) Kill(jobID, stepID uint32, signal int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return errNoSuchJob(jobID)
	}
	if isTerminalJobState(j.State) {
		return wrapf(AlreadyDone, "kill", nil)
	}
	_ = stepID // whole-job kill only; per-step bookkeeping is out of scope here
	j.State = jobStateCancelled
	j.TermSignal = signal
	j.EndTime = time.Now().Unix()
	s.jobs[jobID] = j
	s.touch()
	return nil
}

func (s *MemJobStore) Suspend(jobID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return errNoSuchJob(jobID)
	}
	switch j.State {
	case jobStateSuspended:
		return wrapf(AlreadyDone, "suspend", nil)
	case jobStateRunning:
		j.State = jobStateSuspended
		j.SuspendTime = time.Now().Unix()
		s.jobs[jobID] = j
		s.touch()
		return nil
	default:
		return wrapf(TransitionPending, "suspend", nil)
	}
}

func (s *MemJobStore) Resume(jobID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return errNoSuchJob(jobID)
	}
	switch j.State {
	case jobStateRunning:
		return wrapf(AlreadyDone, "resume", nil)
	case jobStateSuspended:
		j.State = jobStateRunning
		j.PreSusTime += time.Now().Unix() - j.SuspendTime
		s.jobs[jobID] = j
		s.touch()
		return nil
	default:
		return wrapf(TransitionPending, "resume", nil)
	}
}

func (s *MemJobStore) Requeue(jobID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return errNoSuchJob(jobID)
	}
	if j.State == jobStatePending {
		return wrapf(AlreadyDone, "requeue", nil)
	}
	if !isTerminalJobState(j.State) && j.State != jobStateSuspended {
		return wrapf(TransitionPending, "requeue", nil)
	}
	j.State = jobStatePending
	j.RestartCnt++
	j.StartTime = 0
	j.EndTime = 0
	s.jobs[jobID] = j
	s.touch()
	return nil
}

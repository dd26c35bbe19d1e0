package wire

// JobInfo is the read-side wire shape for a job query record. Fields
// carry sentinel values on the wire: 0 means unknown, Infinite means
// unlimited, NoVal/NoVal64 means "not specified". The high bit of
// PnMinMemory means "per CPU" (see MemPerCPUFlag); the high bit of
// CoreSpec means "threads" rather than cores (see CoreSpecThread).
type JobInfo struct {
	JobID         uint32
	ArrayJobID    uint32
	ArrayTaskID   uint32
	ArrayTaskStr  string
	HetJobID      uint32
	HetJobOffset  uint32
	HetJobSet     string
	UserID        uint32
	GroupID       uint32
	Account       string
	Partition     string
	QOS           string
	Name          string
	Command       string
	WorkDir       string
	BatchFlag     uint16
	BatchHost     string
	State         uint32
	StateReason   uint32
	ExitCode      int32
	TermSignal    int32
	DerivedExitCode int32
	SubmitTime    int64
	EligibleTime  int64
	AccrueTime    int64
	StartTime     int64
	EndTime       int64
	PreemptTime   int64
	Deadline      int64
	SuspendTime   int64
	PreSusTime    int64
	TimeLimitMinutes uint32
	TimeMin       uint32
	Priority      uint32
	Nice          uint32
	RestartCnt    uint32
	Reboot        uint16
	Requeue       uint16
	Shared        uint16
	Contiguous    uint16
	CoreSpec      uint16
	NodeList      string
	RequiredNodes string
	ExcludedNodes string
	ScheduledNodes string
	MinNodes      uint32
	MaxNodes      uint32
	MinCPUsPerNode uint32
	PnMinMemory   uint64
	PnMinTmpDisk  uint32
	Features      string
	Licenses      string
	Dependency    string
	Reservation   string
	Comment       string
	TresAlloc     string
	TresBind      string
	TresFreq      string
	TresPerJob    string
	TresPerNode   string
	TresPerSocket string
	TresPerTask   string
	FedSiblingsActive string
	FedSiblingsViable string
	FedOrigin     string
	Network       string
	MCSLabel      string
}

func EncodeJobInfo(j JobInfo) []byte {
	w := NewWriter()
	w.PutUint32(j.JobID)
	w.PutUint32(j.ArrayJobID)
	w.PutUint32(j.ArrayTaskID)
	w.PutStringOrNull(j.ArrayTaskStr)
	w.PutUint32(j.HetJobID)
	w.PutUint32(j.HetJobOffset)
	w.PutStringOrNull(j.HetJobSet)
	w.PutUint32(j.UserID)
	w.PutUint32(j.GroupID)
	w.PutStringOrNull(j.Account)
	w.PutStringOrNull(j.Partition)
	w.PutStringOrNull(j.QOS)
	w.PutStringOrNull(j.Name)
	w.PutStringOrNull(j.Command)
	w.PutStringOrNull(j.WorkDir)
	w.PutUint16(j.BatchFlag)
	w.PutStringOrNull(j.BatchHost)
	w.PutUint32(j.State)
	w.PutUint32(j.StateReason)
	w.PutUint32(uint32(j.ExitCode))
	w.PutUint32(uint32(j.TermSignal))
	w.PutUint32(uint32(j.DerivedExitCode))
	w.PutUint64(uint64(j.SubmitTime))
	w.PutUint64(uint64(j.EligibleTime))
	w.PutUint64(uint64(j.AccrueTime))
	w.PutUint64(uint64(j.StartTime))
	w.PutUint64(uint64(j.EndTime))
	w.PutUint64(uint64(j.PreemptTime))
	w.PutUint64(uint64(j.Deadline))
	w.PutUint64(uint64(j.SuspendTime))
	w.PutUint64(uint64(j.PreSusTime))
	w.PutUint32(j.TimeLimitMinutes)
	w.PutUint32(j.TimeMin)
	w.PutUint32(j.Priority)
	w.PutUint32(j.Nice)
	w.PutUint32(j.RestartCnt)
	w.PutUint16(j.Reboot)
	w.PutUint16(j.Requeue)
	w.PutUint16(j.Shared)
	w.PutUint16(j.Contiguous)
	w.PutUint16(j.CoreSpec)
	w.PutStringOrNull(j.NodeList)
	w.PutStringOrNull(j.RequiredNodes)
	w.PutStringOrNull(j.ExcludedNodes)
	w.PutStringOrNull(j.ScheduledNodes)
	w.PutUint32(j.MinNodes)
	w.PutUint32(j.MaxNodes)
	w.PutUint32(j.MinCPUsPerNode)
	w.PutUint64(j.PnMinMemory)
	w.PutUint32(j.PnMinTmpDisk)
	w.PutStringOrNull(j.Features)
	w.PutStringOrNull(j.Licenses)
	w.PutStringOrNull(j.Dependency)
	w.PutStringOrNull(j.Reservation)
	w.PutStringOrNull(j.Comment)
	w.PutStringOrNull(j.TresAlloc)
	w.PutStringOrNull(j.TresBind)
	w.PutStringOrNull(j.TresFreq)
	w.PutStringOrNull(j.TresPerJob)
	w.PutStringOrNull(j.TresPerNode)
	w.PutStringOrNull(j.TresPerSocket)
	w.PutStringOrNull(j.TresPerTask)
	w.PutStringOrNull(j.FedSiblingsActive)
	w.PutStringOrNull(j.FedSiblingsViable)
	w.PutStringOrNull(j.FedOrigin)
	w.PutStringOrNull(j.Network)
	w.PutStringOrNull(j.MCSLabel)
	return w.Bytes()
}

func DecodeJobInfo(body []byte) (JobInfo, error) {
	r := NewReader(body)
	var j JobInfo
	var err error

	readU32 := func(dst *uint32) {
		if err != nil {
			return
		}
		*dst, err = r.Uint32()
	}
	readU16 := func(dst *uint16) {
		if err != nil {
			return
		}
		*dst, err = r.Uint16()
	}
	readU64 := func(dst *uint64) {
		if err != nil {
			return
		}
		*dst, err = r.Uint64()
	}
	readStr := func(dst *string) {
		if err != nil {
			return
		}
		*dst, _, err = r.String()
	}

	readU32(&j.JobID)
	readU32(&j.ArrayJobID)
	readU32(&j.ArrayTaskID)
	readStr(&j.ArrayTaskStr)
	readU32(&j.HetJobID)
	readU32(&j.HetJobOffset)
	readStr(&j.HetJobSet)
	readU32(&j.UserID)
	readU32(&j.GroupID)
	readStr(&j.Account)
	readStr(&j.Partition)
	readStr(&j.QOS)
	readStr(&j.Name)
	readStr(&j.Command)
	readStr(&j.WorkDir)
	readU16(&j.BatchFlag)
	readStr(&j.BatchHost)
	readU32(&j.State)
	readU32(&j.StateReason)
	var exitCode, termSignal, derivedExitCode uint32
	readU32(&exitCode)
	readU32(&termSignal)
	readU32(&derivedExitCode)
	j.ExitCode = int32(exitCode)
	j.TermSignal = int32(termSignal)
	j.DerivedExitCode = int32(derivedExitCode)
	var submit, eligible, accrue, start, end, preempt, deadline, suspend, preSus uint64
	readU64(&submit)
	readU64(&eligible)
	readU64(&accrue)
	readU64(&start)
	readU64(&end)
	readU64(&preempt)
	readU64(&deadline)
	readU64(&suspend)
	readU64(&preSus)
	j.SubmitTime = int64(submit)
	j.EligibleTime = int64(eligible)
	j.AccrueTime = int64(accrue)
	j.StartTime = int64(start)
	j.EndTime = int64(end)
	j.PreemptTime = int64(preempt)
	j.Deadline = int64(deadline)
	j.SuspendTime = int64(suspend)
	j.PreSusTime = int64(preSus)
	readU32(&j.TimeLimitMinutes)
	readU32(&j.TimeMin)
	readU32(&j.Priority)
	readU32(&j.Nice)
	readU32(&j.RestartCnt)
	readU16(&j.Reboot)
	readU16(&j.Requeue)
	readU16(&j.Shared)
	readU16(&j.Contiguous)
	readU16(&j.CoreSpec)
	readStr(&j.NodeList)
	readStr(&j.RequiredNodes)
	readStr(&j.ExcludedNodes)
	readStr(&j.ScheduledNodes)
	readU32(&j.MinNodes)
	readU32(&j.MaxNodes)
	readU32(&j.MinCPUsPerNode)
	readU64(&j.PnMinMemory)
	readU32(&j.PnMinTmpDisk)
	readStr(&j.Features)
	readStr(&j.Licenses)
	readStr(&j.Dependency)
	readStr(&j.Reservation)
	readStr(&j.Comment)
	readStr(&j.TresAlloc)
	readStr(&j.TresBind)
	readStr(&j.TresFreq)
	readStr(&j.TresPerJob)
	readStr(&j.TresPerNode)
	readStr(&j.TresPerSocket)
	readStr(&j.TresPerTask)
	readStr(&j.FedSiblingsActive)
	readStr(&j.FedSiblingsViable)
	readStr(&j.FedOrigin)
	readStr(&j.Network)
	readStr(&j.MCSLabel)

	if err != nil {
		return JobInfo{}, err
	}
	return j, nil
}

// IsPerCPU reports whether PnMinMemory's high bit marks a per-CPU limit.
func (j JobInfo) IsPerCPU() bool {
	return j.PnMinMemory&MemPerCPUFlag != 0
}

// IsThreadSpec reports whether CoreSpec's high bit marks a thread count.
func (j JobInfo) IsThreadSpec() bool {
	return j.CoreSpec&CoreSpecThread != 0
}

// JobUpdate is the write-side shape for UpdateJob: every field is
// optional, with NoVal/NoVal16/NoVal64/null-string meaning "do not
// change this field". Only JobID (and, for array jobs, ArrayTaskID) is
// mandatory.
type JobUpdate struct {
	JobID        uint32
	ArrayTaskID  uint32 // NoVal if not targeting a single array task
	Name         string // "" with NameSet=false means unchanged
	NameSet      bool
	Partition    string
	PartitionSet bool
	QOS          string
	QOSSet       bool
	TimeLimitMinutes uint32 // NoVal = unchanged; Infinite has the same value, so an update cannot set an unlimited time limit
	Priority     uint32     // NoVal = unchanged
	Nice         uint32     // NoVal = unchanged
	MinNodes     uint32     // NoVal = unchanged
	MaxNodes     uint32     // NoVal = unchanged
	Requeue      uint16     // NoVal16 = unchanged
	Comment      string
	CommentSet   bool
}

func EncodeJobUpdate(u JobUpdate) []byte {
	w := NewWriter()
	w.PutUint32(u.JobID)
	w.PutUint32(u.ArrayTaskID)
	w.PutString(u.Name, u.NameSet)
	w.PutString(u.Partition, u.PartitionSet)
	w.PutString(u.QOS, u.QOSSet)
	w.PutUint32(u.TimeLimitMinutes)
	w.PutUint32(u.Priority)
	w.PutUint32(u.Nice)
	w.PutUint32(u.MinNodes)
	w.PutUint32(u.MaxNodes)
	w.PutUint16(u.Requeue)
	w.PutString(u.Comment, u.CommentSet)
	return w.Bytes()
}

func DecodeJobUpdate(body []byte) (JobUpdate, error) {
	r := NewReader(body)
	var u JobUpdate
	var err error

	if u.JobID, err = r.Uint32(); err != nil {
		return JobUpdate{}, err
	}
	if u.ArrayTaskID, err = r.Uint32(); err != nil {
		return JobUpdate{}, err
	}
	if u.Name, u.NameSet, err = r.String(); err != nil {
		return JobUpdate{}, err
	}
	if u.Partition, u.PartitionSet, err = r.String(); err != nil {
		return JobUpdate{}, err
	}
	if u.QOS, u.QOSSet, err = r.String(); err != nil {
		return JobUpdate{}, err
	}
	if u.TimeLimitMinutes, err = r.Uint32(); err != nil {
		return JobUpdate{}, err
	}
	if u.Priority, err = r.Uint32(); err != nil {
		return JobUpdate{}, err
	}
	if u.Nice, err = r.Uint32(); err != nil {
		return JobUpdate{}, err
	}
	if u.MinNodes, err = r.Uint32(); err != nil {
		return JobUpdate{}, err
	}
	if u.MaxNodes, err = r.Uint32(); err != nil {
		return JobUpdate{}, err
	}
	if u.Requeue, err = r.Uint16(); err != nil {
		return JobUpdate{}, err
	}
	if u.Comment, u.CommentSet, err = r.String(); err != nil {
		return JobUpdate{}, err
	}
	return u, nil
}

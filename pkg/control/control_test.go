package control

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slurmcore/slurmcore/pkg/auth"
	"github.com/slurmcore/slurmcore/pkg/wire"
)

type fakeJobStore struct {
	lastUpdate int64
	jobs       map[uint32]wire.JobInfo
	owners     map[uint32]uint32
	updated    []wire.JobUpdate
	killed     []uint32
	suspended  []uint32
	resumed    []uint32
	requeued   []uint32
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{
		jobs:   map[uint32]wire.JobInfo{},
		owners: map[uint32]uint32{},
	}
}

func (f *fakeJobStore) LastUpdate() int64 { return f.lastUpdate }

func (f *fakeJobStore) Jobs() []wire.JobInfo {
	out := make([]wire.JobInfo, 0, len(f.jobs))
	for _, j := range f.jobs {
		out = append(out, j)
	}
	return out
}

func (f *fakeJobStore) Job(jobID uint32) (wire.JobInfo, bool) {
	j, ok := f.jobs[jobID]
	return j, ok
}

func (f *fakeJobStore) Owner(jobID uint32) (uint32, bool) {
	u, ok := f.owners[jobID]
	return u, ok
}

func (f *fakeJobStore) ApplyUpdate(u wire.JobUpdate) error {
	if _, ok := f.jobs[u.JobID]; !ok {
		return errNoSuchJob(u.JobID)
	}
	f.updated = append(f.updated, u)
	return nil
}

func (f *fakeJobStore) Kill(jobID, stepID uint32, signal int32) error {
	if _, ok := f.jobs[jobID]; !ok {
		return errNoSuchJob(jobID)
	}
	f.killed = append(f.killed, jobID)
	return nil
}

func (f *fakeJobStore) Suspend(jobID uint32) error {
	if _, ok := f.jobs[jobID]; !ok {
		return errNoSuchJob(jobID)
	}
	f.suspended = append(f.suspended, jobID)
	return nil
}

func (f *fakeJobStore) Resume(jobID uint32) error {
	if _, ok := f.jobs[jobID]; !ok {
		return errNoSuchJob(jobID)
	}
	f.resumed = append(f.resumed, jobID)
	return nil
}

func (f *fakeJobStore) Requeue(jobID uint32) error {
	if _, ok := f.jobs[jobID]; !ok {
		return errNoSuchJob(jobID)
	}
	f.requeued = append(f.requeued, jobID)
	return nil
}

func newTestDispatcher() (*Dispatcher, *fakeJobStore, *auth.Registry) {
	reg := auth.NewRegistry()
	reg.Register(auth.NewMACCookieProvider([]byte("control-test-secret"), time.Minute))

	store := newFakeJobStore()
	store.jobs[42] = wire.JobInfo{JobID: 42, Name: "batch", State: jobStatePending}
	store.owners[42] = 1000

	d := &Dispatcher{
		Auth:     reg,
		Jobs:     store,
		LocalUID: 0,
		Admins: map[uint32]bool{
			0: true,
		},
	}
	return d, store, reg
}

func mintMessage(t *testing.T, reg *auth.Registry, uid uint32, rpcType wire.RPCType, body []byte) wire.Message {
	t.Helper()
	cred, err := reg.Mint(auth.ProviderMACCookie, nil, uid, uid, auth.AnyUID, nil)
	require.NoError(t, err)
	encoded := reg.Encode(cred)

	r := wireReader(encoded)
	providerID, err := r.Uint32()
	require.NoError(t, err)

	return wire.Message{
		Version:        wire.CurrentProtocolVersion,
		Type:           rpcType,
		Body:           body,
		ProviderID:     providerID,
		CredentialBody: encoded[4:],
	}
}

func wireReader(b []byte) *wire.Reader { return wire.NewReader(b) }

func TestHandleRejectsMissingCredential(t *testing.T) {
	d, _, _ := newTestDispatcher()
	msg := wire.Message{Version: wire.CurrentProtocolVersion, Type: wire.RPCSuspendJob, Body: []byte{0, 0, 0, 42}}
	_, _, err, _ := d.Handle(msg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrKind(AuthInvalid))
}

func TestHandleSuspendJobByOwner(t *testing.T) {
	d, store, reg := newTestDispatcher()
	body := wire.NewWriter()
	body.PutUint32(42)
	msg := mintMessage(t, reg, 1000, wire.RPCSuspendJob, body.Bytes())

	respType, respBody, err, shutdown := d.Handle(msg)
	require.NoError(t, err)
	assert.False(t, shutdown)
	assert.Equal(t, wire.RPCResponseRc, respType)

	rc, err := wire.DecodeResponseRc(respBody)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), rc.Rc)
	assert.Equal(t, []uint32{42}, store.suspended)
}

func TestHandleSuspendJobRejectsNonOwner(t *testing.T) {
	d, _, reg := newTestDispatcher()
	body := wire.NewWriter()
	body.PutUint32(42)
	msg := mintMessage(t, reg, 2000, wire.RPCSuspendJob, body.Bytes())

	_, _, err, _ := d.Handle(msg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrKind(PermissionDenied))
}

func TestHandleSuspendJobAllowsAdmin(t *testing.T) {
	d, store, reg := newTestDispatcher()
	body := wire.NewWriter()
	body.PutUint32(42)
	msg := mintMessage(t, reg, 0, wire.RPCSuspendJob, body.Bytes())

	_, _, err, _ := d.Handle(msg)
	require.NoError(t, err)
	assert.Equal(t, []uint32{42}, store.suspended)
}

func TestHandleKillJobUnknownJob(t *testing.T) {
	d, _, reg := newTestDispatcher()
	body := wire.NewWriter()
	body.PutUint32(999)
	body.PutUint32(9) // signal
	msg := mintMessage(t, reg, 1000, wire.RPCKillJob, body.Bytes())

	_, _, err, _ := d.Handle(msg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrKind(InvalidObjectID))
}

func TestHandleJobInfoQueryNoChange(t *testing.T) {
	d, store, reg := newTestDispatcher()
	store.lastUpdate = 100

	body := wire.NewWriter()
	body.PutUint64(200) // last_update newer than store's
	body.PutUint32(0)
	msg := mintMessage(t, reg, 1000, wire.RPCRequestJobInfo, body.Bytes())

	respType, respBody, err, _ := d.Handle(msg)
	require.NoError(t, err)
	assert.Equal(t, wire.RPCResponseRc, respType)
	rc, err := wire.DecodeResponseRc(respBody)
	require.NoError(t, err)
	assert.Equal(t, wire.SlurmNoChangeInData, rc.Rc)
}

func TestHandleJobInfoQueryReturnsJobs(t *testing.T) {
	d, store, reg := newTestDispatcher()
	store.lastUpdate = 500

	body := wire.NewWriter()
	body.PutUint64(100)
	body.PutUint32(0)
	msg := mintMessage(t, reg, 1000, wire.RPCRequestJobInfo, body.Bytes())

	respType, respBody, err, _ := d.Handle(msg)
	require.NoError(t, err)
	assert.Equal(t, wire.RPCResponseJobInfo, respType)

	r := wire.NewReader(respBody)
	count, err := r.ArrayCount()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), count)
}

func TestRetryStateChangeStopsOnAlreadyDone(t *testing.T) {
	calls := 0
	rc, err := RetryStateChange(t.Context(), func() (uint32, error) {
		calls++
		return wire.ESlurmAlreadyDone, nil
	})
	require.NoError(t, err)
	assert.Equal(t, wire.ESlurmAlreadyDone, rc)
	assert.Equal(t, 1, calls)
}

func TestRetryStateChangeRetriesTransitionPending(t *testing.T) {
	calls := 0
	rc, err := retryStateChange(t.Context(), func() (uint32, error) {
		calls++
		if calls < 3 {
			return wire.ESlurmTransitionStateNoUpdate, nil
		}
		return 0, nil
	}, func(int) time.Duration { return time.Millisecond })
	require.NoError(t, err)
	assert.Equal(t, uint32(0), rc)
	assert.Equal(t, 3, calls)
}

func TestGetContainerStateNoMatchIsStopped(t *testing.T) {
	state, err := GetContainerState(func(id string) ([]ContainerJob, error) {
		return nil, nil
	}, "c1", nil)
	require.NoError(t, err)
	assert.Equal(t, ContainerStopped, state)
}

func TestGetContainerStateRunningWithSteps(t *testing.T) {
	state, err := GetContainerState(func(id string) ([]ContainerJob, error) {
		return []ContainerJob{{JobID: 1, State: jobStateRunning, StepCount: 2}}, nil
	}, "c1", nil)
	require.NoError(t, err)
	assert.Equal(t, ContainerRunning, state)
}

func TestGetContainerStateRunningNoStepsIsCreated(t *testing.T) {
	state, err := GetContainerState(func(id string) ([]ContainerJob, error) {
		return []ContainerJob{{JobID: 1, State: jobStateRunning, StepCount: 0}}, nil
	}, "c1", nil)
	require.NoError(t, err)
	assert.Equal(t, ContainerCreated, state)
}

func TestGetContainerStateTerminalIsStopped(t *testing.T) {
	state, err := GetContainerState(func(id string) ([]ContainerJob, error) {
		return []ContainerJob{{JobID: 1, State: jobStateComplete}}, nil
	}, "c1", nil)
	require.NoError(t, err)
	assert.Equal(t, ContainerStopped, state)
}

func TestAdvanceNeverMovesBackward(t *testing.T) {
	assert.Equal(t, ContainerRunning, Advance(ContainerRunning, ContainerCreated))
	assert.Equal(t, ContainerStopped, Advance(ContainerRunning, ContainerStopped))
}

func TestBestClusterPicksSmallestStartTimeThenPreemptCount(t *testing.T) {
	probe := func(ctx context.Context, cluster string) (WillRunResult, error) {
		switch cluster {
		case "A":
			return WillRunResult{ClusterName: "A", StartTime: 160, PreemptCount: 1}, nil
		case "B":
			return WillRunResult{ClusterName: "B", StartTime: 160, PreemptCount: 0}, nil
		default:
			return WillRunResult{}, errors.New("cluster unreachable")
		}
	}

	best, err := BestCluster(t.Context(), []string{"A", "B", "C"}, "A", probe)
	require.NoError(t, err)
	assert.Equal(t, "B", best.ClusterName)
}

func TestBestClusterFailsWhenAllClustersUnreachable(t *testing.T) {
	probe := func(ctx context.Context, cluster string) (WillRunResult, error) {
		return WillRunResult{}, errors.New("unreachable")
	}
	_, err := BestCluster(t.Context(), []string{"A", "B"}, "A", probe)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrKind(InvalidObjectID))
}

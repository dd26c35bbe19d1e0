package control

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/slurmcore/slurmcore/pkg/auth"
	"github.com/slurmcore/slurmcore/pkg/wire"
)

// WillRunResult is one cluster's answer to a WillRun probe.
type WillRunResult struct {
	ClusterName  string
	StartTime    int64
	PreemptCount int
}

// ClusterProbe issues WillRun against one federation member and returns
// its answer, or an error if that cluster could not be reached. Clusters
// that fail are dropped from consideration rather than failing the whole
// selection, mirroring "Repeat with at most one cluster per federation
// tried" combined with "C fails" in the best-cluster scenario.
type ClusterProbe func(ctx context.Context, clusterName string) (WillRunResult, error)

// BestCluster fans a WillRun probe out to every candidate cluster
// concurrently and returns the one that would start soonest, tie-broken
// by smallest preempt count, then by matching localClusterName.
func BestCluster(ctx context.Context, clusters []string, localClusterName string, probe ClusterProbe) (WillRunResult, error) {
	results := make([]WillRunResult, len(clusters))
	ok := make([]bool, len(clusters))

	g, gctx := errgroup.WithContext(ctx)
	for i, cluster := range clusters {
		i, cluster := i, cluster
		g.Go(func() error {
			res, err := probe(gctx, cluster)
			if err != nil {
				// a single cluster failing to answer does not fail the
				// whole selection; it is simply excluded below.
				return nil
			}
			results[i] = res
			ok[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return WillRunResult{}, wrapf(Timeout, "best_cluster", err)
	}

	var candidates []WillRunResult
	for i, present := range ok {
		if present {
			candidates = append(candidates, results[i])
		}
	}
	if len(candidates) == 0 {
		return WillRunResult{}, wrapf(InvalidObjectID, "best_cluster", errNoClusterAvailable())
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		ra, rb := candidates[a], candidates[b]
		if ra.StartTime != rb.StartTime {
			return ra.StartTime < rb.StartTime
		}
		if ra.PreemptCount != rb.PreemptCount {
			return ra.PreemptCount < rb.PreemptCount
		}
		if ra.ClusterName == localClusterName {
			return true
		}
		if rb.ClusterName == localClusterName {
			return false
		}
		return false
	})
	return candidates[0], nil
}

// handleWillRun decodes and re-frames a WillRunResponse. The placement
// decision itself (where and when a job could run) belongs to the
// scheduler proper, which this package treats as an external collaborator;
// this handler only validates framing for the RPC envelope so a stub
// scheduler can be wired in behind it.
func handleWillRun(d *Dispatcher, cred auth.Credential, msg wire.Message) (wire.RPCType, []byte, error) {
	r := wire.NewReader(msg.Body)
	startTime, err := r.Uint64()
	if err != nil {
		return 0, nil, wrapf(ProtocolDecode, "will_run", err)
	}
	preemptCount, err := r.Uint32()
	if err != nil {
		return 0, nil, wrapf(ProtocolDecode, "will_run", err)
	}

	w := wire.NewWriter()
	w.PutUint64(startTime)
	w.PutUint32(preemptCount)
	return wire.RPCWillRunResponse, w.Bytes(), nil
}

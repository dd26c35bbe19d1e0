// Package control implements the dispatch table and handlers for the
// control-plane RPCs used by job query/update/signal/requeue/suspend
// tooling: the partition/node/job/step/powercap/topo/license/reservation
// query family, the state-changing job RPCs, the container job-state
// fallback used when a container's own anchor cannot be reached, and
// best-cluster selection for federated submission.
//
// The query-family shape (compare last_update, answer
// SLURM_NO_CHANGE_IN_DATA or a fresh snapshot) follows the pattern shared
// by src/api/license_info.c, src/api/powercap_info.c and src/api/topo_info.c
// in the original source tree. Best-cluster selection is grounded on
// src/sbatch/mult_cluster.c's federation submission loop, including its
// tie-break order and its tolerance of individual cluster failures. The
// container lifecycle enum in container.go mirrors the CONTAINER_ST_*
// states and their forward-only transitions in src/scrun/state.c.
package control

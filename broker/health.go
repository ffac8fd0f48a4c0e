package broker

import "context"

// HealthStatus is the dispatcher's contribution to the embedding
// application's health endpoint (§6 "Health endpoint reports DOWN on
// broker unreachable").
type HealthStatus struct {
	Up        bool
	ClusterID string
	NodeCount int
	Err       error
}

// Health queries the broker client's cluster descriptor and folds it
// together with the dispatcher's own readiness flag: a dispatcher that
// has never become ready, or whose client can no longer describe the
// cluster, reports DOWN.
func (d *Dispatcher) Health(ctx context.Context) HealthStatus {
	if !d.Ready() {
		return HealthStatus{Up: false, Err: errNotReady}
	}
	clusterID, nodes, err := d.client.DescribeCluster(ctx)
	if err != nil {
		return HealthStatus{Up: false, Err: err}
	}
	return HealthStatus{Up: true, ClusterID: clusterID, NodeCount: nodes}
}

var errNotReady = healthError("broker: dispatcher not yet ready")

type healthError string

func (e healthError) Error() string { return string(e) }

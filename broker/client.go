// Package broker implements curve's 3-tier failure-recovery dispatcher:
// main-topic send, dead-letter-queue fallback, and on-disk backup of last
// resort. It generalizes the teacher's
// services/event-service/internal/infrastructure/messaging/rabbitmq
// Publisher (publisher-confirms, mandatory delivery, NotifyReturn) into a
// narrow Client capability the Dispatcher drives, and folds in the
// email-service DLQ handler's publish-with-failure-headers pattern for
// Tier 2.
package broker

import "context"

// Client is the broker dispatcher's view of the physical message broker.
// A real implementation wraps a connection pool and publisher-confirms
// channel (see AMQPClient); tests substitute a stub.
type Client interface {
	// Publish sends value under key to topic and blocks until the broker
	// has acknowledged it or ctx is done. Implementations must treat a
	// context deadline as a transient failure, not a terminal one — the
	// retry policy decides what to do with it.
	Publish(ctx context.Context, topic, key string, value []byte) error

	// DescribeCluster reports basic cluster identity for the health
	// endpoint's DOWN/UP determination (§6 "describe_cluster").
	DescribeCluster(ctx context.Context) (clusterID string, nodeCount int, err error)

	// Close releases the underlying connection.
	Close() error
}

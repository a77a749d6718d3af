package storage

// SyncPolicy decides what happens when a matrix is fetched from the graph.
type SyncPolicy int

const (
	// SyncPolicyFlushResize applies pending operations and grows the matrix
	// to the graph's node capacity on every fetch. It is the normal mode.
	SyncPolicyFlushResize SyncPolicy = iota

	// SyncPolicyResize keeps dimensions in step with the graph but leaves
	// pending operations buffered. Used while bulk creating.
	SyncPolicyResize

	// SyncPolicyNop skips synchronization entirely. Used while decoding, when
	// the graph was pre-sized and nobody reads until the final flush.
	SyncPolicyNop
)

func (p SyncPolicy) String() string {
	switch p {
	case SyncPolicyFlushResize:
		return "flush_resize"
	case SyncPolicyResize:
		return "resize"
	case SyncPolicyNop:
		return "nop"
	default:
		return "unknown"
	}
}

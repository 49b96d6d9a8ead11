package jobengine

import "sync/atomic"

// jobIDCounter is the process-wide id allocator: a simple atomic counter
// with no teardown semantics needed.
var jobIDCounter uint64

// nextJobID allocates the next monotonically increasing job id.
func nextJobID() uint64 {
	return atomic.AddUint64(&jobIDCounter, 1)
}

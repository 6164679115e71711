// Package lock implements the concurrency primitives datasets and tables
// share: a reentrant per-table/per-dataset RW lock, a ticket-ordered fair RW
// lock, and the three-room gateway that synchronizes one committing writer
// against many concurrent readers. All three are direct translations of
// ouroboros/locker.h, ouroboros/sharedorderedlock.h and ouroboros/gateway.h,
// with condition variables standing in for the original's spin/try loops
// (this Go port has no cross-process shared memory to spin against).
package lock

import "time"

// Locker is the minimal non-reentrant lock surface, mirroring
// base_locker's public interface (locker.h) for callers that don't need
// Reentrant's owner-aware recursion — Ordered implements it directly. It is
// the seam a shared-memory-backed implementation would satisfy for true
// multi-process deployments (see Config.CrossProcess in the root package).
type Locker interface {
	Lock() bool
	LockTimeout(timeout time.Duration) bool
	Unlock() bool
	LockSharable() bool
	LockSharableTimeout(timeout time.Duration) bool
	UnlockSharable() bool
	Name() string
}

// NoTimeout requests an unbounded wait, matching the original's timeout==0
// convention for "wait forever".
const NoTimeout time.Duration = 0

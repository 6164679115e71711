package ouroboros

import (
	"sync/atomic"

	"github.com/ouroboros-db/ouroboros/lock"
)

// ownerSeq mints process-unique lock.Owner tokens for standalone sessions
// and transactions, the Go replacement for each C++ caller constructing
// its own locker/gateway handle instance (see lock.Owner's doc comment).
// A composed session opened through a Transaction or LazyTransaction reuses
// that transaction's own token instead of minting a fresh one, so its lock
// requests degrade through the reentrant same-owner path rather than
// blocking behind the transaction it is part of.
var ownerSeq uint64

func newOwner() lock.Owner {
	return lock.Owner(atomic.AddUint64(&ownerSeq, 1))
}

package ouroboros

import (
	"github.com/ouroboros-db/ouroboros/lock"
	"github.com/ouroboros-db/ouroboros/record"
)

// Transaction takes the dataset-wide exclusive lock and drives the
// underlying file's start/stop/cancel, matching spec.md §4.L. Nested
// Transactions on the same Dataset are observed (the exclusive lock
// re-enters via its own owner token) but only the outermost actually
// starts/stops the file, via Dataset.beginFileTxn/commitFileTxn.
type Transaction[R record.Record] struct {
	ds      *Dataset[R]
	owner   lock.Owner
	nesting int
	started bool
}

// NewTransaction constructs a Transaction over ds. The transaction does
// not take its lock until Start is called.
func NewTransaction[R record.Record](ds *Dataset[R]) *Transaction[R] {
	return &Transaction[R]{ds: ds, owner: newOwner()}
}

// Start acquires the dataset-wide exclusive lock (re-entering if this
// Transaction, or another sharing its owner, already holds it) and begins
// the underlying file transaction. The outermost Start also enters
// commitGateway's first room, matching spec.md §4.G/§8 scenario 6: a
// Transaction is always a writer for gateway purposes, since it holds the
// dataset lock exclusively regardless of which operations it performs.
func (t *Transaction[R]) Start() error {
	if !t.started {
		if !t.ds.ctx.datasetLock.LockTimeout(t.owner, t.ds.cfg.LockTimeout) {
			return newError("Transaction.Start", KindLock, ErrLockTimeout)
		}
		t.ds.ctx.commitGateway.GoFirstRoom(t.owner)
		t.started = true
	}
	t.nesting++
	t.ds.beginFileTxn()
	return nil
}

// Stop commits the outermost Start and, once nesting unwinds to zero,
// moves through commitGateway's last room around the durable commit and
// releases the dataset lock.
func (t *Transaction[R]) Stop() error {
	if !t.started || t.nesting == 0 {
		return newError("Transaction.Stop", KindBug, ErrNotStarted)
	}
	outermost := t.nesting == 1
	if outermost {
		t.ds.ctx.commitGateway.GoLastRoom(t.owner)
	}
	err := t.ds.commitFileTxn()
	t.nesting--
	if t.nesting == 0 {
		t.ds.ctx.commitGateway.LeaveLastRoom(t.owner)
		t.ds.ctx.datasetLock.Unlock(t.owner)
		t.started = false
	}
	return err
}

// Cancel aborts the whole transaction immediately, regardless of nesting
// depth, and releases the dataset lock: a partial rollback of a
// dataset-wide exclusive transaction has no meaning, since every nested
// Start shares the same file-level transaction.
func (t *Transaction[R]) Cancel() {
	if !t.started {
		return
	}
	t.ds.cancelFileTxn()
	t.nesting = 0
	t.exitGateway()
	t.ds.ctx.datasetLock.Unlock(t.owner)
	t.started = false
}

// exitGateway leaves commitGateway's last room, blocking while any reader
// already in the middle room has not yet left it.
func (t *Transaction[R]) exitGateway() {
	t.ds.ctx.commitGateway.GoLastRoom(t.owner)
	t.ds.ctx.commitGateway.LeaveLastRoom(t.owner)
}

// SessionRd opens a read session on key's table under this transaction's
// own owner token, so its dataset-lock acquisition degrades through
// lock.Reentrant's same-owner re-entry path instead of blocking behind the
// very transaction it belongs to.
func (t *Transaction[R]) SessionRd(key uint64) (*Session[R], error) {
	return newSession(t.ds, key, t.owner, false, false)
}

// SessionWr opens a write session under this transaction's owner token.
func (t *Transaction[R]) SessionWr(key uint64) (*Session[R], error) {
	return newSession(t.ds, key, t.owner, true, false)
}

// LazyTransaction takes the dataset-wide lazy lock (cooperative only:
// other processes may still open read sessions, since those never touch
// the lazy lock) and retains the write sessions opened under it, matching
// spec.md §4.L. On Stop, every retained session is stopped in insertion
// order, batching many table-level writes into one file-level commit; on
// Cancel, every retained session is canceled.
type LazyTransaction[R record.Record] struct {
	ds       *Dataset[R]
	owner    lock.Owner
	sessions []*Session[R]
	started  bool
}

// NewLazyTransaction constructs a LazyTransaction over ds.
func NewLazyTransaction[R record.Record](ds *Dataset[R]) *LazyTransaction[R] {
	return &LazyTransaction[R]{ds: ds, owner: newOwner()}
}

// Start acquires the dataset-wide lazy lock exclusively, enters
// commitGateway's first room (a LazyTransaction is a writer for gateway
// purposes, per spec.md §4.G/§8 scenario 6), and begins the underlying
// file transaction that every retained session's writes will share.
func (t *LazyTransaction[R]) Start() error {
	if t.started {
		return newError("LazyTransaction.Start", KindBug, ErrAlreadyStarted)
	}
	if !t.ds.ctx.lazyLock.LockTimeout(t.owner, t.ds.cfg.LockTimeout) {
		return newError("LazyTransaction.Start", KindLock, ErrLockTimeout)
	}
	t.ds.ctx.commitGateway.GoFirstRoom(t.owner)
	t.ds.beginFileTxn()
	t.started = true
	return nil
}

// SessionWr opens a write session on key's table under this lazy
// transaction's owner token and retains it for batched Stop/Cancel. The
// session's own Start/Stop/Cancel must not be called directly; the lazy
// transaction drives them.
func (t *LazyTransaction[R]) SessionWr(key uint64) (*Session[R], error) {
	if !t.started {
		return nil, newError("LazyTransaction.SessionWr", KindBug, ErrNotStarted)
	}
	s, err := newSession(t.ds, key, t.owner, true, false)
	if err != nil {
		return nil, err
	}
	s.started = true // joins the already-open shared file transaction
	t.sessions = append(t.sessions, s)
	return s, nil
}

// Stop persists every retained session's table state, in insertion order,
// then moves through commitGateway's last room around the one shared
// file-level commit.
func (t *LazyTransaction[R]) Stop() error {
	if !t.started {
		return newError("LazyTransaction.Stop", KindBug, ErrNotStarted)
	}
	for _, s := range t.sessions {
		if err := t.ds.persistKey(s.key, s.treeRoot); err != nil {
			t.cancelLocked()
			t.exitGateway()
			t.ds.ctx.lazyLock.Unlock(t.owner)
			t.started = false
			return err
		}
		s.Close()
		s.started = false
	}
	t.ds.ctx.commitGateway.GoLastRoom(t.owner)
	err := t.ds.commitFileTxn()
	t.ds.ctx.commitGateway.LeaveLastRoom(t.owner)
	t.ds.ctx.lazyLock.Unlock(t.owner)
	t.sessions = nil
	t.started = false
	return err
}

// Cancel aborts every retained session and the shared file transaction, in
// that order, then releases the lazy lock.
func (t *LazyTransaction[R]) Cancel() {
	if !t.started {
		return
	}
	t.cancelLocked()
	t.exitGateway()
	t.ds.ctx.lazyLock.Unlock(t.owner)
	t.started = false
}

// exitGateway leaves commitGateway's last room, blocking while any reader
// already in the middle room has not yet left it.
func (t *LazyTransaction[R]) exitGateway() {
	t.ds.ctx.commitGateway.GoLastRoom(t.owner)
	t.ds.ctx.commitGateway.LeaveLastRoom(t.owner)
}

func (t *LazyTransaction[R]) cancelLocked() {
	t.ds.cancelFileTxn()
	for _, s := range t.sessions {
		t.ds.reloadTable(s.key)
		s.Close()
		s.started = false
	}
	t.sessions = nil
}

// GlobalTransaction attaches child Transactions, constructed by a
// caller-supplied factory, and propagates Start/Stop/Cancel to every one
// of them atomically, matching spec.md §4.L's "global transaction".
type GlobalTransaction[R record.Record] struct {
	children []*Transaction[R]
}

// NewGlobalTransaction builds n child transactions from factory.
func NewGlobalTransaction[R record.Record](factory func() *Transaction[R], n int) *GlobalTransaction[R] {
	g := &GlobalTransaction[R]{children: make([]*Transaction[R], n)}
	for i := range g.children {
		g.children[i] = factory()
	}
	return g
}

// Start starts every child transaction; if any fails, every child already
// started is canceled and the error is returned.
func (g *GlobalTransaction[R]) Start() error {
	for i, c := range g.children {
		if err := c.Start(); err != nil {
			for _, started := range g.children[:i] {
				started.Cancel()
			}
			return err
		}
	}
	return nil
}

// Stop stops every child transaction, returning the first error (after
// still attempting every child).
func (g *GlobalTransaction[R]) Stop() error {
	var firstErr error
	for _, c := range g.children {
		if err := c.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Cancel cancels every child transaction.
func (g *GlobalTransaction[R]) Cancel() {
	for _, c := range g.children {
		c.Cancel()
	}
}

// GlobalLazyTransaction is GlobalTransaction's lazy-lock counterpart.
type GlobalLazyTransaction[R record.Record] struct {
	children []*LazyTransaction[R]
}

// NewGlobalLazyTransaction builds n child lazy transactions from factory.
func NewGlobalLazyTransaction[R record.Record](factory func() *LazyTransaction[R], n int) *GlobalLazyTransaction[R] {
	g := &GlobalLazyTransaction[R]{children: make([]*LazyTransaction[R], n)}
	for i := range g.children {
		g.children[i] = factory()
	}
	return g
}

func (g *GlobalLazyTransaction[R]) Start() error {
	for i, c := range g.children {
		if err := c.Start(); err != nil {
			for _, started := range g.children[:i] {
				started.Cancel()
			}
			return err
		}
	}
	return nil
}

func (g *GlobalLazyTransaction[R]) Stop() error {
	var firstErr error
	for _, c := range g.children {
		if err := c.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (g *GlobalLazyTransaction[R]) Cancel() {
	for _, c := range g.children {
		c.Cancel()
	}
}

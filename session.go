package ouroboros

import (
	"github.com/ouroboros-db/ouroboros/lock"
	"github.com/ouroboros-db/ouroboros/record"
	"github.com/ouroboros-db/ouroboros/table"
)

// Session borrows one data table for its lifetime, matching spec.md
// §4.L's "a session holds a table reference and a lock state." Sharable
// sessions may only call read-family operations; scoped sessions may call
// all operations. Go has no const-correctness to split those into two
// compile-time-checked types the way the original's reader/writer session
// classes do, so Session enforces the split at runtime instead: a
// write-family call on a sharable session returns a KindBug error.
//
// Start/Stop/Cancel delegate to the owning Dataset's nested file
// transaction (Dataset.beginFileTxn/commitFileTxn/cancelFileTxn) so that
// per-session writes form a nested, but cache-shared, transaction, exactly
// as spec.md §4.L describes.
type Session[R record.Record] struct {
	ds       *Dataset[R]
	key      uint64
	table    *table.Table[R]
	owner    lock.Owner
	writable bool
	started  bool
	treeRoot *uint32
	// gateway is true for a session minted with its own fresh owner token
	// (Dataset.SessionRd/SessionWr) — these drive commitGateway themselves.
	// A session opened under a Transaction or LazyTransaction shares that
	// transaction's owner and leaves the gateway to it instead, since two
	// entries under the same owner would double-count a room's occupancy.
	gateway bool
}

// newSession constructs a Session on ds's key table under owner, acquiring
// locks in the order spec.md §4.K/§5 describes: the dataset-wide lock
// sharably (bars a concurrent whole-dataset Transaction), then — for a
// writable session — the lazy lock sharably (bars a concurrent
// LazyTransaction, which holds it exclusively) before the per-table lock
// exclusively; a read-only session takes only the per-table lock sharably.
//
// owner is not always freshly minted: a Session opened through a
// Transaction or LazyTransaction's own session-factory method reuses that
// transaction's owner token, so these acquisitions degrade through
// lock.Reentrant's same-owner re-entry path instead of blocking behind the
// very transaction the session is scoped to.
func newSession[R record.Record](ds *Dataset[R], key uint64, owner lock.Owner, writable, gateway bool) (*Session[R], error) {
	const op = "Dataset.session"

	tbl, err := ds.tableFor(key)
	if err != nil {
		return nil, err
	}

	if !ds.ctx.datasetLock.LockSharableTimeout(owner, ds.cfg.LockTimeout) {
		return nil, newError(op, KindLock, ErrLockTimeout)
	}

	if writable {
		if !ds.ctx.lazyLock.LockSharableTimeout(owner, ds.cfg.LockTimeout) {
			ds.ctx.datasetLock.UnlockSharable(owner)
			return nil, newError(op, KindLock, ErrLockTimeout)
		}
		if !ds.ctx.tableLock(key).LockTimeout(owner, ds.cfg.LockTimeout) {
			ds.ctx.lazyLock.UnlockSharable(owner)
			ds.ctx.datasetLock.UnlockSharable(owner)
			return nil, newError(op, KindLock, ErrLockTimeout)
		}
	} else if !ds.ctx.tableLock(key).LockSharableTimeout(owner, ds.cfg.LockTimeout) {
		ds.ctx.datasetLock.UnlockSharable(owner)
		return nil, newError(op, KindLock, ErrLockTimeout)
	}

	return &Session[R]{ds: ds, key: key, table: tbl, owner: owner, writable: writable, gateway: gateway}, nil
}

// Close releases every lock newSession acquired. Callers must Stop or
// Cancel any in-flight session transaction before calling Close.
func (s *Session[R]) Close() {
	if s.writable {
		s.ds.ctx.tableLock(s.key).Unlock(s.owner)
		s.ds.ctx.lazyLock.UnlockSharable(s.owner)
	} else {
		s.ds.ctx.tableLock(s.key).UnlockSharable(s.owner)
	}
	s.ds.ctx.datasetLock.UnlockSharable(s.owner)
}

// Writable reports whether this session may call write-family operations.
func (s *Session[R]) Writable() bool { return s.writable }

// Table exposes the session's underlying table, for a caller that wants to
// wrap it in a table.Indexed or table.Tree for the lifetime of the
// session. Only meaningful while the session is open: once Close runs, the
// table's locks are released and further use races with other sessions.
func (s *Session[R]) Table() *table.Table[R] { return s.table }

// SetTreeRoot records the RB-tree root position to persist into this
// table's key record at Stop, for a write session whose caller wrapped
// Table() in a table.Tree and mutated its root. Sessions that never call
// this leave the key's Root field at NilPos.
func (s *Session[R]) SetTreeRoot(pos uint32) { s.treeRoot = &pos }

func (s *Session[R]) requireWritable(op string) error {
	if !s.writable {
		return newError(op, KindBug, ErrNotWritable)
	}
	return nil
}

// Start begins the session's transaction, matching spec.md §4.L. A
// gateway-driving session enters commitGateway's first room here, then — a
// read-only session only — moves straight on into the middle room; a
// writable session stays in the first room until Stop moves it to the
// last room, the commit path spec.md §4.G/§8 scenario 6 describes.
func (s *Session[R]) Start() error {
	if s.started {
		return newError("Session.Start", KindBug, ErrAlreadyStarted)
	}
	if s.gateway {
		gw := s.ds.ctx.commitGateway
		gw.GoFirstRoom(s.owner)
		if !s.writable {
			gw.GoMiddleRoom(s.owner)
		}
	}
	s.ds.beginFileTxn()
	s.started = true
	return nil
}

// Stop commits the session's transaction. A writable session's final
// table state is persisted into its key record first, provided the open
// file transaction has backed up at least one page (a write by this
// session or by an earlier session of the same Transaction); a session
// that wrote nothing leaves the key record, and so the disk, unchanged.
func (s *Session[R]) Stop() error {
	if !s.started {
		return newError("Session.Stop", KindBug, ErrNotStarted)
	}
	if s.writable && len(s.ds.file.Indexes()) > 0 {
		if err := s.ds.persistKey(s.key, s.treeRoot); err != nil {
			s.ds.cancelFileTxn()
			s.exitGateway()
			s.started = false
			return err
		}
	}
	err := s.ds.commitFileTxn()
	s.exitGateway()
	s.started = false
	return err
}

// Cancel aborts the session's transaction, restoring pre-image pages and,
// for a writable session, rolling the table's in-memory position state
// back to its last-persisted key record.
func (s *Session[R]) Cancel() {
	s.ds.cancelFileTxn()
	if s.writable {
		s.ds.reloadTable(s.key)
	}
	s.exitGateway()
	s.started = false
}

// exitGateway leaves commitGateway entirely for a gateway-driving session,
// vacating whichever room it currently occupies and then blocking in the
// last room while any reader already in the middle room has not yet left
// it, matching spec.md §4.G/§8 scenario 6's commit-window ordering.
func (s *Session[R]) exitGateway() {
	if !s.gateway {
		return
	}
	s.ds.ctx.commitGateway.GoLastRoom(s.owner)
	s.ds.ctx.commitGateway.LeaveLastRoom(s.owner)
}

// Read-family operations, available on both sharable and scoped sessions.

func (s *Session[R]) Read(pos uint32) (R, error) { return s.table.Read(pos) }
func (s *Session[R]) ReadFront() (R, error)      { return s.table.ReadFront() }
func (s *Session[R]) ReadBack() (R, error)       { return s.table.ReadBack() }
func (s *Session[R]) Count() uint32              { return s.table.Count() }
func (s *Session[R]) Empty() bool                { return s.table.Empty() }
func (s *Session[R]) BegPos() uint32             { return s.table.BegPos() }
func (s *Session[R]) EndPos() uint32             { return s.table.EndPos() }

func (s *Session[R]) Find(beg, count uint32, eq func(R) bool) (uint32, bool, error) {
	return s.table.Find(beg, count, eq)
}

func (s *Session[R]) RFind(end, count uint32, eq func(R) bool) (uint32, bool, error) {
	return s.table.RFind(end, count, eq)
}

// Write-family operations, only available on a scoped (writable) session.

func (s *Session[R]) Add(rec R) (uint32, error) {
	if err := s.requireWritable("Session.Add"); err != nil {
		return 0, err
	}
	return s.table.Add(rec)
}

func (s *Session[R]) Write(pos uint32, rec R) error {
	if err := s.requireWritable("Session.Write"); err != nil {
		return err
	}
	return s.table.Write(pos, rec)
}

func (s *Session[R]) Remove(pos uint32) error {
	if err := s.requireWritable("Session.Remove"); err != nil {
		return err
	}
	return s.table.Remove(pos)
}

func (s *Session[R]) RemoveRange(beg, count uint32) error {
	if err := s.requireWritable("Session.RemoveRange"); err != nil {
		return err
	}
	return s.table.RemoveRange(beg, count)
}

func (s *Session[R]) RemoveBack(count uint32) (uint32, error) {
	if err := s.requireWritable("Session.RemoveBack"); err != nil {
		return 0, err
	}
	return s.table.RemoveBack(count)
}

func (s *Session[R]) Clear() error {
	if err := s.requireWritable("Session.Clear"); err != nil {
		return err
	}
	return s.table.Clear()
}

package ouroboros

import (
	"path/filepath"
	"testing"
)

// TestTransactionNestedStartStopSharesOneFileTransaction covers spec.md
// §4.L: a Transaction started twice on the same instance re-enters the
// dataset lock via its own owner token, and only the outermost Stop
// actually releases it — writes made under the inner Start survive only
// once the outer Stop commits.
func TestTransactionNestedStartStopSharesOneFileTransaction(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data")
	ds := openTestDataset(t, path, 1, 4)
	defer ds.Close()

	if err := ds.AddTable(1); err != nil {
		t.Fatalf("AddTable: %v", err)
	}

	txn := NewTransaction(ds)
	if err := txn.Start(); err != nil {
		t.Fatalf("outer Start: %v", err)
	}
	if err := txn.Start(); err != nil {
		t.Fatalf("inner Start: %v", err)
	}

	sess, err := txn.SessionWr(1)
	if err != nil {
		t.Fatalf("SessionWr: %v", err)
	}
	if err := sess.Start(); err != nil {
		t.Fatalf("sess.Start: %v", err)
	}
	if _, err := sess.Add(&dsTestRecord{Field1: 7}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := sess.Stop(); err != nil {
		t.Fatalf("sess.Stop: %v", err)
	}
	sess.Close()

	// Inner Stop commits the nested Start but must not release the
	// dataset lock yet: a concurrent standalone session should still see
	// the exclusive hold.
	if err := txn.Stop(); err != nil {
		t.Fatalf("inner Stop: %v", err)
	}
	if _, err := ds.SessionRd(1); !IsKind(err, KindLock) {
		t.Fatalf("SessionRd between inner and outer Stop: err = %v, want KindLock timeout", err)
	}

	if err := txn.Stop(); err != nil {
		t.Fatalf("outer Stop: %v", err)
	}

	rd, err := ds.SessionRd(1)
	if err != nil {
		t.Fatalf("SessionRd after outer Stop: %v", err)
	}
	defer rd.Close()
	if rd.Count() != 1 {
		t.Fatalf("count = %d, want 1", rd.Count())
	}
}

// TestTransactionCancelUnwindsRegardlessOfNesting covers spec.md §4.L:
// Cancel discards the whole shared transaction immediately, however deep
// the nesting, and releases the dataset lock in one step.
func TestTransactionCancelUnwindsRegardlessOfNesting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data")
	ds := openTestDataset(t, path, 1, 4)
	defer ds.Close()

	if err := ds.AddTable(1); err != nil {
		t.Fatalf("AddTable: %v", err)
	}

	txn := NewTransaction(ds)
	if err := txn.Start(); err != nil {
		t.Fatalf("outer Start: %v", err)
	}
	if err := txn.Start(); err != nil {
		t.Fatalf("inner Start: %v", err)
	}

	sess, err := txn.SessionWr(1)
	if err != nil {
		t.Fatalf("SessionWr: %v", err)
	}
	if err := sess.Start(); err != nil {
		t.Fatalf("sess.Start: %v", err)
	}
	if _, err := sess.Add(&dsTestRecord{Field1: 9}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	sess.Cancel()
	sess.Close()

	txn.Cancel()

	// The dataset lock must be fully released after one Cancel call, even
	// though Start was nested twice.
	rd, err := ds.SessionRd(1)
	if err != nil {
		t.Fatalf("SessionRd after Cancel: %v", err)
	}
	defer rd.Close()
	if rd.Count() != 0 {
		t.Fatalf("count = %d after cancel, want 0", rd.Count())
	}
}

// TestLazyTransactionBatchesRetainedSessions covers spec.md §4.L's lazy
// transaction: every retained write session is stopped in insertion order
// on a single Stop call, committing one shared file transaction.
func TestLazyTransactionBatchesRetainedSessions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data")
	ds := openTestDataset(t, path, 2, 4)
	defer ds.Close()

	if err := ds.AddTable(1); err != nil {
		t.Fatalf("AddTable(1): %v", err)
	}
	if err := ds.AddTable(2); err != nil {
		t.Fatalf("AddTable(2): %v", err)
	}

	lt := NewLazyTransaction(ds)
	if err := lt.Start(); err != nil {
		t.Fatalf("lt.Start: %v", err)
	}

	s1, err := lt.SessionWr(1)
	if err != nil {
		t.Fatalf("SessionWr(1): %v", err)
	}
	if _, err := s1.Add(&dsTestRecord{Field1: 1}); err != nil {
		t.Fatalf("Add table 1: %v", err)
	}

	s2, err := lt.SessionWr(2)
	if err != nil {
		t.Fatalf("SessionWr(2): %v", err)
	}
	if _, err := s2.Add(&dsTestRecord{Field1: 2}); err != nil {
		t.Fatalf("Add table 2: %v", err)
	}

	if err := lt.Stop(); err != nil {
		t.Fatalf("lt.Stop: %v", err)
	}

	rd1, err := ds.SessionRd(1)
	if err != nil {
		t.Fatalf("SessionRd(1): %v", err)
	}
	defer rd1.Close()
	if rd1.Count() != 1 {
		t.Fatalf("table 1 count = %d, want 1", rd1.Count())
	}

	rd2, err := ds.SessionRd(2)
	if err != nil {
		t.Fatalf("SessionRd(2): %v", err)
	}
	defer rd2.Close()
	if rd2.Count() != 1 {
		t.Fatalf("table 2 count = %d, want 1", rd2.Count())
	}
}

// TestLazyTransactionCancelRollsBackEverySession covers spec.md §4.L's lazy
// transaction Cancel: every retained session is rolled back to its
// last-persisted key record and the shared file transaction is discarded.
func TestLazyTransactionCancelRollsBackEverySession(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data")
	ds := openTestDataset(t, path, 2, 4)
	defer ds.Close()

	if err := ds.AddTable(1); err != nil {
		t.Fatalf("AddTable(1): %v", err)
	}
	if err := ds.AddTable(2); err != nil {
		t.Fatalf("AddTable(2): %v", err)
	}
	addAndStop(t, ds, 1, &dsTestRecord{Field1: 100})

	lt := NewLazyTransaction(ds)
	if err := lt.Start(); err != nil {
		t.Fatalf("lt.Start: %v", err)
	}

	s1, err := lt.SessionWr(1)
	if err != nil {
		t.Fatalf("SessionWr(1): %v", err)
	}
	if _, err := s1.Add(&dsTestRecord{Field1: 101}); err != nil {
		t.Fatalf("Add table 1: %v", err)
	}

	s2, err := lt.SessionWr(2)
	if err != nil {
		t.Fatalf("SessionWr(2): %v", err)
	}
	if _, err := s2.Add(&dsTestRecord{Field1: 200}); err != nil {
		t.Fatalf("Add table 2: %v", err)
	}

	lt.Cancel()

	rd1, err := ds.SessionRd(1)
	if err != nil {
		t.Fatalf("SessionRd(1): %v", err)
	}
	defer rd1.Close()
	if rd1.Count() != 1 {
		t.Fatalf("table 1 count = %d after lazy cancel, want 1 (pre-existing record only)", rd1.Count())
	}

	rd2, err := ds.SessionRd(2)
	if err != nil {
		t.Fatalf("SessionRd(2): %v", err)
	}
	defer rd2.Close()
	if rd2.Count() != 0 {
		t.Fatalf("table 2 count = %d after lazy cancel, want 0", rd2.Count())
	}
}

// TestLazyTransactionSharesLazyLockWithConcurrentReadSession covers
// spec.md §4.L: the lazy lock is cooperative only — a standalone read
// session never touches it, so it proceeds even while a LazyTransaction
// holds the lazy lock exclusively.
func TestLazyTransactionSharesLazyLockWithConcurrentReadSession(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data")
	ds := openTestDataset(t, path, 1, 4)
	defer ds.Close()

	if err := ds.AddTable(1); err != nil {
		t.Fatalf("AddTable: %v", err)
	}

	lt := NewLazyTransaction(ds)
	if err := lt.Start(); err != nil {
		t.Fatalf("lt.Start: %v", err)
	}
	defer lt.Cancel()

	rd, err := ds.SessionRd(1)
	if err != nil {
		t.Fatalf("SessionRd while a LazyTransaction is open: %v", err)
	}
	rd.Close()
}

// TestLazyTransactionBlocksConcurrentWriteSession covers spec.md §4.L: a
// standalone write session takes the lazy lock sharably, so it blocks
// while a LazyTransaction holds it exclusively.
func TestLazyTransactionBlocksConcurrentWriteSession(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data")
	ds := openTestDataset(t, path, 1, 4)
	defer ds.Close()

	if err := ds.AddTable(1); err != nil {
		t.Fatalf("AddTable: %v", err)
	}

	lt := NewLazyTransaction(ds)
	if err := lt.Start(); err != nil {
		t.Fatalf("lt.Start: %v", err)
	}

	_, err := ds.SessionWr(1)
	if !IsKind(err, KindLock) {
		t.Fatalf("SessionWr while a LazyTransaction holds the lazy lock: err = %v, want KindLock timeout", err)
	}

	lt.Cancel()

	sess, err := ds.SessionWr(1)
	if err != nil {
		t.Fatalf("SessionWr after LazyTransaction canceled: %v", err)
	}
	sess.Close()
}

// TestGlobalTransactionPropagatesStartStop covers spec.md §4.L's global
// transaction: Start/Stop propagate to every child atomically across
// multiple datasets, and a failed Start rolls back every child that did
// start before it.
func TestGlobalTransactionPropagatesStartStop(t *testing.T) {
	dir := t.TempDir()
	ds1 := openTestDataset(t, filepath.Join(dir, "a"), 1, 4)
	defer ds1.Close()
	ds2 := openTestDataset(t, filepath.Join(dir, "b"), 1, 4)
	defer ds2.Close()

	if err := ds1.AddTable(1); err != nil {
		t.Fatalf("AddTable ds1: %v", err)
	}
	if err := ds2.AddTable(1); err != nil {
		t.Fatalf("AddTable ds2: %v", err)
	}

	datasets := []*Dataset[*dsTestRecord]{ds1, ds2}
	i := 0
	g := NewGlobalTransaction(func() *Transaction[*dsTestRecord] {
		t := NewTransaction(datasets[i])
		i++
		return t
	}, 2)

	if err := g.Start(); err != nil {
		t.Fatalf("g.Start: %v", err)
	}

	for idx, ds := range datasets {
		sess, err := g.children[idx].SessionWr(1)
		if err != nil {
			t.Fatalf("SessionWr on dataset %d: %v", idx, err)
		}
		if err := sess.Start(); err != nil {
			t.Fatalf("sess.Start on dataset %d: %v", idx, err)
		}
		if _, err := sess.Add(&dsTestRecord{Field1: int32(idx)}); err != nil {
			t.Fatalf("Add on dataset %d: %v", idx, err)
		}
		if err := sess.Stop(); err != nil {
			t.Fatalf("sess.Stop on dataset %d: %v", idx, err)
		}
		sess.Close()
		_ = ds
	}

	if err := g.Stop(); err != nil {
		t.Fatalf("g.Stop: %v", err)
	}

	for idx, ds := range datasets {
		rd, err := ds.SessionRd(1)
		if err != nil {
			t.Fatalf("SessionRd on dataset %d: %v", idx, err)
		}
		if rd.Count() != 1 {
			t.Fatalf("dataset %d count = %d, want 1", idx, rd.Count())
		}
		rd.Close()
	}
}

// TestGlobalLazyTransactionCancelPropagates covers GlobalLazyTransaction's
// Cancel fan-out across every child.
func TestGlobalLazyTransactionCancelPropagates(t *testing.T) {
	dir := t.TempDir()
	ds1 := openTestDataset(t, filepath.Join(dir, "a"), 1, 4)
	defer ds1.Close()
	ds2 := openTestDataset(t, filepath.Join(dir, "b"), 1, 4)
	defer ds2.Close()

	if err := ds1.AddTable(1); err != nil {
		t.Fatalf("AddTable ds1: %v", err)
	}
	if err := ds2.AddTable(1); err != nil {
		t.Fatalf("AddTable ds2: %v", err)
	}

	datasets := []*Dataset[*dsTestRecord]{ds1, ds2}
	i := 0
	g := NewGlobalLazyTransaction(func() *LazyTransaction[*dsTestRecord] {
		lt := NewLazyTransaction(datasets[i])
		i++
		return lt
	}, 2)

	if err := g.Start(); err != nil {
		t.Fatalf("g.Start: %v", err)
	}

	for idx := range datasets {
		sess, err := g.children[idx].SessionWr(1)
		if err != nil {
			t.Fatalf("SessionWr on dataset %d: %v", idx, err)
		}
		if _, err := sess.Add(&dsTestRecord{Field1: int32(idx)}); err != nil {
			t.Fatalf("Add on dataset %d: %v", idx, err)
		}
	}

	g.Cancel()

	for idx, ds := range datasets {
		rd, err := ds.SessionRd(1)
		if err != nil {
			t.Fatalf("SessionRd on dataset %d: %v", idx, err)
		}
		if rd.Count() != 0 {
			t.Fatalf("dataset %d count = %d after cancel, want 0", idx, rd.Count())
		}
		rd.Close()
	}
}

package lock

import (
	"testing"
	"time"
)

func TestReentrantExclusiveExcludesOtherOwner(t *testing.T) {
	r := NewReentrant("t")
	const me, other Owner = 1, 2
	if !r.Lock(me) {
		t.Fatal("expected to acquire")
	}
	if r.LockTimeout(other, 20*time.Millisecond) {
		t.Fatal("a different owner must not acquire while held exclusively")
	}
	r.Unlock(me)
}

func TestReentrantSameOwnerReentersExclusive(t *testing.T) {
	r := NewReentrant("t")
	const me Owner = 1
	if !r.Lock(me) {
		t.Fatal("expected to acquire")
	}
	if !r.Lock(me) {
		t.Fatal("expected the same owner to re-enter")
	}
	// First Unlock must not release the lock yet (depth 2 -> 1).
	r.Unlock(me)
	const other Owner = 2
	if r.LockTimeout(other, 20*time.Millisecond) {
		t.Fatal("lock should still be held after only one of two unlocks")
	}
	r.Unlock(me)
	if !r.LockTimeout(other, 20*time.Millisecond) {
		t.Fatal("lock should be free after both unlocks")
	}
	r.Unlock(other)
}

func TestReentrantSharableDegradesForExclusiveOwner(t *testing.T) {
	r := NewReentrant("t")
	const me Owner = 1
	r.Lock(me)
	if !r.LockSharable(me) {
		t.Fatal("exclusive holder must be able to take the shared lock too")
	}
	r.UnlockSharable(me)
	r.Unlock(me)
}

func TestReentrantMultipleOwnersShareConcurrently(t *testing.T) {
	r := NewReentrant("t")
	const a, b Owner = 1, 2
	if !r.LockSharable(a) {
		t.Fatal("a should acquire shared")
	}
	if !r.LockSharable(b) {
		t.Fatal("b should acquire shared concurrently with a")
	}
	r.UnlockSharable(a)
	r.UnlockSharable(b)
}

func TestReentrantLockTimesOutWhileSharedHeld(t *testing.T) {
	r := NewReentrant("t")
	const reader, writer Owner = 1, 2
	r.LockSharable(reader)
	if r.LockTimeout(writer, 20*time.Millisecond) {
		t.Fatal("exclusive lock must not be granted while a reader holds it")
	}
	r.UnlockSharable(reader)
	if !r.LockTimeout(writer, 20*time.Millisecond) {
		t.Fatal("exclusive lock should be available once the reader releases")
	}
	r.Unlock(writer)
}

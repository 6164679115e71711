package table

import (
	"cmp"

	"github.com/ouroboros-db/ouroboros/record"
)

// Color is a red-black tree node's color, matching node.h's node_color.
type Color uint8

const (
	Red Color = iota
	Black
)

// NilPos is the sentinel "no position" value, the Go counterpart of a null
// node pointer in node.h — positions are unsigned, so the maximum value
// stands in for nil the way the original's pos_type uses an out-of-range
// sentinel.
const NilPos uint32 = ^uint32(0)

// TreeRecord is a record that embeds red-black tree linkage fields, the Go
// counterpart of data_node<Key,Body> (node.h) folded directly into the
// table record the way the original embeds node fields in the record
// itself rather than a separate node table.
type TreeRecord[K cmp.Ordered] interface {
	record.Record
	Key() K
	Left() uint32
	SetLeft(uint32)
	Right() uint32
	SetRight(uint32)
	Parent() uint32
	SetParent(uint32)
	Color() Color
	SetColor(Color)
}

// Tree wraps a Table with an embedded red-black tree over the records'
// Key(), keeping Root (the counterpart of tree_key's root field) alongside
// the table's other metadata. This is table<Source,TreeKey> composed with
// indexedtable.h's tree-backed specialization; do_before_remove performs a
// full CLRS-style deletion of the node at the removed position, and
// do_before_move retargets every pointer that referenced the moved
// position (and Root/min/max caches) before the physical record copy
// happens — with fast set, Tree additionally caches the min/max positions the way
// rbtree.h's "fast" variant comment describes.
type Tree[K cmp.Ordered, R TreeRecord[K]] struct {
	*Table[R]
	Root  uint32
	fast  bool
	minOK bool
	min   uint32
	maxOK bool
	max   uint32
}

// NewTree builds a Tree over an existing (assumed-empty) Table.
func NewTree[K cmp.Ordered, R TreeRecord[K]](t *Table[R], fast bool) *Tree[K, R] {
	tr := &Tree[K, R]{Table: t, Root: NilPos, fast: fast}
	t.setHooks(tr)
	return tr
}

func (tr *Tree[K, R]) read(pos uint32) R {
	rec, err := tr.Table.Read(pos)
	if err != nil {
		var zero R
		return zero
	}
	return rec
}

func (tr *Tree[K, R]) write(pos uint32, rec R) { tr.Table.Write(pos, rec) }

func (tr *Tree[K, R]) colorOf(pos uint32) Color {
	if pos == NilPos {
		return Black
	}
	return tr.read(pos).Color()
}

// Find returns the position of the record with the given key, matching an
// in-order BST search over the embedded tree.
func (tr *Tree[K, R]) Find(key K) (uint32, bool) {
	cur := tr.Root
	for cur != NilPos {
		rec := tr.read(cur)
		switch {
		case key == rec.Key():
			return cur, true
		case key < rec.Key():
			cur = rec.Left()
		default:
			cur = rec.Right()
		}
	}
	return 0, false
}

// Min and Max return the position holding the smallest/largest key,
// matching rbtree.h's "fast" cached variant when fast is enabled.
func (tr *Tree[K, R]) Min() (uint32, bool) {
	if tr.fast && tr.minOK {
		return tr.min, true
	}
	if tr.Root == NilPos {
		return 0, false
	}
	pos := tr.subtreeMin(tr.Root)
	if tr.fast {
		tr.min, tr.minOK = pos, true
	}
	return pos, true
}

func (tr *Tree[K, R]) Max() (uint32, bool) {
	if tr.fast && tr.maxOK {
		return tr.max, true
	}
	if tr.Root == NilPos {
		return 0, false
	}
	pos := tr.subtreeMax(tr.Root)
	if tr.fast {
		tr.max, tr.maxOK = pos, true
	}
	return pos, true
}

func (tr *Tree[K, R]) subtreeMin(pos uint32) uint32 {
	for {
		rec := tr.read(pos)
		if rec.Left() == NilPos {
			return pos
		}
		pos = rec.Left()
	}
}

func (tr *Tree[K, R]) subtreeMax(pos uint32) uint32 {
	for {
		rec := tr.read(pos)
		if rec.Right() == NilPos {
			return pos
		}
		pos = rec.Right()
	}
}

// Add inserts rec into both the underlying table and the tree, matching
// the standard CLRS BST-insert-then-fixup sequence.
func (tr *Tree[K, R]) Add(rec R) (uint32, error) {
	pos, err := tr.Table.Add(rec)
	if err != nil {
		return 0, err
	}
	tr.insertNode(pos)
	tr.invalidateMinMax(tr.read(pos).Key())
	return pos, nil
}

func (tr *Tree[K, R]) invalidateMinMax(key K) {
	if !tr.fast {
		return
	}
	if tr.minOK {
		if cur := tr.read(tr.min); key < cur.Key() {
			tr.minOK = false
		}
	}
	if tr.maxOK {
		if cur := tr.read(tr.max); key > cur.Key() {
			tr.maxOK = false
		}
	}
}

func (tr *Tree[K, R]) insertNode(pos uint32) {
	rec := tr.read(pos)
	rec.SetLeft(NilPos)
	rec.SetRight(NilPos)
	rec.SetColor(Red)

	if tr.Root == NilPos {
		rec.SetParent(NilPos)
		rec.SetColor(Black)
		tr.write(pos, rec)
		tr.Root = pos
		return
	}

	cur := tr.Root
	var parent uint32
	var goLeft bool
	for cur != NilPos {
		parent = cur
		curRec := tr.read(cur)
		if rec.Key() < curRec.Key() {
			cur = curRec.Left()
			goLeft = true
		} else {
			cur = curRec.Right()
			goLeft = false
		}
	}
	rec.SetParent(parent)
	tr.write(pos, rec)

	parentRec := tr.read(parent)
	if goLeft {
		parentRec.SetLeft(pos)
	} else {
		parentRec.SetRight(pos)
	}
	tr.write(parent, parentRec)

	tr.insertFixup(pos)
}

func (tr *Tree[K, R]) rotateLeft(pos uint32) {
	rec := tr.read(pos)
	right := rec.Right()
	rightRec := tr.read(right)

	rec.SetRight(rightRec.Left())
	if rightRec.Left() != NilPos {
		leftOfRight := tr.read(rightRec.Left())
		leftOfRight.SetParent(pos)
		tr.write(rightRec.Left(), leftOfRight)
	}
	rightRec.SetParent(rec.Parent())
	tr.replaceChild(rec.Parent(), pos, right, rightRec)
	rightRec.SetLeft(pos)
	rec.SetParent(right)
	tr.write(pos, rec)
	tr.write(right, rightRec)
}

func (tr *Tree[K, R]) rotateRight(pos uint32) {
	rec := tr.read(pos)
	left := rec.Left()
	leftRec := tr.read(left)

	rec.SetLeft(leftRec.Right())
	if leftRec.Right() != NilPos {
		rightOfLeft := tr.read(leftRec.Right())
		rightOfLeft.SetParent(pos)
		tr.write(leftRec.Right(), rightOfLeft)
	}
	leftRec.SetParent(rec.Parent())
	tr.replaceChild(rec.Parent(), pos, left, leftRec)
	leftRec.SetRight(pos)
	rec.SetParent(left)
	tr.write(pos, rec)
	tr.write(left, leftRec)
}

// replaceChild rewrites parentPos's child pointer from oldChild to
// newChild (newRec already carries newChild's updated Parent), or updates
// Root if oldChild had no parent.
func (tr *Tree[K, R]) replaceChild(parentPos, oldChild, newChild uint32, newRec R) {
	if parentPos == NilPos {
		tr.Root = newChild
		return
	}
	parentRec := tr.read(parentPos)
	if parentRec.Left() == oldChild {
		parentRec.SetLeft(newChild)
	} else {
		parentRec.SetRight(newChild)
	}
	tr.write(parentPos, parentRec)
	_ = newRec
}

func (tr *Tree[K, R]) insertFixup(pos uint32) {
	for {
		rec := tr.read(pos)
		parentPos := rec.Parent()
		if parentPos == NilPos {
			break
		}
		parentRec := tr.read(parentPos)
		if parentRec.Color() == Black {
			break
		}
		grandPos := parentRec.Parent()
		grandRec := tr.read(grandPos)
		if parentPos == grandRec.Left() {
			unclePos := grandRec.Right()
			if unclePos != NilPos && tr.colorOf(unclePos) == Red {
				tr.setColor(parentPos, Black)
				tr.setColor(unclePos, Black)
				tr.setColor(grandPos, Red)
				pos = grandPos
				continue
			}
			if pos == parentRec.Right() {
				pos = parentPos
				tr.rotateLeft(pos)
				rec = tr.read(pos)
				parentPos = rec.Parent()
				parentRec = tr.read(parentPos)
				grandPos = parentRec.Parent()
			}
			tr.setColor(parentPos, Black)
			tr.setColor(grandPos, Red)
			tr.rotateRight(grandPos)
		} else {
			unclePos := grandRec.Left()
			if unclePos != NilPos && tr.colorOf(unclePos) == Red {
				tr.setColor(parentPos, Black)
				tr.setColor(unclePos, Black)
				tr.setColor(grandPos, Red)
				pos = grandPos
				continue
			}
			if pos == parentRec.Left() {
				pos = parentPos
				tr.rotateRight(pos)
				rec = tr.read(pos)
				parentPos = rec.Parent()
				parentRec = tr.read(parentPos)
				grandPos = parentRec.Parent()
			}
			tr.setColor(parentPos, Black)
			tr.setColor(grandPos, Red)
			tr.rotateLeft(grandPos)
		}
	}
	tr.setColor(tr.Root, Black)
}

func (tr *Tree[K, R]) setColor(pos uint32, c Color) {
	if pos == NilPos {
		return
	}
	rec := tr.read(pos)
	rec.SetColor(c)
	tr.write(pos, rec)
}

// BeforeRemove implements Hooks: delete the node at pos from the tree
// before the table overwrites or drops its slot.
func (tr *Tree[K, R]) BeforeRemove(pos uint32, rec R) {
	tr.deleteNode(pos)
	if tr.fast {
		tr.minOK = false
		tr.maxOK = false
	}
}

// BeforeMove implements Hooks: before the physical byte move of src to
// dst, rewrite the parent's child pointer and children's parent pointers
// to reference dst instead of src, and update Root/min/max caches that
// pointed to src — the move itself never touches tree shape, only the
// position labels.
func (tr *Tree[K, R]) BeforeMove(src, dst uint32, rec R) {
	if tr.Root == src {
		tr.Root = dst
	}
	if parent := rec.Parent(); parent != NilPos {
		parentRec := tr.read(parent)
		if parentRec.Left() == src {
			parentRec.SetLeft(dst)
		} else if parentRec.Right() == src {
			parentRec.SetRight(dst)
		}
		tr.write(parent, parentRec)
	}
	if left := rec.Left(); left != NilPos {
		leftRec := tr.read(left)
		leftRec.SetParent(dst)
		tr.write(left, leftRec)
	}
	if right := rec.Right(); right != NilPos {
		rightRec := tr.read(right)
		rightRec.SetParent(dst)
		tr.write(right, rightRec)
	}
	if tr.fast {
		if tr.minOK && tr.min == src {
			tr.min = dst
		}
		if tr.maxOK && tr.max == src {
			tr.max = dst
		}
	}
}

// deleteNode performs a standard CLRS red-black deletion of the node at
// pos. Positions of other live nodes are never reassigned by this
// function — only pointer fields change — so callers holding other
// positions stay valid; only pos itself becomes free for Table's own
// compaction (via BeforeMove) to reuse.
func (tr *Tree[K, R]) deleteNode(pos uint32) {
	rec := tr.read(pos)
	var x, xParent uint32
	y := pos
	yOriginalColor := rec.Color()

	switch {
	case rec.Left() == NilPos:
		x = rec.Right()
		xParent = rec.Parent()
		tr.transplant(pos, rec.Right())
	case rec.Right() == NilPos:
		x = rec.Left()
		xParent = rec.Parent()
		tr.transplant(pos, rec.Left())
	default:
		y = tr.subtreeMin(rec.Right())
		yRec := tr.read(y)
		yOriginalColor = yRec.Color()
		x = yRec.Right()
		if yRec.Parent() == pos {
			xParent = y
		} else {
			xParent = yRec.Parent()
			tr.transplant(y, yRec.Right())
			yRec = tr.read(y)
			yRec.SetRight(rec.Right())
			tr.write(y, yRec)
			if rec.Right() != NilPos {
				rr := tr.read(rec.Right())
				rr.SetParent(y)
				tr.write(rec.Right(), rr)
			}
		}
		tr.transplant(pos, y)
		yRec = tr.read(y)
		yRec.SetLeft(rec.Left())
		yRec.SetColor(rec.Color())
		tr.write(y, yRec)
		if rec.Left() != NilPos {
			lr := tr.read(rec.Left())
			lr.SetParent(y)
			tr.write(rec.Left(), lr)
		}
	}

	if yOriginalColor == Black {
		tr.deleteFixup(x, xParent)
	}
}

// transplant replaces the subtree rooted at u with the subtree rooted at
// v, matching CLRS's RB-TRANSPLANT.
func (tr *Tree[K, R]) transplant(u, v uint32) {
	uRec := tr.read(u)
	parent := uRec.Parent()
	if parent == NilPos {
		tr.Root = v
	} else {
		parentRec := tr.read(parent)
		if parentRec.Left() == u {
			parentRec.SetLeft(v)
		} else {
			parentRec.SetRight(v)
		}
		tr.write(parent, parentRec)
	}
	if v != NilPos {
		vRec := tr.read(v)
		vRec.SetParent(parent)
		tr.write(v, vRec)
	}
}

func (tr *Tree[K, R]) deleteFixup(x, xParent uint32) {
	for x != tr.Root && tr.colorOf(x) == Black {
		parentRec := tr.read(xParent)
		if x == parentRec.Left() {
			w := parentRec.Right()
			if tr.colorOf(w) == Red {
				tr.setColor(w, Black)
				tr.setColor(xParent, Red)
				tr.rotateLeft(xParent)
				parentRec = tr.read(xParent)
				w = parentRec.Right()
			}
			wRec := tr.read(w)
			if tr.colorOf(wRec.Left()) == Black && tr.colorOf(wRec.Right()) == Black {
				tr.setColor(w, Red)
				x = xParent
				xParent = tr.read(x).Parent()
				continue
			}
			if tr.colorOf(wRec.Right()) == Black {
				tr.setColor(wRec.Left(), Black)
				tr.setColor(w, Red)
				tr.rotateRight(w)
				parentRec = tr.read(xParent)
				w = parentRec.Right()
				wRec = tr.read(w)
			}
			tr.setColor(w, tr.colorOf(xParent))
			tr.setColor(xParent, Black)
			tr.setColor(wRec.Right(), Black)
			tr.rotateLeft(xParent)
			x = tr.Root
			xParent = NilPos
		} else {
			w := parentRec.Left()
			if tr.colorOf(w) == Red {
				tr.setColor(w, Black)
				tr.setColor(xParent, Red)
				tr.rotateRight(xParent)
				parentRec = tr.read(xParent)
				w = parentRec.Left()
			}
			wRec := tr.read(w)
			if tr.colorOf(wRec.Right()) == Black && tr.colorOf(wRec.Left()) == Black {
				tr.setColor(w, Red)
				x = xParent
				xParent = tr.read(x).Parent()
				continue
			}
			if tr.colorOf(wRec.Left()) == Black {
				tr.setColor(wRec.Right(), Black)
				tr.setColor(w, Red)
				tr.rotateLeft(w)
				parentRec = tr.read(xParent)
				w = parentRec.Left()
				wRec = tr.read(w)
			}
			tr.setColor(w, tr.colorOf(xParent))
			tr.setColor(xParent, Black)
			tr.setColor(wRec.Left(), Black)
			tr.rotateRight(xParent)
			x = tr.Root
			xParent = NilPos
		}
	}
	tr.setColor(x, Black)
}

// InOrder calls fn for every position in ascending key order, stopping
// early if fn returns false.
func (tr *Tree[K, R]) InOrder(fn func(pos uint32) bool) {
	tr.inOrder(tr.Root, fn)
}

func (tr *Tree[K, R]) inOrder(pos uint32, fn func(pos uint32) bool) bool {
	if pos == NilPos {
		return true
	}
	rec := tr.read(pos)
	if !tr.inOrder(rec.Left(), fn) {
		return false
	}
	if !fn(pos) {
		return false
	}
	return tr.inOrder(rec.Right(), fn)
}

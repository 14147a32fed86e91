package solist

import (
	"github.com/blaisedias/solist/hazard"
)

// Hazard-pointer slot indices an Accessor keeps reserved for the three
// pointers a traversal ever needs to hold live at once.
const (
	slotPrev = 0
	slotCur  = 1
	slotNext = 2
)

// Accessor is a thread-local (goroutine-local) handle onto a List: all
// traversal, insertion and deletion happens through one, and it must not
// be shared between concurrently-running goroutines, mirroring the
// source's solist_accessor and this module's own hazard.Context
// single-owner contract.
//
// Unlike the source, where hazard-pointer acquisition for prev/cur/next
// is stubbed out with TODO comments and advance()/zap() touch nothing but
// plain fields, this port actually protects every node it holds: Go's
// garbage collector already rules out physical use-after-free, so what
// the hazard context here guarantees is the documented contract tested in
// hazard/context_test.go — a node published before a concurrent
// remove+retire+collect races it is never handed to the domain's reclaim
// hook by Collect while published.
type Accessor[T any] struct {
	list *List[T]
	ctx  *hazard.Context[bucket[T]]

	prev, cur, next *bucket[T]
	steps           uint32
}

func newAccessor[T any](l *List[T]) *Accessor[T] {
	return &Accessor[T]{
		list: l,
		ctx:  hazard.NewContext[bucket[T]](l.domain, numTraversalHazardPointers, defaultRetireCapacity),
	}
}

// Close flushes any pending retires and releases this accessor's hazard
// pointer slots. After Close the Accessor must not be used again.
func (a *Accessor[T]) Close() {
	a.zap()
	a.ctx.Close()
}

func (a *Accessor[T]) zap() {
	a.prev, a.cur, a.next = nil, nil, nil
	a.ctx.Clear(slotPrev)
	a.ctx.Clear(slotCur)
	a.ctx.Clear(slotNext)
}

// publishCur hazard-protects b in the cur slot before it is trusted for
// anything beyond pointer comparison (key ordering, identity), and
// returns it unchanged so call sites can chain it.
func (a *Accessor[T]) publishCur(b *bucket[T]) *bucket[T] {
	return a.ctx.Publish(slotCur, b)
}

func rawNext[T any](b *bucket[T]) (addr *bucket[T], marked bool) {
	return b.next.Load()
}

// resolveCur ensures a.cur, once published, is not itself logically
// deleted: as long as a.cur's own next pointer carries the mark bit, it
// help-unlinks a.cur from a.prev (CASing a.prev's next past it) and
// retires it, moving a.cur to the node that took its place and checking
// again. Once it lands on an unmarked a.cur (or nil), a.next is published
// as that node's address. It reports false only when the help-unlink CAS
// itself lost a race — meaning a.prev changed underneath it — in which
// case the entire traversal must restart from getParent/findNode.
func (a *Accessor[T]) resolveCur() bool {
	for a.cur != nil {
		addr, marked := rawNext(a.cur)
		if !marked {
			a.next = a.ctx.Publish(slotNext, addr)
			return true
		}
		stale := a.cur
		if !a.prev.next.CAS(stale, false, addr, false) {
			return false
		}
		a.cur = a.ctx.Publish(slotCur, addr)
		a.ctx.Retire(stale)
	}
	a.next = a.ctx.Publish(slotNext, nil)
	return true
}

// advance moves the traversal window one node forward: prev takes cur's
// place, cur takes next's, and the new cur is then resolved past any run
// of nodes that turn out to already be marked for deletion. It reports
// false when resolveCur had to give up because a.prev changed underneath
// it, in which case the caller must restart the whole traversal from
// getParent/findNode.
func (a *Accessor[T]) advance() bool {
	a.prev = a.cur
	a.ctx.Publish(slotPrev, a.prev)
	a.cur = a.ctx.Publish(slotCur, a.next)
	return a.resolveCur()
}

// positionAtBucketHead publishes prev = cur = buckets[slot] and resolves
// cur past any lead run of already-marked nodes, retrying the whole
// position attempt until it succeeds. This is the shared setup findNode
// and MaybeExpand both use, mirroring the source's repeated
// "prev = cur = so_list->buckets[slot]; next = cur->next()" idiom.
func (a *Accessor[T]) positionAtBucketHead(t *bucketTable[T], slot uint32) {
	for {
		a.prev = t.buckets[slot].Load()
		a.cur = a.publishCur(a.prev)
		a.ctx.Publish(slotPrev, a.prev)
		if a.resolveCur() {
			return
		}
	}
}

// getParent walks the bucket array backwards from slot-1 to the first
// already-initialised bucket dummy whose key is below k, and so precedes
// k in list order (bucket 0 if no other does), then walks forward along
// the list from there until the window straddles k. Unlike the source's
// solist_accessor::get_parent, whose scan always ends at bucket 0, it
// stops at that first hit (see DESIGN.md). It reports
// false if a concurrent mutation invalidated prev along the way, in which
// case the caller must retry the whole call.
func (a *Accessor[T]) getParent(t *bucketTable[T], slot uint32, k key) bool {
	b := t.buckets[0].Load()
	for s := slot; s > 0; {
		s--
		if candidate := t.buckets[s].Load(); candidate != nil && candidate.key < k {
			b = candidate
			break
		}
	}

	a.prev = b
	a.cur = a.publishCur(b)
	a.ctx.Publish(slotPrev, b)
	if !a.resolveCur() {
		return false
	}

	for a.next != nil && a.next.key < k {
		if !a.advance() {
			return false
		}
	}
	return true
}

// initialiseBucket lazily creates the dummy node for slot if it does not
// exist yet, linking it into the list at its sorted position and
// publishing the winning instance into the bucket array, following the
// source's solist_accessor::initialise_bucket CAS-retry loop exactly.
func (a *Accessor[T]) initialiseBucket(t *bucketTable[T], slot uint32) {
	if t.buckets[slot].Load() != nil {
		return
	}

	node := newBucketDummy[T](slot)
	k := node.key

	linked := false
	for {
		if !a.getParent(t, slot, k) {
			continue
		}
		node.next.Store(a.next, false)

		if t.buckets[slot].Load() != nil {
			break
		}
		if a.next != nil && a.next.key == k {
			break
		}
		if a.cur.next.CAS(a.next, false, node, false) {
			linked = true
			break
		}
	}

	if t.buckets[slot].Load() == nil {
		if linked {
			t.buckets[slot].Store(node)
			a.next = a.publishInNext(node)
		} else {
			t.buckets[slot].Store(a.next)
		}
	}
}

func (a *Accessor[T]) publishInNext(b *bucket[T]) *bucket[T] {
	return a.ctx.Publish(slotNext, b)
}

// findNode positions the traversal window so that cur is the node with
// key sol_node_key(h) if it exists, per solist_accessor::find_node. Every
// advance along the way help-unlinks any node it finds already marked for
// deletion, so a true result always means cur's own next pointer was
// observed unmarked at the moment of the match — the documented
// linearisation point for a lookup.
func (a *Accessor[T]) findNode(t *bucketTable[T], h hash) bool {
	slot := h % t.size
	k := solNodeKey(h)

	if t.buckets[slot].Load() == nil {
		a.initialiseBucket(t, slot)
	}

	for {
		a.positionAtBucketHead(t, slot)

		a.steps = 0
		restart := false
		for a.next != nil && a.next.key <= k {
			if !a.advance() {
				restart = true
				break
			}
			a.steps++
		}
		if restart {
			continue
		}
		return a.cur != nil && a.cur.key == k
	}
}

// Insert adds payload under hash h, returning false if a value with that
// hash is already present.
func (a *Accessor[T]) Insert(h hash, payload T) bool {
	defer a.zap()

	t := a.list.loadTable()
	dnode := newDataNode[T](h, payload)

	var inserted bool
	for {
		if a.findNode(t, h) {
			inserted = false
			break
		}
		dnode.next.Store(a.next, false)
		if a.cur.next.CAS(a.next, false, dnode, false) {
			a.list.incItemCount()
			inserted = true
			break
		}
	}
	if !inserted {
		return false
	}

	a.maybeExpand(t, h)
	return true
}

// countDataRun walks forward from the current traversal window counting
// consecutive data nodes, help-unlinking any node it finds already marked
// along the way (via advance's resolveCur), starting the count at steps.
// It gives up early, returning whatever it counted so far, if advance
// reports a concurrent mutation it could not resolve — safe here because
// both callers only use the count as a heuristic expansion trigger.
func (a *Accessor[T]) countDataRun(steps uint32) uint32 {
	for a.next != nil && a.next.isData {
		if !a.advance() {
			return steps
		}
		steps++
	}
	return steps
}

// expandIfOverflowed grows the table or splits the bucket hash h falls
// into if steps indicates the bucket has overflowed, the shared tail of
// solist_accessor::insert_node's post-insert check and
// solist_accessor::speculative_expand.
func (a *Accessor[T]) expandIfOverflowed(t *bucketTable[T], h hash, steps uint32) {
	if steps <= t.maxBucketLength {
		return
	}

	slot := h % t.size
	if steps >= t.maxBucketLength*2 || a.list.nItems.Load() >= t.maxBucketLength*t.size {
		a.list.expand(t)
		nt := a.list.loadTable()
		a.initialiseBucket(nt, slot+t.size)
	} else if split := slot + t.size/2; split < t.size {
		// Only a bucket in the lower half of the table has a slot half a
		// table above it to split into; an upper-half bucket is left as is.
		a.initialiseBucket(t, split)
	}
}

// maybeExpand re-walks the bucket cur was inserted into, counting
// consecutive data nodes starting from the count find_node already
// accumulated during the lookup that preceded the insert, and grows the
// table or splits the bucket if the chain has overflowed, per
// solist_accessor::insert_node's post-insert expansion check.
func (a *Accessor[T]) maybeExpand(t *bucketTable[T], h hash) {
	nxt, marked := rawNext(a.cur)
	if marked {
		return
	}
	a.next = a.ctx.Publish(slotNext, nxt)
	steps := a.countDataRun(a.steps)
	a.expandIfOverflowed(t, h, steps)
}

// MaybeExpand re-walks the bucket hash h falls into from scratch, without
// inserting anything, and grows the table or splits the bucket if it has
// already overflowed. It is a maintenance hook for read-mostly workloads
// that want to pre-expand ahead of a batch of inserts, grounded directly
// on solist_accessor::speculative_expand.
func (a *Accessor[T]) MaybeExpand(h hash) {
	defer a.zap()

	t := a.list.loadTable()
	slot := h % t.size

	if t.buckets[slot].Load() == nil {
		a.initialiseBucket(t, slot)
	}

	a.positionAtBucketHead(t, slot)
	steps := a.countDataRun(0)
	a.expandIfOverflowed(t, h, steps)
}

// Remove logically marks then physically unlinks the node for hash h,
// retiring it through the accessor's hazard context, per solist's
// delete_node.
func (a *Accessor[T]) Remove(h hash) bool {
	defer a.zap()
	t := a.list.loadTable()

	for {
		if !a.findNode(t, h) {
			return false
		}
		if !a.cur.next.Mark(a.next) {
			continue
		}

		removed := a.cur
		a.list.decItemCount()
		if a.prev.next.CAS(removed, false, a.next, false) {
			a.ctx.Retire(removed)
			return true
		}

		// The mark succeeded but another accessor raced the physical
		// unlink (most often an insert landing between prev and cur).
		// removed is already marked, so looping back to the top would
		// retry Mark on an already-marked word forever. find_node's own
		// help-unlinking finishes the physical removal — and its retire
		// — on our behalf.
		a.findNode(t, h)
		return true
	}
}

// Guard pins the hazard pointer protecting a value returned by Find until
// Release is called: the caller must not retain or dereference the value
// after Release. The owning Accessor must not be used for another Insert,
// Remove or Find while a Guard from it is still outstanding, since both
// share the same cur hazard-pointer slot.
type Guard[T any] struct {
	accessor *Accessor[T]
	released bool
}

// Release unpins the guarded value, after which a concurrent Remove +
// Reclaim is free to reclaim it.
func (g *Guard[T]) Release() {
	if g.released {
		return
	}
	g.released = true
	g.accessor.ctx.Clear(slotCur)
}

// Find looks up the value stored under hash h. If found, the returned
// Guard keeps it hazard-protected until Release is called; the returned
// value must not be used afterwards.
func (a *Accessor[T]) Find(h hash) (value T, guard *Guard[T], ok bool) {
	t := a.list.loadTable()
	if !a.findNode(t, h) {
		a.ctx.Clear(slotPrev)
		a.ctx.Clear(slotNext)
		a.prev, a.cur, a.next = nil, nil, nil
		return value, nil, false
	}

	v := a.cur.payload
	g := &Guard[T]{accessor: a}

	a.ctx.Clear(slotPrev)
	a.ctx.Clear(slotNext)
	a.prev, a.next = nil, nil

	return v, g, true
}

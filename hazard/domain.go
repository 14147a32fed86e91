package hazard

import (
	"sync/atomic"
)

// deleteNode is one entry on a domain's delete list: an owned pointer to a
// T awaiting reclamation plus a next link. Retire nodes are allocated by
// EnqueueForDelete and freed (by simply dropping the last reference, in
// Go) by Collect.
type deleteNode[T any] struct {
	next    *deleteNode[T]
	payload *T
}

// Domain is a hazard-pointer reclamation domain: a thread-safe, growable
// pool of hazard-pointer chunks plus a global deferred-deletion list,
// bound to one client data structure instance. It is the Go counterpart
// of hazard_pointer_domain<T>.
type Domain[T any] struct {
	poolsHead  atomic.Pointer[chunk[T]]
	deleteHead atomic.Pointer[deleteNode[T]]

	// onReclaim, if set, is invoked once for every payload this domain
	// actually frees, immediately before the last reference to it is
	// dropped. It is the Go stand-in for the source's "delete
	// cur->payload": Go does not need an explicit free, but callers that
	// hold non-GC resources (file descriptors, external refcounts) via T
	// can use this hook for deterministic cleanup.
	onReclaim func(*T)
}

// NewDomain creates an empty reclamation domain. onReclaim may be nil.
func NewDomain[T any](onReclaim func(*T)) *Domain[T] {
	return &Domain[T]{onReclaim: onReclaim}
}

func (d *Domain[T]) poolsReserve(blocklen uint32) []atomic.Pointer[T] {
	for p := d.poolsHead.Load(); p != nil; p = p.next.Load() {
		if block := p.reserve(blocklen); block != nil {
			return block
		}
	}
	return nil
}

func (d *Domain[T]) poolsNew(blocklen uint32) {
	pool := newChunk[T](blocklen)
	for {
		head := d.poolsHead.Load()
		pool.next.Store(head)
		if d.poolsHead.CompareAndSwap(head, pool) {
			return
		}
	}
}

// Reserve fulfils a reservation request using the existing pool of hazard
// pointer chunks, creating new chunks on demand and retrying until one
// satisfies it, so the returned error is always nil.
func (d *Domain[T]) Reserve(blocklen int) ([]atomic.Pointer[T], error) {
	bl := uint32(blocklen)
	for {
		if block := d.poolsReserve(bl); block != nil {
			return block, nil
		}
		d.poolsNew(bl)
	}
}

// Release returns a previously reserved sub-block to the pool by walking
// the chunk chain until one chunk claims it.
func (d *Domain[T]) Release(block []atomic.Pointer[T]) error {
	for p := d.poolsHead.Load(); p != nil; p = p.next.Load() {
		if p.release(block) {
			return nil
		}
	}
	return &ErrForeignBlock{Op: "Release"}
}

func (d *Domain[T]) pushDeleteNode(n *deleteNode[T]) {
	for {
		head := d.deleteHead.Load()
		n.next = head
		if d.deleteHead.CompareAndSwap(head, n) {
			return
		}
	}
}

// EnqueueForDelete schedules ptr for reclamation, lock-free.
// A nil ptr is a no-op.
func (d *Domain[T]) EnqueueForDelete(ptr *T) {
	if ptr == nil {
		return
	}
	d.pushDeleteNode(&deleteNode[T]{payload: ptr})
}

// EnqueueForDeleteMany schedules every non-nil pointer in ptrs for
// reclamation, clearing each slot as it goes. This is the array form the
// source offers alongside the single-pointer form (see
// hazp_chunk_generic::enqueue_for_delete(T**, unsigned) in
// original_source/hazard_pointer.hpp), used by Context.Close to hand off
// its whole local retire buffer in one call.
func (d *Domain[T]) EnqueueForDeleteMany(ptrs []*T) {
	for i, p := range ptrs {
		if p != nil {
			d.EnqueueForDelete(p)
			ptrs[i] = nil
		}
	}
}

// Collect scans the delete list against a fresh hazard-pointer snapshot
// and frees every payload no hazard pointer protects. Concurrent calls to
// Collect are always safe: each call swaps out and owns its own local
// list.
func (d *Domain[T]) Collect() {
	local := d.deleteHead.Swap(nil)
	if local == nil {
		return
	}

	snap := newSnapshot(d)

	var retained *deleteNode[T]
	for local != nil {
		cur := local
		local = local.next
		if snap.contains(cur.payload) {
			cur.next = retained
			retained = cur
			continue
		}
		if d.onReclaim != nil {
			d.onReclaim(cur.payload)
		}
		cur.payload = nil
	}

	for retained != nil {
		n := retained
		retained = retained.next
		d.pushDeleteNode(n)
	}
}

// Close runs a final Collect and asserts the delete list is empty: a
// non-empty list at this point means a Context outlived the Domain, a
// programmer error. This path is cold (once per domain lifetime), so it
// always asserts rather than silently leaking.
func (d *Domain[T]) Close() {
	d.Collect()
	if d.deleteHead.Load() != nil {
		panic("hazard: domain closed with a non-empty delete list; a Context outlived its Domain")
	}
	for p := d.poolsHead.Swap(nil); p != nil; {
		next := p.next.Load()
		if p.hasReservations() {
			panic("hazard: domain closed with an outstanding hazard-pointer reservation")
		}
		p = next
	}
}

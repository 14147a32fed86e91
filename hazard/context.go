package hazard

import "sync/atomic"

// Context is one goroutine's working set against a Domain: a fixed
// number of publishable hazard-pointer slots plus a local retire buffer.
// A Context must not be shared between concurrently-running goroutines —
// exactly one goroutine at a time should drive a given Context, mirroring
// the source's thread_local hazard_pointer_context<T>.
type Context[T any] struct {
	domain *Domain[T]
	slots  []atomic.Pointer[T]

	retireBuf []*T
	retireLen int
}

// NewContext reserves numHazardPointers slots from d and allocates a
// local retire buffer of the given capacity, mirroring the
// hazard_pointer_context constructor. It panics if the domain cannot
// satisfy the reservation, since a Context is useless without its slots
// and every call site already treats domain exhaustion as fatal.
func NewContext[T any](d *Domain[T], numHazardPointers, retireCapacity int) *Context[T] {
	block, err := d.Reserve(numHazardPointers)
	if err != nil {
		panic(err)
	}
	return &Context[T]{
		domain:    d,
		slots:     block,
		retireBuf: make([]*T, retireCapacity),
	}
}

// Publish stores p into hazard-pointer slot i, making it visible to any
// concurrent Collect from this point on, and returns p unchanged so
// callers can chain it directly into a re-validation load ("publish,
// then re-read and compare").
func (c *Context[T]) Publish(i int, p *T) *T {
	c.slots[i].Store(p)
	return p
}

// Clear removes whatever is published in slot i.
func (c *Context[T]) Clear(i int) {
	c.slots[i].Store(nil)
}

// At returns what is currently published in slot i.
func (c *Context[T]) At(i int) *T {
	return c.slots[i].Load()
}

// NumSlots reports how many hazard-pointer slots this context owns.
func (c *Context[T]) NumSlots() int {
	return len(c.slots)
}

// Retire adds p to the local retire buffer, flushing the whole buffer to
// the domain's delete list (via EnqueueForDeleteMany) once it is full,
// amortizing the cost of a Collect pass across many retirements. A nil p
// is a no-op.
func (c *Context[T]) Retire(p *T) {
	if p == nil {
		return
	}
	if c.retireLen == len(c.retireBuf) {
		c.Reclaim()
	}
	c.retireBuf[c.retireLen] = p
	c.retireLen++
}

// Reclaim hands the full local retire buffer over to the domain and
// triggers a collection pass. Unlike the source's
// hazard_pointer_context<T>::reclaim, which keeps ownership of entries
// the domain could not immediately free and compacts them back into the
// local buffer, handing a pointer to EnqueueForDeleteMany transfers
// ownership of tracking it to the domain's own delete list outright:
// anything Collect cannot yet free is retained there, not here, so the
// local buffer is simply empty again once this returns.
func (c *Context[T]) Reclaim() {
	if c.retireLen == 0 {
		return
	}
	c.domain.EnqueueForDeleteMany(c.retireBuf[:c.retireLen])
	c.retireLen = 0
	c.domain.Collect()
}

// Close releases this context's hazard-pointer slots, hands any
// still-pending retired pointers to the domain, and runs a final Collect,
// in the same order as the source's ~hazard_pointer_context destructor:
// release, then enqueue_for_delete, then collect. After Close the
// Context must not be used again.
func (c *Context[T]) Close() {
	for i := range c.slots {
		c.slots[i].Store(nil)
	}
	if err := c.domain.Release(c.slots); err != nil {
		panic(err)
	}
	c.slots = nil

	if c.retireLen > 0 {
		c.domain.EnqueueForDeleteMany(c.retireBuf[:c.retireLen])
		c.retireLen = 0
	}
	c.domain.Collect()
}

package solist

import (
	"sync/atomic"

	"github.com/blaisedias/solist/hazard"
)

const defaultMaxBucketLength = 4

// numTraversalHazardPointers is the number of hazard-pointer slots an
// Accessor reserves for list traversal: prev, cur and next, exactly the
// three-pointer window the source's solist_accessor keeps (as plain,
// unprotected pointers — this module is what actually protects them).
const numTraversalHazardPointers = 3

// defaultRetireCapacity bounds how many removed nodes an Accessor batches
// locally before handing them to the domain, mirroring hazard.Context's
// own amortized-reclamation buffer.
const defaultRetireCapacity = 64

// bucketTable is the immutable {size, buckets} record List swaps
// atomically on expand: a reader always observes a whole table, old or
// new, never a torn pair of size and buckets belonging to different
// generations.
type bucketTable[T any] struct {
	size            uint32
	maxBucketLength uint32
	buckets         []atomic.Pointer[bucket[T]]
}

// List is a split-ordered hash list: a single sorted linked list of
// hash-reversed keys, presented through a set of lazily-initialised
// bucket dummies as an expandable hash table. List itself holds no
// traversal state; all traversal happens through an Accessor.
type List[T any] struct {
	table  atomic.Pointer[bucketTable[T]]
	nItems atomic.Uint32
	domain *hazard.Domain[bucket[T]]
}

// New creates a list with the given initial bucket-array size and the
// default max bucket length of 4, matching the source's
// solist(uint32_t size) constructor.
func New[T any](size uint32) *List[T] {
	return NewWithBucketLength[T](size, defaultMaxBucketLength)
}

// NewWithBucketLength creates a list with an explicit expansion
// threshold, matching the source's solist(size, bucket_length)
// constructor.
func NewWithBucketLength[T any](size, maxBucketLength uint32) *List[T] {
	if size == 0 {
		size = 1
	}
	t := &bucketTable[T]{
		size:            size,
		maxBucketLength: maxBucketLength,
		buckets:         make([]atomic.Pointer[bucket[T]], size),
	}
	t.buckets[0].Store(newBucketDummy[T](0))

	l := &List[T]{domain: hazard.NewDomain[bucket[T]](nil)}
	l.table.Store(t)
	return l
}

// NewAccessor returns a new Accessor bound to this list, with its own
// hazard-pointer context reserved from the list's shared domain.
func (l *List[T]) NewAccessor() *Accessor[T] {
	return newAccessor(l)
}

// Close releases the list's reclamation domain. It must only be called
// once every Accessor obtained from this list has itself been closed.
func (l *List[T]) Close() {
	l.domain.Close()
}

func (l *List[T]) loadTable() *bucketTable[T] {
	return l.table.Load()
}

func (l *List[T]) incItemCount() {
	l.nItems.Add(1)
}

func (l *List[T]) decItemCount() {
	l.nItems.Add(^uint32(0))
}

// expand doubles the bucket array if it is still at currSize, exactly
// mirroring the source's solist::expand(curr_size) guard against racing,
// redundant expansions: the comparison is folded into the CAS itself
// rather than checked-then-acted, closing the TOCTOU window the source
// left open with its plain field assignment.
func (l *List[T]) expand(old *bucketTable[T]) {
	newSize := old.size * 2
	nt := &bucketTable[T]{
		size:            newSize,
		maxBucketLength: old.maxBucketLength,
		buckets:         make([]atomic.Pointer[bucket[T]], newSize),
	}
	for i := uint32(0); i < old.size; i++ {
		nt.buckets[i].Store(old.buckets[i].Load())
	}
	l.table.CompareAndSwap(old, nt)
}

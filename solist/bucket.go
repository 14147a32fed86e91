package solist

import "github.com/blaisedias/solist/markptr"

// bucket is one link in the split-ordered list: either a lazily-created
// bucket dummy (isData false, payload unused) or a data node (isData
// true, payload holds the caller's value). This merges the source's
// solist_bucket base class and solist_node<T> subclass into one type,
// since Go has no inheritance and a bool discriminant is cheaper than an
// interface here — isData is redundant with key's data bit but kept
// explicit so callers never need to re-derive it from the key.
type bucket[T any] struct {
	hashv   hash
	key     key
	next    markptr.Ptr[bucket[T]]
	isData  bool
	payload T
}

func newBucketDummy[T any](slot uint32) *bucket[T] {
	return &bucket[T]{hashv: slot, key: solBucketKey(slot)}
}

func newDataNode[T any](h hash, payload T) *bucket[T] {
	return &bucket[T]{hashv: h, key: solNodeKey(h), isData: true, payload: payload}
}

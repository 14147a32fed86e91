// Package solist implements a lock-free split-ordered hash list: a single
// sorted singly-linked list of hash-reversed keys, with lazily-initialised
// per-bucket dummy nodes splitting it into an expandable hash table, per
// the split-ordered list design (Shalev & Shavit). Deletion is logical
// mark-then-physical-unlink, traversal is hazard-pointer protected via the
// sibling hazard package, and the data-vs-bucket distinction is carried by
// stealing the low bit of the bit-reversed key.
package solist

import "math/bits"

// hash is this module's 32-bit hash type, matching the C++ source's
// (intentionally narrow, for the moment) hash_t.
type hash = uint32

// key is the ordering key stored on every bucket/node: a bit-reversed
// hash with its low bit repurposed as the data/bucket discriminator.
type key = uint32

// dataBit marks a key as belonging to a data node rather than a bucket
// dummy. Stealing it halves the usable reversed-hash space, a known,
// accepted tradeoff (see DESIGN.md) rather than storing the original hash
// redundantly on every node.
const dataBit key = 0x1

// reverseBits reverses the bit order of a 32-bit hash so that splitting
// the key space at increasing powers of two inserts new buckets evenly
// throughout the existing list, rather than only at one end of it.
func reverseBits(h hash) hash {
	return bits.Reverse32(h)
}

// solNodeKey derives the ordering key for a data node carrying hash h.
func solNodeKey(h hash) key {
	return reverseBits(h) | dataBit
}

// solBucketKey derives the ordering key for the dummy node of the bucket
// whose slot index is slot. Slot indices are always far smaller than
// 2^31, so bit 31 of slot is always 0 and reverseBits(slot) therefore
// always has its low bit clear — the dataBit is never accidentally set on
// a bucket key.
func solBucketKey(slot uint32) key {
	return reverseBits(slot)
}

// isNode reports whether k identifies a data node rather than a bucket
// dummy.
func isNode(k key) bool {
	return k&dataBit == dataBit
}

package solist

import (
	"math/bits"
	"sort"
	"sync"
	"testing"
)

func TestScenarioA_OrderedByReversedKey(t *testing.T) {
	l := New[int](4)
	a := l.NewAccessor()
	defer a.Close()

	hashes := []hash{7, 3, 11, 1}
	for _, h := range hashes {
		if !a.Insert(h, int(h)) {
			t.Fatalf("insert %d failed", h)
		}
	}

	var got []key
	t0 := l.loadTable()
	for b := t0.buckets[0].Load(); b != nil; {
		if b.isData {
			got = append(got, b.key)
		}
		nxt, _ := b.next.Load()
		b = nxt
	}

	want := make([]key, len(hashes))
	for i, h := range hashes {
		want[i] = bits.Reverse32(h) | dataBit
	}
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })

	if len(got) != len(want) {
		t.Fatalf("got %d data nodes, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: got key %d, want %d", i, got[i], want[i])
		}
	}
}

func TestScenarioB_ExpandsAndBucketKeysMatch(t *testing.T) {
	l := NewWithBucketLength[int](4, 4)
	a := l.NewAccessor()
	defer a.Close()

	for i := 0; i < 1000; i++ {
		if !a.Insert(hash(i), i) {
			t.Fatalf("insert %d failed", i)
		}
	}

	t0 := l.loadTable()
	if t0.size < 256 {
		t.Fatalf("expected size to have grown to at least 256, got %d", t0.size)
	}
	for i := uint32(0); i < t0.size; i++ {
		b := t0.buckets[i].Load()
		if b == nil {
			continue
		}
		if b.key != solBucketKey(i) {
			t.Fatalf("buckets[%d].key = %d, want %d", i, b.key, solBucketKey(i))
		}
	}
}

func TestScenarioC_ConcurrentDuplicateInsertsExactlyOneWins(t *testing.T) {
	l := New[int](4)
	const perGoroutine = 1000

	var successes [2]int
	var wg sync.WaitGroup
	wg.Add(2)
	for g := 0; g < 2; g++ {
		go func(g int) {
			defer wg.Done()
			a := l.NewAccessor()
			defer a.Close()
			n := 0
			for i := 0; i < perGoroutine; i++ {
				if a.Insert(42, g*perGoroutine+i) {
					n++
				}
			}
			successes[g] = n
		}(g)
	}
	wg.Wait()

	total := successes[0] + successes[1]
	if total != 1 {
		t.Fatalf("expected exactly 1 of 2000 inserts to succeed, got %d", total)
	}

	reader := l.NewAccessor()
	defer reader.Close()
	_, guard, ok := reader.Find(42)
	if !ok {
		t.Fatalf("find(42) failed after concurrent inserts")
	}
	guard.Release()

	if got := l.nItems.Load(); got != 1 {
		t.Fatalf("n_items = %d, want 1", got)
	}
}

func TestRoundTripInsertFindRejectsDuplicate(t *testing.T) {
	l := New[int](4)
	a := l.NewAccessor()
	defer a.Close()

	if !a.Insert(5, 100) {
		t.Fatalf("first insert should succeed")
	}
	v, g, ok := a.Find(5)
	if !ok || v != 100 {
		t.Fatalf("find after insert: got (%v,%v)", v, ok)
	}
	g.Release()

	if a.Insert(5, 200) {
		t.Fatalf("duplicate insert should fail")
	}
	v, g, ok = a.Find(5)
	if !ok || v != 100 {
		t.Fatalf("find after duplicate insert attempt should still return original: got (%v,%v)", v, ok)
	}
	g.Release()
}

func TestRoundTripInsertRemoveFind(t *testing.T) {
	l := New[int](4)
	a := l.NewAccessor()
	defer a.Close()

	if !a.Insert(5, 100) {
		t.Fatalf("insert failed")
	}
	if !a.Remove(5) {
		t.Fatalf("remove failed")
	}
	if _, _, ok := a.Find(5); ok {
		t.Fatalf("find should fail after remove")
	}
	if a.Remove(5) {
		t.Fatalf("second remove should return false")
	}
}

func TestExpandPreservesOldBucketsAndZeroesNewHalf(t *testing.T) {
	l := New[int](4)
	old := l.loadTable()
	l.expand(old)
	nt := l.loadTable()

	if nt.size != old.size*2 {
		t.Fatalf("expand did not double size: got %d, want %d", nt.size, old.size*2)
	}
	for i := uint32(0); i < old.size; i++ {
		if nt.buckets[i].Load() != old.buckets[i].Load() {
			t.Fatalf("bucket %d pointer changed across expand", i)
		}
	}
	for i := old.size; i < nt.size; i++ {
		if nt.buckets[i].Load() != nil {
			t.Fatalf("new bucket %d should be nil", i)
		}
	}
}

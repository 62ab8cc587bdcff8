package cache

import (
	"sync"
	"testing"
	"time"

	"image-viewer/internal/media"
)

// testImage builds a named image without touching the filesystem. The cache
// never inspects the payload, only the key.
func testImage() *media.Image {
	return &media.Image{}
}

func TestInsertAndGet(t *testing.T) {
	c := New()
	c.Lock()
	defer c.Unlock()

	img := testImage()
	if !c.Insert("a.jpg", img) {
		t.Fatal("Insert of new key returned false")
	}
	if !c.Contains("a.jpg") {
		t.Error("Contains = false after Insert")
	}
	if got := c.Get("a.jpg"); got != img {
		t.Error("Get returned a different image")
	}
	if got := c.Get("missing.jpg"); got != nil {
		t.Error("Get of absent key returned non-nil")
	}
}

func TestDuplicateInsertLeavesExisting(t *testing.T) {
	c := New()
	c.Lock()
	defer c.Unlock()

	first := testImage()
	second := testImage()
	c.Insert("a.jpg", first)
	if c.Insert("a.jpg", second) {
		t.Fatal("duplicate Insert returned true")
	}
	if got := c.Get("a.jpg"); got != first {
		t.Error("duplicate Insert replaced the existing entry")
	}
}

func TestTrimToKeepsKeepSet(t *testing.T) {
	c := New()
	c.Lock()
	defer c.Unlock()

	for _, k := range []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg"} {
		c.Insert(k, testImage())
	}

	c.TrimTo([]string{"b.jpg", "c.jpg"})

	if c.Contains("a.jpg") || c.Contains("d.jpg") {
		t.Error("TrimTo kept entries outside the keep-set")
	}
	if !c.Contains("b.jpg") || !c.Contains("c.jpg") {
		t.Error("TrimTo evicted entries inside the keep-set")
	}

	// A later trim that still includes them must not evict them.
	c.TrimTo([]string{"a.jpg", "b.jpg", "c.jpg"})
	if !c.Contains("b.jpg") || !c.Contains("c.jpg") {
		t.Error("repeated TrimTo evicted keep-set entries")
	}
}

func TestReserveRules(t *testing.T) {
	c := New()
	c.Lock()
	defer c.Unlock()

	c.Insert("a.jpg", testImage())

	if c.Reserve("missing.jpg") {
		t.Error("Reserve of absent key succeeded")
	}
	if !c.Reserve("a.jpg") {
		t.Fatal("Reserve of present key failed")
	}
	if c.Reserve("a.jpg") {
		t.Error("double Reserve succeeded")
	}

	c.Release("a.jpg")
	if !c.Reserve("a.jpg") {
		t.Error("Reserve after Release failed")
	}
	c.Release("a.jpg")

	// Releasing keys that are not reserved must not corrupt anything.
	c.Release("a.jpg")
	c.Release("missing.jpg")
	if !c.Contains("a.jpg") {
		t.Error("spurious Release corrupted the entry")
	}
}

func TestReservedEntriesSurviveTrimAndClear(t *testing.T) {
	c := New()
	c.Lock()
	c.Insert("a.jpg", testImage())
	c.Insert("b.jpg", testImage())
	c.Reserve("b.jpg")

	c.TrimTo([]string{})
	if c.Contains("a.jpg") {
		t.Error("TrimTo kept an unreserved entry outside the keep-set")
	}
	if !c.Contains("b.jpg") {
		t.Error("TrimTo evicted a reserved entry")
	}

	c.Clear()
	if !c.Contains("b.jpg") {
		t.Error("Clear evicted a reserved entry")
	}

	c.Release("b.jpg")
	c.Clear()
	if c.Contains("b.jpg") {
		t.Error("Clear kept an unreserved entry")
	}
	c.Unlock()
}

// A trim issued while another goroutine holds a reservation (but not the
// container lock) must neither evict the reserved entry nor block.
func TestConcurrentTrimDuringReservation(t *testing.T) {
	c := New()
	c.Lock()
	for _, k := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		c.Insert(k, testImage())
	}
	if !c.Reserve("b.jpg") {
		t.Fatal("Reserve failed")
	}
	c.Unlock()

	// Editing happens here without the container lock held.
	var wg sync.WaitGroup
	trimDone := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Lock()
		c.TrimTo([]string{"a.jpg", "b.jpg", "c.jpg"})
		c.Unlock()
		close(trimDone)
	}()

	select {
	case <-trimDone:
	case <-time.After(2 * time.Second):
		t.Fatal("TrimTo blocked while an entry was reserved")
	}
	wg.Wait()

	c.Lock()
	defer c.Unlock()
	if !c.Contains("b.jpg") {
		t.Error("concurrent TrimTo evicted the reserved entry")
	}
	c.Release("b.jpg")
}

package registry

import (
	"sync"
	"testing"
)

func TestRegistry_Register_AssignsIncreasingIDs(t *testing.T) {
	r := New()
	cb := func([]byte, uint64) {}

	var prev = -1
	for i := 0; i < 5; i++ {
		id, _, err := r.Register("addr-1", cb)
		if err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		if id <= prev {
			t.Errorf("id = %d, want > %d", id, prev)
		}
		prev = id
	}
}

func TestRegistry_Register_WasEmpty(t *testing.T) {
	r := New()
	cb := func([]byte, uint64) {}

	_, wasEmpty, err := r.Register("addr-1", cb)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if !wasEmpty {
		t.Error("wasEmpty = false on first registration, want true")
	}

	_, wasEmpty, _ = r.Register("addr-2", cb)
	if wasEmpty {
		t.Error("wasEmpty = true on second registration, want false")
	}

	// Another callback for an existing address is also not "empty".
	_, wasEmpty, _ = r.Register("addr-1", cb)
	if wasEmpty {
		t.Error("wasEmpty = true on repeat registration, want false")
	}
}

func TestRegistry_Register_EmptyAddress(t *testing.T) {
	r := New()

	_, _, err := r.Register("", func([]byte, uint64) {})
	if err != ErrEmptyAddress {
		t.Errorf("err = %v, want ErrEmptyAddress", err)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestRegistry_Register_NilCallback(t *testing.T) {
	r := New()

	_, _, err := r.Register("addr-1", nil)
	if err != ErrNilCallback {
		t.Errorf("err = %v, want ErrNilCallback", err)
	}
}

func TestRegistry_Snapshot_MultipleCallbacksPerAddress(t *testing.T) {
	r := New()
	cb := func([]byte, uint64) {}

	id1, _, _ := r.Register("addr-1", cb)
	id2, _, _ := r.Register("addr-1", cb)

	if id1 == id2 {
		t.Fatalf("ids not unique: %d == %d", id1, id2)
	}

	snap := r.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("len(snap) = %d, want 1", len(snap))
	}
	if len(snap[0].Callbacks) != 2 {
		t.Errorf("len(Callbacks) = %d, want 2", len(snap[0].Callbacks))
	}
	if _, ok := snap[0].Callbacks[id1]; !ok {
		t.Errorf("callback %d missing from snapshot", id1)
	}
	if _, ok := snap[0].Callbacks[id2]; !ok {
		t.Errorf("callback %d missing from snapshot", id2)
	}
}

func TestRegistry_Snapshot_RegistrationOrder(t *testing.T) {
	r := New()
	cb := func([]byte, uint64) {}

	addrs := []string{"addr-c", "addr-a", "addr-b"}
	for _, a := range addrs {
		r.Register(a, cb)
	}

	snap := r.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("len(snap) = %d, want 3", len(snap))
	}
	for i, a := range addrs {
		if snap[i].Address != a {
			t.Errorf("snap[%d].Address = %q, want %q", i, snap[i].Address, a)
		}
	}
}

func TestRegistry_Snapshot_Isolated(t *testing.T) {
	r := New()
	cb := func([]byte, uint64) {}
	r.Register("addr-1", cb)

	snap := r.Snapshot()

	// Mutating the snapshot must not affect the registry.
	delete(snap[0].Callbacks, 0)
	snap[0].Callbacks[99] = cb

	fresh := r.Snapshot()
	if len(fresh[0].Callbacks) != 1 {
		t.Errorf("len(Callbacks) = %d, want 1", len(fresh[0].Callbacks))
	}
	if _, ok := fresh[0].Callbacks[99]; ok {
		t.Error("snapshot mutation leaked into registry")
	}
}

func TestRegistry_ConcurrentRegister(t *testing.T) {
	r := New()
	cb := func([]byte, uint64) {}

	const workers = 10
	const perWorker = 100

	var wg sync.WaitGroup
	ids := make(chan int, workers*perWorker)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				addr := "addr-" + string(rune('A'+w))
				id, _, err := r.Register(addr, cb)
				if err != nil {
					t.Errorf("Register failed: %v", err)
					return
				}
				ids <- id
			}
		}(w)
	}

	wg.Wait()
	close(ids)

	seen := make(map[int]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate callback id %d", id)
		}
		seen[id] = true
	}
	if len(seen) != workers*perWorker {
		t.Errorf("unique ids = %d, want %d", len(seen), workers*perWorker)
	}
	if r.Len() != workers {
		t.Errorf("Len() = %d, want %d", r.Len(), workers)
	}
}

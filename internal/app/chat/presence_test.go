package chat

import (
	"sync"
	"testing"
)

func TestPresenceRegisterAndLookup(t *testing.T) {
	t.Parallel()
	p := NewPresence()
	tab1 := &fakeConn{id: "c1", userID: "ana"}
	tab2 := &fakeConn{id: "c2", userID: "ana"}

	p.Register("ana", tab1)
	p.Register("ana", tab2)
	p.Register("ana", tab1) // double registration is a no-op

	if got := len(p.Lookup("ana")); got != 2 {
		t.Errorf("Lookup(ana): got %d connections, want 2", got)
	}
	if got := p.Lookup("boris"); got != nil {
		t.Errorf("Lookup(boris): got %v, want nil", got)
	}
}

func TestPresenceUnregister(t *testing.T) {
	t.Parallel()
	p := NewPresence()
	tab1 := &fakeConn{id: "c1", userID: "ana"}
	tab2 := &fakeConn{id: "c2", userID: "ana"}
	p.Register("ana", tab1)
	p.Register("ana", tab2)

	p.Unregister(tab1)
	if got := len(p.Lookup("ana")); got != 1 {
		t.Fatalf("after first unregister: got %d connections, want 1", got)
	}
	p.Unregister(tab1) // unknown handle is a no-op
	p.Unregister(tab2)
	if got := p.Lookup("ana"); got != nil {
		t.Errorf("after last unregister: got %v, want nil", got)
	}
}

func TestRoomsJoinLeaveBroadcast(t *testing.T) {
	t.Parallel()
	r := NewRooms()
	ana := &fakeConn{id: "c1", userID: "ana"}
	boris := &fakeConn{id: "c2", userID: "boris"}
	dead := &fakeConn{id: "c3", userID: "chen", fail: true}

	r.Join("conv-1", ana)
	r.Join("conv-1", boris)
	r.Join("conv-1", dead)
	r.Join("conv-2", ana)

	if !r.HasUser("conv-1", "boris") {
		t.Error("HasUser(conv-1, boris) = false, want true")
	}

	failed := r.Broadcast("conv-1", Event{Name: EventReceiveMessage})
	if len(failed) != 1 || failed[0].ID() != "c3" {
		t.Errorf("Broadcast failed set: got %v, want [c3]", failed)
	}
	if got := len(ana.named(EventReceiveMessage)); got != 1 {
		t.Errorf("ana deliveries: got %d, want 1", got)
	}

	r.Leave("conv-1", boris)
	if r.HasUser("conv-1", "boris") {
		t.Error("boris still in room after Leave")
	}

	r.LeaveAll(ana)
	if r.HasUser("conv-1", "ana") || r.HasUser("conv-2", "ana") {
		t.Error("ana still in a room after LeaveAll")
	}

	r.Drop("conv-1")
	if got := r.Broadcast("conv-1", Event{Name: EventReceiveMessage}); got != nil {
		t.Errorf("broadcast to dropped room: got %v, want nil", got)
	}
}

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	t.Parallel()
	locks := newKeyedMutex()

	var mu sync.Mutex
	counters := map[string]int{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		for _, key := range []string{"a", "b"} {
			wg.Add(1)
			go func(key string) {
				defer wg.Done()
				release := locks.lock(key)
				defer release()
				mu.Lock()
				counters[key]++
				mu.Unlock()
			}(key)
		}
	}
	wg.Wait()

	if counters["a"] != 50 || counters["b"] != 50 {
		t.Errorf("counters: got %v, want 50 each", counters)
	}
	locks.mu.Lock()
	remaining := len(locks.entries)
	locks.mu.Unlock()
	if remaining != 0 {
		t.Errorf("lock table not drained: %d entries remain", remaining)
	}
}

package session

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
)

func TestSetSearchIDsReplacesWholesale(t *testing.T) {
	s := &Session{ID: "t"}
	s.SetSearchIDs([]int64{1, 2, 3})
	s.SetSearchIDs([]int64{9})

	if len(s.LastSearchIDs) != 1 || s.LastSearchIDs[0] != 9 {
		t.Errorf("LastSearchIDs = %v, want [9]", s.LastSearchIDs)
	}
}

func TestSetSearchIDsCopiesInput(t *testing.T) {
	s := &Session{ID: "t"}
	ids := []int64{1, 2}
	s.SetSearchIDs(ids)
	ids[0] = 99

	if s.LastSearchIDs[0] != 1 {
		t.Error("SetSearchIDs should copy the slice, not alias it")
	}
}

func TestClearIdempotent(t *testing.T) {
	const greeting = "¡Hola!"

	s := &Session{ID: "t"}
	s.Append("user", "busca routers")
	s.Append("agent", "aquí tienes")
	s.SetSearchIDs([]int64{1, 2})
	s.SetDetails(&ProductDetails{Title: "Router"})

	s.Clear(greeting)
	first, _ := json.Marshal(s.ChatHistory)

	s.Clear(greeting)
	second, _ := json.Marshal(s.ChatHistory)

	if string(first) != string(second) {
		t.Errorf("Clear not idempotent: %s vs %s", first, second)
	}
	if len(s.ChatHistory) != 1 || s.ChatHistory[0].Type != "agent" {
		t.Errorf("Clear should leave a single agent greeting, got %v", s.ChatHistory)
	}
	if s.LastSearchIDs != nil || s.LastProductDetails != nil {
		t.Error("Clear should empty both caches")
	}
}

func TestTurnJSONShape(t *testing.T) {
	data, _ := json.Marshal(Turn{Type: "user", Content: "hola"})
	got := string(data)
	if !strings.Contains(got, `"type":"user"`) || !strings.Contains(got, `"content":"hola"`) {
		t.Errorf("Turn JSON = %s, want type/content keys", got)
	}
}

func TestStoreTryAcquireBlocksOverlap(t *testing.T) {
	st := NewStore()

	sess, release, ok := st.TryAcquire("s1")
	if !ok || sess == nil {
		t.Fatal("first TryAcquire should succeed")
	}

	if _, _, ok := st.TryAcquire("s1"); ok {
		t.Error("second TryAcquire on same session should fail while turn in flight")
	}

	// A different session is independent.
	if _, release2, ok := st.TryAcquire("s2"); !ok {
		t.Error("TryAcquire on different session should succeed")
	} else {
		release2()
	}

	release()
	if _, release3, ok := st.TryAcquire("s1"); !ok {
		t.Error("TryAcquire should succeed after release")
	} else {
		release3()
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	st := NewStore()
	sess, release, _ := st.TryAcquire("s1")
	sess.Append("user", "hola")
	sess.SetSearchIDs([]int64{4, 5})
	release()

	snap := st.Snapshot("s1")
	if snap == nil {
		t.Fatal("Snapshot returned nil for existing session")
	}
	snap.ChatHistory[0].Content = "mutated"
	snap.LastSearchIDs[0] = 99

	again := st.Snapshot("s1")
	if again.ChatHistory[0].Content != "hola" || again.LastSearchIDs[0] != 4 {
		t.Error("mutating a snapshot must not affect the stored session")
	}
}

func TestSnapshotMissing(t *testing.T) {
	st := NewStore()
	if got := st.Snapshot("nope"); got != nil {
		t.Errorf("Snapshot of missing session = %v, want nil", got)
	}
}

func TestConcurrentDistinctSessions(t *testing.T) {
	st := NewStore()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n%5))
			if sess, release, ok := st.TryAcquire(id); ok {
				sess.Append("user", "x")
				release()
			}
		}(i)
	}
	wg.Wait()

	if st.Len() > 5 {
		t.Errorf("Len = %d, want at most 5", st.Len())
	}
}

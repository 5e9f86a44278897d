package syncx

import (
	"sync"
	"testing"
)

func TestGuardGetSet(t *testing.T) {
	g := NewGuard(42)
	if got := g.Get(); got != 42 {
		t.Fatalf("Get() = %d, want 42", got)
	}
	g.Set(100)
	if got := g.Get(); got != 100 {
		t.Errorf("Get() after Set = %d, want 100", got)
	}
}

func TestGuardWriteReturnsResult(t *testing.T) {
	type snapshot struct {
		polls         int
		notifications int
	}
	g := NewGuard(snapshot{polls: 4})

	got := g.Write(func(s *snapshot) {
		s.polls++
		s.notifications = 1
	})
	if got != (snapshot{polls: 5, notifications: 1}) {
		t.Errorf("Write() = %+v", got)
	}
	if g.Get() != got {
		t.Errorf("Get() = %+v, want %+v", g.Get(), got)
	}
}

func TestGuardGetIsCopy(t *testing.T) {
	g := NewGuard([2]int{1, 2})
	v := g.Get()
	v[0] = 9
	if g.Get()[0] != 1 {
		t.Error("mutating a copy changed the guarded value")
	}
}

func TestGuardConcurrentWrites(t *testing.T) {
	g := NewGuard(0)
	var wg sync.WaitGroup
	for range 100 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			g.Write(func(v *int) { *v++ })
		}()
		go func() {
			defer wg.Done()
			_ = g.Get()
		}()
	}
	wg.Wait()

	if got := g.Get(); got != 100 {
		t.Errorf("Get() = %d, want 100", got)
	}
}

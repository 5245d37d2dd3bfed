package readiness

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGateResolve(t *testing.T) {
	g := NewGate[string]()

	if _, ok := g.Peek(); ok {
		t.Fatal("new gate should be unresolved")
	}

	if !g.Resolve("first") {
		t.Fatal("first Resolve should win")
	}
	if g.Resolve("second") {
		t.Fatal("second Resolve should be ignored")
	}

	v, err := g.Wait(context.Background())
	if err != nil || v != "first" {
		t.Errorf("Wait = %q, %v", v, err)
	}
	if v, ok := g.Peek(); !ok || v != "first" {
		t.Errorf("Peek = %q, %v", v, ok)
	}
}

func TestGateWaitHonoursContext(t *testing.T) {
	g := NewGate[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := g.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait err = %v, want deadline exceeded", err)
	}
}

func TestGateReleasesWaiters(t *testing.T) {
	g := NewGate[int]()
	got := make(chan int, 1)

	go func() {
		v, _ := g.Wait(context.Background())
		got <- v
	}()

	g.Resolve(42)
	select {
	case v := <-got:
		if v != 42 {
			t.Errorf("waiter got %d, want 42", v)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter not released")
	}
}

func TestResolved(t *testing.T) {
	g := Resolved(7)
	select {
	case <-g.Done():
	default:
		t.Fatal("Resolved gate should be done")
	}
}

func TestOnReady(t *testing.T) {
	g := NewGate[int]()
	got := make(chan int, 1)
	g.OnReady(nil, func(v int) { got <- v })
	g.Resolve(5)

	select {
	case v := <-got:
		if v != 5 {
			t.Errorf("OnReady got %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("OnReady callback not run")
	}

	stopped := NewGate[int]()
	stop := make(chan struct{})
	called := make(chan struct{}, 1)
	stopped.OnReady(stop, func(int) { called <- struct{}{} })
	close(stop)
	time.Sleep(10 * time.Millisecond)
	stopped.Resolve(1)

	select {
	case <-called:
		t.Error("OnReady ran after stop")
	case <-time.After(30 * time.Millisecond):
	}
}

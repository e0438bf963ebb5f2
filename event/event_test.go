package event

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSignalWait(t *testing.T) {
	e := New()
	defer e.Close()
	e.Signal()
	e.Wait()
	if e.TryWait() {
		t.Fatal("Event.Wait: signal was not consumed")
	}
}

func TestSignalIdempotent(t *testing.T) {
	e := New()
	defer e.Close()
	for i := 0; i < 5; i++ {
		e.Signal()
	}
	if !e.TryWait() {
		t.Fatal("Event.TryWait: have false, want true")
	}
	if e.TryWait() {
		t.Fatal("Event.Signal: repeated signals were accumulated")
	}
}

func TestSignalBeforeWait(t *testing.T) {
	e := New()
	defer e.Close()
	e.Signal()
	done := make(chan struct{})
	go func() {
		e.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Event.Wait: blocked on a signaled event")
	}
}

func TestOneSignalOneWaiter(t *testing.T) {
	e := New()
	defer e.Close()
	var woken atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Wait()
			woken.Add(1)
		}()
	}
	e.Signal()
	time.Sleep(50 * time.Millisecond)
	if n := woken.Load(); n != 1 {
		t.Fatalf("woken waiters:\nhave %d\nwant 1", n)
	}
	e.Signal()
	e.Signal()
	time.Sleep(10 * time.Millisecond)
	for woken.Load() != 3 {
		e.Signal()
		time.Sleep(time.Millisecond)
	}
	wg.Wait()
}

func TestWaitAny(t *testing.T) {
	a, b := New(), New()
	defer a.Close()
	defer b.Close()

	b.Signal()
	if i := WaitAny(a, b); i != 1 {
		t.Fatalf("WaitAny:\nhave %d\nwant 1", i)
	}

	a.Signal()
	b.Signal()
	if i := WaitAny(a, b); i != 0 {
		t.Fatalf("WaitAny with both signaled:\nhave %d\nwant 0", i)
	}
	if !b.TryWait() {
		t.Fatal("WaitAny: consumed more than one event")
	}

	res := make(chan int)
	go func() { res <- WaitAny(a, b) }()
	time.Sleep(10 * time.Millisecond)
	b.Signal()
	select {
	case i := <-res:
		if i != 1 {
			t.Fatalf("WaitAny after blocking:\nhave %d\nwant 1", i)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("WaitAny: not woken")
	}
}

func TestRef(t *testing.T) {
	e := New()
	r := e.Ref()
	r.Signal()
	if !e.TryWait() {
		t.Fatal("Event.Ref: signal not shared")
	}
	r.Close()
	e.Signal()
	e.Wait()
	e.Close()
	e.Close()

	defer func() {
		if recover() == nil {
			t.Fatal("Event.Signal: use after Close did not panic")
		}
	}()
	r.Signal()
}

package queue

import (
	"sync"
	"testing"
	"time"
)

func TestScheduler_FIFOOrder(t *testing.T) {
	s := New(Config{Name: "fifo-test", FloorInterval: time.Millisecond})

	var mu sync.Mutex
	var order []string
	var wg sync.WaitGroup

	push := func(id string, latency time.Duration) {
		wg.Add(1)
		s.Push(func(done func()) {
			// Complete asynchronously so slow tasks cannot be overtaken.
			go func() {
				time.Sleep(latency)
				mu.Lock()
				order = append(order, id)
				mu.Unlock()
				done()
				wg.Done()
			}()
		})
	}

	push("A", 30*time.Millisecond)
	push("B", 0)
	push("C", 10*time.Millisecond)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != "A" || order[1] != "B" || order[2] != "C" {
		t.Errorf("Execution order = %v, want [A B C]", order)
	}
}

func TestScheduler_RateFloor(t *testing.T) {
	interval := 100 * time.Millisecond
	s := New(Config{Name: "floor-test", FloorInterval: interval})

	// Default rate is 1/sec, so the floor applies.
	var mu sync.Mutex
	var starts []time.Time
	var wg sync.WaitGroup

	for i := 0; i < 3; i++ {
		wg.Add(1)
		s.Push(func(done func()) {
			mu.Lock()
			starts = append(starts, time.Now())
			mu.Unlock()
			done()
			wg.Done()
		})
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(starts[i-1])
		// Allow a small scheduling tolerance below the floor.
		if gap < interval-10*time.Millisecond {
			t.Errorf("Tasks %d and %d started %v apart, want >= %v", i-1, i, gap, interval)
		}
	}
}

func TestScheduler_NoFloorAboveOnePerSecond(t *testing.T) {
	s := New(Config{Name: "fast-test", FloorInterval: time.Second})
	s.SetRate(10, 5) // 2/sec

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		s.Push(func(done func()) {
			done()
			wg.Done()
		})
	}
	wg.Wait()

	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("5 tasks took %v with rate > 1, expected no artificial delay", elapsed)
	}
}

func TestScheduler_SetRate(t *testing.T) {
	tests := []struct {
		name         string
		remaining    float64
		resetSeconds int
		expected     float64
	}{
		{"headroom", 10, 5, 2},
		{"at floor", 5, 5, 1},
		{"below floor", 1, 10, 0.1},
		{"zero reset defaults to one per second", 100, 0, 1},
		{"negative reset defaults to one per second", 100, -3, 1},
		{"zero remaining clamps positive", 0, 60, minRate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Config{Name: "rate-test"})
			s.SetRate(tt.remaining, tt.resetSeconds)
			if got := s.Rate(); got != tt.expected {
				t.Errorf("Rate() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestScheduler_DelayComputation(t *testing.T) {
	s := New(Config{Name: "delay-test", FloorInterval: time.Second})
	now := time.Now()

	// No prior dispatch: no delay even at the floor rate.
	if d := s.delayLocked(now); d != 0 {
		t.Errorf("Initial delay = %v, want 0", d)
	}

	s.lastDispatch = now.Add(-300 * time.Millisecond)
	if d := s.delayLocked(now); d != 700*time.Millisecond {
		t.Errorf("Delay = %v, want 700ms", d)
	}

	s.lastDispatch = now.Add(-2 * time.Second)
	if d := s.delayLocked(now); d != 0 {
		t.Errorf("Delay after interval elapsed = %v, want 0", d)
	}

	// Above one per second the delay is always zero.
	s.rate = 2
	s.lastDispatch = now
	if d := s.delayLocked(now); d != 0 {
		t.Errorf("Delay with rate > 1 = %v, want 0", d)
	}
}

func TestScheduler_PanickingTaskDoesNotStall(t *testing.T) {
	s := New(Config{Name: "panic-test", FloorInterval: time.Millisecond})

	s.Push(func(done func()) {
		panic("handler misbehaved")
	})

	ran := make(chan struct{})
	s.Push(func(done func()) {
		close(ran)
		done()
	})

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("Queue stalled after panicking task")
	}
}

func TestScheduler_DoneIdempotent(t *testing.T) {
	s := New(Config{Name: "done-test", FloorInterval: time.Millisecond})

	var wg sync.WaitGroup
	wg.Add(2)

	s.Push(func(done func()) {
		done()
		done() // extra calls must be ignored
		done()
		wg.Done()
	})
	s.Push(func(done func()) {
		done()
		wg.Done()
	})

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Queue did not drain")
	}
}

func TestScheduler_ResumesAfterDrain(t *testing.T) {
	s := New(Config{Name: "drain-test", FloorInterval: time.Millisecond})

	run := func() {
		ran := make(chan struct{})
		s.Push(func(done func()) {
			close(ran)
			done()
		})
		select {
		case <-ran:
		case <-time.After(2 * time.Second):
			t.Fatal("Task did not run")
		}
	}

	run()
	// Let the loop observe the empty queue and go idle.
	time.Sleep(20 * time.Millisecond)
	run()

	if s.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", s.Pending())
	}
}

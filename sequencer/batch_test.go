package sequencer

import "testing"

func TestDrainRunsInOrder(t *testing.T) {
	q := NewTaskQueue()
	var order []string
	q.Push("a", func() { order = append(order, "a") })
	q.Push("b", func() { order = append(order, "b") })
	q.Push("c", func() { order = append(order, "c") })
	q.Drain()
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("expected a,b,c in order, got %v", order)
	}
	if q.Len() != 0 {
		t.Fatalf("drain must empty the queue, %d left", q.Len())
	}
}

func TestDrainSkipsCancelled(t *testing.T) {
	q := NewTaskQueue()
	ran := false
	task := q.Push("doomed", func() { ran = true })
	task.Cancel()
	q.Drain()
	if ran {
		t.Fatalf("cancelled task must not run")
	}
}

func TestPushDuringDrainWaitsForNextDrain(t *testing.T) {
	q := NewTaskQueue()
	var order []string
	q.Push("first", func() {
		order = append(order, "first")
		q.Push("second", func() { order = append(order, "second") })
	})
	q.Drain()
	if len(order) != 1 {
		t.Fatalf("task pushed mid-drain must wait, got %v", order)
	}
	if q.Len() != 1 {
		t.Fatalf("expected 1 task held for next drain, got %d", q.Len())
	}
	q.Drain()
	if len(order) != 2 || order[1] != "second" {
		t.Fatalf("second drain must run the held task, got %v", order)
	}
}

func TestPumpDrainsAfterEachMessage(t *testing.T) {
	r := NewRunner()
	var order []string
	r.Post(func() {
		order = append(order, "m1")
		r.Tasks().Push("t1", func() { order = append(order, "t1") })
	})
	r.Post(func() { order = append(order, "m2") })
	r.Pump()
	want := []string{"m1", "t1", "m2"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestRunnerLoopProcessesAndStops(t *testing.T) {
	r := NewRunner()
	r.Start()
	done := make(chan struct{})
	r.Post(func() { close(done) })
	<-done
	r.Stop()
	// Posts after stop are dropped, not queued and not panicking.
	r.Post(func() { t.Errorf("message ran after stop") })
}

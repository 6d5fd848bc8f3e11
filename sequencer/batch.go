package sequencer

// Task is one unit of deferred work. The host forbids mutating its data
// model from inside a change-notification callback, so notification
// handlers only decide what must change and push a Task; the runner
// executes it after the current message completes. Cancel marks the task
// dead without removing it from the queue.
type Task struct {
	name      string
	run       func()
	cancelled bool
}

// Cancel prevents the task from running. Safe to call after it ran.
func (t *Task) Cancel() {
	t.cancelled = true
}

// TaskQueue is the engine's deferred-continuation primitive. Everything on
// it runs on the engine goroutine; there is no locking because there is no
// concurrent access.
type TaskQueue struct {
	tasks []*Task
}

func NewTaskQueue() *TaskQueue {
	return &TaskQueue{}
}

// Push schedules fn to run on the next drain and returns a cancellable
// handle.
func (q *TaskQueue) Push(name string, fn func()) *Task {
	t := &Task{name: name, run: fn}
	q.tasks = append(q.tasks, t)
	return t
}

// Drain runs the tasks queued so far, in order, skipping cancelled ones.
// Tasks pushed while draining wait for the next drain - that is what gives
// a re-pushed retry its one-message delay.
func (q *TaskQueue) Drain() {
	batch := q.tasks
	q.tasks = nil
	for _, t := range batch {
		if t.cancelled {
			continue
		}
		t.run()
	}
}

// Len reports how many tasks are pending, cancelled ones included.
func (q *TaskQueue) Len() int {
	return len(q.tasks)
}

// pendingApply coalesces same-tick transformation requests for one clip.
// Last value wins per field; at most one flush task is scheduled per clip
// at any time.
type pendingApply struct {
	clipID string
	mute   *int
	pitch  *int
	task   *Task
}

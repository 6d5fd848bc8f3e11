package sequencer

// Runner serializes all engine work onto one goroutine, standing in for
// the single message thread the host grants an embedded device. Boundary
// adapters and host observer callbacks post closures; the deferred task
// queue drains after each message, which is what turns "schedule it" into
// "runs right after the current handler".
type Runner struct {
	inbox    chan func()
	tasks    *TaskQueue
	stopChan chan struct{}
	doneChan chan struct{}
}

func NewRunner() *Runner {
	return &Runner{
		inbox:    make(chan func(), 256),
		tasks:    NewTaskQueue(),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start launches the message loop.
func (r *Runner) Start() {
	go r.loop()
}

func (r *Runner) loop() {
	defer close(r.doneChan)
	for {
		select {
		case <-r.stopChan:
			return
		case fn := <-r.inbox:
			fn()
			r.tasks.Drain()
		}
	}
}

// Post queues fn for the engine goroutine. Posts after Stop are dropped.
func (r *Runner) Post(fn func()) {
	select {
	case r.inbox <- fn:
	case <-r.stopChan:
	}
}

// Tasks is the deferred-continuation queue drained after each message.
func (r *Runner) Tasks() *TaskQueue {
	return r.tasks
}

// Pump synchronously runs every queued message and its deferred tasks.
// Callers that own their own loop use this instead of Start.
func (r *Runner) Pump() {
	for {
		select {
		case fn := <-r.inbox:
			fn()
			r.tasks.Drain()
		default:
			return
		}
	}
}

// Stop ends the loop after the in-flight message and waits for it. Call
// once.
func (r *Runner) Stop() {
	close(r.stopChan)
	<-r.doneChan
}

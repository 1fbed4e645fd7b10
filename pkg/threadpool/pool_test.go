package threadpool

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fluxorio/threadpool/pkg/core"
	"github.com/fluxorio/threadpool/pkg/core/failfast"
)

func TestBuild_Sizes(t *testing.T) {
	for _, size := range []int{1, 2, 4, 16} {
		p := mustBuild(t, size)

		if got := p.Size(); got != size {
			t.Errorf("Size() = %d, want %d", got, size)
		}
		if got := p.LiveWorkers(); got != size {
			t.Errorf("LiveWorkers() = %d, want %d", got, size)
		}
		states := p.WorkerStates()
		if len(states) != size {
			t.Fatalf("len(WorkerStates()) = %d, want %d", len(states), size)
		}

		if err := p.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if got := p.LiveWorkers(); got != 0 {
			t.Errorf("LiveWorkers() after Close = %d, want 0", got)
		}
		for id, s := range p.WorkerStates() {
			if s != StateTerminated {
				t.Errorf("worker %d state = %v, want terminated", id, s)
			}
		}
	}
}

func TestBuild_InvalidSize(t *testing.T) {
	before := runtime.NumGoroutine()

	for _, size := range []int{0, -1} {
		p, err := Build(size)
		if p != nil {
			t.Errorf("Build(%d) returned a pool, want nil", size)
		}
		if !errors.Is(err, ErrInvalidSize) {
			t.Fatalf("Build(%d) error = %v, want ErrInvalidSize", size, err)
		}
		var pce *PoolCreationError
		if !errors.As(err, &pce) || pce.Size != size {
			t.Errorf("Build(%d) error = %#v, want *PoolCreationError{Size: %d}", size, err, size)
		}
	}

	if after := runtime.NumGoroutine(); after > before {
		t.Errorf("goroutines grew from %d to %d after failed Build", before, after)
	}
}

func TestExecute_EveryJobRunsExactlyOnce(t *testing.T) {
	const n = 2000
	p := mustBuild(t, 8)

	var runs [n]atomic.Int32
	var total atomic.Int64
	for i := 0; i < n; i++ {
		i := i
		if err := p.Execute(func() {
			runs[i].Add(1)
			total.Add(1)
		}); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := total.Load(); got != n {
		t.Errorf("total executions = %d, want %d", got, n)
	}
	for i := range runs {
		if got := runs[i].Load(); got != 1 {
			t.Fatalf("job %d ran %d times, want 1", i, got)
		}
	}

	stats := p.Stats()
	if stats.Submitted != n || stats.Completed != n {
		t.Errorf("Stats() = %+v, want Submitted=Completed=%d", stats, n)
	}
}

func TestExecute_JobsRunConcurrently(t *testing.T) {
	p := mustBuild(t, 2)

	var started sync.WaitGroup
	started.Add(2)
	bothRunning := make(chan struct{})
	go func() {
		started.Wait()
		close(bothRunning)
	}()

	var met atomic.Int32
	job := func() {
		started.Done()
		select {
		case <-bothRunning:
			met.Add(1)
		case <-time.After(2 * time.Second):
		}
	}
	_ = p.Execute(job)
	_ = p.Execute(job)

	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := met.Load(); got != 2 {
		t.Errorf("jobs that met at the barrier = %d, want 2", got)
	}
}

func TestClose_JoinsBeforeReturning(t *testing.T) {
	p := mustBuild(t, 2)

	var finished atomic.Int32
	for i := 0; i < 6; i++ {
		_ = p.Execute(func() {
			time.Sleep(20 * time.Millisecond)
			finished.Add(1)
		})
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := finished.Load(); got != 6 {
		t.Errorf("finished jobs when Close returned = %d, want 6", got)
	}
}

func TestExecute_ExcessJobsAreQueued(t *testing.T) {
	const n = 50
	p := mustBuild(t, 2)

	gate := make(chan struct{})
	var count atomic.Int32
	for i := 0; i < n; i++ {
		_ = p.Execute(func() {
			<-gate
			count.Add(1)
		})
	}

	waitFor(t, "both workers to be busy", func() bool {
		s := p.WorkerStates()
		return s[0] == StateExecuting && s[1] == StateExecuting
	})
	if q := p.Stats().Queued; q != n-2 {
		t.Errorf("Stats().Queued = %d, want %d", q, n-2)
	}

	close(gate)
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := count.Load(); got != n {
		t.Errorf("executed = %d, want %d", got, n)
	}
}

func TestScenario_TwoWorkersFourJobs(t *testing.T) {
	p := mustBuild(t, 2)

	var counter atomic.Int32
	for i := 0; i < 4; i++ {
		_ = p.Execute(func() {
			counter.Add(1)
			time.Sleep(10 * time.Millisecond)
		})
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := counter.Load(); got != 4 {
		t.Errorf("counter = %d, want 4", got)
	}
}

func TestScenario_PanicTerminatesWorkerWithoutReplacement(t *testing.T) {
	p := mustBuild(t, 1)

	var second atomic.Bool
	_ = p.Execute(func() { panic("boom") })
	_ = p.Execute(func() { second.Store(true) })

	waitFor(t, "the worker to terminate", func() bool { return p.LiveWorkers() == 0 })

	// Give a replacement, if one existed, the chance to run the second job.
	time.Sleep(20 * time.Millisecond)
	if second.Load() {
		t.Fatal("second job ran, but the only worker should be gone")
	}
	if s := p.WorkerStates()[0]; s != StateTerminated {
		t.Errorf("worker 0 state = %v, want terminated", s)
	}

	err := p.Close()
	if !errors.Is(err, ErrJobPanic) {
		t.Fatalf("Close() error = %v, want ErrJobPanic", err)
	}
	var werr *WorkerError
	if !errors.As(err, &werr) {
		t.Fatalf("Close() error = %v, want *WorkerError", err)
	}
	if werr.WorkerID != 0 || werr.Panic != "boom" || werr.Job != 1 || len(werr.Stack) == 0 {
		t.Errorf("WorkerError = %+v, want worker 0, job 1, panic boom with stack", werr)
	}
	if second.Load() {
		t.Error("second job ran during teardown")
	}

	stats := p.Stats()
	if stats.Panicked != 1 || stats.Completed != 0 || stats.Queued != 1 {
		t.Errorf("Stats() = %+v, want Panicked=1 Completed=0 Queued=1", stats)
	}
}

func TestScenario_PanicWithRespawn(t *testing.T) {
	p := mustBuild(t, 1, WithRespawn(true))

	ran := make(chan struct{})
	_ = p.Execute(func() { panic("boom") })
	_ = p.Execute(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("second job never ran with respawn enabled")
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v, want nil for a respawned worker", err)
	}
	stats := p.Stats()
	if stats.Respawned != 1 || stats.Panicked != 1 || stats.Completed != 1 {
		t.Errorf("Stats() = %+v, want Respawned=1 Panicked=1 Completed=1", stats)
	}
	if stats.LiveWorkers != 0 {
		t.Errorf("LiveWorkers after Close = %d, want 0", stats.LiveWorkers)
	}
}

func TestClose_Idempotent(t *testing.T) {
	p := mustBuild(t, 3)

	if err := p.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close() error = %v, want nil", err)
	}
	if !p.Stats().Closed {
		t.Error("Stats().Closed = false after Close")
	}
}

func TestClose_ConcurrentCallersCloseOnce(t *testing.T) {
	var buf syncBuffer
	p, err := Build(2, WithLogger(core.NewLogger(&buf, &buf, core.LevelInfo)))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Close()
		}()
	}
	wg.Wait()
	waitFor(t, "workers to stop", func() bool { return p.LiveWorkers() == 0 })

	if n := strings.Count(buf.String(), "Shutting down worker 0"); n != 1 {
		t.Errorf("worker 0 shut down %d times, want 1", n)
	}
}

func TestExecute_AfterClose(t *testing.T) {
	p := mustBuild(t, 1)
	_ = p.Close()

	if err := p.Execute(func() {}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Execute() after Close error = %v, want ErrQueueClosed", err)
	}

	defer func() {
		r := recover()
		v, ok := r.(*failfast.Violation)
		if !ok {
			t.Fatalf("MustExecute() panic = %v, want *failfast.Violation", r)
		}
		if !errors.Is(v, ErrQueueClosed) {
			t.Errorf("violation = %v, want ErrQueueClosed", v.Err)
		}
	}()
	p.MustExecute(func() {})
}

func TestExecute_NilJob(t *testing.T) {
	p := mustBuild(t, 1)
	defer p.Close()

	if err := p.Execute(nil); !errors.Is(err, ErrNilJob) {
		t.Errorf("Execute(nil) error = %v, want ErrNilJob", err)
	}
	if got := p.Stats().Submitted; got != 0 {
		t.Errorf("Stats().Submitted = %d, want 0", got)
	}
}

func TestShutdown_LogsWorkersInOrder(t *testing.T) {
	var buf syncBuffer
	p, err := Build(3, WithName("hello"), WithLogger(core.NewLogger(&buf, &buf, core.LevelInfo)))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "hello: started 3 workers") {
		t.Errorf("missing start line in %q", out)
	}
	last := -1
	for _, id := range []string{"0", "1", "2"} {
		idx := strings.Index(out, "Shutting down worker "+id)
		if idx < 0 {
			t.Fatalf("missing shutdown line for worker %s in %q", id, out)
		}
		if idx < last {
			t.Errorf("worker %s joined out of order", id)
		}
		last = idx
	}
}

func TestShutdown_DeadlineExceeded(t *testing.T) {
	p := mustBuild(t, 1)

	gate := make(chan struct{})
	_ = p.Execute(func() { <-gate })
	waitFor(t, "job to start", func() bool { return p.WorkerStates()[0] == StateExecuting })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Shutdown(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Shutdown() error = %v, want DeadlineExceeded", err)
	}

	if err := p.Execute(func() {}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Execute() after interrupted Shutdown error = %v, want ErrQueueClosed", err)
	}

	close(gate)
	waitFor(t, "worker to finish", func() bool { return p.LiveWorkers() == 0 })
}

func TestWorker_StateTransitions(t *testing.T) {
	p := mustBuild(t, 1)

	if s := p.WorkerStates()[0]; s != StateListening {
		t.Errorf("initial state = %v, want listening", s)
	}

	gate := make(chan struct{})
	_ = p.Execute(func() { <-gate })
	waitFor(t, "executing", func() bool { return p.WorkerStates()[0] == StateExecuting })

	close(gate)
	waitFor(t, "listening", func() bool { return p.WorkerStates()[0] == StateListening })

	_ = p.Close()
	if s := p.WorkerStates()[0]; s != StateTerminated {
		t.Errorf("state after Close = %v, want terminated", s)
	}
}

func TestWorker_PoisonedLockFailsPeers(t *testing.T) {
	var buf syncBuffer
	p, err := Build(3,
		WithLogger(core.NewLogger(&buf, &buf, core.LevelInfo)),
		func(o *options) { o.source = &panickingSource{} },
	)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	waitFor(t, "all workers to fail", func() bool { return p.LiveWorkers() == 0 })
	if !p.Stats().Poisoned {
		t.Error("Stats().Poisoned = false")
	}

	err = p.Close()
	if !errors.Is(err, ErrReceiverPanic) {
		t.Errorf("Close() error = %v, want ErrReceiverPanic from the lock holder", err)
	}
	if !errors.Is(err, ErrLockPoisoned) {
		t.Errorf("Close() error = %v, want ErrLockPoisoned from peers", err)
	}
	if n := strings.Count(buf.String(), "receive lock poisoned"); n != 2 {
		t.Errorf("poisoned-lock log lines = %d, want 2", n)
	}
}

func TestWorkerState_String(t *testing.T) {
	tests := []struct {
		s    WorkerState
		want string
	}{
		{StateListening, "listening"},
		{StateExecuting, "executing"},
		{StateTerminated, "terminated"},
		{WorkerState(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("WorkerState(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestScenario_GoexitTerminatesWorker(t *testing.T) {
	p := mustBuild(t, 1)

	var second atomic.Bool
	_ = p.Execute(func() { runtime.Goexit() })
	_ = p.Execute(func() { second.Store(true) })

	waitFor(t, "the worker to terminate", func() bool { return p.LiveWorkers() == 0 })
	if s := p.WorkerStates()[0]; s != StateTerminated {
		t.Errorf("worker 0 state = %v, want terminated", s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := p.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Shutdown() error = %v, worker was never joined", err)
	}
	if !errors.Is(err, ErrJobExited) {
		t.Fatalf("Shutdown() error = %v, want ErrJobExited", err)
	}
	var werr *WorkerError
	if !errors.As(err, &werr) || werr.WorkerID != 0 || werr.Job != 1 {
		t.Errorf("Shutdown() error = %+v, want WorkerError for worker 0, job 1", werr)
	}
	if second.Load() {
		t.Error("second job ran, but the only worker should be gone")
	}
	if got := p.Stats().Exited; got != 1 {
		t.Errorf("Stats().Exited = %d, want 1", got)
	}
}

func TestScenario_GoexitWithRespawn(t *testing.T) {
	p := mustBuild(t, 1, WithRespawn(true))

	ran := make(chan struct{})
	_ = p.Execute(func() { runtime.Goexit() })
	_ = p.Execute(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("second job never ran with respawn enabled")
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v, want nil for a respawned worker", err)
	}
	stats := p.Stats()
	if stats.Exited != 1 || stats.Respawned != 1 || stats.Completed != 1 {
		t.Errorf("Stats() = %+v, want Exited=1 Respawned=1 Completed=1", stats)
	}
}

func TestShutdown_ResumesAfterInterruption(t *testing.T) {
	var buf syncBuffer
	p, err := Build(2, WithLogger(core.NewLogger(&buf, &buf, core.LevelInfo)))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	gate := make(chan struct{})
	_ = p.Execute(func() { <-gate })
	_ = p.Execute(func() { panic("boom") })
	waitFor(t, "one panic and one busy worker", func() bool {
		return p.Stats().Panicked == 1 && p.LiveWorkers() == 1
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Shutdown() error = %v, want DeadlineExceeded", err)
	}

	close(gate)
	err = p.Close()
	if !errors.Is(err, ErrJobPanic) {
		t.Fatalf("Close() after interrupted Shutdown error = %v, want ErrJobPanic", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("third Close() error = %v, want nil", err)
	}
	for _, id := range []string{"0", "1"} {
		if n := strings.Count(buf.String(), "Shutting down worker "+id+"\n"); n != 1 {
			t.Errorf("worker %s announced %d times, want 1", id, n)
		}
	}
}

// depthObserver tracks queued minus started jobs and remembers the minimum.
type depthObserver struct {
	NopObserver
	mu       sync.Mutex
	depth    int
	minDepth int
}

func (o *depthObserver) JobQueued(int) {
	o.mu.Lock()
	o.depth++
	o.mu.Unlock()
}

func (o *depthObserver) JobStarted(int, time.Duration) {
	o.mu.Lock()
	o.depth--
	if o.depth < o.minDepth {
		o.minDepth = o.depth
	}
	o.mu.Unlock()
}

func TestObserver_QueuedBeforeStarted(t *testing.T) {
	obs := &depthObserver{}
	p := mustBuild(t, 4, WithObserver(obs))

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				_ = p.Execute(func() {})
			}
		}()
	}
	wg.Wait()
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.minDepth < 0 {
		t.Errorf("queued depth went to %d: JobStarted ran before JobQueued", obs.minDepth)
	}
	if obs.depth != 0 {
		t.Errorf("final depth = %d, want 0", obs.depth)
	}
}

package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// waitCallback collects completion signals from the pool.
type waitCallback struct {
	wg     *sync.WaitGroup
	errs   int32
	onceMu sync.Mutex
	fired  bool
}

func (cb *waitCallback) done() {
	cb.onceMu.Lock()
	defer cb.onceMu.Unlock()
	if !cb.fired {
		cb.fired = true
		cb.wg.Done()
	}
}

func (cb *waitCallback) OnComplete(interface{}) { cb.done() }

func (cb *waitCallback) OnError(err error) {
	atomic.AddInt32(&cb.errs, 1)
	cb.done()
}

func startPool(t *testing.T, workers int) *WorkerPool {
	t.Helper()
	pool := NewWorkerPool(ResourceConfig{MaxWorkers: workers})
	pool.Start()
	t.Cleanup(pool.Stop)
	return pool
}

func waitOrFail(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("tasks did not finish")
	}
}

func TestWorkerPoolExecutesConcurrently(t *testing.T) {
	const taskType TaskType = "test_counter"
	var executed int32
	RegisterTaskExecutor(taskType, func(task *Task) error {
		atomic.AddInt32(&executed, 1)
		return nil
	})

	pool := startPool(t, 2)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		task, _ := NewTask(context.Background(), taskType, nil)
		wg.Add(1)
		task.Callback = &waitCallback{wg: &wg}
		if err := pool.Submit(task); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	waitOrFail(t, &wg)

	if got := atomic.LoadInt32(&executed); got != 4 {
		t.Errorf("expected 4 executions, got %d", got)
	}
}

func TestWorkerPoolReportsExecutorError(t *testing.T) {
	const taskType TaskType = "test_failing"
	RegisterTaskExecutor(taskType, func(task *Task) error {
		return errors.New("boom")
	})

	pool := startPool(t, 1)

	var wg sync.WaitGroup
	wg.Add(1)
	cb := &waitCallback{wg: &wg}
	task, _ := NewTask(context.Background(), taskType, nil)
	task.Callback = cb
	if err := pool.Submit(task); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitOrFail(t, &wg)

	if atomic.LoadInt32(&cb.errs) != 1 {
		t.Error("executor error must reach OnError")
	}
	if task.Status != TaskStatusFailed {
		t.Errorf("expected failed status, got %s", task.Status)
	}
}

func TestWorkerPoolUnknownTaskType(t *testing.T) {
	pool := startPool(t, 1)

	var wg sync.WaitGroup
	wg.Add(1)
	cb := &waitCallback{wg: &wg}
	task, _ := NewTask(context.Background(), "never_registered", nil)
	task.Callback = cb
	if err := pool.Submit(task); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitOrFail(t, &wg)

	if atomic.LoadInt32(&cb.errs) != 1 {
		t.Error("unregistered task type must fail through OnError")
	}
}

func TestWorkerPoolRecoversFromPanic(t *testing.T) {
	const taskType TaskType = "test_panicking"
	RegisterTaskExecutor(taskType, func(task *Task) error {
		panic("executor exploded")
	})

	pool := startPool(t, 1)

	var wg sync.WaitGroup
	wg.Add(1)
	cb := &waitCallback{wg: &wg}
	task, _ := NewTask(context.Background(), taskType, nil)
	task.Callback = cb
	if err := pool.Submit(task); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitOrFail(t, &wg)

	if atomic.LoadInt32(&cb.errs) != 1 {
		t.Error("panic must surface as OnError")
	}

	// pool keeps working after a panic
	const okType TaskType = "test_after_panic"
	RegisterTaskExecutor(okType, func(task *Task) error { return nil })
	var wg2 sync.WaitGroup
	wg2.Add(1)
	next, _ := NewTask(context.Background(), okType, nil)
	next.Callback = &waitCallback{wg: &wg2}
	if err := pool.Submit(next); err != nil {
		t.Fatalf("Submit after panic: %v", err)
	}
	waitOrFail(t, &wg2)
}

func TestCancelledTaskStillFiresCallback(t *testing.T) {
	const taskType TaskType = "test_cancelled"
	var executed int32
	RegisterTaskExecutor(taskType, func(task *Task) error {
		atomic.AddInt32(&executed, 1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var wg sync.WaitGroup
	var cbs []*waitCallback
	for i := 0; i < 50; i++ {
		task, _ := NewTask(ctx, taskType, nil)
		wg.Add(1)
		cb := &waitCallback{wg: &wg}
		cbs = append(cbs, cb)
		task.Callback = cb
		task.Execute()
	}
	waitOrFail(t, &wg)

	if got := atomic.LoadInt32(&executed); got != 0 {
		t.Errorf("cancelled tasks must not run the executor, %d did", got)
	}
	for i, cb := range cbs {
		if atomic.LoadInt32(&cb.errs) != 1 {
			t.Errorf("task %d: cancelled task must report through OnError", i)
		}
	}
}

func TestSubmitQueueFull(t *testing.T) {
	// never started, queue capacity is MaxWorkers*2
	pool := NewWorkerPool(ResourceConfig{MaxWorkers: 1})

	for i := 0; i < 2; i++ {
		task, _ := NewTask(context.Background(), "noop", nil)
		if err := pool.Submit(task); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	task, _ := NewTask(context.Background(), "noop", nil)
	if err := pool.Submit(task); err == nil {
		t.Error("expected queue-full error")
	}
}

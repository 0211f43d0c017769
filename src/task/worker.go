package task

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// WorkerPool manages a pool of workers for executing tasks
type WorkerPool struct {
	config      ResourceConfig
	workers     []*Worker
	taskQueue   chan *Task
	stopChan    chan struct{}
	idleWorkers chan *Worker
	mu          sync.RWMutex
}

// Worker represents a task execution worker
type Worker struct {
	id       string
	status   WorkerStatus
	taskChan chan *Task
	stopChan chan struct{}
	pool     *WorkerPool
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(config ResourceConfig) *WorkerPool {
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = 4
	}
	wp := &WorkerPool{
		config:      config,
		taskQueue:   make(chan *Task, config.MaxWorkers*2),
		stopChan:    make(chan struct{}),
		idleWorkers: make(chan *Worker, config.MaxWorkers),
	}

	wp.initWorkers()
	return wp
}

func (wp *WorkerPool) initWorkers() {
	wp.workers = make([]*Worker, wp.config.MaxWorkers)
	for i := 0; i < wp.config.MaxWorkers; i++ {
		worker := newWorker(fmt.Sprintf("worker-%d", i), wp)
		wp.workers[i] = worker
		wp.idleWorkers <- worker
	}
}

// Start starts the worker pool
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	for _, worker := range wp.workers {
		go worker.start()
	}

	go wp.distributeItems()
}

// Stop stops the worker pool
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	close(wp.stopChan)
	for _, worker := range wp.workers {
		worker.stop()
	}
}

// Submit submits a task to the worker pool
func (wp *WorkerPool) Submit(task *Task) error {
	select {
	case wp.taskQueue <- task:
		return nil
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (wp *WorkerPool) distributeItems() {
	for {
		select {
		case <-wp.stopChan:
			return
		case task := <-wp.taskQueue:
			wp.assignTask(task)
		}
	}
}

// assignTask assigns a task to an available worker
func (wp *WorkerPool) assignTask(task *Task) {
	if _, exists := GetTaskExecutor(task.Type); !exists {
		task.Error = fmt.Errorf("no executor registered for task type: %v", task.Type)
		task.Status = TaskStatusFailed
		if task.Callback != nil {
			task.Callback.OnError(task.Error)
		}
		return
	}

	select {
	case worker := <-wp.idleWorkers:
		worker.assignTask(task)
	case <-time.After(10 * time.Second):
		task.Status = TaskStatusFailed
		task.Error = fmt.Errorf("no available workers within timeout")
		if task.Callback != nil {
			task.Callback.OnError(task.Error)
		}
	}
}

// workerFinished returns a worker to the idle queue
func (wp *WorkerPool) workerFinished(worker *Worker) {
	select {
	case wp.idleWorkers <- worker:
	default:
		fmt.Printf("Warning: Failed to return worker %s to idle pool\n", worker.id)
	}
}

func newWorker(id string, pool *WorkerPool) *Worker {
	return &Worker{
		id:       id,
		status:   WorkerStatusIdle,
		taskChan: make(chan *Task, 1),
		stopChan: make(chan struct{}),
		pool:     pool,
	}
}

func (w *Worker) start() {
	for {
		select {
		case <-w.stopChan:
			return
		case task := <-w.taskChan:
			w.executeTask(task)
		}
	}
}

// executeTask executes a task under a bounded context
func (w *Worker) executeTask(task *Task) {
	w.status = WorkerStatusBusy

	defer func() {
		w.status = WorkerStatusIdle
		w.pool.workerFinished(w)
	}()

	ctx, cancel := context.WithTimeout(task.Context, 5*time.Minute)
	defer cancel()
	task.Context = ctx

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				task.Status = TaskStatusFailed
				task.Error = fmt.Errorf("task panicked: %v", r)
			}
		}()

		task.Execute()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		task.Status = TaskStatusFailed
		task.Error = ctx.Err()
		if task.Callback != nil {
			task.Callback.OnError(task.Error)
		}
	}
}

func (w *Worker) stop() {
	w.status = WorkerStatusStopped
	close(w.stopChan)
}

func (w *Worker) assignTask(task *Task) {
	select {
	case w.taskChan <- task:
	default:
		fmt.Printf("Warning: Failed to assign task to worker %s\n", w.id)
	}
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// ErrTaskRunning is returned by RunTaskNow when the task is already executing.
var ErrTaskRunning = errors.New("task is already running")

// ErrUnknownTask is returned by RunTaskNow for unregistered task ids.
var ErrUnknownTask = errors.New("unknown task")

// Task status values
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is what a task reports after running.
type Result struct {
	Count   int
	Message string
}

// Task is a maintenance job run on a fixed interval.
type Task struct {
	ID       string
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (Result, error)
}

// TaskStatus is the in-memory run state of a task.
type TaskStatus struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Interval       time.Duration `json:"interval"`
	LastRunAt      *time.Time    `json:"lastRunAt,omitempty"`
	LastStatus     string        `json:"lastStatus"`
	LastError      string        `json:"lastError,omitempty"`
	LastMessage    string        `json:"lastMessage,omitempty"`
	ItemsProcessed int           `json:"itemsProcessed"`
	Running        bool          `json:"running"`
}

// Service manages scheduled task execution
type Service struct {
	checkInterval time.Duration
	now           func() time.Time

	// Runtime state
	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	runs    sync.WaitGroup

	// Task state tracking (in-memory, not persisted)
	taskMu      sync.RWMutex
	tasks       map[string]Task
	status      map[string]*TaskStatus
	taskRunning map[string]bool
}

// NewService creates a new scheduler service. checkInterval is how often due
// tasks are looked for; it defaults to one minute.
func NewService(checkInterval time.Duration, tasks ...Task) *Service {
	if checkInterval < time.Millisecond {
		checkInterval = time.Minute
	}
	s := &Service{
		checkInterval: checkInterval,
		now:           time.Now,
		tasks:         make(map[string]Task),
		status:        make(map[string]*TaskStatus),
		taskRunning:   make(map[string]bool),
	}
	for _, t := range tasks {
		s.Register(t)
	}
	return s
}

// Register adds or replaces a task. Tasks with a non-positive interval only
// run through RunTaskNow.
func (s *Service) Register(task Task) {
	if task.Name == "" {
		task.Name = task.ID
	}
	s.taskMu.Lock()
	defer s.taskMu.Unlock()
	s.tasks[task.ID] = task
	s.status[task.ID] = &TaskStatus{ID: task.ID, Name: task.Name, Interval: task.Interval, LastStatus: StatusPending}
}

// Start begins the scheduler background loop
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go s.schedulerLoop(s.ctx)

	log.Println("[scheduler] Scheduler service started")
	return nil
}

// Stop gracefully stops the scheduler
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.cancel()

	// Wait for all tasks to complete with timeout
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		s.runs.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("[scheduler] Scheduler service stopped gracefully")
	case <-ctx.Done():
		log.Println("[scheduler] Scheduler service stopped (timeout)")
	}

	s.running = false
	return nil
}

// schedulerLoop is the main background loop that checks for tasks to run
func (s *Service) schedulerLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	// Run check immediately on start
	s.checkAndRunTasks(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkAndRunTasks(ctx)
		}
	}
}

// checkAndRunTasks runs every task that is due
func (s *Service) checkAndRunTasks(ctx context.Context) {
	s.taskMu.RLock()
	var due []Task
	for id, task := range s.tasks {
		if s.shouldRunLocked(id, task) {
			due = append(due, task)
		}
	}
	s.taskMu.RUnlock()

	for _, task := range due {
		// Run task in goroutine to not block other tasks
		s.runs.Add(1)
		go func(t Task) {
			defer s.runs.Done()
			s.executeTask(ctx, t)
		}(task)
	}
}

// shouldRunLocked checks if a task is due to run
func (s *Service) shouldRunLocked(id string, task Task) bool {
	if task.Interval <= 0 || s.taskRunning[id] {
		return false
	}
	st := s.status[id]
	// Never run before
	if st == nil || st.LastRunAt == nil {
		return true
	}
	return s.now().Sub(*st.LastRunAt) >= task.Interval
}

// executeTask runs a task and updates its status
func (s *Service) executeTask(ctx context.Context, task Task) {
	s.taskMu.Lock()
	if s.taskRunning[task.ID] {
		s.taskMu.Unlock()
		return
	}
	s.taskRunning[task.ID] = true
	s.taskMu.Unlock()

	defer func() {
		s.taskMu.Lock()
		delete(s.taskRunning, task.ID)
		s.taskMu.Unlock()
	}()

	log.Printf("[scheduler] Executing task: %s", task.Name)

	result, err := s.runSafely(ctx, task)
	s.updateTaskStatus(task.ID, err, result)
}

func (s *Service) runSafely(ctx context.Context, task Task) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task.Run(ctx)
}

// updateTaskStatus records the outcome of a run
func (s *Service) updateTaskStatus(taskID string, err error, result Result) {
	s.taskMu.Lock()
	defer s.taskMu.Unlock()

	st, ok := s.status[taskID]
	if !ok {
		return
	}
	now := s.now().UTC()
	st.LastRunAt = &now
	st.ItemsProcessed = result.Count
	st.LastMessage = result.Message

	if err != nil {
		st.LastStatus = StatusError
		st.LastError = err.Error()
		log.Printf("[scheduler] Task %s failed: %v", taskID, err)
		return
	}
	st.LastStatus = StatusSuccess
	st.LastError = ""
	log.Printf("[scheduler] Task %s completed successfully, processed %d items", taskID, result.Count)
}

// RunTaskNow triggers immediate execution of a task
func (s *Service) RunTaskNow(taskID string) error {
	s.taskMu.RLock()
	task, ok := s.tasks[taskID]
	busy := s.taskRunning[taskID]
	s.taskMu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	if busy {
		return ErrTaskRunning
	}

	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()
	if ctx == nil {
		ctx = context.Background()
	}

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		s.executeTask(ctx, task)
	}()
	return nil
}

// Wait blocks until every started task run has finished.
func (s *Service) Wait() {
	s.runs.Wait()
}

// GetTaskStatus returns the status of every task, ordered by id
func (s *Service) GetTaskStatus() []TaskStatus {
	s.taskMu.RLock()
	defer s.taskMu.RUnlock()

	out := make([]TaskStatus, 0, len(s.status))
	for id, st := range s.status {
		cp := *st
		cp.Running = s.taskRunning[id]
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IsTaskRunning checks if a specific task is currently running
func (s *Service) IsTaskRunning(taskID string) bool {
	s.taskMu.RLock()
	defer s.taskMu.RUnlock()
	return s.taskRunning[taskID]
}

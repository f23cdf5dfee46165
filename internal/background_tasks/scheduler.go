package background_tasks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

const defaultTick = time.Second

// Scheduler orchestrates the execution of tasks based on their triggers and priority.
type Scheduler struct {
	tasks           map[int]*Task // Map of tasks by their ID.
	runningTasks    map[int]bool  // Map to keep track of running tasks.
	tick            time.Duration // How often triggers are polled.
	maxRunningTasks int           // Maximum number of tasks that can run concurrently.
	lastTaskID      int           // Counter for assigning unique IDs to tasks.
	mu              sync.Mutex    // Mutex to protect access to task maps.

	wg     sync.WaitGroup
	cancel context.CancelFunc
	done   chan struct{}
}

type SchedulerOption func(*Scheduler)

// WithTick changes how often triggers are polled.
func WithTick(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

// NewScheduler creates a new Scheduler with a specified limit on running tasks.
func NewScheduler(maxRunningTasks int, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		tasks:           make(map[int]*Task),
		runningTasks:    make(map[int]bool),
		tick:            defaultTick,
		maxRunningTasks: maxRunningTasks,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddTask adds a new task to the scheduler and initializes its state.
func (s *Scheduler) AddTask(task *Task) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	task.ID = s.lastTaskID
	task.Enabled = true
	if task.MaxHistory <= 0 {
		task.MaxHistory = defaultMaxHistory
	}

	for _, trigger := range task.Triggers {
		trigger.Reset()
	}

	s.tasks[task.ID] = task
	s.lastTaskID++

	return task
}

// RemoveTask removes a task from the scheduler.
func (s *Scheduler) RemoveTask(taskID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, taskID)
}

// History returns a copy of the recorded executions of a task.
func (s *Scheduler) History(taskID int) []Execution {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil
	}
	return append([]Execution(nil), task.ExecutionHist...)
}

// Start begins the scheduler's task execution loop. Running tasks receive a
// context derived from ctx that is cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()

		s.runTasks(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runTasks(ctx)
			}
		}
	}()
}

// Stop cancels running tasks and waits for them to return.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.wg.Wait()
}

// runTasks checks and runs tasks based on their triggers and priority.
func (s *Scheduler) runTasks(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sortedTasks := make([]*Task, 0, len(s.tasks))
	running := 0
	for id, task := range s.tasks {
		sortedTasks = append(sortedTasks, task)
		if s.runningTasks[id] {
			running++
		}
	}
	sort.Slice(sortedTasks, func(i, j int) bool {
		if sortedTasks[i].Priority == sortedTasks[j].Priority {
			return sortedTasks[i].ID < sortedTasks[j].ID
		}
		return sortedTasks[i].Priority > sortedTasks[j].Priority
	})

	for _, task := range sortedTasks {
		if running >= s.maxRunningTasks {
			return
		}
		if !task.Enabled || s.runningTasks[task.ID] {
			continue
		}

		if len(task.Triggers) == 0 {
			delete(s.tasks, task.ID)
			continue
		}

		for _, trigger := range task.Triggers {
			if trigger.IsReady() {
				s.runningTasks[task.ID] = true
				running++
				s.wg.Add(1)
				go s.runTask(ctx, task)
				trigger.Reset()
				break
			}
		}
	}
}

// runTask executes a task and manages its lifecycle and retry policy.
func (s *Scheduler) runTask(ctx context.Context, task *Task) {
	defer s.wg.Done()

	execution := Execution{StartedAt: time.Now()}
	var err error
	for attempt := 0; attempt <= task.RetryPolicy.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(task.RetryPolicy.Delay):
			}
			if ctx.Err() != nil {
				break
			}
		}
		execution.Attempts++
		if err = callTask(ctx, task); err == nil {
			break
		}
		zlog.Sugar().Debugf("task %q attempt %d failed: %v", task.Name, execution.Attempts, err)
	}

	execution.EndedAt = time.Now()
	execution.Status = ExecutionSuccess
	if err != nil {
		execution.Status = ExecutionFailed
		execution.Error = err.Error()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runningTasks[task.ID] = false
	task.ExecutionHist = append(task.ExecutionHist, execution)
	if over := len(task.ExecutionHist) - task.MaxHistory; over > 0 {
		task.ExecutionHist = task.ExecutionHist[over:]
	}
}

func callTask(ctx context.Context, task *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %q panicked: %v", task.Name, r)
		}
	}()
	return task.Function(ctx, task.Args)
}

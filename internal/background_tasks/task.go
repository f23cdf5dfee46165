package background_tasks

import (
	"context"
	"time"
)

const (
	ExecutionSuccess = "SUCCESS"
	ExecutionFailed  = "FAILED"

	defaultMaxHistory = 50
)

// RetryPolicy defines the policy for retrying tasks on failure.
type RetryPolicy struct {
	MaxRetries int           // Maximum number of retries.
	Delay      time.Duration // Delay between retries.
}

// Execution records the execution details of a task.
type Execution struct {
	StartedAt time.Time // Start time of the execution.
	EndedAt   time.Time // End time of the execution.
	Status    string    // ExecutionSuccess or ExecutionFailed.
	Error     string    // Error message of the last failed attempt.
	Attempts  int       // Number of times the function was called.
}

// TaskFunc is the work a task performs. ctx is cancelled when the scheduler stops.
type TaskFunc func(ctx context.Context, args []interface{}) error

// Task represents a schedulable task.
type Task struct {
	ID            int           // Unique identifier for the task.
	Name          string        // Name of the task.
	Description   string        // Description of the task.
	Triggers      []Trigger     // List of triggers for the task.
	Function      TaskFunc      // Function to execute as the task.
	Args          []interface{} // Arguments for the task function.
	RetryPolicy   RetryPolicy   // Retry policy for the task.
	Enabled       bool          // Flag indicating if the task is enabled.
	Priority      int           // Priority of the task for scheduling.
	MaxHistory    int           // Executions kept in ExecutionHist, 50 when zero.
	ExecutionHist []Execution   // Most recent executions, oldest first.
}

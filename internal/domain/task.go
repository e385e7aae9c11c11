package domain

import "fmt"

// TaskState tracks one fetch task attempt through the worker pools. The
// transitions are computed by NextTaskState from the attempt outcome, keeping
// the retry/requeue control flow out of the worker loops themselves.
type TaskState int

const (
	TaskPending TaskState = iota
	TaskRetrying
	TaskRequeued
	TaskDone
	TaskAbandoned
)

func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskRetrying:
		return "retrying"
	case TaskRequeued:
		return "requeued"
	case TaskDone:
		return "done"
	case TaskAbandoned:
		return "abandoned"
	default:
		return fmt.Sprintf("task-state(%d)", int(s))
	}
}

// TaskOutcome is the result of a single fetch attempt.
type TaskOutcome int

const (
	OutcomeSuccess TaskOutcome = iota
	OutcomeTransient
	OutcomeMalformed // counts as handled: a neutral value is persisted
)

// TaskAttempt is the retry bookkeeping for one task.
type TaskAttempt struct {
	State    TaskState
	Attempt  int  // completed attempts
	Requeued bool // a task may be requeued at most once after exhausting retries
}

// NextTaskState advances the attempt record given the outcome of the latest
// try. maxRetries bounds the in-worker retries; once exhausted the task is
// requeued for another worker exactly once, then abandoned.
func NextTaskState(cur TaskAttempt, outcome TaskOutcome, maxRetries int) TaskAttempt {
	next := cur
	next.Attempt++

	switch outcome {
	case OutcomeSuccess, OutcomeMalformed:
		next.State = TaskDone
	case OutcomeTransient:
		switch {
		case next.Attempt < maxRetries:
			next.State = TaskRetrying
		case !cur.Requeued:
			next.State = TaskRequeued
			next.Requeued = true
			next.Attempt = 0
		default:
			next.State = TaskAbandoned
		}
	}
	return next
}

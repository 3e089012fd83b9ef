// Package messages defines the schema of the messages that travel over the
// provisioned queues. The infrastructure never validates message bodies; this
// package is the contract the producer and the workers compile against.
package messages

import (
	"time"

	"github.com/google/uuid"
)

// TaskType classifies the work a task message requests.
type TaskType string

const (
	// TaskTypeOrderIntake is a new order submitted through the webhook.
	TaskTypeOrderIntake TaskType = "order_intake"
	// TaskTypeEnrichment asks a worker to enrich an existing order.
	TaskTypeEnrichment TaskType = "enrichment"
	// TaskTypeReprocess is a requeued task that failed a previous pass.
	TaskTypeReprocess TaskType = "reprocess"
)

// IsValid checks if the task type value is valid.
func (t TaskType) IsValid() bool {
	switch t {
	case TaskTypeOrderIntake, TaskTypeEnrichment, TaskTypeReprocess:
		return true
	default:
		return false
	}
}

// String returns the string representation of the task type.
func (t TaskType) String() string {
	return string(t)
}

// Priority orders tasks within a queue from the consumer's point of view.
type Priority string

const (
	// PriorityLow is background work.
	PriorityLow Priority = "low"
	// PriorityNormal is the default priority.
	PriorityNormal Priority = "normal"
	// PriorityHigh is customer-facing work that should jump the line.
	PriorityHigh Priority = "high"
)

// IsValid checks if the priority value is valid.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return true
	default:
		return false
	}
}

// String returns the string representation of the priority.
func (p Priority) String() string {
	return string(p)
}

// ResultStatus is the terminal state a worker reports for a task.
type ResultStatus string

const (
	// ResultStatusCompleted indicates the task was processed successfully.
	ResultStatusCompleted ResultStatus = "completed"
	// ResultStatusFailed indicates the task processing has failed.
	ResultStatusFailed ResultStatus = "failed"
	// ResultStatusPartial indicates the task was partially processed.
	ResultStatusPartial ResultStatus = "partial"
)

// IsValid checks if the result status value is valid.
func (s ResultStatus) IsValid() bool {
	switch s {
	case ResultStatusCompleted, ResultStatusFailed, ResultStatusPartial:
		return true
	default:
		return false
	}
}

// String returns the string representation of the result status.
func (s ResultStatus) String() string {
	return string(s)
}

// FollowUpAction tells the feedback consumer what to do with a result.
type FollowUpAction string

const (
	// FollowUpNotify sends a notification to the task owner.
	FollowUpNotify FollowUpAction = "notify"
	// FollowUpRequeue puts the task back on the order queue.
	FollowUpRequeue FollowUpAction = "requeue"
	// FollowUpEnhance schedules an enrichment pass on the result.
	FollowUpEnhance FollowUpAction = "enhance"
	// FollowUpEscalate hands the result to a human operator.
	FollowUpEscalate FollowUpAction = "escalate"
	// FollowUpArchive stores the result and ends the pipeline.
	FollowUpArchive FollowUpAction = "archive"
)

// IsValid checks if the follow-up action value is valid.
func (a FollowUpAction) IsValid() bool {
	switch a {
	case FollowUpNotify, FollowUpRequeue, FollowUpEnhance, FollowUpEscalate, FollowUpArchive:
		return true
	default:
		return false
	}
}

// String returns the string representation of the follow-up action.
func (a FollowUpAction) String() string {
	return string(a)
}

// TaskMessage is the payload placed on the order queue by the webhook
// producer and consumed by the workers.
type TaskMessage struct {
	// ID is the unique identifier for the task.
	ID string `json:"id"`

	// TaskType classifies the requested work.
	TaskType TaskType `json:"task_type"`

	// Payload is the task content; its structure is owned by the workers.
	Payload string `json:"payload"`

	// UserID identifies the task owner.
	UserID string `json:"user_id"`

	// CreatedAt is when the task was submitted.
	CreatedAt time.Time `json:"created_at"`

	// Priority orders tasks for the consumers.
	Priority Priority `json:"priority"`

	// RetryCount tracks how many times this task has been requeued.
	RetryCount int `json:"retry_count"`

	// CorrelationID ties a requeued task back to its original submission.
	CorrelationID string `json:"correlation_id"`
}

// ResultMessage is the payload placed on the result queue by the workers and
// consumed by the feedback service.
type ResultMessage struct {
	// TaskID references the task this result belongs to.
	TaskID string `json:"task_id"`

	// Status is the terminal state the worker reports.
	Status ResultStatus `json:"status"`

	// Result is the processing output; empty when Status is failed.
	Result string `json:"result,omitempty"`

	// ProcessingTime is how long the worker spent on the task.
	ProcessingTime time.Duration `json:"processing_time"`

	// FollowUp tells the feedback consumer what happens next.
	FollowUp FollowUpAction `json:"follow_up"`

	// CorrelationID carries the task's correlation identifier forward.
	CorrelationID string `json:"correlation_id"`
}

// NewTaskMessage creates a task message with a fresh identifier and the
// default priority. The correlation ID starts equal to the task ID and is
// preserved across requeues.
func NewTaskMessage(taskType TaskType, userID, payload string) *TaskMessage {
	id := uuid.NewString()
	return &TaskMessage{
		ID:            id,
		TaskType:      taskType,
		Payload:       payload,
		UserID:        userID,
		CreatedAt:     time.Now().UTC(),
		Priority:      PriorityNormal,
		RetryCount:    0,
		CorrelationID: id,
	}
}

// Requeue derives a reprocess task from a result, preserving the correlation
// identifier and bumping the retry count.
func (t *TaskMessage) Requeue() *TaskMessage {
	return &TaskMessage{
		ID:            uuid.NewString(),
		TaskType:      TaskTypeReprocess,
		Payload:       t.Payload,
		UserID:        t.UserID,
		CreatedAt:     time.Now().UTC(),
		Priority:      t.Priority,
		RetryCount:    t.RetryCount + 1,
		CorrelationID: t.CorrelationID,
	}
}

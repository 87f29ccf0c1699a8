package domain

import "time"

// TaskKind names which table an embedding task targets.
type TaskKind string

const (
	TaskKindRecommendation TaskKind = "recommendation"
	TaskKindAnnotation     TaskKind = "annotation"
)

// TaskPriority is a dispatch ordering class, not a preemption level.
type TaskPriority int

const (
	PriorityLow TaskPriority = iota
	PriorityNormal
	PriorityHigh
)

// String returns the human-readable priority name.
func (p TaskPriority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

// EmbeddingTask is a unit of asynchronous embedding work. Tasks live only in
// the in-process queue: owned by the queue from enqueue until they either
// persist a vector or are dropped after exhausting retries.
type EmbeddingTask struct {
	ID         string
	Kind       TaskKind
	RecordID   string
	RetryCount int
	MaxRetries int
	Priority   TaskPriority
	CreatedAt  time.Time
}

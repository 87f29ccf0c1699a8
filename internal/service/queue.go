package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/perchapp/perch/internal/domain"
	"github.com/perchapp/perch/internal/logger"
	"github.com/perchapp/perch/internal/repository"
)

// RecordStore is the record-store boundary the queue depends on.
type RecordStore interface {
	GetRecommendation(ctx context.Context, id string) (*domain.Recommendation, error)
	GetAnnotation(ctx context.Context, id string) (*domain.Annotation, error)
	FetchEntityContext(ctx context.Context, placeID, serviceID *string, authorID string) (*repository.EntityContext, error)
	MarkEmbedded(ctx context.Context, kind domain.TaskKind, id, model string, at time.Time) error
}

// VectorStore is the vector-store boundary the queue depends on.
type VectorStore interface {
	Upsert(ctx context.Context, pointID string, vector []float32, payload *repository.RecordPayload) error
}

// QueueOptions holds embedding queue tuning knobs.
type QueueOptions struct {
	MaxConcurrent int
	MaxRetries    int
	RetryDelay    time.Duration
	PollInterval  time.Duration
}

// QueueStatus is a point-in-time snapshot for observability. Reading it has
// no side effects.
type QueueStatus struct {
	QueueLength int  `json:"queue_length"`
	InFlight    int  `json:"in_flight"`
	IsRunning   bool `json:"is_running"`
}

// EmbeddingQueue is an in-process, priority-ordered queue of embedding tasks
// with bounded concurrency and fixed-delay retry. A single scheduling loop
// owns dispatch; the pending list and in-flight counter are the only shared
// mutable state and sit behind one mutex.
//
// Re-enqueuing the same (kind, recordID) is safe: every task re-reads current
// record state and overwrites the vector, so concurrent tasks for one record
// converge last-writer-wins. There is deliberately no per-record dedup.
type EmbeddingQueue struct {
	records  RecordStore
	vectors  VectorStore
	embedder Embedder
	logger   *logger.Logger
	opts     QueueOptions

	mu       sync.Mutex
	pending  []*domain.EmbeddingTask
	inFlight int
	running  bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEmbeddingQueue creates a stopped queue. Call Start to begin dispatching.
func NewEmbeddingQueue(records RecordStore, vectors VectorStore, embedder Embedder, log *logger.Logger, opts QueueOptions) *EmbeddingQueue {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 3
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	return &EmbeddingQueue{
		records:  records,
		vectors:  vectors,
		embedder: embedder,
		logger:   log,
		opts:     opts,
	}
}

// Enqueue adds an embedding task for a record. High priority tasks go to the
// head of the queue; Normal and Low go to the tail. Enqueue never blocks and
// always succeeds.
func (q *EmbeddingQueue) Enqueue(kind domain.TaskKind, recordID string, priority domain.TaskPriority) string {
	task := &domain.EmbeddingTask{
		ID:         uuid.New().String(),
		Kind:       kind,
		RecordID:   recordID,
		MaxRetries: q.opts.MaxRetries,
		Priority:   priority,
		CreatedAt:  time.Now(),
	}

	q.mu.Lock()
	if priority == domain.PriorityHigh {
		q.pending = append([]*domain.EmbeddingTask{task}, q.pending...)
	} else {
		q.pending = append(q.pending, task)
	}
	q.mu.Unlock()

	q.logger.WithFields(logger.Fields{
		logger.FieldTaskID:   task.ID,
		logger.FieldRecordID: recordID,
		"kind":               string(kind),
		"priority":           priority.String(),
	}).Debug("Embedding task enqueued")

	return task.ID
}

// Start launches the scheduling loop. Calling Start on a running queue is a no-op.
func (q *EmbeddingQueue) Start() {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.mu.Unlock()

	q.wg.Add(1)
	go q.loop(ctx)

	q.logger.WithFields(logger.Fields{
		"max_concurrent": q.opts.MaxConcurrent,
		"poll_interval":  q.opts.PollInterval.String(),
	}).Info("Embedding queue started")
}

// Stop halts dispatch and waits for in-flight tasks to finish. Tasks already
// dispatched run to completion; there is no cooperative cancellation inside a
// task body beyond the context handed to external calls.
func (q *EmbeddingQueue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	cancel := q.cancel
	q.mu.Unlock()

	cancel()
	q.wg.Wait()
	q.logger.Info("Embedding queue stopped")
}

// Status returns a snapshot of queue depth and in-flight work.
func (q *EmbeddingQueue) Status() QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStatus{
		QueueLength: len(q.pending),
		InFlight:    q.inFlight,
		IsRunning:   q.running,
	}
}

// Clear empties the pending queue. Tasks already in flight drain naturally.
// Test isolation only; never called in production flow.
func (q *EmbeddingQueue) Clear() {
	q.mu.Lock()
	q.pending = nil
	q.mu.Unlock()
}

// loop is the single scheduling loop. Each iteration admits up to
// maxConcurrent-inFlight tasks from the head of the queue, dispatches each on
// its own goroutine, then sleeps for the poll interval. The loop itself never
// blocks on task work.
func (q *EmbeddingQueue) loop(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()

	for {
		q.admit(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (q *EmbeddingQueue) admit(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.inFlight < q.opts.MaxConcurrent && len(q.pending) > 0 {
		task := q.pending[0]
		q.pending = q.pending[1:]
		q.inFlight++
		q.wg.Add(1)
		go q.run(ctx, task)
	}
}

func (q *EmbeddingQueue) run(ctx context.Context, task *domain.EmbeddingTask) {
	defer q.wg.Done()

	taskCtx := logger.WithFields(ctx, logger.Fields{
		logger.FieldComponent: "embedding_queue",
		logger.FieldTaskID:    task.ID,
		logger.FieldRecordID:  task.RecordID,
	})

	err := q.execute(taskCtx, task)
	if err == nil {
		q.release()
		return
	}

	if errors.Is(err, ErrEmptyContent) {
		// nothing to embed; retrying cannot help
		logger.CtxWarn(taskCtx, "Skipping record with no embeddable content: kind=%s", task.Kind)
		q.release()
		return
	}

	if task.RetryCount < task.MaxRetries {
		task.RetryCount++
		logger.CtxWarn(taskCtx, "Embedding task failed, will retry: attempt=%d/%d, error=%v",
			task.RetryCount, task.MaxRetries, err)

		// fixed-delay producer-side backoff; the task stays counted as
		// in-flight so the queue never looks drained mid-retry
		select {
		case <-time.After(q.opts.RetryDelay):
		case <-ctx.Done():
			q.release()
			return
		}

		q.mu.Lock()
		q.pending = append([]*domain.EmbeddingTask{task}, q.pending...)
		q.inFlight--
		q.mu.Unlock()
		return
	}

	logger.CtxError(taskCtx, "Embedding task dropped after %d retries: kind=%s, error=%v",
		task.MaxRetries, task.Kind, err)
	q.release()
}

func (q *EmbeddingQueue) release() {
	q.mu.Lock()
	q.inFlight--
	q.mu.Unlock()
}

// execute runs one task end to end: fetch record, fetch denormalized entity
// context, synthesize text, embed, validate, persist. The record row is only
// touched after a successful vector upsert, so a failed task never leaves a
// half-written record.
func (q *EmbeddingQueue) execute(ctx context.Context, task *domain.EmbeddingTask) error {
	var (
		fields  RecordFields
		payload *repository.RecordPayload
	)

	switch task.Kind {
	case domain.TaskKindRecommendation:
		rec, err := q.records.GetRecommendation(ctx, task.RecordID)
		if err != nil {
			return fmt.Errorf("failed to fetch recommendation: %w", err)
		}
		ec, err := q.records.FetchEntityContext(ctx, rec.PlaceID, rec.ServiceID, rec.AuthorID)
		if err != nil {
			return fmt.Errorf("failed to fetch entity context: %w", err)
		}
		fields = NormalizeRecommendation(rec, ec)
		payload = recommendationPayload(rec, ec)
	case domain.TaskKindAnnotation:
		ann, err := q.records.GetAnnotation(ctx, task.RecordID)
		if err != nil {
			return fmt.Errorf("failed to fetch annotation: %w", err)
		}
		ec, err := q.records.FetchEntityContext(ctx, ann.PlaceID, ann.ServiceID, ann.AuthorID)
		if err != nil {
			return fmt.Errorf("failed to fetch entity context: %w", err)
		}
		fields = NormalizeAnnotation(ann, ec)
		payload = annotationPayload(ann, ec)
	default:
		return fmt.Errorf("unknown task kind: %s", task.Kind)
	}

	text, err := SynthesizeRecordText(fields)
	if err != nil {
		return err
	}

	vector, err := q.embedder.Embed(ctx, text)
	if err != nil {
		return err
	}

	if !ValidateVector(vector, q.embedder.Dimensions()) {
		return fmt.Errorf("%w: got %d components for record %s", ErrInvalidVector, len(vector), task.RecordID)
	}

	pointID := RecordPointID(task.Kind, task.RecordID)
	if err := q.vectors.Upsert(ctx, pointID, vector, payload); err != nil {
		return fmt.Errorf("failed to persist vector: %w", err)
	}

	if err := q.records.MarkEmbedded(ctx, task.Kind, task.RecordID, q.embedder.Model(), time.Now()); err != nil {
		return fmt.Errorf("failed to stamp record: %w", err)
	}

	logger.CtxInfo(ctx, "Embedding persisted: kind=%s, attempts=%d", task.Kind, task.RetryCount+1)
	return nil
}

// RecordPointID derives a deterministic vector point ID from a record key, so
// re-embedding a record always overwrites its existing point.
func RecordPointID(kind domain.TaskKind, recordID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(string(kind)+":"+recordID)).String()
}

const maxSnippetRunes = 160

func snippet(text string) string {
	cleaned := normalizeWhitespace(text)
	runes := []rune(cleaned)
	if len(runes) <= maxSnippetRunes {
		return cleaned
	}
	return string(runes[:maxSnippetRunes])
}

func recommendationPayload(rec *domain.Recommendation, ec *repository.EntityContext) *repository.RecordPayload {
	p := &repository.RecordPayload{
		RecordID:    rec.ID,
		Kind:        string(domain.TaskKindRecommendation),
		ContentType: string(rec.ContentType),
		AuthorID:    rec.AuthorID,
		Visibility:  string(rec.Visibility),
		Rating:      rec.Rating,
		Labels:      rec.Labels,
		Snippet:     snippet(rec.Description),
	}
	if rec.PlaceID != nil {
		p.PlaceID = *rec.PlaceID
	}
	if rec.ServiceID != nil {
		p.ServiceID = *rec.ServiceID
	}
	if ec != nil {
		p.PlaceName = ec.PlaceName
		p.BusinessName = ec.BusinessName
	}
	return p
}

func annotationPayload(ann *domain.Annotation, ec *repository.EntityContext) *repository.RecordPayload {
	p := &repository.RecordPayload{
		RecordID:    ann.ID,
		Kind:        string(domain.TaskKindAnnotation),
		ContentType: string(ann.ContentType),
		AuthorID:    ann.AuthorID,
		Visibility:  string(ann.Visibility),
		Labels:      ann.Labels,
		Snippet:     snippet(ann.Body),
	}
	if ann.PlaceID != nil {
		p.PlaceID = *ann.PlaceID
	}
	if ann.ServiceID != nil {
		p.ServiceID = *ann.ServiceID
	}
	if ec != nil {
		p.PlaceName = ec.PlaceName
		p.BusinessName = ec.BusinessName
	}
	return p
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/perchapp/perch/internal/domain"
	"github.com/perchapp/perch/internal/logger"
	"github.com/perchapp/perch/internal/repository"
)

func testLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error", Format: "text"})
}

type fakeRecordStore struct {
	mu     sync.Mutex
	recs   map[string]*domain.Recommendation
	anns   map[string]*domain.Annotation
	marked map[string]string // "kind:id" -> model
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{
		recs:   make(map[string]*domain.Recommendation),
		anns:   make(map[string]*domain.Annotation),
		marked: make(map[string]string),
	}
}

func (f *fakeRecordStore) GetRecommendation(_ context.Context, id string) (*domain.Recommendation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[id]
	if !ok {
		return nil, fmt.Errorf("recommendation %s not found", id)
	}
	return rec, nil
}

func (f *fakeRecordStore) GetAnnotation(_ context.Context, id string) (*domain.Annotation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ann, ok := f.anns[id]
	if !ok {
		return nil, fmt.Errorf("annotation %s not found", id)
	}
	return ann, nil
}

func (f *fakeRecordStore) FetchEntityContext(_ context.Context, _, _ *string, _ string) (*repository.EntityContext, error) {
	return &repository.EntityContext{PlaceName: "Cafe Luna", AuthorName: "Nora"}, nil
}

func (f *fakeRecordStore) MarkEmbedded(_ context.Context, kind domain.TaskKind, id, model string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked[string(kind)+":"+id] = model
	return nil
}

func (f *fakeRecordStore) markedModel(kind domain.TaskKind, id string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.marked[string(kind)+":"+id]
	return m, ok
}

type fakeVectorStore struct {
	mu      sync.Mutex
	points  map[string]*repository.RecordPayload
	upserts int
	failErr error
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{points: make(map[string]*repository.RecordPayload)}
}

func (f *fakeVectorStore) Upsert(_ context.Context, pointID string, _ []float32, payload *repository.RecordPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if f.failErr != nil {
		return f.failErr
	}
	f.points[pointID] = payload
	return nil
}

func (f *fakeVectorStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upserts
}

type fakeEmbedder struct {
	mu       sync.Mutex
	calls    int
	failures int // fail the first N calls
	dims     int
	vector   []float32
}

func newFakeEmbedder(dims int) *fakeEmbedder {
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = float32(i) / float32(dims)
	}
	return &fakeEmbedder{dims: dims, vector: vec}
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("embedding backend unavailable")
	}
	return f.vector, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v, err := f.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Model() string   { return "fake-embedding-model" }
func (f *fakeEmbedder) Dimensions() int { return f.dims }

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testQueue(records RecordStore, vectors VectorStore, embedder Embedder) *EmbeddingQueue {
	return NewEmbeddingQueue(records, vectors, embedder, testLogger(), QueueOptions{
		MaxConcurrent: 2,
		MaxRetries:    2,
		RetryDelay:    5 * time.Millisecond,
		PollInterval:  5 * time.Millisecond,
	})
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestQueueEmbedsRecommendation(t *testing.T) {
	records := newFakeRecordStore()
	placeID := "p1"
	records.recs["rec-1"] = &domain.Recommendation{
		ID:          "rec-1",
		AuthorID:    "u1",
		ContentType: domain.ContentTypePlace,
		PlaceID:     &placeID,
		Title:       "Great espresso",
		Description: "Quiet in the mornings",
		Visibility:  domain.VisibilityPublic,
	}
	vectors := newFakeVectorStore()
	embedder := newFakeEmbedder(8)

	q := testQueue(records, vectors, embedder)
	q.Start()
	defer q.Stop()

	q.Enqueue(domain.TaskKindRecommendation, "rec-1", domain.PriorityNormal)

	waitFor(t, time.Second, func() bool {
		_, ok := records.markedModel(domain.TaskKindRecommendation, "rec-1")
		return ok
	})

	model, _ := records.markedModel(domain.TaskKindRecommendation, "rec-1")
	if model != "fake-embedding-model" {
		t.Errorf("record stamped with wrong model: %q", model)
	}

	pointID := RecordPointID(domain.TaskKindRecommendation, "rec-1")
	vectors.mu.Lock()
	payload, ok := vectors.points[pointID]
	vectors.mu.Unlock()
	if !ok {
		t.Fatal("vector not stored under the deterministic point ID")
	}
	if payload.RecordID != "rec-1" || payload.PlaceID != "p1" || payload.PlaceName != "Cafe Luna" {
		t.Errorf("unexpected payload: %+v", payload)
	}
}

func TestQueueRetriesTransientFailure(t *testing.T) {
	records := newFakeRecordStore()
	records.anns["ann-1"] = &domain.Annotation{
		ID:          "ann-1",
		AuthorID:    "u1",
		ContentType: domain.ContentTypeTip,
		Body:        "Park behind the building",
		Visibility:  domain.VisibilityFriends,
	}
	vectors := newFakeVectorStore()
	embedder := newFakeEmbedder(8)
	embedder.failures = 2 // first two attempts fail, third succeeds

	q := testQueue(records, vectors, embedder)
	q.Start()
	defer q.Stop()

	q.Enqueue(domain.TaskKindAnnotation, "ann-1", domain.PriorityNormal)

	waitFor(t, 2*time.Second, func() bool {
		_, ok := records.markedModel(domain.TaskKindAnnotation, "ann-1")
		return ok
	})

	if calls := embedder.callCount(); calls != 3 {
		t.Errorf("expected 3 embedding attempts, got %d", calls)
	}
}

func TestQueueDropsAfterMaxRetries(t *testing.T) {
	records := newFakeRecordStore()
	records.recs["rec-1"] = &domain.Recommendation{
		ID:          "rec-1",
		ContentType: domain.ContentTypePlace,
		Title:       "Doomed",
	}
	vectors := newFakeVectorStore()
	embedder := newFakeEmbedder(8)
	embedder.failures = 1000 // never succeeds

	q := testQueue(records, vectors, embedder)
	q.Start()
	defer q.Stop()

	q.Enqueue(domain.TaskKindRecommendation, "rec-1", domain.PriorityNormal)

	// 1 initial attempt + MaxRetries re-attempts, then the task is gone
	waitFor(t, 2*time.Second, func() bool {
		st := q.Status()
		return embedder.callCount() == 3 && st.QueueLength == 0 && st.InFlight == 0
	})

	if _, ok := records.markedModel(domain.TaskKindRecommendation, "rec-1"); ok {
		t.Error("failed record must not be stamped as embedded")
	}
	if vectors.count() != 0 {
		t.Error("failed record must not reach the vector store")
	}
}

func TestQueueEmptyContentDroppedWithoutRetry(t *testing.T) {
	records := newFakeRecordStore()
	records.recs["rec-1"] = &domain.Recommendation{
		ID:          "rec-1",
		ContentType: domain.ContentTypePlace,
		// no title, no description, nothing to embed
	}
	// entity context would still render Place/Author segments; strip it
	vectors := newFakeVectorStore()
	embedder := newFakeEmbedder(8)

	q := NewEmbeddingQueue(&emptyContextStore{fakeRecordStore: records}, vectors, embedder, testLogger(), QueueOptions{
		MaxConcurrent: 1,
		MaxRetries:    3,
		RetryDelay:    5 * time.Millisecond,
		PollInterval:  5 * time.Millisecond,
	})
	q.Start()
	defer q.Stop()

	q.Enqueue(domain.TaskKindRecommendation, "rec-1", domain.PriorityNormal)

	waitFor(t, time.Second, func() bool {
		st := q.Status()
		return st.QueueLength == 0 && st.InFlight == 0
	})

	if embedder.callCount() != 0 {
		t.Error("empty content must never reach the embedder")
	}
	if _, ok := records.markedModel(domain.TaskKindRecommendation, "rec-1"); ok {
		t.Error("empty record must not be stamped")
	}
}

type emptyContextStore struct {
	*fakeRecordStore
}

func (s *emptyContextStore) FetchEntityContext(context.Context, *string, *string, string) (*repository.EntityContext, error) {
	return &repository.EntityContext{}, nil
}

func TestQueuePriorityOrdering(t *testing.T) {
	q := testQueue(newFakeRecordStore(), newFakeVectorStore(), newFakeEmbedder(8))
	// not started; inspect the pending list directly

	q.Enqueue(domain.TaskKindRecommendation, "normal-1", domain.PriorityNormal)
	q.Enqueue(domain.TaskKindRecommendation, "low-1", domain.PriorityLow)
	q.Enqueue(domain.TaskKindRecommendation, "high-1", domain.PriorityHigh)
	q.Enqueue(domain.TaskKindRecommendation, "high-2", domain.PriorityHigh)

	q.mu.Lock()
	order := make([]string, 0, len(q.pending))
	for _, task := range q.pending {
		order = append(order, task.RecordID)
	}
	q.mu.Unlock()

	want := []string{"high-2", "high-1", "normal-1", "low-1"}
	if len(order) != len(want) {
		t.Fatalf("expected %d pending tasks, got %d", len(want), len(order))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("pending order %v, want %v", order, want)
		}
	}
}

func TestQueueStatusAndClear(t *testing.T) {
	q := testQueue(newFakeRecordStore(), newFakeVectorStore(), newFakeEmbedder(8))

	q.Enqueue(domain.TaskKindRecommendation, "r1", domain.PriorityNormal)
	q.Enqueue(domain.TaskKindRecommendation, "r2", domain.PriorityNormal)

	st := q.Status()
	if st.QueueLength != 2 || st.InFlight != 0 || st.IsRunning {
		t.Errorf("unexpected status: %+v", st)
	}

	q.Clear()
	if st := q.Status(); st.QueueLength != 0 {
		t.Errorf("Clear should empty the pending queue, got %+v", st)
	}
}

func TestQueueStartStopIdempotent(t *testing.T) {
	q := testQueue(newFakeRecordStore(), newFakeVectorStore(), newFakeEmbedder(8))

	q.Start()
	q.Start() // second Start is a no-op
	if !q.Status().IsRunning {
		t.Fatal("queue should be running")
	}

	q.Stop()
	q.Stop() // second Stop is a no-op
	if q.Status().IsRunning {
		t.Fatal("queue should be stopped")
	}
}

// Re-enqueuing the same record any number of times converges: every task
// overwrites the same vector point, so the store ends with exactly one point
// per record.
func TestQueueReembeddingConverges(t *testing.T) {
	records := newFakeRecordStore()
	records.recs["rec-1"] = &domain.Recommendation{
		ID:          "rec-1",
		ContentType: domain.ContentTypePlace,
		Title:       "Great espresso",
	}
	vectors := newFakeVectorStore()
	embedder := newFakeEmbedder(8)

	q := testQueue(records, vectors, embedder)
	q.Start()
	defer q.Stop()

	for i := 0; i < 5; i++ {
		q.Enqueue(domain.TaskKindRecommendation, "rec-1", domain.PriorityNormal)
	}

	waitFor(t, 2*time.Second, func() bool {
		return vectors.count() == 5
	})

	vectors.mu.Lock()
	points := len(vectors.points)
	vectors.mu.Unlock()
	if points != 1 {
		t.Errorf("5 tasks for one record must converge to 1 point, got %d", points)
	}
}

func TestRecordPointIDDeterministic(t *testing.T) {
	a := RecordPointID(domain.TaskKindRecommendation, "rec-1")
	b := RecordPointID(domain.TaskKindRecommendation, "rec-1")
	c := RecordPointID(domain.TaskKindAnnotation, "rec-1")

	if a != b {
		t.Errorf("same record must map to the same point ID: %s vs %s", a, b)
	}
	if a == c {
		t.Error("different kinds must map to different point IDs")
	}
}

func TestSnippetTruncation(t *testing.T) {
	long := ""
	for i := 0; i < 50; i++ {
		long += "word "
	}
	got := snippet(long)
	if len([]rune(got)) != maxSnippetRunes {
		t.Errorf("expected %d runes, got %d", maxSnippetRunes, len([]rune(got)))
	}

	if got := snippet("short text"); got != "short text" {
		t.Errorf("short text must pass through, got %q", got)
	}
}

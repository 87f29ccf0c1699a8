package service

import (
	"math"
	"math/rand"
	"testing"
)

func TestAggregateGroupsByEntity(t *testing.T) {
	hits := []SearchHit{
		{RecordID: "r1", ContentType: "place", Similarity: 0.92, PlaceID: "p1", PlaceName: "Cafe Luna", Rating: 5},
		{RecordID: "r2", ContentType: "service", Similarity: 0.71, ServiceID: "s1", BusinessName: "Bean Machine Repair"},
		{RecordID: "r3", ContentType: "place", Similarity: 0.78, PlaceID: "p1", PlaceName: "Cafe Luna", Rating: 4},
	}

	groups := Aggregate(hits, 0)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}

	top := groups[0]
	if top.GroupKey != "place:p1" || top.Type != GroupTypePlace {
		t.Fatalf("unexpected top group: %+v", top)
	}
	if top.TotalHits != 2 || len(top.Hits) != 2 {
		t.Errorf("place group should hold both place hits, got %d", top.TotalHits)
	}
	wantAvg := (0.92 + 0.78) / 2
	if math.Abs(top.AverageSimilarity-wantAvg) > 1e-9 {
		t.Errorf("average similarity %.6f, want %.6f", top.AverageSimilarity, wantAvg)
	}
	if top.EntityName != "Cafe Luna" {
		t.Errorf("entity name not carried: %q", top.EntityName)
	}

	if groups[1].GroupKey != "service:s1" || groups[1].EntityName != "Bean Machine Repair" {
		t.Errorf("unexpected second group: %+v", groups[1])
	}
}

func TestAggregateContentTypeFallback(t *testing.T) {
	hits := []SearchHit{
		{RecordID: "r1", ContentType: "tip", Similarity: 0.8},
		{RecordID: "r2", ContentType: "tip", Similarity: 0.7},
		{RecordID: "r3", ContentType: "contact", Similarity: 0.75},
	}

	groups := Aggregate(hits, 0)
	if len(groups) != 2 {
		t.Fatalf("expected 2 fallback groups, got %d", len(groups))
	}
	if groups[0].GroupKey != "type:tip" || groups[0].Type != GroupTypeContentType {
		t.Errorf("unexpected group: %+v", groups[0])
	}
	if groups[0].TotalHits != 2 {
		t.Errorf("tip hits should share one bucket, got %d", groups[0].TotalHits)
	}
}

// The running average must equal the true mean no matter what order hits
// arrive in.
func TestAggregateIncrementalMeanMatchesTrueMean(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	base := make([]SearchHit, 25)
	var sum float64
	for i := range base {
		s := rng.Float64()
		sum += s
		base[i] = SearchHit{RecordID: "r", ContentType: "place", PlaceID: "p1", Similarity: s}
	}
	trueMean := sum / float64(len(base))

	for trial := 0; trial < 20; trial++ {
		shuffled := make([]SearchHit, len(base))
		copy(shuffled, base)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		groups := Aggregate(shuffled, 0)
		if len(groups) != 1 {
			t.Fatalf("expected a single group, got %d", len(groups))
		}
		if math.Abs(groups[0].AverageSimilarity-trueMean) > 1e-9 {
			t.Fatalf("trial %d: incremental mean %.12f diverged from true mean %.12f",
				trial, groups[0].AverageSimilarity, trueMean)
		}
	}
}

func TestAggregateSortAndTruncate(t *testing.T) {
	hits := []SearchHit{
		{RecordID: "r1", PlaceID: "low", Similarity: 0.5},
		{RecordID: "r2", PlaceID: "high", Similarity: 0.9},
		{RecordID: "r3", PlaceID: "mid", Similarity: 0.7},
	}

	groups := Aggregate(hits, 2)
	if len(groups) != 2 {
		t.Fatalf("expected truncation to 2 groups, got %d", len(groups))
	}
	if groups[0].GroupKey != "place:high" || groups[1].GroupKey != "place:mid" {
		t.Errorf("groups not sorted by descending average: %s, %s",
			groups[0].GroupKey, groups[1].GroupKey)
	}
}

// Equal averages keep first-seen order, so results are stable across runs.
func TestAggregateTiedAveragesAreStable(t *testing.T) {
	hits := []SearchHit{
		{RecordID: "r1", PlaceID: "a", Similarity: 0.8},
		{RecordID: "r2", PlaceID: "b", Similarity: 0.8},
		{RecordID: "r3", PlaceID: "c", Similarity: 0.8},
	}

	for i := 0; i < 10; i++ {
		groups := Aggregate(hits, 0)
		if groups[0].GroupKey != "place:a" || groups[1].GroupKey != "place:b" || groups[2].GroupKey != "place:c" {
			t.Fatalf("tied groups reordered: %s, %s, %s",
				groups[0].GroupKey, groups[1].GroupKey, groups[2].GroupKey)
		}
	}
}

func TestAggregateEmpty(t *testing.T) {
	groups := Aggregate(nil, 10)
	if len(groups) != 0 {
		t.Errorf("expected no groups, got %d", len(groups))
	}
}

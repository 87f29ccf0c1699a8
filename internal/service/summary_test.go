package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func summaryGroups() []EntityGroup {
	return []EntityGroup{
		{
			GroupKey:          "place:p1",
			Type:              GroupTypePlace,
			EntityName:        "Cafe Luna",
			AverageSimilarity: 0.85,
			TotalHits:         2,
			Hits: []SearchHit{
				{RecordID: "r1", Rating: 5, Snippet: "Quiet in the mornings"},
				{RecordID: "r2", Rating: 4, Snippet: "Great espresso"},
			},
		},
		{
			GroupKey:          "service:s1",
			Type:              GroupTypeService,
			EntityName:        "Bean Machine Repair",
			AverageSimilarity: 0.71,
			TotalHits:         1,
			Hits:              []SearchHit{{RecordID: "r3", Snippet: "Fixed my grinder"}},
		},
	}
}

func TestFallbackSummaryNoResults(t *testing.T) {
	got := FallbackSummary("cozy coffee shop", nil)
	want := `No matching recommendations found for "cozy coffee shop".`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFallbackSummaryWithResults(t *testing.T) {
	got := FallbackSummary("cozy coffee shop", summaryGroups())

	for _, want := range []string{
		`Top match for "cozy coffee shop": Cafe Luna`,
		"2 review(s)",
		"85% match",
		"rated 5/5",
		"1 other match(es) found.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("fallback summary missing %q\ngot: %s", want, got)
		}
	}

	// deterministic: identical input, identical output
	if again := FallbackSummary("cozy coffee shop", summaryGroups()); again != got {
		t.Errorf("fallback not deterministic:\n%s\n%s", got, again)
	}
}

func TestFallbackSummaryContentTypeGroupName(t *testing.T) {
	groups := []EntityGroup{{
		GroupKey:          "type:tip",
		Type:              GroupTypeContentType,
		AverageSimilarity: 0.8,
		TotalHits:         1,
		Hits:              []SearchHit{{RecordID: "r1"}},
	}}
	got := FallbackSummary("parking", groups)
	if !strings.Contains(got, ": tip with") {
		t.Errorf("type-bucket groups should be named by content type, got %s", got)
	}
}

func TestSummaryCacheKey(t *testing.T) {
	groups := summaryGroups()

	key := SummaryCacheKey("  Cozy Coffee Shop ", groups)
	if key != "cozy coffee shop|r1,r2,r3" {
		t.Errorf("unexpected key: %q", key)
	}

	// order of hits is part of the identity
	reversed := []EntityGroup{groups[1], groups[0]}
	if SummaryCacheKey("cozy coffee shop", reversed) == key {
		t.Error("different hit order must produce a different key")
	}

	if SummaryCacheKey("query", nil) != "query|" {
		t.Errorf("unexpected empty-groups key: %q", SummaryCacheKey("query", nil))
	}
}

func TestBuildSummaryContextBounds(t *testing.T) {
	// 8 bloated groups with long snippets must be clipped to the cap
	bigSnippet := strings.Repeat("very detailed review text ", 60)
	var groups []EntityGroup
	for i := 0; i < 8; i++ {
		groups = append(groups, EntityGroup{
			GroupKey:          "place:p",
			Type:              GroupTypePlace,
			EntityName:        "Somewhere",
			AverageSimilarity: 0.8,
			TotalHits:         5,
			Hits: []SearchHit{
				{RecordID: "a", Rating: 5, Snippet: bigSnippet},
				{RecordID: "b", Rating: 4, Snippet: bigSnippet},
				{RecordID: "c", Snippet: bigSnippet},
				{RecordID: "d", Snippet: bigSnippet}, // beyond per-group hit cap
			},
		})
	}

	text := buildSummaryContext(groups)
	if !strings.HasSuffix(strings.TrimRight(text, "\n"), summaryTruncationMarker) {
		t.Error("oversized context should end with the truncation marker")
	}
	if n := len([]rune(text)); n > summaryMaxContextRunes+len([]rune(summaryTruncationMarker))+1 {
		t.Errorf("context exceeds the cap: %d runes", n)
	}
}

func TestBuildSummaryContextHitCaps(t *testing.T) {
	groups := []EntityGroup{{
		GroupKey:          "place:p1",
		Type:              GroupTypePlace,
		EntityName:        "Cafe Luna",
		AverageSimilarity: 0.9,
		TotalHits:         4,
		Hits: []SearchHit{
			{RecordID: "a", Snippet: "first"},
			{RecordID: "b", Snippet: "second"},
			{RecordID: "c", Snippet: "third"},
			{RecordID: "d", Snippet: "fourth"},
		},
	}}

	text := buildSummaryContext(groups)
	if strings.Contains(text, "fourth") {
		t.Error("hits beyond the per-group cap must not render")
	}
	if !strings.Contains(text, "third") {
		t.Error("hits inside the per-group cap must render")
	}
}

func TestSummarizeDisabledUsesFallback(t *testing.T) {
	svc := NewSummaryService(&SummaryServiceConfig{Enabled: false}, testLogger())
	got := svc.Summarize(context.Background(), "coffee", summaryGroups())
	if got != FallbackSummary("coffee", summaryGroups()) {
		t.Errorf("disabled service must use the fallback, got %q", got)
	}
}

func TestSummarizeServerErrorUsesFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	svc := NewSummaryService(&SummaryServiceConfig{
		Enabled: true,
		APIKey:  "test-key",
		Model:   "test-model",
		BaseURL: server.URL,
		Timeout: time.Second,
	}, testLogger())

	got := svc.Summarize(context.Background(), "coffee", summaryGroups())
	if got != FallbackSummary("coffee", summaryGroups()) {
		t.Errorf("server error must fall back, got %q", got)
	}
}

func TestSummarizeShortCompletionUsesFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"too short"}}]}`))
	}))
	defer server.Close()

	svc := NewSummaryService(&SummaryServiceConfig{
		Enabled: true,
		APIKey:  "test-key",
		Model:   "test-model",
		BaseURL: server.URL,
		Timeout: time.Second,
	}, testLogger())

	got := svc.Summarize(context.Background(), "coffee", summaryGroups())
	if got != FallbackSummary("coffee", summaryGroups()) {
		t.Errorf("degenerate completion must fall back, got %q", got)
	}
}

func TestSummarizeReturnsCompletion(t *testing.T) {
	completion := "Cafe Luna is the standout match: two friends rated it highly for quiet mornings and espresso."
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header: %q", auth)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"` + completion + `"}}]}`))
	}))
	defer server.Close()

	svc := NewSummaryService(&SummaryServiceConfig{
		Enabled: true,
		APIKey:  "test-key",
		Model:   "test-model",
		BaseURL: server.URL,
		Timeout: time.Second,
	}, testLogger())

	got := svc.Summarize(context.Background(), "coffee", summaryGroups())
	if got != completion {
		t.Errorf("got %q, want %q", got, completion)
	}
}

package repository

import (
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
)

func TestAboveThreshold(t *testing.T) {
	tests := []struct {
		name      string
		score     float32
		threshold float32
		want      bool
	}{
		{"above passes", 0.71, 0.7, true},
		{"exactly at threshold is excluded", 0.7, 0.7, false},
		{"below is excluded", 0.69, 0.7, false},
		{"zero threshold disables the cut", 0.01, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := aboveThreshold(tt.score, tt.threshold); got != tt.want {
				t.Errorf("aboveThreshold(%v, %v) = %v, want %v", tt.score, tt.threshold, got, tt.want)
			}
		})
	}
}

func TestBuildFilterConditions(t *testing.T) {
	contentType := "place"

	f := buildFilter(&SearchFilters{
		ContentType: &contentType,
		AuthorIDs:   []string{"u1", "u2"},
	})
	if f == nil {
		t.Fatal("expected a filter")
	}
	if len(f.Must) != 2 {
		t.Fatalf("expected 2 ANDed conditions, got %d", len(f.Must))
	}

	ct := f.Must[0].GetField()
	if ct.Key != "content_type" || ct.Match.GetKeyword() != "place" {
		t.Errorf("unexpected content_type condition: %+v", ct)
	}

	authors := f.Must[1].GetField()
	if authors.Key != "author_id" {
		t.Errorf("unexpected author condition key: %s", authors.Key)
	}
	got := authors.Match.GetKeywords().GetStrings()
	if len(got) != 2 || got[0] != "u1" || got[1] != "u2" {
		t.Errorf("unexpected author keywords: %v", got)
	}
}

func TestBuildFilterPublicOnly(t *testing.T) {
	f := buildFilter(&SearchFilters{PublicOnly: true})
	if f == nil || len(f.Must) != 1 {
		t.Fatalf("expected a single condition, got %+v", f)
	}
	vis := f.Must[0].GetField()
	if vis.Key != "visibility" || vis.Match.GetKeyword() != "public" {
		t.Errorf("unexpected visibility condition: %+v", vis)
	}
}

func TestBuildFilterEmpty(t *testing.T) {
	if f := buildFilter(&SearchFilters{}); f != nil {
		t.Errorf("no predicates should yield a nil filter, got %+v", f)
	}
}

// An AuthorIDs restriction that resolved to nobody must still produce a
// condition, so the search matches nothing instead of everything.
func TestBuildFilterEmptyAuthorSet(t *testing.T) {
	f := buildFilter(&SearchFilters{AuthorIDs: []string{}})
	if f == nil || len(f.Must) != 1 {
		t.Fatalf("expected one condition for an empty author set, got %+v", f)
	}
}

func TestParsePayload(t *testing.T) {
	raw := map[string]*pb.Value{
		"record_id":    {Kind: &pb.Value_StringValue{StringValue: "r1"}},
		"kind":         {Kind: &pb.Value_StringValue{StringValue: "recommendation"}},
		"content_type": {Kind: &pb.Value_StringValue{StringValue: "place"}},
		"author_id":    {Kind: &pb.Value_StringValue{StringValue: "u1"}},
		"visibility":   {Kind: &pb.Value_StringValue{StringValue: "public"}},
		"place_id":     {Kind: &pb.Value_StringValue{StringValue: "p1"}},
		"place_name":   {Kind: &pb.Value_StringValue{StringValue: "Cafe Luna"}},
		"rating":       {Kind: &pb.Value_IntegerValue{IntegerValue: 5}},
		"snippet":      {Kind: &pb.Value_StringValue{StringValue: "quiet mornings"}},
		"labels": {Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: []*pb.Value{
			{Kind: &pb.Value_StringValue{StringValue: "coffee"}},
			{Kind: &pb.Value_StringValue{StringValue: "quiet"}},
		}}}},
	}

	p := parsePayload(raw)
	if p == nil {
		t.Fatal("expected a payload")
	}
	if p.RecordID != "r1" || p.Kind != "recommendation" || p.ContentType != "place" {
		t.Errorf("unexpected identity fields: %+v", p)
	}
	if p.AuthorID != "u1" || p.Visibility != "public" || p.PlaceID != "p1" || p.PlaceName != "Cafe Luna" {
		t.Errorf("unexpected entity fields: %+v", p)
	}
	if p.Rating != 5 || p.Snippet != "quiet mornings" {
		t.Errorf("unexpected detail fields: %+v", p)
	}
	if len(p.Labels) != 2 || p.Labels[0] != "coffee" {
		t.Errorf("unexpected labels: %v", p.Labels)
	}
}

func TestParsePayloadNil(t *testing.T) {
	if p := parsePayload(nil); p != nil {
		t.Errorf("nil payload map should yield nil, got %+v", p)
	}
}

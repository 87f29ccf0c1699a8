package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/perchapp/perch/internal/logger"
	"github.com/perchapp/perch/internal/repository"
)

const (
	embeddingCacheTTL = 60 * time.Second
	summaryCacheTTL   = 10 * time.Minute
)

// VectorSearcher is the nearest-neighbor boundary the read path depends on.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, limit int, threshold float32, filters *repository.SearchFilters) ([]repository.VectorHit, error)
}

// SocialGraph resolves follow-sets and group memberships.
type SocialGraph interface {
	FollowedUserIDs(ctx context.Context, userID string) ([]string, error)
	GroupMemberIDs(ctx context.Context, groupIDs []string) ([]string, error)
}

// Summarizer produces the natural-language answer for a result set.
type Summarizer interface {
	Summarize(ctx context.Context, query string, groups []EntityGroup) string
	IsEnabled() bool
}

// SearchServiceConfig holds read-path configuration.
type SearchServiceConfig struct {
	ScoreThreshold float32
	DefaultLimit   int
	MaxLimit       int
}

// SearchService is the single end-to-end read path: embed the query (cached),
// run the filtered vector search, aggregate per entity, summarize.
type SearchService struct {
	embedder   Embedder
	vectors    VectorSearcher
	social     SocialGraph
	summarizer Summarizer
	stats      StatsProvider
	logger     *logger.Logger

	threshold    float32
	defaultLimit int
	maxLimit     int

	embedCache   *TTLCache[[]float32]
	summaryCache *TTLCache[string]
}

// StatsProvider supplies record counts for the stats endpoint. Optional; a
// nil provider disables stats.
type StatsProvider interface {
	CountRecommendations(ctx context.Context, embeddedOnly bool) (int64, error)
	CountAnnotations(ctx context.Context, embeddedOnly bool) (int64, error)
}

// NewSearchService creates a new search service. Both caches are owned by
// this instance and live for the process lifetime.
func NewSearchService(
	embedder Embedder,
	vectors VectorSearcher,
	social SocialGraph,
	summarizer Summarizer,
	stats StatsProvider,
	log *logger.Logger,
	cfg *SearchServiceConfig,
) *SearchService {
	threshold := float32(0.7)
	defaultLimit := 10
	maxLimit := 50
	if cfg != nil {
		if cfg.ScoreThreshold > 0 {
			threshold = cfg.ScoreThreshold
		}
		if cfg.DefaultLimit > 0 {
			defaultLimit = cfg.DefaultLimit
		}
		if cfg.MaxLimit > 0 {
			maxLimit = cfg.MaxLimit
		}
	}
	return &SearchService{
		embedder:     embedder,
		vectors:      vectors,
		social:       social,
		summarizer:   summarizer,
		stats:        stats,
		logger:       log,
		threshold:    threshold,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		embedCache:   NewTTLCache[[]float32](embeddingCacheTTL),
		summaryCache: NewTTLCache[string](summaryCacheTTL),
	}
}

// SearchRequest represents a semantic search request.
type SearchRequest struct {
	Query       string   `json:"query" binding:"required"`
	UserID      string   `json:"user_id"`
	Limit       int      `json:"limit"`
	Threshold   *float32 `json:"threshold,omitempty"`
	ContentType *string  `json:"content_type,omitempty"`
	// FollowedOnly restricts hits to records authored by users the
	// requester follows (plus the requester).
	FollowedOnly bool `json:"followed_only"`
	// GroupIDs restricts hits to records authored by members of these
	// friend groups.
	GroupIDs []string `json:"group_ids,omitempty"`
}

// SearchResponse represents the search response.
type SearchResponse struct {
	Summary     string        `json:"summary"`
	Groups      []EntityGroup `json:"groups"`
	TotalGroups int           `json:"total_groups"`
	TotalHits   int           `json:"total_hits"`
	Query       string        `json:"query"`
}

// Search runs the full read path. A query that cannot be embedded fails with
// ErrSearchUnavailable; an empty query or an empty result set short-circuits
// to the deterministic no-results summary without touching the language model.
func (s *SearchService) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return &SearchResponse{
			Summary: FallbackSummary(query, nil),
			Groups:  []EntityGroup{},
			Query:   req.Query,
		}, nil
	}

	limit := req.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	threshold := s.threshold
	if req.Threshold != nil && *req.Threshold > 0 {
		threshold = *req.Threshold
	}

	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldComponent: "search",
		logger.FieldSearchID:  uuid.New().String(),
		logger.FieldUserID:    req.UserID,
	})
	logger.CtxInfo(ctx, "Performing semantic search: query=%q, limit=%d, threshold=%.2f", query, limit, threshold)

	queryVector, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchUnavailable, err)
	}

	filters, err := s.resolveFilters(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve search filters: %w", err)
	}

	vectorHits, err := s.vectors.Search(ctx, queryVector, limit, threshold, filters)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	hits := make([]SearchHit, 0, len(vectorHits))
	for _, vh := range vectorHits {
		if vh.Payload == nil {
			continue
		}
		hits = append(hits, SearchHit{
			RecordID:     vh.Payload.RecordID,
			Kind:         vh.Payload.Kind,
			ContentType:  vh.Payload.ContentType,
			Similarity:   float64(vh.Score),
			AuthorID:     vh.Payload.AuthorID,
			PlaceID:      vh.Payload.PlaceID,
			ServiceID:    vh.Payload.ServiceID,
			PlaceName:    vh.Payload.PlaceName,
			BusinessName: vh.Payload.BusinessName,
			Rating:       vh.Payload.Rating,
			Labels:       vh.Payload.Labels,
			Snippet:      vh.Payload.Snippet,
		})
	}

	groups := Aggregate(hits, limit)

	var summary string
	if len(groups) == 0 {
		summary = FallbackSummary(query, nil)
	} else {
		summary = s.summarize(ctx, query, groups)
	}

	return &SearchResponse{
		Summary:     summary,
		Groups:      groups,
		TotalGroups: len(groups),
		TotalHits:   len(hits),
		Query:       req.Query,
	}, nil
}

// embedQuery embeds the trimmed query, consulting the short-TTL cache first
// so repeated searches skip the external call.
func (s *SearchService) embedQuery(ctx context.Context, query string) ([]float32, error) {
	cacheKey := strings.ToLower(query)
	if vec, ok := s.embedCache.Get(cacheKey); ok {
		logger.CtxDebug(ctx, "Query embedding served from cache")
		return vec, nil
	}

	vec, err := s.embedder.Embed(ctx, SynthesizeQueryText(query))
	if err != nil {
		return nil, err
	}
	if !ValidateVector(vec, s.embedder.Dimensions()) {
		return nil, ErrInvalidVector
	}

	s.embedCache.Set(cacheKey, vec)
	return vec, nil
}

// resolveFilters converts the request's social restrictions into an author-ID
// predicate. With no restriction the search covers public records only; with
// a restriction, authorship is limited to the resolved set and both
// visibility levels qualify. Follow and group restrictions combined intersect.
func (s *SearchService) resolveFilters(ctx context.Context, req *SearchRequest) (*repository.SearchFilters, error) {
	filters := &repository.SearchFilters{
		ContentType: req.ContentType,
	}

	var followSet []string
	if req.FollowedOnly {
		ids, err := s.social.FollowedUserIDs(ctx, req.UserID)
		if err != nil {
			return nil, err
		}
		followSet = append(ids, req.UserID)
	}

	var groupSet []string
	hasGroups := len(req.GroupIDs) > 0
	if hasGroups {
		ids, err := s.social.GroupMemberIDs(ctx, req.GroupIDs)
		if err != nil {
			return nil, err
		}
		groupSet = ids
	}

	// an empty resolved set still restricts (to nothing); it must not fall
	// back to a public search
	switch {
	case req.FollowedOnly && hasGroups:
		filters.AuthorIDs = intersect(followSet, groupSet)
	case req.FollowedOnly:
		filters.AuthorIDs = followSet
	case hasGroups:
		filters.AuthorIDs = groupSet
	default:
		filters.PublicOnly = true
	}

	if !filters.PublicOnly && filters.AuthorIDs == nil {
		filters.AuthorIDs = []string{}
	}

	return filters, nil
}

func (s *SearchService) summarize(ctx context.Context, query string, groups []EntityGroup) string {
	key := SummaryCacheKey(query, groups)
	if cached, ok := s.summaryCache.Get(key); ok {
		logger.CtxDebug(ctx, "Summary served from cache")
		return cached
	}

	summary := s.summarizer.Summarize(ctx, query, groups)
	s.summaryCache.Set(key, summary)
	return summary
}

func intersect(a, b []string) []string {
	inA := make(map[string]struct{}, len(a))
	for _, id := range a {
		inA[id] = struct{}{}
	}
	out := make([]string, 0, len(b))
	seen := make(map[string]struct{}, len(b))
	for _, id := range b {
		if _, ok := inA[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Stats returns embedding coverage counts for operations dashboards.
func (s *SearchService) Stats(ctx context.Context) (map[string]interface{}, error) {
	if s.stats == nil {
		return map[string]interface{}{}, nil
	}

	totalRecs, err := s.stats.CountRecommendations(ctx, false)
	if err != nil {
		return nil, err
	}
	embeddedRecs, err := s.stats.CountRecommendations(ctx, true)
	if err != nil {
		return nil, err
	}
	totalAnns, err := s.stats.CountAnnotations(ctx, false)
	if err != nil {
		return nil, err
	}
	embeddedAnns, err := s.stats.CountAnnotations(ctx, true)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"recommendations_total":    totalRecs,
		"recommendations_embedded": embeddedRecs,
		"annotations_total":        totalAnns,
		"annotations_embedded":     embeddedAnns,
		"summary_enabled":          s.summarizer != nil && s.summarizer.IsEnabled(),
	}, nil
}

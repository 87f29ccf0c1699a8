package service

import "sort"

// GroupType tells what an entity group is keyed on.
type GroupType string

const (
	GroupTypePlace       GroupType = "place"
	GroupTypeService     GroupType = "service"
	GroupTypeContentType GroupType = "content_type"
)

// SearchHit is one matching record with its similarity and the denormalized
// fields the response needs. Ephemeral; never persisted.
type SearchHit struct {
	RecordID     string   `json:"record_id"`
	Kind         string   `json:"kind"`
	ContentType  string   `json:"content_type"`
	Similarity   float64  `json:"similarity"`
	AuthorID     string   `json:"author_id"`
	PlaceID      string   `json:"place_id,omitempty"`
	ServiceID    string   `json:"service_id,omitempty"`
	PlaceName    string   `json:"place_name,omitempty"`
	BusinessName string   `json:"business_name,omitempty"`
	Rating       int      `json:"rating,omitempty"`
	Labels       []string `json:"labels,omitempty"`
	Snippet      string   `json:"snippet,omitempty"`
}

// EntityGroup collects every hit about one entity (a place, a service, or a
// content-type bucket when the hit has no entity foreign key).
type EntityGroup struct {
	GroupKey          string      `json:"group_key"`
	Type              GroupType   `json:"type"`
	EntityName        string      `json:"entity_name,omitempty"`
	Hits              []SearchHit `json:"hits"`
	AverageSimilarity float64     `json:"average_similarity"`
	TotalHits         int         `json:"total_hits"`
}

// groupKey derives the aggregation key for a hit. A place- or service-typed
// hit missing its foreign key falls back to the content-type bucket rather
// than being dropped.
func groupKey(hit *SearchHit) (string, GroupType) {
	if hit.PlaceID != "" {
		return "place:" + hit.PlaceID, GroupTypePlace
	}
	if hit.ServiceID != "" {
		return "service:" + hit.ServiceID, GroupTypeService
	}
	return "type:" + hit.ContentType, GroupTypeContentType
}

// Aggregate groups hits per entity, maintaining each group's running-average
// similarity incrementally so the average is consistent with the hits slice
// at every intermediate step. Groups come back sorted by descending average
// similarity, truncated to maxGroups (0 means unbounded).
func Aggregate(hits []SearchHit, maxGroups int) []EntityGroup {
	groups := make(map[string]*EntityGroup)
	order := make([]string, 0, len(hits))

	for _, hit := range hits {
		key, groupType := groupKey(&hit)
		g, ok := groups[key]
		if !ok {
			g = &EntityGroup{
				GroupKey:   key,
				Type:       groupType,
				EntityName: entityName(&hit, groupType),
			}
			groups[key] = g
			order = append(order, key)
		}
		// incremental mean: equivalent to the true mean in any insertion order
		g.AverageSimilarity = (g.AverageSimilarity*float64(g.TotalHits) + hit.Similarity) / float64(g.TotalHits+1)
		g.Hits = append(g.Hits, hit)
		g.TotalHits++
	}

	result := make([]EntityGroup, 0, len(order))
	for _, key := range order {
		result = append(result, *groups[key])
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].AverageSimilarity > result[j].AverageSimilarity
	})

	if maxGroups > 0 && len(result) > maxGroups {
		result = result[:maxGroups]
	}

	return result
}

func entityName(hit *SearchHit, groupType GroupType) string {
	switch groupType {
	case GroupTypePlace:
		return hit.PlaceName
	case GroupTypeService:
		return hit.BusinessName
	default:
		return hit.ContentType
	}
}

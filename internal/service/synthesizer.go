package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/perchapp/perch/internal/domain"
	"github.com/perchapp/perch/internal/repository"
)

// RecordFields is the normalized, flat view of a record used for text
// synthesis. The flexible shapes of the underlying rows (description vs.
// content_data notes, nested companions, numeric price levels) are resolved
// exactly once, in the Normalize* constructors, never at render sites.
type RecordFields struct {
	Kind        domain.TaskKind
	ContentType domain.ContentType

	Title       string
	Description string
	Labels      []string
	Companions  []string
	Rating      int
	VisitedAt   *time.Time

	PlaceName    string
	PlaceAddress string
	BusinessName string
	ServiceType  string
	AuthorName   string

	PriceLevel int // 1-4, 0 means unknown

	// Extra holds leftover content_data keys, dumped last as key/value pairs.
	Extra map[string]interface{}
}

// priceTier maps a 1-4 price level onto a label/symbol pair.
func priceTier(level int) (label, symbol string) {
	switch level {
	case 1:
		return "budget", "$"
	case 2:
		return "moderate", "$$"
	case 3:
		return "upscale", "$$$"
	case 4:
		return "luxury", "$$$$"
	default:
		return "", ""
	}
}

// consumed content_data keys; everything else lands in Extra.
var structuredContentKeys = map[string]bool{
	"notes":       true,
	"companions":  true,
	"price_level": true,
}

// NormalizeRecommendation flattens a recommendation plus its denormalized
// entity context into RecordFields.
func NormalizeRecommendation(rec *domain.Recommendation, ec *repository.EntityContext) RecordFields {
	f := RecordFields{
		Kind:        domain.TaskKindRecommendation,
		ContentType: rec.ContentType,
		Title:       strings.TrimSpace(rec.Title),
		Description: strings.TrimSpace(rec.Description),
		Labels:      dedupeStrings(rec.Labels),
		Rating:      rec.Rating,
		VisitedAt:   rec.VisitedAt,
	}
	if ec != nil {
		f.PlaceName = ec.PlaceName
		f.PlaceAddress = ec.PlaceAddress
		f.BusinessName = ec.BusinessName
		f.ServiceType = ec.ServiceType
		f.AuthorName = ec.AuthorName
	}
	applyContentData(&f, rec.ContentData)
	return f
}

// NormalizeAnnotation flattens an annotation plus entity context into RecordFields.
func NormalizeAnnotation(ann *domain.Annotation, ec *repository.EntityContext) RecordFields {
	f := RecordFields{
		Kind:        domain.TaskKindAnnotation,
		ContentType: ann.ContentType,
		Description: strings.TrimSpace(ann.Body),
		Labels:      dedupeStrings(ann.Labels),
	}
	if ec != nil {
		f.PlaceName = ec.PlaceName
		f.PlaceAddress = ec.PlaceAddress
		f.BusinessName = ec.BusinessName
		f.ServiceType = ec.ServiceType
		f.AuthorName = ec.AuthorName
	}
	applyContentData(&f, ann.ContentData)
	return f
}

func applyContentData(f *RecordFields, data domain.JSONMap) {
	if data == nil {
		return
	}

	if f.Description == "" {
		if notes, ok := data["notes"].(string); ok {
			f.Description = strings.TrimSpace(notes)
		}
	}
	if raw, ok := data["companions"].([]interface{}); ok {
		for _, c := range raw {
			if s, ok := c.(string); ok && strings.TrimSpace(s) != "" {
				f.Companions = append(f.Companions, strings.TrimSpace(s))
			}
		}
	}
	if lvl, ok := data["price_level"].(float64); ok && lvl >= 1 && lvl <= 4 {
		f.PriceLevel = int(lvl)
	}

	for k, v := range data {
		if structuredContentKeys[k] {
			continue
		}
		if f.Extra == nil {
			f.Extra = make(map[string]interface{})
		}
		f.Extra[k] = v
	}
}

// SynthesizeRecordText renders a record into one embeddable string,
// concatenating labeled segments in a fixed per-content-type order and
// skipping fields that are absent. Returns ErrEmptyContent when nothing
// renders, because an empty string must never be embedded.
func SynthesizeRecordText(f RecordFields) (string, error) {
	var segments []string
	add := func(label, value string) {
		value = normalizeWhitespace(value)
		if value != "" {
			segments = append(segments, label+": "+value)
		}
	}

	switch {
	case f.Kind == domain.TaskKindRecommendation && f.ContentType == domain.ContentTypeService:
		segments = append(segments, "Service recommendation")
		add("Business", f.BusinessName)
		add("Service type", f.ServiceType)
		add("Title", f.Title)
		add("Review", f.Description)
		addList(&segments, "Tags", f.Labels)
		addRating(&segments, f.Rating)
		addVisit(&segments, f.VisitedAt)
		add("Recommended by", f.AuthorName)
	case f.Kind == domain.TaskKindRecommendation:
		segments = append(segments, "Place recommendation")
		add("Title", f.Title)
		add("Review", f.Description)
		addList(&segments, "Tags", f.Labels)
		addList(&segments, "Visited with", f.Companions)
		addRating(&segments, f.Rating)
		addVisit(&segments, f.VisitedAt)
		add("Place", f.PlaceName)
		add("Address", f.PlaceAddress)
		add("Recommended by", f.AuthorName)
		if label, symbol := priceTier(f.PriceLevel); label != "" {
			segments = append(segments, fmt.Sprintf("Price: %s (%s)", label, symbol))
		}
	default:
		segments = append(segments, "Note ("+string(f.ContentType)+")")
		add("Content", f.Description)
		addList(&segments, "Tags", f.Labels)
		add("Place", f.PlaceName)
		add("Business", f.BusinessName)
		add("Author", f.AuthorName)
	}

	appendExtra(&segments, f.Extra)

	// a lone content-type header is not embeddable content
	if len(segments) <= 1 {
		return "", ErrEmptyContent
	}

	return strings.Join(segments, ". "), nil
}

// SynthesizeQueryText wraps a raw search query in a synthetic frame so its
// surface form statistically resembles record text and the cosine geometry
// lines up.
func SynthesizeQueryText(query string) string {
	return "Looking for: " + normalizeWhitespace(query) + ". Search query for recommendations."
}

func addList(segments *[]string, label string, items []string) {
	items = dedupeStrings(items)
	if len(items) > 0 {
		*segments = append(*segments, label+": "+strings.Join(items, ", "))
	}
}

func addRating(segments *[]string, rating int) {
	if rating >= 1 && rating <= 5 {
		*segments = append(*segments, fmt.Sprintf("Rating: %d/5", rating))
	}
}

func addVisit(segments *[]string, at *time.Time) {
	if at != nil && !at.IsZero() {
		*segments = append(*segments, "Visited: "+at.Format("January 2006"))
	}
}

// appendExtra dumps leftover key/value metadata in sorted key order so the
// rendered text is deterministic.
func appendExtra(segments *[]string, extra map[string]interface{}) {
	if len(extra) == 0 {
		return
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := normalizeWhitespace(fmt.Sprintf("%v", extra[k]))
		if v == "" || v == "<nil>" {
			continue
		}
		*segments = append(*segments, k+": "+v)
	}
}

func normalizeWhitespace(text string) string {
	if text == "" {
		return ""
	}
	return strings.Join(strings.Fields(text), " ")
}

func dedupeStrings(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	result := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}

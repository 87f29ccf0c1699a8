package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/perchapp/perch/internal/domain"
	"gorm.io/gorm"
)

// RecordRepository handles recommendation and annotation data operations.
type RecordRepository struct {
	db *gorm.DB
}

// NewRecordRepository creates a new RecordRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *RecordRepository: repository instance bound to db.
func NewRecordRepository(db *gorm.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// CreateRecommendation inserts a new recommendation record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - rec: recommendation to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *RecordRepository) CreateRecommendation(ctx context.Context, rec *domain.Recommendation) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

// CreateAnnotation inserts a new annotation record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ann: annotation to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *RecordRepository) CreateAnnotation(ctx context.Context, ann *domain.Annotation) error {
	return r.db.WithContext(ctx).Create(ann).Error
}

// GetRecommendation retrieves a recommendation by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: recommendation ID.
// Returns:
//   - *domain.Recommendation: record if found.
//   - error: non-nil if lookup fails.
func (r *RecordRepository) GetRecommendation(ctx context.Context, id string) (*domain.Recommendation, error) {
	var rec domain.Recommendation
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetAnnotation retrieves an annotation by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: annotation ID.
// Returns:
//   - *domain.Annotation: record if found.
//   - error: non-nil if lookup fails.
func (r *RecordRepository) GetAnnotation(ctx context.Context, id string) (*domain.Annotation, error) {
	var ann domain.Annotation
	if err := r.db.WithContext(ctx).First(&ann, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &ann, nil
}

// MarkEmbedded stamps a record's embedding bookkeeping after a successful
// vector persist. It never touches any other column, so a failed embedding
// task leaves the row exactly as the write path created it.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - kind: record kind (recommendation or annotation).
//   - id: record ID.
//   - model: embedding model identifier.
//   - at: embedding completion time.
// Returns:
//   - error: non-nil if the update fails.
func (r *RecordRepository) MarkEmbedded(ctx context.Context, kind domain.TaskKind, id, model string, at time.Time) error {
	updates := map[string]interface{}{
		"embedded_at":     at,
		"embedding_model": model,
		"updated_at":      at,
	}
	switch kind {
	case domain.TaskKindRecommendation:
		return r.db.WithContext(ctx).Model(&domain.Recommendation{}).Where("id = ?", id).Updates(updates).Error
	case domain.TaskKindAnnotation:
		return r.db.WithContext(ctx).Model(&domain.Annotation{}).Where("id = ?", id).Updates(updates).Error
	default:
		return fmt.Errorf("unknown record kind: %s", kind)
	}
}

// EntityContext holds denormalized place/service/author fields used when
// synthesizing embedding text.
type EntityContext struct {
	PlaceName    string
	PlaceAddress string
	BusinessName string
	ServiceType  string
	AuthorName   string
}

// FetchEntityContext loads denormalized context for a record's foreign keys.
// Missing rows are not errors; the corresponding fields stay empty.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - placeID: optional place foreign key.
//   - serviceID: optional service provider foreign key.
//   - authorID: record author ID.
// Returns:
//   - *EntityContext: resolved context fields (possibly partially empty).
//   - error: non-nil only on a real query failure.
func (r *RecordRepository) FetchEntityContext(ctx context.Context, placeID, serviceID *string, authorID string) (*EntityContext, error) {
	ec := &EntityContext{}

	if placeID != nil && *placeID != "" {
		var place domain.Place
		err := r.db.WithContext(ctx).First(&place, "id = ?", *placeID).Error
		if err == nil {
			ec.PlaceName = place.Name
			ec.PlaceAddress = place.Address
		} else if err != gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("failed to fetch place %s: %w", *placeID, err)
		}
	}

	if serviceID != nil && *serviceID != "" {
		var svc domain.ServiceProvider
		err := r.db.WithContext(ctx).First(&svc, "id = ?", *serviceID).Error
		if err == nil {
			ec.BusinessName = svc.BusinessName
			ec.ServiceType = svc.ServiceType
		} else if err != gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("failed to fetch service provider %s: %w", *serviceID, err)
		}
	}

	if authorID != "" {
		var user domain.User
		err := r.db.WithContext(ctx).First(&user, "id = ?", authorID).Error
		if err == nil {
			ec.AuthorName = user.DisplayName
		} else if err != gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("failed to fetch user %s: %w", authorID, err)
		}
	}

	return ec, nil
}

// ListUnembeddedRecommendationIDs lists recommendation IDs without a vector.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum IDs to return; 0 means no limit.
// Returns:
//   - []string: matching record IDs.
//   - error: non-nil if the query fails.
func (r *RecordRepository) ListUnembeddedRecommendationIDs(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	q := r.db.WithContext(ctx).Model(&domain.Recommendation{}).Where("embedded_at IS NULL")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// ListAllRecommendationIDs lists every recommendation ID, for bulk regeneration.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - []string: all recommendation IDs.
//   - error: non-nil if the query fails.
func (r *RecordRepository) ListAllRecommendationIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&domain.Recommendation{}).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// ListUnembeddedAnnotationIDs lists annotation IDs without a vector.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum IDs to return; 0 means no limit.
// Returns:
//   - []string: matching record IDs.
//   - error: non-nil if the query fails.
func (r *RecordRepository) ListUnembeddedAnnotationIDs(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	q := r.db.WithContext(ctx).Model(&domain.Annotation{}).Where("embedded_at IS NULL")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// CountRecommendations counts recommendations, optionally only embedded ones.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - embeddedOnly: restrict to records with a persisted vector.
// Returns:
//   - int64: number of matching records.
//   - error: non-nil if the query fails.
func (r *RecordRepository) CountRecommendations(ctx context.Context, embeddedOnly bool) (int64, error) {
	var count int64
	q := r.db.WithContext(ctx).Model(&domain.Recommendation{})
	if embeddedOnly {
		q = q.Where("embedded_at IS NOT NULL")
	}
	if err := q.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CountAnnotations counts annotations, optionally only embedded ones.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - embeddedOnly: restrict to records with a persisted vector.
// Returns:
//   - int64: number of matching records.
//   - error: non-nil if the query fails.
func (r *RecordRepository) CountAnnotations(ctx context.Context, embeddedOnly bool) (int64, error) {
	var count int64
	q := r.db.WithContext(ctx).Model(&domain.Annotation{})
	if embeddedOnly {
		q = q.Where("embedded_at IS NOT NULL")
	}
	if err := q.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

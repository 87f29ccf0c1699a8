package repository

import (
	"context"

	"github.com/perchapp/perch/internal/domain"
	"gorm.io/gorm"
)

// SocialRepository exposes the social graph at the boundary this subsystem
// needs: who a user follows and who belongs to which friend group.
type SocialRepository struct {
	db *gorm.DB
}

// NewSocialRepository creates a new SocialRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *SocialRepository: repository instance bound to db.
func NewSocialRepository(db *gorm.DB) *SocialRepository {
	return &SocialRepository{db: db}
}

// FollowedUserIDs returns the IDs of every user the given user follows.
// The requesting user themself is not included; callers add it when the
// search should cover the user's own records.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: follower whose follow-set is wanted.
// Returns:
//   - []string: followee user IDs.
//   - error: non-nil if the query fails.
func (r *SocialRepository) FollowedUserIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).
		Model(&domain.Follow{}).
		Where("follower_id = ?", userID).
		Pluck("followee_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// GroupMemberIDs returns the union of member IDs across the given friend groups.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - groupIDs: friend group IDs to resolve.
// Returns:
//   - []string: distinct member user IDs.
//   - error: non-nil if the query fails.
func (r *SocialRepository) GroupMemberIDs(ctx context.Context, groupIDs []string) ([]string, error) {
	if len(groupIDs) == 0 {
		return []string{}, nil
	}
	var ids []string
	if err := r.db.WithContext(ctx).
		Model(&domain.FriendGroupMember{}).
		Where("group_id IN ?", groupIDs).
		Distinct("user_id").
		Pluck("user_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

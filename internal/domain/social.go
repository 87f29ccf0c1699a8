package domain

import "time"

// Follow is a directed edge in the social graph.
type Follow struct {
	FollowerID string    `gorm:"type:text;primaryKey" json:"follower_id"`
	FolloweeID string    `gorm:"type:text;primaryKey" json:"followee_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for Follow.
func (Follow) TableName() string {
	return "follows"
}

// FriendGroup is a named set of users a search can be restricted to.
type FriendGroup struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	OwnerID   string    `gorm:"type:text;not null;index:idx_friend_groups_owner" json:"owner_id"`
	Name      string    `gorm:"type:text;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for FriendGroup.
func (FriendGroup) TableName() string {
	return "friend_groups"
}

// FriendGroupMember links a user into a friend group.
type FriendGroupMember struct {
	GroupID   string    `gorm:"type:text;primaryKey" json:"group_id"`
	UserID    string    `gorm:"type:text;primaryKey;index:idx_friend_group_members_user" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for FriendGroupMember.
func (FriendGroupMember) TableName() string {
	return "friend_group_members"
}

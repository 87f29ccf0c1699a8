package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// ContentType classifies what a record is about.
type ContentType string

const (
	ContentTypePlace   ContentType = "place"
	ContentTypeService ContentType = "service"
	ContentTypeTip     ContentType = "tip"
	ContentTypeContact ContentType = "contact"
	ContentTypeUnclear ContentType = "unclear"
)

// Visibility controls who can see a record.
type Visibility string

const (
	VisibilityFriends Visibility = "friends"
	VisibilityPublic  Visibility = "public"
)

// StringArray is a custom type for storing string arrays as JSON in the database.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringArray")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// JSONMap stores free-form structured content as JSON in the database.
type JSONMap map[string]interface{}

// Value implements the driver.Valuer interface for database serialization.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan JSONMap")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, m)
}

// Recommendation is a user-authored review of a place or service.
// The embedding for a recommendation lives in the vector store; EmbeddedAt
// records when it was last written and is only stamped after a successful
// vector persist.
type Recommendation struct {
	ID          string      `gorm:"type:text;primaryKey" json:"id"`
	AuthorID    string      `gorm:"type:text;not null;index:idx_recommendations_author" json:"author_id"`
	ContentType ContentType `gorm:"type:text;not null;index:idx_recommendations_type" json:"content_type"`
	PlaceID     *string     `gorm:"type:text;index:idx_recommendations_place" json:"place_id,omitempty"`
	ServiceID   *string     `gorm:"type:text;index:idx_recommendations_service" json:"service_id,omitempty"`
	Title       string      `gorm:"type:text" json:"title,omitempty"`
	Description string      `gorm:"type:text" json:"description"`
	ContentData JSONMap     `gorm:"type:text" json:"content_data"`
	Rating      int         `json:"rating"`
	Visibility  Visibility  `gorm:"type:text;default:friends;index:idx_recommendations_visibility" json:"visibility"`
	Labels      StringArray `gorm:"type:text" json:"labels"`
	VisitedAt   *time.Time  `json:"visited_at,omitempty"`

	EmbeddedAt     *time.Time `json:"embedded_at,omitempty"`
	EmbeddingModel string     `gorm:"type:text" json:"embedding_model,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Recommendation.
func (Recommendation) TableName() string {
	return "recommendations"
}

// Annotation is a lighter-weight note, question, or answer attached to a
// place, a service, or nothing at all.
type Annotation struct {
	ID          string      `gorm:"type:text;primaryKey" json:"id"`
	AuthorID    string      `gorm:"type:text;not null;index:idx_annotations_author" json:"author_id"`
	ContentType ContentType `gorm:"type:text;not null" json:"content_type"`
	PlaceID     *string     `gorm:"type:text;index:idx_annotations_place" json:"place_id,omitempty"`
	ServiceID   *string     `gorm:"type:text;index:idx_annotations_service" json:"service_id,omitempty"`
	Body        string      `gorm:"type:text" json:"body"`
	ContentData JSONMap     `gorm:"type:text" json:"content_data"`
	Visibility  Visibility  `gorm:"type:text;default:friends" json:"visibility"`
	Labels      StringArray `gorm:"type:text" json:"labels"`

	EmbeddedAt     *time.Time `json:"embedded_at,omitempty"`
	EmbeddingModel string     `gorm:"type:text" json:"embedding_model,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Annotation.
func (Annotation) TableName() string {
	return "annotations"
}

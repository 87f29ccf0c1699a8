package domain

import "time"

// Place is a physical location users recommend.
type Place struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	Name      string    `gorm:"type:text;not null" json:"name"`
	Address   string    `gorm:"type:text" json:"address"`
	City      string    `gorm:"type:text;index:idx_places_city" json:"city"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Place.
func (Place) TableName() string {
	return "places"
}

// ServiceProvider is a business identity (plumber, dentist, ...) that
// recommendations can point at. Identity resolution (phone/email/name
// matching) happens upstream; this system only reads resolved rows.
type ServiceProvider struct {
	ID           string    `gorm:"type:text;primaryKey" json:"id"`
	BusinessName string    `gorm:"type:text;not null" json:"business_name"`
	ServiceType  string    `gorm:"type:text;index:idx_service_providers_type" json:"service_type"`
	Phone        string    `gorm:"type:text" json:"phone,omitempty"`
	Email        string    `gorm:"type:text" json:"email,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for ServiceProvider.
func (ServiceProvider) TableName() string {
	return "service_providers"
}

// User is the minimal author identity this subsystem needs.
type User struct {
	ID          string    `gorm:"type:text;primaryKey" json:"id"`
	DisplayName string    `gorm:"type:text" json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string {
	return "users"
}

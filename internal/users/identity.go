package users

import (
	"strings"
	"time"
)

// User is the canonical PlanTrip account. Trips reference User.ID.
type User struct {
	ID          string    `gorm:"column:id;primaryKey;size:190"`
	Email       string    `gorm:"column:email;size:320;not null;default:''"`
	DisplayName string    `gorm:"column:display_name;size:320;not null;default:''"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null"`
}

// TableName exposes the table backing user accounts.
func (User) TableName() string {
	return "users"
}

// Identity maps a provider-specific login onto a canonical user id.
type Identity struct {
	Provider  string    `gorm:"column:provider;primaryKey;size:32;not null"`
	Subject   string    `gorm:"column:subject;primaryKey;size:190;not null"`
	UserID    string    `gorm:"column:user_id;size:190;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName exposes the table backing user identities.
func (Identity) TableName() string {
	return "user_identities"
}

// Models lists every entity owned by this package.
func Models() []any {
	return []any{&User{}, &Identity{}}
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}

package orgs

import (
	"fmt"
	"strings"
	"time"
)

// Role is a member's permission level inside an organization.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleDesigner Role = "designer"
)

// ParseRole validates raw input. An empty value yields designer.
func ParseRole(raw string) (Role, error) {
	switch role := Role(strings.ToLower(strings.TrimSpace(raw))); role {
	case "":
		return RoleDesigner, nil
	case RoleAdmin, RoleDesigner:
		return role, nil
	default:
		return "", fmt.Errorf("unknown role %q", raw)
	}
}

// Organization groups users that collaborate on trips.
type Organization struct {
	ID        string    `gorm:"column:id;primaryKey;size:36"`
	Name      string    `gorm:"column:name;size:200;not null"`
	Slug      string    `gorm:"column:slug;size:100;not null;uniqueIndex"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Organization) TableName() string {
	return "organizations"
}

// Member binds a user to an organization with a role.
type Member struct {
	ID             string    `gorm:"column:id;primaryKey;size:36"`
	OrganizationID string    `gorm:"column:organization_id;size:36;not null;uniqueIndex:uq_org_member,priority:1"`
	UserID         string    `gorm:"column:user_id;size:190;not null;uniqueIndex:uq_org_member,priority:2;index:idx_org_members_user_id"`
	Role           Role      `gorm:"column:role;size:20;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Member) TableName() string {
	return "organization_members"
}

// Models lists every entity owned by this package.
func Models() []any {
	return []any{&Organization{}, &Member{}}
}

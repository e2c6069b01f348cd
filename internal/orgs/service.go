package orgs

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MarcoPoloResearchLab/plantrip/internal/apperr"
	"github.com/MarcoPoloResearchLab/plantrip/internal/itinerary"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew         = "orgs.service.new"
	opCreateOrganization = "orgs.create_organization"
	opAddMember          = "orgs.add_member"
	opChangeRole         = "orgs.change_role"
	opRemoveMember       = "orgs.remove_member"
	reasonOrgNotFound    = "organization_not_found"
	reasonMemberNotFound = "member_not_found"

	maxNameLength = 200
	maxSlugLength = 50
	slugAttempts  = 5
)

// ServiceConfig wires the organization service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider itinerary.IDProvider
	Logger     *zap.Logger
}

// Service manages organizations and memberships.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider itinerary.IDProvider
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperr.Internal(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, apperr.Internal(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, clock: clock, idProvider: cfg.IDProvider, logger: logger}, nil
}

// CreateOrganization creates an organization with userID as its first admin.
// A user belongs to at most one organization.
func (s *Service) CreateOrganization(ctx context.Context, userID, name string) (Organization, Member, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return Organization{}, Member{}, apperr.Validation(opCreateOrganization, "invalid_name", "name must be 1 to 200 characters")
	}

	now := s.clock().UTC()
	var (
		organization Organization
		member       Member
	)
	err := s.transact(ctx, opCreateOrganization, func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&Member{}).Where("user_id = ?", userID).Count(&existing).Error; err != nil {
			return s.storageError(opCreateOrganization, "member_select_failed", err, zap.String("user_id", userID))
		}
		if existing > 0 {
			return apperr.Conflict(opCreateOrganization, "already_member", "user already belongs to an organization")
		}

		slug, err := s.uniqueSlug(tx, slugify(name))
		if err != nil {
			return err
		}
		orgID, err := s.idProvider.NewID()
		if err != nil {
			return s.storageError(opCreateOrganization, "id_generation_failed", err)
		}
		memberID, err := s.idProvider.NewID()
		if err != nil {
			return s.storageError(opCreateOrganization, "id_generation_failed", err)
		}

		organization = Organization{ID: orgID, Name: name, Slug: slug, CreatedAt: now, UpdatedAt: now}
		if err := tx.Create(&organization).Error; err != nil {
			return s.storageError(opCreateOrganization, "organization_insert_failed", err)
		}
		member = Member{ID: memberID, OrganizationID: orgID, UserID: userID, Role: RoleAdmin, CreatedAt: now}
		if err := tx.Create(&member).Error; err != nil {
			return s.storageError(opCreateOrganization, "member_insert_failed", err, zap.String("organization_id", orgID))
		}
		return nil
	})
	if err != nil {
		return Organization{}, Member{}, err
	}
	return organization, member, nil
}

// AddMember enrolls userID into organizationID. Only admins may add members.
func (s *Service) AddMember(ctx context.Context, actorID, organizationID, userID, rawRole string) (Member, error) {
	role, err := ParseRole(rawRole)
	if err != nil {
		return Member{}, apperr.Validation(opAddMember, "invalid_role", "role must be admin or designer")
	}
	if strings.TrimSpace(userID) == "" {
		return Member{}, apperr.Validation(opAddMember, "missing_user", "user id is required")
	}

	var member Member
	err = s.transact(ctx, opAddMember, func(tx *gorm.DB) error {
		if _, err := s.requireAdmin(tx, opAddMember, actorID, organizationID); err != nil {
			return err
		}
		var existing int64
		if err := tx.Model(&Member{}).Where("user_id = ?", userID).Count(&existing).Error; err != nil {
			return s.storageError(opAddMember, "member_select_failed", err, zap.String("user_id", userID))
		}
		if existing > 0 {
			return apperr.Conflict(opAddMember, "already_member", "user already belongs to an organization")
		}
		id, err := s.idProvider.NewID()
		if err != nil {
			return s.storageError(opAddMember, "id_generation_failed", err)
		}
		member = Member{ID: id, OrganizationID: organizationID, UserID: userID, Role: role, CreatedAt: s.clock().UTC()}
		if err := tx.Create(&member).Error; err != nil {
			return s.storageError(opAddMember, "member_insert_failed", err, zap.String("organization_id", organizationID))
		}
		return nil
	})
	if err != nil {
		return Member{}, err
	}
	return member, nil
}

// ChangeRole sets the role of userID. Demoting the last admin is a conflict.
func (s *Service) ChangeRole(ctx context.Context, actorID, organizationID, userID, rawRole string) (Member, error) {
	role, err := ParseRole(rawRole)
	if err != nil || strings.TrimSpace(rawRole) == "" {
		return Member{}, apperr.Validation(opChangeRole, "invalid_role", "role must be admin or designer")
	}

	var target Member
	err = s.transact(ctx, opChangeRole, func(tx *gorm.DB) error {
		if _, err := s.requireAdmin(tx, opChangeRole, actorID, organizationID); err != nil {
			return err
		}
		found, err := s.member(tx, opChangeRole, organizationID, userID)
		if err != nil {
			return err
		}
		target = found
		if target.Role == RoleAdmin && role != RoleAdmin {
			if err := s.guardLastAdmin(tx, opChangeRole, organizationID, "cannot demote the last admin"); err != nil {
				return err
			}
		}
		if target.Role == role {
			return nil
		}
		if err := tx.Model(&Member{}).Where("id = ?", target.ID).Update("role", role).Error; err != nil {
			return s.storageError(opChangeRole, "member_update_failed", err, zap.String("member_id", target.ID))
		}
		target.Role = role
		return nil
	})
	if err != nil {
		return Member{}, err
	}
	return target, nil
}

// RemoveMember removes userID from the organization. Admins may remove anyone
// and members may remove themselves; the last admin cannot leave.
func (s *Service) RemoveMember(ctx context.Context, actorID, organizationID, userID string) error {
	return s.transact(ctx, opRemoveMember, func(tx *gorm.DB) error {
		actor, err := s.member(tx, opRemoveMember, organizationID, actorID)
		if apperr.Is(err, apperr.KindNotFound) {
			return apperr.NotFound(opRemoveMember, reasonOrgNotFound)
		}
		if err != nil {
			return err
		}
		if actorID != userID && actor.Role != RoleAdmin {
			return apperr.NotFound(opRemoveMember, reasonMemberNotFound)
		}
		target, err := s.member(tx, opRemoveMember, organizationID, userID)
		if err != nil {
			return err
		}
		if target.Role == RoleAdmin {
			if err := s.guardLastAdmin(tx, opRemoveMember, organizationID, "cannot remove the last admin"); err != nil {
				return err
			}
		}
		if err := tx.Where("id = ?", target.ID).Delete(&Member{}).Error; err != nil {
			return s.storageError(opRemoveMember, "member_delete_failed", err, zap.String("member_id", target.ID))
		}
		return nil
	})
}

// IsMember reports whether userID belongs to organizationID.
func (s *Service) IsMember(_ context.Context, tx *gorm.DB, userID, organizationID string) (bool, error) {
	var count int64
	err := tx.Model(&Member{}).
		Where("organization_id = ? AND user_id = ?", organizationID, userID).
		Count(&count).Error
	return count > 0, err
}

// AdminPolicy grants organization admins access to every trip of their
// organization.
var AdminPolicy itinerary.AccessPolicy = itinerary.AccessPolicyFunc(func(_ context.Context, tx *gorm.DB, userID string, trip itinerary.Trip) (bool, error) {
	if userID == "" || trip.OrganizationID == nil {
		return false, nil
	}
	var count int64
	err := tx.Model(&Member{}).
		Where("organization_id = ? AND user_id = ? AND role = ?", *trip.OrganizationID, userID, RoleAdmin).
		Count(&count).Error
	return count > 0, err
})

// guardLastAdmin locks the organization's admin rows and fails when only one
// remains. The lock makes concurrent demotions observe each other.
func (s *Service) guardLastAdmin(tx *gorm.DB, operation, organizationID, message string) error {
	var admins []Member
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("organization_id = ? AND role = ?", organizationID, RoleAdmin).
		Find(&admins).Error
	if err != nil {
		return s.storageError(operation, "admin_select_failed", err, zap.String("organization_id", organizationID))
	}
	if len(admins) <= 1 {
		return apperr.Conflict(operation, "last_admin", message)
	}
	return nil
}

func (s *Service) requireAdmin(tx *gorm.DB, operation, actorID, organizationID string) (Member, error) {
	actor, err := s.member(tx, operation, organizationID, actorID)
	if err != nil || actor.Role != RoleAdmin {
		if err != nil && !apperr.Is(err, apperr.KindNotFound) {
			return Member{}, err
		}
		return Member{}, apperr.NotFound(operation, reasonOrgNotFound)
	}
	return actor, nil
}

func (s *Service) member(tx *gorm.DB, operation, organizationID, userID string) (Member, error) {
	var member Member
	err := tx.Where("organization_id = ? AND user_id = ?", organizationID, userID).Take(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Member{}, apperr.NotFound(operation, reasonMemberNotFound)
	}
	if err != nil {
		return Member{}, s.storageError(operation, "member_select_failed", err, zap.String("organization_id", organizationID))
	}
	return member, nil
}

func (s *Service) uniqueSlug(tx *gorm.DB, base string) (string, error) {
	slug := base
	for attempt := 0; attempt < slugAttempts; attempt++ {
		var count int64
		if err := tx.Model(&Organization{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
			return "", s.storageError(opCreateOrganization, "slug_select_failed", err)
		}
		if count == 0 {
			return slug, nil
		}
		suffix := make([]byte, 3)
		if _, err := rand.Read(suffix); err != nil {
			return "", s.storageError(opCreateOrganization, "slug_generation_failed", err)
		}
		slug = truncateSlug(base, maxSlugLength-7) + "-" + hex.EncodeToString(suffix)
	}
	return "", apperr.Conflict(opCreateOrganization, "slug_exhausted", "could not allocate an organization slug")
}

// slugify lowercases name and collapses every run of non-alphanumerics to a
// single hyphen.
func slugify(name string) string {
	var builder strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(name) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pendingHyphen && builder.Len() > 0 {
				builder.WriteByte('-')
			}
			pendingHyphen = false
			builder.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	slug := truncateSlug(builder.String(), maxSlugLength)
	if slug == "" {
		return "org"
	}
	return slug
}

func truncateSlug(slug string, limit int) string {
	if len(slug) > limit {
		slug = slug[:limit]
	}
	return strings.Trim(slug, "-")
}

func (s *Service) transact(ctx context.Context, operation string, fn func(tx *gorm.DB) error) error {
	err := s.db.WithContext(ctx).Transaction(fn)
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	s.logError(operation, "transaction_failed", err)
	return apperr.Internal(operation, "transaction_failed", err)
}

func (s *Service) storageError(operation, reason string, err error, fields ...zap.Field) error {
	s.logError(operation, reason, err, fields...)
	return apperr.Internal(operation, reason, err)
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("organization service error", attrs...)
}

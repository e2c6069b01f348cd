package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MarcoPoloResearchLab/plantrip/internal/auth"
)

// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
var ErrInvalidIdentity = errors.New("users: invalid identity")

const defaultProvider = "default"

// ServiceConfig describes the dependencies required for user resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service resolves authenticated subjects to canonical user records.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	cache sync.Map
}

type cachedUser struct {
	userID      string
	email       string
	displayName string
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, now: clock}, nil
}

// ResolveUserID returns the canonical user id for claims. The user record is
// created on first sight; email and display name follow the latest claims.
func (s *Service) ResolveUserID(ctx context.Context, claims auth.Claims) (string, error) {
	provider, subject := deriveProviderSubject(claims)
	if subject == "" {
		return "", ErrInvalidIdentity
	}
	email := normalize(claims.UserEmail)
	displayName := normalize(claims.UserDisplayName)

	cacheKey := provider + ":" + subject
	if cached, ok := s.cache.Load(cacheKey); ok {
		if entry, ok := cached.(cachedUser); ok && entry.email == email && entry.displayName == displayName {
			return entry.userID, nil
		}
	}

	now := s.now().UTC()
	var userID string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var identity Identity
		err := tx.Where("provider = ? AND subject = ?", provider, subject).Take(&identity).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			identity = Identity{Provider: provider, Subject: subject, UserID: subject, CreatedAt: now}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&identity).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		userID = identity.UserID

		var user User
		err = tx.Where("id = ?", userID).Take(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			user = User{ID: userID, Email: email, DisplayName: displayName, LastSeenAt: now, CreatedAt: now, UpdatedAt: now}
			return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&user).Error
		}
		if err != nil {
			return err
		}

		updates := map[string]interface{}{"last_seen_at": now}
		if email != "" && email != user.Email {
			updates["email"] = email
			updates["updated_at"] = now
		}
		if displayName != "" && displayName != user.DisplayName {
			updates["display_name"] = displayName
			updates["updated_at"] = now
		}
		return tx.Model(&User{}).Where("id = ?", userID).UpdateColumns(updates).Error
	})
	if err != nil {
		return "", err
	}

	s.cache.Store(cacheKey, cachedUser{userID: userID, email: email, displayName: displayName})
	return userID, nil
}

// EmailFor returns the stored email of userID, or "" when none is known.
func (s *Service) EmailFor(ctx context.Context, userID string) (string, error) {
	var user User
	err := s.db.WithContext(ctx).Select("email").Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return user.Email, nil
}

// deriveProviderSubject splits "provider:subject" user ids. Tokens without a
// provider prefix use the default provider.
func deriveProviderSubject(claims auth.Claims) (string, string) {
	provider := defaultProvider
	subject := normalize(claims.Subject)

	raw := normalize(claims.UserID)
	if raw != "" {
		if strings.Contains(raw, ":") {
			segments := strings.SplitN(raw, ":", 2)
			if normalize(segments[0]) != "" && normalize(segments[1]) != "" {
				provider = normalize(segments[0])
				subject = normalize(segments[1])
			}
		} else if subject == "" {
			subject = raw
		}
	}

	if subject == "" {
		subject = normalize(claims.UserEmail)
	}
	return provider, subject
}

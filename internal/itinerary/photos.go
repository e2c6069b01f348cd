package itinerary

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/plantrip/internal/apperr"
)

const refreshPhotoLimit = 5

// PhotoInput is one photo to attach to an activity.
type PhotoInput struct {
	URL              string
	ThumbnailURL     string
	Attribution      string
	PhotographerName string
	PhotographerURL  string
	Source           string
	Width            *int
	Height           *int
}

// PhotoSource finds photos for a free-text query.
type PhotoSource interface {
	SearchPhotos(ctx context.Context, query string, limit int) ([]PhotoInput, error)
}

// ReplacePhotos swaps the activity's photos for photos, indexed 0..n-1.
func (s *Service) ReplacePhotos(ctx context.Context, userID, activityID string, photos []PhotoInput) (ActivityWithPhotos, error) {
	for _, photo := range photos {
		if strings.TrimSpace(photo.URL) == "" {
			return ActivityWithPhotos{}, apperr.Validation(opReplacePhotos, "missing_url", "every photo needs a url")
		}
	}
	var result ActivityWithPhotos
	err := s.transact(ctx, opReplacePhotos, func(tx *gorm.DB) error {
		activity, _, _, err := s.manageableActivity(ctx, tx, opReplacePhotos, userID, activityID, true)
		if err != nil {
			return err
		}
		result, err = s.replacePhotos(tx, opReplacePhotos, activity, photos)
		return err
	})
	if err != nil {
		return ActivityWithPhotos{}, err
	}
	return result, nil
}

// RefreshPhotos searches the photo source for the activity and replaces its
// photos with the results. The search runs before the transaction opens.
func (s *Service) RefreshPhotos(ctx context.Context, userID, activityID string) (ActivityWithPhotos, error) {
	if s.photos == nil {
		return ActivityWithPhotos{}, apperr.New(apperr.KindUnavailable, opRefreshPhotos, "not_configured", nil).
			WithMessage("photo search is not configured")
	}

	var query string
	err := s.transact(ctx, opRefreshPhotos, func(tx *gorm.DB) error {
		activity, stop, _, err := s.manageableActivity(ctx, tx, opRefreshPhotos, userID, activityID, false)
		if err != nil {
			return err
		}
		query = strings.TrimSpace(activity.Title + " " + stop.Name)
		return nil
	})
	if err != nil {
		return ActivityWithPhotos{}, err
	}

	found, err := s.photos.SearchPhotos(ctx, query, refreshPhotoLimit)
	if err != nil {
		return ActivityWithPhotos{}, err
	}

	var result ActivityWithPhotos
	err = s.transact(ctx, opRefreshPhotos, func(tx *gorm.DB) error {
		activity, _, _, err := s.manageableActivity(ctx, tx, opRefreshPhotos, userID, activityID, true)
		if err != nil {
			return err
		}
		result, err = s.replacePhotos(tx, opRefreshPhotos, activity, found)
		return err
	})
	if err != nil {
		return ActivityWithPhotos{}, err
	}
	return result, nil
}

func (s *Service) replacePhotos(tx *gorm.DB, operation string, activity Activity, inputs []PhotoInput) (ActivityWithPhotos, error) {
	if err := tx.Where("activity_id = ?", activity.ID).Delete(&Photo{}).Error; err != nil {
		return ActivityWithPhotos{}, s.storageError(operation, "photo_delete_failed", err, zap.String("activity_id", activity.ID))
	}
	now := s.now()
	photos := make([]Photo, 0, len(inputs))
	for index, input := range inputs {
		photoID, err := s.idProvider.NewID()
		if err != nil {
			return ActivityWithPhotos{}, s.storageError(operation, "id_generation_failed", err)
		}
		source := strings.TrimSpace(input.Source)
		if source == "" {
			source = defaultPhotoSource
		}
		photos = append(photos, Photo{
			ID:               photoID,
			ActivityID:       activity.ID,
			SortIndex:        index,
			URL:              input.URL,
			ThumbnailURL:     input.ThumbnailURL,
			Attribution:      input.Attribution,
			PhotographerName: truncate(input.PhotographerName, maxNameLength),
			PhotographerURL:  input.PhotographerURL,
			Source:           source,
			Width:            input.Width,
			Height:           input.Height,
			CreatedAt:        now,
		})
	}
	if len(photos) > 0 {
		if err := tx.Create(&photos).Error; err != nil {
			return ActivityWithPhotos{}, s.storageError(operation, "photo_insert_failed", err, zap.String("activity_id", activity.ID))
		}
	}
	return ActivityWithPhotos{Activity: activity, Photos: photos}, nil
}

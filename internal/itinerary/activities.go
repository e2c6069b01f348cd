package itinerary

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/plantrip/internal/apperr"
)

// ActivityInput describes a new activity.
type ActivityInput struct {
	Title           string
	Date            *time.Time
	StartTime       *string
	DurationMinutes *int
	Lng             *float64
	Lat             *float64
	Address         string
	Notes           string
	Category        string
	OpeningHours    string
	Price           *float64
	Tips            string
	WebsiteURL      string
	Phone           string
	Rating          *float64
	GuideInfo       string
	TransportInfo   string
	PlaceRef        string
}

// ActivityPatch carries optional activity changes.
type ActivityPatch struct {
	Title           *string
	Date            *time.Time
	StartTime       *string
	DurationMinutes *int
	Lng             *float64
	Lat             *float64
	Address         *string
	Notes           *string
	Category        *string
	OpeningHours    *string
	Price           *float64
	Tips            *string
	WebsiteURL      *string
	Phone           *string
	Rating          *float64
	GuideInfo       *string
	TransportInfo   *string
	PlaceRef        *string
}

// patchFromInput turns a full input into a patch so both paths share validation.
func patchFromInput(input ActivityInput) ActivityPatch {
	return ActivityPatch{
		Title:           &input.Title,
		Date:            input.Date,
		StartTime:       input.StartTime,
		DurationMinutes: input.DurationMinutes,
		Lng:             input.Lng,
		Lat:             input.Lat,
		Address:         &input.Address,
		Notes:           &input.Notes,
		Category:        &input.Category,
		OpeningHours:    &input.OpeningHours,
		Price:           input.Price,
		Tips:            &input.Tips,
		WebsiteURL:      &input.WebsiteURL,
		Phone:           &input.Phone,
		Rating:          input.Rating,
		GuideInfo:       &input.GuideInfo,
		TransportInfo:   &input.TransportInfo,
		PlaceRef:        &input.PlaceRef,
	}
}

func applyActivityPatch(operation string, activity *Activity, patch ActivityPatch) error {
	if patch.Title != nil {
		title, err := validateName(operation, "title", *patch.Title)
		if err != nil {
			return err
		}
		activity.Title = title
	}
	if patch.Date != nil {
		date := datatypes.Date(dateOnly(*patch.Date))
		activity.Date = &date
	}
	if patch.StartTime != nil {
		startTime, err := validateClock(operation, patch.StartTime)
		if err != nil {
			return err
		}
		activity.StartTime = startTime
	}
	if patch.DurationMinutes != nil {
		if err := validateDuration(operation, patch.DurationMinutes); err != nil {
			return err
		}
		activity.DurationMinutes = patch.DurationMinutes
	}
	if patch.Lng != nil {
		activity.Lng = patch.Lng
	}
	if patch.Lat != nil {
		activity.Lat = patch.Lat
	}
	if activity.Lng != nil && activity.Lat != nil {
		if err := validateCoordinates(operation, *activity.Lng, *activity.Lat); err != nil {
			return err
		}
	}
	if patch.Category != nil {
		category, err := ParseActivityCategory(*patch.Category)
		if err != nil {
			return apperr.Validation(operation, "invalid_category", err.Error())
		}
		activity.Category = category
	}
	if patch.Price != nil {
		activity.Price = patch.Price
	}
	if patch.Rating != nil {
		if err := validateRating(operation, patch.Rating); err != nil {
			return err
		}
		activity.Rating = patch.Rating
	}

	texts := []struct {
		field string
		value *string
		limit int
		dest  *string
	}{
		{"address", patch.Address, maxAddressLength, &activity.Address},
		{"notes", patch.Notes, maxNotesLength, &activity.Notes},
		{"opening_hours", patch.OpeningHours, maxNotesLength, &activity.OpeningHours},
		{"tips", patch.Tips, maxNotesLength, &activity.Tips},
		{"website_url", patch.WebsiteURL, 500, &activity.WebsiteURL},
		{"phone", patch.Phone, 50, &activity.Phone},
		{"guide_info", patch.GuideInfo, maxNotesLength, &activity.GuideInfo},
		{"transport_info", patch.TransportInfo, maxNotesLength, &activity.TransportInfo},
		{"opentripmap_xid", patch.PlaceRef, 100, &activity.PlaceRef},
	}
	for _, text := range texts {
		if text.value == nil {
			continue
		}
		value, err := validateText(operation, text.field, *text.value, text.limit)
		if err != nil {
			return err
		}
		*text.dest = value
	}
	return nil
}

func (s *Service) ListActivities(ctx context.Context, userID, stopID string) ([]ActivityWithPhotos, error) {
	var result []ActivityWithPhotos
	err := s.transact(ctx, opListActivities, func(tx *gorm.DB) error {
		stop, _, err := s.manageableStop(ctx, tx, opListActivities, userID, stopID, false)
		if err != nil {
			return err
		}
		result, err = activitiesWithPhotos(tx, stop.ID)
		if err != nil {
			return s.storageError(opListActivities, "query_failed", err, zap.String("stop_id", stopID))
		}
		return nil
	})
	return result, err
}

func activitiesWithPhotos(tx *gorm.DB, stopID string) ([]ActivityWithPhotos, error) {
	var activities []Activity
	if err := tx.Where("trip_stop_id = ?", stopID).Order("sort_index ASC").Find(&activities).Error; err != nil {
		return nil, err
	}
	result := make([]ActivityWithPhotos, 0, len(activities))
	for _, activity := range activities {
		var photos []Photo
		if err := tx.Where("activity_id = ?", activity.ID).Order("sort_index ASC").Find(&photos).Error; err != nil {
			return nil, err
		}
		result = append(result, ActivityWithPhotos{Activity: activity, Photos: photos})
	}
	return result, nil
}

// CreateActivity appends an activity to the stop's list.
func (s *Service) CreateActivity(ctx context.Context, userID, stopID string, input ActivityInput) (Activity, error) {
	var activity Activity
	if err := applyActivityPatch(opCreateActivity, &activity, patchFromInput(input)); err != nil {
		return Activity{}, err
	}
	err := s.transact(ctx, opCreateActivity, func(tx *gorm.DB) error {
		stop, _, err := s.manageableStop(ctx, tx, opCreateActivity, userID, stopID, true)
		if err != nil {
			return err
		}
		index, err := nextSortIndex(tx, &Activity{}, "trip_stop_id", stop.ID)
		if err != nil {
			return s.storageError(opCreateActivity, "sort_index_failed", err, zap.String("stop_id", stopID))
		}
		activityID, err := s.idProvider.NewID()
		if err != nil {
			return s.storageError(opCreateActivity, "id_generation_failed", err)
		}
		now := s.now()
		activity.ID = activityID
		activity.StopID = stop.ID
		activity.SortIndex = index
		activity.CreatedAt = now
		activity.UpdatedAt = now
		if err := tx.Create(&activity).Error; err != nil {
			return s.storageError(opCreateActivity, "activity_insert_failed", err, zap.String("stop_id", stopID))
		}
		return nil
	})
	if err != nil {
		return Activity{}, err
	}
	return activity, nil
}

func (s *Service) UpdateActivity(ctx context.Context, userID, activityID string, patch ActivityPatch) (ActivityWithPhotos, error) {
	var updated ActivityWithPhotos
	err := s.transact(ctx, opUpdateActivity, func(tx *gorm.DB) error {
		activity, _, _, err := s.manageableActivity(ctx, tx, opUpdateActivity, userID, activityID, true)
		if err != nil {
			return err
		}
		if err := applyActivityPatch(opUpdateActivity, &activity, patch); err != nil {
			return err
		}
		activity.UpdatedAt = s.now()
		if err := tx.Model(&Activity{}).Where("id = ?", activity.ID).Select("*").
			Omit("id", "trip_stop_id", "sort_index", "created_at").
			Updates(&activity).Error; err != nil {
			return s.storageError(opUpdateActivity, "activity_update_failed", err, zap.String("activity_id", activityID))
		}
		var photos []Photo
		if err := tx.Where("activity_id = ?", activity.ID).Order("sort_index ASC").Find(&photos).Error; err != nil {
			return s.storageError(opUpdateActivity, "photo_select_failed", err, zap.String("activity_id", activityID))
		}
		updated = ActivityWithPhotos{Activity: activity, Photos: photos}
		return nil
	})
	if err != nil {
		return ActivityWithPhotos{}, err
	}
	return updated, nil
}

// DeleteActivity removes an activity and renumbers its siblings.
func (s *Service) DeleteActivity(ctx context.Context, userID, activityID string) error {
	return s.transact(ctx, opDeleteActivity, func(tx *gorm.DB) error {
		activity, stop, _, err := s.manageableActivity(ctx, tx, opDeleteActivity, userID, activityID, true)
		if err != nil {
			return err
		}
		if err := deleteActivities(tx, []string{activity.ID}); err != nil {
			return s.storageError(opDeleteActivity, "activity_delete_failed", err, zap.String("activity_id", activityID))
		}
		if err := compact(tx, &Activity{}, "trip_stop_id", stop.ID, s.now()); err != nil {
			return s.storageError(opDeleteActivity, "renumber_failed", err, zap.String("stop_id", stop.ID))
		}
		return nil
	})
}

// ReorderActivities moves the activity at fromIndex to toIndex within a stop.
func (s *Service) ReorderActivities(ctx context.Context, userID, stopID string, fromIndex, toIndex int) ([]ActivityWithPhotos, error) {
	var result []ActivityWithPhotos
	err := s.transact(ctx, opReorderActivity, func(tx *gorm.DB) error {
		stop, _, err := s.manageableStop(ctx, tx, opReorderActivity, userID, stopID, true)
		if err != nil {
			return err
		}
		ids, err := orderedIDs(tx, &Activity{}, "trip_stop_id", stop.ID)
		if err != nil {
			return s.storageError(opReorderActivity, "query_failed", err, zap.String("stop_id", stopID))
		}
		reordered, err := splice(ids, fromIndex, toIndex)
		if err != nil {
			return indexError(opReorderActivity, err)
		}
		if err := renumber(tx, &Activity{}, reordered, s.now()); err != nil {
			return s.storageError(opReorderActivity, "renumber_failed", err, zap.String("stop_id", stopID))
		}
		result, err = activitiesWithPhotos(tx, stop.ID)
		if err != nil {
			return s.storageError(opReorderActivity, "query_failed", err, zap.String("stop_id", stopID))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

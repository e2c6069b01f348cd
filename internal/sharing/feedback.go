package sharing

import (
	"context"
	"errors"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/plantrip/internal/apperr"
	"github.com/MarcoPoloResearchLab/plantrip/internal/itinerary"
	"github.com/MarcoPoloResearchLab/plantrip/internal/notify"
)

const (
	maxViewerSessionLength = 64
	maxViewerNameLength    = 100
	maxFeedbackMessage     = 2000
	anonymousViewer        = "Anonymous"
	unknownActivityTitle   = "Unknown activity"
)

// FeedbackInput is a viewer reaction posted through a share link.
type FeedbackInput struct {
	ActivityID      string
	ViewerSessionID string
	ViewerName      string
	Sentiment       string
	Message         string
}

// FeedbackEntry is a stored reaction with the version it was given against.
type FeedbackEntry struct {
	itinerary.Feedback
	VersionNumber *int
	VersionLabel  *string
}

// CreateFeedback appends a reaction to an activity of the shared trip. The
// entry is stamped with the trip's latest version. The owner is notified
// after commit on a best-effort basis.
func (s *Service) CreateFeedback(ctx context.Context, token string, input FeedbackInput) (FeedbackEntry, error) {
	sentiment, viewerName, message, err := validateFeedback(input)
	if err != nil {
		return FeedbackEntry{}, err
	}

	now := s.now()
	var (
		entry FeedbackEntry
		trip  itinerary.Trip
	)
	err = s.transact(ctx, opCreateFeedback, func(tx *gorm.DB) error {
		share, err := s.liveToken(tx, opCreateFeedback, token)
		if err != nil {
			return err
		}
		if err := tx.Where("id = ?", share.TripID).Take(&trip).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound(opCreateFeedback, reasonShareAbsent)
			}
			return s.storageError(opCreateFeedback, "trip_select_failed", err, zap.String("trip_id", share.TripID))
		}

		activity, err := s.sharedActivity(tx, share.TripID, input.ActivityID)
		if err != nil {
			return err
		}

		var latest itinerary.Version
		var versionID *string
		err = tx.Select("id", "version_number", "label").
			Where("trip_id = ?", share.TripID).
			Order("version_number DESC").
			Take(&latest).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return s.storageError(opCreateFeedback, "version_select_failed", err, zap.String("trip_id", share.TripID))
		default:
			versionID = &latest.ID
			number, label := latest.VersionNumber, latest.Label
			entry.VersionNumber = &number
			entry.VersionLabel = &label
		}

		id, err := s.idProvider.NewID()
		if err != nil {
			return s.storageError(opCreateFeedback, "id_generation_failed", err)
		}
		shareID, activityID := share.ID, activity.ID
		entry.Feedback = itinerary.Feedback{
			ID:              id,
			TripID:          share.TripID,
			ShareTokenID:    &shareID,
			ActivityID:      &activityID,
			VersionID:       versionID,
			ActivityTitle:   activity.Title,
			ViewerSessionID: strings.TrimSpace(input.ViewerSessionID),
			ViewerName:      viewerName,
			Sentiment:       sentiment,
			Message:         message,
			CreatedAt:       now,
		}
		if err := tx.Create(&entry.Feedback).Error; err != nil {
			return s.storageError(opCreateFeedback, "feedback_insert_failed", err, zap.String("trip_id", share.TripID))
		}
		return nil
	})
	if err != nil {
		return FeedbackEntry{}, err
	}

	s.notifyOwner(ctx, trip, entry)
	return entry, nil
}

func (s *Service) sharedActivity(tx *gorm.DB, tripID, activityID string) (itinerary.Activity, error) {
	var activity itinerary.Activity
	err := tx.Where("id = ?", activityID).Take(&activity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return itinerary.Activity{}, apperr.NotFound(opCreateFeedback, "activity_not_found")
	}
	if err != nil {
		return itinerary.Activity{}, s.storageError(opCreateFeedback, "activity_select_failed", err, zap.String("activity_id", activityID))
	}
	var count int64
	if err := tx.Model(&itinerary.Stop{}).
		Where("id = ? AND trip_id = ?", activity.StopID, tripID).
		Count(&count).Error; err != nil {
		return itinerary.Activity{}, s.storageError(opCreateFeedback, "stop_select_failed", err, zap.String("stop_id", activity.StopID))
	}
	if count == 0 {
		return itinerary.Activity{}, apperr.NotFound(opCreateFeedback, "activity_not_found")
	}
	return activity, nil
}

func validateFeedback(input FeedbackInput) (itinerary.Sentiment, string, string, error) {
	if strings.TrimSpace(input.ActivityID) == "" {
		return "", "", "", apperr.Validation(opCreateFeedback, "missing_activity", "activity_id is required")
	}
	session := strings.TrimSpace(input.ViewerSessionID)
	if session == "" || utf8.RuneCountInString(session) > maxViewerSessionLength {
		return "", "", "", apperr.Validation(opCreateFeedback, "invalid_viewer_session", "viewer_session_id must be 1 to 64 characters")
	}
	sentiment, err := itinerary.ParseSentiment(input.Sentiment)
	if err != nil {
		return "", "", "", apperr.Validation(opCreateFeedback, "invalid_sentiment", "sentiment must be like or dislike")
	}
	name := strings.TrimSpace(input.ViewerName)
	if name == "" {
		name = anonymousViewer
	}
	if utf8.RuneCountInString(name) > maxViewerNameLength {
		return "", "", "", apperr.Validation(opCreateFeedback, "viewer_name_too_long", "viewer_name must be at most 100 characters")
	}
	message := strings.TrimSpace(input.Message)
	if utf8.RuneCountInString(message) > maxFeedbackMessage {
		return "", "", "", apperr.Validation(opCreateFeedback, "message_too_long", "message must be at most 2000 characters")
	}
	return sentiment, name, message, nil
}

func (s *Service) notifyOwner(ctx context.Context, trip itinerary.Trip, entry FeedbackEntry) {
	if s.notifier == nil || s.owners == nil {
		return
	}
	email, err := s.owners.EmailFor(ctx, trip.UserID)
	if err != nil {
		s.logger.Warn("feedback notification skipped", zap.String("trip_id", trip.ID), zap.Error(err))
		return
	}
	if email == "" {
		return
	}
	var reportURL string
	if s.reportURL != nil {
		reportURL = s.reportURL(trip.ID)
	}
	message, err := notify.FeedbackMessage(notify.FeedbackNotice{
		To:            email,
		TripName:      trip.Name,
		ActivityTitle: entry.ActivityTitle,
		ViewerName:    entry.ViewerName,
		Liked:         entry.Sentiment == itinerary.SentimentLike,
		Comment:       entry.Message,
		ReportURL:     reportURL,
	})
	if err != nil {
		s.logger.Warn("feedback notification render failed", zap.String("trip_id", trip.ID), zap.Error(err))
		return
	}
	s.notifier.Dispatch(ctx, message)
}

// ActivitySummary aggregates the feedback given to one activity title.
type ActivitySummary struct {
	ActivityID    *string
	ActivityTitle string
	Likes         int
	Dislikes      int
	Feedback      []FeedbackEntry
}

// VersionGroup holds the feedback given against one version, or against no
// version when VersionID is nil.
type VersionGroup struct {
	VersionID     *string
	VersionNumber *int
	VersionLabel  *string
	Activities    []ActivitySummary
}

// FeedbackReport is the owner view over every reaction to a trip.
type FeedbackReport struct {
	TripID   string
	Versions []VersionGroup
}

// Report groups the trip's feedback by version, newest version first and
// unversioned feedback last, then by activity title in order of the most
// recent reaction.
func (s *Service) Report(ctx context.Context, userID, tripID string) (FeedbackReport, error) {
	report := FeedbackReport{TripID: tripID, Versions: []VersionGroup{}}
	err := s.transact(ctx, opFeedbackReport, func(tx *gorm.DB) error {
		if _, err := s.trips.AuthorizeTrip(ctx, tx, opFeedbackReport, userID, tripID, false); err != nil {
			return err
		}
		var rows []itinerary.Feedback
		if err := tx.Where("trip_id = ?", tripID).Order("created_at DESC, id DESC").Find(&rows).Error; err != nil {
			return s.storageError(opFeedbackReport, "feedback_select_failed", err, zap.String("trip_id", tripID))
		}
		if len(rows) == 0 {
			return nil
		}

		versionIDs := make([]string, 0)
		seen := make(map[string]struct{})
		for _, row := range rows {
			if row.VersionID == nil {
				continue
			}
			if _, ok := seen[*row.VersionID]; !ok {
				seen[*row.VersionID] = struct{}{}
				versionIDs = append(versionIDs, *row.VersionID)
			}
		}
		versions := make(map[string]itinerary.Version, len(versionIDs))
		if len(versionIDs) > 0 {
			var found []itinerary.Version
			if err := tx.Select("id", "version_number", "label").Where("id IN ?", versionIDs).Find(&found).Error; err != nil {
				return s.storageError(opFeedbackReport, "version_select_failed", err, zap.String("trip_id", tripID))
			}
			for _, version := range found {
				versions[version.ID] = version
			}
		}

		report.Versions = groupFeedback(rows, versions)
		return nil
	})
	if err != nil {
		return FeedbackReport{}, err
	}
	return report, nil
}

func groupFeedback(rows []itinerary.Feedback, versions map[string]itinerary.Version) []VersionGroup {
	const unversioned = ""
	groupOrder := make([]string, 0)
	groups := make(map[string]*VersionGroup)
	titleIndex := make(map[string]map[string]int)

	for _, row := range rows {
		key := unversioned
		if row.VersionID != nil {
			key = *row.VersionID
		}
		group, ok := groups[key]
		if !ok {
			group = &VersionGroup{Activities: []ActivitySummary{}}
			if key != unversioned {
				versionID := key
				group.VersionID = &versionID
				if version, known := versions[key]; known {
					number, label := version.VersionNumber, version.Label
					group.VersionNumber = &number
					group.VersionLabel = &label
				}
			}
			groups[key] = group
			groupOrder = append(groupOrder, key)
			titleIndex[key] = make(map[string]int)
		}

		entry := FeedbackEntry{Feedback: row, VersionNumber: group.VersionNumber, VersionLabel: group.VersionLabel}
		title := row.ActivityTitle
		if title == "" {
			title = unknownActivityTitle
		}
		index, ok := titleIndex[key][title]
		if !ok {
			index = len(group.Activities)
			titleIndex[key][title] = index
			group.Activities = append(group.Activities, ActivitySummary{ActivityID: row.ActivityID, ActivityTitle: title, Feedback: []FeedbackEntry{}})
		}
		summary := &group.Activities[index]
		switch row.Sentiment {
		case itinerary.SentimentLike:
			summary.Likes++
		case itinerary.SentimentDislike:
			summary.Dislikes++
		}
		summary.Feedback = append(summary.Feedback, entry)
	}

	sort.SliceStable(groupOrder, func(i, j int) bool {
		return versionRank(groups[groupOrder[i]]) > versionRank(groups[groupOrder[j]])
	})
	result := make([]VersionGroup, 0, len(groupOrder))
	for _, key := range groupOrder {
		result = append(result, *groups[key])
	}
	return result
}

// versionRank orders groups newest first; unknown versions rank as zero and
// the unversioned group ranks last.
func versionRank(group *VersionGroup) int {
	if group.VersionID == nil {
		return -1
	}
	if group.VersionNumber == nil {
		return 0
	}
	return *group.VersionNumber
}

package sharing

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/plantrip/internal/apperr"
	"github.com/MarcoPoloResearchLab/plantrip/internal/itinerary"
	"github.com/MarcoPoloResearchLab/plantrip/internal/notify"
)

const (
	ownerUserID    = "user-owner"
	strangerUserID = "user-stranger"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	messages []notify.Message
}

func (r *recordingNotifier) Dispatch(_ context.Context, message notify.Message) {
	r.messages = append(r.messages, message)
}

type staticOwners map[string]string

func (o staticOwners) EmailFor(_ context.Context, userID string) (string, error) {
	return o[userID], nil
}

type fixture struct {
	trips    *itinerary.Service
	sharing  *Service
	clock    *testClock
	notifier *recordingNotifier
	database *gorm.DB
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "sharing.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := database.AutoMigrate(itinerary.Models()...); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	clock := &testClock{now: time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)}
	trips, err := itinerary.NewService(itinerary.ServiceConfig{
		Database:   database,
		Clock:      clock.Now,
		IDProvider: itinerary.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to create itinerary service: %v", err)
	}
	notifier := &recordingNotifier{}
	sharing, err := NewService(ServiceConfig{
		Trips:      trips,
		IDProvider: itinerary.NewUUIDProvider(),
		Clock:      clock.Now,
		Notifier:   notifier,
		Owners:     staticOwners{ownerUserID: "owner@example.com"},
		ReportURL:  func(tripID string) string { return "https://plantrip.example/trips/" + tripID + "/feedback" },
	})
	if err != nil {
		t.Fatalf("failed to create sharing service: %v", err)
	}
	return fixture{trips: trips, sharing: sharing, clock: clock, notifier: notifier, database: database}
}

type sharedTrip struct {
	trip     itinerary.Trip
	activity itinerary.Activity
}

func (f fixture) seedTrip(t *testing.T) sharedTrip {
	t.Helper()
	ctx := context.Background()
	trip, err := f.trips.CreateTrip(ctx, ownerUserID, itinerary.TripInput{
		Name:        "Italy",
		CountryCode: "IT",
		StartDate:   time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create trip failed: %v", err)
	}
	price := 100.0
	stop, err := f.trips.CreateStop(ctx, ownerUserID, trip.ID, itinerary.StopInput{Name: "Rome", Lng: 12.5, Lat: 41.9, Nights: 2, PricePerNight: &price})
	if err != nil {
		t.Fatalf("create stop failed: %v", err)
	}
	activity, err := f.trips.CreateActivity(ctx, ownerUserID, stop.ID, itinerary.ActivityInput{Title: "Colosseum"})
	if err != nil {
		t.Fatalf("create activity failed: %v", err)
	}
	return sharedTrip{trip: trip, activity: activity}
}

func TestCreateShareReplacesPreviousToken(t *testing.T) {
	f := newFixture(t)
	seeded := f.seedTrip(t)
	ctx := context.Background()

	first, err := f.sharing.CreateShare(ctx, ownerUserID, seeded.trip.ID)
	if err != nil {
		t.Fatalf("create share failed: %v", err)
	}
	if len(first.Token) < 40 {
		t.Fatalf("token too short: %q", first.Token)
	}
	if !first.ExpiresAt.Equal(f.clock.Now().Add(DefaultTokenTTL)) {
		t.Fatalf("unexpected expiry %v", first.ExpiresAt)
	}

	second, err := f.sharing.CreateShare(ctx, ownerUserID, seeded.trip.ID)
	if err != nil {
		t.Fatalf("second create share failed: %v", err)
	}
	if second.Token == first.Token {
		t.Fatalf("expected a fresh token")
	}
	if _, err := f.sharing.SharedView(ctx, first.Token); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("replaced token must not resolve, got %v", err)
	}
	var count int64
	f.database.Model(&itinerary.ShareToken{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected exactly one token row, got %d", count)
	}

	live, err := f.sharing.GetShare(ctx, ownerUserID, seeded.trip.ID)
	if err != nil {
		t.Fatalf("get share failed: %v", err)
	}
	if live.Token != second.Token {
		t.Fatalf("expected live token %q, got %q", second.Token, live.Token)
	}
}

func TestShareOperationsHideForeignTrips(t *testing.T) {
	f := newFixture(t)
	seeded := f.seedTrip(t)
	ctx := context.Background()

	if _, err := f.sharing.CreateShare(ctx, strangerUserID, seeded.trip.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for stranger, got %v", err)
	}
	if err := f.sharing.RevokeShare(ctx, strangerUserID, seeded.trip.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for stranger revoke, got %v", err)
	}
	if _, err := f.sharing.Report(ctx, strangerUserID, seeded.trip.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for stranger report, got %v", err)
	}
}

func TestSharedViewExpiresAndPurges(t *testing.T) {
	f := newFixture(t)
	seeded := f.seedTrip(t)
	ctx := context.Background()

	share, err := f.sharing.CreateShare(ctx, ownerUserID, seeded.trip.ID)
	if err != nil {
		t.Fatalf("create share failed: %v", err)
	}
	view, err := f.sharing.SharedView(ctx, share.Token)
	if err != nil {
		t.Fatalf("shared view failed: %v", err)
	}
	if view.Graph.Trip.Name != "Italy" || len(view.Graph.Stops) != 1 {
		t.Fatalf("unexpected view %+v", view.Graph.Trip)
	}
	if view.Budget.AccommodationTotal != 200 {
		t.Fatalf("expected accommodation 200, got %v", view.Budget.AccommodationTotal)
	}

	f.clock.Advance(DefaultTokenTTL + time.Minute)
	if _, err := f.sharing.SharedView(ctx, share.Token); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expired token must not resolve, got %v", err)
	}
	if _, err := f.sharing.GetShare(ctx, ownerUserID, seeded.trip.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expired token must not be live, got %v", err)
	}

	other := f.seedTrip(t)
	if _, err := f.sharing.CreateShare(ctx, ownerUserID, other.trip.ID); err != nil {
		t.Fatalf("create share failed: %v", err)
	}
	var remaining []itinerary.ShareToken
	f.database.Find(&remaining)
	if len(remaining) != 1 || remaining[0].TripID != other.trip.ID {
		t.Fatalf("expected expired token to be purged, got %+v", remaining)
	}
}

func TestSharedViewRejectsUnknownToken(t *testing.T) {
	f := newFixture(t)
	if _, err := f.sharing.SharedView(context.Background(), "nope"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRevokeShareKeepsFeedback(t *testing.T) {
	f := newFixture(t)
	seeded := f.seedTrip(t)
	ctx := context.Background()

	share, err := f.sharing.CreateShare(ctx, ownerUserID, seeded.trip.ID)
	if err != nil {
		t.Fatalf("create share failed: %v", err)
	}
	if _, err := f.sharing.CreateFeedback(ctx, share.Token, FeedbackInput{
		ActivityID:      seeded.activity.ID,
		ViewerSessionID: "session-1",
		Sentiment:       "like",
	}); err != nil {
		t.Fatalf("create feedback failed: %v", err)
	}

	if err := f.sharing.RevokeShare(ctx, ownerUserID, seeded.trip.ID); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if err := f.sharing.RevokeShare(ctx, ownerUserID, seeded.trip.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("second revoke must report not found, got %v", err)
	}

	report, err := f.sharing.Report(ctx, ownerUserID, seeded.trip.ID)
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if len(report.Versions) != 1 || report.Versions[0].Activities[0].Likes != 1 {
		t.Fatalf("feedback must survive revocation, got %+v", report.Versions)
	}
	if report.Versions[0].Activities[0].Feedback[0].ShareTokenID != nil {
		t.Fatalf("share token reference must be cleared")
	}
}

func TestCreateFeedbackStampsLatestVersionAndNotifies(t *testing.T) {
	f := newFixture(t)
	seeded := f.seedTrip(t)
	ctx := context.Background()

	if _, err := f.trips.CreateVersion(ctx, ownerUserID, seeded.trip.ID, "draft"); err != nil {
		t.Fatalf("create version failed: %v", err)
	}
	if _, err := f.trips.CreateVersion(ctx, ownerUserID, seeded.trip.ID, "final"); err != nil {
		t.Fatalf("create version failed: %v", err)
	}
	share, err := f.sharing.CreateShare(ctx, ownerUserID, seeded.trip.ID)
	if err != nil {
		t.Fatalf("create share failed: %v", err)
	}

	entry, err := f.sharing.CreateFeedback(ctx, share.Token, FeedbackInput{
		ActivityID:      seeded.activity.ID,
		ViewerSessionID: "session-1",
		ViewerName:      "  Ada ",
		Sentiment:       "DISLIKE",
		Message:         "too crowded",
	})
	if err != nil {
		t.Fatalf("create feedback failed: %v", err)
	}
	if entry.VersionNumber == nil || *entry.VersionNumber != 2 || *entry.VersionLabel != "final" {
		t.Fatalf("expected latest version 2/final, got %v %v", entry.VersionNumber, entry.VersionLabel)
	}
	if entry.ActivityTitle != "Colosseum" || entry.ViewerName != "Ada" || entry.Sentiment != itinerary.SentimentDislike {
		t.Fatalf("unexpected entry %+v", entry.Feedback)
	}

	if len(f.notifier.messages) != 1 {
		t.Fatalf("expected one notification, got %d", len(f.notifier.messages))
	}
	if f.notifier.messages[0].To != "owner@example.com" {
		t.Fatalf("unexpected recipient %q", f.notifier.messages[0].To)
	}
}

func TestCreateFeedbackValidation(t *testing.T) {
	f := newFixture(t)
	seeded := f.seedTrip(t)
	other := f.seedTrip(t)
	ctx := context.Background()

	share, err := f.sharing.CreateShare(ctx, ownerUserID, seeded.trip.ID)
	if err != nil {
		t.Fatalf("create share failed: %v", err)
	}

	testCases := []struct {
		name  string
		input FeedbackInput
		kind  apperr.Kind
	}{
		{name: "missing session", input: FeedbackInput{ActivityID: seeded.activity.ID, Sentiment: "like"}, kind: apperr.KindValidation},
		{name: "bad sentiment", input: FeedbackInput{ActivityID: seeded.activity.ID, ViewerSessionID: "s", Sentiment: "meh"}, kind: apperr.KindValidation},
		{name: "activity of another trip", input: FeedbackInput{ActivityID: other.activity.ID, ViewerSessionID: "s", Sentiment: "like"}, kind: apperr.KindNotFound},
		{name: "unknown activity", input: FeedbackInput{ActivityID: "missing", ViewerSessionID: "s", Sentiment: "like"}, kind: apperr.KindNotFound},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if _, err := f.sharing.CreateFeedback(ctx, share.Token, testCase.input); !apperr.Is(err, testCase.kind) {
				t.Fatalf("expected %s, got %v", testCase.kind, err)
			}
		})
	}
	if len(f.notifier.messages) != 0 {
		t.Fatalf("rejected feedback must not notify")
	}
}

func TestReportGroupsByVersionThenActivity(t *testing.T) {
	f := newFixture(t)
	seeded := f.seedTrip(t)
	ctx := context.Background()

	stops, err := f.trips.ListStops(ctx, ownerUserID, seeded.trip.ID)
	if err != nil {
		t.Fatalf("list stops failed: %v", err)
	}
	fountain, err := f.trips.CreateActivity(ctx, ownerUserID, stops[0].ID, itinerary.ActivityInput{Title: "Trevi"})
	if err != nil {
		t.Fatalf("create activity failed: %v", err)
	}
	share, err := f.sharing.CreateShare(ctx, ownerUserID, seeded.trip.ID)
	if err != nil {
		t.Fatalf("create share failed: %v", err)
	}

	post := func(activityID, sentiment string) {
		t.Helper()
		f.clock.Advance(time.Second)
		if _, err := f.sharing.CreateFeedback(ctx, share.Token, FeedbackInput{ActivityID: activityID, ViewerSessionID: "s", Sentiment: sentiment}); err != nil {
			t.Fatalf("create feedback failed: %v", err)
		}
	}

	post(seeded.activity.ID, "like")
	if _, err := f.trips.CreateVersion(ctx, ownerUserID, seeded.trip.ID, "v1"); err != nil {
		t.Fatalf("create version failed: %v", err)
	}
	post(seeded.activity.ID, "like")
	post(fountain.ID, "dislike")
	post(seeded.activity.ID, "dislike")

	if err := f.trips.DeleteActivity(ctx, ownerUserID, fountain.ID); err != nil {
		t.Fatalf("delete activity failed: %v", err)
	}

	report, err := f.sharing.Report(ctx, ownerUserID, seeded.trip.ID)
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if len(report.Versions) != 2 {
		t.Fatalf("expected two version groups, got %d", len(report.Versions))
	}

	versioned := report.Versions[0]
	if versioned.VersionNumber == nil || *versioned.VersionNumber != 1 {
		t.Fatalf("expected version 1 first, got %+v", versioned)
	}
	if len(versioned.Activities) != 2 {
		t.Fatalf("expected two activity summaries, got %d", len(versioned.Activities))
	}
	colosseum, trevi := versioned.Activities[0], versioned.Activities[1]
	if colosseum.ActivityTitle != "Colosseum" || colosseum.Likes != 1 || colosseum.Dislikes != 1 {
		t.Fatalf("unexpected colosseum summary %+v", colosseum)
	}
	if trevi.ActivityTitle != "Trevi" || trevi.Dislikes != 1 || trevi.ActivityID != nil {
		t.Fatalf("deleted activity must keep its title and lose its id, got %+v", trevi)
	}

	unversioned := report.Versions[1]
	if unversioned.VersionID != nil || len(unversioned.Activities) != 1 || unversioned.Activities[0].Likes != 1 {
		t.Fatalf("unexpected unversioned group %+v", unversioned)
	}
}

func TestReportEmpty(t *testing.T) {
	f := newFixture(t)
	seeded := f.seedTrip(t)
	report, err := f.sharing.Report(context.Background(), ownerUserID, seeded.trip.ID)
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if report.TripID != seeded.trip.ID || len(report.Versions) != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
}

package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/plantrip/internal/auth"
	"github.com/MarcoPoloResearchLab/plantrip/internal/database"
	"github.com/MarcoPoloResearchLab/plantrip/internal/generation"
	"github.com/MarcoPoloResearchLab/plantrip/internal/itinerary"
	"github.com/MarcoPoloResearchLab/plantrip/internal/orgs"
	"github.com/MarcoPoloResearchLab/plantrip/internal/sharing"
	"github.com/MarcoPoloResearchLab/plantrip/internal/users"
)

const (
	testSigningSecret = "test-signing-secret"
	testIssuer        = "plantrip-auth"
	testAudience      = "plantrip-api"
)

type apiFixture struct {
	server *httptest.Server
	issuer *auth.TokenIssuer
}

func newAPIFixture(t *testing.T) apiFixture {
	t.Helper()
	db, err := database.Open(database.Options{
		Driver: database.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "plantrip.db"),
	}, nil)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        testIssuer,
		Audience:      testAudience,
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to construct token issuer: %v", err)
	}
	validator, err := auth.NewValidator(auth.ValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        testIssuer,
		Audience:      testAudience,
		CookieName:    "plantrip_access",
	})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}
	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct user service: %v", err)
	}
	ids := itinerary.NewUUIDProvider()
	organizations, err := orgs.NewService(orgs.ServiceConfig{Database: db, IDProvider: ids})
	if err != nil {
		t.Fatalf("failed to construct organization service: %v", err)
	}
	trips, err := itinerary.NewService(itinerary.ServiceConfig{
		Database:    db,
		IDProvider:  ids,
		Memberships: organizations,
		Generator:   generation.Fixtures{},
	})
	if err != nil {
		t.Fatalf("failed to construct itinerary service: %v", err)
	}
	shares, err := sharing.NewService(sharing.ServiceConfig{Trips: trips, IDProvider: ids})
	if err != nil {
		t.Fatalf("failed to construct sharing service: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Validator:     validator,
		Users:         userService,
		Trips:         trips,
		Sharing:       shares,
		Organizations: organizations,
		Logger:        zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return apiFixture{server: server, issuer: issuer}
}

func (f apiFixture) token(t *testing.T, userID string) string {
	t.Helper()
	token, _, err := f.issuer.IssueToken(context.Background(), auth.Identity{UserID: userID})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func (f apiFixture) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request, err := http.NewRequest(method, f.server.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to construct request: %v", err)
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	request.Header.Set("Content-Type", "application/json")
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer response.Body.Close()
	if out != nil && response.StatusCode < http.StatusBadRequest {
		if err := json.NewDecoder(response.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode %s %s response: %v", method, path, err)
		}
	}
	return response.StatusCode
}

func TestTripLifecycleOverHTTP(t *testing.T) {
	fixture := newAPIFixture(t)
	owner := fixture.token(t, "user-123")
	stranger := fixture.token(t, "user-456")

	if status := fixture.do(t, http.MethodGet, "/trips", "", nil, nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}

	var trip tripPayload
	status := fixture.do(t, http.MethodPost, "/trips", owner, map[string]any{
		"name":         "Italy",
		"country_code": "it",
		"start_date":   "2026-05-01",
	}, &trip)
	if status != http.StatusCreated {
		t.Fatalf("unexpected create trip status: %d", status)
	}
	if trip.CountryCode != "IT" || trip.Currency != "EUR" || trip.StartDate != "2026-05-01" {
		t.Fatalf("unexpected trip payload: %+v", trip)
	}

	if status := fixture.do(t, http.MethodPost, "/trips", owner, map[string]any{
		"name":         "Bad",
		"country_code": "it",
		"start_date":   "May 1st",
	}, nil); status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for malformed date, got %d", status)
	}

	if status := fixture.do(t, http.MethodGet, "/trips/"+trip.ID, stranger, nil, nil); status != http.StatusNotFound {
		t.Fatalf("expected 404 for stranger, got %d", status)
	}

	var graph itineraryPayload
	status = fixture.do(t, http.MethodPost, "/trips/"+trip.ID+"/generate", owner, map[string]any{
		"prompt": generation.FixturePrefix + " two cities",
	}, &graph)
	if status != http.StatusOK {
		t.Fatalf("unexpected generate status: %d", status)
	}
	if len(graph.Stops) != 2 {
		t.Fatalf("expected 2 generated stops, got %d", len(graph.Stops))
	}
	if graph.Stops[0].MovementToNext == nil || graph.Stops[1].MovementToNext != nil {
		t.Fatalf("expected a single movement between the generated stops")
	}
	if graph.Trip.EndDate == nil || *graph.Trip.EndDate != "2026-05-04" {
		t.Fatalf("unexpected end date: %v", graph.Trip.EndDate)
	}
	if len(graph.Stops[0].Activities) == 0 {
		t.Fatalf("expected generated activities")
	}
	activityID := graph.Stops[0].Activities[0].ID

	var share shareTokenPayload
	if status := fixture.do(t, http.MethodPost, "/trips/"+trip.ID+"/share", owner, nil, &share); status != http.StatusCreated {
		t.Fatalf("unexpected share status: %d", status)
	}
	if share.Token == "" {
		t.Fatalf("expected a share token")
	}

	var shared sharedTripPayload
	if status := fixture.do(t, http.MethodGet, "/shared/"+share.Token, "", nil, &shared); status != http.StatusOK {
		t.Fatalf("unexpected shared view status: %d", status)
	}
	if shared.TripName != "Italy" || len(shared.Stops) != 2 {
		t.Fatalf("unexpected shared view: %+v", shared)
	}

	status = fixture.do(t, http.MethodPost, "/shared/"+share.Token+"/feedback", "", map[string]any{
		"activity_id":       activityID,
		"viewer_session_id": "session-1",
		"viewer_name":       "Ada",
		"sentiment":         "like",
	}, nil)
	if status != http.StatusCreated {
		t.Fatalf("unexpected feedback status: %d", status)
	}

	var report feedbackReportPayload
	if status := fixture.do(t, http.MethodGet, "/trips/"+trip.ID+"/feedback", owner, nil, &report); status != http.StatusOK {
		t.Fatalf("unexpected report status: %d", status)
	}
	if len(report.Versions) != 1 || len(report.Versions[0].Activities) != 1 || report.Versions[0].Activities[0].Likes != 1 {
		t.Fatalf("unexpected feedback report: %+v", report)
	}

	if status := fixture.do(t, http.MethodDelete, "/trips/"+trip.ID+"/share", owner, nil, nil); status != http.StatusNoContent {
		t.Fatalf("unexpected revoke status: %d", status)
	}
	if status := fixture.do(t, http.MethodGet, "/shared/"+share.Token, "", nil, nil); status != http.StatusNotFound {
		t.Fatalf("expected revoked token to be gone, got %d", status)
	}
}

func TestRealtimeStreamEmitsItineraryChangeEvents(t *testing.T) {
	fixture := newAPIFixture(t)
	owner := fixture.token(t, "user-123")

	var trip tripPayload
	if status := fixture.do(t, http.MethodPost, "/trips", owner, map[string]any{
		"name":         "Portugal",
		"country_code": "PT",
		"start_date":   "2026-06-01",
	}, &trip); status != http.StatusCreated {
		t.Fatalf("unexpected create trip status: %d", status)
	}

	streamRequest, err := http.NewRequest(http.MethodGet, fixture.server.URL+"/trips/"+trip.ID+"/events", http.NoBody)
	if err != nil {
		t.Fatalf("failed to construct stream request: %v", err)
	}
	streamRequest.Header.Set("Authorization", "Bearer "+owner)
	streamResp, err := http.DefaultClient.Do(streamRequest)
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	t.Cleanup(func() {
		_ = streamResp.Body.Close()
	})
	if streamResp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected stream status: %d", streamResp.StatusCode)
	}

	var stop stopPayload
	if status := fixture.do(t, http.MethodPost, "/trips/"+trip.ID+"/stops", owner, map[string]any{
		"name": "Lisbon",
		"lng":  -9.1393,
		"lat":  38.7223,
	}, &stop); status != http.StatusCreated {
		t.Fatalf("unexpected create stop status: %d", status)
	}
	if stop.Nights != 1 || stop.SortIndex != 0 {
		t.Fatalf("unexpected stop payload: %+v", stop)
	}

	streamReader := bufio.NewReader(streamResp.Body)
	currentEventType := ""
	deadline := time.After(5 * time.Second)
	type readResult struct {
		line string
		err  error
	}
	for {
		resultCh := make(chan readResult, 1)
		go func() {
			line, err := streamReader.ReadString('\n')
			resultCh <- readResult{line: line, err: err}
		}()
		select {
		case <-deadline:
			t.Fatal("timed out waiting for realtime event")
		case res := <-resultCh:
			if res.err != nil {
				t.Fatalf("failed to read stream: %v", res.err)
			}
			line := strings.TrimSpace(res.line)
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, "event:") {
				currentEventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
				continue
			}
			if !strings.HasPrefix(line, "data:") || currentEventType != RealtimeEventItineraryChanged {
				continue
			}
			var payload realtimeEventPayload
			if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &payload); err != nil {
				t.Fatalf("failed to decode event payload: %v", err)
			}
			if payload.TripID != trip.ID || payload.Entity != "stop" || len(payload.EntityIDs) != 1 || payload.EntityIDs[0] != stop.ID {
				t.Fatalf("unexpected event payload: %+v", payload)
			}
			if payload.ActorID != "user-123" {
				t.Fatalf("unexpected actor: %q", payload.ActorID)
			}
			return
		}
	}
}

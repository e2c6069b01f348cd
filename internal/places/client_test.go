package places

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/plantrip/internal/apperr"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{APIKey: "otm-key", BaseURL: server.URL, Timeout: time.Second})
}

func TestAutosuggestForwardsQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/autosuggest" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		query := r.URL.Query()
		expected := map[string]string{
			"apikey": "otm-key",
			"name":   "Colos",
			"radius": "10000",
			"rate":   "1",
			"limit":  "15",
			"format": "json",
			"kinds":  "historic",
		}
		for key, value := range expected {
			if query.Get(key) != value {
				t.Fatalf("param %s: expected %q, got %q", key, value, query.Get(key))
			}
		}
		_ = json.NewEncoder(w).Encode([]Suggestion{{XID: "W123", Name: "Colosseum", Point: Point{Lon: 12.49, Lat: 41.89}}})
	})

	results, err := client.Autosuggest(context.Background(), AutosuggestQuery{
		Name:  "Colos",
		Lat:   41.9,
		Lon:   12.5,
		Kinds: "historic",
		Rate:  1,
	})
	if err != nil {
		t.Fatalf("autosuggest: %v", err)
	}
	if len(results) != 1 || results[0].XID != "W123" {
		t.Fatalf("unexpected results %+v", results)
	}
}

func TestDetailDecodesPlace(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/xid/W123" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"xid":"W123","name":"Colosseum","kinds":"historic","address":{"city":"Rome"},"point":{"lon":12.49,"lat":41.89},"wikipedia_extracts":{"title":"Colosseum","text":"An oval amphitheatre"}}`))
	})
	place, err := client.Detail(context.Background(), "W123")
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if place.Address["city"] != "Rome" || place.Extracts == nil || place.Extracts.Text == "" {
		t.Fatalf("unexpected place %+v", place)
	}
}

func TestLookupFailures(t *testing.T) {
	unconfigured := NewClient(Config{})
	_, err := unconfigured.Detail(context.Background(), "W1")
	expectKind(t, err, apperr.KindUnavailable, "not_configured")

	failing := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err = failing.Geoname(context.Background(), "Rome")
	expectKind(t, err, apperr.KindUpstream, "upstream_status")

	_, err = failing.Autosuggest(context.Background(), AutosuggestQuery{Name: "Ro", Lat: 1, Lon: 1})
	expectKind(t, err, apperr.KindValidation, "invalid_name")

	_, err = failing.Radius(context.Background(), RadiusQuery{Lat: 1, Lon: 1, Radius: 50})
	expectKind(t, err, apperr.KindValidation, "invalid_radius")

	_, err = failing.Detail(context.Background(), "")
	expectKind(t, err, apperr.KindValidation, "invalid_xid")
}

func TestUnreachableUpstream(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	client := NewClient(Config{APIKey: "key", BaseURL: baseURL, Timeout: time.Second})
	_, err := client.Geoname(context.Background(), "Rome")
	expectKind(t, err, apperr.KindUpstream, "unreachable")
}

func expectKind(t *testing.T, err error, kind apperr.Kind, reason string) {
	t.Helper()
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperr.Error, got %v", err)
	}
	if appErr.Kind() != kind || appErr.Reason() != reason {
		t.Fatalf("expected %s/%s, got %s/%s", kind, reason, appErr.Kind(), appErr.Reason())
	}
}

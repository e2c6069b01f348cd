package photos

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/plantrip/internal/apperr"
)

const searchBody = `{"results":[
 {"width":4000,"height":3000,"urls":{"regular":"https://img/1","small":"https://img/1s"},"user":{"name":"Ana","links":{"html":"https://unsplash.com/@ana"}}},
 {"width":10,"height":10,"urls":{"regular":""}},
 {"width":3000,"height":2000,"urls":{"regular":"https://img/2","thumb":"https://img/2t"},"user":{"name":""}}
]}`

func TestSearchPhotosMapsResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Client-ID access" {
			t.Fatalf("missing client id header")
		}
		if r.URL.Query().Get("query") != "Colosseum Rome" || r.URL.Query().Get("per_page") != "5" {
			t.Fatalf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(searchBody))
	}))
	defer server.Close()

	source := NewUnsplash(Config{AccessKey: "access", BaseURL: server.URL, Timeout: time.Second})
	photos, err := source.SearchPhotos(context.Background(), "Colosseum Rome", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(photos) != 2 {
		t.Fatalf("expected 2 photos, got %d", len(photos))
	}
	first := photos[0]
	if first.URL != "https://img/1" || first.ThumbnailURL != "https://img/1s" || first.Source != "unsplash" {
		t.Fatalf("unexpected first photo %+v", first)
	}
	if first.Attribution != "Photo by Ana on Unsplash" || first.Width == nil || *first.Width != 4000 {
		t.Fatalf("unexpected attribution or size %+v", first)
	}
	if photos[1].ThumbnailURL != "https://img/2t" || photos[1].Attribution != "Photo on Unsplash" {
		t.Fatalf("unexpected second photo %+v", photos[1])
	}
}

func TestSearchPhotosFailures(t *testing.T) {
	_, err := NewUnsplash(Config{}).SearchPhotos(context.Background(), "Rome", 3)
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind() != apperr.KindUnavailable {
		t.Fatalf("expected unavailable, got %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()
	_, err = NewUnsplash(Config{AccessKey: "k", BaseURL: server.URL}).SearchPhotos(context.Background(), "Rome", 3)
	if !apperr.Is(err, apperr.KindUpstream) {
		t.Fatalf("expected upstream failure, got %v", err)
	}
}

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/plantrip/internal/apperr"
)

func TestRespondErrorMapsKinds(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err     error
		status  int
		reason  string
		message string
	}{
		{apperr.NotFound("itinerary.get_trip", "trip_not_found"), http.StatusNotFound, "trip_not_found", "trip not found"},
		{apperr.Validation("itinerary.create_stop", "invalid_nights", "nights must be at least 1"), http.StatusUnprocessableEntity, "invalid_nights", "nights must be at least 1"},
		{apperr.Conflict("orgs.change_role", "last_admin", "cannot remove the last admin"), http.StatusConflict, "last_admin", "cannot remove the last admin"},
		{apperr.New(apperr.KindUnavailable, "generation.anthropic", "not_configured", nil), http.StatusServiceUnavailable, "not_configured", "not configured"},
		{apperr.New(apperr.KindUpstream, "places.detail", "upstream_status", nil), http.StatusBadGateway, "upstream_status", "upstream status"},
		{apperr.Internal("itinerary.create_trip", "insert_failed", errors.New("disk I/O error")), http.StatusInternalServerError, "insert_failed", "internal error"},
		{errors.New("boom"), http.StatusInternalServerError, "unexpected_error", "internal error"},
	}

	handler := &httpHandler{logger: zap.NewNop()}
	for _, tc := range cases {
		recorder := httptest.NewRecorder()
		ctx, _ := gin.CreateTestContext(recorder)
		ctx.Request = httptest.NewRequest(http.MethodGet, "/", http.NoBody)

		handler.respondError(ctx, tc.err)

		if recorder.Code != tc.status {
			t.Fatalf("%v: expected status %d, got %d", tc.err, tc.status, recorder.Code)
		}
		var payload errorPayload
		if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if payload.Error != tc.reason || payload.Message != tc.message {
			t.Fatalf("%v: unexpected payload %+v", tc.err, payload)
		}
	}
}

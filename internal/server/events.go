package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/plantrip/internal/itinerary"
)

type realtimeEventPayload struct {
	TripID    string    `json:"trip_id"`
	Entity    string    `json:"entity"`
	EntityIDs []string  `json:"entity_ids"`
	ActorID   string    `json:"actor_id"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

type heartbeatPayload struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// handleTripEvents streams itinerary-change events for one trip as
// server-sent events until the client disconnects.
func (h *httpHandler) handleTripEvents(c *gin.Context) {
	ctx := c.Request.Context()
	tripID := c.Param("tripID")
	if _, err := h.trips.GetTrip(ctx, currentUserID(c), tripID); err != nil {
		h.respondError(c, err)
		return
	}

	stream, cleanup := h.realtime.Subscribe(ctx, tripID)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.SSEvent(realtimeEventHeartbeat, heartbeatPayload{Timestamp: time.Now().UTC(), Source: realtimeSourceBackend})
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, realtimeEventPayload{
				TripID:    message.TripID,
				Entity:    message.Entity,
				EntityIDs: message.EntityIDs,
				ActorID:   message.ActorID,
				Timestamp: message.Timestamp,
				Source:    realtimeSourceBackend,
			})
			return true
		case now := <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, heartbeatPayload{Timestamp: now.UTC(), Source: realtimeSourceBackend})
			return true
		}
	})
}

// publish announces a committed change. An empty tripID is ignored.
func (h *httpHandler) publish(c *gin.Context, tripID, entity string, ids ...string) {
	if tripID == "" {
		return
	}
	h.realtime.Publish(RealtimeMessage{
		TripID:    tripID,
		EventType: RealtimeEventItineraryChanged,
		Entity:    entity,
		EntityIDs: ids,
		ActorID:   currentUserID(c),
		Timestamp: time.Now().UTC(),
	})
}

// tripOf locates the trip owning an entity for event routing. It skips the
// lookup when nobody is subscribed.
func (h *httpHandler) tripOf(c *gin.Context, kind itinerary.EntityKind, id string) string {
	if !h.realtime.Active() {
		return ""
	}
	tripID, err := h.trips.TripIDOf(c.Request.Context(), kind, id)
	if err != nil {
		h.logger.Debug("event routing lookup failed", zap.String("entity", string(kind)), zap.String("id", id), zap.Error(err))
		return ""
	}
	return tripID
}

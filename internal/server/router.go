package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/plantrip/internal/auth"
	"github.com/MarcoPoloResearchLab/plantrip/internal/itinerary"
	"github.com/MarcoPoloResearchLab/plantrip/internal/orgs"
	"github.com/MarcoPoloResearchLab/plantrip/internal/places"
	"github.com/MarcoPoloResearchLab/plantrip/internal/ratelimit"
	"github.com/MarcoPoloResearchLab/plantrip/internal/sharing"
	"github.com/MarcoPoloResearchLab/plantrip/internal/users"
)

const (
	userIDContextKey         = "plantrip_user_id"
	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingValidator      = errors.New("access validator dependency required")
	errMissingUserResolver   = errors.New("user resolver dependency required")
	errMissingTripService    = errors.New("trip service dependency required")
	errMissingSharingService = errors.New("sharing service dependency required")
)

// AccessValidator authenticates an incoming request.
type AccessValidator interface {
	ValidateRequest(r *http.Request) (auth.Claims, error)
}

// UserResolver maps validated claims to a local user id.
type UserResolver interface {
	ResolveUserID(ctx context.Context, claims auth.Claims) (string, error)
}

// PlaceLookup serves the place search endpoints.
type PlaceLookup interface {
	Autosuggest(ctx context.Context, query places.AutosuggestQuery) ([]places.Suggestion, error)
	Radius(ctx context.Context, query places.RadiusQuery) ([]places.Suggestion, error)
	Geoname(ctx context.Context, name string) (places.Geoname, error)
	Detail(ctx context.Context, xid string) (places.Place, error)
}

// RateLimits names the rules applied to the expensive or public endpoints.
type RateLimits struct {
	Generate   ratelimit.Rule
	Share      ratelimit.Rule
	SharedView ratelimit.Rule
	Feedback   ratelimit.Rule
}

type Dependencies struct {
	Validator      AccessValidator
	Users          UserResolver
	Trips          *itinerary.Service
	Sharing        *sharing.Service
	Organizations  *orgs.Service
	Places         PlaceLookup
	RateLimiter    *ratelimit.Limiter
	RateLimits     RateLimits
	Realtime       *RealtimeDispatcher
	AllowedOrigins []string
	Heartbeat      time.Duration
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Validator == nil {
		return nil, errMissingValidator
	}
	if deps.Users == nil {
		return nil, errMissingUserResolver
	}
	if deps.Trips == nil {
		return nil, errMissingTripService
	}
	if deps.Sharing == nil {
		return nil, errMissingSharingService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	heartbeat := deps.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}
	registerValidators()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		validator:         deps.Validator,
		users:             deps.Users,
		trips:             deps.Trips,
		sharing:           deps.Sharing,
		organizations:     deps.Organizations,
		places:            deps.Places,
		realtime:          realtime,
		heartbeatInterval: heartbeat,
		logger:            logger,
	}
	limiter := deps.RateLimiter
	limits := deps.RateLimits

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	public := router.Group("/shared")
	public.GET("/:token", limiter.Middleware(limits.SharedView), handler.handleSharedView)
	public.POST("/:token/feedback", limiter.Middleware(limits.Feedback), handler.handleCreateFeedback)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)

	protected.GET("/trips", handler.handleListTrips)
	protected.POST("/trips", handler.handleCreateTrip)
	protected.GET("/trips/:tripID", handler.handleGetTrip)
	protected.PUT("/trips/:tripID", handler.handleUpdateTrip)
	protected.DELETE("/trips/:tripID", handler.handleDeleteTrip)
	protected.GET("/trips/:tripID/itinerary", handler.handleGetItinerary)
	protected.GET("/trips/:tripID/events", handler.handleTripEvents)

	protected.GET("/trips/:tripID/stops", handler.handleListStops)
	protected.POST("/trips/:tripID/stops", handler.handleCreateStop)
	protected.PUT("/trips/:tripID/stops/reorder", handler.handleReorderStops)
	protected.PUT("/stops/:stopID", handler.handleUpdateStop)
	protected.DELETE("/stops/:stopID", handler.handleDeleteStop)

	protected.GET("/stops/:stopID/activities", handler.handleListActivities)
	protected.POST("/stops/:stopID/activities", handler.handleCreateActivity)
	protected.PUT("/stops/:stopID/activities/reorder", handler.handleReorderActivities)
	protected.PUT("/activities/:activityID", handler.handleUpdateActivity)
	protected.DELETE("/activities/:activityID", handler.handleDeleteActivity)
	protected.PUT("/activities/:activityID/photos", handler.handleReplacePhotos)
	protected.POST("/activities/:activityID/photos/refresh", handler.handleRefreshPhotos)

	protected.GET("/trips/:tripID/movements", handler.handleListMovements)
	protected.POST("/trips/:tripID/movements", handler.handleUpsertMovement)
	protected.PUT("/movements/:movementID", handler.handleUpdateMovement)
	protected.DELETE("/movements/:movementID", handler.handleDeleteMovement)

	protected.GET("/trips/:tripID/versions", handler.handleListVersions)
	protected.POST("/trips/:tripID/versions", handler.handleCreateVersion)
	protected.GET("/trips/:tripID/versions/:versionID", handler.handleGetVersion)
	protected.DELETE("/trips/:tripID/versions/:versionID", handler.handleDeleteVersion)
	protected.POST("/trips/:tripID/versions/:versionID/restore", handler.handleRestoreVersion)

	protected.POST("/trips/:tripID/generate", limiter.Middleware(limits.Generate), handler.handleGenerate)

	protected.POST("/trips/:tripID/share", limiter.Middleware(limits.Share), handler.handleCreateShare)
	protected.GET("/trips/:tripID/share", handler.handleGetShare)
	protected.DELETE("/trips/:tripID/share", handler.handleRevokeShare)
	protected.GET("/trips/:tripID/feedback", handler.handleFeedbackReport)

	if deps.Places != nil {
		protected.GET("/places/autosuggest", handler.handleAutosuggest)
		protected.GET("/places/radius", handler.handleRadius)
		protected.GET("/places/geoname", handler.handleGeoname)
		protected.GET("/places/detail/:xid", handler.handlePlaceDetail)
	}

	if deps.Organizations != nil {
		protected.POST("/orgs", handler.handleCreateOrganization)
		protected.POST("/orgs/:orgID/members", handler.handleAddMember)
		protected.PUT("/orgs/:orgID/members/:userID", handler.handleChangeRole)
		protected.DELETE("/orgs/:orgID/members/:userID", handler.handleRemoveMember)
	}

	return router, nil
}

type httpHandler struct {
	validator         AccessValidator
	users             UserResolver
	trips             *itinerary.Service
	sharing           *sharing.Service
	organizations     *orgs.Service
	places            PlaceLookup
	realtime          *RealtimeDispatcher
	heartbeatInterval time.Duration
	logger            *zap.Logger
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Accept", "Cache-Control", "Last-Event-ID"},
		ExposeHeaders:    []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	origins := make([]string, 0, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = origins
	}
	return cors.New(config)
}

// authorizeRequest validates the access token and resolves the local user.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.validator.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrMissingToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorPayload{
			Error:   "unauthorized",
			Code:    "http.unauthorized",
			Message: "authentication required",
		})
		return
	}
	userID, err := h.users.ResolveUserID(c.Request.Context(), claims)
	if errors.Is(err, users.ErrInvalidIdentity) {
		h.logger.Warn("token carried no usable identity", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorPayload{
			Error:   "unauthorized",
			Code:    "http.unauthorized",
			Message: "authentication required",
		})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Set(userIDContextKey, userID)
	c.Next()
}

// RateLimitIdentity keys limiter buckets by the authenticated user when
// present and by client address otherwise.
func RateLimitIdentity(c *gin.Context) string {
	if userID := c.GetString(userIDContextKey); userID != "" {
		return "user:" + userID
	}
	return "ip:" + c.ClientIP()
}

func currentUserID(c *gin.Context) string {
	return c.GetString(userIDContextKey)
}

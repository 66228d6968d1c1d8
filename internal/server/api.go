package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tapstamp/shop-review-backend/internal/analytics"
	"github.com/tapstamp/shop-review-backend/internal/config"
	"github.com/tapstamp/shop-review-backend/internal/details"
	apierrors "github.com/tapstamp/shop-review-backend/internal/errors"
	"github.com/tapstamp/shop-review-backend/internal/geocode"
	"github.com/tapstamp/shop-review-backend/internal/live"
	"github.com/tapstamp/shop-review-backend/internal/logging"
	"github.com/tapstamp/shop-review-backend/internal/middleware"
	"github.com/tapstamp/shop-review-backend/internal/monitoring"
	"github.com/tapstamp/shop-review-backend/internal/review"
)

// APIServer represents the main API server
type APIServer struct {
	config    *config.Config
	router    *gin.Engine
	reviews   *review.Service
	details   *details.Service
	analytics *analytics.Service
}

// NewAPIServer creates a new API server instance
func NewAPIServer(cfg *config.Config, reviews *review.Service, detailSvc *details.Service, analyticsSvc *analytics.Service) *APIServer {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add middleware in order
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	router.Use(monitoring.MetricsMiddleware())
	router.Use(logging.RequestLogger())

	srv := &APIServer{
		config:    cfg,
		router:    router,
		reviews:   reviews,
		details:   detailSvc,
		analytics: analyticsSvc,
	}

	srv.setupRoutes()
	return srv
}

// Router returns the gin router
func (s *APIServer) Router() http.Handler {
	return s.router
}

// setupRoutes configures all API routes
func (s *APIServer) setupRoutes() {
	// Health check
	s.router.GET("/health", s.healthCheck)

	auth := middleware.NewAdminAuthenticator(&s.config.Auth)

	api := s.router.Group("/api")
	api.Use(auth.AdminAuth())
	{
		api.GET("/review-customer-release", s.handlePendingReviews)
		api.GET("/fullIndividualCustomerDetails", s.handleFullDetails)
		api.POST("/fullIndividualCustomerDetails", s.handleFullDetails)
		api.POST("/reject_customer_review", s.handleReject)
		api.POST("/acceptinvitation", s.handleAccept)
		api.GET("/release-history", s.handleHistory)
		api.POST("/getAcceptedReviewsWithAddress", s.handlePublish)
		api.GET("/live-locations", s.handleLiveLocations)

		api.POST("/analytics/rollup", s.handleAnalyticsRollup)
		api.GET("/analytics/daily-unique-customers", s.handleDailyUniques)
	}
}

// Health check handler
func (s *APIServer) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "api",
	})
}

// handlePendingReviews lists every record awaiting review
func (s *APIServer) handlePendingReviews(c *gin.Context) {
	pending, err := s.reviews.Pending(c.Request.Context())
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}
	if pending == nil {
		pending = []map[string]any{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(pending),
		"data":    pending,
	})
}

// handleFullDetails aggregates a shop's five profile tables. The shop id
// may arrive in the query string or the JSON body.
func (s *APIServer) handleFullDetails(c *gin.Context) {
	shopID := c.Query("shop_id")
	if shopID == "" && c.Request.Method == http.MethodPost {
		var body struct {
			ShopID string `json:"shop_id"`
		}
		if err := c.ShouldBindJSON(&body); err == nil {
			shopID = body.ShopID
		}
	}
	if shopID == "" {
		respondError(c, apierrors.NewInvalidRequestError("shop_id is required"))
		return
	}

	profile, err := s.details.FullDetails(c.Request.Context(), shopID)
	if err != nil {
		logging.LogError(err, middleware.GetRequestIDFromContext(c), "details", "full_details")
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    profile,
	})
}

// handleReject rejects a pending review with a reason
func (s *APIServer) handleReject(c *gin.Context) {
	var req struct {
		ShopID string `json:"shop_id"`
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}
	if req.ShopID == "" {
		respondError(c, apierrors.NewInvalidRequestError("shop_id is required"))
		return
	}

	result, err := s.reviews.Reject(c.Request.Context(), req.ShopID, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, review.ErrReasonRequired):
			respondError(c, apierrors.NewInvalidRequestError("reason is required"))
		case errors.Is(err, review.ErrNoPendingReview):
			respondError(c, apierrors.ErrNoPendingReviewError)
		case errors.Is(err, review.ErrMissingSentDatetime):
			respondError(c, apierrors.NewInvalidRequestError("pending review has no sent_datetime"))
		default:
			logging.LogError(err, middleware.GetRequestIDFromContext(c), "review", "reject")
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	logging.LogReviewDecision(middleware.GetRequestIDFromContext(c), req.ShopID, "rejected", s.config.Tables.Rejected)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}

// handleAccept accepts a pending review
func (s *APIServer) handleAccept(c *gin.Context) {
	var req struct {
		ShopID string `json:"shop_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}
	if req.ShopID == "" {
		respondError(c, apierrors.NewInvalidRequestError("shop_id is required"))
		return
	}

	result, err := s.reviews.Accept(c.Request.Context(), req.ShopID)
	if err != nil {
		switch {
		case errors.Is(err, review.ErrNoPendingReview):
			respondError(c, apierrors.ErrNoPendingReviewError)
		case errors.Is(err, review.ErrMissingSentDatetime):
			respondError(c, apierrors.NewInvalidRequestError("pending review has no sent_datetime"))
		default:
			logging.LogError(err, middleware.GetRequestIDFromContext(c), "review", "accept")
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	logging.LogReviewDecision(middleware.GetRequestIDFromContext(c), req.ShopID, "accepted", result.Table)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}

// handleHistory returns the release history for the shop named by the
// request cookie. The id is read from the cookie only, never from query or
// body.
func (s *APIServer) handleHistory(c *gin.Context) {
	shopID, err := c.Cookie("shop_id")
	if err != nil || shopID == "" {
		respondError(c, apierrors.NewInvalidRequestError("shop_id cookie is required"))
		return
	}

	entries, err := s.details.History(c.Request.Context(), shopID)
	if err != nil {
		logging.LogError(err, middleware.GetRequestIDFromContext(c), "details", "history")
		respondError(c, apierrors.ErrInternalServerError)
		return
	}
	if entries == nil {
		entries = []map[string]any{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(entries),
		"data":    entries,
	})
}

// handlePublish publishes an accepted shop's geocoded locations
func (s *APIServer) handlePublish(c *gin.Context) {
	var req struct {
		ShopID string `json:"shop_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}
	if req.ShopID == "" {
		respondError(c, apierrors.NewInvalidRequestError("shop_id is required"))
		return
	}

	result, err := s.reviews.Publish(c.Request.Context(), req.ShopID)
	if err != nil {
		switch {
		case errors.Is(err, review.ErrNoAcceptedReview):
			respondError(c, apierrors.ErrNoAcceptedShopError)
		case errors.Is(err, review.ErrNoLocations):
			respondError(c, apierrors.NewInvalidRequestError("shop has no locations to publish"))
		case errors.Is(err, review.ErrMissingPostalCode):
			respondError(c, apierrors.NewInvalidRequestError(err.Error()))
		case errors.Is(err, geocode.ErrRetriesExhausted):
			respondError(c, apierrors.ErrUpstreamUnavailableError)
		default:
			logging.LogError(err, middleware.GetRequestIDFromContext(c), "review", "publish")
			respondError(c, apierrors.NewUpstreamError("publish failed"))
		}
		return
	}

	if result.Published {
		logging.LogReviewDecision(middleware.GetRequestIDFromContext(c), req.ShopID, "published", "live")
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}

// handleLiveLocations lists the published location rows for a shop
func (s *APIServer) handleLiveLocations(c *gin.Context) {
	shopID := c.Query("shop_id")
	if shopID == "" {
		respondError(c, apierrors.NewInvalidRequestError("shop_id is required"))
		return
	}

	rows, err := s.reviews.PublishedLocations(c.Request.Context(), shopID)
	if err != nil {
		if errors.Is(err, review.ErrLiveNotConfigured) {
			respondError(c, apierrors.ErrUpstreamUnavailableError)
			return
		}
		logging.LogError(err, middleware.GetRequestIDFromContext(c), "review", "live_locations")
		respondError(c, apierrors.ErrInternalServerError)
		return
	}
	if rows == nil {
		rows = []live.LocationRow{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(rows),
		"data":    rows,
	})
}

// handleAnalyticsRollup recomputes daily unique customers for one day
func (s *APIServer) handleAnalyticsRollup(c *gin.Context) {
	var req struct {
		Date string `json:"date"`
	}
	// Body is optional; default is yesterday (UTC)
	_ = c.ShouldBindJSON(&req)

	day := time.Now().UTC().AddDate(0, 0, -1)
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			respondError(c, apierrors.NewInvalidRequestError("date must be YYYY-MM-DD"))
			return
		}
		day = parsed
	}

	counts, err := s.analytics.RollupDay(c.Request.Context(), day)
	if err != nil {
		if errors.Is(err, analytics.ErrNotConfigured) {
			respondError(c, apierrors.ErrUpstreamUnavailableError)
			return
		}
		logging.LogError(err, middleware.GetRequestIDFromContext(c), "analytics", "rollup")
		respondError(c, apierrors.ErrInternalServerError)
		return
	}
	if counts == nil {
		counts = []analytics.DailyUniqueCount{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(counts),
		"data":    counts,
	})
}

// handleDailyUniques returns a shop's daily unique-customer rollups
func (s *APIServer) handleDailyUniques(c *gin.Context) {
	shopID := c.Query("shop_id")
	if shopID == "" {
		respondError(c, apierrors.NewInvalidRequestError("shop_id is required"))
		return
	}

	rows, err := s.analytics.DailyUniques(c.Request.Context(), shopID)
	if err != nil {
		logging.LogError(err, middleware.GetRequestIDFromContext(c), "analytics", "daily_uniques")
		respondError(c, apierrors.ErrInternalServerError)
		return
	}
	if rows == nil {
		rows = []map[string]any{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(rows),
		"data":    rows,
	})
}

// respondError sends a standardized error response
func respondError(c *gin.Context, err *apierrors.APIError) {
	requestID := middleware.GetRequestIDFromContext(c)
	c.JSON(err.HTTPStatus, apierrors.NewErrorResponse(err, requestID))
}

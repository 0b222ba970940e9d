package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"shop-sync-service/internal/models"
	"shop-sync-service/internal/scheduler"
	"shop-sync-service/internal/service"
	"shop-sync-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const defaultPushTimeout = 2 * time.Minute

// WebhookProcessor handles pushed and queued platform events
type WebhookProcessor interface {
	HandlePush(ctx context.Context, body []byte, headers service.PushHeaders) error
	Drain(ctx context.Context) (*service.DrainResult, error)
}

// ShopSyncer runs one order sync pass for a shop
type ShopSyncer interface {
	SyncShopOrders(ctx context.Context, opts service.SyncOptions) *service.SyncResult
}

// FanOut schedules per-shop sync jobs
type FanOut interface {
	SyncAllShops(ctx context.Context, req service.FanOutRequest) (int, error)
}

// JobRunner controls job triggers and manual runs
type JobRunner interface {
	RunNow(ctx context.Context, jobID string) (*scheduler.Result, error)
	ScheduleByID(ctx context.Context, jobID string) error
	UnscheduleJob(jobID string)
	IsScheduled(jobID string) bool
}

// ExecutionHistory lists recorded executions of a job
type ExecutionHistory interface {
	ListExecutions(ctx context.Context, jobID string, limit int) ([]models.JobExecution, error)
}

// OrderReader reads persisted order snapshots
type OrderReader interface {
	FindOrder(ctx context.Context, shopID, orderID string) (*models.Order, error)
	GetOrderPackages(ctx context.Context, id string) ([]models.OrderPackage, error)
}

// Pinger reports whether a backing dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the collaborators the HTTP handlers call into
type Services struct {
	Webhooks   WebhookProcessor
	Syncer     ShopSyncer
	FanOut     FanOut
	Jobs       JobRunner
	Executions ExecutionHistory
	Orders     OrderReader
}

// Handler contains HTTP handlers
type Handler struct {
	services     Services
	dependencies map[string]Pinger
	maxBodyBytes int64
	pushTimeout  time.Duration
	logger       *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(services Services, dependencies map[string]Pinger, maxBodyBytes int64) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	return &Handler{
		services:     services,
		dependencies: dependencies,
		maxBodyBytes: maxBodyBytes,
		pushTimeout:  defaultPushTimeout,
		logger:       util.GetLogger(),
	}
}

// WithPushTimeout bounds the processing of one pushed webhook
func (h *Handler) WithPushTimeout(d time.Duration) *Handler {
	if d > 0 {
		h.pushTimeout = d
	}
	return h
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(tracingMiddleware(serviceName)...)
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/webhooks/tiktok", h.receiveWebhook)
		v1.POST("/webhooks/tiktok/drain", h.drainWebhooks)

		v1.POST("/shops/sync-all", h.syncAllShops)
		v1.POST("/shops/:shopId/sync", h.syncShop)
		v1.GET("/shops/:shopId/orders/:orderId", h.getOrder)

		v1.POST("/jobs/:id/run", h.runJob)
		v1.POST("/jobs/:id/schedule", h.scheduleJob)
		v1.DELETE("/jobs/:id/schedule", h.unscheduleJob)
		v1.GET("/jobs/:id/schedule", h.jobSchedule)
		v1.GET("/jobs/:id/executions", h.listExecutions)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.dependencies))
	ready := true
	for name, dep := range h.dependencies {
		if err := dep.Ping(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"checks": checks,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}

// receiveWebhook handles a pushed platform event. Once the event is
// authenticated the platform always gets the success envelope.
func (h *Handler) receiveWebhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "Request body too large",
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Failed to read request body",
			"details": err.Error(),
		})
		return
	}

	// a dropped platform connection must not cut an order sync short
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), h.pushTimeout)
	defer cancel()

	err = h.services.Webhooks.HandlePush(ctx, body, service.PushHeaders{
		Signature:     c.GetHeader("x-tts-signature"),
		Timestamp:     c.GetHeader("x-tts-timestamp"),
		Authorization: c.GetHeader("Authorization"),
	})
	switch {
	case errors.Is(err, service.ErrMalformedWebhook):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid webhook payload",
			"details": err.Error(),
		})
		return
	case errors.Is(err, service.ErrInvalidSignature):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Invalid webhook signature",
		})
		return
	case err != nil:
		h.logger.Error("Failed to handle webhook", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to handle webhook",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "success",
		"data":    nil,
	})
}

// drainWebhooks processes the queued webhook events
func (h *Handler) drainWebhooks(c *gin.Context) {
	result, err := h.services.Webhooks.Drain(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to drain webhooks",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// syncShop runs a manual order sync for one shop
func (h *Handler) syncShop(c *gin.Context) {
	var opts service.SyncOptions
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&opts); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request body",
				"details": err.Error(),
			})
			return
		}
	}
	opts.ShopID = c.Param("shopId")

	result := h.services.Syncer.SyncShopOrders(c.Request.Context(), opts)
	c.JSON(syncStatus(result), result)
}

func syncStatus(result *service.SyncResult) int {
	if result.Success {
		return http.StatusOK
	}
	switch result.ErrorCode {
	case service.KindNotFound.String():
		return http.StatusNotFound
	case service.KindMalformed.String():
		return http.StatusBadRequest
	default:
		// platform and per-shop failures are reported in the body
		return http.StatusOK
	}
}

// syncAllShops schedules one sync job per active shop
func (h *Handler) syncAllShops(c *gin.Context) {
	var req service.FanOutRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request body",
				"details": err.Error(),
			})
			return
		}
	}

	scheduled, err := h.services.FanOut.SyncAllShops(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to schedule shop syncs",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"scheduled": scheduled,
	})
}

// getOrder returns a synced order with its packages
func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.services.Orders.FindOrder(c.Request.Context(), c.Param("shopId"), c.Param("orderId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load order",
			"details": err.Error(),
		})
		return
	}
	if order == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Order not found",
		})
		return
	}

	packages, err := h.services.Orders.GetOrderPackages(c.Request.Context(), order.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load order packages",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order":    order,
		"packages": packages,
	})
}

// runJob executes a job immediately
func (h *Handler) runJob(c *gin.Context) {
	jobID := c.Param("id")

	result, err := h.services.Jobs.RunNow(c.Request.Context(), jobID)
	if errors.Is(err, scheduler.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Job not found",
		})
		return
	}
	if result == nil {
		details := "no result"
		if err != nil {
			details = err.Error()
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to run job",
			"details": details,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobId":  jobID,
		"result": result,
	})
}

// scheduleJob (re)arms the trigger of a stored job
func (h *Handler) scheduleJob(c *gin.Context) {
	jobID := c.Param("id")

	err := h.services.Jobs.ScheduleByID(c.Request.Context(), jobID)
	switch {
	case errors.Is(err, scheduler.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Job not found",
		})
		return
	case errors.Is(err, scheduler.ErrInvalidCronExpression),
		errors.Is(err, scheduler.ErrInvalidTrigger):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid job trigger",
			"details": err.Error(),
		})
		return
	case errors.Is(err, scheduler.ErrJobNotActive):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "Job is not active",
			"details": err.Error(),
		})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to schedule job",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobId":     jobID,
		"scheduled": h.services.Jobs.IsScheduled(jobID),
	})
}

// unscheduleJob removes the trigger of a job
func (h *Handler) unscheduleJob(c *gin.Context) {
	jobID := c.Param("id")
	h.services.Jobs.UnscheduleJob(jobID)

	c.JSON(http.StatusOK, gin.H{
		"jobId":     jobID,
		"scheduled": false,
	})
}

// jobSchedule reports whether a job has an armed trigger
func (h *Handler) jobSchedule(c *gin.Context) {
	jobID := c.Param("id")

	c.JSON(http.StatusOK, gin.H{
		"jobId":     jobID,
		"scheduled": h.services.Jobs.IsScheduled(jobID),
	})
}

// listExecutions returns the latest executions of a job
func (h *Handler) listExecutions(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid limit",
			})
			return
		}
		limit = n
	}

	execs, err := h.services.Executions.ListExecutions(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to list executions",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobId":      c.Param("id"),
		"executions": execs,
	})
}

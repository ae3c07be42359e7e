package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cadencehq/cadence/internal/config"
	"github.com/cadencehq/cadence/internal/models"
	"github.com/cadencehq/cadence/internal/service"
	"github.com/cadencehq/cadence/internal/service/adapter"
	"github.com/cadencehq/cadence/internal/service/adapter/webhook"
)

type Server struct {
	Config *config.Config
	DB     *gorm.DB
	Router *gin.Engine
	Logger *zap.Logger
	Server *http.Server

	// Services
	Store      *service.ScheduleStore
	Catalog    *service.RuleCatalog
	Scheduler  *service.SchedulerService
	Publisher  *service.PublishService
	Dispatcher *service.Dispatcher
	Analytics  *service.AnalyticsService
	Stats      *service.StatsUpdater
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	// Set gin mode
	gin.SetMode(cfg.Server.Mode)

	// Initialize database when configured; the store runs purely in memory
	// otherwise.
	var db *gorm.DB
	if cfg.Database.Enabled {
		var err error
		db, err = service.NewDatabase(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
	}

	tick, err := time.ParseDuration(cfg.Dispatcher.TickInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid tick interval: %w", err)
	}
	tolerance, err := time.ParseDuration(cfg.Dispatcher.Tolerance)
	if err != nil {
		return nil, fmt.Errorf("invalid tolerance: %w", err)
	}
	retryDelay, err := time.ParseDuration(cfg.Dispatcher.RetryDelay)
	if err != nil {
		return nil, fmt.Errorf("invalid retry delay: %w", err)
	}
	deliveryTimeout, err := time.ParseDuration(cfg.Dispatcher.DeliveryTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid delivery timeout: %w", err)
	}

	// Initialize services
	store := service.NewScheduleStore(db, logger)
	if err := store.Load(); err != nil {
		return nil, err
	}

	catalog := service.NewRuleCatalog(logger)
	scheduler := service.NewSchedulerService(catalog, store, service.SystemClock, logger)

	registry := adapter.NewRegistry(logger)
	for _, ch := range cfg.Channels {
		if err := registry.Register(webhook.NewAdapter(logger, ch.ID, ch.WebhookURL, ch.AuthToken)); err != nil {
			logger.Error("Failed to register channel adapter",
				zap.String("channel_id", ch.ID), zap.Error(err))
		}
	}

	publisher := service.NewPublishService(store, registry, service.SystemClock, logger, retryDelay, deliveryTimeout)
	dispatcher := service.NewDispatcher(store, publisher, service.SystemClock, logger, tick, tolerance)
	analytics := service.NewAnalyticsService(store, logger)

	var stats *service.StatsUpdater
	if cfg.Stats.Enabled && db != nil {
		interval, err := time.ParseDuration(cfg.Stats.UpdateInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid stats interval: %w", err)
		}
		stats = service.NewStatsUpdater(store, db, service.SystemClock, logger, interval)
	}

	// Create router
	router := gin.New()

	srv := &Server{
		Config:     cfg,
		DB:         db,
		Router:     router,
		Logger:     logger,
		Store:      store,
		Catalog:    catalog,
		Scheduler:  scheduler,
		Publisher:  publisher,
		Dispatcher: dispatcher,
		Analytics:  analytics,
		Stats:      stats,
	}

	srv.setupMiddleware()
	srv.setupRoutes()

	return srv, nil
}

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.Router.Use(gin.Recovery())

	// Logger middleware
	s.Router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	// CORS middleware
	s.Router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})
}

func (s *Server) setupRoutes() {
	// Health check
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	// API routes
	api := s.Router.Group("/api/v1")
	{
		campaigns := api.Group("/campaigns")
		{
			campaigns.POST("", s.handleCreateSchedule)
			campaigns.GET("/:id", s.handleGetSchedule)
			campaigns.POST("/:id/approve", s.handleApproveCampaign)
			campaigns.GET("/:id/analytics", s.handleGetAnalytics)
		}

		posts := api.Group("/posts")
		{
			posts.PATCH("/:id", s.handleUpdatePost)
			posts.POST("/:id/cancel", s.handleCancelPost)
			posts.POST("/:id/reschedule", s.handleReschedulePost)
		}

		rules := api.Group("/rules")
		{
			rules.POST("", s.handleRegisterRule)
			rules.GET("", s.handleListRules)
		}
	}
}

type createScheduleRequest struct {
	CampaignID       string               `json:"campaign_id"`
	Title            string               `json:"title" binding:"required"`
	StartDate        string               `json:"start_date" binding:"required"`
	EndDate          string               `json:"end_date" binding:"required"`
	Channels         []string             `json:"channels" binding:"required"`
	ContentItems     []models.PostContent `json:"content_items" binding:"required"`
	Frequency        models.Frequency     `json:"frequency"`
	CustomCron       string               `json:"custom_cron"`
	AutoPublish      bool                 `json:"auto_publish"`
	RequiresApproval bool                 `json:"requires_approval"`
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func (s *Server) handleCreateSchedule(c *gin.Context) {
	var req createScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	start, err := parseDate(req.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid start_date: %v", err)})
		return
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid end_date: %v", err)})
		return
	}

	channels := make([]service.Channel, 0, len(req.Channels))
	for _, raw := range req.Channels {
		ch, err := service.ParseChannel(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		channels = append(channels, ch)
	}

	schedule, err := s.Scheduler.CreateSchedule(service.CreateScheduleRequest{
		CampaignID:       req.CampaignID,
		Title:            req.Title,
		StartDate:        start,
		EndDate:          end,
		Channels:         channels,
		ContentItems:     req.ContentItems,
		Frequency:        req.Frequency,
		CustomCron:       req.CustomCron,
		AutoPublish:      req.AutoPublish,
		RequiresApproval: req.RequiresApproval,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, schedule)
}

func (s *Server) handleGetSchedule(c *gin.Context) {
	schedule, ok := s.Store.GetSchedule(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
		return
	}
	c.JSON(http.StatusOK, schedule)
}

type approveRequest struct {
	ApprovedBy string `json:"approved_by" binding:"required"`
}

func (s *Server) handleApproveCampaign(c *gin.Context) {
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !s.Store.ApproveCampaign(c.Param("id"), req.ApprovedBy, time.Now()) {
		c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
		return
	}

	schedule, _ := s.Store.GetSchedule(c.Param("id"))
	c.JSON(http.StatusOK, schedule)
}

func (s *Server) handleGetAnalytics(c *gin.Context) {
	analytics, err := s.Analytics.GetCampaignAnalytics(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, analytics)
}

func (s *Server) handleUpdatePost(c *gin.Context) {
	var upd models.ContentUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !s.Store.UpdateContent(c.Param("id"), upd) {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}

	post, _ := s.Store.GetPost(c.Param("id"))
	c.JSON(http.StatusOK, post)
}

func (s *Server) handleCancelPost(c *gin.Context) {
	if !s.Store.CancelPost(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}

	post, _ := s.Store.GetPost(c.Param("id"))
	c.JSON(http.StatusOK, post)
}

type rescheduleRequest struct {
	ScheduledFor time.Time `json:"scheduled_for" binding:"required"`
}

func (s *Server) handleReschedulePost(c *gin.Context) {
	var req rescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !s.Store.ReschedulePost(c.Param("id"), req.ScheduledFor) {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}

	post, _ := s.Store.GetPost(c.Param("id"))
	c.JSON(http.StatusOK, post)
}

type registerRuleRequest struct {
	ChannelType      models.ChannelType `json:"channel_type" binding:"required"`
	Weekdays         []string           `json:"weekdays" binding:"required"`
	TimeSlots        []string           `json:"time_slots" binding:"required"`
	Timezone         string             `json:"timezone"`
	MaxPostsPerDay   int                `json:"max_posts_per_day"`
	MinIntervalHours int                `json:"min_interval_hours"`
}

func (s *Server) handleRegisterRule(c *gin.Context) {
	var req registerRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	for _, day := range req.Weekdays {
		if _, ok := models.ParseWeekday(day); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown weekday %q", day)})
			return
		}
	}
	if req.MaxPostsPerDay <= 0 {
		req.MaxPostsPerDay = 1
	}
	if req.Timezone == "" {
		req.Timezone = "UTC"
	}

	rule := models.SchedulingRule{
		ChannelType:      req.ChannelType,
		Weekdays:         req.Weekdays,
		TimeSlots:        req.TimeSlots,
		Timezone:         req.Timezone,
		MaxPostsPerDay:   req.MaxPostsPerDay,
		MinIntervalHours: req.MinIntervalHours,
	}
	s.Catalog.Register(rule)

	if s.DB != nil {
		rule.Custom = true
		if err := s.DB.Create(&rule).Error; err != nil {
			s.Logger.Error("Failed to persist scheduling rule", zap.Error(err))
		}
	}

	c.JSON(http.StatusCreated, rule)
}

func (s *Server) handleListRules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rules": s.Catalog.Rules()})
}

func (s *Server) Start(ctx context.Context) error {
	// Start background loops
	if s.Config.Dispatcher.Enabled {
		s.Dispatcher.Start(ctx)
	}
	if s.Stats != nil {
		s.Stats.Start(ctx)
	}

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)

	s.Server = &http.Server{
		Addr:    addr,
		Handler: s.Router,
	}

	s.Logger.Info("Starting HTTP server", zap.String("addr", addr))

	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		return s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	}

	return s.Server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	// Stop background loops first
	if s.Config.Dispatcher.Enabled {
		s.Dispatcher.Stop()
	}
	if s.Stats != nil {
		s.Stats.Stop()
	}

	if s.Server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.Server.Shutdown(shutdownCtx)
}

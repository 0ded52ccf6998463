package server

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/aman-churiwal/marketplace-gateway/internal/broker"
	"github.com/aman-churiwal/marketplace-gateway/internal/cache"
	"github.com/aman-churiwal/marketplace-gateway/internal/config"
	"github.com/aman-churiwal/marketplace-gateway/internal/handler"
	"github.com/aman-churiwal/marketplace-gateway/internal/healthcheck"
	"github.com/aman-churiwal/marketplace-gateway/internal/middleware"
	"github.com/aman-churiwal/marketplace-gateway/internal/ratelimit"
	"github.com/aman-churiwal/marketplace-gateway/internal/repository"
	"github.com/aman-churiwal/marketplace-gateway/internal/service"
	"github.com/aman-churiwal/marketplace-gateway/internal/signing"
	"github.com/aman-churiwal/marketplace-gateway/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Server struct {
	router      *gin.Engine
	config      *config.Config
	redis       *storage.RedisClient
	postgres    *storage.Postgres
	cache       *cache.ListingCache
	marketplace *service.MarketplaceService
	checker     *healthcheck.Checker
	httpServer  *http.Server
	stopCleanup chan struct{}
}

func New(cfg *config.Config, redis *storage.RedisClient, postgres *storage.Postgres) (*Server, error) {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	keyring, err := signing.NewStaticKeyring(cfg.TrustKeys)
	if err != nil {
		return nil, err
	}

	brokers, err := buildBrokers(cfg.Brokers, keyring)
	if err != nil {
		return nil, err
	}

	cacheTTL := time.Duration(cfg.Cache.TTLSeconds) * time.Second
	listingCache := cache.New(cache.Config{
		MaxSize:    cfg.Cache.MaxSize,
		DefaultTTL: cacheTTL,
	})

	marketplace := service.NewMarketplaceService(listingCache, brokers, cacheTTL)

	userRepo := repository.NewUserRepository(postgres)
	authService := service.NewAuthService(userRepo, cfg.Auth.JWTSecret, cfg.Auth.ExpiryHours)

	submissionRepo := repository.NewSubmissionRepository(postgres)
	submissionService := service.NewSubmissionService(submissionRepo)

	targets := make(map[string]string, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		targets[b.Name] = b.BaseURL
	}
	checker := healthcheck.NewChecker(healthcheck.Config{Targets: targets})

	s := &Server{
		router:      gin.New(),
		config:      cfg,
		redis:       redis,
		postgres:    postgres,
		cache:       listingCache,
		marketplace: marketplace,
		checker:     checker,
		stopCleanup: make(chan struct{}),
	}

	listingsHandler := handler.NewListingsHandler(marketplace, cacheTTL)
	publishHandler := handler.NewPublishHandler(marketplace, submissionService)
	authHandler := handler.NewAuthHandler(authService)

	s.setupMiddleware(authService)
	s.setupRoutes(listingsHandler, publishHandler, authHandler, authService)

	return s, nil
}

func buildBrokers(configs []config.BrokerConfig, keyring signing.KeyResolver) ([]broker.Broker, error) {
	brokers := make([]broker.Broker, 0, len(configs))

	for _, bc := range configs {
		switch bc.Type {
		case "signed":
			brokers = append(brokers, broker.NewSignedBroker(broker.SignedConfig{
				Name:              bc.Name,
				BaseURL:           bc.BaseURL,
				APIKey:            os.Getenv(bc.APIKeyEnv),
				RequestsPerMinute: bc.RequestsPerMinute,
			}, keyring))
		case "catalog":
			brokers = append(brokers, broker.NewCatalogBroker(broker.CatalogConfig{
				Name:              bc.Name,
				BaseURL:           bc.BaseURL,
				RequestsPerMinute: bc.RequestsPerMinute,
			}, keyring))
		}

		logrus.WithFields(logrus.Fields{"broker": bc.Name, "type": bc.Type}).Info("registered broker")
	}

	return brokers, nil
}

func (s *Server) setupMiddleware(authService *service.AuthService) {
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger())
	s.router.Use(middleware.CORS())

	if s.config.ClientRateLimit.Enabled {
		limiter := ratelimit.NewFixedWindow(s.redis, s.config.ClientRateLimit.RequestsPerMinute, time.Minute)
		s.router.Use(middleware.RateLimit(limiter))
	}
}

func (s *Server) setupRoutes(listings *handler.ListingsHandler, publish *handler.PublishHandler, auth *handler.AuthHandler, authService *service.AuthService) {
	s.router.GET("/health", s.healthCheck)

	s.router.POST("/auth/register", auth.Register)
	s.router.POST("/auth/login", auth.Login)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/listings", listings.List)
		v1.GET("/listings/:id", listings.Get)
		v1.POST("/listings/:id/download", listings.Download)

		secured := v1.Group("")
		secured.Use(middleware.RequireAuth(authService))
		{
			secured.POST("/publish", publish.Publish)
			secured.GET("/submissions", publish.ListSubmissions)
			secured.GET("/submissions/:id", publish.GetSubmission)
		}
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	ctx := c.Request.Context()

	redisHealthy := s.redis.Ping(ctx) == nil
	dbHealthy := s.postgres.Ping(ctx) == nil

	providers := s.checker.Snapshot()
	providersHealthy := true
	for _, status := range providers {
		if !status.Healthy {
			providersHealthy = false
		}
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !redisHealthy || !dbHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	} else if !providersHealthy {
		// Partial provider failure degrades results, not availability.
		status = "degraded"
	}

	c.JSON(statusCode, gin.H{
		"status":    status,
		"service":   "marketplace-gateway",
		"timestamp": time.Now().Unix(),
		"checks": gin.H{
			"redis":     redisHealthy,
			"database":  dbHealthy,
			"providers": providers,
		},
	})
}

func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.checker.Start()
	go s.cleanupLoop()

	logrus.WithFields(logrus.Fields{
		"addr":        addr,
		"environment": s.config.Server.Environment,
	}).Info("starting marketplace gateway")

	return s.httpServer.ListenAndServe()
}

// cleanupLoop periodically sweeps expired cache entries. Expiry is
// already enforced lazily on reads; the sweep only bounds memory for
// entries that are never read again.
func (s *Server) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := s.cache.CleanupExpired(); removed > 0 {
				logrus.WithField("removed", removed).Debug("cache cleanup")
			}
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	logrus.Info("shutting down server")

	s.checker.Stop()
	close(s.stopCleanup)

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// Package api wires together all HTTP routes for the supplier portal.
//
// Route groups:
//   - /api/v1/supplier access-code endpoints are public and share the strict
//     authentication rate limit. Session status and logout are public. The remaining
//     supplier endpoints require a session resolved by
//     middleware.SupplierSessionMiddleware.
//   - /api/v1/admin requires the bcrypt-checked admin key.
//   - /health, /ready and /version are unauthenticated.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/intelleges/iaos-compliance-platform-sub001/internal/accesscode"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/api/admin"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/api/supplier"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/audit"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/auth"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/config"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/crypto"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/db/repositories"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/events"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/jobs"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/middleware"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/notify"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/responses"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/session"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/storage"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/verification"

	// Import storage backends to register them
	_ "github.com/intelleges/iaos-compliance-platform-sub001/internal/storage/local"
	_ "github.com/intelleges/iaos-compliance-platform-sub001/internal/storage/s3"
)

// Version is the build version, overridden with -ldflags "-X ...api.Version=...".
var Version = "0.1.0"

// derivationIterations is the PBKDF2 iteration count for passphrase-derived keys.
const derivationIterations = 210000

// BackgroundServices holds the jobs and resources that outlive a single request.
// cmd/server calls Start once the router is built and Shutdown after the HTTP server
// has drained.
type BackgroundServices struct {
	purger       *jobs.VerificationCodePurger
	sweeper      *jobs.MemorySweeper
	rateLimiters []*middleware.RateLimiter
	recorder     *audit.Recorder
	shipper      *audit.MultiShipper
	redis        *redis.Client

	startOnce sync.Once
}

// Start launches the background jobs. They stop when ctx is cancelled or on Shutdown.
func (bg *BackgroundServices) Start(ctx context.Context) {
	bg.startOnce.Do(func() {
		go bg.purger.Start(ctx)
		if bg.sweeper != nil {
			go bg.sweeper.Start(ctx)
		}
	})
}

// Shutdown stops background goroutines, waits for audit shipping and closes shared
// clients.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	bg.purger.Stop()
	if bg.sweeper != nil {
		bg.sweeper.Stop()
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	bg.recorder.Wait()
	if bg.shipper != nil {
		if err := bg.shipper.Close(); err != nil {
			slog.Warn("failed to close audit shippers", "error", err)
		}
	}
	if bg.redis != nil {
		if err := bg.redis.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// newAnswerCipher builds the CUI answer cipher. It returns nil when no key material
// is configured.
func newAnswerCipher(cfg config.EncryptionConfig) (*crypto.AnswerCipher, error) {
	switch {
	case cfg.Key != "":
		key, err := crypto.ParseKey(cfg.Key)
		if err != nil {
			return nil, fmt.Errorf("encryption.key: %w", err)
		}
		return crypto.NewAnswerCipher(key)
	case cfg.Passphrase != "":
		return crypto.DeriveAnswerCipher(cfg.Passphrase, []byte(cfg.Salt), derivationIterations)
	default:
		slog.Warn("no encryption key configured; CUI answers will be stored unencrypted")
		return nil, nil
	}
}

// newRedisClient connects to Redis when an address is configured.
func newRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Address, err)
	}
	return rdb, nil
}

// NewRouter creates and configures the Gin router and the services behind it.
func NewRouter(cfg *config.Config, db *sqlx.DB) (*gin.Engine, *BackgroundServices, error) {
	storageBackend, err := storage.NewStorage(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	slog.Info("initialized storage backend", "backend", cfg.Storage.DefaultBackend)

	cipher, err := newAnswerCipher(cfg.Encryption)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize answer cipher: %w", err)
	}

	rdb, err := newRedisClient(cfg.Redis)
	if err != nil {
		return nil, nil, err
	}

	// Repositories
	accessCodeRepo := repositories.NewAccessCodeRepository(db)
	assignmentRepo := repositories.NewAssignmentRepository(db)
	auditRepo := repositories.NewAuditRepository(db)
	partnerRepo := repositories.NewPartnerRepository(db)
	responseRepo := repositories.NewResponseRepository(db)
	touchpointRepo := repositories.NewTouchpointRepository(db)
	verificationRepo := repositories.NewVerificationCodeRepository(db)

	// Audit trail and outbound integrations
	shipper, err := audit.NewMultiShipper(cfg.Audit.Shippers)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize audit shippers: %w", err)
	}
	var recorder *audit.Recorder
	if shipper.Len() > 0 {
		recorder = audit.NewRecorder(auditRepo, shipper)
	} else {
		recorder = audit.NewRecorder(auditRepo, nil)
		shipper = nil
	}
	sender := notify.NewFromConfig(cfg.Notifications)
	publisher := events.NewFromConfig(cfg.Events)

	// Session activity and OTP attempts live in Redis when it is configured so that
	// replicas agree; otherwise they are process-local and swept periodically.
	var (
		activity  session.ActivityStore
		limiter   verification.AttemptLimiter
		sweepable []jobs.Sweepable
	)
	if rdb != nil {
		activity = session.NewRedisActivityStore(rdb)
		limiter = verification.NewRedisAttemptLimiter(rdb, cfg.Verification.MaxAttempts, cfg.Verification.AttemptWindow)
	} else {
		memActivity := session.NewMemoryActivityStore()
		memLimiter := verification.NewMemoryAttemptLimiter(cfg.Verification.MaxAttempts, cfg.Verification.AttemptWindow)
		activity, limiter = memActivity, memLimiter
		sweepable = append(sweepable, memActivity, memLimiter)
	}

	secret, err := session.ResolveSecret(cfg.Session.Secret, session.IsDevMode())
	if err != nil {
		return nil, nil, err
	}
	sessions, err := session.NewManager(activity, session.Options{
		Secret:      secret,
		Issuer:      cfg.Session.Issuer,
		AbsoluteTTL: cfg.Session.AbsoluteTTL,
		IdleTTL:     cfg.Session.IdleTTL,
		IdleWarning: cfg.Session.IdleWarning,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize session manager: %w", err)
	}

	// Domain services
	codes := accesscode.NewStore(accessCodeRepo, cfg.AccessCodes.Length)
	issuer := verification.NewIssuer(verificationRepo, sender, limiter, verification.Options{
		CodeTTL:        cfg.Verification.CodeTTL,
		ResendCooldown: cfg.Verification.ResendCooldown,
	})
	responseService := responses.NewService(db, responses.Deps{
		Assignments:    assignmentRepo,
		Responses:      responseRepo,
		Questionnaires: touchpointRepo,
		AccessCodes:    accessCodeRepo,
		Cipher:         cipher,
		Recorder:       recorder,
		Publisher:      publisher,
	})

	supplierHandlers := supplier.NewHandlers(supplier.Deps{
		AccessCodes:    codes,
		Verifier:       issuer,
		Sessions:       sessions,
		Partners:       partnerRepo,
		Touchpoints:    touchpointRepo,
		Assignments:    assignmentRepo,
		Responses:      responseService,
		Storage:        storageBackend,
		Recorder:       recorder,
		Notifier:       sender,
		Cookie:         cfg.Session,
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
	})
	adminHandlers := admin.NewHandlers(admin.Deps{
		AccessCodes:    codes,
		Assignments:    assignmentRepo,
		Reviewer:       responseService,
		Touchpoints:    touchpointRepo,
		AuditLogs:      auditRepo,
		Recorder:       recorder,
		DefaultCodeTTL: cfg.AccessCodes.DefaultTTL,
	})

	bg := &BackgroundServices{
		purger:   jobs.NewVerificationCodePurger(verificationRepo, cfg.Verification.Retention, cfg.Verification.PurgeInterval),
		recorder: recorder,
		shipper:  shipper,
		redis:    rdb,
	}
	if len(sweepable) > 0 {
		bg.sweeper = jobs.NewMemorySweeper(0, sweepable...)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.LoggerMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.Security.CORS))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))
	router.Use(middleware.RequestInfoMiddleware())

	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db, storageBackend))
	router.GET("/version", versionHandler())

	generalLimits, authLimits := middleware.RateLimitConfigsFrom(cfg.Security.RateLimiting)
	apiV1 := router.Group("/api/v1")
	if cfg.Security.RateLimiting.Enabled {
		general := middleware.NewRateLimiter(generalLimits)
		bg.rateLimiters = append(bg.rateLimiters, general)
		apiV1.Use(middleware.RateLimitMiddleware(general))
	}

	supplierPublic := apiV1.Group("/supplier")
	supplierLogin := supplierPublic.Group("")
	if cfg.Security.RateLimiting.Enabled {
		authLimiter := middleware.NewRateLimiter(authLimits)
		bg.rateLimiters = append(bg.rateLimiters, authLimiter)
		supplierLogin.Use(middleware.RateLimitMiddleware(authLimiter))
	}
	supplierGated := supplierPublic.Group("")
	supplierGated.Use(middleware.SupplierSessionMiddleware(sessions, cfg.Session.CookieName))
	supplierHandlers.RegisterRoutes(supplierLogin, supplierPublic, supplierGated)

	adminGroup := apiV1.Group("/admin")
	adminGroup.Use(middleware.AdminAuthMiddleware(auth.NewAdminVerifier(cfg.Admin.APIKeyHash)))
	adminHandlers.RegisterRoutes(adminGroup)

	return router, bg, nil
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
func healthCheckHandler(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks the database and the storage backend.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks"
// @Failure      503  {object}  map[string]interface{}  "ready: false, checks, error"
// @Router       /ready [get]
func readinessHandler(db *sqlx.DB, storageBackend storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		// A known-absent key exercises credentials and connectivity without writing.
		if _, err := storageBackend.Exists(c.Request.Context(), ".readiness-probe"); err != nil {
			checks["storage"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "storage backend not ready",
			})
			return
		}
		checks["storage"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the build version and API version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

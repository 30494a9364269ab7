package httptransport

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"voice-quiz-server/internal/domain/auth"
	"voice-quiz-server/internal/platform/config"
	"voice-quiz-server/internal/platform/logging"
	"voice-quiz-server/internal/platform/observability"
)

const (
	// ContextUserID is the gin context key holding the authenticated learner.
	ContextUserID = "user_id"
	// DevUserHeader names the learner when auth is disabled.
	DevUserHeader = "X-User-Id"
)

// Options configures the HTTP router builder.
type Options struct {
	Config   *config.Config
	Logger   *logging.Logger
	Metrics  *observability.Metrics
	Verifier *auth.Verifier
}

// Router bundles the gin engine and its route groups. Secured requires a
// learner identity.
type Router struct {
	Engine  *gin.Engine
	API     *gin.RouterGroup
	Secured *gin.RouterGroup
}

// Build constructs a gin engine with recovery, logging, CORS and metrics.
func Build(opts Options) (*Router, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("http router requires config")
	}
	if opts.Config.Server.Auth.Enabled && opts.Verifier == nil {
		return nil, fmt.Errorf("http router: auth enabled without a verifier")
	}

	if strings.EqualFold(opts.Config.Log.Level, "debug") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(loggingMiddleware(opts.Logger))
	engine.Use(metricsMiddleware(opts.Metrics))
	_ = engine.SetTrustedProxies(nil)

	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", DevUserHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	api := engine.Group("/api")
	secured := api.Group("")
	secured.Use(authMiddleware(opts.Config.Server.Auth.Enabled, opts.Verifier))

	return &Router{
		Engine:  engine,
		API:     api,
		Secured: secured,
	}, nil
}

// UserID returns the learner set by the auth middleware.
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

func authMiddleware(enabled bool, verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			user := strings.TrimSpace(c.GetHeader(DevUserHeader))
			if user == "" {
				RespondError(c, http.StatusUnauthorized, DevUserHeader+" header required", nil)
				c.Abort()
				return
			}
			c.Set(ContextUserID, user)
			c.Next()
			return
		}

		token, err := auth.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			RespondDomainError(c, err)
			return
		}
		user, err := verifier.Verify(token)
		if err != nil {
			RespondDomainError(c, auth.ErrInvalidToken)
			return
		}
		c.Set(ContextUserID, user)
		c.Next()
	}
}

func loggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.InfoTag("HTTP", "%s %s -> %d (%s)",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func metricsMiddleware(metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		ctx, spanEnd := observability.StartSpan(c.Request.Context(), "http.server", path)
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		var spanErr error
		if len(c.Errors) > 0 {
			spanErr = c.Errors.Last().Err
		} else if status := c.Writer.Status(); status >= http.StatusInternalServerError {
			spanErr = fmt.Errorf("status %d", status)
		}
		spanEnd(spanErr)

		if metrics == nil {
			return
		}
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPDuration.WithLabelValues(c.Request.Method, path).Observe(duration.Seconds())
	}
}

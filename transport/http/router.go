package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/loginguard/logger"
	"github.com/layer-3/loginguard/ports"
	"github.com/layer-3/loginguard/service"
)

// MaxBodyBytes is the largest accepted request body
const MaxBodyBytes = 10 << 10

// RouterDeps are the collaborators of the HTTP surface. Health, Metrics and
// Logger are optional.
type RouterDeps struct {
	Auth             *service.AuthService
	LoginLimiter     *service.RateLimiter
	ChallengeLimiter *service.RateLimiter
	Health           ports.Pinger
	Metrics          http.Handler
	Logger           *slog.Logger
	TrustedProxies   []string
}

// SetupRouter sets up the Gin router
func SetupRouter(deps RouterDeps) (*gin.Engine, error) {
	log := deps.Logger
	if log == nil {
		log = logger.Discard()
	}

	router := gin.New()
	if err := router.SetTrustedProxies(deps.TrustedProxies); err != nil {
		return nil, err
	}
	router.Use(gin.Recovery(), RequestLogger(log), SecurityHeaders(), BodyLimit(MaxBodyBytes))

	handlers := NewAuthHandlers(deps.Auth, deps.Health, log)

	router.GET("/health", handlers.Health)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	api := router.Group("/api")
	{
		api.GET("/captcha",
			NoStore(),
			RateLimit(deps.ChallengeLimiter, "Too many captcha requests. Please slow down."),
			handlers.Captcha)
		api.POST("/login",
			NoStore(),
			RateLimit(deps.LoginLimiter, "Too many login attempts. Please try again later."),
			handlers.Login)
		api.POST("/register", handlers.Register)
		api.GET("/verify-token", AuthMiddleware(deps.Auth), handlers.VerifyToken)
	}

	return router, nil
}

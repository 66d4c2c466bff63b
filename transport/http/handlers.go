package http

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/loginguard/core"
	"github.com/layer-3/loginguard/ports"
	"github.com/layer-3/loginguard/service"
)

const (
	msgInvalidRequest = "Invalid request"
	msgLoginRejected  = "Invalid username, password or captcha"
	msgBlocked        = "Too many failed attempts. Please try again later."
	msgUnavailable    = "Service temporarily unavailable"
	msgInternal       = "Internal server error"
)

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService *service.AuthService
	health      ports.Pinger
	logger      *slog.Logger
}

// NewAuthHandlers creates new auth handlers. health may be nil.
func NewAuthHandlers(authService *service.AuthService, health ports.Pinger, logger *slog.Logger) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		health:      health,
		logger:      logger,
	}
}

// Captcha issues a new challenge
func (h *AuthHandlers) Captcha(c *gin.Context) {
	issued, err := h.authService.CreateChallenge(c.Request.Context())
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "failed to generate captcha", "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, core.ErrStoreUnavailable) {
			status = http.StatusServiceUnavailable
		}
		fail(c, status, "Failed to generate captcha")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"captchaId": issued.ID,
			"image":     issued.Payload,
		},
	})
}

type loginRequest struct {
	Username  string `json:"username" binding:"required,max=64"`
	Password  string `json:"password" binding:"required,max=128"`
	Captcha   string `json:"captcha" binding:"required,min=4,max=8"`
	CaptchaID string `json:"captchaId" binding:"required,uuid"`
}

// Login handles the login request
func (h *AuthHandlers) Login(c *gin.Context) {
	var req loginRequest
	if !h.bind(c, &req) {
		return
	}

	outcome := h.authService.Authenticate(c.Request.Context(), core.Attempt{
		Identity:          req.Username,
		Secret:            req.Password,
		ChallengeID:       req.CaptchaID,
		ChallengeResponse: req.Captcha,
		Source:            c.ClientIP(),
	})

	switch outcome.Kind {
	case core.OutcomeSuccess:
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Login successful",
			"token":   outcome.Token,
			"user":    outcome.Principal,
		})
	case core.OutcomeRejectedBlocked, core.OutcomeRejectedRateLimited:
		tooManyRequests(c, msgBlocked, outcome.RetryAfter)
	case core.OutcomeRejectedInvalidChallenge, core.OutcomeRejectedInvalidCredentials:
		fail(c, http.StatusBadRequest, msgLoginRejected)
	default:
		switch {
		case errors.Is(outcome.Err, core.ErrValidation):
			fail(c, http.StatusBadRequest, msgInvalidRequest)
		case errors.Is(outcome.Err, core.ErrStoreUnavailable):
			fail(c, http.StatusServiceUnavailable, msgUnavailable)
		default:
			fail(c, http.StatusInternalServerError, msgInternal)
		}
	}
}

type registerRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Password string `json:"password" binding:"required,min=6,max=128"`
	Email    string `json:"email" binding:"required,email,max=255"`
}

// Register creates a user account
func (h *AuthHandlers) Register(c *gin.Context) {
	var req registerRequest
	if !h.bind(c, &req) {
		return
	}

	principal, err := h.authService.Register(c.Request.Context(), req.Username, req.Password, req.Email)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrIdentityTaken):
			fail(c, http.StatusConflict, "Username already exists")
		case errors.Is(err, core.ErrValidation):
			fail(c, http.StatusBadRequest, msgInvalidRequest)
		default:
			h.logger.ErrorContext(c.Request.Context(), "failed to register user", "error", err)
			fail(c, http.StatusInternalServerError, msgInternal)
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "User registered successfully",
		"user":    principal,
	})
}

// VerifyToken returns the claims of the token validated by AuthMiddleware
func (h *AuthHandlers) VerifyToken(c *gin.Context) {
	claims, exists := c.Get(claimsKey)
	if !exists {
		fail(c, http.StatusInternalServerError, msgInternal)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    claims,
	})
}

// Health reports whether the shared store is reachable
func (h *AuthHandlers) Health(c *gin.Context) {
	body := gin.H{"timestamp": time.Now().UTC().Format(time.RFC3339)}
	if h.health == nil {
		body["status"] = "healthy"
		c.JSON(http.StatusOK, body)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.health.Ping(ctx); err != nil {
		h.logger.WarnContext(ctx, "health check failed", "error", err, "degraded", true)
		body["status"] = "degraded"
		body["redis"] = "disconnected"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}

	body["status"] = "healthy"
	body["redis"] = "connected"
	c.JSON(http.StatusOK, body)
}

// bind decodes the JSON body into req and writes the error response on failure
func (h *AuthHandlers) bind(c *gin.Context, req any) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		fail(c, http.StatusRequestEntityTooLarge, "Request body too large")
		return false
	}
	fail(c, http.StatusBadRequest, msgInvalidRequest)
	return false
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}

func tooManyRequests(c *gin.Context, message string, retryAfter time.Duration) {
	seconds := int(math.Ceil(retryAfter.Seconds()))
	body := gin.H{"success": false, "message": message}
	if seconds > 0 {
		c.Header("Retry-After", strconv.Itoa(seconds))
		body["retryAfter"] = seconds
	}
	c.AbortWithStatusJSON(http.StatusTooManyRequests, body)
}

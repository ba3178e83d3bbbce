package http

import (
	"net/http"

	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/adapters/transport/http/dto"
	appsvc "github.com/Miraines/MoonyAndStarry/auth-gateway/internal/app/auth/service"
	authErrors "github.com/Miraines/MoonyAndStarry/auth-gateway/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/infra/metrics"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const internalErrorMessage = "Internal server error"

type Handler struct {
	svc     appsvc.Service
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewHandler(svc appsvc.Service, log *zap.Logger, m *metrics.Metrics) *Handler {
	return &Handler{svc: svc, log: log, metrics: m}
}

func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/auth")
	g.POST("/register", h.register)
	g.POST("/login", h.login)
	g.POST("/validate", h.validate)
	g.POST("/refresh", h.refresh)
}

func (h *Handler) register(c *gin.Context) {
	var body dto.RegisterDTO
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badBody(c, "register", err)
		return
	}

	if err := h.svc.Register(c.Request.Context(), body); err != nil {
		h.handleError(c, "register", err)
		return
	}
	h.metrics.Outcome("register", "ok")
	c.String(http.StatusOK, dto.RegisteredMessage)
}

func (h *Handler) login(c *gin.Context) {
	var body dto.LoginDTO
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badBody(c, "login", err)
		return
	}

	pair, err := h.svc.Login(c.Request.Context(), body)
	if err != nil {
		h.handleError(c, "login", err)
		return
	}
	h.metrics.Outcome("login", "ok")
	c.JSON(http.StatusOK, dto.TokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (h *Handler) validate(c *gin.Context) {
	res, err := h.svc.ValidateAccessToken(c.Request.Context(), c.GetHeader("Authorization"))
	if err != nil {
		h.handleError(c, "validate", err)
		return
	}

	out := dto.ValidatedResponse{Valid: res.Valid}
	if res.Valid {
		id := res.UserID
		out.UserID = &id
		h.metrics.Outcome("validate", "ok")
	} else {
		h.metrics.Outcome("validate", "invalid")
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) refresh(c *gin.Context) {
	pair, err := h.svc.RefreshAccessToken(c.Request.Context(), c.GetHeader("Authorization"))
	if err != nil {
		h.handleError(c, "refresh", err)
		return
	}
	h.metrics.Outcome("refresh", "ok")
	c.JSON(http.StatusOK, dto.TokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (h *Handler) badBody(c *gin.Context, op string, err error) {
	h.log.Warn("malformed request body", zap.String("op", op), zap.Error(err))
	h.metrics.Outcome(op, "bad_request")
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Malformed request body"})
}

func (h *Handler) handleError(c *gin.Context, op string, err error) {
	status, result := classify(err)
	h.metrics.Outcome(op, result)

	if status == http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("op", op), zap.Error(err))
		_ = c.Error(err)
		c.JSON(status, dto.ErrorResponse{Error: internalErrorMessage})
		return
	}

	h.log.Warn(err.Error(), zap.String("op", op), zap.Int("status", status))
	c.JSON(status, dto.ErrorResponse{Error: err.Error()})
}

func classify(err error) (int, string) {
	switch {
	case authErrors.IsInvalidArgument(err):
		return http.StatusBadRequest, "invalid_argument"
	case authErrors.IsUserAlreadyExists(err):
		return http.StatusBadRequest, "user_exists"
	case authErrors.IsInvalidCredentials(err):
		return http.StatusBadRequest, "invalid_credentials"
	case authErrors.IsInvalidRefreshToken(err):
		return http.StatusBadRequest, "invalid_refresh_token"
	case authErrors.IsTokenMissing(err):
		return http.StatusBadRequest, "token_missing"
	case authErrors.IsUserNotFound(err):
		return http.StatusNotFound, "user_not_found"
	case authErrors.IsAuthenticationFailed(err):
		return http.StatusUnauthorized, "authentication_failed"
	case authErrors.IsTooManyAttempts(err):
		return http.StatusTooManyRequests, "throttled"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

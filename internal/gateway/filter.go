package gateway

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/adapters/client/authclient"
	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/adapters/transport/http/dto"
	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/domain/auth/jwt"
	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/infra/metrics"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	UserIDHeader = "X-User-Id"

	UnauthorizedMessage = "Unauthorized"
	UnreachableMessage  = "Authentication service is unreachable"
)

type Validator interface {
	Validate(ctx context.Context, authorization, clientIP string) (authclient.Result, error)
}

// Filter gates a request on a successful remote validation and stamps the
// caller's id on it.
type Filter struct {
	validator Validator
	log       *zap.Logger
	metrics   *metrics.Metrics
}

func NewFilter(v Validator, log *zap.Logger, m *metrics.Metrics) *Filter {
	return &Filter{validator: v, log: log, metrics: m}
}

// Authorize writes the rejection itself and returns false when the request
// must not be forwarded.
func (f *Filter) Authorize(c *gin.Context) bool {
	c.Request.Header.Del(UserIDHeader)

	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, jwt.BearerPrefix) {
		f.log.Warn("Missing or invalid Authorization header")
		f.metrics.Outcome("gateway_validate", "missing_token")
		c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{Error: UnauthorizedMessage})
		return false
	}

	res, err := f.validator.Validate(c.Request.Context(), header, c.ClientIP())

	var remote *authclient.RemoteError
	switch {
	case errors.As(err, &remote):
		f.log.Warn("Validation endpoint returned client error",
			zap.Int("status", remote.Status), zap.ByteString("body", remote.Body))
		f.metrics.Outcome("gateway_validate", "rejected")
		contentType := remote.ContentType
		if contentType == "" {
			contentType = "text/plain; charset=utf-8"
		}
		c.Data(remote.Status, contentType, remote.Body)
		c.Abort()
		return false

	case err != nil:
		var se *authclient.StatusError
		if errors.As(err, &se) {
			f.log.Error("Validation endpoint returned server error",
				zap.Int("status", se.Status), zap.ByteString("body", se.Body))
		} else {
			f.log.Error("Validation service is unreachable", zap.Error(err))
		}
		f.metrics.Outcome("gateway_validate", "unavailable")
		c.AbortWithStatusJSON(http.StatusInternalServerError, dto.ErrorResponse{Error: UnreachableMessage})
		return false

	case !res.Valid:
		f.log.Warn("Validation endpoint reported an invalid token")
		f.metrics.Outcome("gateway_validate", "invalid")
		c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{Error: UnauthorizedMessage})
		return false
	}

	f.metrics.Outcome("gateway_validate", "authorized")
	c.Request.Header.Set(UserIDHeader, strconv.FormatInt(res.UserID, 10))
	return true
}

// Handler exposes the filter as gin middleware.
func (f *Filter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if f.Authorize(c) {
			c.Next()
		}
	}
}

package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/signet-auth/signet-api/internal/ierr"
	"github.com/signet-auth/signet-api/internal/scope"
	"github.com/signet-auth/signet-api/internal/service"
)

const (
	apiKeyHeader            = "X-API-Key"
	accessContextContextKey = "accessContext"
)

// KeyAuthMiddleware verifies the presented secret and attaches the
// resulting access context for downstream authorization. Admin bearer
// tokens are accepted as an alternative so operators can manage keys
// before any management key exists.
func KeyAuthMiddleware(verifier *service.VerifierService, authService *service.AuthService, logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("KeyAuthMiddleware")
	return func(c *gin.Context) {
		presented := c.GetHeader(apiKeyHeader)
		if presented == "" {
			if authHeader := c.GetHeader(authorizationHeader); authHeader != "" {
				AdminAuthMiddleware(authService, logger)(c)
				return
			}
			log.Debug("API key header is missing")
			_ = c.Error(fmt.Errorf("%w: api key required", ierr.ErrUnauthorized))
			c.Abort()
			return
		}

		access, err := verifier.Verify(c.Request.Context(), presented, service.RequestMeta{
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		c.Set(accessContextContextKey, access)
		c.Next()
	}
}

// RequireScope rejects requests whose key does not satisfy the given
// management scope. Admin tokens bypass the check.
func RequireScope(required string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetAdminClaims(c) != nil {
			c.Next()
			return
		}

		access := GetAccessContext(c)
		if access == nil {
			_ = c.Error(fmt.Errorf("%w: no authenticated key", ierr.ErrUnauthorized))
			c.Abort()
			return
		}
		if !scope.Has(access.Scopes, required) {
			_ = c.Error(fmt.Errorf("%w: %s", ierr.ErrInsufficientScope, required))
			c.Abort()
			return
		}
		c.Next()
	}
}

func GetAccessContext(c *gin.Context) *service.AccessContext {
	value, exists := c.Get(accessContextContextKey)
	if !exists {
		return nil
	}
	access, ok := value.(*service.AccessContext)
	if !ok {
		return nil
	}
	return access
}

// GetActor derives the management actor from whichever credential
// authenticated the request.
func GetActor(c *gin.Context) service.Actor {
	if claims := GetAdminClaims(c); claims != nil {
		return service.Actor{
			ID:      claims.Username,
			IsAdmin: claims.Role == "admin",
		}
	}
	if access := GetAccessContext(c); access != nil {
		return service.Actor{
			ID:      "key:" + access.APIKeyID.String(),
			Subject: access.Subject,
		}
	}
	return service.Actor{}
}

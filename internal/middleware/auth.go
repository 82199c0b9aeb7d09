package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lumenlms/lms-api/internal/authz"
	"github.com/lumenlms/lms-api/internal/models"
	appErrors "github.com/lumenlms/lms-api/pkg/errors"
	"github.com/lumenlms/lms-api/pkg/response"
)

// ContextPrincipalKey is the gin context key storing the resolved principal.
const ContextPrincipalKey = "currentPrincipal"

type tokenValidator interface {
	ValidateToken(tokenString string) (*models.JWTClaims, error)
}

type principalLoader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// Authenticate requires a valid access token and resolves it to a live
// principal. The user row is reloaded on every request so a revoked token
// outlives a deactivation by at most nothing: a token naming a deactivated
// account is rejected here regardless of its expiry.
func Authenticate(auth tokenValidator, users principalLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := resolvePrincipal(c, auth, users)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		if principal == nil {
			response.Error(c, appErrors.ErrUnauthenticated)
			c.Abort()
			return
		}
		if !principal.Active {
			response.Error(c, appErrors.ErrInactiveAccount)
			c.Abort()
			return
		}
		c.Set(ContextPrincipalKey, principal)
		c.Next()
	}
}

// OptionalAuth resolves a principal when a token is present but never
// blocks. Anonymous requests proceed with no principal set.
func OptionalAuth(auth tokenValidator, users principalLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := resolvePrincipal(c, auth, users)
		if err == nil && principal != nil && principal.Active {
			c.Set(ContextPrincipalKey, principal)
		}
		c.Next()
	}
}

// Require gates a route on a role requirement. Routes with a self exception
// compare the principal against the :id path parameter.
func Require(req authz.RoleRequirement) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := PrincipalFrom(c)

		ownerID := ""
		if req.AllowsSelf() {
			ownerID = c.Param("id")
		}
		if d := req.Evaluate(principal, ownerID); !d.Allowed {
			response.Error(c, d.Err())
			c.Abort()
			return
		}
		c.Next()
	}
}

// PrincipalFrom extracts the resolved principal, nil when anonymous.
func PrincipalFrom(c *gin.Context) *authz.Principal {
	value, exists := c.Get(ContextPrincipalKey)
	if !exists {
		return nil
	}
	principal, ok := value.(*authz.Principal)
	if !ok {
		return nil
	}
	return principal
}

func resolvePrincipal(c *gin.Context, auth tokenValidator, users principalLoader) (*authz.Principal, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return nil, nil
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "invalid authorization header")
	}

	claims, err := auth.ValidateToken(parts[1])
	if err != nil {
		return nil, err
	}

	user, err := users.FindByID(c.Request.Context(), claims.UserID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "account no longer exists")
	}

	return &authz.Principal{ID: user.ID, Role: user.Role, Active: user.Active}, nil
}

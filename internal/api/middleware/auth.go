package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/db/models"
)

const currentUserKey = "current_user"

type AuthMiddleware struct {
	verifier IdentityVerifier
	db       *gorm.DB
}

func NewAuthMiddleware(verifier IdentityVerifier, db *gorm.DB) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier, db: db}
}

// RequireAuth verifies the bearer token and loads the account behind it.
// Suspended, pending and rejected accounts are cut off here even if they
// still hold a valid token.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		identity, err := am.verifier.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var user models.User
		query := am.db.WithContext(c.Request.Context())
		if identity.UserID != 0 {
			err = query.First(&user, identity.UserID).Error
		} else {
			err = query.Where("email = ?", strings.ToLower(identity.Email)).First(&user).Error
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if !user.CanAuthenticate() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "account is not active"})
			return
		}

		c.Set(currentUserKey, &user)
		c.Next()
	}
}

// RequireRole gates a route group on one of the given roles.
func (am *AuthMiddleware) RequireRole(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		for _, role := range roles {
			if user.Role == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
	}
}

// CurrentUser returns the authenticated account, or nil on unauthenticated
// routes.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(currentUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

package middleware

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/yukikurage/annotation-api/internal/constants"
	apierrors "github.com/yukikurage/annotation-api/internal/errors"
	"github.com/yukikurage/annotation-api/internal/models"
	"github.com/yukikurage/annotation-api/internal/repository"
)

// RequireAuth resolves the session user into an actor. Sessions of deleted
// or deactivated users are cleared.
func RequireAuth(users repository.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userID, ok := toUint64(session.Get(constants.ContextKeyUserID))
		if !ok {
			apierrors.Unauthorized(c, "")
			c.Abort()
			return
		}

		user, err := users.FindByID(userID)
		if err != nil || !user.IsActive {
			if err != nil {
				log.WithError(err).WithField("user_id", userID).Debug("session user not found")
			}
			session.Clear()
			_ = session.Save()
			apierrors.Unauthorized(c, "")
			c.Abort()
			return
		}

		c.Set(constants.ContextKeyUserID, user.ID)
		c.Set(constants.ContextKeyUserRole, user.Role)
		c.Next()
	}
}

// RequireRole rejects actors whose role is not listed
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := GetActor(c)
		if !ok {
			apierrors.Unauthorized(c, "")
			c.Abort()
			return
		}
		if !actor.HasRole(roles...) {
			apierrors.Forbidden(c, "")
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetUserID retrieves the current user ID from context
func GetUserID(c *gin.Context) (uint64, bool) {
	userID, exists := c.Get(constants.ContextKeyUserID)
	if !exists {
		return 0, false
	}
	return toUint64(userID)
}

// GetActor returns the identity set by RequireAuth
func GetActor(c *gin.Context) (models.Actor, bool) {
	userID, ok := GetUserID(c)
	if !ok {
		return models.Actor{}, false
	}
	role, ok := c.Get(constants.ContextKeyUserRole)
	if !ok {
		return models.Actor{}, false
	}
	r, ok := role.(models.Role)
	if !ok {
		return models.Actor{}, false
	}
	return models.Actor{ID: userID, Role: r}, true
}

// toUint64 accepts the integer types a session codec may hand back.
func toUint64(v interface{}) (uint64, bool) {
	switch v := v.(type) {
	case uint64:
		return v, true
	case uint:
		return uint64(v), true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case float64:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	default:
		return 0, false
	}
}

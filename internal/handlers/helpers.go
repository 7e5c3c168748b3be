package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	apierrors "github.com/yukikurage/annotation-api/internal/errors"
	"github.com/yukikurage/annotation-api/internal/middleware"
	"github.com/yukikurage/annotation-api/internal/models"
)

// currentActor returns the authenticated actor, writing a 401 when the
// request carries none.
func currentActor(c *gin.Context) (models.Actor, bool) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		apierrors.Unauthorized(c, "Not authenticated")
	}
	return actor, ok
}

// idParam parses a numeric path parameter, writing a 400 when it is malformed.
func idParam(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		apierrors.BadRequest(c, "Invalid "+name)
		return 0, false
	}
	return id, true
}

// optionalUintQuery parses an optional numeric query parameter.
func optionalUintQuery(c *gin.Context, name string) (*uint64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		apierrors.BadRequest(c, "Invalid "+name)
		return nil, false
	}
	return &v, true
}

func respondError(c *gin.Context, err error) {
	apierrors.Respond(c, err)
}

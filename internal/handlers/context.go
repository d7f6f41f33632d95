package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gridbasehq/gridbase/internal/middleware"
	apperrors "github.com/gridbasehq/gridbase/pkg/errors"
	"github.com/gridbasehq/gridbase/pkg/validator"
)

// actorID pulls the acting user set by the actor middleware.
func actorID(c *gin.Context) (int64, error) {
	id, ok := middleware.ActorID(c)
	if !ok {
		return 0, apperrors.New("MISSING_ACTOR", "Acting user not resolved", 401)
	}
	return id, nil
}

// paramID parses a numeric path parameter.
func paramID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewBadRequest("invalid " + name)
	}
	return id, nil
}

// bindJSON decodes the request body and runs struct validation.
func bindJSON(c *gin.Context, out any) error {
	if err := c.ShouldBindJSON(out); err != nil {
		return apperrors.NewBadRequest(err.Error())
	}
	if err := validator.ValidateStruct(out); err != nil {
		return apperrors.NewBadRequest(err.Error())
	}
	return nil
}

// truthy interprets common query-parameter spellings of "yes". A bare
// parameter (present but empty) counts as true.
func truthy(value string, present bool) bool {
	if !present {
		return false
	}
	switch value {
	case "", "y", "yes", "true", "t", "on", "1":
		return true
	}
	return false
}

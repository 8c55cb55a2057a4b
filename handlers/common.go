package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"livepoll/services"

	"github.com/gin-gonic/gin"
)

// respondError maps the service error taxonomy onto HTTP codes. Every entry
// is recoverable at the call site; the presenter UI shows these inline.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrConflict),
		errors.Is(err, services.ErrAlreadySubmitted),
		errors.Is(err, services.ErrStaleQuestion):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func sessionIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session id"})
		return 0, false
	}
	return uint(id), true
}

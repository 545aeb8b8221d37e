package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	datasetdomain "github.com/jfilter/timetiles-sub015/internal/dataset/domain"
	importerdomain "github.com/jfilter/timetiles-sub015/internal/importer/domain"
	quotadomain "github.com/jfilter/timetiles-sub015/internal/quota/domain"
)

// APIError is the wire shape of every handler error.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *APIError) Error() string { return e.Message }

var ErrNotFound = &APIError{Status: http.StatusNotFound, Code: "not_found", Message: "resource not found"}

func invalidRequestError() *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: "invalid_request", Message: "request body could not be parsed"}
}

func newValidationError(field, code, message string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: code, Field: field, Message: message}
}

// AbortWithError translates domain errors into HTTP responses. Unrecognized
// errors become an opaque 500 so internals never leak to clients.
func AbortWithError(c *gin.Context, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		c.AbortWithStatusJSON(apiErr.Status, gin.H{"error": apiErr})
		return
	}

	var quotaErr *quotadomain.QuotaExceededError
	if errors.As(err, &quotaErr) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": gin.H{
			"code":      "quota_exceeded",
			"message":   quotaErr.Error(),
			"quota":     quotaErr.Decision.Quota,
			"limit":     quotaErr.Decision.Limit,
			"current":   quotaErr.Decision.Current,
			"resets_at": quotaErr.Decision.ResetsAt,
		}})
		return
	}

	switch {
	case errors.Is(err, importerdomain.ErrJobNotFound),
		errors.Is(err, datasetdomain.ErrDatasetNotFound),
		errors.Is(err, datasetdomain.ErrSchemaNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": gin.H{
			"code": "not_found", "message": err.Error(),
		}})
	case errors.Is(err, importerdomain.ErrJobNotAwaitingApproval),
		errors.Is(err, importerdomain.ErrInvalidTransition),
		errors.Is(err, importerdomain.ErrTransitionInProgress):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": gin.H{
			"code": "conflict", "message": err.Error(),
		}})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": gin.H{
			"code": "internal", "message": "internal server error",
		}})
	}
}

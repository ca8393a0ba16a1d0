package utils

import (
	"auction-market/internal/biddingerrors"

	"github.com/gin-gonic/gin"
)

// JSONResponse sends a structured JSON response
func JSONResponse(c *gin.Context, status int, data any, message string) {
	c.JSON(status, gin.H{
		"status":  status,
		"message": message,
		"data":    data,
	})
}

// JSONError sends a structured error response. The error kind lets clients
// tell a rejected bid from a busy auction without parsing the message.
func JSONError(c *gin.Context, status int, err error, message string) {
	kind := biddingerrors.KindOf(err)
	c.JSON(status, gin.H{
		"status":    status,
		"message":   message,
		"error":     err.Error(),
		"kind":      kind,
		"retryable": kind == biddingerrors.KindRetryable,
	})
}

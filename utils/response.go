package utils

import (
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

// JSONError sends a structured error response
func JSONError(c *gin.Context, status int, err error, message string) {
	c.JSON(status, gin.H{
		"status":  status,
		"message": message,
		"error":   err.Error(),
	})
}

// JSONErrorWithDetails sends a structured error response carrying a machine-readable
// code and extra context the client can act on (e.g. the minimum acceptable bid).
func JSONErrorWithDetails(c *gin.Context, status int, err error, code, message string, details any) {
	body := gin.H{
		"status":  status,
		"message": message,
		"code":    code,
		"error":   err.Error(),
	}
	if details != nil {
		body["details"] = details
	}
	c.JSON(status, body)
}

package middlewares

import (
	"github.com/gin-gonic/gin"
	"github.com/huminex/payroll_backend/utils"
)

const contentTypeJSON = "application/json; charset=utf-8"

// AbortWithError writes an error envelope and stops the chain.
func AbortWithError(c *gin.Context, status int, code, message string) {
	AbortWithValidation(c, status, code, message, nil)
}

func AbortWithValidation(c *gin.Context, status int, code, message string, fields []utils.FieldError) {
	c.Data(status, contentTypeJSON, utils.MarshalError(code, message, TraceID(c.Request.Context()), fields))
	c.Abort()
}

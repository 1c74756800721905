package server

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"message": "Endpoint not found"})
}

// Recovery turns a handler panic into a 500 response and logs the stack.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			err, ok := rec.(error)
			if !ok {
				err = fmt.Errorf("%v", rec)
			}
			log.Error("panic recovered",
				zap.Error(err),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.ByteString("stack", debug.Stack()),
			)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			internalError(c, err)
		}()
		c.Next()
	}
}

// ErrorHandler answers for errors reported with c.Error when the handler
// chain finished without writing a response.
func ErrorHandler(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil {
			return
		}
		log.Error("request failed",
			zap.Error(last.Err),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		)
		if c.Writer.Written() {
			return
		}
		internalError(c, last.Err)
	}
}

func internalError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"message": "Internal server error",
		"error":   err.Error(),
	})
}

package handler

import (
	"net/http"

	"LanChat/internal/apperror"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// envelope is the body of every REST response.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func ok(c *gin.Context, status int, message string, data any) {
	c.JSON(status, envelope{Success: true, Message: message, Data: data})
}

// fail answers with the status and public message of err. Server side
// failures are logged with their cause.
func fail(c *gin.Context, logger *zap.Logger, err error) {
	status := apperror.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, envelope{Success: false, Message: apperror.PublicMessage(err)})
}

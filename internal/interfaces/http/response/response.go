package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	domainerrors "stablepay.backend/internal/domain/errors"
	"stablepay.backend/pkg/logger"
)

// Success sends a success response
func Success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// Error maps err onto an AppError and sends it
func Error(c *gin.Context, err error) {
	appErr := domainerrors.ToAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), "Request failed",
			zap.String("code", appErr.Code),
			zap.Error(err),
		)
	}

	body := gin.H{
		"code":    appErr.Code,
		"message": appErr.Message,
	}
	if kind := domainerrors.Classify(err); kind != domainerrors.KindNone && kind != domainerrors.KindUnknown {
		body["kind"] = kind
	}
	c.JSON(appErr.Status, body)
}

// ErrorWithError sends an error response with a specific status and message
func ErrorWithError(c *gin.Context, status int, code string, message string) {
	c.JSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"faceattend/internal/apperrors"
)

// Envelope is the kiosk response contract.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func fail(c *gin.Context, err error) {
	appErr := apperrors.FromError(err)
	c.Header("Cache-Control", "no-store")
	c.AbortWithStatusJSON(appErr.Status, Envelope{
		Success: false,
		Message: appErr.Message,
		Code:    appErr.Code,
		Reason:  appErr.Reason,
	})
}

func ok(c *gin.Context, body gin.H) {
	c.Header("Cache-Control", "no-store")
	body["success"] = true
	c.JSON(http.StatusOK, body)
}

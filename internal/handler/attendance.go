package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"faceattend/internal/apperrors"
	"faceattend/internal/attendance"
	"faceattend/internal/recognition"
)

// AttendanceService is the slice of attendance.Service the handlers need.
type AttendanceService interface {
	Submit(ctx context.Context, req attendance.Request) (attendance.Outcome, error)
	Classes(ctx context.Context) ([]string, error)
	Export(ctx context.Context, class string) ([]byte, error)
}

// DefaultMaxUploadBytes applies when the handler is built without a positive limit.
const DefaultMaxUploadBytes int64 = 5 * 1024 * 1024

// AttendanceHandler serves the kiosk endpoints.
type AttendanceHandler struct {
	svc      AttendanceService
	maxBytes int64
	logger   *zap.Logger
}

// NewAttendanceHandler creates the handler; maxBytes caps the uploaded image size
// and falls back to DefaultMaxUploadBytes when not positive.
func NewAttendanceHandler(svc AttendanceService, maxBytes int64, logger *zap.Logger) *AttendanceHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &AttendanceHandler{svc: svc, maxBytes: maxBytes, logger: logger}
}

// Upload handles POST /upload (multipart: image, class, name, folder).
func (h *AttendanceHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		fail(c, apperrors.Validation("No file uploaded"))
		return
	}
	defer file.Close()

	if recognition.ContentType(header.Filename) == "" {
		fail(c, apperrors.Validation("Invalid file type"))
		return
	}

	class := c.PostForm("class")
	name := c.PostForm("name")
	folder := c.PostForm("folder")
	if class == "" || folder == "" {
		fail(c, apperrors.Validation("Missing required fields"))
		return
	}
	intent, known := attendance.ParseIntent(folder)
	if !known {
		fail(c, apperrors.Validation(fmt.Sprintf("unknown folder %q", folder)))
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, h.maxBytes+1))
	if err != nil {
		fail(c, apperrors.Validation("read image failed"))
		return
	}
	if int64(len(data)) > h.maxBytes {
		fail(c, apperrors.Validation(fmt.Sprintf("image exceeds %d bytes", h.maxBytes)))
		return
	}

	out, err := h.svc.Submit(c.Request.Context(), attendance.Request{
		Class:    class,
		Name:     name,
		Intent:   intent,
		Filename: header.Filename,
		Image:    data,
	})
	if err != nil {
		h.logger.Info("upload refused",
			zap.String("class", class),
			zap.String("intent", string(intent)),
			zap.Error(err))
		fail(c, err)
		return
	}

	ok(c, gin.H{
		"message": out.Message,
		"student": out.Identity.Name,
		"class":   out.Identity.Class,
		"status":  out.Status,
	})
}

// Classes handles GET /classes.
func (h *AttendanceHandler) Classes(c *gin.Context) {
	classes, err := h.svc.Classes(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"classes": classes})
}

// Export handles GET /export?class=.
func (h *AttendanceHandler) Export(c *gin.Context) {
	class := c.Query("class")
	if class == "" {
		fail(c, apperrors.Validation("class is required"))
		return
	}
	data, err := h.svc.Export(c.Request.Context(), class)
	if err != nil {
		fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"attendance_%s.csv\"", class))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}

package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/example/trustlens/internal/auth"
	"github.com/example/trustlens/internal/imageprocessor"
	"github.com/example/trustlens/internal/inference"
	"github.com/example/trustlens/internal/usecase"
)

// MaxUploadSize caps the size of a single uploaded image.
const MaxUploadSize = 10 << 20

// Room for multipart boundaries and headers on top of the file itself.
const multipartOverhead = 1 << 20

const previewWaitTimeout = 5 * time.Second

type sessionHandler struct {
	registry *usecase.SessionRegistry
}

type credentialRequest struct {
	Value string `json:"value"`
}

// RegisterRoutes wires the HTTP handlers to the Gin router. Everything except
// /health sits behind authMiddleware.
func RegisterRoutes(router *gin.Engine, registry *usecase.SessionRegistry, authMiddleware gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := &sessionHandler{registry: registry}

	protected := router.Group("")
	if authMiddleware != nil {
		protected.Use(authMiddleware)
	}

	protected.GET("/metrics", h.metrics)
	protected.POST("/sessions", h.create)

	session := protected.Group("/sessions/:id")
	session.GET("", h.get)
	session.DELETE("", h.delete)
	session.POST("/image", h.uploadImage)
	session.GET("/preview", h.preview)
	session.POST("/analyze", h.analyze)
	session.POST("/reset", h.reset)
	session.PUT("/credential", h.saveCredential)
	session.POST("/credential-prompt", h.toggleCredentialPrompt)
}

func (h *sessionHandler) owner(c *gin.Context) (string, bool) {
	owner, ok := auth.Owner(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing subject"})
		return "", false
	}
	return owner, true
}

func (h *sessionHandler) session(c *gin.Context) (*usecase.SessionController, bool) {
	owner, ok := h.owner(c)
	if !ok {
		return nil, false
	}
	session, err := h.registry.Get(owner, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	return session, true
}

func (h *sessionHandler) metrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"active_sessions": h.registry.Len(),
		"analyses":        h.registry.Metrics(),
	})
}

func (h *sessionHandler) create(c *gin.Context) {
	owner, ok := h.owner(c)
	if !ok {
		return
	}
	session := h.registry.Create(owner)
	c.JSON(http.StatusCreated, session.Snapshot())
}

func (h *sessionHandler) get(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, session.Snapshot())
}

func (h *sessionHandler) delete(c *gin.Context) {
	owner, ok := h.owner(c)
	if !ok {
		return
	}
	if err := h.registry.Delete(owner, c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *sessionHandler) uploadImage(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize+multipartOverhead)

	file, err := c.FormFile("image")
	if err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds the upload limit"})
		case errors.Is(err, http.ErrMissingFile):
			snap, verr := session.Select(nil)
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "session": snap})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		}
		return
	}

	if file.Size > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds the upload limit"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
		return
	}

	img := imageprocessor.New(file.Filename, file.Header.Get("Content-Type"), data)
	snap, err := session.Select(img)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, imageprocessor.ErrUnsupportedType) {
			status = http.StatusUnsupportedMediaType
		}
		c.JSON(status, gin.H{"error": err.Error(), "session": snap})
		return
	}

	c.JSON(http.StatusOK, snap)
}

func (h *sessionHandler) preview(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), previewWaitTimeout)
	defer cancel()

	preview, err := session.AwaitPreview(ctx)
	switch {
	case errors.Is(err, usecase.ErrNoImageSelected):
		c.JSON(http.StatusNotFound, gin.H{"error": "no image selected"})
	case err != nil:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "preview not ready"})
	default:
		c.JSON(http.StatusOK, gin.H{"preview": preview})
	}
}

func (h *sessionHandler) analyze(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	if current := session.Snapshot(); current.State == usecase.StateAnalyzing {
		c.JSON(http.StatusConflict, gin.H{"error": "analysis already in progress", "session": current})
		return
	}

	// The outcome belongs to the session, so a client hanging up must not cancel it.
	snap, err := session.Analyze(context.WithoutCancel(c.Request.Context()))
	if err == nil || errors.Is(err, usecase.ErrAnalysisSuperseded) {
		c.JSON(http.StatusOK, snap)
		return
	}

	var (
		verr   *usecase.ValidationError
		infErr *inference.Error
	)
	status := http.StatusBadGateway
	switch {
	case errors.As(err, &verr):
		status = http.StatusPreconditionRequired
	case errors.As(err, &infErr) && infErr.Kind == inference.KindRateLimited:
		status = http.StatusTooManyRequests
	}

	message := err.Error()
	if snap.Error != nil {
		message = snap.Error.Message
	}
	c.JSON(status, gin.H{"error": message, "session": snap})
}

func (h *sessionHandler) reset(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, session.Reset())
}

func (h *sessionHandler) saveCredential(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req credentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	snap, err := session.SaveCredential(c.Request.Context(), req.Value)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save credential", "session": snap})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *sessionHandler) toggleCredentialPrompt(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, session.ToggleCredentialPrompt())
}

package handlers

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BroWo1/factcheck-backend/internal/analysis"
	"github.com/BroWo1/factcheck-backend/internal/storage/models"
	"github.com/BroWo1/factcheck-backend/pkg/logger"
)

// SessionStore is the persistence the HTTP surface reads and writes.
type SessionStore interface {
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessions(ctx context.Context, limit int) ([]models.Session, error)
	DeleteSession(ctx context.Context, id string) error
	ListSteps(ctx context.Context, sessionID string) ([]models.Step, error)
	ListSources(ctx context.Context, sessionID string) ([]models.Source, error)
}

// Submitter queues a pending session for analysis.
type Submitter interface {
	Submit(sessionID string) error
}

type SessionHandler struct {
	store         SessionStore
	queue         Submitter
	uploadDir     string
	maxImageBytes int64
}

func NewSessionHandler(store SessionStore, queue Submitter, uploadDir string, maxImageBytes int64) *SessionHandler {
	if maxImageBytes <= 0 {
		maxImageBytes = 5 << 20
	}
	return &SessionHandler{
		store:         store,
		queue:         queue,
		uploadDir:     uploadDir,
		maxImageBytes: maxImageBytes,
	}
}

type createRequest struct {
	UserInput    string `json:"user_input" form:"user_input"`
	Mode         string `json:"mode" form:"mode"`
	UseWebSearch bool   `json:"use_web_search" form:"use_web_search"`
}

func (h *SessionHandler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	imagePath, err := h.saveImage(c)
	if err != nil {
		return writeError(c, err)
	}

	session, err := analysis.NewSession(analysis.NewSessionRequest{
		Input:        req.UserInput,
		Mode:         models.Mode(req.Mode),
		UseWebSearch: req.UseWebSearch,
		ImagePath:    imagePath,
	})
	if err != nil {
		h.removeImage(imagePath)
		return writeError(c, err)
	}

	if err := h.store.CreateSession(c.Context(), session); err != nil {
		h.removeImage(imagePath)
		logger.Error("Failed to create session", zap.Error(err))
		return writeError(c, err)
	}

	if err := h.queue.Submit(session.ID); err != nil {
		logger.Warn("Failed to queue session", zap.String("session_id", session.ID), zap.Error(err))
		if delErr := h.store.DeleteSession(c.Context(), session.ID); delErr != nil {
			logger.Error("Failed to remove unqueued session", zap.String("session_id", session.ID), zap.Error(delErr))
		}
		h.removeImage(imagePath)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Analysis queue is unavailable, try again later",
		})
	}

	logger.Info("Session created",
		zap.String("session_id", session.ID),
		zap.String("variant", string(session.Variant)),
		zap.Bool("has_image", imagePath != ""),
	)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"session_id": session.ID,
		"status":     session.Status,
		"message":    "Analysis started",
		"session":    session,
	})
}

// saveImage stores an optional multipart "image" upload and returns its path.
func (h *SessionHandler) saveImage(c *fiber.Ctx) (string, error) {
	if !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		return "", nil
	}
	form, err := c.MultipartForm()
	if err != nil {
		return "", &analysis.ValidationError{Field: "image", Reason: "unreadable upload"}
	}
	files := form.File["image"]
	if len(files) == 0 {
		return "", nil
	}
	file := files[0]
	if file.Size > h.maxImageBytes {
		return "", &analysis.ValidationError{Field: "image", Reason: fmt.Sprintf("larger than %d bytes", h.maxImageBytes)}
	}

	ext, err := imageExtension(file)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}
	path := filepath.Join(h.uploadDir, uuid.New().String()+ext)
	if err := c.SaveFile(file, path); err != nil {
		return "", fmt.Errorf("failed to save image: %w", err)
	}
	return path, nil
}

func imageExtension(file *multipart.FileHeader) (string, error) {
	f, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	head := make([]byte, 512)
	n, _ := f.Read(head)
	switch http.DetectContentType(head[:n]) {
	case "image/png":
		return ".png", nil
	case "image/jpeg":
		return ".jpg", nil
	case "image/gif":
		return ".gif", nil
	case "image/webp":
		return ".webp", nil
	}
	return "", &analysis.ValidationError{Field: "image", Reason: "must be png, jpeg, gif or webp"}
}

func (h *SessionHandler) removeImage(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("Failed to remove image", zap.String("path", path), zap.Error(err))
	}
}

func (h *SessionHandler) Status(c *fiber.Ctx) error {
	view, err := LoadStatusView(c.Context(), h.store, c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(view)
}

func (h *SessionHandler) Results(c *fiber.Ctx) error {
	id := c.Params("id")
	session, err := h.store.GetSession(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	if session.Status != models.SessionCompleted {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "Analysis not completed yet",
			"status": session.Status,
		})
	}

	steps, err := h.store.ListSteps(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	sources, err := h.store.ListSources(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(fiber.Map{
		"session":  session,
		"steps":    nonNil(steps),
		"sources":  nonNil(sources),
		"progress": analysis.CalculateProgress(steps, analysis.ExpectedSteps(session.Variant)),
	})
}

func (h *SessionHandler) Steps(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := h.store.GetSession(c.Context(), id); err != nil {
		return writeError(c, err)
	}
	steps, err := h.store.ListSteps(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"session_id": id,
		"steps":      nonNil(steps),
	})
}

func (h *SessionHandler) Delete(c *fiber.Ctx) error {
	id := c.Params("id")
	session, err := h.store.GetSession(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	if err := h.store.DeleteSession(c.Context(), id); err != nil {
		return writeError(c, err)
	}
	h.removeImage(session.ImagePath)
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *SessionHandler) List(c *fiber.Ctx) error {
	limit, err := strconv.Atoi(c.Query("limit", "20"))
	if err != nil || limit <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "limit must be a positive integer",
		})
	}
	limit = min(limit, 100)

	sessions, err := h.store.ListSessions(c.Context(), limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"sessions": nonNil(sessions),
		"count":    len(sessions),
	})
}

// LoadStatusView reads a session and its steps into the status view.
func LoadStatusView(ctx context.Context, store SessionStore, id string) (*analysis.StatusView, error) {
	session, err := store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	steps, err := store.ListSteps(ctx, id)
	if err != nil {
		return nil, err
	}
	view := analysis.BuildStatusView(session, steps)
	return &view, nil
}

func writeError(c *fiber.Ctx, err error) error {
	var verr *analysis.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": verr.Error(),
			"field": verr.Field,
		})
	case errors.Is(err, models.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	case errors.Is(err, models.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Session is being analyzed",
		})
	}

	logger.Error("Request failed", zap.String("path", c.Path()), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Internal server error",
	})
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

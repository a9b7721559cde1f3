package validation

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/BroWo1/factcheck-backend/internal/storage/models"
)

type Config struct {
	MaxInputLength      int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

// Middleware rejects malformed session-creation requests before they reach
// the handler. Only POST and PUT bodies are inspected.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxInputLength == 0 {
		cfg.MaxInputLength = 20000
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{fiber.MIMEApplicationJSON, fiber.MIMEMultipartForm}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost && c.Method() != fiber.MethodPut {
			return c.Next()
		}

		contentType := c.Get(fiber.HeaderContentType)
		if !allowedType(contentType, cfg.AllowedContentTypes) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Unsupported content type",
			})
		}

		var req struct {
			UserInput string `json:"user_input" form:"user_input"`
			Mode      string `json:"mode" form:"mode"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		if strings.TrimSpace(req.UserInput) == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "user_input is required",
			})
		}
		if len(req.UserInput) > cfg.MaxInputLength {
			cfg.Logger.Warn("Oversized input rejected",
				zap.String("ip", c.IP()),
				zap.Int("length", len(req.UserInput)),
			)
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
				"error": "user_input exceeds maximum length",
			})
		}
		if req.Mode != "" && !models.Mode(req.Mode).Valid() {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "mode must be fact_check or research",
			})
		}

		return c.Next()
	}
}

func allowedType(contentType string, allowed []string) bool {
	for _, t := range allowed {
		if strings.HasPrefix(contentType, t) {
			return true
		}
	}
	return false
}

package validation

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(Middleware(Config{MaxInputLength: 50}))
	app.Post("/fact-check", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusCreated) })
	app.Get("/fact-check", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	tests := []struct {
		name        string
		method      string
		contentType string
		body        string
		want        int
	}{
		{"valid json", "POST", "application/json", `{"user_input": "The sky is green"}`, 201},
		{"valid research", "POST", "application/json", `{"user_input": "solar", "mode": "research"}`, 201},
		{"get passes", "GET", "", "", 200},
		{"text body", "POST", "text/plain", "hello", 415},
		{"missing content type", "POST", "", `{"user_input": "x"}`, 415},
		{"broken json", "POST", "application/json", `{"user_input":`, 400},
		{"blank input", "POST", "application/json", `{"user_input": "   "}`, 400},
		{"bad mode", "POST", "application/json", `{"user_input": "x", "mode": "poem"}`, 400},
		{"too long", "POST", "application/json", `{"user_input": "` + strings.Repeat("a", 60) + `"}`, 413},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/fact-check", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

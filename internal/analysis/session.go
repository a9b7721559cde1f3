package analysis

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/BroWo1/factcheck-backend/internal/storage/models"
)

const MaxInputChars = 5000

var (
	htmlTagPattern    = regexp.MustCompile(`<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// SanitizeInput strips markup, collapses whitespace and caps the length.
func SanitizeInput(text string) string {
	text = htmlTagPattern.ReplaceAllString(text, "")
	text = strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
	if utf8.RuneCountInString(text) > MaxInputChars {
		text = string([]rune(text)[:MaxInputChars])
	}
	return text
}

// SelectVariant picks the workflow once, at session creation.
func SelectVariant(mode models.Mode, useWebSearch bool) models.Variant {
	switch {
	case mode == models.ModeResearch:
		return models.VariantResearch
	case useWebSearch:
		return models.VariantSearchAugmented
	default:
		return models.VariantTraditional
	}
}

type NewSessionRequest struct {
	Input        string
	Mode         models.Mode
	UseWebSearch bool
	ImagePath    string
}

// NewSession validates the request and returns a pending session ready to
// be stored.
func NewSession(req NewSessionRequest) (*models.Session, error) {
	input := SanitizeInput(req.Input)
	if input == "" {
		return nil, &ValidationError{Field: "user_input", Reason: "must not be empty"}
	}

	mode := req.Mode
	if mode == "" {
		mode = models.ModeFactCheck
	}
	if !mode.Valid() {
		return nil, &ValidationError{Field: "mode", Reason: "must be fact_check or research"}
	}

	now := time.Now()
	return &models.Session{
		ID:        uuid.New().String(),
		Input:     input,
		ImagePath: req.ImagePath,
		Mode:      mode,
		Variant:   SelectVariant(mode, req.UseWebSearch),
		Status:    models.SessionPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

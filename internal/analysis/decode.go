package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var errNoJSONObject = errors.New("no JSON object in response")

// StepMeta is embedded in every step payload.
type StepMeta struct {
	Step         int        `json:"step"`
	Summary      string     `json:"summary"`
	Citations    []Citation `json:"citations,omitempty"`
	ParsingError bool       `json:"parsing_error,omitempty"`
}

func (m *StepMeta) meta() *StepMeta { return m }

type payload interface {
	meta() *StepMeta
}

// payloadPtr constrains P to be *T where *T embeds StepMeta.
type payloadPtr[T any] interface {
	*T
	payload
}

// CleanJSON strips markdown fences and returns the first balanced JSON
// object in text.
func CleanJSON(text string) (string, error) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", errNoJSONObject
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}

	return "", fmt.Errorf("unbalanced JSON object: %w", errNoJSONObject)
}

// decodePayload parses reply text into T. An object whose fields only partly
// match T keeps the fields that decoded and is marked with parsing_error.
// Text with no usable object yields the fallback built from the raw text.
// Both cases return the ParsingError that caused them.
func decodePayload[T any, P payloadPtr[T]](step int, raw string, fallback func(raw string) T) (T, *ParsingError) {
	var v T

	cleaned, err := CleanJSON(raw)
	if err == nil {
		err = json.Unmarshal([]byte(cleaned), P(&v))
	}
	if err == nil {
		m := P(&v).meta()
		m.Step = step
		m.ParsingError = false
		return v, nil
	}

	if !isPartialDecode(err) {
		v = fallback(raw)
	}
	m := P(&v).meta()
	m.Step = step
	m.ParsingError = true
	if strings.TrimSpace(m.Summary) == "" {
		m.Summary = fallbackSummary(step)
	}
	return v, &ParsingError{Step: step, Raw: raw, Err: err}
}

// isPartialDecode reports whether json.Unmarshal still filled the
// compatible fields before failing.
func isPartialDecode(err error) bool {
	var typeErr *json.UnmarshalTypeError
	var fieldErr *json.UnmarshalFieldError
	return errors.As(err, &typeErr) || errors.As(err, &fieldErr)
}

func fallbackSummary(step int) string {
	return fmt.Sprintf("Step %d completed with a parsing error.", step)
}

func defaultSummary(step int) string {
	return fmt.Sprintf("Step %d has been completed.", step)
}

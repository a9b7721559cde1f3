package analysis

import (
	"strings"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/BroWo1/factcheck-backend/pkg/logger"
)

// ExtractKeywords pulls named entities and then nouns out of text, in order
// of appearance, without duplicates.
func ExtractKeywords(text string, limit int) []string {
	if strings.TrimSpace(text) == "" || limit <= 0 {
		return nil
	}

	doc, err := prose.NewDocument(text, prose.WithSegmentation(false))
	if err != nil {
		logger.Warn("Keyword extraction failed", zap.Error(err))
		return fieldsKeywords(text, limit)
	}

	seen := make(map[string]struct{})
	var keywords []string
	add := func(word string) {
		w := strings.Trim(strings.TrimSpace(word), ".,;:!?\"'()")
		key := strings.ToLower(w)
		if len(key) < 3 || len(keywords) >= limit {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		keywords = append(keywords, w)
	}

	for _, ent := range doc.Entities() {
		add(ent.Text)
	}
	for _, tok := range doc.Tokens() {
		if strings.HasPrefix(tok.Tag, "NN") {
			add(tok.Text)
		}
	}

	if len(keywords) == 0 {
		return fieldsKeywords(text, limit)
	}
	return keywords
}

func fieldsKeywords(text string, limit int) []string {
	var out []string
	for _, f := range strings.Fields(text) {
		if len(f) > 3 {
			out = append(out, f)
		}
		if len(out) == limit {
			break
		}
	}
	return out
}

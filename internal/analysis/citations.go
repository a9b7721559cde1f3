package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BroWo1/factcheck-backend/internal/metrics"
	"github.com/BroWo1/factcheck-backend/internal/storage/models"
	"github.com/BroWo1/factcheck-backend/pkg/logger"
)

const (
	citationPublisher    = "Web Search"
	citationDefaultScore = 0.8
)

type SourceStore interface {
	InsertSourceIfAbsent(ctx context.Context, src *models.Source) (bool, error)
}

// Merger turns accumulated citations into Source rows.
type Merger struct {
	store SourceStore
}

func NewMerger(store SourceStore) *Merger {
	return &Merger{store: store}
}

// Merge flattens the batches, keeps the first citation for each URL, and
// inserts those the session does not already have. Existing sources are
// never modified. It returns the sources it created.
func (m *Merger) Merge(ctx context.Context, sessionID string, batches ...[]Citation) ([]models.Source, error) {
	unique := DedupCitations(batches...)

	created := make([]models.Source, 0, len(unique))
	for _, c := range unique {
		src := citationSource(sessionID, c)
		inserted, err := m.store.InsertSourceIfAbsent(ctx, &src)
		if err != nil {
			return created, fmt.Errorf("failed to merge citation %s: %w", c.URL, err)
		}
		if inserted {
			created = append(created, src)
		}
	}

	metrics.CitationsMerged.Add(float64(len(created)))
	logger.Info("Citations merged",
		zap.String("session_id", sessionID),
		zap.Int("unique", len(unique)),
		zap.Int("created", len(created)),
	)

	return created, nil
}

// DedupCitations flattens batches in order and drops repeated URLs. The
// first occurrence wins.
func DedupCitations(batches ...[]Citation) []Citation {
	seen := make(map[string]struct{})
	var out []Citation
	for _, batch := range batches {
		for _, c := range batch {
			c.URL = strings.TrimSpace(c.URL)
			if c.URL == "" {
				continue
			}
			if _, ok := seen[c.URL]; ok {
				continue
			}
			seen[c.URL] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

func citationSource(sessionID string, c Citation) models.Source {
	supports := true
	title := c.Title
	if title == "" {
		title = c.URL
	}
	return models.Source{
		SessionID:        sessionID,
		URL:              c.URL,
		Title:            title,
		Publisher:        citationPublisher,
		CredibilityScore: citationDefaultScore,
		RelevanceScore:   citationDefaultScore,
		SupportsClaim:    &supports,
		ContentSummary:   fmt.Sprintf("Citation from web search (positions %d-%d)", c.StartIndex, c.EndIndex),
		AccessedAt:       time.Now(),
	}
}

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BroWo1/factcheck-backend/internal/analysis"
	"github.com/BroWo1/factcheck-backend/pkg/logger"
	"github.com/BroWo1/factcheck-backend/pkg/retry"
)

const maxErrorBody = 4096

type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("responses API returned status %d: %s", e.StatusCode, e.Body)
}

type responsesRequest struct {
	Model string           `json:"model"`
	Tools []responsesTool  `json:"tools,omitempty"`
	Input []responsesInput `json:"input"`
}

type responsesTool struct {
	Type              string `json:"type"`
	SearchContextSize string `json:"search_context_size,omitempty"`
}

type responsesInput struct {
	Role    string             `json:"role"`
	Content []responsesContent `json:"content"`
}

type responsesContent struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type responsesReply struct {
	Model      string `json:"model"`
	OutputText string `json:"output_text"`
	Output     []struct {
		Type    string `json:"type"`
		Content []struct {
			Type        string `json:"type"`
			Text        string `json:"text"`
			Annotations []struct {
				Type       string `json:"type"`
				URL        string `json:"url"`
				Title      string `json:"title"`
				StartIndex int    `json:"start_index"`
				EndIndex   int    `json:"end_index"`
			} `json:"annotations"`
		} `json:"content"`
	} `json:"output"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// SearchResponse is a web-search-grounded answer with its citations.
type SearchResponse struct {
	Content   string
	Citations []analysis.Citation
	Model     string
	Usage     Usage
}

// WebSearch asks the Responses API with the web search tool enabled.
func (c *Client) WebSearch(ctx context.Context, prompt string, image []byte) (*SearchResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	content := []responsesContent{{Type: "input_text", Text: prompt}}
	if len(image) > 0 {
		content = append(content, responsesContent{Type: "input_image", ImageURL: imageDataURL(image)})
	}

	body, err := json.Marshal(responsesRequest{
		Model: c.searchModel,
		Tools: []responsesTool{{Type: "web_search_preview", SearchContextSize: "medium"}},
		Input: []responsesInput{{Role: "user", Content: content}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode responses request: %w", err)
	}

	result, err := guard(ctx, c, "web_search", func() (*SearchResponse, error) {
		return retry.DoWithResult(ctx, c.retryConfig, func() (*SearchResponse, error) {
			reply, err := c.postResponses(ctx, body)
			if err != nil {
				return nil, classify(err)
			}
			parsed := parseResponses(reply)
			if parsed.Model == "" {
				parsed.Model = c.searchModel
			}
			return parsed, nil
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("Web search response received",
		zap.String("model", result.Model),
		zap.Int("citations", len(result.Citations)),
		zap.Int("total_tokens", result.Usage.TotalTokens),
	)

	return result, nil
}

func (c *Client) postResponses(ctx context.Context, body []byte) (*responsesReply, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call responses API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &statusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	var reply responsesReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("failed to decode responses reply: %w", err)
	}
	return &reply, nil
}

// parseResponses takes the first output_text block as the answer and
// collects url_citation annotations from every message.
func parseResponses(reply *responsesReply) *SearchResponse {
	out := &SearchResponse{
		Model: reply.Model,
		Usage: Usage{
			PromptTokens:     reply.Usage.InputTokens,
			CompletionTokens: reply.Usage.OutputTokens,
			TotalTokens:      reply.Usage.TotalTokens,
		},
	}

	for _, item := range reply.Output {
		if item.Type != "message" {
			continue
		}
		for _, block := range item.Content {
			if block.Type != "output_text" {
				continue
			}
			if out.Content == "" {
				out.Content = block.Text
			}
			for _, a := range block.Annotations {
				if a.Type != "url_citation" || a.URL == "" {
					continue
				}
				out.Citations = append(out.Citations, analysis.Citation{
					URL:        a.URL,
					Title:      a.Title,
					StartIndex: a.StartIndex,
					EndIndex:   a.EndIndex,
				})
			}
		}
	}

	if out.Content == "" {
		out.Content = reply.OutputText
	}
	return out
}

package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/BroWo1/factcheck-backend/internal/metrics"
	"github.com/BroWo1/factcheck-backend/pkg/circuitbreaker"
	"github.com/BroWo1/factcheck-backend/pkg/config"
	"github.com/BroWo1/factcheck-backend/pkg/logger"
	"github.com/BroWo1/factcheck-backend/pkg/retry"
)

var ErrEmptyCompletion = errors.New("completion returned no choices")

type Client struct {
	client       *openai.Client
	http         *http.Client
	apiKey       string
	baseURL      string
	model        string
	searchModel  string
	summaryModel string
	temperature  float32
	maxTokens    int
	timeout      time.Duration
	cb           *circuitbreaker.Breaker
	retryConfig  retry.Config
}

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Image        []byte
	Model        string
	Temperature  float32
	MaxTokens    int
}

type CompletionResponse struct {
	Content string
	Model   string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

func NewClient(cfg config.LLMConfig) *Client {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	httpClient := &http.Client{Timeout: timeout}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = httpClient

	cb := circuitbreaker.New("llm", circuitbreaker.Settings{
		TripAfter:     5,
		CloseAfter:    2,
		TrialCalls:    5,
		Cooldown:      30 * time.Second,
		Window:        time.Minute,
		OnStateChange: breakerStateChanged,
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("LLM client initialized",
		zap.String("model", cfg.Model),
		zap.String("search_model", cfg.SearchModel),
		zap.String("summary_model", cfg.SummaryModel),
	)

	return &Client{
		client:       openai.NewClientWithConfig(oc),
		http:         httpClient,
		apiKey:       cfg.APIKey,
		baseURL:      oc.BaseURL,
		model:        cfg.Model,
		searchModel:  cfg.SearchModel,
		summaryModel: cfg.SummaryModel,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		timeout:      timeout,
		cb:           cb,
		retryConfig:  retryConfig,
	}
}

// Complete runs a chat completion. An image, when present, is attached to
// the user message as a data URL.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	model := req.Model
	if model == "" {
		model = c.model
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	var messages []openai.ChatCompletionMessage
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}

	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if len(req.Image) > 0 {
		user.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: req.UserPrompt},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
				URL:    imageDataURL(req.Image),
				Detail: openai.ImageURLDetailAuto,
			}},
		}
	} else {
		user.Content = req.UserPrompt
	}
	messages = append(messages, user)

	return guard(ctx, c, "completion", func() (*CompletionResponse, error) {
		return retry.DoWithResult(ctx, c.retryConfig, func() (*CompletionResponse, error) {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       model,
					Messages:    messages,
					Temperature: temperature,
					MaxTokens:   maxTokens,
				},
			)

			if err != nil {
				return nil, classify(fmt.Errorf("failed to create completion: %w", err))
			}
			if len(resp.Choices) == 0 {
				return nil, retry.Permanent(ErrEmptyCompletion)
			}

			logger.Debug("LLM completion generated",
				zap.String("model", model),
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			return &CompletionResponse{
				Content: resp.Choices[0].Message.Content,
				Model:   model,
				Usage: Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				},
			}, nil
		})
	})
}

// classify marks client errors other than rate limiting as permanent so
// they are not retried.
func classify(err error) error {
	var (
		status int
		apiErr *openai.APIError
		reqErr *openai.RequestError
		se     *statusError
	)
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	case errors.As(err, &se):
		status = se.StatusCode
	}

	if status >= 400 && status < 500 && status != http.StatusTooManyRequests && status != http.StatusRequestTimeout {
		return retry.Permanent(err)
	}
	return err
}

func imageDataURL(image []byte) string {
	mime := http.DetectContentType(image)
	if !strings.HasPrefix(mime, "image/") {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(image)
}

func breakerStateChanged(name string, from, to circuitbreaker.State) {
	metrics.BreakerState.WithLabelValues(name).Set(float64(to))
	logger.Warn("Circuit breaker state changed",
		zap.String("breaker", name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
}

// guard runs fn through the client's breaker and records rejections.
func guard[T any](ctx context.Context, c *Client, op string, fn func() (T, error)) (T, error) {
	v, err := circuitbreaker.Call(ctx, c.cb, fn)
	if circuitbreaker.IsOpen(err) {
		metrics.BreakerRejections.WithLabelValues(c.cb.Name()).Inc()
		logger.Warn("LLM call rejected by circuit breaker",
			zap.String("op", op),
			zap.String("breaker", c.cb.Name()),
			zap.Error(err),
		)
	}
	return v, err
}

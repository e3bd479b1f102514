package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"

	"github.com/evcraddock/trip-planner/internal/itinerary"
)

// Config configures the OpenAI synthesizer.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	// Timeout bounds one completion request.
	Timeout time.Duration
	// MaxRetries is how many times a transient failure is retried.
	MaxRetries int
	// RetryInterval is the first backoff delay.
	RetryInterval time.Duration
	Temperature   float32
}

// DefaultConfig returns defaults for everything but the API key.
func DefaultConfig() Config {
	return Config{
		Model:         openai.GPT4oMini,
		Timeout:       2 * time.Minute,
		MaxRetries:    2,
		RetryInterval: time.Second,
		Temperature:   0.7,
	}
}

// OpenAISynthesizer generates itineraries with an OpenAI-compatible chat
// completion API in JSON mode.
type OpenAISynthesizer struct {
	client *openai.Client
	cfg    Config
	logger *slog.Logger
}

// NewOpenAI creates a synthesizer.
func NewOpenAI(cfg Config, logger *slog.Logger) (*OpenAISynthesizer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("openai model is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAISynthesizer{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Synthesize generates a full itinerary for the request.
func (s *OpenAISynthesizer) Synthesize(ctx context.Context, req Request) (*itinerary.Itinerary, error) {
	content, err := s.complete(ctx, planSystemPrompt, planUserPrompt(req))
	if err != nil {
		return nil, err
	}
	p, err := ExtractJSON[wirePlan](content, validatePlan)
	if err != nil {
		return nil, err
	}
	return p.itinerary(), nil
}

// Reorganize reschedules one day's activities. Location data on the input is
// not sent; the returned activities carry none.
func (s *OpenAISynthesizer) Reorganize(ctx context.Context, activities []itinerary.Activity, day DayContext) ([]itinerary.Activity, error) {
	prompt, err := reorganizeUserPrompt(fromActivities(activities), day)
	if err != nil {
		return nil, err
	}
	content, err := s.complete(ctx, reorganizeSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}
	out, err := ExtractJSON[wireActivities](content, validateActivities)
	if err != nil {
		return nil, err
	}
	return toActivities(out.Activities), nil
}

func (s *OpenAISynthesizer) complete(ctx context.Context, system, user string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: s.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature:    s.cfg.Temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	policy := backoff.NewExponentialBackOff()
	if s.cfg.RetryInterval > 0 {
		policy.InitialInterval = s.cfg.RetryInterval
	}
	retries := s.cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}

	var content string
	attempt := 0
	op := func() error {
		attempt++
		resp, err := s.client.CreateChatCompletion(ctx, req)
		if err != nil {
			if !transient(ctx, err) {
				return backoff.Permanent(err)
			}
			s.logger.Warn("synthesizer request failed, retrying", "attempt", attempt, "error", err)
			return err
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("%w: no choices in response", ErrInvalidOutput))
		}
		content = resp.Choices[0].Message.Content
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx))
	if err != nil {
		if errors.Is(err, ErrInvalidOutput) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return content, nil
}

// transient reports whether err is worth retrying: rate limits, server
// errors, timeouts and connection failures.
func transient(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

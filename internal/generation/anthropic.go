package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/plantrip/internal/apperr"
	"github.com/MarcoPoloResearchLab/plantrip/internal/itinerary"
)

const (
	opAnthropic      = "generation.anthropic"
	defaultBaseURL   = "https://api.anthropic.com"
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 4096
	defaultTimeout   = 60 * time.Second
)

// AnthropicConfig configures the Messages API provider. MaxRetries is passed
// to the SDK; zero disables its retries so Limited owns the time budget.
type AnthropicConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxTokens  int
	MaxRetries int
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Anthropic proposes itineraries through a forced tool call on the Messages API.
type Anthropic struct {
	configured bool
	model      string
	maxTokens  int
	client     anthropic.Client
	tool       anthropic.ToolParam
	logger     *zap.Logger
}

func NewAnthropic(cfg AnthropicConfig) *Anthropic {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	apiKey := strings.TrimSpace(cfg.APIKey)

	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL + "/"),
		option.WithMaxRetries(max(cfg.MaxRetries, 0)),
		option.WithRequestTimeout(timeout),
	}
	if cfg.HTTPClient != nil {
		options = append(options, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &Anthropic{
		configured: apiKey != "",
		model:      model,
		maxTokens:  maxTokens,
		client:     anthropic.NewClient(options...),
		tool:       itineraryTool(),
		logger:     logger,
	}
}

// Generate implements itinerary.CandidateSource.
func (a *Anthropic) Generate(ctx context.Context, request itinerary.GenerationRequest) (itinerary.Candidate, error) {
	if !a.configured {
		return itinerary.Candidate{}, apperr.New(apperr.KindUnavailable, opAnthropic, "not_configured", nil).
			WithMessage("AI generation is not configured")
	}

	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: int64(a.maxTokens),
		System:    []anthropic.TextBlockParam{{Text: systemPrompt(request)}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(request.Prompt)),
		},
		Tools: []anthropic.ToolUnionParam{{OfTool: &a.tool}},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: toolName},
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return itinerary.Candidate{}, a.classify(apiErr.StatusCode, apiErr.Error(), err)
		}
		a.logger.Warn("anthropic request failed", zap.Error(err))
		return itinerary.Candidate{}, unavailableUpstream(err)
	}

	for _, block := range message.Content {
		if block.Type != "tool_use" || block.Name != toolName {
			continue
		}
		input, err := json.Marshal(block.Input)
		if err != nil {
			return itinerary.Candidate{}, invalidResponse(err)
		}
		candidate, err := decodeCandidate(input)
		if err != nil {
			return itinerary.Candidate{}, invalidResponse(err)
		}
		if len(candidate.Stops) == 0 {
			return itinerary.Candidate{}, invalidResponse(errors.New("tool input has no stops"))
		}
		return candidate, nil
	}
	return itinerary.Candidate{}, invalidResponse(errors.New("no create_itinerary tool call in response"))
}

// classify maps a non-200 reply onto the error taxonomy. Credential and
// billing problems are configuration issues; everything else is an upstream
// failure.
func (a *Anthropic) classify(status int, detail string, err error) error {
	cause := fmt.Errorf("anthropic status %d: %w", status, err)
	a.logger.Warn("anthropic request rejected",
		zap.Int("status", status),
		zap.Error(err),
	)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperr.New(apperr.KindUnavailable, opAnthropic, "invalid_api_key", cause).
			WithMessage("Invalid Anthropic API key")
	case status == http.StatusBadRequest && strings.Contains(strings.ToLower(detail), "credit balance"):
		return apperr.New(apperr.KindUnavailable, opAnthropic, "insufficient_credits", cause).
			WithMessage("Anthropic account has insufficient credits")
	case status >= http.StatusBadRequest && status < http.StatusInternalServerError && status != http.StatusTooManyRequests:
		return apperr.New(apperr.KindUpstream, opAnthropic, "request_rejected", cause).
			WithMessage("AI request failed")
	default:
		return unavailableUpstream(cause)
	}
}

func unavailableUpstream(cause error) error {
	return apperr.New(apperr.KindUpstream, opAnthropic, "provider_unavailable", cause).
		WithMessage("AI service is temporarily unavailable")
}

func invalidResponse(cause error) error {
	return apperr.New(apperr.KindUpstream, opAnthropic, "invalid_response", cause).
		WithMessage("AI did not generate a valid itinerary")
}

package advisor

import (
	"context"
	"fmt"

	"pulsewave/internal/domain"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// LLMClient abstracts the OpenAI chat completions API for testability.
type LLMClient interface {
	CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

// PriceQuerier provides the current price for the briefing's context.
type PriceQuerier interface {
	GetCurrentPrice(ctx context.Context, symbol string) (*domain.PriceSnapshot, error)
}

// SignalQuerier provides the engine outputs the briefing interprets.
type SignalQuerier interface {
	LatestSignal(ctx context.Context, symbol string, timeframes []string) (domain.TradingSignal, error)
	Regime(ctx context.Context, symbol, interval string) (domain.RegimeResult, error)
}

// AdvisorService turns engine output into a short plain-language briefing.
type AdvisorService struct {
	tracer   trace.Tracer
	llm      LLMClient
	prices   PriceQuerier
	analysis SignalQuerier
	model    string
}

func NewAdvisorService(
	tracer trace.Tracer,
	llm LLMClient,
	prices PriceQuerier,
	analysis SignalQuerier,
	model string,
) *AdvisorService {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &AdvisorService{
		tracer:   tracer,
		llm:      llm,
		prices:   prices,
		analysis: analysis,
		model:    model,
	}
}

// Brief produces a briefing for one symbol at the given interval. The LLM
// only interprets the engine output passed in the prompt; it never invents
// levels or prices of its own.
func (s *AdvisorService) Brief(ctx context.Context, symbol, interval string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "advisor.brief")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol), attribute.String("interval", interval))

	if interval == "" {
		interval = "1h"
	}

	signal, err := s.analysis.LatestSignal(ctx, symbol, []string{interval})
	if err != nil {
		return "", fmt.Errorf("load signal for %s: %w", symbol, err)
	}
	regime, err := s.analysis.Regime(ctx, symbol, interval)
	if err != nil {
		return "", fmt.Errorf("classify regime for %s: %w", symbol, err)
	}

	var snapshot *domain.PriceSnapshot
	if s.prices != nil {
		// Best effort: the signal carries its own entry price if this fails.
		snapshot, _ = s.prices.GetCurrentPrice(ctx, symbol)
	}

	messages := BuildBriefingMessages(symbol, interval, snapshot, signal, regime)

	reply, err := s.callLLM(ctx, messages)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("briefing unavailable: %w", err)
	}
	return reply, nil
}

func (s *AdvisorService) callLLM(
	ctx context.Context,
	messages []openai.ChatCompletionMessageParamUnion,
) (string, error) {
	ctx, span := s.tracer.Start(ctx, "advisor.llm-call")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", s.model),
		attribute.Int("llm.message_count", len(messages)),
	)

	completion, err := s.llm.CreateChatCompletion(ctx, openai.ChatCompletionNewParams{
		Model:    s.model,
		Messages: messages,
	})
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no choices in LLM response")
	}

	reply := completion.Choices[0].Message.Content
	span.SetAttributes(attribute.Int("llm.reply_length", len(reply)))
	return reply, nil
}

// openaiClient wraps the official SDK's chat completions service.
type openaiClient struct {
	client openai.Client
}

func NewOpenAIClient(apiKey string) LLMClient {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &openaiClient{client: client}
}

func (c *openaiClient) CreateChatCompletion(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
) (*openai.ChatCompletion, error) {
	return c.client.Chat.Completions.New(ctx, params)
}

package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
)

const (
	ProviderOpenRouter = "openrouter"
	ProviderAnthropic  = "anthropic"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// Retry policy for model calls: a fixed attempt budget with a fixed
// delay between attempts. No backoff, no circuit breaking.
const (
	llmMaxAttempts = 3
	llmRetryDelay  = 5 * time.Second
)

type LLMUsage struct {
	InputTokens  int64
	OutputTokens int64
}

func (u LLMUsage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

func (u *LLMUsage) Add(other LLMUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

type CompletionRequest struct {
	Provider    string // ProviderOpenRouter when empty
	Model       string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Provider sends one completion request to a model-serving API and
// returns the generated text.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (string, LLMUsage, error)
}

// ModelClient routes requests to the configured providers and applies
// the retry policy. All call sites go through here so retries and
// usage reporting behave the same everywhere.
type ModelClient struct {
	providers map[string]Provider
	sleep     func(time.Duration)

	mu    sync.Mutex
	usage LLMUsage
}

func NewModelClient(cfg Config) *ModelClient {
	providers := make(map[string]Provider)
	if cfg.OpenRouterKey != "" {
		providers[ProviderOpenRouter] = newOpenRouterProvider(cfg.OpenRouterKey)
	}
	if cfg.AnthropicKey != "" {
		providers[ProviderAnthropic] = newAnthropicProvider(cfg.AnthropicKey)
	}
	return &ModelClient{providers: providers, sleep: time.Sleep}
}

// Complete runs one request through the retry budget. Exhausting the
// budget surfaces a *ModelCallError wrapping the last cause.
func (c *ModelClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	name := req.Provider
	if name == "" {
		name = ProviderOpenRouter
	}
	provider, ok := c.providers[name]
	if !ok {
		return "", &ModelCallError{Provider: name, Model: req.Model, Attempts: 0,
			Err: fmt.Errorf("provider not configured (missing API key?)")}
	}

	var lastErr error
	for attempt := 1; attempt <= llmMaxAttempts; attempt++ {
		if attempt > 1 {
			c.sleep(llmRetryDelay)
		}
		if err := ctx.Err(); err != nil {
			return "", &ModelCallError{Provider: name, Model: req.Model, Attempts: attempt, Err: err}
		}
		text, usage, err := provider.Complete(ctx, req)
		c.addUsage(usage)
		if err == nil {
			return text, nil
		}
		lastErr = err
		log.Printf("llm call failed provider=%s model=%s attempt=%d/%d: %v",
			name, req.Model, attempt, llmMaxAttempts, err)
	}
	return "", &ModelCallError{Provider: name, Model: req.Model, Attempts: llmMaxAttempts, Err: lastErr}
}

func (c *ModelClient) addUsage(u LLMUsage) {
	c.mu.Lock()
	c.usage.Add(u)
	c.mu.Unlock()
}

// Usage returns the tokens consumed so far across all calls.
func (c *ModelClient) Usage() LLMUsage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// --- OpenRouter ---

type openRouterProvider struct {
	opts []openaiopt.RequestOption
}

func newOpenRouterProvider(apiKey string) *openRouterProvider {
	return &openRouterProvider{opts: []openaiopt.RequestOption{
		openaiopt.WithAPIKey(apiKey),
		openaiopt.WithBaseURL(openRouterBaseURL),
		openaiopt.WithHTTPClient(externalHTTPClient),
	}}
}

func (p *openRouterProvider) Name() string { return ProviderOpenRouter }

func (p *openRouterProvider) Complete(ctx context.Context, req CompletionRequest) (string, LLMUsage, error) {
	client := openai.NewClient(p.opts...)

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
		Temperature: openai.Float(req.Temperature),
		MaxTokens:   openai.Int(int64(req.MaxTokens)),
	})
	if err != nil {
		return "", LLMUsage{}, fmt.Errorf("OpenRouter API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", LLMUsage{}, fmt.Errorf("no choices in OpenRouter response")
	}
	usage := LLMUsage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", usage, fmt.Errorf("empty content from model %s", req.Model)
	}
	log.Printf("llm openrouter response model=%s size=%d tokens_in=%d tokens_out=%d",
		req.Model, len(content), usage.InputTokens, usage.OutputTokens)
	return content, usage, nil
}

// --- Anthropic (direct) ---

type anthropicProvider struct {
	apiKey string
}

func newAnthropicProvider(apiKey string) *anthropicProvider {
	return &anthropicProvider{apiKey: apiKey}
}

func (p *anthropicProvider) Name() string { return ProviderAnthropic }

func (p *anthropicProvider) Complete(ctx context.Context, req CompletionRequest) (string, LLMUsage, error) {
	client := anthropic.NewClient(anthropicopt.WithAPIKey(p.apiKey))

	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   int64(req.MaxTokens),
		Temperature: anthropic.Float(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	})
	if err != nil {
		return "", LLMUsage{}, fmt.Errorf("Anthropic API error: %w", err)
	}
	usage := LLMUsage{
		InputTokens:  message.Usage.InputTokens,
		OutputTokens: message.Usage.OutputTokens,
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			if strings.TrimSpace(block.Text) == "" {
				break
			}
			log.Printf("llm anthropic response model=%s size=%d tokens_in=%d tokens_out=%d",
				req.Model, len(block.Text), usage.InputTokens, usage.OutputTokens)
			return block.Text, usage, nil
		}
	}
	return "", usage, fmt.Errorf("no text content in Anthropic response")
}

// stripCodeFence unwraps a response the model fenced as a markdown code
// block. Revision calls ask for bare LaTeX source but models fence it
// anyway.
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```latex")
	trimmed = strings.TrimPrefix(trimmed, "```tex")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

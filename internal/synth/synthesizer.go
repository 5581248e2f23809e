// Package synth turns a question plus retrieved FAQ passages into a
// natural-language answer using an LLM chat completion in JSON mode.
package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"faqd/internal/store"
)

// ErrService wraps failures from the synthesis provider, including responses
// that are not the requested JSON shape.
var ErrService = errors.New("synthesis service failure")

// defaultTimeout bounds a single synthesis call when none is configured.
const defaultTimeout = 60 * time.Second

// Response is the synthesized answer for one query. Constructed per query,
// never persisted.
type Response struct {
	Answer         string   `json:"answer"`
	ThoughtProcess []string `json:"thought_process"`
	EnoughContext  bool     `json:"enough_context"`
}

// Synthesizer produces an answer from a question and retrieved context.
type Synthesizer interface {
	Synthesize(ctx context.Context, question string, results []store.SearchResult) (Response, error)
}

// Config holds the synthesis provider settings.
type Config struct {
	// APIKey authenticates against the provider.
	APIKey string

	// BaseURL is the provider endpoint. Defaults to the OpenAI API.
	BaseURL string

	// Model is the chat model name (e.g. gpt-4o-mini).
	Model string

	// Timeout bounds each synthesis call. Defaults to 60s if <= 0.
	Timeout time.Duration
}

// LLM synthesizes answers with a chat model via langchaingo. No retries:
// provider failures surface to the caller wrapped in ErrService.
type LLM struct {
	model   llms.Model
	timeout time.Duration
}

var _ Synthesizer = (*LLM)(nil)

// NewLLM builds an LLM synthesizer from cfg.
func NewLLM(cfg Config) (*LLM, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("synthesis model is required")
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &LLM{model: model, timeout: timeout}, nil
}

// Synthesize sends the question and retrieved passages to the chat model and
// parses its structured reply.
func (l *LLM) Synthesize(ctx context.Context, question string, results []store.SearchResult) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(schema.ChatMessageTypeHuman, BuildPrompt(question, results)),
	}

	resp, err := l.model.GenerateContent(ctx, messages, llms.WithJSONMode())
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrService, err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("%w: model returned no choices", ErrService)
	}

	return parseResponse(resp.Choices[0].Content)
}

// parseResponse decodes the model's JSON reply into a Response.
func parseResponse(raw string) (Response, error) {
	var out Response
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return Response{}, fmt.Errorf("%w: unmarshalling model response: %w", ErrService, err)
	}
	if out.ThoughtProcess == nil {
		out.ThoughtProcess = []string{}
	}
	return out, nil
}

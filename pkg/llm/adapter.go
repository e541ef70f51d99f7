package llm

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/config"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/observability"
)

// AdapterConfig controls provider routing and per-call limits.
type AdapterConfig struct {
	DefaultProvider string
	DefaultModel    string
	RequestTimeout  time.Duration
	CircuitBreaker  CircuitBreakerConfig
}

// Adapter routes generate calls to a named provider, bounding each call with
// a timeout and guarding each provider with its own circuit breaker.
type Adapter struct {
	cfg       AdapterConfig
	providers map[string]Provider
	breakers  map[string]*CircuitBreaker
	logger    *zap.Logger
}

// NewAdapter creates an adapter over the given providers.
func NewAdapter(cfg AdapterConfig, logger *zap.Logger, providers ...Provider) *Adapter {
	if cfg.CircuitBreaker.Threshold == 0 {
		cfg.CircuitBreaker = DefaultCircuitBreakerConfig()
	}
	a := &Adapter{
		cfg:       cfg,
		providers: make(map[string]Provider, len(providers)),
		breakers:  make(map[string]*CircuitBreaker, len(providers)),
		logger:    logger.Named("llm"),
	}
	for _, p := range providers {
		a.providers[p.Name()] = p
		a.breakers[p.Name()] = NewCircuitBreaker(p.Name(), cfg.CircuitBreaker)
	}
	return a
}

// NewAdapterFromConfig registers the OpenAI-compatible provider, plus
// Anthropic when an API key is configured.
func NewAdapterFromConfig(cfg config.LLMConfig, logger *zap.Logger) *Adapter {
	providers := []Provider{
		NewOpenAIProvider(OpenAIConfig{BaseURL: cfg.OpenAI.BaseURL, APIKey: cfg.OpenAI.APIKey}, logger),
	}
	if cfg.Anthropic.APIKey != "" {
		providers = append(providers, NewAnthropicProvider(AnthropicConfig{
			APIKey:    cfg.Anthropic.APIKey,
			MaxTokens: cfg.Anthropic.MaxTokens,
		}, logger))
	}

	return NewAdapter(AdapterConfig{
		DefaultProvider: cfg.DefaultProvider,
		DefaultModel:    cfg.DefaultModel,
		RequestTimeout:  cfg.RequestTimeout(),
	}, logger, providers...)
}

// Providers returns the registered provider names, sorted.
func (a *Adapter) Providers() []string {
	names := make([]string, 0, len(a.providers))
	for name := range a.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasProvider reports whether name (or the default when empty) is registered.
func (a *Adapter) HasProvider(name string) bool {
	if name == "" {
		name = a.cfg.DefaultProvider
	}
	_, ok := a.providers[name]
	return ok
}

// Defaults returns the provider and model used when a request leaves them empty.
func (a *Adapter) Defaults() (provider, model string) {
	return a.cfg.DefaultProvider, a.cfg.DefaultModel
}

// Generate sends one system/user exchange. Errors are *Error values, except an
// unknown provider which wraps apperrors.ErrUnknownProvider.
func (a *Adapter) Generate(ctx context.Context, systemMessage, userMessage, provider, model string) (*GenerateResponseResult, error) {
	if provider == "" {
		provider = a.cfg.DefaultProvider
	}
	if model == "" {
		model = a.cfg.DefaultModel
	}

	p, ok := a.providers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownProvider, provider)
	}
	breaker := a.breakers[provider]

	if err := breaker.Allow(); err != nil {
		a.logger.Warn("LLM call rejected by circuit breaker",
			zap.String("provider", provider),
			zap.Error(err))
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "llm.generate",
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", model))

	callCtx := ctx
	if a.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.cfg.RequestTimeout)
		defer cancel()
	}

	result, err := p.Complete(callCtx, systemMessage, userMessage, model)
	if err != nil {
		llmErr := ClassifyError(err)
		// A cancelled caller says nothing about provider health.
		if ctx.Err() == nil && llmErr.Retryable {
			breaker.RecordFailure()
		}
		observability.EndSpan(span, llmErr)
		return nil, llmErr
	}

	breaker.RecordSuccess()
	span.SetAttributes(attribute.Int("llm.total_tokens", result.TotalTokens))
	observability.EndSpan(span, nil)
	return result, nil
}

// BreakerState returns the circuit state of a provider.
func (a *Adapter) BreakerState(provider string) (CircuitState, bool) {
	b, ok := a.breakers[provider]
	if !ok {
		return CircuitClosed, false
	}
	return b.State(), true
}

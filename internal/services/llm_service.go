// internal/services/llm_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/senushidinara/DreamStruct/internal/config"
	"github.com/senushidinara/DreamStruct/internal/llm"
	"github.com/senushidinara/DreamStruct/internal/utils"
)

var ErrLLMNotReady = errors.New("llm service not ready")

// LLMService issues structured completions against the configured provider.
// The provider and credential are resolved on every call, so a key added to
// the environment or the saved config takes effect without a restart.
type LLMService struct {
	providerMutex sync.RWMutex
	provider      llm.Provider
	providerName  string
	providerKey   string // provider|model|base url|api key the cached provider was built for
	fixed         bool

	timeout time.Duration
	metrics *utils.DesignMetrics
}

// NewLLMService builds a service that resolves its provider from config.
func NewLLMService(timeout time.Duration, metrics *utils.DesignMetrics) *LLMService {
	if metrics == nil {
		metrics = utils.NewDesignMetrics()
	}
	return &LLMService{timeout: timeout, metrics: metrics}
}

// NewLLMServiceWithProvider pins the service to p, reported under its
// registry name; used by the CLI and tests.
func NewLLMServiceWithProvider(name string, p llm.Provider, timeout time.Duration, metrics *utils.DesignMetrics) *LLMService {
	s := NewLLMService(timeout, metrics)
	s.provider = p
	s.providerName = name
	s.fixed = true
	return s
}

// resolveProvider returns a provider for the current configuration.
func (s *LLMService) resolveProvider() (llm.Provider, string, error) {
	s.providerMutex.RLock()
	if s.fixed {
		p, name := s.provider, s.providerName
		s.providerMutex.RUnlock()
		return p, name, nil
	}
	s.providerMutex.RUnlock()

	cfg := config.GetCurrentConfig()
	name := cfg.LLMProvider
	if name == "" {
		name = config.DefaultProvider
	}
	apiKey := config.ResolveAPIKey()
	if apiKey == "" {
		return nil, name, fmt.Errorf("%w: %w", ErrLLMNotReady, llm.ErrMissingAPIKey)
	}
	model := cfg.LLMConfig["default_model"]
	if model == "" {
		model = config.DefaultModel
	}
	key := name + "|" + model + "|" + cfg.LLMBaseURL + "|" + apiKey

	s.providerMutex.Lock()
	defer s.providerMutex.Unlock()

	if s.provider != nil && s.providerKey == key {
		return s.provider, s.providerName, nil
	}

	// base_url only ever comes from the environment
	providerConfig := map[string]string{
		"api_key":       apiKey,
		"default_model": model,
	}
	if cfg.LLMBaseURL != "" {
		providerConfig["base_url"] = cfg.LLMBaseURL
	}

	p, err := llm.GetProvider(name, providerConfig)
	if err != nil {
		return nil, name, fmt.Errorf("%w: %w", ErrLLMNotReady, err)
	}
	s.provider, s.providerName, s.providerKey = p, name, key
	return p, name, nil
}

// GetProviderStatus reports whether a call could be made right now.
func (s *LLMService) GetProviderStatus() (bool, string) {
	if s == nil {
		return false, "LLM service not initialised"
	}
	if _, _, err := s.resolveProvider(); err != nil {
		if errors.Is(err, llm.ErrMissingAPIKey) {
			return false, "API key not configured"
		}
		return false, err.Error()
	}
	return true, "Ready"
}

// ProviderName is the name of the configured provider.
func (s *LLMService) ProviderName() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	if s.fixed || s.providerName != "" {
		return s.providerName
	}
	return config.GetCurrentConfig().LLMProvider
}

// CreateStructuredCompletion sends one JSON-constrained request and decodes
// the reply into out. There are no retries.
func (s *LLMService) CreateStructuredCompletion(ctx context.Context, prompt, systemPrompt string, schema *llm.Schema, out interface{}) error {
	provider, name, err := s.resolveProvider()
	if err != nil {
		return err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req := llm.CompletionRequest{
		Prompt:           prompt,
		SystemPrompt:     systemPrompt,
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	}

	start := time.Now()
	resp, err := provider.CompleteText(ctx, req)
	if err != nil {
		s.metrics.RecordLLMRequest(name, req.Model, 0, time.Since(start), err)
		return fmt.Errorf("completion: %w", err)
	}
	s.metrics.RecordLLMRequest(name, resp.ModelName, resp.TokensUsed, time.Since(start), nil)

	text := llm.CleanJSON(resp.Text)
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("failed to parse AI response into structured data: %w", err)
	}
	return nil
}

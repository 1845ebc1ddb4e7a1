// internal/llm/providers/google/google.go
package google

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/senushidinara/DreamStruct/internal/llm"
)

const defaultModel = "gemini-2.5-pro"

func init() {
	llm.Register("google", func() llm.Provider {
		return &Provider{
			models: []string{
				"gemini-2.5-pro",
				"gemini-2.5-flash",
				"gemini-2.5-flash-lite",
			},
		}
	})
}

// Provider talks to the Gemini API through the genai SDK.
type Provider struct {
	client       *genai.Client
	defaultModel string
	models       []string
}

func (p *Provider) Initialize(config map[string]string) error {
	apiKey := config["api_key"]
	if apiKey == "" {
		return llm.ErrMissingAPIKey
	}

	p.defaultModel = defaultModel
	if model := config["default_model"]; model != "" {
		p.defaultModel = model
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL := config["base_url"]; baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return fmt.Errorf("create genai client: %w", err)
	}
	p.client = client
	return nil
}

func (p *Provider) GetName() string {
	return "google"
}

func (p *Provider) GetSupportedModels() []string {
	return p.models
}

func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if p.client == nil {
		return nil, fmt.Errorf("google provider not initialised")
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), buildConfig(req))
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return nil, llm.ErrEmptyResponse
	}

	out := &llm.CompletionResponse{
		Text:         text,
		ModelName:    model,
		ProviderName: p.GetName(),
	}
	if len(resp.Candidates) > 0 {
		out.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	if u := resp.UsageMetadata; u != nil {
		out.PromptTokens = int(u.PromptTokenCount)
		out.OutputTokens = int(u.CandidatesTokenCount)
		out.TokensUsed = int(u.TotalTokenCount)
	}
	return out, nil
}

func buildConfig(req llm.CompletionRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: req.ResponseMIMEType,
		ResponseSchema:   toGenaiSchema(req.ResponseSchema),
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(req.Temperature)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	return cfg
}

var schemaTypes = map[llm.SchemaType]genai.Type{
	llm.TypeObject:  genai.TypeObject,
	llm.TypeArray:   genai.TypeArray,
	llm.TypeString:  genai.TypeString,
	llm.TypeNumber:  genai.TypeNumber,
	llm.TypeInteger: genai.TypeInteger,
	llm.TypeBoolean: genai.TypeBoolean,
}

func toGenaiSchema(s *llm.Schema) *genai.Schema {
	if s == nil {
		return nil
	}

	out := &genai.Schema{
		Type:        schemaTypes[s.Type],
		Description: s.Description,
		Items:       toGenaiSchema(s.Items),
	}
	if len(s.Required) > 0 {
		out.Required = append([]string(nil), s.Required...)
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenaiSchema(prop)
		}
	}
	return out
}

package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain object", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", "Here you go: {\"a\":{\"b\":2}} hope that helps", `{"a":{"b":2}}`},
		{"braces inside strings", `{"a":"}{"}`, `{"a":"}{"}`},
		{"escaped quote", `{"a":"say \"}\""} trailing`, `{"a":"say \"}\""}`},
		{"array", "noise [1,[2,3]] more", `[1,[2,3]]`},
		{"zero width", "\u200b{\"a\":1}", `{"a":1}`},
		{"bom and zero width between tokens", "\ufeff{\"a\":\u200b1}", `{"a":1}`},
		{"uppercase fence", "```JSON\n[1]\n```", `[1]`},
		{"prose then fence", "Sure:\n```json\n{\"a\":1}\n```\nEnjoy", `{"a":1}`},
		{"fence inside string", "```json\n{\"a\":\"use ```code``` here\"}\n```", "{\"a\":\"use ```code``` here\"}"},
		{"nbsp inside string", "{\"a\":\"10\u00a0m\"}", "{\"a\":\"10\u00a0m\"}"},
		{"nbsp between tokens", "{\"a\":\u00a01}", `{"a": 1}`},
		{"no json", "  sorry  ", "sorry"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanJSON(tt.in))
		})
	}
}

type stubProvider struct{ key string }

func (s *stubProvider) Initialize(cfg map[string]string) error {
	if cfg["api_key"] == "" {
		return ErrMissingAPIKey
	}
	s.key = cfg["api_key"]
	return nil
}
func (s *stubProvider) GetName() string              { return "stub" }
func (s *stubProvider) GetSupportedModels() []string { return []string{"stub-1"} }
func (s *stubProvider) CompleteText(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return &CompletionResponse{Text: "{}"}, nil
}

func TestRegistry(t *testing.T) {
	Register("stub", func() Provider { return &stubProvider{} })

	assert.Contains(t, ListProviders(), "stub")
	assert.Equal(t, []string{"stub-1"}, GetSupportedModelsForProvider("stub"))
	assert.Empty(t, GetSupportedModelsForProvider("nope"))

	_, err := GetProvider("nope", nil)
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = GetProvider("stub", map[string]string{})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	p, err := GetProvider("stub", map[string]string{"api_key": "k"})
	require.NoError(t, err)
	resp, err := p.CompleteText(context.Background(), CompletionRequest{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "{}", resp.Text)
}

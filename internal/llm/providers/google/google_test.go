package google

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/senushidinara/DreamStruct/internal/llm"
)

func TestToGenaiSchema(t *testing.T) {
	in := &llm.Schema{
		Type:     llm.TypeObject,
		Required: []string{"structure"},
		Properties: map[string]*llm.Schema{
			"structure": {
				Type: llm.TypeArray,
				Items: &llm.Schema{
					Type:       llm.TypeObject,
					Properties: map[string]*llm.Schema{"position": {Type: llm.TypeArray, Items: &llm.Schema{Type: llm.TypeNumber}}},
				},
			},
		},
	}

	out := toGenaiSchema(in)
	require.NotNil(t, out)
	assert.Equal(t, genai.TypeObject, out.Type)
	assert.Equal(t, []string{"structure"}, out.Required)

	structure := out.Properties["structure"]
	require.NotNil(t, structure)
	assert.Equal(t, genai.TypeArray, structure.Type)
	assert.Equal(t, genai.TypeNumber, structure.Items.Properties["position"].Items.Type)

	assert.Nil(t, toGenaiSchema(nil))
}

func TestBuildConfig(t *testing.T) {
	cfg := buildConfig(llm.CompletionRequest{
		SystemPrompt:     "be brief",
		ResponseMIMEType: "application/json",
		Temperature:      0.4,
		MaxTokens:        256,
	})

	assert.Equal(t, "application/json", cfg.ResponseMIMEType)
	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, "be brief", cfg.SystemInstruction.Parts[0].Text)
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.4, *cfg.Temperature, 1e-6)
	assert.EqualValues(t, 256, cfg.MaxOutputTokens)
	assert.Nil(t, cfg.ResponseSchema)

	bare := buildConfig(llm.CompletionRequest{})
	assert.Nil(t, bare.SystemInstruction)
	assert.Nil(t, bare.Temperature)
}

func TestInitializeRequiresKey(t *testing.T) {
	_, err := llm.GetProvider("google", map[string]string{})
	assert.ErrorIs(t, err, llm.ErrMissingAPIKey)

	p := &Provider{}
	_, err = p.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "x"})
	assert.Error(t, err)
}

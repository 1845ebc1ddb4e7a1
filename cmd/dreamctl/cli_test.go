package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/senushidinara/DreamStruct/internal/llm"
	"github.com/senushidinara/DreamStruct/internal/models"
	"github.com/senushidinara/DreamStruct/internal/render"
	"github.com/senushidinara/DreamStruct/internal/services"
)

const (
	designJSON = `{"name":"Aether Spire","description":"A tower of light.","structure":[` +
		`{"shape":"box","position":[0,5,0],"scale":[2,10,2],"color":"#00ffff"},` +
		`{"shape":"sphere","position":[0,11,0],"scale":[1.5,1.5,1.5],"color":"#ff00ff"}]}`
	analysisJSON = `{"stability":"gravity anchors","materials":"carbon nanofoam","energy":"solar sails"}`
)

type cannedProvider struct {
	mu      sync.Mutex
	replies []string
	prompts []llm.CompletionRequest
}

func (p *cannedProvider) Initialize(map[string]string) error { return nil }
func (p *cannedProvider) GetName() string                    { return "canned" }
func (p *cannedProvider) GetSupportedModels() []string       { return nil }

func (p *cannedProvider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, req)
	if len(p.replies) == 0 {
		return nil, errors.New("no reply")
	}
	text := p.replies[0]
	p.replies = p.replies[1:]
	return &llm.CompletionResponse{Text: text}, nil
}

func useProvider(t *testing.T, replies ...string) *cannedProvider {
	t.Helper()
	p := &cannedProvider{replies: replies}
	orig := newProvider
	newProvider = func(*rootOptions) (llm.Provider, error) { return p, nil }
	t.Cleanup(func() { newProvider = orig })
	return p
}

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestGenerateWithAnalysisAsMarkdown(t *testing.T) {
	p := useProvider(t, designJSON, analysisJSON)

	out, errOut, err := execute(t, "", "generate", "--theme", "haunted", "--analyze", "--format", "markdown", "a", "tower", "of", "light")
	require.NoError(t, err)

	assert.Contains(t, out, "# Aether Spire")
	assert.Contains(t, out, "## Feasibility Analysis")
	assert.Contains(t, out, "carbon nanofoam")
	assert.Contains(t, errOut, `Generated "Aether Spire" with 2 objects`)

	require.Len(t, p.prompts, 2)
	assert.Equal(t, "a tower of light", p.prompts[0].Prompt)
	assert.Equal(t, services.SystemInstruction(models.ThemeHaunted), p.prompts[0].SystemPrompt)
	assert.Equal(t, services.AnalysisPrompt("Aether Spire", "A tower of light."), p.prompts[1].Prompt)
}

func TestGenerateFailureReportsStaticMessage(t *testing.T) {
	useProvider(t, "not json at all")

	_, _, err := execute(t, "", "generate", "tower")
	require.Error(t, err)
	assert.Equal(t, services.GenerateFailedMessage, err.Error())
}

func TestGenerateSceneToFile(t *testing.T) {
	useProvider(t, designJSON)
	path := filepath.Join(t.TempDir(), "scene.json")

	out, _, err := execute(t, "", "generate", "--scene", "-o", path, "tower")
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var scene render.Scene
	require.NoError(t, json.Unmarshal(data, &scene))
	require.Len(t, scene.Meshes, 2)
	assert.Equal(t, render.GeometrySphere, scene.Meshes[1].Geometry.Kind)
}

func TestGenerateRejectsBadFlags(t *testing.T) {
	p := useProvider(t)

	_, _, err := execute(t, "", "generate", "--format", "pdf", "tower")
	assert.Error(t, err)
	_, _, err = execute(t, "", "generate", "--theme", "baroque", "tower")
	assert.Error(t, err)
	assert.Empty(t, p.prompts)
}

func TestGenerateWithoutAPIKey(t *testing.T) {
	t.Setenv("API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	_, _, err := execute(t, "", "generate", "tower")
	assert.ErrorIs(t, err, llm.ErrMissingAPIKey)
}

func TestSceneFromStdin(t *testing.T) {
	out, _, err := execute(t, designJSON, "scene", "-")
	require.NoError(t, err)

	var scene render.Scene
	require.NoError(t, json.Unmarshal([]byte(out), &scene))
	assert.Len(t, scene.Meshes, 2)
	assert.Equal(t, render.Vec3{15, 15, 15}, scene.Camera.Position)
}

func TestSceneRejectsInvalidDesign(t *testing.T) {
	_, _, err := execute(t, `{"name":"x","description":"y","structure":[]}`, "scene", "-")
	assert.ErrorIs(t, err, models.ErrContract)
}

func TestAnalyzeSavedDesign(t *testing.T) {
	useProvider(t, analysisJSON)
	path := filepath.Join(t.TempDir(), "design.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`name: Aether Spire
description: A tower of light.
structure:
  - shape: box
    position: [0, 5, 0]
    scale: [2, 10, 2]
    color: "#00ffff"
`), 0644))

	out, _, err := execute(t, "", "analyze", "--format", "yaml", path)
	require.NoError(t, err)

	var analysis models.AnalysisResult
	require.NoError(t, yaml.Unmarshal([]byte(out), &analysis))
	assert.Equal(t, "solar sails", analysis.Energy)
}

func TestThemes(t *testing.T) {
	out, _, err := execute(t, "", "themes")
	require.NoError(t, err)
	assert.Contains(t, out, "futuristic")
	assert.Contains(t, out, "haunted")

	out, _, err = execute(t, "", "themes", "--format", "json")
	require.NoError(t, err)
	var catalog []models.ThemeInfo
	require.NoError(t, json.Unmarshal([]byte(out), &catalog))
	assert.Len(t, catalog, 2)
}

// internal/services/prompts.go
package services

import (
	"fmt"

	"github.com/senushidinara/DreamStruct/internal/llm"
	"github.com/senushidinara/DreamStruct/internal/models"
)

const (
	futuristicInstruction = "You are an AI specializing in futuristic and impossible architecture for the 'DreamStruct' application. Translate natural language descriptions ('vibe coding') into a 3D model of an innovative, physics-defying structure. The designs should incorporate advanced materials, clean lines, and a sense of technological marvel. Your response MUST be a valid JSON object adhering to the schema. Do not include any text outside the JSON object, including markdown tags like ```json."

	hauntedInstruction = "You are an AI specializing in haunted and supernatural architecture for the 'DreamStruct' application. Translate natural language descriptions ('vibe coding') into a 3D model of a gothic, eerie, or impossible structure. The designs must ignore conventional physics and evoke a sense of dread, mystery, or supernatural wonder. Your response MUST be a valid JSON object adhering to the schema. Do not include any text outside the JSON object, including markdown tags like ```json."

	analysisInstruction = "You are an AI expert in futuristic structural engineering and sustainable design. Analyze the provided architectural concept. Based on its name and description, provide a feasibility analysis. Your response must be a valid JSON object. Do not include markdown tags. Be creative and scientific, suggesting theoretical materials or energy sources where appropriate to make the impossible, possible."
)

// User-facing failure messages stored in the session state.
const (
	GenerateFailedMessage = "Failed to generate design. The model may have returned an unexpected format. Please try again."
	AnalyzeFailedMessage  = "Failed to analyze the design. Please try again."
)

// SystemInstruction returns the generation instruction for a theme.
func SystemInstruction(theme models.Theme) string {
	if theme == models.ThemeHaunted {
		return hauntedInstruction
	}
	return futuristicInstruction
}

// AnalysisPrompt builds the user prompt of a feasibility analysis.
func AnalysisPrompt(name, description string) string {
	return fmt.Sprintf("Analyze the following design concept:\nName: %s\nDescription: %s", name, description)
}

// DesignSchema is the response schema of a generation.
func DesignSchema() *llm.Schema {
	return &llm.Schema{
		Type: llm.TypeObject,
		Properties: map[string]*llm.Schema{
			"name": {
				Type:        llm.TypeString,
				Description: "A creative name for the architectural design, fitting the selected theme.",
			},
			"description": {
				Type:        llm.TypeString,
				Description: "A detailed paragraph describing the concept, its history, and aesthetic, fitting the selected theme.",
			},
			"structure": {
				Type:        llm.TypeArray,
				Description: "An array of 3D primitive objects composing the building.",
				Items: &llm.Schema{
					Type: llm.TypeObject,
					Properties: map[string]*llm.Schema{
						"shape":    {Type: llm.TypeString, Description: "Geometric shape ('box', 'sphere', 'cylinder')."},
						"position": {Type: llm.TypeArray, Description: "[x, y, z] coordinates.", Items: &llm.Schema{Type: llm.TypeNumber}},
						"scale":    {Type: llm.TypeArray, Description: "[x, y, z] scaling factors.", Items: &llm.Schema{Type: llm.TypeNumber}},
						"color":    {Type: llm.TypeString, Description: "Hex color code (e.g., '#00ffff' for cyan)."},
					},
					Required: []string{"shape", "position", "scale", "color"},
				},
			},
		},
		Required: []string{"name", "description", "structure"},
	}
}

// AnalysisSchema is the response schema of a feasibility analysis.
func AnalysisSchema() *llm.Schema {
	return &llm.Schema{
		Type: llm.TypeObject,
		Properties: map[string]*llm.Schema{
			"stability": {
				Type:        llm.TypeString,
				Description: "Analysis of structural stability. Suggest innovative, futuristic solutions (e.g., gravity anchors, force fields, smart materials) to support impossible elements.",
			},
			"materials": {
				Type:        llm.TypeString,
				Description: "Suggestions for material efficiency. Propose advanced or theoretical materials (e.g., carbon nanofoam, programmable matter, bio-luminescent alloys) that fit the theme.",
			},
			"energy": {
				Type:        llm.TypeString,
				Description: "Ideas for energy usage and sustainability. Suggest novel energy sources (e.g., zero-point energy, solar sails, kinetic capture from the structure's movement).",
			},
		},
		Required: []string{"stability", "materials", "energy"},
	}
}

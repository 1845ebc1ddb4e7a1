// internal/services/analyzer_service.go
package services

import (
	"context"
	"fmt"

	"github.com/senushidinara/DreamStruct/internal/models"
)

// AnalyzerService produces the feasibility analysis of a design.
type AnalyzerService struct {
	LLMService *LLMService
}

func NewAnalyzerService(llmService *LLMService) *AnalyzerService {
	return &AnalyzerService{LLMService: llmService}
}

// Analyze uses only the design's name and description.
func (s *AnalyzerService) Analyze(ctx context.Context, design models.DesignResult) (models.AnalysisResult, error) {
	if s.LLMService == nil {
		return models.AnalysisResult{}, ErrLLMNotReady
	}

	var result models.AnalysisResult
	prompt := AnalysisPrompt(design.Name, design.Description)
	if err := s.LLMService.CreateStructuredCompletion(ctx, prompt, analysisInstruction, AnalysisSchema(), &result); err != nil {
		return models.AnalysisResult{}, fmt.Errorf("analyze design: %w", err)
	}
	if err := result.Validate(); err != nil {
		return models.AnalysisResult{}, fmt.Errorf("analyze design: %w", err)
	}
	return result, nil
}

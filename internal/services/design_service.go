// internal/services/design_service.go
package services

import (
	"context"
	"fmt"

	"github.com/senushidinara/DreamStruct/internal/models"
)

// DesignService turns a prompt and theme into a validated design.
type DesignService struct {
	LLMService *LLMService
}

func NewDesignService(llmService *LLMService) *DesignService {
	return &DesignService{LLMService: llmService}
}

// Generate sends one structured request. Any failure, including a reply that
// breaks the design contract, is returned as an error.
func (s *DesignService) Generate(ctx context.Context, req models.GenerationRequest) (models.DesignResult, error) {
	if s.LLMService == nil {
		return models.DesignResult{}, ErrLLMNotReady
	}

	var design models.DesignResult
	err := s.LLMService.CreateStructuredCompletion(ctx, req.Prompt, SystemInstruction(req.Theme), DesignSchema(), &design)
	if err != nil {
		return models.DesignResult{}, fmt.Errorf("generate design: %w", err)
	}
	if err := design.Validate(); err != nil {
		return models.DesignResult{}, fmt.Errorf("generate design: %w", err)
	}
	return design, nil
}

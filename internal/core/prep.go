package core

import (
	"context"
	"fmt"

	"leadharvest/internal/ai"
	"leadharvest/internal/observability"
)

// PrepService drafts interview-preparation content for a lead. It is a
// stateless request/response wrapper around the AI client.
type PrepService struct {
	aiClient ai.Client
}

func NewPrepService(aiClient ai.Client) *PrepService {
	return &PrepService{aiClient: aiClient}
}

func (s *PrepService) Generate(ctx context.Context, req ai.PrepRequest) (*ai.PrepGuide, error) {
	observability.IncAICall("prep_guide")
	guide, err := s.aiClient.GeneratePrepGuide(ctx, req)
	if err != nil {
		observability.IncError(observability.ErrorAI, "prep_service")
		return nil, fmt.Errorf("prep guide generation failed: %w", err)
	}
	return &guide, nil
}

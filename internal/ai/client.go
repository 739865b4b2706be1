package ai

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// PrepRequest carries the lead details the guide is drafted from.
type PrepRequest struct {
	Title        string
	Organization string
	Location     string
	Description  string
	Stage        string
}

type PrepGuide struct {
	Summary         string   `json:"summary"`
	LikelyQuestions []string `json:"likely_questions"`
	TalkingPoints   []string `json:"talking_points"`
	ResearchTopics  []string `json:"research_topics"`
}

type Client interface {
	GeneratePrepGuide(ctx context.Context, req PrepRequest) (PrepGuide, error)
}

// NewClient picks a provider from the AI_PROVIDER environment variable,
// auto-detecting gemini when GEMINI_API_KEY is set and falling back to a mock
// otherwise.
func NewClient() Client {
	provider := strings.ToLower(os.Getenv("AI_PROVIDER"))
	geminiKey := os.Getenv("GEMINI_API_KEY")

	if provider == "" {
		if geminiKey != "" {
			provider = "gemini"
		} else {
			provider = "mock"
		}
	}

	switch provider {
	case "gemini":
		if geminiKey == "" {
			slog.Warn("AI_PROVIDER=gemini but GEMINI_API_KEY not set, using mock client")
			return NewMockClient()
		}
		return NewGeminiClient(geminiKey)
	default:
		return NewMockClient()
	}
}

type MockClient struct{}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) GeneratePrepGuide(ctx context.Context, req PrepRequest) (PrepGuide, error) {
	// Simulate provider latency so callers exercise their timeouts.
	select {
	case <-ctx.Done():
		return PrepGuide{}, ctx.Err()
	case <-time.After(300 * time.Millisecond):
	}

	role := req.Title
	if role == "" {
		role = "this role"
	}
	org := req.Organization
	if org == "" {
		org = "the company"
	}
	return PrepGuide{
		Summary: fmt.Sprintf("Preparation outline for %s at %s.", role, org),
		LikelyQuestions: []string{
			"Walk me through a project you are proud of.",
			fmt.Sprintf("Why do you want to work at %s?", org),
		},
		TalkingPoints:  []string{"Relevant experience", "Team fit", "Growth goals"},
		ResearchTopics: []string{org + " recent news", "Team structure", "Compensation range"},
	}, nil
}

package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"
	defaultModel  = "gemini-1.5-flash"
)

// GeminiClient drafts prep guides through Google's generateContent endpoint.
type GeminiClient struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewGeminiClient(apiKey string) *GeminiClient {
	return &GeminiClient{
		apiKey: apiKey,
		model:  defaultModel,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (g *GeminiClient) WithModel(model string) *GeminiClient {
	g.model = model
	return g
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMIMEType string  `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error,omitempty"`
}

const prepPromptTemplate = `You are helping a job seeker prepare for an interview.

Position: %s
Company: %s
Location: %s
Pipeline stage: %s
Posting details: %s

Produce a JSON object with exactly these fields:
- "summary": two or three sentences framing the opportunity
- "likely_questions": 4-6 interview questions this company would plausibly ask
- "talking_points": 3-5 strengths the candidate should emphasize
- "research_topics": 3-5 things to research about the company before the interview

Respond with JSON only.`

func (g *GeminiClient) GeneratePrepGuide(ctx context.Context, req PrepRequest) (PrepGuide, error) {
	prompt := fmt.Sprintf(prepPromptTemplate,
		orDefault(req.Title, "unspecified"),
		orDefault(req.Organization, "unspecified"),
		orDefault(req.Location, "unspecified"),
		orDefault(req.Stage, "new"),
		orDefault(truncate(req.Description, 4000), "none provided"),
	)

	raw, err := g.callAPI(ctx, prompt)
	if err != nil {
		return PrepGuide{}, err
	}

	var guide PrepGuide
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &guide); err != nil {
		return PrepGuide{}, fmt.Errorf("gemini response decode failed: %w", err)
	}
	return guide, nil
}

func (g *GeminiClient) callAPI(ctx context.Context, prompt string) (string, error) {
	url := fmt.Sprintf("%s/%s:generateContent?key=%s", geminiBaseURL, g.model, g.apiKey)

	payload := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:      0.4,
			MaxOutputTokens:  1024,
			ResponseMIMEType: "application/json",
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("gemini request marshal failed: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gemini response read failed: %w", err)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("gemini response parse failed: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("gemini API error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned no candidates (status %d)", resp.StatusCode)
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// Package ai wraps the Gemini completion service for narrative health
// analysis. Model output is expected to contain a single JSON object,
// optionally inside fenced-code markers, and is never partially
// accepted: anything unparseable fails with ErrMalformedAIResponse.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/vitalsync/server/pkg/apierrors"
)

const defaultModel = "gemini-2.0-flash"

type Client struct {
	apiKey string
	model  string
}

func NewClient(apiKey string) *Client {
	return &Client{apiKey: apiKey, model: defaultModel}
}

// GenerateJSON sends a system instruction plus a structured context and
// parses the completion as a single JSON object.
func (c *Client) GenerateJSON(ctx context.Context, system, prompt string) (map[string]any, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(c.model)
	model.SetTemperature(0.4)
	model.SetMaxOutputTokens(1024)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(system)},
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: no content generated", apierrors.ErrMalformedAIResponse)
	}

	raw := ""
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			raw += string(text)
		}
	}

	return ExtractJSON(raw)
}

// ExtractJSON strips an optional leading code fence (with or without a
// language tag), locates the matching trailing fence or consumes to the
// end if absent, and parses the remainder as a JSON object.
func ExtractJSON(raw string) (map[string]any, error) {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		s = s[3:]
		// Drop a language tag such as "json" on the fence line.
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			first := strings.TrimSpace(s[:nl])
			if first == "" || isFenceTag(first) {
				s = s[nl+1:]
			}
		}
		if end := strings.LastIndex(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", apierrors.ErrMalformedAIResponse, err)
	}
	return out, nil
}

func isFenceTag(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

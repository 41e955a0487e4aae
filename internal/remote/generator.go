package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPGenerator calls a chat-completions style endpoint and parses the small
// JSON object ({front, back, notes}) the model is prompted to return.
type HTTPGenerator struct {
	apiURL      string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
}

// NewHTTPGenerator creates a generation client.
func NewHTTPGenerator(apiURL, apiKey, model string) *HTTPGenerator {
	return &HTTPGenerator{
		apiURL:      apiURL,
		apiKey:      apiKey,
		model:       model,
		temperature: 0.7,
		client:      &http.Client{Timeout: 30 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

const systemPrompt = "You write flashcard variants. Reply with a single JSON object " +
	`with keys "front", "back" and "notes" and nothing else.`

// Generate produces the next variant card for a dynamic-context chain.
// An empty or malformed front is a hard failure for the job.
func (g *HTTPGenerator) Generate(ctx context.Context, prompt string) (Generated, error) {
	body, err := json.Marshal(chatRequest{
		Model:       g.model,
		Messages:    []chatMessage{{Role: "system", Content: systemPrompt}, {Role: "user", Content: prompt}},
		Temperature: g.temperature,
	})
	if err != nil {
		return Generated{}, fmt.Errorf("remote: encode generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL, bytes.NewReader(body))
	if err != nil {
		return Generated{}, fmt.Errorf("remote: build generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return Generated{}, fmt.Errorf("remote: generation call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Generated{}, &Error{Status: resp.StatusCode, Message: resp.Status}
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Generated{}, fmt.Errorf("remote: decode generation response: %w", err)
	}
	if out.Error != nil {
		return Generated{}, fmt.Errorf("remote: generation: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return Generated{}, ErrEmptyGeneration
	}

	return ParseGenerated(out.Choices[0].Message.Content)
}

// ParseGenerated extracts the {front, back, notes} object from model output,
// tolerating surrounding prose or code fences.
func ParseGenerated(content string) (Generated, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return Generated{}, ErrEmptyGeneration
	}
	var g Generated
	if err := json.Unmarshal([]byte(content[start:end+1]), &g); err != nil {
		return Generated{}, fmt.Errorf("%w: %s", ErrEmptyGeneration, err)
	}
	if strings.TrimSpace(g.Front) == "" {
		return Generated{}, ErrEmptyGeneration
	}
	return g, nil
}

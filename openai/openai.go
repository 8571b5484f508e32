package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"report-intake-pipeline/vision"
)

const defaultEndpoint = "https://api.openai.com/v1/chat/completions"

const promptSystem = `You label photos of civic issues for a municipal complaint desk.
Look at the image and answer with exactly ONE label from the list below that best
describes what the photo shows. Answer with the label text only, no punctuation,
no explanation. If none of the labels fits, answer: other

Labels:
%s`

type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ImageURL struct {
	URL string `json:"url"`
}

type ImageContent struct {
	Type     string   `json:"type"`
	ImageURL ImageURL `json:"image_url"`
}

type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

type ChatResponse struct {
	Choices []struct {
		Message struct {
			Content any `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Client labels images with an OpenAI vision model. The model is shown the
// image URL directly and asked to pick one of the candidate labels.
type Client struct {
	apiKey     string
	model      string
	endpoint   string
	candidates []string
	client     *http.Client
}

// NewClient creates a new OpenAI labeler.
func NewClient(apiKey, model string, candidates []string) *Client {
	return &Client{
		apiKey:     apiKey,
		model:      model,
		endpoint:   defaultEndpoint,
		candidates: candidates,
		client:     &http.Client{},
	}
}

// WithEndpoint overrides the chat completions URL.
func (c *Client) WithEndpoint(endpoint string) *Client {
	c.endpoint = endpoint
	return c
}

// SourceName identifies this provider in logs and metrics
func (c *Client) SourceName() string {
	return "ChatGPT"
}

// Classify asks the model for a single label for the image at imageURL.
func (c *Client) Classify(ctx context.Context, imageURL string) (string, error) {
	reqBody := ChatRequest{
		Model: c.model,
		Messages: []Message{
			{
				Role: "system",
				Content: []any{
					TextContent{Type: "text", Text: fmt.Sprintf(promptSystem, strings.Join(c.candidates, "\n"))},
				},
			},
			{
				Role: "user",
				Content: []any{
					ImageContent{Type: "image_url", ImageURL: ImageURL{URL: imageURL}},
				},
			},
		},
		MaxTokens:   16,
		Temperature: 0,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	contentStr, ok := chatResp.Choices[0].Message.Content.(string)
	if !ok {
		return "", fmt.Errorf("unexpected content type %T", chatResp.Choices[0].Message.Content)
	}
	return vision.PickCandidate(contentStr, c.candidates), nil
}

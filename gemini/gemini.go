package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"report-intake-pipeline/vision"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

const promptSystem = `You label photos of civic issues for a municipal complaint desk.
Answer with exactly ONE label from the list below that best describes the photo.
Reply with the label text only. If none of the labels fits, reply: other

Labels:
%s`

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type geminiRequest struct {
	Contents []content `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text,omitempty"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// ImageSource fetches image bytes for inline upload.
type ImageSource interface {
	Fetch(ctx context.Context, imageURL string) ([]byte, error)
}

// Client labels images with a Gemini model. Gemini does not fetch URLs
// itself, so the image is downloaded and sent inline.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	candidates []string
	images     ImageSource
	http       *http.Client
}

func NewClient(apiKey, model string, candidates []string, images ImageSource) *Client {
	return &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultBaseURL,
		candidates: candidates,
		images:     images,
		http:       &http.Client{},
	}
}

// WithBaseURL overrides the API host.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

func (c *Client) SourceName() string {
	return "Gemini"
}

func (c *Client) Classify(ctx context.Context, imageURL string) (string, error) {
	imageData, err := c.images.Fetch(ctx, imageURL)
	if err != nil {
		return "", err
	}

	reqBody := geminiRequest{
		Contents: []content{
			{
				Role: "user",
				Parts: []part{
					{Text: fmt.Sprintf(promptSystem, strings.Join(c.candidates, "\n"))},
					{InlineData: &inlineData{
						MimeType: http.DetectContentType(imageData),
						Data:     base64.StdEncoding.EncodeToString(imageData),
					}},
				},
			},
		},
	}

	answer, err := c.generateContent(ctx, reqBody)
	if err != nil {
		return "", err
	}
	return vision.PickCandidate(answer, c.candidates), nil
}

func (c *Client) generateContent(ctx context.Context, body geminiRequest) (string, error) {
	// try v1beta first, then v1
	endpoints := []string{
		fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey),
		fmt.Sprintf("%s/v1/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey),
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for _, ep := range endpoints {
		text, err := c.post(ctx, ep, data)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return "", lastErr
}

func (c *Client) post(ctx context.Context, endpoint string, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var gr geminiResponse
	if err := json.Unmarshal(bodyBytes, &gr); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(gr.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}
	for _, p := range gr.Candidates[0].Content.Parts {
		if p.Text != "" {
			return p.Text, nil
		}
	}
	return "", fmt.Errorf("no text part in response")
}

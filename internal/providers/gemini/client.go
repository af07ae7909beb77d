package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"aipilot-gateway/internal/capability"
)

type Upstream struct {
	BaseURL string
	APIKey  string
	Headers map[string]string
}

// DoGenerateContent posts one generateContent call and decodes the reply.
// Non-2xx statuses are returned as errors carrying the API's message.
func DoGenerateContent(ctx context.Context, client *http.Client, up Upstream, model string, reqBody GenerateContentRequest) (GenerateContentResponse, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return GenerateContentResponse{}, fmt.Errorf("encode request: %w", err)
	}

	url := buildURL(up.BaseURL, "/v1beta/models/"+model+":generateContent")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return GenerateContentResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if strings.TrimSpace(up.APIKey) != "" {
		req.Header.Set("x-goog-api-key", strings.TrimSpace(up.APIKey))
	}
	for k, v := range up.Headers {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		req.Header.Set(k, v)
	}

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return GenerateContentResponse{}, fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return GenerateContentResponse{}, fmt.Errorf("read gemini response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiErrorResponse
		if json.Unmarshal(raw, &apiErr) == nil && strings.TrimSpace(apiErr.Error.Message) != "" {
			return GenerateContentResponse{}, fmt.Errorf("gemini: %s (status %d)", apiErr.Error.Message, resp.StatusCode)
		}
		return GenerateContentResponse{}, fmt.Errorf("gemini: unexpected status %d", resp.StatusCode)
	}

	var out GenerateContentResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return GenerateContentResponse{}, fmt.Errorf("decode gemini response: %w", err)
	}
	return out, nil
}

// CandidateText concatenates the text parts of the first candidate.
func CandidateText(gr GenerateContentResponse) string {
	if len(gr.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range gr.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

func buildURL(base, path string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if strings.HasSuffix(base, "/v1beta") {
		return base + strings.TrimPrefix(path, "/v1beta")
	}
	return base + path
}

// Client adapts the generateContent API to the capability.Generator boundary.
// Prompts go out as a single user turn; the requested output field becomes a
// JSON response schema so the model replies with a structured object.
type Client struct {
	up   Upstream
	http *http.Client
}

func NewClient(up Upstream) *Client {
	return &Client{up: up, http: &http.Client{}}
}

func (c *Client) Generate(ctx context.Context, call capability.ModelCall) (capability.ModelReply, error) {
	parts := []Part{{Text: call.Prompt}}
	if call.Image != nil {
		parts = append(parts, Part{InlineData: &InlineData{
			MIMEType: call.Image.MIMEType,
			Data:     call.Image.Data,
		}})
	}

	req := GenerateContentRequest{
		Contents: []Content{{Role: "user", Parts: parts}},
		GenerationConfig: &GenerationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema: &Schema{
				Type: "object",
				Properties: map[string]Schema{
					call.OutputField: {Type: "string"},
				},
				Required: []string{call.OutputField},
			},
		},
	}
	for _, s := range call.SafetySettings {
		req.SafetySettings = append(req.SafetySettings, SafetySetting{
			Category:  s.Category,
			Threshold: s.Threshold,
		})
	}

	resp, err := DoGenerateContent(ctx, c.http, c.up, call.Model, req)
	if err != nil {
		return capability.ModelReply{}, err
	}

	reply := capability.ModelReply{Raw: json.RawMessage(CandidateText(resp))}
	if resp.UsageMetadata != nil {
		reply.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		reply.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	return reply, nil
}

package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"aipilot-gateway/internal/capability"
)

func TestGenerateBuildsWireRequest(t *testing.T) {
	var gotPath, gotKey string
	var gotReq GenerateContentRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		resp := GenerateContentResponse{
			Candidates: []Candidate{{Content: Content{Role: "model", Parts: []Part{
				{Text: `{"response":`},
				{Text: `"hello there"}`},
			}}}},
			UsageMetadata: &Usage{PromptTokenCount: 20, CandidatesTokenCount: 5},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient(Upstream{BaseURL: srv.URL, APIKey: "test-key"})
	reply, err := c.Generate(context.Background(), capability.ModelCall{
		Model:  "gemini-2.0-flash",
		Prompt: "say hello",
		Image:  &capability.ImageRef{MIMEType: "image/webp", Data: "AAAA"},
		SafetySettings: []capability.SafetySetting{
			{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
		},
		OutputField: "response",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if gotPath != "/v1beta/models/gemini-2.0-flash:generateContent" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotKey != "test-key" {
		t.Fatalf("unexpected api key header: %q", gotKey)
	}
	if len(gotReq.Contents) != 1 || gotReq.Contents[0].Role != "user" {
		t.Fatalf("unexpected contents: %#v", gotReq.Contents)
	}
	parts := gotReq.Contents[0].Parts
	if len(parts) != 2 || parts[0].Text != "say hello" {
		t.Fatalf("unexpected parts: %#v", parts)
	}
	if parts[1].InlineData == nil || parts[1].InlineData.MIMEType != "image/webp" || parts[1].InlineData.Data != "AAAA" {
		t.Fatalf("inline image missing: %#v", parts[1])
	}
	gc := gotReq.GenerationConfig
	if gc == nil || gc.ResponseMIMEType != "application/json" {
		t.Fatalf("json response mode not requested: %#v", gc)
	}
	if gc.ResponseSchema == nil || gc.ResponseSchema.Properties["response"].Type != "string" {
		t.Fatalf("response schema missing: %#v", gc.ResponseSchema)
	}
	if len(gc.ResponseSchema.Required) != 1 || gc.ResponseSchema.Required[0] != "response" {
		t.Fatalf("response field not required: %#v", gc.ResponseSchema.Required)
	}
	if len(gotReq.SafetySettings) != 1 || gotReq.SafetySettings[0].Category != "HARM_CATEGORY_HATE_SPEECH" {
		t.Fatalf("safety settings missing: %#v", gotReq.SafetySettings)
	}

	if string(reply.Raw) != `{"response":"hello there"}` {
		t.Fatalf("candidate parts not concatenated: %s", reply.Raw)
	}
	if reply.InputTokens != 20 || reply.OutputTokens != 5 {
		t.Fatalf("usage not mapped: %#v", reply)
	}
}

func TestGenerateSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"status":"RESOURCE_EXHAUSTED","message":"Quota exceeded"}}`))
	}))
	defer srv.Close()

	c := NewClient(Upstream{BaseURL: srv.URL, APIKey: "k"})
	_, err := c.Generate(context.Background(), capability.ModelCall{
		Model: "gemini-2.0-flash", Prompt: "hi", OutputField: "response",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Quota exceeded") {
		t.Fatalf("API message not surfaced: %v", err)
	}
}

func TestGenerateConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	c := NewClient(Upstream{BaseURL: srv.URL, APIKey: "k"})
	_, err := c.Generate(context.Background(), capability.ModelCall{
		Model: "gemini-2.0-flash", Prompt: "hi", OutputField: "response",
	})
	if err == nil {
		t.Fatal("expected transport error")
	}
}

func TestBuildURL(t *testing.T) {
	path := "/v1beta/models/gemini-2.0-flash:generateContent"
	if got := buildURL("https://example.com/", path); got != "https://example.com"+path {
		t.Fatalf("unexpected url: %s", got)
	}
	if got := buildURL("https://example.com/v1beta", path); got != "https://example.com"+path {
		t.Fatalf("v1beta suffix must not be doubled: %s", got)
	}
}

package capability

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
)

// ModelCall is everything the model boundary needs for one generation:
// the rendered prompt, an optional inline image, and the invocation
// parameters from the capability's PromptSpec.
type ModelCall struct {
	Model          string
	Prompt         string
	Image          *ImageRef
	SafetySettings []SafetySetting
	// OutputField is the single string field the model must return in its
	// structured JSON reply.
	OutputField string
}

// ModelReply carries the model's structured reply plus usage accounting.
type ModelReply struct {
	// Raw is the candidate payload, expected to be a JSON object containing
	// the requested output field.
	Raw          json.RawMessage
	InputTokens  int64
	OutputTokens int64
}

// Generator is the external model capability. Implementations make exactly
// one attempt; retries and fallbacks are not their concern.
type Generator interface {
	Generate(ctx context.Context, call ModelCall) (ModelReply, error)
}

// Invocation reports what one Invoke did, for metrics and request logs.
type Invocation struct {
	Outcome      Outcome
	Model        string
	PromptBytes  int
	InputTokens  int64
	OutputTokens int64
}

type Invoker struct {
	gen    Generator
	logger *slog.Logger
}

func NewInvoker(gen Generator, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{gen: gen, logger: logger}
}

// Invoke builds the prompt, calls the model once, and validates the reply.
//
// Failure is two-tier: a reply that violates the output contract maps to the
// fixed fallback string reported as success, while a failed call maps to a
// hard error. Callers distinguish "got an answer, even if generic" from
// "got nothing".
func (iv *Invoker) Invoke(ctx context.Context, spec PromptSpec, req Request) (Result, Invocation) {
	prompt := BuildPrompt(spec, req)

	var image *ImageRef
	if spec.AllowImage {
		image = req.Image
	}

	inv := Invocation{Model: spec.Model, PromptBytes: len(prompt)}

	reply, err := iv.gen.Generate(ctx, ModelCall{
		Model:          spec.Model,
		Prompt:         prompt,
		Image:          image,
		SafetySettings: spec.SafetySettings,
		OutputField:    spec.OutputField,
	})
	if err != nil {
		inv.Outcome = OutcomeError
		iv.logger.Error("model call failed", "capability", spec.Name, "model", spec.Model, "err", err)
		return Failure(err.Error()), inv
	}

	inv.InputTokens = reply.InputTokens
	inv.OutputTokens = reply.OutputTokens

	out, ok := extractField(reply.Raw, spec.OutputField)
	if !ok {
		inv.Outcome = OutcomeFallback
		iv.logger.Warn("model reply missing expected field, returning fallback",
			"capability", spec.Name, "field", spec.OutputField, "reply_bytes", len(reply.Raw))
		return Success(FallbackResponse), inv
	}

	inv.Outcome = OutcomeSucceeded
	return Success(out), inv
}

func extractField(raw json.RawMessage, field string) (string, bool) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", false
	}
	s, ok := fields[field].(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

package capability

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FallbackResponse is returned as a successful output when the model replies
// but violates the output contract. Callers must be able to rely on the exact
// wording, so it is a single shared constant.
const FallbackResponse = "I'm sorry, I couldn't generate a response at this time."

const DefaultModel = "gemini-2.0-flash"

type SafetySetting struct {
	Category  string
	Threshold string
}

// PromptSpec is the immutable per-capability template and model configuration.
// Constructed once at startup and shared read-only across requests.
type PromptSpec struct {
	Name            string
	BaseInstruction string
	WithHistory     bool
	AllowImage      bool
	OutputField     string
	Model           string
	SafetySettings  []SafetySetting
	EmptyInputError string
	GenericError    string
}

// Specs holds the three site capabilities.
type Specs struct {
	Summarize PromptSpec
	Headline  PromptSpec
	Chat      PromptSpec
}

func NewSpecs() Specs {
	return Specs{
		Summarize: PromptSpec{
			Name: "summarize",
			BaseInstruction: "You are an expert at summarizing text.\n\n" +
				"Write a concise summary of the following text, preserving its key points:",
			OutputField:     "summary",
			Model:           DefaultModel,
			EmptyInputError: "Text to summarize cannot be empty.",
			GenericError:    "Failed to summarize text. Please try again.",
		},
		Headline: PromptSpec{
			Name: "headline",
			BaseInstruction: "You are an expert copywriter specializing in creating catchy headlines.\n\n" +
				"Generate a compelling and attention-grabbing headline for the following topic or description:",
			OutputField:     "headline",
			Model:           DefaultModel,
			EmptyInputError: "Topic for headline cannot be empty.",
			GenericError:    "Failed to generate headline. Please try again.",
		},
		Chat: PromptSpec{
			Name:            "chat",
			BaseInstruction: "You are a helpful AI assistant. Respond to the user's message.",
			WithHistory:     true,
			AllowImage:      true,
			OutputField:     "response",
			Model:           DefaultModel,
			SafetySettings: []SafetySetting{
				{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
				{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
			},
			EmptyInputError: "Message or image cannot be empty.",
			GenericError:    "Failed to get AI response. Please try again.",
		},
	}
}

type specOverride struct {
	Instruction string `yaml:"instruction"`
	Model       string `yaml:"model"`
}

type overridesFile struct {
	Summarize specOverride `yaml:"summarize"`
	Headline  specOverride `yaml:"headline"`
	Chat      specOverride `yaml:"chat"`
}

// LoadOverrides applies per-capability instruction and model overrides from a
// YAML file on top of the built-in specs. Used at startup only.
func LoadOverrides(path string, specs Specs) (Specs, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Specs{}, fmt.Errorf("read prompts file: %w", err)
	}
	var f overridesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Specs{}, fmt.Errorf("parse prompts file: %w", err)
	}
	specs.Summarize = applyOverride(specs.Summarize, f.Summarize)
	specs.Headline = applyOverride(specs.Headline, f.Headline)
	specs.Chat = applyOverride(specs.Chat, f.Chat)
	return specs, nil
}

func applyOverride(spec PromptSpec, o specOverride) PromptSpec {
	if s := strings.TrimSpace(o.Instruction); s != "" {
		spec.BaseInstruction = s
	}
	if s := strings.TrimSpace(o.Model); s != "" {
		spec.Model = s
	}
	return spec
}

package capability

import "strings"

const imageInstruction = "[The user has also provided an image from their camera. " +
	"Analyze the image and incorporate your observations into the response to the user's text. " +
	"If the user's text doesn't seem to relate to the image, briefly describe the image and then address the text query.]"

// BuildPrompt renders the full prompt text for one invocation. It is pure and
// deterministic: identical inputs always yield byte-identical output, which
// keeps golden-output testing tractable.
//
// The image payload itself is not embedded here; it travels as an inline-data
// part alongside the prompt text.
func BuildPrompt(spec PromptSpec, req Request) string {
	var b strings.Builder
	b.WriteString(spec.BaseInstruction)

	if spec.WithHistory && len(req.History) > 0 {
		b.WriteString("\n\nConversation History:\n")
		for _, msg := range req.History {
			b.WriteString(roleLabel(msg.Role))
			b.WriteString(": ")
			for _, p := range msg.Parts {
				b.WriteString(p.Text)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n\nUser: ")
	b.WriteString(req.Text)

	if spec.AllowImage && req.Image != nil {
		b.WriteString("\n")
		b.WriteString(imageInstruction)
	}

	b.WriteString("\n\nAI Response:")
	return b.String()
}

func roleLabel(r Role) string {
	if r == RoleUser {
		return "User"
	}
	return "AI"
}

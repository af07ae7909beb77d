package capability

import (
	"errors"
	"fmt"
	"strings"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

type Part struct {
	Text string
}

// HistoryMessage is one prior turn of conversation supplied by the caller.
// The core reads it to enrich the prompt and never persists it.
type HistoryMessage struct {
	Role  Role
	Parts []Part
}

// Request is the validated, normalized input for one capability invocation.
// Immutable once built; discarded after the request cycle.
type Request struct {
	Text    string
	History []HistoryMessage
	Image   *ImageRef
}

// ImageRef holds a decoded image data URI: a MIME type plus the base64 payload.
type ImageRef struct {
	MIMEType string
	Data     string
}

var ErrBadImageRef = errors.New("image reference is not a base64 data URI")

// ParseImageDataURI parses "data:<mimetype>;base64,<encoded_data>".
// Callers treat a failure as absent-with-warning, not a request failure.
func ParseImageDataURI(s string) (ImageRef, error) {
	s = strings.TrimSpace(s)
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return ImageRef{}, ErrBadImageRef
	}
	meta, data, ok := strings.Cut(rest, ",")
	if !ok {
		return ImageRef{}, ErrBadImageRef
	}
	mime, enc, ok := strings.Cut(meta, ";")
	if !ok || enc != "base64" {
		return ImageRef{}, ErrBadImageRef
	}
	mime = strings.TrimSpace(mime)
	if mime == "" || data == "" {
		return ImageRef{}, ErrBadImageRef
	}
	return ImageRef{MIMEType: mime, Data: data}, nil
}

// ValidateHistory checks every entry against the enumerated role set and
// requires at least one text part per entry. Any invalid entry rejects the
// whole collection; callers degrade to empty history instead of failing.
func ValidateHistory(history []HistoryMessage) error {
	for i, msg := range history {
		if msg.Role != RoleUser && msg.Role != RoleModel {
			return fmt.Errorf("history[%d]: unknown role %q", i, msg.Role)
		}
		if len(msg.Parts) == 0 {
			return fmt.Errorf("history[%d]: no text parts", i)
		}
	}
	return nil
}

// ValidateInput enforces the mandatory-content invariant: the text field must
// be non-empty after trimming, unless the capability accepts an image in its
// place and one is present.
func ValidateInput(spec PromptSpec, req Request) error {
	if strings.TrimSpace(req.Text) != "" {
		return nil
	}
	if spec.AllowImage && req.Image != nil {
		return nil
	}
	return errors.New(spec.EmptyInputError)
}

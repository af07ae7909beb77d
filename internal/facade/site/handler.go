package site

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"aipilot-gateway/internal/capability"
	"aipilot-gateway/internal/logbus"
	"aipilot-gateway/internal/metrics"
)

// maxHistoryMessages mirrors the client-side cap on transcript length.
const maxHistoryMessages = 10

type Handler struct {
	inv     *capability.Invoker
	specs   capability.Specs
	m       *metrics.Metrics
	bus     *logbus.Bus
	logger  *slog.Logger
	timeout time.Duration
}

func NewHandler(inv *capability.Invoker, specs capability.Specs, m *metrics.Metrics, bus *logbus.Bus, logger *slog.Logger, timeout time.Duration) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Handler{inv: inv, specs: specs, m: m, bus: bus, logger: logger, timeout: timeout}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/summarize", h.handleSummarize)
	r.Post("/headline", h.handleHeadline)
	r.Post("/chat", h.handleChat)
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func (h *Handler) handleSummarize(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.specs.Summarize, capability.Request{Text: formField(r, "text", "inputText")})
}

func (h *Handler) handleHeadline(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.specs.Headline, capability.Request{Text: formField(r, "topic", "inputText")})
}

// formField returns the first non-empty value among the field's canonical
// name and its legacy aliases; the site form still posts "inputText" for both
// text capabilities.
func formField(r *http.Request, names ...string) string {
	for _, name := range names {
		if v := r.FormValue(name); strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	req := capability.Request{Text: r.FormValue("userInput")}

	if raw := strings.TrimSpace(r.FormValue("history")); raw != "" {
		history, err := parseClientHistory(raw)
		if err != nil {
			// Bad history degrades to an empty transcript, never a failure.
			h.logger.Warn("invalid chat history, continuing without it", "err", err)
		} else {
			req.History = history
		}
	}

	if raw := strings.TrimSpace(r.FormValue("imageDataUri")); raw != "" {
		img, err := capability.ParseImageDataURI(raw)
		if err != nil {
			h.logger.Warn("malformed image data URI, continuing without it", "err", err)
		} else {
			req.Image = &img
		}
	}

	h.run(w, r, h.specs.Chat, req)
}

// clientMessage is the wire shape the chat UI serializes into the history
// field. The display-only identity fields are dropped before anything reaches
// the model.
type clientMessage struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Sender    string `json:"sender"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

func parseClientHistory(raw string) ([]capability.HistoryMessage, error) {
	var msgs []clientMessage
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		return nil, fmt.Errorf("parse history: %w", err)
	}

	out := make([]capability.HistoryMessage, 0, len(msgs))
	for i, m := range msgs {
		var role capability.Role
		switch m.Sender {
		case "user":
			role = capability.RoleUser
		case "ai":
			role = capability.RoleModel
		default:
			// One bad sender rejects the whole collection.
			return nil, fmt.Errorf("history[%d]: unknown sender %q", i, m.Sender)
		}
		out = append(out, capability.HistoryMessage{
			Role:  role,
			Parts: []capability.Part{{Text: m.Text}},
		})
	}
	if err := capability.ValidateHistory(out); err != nil {
		return nil, err
	}
	if len(out) > maxHistoryMessages {
		out = out[len(out)-maxHistoryMessages:]
	}
	return out, nil
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request, spec capability.PromptSpec, req capability.Request) {
	start := time.Now()
	requestID := strings.TrimSpace(r.Header.Get("x-request-id"))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set("X-Request-Id", requestID)

	result, inv := h.adapt(r.Context(), spec, req)
	status := statusFor(inv.Outcome)
	writeResult(w, status, result)

	dur := time.Since(start)
	if h.m != nil {
		h.m.ObserveRequest(spec.Name, string(inv.Outcome), status, dur)
	}
	if h.bus != nil {
		errMsg := ""
		if result.Error != nil {
			errMsg = *result.Error
		}
		h.bus.Publish(logbus.Event{
			TS:            time.Now(),
			RequestID:     requestID,
			Capability:    spec.Name,
			Model:         inv.Model,
			Outcome:       string(inv.Outcome),
			Status:        status,
			LatencyMs:     dur.Milliseconds(),
			PromptBytes:   inv.PromptBytes,
			InputTokens:   inv.InputTokens,
			OutputTokens:  inv.OutputTokens,
			HistoryLen:    len(req.History),
			ImageAttached: req.Image != nil,
			Error:         errMsg,
		})
	}
}

// adapt is the outermost safety boundary: every path, including a panic,
// terminates in exactly one Result.
func (h *Handler) adapt(ctx context.Context, spec capability.PromptSpec, req capability.Request) (result capability.Result, inv capability.Invocation) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("panic during request adaptation", "capability", spec.Name, "panic", rec)
			result = capability.Failure(spec.GenericError)
			inv = capability.Invocation{Outcome: capability.OutcomeError, Model: spec.Model}
		}
	}()

	if err := capability.ValidateInput(spec, req); err != nil {
		return capability.Failure(err.Error()), capability.Invocation{Outcome: capability.OutcomeRejected, Model: spec.Model}
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return h.inv.Invoke(ctx, spec, req)
}

func statusFor(o capability.Outcome) int {
	switch o {
	case capability.OutcomeRejected:
		return http.StatusBadRequest
	case capability.OutcomeError:
		return http.StatusBadGateway
	default:
		return http.StatusOK
	}
}

package logbus

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Event is one completed capability request. It carries request metadata
// only; prompt and message content never enter the bus.
type Event struct {
	TS            time.Time `json:"ts"`
	RequestID     string    `json:"request_id"`
	Capability    string    `json:"capability"`
	Model         string    `json:"model,omitempty"`
	Outcome       string    `json:"outcome"`
	Status        int       `json:"status"`
	LatencyMs     int64     `json:"latency_ms"`
	PromptBytes   int       `json:"prompt_bytes,omitempty"`
	InputTokens   int64     `json:"input_tokens,omitempty"`
	OutputTokens  int64     `json:"output_tokens,omitempty"`
	HistoryLen    int       `json:"history_len,omitempty"`
	ImageAttached bool      `json:"image_attached,omitempty"`
	Error         string    `json:"error,omitempty"`
}

type Bus struct {
	db     *sql.DB
	logger *slog.Logger

	mu      sync.RWMutex
	subs    map[chan Event]struct{}
	ring    []Event
	ringCap int
}

// New creates a bus with an in-memory ring of ringCap events. When db is
// non-nil, every event is additionally persisted asynchronously.
func New(db *sql.DB, logger *slog.Logger, ringCap int) *Bus {
	if ringCap <= 0 {
		ringCap = 200
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		db:      db,
		logger:  logger,
		subs:    make(map[chan Event]struct{}),
		ring:    make([]Event, 0, ringCap),
		ringCap: ringCap,
	}
}

func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	if len(b.ring) < b.ringCap {
		b.ring = append(b.ring, ev)
	} else {
		copy(b.ring, b.ring[1:])
		b.ring[len(b.ring)-1] = ev
	}
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	b.mu.Unlock()

	if b.db != nil {
		go b.persist(ev)
	}
}

// Snapshot returns the ring contents, oldest first.
func (b *Bus) Snapshot() []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Event(nil), b.ring...)
}

func (b *Bus) persist(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO request_logs (request_id, capability, model, outcome, status, latency_ms, prompt_bytes, input_tokens, output_tokens, history_len, image_attached, error_msg)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.RequestID, ev.Capability, ev.Model, ev.Outcome, ev.Status, ev.LatencyMs,
		ev.PromptBytes, ev.InputTokens, ev.OutputTokens, ev.HistoryLen, ev.ImageAttached, ev.Error)
	if err != nil {
		b.logger.Error("failed to persist request log", "err", err)
	}
}

func (b *Bus) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	snapshot := append([]Event(nil), b.ring...)
	b.mu.Unlock()

	for _, ev := range snapshot {
		writeSSE(w, ev)
	}
	flusher.Flush()

	defer func() {
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
		close(ch)
	}()

	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			return
		case ev := <-ch:
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev Event) {
	b, _ := json.Marshal(ev)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", b)
}

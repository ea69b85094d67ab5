// Package delivery moves chat events into the engine and its replies out:
// one JSON object per line on both sides, plus an optional webhook mirror.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hseinmoussa/tzbuddy/internal/engine"
)

// Envelope is one outbound reply addressed to a chat destination.
type Envelope struct {
	RequestID string `json:"request_id"`
	Platform  string `json:"platform"`
	Kind      string `json:"kind"`
	ScopeID   string `json:"scope_id,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Outcome   string `json:"outcome"`
	Language  string `json:"language"`
	Text      string `json:"text"`
}

// envelope addresses a reply. kind is the inbound event kind; for DMs the
// user is the recipient.
func envelope(p engine.Platform, kind string, r engine.Reply, scope, channel, user string) Envelope {
	return Envelope{
		RequestID: r.RequestID,
		Platform:  string(p),
		Kind:      kind,
		ScopeID:   scope,
		ChannelID: channel,
		UserID:    user,
		Outcome:   r.Outcome.String(),
		Language:  r.Language.String(),
		Text:      r.Text,
	}
}

// Sink writes envelopes to out and, when webhookURL is set, mirrors each to
// the webhook.
type Sink struct {
	mu         sync.Mutex
	enc        *json.Encoder
	webhookURL string
	client     *http.Client
	retryDelay time.Duration
	log        *slog.Logger
}

// NewSink creates a Sink. log may be nil.
func NewSink(out io.Writer, webhookURL string, log *slog.Logger) *Sink {
	if log == nil {
		log = slog.Default()
	}
	return &Sink{
		enc:        json.NewEncoder(out),
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		retryDelay: 5 * time.Second,
		log:        log,
	}
}

// Deliver writes env as one JSON line. Webhook failures are logged as
// warnings and never returned; only a failed local write is an error.
func (s *Sink) Deliver(ctx context.Context, env Envelope) error {
	s.mu.Lock()
	err := s.enc.Encode(env)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("write reply: %w", err)
	}

	if s.webhookURL != "" {
		if err := s.sendWebhook(ctx, env); err != nil {
			s.log.Warn("webhook delivery failed", "request_id", env.RequestID, "error", err)
		}
	}
	return nil
}

// sendWebhook POSTs env to the webhook. On failure, it retries once after
// retryDelay. Returns an error only if both attempts fail.
func (s *Sink) sendWebhook(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	err = s.post(ctx, payload)
	if err == nil {
		return nil
	}
	s.log.Warn("webhook first attempt failed; retrying", "delay", s.retryDelay, "error", err)

	select {
	case <-time.After(s.retryDelay):
	case <-ctx.Done():
		return fmt.Errorf("webhook retry cancelled: %w (first: %v)", ctx.Err(), err)
	}
	if retryErr := s.post(ctx, payload); retryErr != nil {
		return fmt.Errorf("webhook failed after retry: %w (first: %v)", retryErr, err)
	}
	return nil
}

// post performs a single HTTP POST with a JSON body.
func (s *Sink) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const DefaultEndpoint = "https://fcm.googleapis.com"

type Config struct {
	ProjectID string
	Endpoint  string
	Timeout   time.Duration
}

type notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type message struct {
	Notification notification `json:"notification"`
	Token        string       `json:"token"`
}

type sendRequest struct {
	Message message `json:"message"`
}

// Sender posts single-device notifications to the FCM HTTP v1 API.
// Delivery is best effort: every failure is logged and swallowed.
type Sender struct {
	client *http.Client
	url    string
	tokens TokenSource
	log    *zerolog.Logger
}

func NewSender(cfg Config, tokens TokenSource, log *zerolog.Logger) *Sender {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Sender{
		client: &http.Client{Timeout: timeout},
		url:    fmt.Sprintf("%s/v1/projects/%s/messages:send", strings.TrimRight(endpoint, "/"), cfg.ProjectID),
		tokens: tokens,
		log:    log,
	}
}

func (s *Sender) Send(ctx context.Context, token, title, body string) {
	if err := s.send(ctx, token, title, body); err != nil {
		s.log.Error().Err(err).Str("title", title).Msg("failed to send push notification")
		return
	}
	s.log.Info().Str("title", title).Msg("push notification sent")
}

func (s *Sender) send(ctx context.Context, token, title, body string) error {
	accessToken, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(sendRequest{Message: message{
		Notification: notification{Title: title, Body: body},
		Token:        token,
	}})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("messaging api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}

package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"agent-chat-engine/internal/model"
)

// HistoryMessage is the compact transcript entry replayed to the
// backend so a stateless turn can continue the conversation.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TurnRequest is the payload that opens one request/response cycle.
// SessionID is null on the first turn of a conversation; the backend
// issues an id in the stream's session envelope.
type TurnRequest struct {
	Message         string           `json:"message"`
	SessionID       *string          `json:"sessionId"`
	History         []HistoryMessage `json:"history"`
	DocumentContent string           `json:"documentContent,omitempty"`
}

// Client opens turn streams against the agent backend. The response
// body is handed to the frame decoder as-is; no timeout is set on the
// streaming request because the backend's own per-request limit
// governs.
type Client struct {
	baseURL      string
	turnEndpoint string
	httpClient   *http.Client
}

func NewClient(baseURL, turnEndpoint string) *Client {
	return &Client{
		baseURL:      baseURL,
		turnEndpoint: turnEndpoint,
		httpClient:   &http.Client{},
	}
}

// OpenTurn sends the request and returns the event-stream body. The
// caller owns the ReadCloser and the context cancels the stream.
func (c *Client) OpenTurn(ctx context.Context, req *TurnRequest) (io.ReadCloser, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.turnEndpoint, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("backend returned status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// BuildHistory flattens a transcript into the replayable form the
// backend expects. Empty assistant placeholders are skipped.
func BuildHistory(messages []*model.Message) []HistoryMessage {
	history := make([]HistoryMessage, 0, len(messages))
	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		history = append(history, HistoryMessage{Role: string(msg.Role), Content: msg.Content})
	}
	return history
}

// titleTimeout bounds the cosmetic title request; it must never hold a
// turn open.
const titleTimeout = 15 * time.Second

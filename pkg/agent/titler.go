package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"agent-chat-engine/internal/model"
)

// Titler asks the title-generation endpoint to summarize a session
// into a short label.
type Titler struct {
	baseURL    string
	endpoint   string
	httpClient *http.Client
}

func NewTitler(baseURL, endpoint string) *Titler {
	return &Titler{
		baseURL:    baseURL,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: titleTimeout},
	}
}

type titleRequest struct {
	Messages []HistoryMessage `json:"messages"`
}

type titleResponse struct {
	Title string `json:"title"`
}

func (t *Titler) Summarize(ctx context.Context, messages []*model.Message) (string, error) {
	payload, err := json.Marshal(titleRequest{Messages: BuildHistory(messages)})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+t.endpoint, bytes.NewBuffer(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("title endpoint returned status %d", resp.StatusCode)
	}

	var decoded titleResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return decoded.Title, nil
}

package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/botronka/botronka/internal/httpc"
)

// ChatConfig points at an OpenAI-compatible chat completions endpoint,
// typically llama.cpp serving a local model on the robot.
type ChatConfig struct {
	URL         string
	Model       string
	APIKey      string // optional, local servers usually ignore it
	Temperature float64
	MaxTokens   int
	UseFewShot  bool
}

// DefaultChatConfig mirrors the on-robot local server.
func DefaultChatConfig() ChatConfig {
	return ChatConfig{
		URL:         "http://127.0.0.1:8080/v1/chat/completions",
		Model:       "local",
		Temperature: 0.2,
		MaxTokens:   256,
		UseFewShot:  true,
	}
}

// ChatClient implements LLMClient against a chat completions API. The
// underlying http.Client is reused across requests for connection
// pooling; the per-request deadline comes from the caller's context.
type ChatClient struct {
	cfg  ChatConfig
	http *http.Client
}

// NewChatClient builds a chat client. Zero-value config fields fall
// back to defaults.
func NewChatClient(cfg ChatConfig) *ChatClient {
	d := DefaultChatConfig()
	if cfg.URL == "" {
		cfg.URL = d.URL
	}
	if cfg.Model == "" {
		cfg.Model = d.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = d.MaxTokens
	}
	return &ChatClient{
		cfg:  cfg,
		http: httpc.NewClient(90 * time.Second),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Ask implements LLMClient.
func (c *ChatClient) Ask(ctx context.Context, userText string) (string, error) {
	messages := []chatMessage{{Role: "system", Content: SystemPrompt}}
	if c.cfg.UseFewShot {
		for _, fs := range DefaultFewShot {
			messages = append(messages, chatMessage{Role: fs.Role, Content: fs.Content})
		}
	}
	messages = append(messages, chatMessage{Role: "user", Content: userText})

	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("agent: encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("agent: build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("agent: chat request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("agent: read chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("agent: chat endpoint returned %s: %s", resp.Status, truncate(string(raw), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("agent: decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("agent: chat response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ LLMClient = (*ChatClient)(nil)

package llamacpp

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Client talks to a llama.cpp server through its OpenAI-compatible API
type Client struct {
	client *openai.Client
}

func NewClient(serverURL string) (*Client, error) {
	if serverURL == "" {
		serverURL = "http://localhost:8080"
	}
	if !strings.HasPrefix(serverURL, "http://") && !strings.HasPrefix(serverURL, "https://") {
		return nil, fmt.Errorf("invalid llama.cpp URL: %s", serverURL)
	}

	config := openai.DefaultConfig("")
	config.BaseURL = strings.TrimSuffix(serverURL, "/") + "/v1"
	config.HTTPClient = &http.Client{Timeout: 5 * time.Minute}

	return &Client{client: openai.NewClientWithConfig(config)}, nil
}

func (c *Client) Query(ctx context.Context, model, prompt string, image []byte) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 300*time.Second)
		defer cancel()
	}

	parts := []openai.ChatMessagePart{
		{
			Type: openai.ChatMessagePartTypeText,
			Text: prompt,
		},
	}

	if len(image) > 0 {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL: "data:" + http.DetectContentType(image) + ";base64," + base64.StdEncoding.EncodeToString(image),
			},
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:         openai.ChatMessageRoleUser,
				MultiContent: parts,
			},
		},
		Temperature: 0.1,
		MaxTokens:   2048,
		TopP:        0.8,
	})
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	// Content comes back either as a string or as an array of parts
	msg := resp.Choices[0].Message
	if msg.Content != "" {
		return msg.Content, nil
	}
	for _, part := range msg.MultiContent {
		if part.Text != "" {
			return part.Text, nil
		}
	}

	return "", fmt.Errorf("empty response from llama.cpp server")
}

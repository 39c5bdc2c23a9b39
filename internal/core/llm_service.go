package core

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/api/option"
)

// Completer is the hosted chat-completion boundary. Implementations receive
// the full ordered message list (system first) and return free-text content.
type Completer interface {
	Complete(ctx context.Context, messages []PromptMessage) (string, error)
}

// OpenAIClient talks to the OpenAI chat-completions API or any compatible
// endpoint (OpenRouter etc. via a custom base URL).
type OpenAIClient struct {
	client *openai.Client
	model  string
}

func NewOpenAIClient(apiKey, baseURL, model string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, messages []PromptMessage) (string, error) {
	reqMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		reqMessages = append(reqMessages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    reqMessages,
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// GeminiClient is the alternative provider, kept for deployments that run on
// a Google API key instead.
type GeminiClient struct {
	client *genai.Client
	model  string
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiClient{client: client, model: model}, nil
}

func (c *GeminiClient) Close() {
	if c.client != nil {
		if err := c.client.Close(); err != nil {
			log.Printf("Error closing GenAI client: %v", err)
		}
	}
}

func (c *GeminiClient) Complete(ctx context.Context, messages []PromptMessage) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("message list is empty for chat completion")
	}

	model := c.client.GenerativeModel(c.model)

	// Gemini takes the system prompt out of band and names the assistant
	// role "model".
	history := messages
	if history[0].Role == RoleSystem {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(history[0].Content)},
		}
		history = history[1:]
	}

	if len(history) == 0 || history[len(history)-1].Role != RoleUser {
		return "", fmt.Errorf("last message is not from 'user', cannot proceed with chat completion")
	}

	chatSession := model.StartChat()
	for _, m := range history[:len(history)-1] {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		chatSession.History = append(chatSession.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}

	resp, err := chatSession.SendMessage(ctx, genai.Text(history[len(history)-1].Content))
	if err != nil {
		return "", fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini response was empty or had no valid candidates")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		} else {
			log.Printf("Gemini response part was not text: %T", part)
		}
	}
	return responseText.String(), nil
}

package services

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

const DefaultGroqBaseURL = "https://api.groq.com/openai/v1"

// OpenAIGenerator talks to any OpenAI-compatible chat completion API.
// One client is built per pooled key.
type OpenAIGenerator struct {
	pool        *KeyPool
	clients     []*openai.Client
	textModel   string
	visionModel string
}

func NewOpenAIGenerator(pool *KeyPool, baseURL, textModel, visionModel string) *OpenAIGenerator {
	if baseURL == "" {
		baseURL = DefaultGroqBaseURL
	}
	g := &OpenAIGenerator{
		pool:        pool,
		textModel:   textModel,
		visionModel: visionModel,
	}
	for _, key := range pool.keys {
		cfg := openai.DefaultConfig(key)
		cfg.BaseURL = baseURL
		g.clients = append(g.clients, openai.NewClientWithConfig(cfg))
	}
	return g
}

func (g *OpenAIGenerator) Generate(ctx context.Context, req GenerationRequest) (*Generation, error) {
	i, _ := g.pool.Next()
	client := g.clients[i]

	model := g.textModel
	if req.Vision {
		model = g.visionModel
	}

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    buildOpenAIMessages(req),
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, upstream("generator", err)
	}
	if len(resp.Choices) == 0 {
		return nil, upstream("generator", errors.New("empty completion"))
	}

	return &Generation{
		ID:      resp.ID,
		Model:   resp.Model,
		Content: resp.Choices[0].Message.Content,
	}, nil
}

func buildOpenAIMessages(req GenerationRequest) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, turn := range req.History {
		role := openai.ChatMessageRoleUser
		if turn.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}

	if req.ImageURL == "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: req.Prompt,
		})
		return messages
	}

	// Vision turns carry text and image as separate content parts.
	return append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
				URL:    req.ImageURL,
				Detail: openai.ImageURLDetailAuto,
			}},
		},
	})
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiGenerator uses the Gemini API. Image turns get the link as text
// context; inline images would require fetching the bytes.
type GeminiGenerator struct {
	pool        *KeyPool
	clients     []*genai.Client
	textModel   string
	visionModel string
}

func NewGeminiGenerator(ctx context.Context, pool *KeyPool, textModel, visionModel string) (*GeminiGenerator, error) {
	g := &GeminiGenerator{pool: pool, textModel: textModel, visionModel: visionModel}
	for _, key := range pool.keys {
		client, err := genai.NewClient(ctx, option.WithAPIKey(key))
		if err != nil {
			g.Close()
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		g.clients = append(g.clients, client)
	}
	return g, nil
}

func (g *GeminiGenerator) Close() error {
	var errs []error
	for _, c := range g.clients {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func (g *GeminiGenerator) Generate(ctx context.Context, req GenerationRequest) (*Generation, error) {
	i, _ := g.pool.Next()

	modelName := g.textModel
	if req.Vision {
		modelName = g.visionModel
	}
	model := g.clients[i].GenerativeModel(modelName)
	model.SetTemperature(req.Temperature)
	if req.System != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(req.System))
	}

	cs := model.StartChat()
	for _, turn := range req.History {
		role := "user"
		if turn.Role == RoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(turn.Content)}})
	}

	parts := []genai.Part{genai.Text(req.Prompt)}
	if req.ImageURL != "" {
		parts = append(parts, genai.Text("Image: "+req.ImageURL))
	}

	resp, err := cs.SendMessage(ctx, parts...)
	if err != nil {
		return nil, upstream("generator", err)
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		break
	}
	if sb.Len() == 0 {
		return nil, upstream("generator", errors.New("empty completion"))
	}

	return &Generation{Model: modelName, Content: sb.String()}, nil
}

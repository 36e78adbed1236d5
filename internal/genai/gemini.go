package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	gemini "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is used when no Gemini model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// ErrEmptyCandidate is returned when Gemini answers without any text part.
var ErrEmptyCandidate = errors.New("gemini returned no text")

// contentGenerator issues one generation request.
type contentGenerator func(ctx context.Context, systemPrompt, userPrompt string) (*gemini.GenerateContentResponse, error)

// GeminiClient generates JSON through the Gemini API.
type GeminiClient struct {
	client   *gemini.Client
	model    string
	generate contentGenerator
}

var _ Generator = (*GeminiClient)(nil)

// NewGeminiClient creates a Gemini client. An empty key falls back to GEMINI_API_KEY
// and an empty model to DefaultGeminiModel.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY not set")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	cli, err := gemini.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	g := &GeminiClient{client: cli, model: model}
	g.generate = g.generateContent
	slog.Debug("GeminiClient.New: client created", "model", model)
	return g, nil
}

// generateContent builds a model per call since the system instruction varies.
func (g *GeminiClient) generateContent(ctx context.Context, systemPrompt, userPrompt string) (*gemini.GenerateContentResponse, error) {
	m := g.client.GenerativeModel(g.model)
	m.ResponseMIMEType = "application/json"
	m.SetTemperature(DefaultTemperature)
	if systemPrompt != "" {
		m.SystemInstruction = &gemini.Content{Parts: []gemini.Part{gemini.Text(systemPrompt)}}
	}
	return m.GenerateContent(ctx, gemini.Text(userPrompt))
}

// GenerateJSON returns the concatenated text parts of the first candidate.
func (g *GeminiClient) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := g.generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		slog.Error("GeminiClient.GenerateJSON: generation failed", "model", g.model, "error", err)
		return "", err
	}
	text := candidateText(resp)
	if text == "" {
		return "", ErrEmptyCandidate
	}
	return text, nil
}

func candidateText(resp *gemini.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(gemini.Text); ok {
			b.WriteString(string(t))
		}
	}
	return strings.TrimSpace(b.String())
}

// Close releases the underlying connection.
func (g *GeminiClient) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

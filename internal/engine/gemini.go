package engine

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

//go:embed prompts/system_rules.txt
var systemRules string

//go:embed prompts/turn.txt
var turnPrompt string

var turnTemplate = template.Must(template.New("turn").Parse(turnPrompt))

// ErrNoContent is returned when the model answers with no text.
var ErrNoContent = errors.New("no content returned from Gemini")

// Request is everything the generator sees for one turn.
type Request struct {
	Canon string
	// State is the current world state as indented JSON.
	State string
	Input string
}

// Generator produces the raw response for a turn: narration, engine notes
// and a fenced state delta.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// RenderPrompt builds the user prompt for req.
func RenderPrompt(req Request) (string, error) {
	var buf bytes.Buffer
	if err := turnTemplate.Execute(&buf, req); err != nil {
		return "", fmt.Errorf("rendering turn prompt: %w", err)
	}
	return buf.String(), nil
}

// SystemRules returns the standing instructions sent with every turn.
func SystemRules() string {
	return systemRules
}

// Gemini generates turns with a Gemini model.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
	name   string
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}
	m := client.GenerativeModel(model)
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemRules)}}
	return &Gemini{client: client, model: m, name: model}, nil
}

// Name is the model identifier written into turn records.
func (g *Gemini) Name() string {
	return g.name
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	prompt, err := RenderPrompt(req)
	if err != nil {
		return "", err
	}
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	return ResponseText(resp)
}

// ResponseText joins the text parts of the first candidate.
func ResponseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrNoContent
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", ErrNoContent
	}
	return b.String(), nil
}

var _ Generator = (*Gemini)(nil)

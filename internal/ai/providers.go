package ai

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/rotisserie/eris"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/sells-group/enrich-cli/internal/config"
	"github.com/sells-group/enrich-cli/pkg/anthropic"
)

const (
	defaultAnthropicModel = "claude-haiku-4-5-20251001"
	defaultGeminiModel    = "gemini-2.5-flash"
	defaultOpenAIModel    = openai.GPT4oMini
	defaultMaxTokens      = 1024
)

// Anthropic completes prompts through pkg/anthropic.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropic creates the anthropic completer from config.
func NewAnthropic(cfg config.AIConfig) *Anthropic {
	return NewAnthropicWithClient(anthropic.NewClient(cfg.AnthropicKey), cfg)
}

// NewAnthropicWithClient wraps an existing client.
func NewAnthropicWithClient(c anthropic.Client, cfg config.AIConfig) *Anthropic {
	return &Anthropic{
		client:    c,
		model:     orDefault(cfg.Model, defaultAnthropicModel),
		maxTokens: maxTokens(cfg.MaxTokens),
	}
}

// Complete implements Completer.
func (a *Anthropic) Complete(ctx context.Context, p Prompt) (string, error) {
	msg := anthropic.Message{Role: "user", Content: p.User}
	if p.Image != nil {
		msg.Images = []anthropic.Image{{MediaType: p.Image.MIME, Data: p.Image.Data}}
	}
	temp := 0.0
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		System:      anthropic.BuildCachedSystemBlocks(p.System),
		Messages:    []anthropic.Message{msg},
		Temperature: &temp,
	})
	if err != nil {
		return "", err
	}
	resp.Usage.LogCost(a.model, "ai")
	return resp.Text(), nil
}

// Gemini completes prompts through google.golang.org/genai.
type Gemini struct {
	client    *genai.Client
	model     string
	maxTokens int32
}

// NewGemini creates the gemini completer from config.
func NewGemini(ctx context.Context, cfg config.AIConfig) (*Gemini, error) {
	return newGemini(ctx, cfg, "")
}

func newGemini(ctx context.Context, cfg config.AIConfig, baseURL string) (*Gemini, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.GeminiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, eris.Wrap(err, "ai: create gemini client")
	}
	return &Gemini{
		client:    client,
		model:     orDefault(cfg.Model, defaultGeminiModel),
		maxTokens: int32(maxTokens(cfg.MaxTokens)),
	}, nil
}

// Complete implements Completer.
func (g *Gemini) Complete(ctx context.Context, p Prompt) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(p.User)}
	if p.Image != nil {
		parts = append(parts, genai.NewPartFromBytes(p.Image.Data, p.Image.MIME))
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(p.System, genai.RoleUser),
			Temperature:       genai.Ptr[float32](0),
			MaxOutputTokens:   g.maxTokens,
			ResponseMIMEType:  "application/json",
		},
	)
	if err != nil {
		return "", eris.Wrap(err, "ai: gemini generate")
	}
	return resp.Text(), nil
}

// OpenAI completes prompts through an OpenAI-compatible chat API.
type OpenAI struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAI creates the openai completer from config.
func NewOpenAI(cfg config.AIConfig) *OpenAI {
	oc := openai.DefaultConfig(cfg.OpenAIKey)
	if cfg.OpenAIBaseURL != "" {
		oc.BaseURL = cfg.OpenAIBaseURL
	}
	return &OpenAI{
		client:    openai.NewClientWithConfig(oc),
		model:     orDefault(cfg.Model, defaultOpenAIModel),
		maxTokens: int(maxTokens(cfg.MaxTokens)),
	}
}

// Complete implements Completer.
func (o *OpenAI) Complete(ctx context.Context, p Prompt) (string, error) {
	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if p.Image != nil {
		user.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: p.User},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
				URL:    DataURI(p.Image),
				Detail: openai.ImageURLDetailLow,
			}},
		}
	} else {
		user.Content = p.User
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.System},
			user,
		},
		MaxTokens:   o.maxTokens,
		Temperature: 0,
	})
	if err != nil {
		return "", eris.Wrap(err, "ai: openai chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", eris.New("ai: openai returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// DataURI encodes an image as a base64 data URI.
func DataURI(img *Image) string {
	return "data:" + img.MIME + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func maxTokens(n int64) int64 {
	if n <= 0 {
		return defaultMaxTokens
	}
	return n
}

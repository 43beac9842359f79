package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fundmatch/internal/domain"
)

const narratorSystemPrompt = "You explain investor-fund fit to fundraising teams. " +
	"Write two or three short sentences grounded only in the factor scores given. " +
	"Name the strongest and weakest factors. Do not invent facts."

// NarratorConfig configures narrative generation.
type NarratorConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      *zap.Logger
}

// Narrator generates match explanations with a chat completion model.
type Narrator struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	logger      *zap.Logger
}

// NewNarrator creates a chat-completion narrative generator.
func NewNarrator(cfg *NarratorConfig) *Narrator {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 300
	}
	return &Narrator{
		client:      newClient(cfg.APIKey, cfg.BaseURL),
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		logger:      cfg.Logger,
	}
}

// Generate returns prose explaining m's score breakdown.
func (n *Narrator) Generate(ctx context.Context, m domain.MatchResult) (string, error) {
	start := time.Now()
	resp, err := n.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: n.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: narratorSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(m)},
		},
		MaxTokens:   n.maxTokens,
		Temperature: n.temperature,
	})
	if err != nil {
		return "", parseAPIError("narrative", err, domain.ErrDependencyUnavailable)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in narrative response: %w", domain.ErrDependencyUnavailable)
	}

	n.logger.Debug("Narrative generated",
		zap.String("fund_id", m.FundID),
		zap.String("lp_id", m.LPID),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)),
	)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func buildPrompt(m domain.MatchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Fund %s and investor %s scored %.1f/100.\n", m.FundID, m.LPID, m.TotalScore)
	b.WriteString("Factor scores (raw 0-100, weight):\n")
	for _, f := range m.Breakdown.Factors {
		fmt.Fprintf(&b, "- %s: %.1f (weight %.2f)", f.Factor, f.Raw, f.Weight)
		if f.Defaulted {
			b.WriteString(" [no data, neutral]")
		}
		if f.Note != "" {
			fmt.Fprintf(&b, " note: %s", f.Note)
		}
		b.WriteString("\n")
	}
	return b.String()
}

package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/teilomillet/gollm"
)

const (
	gollmDefaultMaxTokens   = 4096
	gollmDefaultTemperature = 0.2
)

// GollmConfig configures a gollm-backed provider.
type GollmConfig struct {
	Provider    string // "openai", "anthropic", "groq", "ollama", ...
	Model       string
	APIKey      string // empty = gollm reads the provider's env var
	MaxTokens   int
	Temperature float64
}

// GollmProvider sends the transcript to any backend gollm supports.
// gollm takes a single prompt, so the transcript is flattened into
// speaker-labelled blocks.
type GollmProvider struct {
	name string
	llm  gollm.LLM
}

// NewGollmProvider creates a provider for cfg.Provider.
func NewGollmProvider(cfg GollmConfig) (*GollmProvider, error) {
	if cfg.Provider == "" {
		return nil, fmt.Errorf("gollm: provider name is required")
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = gollmDefaultMaxTokens
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = gollmDefaultTemperature
	}

	opts := []gollm.ConfigOption{
		gollm.SetProvider(cfg.Provider),
		gollm.SetMaxTokens(maxTokens),
		gollm.SetTemperature(temperature),
		gollm.SetMaxRetries(0), // the agent loop owns retry policy
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.Model != "" {
		opts = append(opts, gollm.SetModel(cfg.Model))
	}
	if cfg.APIKey != "" {
		opts = append(opts, gollm.SetAPIKey(cfg.APIKey))
	}

	llm, err := gollm.NewLLM(opts...)
	if err != nil {
		return nil, fmt.Errorf("gollm: create %s client: %w", cfg.Provider, err)
	}
	return &GollmProvider{name: cfg.Provider, llm: llm}, nil
}

func (p *GollmProvider) Name() string { return p.name }

func (p *GollmProvider) GetResponse(ctx context.Context, messages []Message, systemPrompt string) (string, error) {
	var promptOpts []gollm.PromptOption
	if systemPrompt != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(systemPrompt, gollm.CacheTypeEphemeral))
	}
	prompt := gollm.NewPrompt(renderTranscript(messages), promptOpts...)

	text, err := p.llm.Generate(ctx, prompt)
	if err != nil {
		return "", Classify(p.name, err)
	}
	return text, nil
}

// renderTranscript flattens messages into one prompt body. The last block is
// always the most recent message so the model answers it.
func renderTranscript(messages []Message) string {
	var sb strings.Builder
	for i, m := range messages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		switch m.Role {
		case RoleModel:
			sb.WriteString("[Assistant]:\n")
		default:
			sb.WriteString("[User]:\n")
		}
		sb.WriteString(m.Text)
	}
	return sb.String()
}

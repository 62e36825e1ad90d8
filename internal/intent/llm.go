package intent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/your-org/facesort/internal/config"
	"github.com/your-org/facesort/internal/models"
	"github.com/your-org/facesort/internal/observability"
	"github.com/your-org/facesort/internal/registry"
)

const (
	maxHistoryTurns = 10
	chatTemperature = 0.4
	chatMaxTokens   = 900
)

// Turn is one prior chat message. Role is "user" or "assistant".
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMExtractor turns free text into an Intent through an OpenAI-compatible
// chat completions endpoint.
type LLMExtractor struct {
	client   openai.Client
	model    string
	registry *registry.Registry
}

func NewLLMExtractor(cfg config.LLMConfig, reg *registry.Registry, opts ...option.RequestOption) *LLMExtractor {
	base := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		base = append(base, option.WithBaseURL(cfg.BaseURL))
	}
	return &LLMExtractor{
		client:   openai.NewClient(append(base, opts...)...),
		model:    cfg.Model,
		registry: reg,
	}
}

// Extract asks the model about text and returns the intent named on the last
// JSON object of its reply together with the reply's prose. A reply without a
// usable object yields Unknown carrying the prose.
func (e *LLMExtractor) Extract(ctx context.Context, ownerID, text string, history []Turn) (Intent, string, error) {
	persons, err := e.registry.Summaries(ctx, ownerID)
	if err != nil {
		return nil, "", fmt.Errorf("load persons: %w", err)
	}

	messages := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(systemPrompt(persons))}
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	for _, t := range history {
		switch t.Role {
		case "user":
			messages = append(messages, openai.UserMessage(t.Content))
		case "assistant":
			messages = append(messages, openai.AssistantMessage(t.Content))
		}
	}
	messages = append(messages, openai.UserMessage(text))

	start := time.Now()
	resp, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(e.model),
		Messages:    messages,
		Temperature: openai.Float(chatTemperature),
		MaxTokens:   openai.Int(chatMaxTokens),
	})
	observability.StageDuration.WithLabelValues("intent").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, "", fmt.Errorf("chat completion: empty response")
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	prose, object, ok := SplitReply(reply)
	if !ok {
		return Unknown{Reply: prose}, prose, nil
	}

	in, err := Parse([]byte(object))
	if err != nil {
		slog.Warn("unparseable action in model reply", "owner_id", ownerID, "error", err)
		return Unknown{Reply: prose}, prose, nil
	}
	if _, unknown := in.(Unknown); unknown {
		in = Unknown{Reply: prose}
	}
	return in, prose, nil
}

func systemPrompt(persons []models.PersonSummary) string {
	var b strings.Builder
	b.WriteString("You are a photo library assistant. Photos are sorted into one folder per person.\n\nCurrent folders:\n")
	if len(persons) == 0 {
		b.WriteString("  (no folders yet)\n")
	}
	for _, p := range persons {
		fmt.Fprintf(&b, "  - %q folder=%s (%d photos)\n", p.Name, p.CollectionID, p.PhotoCount)
	}
	b.WriteString(`
When the user asks for one of the actions below, put exactly one JSON object on the LAST line of your reply:

{"action":"show_photos","person_name":"<name>"}
{"action":"list_folders"}
{"action":"count_persons"}
{"action":"send_email","person_name":"<name>","recipient":"<email>"}
{"action":"rename_person","old_name":"<name>","new_name":"<new name>"}

Names are matched case-insensitively. Answer general questions directly without JSON. Keep replies short.
`)
	return b.String()
}

package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/rotisserie/eris"

	"github.com/sells-group/shelf-cli/internal/model"
	"github.com/sells-group/shelf-cli/internal/resilience"
	"github.com/sells-group/shelf-cli/pkg/anthropic"
)

// LLMConfig configures the Anthropic-backed extractor.
type LLMConfig struct {
	Model       string
	MaxTokens   int64
	MaxAttempts int
}

// LLMExtractor asks a Claude model for structured components.
type LLMExtractor struct {
	client anthropic.Client
	cfg    LLMConfig
	retry  resilience.RetryConfig
}

// NewLLMExtractor creates an extractor over client.
func NewLLMExtractor(client anthropic.Client, cfg LLMConfig) *LLMExtractor {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	retry := resilience.DefaultRetryConfig().WithAttempts(cfg.MaxAttempts)
	retry.ShouldRetry = isRetryableAPIError
	retry.OnRetry = resilience.RetryLogger("anthropic", "extract")
	return &LLMExtractor{client: client, cfg: cfg, retry: retry}
}

type llmAnswer struct {
	Components []model.ExtractedComponent `json:"components"`
}

// Extract implements Extractor.
func (e *LLMExtractor) Extract(ctx context.Context, kind model.ComponentKind, text string) ([]model.ExtractedComponent, error) {
	h, err := handlerFor(kind)
	if err != nil {
		return nil, err
	}

	req := anthropic.MessageRequest{
		Model:     e.cfg.Model,
		MaxTokens: e.cfg.MaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(systemPrompt(h), ""),
		Messages: []anthropic.Message{
			{Role: "user", Content: text},
			{Role: "assistant", Content: "{"},
		},
	}

	resp, err := resilience.DoVal(ctx, e.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return e.client.CreateMessage(ctx, req)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "extract: %s request", kind)
	}
	resp.Usage.LogCost(e.cfg.Model, string(kind))

	var answer llmAnswer
	raw := cleanJSON("{" + resp.Text())
	if err := json.Unmarshal([]byte(raw), &answer); err != nil {
		return nil, eris.Wrapf(err, "extract: parse %s answer", kind)
	}
	if len(answer.Components) == 0 {
		return nil, ErrNoResult
	}
	return answer.Components, nil
}

func systemPrompt(h kindHandler) string {
	return fmt.Sprintf(`Jesteś specjalistą od mokrej karmy dla kotów. Wyodrębnij informacje o %s z tekstu podanego przez użytkownika.
Odpowiedz wyłącznie obiektem JSON w postaci {"components": [ ... ]}, gdzie każdy element ma postać:
%s
Nie dodawaj komentarzy. Jeśli tekst nie zawiera żadnych informacji, zwróć {"components": []}.`,
		h.dataContext(), h.schema())
}

// isRetryableAPIError retries rate limits, overloads and transport failures.
func isRetryableAPIError(err error) bool {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return resilience.IsTransientHTTPStatus(apiErr.StatusCode)
	}
	return resilience.IsTransient(err)
}

// cleanJSON extracts the outermost JSON object from text that may carry
// markdown fences or prose around it.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	for _, fence := range []string{"```json", "```"} {
		if i := strings.Index(text, fence); i >= 0 {
			text = text[i+len(fence):]
			if j := strings.LastIndex(text, "```"); j >= 0 {
				text = text[:j]
			}
			break
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

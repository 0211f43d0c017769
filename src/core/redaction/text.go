package redaction

import (
	"context"
	"fmt"
	"strings"

	"redactmail-server-go/src/core/providers/llm"
	"redactmail-server-go/src/core/utils"
)

// TextResult is the outcome of one text redaction call. On failure Body
// carries the original input so content is never silently dropped.
type TextResult struct {
	Body        string `json:"body"`
	TotalTokens int    `json:"total_tokens"`
	Success     bool   `json:"success"`
	Err         error  `json:"-"`
}

// TextRedactor sends the email body through the LLM once, with a prompt
// restricted to the enabled categories. No retries: a failed call is
// reported once and the caller decides what to surface.
type TextRedactor struct {
	provider llm.Provider
	logger   *utils.TaggedLogger
}

func NewTextRedactor(provider llm.Provider, logger *utils.Logger) *TextRedactor {
	return &TextRedactor{
		provider: provider,
		logger:   logger.WithTag("text-redactor"),
	}
}

// Redact replaces every enabled category's occurrences in body with its
// placeholder. With no categories enabled the body is returned unchanged
// without spending an API call.
func (r *TextRedactor) Redact(ctx context.Context, body string, settings Settings) *TextResult {
	enabled := settings.EnabledCategories()
	if len(enabled) == 0 {
		r.logger.Info("no categories enabled, returning body unchanged")
		return &TextResult{Body: body, Success: true}
	}

	prompt := buildTextPrompt(body, settings, enabled)

	result, err := r.provider.Chat(ctx, prompt)
	if err != nil {
		r.logger.Warn(fmt.Sprintf("text redaction call failed: %v", err))
		return &TextResult{Body: body, Success: false, Err: err}
	}

	r.logger.Info(fmt.Sprintf("text redaction complete, %d tokens used", result.TotalTokens))
	return &TextResult{
		Body:        strings.TrimSpace(result.Content),
		TotalTokens: result.TotalTokens,
		Success:     true,
	}
}

// buildTextPrompt enumerates only the enabled categories with their exact
// placeholders, plus the negative rules that keep the model from redacting
// organization names or anything not listed.
func buildTextPrompt(body string, settings Settings, enabled []Category) string {
	var instructions []string
	for _, cat := range enabled {
		instructions = append(instructions,
			fmt.Sprintf("- %s → %s", textDescriptions[cat], settings.Placeholder(cat)))
	}

	var b strings.Builder
	b.WriteString("You are an email privacy protection tool. Redact ONLY the sensitive information types listed below from the following email content by replacing them with the specified placeholders:\n\n")
	b.WriteString(strings.Join(instructions, "\n"))
	b.WriteString("\n\nCRITICAL RULES:\n")
	b.WriteString("1. ONLY redact the types listed above. Do NOT redact anything else.\n")
	b.WriteString("2. Leave ALL other information completely unchanged - including any types not listed above.\n")
	b.WriteString("3. DO NOT redact company names, organization names, or business names - leave them unchanged.\n")
	b.WriteString("4. DO NOT redact common nouns, generic terms, or non-sensitive information.\n")
	b.WriteString("5. Make sure each type is replaced with its EXACT placeholder shown above.\n")
	b.WriteString("6. Be precise: match each item to its correct type and use the exact placeholder for that type.\n")
	b.WriteString("7. If a type is not in the list above, it should NOT be redacted at all - leave it exactly as it appears in the original text.\n")
	b.WriteString("\nBe thorough and catch all instances of the listed types. Return ONLY the redacted email content with no additional commentary or explanation.\n")
	b.WriteString("\nEmail content to redact:\n")
	b.WriteString(body)
	return b.String()
}

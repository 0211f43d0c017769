package redaction

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"redactmail-server-go/src/core/providers/llm"
	"redactmail-server-go/src/core/providers/ocr"
	"redactmail-server-go/src/core/types"
	"redactmail-server-go/src/core/utils"
)

// ClassifiedFragment is an OCR fragment plus its sensitivity verdict.
type ClassifiedFragment struct {
	ocr.Fragment
	Sensitive bool     `json:"sensitive"`
	Category  Category `json:"category,omitempty"`
}

// RegionClassifier asks the LLM, once per image, which OCR fragments carry
// sensitive values. A response that cannot be mapped 1:1 back onto the
// input fragments fails closed with AlignmentError; a silently misaligned
// mapping would redact the wrong regions.
type RegionClassifier struct {
	provider llm.Provider
	logger   *utils.TaggedLogger
}

func NewRegionClassifier(provider llm.Provider, logger *utils.Logger) *RegionClassifier {
	return &RegionClassifier{
		provider: provider,
		logger:   logger.WithTag("region-classifier"),
	}
}

// Classify returns exactly one ClassifiedFragment per input fragment, in
// input order. All fragments of one image are batched into a single call.
func (rc *RegionClassifier) Classify(ctx context.Context, fragments []ocr.Fragment, settings Settings) ([]ClassifiedFragment, error) {
	result := make([]ClassifiedFragment, len(fragments))
	for i, frag := range fragments {
		result[i] = ClassifiedFragment{Fragment: frag}
	}
	if len(fragments) == 0 {
		return result, nil
	}

	enabled := settings.EnabledCategories()
	if len(enabled) == 0 {
		return result, nil
	}

	prompt := buildClassifierPrompt(fragments, enabled)

	chat, err := rc.provider.Chat(ctx, prompt)
	if err != nil {
		return nil, err
	}

	verdicts, err := parseClassifierResponse(chat.Content, len(fragments))
	if err != nil {
		return nil, err
	}

	hits := 0
	for idx, cat := range verdicts {
		// The model occasionally returns a category outside the enabled
		// set; those are dropped rather than redacting beyond what the
		// caller asked for.
		if !settings.Enabled(cat) {
			continue
		}
		result[idx].Sensitive = true
		result[idx].Category = cat
		hits++
	}

	rc.logger.Info(fmt.Sprintf("classified %d fragments, %d sensitive", len(fragments), hits))
	return result, nil
}

// buildClassifierPrompt numbers every fragment and restricts the verdict
// to the enabled category labels.
func buildClassifierPrompt(fragments []ocr.Fragment, enabled []Category) string {
	lines := make([]string, len(fragments))
	for i, frag := range fragments {
		lines[i] = fmt.Sprintf("%d: %s", i, frag.Text)
	}

	descriptions := make([]string, len(enabled))
	for i, cat := range enabled {
		descriptions[i] = "- " + classifierDescriptions[cat]
	}

	var b strings.Builder
	b.WriteString("Analyze the following text extracted from an image via OCR. Identify which items contain sensitive information that should be redacted.\n\n")
	b.WriteString("For each line number that contains sensitive information, classify it as one of these types ONLY:\n")
	b.WriteString(strings.Join(descriptions, "\n"))
	b.WriteString("\n\nCRITICAL RULES:\n")
	b.WriteString("1. ONLY classify the types listed above. Do NOT classify anything else as sensitive.\n")
	b.WriteString("2. If a type is NOT in the list above, do NOT classify anything as that type, even if it looks similar.\n")
	b.WriteString("3. DO NOT classify company names, organization names, or business names.\n")
	b.WriteString("4. Classify label words ('Password:', 'Token:', 'Document ID:') only when the value itself sits in the same box; otherwise classify the value box.\n")
	b.WriteString("5. Common nouns and generic terms are NOT sensitive information.\n")
	b.WriteString("6. If unsure whether something matches a listed type, do NOT include it in your response.\n")
	b.WriteString("\nText to analyze:\n")
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n\nRespond with ONLY a valid JSON object in this exact format:\n")
	b.WriteString("{\n  \"0\": \"name\",\n  \"5\": \"email\",\n  \"12\": \"phone\"\n}\n\n")
	b.WriteString("Include ONLY the line numbers that contain sensitive information matching the types above. If a line has no sensitive info, don't include it.\n")
	b.WriteString("Do NOT include any explanation, markdown formatting, or additional text - ONLY the JSON object.")
	return b.String()
}

// parseClassifierResponse maps the model's index→label object back onto
// fragment indices. Anything that does not align exactly fails closed.
func parseClassifierResponse(response string, fragmentCount int) (map[int]Category, error) {
	cleaned := stripCodeFences(response)

	var raw map[string]string
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, &types.AlignmentError{
			Want:   fragmentCount,
			Reason: fmt.Sprintf("response is not a JSON index map: %v", err),
		}
	}

	verdicts := make(map[int]Category, len(raw))
	for key, label := range raw {
		idx, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			return nil, &types.AlignmentError{
				Want:   fragmentCount,
				Reason: fmt.Sprintf("non-numeric fragment index %q", key),
			}
		}
		if idx < 0 || idx >= fragmentCount {
			return nil, &types.AlignmentError{
				Want:   fragmentCount,
				Reason: fmt.Sprintf("fragment index %d out of range", idx),
			}
		}
		cat, ok := ParseCategory(strings.TrimSpace(label))
		if !ok {
			return nil, &types.AlignmentError{
				Want:   fragmentCount,
				Reason: fmt.Sprintf("unknown category label %q", label),
			}
		}
		verdicts[idx] = cat
	}
	return verdicts, nil
}

// stripCodeFences removes the markdown fences some models wrap JSON in.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		lines := strings.Split(s, "\n")
		if len(lines) > 2 {
			s = strings.Join(lines[1:len(lines)-1], "\n")
		}
	}
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

package provider

import (
	"fmt"
	"strings"

	"github.com/ppiankov/clausewise/internal/model"
)

// promptVersion is part of the LLM cache fingerprint. Bump it whenever a
// prompt below changes.
const promptVersion = "p1"

const systemPrompt = `You are a legal analyst assisting people who are not lawyers. You describe what contract text says. You never give legal advice and never add facts that are not in the text.`

func buildSimplifyPrompt(text string) string {
	return fmt.Sprintf(`Rewrite the following contract text in plain English that a non-lawyer can understand.

RULES:
1. Keep every obligation, amount, date, and party from the original.
2. Do not add information, opinions, or advice.
3. Use short sentences.
4. Reply with the rewritten text only, without any preamble.

TEXT:
%s`, text)
}

func buildEntitiesPrompt(text string) string {
	categories := make([]string, 0, len(model.KnownEntityCategories))
	for _, c := range model.KnownEntityCategories {
		categories = append(categories, string(c))
	}

	return fmt.Sprintf(`Extract the named entities from the following contract text.

RULES:
1. Allowed categories: %s
2. Copy each entity's text exactly as it appears in the input, character for character.
3. List entities in the order they appear. Repeat an entity if it appears more than once.
4. Confidence is a number between 0 and 1.

Respond with JSON of the form:
{"entities": [{"text": "...", "category": "...", "confidence": 0.9}]}

TEXT:
%s`, strings.Join(categories, ", "), text)
}

func buildClassifyPrompt(text string, scope model.Scope, labels []string) string {
	subject := "contract clause"
	if scope == model.ScopeDocument {
		subject = "legal document"
	}

	return fmt.Sprintf(`Classify the following %s.

RULES:
1. Choose exactly one label from this list: %s
2. If none fits, choose %q.

Respond with JSON of the form:
{"label": "..."}

TEXT:
%s`, subject, strings.Join(labels, ", "), labels[len(labels)-1], text)
}

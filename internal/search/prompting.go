package search

import (
	"fmt"
	"strings"

	"cinder/internal/model"
)

// DefaultContextTemplate is used when the caller supplies no template. It
// must contain the {query} and {contexts} placeholders.
const DefaultContextTemplate = `You are an AI assistant helping a developer understand and work with a large C# codebase.

You are given a user question and a set of relevant code snippets from the repository.

<INSTRUCTIONS>
- Use ONLY the information in the provided code snippets as your primary source of truth.
- If the answer is not clearly present in the snippets, say you don't know based on the given context.
- When you reference code, mention the file path and line numbers.
- Prefer precise, practical explanations over vague descriptions.
- If useful, explain how the shown code fits into the larger architecture (based on the context you see).
</INSTRUCTIONS>

<CODE_CONTEXT>
{contexts}
</CODE_CONTEXT>

<USER_QUESTION>
{query}
</USER_QUESTION>

Now provide a clear, concise, and helpful answer for the user, grounded in the code context above.
`

// BuildContextPrompt renders retrieved chunks into a prompt for a chat model.
func BuildContextPrompt(query string, chunks []model.Chunk, template string) string {
	if template == "" {
		template = DefaultContextTemplate
	}
	contexts := formatCodeContext(chunks)
	out := strings.ReplaceAll(template, "{contexts}", contexts)
	return strings.ReplaceAll(out, "{query}", query)
}

// formatCodeContext renders each chunk as a numbered snippet with its file
// location, relation summary, and fenced content.
func formatCodeContext(chunks []model.Chunk) string {
	var parts []string
	for i, c := range chunks {
		var b strings.Builder
		fmt.Fprintf(&b, "=== Snippet %d ===\n", i+1)
		fmt.Fprintf(&b, "File: %s (lines %d-%d)\n", c.FilePath, c.StartLine, c.EndLine)

		if rel := relationLines(c.Relations); len(rel) > 0 {
			b.WriteString("Relationships in this snippet:\n")
			b.WriteString(strings.Join(rel, "\n"))
			b.WriteString("\n\n")
		}

		lang := c.Language
		if lang == "" {
			lang = "csharp"
		}
		fmt.Fprintf(&b, "```%s\n%s\n```\n", lang, c.Content)
		parts = append(parts, b.String())
	}
	return strings.Join(parts, "\n")
}

func relationLines(relations []model.Relation) []string {
	var lines []string
	for _, r := range relations {
		if r.Type == "" || r.FromSymbolID == "" || r.ToSymbolID == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s: %s -> %s",
			r.Type, symbolDisplayName(r.FromSymbolID), symbolDisplayName(r.ToSymbolID)))
	}
	return lines
}

// symbolDisplayName extracts the name from a "path:startLine:name" symbol id.
func symbolDisplayName(symbolID string) string {
	if i := strings.LastIndexByte(symbolID, ':'); i >= 0 {
		return symbolID[i+1:]
	}
	return symbolID
}

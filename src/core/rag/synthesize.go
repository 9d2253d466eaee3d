package rag

import (
	"context"
	"fmt"
	"strings"

	"ragmix/src/log"
)

const (
	noResultsResponse = "I couldn't find any relevant information to answer your question based on the available documents."
	truncationMarker  = "... [content truncated]"
)

// AnswerSynthesizer turns mixed retrieval evidence into a cited answer.
// It never returns an error; failures are folded into the Answer itself.
type AnswerSynthesizer interface {
	Synthesize(ctx context.Context, query string, results []RetrievalResult, model string) Answer
}

type synthesizer struct {
	completions CompletionProvider
	retry       RetryPolicy
	cfg         Config
}

// NewAnswerSynthesizer builds the synthesis stage.
func NewAnswerSynthesizer(completions CompletionProvider, retry RetryPolicy, cfg Config) AnswerSynthesizer {
	return &synthesizer{completions: completions, retry: retry, cfg: cfg.withDefaults()}
}

// FormatContext renders evidence into the context block fed to the
// completion provider: highest score first, content bounded to maxChars,
// one headed section per result, and a fixed instruction suffix.
func FormatContext(results []RetrievalResult, maxChars int) string {
	if len(results) == 0 {
		return "No relevant documents found."
	}

	sorted := make([]RetrievalResult, len(results))
	copy(sorted, results)
	sortResults(sorted)

	var b strings.Builder
	b.WriteString("I found the following relevant information in the documents:\n")
	b.WriteString(strings.Repeat("=", 80))

	for i, r := range sorted {
		content := strings.TrimSpace(r.Content)
		if content == "" {
			continue
		}
		content = truncateContent(content, maxChars)

		filename := r.Filename
		if filename == "" {
			filename = "Unknown"
		}
		locator := r.Locator
		if locator == "" {
			locator = "N/A"
		}

		fmt.Fprintf(&b, "\n\n--- DOCUMENT %d (Relevance: %.2f) ---\n", i+1, r.Score)
		fmt.Fprintf(&b, "File: %s\n", filename)
		fmt.Fprintf(&b, "Type: %s\n", strings.ToUpper(string(r.Modality)))
		fmt.Fprintf(&b, "Location: %s\n", locator)
		b.WriteString("\nContent:\n")
		b.WriteString(content)
		b.WriteString("\n\n")
		b.WriteString(strings.Repeat("-", 80))
	}

	b.WriteString("\n\nINSTRUCTIONS:\n")
	b.WriteString("1. Use the above documents to answer the user's question.\n")
	b.WriteString("2. Be specific and reference the source documents when possible.\n")
	b.WriteString("3. If the answer isn't in the documents, say so clearly.\n")
	b.WriteString("4. Include a 'SOURCES:' section at the end listing all referenced documents.\n")
	b.WriteString("5. Keep your response concise and to the point.")
	return b.String()
}

// truncateContent bounds content to maxChars, cutting back to the last word
// boundary before appending the marker.
func truncateContent(content string, maxChars int) string {
	if maxChars <= 0 || len(content) <= maxChars {
		return content
	}
	cut := content[:maxChars]
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return cut + truncationMarker
}

// citeSources deduplicates citations in first-seen order.
func citeSources(results []RetrievalResult) []string {
	sources := make([]string, 0, len(results))
	seen := make(map[string]struct{}, len(results))
	for _, r := range results {
		key := fmt.Sprintf("%s (%s) - %s", r.Filename, r.Locator, strings.ToUpper(string(r.Modality)))
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		sources = append(sources, key)
	}
	return sources
}

func (s *synthesizer) Synthesize(ctx context.Context, query string, results []RetrievalResult, model string) Answer {
	if len(results) == 0 {
		return Answer{Response: noResultsResponse, Sources: []string{}, Success: true}
	}

	sources := citeSources(results)
	contextBlock := FormatContext(results, s.cfg.ContextMaxChars)

	system, err := renderTemplate("synthesis_system", SynthesisSystemTmpl, templateData{Context: contextBlock})
	if err != nil {
		log.Error(err, "failed to render synthesis system template")
		return Answer{Response: fmt.Sprintf("I encountered an error while generating a response: %v", err), Sources: sources, Success: false}
	}
	prompt, err := renderTemplate("synthesis_prompt", SynthesisPromptTmpl, templateData{Query: query})
	if err != nil {
		log.Error(err, "failed to render synthesis prompt template")
		return Answer{Response: fmt.Sprintf("I encountered an error while generating a response: %v", err), Sources: sources, Success: false}
	}

	var text string
	err = s.retry.Do(ctx, func() error {
		var completeErr error
		text, completeErr = s.completions.Complete(ctx, []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		}, CompletionOptions{Model: model, Temperature: 0.7, MaxTokens: 2048})
		return completeErr
	})
	if err != nil {
		log.Error(err, "answer synthesis failed")
		return Answer{Response: fmt.Sprintf("I encountered an error while generating a response: %v", err), Sources: sources, Success: false}
	}

	if !strings.Contains(strings.ToUpper(text), "SOURCES:") && len(sources) > 0 {
		var b strings.Builder
		b.WriteString(text)
		b.WriteString("\n\nSOURCES:\n")
		for i, src := range sources {
			if i > 0 {
				b.WriteByte('\n')
			}
			b.WriteString("- ")
			b.WriteString(src)
		}
		text = b.String()
	}

	return Answer{Response: text, Sources: sources, Success: true}
}

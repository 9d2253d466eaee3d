package rag_test

import (
	"context"
	"strings"
	"testing"

	"ragmix/src/core/rag"
)

func evidenceFixture() []rag.RetrievalResult {
	return []rag.RetrievalResult{
		{Content: "Quarterly revenue grew 12%.", Score: 0.91, Locator: "Page 4", Modality: rag.ModalityPDF, Filename: "report.pdf", ChunkID: 10},
		{Content: "Revenue by region table.", Score: 0.74, Locator: "Row 2", Modality: rag.ModalityCSV, Filename: "sales.csv", ChunkID: 11},
	}
}

func TestFormatContextEmpty(t *testing.T) {
	if got := rag.FormatContext(nil, 1500); got != "No relevant documents found." {
		t.Errorf("FormatContext(nil) = %q, want fixed empty-corpus text", got)
	}
}

func TestFormatContextStructure(t *testing.T) {
	results := []rag.RetrievalResult{
		{Content: "low score text", Score: 0.51, Locator: "Row 9", Modality: rag.ModalityCSV, Filename: "sales.csv", ChunkID: 2},
		{Content: "high score text", Score: 0.93, Locator: "Page 1", Modality: rag.ModalityPDF, Filename: "report.pdf", ChunkID: 1},
	}

	got := rag.FormatContext(results, 1500)

	firstDoc := strings.Index(got, "--- DOCUMENT 1 (Relevance: 0.93) ---")
	secondDoc := strings.Index(got, "--- DOCUMENT 2 (Relevance: 0.51) ---")
	if firstDoc < 0 || secondDoc < 0 {
		t.Fatalf("context lacks numbered document headers:\n%s", got)
	}
	if firstDoc > secondDoc {
		t.Error("documents are not ordered by descending score")
	}

	for _, want := range []string{
		"File: report.pdf",
		"Type: PDF",
		"Location: Page 1",
		"File: sales.csv",
		"Type: CSV",
		"Location: Row 9",
		"INSTRUCTIONS:",
		"'SOURCES:' section",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("context missing %q", want)
		}
	}
}

func TestFormatContextTruncatesLongContent(t *testing.T) {
	long := strings.Repeat("evidence ", 400)
	results := []rag.RetrievalResult{
		{Content: long, Score: 0.9, Locator: "Page 1", Modality: rag.ModalityPDF, Filename: "big.pdf"},
	}

	got := rag.FormatContext(results, 1500)

	if !strings.Contains(got, "... [content truncated]") {
		t.Error("long content was not truncated")
	}
	if strings.Contains(got, long) {
		t.Error("full content survived truncation")
	}
}

func TestFormatContextSkipsEmptyContent(t *testing.T) {
	results := []rag.RetrievalResult{
		{Content: "   ", Score: 0.9, Locator: "Page 1", Modality: rag.ModalityPDF, Filename: "blank.pdf"},
	}
	got := rag.FormatContext(results, 1500)
	if strings.Contains(got, "blank.pdf") {
		t.Error("result with blank content should not be rendered")
	}
}

func TestSynthesizeEmptyResults(t *testing.T) {
	completer := &fakeCompleter{}
	synth := rag.NewAnswerSynthesizer(completer, testRetryPolicy(), rag.Config{})

	answer := synth.Synthesize(context.Background(), "anything", nil, "")

	if !answer.Success {
		t.Error("Success = false, want true for empty evidence")
	}
	if len(answer.Sources) != 0 {
		t.Errorf("Sources = %v, want empty", answer.Sources)
	}
	if !strings.Contains(answer.Response, "couldn't find any relevant information") {
		t.Errorf("Response = %q, want fixed no-results text", answer.Response)
	}
	if completer.callCount() != 0 {
		t.Errorf("completion provider called %d times for empty evidence, want 0", completer.callCount())
	}
}

func TestSynthesizeAppendsSources(t *testing.T) {
	completer := &fakeCompleter{replies: []string{"Revenue grew 12% in Q3."}}
	synth := rag.NewAnswerSynthesizer(completer, testRetryPolicy(), rag.Config{})

	answer := synth.Synthesize(context.Background(), "how did revenue do?", evidenceFixture(), "")

	if !answer.Success {
		t.Fatal("Success = false, want true")
	}
	wantSources := []string{"report.pdf (Page 4) - PDF", "sales.csv (Row 2) - CSV"}
	if len(answer.Sources) != len(wantSources) {
		t.Fatalf("Sources = %v, want %v", answer.Sources, wantSources)
	}
	for i := range wantSources {
		if answer.Sources[i] != wantSources[i] {
			t.Errorf("Sources[%d] = %q, want %q", i, answer.Sources[i], wantSources[i])
		}
	}
	want := "Revenue grew 12% in Q3.\n\nSOURCES:\n- report.pdf (Page 4) - PDF\n- sales.csv (Row 2) - CSV"
	if answer.Response != want {
		t.Errorf("Response = %q, want %q", answer.Response, want)
	}
}

func TestSynthesizeKeepsModelProvidedSources(t *testing.T) {
	reply := "Revenue grew.\n\nSources:\n- report.pdf (Page 4)"
	completer := &fakeCompleter{replies: []string{reply}}
	synth := rag.NewAnswerSynthesizer(completer, testRetryPolicy(), rag.Config{})

	answer := synth.Synthesize(context.Background(), "q", evidenceFixture(), "")

	if answer.Response != reply {
		t.Errorf("Response = %q, want the model text untouched", answer.Response)
	}
	if len(answer.Sources) != 2 {
		t.Errorf("Sources = %v, want both citations extracted", answer.Sources)
	}
}

func TestSynthesizeDeduplicatesCitations(t *testing.T) {
	results := []rag.RetrievalResult{
		{Content: "a", Score: 0.9, Locator: "Page 1", Modality: rag.ModalityPDF, Filename: "r.pdf"},
		{Content: "b", Score: 0.8, Locator: "Page 1", Modality: rag.ModalityPDF, Filename: "r.pdf"},
		{Content: "c", Score: 0.7, Locator: "Row 3", Modality: rag.ModalityCSV, Filename: "s.csv"},
	}
	completer := &fakeCompleter{replies: []string{"answer with SOURCES: section"}}
	synth := rag.NewAnswerSynthesizer(completer, testRetryPolicy(), rag.Config{})

	answer := synth.Synthesize(context.Background(), "q", results, "")

	want := []string{"r.pdf (Page 1) - PDF", "s.csv (Row 3) - CSV"}
	if len(answer.Sources) != len(want) {
		t.Fatalf("Sources = %v, want %v", answer.Sources, want)
	}
	for i := range want {
		if answer.Sources[i] != want[i] {
			t.Errorf("Sources[%d] = %q, want %q", i, answer.Sources[i], want[i])
		}
	}
}

func TestSynthesizeProviderFailure(t *testing.T) {
	completer := &fakeCompleter{err: errProviderDown}
	synth := rag.NewAnswerSynthesizer(completer, testRetryPolicy(), rag.Config{})

	answer := synth.Synthesize(context.Background(), "q", evidenceFixture(), "")

	if answer.Success {
		t.Error("Success = true, want false when the provider fails")
	}
	if !strings.Contains(answer.Response, "I encountered an error while generating a response:") {
		t.Errorf("Response = %q, want error text", answer.Response)
	}
	if len(answer.Sources) != 2 {
		t.Errorf("Sources = %v, want known citations preserved", answer.Sources)
	}
	if completer.callCount() != 3 {
		t.Errorf("provider called %d times, want 3 retries", completer.callCount())
	}
}

func TestSynthesizePassesModelOverride(t *testing.T) {
	completer := &fakeCompleter{replies: []string{"ok SOURCES: none"}}
	synth := rag.NewAnswerSynthesizer(completer, testRetryPolicy(), rag.Config{})

	synth.Synthesize(context.Background(), "q", evidenceFixture(), "mixtral-8x7b")

	if len(completer.calls) != 1 {
		t.Fatalf("provider called %d times, want 1", len(completer.calls))
	}
	opts := completer.calls[0].opts
	if opts.Model != "mixtral-8x7b" {
		t.Errorf("Model = %q, want override passed through", opts.Model)
	}
	if opts.Temperature != 0.7 || opts.MaxTokens != 2048 {
		t.Errorf("opts = %+v, want temperature 0.7 and max tokens 2048", opts)
	}
}

package rag

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

const (
	SQLGenerationSystemMessageTmpl = `
You are a PostgreSQL expert. You write a single SQL query against one table and output nothing else.
`
	SQLGenerationPromptTmpl = `
A table named "{{.TableName}}" holds the rows of an uploaded data file.

Table description:
{{.Insights}}

Available columns: {{.Columns}}

Write one PostgreSQL SELECT statement that answers this question:
{{.Query}}

Rules:
- Output only the SQL statement, terminated by a semicolon. No explanations, no markdown.
- Quote identifiers with double quotes. Do NOT use backticks.
- Query only the table "{{.TableName}}".
- Return at most {{.RowLimit}} rows.
`
	RouteDecisionSystemMessageTmpl = `
You classify how a question should be answered from a data file. You reply with exactly one word.
`
	RouteDecisionPromptTmpl = `
A data file is described as follows:
{{.Insights}}

Question: {{.Query}}

Choose the best retrieval strategy for this question:
- sql: the question asks for counts, sums, averages, rankings, filters, or other computations over rows
- semantic: the question asks about meaning, descriptions, or general content
- hybrid: the question needs both row computations and descriptive content

Reply with exactly one word: sql, semantic, or hybrid.
`
)

const (
	SynthesisSystemTmpl = `
You are an expert assistant that provides accurate, detailed answers based on the provided documents.
Follow these guidelines:
1. Base your answer STRICTLY on the provided context
2. Be concise but thorough
3. If the context doesn't contain the answer, say so explicitly
4. Include specific details and numbers when available
5. End your response with a 'SOURCES:' section listing the document references

Context documents:
{{.Context}}
`
	SynthesisPromptTmpl = `
Question: {{.Query}}

Instructions:
1. Provide a clear, well-structured answer
2. Include specific details and examples from the context
3. If the answer requires combining information from multiple documents, synthesize them coherently
4. End with a 'SOURCES:' section listing the document references in the format:
   SOURCES:
   - [Document Name] ([Location/Page])
`
	FallbackSystemMessage = `You are a helpful assistant. Answer the user's question directly and concisely.`
)

// templateData carries every field the prompt templates may reference.
type templateData struct {
	TableName string
	Insights  string
	Columns   string
	Query     string
	Context   string
	RowLimit  int
}

func renderTemplate(name, tmpl string, data templateData) (string, error) {
	t, err := template.New(name).Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s template: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute %s template: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

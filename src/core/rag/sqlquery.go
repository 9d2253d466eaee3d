package rag

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"ragmix/src/log"
)

var (
	fencePattern     = regexp.MustCompile("(?i)```sql|```")
	statementPattern = regexp.MustCompile(`(?s)^\s*(.*?);`)
	limitPattern     = regexp.MustCompile(`(?i)\bLIMIT\s+\d+`)
)

// SanitizeSQL is the unconditional validation gate between the completion
// provider and the execution layer. It strips markdown fencing, keeps only the
// first semicolon-terminated statement, rewrites backtick quoting to double
// quotes, and replaces anything that does not start with SELECT by a plain
// bounded scan of the table. Model output is treated as adversarial input
// regardless of how it was produced.
func SanitizeSQL(raw, table string, limit int) string {
	cleaned := fencePattern.ReplaceAllString(raw, "")
	if m := statementPattern.FindStringSubmatch(cleaned); m != nil {
		cleaned = m[1]
	}
	cleaned = strings.ReplaceAll(cleaned, "`", `"`)
	cleaned = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(cleaned), ";"))

	if !strings.HasPrefix(strings.ToUpper(cleaned), "SELECT") {
		return fmt.Sprintf(`SELECT * FROM "%s" LIMIT %d`, table, limit)
	}
	return cleaned
}

// EnsureLimit appends a LIMIT clause when the statement has none.
func EnsureLimit(query string, limit int) string {
	if limitPattern.MatchString(query) {
		return query
	}
	return fmt.Sprintf("%s LIMIT %d", strings.TrimSpace(query), limit)
}

// FallbackTableName reconstructs the dynamic table name when the document
// header predates table-name persistence.
func FallbackTableName(modality Modality, fileID int64) string {
	return fmt.Sprintf("%s_data_%d", modality, fileID)
}

type sqlEngine struct {
	embedder    *queryEmbedder
	completions CompletionProvider
	files       FileStore
	docs        DocumentStore
	chunks      ChunkStore
	tables      TableQuerier
	retry       RetryPolicy
	cfg         Config
}

// NewStructuredSearchService builds the SQL retrieval engine.
func NewStructuredSearchService(
	embeddings EmbeddingProvider,
	cache EmbeddingCache,
	completions CompletionProvider,
	files FileStore,
	docs DocumentStore,
	chunks ChunkStore,
	tables TableQuerier,
	retry RetryPolicy,
	cfg Config,
) StructuredSearchService {
	cfg = cfg.withDefaults()
	return &sqlEngine{
		embedder:    &queryEmbedder{provider: embeddings, cache: cache, retry: retry, model: cfg.EmbeddingModel},
		completions: completions,
		files:       files,
		docs:        docs,
		chunks:      chunks,
		tables:      tables,
		retry:       retry,
		cfg:         cfg,
	}
}

func (s *sqlEngine) SearchStructured(ctx context.Context, req StructuredSearchRequest) (*StructuredResult, error) {
	if req.Limit <= 0 {
		req.Limit = s.cfg.DefaultLimit
	}

	file, err := s.files.GetByID(ctx, req.FileID)
	if err != nil {
		return nil, fmt.Errorf("failed to load file %d: %w", req.FileID, err)
	}
	if file == nil {
		return nil, ErrFileNotFound
	}
	if !Accessible(file, req.User) {
		return nil, ErrAccessDenied
	}

	doc, err := s.docs.GetByFileID(ctx, file.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load document for file %d: %w", file.ID, err)
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}

	table := doc.TableName
	if table == "" {
		table = FallbackTableName(file.Modality, file.ID)
		log.Info("document header has no table name, using fallback", "file_id", file.ID, "table", table)
	}

	result := &StructuredResult{File: file}
	result.SQLQuery, result.SQLResults = s.runSQL(ctx, req.Query, table, req.Limit, doc)
	result.SemanticResults = s.insightsPass(ctx, req.Query, file, doc)

	result.UseSQL = result.SQLResults.RowCount > 0
	result.UseSemantic = len(result.SemanticResults) > 0
	result.CombinedApproach = result.UseSQL && result.UseSemantic
	return result, nil
}

// runSQL generates, validates, and executes one statement. Failures at any
// step are captured in the returned result set; they never become errors.
func (s *sqlEngine) runSQL(ctx context.Context, query, table string, limit int, doc *Document) (string, SQLResultSet) {
	var set SQLResultSet

	columns, err := s.tables.Columns(ctx, table)
	if err != nil {
		log.Error(err, "failed to introspect dynamic table", "table", table)
		set.ExecutionError = fmt.Sprintf("table introspection failed: %v", err)
		return "", set
	}

	generated := s.generateSQL(ctx, query, table, columns, limit, doc)
	statement := EnsureLimit(SanitizeSQL(generated, table, limit), s.cfg.SQLRowLimit)

	cols, rows, err := s.tables.Select(ctx, statement)
	if err != nil {
		log.Error(err, "generated statement failed to execute", "statement", statement)
		set.ExecutionError = err.Error()
		return statement, set
	}

	set.Columns = cols
	set.Rows = rows
	set.RowCount = len(rows)
	return statement, set
}

// generateSQL asks the completion provider for a statement. When the provider
// is exhausted the empty string flows into the gate, which substitutes the
// bounded fallback scan.
func (s *sqlEngine) generateSQL(ctx context.Context, query, table string, columns []string, limit int, doc *Document) string {
	data := templateData{
		TableName: table,
		Insights:  doc.InsightsSummary,
		Columns:   strings.Join(columns, ", "),
		Query:     query,
		RowLimit:  limit,
	}
	system, err := renderTemplate("sql_system", SQLGenerationSystemMessageTmpl, data)
	if err != nil {
		log.Error(err, "failed to render sql system template")
		return ""
	}
	prompt, err := renderTemplate("sql_prompt", SQLGenerationPromptTmpl, data)
	if err != nil {
		log.Error(err, "failed to render sql prompt template")
		return ""
	}

	var generated string
	err = s.retry.Do(ctx, func() error {
		var completeErr error
		generated, completeErr = s.completions.Complete(ctx, []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		}, CompletionOptions{Temperature: 0.2, MaxTokens: 512})
		return completeErr
	})
	if err != nil {
		log.Error(err, "sql generation failed, gate will substitute fallback scan", "table", table)
		return ""
	}
	return generated
}

// insightsPass scores the insights summary and a handful of row chunks
// against the query. A fixed threshold keeps only confident matches.
func (s *sqlEngine) insightsPass(ctx context.Context, query string, file *File, doc *Document) []RetrievalResult {
	queryVec, err := s.embedder.embed(ctx, query)
	if err != nil {
		log.Error(err, "failed to embed query for insights pass", "file_id", file.ID)
		return nil
	}

	var results []RetrievalResult
	if doc.InsightsSummary != "" {
		insightsVec := doc.InsightsEmbedding
		if len(insightsVec) == 0 {
			insightsVec, err = s.embedder.embed(ctx, doc.InsightsSummary)
			if err != nil {
				log.Error(err, "failed to embed insights summary", "file_id", file.ID)
			}
		}
		if score := CosineSimilarity(queryVec, insightsVec); score >= s.cfg.InsightsThreshold {
			results = append(results, RetrievalResult{
				Content:  doc.InsightsSummary,
				Score:    score,
				Locator:  "Data Insights",
				Modality: file.Modality,
				Filename: file.Filename,
				FileID:   file.ID,
			})
		}
	}

	sample, err := s.chunks.ListByFileID(ctx, file.ID, s.cfg.SampleChunkCount)
	if err != nil {
		log.Error(err, "failed to sample chunks for insights pass", "file_id", file.ID)
		sample = nil
	}
	for i := range sample {
		chunk := &sample[i]
		if len(chunk.Embedding) == 0 {
			log.Debug("skipping sampled chunk without usable embedding", "chunk_id", chunk.ID)
			continue
		}
		score := CosineSimilarity(queryVec, chunk.Embedding)
		if score < s.cfg.InsightsThreshold {
			continue
		}
		results = append(results, RetrievalResult{
			Content:  chunk.Content,
			Score:    score,
			Locator:  chunk.Locator(),
			Modality: chunk.Modality,
			Filename: file.Filename,
			FileID:   file.ID,
			ChunkID:  chunk.ID,
		})
	}

	sortResults(results)
	return results
}

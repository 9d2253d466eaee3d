package rag

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"ragmix/src/log"
)

// ParseDecision maps a completion reply onto a retrieval decision. Replies
// that cannot be parsed fall back to hybrid so no evidence path is lost.
func ParseDecision(reply string) Decision {
	normalized := strings.ToLower(strings.TrimSpace(reply))
	normalized = strings.Trim(normalized, `"'.!`)

	if fields := strings.Fields(normalized); len(fields) > 0 {
		switch Decision(strings.Trim(fields[0], `"'.,!:`)) {
		case DecisionSQL:
			return DecisionSQL
		case DecisionSemantic:
			return DecisionSemantic
		case DecisionHybrid:
			return DecisionHybrid
		}
	}

	switch {
	case strings.Contains(normalized, string(DecisionHybrid)):
		return DecisionHybrid
	case strings.Contains(normalized, string(DecisionSemantic)):
		return DecisionSemantic
	case strings.Contains(normalized, string(DecisionSQL)):
		return DecisionSQL
	}
	return DecisionHybrid
}

// turnEvidence accumulates retrieval output across all files of one turn.
type turnEvidence struct {
	sqlResults      []RetrievalResult
	semanticResults []RetrievalResult
	responseType    ResponseType
}

func (e *turnEvidence) combined() []RetrievalResult {
	out := make([]RetrievalResult, 0, len(e.sqlResults)+len(e.semanticResults))
	out = append(out, e.sqlResults...)
	out = append(out, e.semanticResults...)
	return out
}

type orchestrator struct {
	semantic    SearchService
	structured  StructuredSearchService
	completions CompletionProvider
	files       FileStore
	docs        DocumentStore
	retry       RetryPolicy
	cfg         Config
}

// retrieve runs one turn's retrieval: a route decision and a structured
// search per SQL-capable file, then a single semantic pass over chunks.
// Failures inside a file are logged and skipped so the rest of the corpus
// still contributes.
func (o *orchestrator) retrieve(ctx context.Context, user *User, query string, limit int, minScore float64) (*turnEvidence, error) {
	files, err := o.files.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	var structuredTargets []*File
	semanticNeeded := false
	for i := range files {
		file := &files[i]
		if !Accessible(file, user) {
			continue
		}
		if file.SQLCapable() {
			structuredTargets = append(structuredTargets, file)
		} else {
			semanticNeeded = true
		}
	}

	var (
		mu sync.Mutex
		ev turnEvidence
	)
	decisions := make([]Decision, len(structuredTargets))

	var g errgroup.Group
	g.SetLimit(o.cfg.MaxConcurrency)
	for i, file := range structuredTargets {
		i, file := i, file
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(ctx, o.cfg.FileTimeout)
			defer cancel()

			decision := o.decideRoute(fctx, file, query)
			decisions[i] = decision
			log.Debug("retrieval route decided", "file_id", file.ID, "filename", file.Filename, "decision", string(decision))
			if decision == DecisionSemantic {
				return nil
			}

			res, err := o.structured.SearchStructured(fctx, StructuredSearchRequest{
				Query:  query,
				FileID: file.ID,
				Limit:  limit,
				User:   user,
			})
			if err != nil {
				log.Error(err, "structured retrieval failed, skipping file", "file_id", file.ID, "filename", file.Filename)
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			if res.SQLResults.RowCount > 0 {
				ev.sqlResults = append(ev.sqlResults, foldSQLResult(file, res))
			}
			ev.semanticResults = append(ev.semanticResults, res.SemanticResults...)
			return nil
		})
	}
	_ = g.Wait()

	for _, d := range decisions {
		if d == DecisionSemantic || d == DecisionHybrid {
			semanticNeeded = true
		}
	}

	if semanticNeeded {
		results, err := o.semantic.Search(ctx, SearchRequest{
			Query:    query,
			Limit:    limit,
			MinScore: minScore,
			User:     user,
		})
		if err != nil {
			log.Error(err, "semantic retrieval failed, continuing with structured evidence only")
		} else {
			ev.semanticResults = append(ev.semanticResults, results...)
		}
	}

	ev.responseType = aggregateResponseType(ev.sqlResults, ev.semanticResults)
	return &ev, nil
}

// decideRoute asks the completion provider to pick sql, semantic, or hybrid
// for one file. Provider failures fall back to hybrid rather than dropping
// the file.
func (o *orchestrator) decideRoute(ctx context.Context, file *File, query string) Decision {
	doc, err := o.docs.GetByFileID(ctx, file.ID)
	if err != nil || doc == nil {
		log.Error(err, "failed to load document for route decision, defaulting to semantic", "file_id", file.ID)
		return DecisionSemantic
	}

	data := templateData{Insights: doc.InsightsSummary, Query: query}
	system, err := renderTemplate("route_system", RouteDecisionSystemMessageTmpl, data)
	if err != nil {
		log.Error(err, "failed to render route system template")
		return DecisionHybrid
	}
	prompt, err := renderTemplate("route_prompt", RouteDecisionPromptTmpl, data)
	if err != nil {
		log.Error(err, "failed to render route prompt template")
		return DecisionHybrid
	}

	var reply string
	err = o.retry.Do(ctx, func() error {
		var completeErr error
		reply, completeErr = o.completions.Complete(ctx, []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		}, CompletionOptions{Temperature: 0.1, MaxTokens: 8})
		return completeErr
	})
	if err != nil {
		log.Error(err, "route decision failed, defaulting to hybrid", "file_id", file.ID)
		return DecisionHybrid
	}
	return ParseDecision(reply)
}

// foldSQLResult renders an executed result set as one retrieval result so it
// aggregates and cites like any other evidence.
func foldSQLResult(file *File, res *StructuredResult) RetrievalResult {
	return RetrievalResult{
		Content:  formatSQLRows(res.SQLQuery, res.SQLResults),
		Score:    1.0,
		Locator:  "SQL query",
		Modality: file.Modality,
		Filename: file.Filename,
		FileID:   file.ID,
	}
}

func formatSQLRows(query string, set SQLResultSet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n", query)
	fmt.Fprintf(&b, "Rows returned: %d\n", set.RowCount)
	b.WriteString(strings.Join(set.Columns, " | "))
	for _, row := range set.Rows {
		b.WriteByte('\n')
		values := make([]string, len(set.Columns))
		for i, col := range set.Columns {
			values[i] = fmt.Sprintf("%v", row[col])
		}
		b.WriteString(strings.Join(values, " | "))
	}
	return b.String()
}

func aggregateResponseType(sqlResults, semanticResults []RetrievalResult) ResponseType {
	switch {
	case len(sqlResults) > 0 && len(semanticResults) > 0:
		return ResponseHybrid
	case len(sqlResults) > 0:
		return ResponseSQLPrimary
	case len(semanticResults) > 0:
		return ResponseSemanticPrimary
	default:
		return ResponseNoResults
	}
}

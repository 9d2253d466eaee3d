package evalflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ragmix/src/core/rag"
	"ragmix/src/log"
)

const DefaultPassThreshold = 0.5

// EvalCase is one question with the keywords a correct answer must mention.
type EvalCase struct {
	ID               string   `json:"id"`
	Question         string   `json:"question"`
	ExpectedKeywords []string `json:"expected_keywords"`
}

// Dataset is a named batch of evaluation cases.
type Dataset struct {
	Name  string     `json:"name"`
	Cases []EvalCase `json:"cases"`
}

// CaseResult records one case's answer and its keyword score.
type CaseResult struct {
	ID              string   `json:"id"`
	Question        string   `json:"question"`
	Response        string   `json:"response"`
	ResponseType    string   `json:"response_type"`
	Sources         []string `json:"sources"`
	MatchedKeywords []string `json:"matched_keywords"`
	KeywordRecall   float64  `json:"keyword_recall"`
	Passed          bool     `json:"passed"`
	DurationMS      int64    `json:"duration_ms"`
	Error           string   `json:"error,omitempty"`
}

// Report aggregates a full dataset run.
type Report struct {
	Dataset       string         `json:"dataset"`
	Total         int            `json:"total"`
	Passed        int            `json:"passed"`
	Failed        int            `json:"failed"`
	AverageRecall float64        `json:"average_recall"`
	ResponseTypes map[string]int `json:"response_types"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
	Results       []CaseResult   `json:"results"`
}

// ParseDataset decodes and validates a dataset document.
func ParseDataset(raw []byte) (*Dataset, error) {
	var ds Dataset
	if err := json.Unmarshal(raw, &ds); err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}
	if len(ds.Cases) == 0 {
		return nil, fmt.Errorf("dataset has no cases")
	}
	for i, c := range ds.Cases {
		if strings.TrimSpace(c.Question) == "" {
			return nil, fmt.Errorf("case %d has an empty question", i)
		}
	}
	if ds.Name == "" {
		ds.Name = "unnamed"
	}
	return &ds, nil
}

// MatchKeywords reports which expected keywords appear in the response,
// case-insensitively, and the matched fraction. No keywords scores 1.0.
func MatchKeywords(response string, keywords []string) ([]string, float64) {
	if len(keywords) == 0 {
		return nil, 1.0
	}
	lower := strings.ToLower(response)
	var matched []string
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			matched = append(matched, kw)
		}
	}
	return matched, float64(len(matched)) / float64(len(keywords))
}

type EvaluationFlow struct {
	chat          rag.ChatService
	passThreshold float64
	onProgress    func(done, total int)
}

type Option func(ef *EvaluationFlow)

// WithPassThreshold sets the keyword recall a case needs to count as passed.
func WithPassThreshold(threshold float64) Option {
	return func(ef *EvaluationFlow) {
		ef.passThreshold = threshold
	}
}

// WithProgress registers a callback invoked after every finished case.
func WithProgress(fn func(done, total int)) Option {
	return func(ef *EvaluationFlow) {
		ef.onProgress = fn
	}
}

func NewEvaluationFlow(chat rag.ChatService, opts ...Option) *EvaluationFlow {
	ef := &EvaluationFlow{
		chat:          chat,
		passThreshold: DefaultPassThreshold,
	}
	for _, opt := range opts {
		opt(ef)
	}
	return ef
}

// Run answers every case in the dataset as the given user. A failing case is
// recorded and the run continues; only context cancellation stops it early.
func (ef *EvaluationFlow) Run(ctx context.Context, user *rag.User, ds Dataset) (*Report, error) {
	report := &Report{
		Dataset:       ds.Name,
		Total:         len(ds.Cases),
		ResponseTypes: make(map[string]int),
		StartedAt:     time.Now().UTC(),
		Results:       make([]CaseResult, 0, len(ds.Cases)),
	}

	var recallSum float64
	for i, c := range ds.Cases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result := ef.runCase(ctx, user, c)
		recallSum += result.KeywordRecall
		if result.Passed {
			report.Passed++
		} else {
			report.Failed++
		}
		if result.ResponseType != "" {
			report.ResponseTypes[result.ResponseType]++
		}
		report.Results = append(report.Results, result)

		if ef.onProgress != nil {
			ef.onProgress(i+1, report.Total)
		}
	}

	if report.Total > 0 {
		report.AverageRecall = recallSum / float64(report.Total)
	}
	report.FinishedAt = time.Now().UTC()

	log.Info("evaluation run finished",
		"dataset", report.Dataset, "total", report.Total, "passed", report.Passed, "average_recall", report.AverageRecall)
	return report, nil
}

func (ef *EvaluationFlow) runCase(ctx context.Context, user *rag.User, c EvalCase) CaseResult {
	result := CaseResult{ID: c.ID, Question: c.Question}

	started := time.Now()
	resp, err := ef.chat.Answer(ctx, rag.TurnRequest{
		User:         user,
		Query:        c.Question,
		UseRetrieval: true,
	})
	result.DurationMS = time.Since(started).Milliseconds()

	if err != nil {
		log.Error(err, "evaluation case failed", "case_id", c.ID)
		result.Error = err.Error()
		return result
	}

	result.Response = resp.Response
	result.ResponseType = string(resp.ResponseType)
	result.Sources = resp.Sources
	result.MatchedKeywords, result.KeywordRecall = MatchKeywords(resp.Response, c.ExpectedKeywords)
	result.Passed = result.KeywordRecall >= ef.passThreshold
	return result
}

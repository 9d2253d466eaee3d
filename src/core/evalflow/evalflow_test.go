package evalflow_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"ragmix/src/core/evalflow"
	"ragmix/src/core/rag"
)

type cannedChat struct {
	responses map[string]*rag.TurnResponse
	errFor    map[string]error
}

func (c *cannedChat) Answer(_ context.Context, req rag.TurnRequest) (*rag.TurnResponse, error) {
	if err := c.errFor[req.Query]; err != nil {
		return nil, err
	}
	if resp, ok := c.responses[req.Query]; ok {
		return resp, nil
	}
	return &rag.TurnResponse{Response: "no idea", ResponseType: rag.ResponseNoResults, Sources: []string{}}, nil
}

func TestMatchKeywords(t *testing.T) {
	tests := []struct {
		name       string
		response   string
		keywords   []string
		wantHits   int
		wantRecall float64
	}{
		{
			name:       "all keywords present",
			response:   "Total revenue was 2000 across North and South.",
			keywords:   []string{"revenue", "North"},
			wantHits:   2,
			wantRecall: 1.0,
		},
		{
			name:       "case insensitive",
			response:   "REVENUE grew.",
			keywords:   []string{"revenue"},
			wantHits:   1,
			wantRecall: 1.0,
		},
		{
			name:       "partial match",
			response:   "Revenue grew.",
			keywords:   []string{"revenue", "margin", "headcount", "churn"},
			wantHits:   1,
			wantRecall: 0.25,
		},
		{
			name:       "no keywords scores full",
			response:   "anything",
			keywords:   nil,
			wantHits:   0,
			wantRecall: 1.0,
		},
		{
			name:       "nothing matches",
			response:   "unrelated",
			keywords:   []string{"revenue"},
			wantHits:   0,
			wantRecall: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matched, recall := evalflow.MatchKeywords(tt.response, tt.keywords)
			if len(matched) != tt.wantHits {
				t.Errorf("matched %d keywords, want %d", len(matched), tt.wantHits)
			}
			if math.Abs(recall-tt.wantRecall) > 1e-9 {
				t.Errorf("recall = %v, want %v", recall, tt.wantRecall)
			}
		})
	}
}

func TestParseDataset(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{
			name: "valid dataset",
			raw:  `{"name":"smoke","cases":[{"id":"1","question":"q?","expected_keywords":["a"]}]}`,
		},
		{
			name:    "no cases",
			raw:     `{"name":"empty","cases":[]}`,
			wantErr: true,
		},
		{
			name:    "blank question",
			raw:     `{"cases":[{"id":"1","question":"  "}]}`,
			wantErr: true,
		},
		{
			name:    "malformed json",
			raw:     `{`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := evalflow.ParseDataset([]byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseDataset() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseDatasetDefaultsName(t *testing.T) {
	ds, err := evalflow.ParseDataset([]byte(`{"cases":[{"id":"1","question":"q?"}]}`))
	if err != nil {
		t.Fatalf("ParseDataset() error = %v", err)
	}
	if ds.Name != "unnamed" {
		t.Errorf("Name = %q, want %q", ds.Name, "unnamed")
	}
}

func TestRunScoresDataset(t *testing.T) {
	chat := &cannedChat{
		responses: map[string]*rag.TurnResponse{
			"revenue question": {Response: "Revenue was 2000.", ResponseType: rag.ResponseSQLPrimary, Sources: []string{"sales.csv (SQL query) - CSV"}},
			"margin question":  {Response: "no relevant data", ResponseType: rag.ResponseNoResults, Sources: []string{}},
		},
	}
	flow := evalflow.NewEvaluationFlow(chat)

	ds := evalflow.Dataset{
		Name: "quarterly",
		Cases: []evalflow.EvalCase{
			{ID: "1", Question: "revenue question", ExpectedKeywords: []string{"revenue", "2000"}},
			{ID: "2", Question: "margin question", ExpectedKeywords: []string{"margin"}},
		},
	}

	report, err := flow.Run(context.Background(), &rag.User{ID: 1, Role: rag.RoleAdmin}, ds)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.Total != 2 || report.Passed != 1 || report.Failed != 1 {
		t.Errorf("report = %d total %d passed %d failed, want 2/1/1", report.Total, report.Passed, report.Failed)
	}
	if math.Abs(report.AverageRecall-0.5) > 1e-9 {
		t.Errorf("AverageRecall = %v, want 0.5", report.AverageRecall)
	}
	if report.Results[0].ResponseType != string(rag.ResponseSQLPrimary) {
		t.Errorf("ResponseType = %q, want sql_primary recorded", report.Results[0].ResponseType)
	}
	if report.ResponseTypes[string(rag.ResponseSQLPrimary)] != 1 || report.ResponseTypes[string(rag.ResponseNoResults)] != 1 {
		t.Errorf("ResponseTypes = %v, want one sql_primary and one no_results", report.ResponseTypes)
	}
}

func TestRunIsolatesCaseErrors(t *testing.T) {
	chat := &cannedChat{
		responses: map[string]*rag.TurnResponse{
			"good": {Response: "fine answer with keyword", ResponseType: rag.ResponseSemanticPrimary},
		},
		errFor: map[string]error{"bad": errors.New("provider exploded")},
	}
	flow := evalflow.NewEvaluationFlow(chat)

	ds := evalflow.Dataset{
		Name: "mixed",
		Cases: []evalflow.EvalCase{
			{ID: "1", Question: "bad"},
			{ID: "2", Question: "good", ExpectedKeywords: []string{"keyword"}},
		},
	}

	report, err := flow.Run(context.Background(), &rag.User{ID: 1, Role: rag.RoleAdmin}, ds)
	if err != nil {
		t.Fatalf("Run() error = %v, want case errors contained", err)
	}

	if report.Results[0].Error == "" {
		t.Error("failing case did not record its error")
	}
	if report.Results[0].Passed {
		t.Error("failing case counted as passed")
	}
	if !report.Results[1].Passed {
		t.Error("healthy case after a failure did not pass")
	}
}

func TestRunReportsProgress(t *testing.T) {
	chat := &cannedChat{}
	var seen []int
	flow := evalflow.NewEvaluationFlow(chat, evalflow.WithProgress(func(done, total int) {
		seen = append(seen, done)
		if total != 3 {
			t.Errorf("total = %d, want 3", total)
		}
	}))

	ds := evalflow.Dataset{Cases: []evalflow.EvalCase{
		{ID: "1", Question: "a"}, {ID: "2", Question: "b"}, {ID: "3", Question: "c"},
	}}
	if _, err := flow.Run(context.Background(), &rag.User{ID: 1, Role: rag.RoleAdmin}, ds); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(seen) != 3 || seen[0] != 1 || seen[2] != 3 {
		t.Errorf("progress callbacks = %v, want [1 2 3]", seen)
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	chat := &cannedChat{}
	flow := evalflow.NewEvaluationFlow(chat)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ds := evalflow.Dataset{Cases: []evalflow.EvalCase{{ID: "1", Question: "a"}}}
	if _, err := flow.Run(ctx, &rag.User{ID: 1, Role: rag.RoleAdmin}, ds); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestRunPassThresholdOption(t *testing.T) {
	chat := &cannedChat{
		responses: map[string]*rag.TurnResponse{
			"q": {Response: "mentions revenue only", ResponseType: rag.ResponseSemanticPrimary},
		},
	}
	ds := evalflow.Dataset{Cases: []evalflow.EvalCase{
		{ID: "1", Question: "q", ExpectedKeywords: []string{"revenue", "margin"}},
	}}

	strict := evalflow.NewEvaluationFlow(chat, evalflow.WithPassThreshold(0.9))
	report, err := strict.Run(context.Background(), &rag.User{ID: 1, Role: rag.RoleAdmin}, ds)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Passed != 0 {
		t.Errorf("Passed = %d with 0.9 threshold, want 0", report.Passed)
	}

	lenient := evalflow.NewEvaluationFlow(chat, evalflow.WithPassThreshold(0.5))
	report, err = lenient.Run(context.Background(), &rag.User{ID: 1, Role: rag.RoleAdmin}, ds)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Passed != 1 {
		t.Errorf("Passed = %d with 0.5 threshold, want 1", report.Passed)
	}
}

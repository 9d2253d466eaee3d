package jobctrl

import (
	"context"
	"encoding/json"
	"fmt"

	"ragmix/src/core/evalflow"
	"ragmix/src/core/rag"
	"ragmix/src/storage/minioctrl"
	"ragmix/src/storage/postgres/evalctrl"
	"ragmix/src/storage/postgres/userctrl"
)

const TaskTypeEvaluation = "evaluation"

type EvaluationPayload struct {
	RunID int64 `json:"run_id"`
}

type EvaluationTask struct {
	evalService   *evalctrl.EvaluationService
	userService   *userctrl.UserService
	minioService  *minioctrl.MinioService
	chatService   rag.ChatService
	datasetBucket string
	reportBucket  string
	passThreshold float64
}

func NewEvaluationTask(
	evalService *evalctrl.EvaluationService,
	userService *userctrl.UserService,
	minioService *minioctrl.MinioService,
	chatService rag.ChatService,
	datasetBucket string,
	reportBucket string,
	passThreshold float64,
) *EvaluationTask {
	return &EvaluationTask{
		evalService:   evalService,
		userService:   userService,
		minioService:  minioService,
		chatService:   chatService,
		datasetBucket: datasetBucket,
		reportBucket:  reportBucket,
		passThreshold: passThreshold,
	}
}

func (task *EvaluationTask) HandleEvaluationTask(ctx context.Context, payload json.RawMessage) error {
	// decode payload
	var evalPayload EvaluationPayload
	if err := json.Unmarshal(payload, &evalPayload); err != nil {
		return fmt.Errorf("failed to unmarshal evaluation payload: %w", err)
	}

	// find run record
	run, err := task.evalService.GetByID(ctx, evalPayload.RunID)
	if err != nil {
		return fmt.Errorf("failed to get evaluation run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("evaluation run not found: %d", evalPayload.RunID)
	}

	if err := task.evalService.MarkRunning(ctx, run.ID); err != nil {
		return fmt.Errorf("failed to mark evaluation run running: %w", err)
	}

	report, runErr := task.execute(ctx, run)
	if runErr != nil {
		if markErr := task.evalService.MarkFailed(ctx, run.ID, runErr.Error()); markErr != nil {
			return fmt.Errorf("failed to mark evaluation run failed: %w", markErr)
		}
		return runErr
	}

	// Persist the report before flipping the run to completed so a
	// completed run always has a downloadable report.
	reportJSON, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal evaluation report: %w", err)
	}

	reportObject := fmt.Sprintf("%s_report.json", run.UUID)
	if err := task.minioService.PutObject(ctx, task.reportBucket, reportObject, reportJSON, "application/json"); err != nil {
		if markErr := task.evalService.MarkFailed(ctx, run.ID, err.Error()); markErr != nil {
			return fmt.Errorf("failed to mark evaluation run failed: %w", markErr)
		}
		return fmt.Errorf("failed to save evaluation report: %w", err)
	}

	if err := task.evalService.MarkCompleted(ctx, run.ID, reportObject, report.Total, report.Passed, report.Failed, report.AverageRecall); err != nil {
		return fmt.Errorf("failed to mark evaluation run completed: %w", err)
	}

	return nil
}

func (task *EvaluationTask) execute(ctx context.Context, run *evalctrl.EvaluationRun) (*evalflow.Report, error) {
	// Retrieval runs with the requesting user's visibility, so restricted
	// files stay out of evaluation answers the same way they do in chat.
	user, err := task.userService.GetByID(ctx, run.RequestedBy)
	if err != nil {
		return nil, fmt.Errorf("failed to get requesting user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("requesting user not found: %d", run.RequestedBy)
	}

	data, err := task.minioService.GetObject(ctx, task.datasetBucket, run.DatasetObject)
	if err != nil {
		return nil, fmt.Errorf("failed to get evaluation dataset: %w", err)
	}

	ds, err := evalflow.ParseDataset(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse evaluation dataset: %w", err)
	}

	flow := evalflow.NewEvaluationFlow(task.chatService, evalflow.WithPassThreshold(task.passThreshold))
	report, err := flow.Run(ctx, user, *ds)
	if err != nil {
		return nil, fmt.Errorf("failed to run evaluation: %w", err)
	}

	return report, nil
}

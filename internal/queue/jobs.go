package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// MatchReportTask is scheduled each time a lost report is filed.
	MatchReportTask = "report:match"
	// FinalizeClaimTask retries the claimed-insert half of a claim that
	// deleted the found item but failed to land the claimed document.
	FinalizeClaimTask = "claim:finalize"
)

// MatchPayload identifies the report to scan for candidates.
type MatchPayload struct {
	ReportID string `json:"report_id"`
}

// FinalizePayload identifies the interrupted claim to complete.
type FinalizePayload struct {
	FoundItemID string `json:"found_item_id"`
}

// EnqueueMatch enqueues a best-effort match job for a new report.
func EnqueueMatch(ctx context.Context, client *asynq.Client, payload MatchPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(MatchReportTask, data)
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(3)); err != nil {
		return fmt.Errorf("enqueue match task: %w", err)
	}
	return nil
}

// EnqueueFinalize enqueues a claim-finalize job. The generous retry budget
// matters: this is the one durability-critical path in the system.
func EnqueueFinalize(ctx context.Context, client *asynq.Client, payload FinalizePayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(FinalizeClaimTask, data)
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(10)); err != nil {
		return fmt.Errorf("enqueue finalize task: %w", err)
	}
	return nil
}

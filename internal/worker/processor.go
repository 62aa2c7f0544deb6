package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/LancemDev/LostLink/internal/claim"
	"github.com/LancemDev/LostLink/internal/match"
	"github.com/LancemDev/LostLink/internal/queue"
)

// Processor is plugged into the asynq worker loop. It owns the background
// halves of the two workflows: best-effort report matching and
// durability-critical claim finalization.
type Processor struct {
	engine   *match.Engine
	workflow *claim.Workflow
}

// NewProcessor constructs a worker processor.
func NewProcessor(engine *match.Engine, workflow *claim.Workflow) *Processor {
	return &Processor{engine: engine, workflow: workflow}
}

// Handler registers the task handlers.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.MatchReportTask, p.handleMatch)
	mux.HandleFunc(queue.FinalizeClaimTask, p.handleFinalize)
	return mux
}

func (p *Processor) handleMatch(ctx context.Context, task *asynq.Task) error {
	var payload queue.MatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	// Run logs and swallows its own failures; a match job never lands in the
	// retry queue because matching is enrichment, not a guarantee.
	p.engine.Run(ctx, payload.ReportID)
	return nil
}

func (p *Processor) handleFinalize(ctx context.Context, task *asynq.Task) error {
	var payload queue.FinalizePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if err := p.workflow.Finalize(ctx, payload.FoundItemID); err != nil {
		log.Printf("finalize claim %s failed, will retry: %v", payload.FoundItemID, err)
		return err
	}
	log.Printf("claim %s finalized", payload.FoundItemID)
	return nil
}

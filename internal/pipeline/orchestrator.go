package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	domain "github.com/jfilter/timetiles-sub015/internal/importer/domain"
	"github.com/jfilter/timetiles-sub015/internal/observability/metrics"
	"github.com/jfilter/timetiles-sub015/internal/queue"
)

type OrchestratorParam struct {
	fx.In

	Log     *zap.Logger
	Jobs    domain.Repository
	Queue   queue.Queue
	Metrics *metrics.PipelineMetrics `optional:"true"`
}

// Orchestrator validates stage transitions and enqueues exactly one job per
// accepted transition. Stage execution for a single import job is serialized
// by the transition claim; stages of different jobs run independently.
type Orchestrator struct {
	log     *zap.Logger
	jobs    domain.Repository
	queue   queue.Queue
	metrics *metrics.PipelineMetrics
}

func NewOrchestrator(p OrchestratorParam) *Orchestrator {
	return &Orchestrator{
		log:     p.Log.Named("pipeline"),
		jobs:    p.Jobs,
		queue:   p.Queue,
		metrics: p.Metrics,
	}
}

// ProcessTransition reacts to a persisted stage change. previousStage is the
// stage the trigger observed before the change; when it equals the job's
// current stage the call is a no-op and nothing is enqueued.
func (o *Orchestrator) ProcessTransition(ctx context.Context, jobID snowflake.ID, previousStage domain.Stage) error {
	job, err := o.jobs.FindJob(ctx, jobID)
	if err != nil {
		return err
	}
	if previousStage == job.Stage {
		return nil
	}
	if !ValidNext(previousStage, job.Stage) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, previousStage, job.Stage)
	}

	key := claimKey(jobID, previousStage, job.Stage)
	claimed, err := o.jobs.ClaimTransition(ctx, key)
	if err != nil {
		return err
	}
	if !claimed {
		return domain.ErrTransitionInProgress
	}
	// The claim only guards the race window around enqueuing, not stage
	// execution; release it whether or not the enqueue succeeds.
	defer func() {
		if releaseErr := o.jobs.ReleaseTransition(context.WithoutCancel(ctx), key); releaseErr != nil {
			o.log.Warn("failed to release transition claim", zap.String("key", key), zap.Error(releaseErr))
		}
	}()

	if o.metrics != nil {
		o.metrics.IncTransition(string(job.Stage))
	}

	task, hasTask, err := TaskForStage(job.Stage)
	if err != nil {
		return err
	}
	if !hasTask {
		// await-approval and the terminal stages run nothing; approval or
		// an external restart drives the job from here.
		return nil
	}

	if err := o.queue.Enqueue(ctx, task, queue.Payload{JobID: jobID}); err != nil {
		return fmt.Errorf("enqueue %s: %w", task, err)
	}
	o.log.Info("stage queued",
		zap.String("job_id", jobID.String()),
		zap.String("from", string(previousStage)),
		zap.String("to", string(job.Stage)))
	return nil
}

// Advance validates and persists a stage change, then processes the
// transition. The conditional stage write means a concurrent advance of the
// same job loses cleanly instead of double-queuing.
func (o *Orchestrator) Advance(ctx context.Context, jobID snowflake.ID, from, to domain.Stage) error {
	if from == to {
		return nil
	}
	if !ValidNext(from, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}
	ok, err := o.jobs.SetStage(ctx, jobID, from, to)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrTransitionInProgress
	}
	return o.ProcessTransition(ctx, jobID, from)
}

// Approve moves a job out of await-approval. This is the only way forward
// from that stage; the orchestrator never auto-advances it.
func (o *Orchestrator) Approve(ctx context.Context, jobID, approver snowflake.ID) error {
	job, err := o.jobs.FindJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Stage != domain.StageAwaitApproval {
		return domain.ErrJobNotAwaitingApproval
	}
	job.ApprovedBy = &approver
	now := time.Now().UTC()
	job.ApprovedAt = &now
	if err := o.jobs.UpdateJob(ctx, job); err != nil {
		return err
	}
	return o.Advance(ctx, jobID, domain.StageAwaitApproval, domain.StageCreateSchemaVersion)
}

// Fail persists the error on the job record first, then moves the job to
// failed. Failed jobs are never retried automatically.
func (o *Orchestrator) Fail(ctx context.Context, jobID snowflake.ID, stage domain.Stage, cause error) error {
	entry := domain.ErrorEntry{
		Stage:      stage,
		Message:    cause.Error(),
		OccurredAt: time.Now().UTC(),
	}
	if err := o.jobs.AppendError(ctx, jobID, entry); err != nil {
		o.log.Error("failed to persist error log entry",
			zap.String("job_id", jobID.String()), zap.Error(err))
	}
	if o.metrics != nil {
		o.metrics.IncStageFailure(string(stage))
	}
	ok, err := o.jobs.SetStage(ctx, jobID, stage, domain.StageFailed)
	if err != nil {
		return err
	}
	if !ok {
		o.log.Warn("job stage moved while failing it",
			zap.String("job_id", jobID.String()), zap.String("stage", string(stage)))
	}
	o.log.Warn("import job failed",
		zap.String("job_id", jobID.String()),
		zap.String("stage", string(stage)),
		zap.Error(cause))
	return nil
}

func claimKey(jobID snowflake.ID, from, to domain.Stage) string {
	return fmt.Sprintf("%s:%s:%s", jobID, from, to)
}

package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Repository is the persistence boundary for import jobs, their per-row
// staging results and transition claims.
type Repository interface {
	FindJob(ctx context.Context, id snowflake.ID) (*ImportJob, error)
	CreateJob(ctx context.Context, job *ImportJob) error
	UpdateJob(ctx context.Context, job *ImportJob) error

	// SetStage flips the job's stage only when it still holds expected.
	// Returns false without error when another writer got there first.
	SetStage(ctx context.Context, jobID snowflake.ID, expected, next Stage) (bool, error)

	AppendError(ctx context.Context, jobID snowflake.ID, entry ErrorEntry) error

	CreateRowResults(ctx context.Context, results []*RowResult) error
	RowResultsRange(ctx context.Context, jobID snowflake.ID, offset int64, limit int) ([]*RowResult, error)
	UpdateRowResult(ctx context.Context, result *RowResult) error

	// ClaimTransition is first-writer-wins: it returns false when the claim
	// already exists.
	ClaimTransition(ctx context.Context, key string) (bool, error)
	ReleaseTransition(ctx context.Context, key string) error
}

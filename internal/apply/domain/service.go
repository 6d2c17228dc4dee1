package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/switchboard/pkg/db/pagination"
)

type ListJobsRequest struct {
	pagination.Pagination
	Status string `form:"status"`
}

type ListJobsResponse struct {
	pagination.PageInfo
	Jobs []Job `json:"jobs"`
}

type Service interface {
	// Apply runs one full apply as the actor in ctx and returns the
	// terminal job. On failure the error wraps one of the sentinels below
	// and, once a job exists, is a *Failure carrying it.
	Apply(ctx context.Context) (Job, error)
	Get(ctx context.Context, id snowflake.ID) (Job, error)
	List(ctx context.Context, req ListJobsRequest) (ListJobsResponse, error)
}

var (
	ErrApplyInProgress   = errors.New("apply_in_progress")
	ErrValidationFailed  = errors.New("validation_failed")
	ErrWriteFailure      = errors.New("write_failure")
	ErrReloadFailure     = errors.New("reload_failure")
	ErrRollbackFailure   = errors.New("rollback_failure")
	ErrGenerateFailure   = errors.New("generate_failure")
	ErrJobNotFound       = errors.New("apply_job_not_found")
	ErrInvalidTransition = errors.New("invalid_job_transition")
	ErrInvalidStatus     = errors.New("invalid_job_status")
	ErrInvalidPageToken  = pagination.ErrInvalidPageToken
)

// Failure is returned by Apply once a job record exists. Kind is one of the
// sentinels above; Cause is the underlying error.
type Failure struct {
	Kind  error
	Job   Job
	Cause error
}

func (f *Failure) Error() string {
	if f.Cause == nil {
		return fmt.Sprintf("apply job %s: %v", f.Job.ID, f.Kind)
	}
	return fmt.Sprintf("apply job %s: %v: %v", f.Job.ID, f.Kind, f.Cause)
}

func (f *Failure) Unwrap() []error {
	if f.Cause == nil {
		return []error{f.Kind}
	}
	return []error{f.Kind, f.Cause}
}

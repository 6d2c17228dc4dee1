package repository

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/switchboard/internal/apply/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const jobColumns = `id, status, actor, error, summary, manifest, reload_results,
	rollback_outcome, validation, started_at, ended_at, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, job *domain.Job) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO apply_jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.Status,
		job.Actor,
		job.Error,
		job.Summary,
		job.Manifest,
		job.ReloadResults,
		job.RollbackOutcome,
		job.Validation,
		job.StartedAt,
		job.EndedAt,
		job.CreatedAt,
		job.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, job *domain.Job, from domain.JobStatus) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE apply_jobs
		 SET status = ?, error = ?, summary = ?, manifest = ?, reload_results = ?,
		     rollback_outcome = ?, validation = ?, started_at = ?, ended_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		job.Status,
		job.Error,
		job.Summary,
		job.Manifest,
		job.ReloadResults,
		job.RollbackOutcome,
		job.Validation,
		job.StartedAt,
		job.EndedAt,
		job.UpdatedAt,
		job.ID,
		from,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, job.Status)
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Job, error) {
	var job domain.Job
	err := db.WithContext(ctx).Raw(
		`SELECT `+jobColumns+` FROM apply_jobs WHERE id = ?`, id,
	).Scan(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == 0 {
		return nil, nil
	}
	return &job, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Job, error) {
	var jobs []*domain.Job
	stmt := db.WithContext(ctx).Model(&domain.Job{})

	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.CursorAt != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.CursorAt.UTC(),
			filter.CursorAt.UTC(),
			filter.CursorID,
		)
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	if err := stmt.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, job *Job) error
	// Update persists the mutable columns of job; the stored status must
	// equal from, so a terminal job is never reopened.
	Update(ctx context.Context, db *gorm.DB, job *Job, from JobStatus) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Job, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Job, error)
}

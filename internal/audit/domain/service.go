package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/switchboard/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListAuditLogRequest struct {
	pagination.Pagination
	EntityType string
	EntityID   string
	Actor      string
	Action     string
	From       *time.Time
	To         *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Service interface {
	// Record appends entry using tx so the audit row commits with the
	// mutation it describes. A nil tx writes on the service's own handle.
	Record(ctx context.Context, tx *gorm.DB, entry Entry) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidAction     = errors.New("invalid_action")
	ErrInvalidEntityType = errors.New("invalid_entity_type")
	ErrInvalidTimeRange  = errors.New("invalid_time_range")
	ErrInvalidPageToken  = pagination.ErrInvalidPageToken
)

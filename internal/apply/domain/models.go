package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobRunning    JobStatus = "running"
	JobSucceeded  JobStatus = "succeeded"
	JobFailed     JobStatus = "failed"
	JobRolledBack JobStatus = "rolled_back"
)

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobSucceeded, JobFailed, JobRolledBack:
		return true
	default:
		return false
	}
}

// CanTransition enforces Pending -> Running -> terminal.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobPending:
		return next == JobRunning || next == JobFailed
	case JobRunning:
		return next.Terminal()
	default:
		return false
	}
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobRunning, JobSucceeded, JobFailed, JobRolledBack:
		return true
	default:
		return false
	}
}

// Job is the immutable record of one apply attempt once terminal.
type Job struct {
	ID              snowflake.ID   `gorm:"primaryKey" json:"id"`
	Status          JobStatus      `gorm:"not null" json:"status"`
	Actor           string         `gorm:"not null" json:"actor"`
	Error           *string        `json:"error,omitempty"`
	Summary         string         `gorm:"not null" json:"summary"`
	Manifest        datatypes.JSON `json:"manifest,omitempty"`
	ReloadResults   datatypes.JSON `json:"reload_results,omitempty"`
	RollbackOutcome datatypes.JSON `gorm:"column:rollback_outcome" json:"rollback,omitempty"`
	Validation      datatypes.JSON `json:"validation,omitempty"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	EndedAt         *time.Time     `json:"ended_at,omitempty"`
	CreatedAt       time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null" json:"updated_at"`
}

func (Job) TableName() string { return "apply_jobs" }

// ManifestEntry records what happened to one artifact during an apply.
// Backup is empty when Absent is set: the target did not exist before, so
// rollback removes it instead of restoring.
type ManifestEntry struct {
	Name     string `json:"name"`
	Target   string `json:"target"`
	Backup   string `json:"backup,omitempty"`
	Absent   bool   `json:"absent"`
	Written  bool   `json:"written"`
	Checksum string `json:"sha256,omitempty"`
}

// RollbackOutcome is attached to every job that attempted a rollback.
type RollbackOutcome struct {
	Attempted bool          `json:"attempted"`
	OK        bool          `json:"ok"`
	Restored  []string      `json:"restored,omitempty"`
	Removed   []string      `json:"removed,omitempty"`
	Errors    []string      `json:"errors,omitempty"`
	Reload    []ReloadEntry `json:"reload,omitempty"`
}

// ReloadEntry mirrors a reload result in the job record.
type ReloadEntry struct {
	Target   string `json:"target"`
	Command  string `json:"command"`
	OK       bool   `json:"ok"`
	Detail   string `json:"detail,omitempty"`
	Duration string `json:"duration"`
}

// Violation is one failed check found while validating a snapshot.
type Violation struct {
	Code       string `json:"code"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Message    string `json:"message"`
}

type ValidationReport struct {
	Violations []Violation `json:"violations"`
}

func (r ValidationReport) OK() bool { return len(r.Violations) == 0 }

func (r *ValidationReport) Add(code, entityType string, entityID snowflake.ID, message string) {
	r.Violations = append(r.Violations, Violation{
		Code:       code,
		EntityType: entityType,
		EntityID:   entityID.String(),
		Message:    message,
	})
}

func (j Job) ManifestEntries() ([]ManifestEntry, error) {
	var out []ManifestEntry
	return out, decode(j.Manifest, &out)
}

func (j Job) Reloads() ([]ReloadEntry, error) {
	var out []ReloadEntry
	return out, decode(j.ReloadResults, &out)
}

func (j Job) Rollback() (*RollbackOutcome, error) {
	var out *RollbackOutcome
	return out, decode(j.RollbackOutcome, &out)
}

func (j Job) ValidationReport() (*ValidationReport, error) {
	var out *ValidationReport
	return out, decode(j.Validation, &out)
}

func decode(raw datatypes.JSON, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// Encode marshals v for a JSON column; nil stays NULL.
func Encode(v any) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

type ListFilter struct {
	Status   JobStatus
	CursorID snowflake.ID
	CursorAt *time.Time
	Limit    int
}

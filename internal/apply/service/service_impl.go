package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/switchboard/internal/apply/artifact"
	"github.com/smallbiznis/switchboard/internal/apply/domain"
	"github.com/smallbiznis/switchboard/internal/apply/lock"
	auditdomain "github.com/smallbiznis/switchboard/internal/audit/domain"
	auditservice "github.com/smallbiznis/switchboard/internal/audit/service"
	"github.com/smallbiznis/switchboard/internal/clock"
	"github.com/smallbiznis/switchboard/internal/config"
	"github.com/smallbiznis/switchboard/internal/dialplan"
	"github.com/smallbiznis/switchboard/internal/observability/logger"
	"github.com/smallbiznis/switchboard/internal/observability/metrics"
	"github.com/smallbiznis/switchboard/internal/observability/tracing"
	"github.com/smallbiznis/switchboard/internal/reload"
	"github.com/smallbiznis/switchboard/pkg/db/pagination"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const entityApplyJob = "apply_job"

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Audit     auditdomain.Service
	Lock      lock.Lock
	Loader    *dialplan.Loader
	Generator *dialplan.Generator
	Reloader  reload.Reloader
	Telephony *config.TelephonyConfigHolder
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	audit     auditdomain.Service
	lock      lock.Lock
	loader    *dialplan.Loader
	generator *dialplan.Generator
	reloader  reload.Reloader
	telephony *config.TelephonyConfigHolder
	metrics   *metrics.Metrics
	tracer    trace.Tracer

	// newStore opens the artifact store for the backup dir of one apply.
	newStore func(backupDir string) artifact.Store
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("apply.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		audit:     p.Audit,
		lock:      p.Lock,
		loader:    p.Loader,
		generator: p.Generator,
		reloader:  p.Reloader,
		telephony: p.Telephony,
		metrics:   p.Metrics,
		tracer:    otel.Tracer("switchboard/apply"),
		newStore: func(backupDir string) artifact.Store {
			return artifact.NewFileStore(backupDir)
		},
	}
}

func (s *Service) Apply(ctx context.Context) (domain.Job, error) {
	ctx, span := s.tracer.Start(ctx, "apply.run")
	defer span.End()

	log := logger.WithContext(ctx, s.log)
	release, err := s.lock.TryAcquire(ctx)
	if errors.Is(err, lock.ErrHeld) {
		log.Info("apply.rejected", zap.String("reason", domain.ErrApplyInProgress.Error()))
		span.SetStatus(codes.Error, domain.ErrApplyInProgress.Error())
		return domain.Job{}, domain.ErrApplyInProgress
	}
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "lock")
		return domain.Job{}, fmt.Errorf("acquire apply lock: %w", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("apply.lock.release_failed", zap.Error(err))
		}
	}()

	// A Running job always reaches a terminal state. Reload calls stay
	// bounded by the dispatcher timeout.
	ctx = context.WithoutCancel(ctx)

	cfg := s.telephony.Get()
	now := s.clock.Now()
	job := domain.Job{
		ID:        s.genID.Generate(),
		Status:    domain.JobPending,
		Actor:     auditservice.ActorFromContext(ctx),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, &job); err != nil {
		return domain.Job{}, err
	}
	span.SetAttributes(
		attribute.String("apply.job_id", job.ID.String()),
		attribute.String("apply.actor", job.Actor),
	)

	if err := s.transition(ctx, &job, domain.JobRunning); err != nil {
		return job, err
	}
	log = log.With(zap.String("job_id", job.ID.String()))
	log.Info("apply.job.start",
		zap.String("actor", job.Actor),
		zap.Int("artifacts", len(cfg.Artifacts)),
	)

	run := &jobRun{svc: s, job: &job, cfg: cfg, log: log, store: s.newStore(cfg.BackupDir)}
	res := run.execute(ctx)
	if err := run.finish(ctx, res); err != nil {
		log.Error("apply.job.persist_failed", zap.String("status", string(res.status)), zap.Error(err))
		return job, err
	}

	elapsed := job.EndedAt.Sub(*job.StartedAt)
	s.metrics.ObserveApplyJob(string(job.Status), elapsed)
	span.SetAttributes(attribute.String("apply.status", string(job.Status)))

	fields := []zap.Field{
		zap.String("status", string(job.Status)),
		zap.String("summary", job.Summary),
		zap.Duration("duration", elapsed),
	}
	if res.kind == nil {
		log.Info("apply.job.finish", fields...)
		return job, nil
	}

	failure := &domain.Failure{Kind: res.kind, Job: job, Cause: res.cause}
	span.RecordError(tracing.SafeError(failure))
	span.SetStatus(codes.Error, res.kind.Error())
	if errors.Is(res.kind, domain.ErrRollbackFailure) {
		log.Error("apply.job.finish", append(fields, zap.Error(failure))...)
	} else {
		log.Warn("apply.job.finish", append(fields, zap.Error(failure))...)
	}
	return job, failure
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Job, error) {
	job, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Job{}, err
	}
	if job == nil {
		return domain.Job{}, domain.ErrJobNotFound
	}
	return *job, nil
}

func (s *Service) List(ctx context.Context, req domain.ListJobsRequest) (domain.ListJobsResponse, error) {
	status := domain.JobStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if status != "" && !status.Valid() {
		return domain.ListJobsResponse{}, domain.ErrInvalidStatus
	}

	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return domain.ListJobsResponse{}, domain.ErrInvalidPageToken
	}
	filter := domain.ListFilter{Status: status, Limit: req.Size()}
	if cursor != nil {
		filter.CursorID = cursor.ID
		filter.CursorAt = &cursor.CreatedAt
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListJobsResponse{}, err
	}
	items, pageInfo := pagination.Page(items, filter.Limit, func(item *domain.Job) pagination.Cursor {
		return pagination.Cursor{ID: item.ID, CreatedAt: item.CreatedAt}
	})

	jobs := make([]domain.Job, 0, len(items))
	for _, item := range items {
		jobs = append(jobs, *item)
	}
	return domain.ListJobsResponse{PageInfo: pageInfo, Jobs: jobs}, nil
}

// transition moves job forward and persists it.
func (s *Service) transition(ctx context.Context, job *domain.Job, next domain.JobStatus) error {
	from := job.Status
	if !from.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, next)
	}
	now := s.clock.Now()
	job.Status = next
	job.UpdatedAt = now
	switch {
	case next == domain.JobRunning:
		job.StartedAt = &now
	case next.Terminal():
		job.EndedAt = &now
		if job.StartedAt == nil {
			job.StartedAt = &now
		}
	}
	return s.repo.Update(ctx, s.db, job, from)
}

// jobRun carries the state of one apply between its steps.
type jobRun struct {
	svc      *Service
	job      *domain.Job
	cfg      config.TelephonyConfig
	log      *zap.Logger
	store    artifact.Store
	manifest []domain.ManifestEntry
	reloads  []domain.ReloadEntry
	rollback *domain.RollbackOutcome
	report   *domain.ValidationReport
}

// runResult is the terminal status of a job and, on failure, the taxonomy
// kind with its cause.
type runResult struct {
	status domain.JobStatus
	kind   error
	cause  error
}

func failedWith(kind, cause error) runResult {
	return runResult{status: domain.JobFailed, kind: kind, cause: cause}
}

// execute runs validate, render, backup, write and reload in order.
func (r *jobRun) execute(ctx context.Context) runResult {
	snap, err := r.svc.loader.Load(ctx)
	if err != nil {
		return failedWith(domain.ErrGenerateFailure, fmt.Errorf("load snapshot: %w", err))
	}
	r.job.Summary = snap.Summary()

	report := Validate(snap)
	r.report = &report
	if !report.OK() {
		return failedWith(domain.ErrValidationFailed,
			fmt.Errorf("%d violations, first: %s", len(report.Violations), report.Violations[0].Message))
	}

	// Rendering is pure, so it runs before any file is touched.
	artifacts, err := r.svc.generator.Render(snap, r.cfg.Artifacts)
	if err != nil {
		return failedWith(domain.ErrGenerateFailure, err)
	}

	backupAt := r.svc.clock.Now()
	for _, a := range artifacts {
		backup, absent, err := r.store.Backup(a.Path, r.job.ID.String(), backupAt)
		if err != nil {
			return r.rollBack(ctx, domain.ErrWriteFailure, err, false)
		}
		r.manifest = append(r.manifest, domain.ManifestEntry{
			Name:     a.Name,
			Target:   a.Path,
			Backup:   backup,
			Absent:   absent,
			Checksum: a.Checksum,
		})
	}

	for i, a := range artifacts {
		if err := r.store.Write(a.Path, a.Content); err != nil {
			return r.rollBack(ctx, domain.ErrWriteFailure, err, false)
		}
		r.manifest[i].Written = true
	}

	for _, target := range reloadTargets(artifacts) {
		res := r.svc.reloader.Reload(ctx, target)
		r.reloads = append(r.reloads, reloadEntry(res))
		if !res.OK {
			return r.rollBack(ctx, domain.ErrReloadFailure,
				fmt.Errorf("%s: %s", target, res.Detail), true)
		}
	}
	return runResult{status: domain.JobSucceeded}
}

// rollBack restores every backed up artifact and, when the engine may
// already have loaded new files, reloads it again. A failed restore or
// reload leaves the job Failed for operator intervention.
func (r *jobRun) rollBack(ctx context.Context, kind, cause error, reloaded bool) runResult {
	r.log.Warn("apply.rollback.start", zap.String("reason", kind.Error()), zap.Error(cause))

	outcome := &domain.RollbackOutcome{Attempted: true, OK: true}
	r.rollback = outcome
	for i := len(r.manifest) - 1; i >= 0; i-- {
		entry := r.manifest[i]
		if err := r.store.Restore(entry.Target, entry.Backup, entry.Absent); err != nil {
			outcome.OK = false
			outcome.Errors = append(outcome.Errors, err.Error())
			continue
		}
		if entry.Absent {
			outcome.Removed = append(outcome.Removed, entry.Target)
		} else {
			outcome.Restored = append(outcome.Restored, entry.Target)
		}
	}

	if reloaded {
		for _, target := range manifestTargets(r.cfg, r.manifest) {
			res := r.svc.reloader.Reload(ctx, target)
			outcome.Reload = append(outcome.Reload, reloadEntry(res))
			if !res.OK {
				outcome.OK = false
				outcome.Errors = append(outcome.Errors, fmt.Sprintf("reload %s: %s", target, res.Detail))
			}
		}
	}

	if !outcome.OK {
		r.svc.metrics.IncRollback("failed")
		r.log.Error("apply.rollback.failed",
			zap.Strings("errors", outcome.Errors),
			zap.String("original", kind.Error()),
		)
		return failedWith(domain.ErrRollbackFailure, fmt.Errorf("%w: %v", kind, cause))
	}
	r.svc.metrics.IncRollback("ok")
	return runResult{status: domain.JobRolledBack, kind: kind, cause: cause}
}

// finish records the terminal state and the apply audit entry.
func (r *jobRun) finish(ctx context.Context, res runResult) error {
	job := r.job
	var err error
	if job.Manifest, err = domain.Encode(r.manifest); err != nil {
		return err
	}
	if job.ReloadResults, err = domain.Encode(r.reloads); err != nil {
		return err
	}
	if r.rollback != nil {
		if job.RollbackOutcome, err = domain.Encode(r.rollback); err != nil {
			return err
		}
	}
	if r.report != nil {
		if job.Validation, err = domain.Encode(r.report); err != nil {
			return err
		}
	}
	if res.kind != nil {
		msg := res.kind.Error()
		if res.cause != nil {
			msg += ": " + res.cause.Error()
		}
		job.Error = &msg
	}

	if err := r.svc.transition(ctx, job, res.status); err != nil {
		return err
	}
	return r.svc.audit.Record(ctx, nil, auditdomain.Entry{
		Action:     auditdomain.ActionApply,
		EntityType: entityApplyJob,
		EntityID:   job.ID.String(),
		After:      job,
	})
}

// reloadTargets lists each artifact's reload targets once, in artifact
// order.
func reloadTargets(artifacts []dialplan.Artifact) []string {
	seen := make(map[string]struct{})
	var targets []string
	for _, a := range artifacts {
		for _, target := range a.Reload {
			if _, ok := seen[target]; ok {
				continue
			}
			seen[target] = struct{}{}
			targets = append(targets, target)
		}
	}
	return targets
}

func manifestTargets(cfg config.TelephonyConfig, manifest []domain.ManifestEntry) []string {
	byName := make(map[string]config.ArtifactConfig, len(cfg.Artifacts))
	for _, a := range cfg.Artifacts {
		byName[a.Name] = a
	}
	artifacts := make([]dialplan.Artifact, 0, len(manifest))
	for _, entry := range manifest {
		artifacts = append(artifacts, dialplan.Artifact{Name: entry.Name, Reload: byName[entry.Name].Reload})
	}
	return reloadTargets(artifacts)
}

func reloadEntry(res reload.Result) domain.ReloadEntry {
	return domain.ReloadEntry{
		Target:   res.Target,
		Command:  res.Command,
		OK:       res.OK,
		Detail:   res.Detail,
		Duration: res.Duration.Round(time.Millisecond).String(),
	}
}

package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"gorm.io/gorm"
)

func TestClassifyReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: ReasonDeadlineExceeded},
		{name: "lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: ReasonLockTimeout},
		{name: "serialization", err: &pgconn.PgError{Code: "40001"}, want: ReasonSerializationFailure},
		{name: "pg_unique", err: &pgconn.PgError{Code: "23505"}, want: ReasonUniqueViolation},
		{name: "gorm_unique", err: gorm.ErrDuplicatedKey, want: ReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: ReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestAllocationCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewWithRegisterer(registry, Config{ServiceName: "switchboard", Environment: "test"})

	m.IncAllocationAttempt(PoolExtension)
	m.IncAllocationAttempt(PoolExtension)
	m.IncAllocationRetry(PoolExtension)
	m.IncAllocationFailure(PoolExtension, "exhausted")

	if got := testutil.ToFloat64(m.allocationAttempts.WithLabelValues(PoolExtension)); got != 2 {
		t.Fatalf("expected 2 attempts, got %v", got)
	}
	if got := testutil.ToFloat64(m.allocationRetries.WithLabelValues(PoolExtension)); got != 1 {
		t.Fatalf("expected 1 retry, got %v", got)
	}
	if got := testutil.ToFloat64(m.allocationFailures.WithLabelValues(PoolExtension, "exhausted")); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
}

func TestObserveApplyJob(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewWithRegisterer(registry, Config{})

	m.ObserveApplyJob("success", 150*time.Millisecond)
	m.ObserveApplyJob("rolled_back", time.Second)

	if got := testutil.ToFloat64(m.applyJobs.WithLabelValues("success")); got != 1 {
		t.Fatalf("expected 1 success, got %v", got)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var hist *dto.Histogram
	for _, family := range families {
		if family.GetName() == "switchboard_apply_duration_seconds" {
			hist = family.GetMetric()[0].GetHistogram()
		}
	}
	if hist == nil {
		t.Fatalf("expected apply duration histogram to be registered")
	}
	if hist.GetSampleCount() != 2 {
		t.Fatalf("expected 2 samples, got %d", hist.GetSampleCount())
	}
}

func TestDuplicateRegistrationReusesCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := NewWithRegisterer(registry, Config{})
	second := NewWithRegisterer(registry, Config{})

	first.IncRollback("restored")
	second.IncRollback("restored")

	if got := testutil.ToFloat64(first.applyRollbacks.WithLabelValues("restored")); got != 2 {
		t.Fatalf("expected shared counter value 2, got %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.IncAllocationAttempt(PoolPhoneNumber)
	m.ObserveReload("dialplan", true, time.Millisecond)
}

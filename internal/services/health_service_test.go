package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/malistore/api/internal/domain"
)

func TestHealthServiceReport(t *testing.T) {
	started := testNow.Add(-time.Hour)
	svc, err := NewHealthService(HealthServiceDeps{
		Checks: []DependencyCheck{
			{Name: "database", Check: func(context.Context) error { return nil }},
			{Name: "events", Optional: true, Check: func(context.Context) error { return errors.New("broker down") }},
		},
		Build: BuildInfo{Version: "1.2.3", Environment: "test", StartedAt: started},
		Clock: fixedClock,
	})
	if err != nil {
		t.Fatalf("new health service: %v", err)
	}

	report, err := svc.Report(context.Background())
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded, got %s", report.Status)
	}
	if report.Checks["database"].Status != domain.HealthStatusOK {
		t.Fatalf("expected database ok, got %#v", report.Checks["database"])
	}
	if got := report.Checks["events"]; got.Status != domain.HealthStatusDegraded || got.Detail != "broker down" {
		t.Fatalf("unexpected events check %#v", got)
	}
	if report.Uptime != time.Hour || report.Version != "1.2.3" {
		t.Fatalf("unexpected build info %#v", report)
	}
}

func TestHealthServiceReportTimeout(t *testing.T) {
	svc, err := NewHealthService(HealthServiceDeps{
		Checks: []DependencyCheck{{
			Name:    "database",
			Timeout: 10 * time.Millisecond,
			Check: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
		}},
	})
	if err != nil {
		t.Fatalf("new health service: %v", err)
	}

	report, err := svc.Report(context.Background())
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.Status != domain.HealthStatusError || report.Checks["database"].Detail != "timeout" {
		t.Fatalf("expected timeout error, got %#v", report)
	}
}

func TestNewHealthServiceValidation(t *testing.T) {
	if _, err := NewHealthService(HealthServiceDeps{}); err == nil {
		t.Fatalf("expected error without checks")
	}
	if _, err := NewHealthService(HealthServiceDeps{Checks: []DependencyCheck{{Name: "db"}}}); err == nil {
		t.Fatalf("expected error without check function")
	}
}

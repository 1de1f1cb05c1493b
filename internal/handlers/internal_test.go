package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/malistore/api/internal/platform/auth"
	"github.com/malistore/api/internal/services"
)

func TestInternalHandlersSweepStock(t *testing.T) {
	checked := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	sweeper := &stubSweeper{report: services.StockAlertReport{
		Threshold: 5,
		Recipient: "ops@example.com",
		Products: []services.Product{
			{ID: "prod-1", Name: "Lamp", Stock: 0, Active: true},
			{ID: "prod-2", Name: "Chair", Stock: 4, Active: true},
		},
		Message:   "2 products at or below 5 units",
		CheckedAt: checked,
	}}
	handler := NewInternalHandlers(sweeper)
	rr := serve(t, "/internal", handler.Routes, newRequest(http.MethodPost, "/internal/stock-alerts:sweep", "", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if sweeper.calls != 1 {
		t.Fatalf("expected one sweep, got %d", sweeper.calls)
	}
	var resp stockSweepResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 2 || resp.Threshold != 5 || resp.Recipient != "ops@example.com" {
		t.Fatalf("unexpected response: %#v", resp)
	}
	if resp.CheckedAt != "2024-05-01T09:00:00Z" {
		t.Fatalf("unexpected checkedAt %s", resp.CheckedAt)
	}
	if resp.TriggeredBy != "" {
		t.Fatalf("expected no caller without a service identity, got %s", resp.TriggeredBy)
	}
}

func TestInternalHandlersSweepStockRecordsCaller(t *testing.T) {
	handler := NewInternalHandlers(&stubSweeper{report: services.StockAlertReport{Threshold: 5}})
	req := newRequest(http.MethodPost, "/internal/stock-alerts:sweep", "", nil)
	req = req.WithContext(auth.WithServiceIdentity(req.Context(), &auth.ServiceIdentity{Email: "scheduler@malistore.iam.gserviceaccount.com"}))
	rr := serve(t, "/internal", handler.Routes, req)

	var resp stockSweepResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TriggeredBy != "scheduler@malistore.iam.gserviceaccount.com" {
		t.Fatalf("expected scheduler caller, got %q", resp.TriggeredBy)
	}
}

func TestInternalHandlersSweepStockErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "inventory down", err: fmt.Errorf("%w: dial tcp", services.ErrInventoryUnavailable), wantStatus: http.StatusServiceUnavailable},
		{name: "deadline", err: context.DeadlineExceeded, wantStatus: http.StatusServiceUnavailable},
		{name: "unexpected", err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewInternalHandlers(&stubSweeper{err: tc.err})
			rr := serve(t, "/internal", handler.Routes, newRequest(http.MethodPost, "/internal/stock-alerts:sweep", "", nil))
			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rr.Code)
			}
		})
	}
}

func TestInternalHandlersWithoutSweeper(t *testing.T) {
	handler := NewInternalHandlers(nil)
	rr := serve(t, "/internal", handler.Routes, newRequest(http.MethodPost, "/internal/stock-alerts:sweep", "", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

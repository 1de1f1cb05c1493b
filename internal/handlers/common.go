package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/malistore/api/internal/domain"
	"github.com/malistore/api/internal/platform/auth"
	"github.com/malistore/api/internal/platform/httpx"
	"github.com/malistore/api/internal/platform/pagination"
	"github.com/malistore/api/internal/repositories"
)

const maxJSONBodySize = 16 * 1024

func requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func writeServiceUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError(name+"_service_unavailable", name+" service unavailable", http.StatusServiceUnavailable))
}

// parsePage validates page_size and page_token so malformed cursors fail before reaching storage.
func parsePage(w http.ResponseWriter, r *http.Request) (domain.Pagination, bool) {
	params, err := pagination.Parse(r.URL.Query())
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return domain.Pagination{}, false
	}
	return domain.Pagination{PageSize: params.PageSize, PageToken: params.PageToken}, true
}

// parseFilterValues accepts repeated and comma separated query values.
func parseFilterValues(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	filters := make([]string, 0, len(values))
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			key := strings.ToUpper(trimmed)
			if _, exists := seen[key]; exists {
				continue
			}
			seen[key] = struct{}{}
			filters = append(filters, trimmed)
		}
	}
	return filters
}

func parseOrderStatuses(values []string) ([]domain.OrderStatus, error) {
	raw := parseFilterValues(values)
	if len(raw) == 0 {
		return nil, nil
	}
	statuses := make([]domain.OrderStatus, 0, len(raw))
	for _, value := range raw {
		status, ok := domain.ParseOrderStatus(value)
		if !ok {
			return nil, errors.New("status must be one of PENDING, PAID, SHIPPED, DELIVERED, CANCELLED")
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func parsePaymentStatuses(values []string) ([]domain.PaymentStatus, error) {
	raw := parseFilterValues(values)
	if len(raw) == 0 {
		return nil, nil
	}
	statuses := make([]domain.PaymentStatus, 0, len(raw))
	for _, value := range raw {
		status, ok := domain.ParsePaymentStatus(value)
		if !ok {
			return nil, errors.New("status must be a valid payment status")
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func isUnavailable(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}

func formatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

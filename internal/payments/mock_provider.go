package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const mockCheckoutBaseURL = "https://checkout.stripe.com/mock/"

// MockProvider fabricates checkout sessions without contacting a PSP. Outcomes are applied
// through the simulation endpoints.
type MockProvider struct {
	clock func() time.Time
}

// NewMockProvider constructs a MockProvider.
func NewMockProvider(clock func() time.Time) *MockProvider {
	if clock == nil {
		clock = time.Now
	}
	return &MockProvider{clock: clock}
}

// CreateCheckoutSession returns a session with mock_session_/mock_pi_ identifiers.
func (p *MockProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	if err := ctx.Err(); err != nil {
		return CheckoutSession{}, err
	}
	sessionID := "mock_session_" + shortUUID()
	return CheckoutSession{
		ID:          sessionID,
		Provider:    "mock",
		RedirectURL: mockCheckoutBaseURL + sessionID,
		IntentID:    "mock_pi_" + shortUUID(),
		ExpiresAt:   p.clock().UTC().Add(defaultSessionTTL),
	}, nil
}

func shortUUID() string {
	return uuid.NewString()[:8]
}

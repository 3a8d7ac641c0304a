package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridelink/entitlement-engine/internal/models"
)

func membershipCheckoutPayload() *WebhookPayload {
	p := &WebhookPayload{Event: PaymentSucceeded}
	p.Object.ID = "pay-123"
	p.Object.SubscriptionRef = "sub-42"
	p.Object.CapturedAt = "2026-08-01T10:00:00Z"
	p.Object.Metadata = map[string]string{
		"subject_id": "driver-1",
		"purchase":   PurchaseMembership,
	}
	return p
}

func TestFromWebhook_MembershipCheckout(t *testing.T) {
	event, err := FromWebhook(membershipCheckoutPayload())
	require.NoError(t, err)

	assert.Equal(t, models.EventActivation, event.Kind)
	assert.Equal(t, "driver-1", event.SubjectID)
	assert.Equal(t, "sub-42", event.SubscriptionRef)
	assert.Equal(t, time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC), event.ValidFrom)
}

func TestFromWebhook_UnlockCheckout(t *testing.T) {
	p := &WebhookPayload{Event: PaymentSucceeded}
	p.Object.ID = "pay-777"
	p.Object.Amount.Value = "150.00"
	p.Object.Amount.Currency = "RUB"
	p.Object.Metadata = map[string]string{
		"subject_id":     "driver-1",
		"purchase":       PurchaseUnlock,
		"beneficiary_id": "passenger-9",
	}

	event, err := FromWebhook(p)
	require.NoError(t, err)

	assert.Equal(t, models.EventUnlock, event.Kind)
	assert.Equal(t, "driver-1", event.SubjectID)
	assert.Equal(t, "passenger-9", event.BeneficiaryID)
	assert.Equal(t, int64(15000), event.Amount)
	assert.Equal(t, "RUB", event.Currency)
	assert.Equal(t, "pay-777", event.SessionRef)
}

func TestFromWebhook_RenewalDiscriminator(t *testing.T) {
	tests := []struct {
		name     string
		reason   string
		subject  string
		wantKind models.EventKind
		wantErr  bool
	}{
		{
			name:     "продление цикла",
			reason:   ReasonCycleRenewal,
			wantKind: models.EventRenewalSucceeded,
		},
		{
			name:     "первая покупка идёт путём активации",
			reason:   ReasonInitialPurchase,
			subject:  "driver-1",
			wantKind: models.EventActivation,
		},
		{
			name:    "неизвестная причина не считается продлением",
			reason:  "renewal-ish",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &WebhookPayload{Event: SubscriptionChargeSucceeded}
			p.Object.SubscriptionRef = "sub-42"
			p.Object.Reason = tt.reason
			p.Object.PeriodAnchor = "2026-09-01T00:00:00Z"
			p.Object.CapturedAt = "2026-09-01T00:00:00Z"
			if tt.subject != "" {
				p.Object.Metadata = map[string]string{"subject_id": tt.subject}
			}

			event, err := FromWebhook(p)
			if tt.wantErr {
				require.ErrorIs(t, err, models.ErrMalformedEvent)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, event.Kind)
		})
	}
}

func TestFromWebhook_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *WebhookPayload)
	}{
		{
			name: "чекаут без subject_id",
			mutate: func(p *WebhookPayload) {
				delete(p.Object.Metadata, "subject_id")
			},
		},
		{
			name: "членство без subscription_ref",
			mutate: func(p *WebhookPayload) {
				p.Object.SubscriptionRef = ""
			},
		},
		{
			name: "членство с нечитаемым captured_at",
			mutate: func(p *WebhookPayload) {
				p.Object.CapturedAt = "yesterday"
			},
		},
		{
			name: "неизвестный вид покупки",
			mutate: func(p *WebhookPayload) {
				p.Object.Metadata["purchase"] = "gift"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := membershipCheckoutPayload()
			tt.mutate(p)

			_, err := FromWebhook(p)
			require.ErrorIs(t, err, models.ErrMalformedEvent)
		})
	}
}

func TestFromWebhook_RefKeyedWithoutRef(t *testing.T) {
	for _, event := range []string{SubscriptionChargeFailed, SubscriptionCanceled} {
		p := &WebhookPayload{Event: event}

		_, err := FromWebhook(p)
		require.ErrorIs(t, err, models.ErrMalformedEvent, "event %s", event)
	}
}

func TestFromWebhook_UnsupportedEvent(t *testing.T) {
	p := &WebhookPayload{Event: "payment.waiting_for_capture"}

	_, err := FromWebhook(p)
	assert.ErrorIs(t, err, ErrUnsupportedEvent)
}

func TestFromConfirm(t *testing.T) {
	tests := []struct {
		name     string
		req      ConfirmRequest
		wantKind models.EventKind
		wantErr  bool
	}{
		{
			name: "подтверждение членства",
			req: ConfirmRequest{
				SubjectID:       "driver-1",
				Purchase:        PurchaseMembership,
				SubscriptionRef: "sub-42",
				PaidAt:          "2026-08-01T10:00:00Z",
			},
			wantKind: models.EventActivation,
		},
		{
			name: "подтверждение открытия контакта",
			req: ConfirmRequest{
				SubjectID:     "driver-1",
				Purchase:      PurchaseUnlock,
				BeneficiaryID: "passenger-9",
				SessionRef:    "pay-777",
				Amount:        15000,
				Currency:      "RUB",
			},
			wantKind: models.EventUnlock,
		},
		{
			name: "членство без subscription_ref",
			req: ConfirmRequest{
				SubjectID: "driver-1",
				Purchase:  PurchaseMembership,
				PaidAt:    "2026-08-01T10:00:00Z",
			},
			wantErr: true,
		},
		{
			name: "открытие без beneficiary_id",
			req: ConfirmRequest{
				SubjectID:  "driver-1",
				Purchase:   PurchaseUnlock,
				SessionRef: "pay-777",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := FromConfirm(&tt.req)
			if tt.wantErr {
				require.ErrorIs(t, err, models.ErrMalformedEvent)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, event.Kind)
			assert.Equal(t, tt.req.SubjectID, event.SubjectID)
		})
	}
}

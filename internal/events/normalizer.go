package events

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/ridelink/entitlement-engine/internal/models"
)

// ErrUnsupportedEvent тип события провайдера, который движок не
// обрабатывает. Граничный слой подтверждает такие события без применения.
var ErrUnsupportedEvent = errors.New("unsupported event type")

// FromWebhook приводит webhook провайдера к нормализованному событию.
// Отсутствие обязательных корреляционных полей — ErrMalformedEvent:
// провайдеру нужен однозначный неретраибельный ответ, а не тихий дроп.
func FromWebhook(p *WebhookPayload) (*models.PaymentEvent, error) {
	const op = "events.FromWebhook"

	switch p.Event {
	case PaymentSucceeded:
		return fromCheckout(p)
	case SubscriptionChargeSucceeded:
		return fromChargeSucceeded(p)
	case SubscriptionChargeFailed:
		if p.Object.SubscriptionRef == "" {
			return nil, fmt.Errorf("%s: charge_failed without subscription_ref: %w", op, models.ErrMalformedEvent)
		}
		return &models.PaymentEvent{
			Kind:            models.EventRenewalFailed,
			SubscriptionRef: p.Object.SubscriptionRef,
		}, nil
	case SubscriptionCanceled:
		if p.Object.SubscriptionRef == "" {
			return nil, fmt.Errorf("%s: canceled without subscription_ref: %w", op, models.ErrMalformedEvent)
		}
		return &models.PaymentEvent{
			Kind:            models.EventCancellation,
			SubscriptionRef: p.Object.SubscriptionRef,
		}, nil
	default:
		return nil, fmt.Errorf("%s: %q: %w", op, p.Event, ErrUnsupportedEvent)
	}
}

func fromCheckout(p *WebhookPayload) (*models.PaymentEvent, error) {
	const op = "events.fromCheckout"

	subjectID := p.Object.Metadata["subject_id"]
	if subjectID == "" {
		return nil, fmt.Errorf("%s: checkout without subject_id: %w", op, models.ErrMalformedEvent)
	}

	switch p.Object.Metadata["purchase"] {
	case PurchaseMembership:
		if p.Object.SubscriptionRef == "" {
			return nil, fmt.Errorf("%s: membership checkout without subscription_ref: %w", op, models.ErrMalformedEvent)
		}
		validFrom, err := time.Parse(time.RFC3339, p.Object.CapturedAt)
		if err != nil {
			return nil, fmt.Errorf("%s: bad captured_at %q: %w", op, p.Object.CapturedAt, models.ErrMalformedEvent)
		}
		return &models.PaymentEvent{
			Kind:            models.EventActivation,
			SubjectID:       subjectID,
			SubscriptionRef: p.Object.SubscriptionRef,
			ValidFrom:       validFrom,
		}, nil
	case PurchaseUnlock:
		beneficiaryID := p.Object.Metadata["beneficiary_id"]
		if beneficiaryID == "" {
			return nil, fmt.Errorf("%s: unlock without beneficiary_id: %w", op, models.ErrMalformedEvent)
		}
		amount, err := parseAmount(p.Object.Amount.Value)
		if err != nil {
			return nil, fmt.Errorf("%s: bad amount %q: %w", op, p.Object.Amount.Value, models.ErrMalformedEvent)
		}
		return &models.PaymentEvent{
			Kind:          models.EventUnlock,
			SubjectID:     subjectID,
			BeneficiaryID: beneficiaryID,
			Amount:        amount,
			Currency:      p.Object.Amount.Currency,
			SessionRef:    p.Object.ID,
		}, nil
	default:
		return nil, fmt.Errorf("%s: unknown purchase %q: %w", op, p.Object.Metadata["purchase"], models.ErrMalformedEvent)
	}
}

func fromChargeSucceeded(p *WebhookPayload) (*models.PaymentEvent, error) {
	const op = "events.fromChargeSucceeded"

	if p.Object.SubscriptionRef == "" {
		return nil, fmt.Errorf("%s: charge without subscription_ref: %w", op, models.ErrMalformedEvent)
	}

	switch p.Object.Reason {
	case ReasonInitialPurchase:
		subjectID := p.Object.Metadata["subject_id"]
		if subjectID == "" {
			return nil, fmt.Errorf("%s: initial purchase without subject_id: %w", op, models.ErrMalformedEvent)
		}
		validFrom, err := time.Parse(time.RFC3339, p.Object.CapturedAt)
		if err != nil {
			return nil, fmt.Errorf("%s: bad captured_at %q: %w", op, p.Object.CapturedAt, models.ErrMalformedEvent)
		}
		return &models.PaymentEvent{
			Kind:            models.EventActivation,
			SubjectID:       subjectID,
			SubscriptionRef: p.Object.SubscriptionRef,
			ValidFrom:       validFrom,
		}, nil
	case ReasonCycleRenewal:
		anchor, err := time.Parse(time.RFC3339, p.Object.PeriodAnchor)
		if err != nil {
			return nil, fmt.Errorf("%s: bad period_anchor %q: %w", op, p.Object.PeriodAnchor, models.ErrMalformedEvent)
		}
		return &models.PaymentEvent{
			Kind:            models.EventRenewalSucceeded,
			SubscriptionRef: p.Object.SubscriptionRef,
			PeriodAnchor:    anchor,
		}, nil
	default:
		// Причина сверяется с таблицей точным совпадением: неизвестное
		// значение нельзя молча посчитать продлением.
		return nil, fmt.Errorf("%s: unknown reason %q: %w", op, p.Object.Reason, models.ErrMalformedEvent)
	}
}

// FromConfirm приводит синхронное подтверждение клиента к тому же
// нормализованному словарю, что и webhook, сохраняя корреляционные ключи.
func FromConfirm(r *ConfirmRequest) (*models.PaymentEvent, error) {
	const op = "events.FromConfirm"

	if r.SubjectID == "" {
		return nil, fmt.Errorf("%s: confirm without subject_id: %w", op, models.ErrMalformedEvent)
	}

	switch r.Purchase {
	case PurchaseMembership:
		if r.SubscriptionRef == "" {
			return nil, fmt.Errorf("%s: membership confirm without subscription_ref: %w", op, models.ErrMalformedEvent)
		}
		validFrom, err := time.Parse(time.RFC3339, r.PaidAt)
		if err != nil {
			return nil, fmt.Errorf("%s: bad paid_at %q: %w", op, r.PaidAt, models.ErrMalformedEvent)
		}
		return &models.PaymentEvent{
			Kind:            models.EventActivation,
			SubjectID:       r.SubjectID,
			SubscriptionRef: r.SubscriptionRef,
			ValidFrom:       validFrom,
		}, nil
	case PurchaseUnlock:
		if r.BeneficiaryID == "" || r.SessionRef == "" {
			return nil, fmt.Errorf("%s: unlock confirm without beneficiary_id or session_ref: %w", op, models.ErrMalformedEvent)
		}
		return &models.PaymentEvent{
			Kind:          models.EventUnlock,
			SubjectID:     r.SubjectID,
			BeneficiaryID: r.BeneficiaryID,
			Amount:        r.Amount,
			Currency:      r.Currency,
			SessionRef:    r.SessionRef,
		}, nil
	default:
		return nil, fmt.Errorf("%s: unknown purchase %q: %w", op, r.Purchase, models.ErrMalformedEvent)
	}
}

func parseAmount(value string) (int64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}
	return int64(math.Round(v * 100)), nil
}

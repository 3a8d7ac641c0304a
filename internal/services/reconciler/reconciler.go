// Package reconciler содержит машину состояний членства и единственную
// точку записи платёжных событий. События приходят из независимых
// источников минимум по одному разу и в произвольном порядке; сверка
// всегда вычисляет новое состояние как функцию от (текущая запись,
// событие) и пишет его атомарным примитивом хранилища, поэтому повторная
// доставка сходится, а не ошибается.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ridelink/entitlement-engine/internal/cache"
	"github.com/ridelink/entitlement-engine/internal/lib/sl"
	"github.com/ridelink/entitlement-engine/internal/models"
	"github.com/ridelink/entitlement-engine/internal/rabbitmq"
)

var applyOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "entitlement_apply_outcomes_total",
	Help: "Outcomes of payment event application by event kind.",
}, []string{"event", "outcome"})

func init() {
	prometheus.MustRegister(applyOutcomes)
}

// Repository определяет примитивы хранилища, нужные сверке.
type Repository interface {
	// ApplyActivation применяет активацию upsert-ом, false — повтор.
	ApplyActivation(ctx context.Context, m models.Membership) (bool, error)
	// ApplyRenewal продлевает членство по ref, false — повтор или неизвестный ref.
	ApplyRenewal(ctx context.Context, ref string, now, periodAnchor time.Time) (string, bool, error)
	// ApplyRenewalFailure переводит членство в past_due.
	ApplyRenewalFailure(ctx context.Context, ref string, now time.Time) (string, bool, error)
	// ApplyCancellation переводит членство в canceled.
	ApplyCancellation(ctx context.Context, ref string, now time.Time) (string, bool, error)
	// HasMembershipByRef сообщает, известна ли подписка.
	HasMembershipByRef(ctx context.Context, ref string) (bool, error)
	// SaveUnlockPayment вставляет платёж за открытие, false — дубликат.
	SaveUnlockPayment(ctx context.Context, p models.UnlockPayment) (bool, error)
}

// Cache описывает инвалидацию кеша читающей стороны.
type Cache interface {
	Invalidate(ctx context.Context, key string) error
}

// Publisher публикует уведомления об изменениях членства.
type Publisher interface {
	PublishMembershipChanged(msg rabbitmq.MembershipChanged) error
}

// Service сверка платёжных событий с хранилищем членств.
type Service struct {
	repo      Repository
	cache     Cache
	publisher Publisher
	log       *slog.Logger
}

// New создает сервис сверки.
func New(repo Repository, cache Cache, publisher Publisher, log *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		cache:     cache,
		publisher: publisher,
		log:       log,
	}
}

// ApplyPaymentEvent применяет нормализованное событие к хранилищу.
// Единственная ретраибельная ошибка — недоступность хранилища, она
// возвращается как есть, чтобы граничный слой ответил провайдеру 5xx.
// Повторные доставки и события по неизвестным подпискам — успехи с
// исходами duplicate и unmatched: они логируются и попадают в метрики,
// но никогда не тревожат.
func (s *Service) ApplyPaymentEvent(ctx context.Context, event models.PaymentEvent, now time.Time) (*models.ApplyResult, error) {
	const op = "reconciler.ApplyPaymentEvent"
	log := s.log.With(slog.String("op", op), slog.String("event", string(event.Kind)))

	var result *models.ApplyResult
	var err error

	switch event.Kind {
	case models.EventActivation:
		result, err = s.applyActivation(ctx, event, now)
	case models.EventRenewalSucceeded:
		result, err = s.applyByRef(ctx, event, models.StatusActive, now, func() (string, bool, error) {
			return s.repo.ApplyRenewal(ctx, event.SubscriptionRef, now, event.PeriodAnchor)
		})
	case models.EventRenewalFailed:
		result, err = s.applyByRef(ctx, event, models.StatusPastDue, now, func() (string, bool, error) {
			return s.repo.ApplyRenewalFailure(ctx, event.SubscriptionRef, now)
		})
	case models.EventCancellation:
		result, err = s.applyByRef(ctx, event, models.StatusCanceled, now, func() (string, bool, error) {
			return s.repo.ApplyCancellation(ctx, event.SubscriptionRef, now)
		})
	case models.EventUnlock:
		result, err = s.applyUnlock(ctx, event)
	default:
		return nil, fmt.Errorf("%s: unknown event kind %q: %w", op, event.Kind, models.ErrMalformedEvent)
	}

	if err != nil {
		return nil, err
	}

	applyOutcomes.WithLabelValues(string(event.Kind), string(result.Outcome)).Inc()
	switch result.Outcome {
	case models.OutcomeApplied:
		log.Info("event applied", slog.String("subject_id", result.SubjectID))
	case models.OutcomeDuplicate:
		log.Info("duplicate delivery ignored", slog.String("subject_id", result.SubjectID))
	case models.OutcomeUnmatched:
		log.Warn("event matched no membership", slog.String("subscription_ref", event.SubscriptionRef))
	}
	return result, nil
}

func (s *Service) applyActivation(ctx context.Context, event models.PaymentEvent, now time.Time) (*models.ApplyResult, error) {
	const op = "reconciler.applyActivation"

	if event.SubjectID == "" || event.SubscriptionRef == "" {
		return nil, fmt.Errorf("%s: missing subject_id or subscription_ref: %w", op, models.ErrMalformedEvent)
	}

	ref := event.SubscriptionRef
	m := models.Membership{
		SubjectID:               event.SubjectID,
		Status:                  models.StatusActive,
		Origin:                  models.OriginPaid,
		ExternalSubscriptionRef: &ref,
		ExpiresAt:               models.AddTerm(event.ValidFrom),
		UpdatedAt:               now,
	}

	applied, err := s.repo.ApplyActivation(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !applied {
		return &models.ApplyResult{Outcome: models.OutcomeDuplicate, SubjectID: event.SubjectID}, nil
	}

	s.afterMembershipWrite(ctx, event.SubjectID, models.StatusActive, event.Kind, now)
	return &models.ApplyResult{Outcome: models.OutcomeApplied, SubjectID: event.SubjectID}, nil
}

// applyByRef общий путь для событий, несущих только подписочный ref.
// Ноль затронутых строк означает либо повтор уже применённого события,
// либо подписку, которой движок не видел; различаются проверкой
// существования ref.
func (s *Service) applyByRef(ctx context.Context, event models.PaymentEvent, newStatus models.MembershipStatus, now time.Time, apply func() (string, bool, error)) (*models.ApplyResult, error) {
	const op = "reconciler.applyByRef"

	if event.SubscriptionRef == "" {
		return nil, fmt.Errorf("%s: missing subscription_ref: %w", op, models.ErrMalformedEvent)
	}

	subjectID, applied, err := apply()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if applied {
		s.afterMembershipWrite(ctx, subjectID, newStatus, event.Kind, now)
		return &models.ApplyResult{Outcome: models.OutcomeApplied, SubjectID: subjectID}, nil
	}

	exists, err := s.repo.HasMembershipByRef(ctx, event.SubscriptionRef)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if exists {
		return &models.ApplyResult{Outcome: models.OutcomeDuplicate}, nil
	}
	return &models.ApplyResult{Outcome: models.OutcomeUnmatched}, nil
}

func (s *Service) applyUnlock(ctx context.Context, event models.PaymentEvent) (*models.ApplyResult, error) {
	const op = "reconciler.applyUnlock"

	if event.SubjectID == "" || event.BeneficiaryID == "" {
		return nil, fmt.Errorf("%s: missing subject_id or beneficiary_id: %w", op, models.ErrMalformedEvent)
	}

	inserted, err := s.repo.SaveUnlockPayment(ctx, models.UnlockPayment{
		SubjectID:     event.SubjectID,
		BeneficiaryID: event.BeneficiaryID,
		Amount:        event.Amount,
		Currency:      event.Currency,
		SessionRef:    event.SessionRef,
		Status:        models.UnlockCompleted,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	// Конфликт естественного ключа — та же покупка, о которой уже
	// сообщил другой источник. Это успех, а не сбой.
	if !inserted {
		return &models.ApplyResult{Outcome: models.OutcomeDuplicate, SubjectID: event.SubjectID}, nil
	}
	return &models.ApplyResult{Outcome: models.OutcomeApplied, SubjectID: event.SubjectID}, nil
}

// afterMembershipWrite инвалидирует кеш читающей стороны и публикует
// уведомление. Оба действия выполняются по возможности: их сбой не
// откатывает уже применённое событие.
func (s *Service) afterMembershipWrite(ctx context.Context, subjectID string, status models.MembershipStatus, kind models.EventKind, now time.Time) {
	if err := s.cache.Invalidate(ctx, cache.EntitlementKey(subjectID)); err != nil {
		s.log.Warn("failed to invalidate entitlement cache",
			slog.String("subject_id", subjectID), sl.Err(err))
	}

	if err := s.publisher.PublishMembershipChanged(rabbitmq.MembershipChanged{
		SubjectID:  subjectID,
		Status:     string(status),
		Event:      string(kind),
		OccurredAt: now,
	}); err != nil {
		s.log.Warn("failed to publish membership change",
			slog.String("subject_id", subjectID), sl.Err(err))
	}
}

// IsRetryable сообщает, должен ли граничный слой ответить провайдеру
// ретраибельным статусом. Неретраибельны только непроцессируемые события;
// всё остальное — недоступность хранилища.
func IsRetryable(err error) bool {
	return err != nil && !errors.Is(err, models.ErrMalformedEvent)
}

package models

import (
	"errors"
	"time"
)

// ErrMalformedEvent входящее событие не содержит обязательных
// корреляционных полей и не может быть обработано. Граничный слой обязан
// вернуть провайдеру неретраибельный статус, а не молча отбросить событие.
var ErrMalformedEvent = errors.New("malformed event")

// ErrMembershipNotFound членство для субъекта не заводилось.
var ErrMembershipNotFound = errors.New("membership not found")

// EventKind вид нормализованного платёжного события.
type EventKind string

const (
	// EventActivation — завершённая покупка членства.
	EventActivation EventKind = "activation_requested"
	// EventRenewalSucceeded — успешное списание за очередной цикл.
	EventRenewalSucceeded EventKind = "renewal_succeeded"
	// EventRenewalFailed — неудачное списание за очередной цикл.
	EventRenewalFailed EventKind = "renewal_failed"
	// EventCancellation — отмена автопродления.
	EventCancellation EventKind = "cancellation_requested"
	// EventUnlock — разовый платёж за открытие контакта.
	EventUnlock EventKind = "unlock_requested"
)

// PaymentEvent нормализованное платёжное событие — единый словарь, в
// который нормализатор сводит три разнородных входящих формы (webhook
// провайдера, синхронное подтверждение клиента, поток уведомлений о
// продлениях). Заполненность полей зависит от вида события.
type PaymentEvent struct {
	Kind EventKind

	// SubjectID водитель. Обязателен для activation и unlock; события
	// продления и отмены несут только SubscriptionRef.
	SubjectID string

	// SubscriptionRef идентификатор подписки у провайдера.
	SubscriptionRef string

	// ValidFrom начало оплаченного срока (activation).
	ValidFrom time.Time

	// PeriodAnchor начало оплаченного цикла из счёта провайдера
	// (renewal_succeeded). Служит ключом дедупликации повторных доставок.
	PeriodAnchor time.Time

	// Поля разового платежа (unlock).
	BeneficiaryID string
	Amount        int64
	Currency      string
	SessionRef    string
}

// ApplyOutcome исход применения события к хранилищу.
type ApplyOutcome string

const (
	// OutcomeApplied — событие изменило состояние.
	OutcomeApplied ApplyOutcome = "applied"
	// OutcomeDuplicate — повторная доставка уже применённого события,
	// состояние не изменилось. Это успех, а не ошибка.
	OutcomeDuplicate ApplyOutcome = "duplicate"
	// OutcomeUnmatched — событие продления или отмены не нашло членства
	// по SubscriptionRef. Подтверждается провайдеру, чтобы остановить
	// повторные доставки; состояние задаст более поздняя активация.
	OutcomeUnmatched ApplyOutcome = "unmatched"
)

// ApplyResult результат ApplyPaymentEvent.
type ApplyResult struct {
	Outcome   ApplyOutcome `json:"outcome"`
	SubjectID string       `json:"subject_id,omitempty"`
}

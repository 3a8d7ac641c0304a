// Package events нормализует разнородные входящие платёжные уведомления
// в единый внутренний словарь событий. Пакет не ходит в хранилище и не
// имеет побочных эффектов: это чистое отображение формы в форму.
package events

// Имена событий провайдера, приходящие в webhook.
const (
	// PaymentSucceeded — завершённый разовый чекаут (членство или
	// открытие контакта, различаются по metadata.purchase).
	PaymentSucceeded = "payment.succeeded"
	// SubscriptionChargeSucceeded — успешное списание по подписке.
	// Поле reason различает первую покупку и продление цикла.
	SubscriptionChargeSucceeded = "subscription.charge_succeeded"
	// SubscriptionChargeFailed — неудачное списание по подписке.
	SubscriptionChargeFailed = "subscription.charge_failed"
	// SubscriptionCanceled — отмена автопродления.
	SubscriptionCanceled = "subscription.canceled"
)

// Значения metadata.purchase в разовом чекауте.
const (
	PurchaseMembership = "membership"
	PurchaseUnlock     = "unlock"
)

// Значения reason в списаниях по подписке. Первая покупка и продление
// различаются точным совпадением с таблицей, а не подстрокой в
// вендорском enum: молчаливая классификация первой покупки как продления
// недозаполнила бы срок членства.
const (
	ReasonInitialPurchase = "initial_purchase"
	ReasonCycleRenewal    = "cycle_renewal"
)

// WebhookPayload подписанное уведомление платёжного провайдера.
// Проверка подписи выполняется граничным слоем до нормализации.
type WebhookPayload struct {
	Event  string `json:"event"`
	Object struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Amount struct {
			Value    string `json:"value"`    // сумма строкой, например "100.00"
			Currency string `json:"currency"`
		} `json:"amount"`
		SubscriptionRef string            `json:"subscription_ref"`
		Reason          string            `json:"reason"`
		PeriodAnchor    string            `json:"period_anchor"` // RFC3339
		CapturedAt      string            `json:"captured_at"`   // RFC3339
		Metadata        map[string]string `json:"metadata"`      // subject_id, purchase, beneficiary_id
	} `json:"object"`
}

// ConfirmRequest синхронное подтверждение покупки, отправляемое клиентом
// после редиректа с чекаута. Несёт те же корреляционные идентификаторы,
// что и будущий webhook, и обязано быть с ним идемпотентным.
type ConfirmRequest struct {
	SubjectID       string `json:"subject_id" validate:"required"`
	Purchase        string `json:"purchase" validate:"required"` // membership | unlock
	SubscriptionRef string `json:"subscription_ref"`
	SessionRef      string `json:"session_ref"`
	BeneficiaryID   string `json:"beneficiary_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	PaidAt          string `json:"paid_at"` // RFC3339
}

// Package models содержит доменные структуры движка сверки членств:
// членство водителя, разовые платежи за "открытие" контакта и счётчики
// использования квоты, а также нормализованный словарь платёжных событий.
package models

import "time"

// MembershipStatus статус членства водителя.
type MembershipStatus string

const (
	// StatusNone — членство не оформлялось.
	StatusNone MembershipStatus = "none"
	// StatusActive — членство оплачено и продлевается.
	StatusActive MembershipStatus = "active"
	// StatusPastDue — последнее списание не прошло, срок ещё не истёк.
	StatusPastDue MembershipStatus = "past_due"
	// StatusCanceled — автопродление отменено, доступ до конца срока.
	StatusCanceled MembershipStatus = "canceled"
)

// MembershipOrigin источник активации членства.
type MembershipOrigin string

const (
	// OriginPaid — активировано платёжным провайдером.
	OriginPaid MembershipOrigin = "paid"
	// OriginGranted — выдано вручную администратором. Автоматическая
	// сверка никогда не перезаписывает этот источник.
	OriginGranted MembershipOrigin = "granted"
)

// Membership запись членства, одна на водителя (subject).
// ExternalSubscriptionRef — идентификатор подписки у платёжного провайдера,
// по нему ищутся события продления и отмены, не несущие subject_id.
type Membership struct {
	SubjectID               string
	Status                  MembershipStatus
	Origin                  MembershipOrigin
	ExternalSubscriptionRef *string
	ExpiresAt               time.Time
	UpdatedAt               time.Time
}

// EntitledAt сообщает, даёт ли членство доступ в момент now.
// Проверяются оба поля: статус и срок. Запись со статусом canceled или
// past_due сохраняет доступ до конца оплаченного срока — отмена и
// неудачное продление не отзывают уже оплаченный период.
func (m *Membership) EntitledAt(now time.Time) bool {
	if m == nil || m.Status == StatusNone {
		return false
	}
	return m.ExpiresAt.After(now)
}

// AddTerm прибавляет срок оплаченного членства (один год) к t.
func AddTerm(t time.Time) time.Time {
	return t.AddDate(1, 0, 0)
}

// Entitlement ответ на запрос чтения членства: текущий статус, срок
// и производный флаг доступа на момент запроса.
type Entitlement struct {
	SubjectID string           `json:"subject_id"`
	Status    MembershipStatus `json:"status"`
	Origin    MembershipOrigin `json:"origin,omitempty"`
	ExpiresAt *time.Time       `json:"expires_at,omitempty"`
	Entitled  bool             `json:"entitled"`
}

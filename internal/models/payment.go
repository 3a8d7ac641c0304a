package models

import "time"

// UnlockPaymentStatus статус разового платежа за открытие контакта.
type UnlockPaymentStatus string

const (
	// UnlockCompleted — платёж прошёл.
	UnlockCompleted UnlockPaymentStatus = "completed"
	// UnlockFailed — платёж не прошёл.
	UnlockFailed UnlockPaymentStatus = "failed"
)

// UnlockPayment разовый платёж водителя за открытие контакта пассажира.
// Естественный ключ (SubjectID, BeneficiaryID) гарантирует не более одной
// записи на пару плательщик-цель, сколько бы раз событие ни было доставлено:
// webhook провайдера и синхронное подтверждение клиента сообщают об одной
// и той же покупке.
type UnlockPayment struct {
	SubjectID     string              `json:"subject_id"`
	BeneficiaryID string              `json:"beneficiary_id"`
	Amount        int64               `json:"amount"` // в минорных единицах валюты
	Currency      string              `json:"currency"`
	SessionRef    string              `json:"session_ref,omitempty"`
	Status        UnlockPaymentStatus `json:"status"`
	CreatedAt     time.Time           `json:"created_at"`
}

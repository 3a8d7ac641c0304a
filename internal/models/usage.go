package models

import "time"

// UsageCounter счётчик использования метрируемой функции за календарный
// месяц. Естественный ключ (SubjectID, PeriodKey); старые периоды
// сохраняются для аналитики и не чистятся этим сервисом.
type UsageCounter struct {
	SubjectID string
	PeriodKey string
	Count     int
}

// DenyReason причина отказа в резервировании квоты.
type DenyReason string

const (
	// DenyNotEligible — субъект вообще не имеет права на функцию
	// (например, не является водителем). Счётчик не трогается.
	DenyNotEligible DenyReason = "not_eligible"
	// DenyQuotaExceeded — месячный лимит выбран, сброс на границе месяца.
	DenyQuotaExceeded DenyReason = "quota_exceeded"
)

// QuotaDecision результат проверки и резервирования квоты.
// Remaining равен -1 для безлимитного тарифа. NextReset заполняется
// при отказе quota_exceeded, чтобы вызывающая сторона могла показать
// дату сброса.
type QuotaDecision struct {
	Allowed   bool       `json:"allowed"`
	Limit     int        `json:"limit,omitempty"`
	Remaining int        `json:"remaining"`
	Reason    DenyReason `json:"reason,omitempty"`
	NextReset *time.Time `json:"next_reset,omitempty"`
}

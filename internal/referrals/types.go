package referrals

// DriverProfile ответ справочника по субъекту.
type DriverProfile struct {
	SubjectID     string `json:"subject_id"`
	IsDriver      bool   `json:"is_driver"`
	ReferralTotal int    `json:"referral_total"`
}

// Package quota решает, разрешено ли субъекту метрируемое действие, и
// фиксирует потребление. Тариф — чистая функция от числа рефералов и
// действующего членства; текущее время всегда приходит параметром, чтобы
// расчёт оставался воспроизводимым в тестах.
package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ridelink/entitlement-engine/internal/lib/period"
	"github.com/ridelink/entitlement-engine/internal/models"
	"github.com/ridelink/entitlement-engine/internal/referrals"
)

// Unlimited значение Remaining для безлимитного тарифа.
const Unlimited = -1

// Месячные лимиты тарифов.
const (
	LimitNoMembership = 4
	LimitBase         = 30
	LimitBronze       = 50
	LimitSilver       = 100
)

// Repository определяет методы хранилища, нужные квотированию.
type Repository interface {
	// GetMembership возвращает членство субъекта.
	GetMembership(ctx context.Context, subjectID string) (*models.Membership, error)
	// ReserveUsage атомарно резервирует использование, false — лимит выбран.
	ReserveUsage(ctx context.Context, subjectID, periodKey string, limit int) (int, bool, error)
}

// Directory описывает справочник водителей — внешний источник роли и
// счётчика рефералов.
type Directory interface {
	GetDriverProfile(ctx context.Context, subjectID string) (*referrals.DriverProfile, error)
}

// Service квотирование метрируемых действий.
type Service struct {
	repo      Repository
	directory Directory
	log       *slog.Logger
}

// New создает сервис квотирования.
func New(repo Repository, directory Directory, log *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		directory: directory,
		log:       log,
	}
}

// Tier возвращает месячный лимит для числа рефералов и флага
// действующего членства. Второе значение — безлимитный тариф.
func Tier(referralTotal int, member bool) (int, bool) {
	if !member {
		return LimitNoMembership, false
	}
	switch {
	case referralTotal >= 51:
		return 0, true
	case referralTotal >= 11:
		return LimitSilver, false
	case referralTotal >= 1:
		return LimitBronze, false
	default:
		return LimitBase, false
	}
}

// CheckAndReserve проверяет право субъекта на метрируемое действие и при
// разрешении атомарно резервирует одно использование в текущем периоде.
// Отказы not_eligible и quota_exceeded — бизнес-решения, а не ошибки;
// ошибкой возвращается только сбой хранилища или справочника.
func (s *Service) CheckAndReserve(ctx context.Context, subjectID string, now time.Time) (*models.QuotaDecision, error) {
	const op = "quota.CheckAndReserve"
	log := s.log.With(slog.String("op", op), slog.String("subject_id", subjectID))

	profile, err := s.directory.GetDriverProfile(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !profile.IsDriver {
		log.Info("subject is not eligible for metered feature")
		return &models.QuotaDecision{
			Allowed: false,
			Reason:  models.DenyNotEligible,
		}, nil
	}

	member := false
	membership, err := s.repo.GetMembership(ctx, subjectID)
	if err != nil && !errors.Is(err, models.ErrMembershipNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err == nil {
		member = membership.EntitledAt(now)
	}

	limit, unlimited := Tier(profile.ReferralTotal, member)
	if unlimited {
		// Безлимит не трогает счётчик вовсе.
		return &models.QuotaDecision{
			Allowed:   true,
			Remaining: Unlimited,
		}, nil
	}

	count, reserved, err := s.repo.ReserveUsage(ctx, subjectID, period.Key(now), limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !reserved {
		nextReset := period.NextReset(now)
		log.Info("quota exceeded",
			slog.Int("limit", limit), slog.Time("next_reset", nextReset))
		return &models.QuotaDecision{
			Allowed:   false,
			Limit:     limit,
			Reason:    models.DenyQuotaExceeded,
			NextReset: &nextReset,
		}, nil
	}

	return &models.QuotaDecision{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - count,
	}, nil
}

// Package entitlement обслуживает читающую сторону: отдаёт снимок
// членства для дашбордов и личного кабинета. Снимки кешируются с коротким
// TTL; сверка инвалидирует ключ при каждом применённом событии.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	cachekeys "github.com/ridelink/entitlement-engine/internal/cache"
	"github.com/ridelink/entitlement-engine/internal/lib/sl"
	"github.com/ridelink/entitlement-engine/internal/models"
)

// Снимок живёт недолго: кеш защищает от шквала чтений, а не заменяет
// хранилище.
const snapshotTTL = 5 * time.Minute

// Repository определяет чтение членства из хранилища.
type Repository interface {
	GetMembership(ctx context.Context, subjectID string) (*models.Membership, error)
	ListUnlockPayments(ctx context.Context, subjectID string) ([]*models.UnlockPayment, error)
}

// Cache описывает методы кеширования снимков.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

// Service читающая сторона движка сверки.
type Service struct {
	repo  Repository
	cache Cache
	log   *slog.Logger
}

// New создает сервис чтения членств.
func New(repo Repository, cache Cache, log *slog.Logger) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

// GetEntitlement возвращает статус членства и производный флаг доступа
// на момент now. Кешируется снимок записи, а не решение: флаг доступа
// зависит от времени запроса и вычисляется заново при каждом чтении —
// запись может быть active в хранилище и уже просроченной по часам.
func (s *Service) GetEntitlement(ctx context.Context, subjectID string, now time.Time) (*models.Entitlement, error) {
	const op = "entitlement.GetEntitlement"

	cacheKey := cachekeys.EntitlementKey(subjectID)
	var snapshot *models.Membership
	found, err := s.cache.Get(ctx, cacheKey, &snapshot)
	if err != nil {
		s.log.Warn("failed to read entitlement cache", slog.String("key", cacheKey), sl.Err(err))
		found = false
	}

	if !found {
		snapshot, err = s.repo.GetMembership(ctx, subjectID)
		if errors.Is(err, models.ErrMembershipNotFound) {
			return &models.Entitlement{
				SubjectID: subjectID,
				Status:    models.StatusNone,
			}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		if err := s.cache.Set(ctx, cacheKey, snapshot, snapshotTTL); err != nil {
			s.log.Warn("failed to cache entitlement snapshot", slog.String("key", cacheKey), sl.Err(err))
		}
	}

	expiresAt := snapshot.ExpiresAt
	return &models.Entitlement{
		SubjectID: subjectID,
		Status:    snapshot.Status,
		Origin:    snapshot.Origin,
		ExpiresAt: &expiresAt,
		Entitled:  snapshot.EntitledAt(now),
	}, nil
}

// ListUnlocks возвращает купленные субъектом открытия контактов. Список
// читается напрямую из хранилища: им пользуется личный кабинет, шквала
// чтений тут нет.
func (s *Service) ListUnlocks(ctx context.Context, subjectID string) ([]*models.UnlockPayment, error) {
	const op = "entitlement.ListUnlocks"

	unlocks, err := s.repo.ListUnlockPayments(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return unlocks, nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ridelink/entitlement-engine/internal/models"
)

// GetMembership возвращает запись членства по subject_id.
// Отсутствие записи — models.ErrMembershipNotFound: для потребителей это
// эквивалент статуса none, а не сбой хранилища.
func (s *Storage) GetMembership(ctx context.Context, subjectID string) (*models.Membership, error) {
	const op = "storage.GetMembership"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT subject_id, status, origin, external_subscription_ref, expires_at, updated_at
			  FROM memberships WHERE subject_id = $1`
	row := s.DB.QueryRowContext(ctx, query, subjectID)

	var m models.Membership
	var ref sql.NullString
	if err := row.Scan(&m.SubjectID, &m.Status, &m.Origin, &ref, &m.ExpiresAt, &m.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrMembershipNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if ref.Valid {
		m.ExternalSubscriptionRef = &ref.String
	}
	return &m, nil
}

// ApplyActivation записывает активацию членства атомарным upsert-ом по
// subject_id. Операция задаёт целевое состояние, а не переход из
// предполагаемого: повторная доставка того же события сходится в no-op.
// Условие WHERE пропускает запись заново только из статусов none и
// canceled либо при новой подписке (другой external_subscription_ref) —
// повторная активация по той же подписке не укорачивает срок, уже
// продлённый событиями renewal. Колонка origin при конфликте не
// трогается: ручные гранты не перезаписываются автоматикой.
// Возвращает false, если upsert оказался повтором.
func (s *Storage) ApplyActivation(ctx context.Context, m models.Membership) (bool, error) {
	const op = "storage.ApplyActivation"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO memberships (subject_id, status, origin, external_subscription_ref, expires_at, updated_at)
			  VALUES ($1, 'active', 'paid', $2, $3, $4)
			  ON CONFLICT (subject_id) DO UPDATE
			  SET status = 'active',
			      external_subscription_ref = EXCLUDED.external_subscription_ref,
			      expires_at = EXCLUDED.expires_at,
			      last_period_anchor = NULL,
			      updated_at = GREATEST(memberships.updated_at, EXCLUDED.updated_at)
			  WHERE memberships.status IN ('none', 'canceled')
			     OR memberships.external_subscription_ref IS DISTINCT FROM EXCLUDED.external_subscription_ref`
	result, err := s.DB.ExecContext(ctx, query,
		m.SubjectID, m.ExternalSubscriptionRef, m.ExpiresAt, m.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return rowsAffected > 0, nil
}

// ApplyRenewal продлевает членство по external_subscription_ref:
// expires_at = GREATEST(expires_at, now) + срок. Арифметика выполняется
// в одном UPDATE, чтобы конкурентные доставки сериализовались на строке.
// PeriodAnchor счёта — ключ дедупликации: повтор с тем же якорем не
// продлит срок второй раз. Возвращает subject_id изменённой записи и
// false, если ни одна строка не подошла (повтор или неизвестный ref).
func (s *Storage) ApplyRenewal(ctx context.Context, ref string, now, periodAnchor time.Time) (string, bool, error) {
	const op = "storage.ApplyRenewal"
	select {
	case <-ctx.Done():
		return "", false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE memberships
			  SET status = 'active',
			      expires_at = GREATEST(expires_at, $2) + interval '1 year',
			      last_period_anchor = $3,
			      updated_at = GREATEST(updated_at, $2)
			  WHERE external_subscription_ref = $1
			    AND status IN ('active', 'past_due')
			    AND (last_period_anchor IS NULL OR last_period_anchor < $3)
			  RETURNING subject_id`
	var subjectID string
	err := s.DB.QueryRowContext(ctx, query, ref, now, periodAnchor).Scan(&subjectID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}
	return subjectID, true, nil
}

// ApplyRenewalFailure переводит членство в past_due, срок не меняется.
// Переход определён только из active, поэтому повтор события и доставка
// после отмены дают ноль строк.
func (s *Storage) ApplyRenewalFailure(ctx context.Context, ref string, now time.Time) (string, bool, error) {
	const op = "storage.ApplyRenewalFailure"
	select {
	case <-ctx.Done():
		return "", false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE memberships
			  SET status = 'past_due',
			      updated_at = GREATEST(updated_at, $2)
			  WHERE external_subscription_ref = $1
			    AND status = 'active'
			  RETURNING subject_id`
	var subjectID string
	err := s.DB.QueryRowContext(ctx, query, ref, now).Scan(&subjectID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}
	return subjectID, true, nil
}

// ApplyCancellation переводит членство в canceled. Срок не меняется:
// доступ гаснет естественно по expires_at, как у предоплаченного периода.
func (s *Storage) ApplyCancellation(ctx context.Context, ref string, now time.Time) (string, bool, error) {
	const op = "storage.ApplyCancellation"
	select {
	case <-ctx.Done():
		return "", false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE memberships
			  SET status = 'canceled',
			      updated_at = GREATEST(updated_at, $2)
			  WHERE external_subscription_ref = $1
			    AND status IN ('active', 'past_due')
			  RETURNING subject_id`
	var subjectID string
	err := s.DB.QueryRowContext(ctx, query, ref, now).Scan(&subjectID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}
	return subjectID, true, nil
}

// HasMembershipByRef сообщает, известна ли подписка провайдера.
// Используется, чтобы отличить повторную доставку от события по
// подписке, которой движок не видел.
func (s *Storage) HasMembershipByRef(ctx context.Context, ref string) (bool, error) {
	const op = "storage.HasMembershipByRef"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM memberships WHERE external_subscription_ref = $1)`
	if err := s.DB.QueryRowContext(ctx, query, ref).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

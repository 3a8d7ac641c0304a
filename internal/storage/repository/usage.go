package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ReserveUsage атомарно резервирует одно использование метрируемой
// функции в периоде. Чтение-инкремент-запись двумя запросами — известная
// гонка, незаметно раздающая лишнюю квоту при конкурентных вызовах,
// поэтому резервирование выполняется одним условным upsert-ом: строка
// создаётся при первом использовании, инкремент проходит только пока
// count < limit. Возвращает новое значение счётчика и false, если лимит
// уже выбран.
func (s *Storage) ReserveUsage(ctx context.Context, subjectID, periodKey string, limit int) (int, bool, error) {
	const op = "storage.ReserveUsage"
	select {
	case <-ctx.Done():
		return 0, false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO usage_counters (subject_id, period_key, count)
			  VALUES ($1, $2, 1)
			  ON CONFLICT (subject_id, period_key) DO UPDATE
			  SET count = usage_counters.count + 1
			  WHERE usage_counters.count < $3
			  RETURNING count`
	var count int
	err := s.DB.QueryRowContext(ctx, query, subjectID, periodKey, limit).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}
	return count, true, nil
}

// GetUsage возвращает текущее значение счётчика за период,
// ноль — если строка ещё не создавалась.
func (s *Storage) GetUsage(ctx context.Context, subjectID, periodKey string) (int, error) {
	const op = "storage.GetUsage"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var count int
	query := `SELECT count FROM usage_counters WHERE subject_id = $1 AND period_key = $2`
	err := s.DB.QueryRowContext(ctx, query, subjectID, periodKey).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}

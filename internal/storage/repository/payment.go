package repository

import (
	"context"
	"fmt"

	"github.com/ridelink/entitlement-engine/internal/models"
)

// SaveUnlockPayment записывает разовый платёж за открытие контакта.
// Дубликаты разрешает уникальный индекс по (subject_id, beneficiary_id),
// а не блокировка: ON CONFLICT DO NOTHING — самый дешёвый корректный
// примитив для "вставить не более одного раза". Возвращает false, если
// запись уже существовала.
func (s *Storage) SaveUnlockPayment(ctx context.Context, p models.UnlockPayment) (bool, error) {
	const op = "storage.SaveUnlockPayment"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO unlock_payments (subject_id, beneficiary_id, amount, currency, session_ref, status, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, NOW())
			  ON CONFLICT (subject_id, beneficiary_id) DO NOTHING`
	result, err := s.DB.ExecContext(ctx, query,
		p.SubjectID, p.BeneficiaryID, p.Amount, p.Currency, p.SessionRef, p.Status)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return rowsAffected > 0, nil
}

// ListUnlockPayments возвращает платежи водителя за открытия контактов.
func (s *Storage) ListUnlockPayments(ctx context.Context, subjectID string) ([]*models.UnlockPayment, error) {
	const op = "storage.ListUnlockPayments"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT subject_id, beneficiary_id, amount, currency, session_ref, status, created_at
			  FROM unlock_payments
			  WHERE subject_id = $1
			  ORDER BY created_at`
	rows, err := s.DB.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.UnlockPayment
	for rows.Next() {
		var p models.UnlockPayment
		if err := rows.Scan(&p.SubjectID, &p.BeneficiaryID, &p.Amount, &p.Currency,
			&p.SessionRef, &p.Status, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

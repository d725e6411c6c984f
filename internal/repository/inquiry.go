package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/kycgate/internal/model"
)

// CreateInquiry сохраняет проверку личности и возвращает признак того, что она уже была зарегистрирована пользователем.
func (r *PostgresRepository) CreateInquiry(ctx context.Context, inq model.KYCInquiry) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	cmdTag, err := tx.Exec(ctx,
		`INSERT INTO kyc_inquiries (inquiry_id, user_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (inquiry_id) DO NOTHING`,
		inq.InquiryID, inq.UserID, string(model.InquiryPending), inq.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert inquiry: %w", err)
	}

	inserted := cmdTag.RowsAffected() == 1

	var existingUserID int64
	err = tx.QueryRow(ctx,
		`SELECT user_id FROM kyc_inquiries WHERE inquiry_id = $1`,
		inq.InquiryID,
	).Scan(&existingUserID)
	if err != nil {
		return false, fmt.Errorf("select existing inquiry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}

	if existingUserID == inq.UserID {
		return !inserted, nil
	}

	return false, ErrInquiryOwnedByAnother
}

// GetInquiry возвращает проверку личности по идентификатору.
func (r *PostgresRepository) GetInquiry(ctx context.Context, inquiryID string) (*model.KYCInquiry, error) {
	var (
		inq    model.KYCInquiry
		tier   *int16
		status string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT inquiry_id, user_id, granted_tier, status, created_at, updated_at
		 FROM kyc_inquiries
		 WHERE inquiry_id = $1`,
		inquiryID,
	).Scan(&inq.InquiryID, &inq.UserID, &tier, &status, &inq.CreatedAt, &inq.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInquiryNotFound
		}
		return nil, fmt.Errorf("select inquiry: %w", err)
	}

	if tier != nil {
		t := model.Tier(*tier)
		inq.GrantedTier = &t
	}
	inq.Status = model.InquiryStatus(status)
	return &inq, nil
}

// GetPendingInquiries возвращает проверки, ожидающие решения провайдера.
func (r *PostgresRepository) GetPendingInquiries(ctx context.Context, limit int) ([]model.KYCInquiry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT inquiry_id, user_id, created_at, updated_at
		 FROM kyc_inquiries
		 WHERE status = $1
		 ORDER BY created_at
		 LIMIT $2`,
		string(model.InquiryPending),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select pending inquiries: %w", err)
	}
	defer rows.Close()

	var res []model.KYCInquiry
	for rows.Next() {
		var inq model.KYCInquiry
		if err := rows.Scan(&inq.InquiryID, &inq.UserID, &inq.CreatedAt, &inq.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan inquiry: %w", err)
		}
		inq.Status = model.InquiryPending
		res = append(res, inq)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// UpdateInquiryStatus обновляет статус проверки личности и уровень, присвоенный по ней.
func (r *PostgresRepository) UpdateInquiryStatus(ctx context.Context, inquiryID string, status model.InquiryStatus, granted *model.Tier, at time.Time) error {
	var tier *int16
	if granted != nil {
		v := int16(*granted)
		tier = &v
	}

	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE kyc_inquiries SET status = $2, granted_tier = $3, updated_at = $4 WHERE inquiry_id = $1`,
		inquiryID, string(status), tier, at,
	)
	if err != nil {
		return fmt.Errorf("update inquiry: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrInquiryNotFound
	}
	return nil
}

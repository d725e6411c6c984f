package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/kycgate/internal/model"
)

const ensureTierRowQuery = `INSERT INTO user_tiers (user_id)
	SELECT id FROM users WHERE id = $1
	ON CONFLICT (user_id) DO NOTHING`

// GetUserTierState возвращает уровень пользователя. Если уровень ещё не
// записан, создаётся запись с TIER_0.
func (r *PostgresRepository) GetUserTierState(ctx context.Context, userID int64) (*model.UserTierState, error) {
	if _, err := r.pool.Exec(ctx, ensureTierRowQuery, userID); err != nil {
		return nil, fmt.Errorf("ensure tier row: %w", err)
	}

	var (
		tier       int16
		upgradedAt *time.Time
		reason     *string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT current_tier, tier_upgraded_at, tier_upgrade_reason FROM user_tiers WHERE user_id = $1`,
		userID,
	).Scan(&tier, &upgradedAt, &reason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("select tier: %w", err)
	}

	t := model.Tier(tier)
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrMalformedTier, tier)
	}

	return &model.UserTierState{
		UserID:            userID,
		CurrentTier:       t,
		TierUpgradedAt:    upgradedAt,
		TierUpgradeReason: reason,
	}, nil
}

// UpgradeTier повышает уровень пользователя до target и возвращает прежний уровень.
// Запись уровня и журнала изменений выполняется в одной транзакции под
// блокировкой строки уровня.
func (r *PostgresRepository) UpgradeTier(ctx context.Context, userID int64, target model.Tier, reason string, at time.Time) (model.Tier, error) {
	var from model.Tier
	err := r.withRetry(ctx, func() error {
		var err error
		from, err = r.upgradeTier(ctx, userID, target, reason, at)
		return err
	})
	return from, err
}

func (r *PostgresRepository) upgradeTier(ctx context.Context, userID int64, target model.Tier, reason string, at time.Time) (model.Tier, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, ensureTierRowQuery, userID); err != nil {
		return 0, fmt.Errorf("ensure tier row: %w", err)
	}

	var current int16
	err = tx.QueryRow(ctx,
		`SELECT current_tier FROM user_tiers WHERE user_id = $1 FOR UPDATE`,
		userID,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("lock tier row: %w", err)
	}

	from := model.Tier(current)
	if target <= from {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTierTransition, from, target)
	}

	_, err = tx.Exec(ctx,
		`UPDATE user_tiers
		 SET current_tier = $2, tier_upgraded_at = $3, tier_upgrade_reason = $4
		 WHERE user_id = $1`,
		userID, int16(target), at, reason,
	)
	if err != nil {
		return from, fmt.Errorf("update tier: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO tier_upgrades (user_id, from_tier, to_tier, reason, created_at) VALUES ($1, $2, $3, $4, $5)`,
		userID, int16(from), int16(target), reason, at,
	)
	if err != nil {
		return from, fmt.Errorf("insert tier upgrade: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return from, fmt.Errorf("commit tx: %w", err)
	}

	return from, nil
}

const volumeQuery = `SELECT COALESCE(SUM(amount), 0)
	FROM transactions
	WHERE user_id = $1 AND status = $2 AND transaction_type = ANY($3) AND created_at >= $4`

// MonthlyVolume возвращает сумму операций пользователя в окне w в копейках.
func (r *PostgresRepository) MonthlyVolume(ctx context.Context, userID int64, w model.VolumeWindow) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, volumeQuery,
		userID, string(w.Status), w.TypeNames(), w.Since,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum volume: %w", err)
	}
	return total, nil
}

// CreateTransaction записывает завершённую операцию. Если capCents не nil,
// операция отклоняется, когда объём в окне w вместе с суммой превышает лимит.
// Возвращает объём в окне до операции. Блокировка строки пользователя
// сериализует параллельные операции одного пользователя.
func (r *PostgresRepository) CreateTransaction(ctx context.Context, userID int64, typ model.TransactionType, amountCents int64, w model.VolumeWindow, capCents *int64, at time.Time) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var dummy int
	err = tx.QueryRow(ctx, `SELECT 1 FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&dummy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("lock user for update: %w", err)
	}

	var volume int64
	err = tx.QueryRow(ctx, volumeQuery,
		userID, string(w.Status), w.TypeNames(), w.Since,
	).Scan(&volume)
	if err != nil {
		return 0, fmt.Errorf("sum volume: %w", err)
	}

	if capCents != nil && volume+amountCents > *capCents {
		return volume, ErrMonthlyLimitExceeded
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO transactions (user_id, amount, status, transaction_type, created_at) VALUES ($1, $2, $3, $4, $5)`,
		userID, amountCents, string(model.TransactionCompleted), string(typ), at,
	)
	if err != nil {
		return volume, fmt.Errorf("insert transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return volume, fmt.Errorf("commit tx: %w", err)
	}

	return volume, nil
}

// GetTransactionsByUser возвращает историю операций пользователя.
func (r *PostgresRepository) GetTransactionsByUser(ctx context.Context, userID int64) ([]model.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, transaction_type, status, amount, created_at
		 FROM transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var res []model.Transaction
	for rows.Next() {
		var (
			id          int64
			typ, status string
			amountCents int64
			createdAt   time.Time
		)
		if err := rows.Scan(&id, &typ, &status, &amountCents, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}

		res = append(res, model.Transaction{
			ID:        id,
			UserID:    userID,
			Type:      model.TransactionType(typ),
			Status:    model.TransactionStatus(status),
			Amount:    float64(amountCents) / 100,
			CreatedAt: createdAt,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

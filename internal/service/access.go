package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/kycgate/internal/metrics"
	"github.com/mmeshcher/kycgate/internal/model"
	"github.com/mmeshcher/kycgate/internal/repository"
	"github.com/mmeshcher/kycgate/internal/tier"
)

// MaxAmount ограничивает сумму одной операции. Сумма месячного
// объёма в центах при таком ограничении не выходит за пределы int64.
const MaxAmount = 1e12

// ErrInvalidAmount возвращается, если сумма операции не положительна или
// превышает MaxAmount.
var ErrInvalidAmount = errors.New("amount must be positive and not exceed the maximum")

// TierOverview объединяет состояние уровня пользователя с описанием из каталога.
type TierOverview struct {
	State model.UserTierState
	Info  tier.Info
	Next  *tier.Info
	Usage model.Usage
}

// Catalog возвращает каталог уровней.
func (s *Service) Catalog() *tier.Catalog {
	return s.catalog
}

// GetUserTierState читает состояние уровня пользователя из хранилища.
func (s *Service) GetUserTierState(ctx context.Context, userID int64) (*model.UserTierState, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	state, err := s.repo.GetUserTierState(ctx, userID)
	if err != nil {
		return nil, err
	}
	if state == nil || !state.CurrentTier.Valid() {
		return nil, repository.ErrMalformedTier
	}
	return state, nil
}

// GetUserTier возвращает уровень пользователя. Ошибка чтения не передаётся
// вызывающему: возвращается TIER_0, а сбой пишется в журнал.
func (s *Service) GetUserTier(ctx context.Context, userID int64) model.Tier {
	state, err := s.GetUserTierState(ctx, userID)
	if err != nil {
		s.failClosed("tier_resolver", userID, err)
		return model.Tier0
	}
	return state.CurrentTier
}

func (s *Service) failClosed(component string, userID int64, err error) {
	s.logger.Warn("storage read failed, using safe default",
		zap.String("component", component),
		zap.Int64("userID", userID),
		zap.Error(err),
	)
	metrics.FailClosedFallbacks.WithLabelValues(component).Inc()
}

// CanPerform решает, может ли пользователь выполнить действие на сумму amount.
// amount может быть nil, если сумма не важна.
func (s *Service) CanPerform(ctx context.Context, userID int64, action string, amount *float64) model.PermissionDecision {
	d := s.evaluate(s.GetUserTier(ctx, userID), action, amount)
	observeDecision(d)
	return d
}

// evaluate проверяет сначала доступность действия, затем лимит на операцию.
func (s *Service) evaluate(t model.Tier, action string, amount *float64) model.PermissionDecision {
	limits := s.catalog.LimitsFor(t)

	if !limits.AllowedFeatures.Contains(action) {
		required, ok := s.catalog.MinTierForFeature(action)
		if !ok {
			s.logger.Warn("action is not allowed at any tier", zap.String("action", action))
			return model.Deny(model.DenialConfigurationGap,
				fmt.Sprintf("%s is not currently available", action), nil)
		}
		return model.Deny(model.DenialFeature,
			fmt.Sprintf("%s requires %s verification (%s) or higher", action, s.catalog.DisplayName(required), required),
			&required)
	}

	if amount != nil && !limits.MaxTransactionAmount.Allows(*amount) {
		reason := fmt.Sprintf("amount %.2f exceeds the per-transaction limit of %s for %s",
			*amount, limits.MaxTransactionAmount, t)
		required, ok := s.catalog.MinTierForAmount(*amount)
		if !ok {
			return model.Deny(model.DenialAmount, reason, nil)
		}
		return model.Deny(model.DenialAmount, reason, &required)
	}

	return model.Allow()
}

// EvaluateSpend дополняет CanPerform проверкой месячного лимита для операции на сумму amount.
func (s *Service) EvaluateSpend(ctx context.Context, userID int64, action string, amount *float64) model.PermissionDecision {
	t := s.GetUserTier(ctx, userID)

	d := s.evaluate(t, action, amount)
	if d.Allowed && amount != nil {
		d = s.checkMonthlyCap(ctx, userID, t, *amount)
	}

	observeDecision(d)
	return d
}

func (s *Service) checkMonthlyCap(ctx context.Context, userID int64, t model.Tier, amount float64) model.PermissionDecision {
	limit := s.catalog.LimitsFor(t).MaxMonthlyVolume
	if limit.IsUnbounded() {
		return model.Allow()
	}

	usage := s.MonthlyUsage(ctx, userID)
	if !usage.Known && s.opts.VolumeFailClosed {
		return model.Deny(model.DenialUsageUnknown, "monthly volume could not be verified, try again later", nil)
	}

	if total := usage.Volume + amount; !limit.Allows(total) {
		return s.monthlyDenial(t, total, limit)
	}
	return model.Allow()
}

func (s *Service) monthlyDenial(t model.Tier, total float64, limit model.Limit) model.PermissionDecision {
	reason := fmt.Sprintf("monthly volume %.2f would exceed the limit of %s for %s", total, limit, t)
	required, ok := s.catalog.MinTierForMonthlyVolume(total)
	if !ok {
		return model.Deny(model.DenialMonthlyVolume, reason, nil)
	}
	return model.Deny(model.DenialMonthlyVolume, reason, &required)
}

func observeDecision(d model.PermissionDecision) {
	if d.Allowed {
		metrics.PermissionDecisions.WithLabelValues("allowed", "").Inc()
		return
	}
	metrics.PermissionDecisions.WithLabelValues("denied", string(d.Kind)).Inc()
}

// UpgradeTier переводит пользователя на более высокий уровень. Целевой уровень
// должен быть строго выше текущего; повторный вызов с тем же уровнем завершается
// ошибкой ErrInvalidTransition.
func (s *Service) UpgradeTier(ctx context.Context, userID int64, target model.Tier, reason string) model.UpgradeResult {
	if !target.Valid() {
		metrics.TierUpgrades.WithLabelValues("invalid_transition").Inc()
		return model.UpgradeFailed(model.ErrInvalidTransition)
	}
	if reason == "" {
		reason = model.DefaultUpgradeReason
	}

	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	from, err := s.repo.UpgradeTier(ctx, userID, target, reason, s.now())
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrUserNotFound):
		metrics.TierUpgrades.WithLabelValues("not_found").Inc()
		return model.UpgradeFailed(model.ErrNotFound)
	case errors.Is(err, repository.ErrInvalidTierTransition):
		metrics.TierUpgrades.WithLabelValues("invalid_transition").Inc()
		return model.UpgradeFailed(model.ErrInvalidTransition)
	default:
		s.logger.Error("upgrade tier error", zap.Error(err), zap.Int64("userID", userID), zap.Stringer("target", target))
		metrics.TierUpgrades.WithLabelValues("storage_failure").Inc()
		return model.UpgradeFailed(model.ErrStorageFailure)
	}

	s.logger.Info("tier upgraded",
		zap.Int64("userID", userID),
		zap.Stringer("from", from),
		zap.Stringer("to", target),
		zap.String("reason", reason),
	)
	metrics.TierUpgrades.WithLabelValues("success").Inc()
	return model.UpgradeSucceeded(target)
}

// MonthlyVolume возвращает объём операций пользователя за последние 30 дней.
// При ошибке возвращается 0.
func (s *Service) MonthlyVolume(ctx context.Context, userID int64) float64 {
	return s.MonthlyUsage(ctx, userID).Volume
}

// MonthlyUsage возвращает объём операций пользователя за последние 30 дней.
// При ошибке Known равен false, а объём равен 0.
func (s *Service) MonthlyUsage(ctx context.Context, userID int64) model.Usage {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	cents, err := s.repo.MonthlyVolume(ctx, userID, model.NewVolumeWindow(s.now()))
	if err != nil {
		s.failClosed("usage_aggregator", userID, err)
		return model.Usage{}
	}
	return model.Usage{Volume: fromCents(cents), Known: true}
}

// TierOverview возвращает состояние уровня пользователя для отображения.
func (s *Service) TierOverview(ctx context.Context, userID int64) TierOverview {
	state, err := s.GetUserTierState(ctx, userID)
	if err != nil {
		s.failClosed("tier_resolver", userID, err)
		state = &model.UserTierState{UserID: userID, CurrentTier: model.Tier0}
	}

	res := TierOverview{
		State: *state,
		Info:  s.catalog.Info(state.CurrentTier),
		Usage: s.MonthlyUsage(ctx, userID),
	}
	if next, ok := s.catalog.Next(state.CurrentTier); ok {
		info := s.catalog.Info(next)
		res.Next = &info
	}
	return res
}

// CreateTransaction проверяет доступ к операции и записывает её в журнал.
// Если операция запрещена, возвращается решение с причиной и ошибка nil.
func (s *Service) CreateTransaction(ctx context.Context, userID int64, typ model.TransactionType, amount float64) (model.PermissionDecision, error) {
	if !(amount > 0) || amount > MaxAmount {
		return model.PermissionDecision{}, ErrInvalidAmount
	}

	t := s.GetUserTier(ctx, userID)
	d := s.evaluate(t, string(typ), &amount)
	if !d.Allowed {
		observeDecision(d)
		return d, nil
	}

	limit := s.catalog.LimitsFor(t).MaxMonthlyVolume
	var capCents *int64
	if !limit.IsUnbounded() {
		c := toCents(float64(limit))
		capCents = &c
	}

	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	now := s.now()
	volume, err := s.repo.CreateTransaction(ctx, userID, typ, toCents(amount), model.NewVolumeWindow(now), capCents, now)
	if err != nil {
		if errors.Is(err, repository.ErrMonthlyLimitExceeded) {
			d := s.monthlyDenial(t, fromCents(volume)+amount, limit)
			observeDecision(d)
			return d, nil
		}
		return model.PermissionDecision{}, err
	}

	d = model.Allow()
	observeDecision(d)
	return d, nil
}

// GetTransactionsByUser возвращает историю операций пользователя.
func (s *Service) GetTransactionsByUser(ctx context.Context, userID int64) ([]model.Transaction, error) {
	return s.repo.GetTransactionsByUser(ctx, userID)
}

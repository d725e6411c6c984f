package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/kycgate/internal/model"
	"github.com/mmeshcher/kycgate/internal/repository"
	"github.com/mmeshcher/kycgate/internal/validation"
)

const (
	inquirySyncInterval = time.Second
	inquiryBatchSize    = 100
)

// ErrInvalidInquiry возвращается при некорректном идентификаторе проверки.
var ErrInvalidInquiry = errors.New("invalid inquiry id")

// RegisterInquiry сохраняет проверку личности, запущенную пользователем.
// Возвращает true, если проверка уже была зарегистрирована.
func (s *Service) RegisterInquiry(ctx context.Context, userID int64, inquiryID string) (bool, error) {
	if !validation.IsValidInquiryID(inquiryID) {
		return false, ErrInvalidInquiry
	}

	return s.repo.CreateInquiry(ctx, model.KYCInquiry{
		InquiryID: inquiryID,
		UserID:    userID,
		Status:    model.InquiryPending,
		CreatedAt: s.now(),
	})
}

// ApplyInquiryStatus применяет результат проверки, полученный от провайдера.
// Одобренная проверка повышает уровень пользователя до уровня, сопоставленного
// шаблону проверки. Проверка по неизвестному шаблону уровень не меняет. Уже
// завершённые проверки не изменяются.
func (s *Service) ApplyInquiryStatus(ctx context.Context, inquiryID string, result model.ProviderInquiry) (model.InquiryStatus, error) {
	inq, err := s.repo.GetInquiry(ctx, inquiryID)
	if err != nil {
		return "", err
	}
	if inq.Status != model.InquiryPending {
		return inq.Status, nil
	}

	var granted *model.Tier
	status := model.ProviderInquiryStatus(result.Status)
	switch status {
	case model.InquiryPending:
		return status, nil
	case model.InquiryCompleted:
		target, ok := s.opts.TemplateTiers[result.TemplateID]
		if !ok {
			s.logger.Error("kyc template is not mapped to a tier",
				zap.String("inquiryID", inquiryID),
				zap.String("templateID", result.TemplateID),
			)
			status = model.InquiryFailed
			break
		}

		res := s.UpgradeTier(ctx, inq.UserID, target, model.DefaultUpgradeReason)
		switch {
		case res.Success:
			granted = res.NewTier
		case errors.Is(res.Err, model.ErrInvalidTransition):
		case errors.Is(res.Err, model.ErrNotFound):
			status = model.InquiryFailed
		default:
			return model.InquiryPending, fmt.Errorf("apply inquiry %s: %w", inquiryID, res.Err)
		}
	}

	if err := s.repo.UpdateInquiryStatus(ctx, inquiryID, status, granted, s.now()); err != nil {
		return model.InquiryPending, err
	}

	s.logger.Info("kyc inquiry resolved",
		zap.String("inquiryID", inquiryID),
		zap.Int64("userID", inq.UserID),
		zap.String("templateID", result.TemplateID),
		zap.String("status", string(status)),
	)
	return status, nil
}

// StartInquirySync периодически запрашивает у провайдера состояние незавершённых
// проверок до отмены контекста. Без клиента провайдера возвращается сразу.
func (s *Service) StartInquirySync(ctx context.Context, interval time.Duration) {
	if s.kycClient == nil {
		return
	}
	if interval <= 0 {
		interval = inquirySyncInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.processInquiryBatch(ctx)
		}
	}
}

func (s *Service) processInquiryBatch(ctx context.Context) {
	inquiries, err := s.repo.GetPendingInquiries(ctx, inquiryBatchSize)
	if err != nil {
		s.logger.Error("get pending inquiries error", zap.Error(err))
		return
	}

	for _, inq := range inquiries {
		resp, statusCode, retryAfter, err := s.kycClient.GetInquiry(ctx, inq.InquiryID)
		if err != nil {
			s.logger.Warn("kyc provider request error", zap.Error(err), zap.String("inquiryID", inq.InquiryID))
			continue
		}

		if statusCode == http.StatusTooManyRequests {
			if retryAfter > 0 {
				timer := time.NewTimer(retryAfter)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
			continue
		}

		if resp == nil {
			continue
		}

		result := model.ProviderInquiry{Status: resp.Status, TemplateID: resp.TemplateID}
		if _, err := s.ApplyInquiryStatus(ctx, inq.InquiryID, result); err != nil {
			if errors.Is(err, repository.ErrInquiryNotFound) {
				continue
			}
			s.logger.Error("apply inquiry status error", zap.Error(err), zap.String("inquiryID", inq.InquiryID))
		}
	}
}

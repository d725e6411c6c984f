package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/kycgate/internal/kycprovider"
	"github.com/mmeshcher/kycgate/internal/middleware"
	"github.com/mmeshcher/kycgate/internal/model"
	"github.com/mmeshcher/kycgate/internal/repository"
	"github.com/mmeshcher/kycgate/internal/service"
	"github.com/mmeshcher/kycgate/internal/validation"
)

const maxWebhookBody = 1 << 20

type kycConfigResponse struct {
	TemplateID  string `json:"templateId"`
	Environment string `json:"environment"`
}

// GetKYCConfig возвращает параметры, необходимые клиенту для запуска проверки.
func (h *Handler) GetKYCConfig(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, kycConfigResponse{
		TemplateID:  h.opts.KYC.TemplateID,
		Environment: h.opts.KYC.Environment,
	})
}

type inquiryRequest struct {
	InquiryID string `json:"inquiryId" validate:"required"`
}

// RegisterInquiry принимает идентификатор проверки, запущенной текущим пользователем.
// Уровень, который даст проверка, определяется её шаблоном у провайдера.
func (h *Handler) RegisterInquiry(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeStatus(w, http.StatusUnauthorized)
		return
	}

	var req inquiryRequest
	if err := decodeRequest(r, &req); err != nil {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	alreadyExists, err := h.service.RegisterInquiry(r.Context(), userID, req.InquiryID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInquiry):
			writeStatus(w, http.StatusBadRequest)
		case errors.Is(err, repository.ErrInquiryOwnedByAnother):
			writeStatus(w, http.StatusConflict)
		default:
			h.logger.Error("register inquiry error", zap.Error(err), zap.String("inquiryID", req.InquiryID))
			writeStatus(w, http.StatusInternalServerError)
		}
		return
	}

	if alreadyExists {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type webhookRequest struct {
	InquiryID  string `json:"inquiryId"`
	Status     string `json:"status" validate:"required"`
	TemplateID string `json:"templateId" validate:"max=128"`
}

type webhookResponse struct {
	Status model.InquiryStatus `json:"status"`
}

// KYCWebhook принимает уведомление провайдера о смене статуса проверки.
// Тело запроса должно быть подписано общим секретом.
func (h *Handler) KYCWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	if !kycprovider.VerifySignature([]byte(h.opts.KYC.WebhookSecret), body, r.Header.Get(kycprovider.SignatureHeader)) {
		h.logger.Warn("kyc webhook signature mismatch", zap.String("ip", middleware.ClientIP(r)))
		writeStatus(w, http.StatusUnauthorized)
		return
	}

	var req webhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeStatus(w, http.StatusBadRequest)
		return
	}
	if err := validation.Struct(&req); err != nil || !validation.IsValidInquiryID(req.InquiryID) {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	status, err := h.service.ApplyInquiryStatus(r.Context(), req.InquiryID, model.ProviderInquiry{
		Status:     req.Status,
		TemplateID: req.TemplateID,
	})
	if err != nil {
		if errors.Is(err, repository.ErrInquiryNotFound) {
			writeStatus(w, http.StatusNotFound)
			return
		}
		h.logger.Error("kyc webhook error", zap.Error(err), zap.String("inquiryID", req.InquiryID))
		writeStatus(w, http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, webhookResponse{Status: status})
}

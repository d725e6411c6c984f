package handler

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/kycgate/internal/middleware"
	"github.com/mmeshcher/kycgate/internal/model"
	"github.com/mmeshcher/kycgate/internal/service"
)

type transactionRequest struct {
	Type   string  `json:"type" validate:"required"`
	Amount float64 `json:"amount" validate:"gt=0,lte=1000000000000"`
}

// CreateTransaction проверяет доступ к операции и записывает её в журнал.
// Отказ по месячному лимиту возвращается с кодом 402, остальные отказы с кодом 403.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeStatus(w, http.StatusUnauthorized)
		return
	}

	var req transactionRequest
	if err := decodeRequest(r, &req); err != nil {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	typ, ok := model.ParseTransactionType(req.Type)
	if !ok {
		writeStatus(w, http.StatusUnprocessableEntity)
		return
	}

	d, err := h.service.CreateTransaction(r.Context(), userID, typ, req.Amount)
	if err != nil {
		if errors.Is(err, service.ErrInvalidAmount) {
			writeStatus(w, http.StatusBadRequest)
			return
		}
		h.logger.Error("create transaction error", zap.Error(err), zap.Int64("userID", userID))
		writeStatus(w, http.StatusInternalServerError)
		return
	}

	switch {
	case d.Allowed:
		h.writeJSON(w, http.StatusCreated, d)
	case d.Kind == model.DenialMonthlyVolume:
		h.writeJSON(w, http.StatusPaymentRequired, d)
	default:
		h.writeJSON(w, http.StatusForbidden, d)
	}
}

type transactionResponse struct {
	Type      string  `json:"type"`
	Status    string  `json:"status"`
	Amount    float64 `json:"amount"`
	CreatedAt string  `json:"created_at"`
}

// GetTransactions возвращает историю операций текущего пользователя.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeStatus(w, http.StatusUnauthorized)
		return
	}

	txs, err := h.service.GetTransactionsByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("get transactions error", zap.Error(err), zap.Int64("userID", userID))
		writeStatus(w, http.StatusInternalServerError)
		return
	}

	if len(txs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		resp = append(resp, transactionResponse{
			Type:      string(tx.Type),
			Status:    string(tx.Status),
			Amount:    tx.Amount,
			CreatedAt: tx.CreatedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

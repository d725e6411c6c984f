package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/kycgate/internal/middleware"
	"github.com/mmeshcher/kycgate/internal/model"
	"github.com/mmeshcher/kycgate/internal/tier"
)

// GetTiers возвращает каталог уровней.
func (h *Handler) GetTiers(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.Catalog().All())
}

type userTierResponse struct {
	model.UserTierState
	Name         string           `json:"name"`
	Limits       model.TierLimits `json:"limits"`
	Next         *tier.Info       `json:"next,omitempty"`
	Usage        model.Usage      `json:"monthlyUsage"`
	Requirements []string         `json:"requirements"`
	Benefits     []string         `json:"benefits"`
}

// GetUserTier возвращает уровень текущего пользователя вместе с описанием
// следующего уровня.
func (h *Handler) GetUserTier(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeStatus(w, http.StatusUnauthorized)
		return
	}

	o := h.service.TierOverview(r.Context(), userID)
	h.writeJSON(w, http.StatusOK, userTierResponse{
		UserTierState: o.State,
		Name:          o.Info.Name,
		Limits:        o.Info.Limits,
		Next:          o.Next,
		Usage:         o.Usage,
		Requirements:  o.Info.Requirements,
		Benefits:      o.Info.Benefits,
	})
}

type volumeResponse struct {
	Volume    float64     `json:"volume"`
	Known     bool        `json:"known"`
	Limit     model.Limit `json:"limit"`
	Remaining *float64    `json:"remaining"`
}

// GetVolume возвращает объём операций текущего пользователя за 30 дней и
// остаток месячного лимита. Для неограниченного уровня остаток равен null.
func (h *Handler) GetVolume(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeStatus(w, http.StatusUnauthorized)
		return
	}

	o := h.service.TierOverview(r.Context(), userID)
	limit := o.Info.Limits.MaxMonthlyVolume

	resp := volumeResponse{
		Volume: o.Usage.Volume,
		Known:  o.Usage.Known,
		Limit:  limit,
	}
	if !limit.IsUnbounded() {
		remaining := max(float64(limit)-o.Usage.Volume, 0)
		resp.Remaining = &remaining
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type permissionRequest struct {
	Action         string   `json:"action" validate:"required,max=64"`
	Amount         *float64 `json:"amount" validate:"omitempty,gte=0"`
	IncludeMonthly bool     `json:"includeMonthly"`
}

// CheckPermission сообщает, может ли текущий пользователь выполнить действие.
// С флагом includeMonthly учитывается и месячный лимит.
func (h *Handler) CheckPermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeStatus(w, http.StatusUnauthorized)
		return
	}

	var req permissionRequest
	if err := decodeRequest(r, &req); err != nil {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	var d model.PermissionDecision
	if req.IncludeMonthly {
		d = h.service.EvaluateSpend(r.Context(), userID, req.Action, req.Amount)
	} else {
		d = h.service.CanPerform(r.Context(), userID, req.Action, req.Amount)
	}

	h.writeJSON(w, http.StatusOK, d)
}

type upgradeRequest struct {
	Tier   *model.Tier `json:"tier"`
	Reason string      `json:"reason" validate:"max=256"`
}

// UpgradeUserTier вручную повышает уровень пользователя. Доступен только администратору.
func (h *Handler) UpgradeUserTier(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || userID <= 0 {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	var req upgradeRequest
	if err := decodeRequest(r, &req); err != nil || req.Tier == nil {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	res := h.service.UpgradeTier(r.Context(), userID, *req.Tier, req.Reason)

	status := http.StatusOK
	switch {
	case res.Success:
		h.logger.Info("manual tier override", zap.Int64("userID", userID), zap.Stringer("tier", *req.Tier))
	case errors.Is(res.Err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(res.Err, model.ErrInvalidTransition):
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
	}

	h.writeJSON(w, status, res)
}

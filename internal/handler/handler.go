// Package handler содержит HTTP-обработчики API сервиса kycgate.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/kycgate/internal/config"
	"github.com/mmeshcher/kycgate/internal/middleware"
	"github.com/mmeshcher/kycgate/internal/model"
	"github.com/mmeshcher/kycgate/internal/repository"
	"github.com/mmeshcher/kycgate/internal/service"
	"github.com/mmeshcher/kycgate/internal/tier"
	"github.com/mmeshcher/kycgate/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password string, meta model.AuthMeta) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string, meta model.AuthMeta) (int64, error)
	JoinWaitlist(ctx context.Context, signup model.WaitlistSignup) (bool, error)

	Catalog() *tier.Catalog
	TierOverview(ctx context.Context, userID int64) service.TierOverview
	CanPerform(ctx context.Context, userID int64, action string, amount *float64) model.PermissionDecision
	EvaluateSpend(ctx context.Context, userID int64, action string, amount *float64) model.PermissionDecision
	UpgradeTier(ctx context.Context, userID int64, target model.Tier, reason string) model.UpgradeResult

	CreateTransaction(ctx context.Context, userID int64, typ model.TransactionType, amount float64) (model.PermissionDecision, error)
	GetTransactionsByUser(ctx context.Context, userID int64) ([]model.Transaction, error)

	RegisterInquiry(ctx context.Context, userID int64, inquiryID string) (bool, error)
	ApplyInquiryStatus(ctx context.Context, inquiryID string, result model.ProviderInquiry) (model.InquiryStatus, error)
}

// Options содержит настройки, передаваемые обработчикам при создании.
type Options struct {
	KYC        config.KYC
	AdminToken string
	// Limiter ограничивает частоту входов и записей в лист ожидания. Может быть nil.
	Limiter middleware.RateLimiter
}

// Handler реализует HTTP-обработчики API сервиса kycgate.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	opts           Options
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, opts Options) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		opts:           opts,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

func writeStatus(w http.ResponseWriter, status int) {
	http.Error(w, http.StatusText(status), status)
}

// decodeRequest читает тело запроса в v и проверяет его по тегам validate.
func decodeRequest(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}
	return validation.Struct(v)
}

func authMeta(r *http.Request) model.AuthMeta {
	return model.AuthMeta{
		IP:        middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}

type credentialsRequest struct {
	Login    string `json:"login" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=72"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeRequest(r, &req); err != nil {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password, authMeta(r))
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			writeStatus(w, http.StatusConflict)
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		writeStatus(w, http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию пользователя и устанавливает cookie сессии.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeRequest(r, &req); err != nil {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password, authMeta(r))
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeStatus(w, http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		writeStatus(w, http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

type waitlistRequest struct {
	Email          string `json:"email" validate:"required,max=254"`
	Name           string `json:"name" validate:"max=128"`
	ReferralSource string `json:"referralSource" validate:"max=64"`
}

type waitlistResponse struct {
	Message string `json:"message"`
}

// JoinWaitlist добавляет адрес в лист ожидания.
func (h *Handler) JoinWaitlist(w http.ResponseWriter, r *http.Request) {
	var req waitlistRequest
	if err := decodeRequest(r, &req); err != nil {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	created, err := h.service.JoinWaitlist(r.Context(), model.WaitlistSignup{
		Email:          req.Email,
		Name:           req.Name,
		ReferralSource: req.ReferralSource,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidEmail) {
			writeStatus(w, http.StatusBadRequest)
			return
		}
		h.logger.Error("join waitlist error", zap.Error(err))
		writeStatus(w, http.StatusInternalServerError)
		return
	}

	if !created {
		h.writeJSON(w, http.StatusOK, waitlistResponse{Message: "already on the waitlist"})
		return
	}
	h.writeJSON(w, http.StatusCreated, waitlistResponse{Message: "added to the waitlist"})
}

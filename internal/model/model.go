// Package model содержит доменные сущности сервиса kycgate.
package model

import (
	"time"

	"github.com/google/uuid"
)

// User представляет зарегистрированного пользователя.
type User struct {
	ID           int64
	Login        string
	PasswordHash []byte
	CreatedAt    time.Time
	LastLoginAt  *time.Time
}

// UserTierState описывает текущий уровень верификации пользователя.
type UserTierState struct {
	UserID            int64      `json:"userId"`
	CurrentTier       Tier       `json:"currentTier"`
	TierUpgradedAt    *time.Time `json:"tierUpgradedAt,omitempty"`
	TierUpgradeReason *string    `json:"tierUpgradeReason,omitempty"`
}

// DefaultUpgradeReason используется, если причина повышения уровня не указана.
const DefaultUpgradeReason = "KYC verification completed"

// TransactionType описывает тип операции в журнале транзакций.
type TransactionType string

const (
	TransactionDeposit    TransactionType = "deposit"
	TransactionWithdrawal TransactionType = "withdrawal"
	TransactionTransfer   TransactionType = "transfer"
	TransactionSpend      TransactionType = "spend"
	TransactionInvestment TransactionType = "investment"
)

// VolumeTransactionTypes перечисляет типы операций, учитываемые в месячном объёме.
var VolumeTransactionTypes = []TransactionType{
	TransactionDeposit,
	TransactionWithdrawal,
	TransactionTransfer,
	TransactionSpend,
	TransactionInvestment,
}

// ParseTransactionType возвращает тип операции, если он входит в допустимый набор.
func ParseTransactionType(s string) (TransactionType, bool) {
	for _, t := range VolumeTransactionTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// TransactionStatus описывает статус операции.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
)

// Transaction описывает запись журнала транзакций пользователя.
type Transaction struct {
	ID        int64
	UserID    int64
	Type      TransactionType
	Status    TransactionStatus
	Amount    float64
	CreatedAt time.Time
}

// UsageWindow задаёт длину скользящего окна для подсчёта месячного объёма.
const UsageWindow = 30 * 24 * time.Hour

// VolumeWindow описывает фильтр транзакций, входящих в месячный объём.
type VolumeWindow struct {
	Since  time.Time
	Status TransactionStatus
	Types  []TransactionType
}

// NewVolumeWindow строит окно последних 30 дней относительно now.
func NewVolumeWindow(now time.Time) VolumeWindow {
	return VolumeWindow{
		Since:  now.Add(-UsageWindow),
		Status: TransactionCompleted,
		Types:  VolumeTransactionTypes,
	}
}

// Includes сообщает, учитывается ли транзакция в окне.
func (w VolumeWindow) Includes(tx Transaction) bool {
	if tx.Status != w.Status || tx.CreatedAt.Before(w.Since) {
		return false
	}
	for _, t := range w.Types {
		if t == tx.Type {
			return true
		}
	}
	return false
}

// TypeNames возвращает типы окна в виде строк для передачи в SQL.
func (w VolumeWindow) TypeNames() []string {
	res := make([]string, 0, len(w.Types))
	for _, t := range w.Types {
		res = append(res, string(t))
	}
	return res
}

// Usage содержит месячный объём операций пользователя. Known равен false,
// если объём не удалось вычислить.
type Usage struct {
	Volume float64 `json:"volume"`
	Known  bool    `json:"known"`
}

// WaitlistSignup описывает заявку на попадание в лист ожидания.
type WaitlistSignup struct {
	Email          string
	Name           string
	ReferralSource string
}

// WaitlistEntry описывает сохранённую запись листа ожидания.
type WaitlistEntry struct {
	ID             uuid.UUID
	Email          string
	Name           string
	ReferralSource string
	CreatedAt      time.Time
}

// AuthMeta содержит сведения о клиенте для журнала аутентификации.
type AuthMeta struct {
	IP        string
	UserAgent string
}

// AuthEvent описывает запись журнала аутентификации.
type AuthEvent struct {
	UserID    *int64
	Login     string
	Event     string
	Success   bool
	IP        string
	UserAgent string
	CreatedAt time.Time
}

const (
	AuthEventRegister = "register"
	AuthEventLogin    = "login"
)

// InquiryStatus описывает состояние проверки личности у KYC-провайдера.
type InquiryStatus string

const (
	InquiryPending   InquiryStatus = "pending"
	InquiryCompleted InquiryStatus = "completed"
	InquiryFailed    InquiryStatus = "failed"
)

// ProviderInquiryStatus переводит статус провайдера во внутренний статус проверки.
func ProviderInquiryStatus(status string) InquiryStatus {
	switch status {
	case "approved", "completed":
		return InquiryCompleted
	case "declined", "failed", "expired":
		return InquiryFailed
	default:
		return InquiryPending
	}
}

// KYCInquiry описывает проверку личности, запущенную пользователем. GrantedTier
// заполняется, когда одобренная проверка повысила уровень.
type KYCInquiry struct {
	InquiryID   string
	UserID      int64
	Status      InquiryStatus
	GrantedTier *Tier
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProviderInquiry содержит результат проверки со стороны провайдера.
// Уровень определяется шаблоном проверки, а не данными пользователя.
type ProviderInquiry struct {
	Status     string
	TemplateID string
}

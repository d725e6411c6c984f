package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Tier задаёт уровень верификации пользователя. Уровни упорядочены: Tier0 < Tier1 < Tier2 < Tier3.
type Tier int

const (
	Tier0 Tier = iota
	Tier1
	Tier2
	Tier3
)

// Tiers перечисляет все уровни в порядке возрастания.
var Tiers = []Tier{Tier0, Tier1, Tier2, Tier3}

// ErrUnknownTier возвращается при разборе неизвестного уровня.
var ErrUnknownTier = errors.New("unknown tier")

// Valid сообщает, является ли значение одним из известных уровней.
func (t Tier) Valid() bool {
	return t >= Tier0 && t <= Tier3
}

func (t Tier) String() string {
	if !t.Valid() {
		return fmt.Sprintf("TIER(%d)", int(t))
	}
	return "TIER_" + strconv.Itoa(int(t))
}

// ParseTier разбирает уровень в форме "TIER_2", "tier_2" или "2".
func ParseTier(s string) (Tier, error) {
	v := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "TIER_")
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTier, s)
	}
	t := Tier(n)
	if !t.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTier, s)
	}
	return t, nil
}

// MarshalText кодирует уровень в строку "TIER_N".
func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTier, int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText разбирает уровень в любой из форм, принимаемых ParseTier.
func (t *Tier) UnmarshalText(b []byte) error {
	v, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// UnmarshalJSON принимает как строку, так и число.
func (t *Tier) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		v := Tier(n)
		if !v.Valid() {
			return fmt.Errorf("%w: %d", ErrUnknownTier, n)
		}
		*t = v
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("decode tier: %w", err)
	}
	return t.UnmarshalText([]byte(s))
}

// Limit задаёт денежный лимит. Unbounded означает отсутствие ограничения.
type Limit float64

// Unbounded обозначает неограниченный лимит.
var Unbounded = Limit(math.Inf(1))

// IsUnbounded сообщает, что лимит не ограничен.
func (l Limit) IsUnbounded() bool {
	return math.IsInf(float64(l), 1)
}

// Allows сообщает, укладывается ли сумма в лимит.
func (l Limit) Allows(amount float64) bool {
	return l.IsUnbounded() || amount <= float64(l)
}

// MarshalJSON кодирует неограниченный лимит как null.
func (l Limit) MarshalJSON() ([]byte, error) {
	if l.IsUnbounded() {
		return []byte("null"), nil
	}
	return json.Marshal(float64(l))
}

func (l Limit) String() string {
	if l.IsUnbounded() {
		return "unbounded"
	}
	return strconv.FormatFloat(float64(l), 'f', 2, 64)
}

// FeatureSet содержит имена действий, доступных на уровне.
type FeatureSet []string

// Contains сообщает, входит ли действие в набор.
func (f FeatureSet) Contains(action string) bool {
	for _, a := range f {
		if a == action {
			return true
		}
	}
	return false
}

// IsSubsetOf сообщает, что все действия набора присутствуют в other.
func (f FeatureSet) IsSubsetOf(other FeatureSet) bool {
	for _, a := range f {
		if !other.Contains(a) {
			return false
		}
	}
	return true
}

// TierLimits описывает ограничения и доступные действия уровня.
type TierLimits struct {
	MaxTransactionAmount Limit      `json:"maxTransactionAmount"`
	MaxMonthlyVolume     Limit      `json:"maxMonthlyVolume"`
	AllowedFeatures      FeatureSet `json:"allowedFeatures"`
}

// Действия, доступ к которым зависит от уровня верификации.
const (
	ActionViewBalance           = "view_balance"
	ActionDeposit               = "deposit"
	ActionReceive               = "receive"
	ActionSwap                  = "swap"
	ActionTransfer              = "transfer"
	ActionWithdrawal            = "withdrawal"
	ActionSpend                 = "spend"
	ActionCard                  = "card"
	ActionInvestment            = "investment"
	ActionInternationalTransfer = "international_transfer"
	ActionLoan                  = "loan"
	ActionBusinessAccount       = "business_account"
	ActionAPIAccess             = "api_access"
)

// DenialKind классифицирует причину отказа.
type DenialKind string

const (
	DenialFeature          DenialKind = "feature"
	DenialAmount           DenialKind = "amount"
	DenialMonthlyVolume    DenialKind = "monthly_volume"
	DenialConfigurationGap DenialKind = "configuration_gap"
	DenialUsageUnknown     DenialKind = "usage_unknown"
)

// PermissionDecision содержит результат проверки доступа к действию.
type PermissionDecision struct {
	Allowed       bool       `json:"allowed"`
	Reason        string     `json:"reason,omitempty"`
	SuggestedTier *Tier      `json:"suggestedTier,omitempty"`
	Kind          DenialKind `json:"kind,omitempty"`
}

// Allow возвращает положительное решение.
func Allow() PermissionDecision {
	return PermissionDecision{Allowed: true}
}

// Deny возвращает отказ. suggested может быть nil, если подходящего уровня нет.
func Deny(kind DenialKind, reason string, suggested *Tier) PermissionDecision {
	return PermissionDecision{Reason: reason, SuggestedTier: suggested, Kind: kind}
}

// Ошибки результата повышения уровня.
var (
	ErrNotFound          = errors.New("user not found")
	ErrInvalidTransition = errors.New("invalid tier upgrade path")
	ErrStorageFailure    = errors.New("failed to upgrade tier")
)

// UpgradeResult содержит результат повышения уровня. Err совпадает с одной из
// ошибок ErrNotFound, ErrInvalidTransition, ErrStorageFailure при неуспехе.
type UpgradeResult struct {
	Success bool   `json:"success"`
	NewTier *Tier  `json:"newTier,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Err     error  `json:"-"`
}

// UpgradeSucceeded возвращает успешный результат.
func UpgradeSucceeded(t Tier) UpgradeResult {
	return UpgradeResult{Success: true, NewTier: &t}
}

// UpgradeFailed возвращает неуспешный результат с текстом ошибки в Reason.
func UpgradeFailed(err error) UpgradeResult {
	return UpgradeResult{Reason: err.Error(), Err: err}
}

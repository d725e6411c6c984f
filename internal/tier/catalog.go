// Package tier содержит статический каталог уровней верификации.
package tier

import (
	"go.uber.org/zap"

	"github.com/mmeshcher/kycgate/internal/model"
)

// Info описывает уровень для отображения пользователю.
type Info struct {
	Tier         model.Tier       `json:"tier"`
	Name         string           `json:"name"`
	Requirements []string         `json:"requirements"`
	Benefits     []string         `json:"benefits"`
	Limits       model.TierLimits `json:"limits"`
}

var tier0Features = model.FeatureSet{
	model.ActionViewBalance,
	model.ActionDeposit,
	model.ActionReceive,
}

var tier1Features = append(append(model.FeatureSet{}, tier0Features...),
	model.ActionSwap,
	model.ActionTransfer,
	model.ActionWithdrawal,
	model.ActionSpend,
)

var tier2Features = append(append(model.FeatureSet{}, tier1Features...),
	model.ActionCard,
	model.ActionInvestment,
	model.ActionInternationalTransfer,
)

var tier3Features = append(append(model.FeatureSet{}, tier2Features...),
	model.ActionLoan,
	model.ActionBusinessAccount,
	model.ActionAPIAccess,
)

// Индекс в таблице совпадает со значением уровня.
var table = [...]Info{
	{
		Tier: model.Tier0,
		Name: "Unverified",
		Requirements: []string{
			"Email address",
			"Phone number",
		},
		Benefits: []string{
			"Hold and receive stablecoins",
			"Deposit up to 100 per transaction",
		},
		Limits: model.TierLimits{
			MaxTransactionAmount: 100,
			MaxMonthlyVolume:     500,
			AllowedFeatures:      tier0Features,
		},
	},
	{
		Tier: model.Tier1,
		Name: "Basic",
		Requirements: []string{
			"Full legal name",
			"Date of birth",
			"Residential address",
		},
		Benefits: []string{
			"Swap between stablecoins",
			"Send transfers and withdraw to bank",
			"Up to 1,000 per transaction",
		},
		Limits: model.TierLimits{
			MaxTransactionAmount: 1000,
			MaxMonthlyVolume:     5000,
			AllowedFeatures:      tier1Features,
		},
	},
	{
		Tier: model.Tier2,
		Name: "Verified",
		Requirements: []string{
			"Government-issued photo ID",
			"Selfie liveness check",
		},
		Benefits: []string{
			"Virtual and physical cards",
			"Investment products",
			"International transfers",
			"Up to 10,000 per transaction",
		},
		Limits: model.TierLimits{
			MaxTransactionAmount: 10000,
			MaxMonthlyVolume:     50000,
			AllowedFeatures:      tier2Features,
		},
	},
	{
		Tier: model.Tier3,
		Name: "Premium",
		Requirements: []string{
			"Proof of address",
			"Source of funds declaration",
			"Enhanced due diligence review",
		},
		Benefits: []string{
			"Loans and credit lines",
			"Business accounts and API access",
			"No transaction or monthly limits",
		},
		Limits: model.TierLimits{
			MaxTransactionAmount: model.Unbounded,
			MaxMonthlyVolume:     model.Unbounded,
			AllowedFeatures:      tier3Features,
		},
	},
}

// Catalog предоставляет доступ к таблице уровней. Неизвестный уровень
// заменяется на Tier0 с предупреждением в журнале.
type Catalog struct {
	logger *zap.Logger
}

// NewCatalog создаёт каталог уровней.
func NewCatalog(logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{logger: logger}
}

func (c *Catalog) lookup(t model.Tier) Info {
	if !t.Valid() {
		c.logger.Warn("unknown tier, falling back to TIER_0", zap.Int("tier", int(t)))
		return table[model.Tier0]
	}
	return table[t]
}

// Info возвращает копию описания уровня.
func (c *Catalog) Info(t model.Tier) Info {
	info := c.lookup(t)
	info.Requirements = append([]string(nil), info.Requirements...)
	info.Benefits = append([]string(nil), info.Benefits...)
	info.Limits = copyLimits(info.Limits)
	return info
}

// All возвращает описания всех уровней в порядке возрастания.
func (c *Catalog) All() []Info {
	res := make([]Info, 0, len(table))
	for _, t := range model.Tiers {
		res = append(res, c.Info(t))
	}
	return res
}

// LimitsFor возвращает ограничения уровня.
func (c *Catalog) LimitsFor(t model.Tier) model.TierLimits {
	return copyLimits(c.lookup(t).Limits)
}

// FeaturesFor возвращает действия, доступные на уровне.
func (c *Catalog) FeaturesFor(t model.Tier) model.FeatureSet {
	return c.LimitsFor(t).AllowedFeatures
}

// DisplayName возвращает название уровня.
func (c *Catalog) DisplayName(t model.Tier) string {
	return c.lookup(t).Name
}

// Requirements возвращает требования для получения уровня.
func (c *Catalog) Requirements(t model.Tier) []string {
	return append([]string(nil), c.lookup(t).Requirements...)
}

// Benefits возвращает преимущества уровня.
func (c *Catalog) Benefits(t model.Tier) []string {
	return append([]string(nil), c.lookup(t).Benefits...)
}

// Next возвращает следующий уровень, если он есть.
func (c *Catalog) Next(t model.Tier) (model.Tier, bool) {
	if !t.Valid() || t == model.Tier3 {
		return 0, false
	}
	return t + 1, true
}

// MinTierForFeature возвращает наименьший уровень, на котором доступно действие.
func (c *Catalog) MinTierForFeature(action string) (model.Tier, bool) {
	return c.first(func(l model.TierLimits) bool {
		return l.AllowedFeatures.Contains(action)
	})
}

// MinTierForAmount возвращает наименьший уровень, допускающий транзакцию на сумму amount.
func (c *Catalog) MinTierForAmount(amount float64) (model.Tier, bool) {
	return c.first(func(l model.TierLimits) bool {
		return l.MaxTransactionAmount.Allows(amount)
	})
}

// MinTierForMonthlyVolume возвращает наименьший уровень, допускающий месячный объём volume.
func (c *Catalog) MinTierForMonthlyVolume(volume float64) (model.Tier, bool) {
	return c.first(func(l model.TierLimits) bool {
		return l.MaxMonthlyVolume.Allows(volume)
	})
}

func (c *Catalog) first(match func(model.TierLimits) bool) (model.Tier, bool) {
	for _, t := range model.Tiers {
		if match(table[t].Limits) {
			return t, true
		}
	}
	return 0, false
}

func copyLimits(l model.TierLimits) model.TierLimits {
	l.AllowedFeatures = append(model.FeatureSet(nil), l.AllowedFeatures...)
	return l
}

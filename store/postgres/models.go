package postgres

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/credits/entitlement"
)

type entitlementModel struct {
	grove.BaseModel `grove:"table:credits_entitlements"`

	UserID           string    `grove:"user_id,pk"`
	Tier             string    `grove:"tier"`
	CreditsRemaining int64     `grove:"credits_remaining"`
	LastRenewalDate  string    `grove:"last_renewal_date"`
	IsYearly         bool      `grove:"is_yearly"`
	Region           string    `grove:"region"`
	UpdatedAt        time.Time `grove:"updated_at"`
}

func toEntitlementModel(e *entitlement.Entitlement) *entitlementModel {
	r := entitlement.ToRecord(e)
	return &entitlementModel{
		UserID:           e.UserID,
		Tier:             r.Tier,
		CreditsRemaining: r.CreditsRemaining,
		LastRenewalDate:  r.LastRenewalDate,
		IsYearly:         r.IsYearly,
		Region:           r.Region,
		UpdatedAt:        time.Now().UTC(),
	}
}

func fromEntitlementModel(m *entitlementModel) (*entitlement.Entitlement, error) {
	return entitlement.FromRecord(m.UserID, entitlement.Record{
		Tier:             m.Tier,
		CreditsRemaining: m.CreditsRemaining,
		LastRenewalDate:  m.LastRenewalDate,
		IsYearly:         m.IsYearly,
		Region:           m.Region,
	})
}

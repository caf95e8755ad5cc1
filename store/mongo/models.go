package mongo

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/credits/entitlement"
)

type entitlementModel struct {
	grove.BaseModel `grove:"table:credits_entitlements"`

	UserID           string    `grove:"user_id,pk"        bson:"_id"`
	Tier             string    `grove:"tier"              bson:"tier"`
	CreditsRemaining int64     `grove:"credits_remaining" bson:"credits_remaining"`
	LastRenewalDate  string    `grove:"last_renewal_date" bson:"last_renewal_date"`
	IsYearly         bool      `grove:"is_yearly"         bson:"is_yearly"`
	Region           string    `grove:"region"            bson:"region"`
	UpdatedAt        time.Time `grove:"updated_at"        bson:"updated_at"`
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

// setDocument is the $set body of an entitlement upsert.
func (m *entitlementModel) setDocument() map[string]any {
	return map[string]any{
		"tier":              m.Tier,
		"credits_remaining": m.CreditsRemaining,
		"last_renewal_date": m.LastRenewalDate,
		"is_yearly":         m.IsYearly,
		"region":            m.Region,
		"updated_at":        m.UpdatedAt,
	}
}

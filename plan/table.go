package plan

import (
	"github.com/xraph/credits/region"
	"github.com/xraph/credits/types"
)

// LocalMultiplier converts a global minor-unit amount into the local one.
const LocalMultiplier = 40

var (
	globalMonthly = types.USD(500)
	globalYearly  = types.USD(5000)
)

// Table returns the static price table for r. Unknown regions get the
// global table.
func Table(r region.Region) Prices {
	return Prices{
		Monthly: price(r, Monthly),
		Yearly:  price(r, Yearly),
	}
}

// Lookup returns the price of planID in r. The second result is false for
// an unknown plan.
func Lookup(r region.Region, planID ID) (Pricing, bool) {
	if !planID.Valid() {
		return Pricing{}, false
	}
	return price(r, planID), true
}

func price(r region.Region, planID ID) Pricing {
	base := globalMonthly
	desc := "Premium (monthly)"
	if planID == Yearly {
		base = globalYearly
		desc = "Premium (yearly)"
	}

	amount := base
	if r == region.Local {
		amount = types.INR(base.Amount * LocalMultiplier)
	} else {
		r = region.Global
	}

	return Pricing{
		Region:         r,
		PlanID:         planID,
		Amount:         amount,
		CurrencySymbol: amount.Symbol(),
		Description:    desc,
	}
}

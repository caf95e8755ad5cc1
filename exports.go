package credits

import (
	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/region"
	"github.com/xraph/credits/types"
)

// Re-export common types for convenience so users don't have to import the
// leaf packages.

// Money is re-exported from types package.
type Money = types.Money

// Entitlement is re-exported from entitlement package.
type Entitlement = entitlement.Entitlement

// Verdict is re-exported from entitlement package.
type Verdict = entitlement.Verdict

// Region is re-exported from region package.
type Region = region.Region

// PlanID is re-exported from plan package.
type PlanID = plan.ID

// Re-exported constants.
const (
	Monthly = plan.Monthly
	Yearly  = plan.Yearly

	RegionLocal  = region.Local
	RegionGlobal = region.Global

	Unlimited = entitlement.Unlimited
)

// PricingTable returns the static price table for a region.
var PricingTable = plan.Table
